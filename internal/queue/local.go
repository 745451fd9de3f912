package queue

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// Headers set on every local delivery. They mirror the ones Cloud Tasks
// sends so the worker handler logs the same fields in both modes.
const (
	HeaderQueueName  = "X-CloudTasks-QueueName"
	HeaderTaskName   = "X-CloudTasks-TaskName"
	HeaderRetryCount = "X-CloudTasks-TaskRetryCount"
)

// TokenSource mints identity tokens that bind a delivery to a service
// principal.
type TokenSource interface {
	Token(ctx context.Context, audience, principal string) (string, error)
}

// LocalQueue delivers tasks in-process over HTTP. It is meant for
// development and tests; deliveries do not survive a restart.
type LocalQueue struct {
	client *http.Client
	tokens TokenSource
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	seq    atomic.Uint64

	mu     sync.Mutex
	queues map[string]*localQueue
}

type localQueue struct {
	spec    QueueSpec
	limiter *rate.Limiter
	slots   chan struct{}
}

var _ Queue = (*LocalQueue)(nil)

// NewLocalQueue creates a LocalQueue. tokens may be nil, in which case
// deliveries carry no Authorization header. Each attempt is bounded by the
// delivery's Deadline, so client should not set its own Timeout.
func NewLocalQueue(client *http.Client, tokens TokenSource, logger *slog.Logger) *LocalQueue {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalQueue{
		client: client,
		tokens: tokens,
		logger: logger.With(slog.String("component", "local_queue")),
		ctx:    ctx,
		cancel: cancel,
		queues: make(map[string]*localQueue),
	}
}

// EnsureQueue implements Queue.
func (l *LocalQueue) EnsureQueue(ctx context.Context, spec QueueSpec) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.queues[spec.Name]; ok {
		return nil
	}

	limit := rate.Inf
	burst := 1
	if spec.Limits.MaxDispatchesPerSecond > 0 {
		limit = rate.Limit(spec.Limits.MaxDispatchesPerSecond)
		burst = max(1, int(math.Ceil(spec.Limits.MaxDispatchesPerSecond)))
	}
	slots := max(1, spec.Limits.MaxConcurrent)

	l.queues[spec.Name] = &localQueue{
		spec:    spec,
		limiter: rate.NewLimiter(limit, burst),
		slots:   make(chan struct{}, slots),
	}
	l.logger.Info("queue created", slog.String("queue", spec.Name))
	return nil
}

// Schedule implements Queue.
func (l *LocalQueue) Schedule(ctx context.Context, d Delivery) (string, error) {
	l.mu.Lock()
	q, ok := l.queues[d.Queue]
	l.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrQueueNotFound, d.Queue)
	}
	if err := l.ctx.Err(); err != nil {
		return "", fmt.Errorf("local queue is closed: %w", err)
	}

	handle := fmt.Sprintf("local/%s/%d", d.Queue, l.seq.Add(1))
	l.wg.Add(1)
	go l.deliver(q, d, handle)
	return handle, nil
}

// Wait blocks until every scheduled delivery has finished or given up.
func (l *LocalQueue) Wait() {
	l.wg.Wait()
}

// Close abandons pending deliveries and waits for in-flight ones.
func (l *LocalQueue) Close() {
	l.cancel()
	l.wg.Wait()
}

func (l *LocalQueue) deliver(q *localQueue, d Delivery, handle string) {
	defer l.wg.Done()

	log := l.logger.With(
		slog.String("queue", d.Queue),
		slog.String("task_id", d.TaskID),
		slog.String("handle", handle))

	if wait := time.Until(d.ScheduleAt); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-l.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	limits := q.spec.Limits
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = limits.MinBackoff
	expo.MaxInterval = limits.MaxBackoff
	expo.MaxElapsedTime = limits.MaxRetryDuration
	expo.Multiplier = 2
	expo.RandomizationFactor = 0
	expo.Reset()

	var policy backoff.BackOff = expo
	if limits.MaxAttempts > 0 {
		policy = backoff.WithMaxRetries(expo, uint64(limits.MaxAttempts-1))
	}

	attempt := 0
	err := backoff.RetryNotify(func() error {
		err := l.attempt(q, d, handle, attempt)
		attempt++
		return err
	}, backoff.WithContext(policy, l.ctx), func(err error, next time.Duration) {
		log.Warn("delivery attempt failed, retrying",
			slog.String("error", err.Error()),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", next))
	})
	if err != nil {
		log.Error("delivery abandoned",
			slog.String("error", err.Error()),
			slog.Int("attempts", attempt))
		return
	}
	log.Debug("delivery acknowledged", slog.Int("attempts", attempt))
}

func (l *LocalQueue) attempt(q *localQueue, d Delivery, handle string, retry int) error {
	if err := q.limiter.Wait(l.ctx); err != nil {
		return backoff.Permanent(err)
	}

	select {
	case q.slots <- struct{}{}:
	case <-l.ctx.Done():
		return backoff.Permanent(l.ctx.Err())
	}
	defer func() { <-q.slots }()

	ctx := l.ctx
	if d.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Deadline)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(d.Body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to build delivery request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderQueueName, d.Queue)
	req.Header.Set(HeaderTaskName, handle)
	req.Header.Set(HeaderRetryCount, strconv.Itoa(retry))

	if l.tokens != nil {
		token, err := l.tokens.Token(ctx, d.URL, d.ServiceAccount)
		if err != nil {
			return fmt.Errorf("failed to mint identity token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("worker responded with status %d", resp.StatusCode)
	}
	return nil
}
