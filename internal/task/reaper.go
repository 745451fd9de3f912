package task

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/phrazzld/quizrun-api/internal/batch"
	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/store"
)

// DefaultReapInterval is how often a started Reaper checks for stuck tasks.
const DefaultReapInterval = 5 * time.Minute

// ReapResult counts the tasks a reaping pass failed, by the status they
// were stuck in.
type ReapResult struct {
	Pending    int `json:"pending"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
}

// Total returns the number of reaped tasks.
func (r ReapResult) Total() int {
	return r.Pending + r.Queued + r.Processing
}

// Reaper fails tasks that never reached a terminal state: processing past
// the task type's timeout, and pending or queued past domain.QueuedTimeout.
// Reaping is idempotent; a task that finished in the meantime is skipped.
type Reaper struct {
	store     store.TaskStore
	sink      batch.Sink
	batchSize int
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ReaperOption configures a Reaper.
type ReaperOption func(*Reaper)

// WithReaperSink sets the sink reaping transitions commit through.
func WithReaperSink(sink batch.Sink, size int) ReaperOption {
	return func(r *Reaper) {
		r.sink = sink
		r.batchSize = size
	}
}

// WithReaperClock overrides the time source.
func WithReaperClock(now func() time.Time) ReaperOption {
	return func(r *Reaper) { r.now = now }
}

// NewReaper creates a Reaper over taskStore.
func NewReaper(taskStore store.TaskStore, logger *slog.Logger, opts ...ReaperOption) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reaper{
		store:     taskStore,
		sink:      batch.Direct,
		batchSize: batch.DefaultMaxBatchSize,
		logger:    logger.With(slog.String("component", "task_reaper")),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReapOnce runs a single reaping pass.
func (r *Reaper) ReapOnce(ctx context.Context) (ReapResult, error) {
	now := r.now()

	var stuck []*domain.Task
	for _, status := range []domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusQueued} {
		tasks, err := r.store.ListStale(ctx, status, now.Add(-domain.QueuedTimeout))
		if err != nil {
			return ReapResult{}, fmt.Errorf("failed to list stale %s tasks: %w", status, err)
		}
		stuck = append(stuck, tasks...)
	}

	// The shortest processing timeout bounds the query; longer-running
	// types are filtered below.
	processing, err := r.store.ListStale(ctx, domain.TaskStatusProcessing, now.Add(-domain.DefaultProcessingTimeout))
	if err != nil {
		return ReapResult{}, fmt.Errorf("failed to list stale processing tasks: %w", err)
	}
	for _, t := range processing {
		since := t.UpdatedAt
		if t.StartedAt != nil {
			since = *t.StartedAt
		}
		if now.Sub(since) > t.Type.ProcessingTimeout() {
			stuck = append(stuck, t)
		}
	}

	if len(stuck) == 0 {
		return ReapResult{}, nil
	}

	var pending, queued, running atomic.Int64
	mutations := make([]batch.Mutation, 0, len(stuck))
	for _, t := range stuck {
		message := timeoutMessage(t)
		mutations = append(mutations, batch.Mutation{
			Ref: t.ID.String(),
			Apply: func(ctx context.Context, tx *sql.Tx) error {
				s := r.store
				if tx != nil {
					s = s.WithTx(tx)
				}
				applied, err := s.Transition(ctx, t.ID, domain.TaskStatusFailed, domain.TransitionOptions{
					Error:    message,
					Progress: &domain.Progress{Phase: domain.PhaseFailed, Details: message},
				})
				if err != nil || !applied {
					return err
				}
				switch t.Status {
				case domain.TaskStatusPending:
					pending.Add(1)
				case domain.TaskStatusQueued:
					queued.Add(1)
				default:
					running.Add(1)
				}
				r.logger.Warn("reaped stuck task",
					slog.String("task_id", t.ID.String()),
					slog.String("task_type", string(t.Type)),
					slog.String("status", string(t.Status)))
				return nil
			},
		})
	}

	if err := batch.Write(ctx, r.sink, r.batchSize, mutations); err != nil {
		return ReapResult{}, fmt.Errorf("failed to reap tasks: %w", err)
	}

	result := ReapResult{
		Pending:    int(pending.Load()),
		Queued:     int(queued.Load()),
		Processing: int(running.Load()),
	}
	r.logger.Info("reaping pass finished",
		slog.Int("pending", result.Pending),
		slog.Int("queued", result.Queued),
		slog.Int("processing", result.Processing))
	return result, nil
}

// Start runs ReapOnce every interval until Stop is called. A non-positive
// interval selects DefaultReapInterval.
func (r *Reaper) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultReapInterval
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.wg.Add(1)
	go r.loop(ctx, interval)
}

// Stop halts a started Reaper and waits for an in-flight pass to finish.
func (r *Reaper) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

func (r *Reaper) loop(ctx context.Context, interval time.Duration) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ReapOnce(ctx); err != nil {
				r.logger.Error("failed to reap stuck tasks", slog.String("error", err.Error()))
			}
		}
	}
}

func timeoutMessage(t *domain.Task) string {
	switch t.Status {
	case domain.TaskStatusProcessing:
		return fmt.Sprintf("Task timed out after %s without finishing", formatDuration(t.Type.ProcessingTimeout()))
	case domain.TaskStatusQueued:
		return fmt.Sprintf("Task was not picked up within %s", formatDuration(domain.QueuedTimeout))
	default:
		return fmt.Sprintf("Task was not handed to the queue within %s", formatDuration(domain.QueuedTimeout))
	}
}

func formatDuration(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return fmt.Sprintf("%d minutes", int(d/time.Minute))
}
