// Package cloudtasks implements queue.Queue on Google Cloud Tasks.
package cloudtasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	"cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
	"github.com/googleapis/gax-go/v2"
	"github.com/phrazzld/quizrun-api/internal/queue"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// MaxDispatchDeadline is the longest dispatch deadline Cloud Tasks accepts
// for HTTP targets. Longer task types keep running on the worker after the
// attempt times out, and the redelivery that follows is acknowledged.
const MaxDispatchDeadline = 30 * time.Minute

// Client is the subset of the Cloud Tasks API the adapter uses.
type Client interface {
	GetQueue(ctx context.Context, req *cloudtaskspb.GetQueueRequest, opts ...gax.CallOption) (*cloudtaskspb.Queue, error)
	CreateQueue(ctx context.Context, req *cloudtaskspb.CreateQueueRequest, opts ...gax.CallOption) (*cloudtaskspb.Queue, error)
	CreateTask(ctx context.Context, req *cloudtaskspb.CreateTaskRequest, opts ...gax.CallOption) (*cloudtaskspb.Task, error)
}

// Config locates the queues.
type Config struct {
	ProjectID string
	Location  string
}

// Queue schedules worker deliveries as Cloud Tasks HTTP tasks carrying an
// OIDC token for the service account.
type Queue struct {
	client Client
	config Config
	logger *slog.Logger
}

var _ queue.Queue = (*Queue)(nil)

// New creates a Queue on an existing client.
func New(client Client, config Config, logger *slog.Logger) (*Queue, error) {
	if client == nil {
		return nil, fmt.Errorf("cloud tasks client cannot be nil")
	}
	if config.ProjectID == "" || config.Location == "" {
		return nil, fmt.Errorf("cloud tasks project and location are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		client: client,
		config: config,
		logger: logger.With(slog.String("component", "cloudtasks_queue")),
	}, nil
}

// Dial opens a Cloud Tasks client with application default credentials and
// wraps it in a Queue. The returned close function releases the client.
func Dial(ctx context.Context, config Config, logger *slog.Logger, opts ...option.ClientOption) (*Queue, func() error, error) {
	client, err := cloudtasks.NewClient(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create cloud tasks client: %w", err)
	}
	q, err := New(client, config, logger)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return q, client.Close, nil
}

func (q *Queue) parent() string {
	return fmt.Sprintf("projects/%s/locations/%s", q.config.ProjectID, q.config.Location)
}

func (q *Queue) queuePath(name string) string {
	return q.parent() + "/queues/" + name
}

// EnsureQueue implements queue.Queue. It creates the queue only when
// GetQueue reports NotFound, and treats a concurrent create as success.
func (q *Queue) EnsureQueue(ctx context.Context, spec queue.QueueSpec) error {
	path := q.queuePath(spec.Name)

	_, err := q.client.GetQueue(ctx, &cloudtaskspb.GetQueueRequest{Name: path})
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to get queue %s: %w", spec.Name, err)
	}

	limits := spec.Limits
	_, err = q.client.CreateQueue(ctx, &cloudtaskspb.CreateQueueRequest{
		Parent: q.parent(),
		Queue: &cloudtaskspb.Queue{
			Name: path,
			RateLimits: &cloudtaskspb.RateLimits{
				MaxDispatchesPerSecond:  limits.MaxDispatchesPerSecond,
				MaxConcurrentDispatches: int32(limits.MaxConcurrent),
			},
			RetryConfig: &cloudtaskspb.RetryConfig{
				MaxAttempts:      int32(limits.MaxAttempts),
				MaxRetryDuration: durationpb.New(limits.MaxRetryDuration),
				MinBackoff:       durationpb.New(limits.MinBackoff),
				MaxBackoff:       durationpb.New(limits.MaxBackoff),
			},
		},
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("failed to create queue %s: %w", spec.Name, err)
	}

	q.logger.Info("queue created", slog.String("queue", spec.Name))
	return nil
}

// Schedule implements queue.Queue. The returned handle is the Cloud Tasks
// task name.
func (q *Queue) Schedule(ctx context.Context, d queue.Delivery) (string, error) {
	req := &cloudtaskspb.CreateTaskRequest{
		Parent: q.queuePath(d.Queue),
		Task: &cloudtaskspb.Task{
			MessageType: &cloudtaskspb.Task_HttpRequest{
				HttpRequest: &cloudtaskspb.HttpRequest{
					Url:        d.URL,
					HttpMethod: cloudtaskspb.HttpMethod_POST,
					Headers:    map[string]string{"Content-Type": "application/json"},
					Body:       d.Body,
				},
			},
		},
	}
	if d.ServiceAccount != "" {
		req.Task.GetHttpRequest().AuthorizationHeader = &cloudtaskspb.HttpRequest_OidcToken{
			OidcToken: &cloudtaskspb.OidcToken{
				ServiceAccountEmail: d.ServiceAccount,
				Audience:            d.URL,
			},
		}
	}
	if !d.ScheduleAt.IsZero() {
		req.Task.ScheduleTime = timestamppb.New(d.ScheduleAt)
	}
	if d.Deadline > 0 {
		req.Task.DispatchDeadline = durationpb.New(min(d.Deadline, MaxDispatchDeadline))
	}

	created, err := q.client.CreateTask(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to create task on %s: %w", d.Queue, err)
	}

	q.logger.Debug("delivery scheduled",
		slog.String("queue", d.Queue),
		slog.String("task_id", d.TaskID),
		slog.String("handle", created.GetName()))
	return created.GetName(), nil
}
