// Package queue hands pending tasks to a delivery queue that calls the
// worker endpoint back. Deliveries are at-least-once; the worker tolerates
// redelivery.
package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/phrazzld/quizrun-api/internal/domain"
)

var (
	// ErrDispatchFailed is returned when a task could not be handed to the
	// queue. The task is marked failed before the error is returned.
	ErrDispatchFailed = errors.New("dispatch failed")

	// ErrQueueNotFound is returned when scheduling onto a queue that was
	// never ensured.
	ErrQueueNotFound = errors.New("queue not found")
)

// Limits bounds how a queue delivers and retries.
type Limits struct {
	MaxDispatchesPerSecond float64
	MaxConcurrent          int
	MaxAttempts            int
	MaxRetryDuration       time.Duration
	MinBackoff             time.Duration
	MaxBackoff             time.Duration
}

// DefaultLimits returns the limits applied when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxDispatchesPerSecond: 5,
		MaxConcurrent:          10,
		MaxAttempts:            5,
		MaxRetryDuration:       time.Hour,
		MinBackoff:             10 * time.Second,
		MaxBackoff:             5 * time.Minute,
	}
}

// QueueSpec describes one named delivery queue.
type QueueSpec struct {
	Name   string
	Limits Limits
}

// QueueName returns the queue name for a task type: the prefix and the
// type joined by a dash, with underscores replaced by dashes.
func QueueName(prefix string, taskType domain.TaskType) string {
	name := strings.ReplaceAll(string(taskType), "_", "-")
	if prefix == "" {
		return name
	}
	return prefix + "-" + name
}

// Delivery is one scheduled callback to the worker endpoint.
type Delivery struct {
	Queue          string
	TaskID         string
	URL            string
	Body           []byte
	ScheduleAt     time.Time
	ServiceAccount string
	// Deadline bounds how long the worker call may run before the queue
	// gives up on it. Zero leaves the queue's default.
	Deadline time.Duration
}

// Queue is a durable delayed-delivery queue.
type Queue interface {
	// EnsureQueue creates the queue if it does not exist. It is idempotent.
	EnsureQueue(ctx context.Context, spec QueueSpec) error

	// Schedule enqueues a delivery and returns its handle.
	Schedule(ctx context.Context, d Delivery) (string, error)
}
