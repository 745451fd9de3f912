// Package batch splits large write sets into size-bounded atomic batches.
// Batches are committed concurrently and the caller waits for all of them.
package batch

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultMaxBatchSize stays below the 500 statement cap a single
// transaction is allowed.
const DefaultMaxBatchSize = 400

// ErrWriterClosed is returned when a mutation is added after Close.
var ErrWriterClosed = errors.New("batch writer is closed")

// Mutation is one write against a referenced entity. Apply runs inside the
// transaction of the batch it belongs to; tx is nil for sinks that are not
// transactional.
type Mutation struct {
	Ref   string
	Apply func(ctx context.Context, tx *sql.Tx) error
}

// Sink commits one batch atomically.
type Sink interface {
	CommitBatch(ctx context.Context, batch []Mutation) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, batch []Mutation) error

// CommitBatch implements Sink.
func (f SinkFunc) CommitBatch(ctx context.Context, batch []Mutation) error {
	return f(ctx, batch)
}

// Writer accumulates mutations and flushes a batch each time MaxBatchSize
// mutations are pending. Close flushes the trailing partial batch and waits
// for every flush.
type Writer struct {
	sink    Sink
	maxSize int

	mu      sync.Mutex
	pending []Mutation
	closed  bool
	batches int
	total   int
	group   errgroup.Group
}

// NewWriter creates a Writer. A maxSize of zero or less selects
// DefaultMaxBatchSize.
func NewWriter(sink Sink, maxSize int) *Writer {
	if maxSize <= 0 {
		maxSize = DefaultMaxBatchSize
	}
	return &Writer{sink: sink, maxSize: maxSize}
}

// Add queues m, flushing the current batch in the background once it is full.
func (w *Writer) Add(ctx context.Context, m Mutation) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}
	w.pending = append(w.pending, m)
	if len(w.pending) >= w.maxSize {
		w.flushLocked(ctx)
	}
	return nil
}

// Close flushes any pending mutations and waits for every batch. It returns
// the first commit error.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		if len(w.pending) > 0 {
			w.flushLocked(ctx)
		}
	}
	w.mu.Unlock()

	return w.group.Wait()
}

// Batches returns how many batches were flushed so far.
func (w *Writer) Batches() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.batches
}

// Total returns how many mutations were handed to the sink so far.
func (w *Writer) Total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total
}

func (w *Writer) flushLocked(ctx context.Context) {
	batch := w.pending
	w.pending = make([]Mutation, 0, w.maxSize)
	w.batches++
	w.total += len(batch)

	w.group.Go(func() error {
		return w.sink.CommitBatch(ctx, batch)
	})
}

// Write adds every mutation to a new Writer over sink and closes it.
func Write(ctx context.Context, sink Sink, maxSize int, mutations []Mutation) error {
	w := NewWriter(sink, maxSize)
	for _, m := range mutations {
		if err := w.Add(ctx, m); err != nil {
			return err
		}
	}
	return w.Close(ctx)
}

// Direct is a Sink that applies every mutation in order without a
// transaction. In-memory stores use it.
var Direct Sink = SinkFunc(func(ctx context.Context, batch []Mutation) error {
	for _, m := range batch {
		if err := m.Apply(ctx, nil); err != nil {
			return err
		}
	}
	return nil
})
