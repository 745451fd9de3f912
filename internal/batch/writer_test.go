package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]string
	failOn  int
}

func (s *recordingSink) CommitBatch(ctx context.Context, batch []Mutation) error {
	refs := make([]string, len(batch))
	for i, m := range batch {
		refs[i] = m.Ref
		if m.Apply != nil {
			if err := m.Apply(ctx, nil); err != nil {
				return err
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, refs)
	if s.failOn > 0 && len(s.batches) == s.failOn {
		return errors.New("transaction aborted")
	}
	return nil
}

func mutations(n int) []Mutation {
	out := make([]Mutation, n)
	for i := range out {
		out[i] = Mutation{Ref: fmt.Sprintf("doc-%04d", i)}
	}
	return out
}

func TestWriter_SplitsIntoBoundedBatches(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	w := NewWriter(sink, 400)
	for _, m := range mutations(850) {
		require.NoError(t, w.Add(context.Background(), m))
	}
	require.NoError(t, w.Close(context.Background()))

	sizes := make([]int, 0, len(sink.batches))
	seen := map[string]int{}
	for _, b := range sink.batches {
		sizes = append(sizes, len(b))
		for _, ref := range b {
			seen[ref]++
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(sizes)))

	assert.Equal(t, []int{400, 400, 50}, sizes)
	assert.Len(t, seen, 850)
	for ref, count := range seen {
		assert.Equal(t, 1, count, "mutation %s committed %d times", ref, count)
	}
	assert.Equal(t, 3, w.Batches())
	assert.Equal(t, 850, w.Total())
}

func TestWriter_ExactMultipleHasNoEmptyBatch(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	require.NoError(t, Write(context.Background(), sink, 400, mutations(800)))
	assert.Len(t, sink.batches, 2)
}

func TestWriter_EmptyCommitsNothing(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	require.NoError(t, Write(context.Background(), sink, 0, nil))
	assert.Empty(t, sink.batches)
}

func TestWriter_ReturnsCommitError(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{failOn: 2}
	err := Write(context.Background(), sink, 10, mutations(35))
	assert.EqualError(t, err, "transaction aborted")
	assert.Len(t, sink.batches, 4)
}

func TestWriter_AppliesMutations(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	applied := 0
	muts := make([]Mutation, 25)
	for i := range muts {
		muts[i] = Mutation{Ref: fmt.Sprint(i), Apply: func(ctx context.Context, tx *sql.Tx) error {
			mu.Lock()
			applied++
			mu.Unlock()
			return nil
		}}
	}

	require.NoError(t, Write(context.Background(), &recordingSink{}, 7, muts))
	assert.Equal(t, 25, applied)
}

func TestWriter_AddAfterClose(t *testing.T) {
	t.Parallel()

	w := NewWriter(SinkFunc(func(ctx context.Context, batch []Mutation) error { return nil }), 5)
	require.NoError(t, w.Close(context.Background()))
	assert.ErrorIs(t, w.Add(context.Background(), Mutation{Ref: "late"}), ErrWriterClosed)
	assert.NoError(t, w.Close(context.Background()))
}
