package provider

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/phrazzld/quizrun-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCategorizer struct {
	name  string
	err   error
	calls int
}

func (f *fakeCategorizer) Categorize(ctx context.Context, req CategorizeRequest) (Categorization, error) {
	f.calls++
	if f.err != nil {
		return Categorization{}, f.err
	}
	return Categorization{Category: f.name, Confidence: 1}, nil
}

type emojiOnly struct{}

func (emojiOnly) GenerateEmoji(ctx context.Context, q QuestionInput) (string, error) {
	return "🌍", nil
}

func categorize(ctx context.Context, c Categorizer) (Categorization, error) {
	return c.Categorize(ctx, CategorizeRequest{Categories: []string{"geography"}})
}

func TestRunWithFallback_SkipsFailingProvider(t *testing.T) {
	t.Parallel()

	buf := &logger.TestLogBuffer{}
	ctx := logger.WithLogger(context.Background(), slog.New(slog.NewJSONHandler(buf, nil)))

	a := &fakeCategorizer{name: "A", err: errors.New("quota exceeded")}
	b := &fakeCategorizer{name: "B"}
	providers := []*Provider{
		New("A", "a-1", true, a, PurposeMigration),
		New("B", "b-1", true, b, PurposeMigration),
	}

	// Put A first regardless of the shuffle.
	result, used, ok := RunWithFallback(ctx, providers, "A", categorize, WithOperation("categorize"))

	require.True(t, ok)
	require.NotNil(t, used)
	assert.Equal(t, "B", used.Name)
	assert.Equal(t, "B", result.Category)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)
	assert.Contains(t, buf.String(), "quota exceeded")
	assert.Contains(t, buf.String(), `"provider":"A"`)
}

func TestRunWithFallback_PreferredFirst(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(7, 11))

	for i := 0; i < 50; i++ {
		a, b, c := &fakeCategorizer{name: "A"}, &fakeCategorizer{name: "B"}, &fakeCategorizer{name: "C"}
		providers := []*Provider{
			New("A", "", true, a), New("B", "", true, b), New("C", "", true, c),
		}

		result, used, ok := RunWithFallback(context.Background(), providers, "B", categorize, WithRand(rng))
		require.True(t, ok)
		assert.Equal(t, "B", used.Name)
		assert.Equal(t, "B", result.Category)
		assert.Zero(t, a.calls)
		assert.Zero(t, c.calls)
	}
}

func TestRunWithFallback_AllFail(t *testing.T) {
	t.Parallel()

	providers := []*Provider{
		New("A", "", true, &fakeCategorizer{err: errors.New("down")}),
		New("B", "", true, &fakeCategorizer{err: errors.New("down")}),
	}

	result, used, ok := RunWithFallback(context.Background(), providers, "", categorize)
	assert.False(t, ok)
	assert.Nil(t, used)
	assert.Equal(t, Categorization{}, result)
}

func TestRunWithFallback_FiltersByCapability(t *testing.T) {
	t.Parallel()

	cat := &fakeCategorizer{name: "C"}
	providers := []*Provider{
		New("emoji", "", true, emojiOnly{}),
		New("C", "", true, cat),
	}

	_, used, ok := RunWithFallback(context.Background(), providers, "emoji", categorize)
	require.True(t, ok)
	assert.Equal(t, "C", used.Name)

	_, used, ok = RunWithFallback(context.Background(), providers[:1], "", categorize)
	assert.False(t, ok)
	assert.Nil(t, used)
}

func TestRunWithFallback_StopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	a := &fakeCategorizer{name: "A"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, ok := RunWithFallback(ctx, []*Provider{New("A", "", true, a)}, "", categorize)
	assert.False(t, ok)
	assert.Zero(t, a.calls)
}

// The order is drawn independently per call, so only the long-run
// distribution of the first provider tried is roughly uniform.
func TestRunWithFallback_ShuffleIsRoughlyUniform(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(42, 1024))
	const runs = 3000

	firsts := map[string]int{}
	for i := 0; i < runs; i++ {
		providers := []*Provider{
			New("A", "", true, &fakeCategorizer{name: "A"}),
			New("B", "", true, &fakeCategorizer{name: "B"}),
			New("C", "", true, &fakeCategorizer{name: "C"}),
		}
		_, used, ok := RunWithFallback(context.Background(), providers, "", categorize, WithRand(rng))
		require.True(t, ok)
		firsts[used.Name]++
	}

	expected := runs / 3
	for _, name := range []string{"A", "B", "C"} {
		assert.InDelta(t, expected, firsts[name], float64(expected)*0.15,
			"provider %s was first %d times", name, firsts[name])
	}
}

func TestOrderProviders_ExcludesPreferredFromShuffle(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(3, 5))

	providers := []*Provider{
		New("A", "", true, &fakeCategorizer{}),
		New("B", "", true, &fakeCategorizer{}),
		New("C", "", true, &fakeCategorizer{}),
		New("D", "", true, emojiOnly{}),
	}
	for i := 0; i < 100; i++ {
		order := orderProviders[Categorizer](providers, "C", rng.IntN)
		names := Names(order)
		require.Len(t, names, 3)
		assert.Equal(t, "C", names[0])
		assert.Equal(t, 1, strings.Count(strings.Join(names, ","), "C"))
		assert.NotContains(t, names, "D")
	}
}
