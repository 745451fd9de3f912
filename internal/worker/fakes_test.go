package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/quizrun-api/internal/domain"
	"github.com/phrazzld/quizrun-api/internal/provider"
	"github.com/phrazzld/quizrun-api/internal/task"
	"github.com/stretchr/testify/require"
)

var errProviderDown = errors.New("provider down")

// fakeAI implements every provider capability through optional funcs. A nil
// func fails the call.
type fakeAI struct {
	generate   func(req provider.GenerateRequest) ([]provider.QuestionInput, error)
	categorize func(req provider.CategorizeRequest) (provider.Categorization, error)
	emoji      func(q provider.QuestionInput) (string, error)
	validate   func(q provider.QuestionInput) (provider.Verdict, error)

	calls atomic.Int32
}

func (f *fakeAI) GenerateQuestions(ctx context.Context, req provider.GenerateRequest) ([]provider.QuestionInput, error) {
	f.calls.Add(1)
	if f.generate == nil {
		return nil, errProviderDown
	}
	return f.generate(req)
}

func (f *fakeAI) Categorize(ctx context.Context, req provider.CategorizeRequest) (provider.Categorization, error) {
	f.calls.Add(1)
	if f.categorize == nil {
		return provider.Categorization{}, errProviderDown
	}
	return f.categorize(req)
}

func (f *fakeAI) GenerateEmoji(ctx context.Context, q provider.QuestionInput) (string, error) {
	f.calls.Add(1)
	if f.emoji == nil {
		return "", errProviderDown
	}
	return f.emoji(q)
}

func (f *fakeAI) ValidateQuestion(ctx context.Context, q provider.QuestionInput) (provider.Verdict, error) {
	f.calls.Add(1)
	if f.validate == nil {
		return provider.Verdict{}, errProviderDown
	}
	return f.validate(q)
}

// staticProviders serves a fixed provider list filtered by purpose.
type staticProviders []*provider.Provider

func (s staticProviders) ForPurpose(ctx context.Context, purpose provider.Purpose) ([]*provider.Provider, error) {
	var out []*provider.Provider
	for _, p := range s {
		if p.Configured && p.EnabledFor(purpose) {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w for %s", provider.ErrNoProviderConfigured, purpose)
	}
	return out, nil
}

func fakeProvider(name string, ai *fakeAI) *provider.Provider {
	return provider.New(name, name+"-model", true, ai, provider.AllPurposes()...)
}

func approve(provider.QuestionInput) (provider.Verdict, error) {
	valid := true
	return provider.Verdict{Valid: &valid, Issues: []string{}, Reasoning: "looks right"}, nil
}

func reject(issues ...string) func(provider.QuestionInput) (provider.Verdict, error) {
	return func(provider.QuestionInput) (provider.Verdict, error) {
		valid := false
		return provider.Verdict{Valid: &valid, Issues: issues}, nil
	}
}

func sampleInput(text string) provider.QuestionInput {
	return provider.QuestionInput{
		Text:         text,
		Options:      []string{"Mercury", "Venus", "Earth", "Mars"},
		CorrectIndex: 1,
		Explanation:  "Venus has the thickest atmosphere.",
	}
}

func sampleQuestion(t *testing.T, text string) *domain.Question {
	t.Helper()
	in := sampleInput(text)
	q, err := domain.NewQuestion(in.Text, in.Options, in.CorrectIndex, in.Explanation)
	require.NoError(t, err)
	return q
}

func testDeps(providers staticProviders, questions *task.MockQuestionStore) Deps {
	return Deps{
		Providers: providers,
		Questions: questions,
		Rand:      rand.New(rand.NewPCG(1, 2)),
	}
}

func seedTask(t *testing.T, tasks *task.MockTaskStore, taskType domain.TaskType, payload string) *domain.Task {
	t.Helper()
	tk, err := domain.NewTask(taskType, uuid.Nil, []byte(payload))
	require.NoError(t, err)
	tasks.Put(tk)
	return tk
}
