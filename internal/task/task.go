package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/quizrun-api/internal/domain"
)

// ErrInvalidRequest is returned for operator requests that cannot be applied,
// such as a cleanup with a non-positive age.
var ErrInvalidRequest = errors.New("invalid task request")

// Dispatcher hands a persisted pending task to the delivery queue. It is
// responsible for moving the task to queued, or to failed when delivery
// cannot be arranged.
type Dispatcher interface {
	Dispatch(ctx context.Context, task *domain.Task) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, task *domain.Task) error

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(ctx context.Context, task *domain.Task) error {
	return f(ctx, task)
}

// CreateRequest describes a task to create. Label and Description are
// derived from the type and payload when empty.
type CreateRequest struct {
	Type        domain.TaskType
	Payload     json.RawMessage
	UserID      uuid.UUID
	Label       string
	Description string
}

// OperationResult reports what a multi-task operator control did.
type OperationResult struct {
	Requested int `json:"requested"`
	Affected  int `json:"affected"`
	Skipped   int `json:"skipped"`
	NotFound  int `json:"notFound"`
}

// labelPayload holds the payload fields labels are derived from.
type labelPayload struct {
	Count       int      `json:"count"`
	Topic       string   `json:"topic"`
	Category    string   `json:"category"`
	QuestionIDs []string `json:"questionIds"`
	Questions   []any    `json:"questions"`
}

func describe(taskType domain.TaskType, payload json.RawMessage) (label, description string) {
	var p labelPayload
	_ = json.Unmarshal(payload, &p)

	subject := p.Topic
	if subject == "" {
		subject = p.Category
	}

	switch taskType {
	case domain.TaskTypeQuestionGeneration:
		label = "Generate questions"
		if p.Count > 0 {
			label = fmt.Sprintf("Generate %d questions", p.Count)
		}
		if subject != "" {
			label += " about " + subject
		}
		description = "Generate new quiz questions with AI, filter duplicates and save them as drafts"
	case domain.TaskTypeQuestionCategorization:
		label = "Categorize questions"
		if n := len(p.QuestionIDs); n > 0 {
			label = fmt.Sprintf("Categorize %d questions", n)
		}
		description = "Assign a category and difficulty to questions that lack one"
	case domain.TaskTypeQuestionValidation:
		label = "Validate questions"
		if n := len(p.QuestionIDs); n > 0 {
			label = fmt.Sprintf("Validate %d questions", n)
		}
		description = "Ask several AI providers to check each question and approve or reject it by majority"
	case domain.TaskTypeQuestionImport:
		label = "Import questions"
		if n := len(p.Questions); n > 0 {
			label = fmt.Sprintf("Import %d questions", n)
		}
		description = "Check supplied questions for structural problems and duplicates, then save the rest as drafts"
	case domain.TaskTypeIllustrationGeneration:
		label = "Add emoji to questions"
		description = "Pick an emoji for every question that does not have one"
	default:
		label = strings.ReplaceAll(string(taskType), "_", " ")
	}
	return label, description
}
