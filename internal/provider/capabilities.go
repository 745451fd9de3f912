package provider

import "context"

// Purpose is the functional context a provider is selected for. It decides
// eligibility and whether confirmed health is required.
type Purpose string

// Supported purposes
const (
	PurposeGeneration   Purpose = "generation"
	PurposeValidation   Purpose = "validation"
	PurposeMigration    Purpose = "migration"
	PurposeIllustration Purpose = "illustration"
)

// AllPurposes lists every purpose in a stable order.
func AllPurposes() []Purpose {
	return []Purpose{PurposeGeneration, PurposeValidation, PurposeMigration, PurposeIllustration}
}

// QuestionInput is the provider-facing shape of a single-language question.
type QuestionInput struct {
	Text         string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	Explanation  string   `json:"explanation,omitempty"`
	Category     string   `json:"category,omitempty"`
	Difficulty   string   `json:"difficulty,omitempty"`
	Language     string   `json:"language,omitempty"`
}

// GenerateRequest asks a provider for new questions.
type GenerateRequest struct {
	Topic      string   `json:"topic"`
	Category   string   `json:"category,omitempty"`
	Difficulty string   `json:"difficulty,omitempty"`
	Count      int      `json:"count"`
	Language   string   `json:"language"`
	Avoid      []string `json:"avoid,omitempty"`
}

// CategorizeRequest asks a provider to place a question in one of the
// known categories.
type CategorizeRequest struct {
	Question   QuestionInput `json:"question"`
	Categories []string      `json:"categories"`
}

// Categorization is a provider's answer to a CategorizeRequest.
type Categorization struct {
	Category   string  `json:"category"`
	Difficulty string  `json:"difficulty,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Verdict is one provider's judgement of a question. Valid is nil when the
// provider answered but could not decide.
type Verdict struct {
	Valid                 *bool    `json:"valid"`
	Issues                []string `json:"issues"`
	SuggestedCorrectIndex *int     `json:"suggestedCorrectIndex,omitempty"`
	Reasoning             string   `json:"reasoning"`
}

// Generator produces new quiz questions.
type Generator interface {
	GenerateQuestions(ctx context.Context, req GenerateRequest) ([]QuestionInput, error)
}

// Categorizer assigns a category to a question.
type Categorizer interface {
	Categorize(ctx context.Context, req CategorizeRequest) (Categorization, error)
}

// Illustrator picks an emoji that illustrates a question.
type Illustrator interface {
	GenerateEmoji(ctx context.Context, q QuestionInput) (string, error)
}

// Validator judges whether a question and its declared answer are correct.
type Validator interface {
	ValidateQuestion(ctx context.Context, q QuestionInput) (Verdict, error)
}

// Prober issues a minimal real request to confirm the provider responds.
type Prober interface {
	Probe(ctx context.Context) error
}
