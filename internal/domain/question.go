package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultLanguage is the language every question must carry text in
const DefaultLanguage = "en"

// RequiredOptionCount is the number of answer options a question must have
const RequiredOptionCount = 4

// QuestionStatus represents the review state of a question
type QuestionStatus string

// Possible question status values
const (
	// QuestionStatusDraft means the question has not been reviewed yet
	QuestionStatusDraft QuestionStatus = "draft"
	// QuestionStatusApproved means consensus validation accepted the question
	QuestionStatusApproved QuestionStatus = "approved"
	// QuestionStatusRejected means consensus validation rejected the question
	QuestionStatusRejected QuestionStatus = "rejected"
)

// Difficulty levels
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Question is a multiple-choice quiz question with per-language text.
type Question struct {
	ID              uuid.UUID           `json:"id"`
	Text            map[string]string   `json:"text"`
	Options         map[string][]string `json:"options"`
	CorrectIndex    int                 `json:"correct_index"`
	Explanation     map[string]string   `json:"explanation,omitempty"`
	Category        string              `json:"category,omitempty"`
	Difficulty      string              `json:"difficulty,omitempty"`
	Emoji           string              `json:"emoji,omitempty"`
	Status          QuestionStatus      `json:"status"`
	ValidationNotes string              `json:"validation_notes,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// NewQuestion creates a draft question in the default language.
// Returns an error if validation fails.
func NewQuestion(text string, options []string, correctIndex int, explanation string) (*Question, error) {
	now := time.Now().UTC()
	q := &Question{
		ID:           uuid.New(),
		Text:         map[string]string{DefaultLanguage: text},
		Options:      map[string][]string{DefaultLanguage: options},
		CorrectIndex: correctIndex,
		Status:       QuestionStatusDraft,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if explanation != "" {
		q.Explanation = map[string]string{DefaultLanguage: explanation}
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// TextIn returns the question text in lang, or "" when missing.
func (q *Question) TextIn(lang string) string {
	if q.Text == nil {
		return ""
	}
	return q.Text[lang]
}

// OptionsIn returns the answer options in lang, or nil when missing.
func (q *Question) OptionsIn(lang string) []string {
	if q.Options == nil {
		return nil
	}
	return q.Options[lang]
}

// ExplanationIn returns the explanation in lang, or "" when missing.
func (q *Question) ExplanationIn(lang string) string {
	if q.Explanation == nil {
		return ""
	}
	return q.Explanation[lang]
}

// Validate checks the structural rules every stored question satisfies:
// default-language text, exactly four non-empty options per language and an
// in-range correct index.
func (q *Question) Validate() error {
	if q.ID == uuid.Nil {
		return fmt.Errorf("%w: question ID cannot be empty", ErrInvalidQuestion)
	}
	if strings.TrimSpace(q.TextIn(DefaultLanguage)) == "" {
		return fmt.Errorf("%w: text in %q is required", ErrInvalidQuestion, DefaultLanguage)
	}
	if len(q.OptionsIn(DefaultLanguage)) == 0 {
		return fmt.Errorf("%w: options in %q are required", ErrInvalidQuestion, DefaultLanguage)
	}
	for lang, options := range q.Options {
		if len(options) != RequiredOptionCount {
			return fmt.Errorf("%w: expected %d options in %q, got %d",
				ErrInvalidQuestion, RequiredOptionCount, lang, len(options))
		}
		for i, option := range options {
			if strings.TrimSpace(option) == "" {
				return fmt.Errorf("%w: option %d in %q is empty", ErrInvalidQuestion, i, lang)
			}
		}
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= RequiredOptionCount {
		return fmt.Errorf("%w: correct index %d out of range", ErrInvalidQuestion, q.CorrectIndex)
	}
	switch q.Status {
	case QuestionStatusDraft, QuestionStatusApproved, QuestionStatusRejected:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidQuestion, q.Status)
	}
	return nil
}
