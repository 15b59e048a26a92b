package model

import (
	"github.com/google/uuid"
)

type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "single_choice"
	QuestionTypeMultiChoice  QuestionType = "multi_choice"
	QuestionTypeTrueFalse    QuestionType = "true_false"
	QuestionTypeFillBlank    QuestionType = "fill_blank"
	QuestionTypeShortAnswer  QuestionType = "short_answer"
	QuestionTypeEssay        QuestionType = "essay"
)

// Option is a selectable answer of a choice question.
type Option struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Question represents a single exam question including its answer key.
type Question struct {
	ID                    uuid.UUID    `json:"id"`
	Type                  QuestionType `json:"type"`
	Text                  string       `json:"text"`
	Points                float64      `json:"points"`
	RequiresManualGrading bool         `json:"requires_manual_grading"`
	AllowPartialCredit    bool         `json:"allow_partial_credit"`
	CaseSensitive         bool         `json:"case_sensitive"`
	Options               []Option     `json:"options"`
	CorrectAnswers        []string     `json:"correct_answers,omitempty"`
	OrderNum              int          `json:"order_num"`
}

// NeedsManualGrading reports whether responses to this question are scored by a human.
func (q *Question) NeedsManualGrading() bool {
	if q.RequiresManualGrading {
		return true
	}
	return q.Type == QuestionTypeShortAnswer || q.Type == QuestionTypeEssay
}

// IsChoice reports whether the question is answered by selecting options.
func (q *Question) IsChoice() bool {
	switch q.Type {
	case QuestionTypeSingleChoice, QuestionTypeMultiChoice, QuestionTypeTrueFalse:
		return true
	}
	return false
}

// OptionForTaker is an option without its correctness flag.
type OptionForTaker struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

// QuestionForTaker is a question with every answer-key field stripped.
type QuestionForTaker struct {
	ID       uuid.UUID        `json:"id"`
	Type     QuestionType     `json:"type"`
	Text     string           `json:"text"`
	Points   float64          `json:"points"`
	Options  []OptionForTaker `json:"options,omitempty"`
	Position int              `json:"position"`
}
