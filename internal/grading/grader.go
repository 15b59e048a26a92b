// Package grading scores a single response against its question definition
// and aggregates attempt-level results. Everything here is pure.
package grading

import (
	"math"
	"strings"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// Result is the outcome of grading one response.
type Result struct {
	// IsCorrect is nil when the response awaits manual grading.
	IsCorrect             *bool
	PointsEarned          float64
	RequiresManualGrading bool
}

// Grade dispatches on the question type.
func Grade(q *model.Question, p model.ResponsePayload) Result {
	if q.NeedsManualGrading() {
		return Result{RequiresManualGrading: true}
	}

	switch q.Type {
	case model.QuestionTypeSingleChoice, model.QuestionTypeTrueFalse:
		return gradeSingle(q, p)
	case model.QuestionTypeMultiChoice:
		return gradeMulti(q, p)
	case model.QuestionTypeFillBlank:
		return gradeFillBlank(q, p)
	default:
		return incorrect()
	}
}

func gradeSingle(q *model.Question, p model.ResponsePayload) Result {
	if p.SelectedOption == nil {
		return incorrect()
	}

	var correctID int64
	found := 0
	for _, o := range q.Options {
		if o.IsCorrect {
			correctID = o.ID
			found++
		}
	}
	// A single-choice key must flag exactly one option.
	if found != 1 || *p.SelectedOption != correctID {
		return incorrect()
	}
	return correct(q.Points)
}

func gradeMulti(q *model.Question, p model.ResponsePayload) Result {
	correctSet := make(map[int64]bool, len(q.Options))
	for _, o := range q.Options {
		if o.IsCorrect {
			correctSet[o.ID] = true
		}
	}
	c := len(correctSet)
	if c == 0 || len(p.SelectedOptions) == 0 {
		return incorrect()
	}

	seen := make(map[int64]bool, len(p.SelectedOptions))
	correctSel, incorrectSel := 0, 0
	for _, id := range p.SelectedOptions {
		if seen[id] {
			continue
		}
		seen[id] = true
		if correctSet[id] {
			correctSel++
		} else {
			incorrectSel++
		}
	}

	exact := correctSel == c && incorrectSel == 0
	if !q.AllowPartialCredit {
		if exact {
			return correct(q.Points)
		}
		return incorrect()
	}

	points := float64(correctSel-incorrectSel) / float64(c) * q.Points
	points = Round2(math.Max(0, points))
	return Result{IsCorrect: boolPtr(exact), PointsEarned: points}
}

func gradeFillBlank(q *model.Question, p model.ResponsePayload) Result {
	if p.Text == nil {
		return incorrect()
	}
	answer := strings.TrimSpace(*p.Text)
	if answer == "" {
		return incorrect()
	}
	for _, accepted := range q.CorrectAnswers {
		accepted = strings.TrimSpace(accepted)
		if q.CaseSensitive {
			if answer == accepted {
				return correct(q.Points)
			}
			continue
		}
		if strings.EqualFold(answer, accepted) {
			return correct(q.Points)
		}
	}
	return incorrect()
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func correct(points float64) Result {
	return Result{IsCorrect: boolPtr(true), PointsEarned: points}
}

func incorrect() Result {
	return Result{IsCorrect: boolPtr(false)}
}

func boolPtr(b bool) *bool {
	return &b
}
