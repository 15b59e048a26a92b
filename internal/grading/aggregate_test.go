package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stemsi/exstem-attempt/internal/model"
)

func TestPercentage(t *testing.T) {
	assert.Zero(t, Percentage(5, 0))
	assert.Equal(t, 50.0, Percentage(4, 8))
	assert.Equal(t, 33.33, Percentage(1, 3))
}

func TestLetterGrade(t *testing.T) {
	cases := map[float64]string{
		100:   "A",
		90:    "A",
		89.99: "B",
		80:    "B",
		70:    "C",
		60:    "D",
		59.99: "F",
		0:     "F",
	}
	for pct, want := range cases {
		assert.Equal(t, want, LetterGrade(pct), "pct %v", pct)
	}
}

func TestPassed(t *testing.T) {
	assert.True(t, Passed(70, 70))
	assert.False(t, Passed(69.99, 70))
}

func TestSummarize(t *testing.T) {
	text := "answer"
	responses := []*model.Response{
		{PointsEarned: 4, MaxPoints: 5, Payload: model.ResponsePayload{SelectedOption: i64(1)}, IsFlagged: true},
		{PointsEarned: 0, MaxPoints: 5},
		{PointsEarned: 0, MaxPoints: 10, RequiresManualGrading: true, Payload: model.ResponsePayload{Text: &text}},
	}

	s := Summarize(responses, 50)
	assert.Equal(t, 4.0, s.TotalScore)
	assert.Equal(t, 20.0, s.MaxScore)
	assert.Equal(t, 20.0, s.Percentage)
	assert.Equal(t, "F", s.Grade)
	assert.False(t, s.Passed)
	assert.Equal(t, 1, s.PendingManual)
	assert.Equal(t, 2, s.AnsweredCount)
	assert.Equal(t, 1, s.FlaggedCount)

	responses[2].ManuallyGraded = true
	responses[2].PointsEarned = 10
	s = Summarize(responses, 50)
	assert.Equal(t, 14.0, s.TotalScore)
	assert.Equal(t, 70.0, s.Percentage)
	assert.Equal(t, "C", s.Grade)
	assert.True(t, s.Passed)
	assert.Zero(t, s.PendingManual)
}

func TestSummarize_PassMarkUsesUnroundedPercentage(t *testing.T) {
	responses := []*model.Response{
		{PointsEarned: 149.99, MaxPoints: 250, Payload: model.ResponsePayload{SelectedOption: i64(1)}},
	}

	s := Summarize(responses, 60)
	assert.Equal(t, 60.0, s.Percentage, "stored percentage is rounded")
	assert.Equal(t, "D", s.Grade)
	assert.False(t, s.Passed, "59.996% is below a 60% pass mark")

	responses[0].PointsEarned = 150
	assert.True(t, Summarize(responses, 60).Passed)
}
