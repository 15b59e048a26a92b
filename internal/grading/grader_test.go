package grading

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-attempt/internal/model"
)

func i64(v int64) *int64 { return &v }
func str(v string) *string { return &v }

func singleChoice(correct int64) *model.Question {
	return &model.Question{
		ID:     uuid.New(),
		Type:   model.QuestionTypeSingleChoice,
		Points: 5,
		Options: []model.Option{
			{ID: 1, Text: "a"},
			{ID: 2, Text: "b"},
			{ID: correct, Text: "c", IsCorrect: true},
		},
	}
}

func multiChoice(partial bool, points float64) *model.Question {
	return &model.Question{
		ID:                 uuid.New(),
		Type:               model.QuestionTypeMultiChoice,
		Points:             points,
		AllowPartialCredit: partial,
		Options: []model.Option{
			{ID: 1, IsCorrect: true},
			{ID: 2, IsCorrect: true},
			{ID: 3, IsCorrect: true},
			{ID: 4, IsCorrect: true},
			{ID: 5},
			{ID: 6},
		},
	}
}

func TestGrade_SingleChoice(t *testing.T) {
	q := singleChoice(3)

	res := Grade(q, model.ResponsePayload{SelectedOption: i64(3)})
	require.NotNil(t, res.IsCorrect)
	assert.True(t, *res.IsCorrect)
	assert.Equal(t, 5.0, res.PointsEarned)

	res = Grade(q, model.ResponsePayload{SelectedOption: i64(2)})
	require.NotNil(t, res.IsCorrect)
	assert.False(t, *res.IsCorrect)
	assert.Zero(t, res.PointsEarned)

	res = Grade(q, model.ResponsePayload{})
	require.NotNil(t, res.IsCorrect)
	assert.False(t, *res.IsCorrect)
}

func TestGrade_TrueFalse(t *testing.T) {
	q := &model.Question{
		Type:    model.QuestionTypeTrueFalse,
		Points:  1,
		Options: []model.Option{{ID: 10, Text: "true", IsCorrect: true}, {ID: 11, Text: "false"}},
	}
	assert.Equal(t, 1.0, Grade(q, model.ResponsePayload{SelectedOption: i64(10)}).PointsEarned)
	assert.Zero(t, Grade(q, model.ResponsePayload{SelectedOption: i64(11)}).PointsEarned)
}

func TestGrade_SingleChoiceWithAmbiguousKey(t *testing.T) {
	q := singleChoice(3)
	q.Options[0].IsCorrect = true

	res := Grade(q, model.ResponsePayload{SelectedOption: i64(3)})
	assert.False(t, *res.IsCorrect)
	assert.Zero(t, res.PointsEarned)
}

func TestGrade_MultiChoicePartialCredit(t *testing.T) {
	q := multiChoice(true, 8)

	// 3 correct + 1 incorrect out of 4 correct: (3-1)/4*8 = 4
	res := Grade(q, model.ResponsePayload{SelectedOptions: []int64{1, 2, 3, 5}})
	assert.Equal(t, 4.0, res.PointsEarned)
	assert.False(t, *res.IsCorrect)

	res = Grade(q, model.ResponsePayload{SelectedOptions: []int64{4, 3, 2, 1}})
	assert.Equal(t, 8.0, res.PointsEarned)
	assert.True(t, *res.IsCorrect)

	res = Grade(q, model.ResponsePayload{SelectedOptions: []int64{1, 5, 6}})
	assert.Zero(t, res.PointsEarned)

	res = Grade(q, model.ResponsePayload{})
	assert.Zero(t, res.PointsEarned)
	assert.False(t, *res.IsCorrect)
}

func TestGrade_MultiChoiceRounding(t *testing.T) {
	q := &model.Question{
		Type:               model.QuestionTypeMultiChoice,
		Points:             1,
		AllowPartialCredit: true,
		Options:            []model.Option{{ID: 1, IsCorrect: true}, {ID: 2, IsCorrect: true}, {ID: 3, IsCorrect: true}},
	}
	res := Grade(q, model.ResponsePayload{SelectedOptions: []int64{1}})
	assert.Equal(t, 0.33, res.PointsEarned)
}

func TestGrade_MultiChoiceDuplicatesIgnored(t *testing.T) {
	q := multiChoice(true, 8)
	res := Grade(q, model.ResponsePayload{SelectedOptions: []int64{1, 1, 1, 1}})
	assert.Equal(t, 2.0, res.PointsEarned)
	assert.False(t, *res.IsCorrect)
}

func TestGrade_MultiChoiceAllOrNothing(t *testing.T) {
	q := multiChoice(false, 8)

	res := Grade(q, model.ResponsePayload{SelectedOptions: []int64{1, 2, 3}})
	assert.Zero(t, res.PointsEarned)
	assert.False(t, *res.IsCorrect)

	res = Grade(q, model.ResponsePayload{SelectedOptions: []int64{1, 2, 3, 4}})
	assert.Equal(t, 8.0, res.PointsEarned)
	assert.True(t, *res.IsCorrect)
}

func TestGrade_MultiChoicePartialBounds(t *testing.T) {
	q := multiChoice(true, 7)
	all := []int64{1, 2, 3, 4, 5, 6}

	// every subset of the options stays within [0, max] and only the exact
	// correct set earns full marks
	for mask := 0; mask < 1<<len(all); mask++ {
		var sel []int64
		for i, id := range all {
			if mask&(1<<i) != 0 {
				sel = append(sel, id)
			}
		}
		res := Grade(q, model.ResponsePayload{SelectedOptions: sel})
		assert.GreaterOrEqual(t, res.PointsEarned, 0.0)
		assert.LessOrEqual(t, res.PointsEarned, q.Points)
		exact := mask == 0b001111
		assert.Equal(t, exact, res.PointsEarned == q.Points, "mask %b", mask)
		assert.Equal(t, exact, *res.IsCorrect, "mask %b", mask)
	}
}

func TestGrade_FillBlank(t *testing.T) {
	q := &model.Question{
		Type:           model.QuestionTypeFillBlank,
		Points:         2,
		CorrectAnswers: []string{"Jakarta", " Batavia "},
	}

	assert.Equal(t, 2.0, Grade(q, model.ResponsePayload{Text: str("  jakarta ")}).PointsEarned)
	assert.Equal(t, 2.0, Grade(q, model.ResponsePayload{Text: str("batavia")}).PointsEarned)
	assert.Zero(t, Grade(q, model.ResponsePayload{Text: str("Bandung")}).PointsEarned)
	assert.Zero(t, Grade(q, model.ResponsePayload{Text: str("   ")}).PointsEarned)
	assert.Zero(t, Grade(q, model.ResponsePayload{}).PointsEarned)

	q.CaseSensitive = true
	assert.Zero(t, Grade(q, model.ResponsePayload{Text: str("jakarta")}).PointsEarned)
	assert.Equal(t, 2.0, Grade(q, model.ResponsePayload{Text: str("Jakarta")}).PointsEarned)
}

func TestGrade_ManualTypes(t *testing.T) {
	for _, typ := range []model.QuestionType{model.QuestionTypeEssay, model.QuestionTypeShortAnswer} {
		q := &model.Question{Type: typ, Points: 10}
		res := Grade(q, model.ResponsePayload{Text: str("a long answer")})
		assert.Nil(t, res.IsCorrect)
		assert.Zero(t, res.PointsEarned)
		assert.True(t, res.RequiresManualGrading)
	}

	q := singleChoice(3)
	q.RequiresManualGrading = true
	res := Grade(q, model.ResponsePayload{SelectedOption: i64(3)})
	assert.True(t, res.RequiresManualGrading)
	assert.Zero(t, res.PointsEarned)
}
