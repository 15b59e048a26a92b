package service

import (
	"sort"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// AttemptResult is the score view shown to a taker when the exam allows it.
type AttemptResult struct {
	TotalScore float64          `json:"total_score"`
	MaxScore   float64          `json:"max_score"`
	Percentage float64          `json:"percentage"`
	Grade      string           `json:"grade"`
	PassStatus model.PassStatus `json:"pass_status"`
	Responses  []ResponseResult `json:"responses,omitempty"`
}

// ResponseResult is the per-question breakdown, only when correct answers are shown.
type ResponseResult struct {
	QuestionID     uuid.UUID `json:"question_id"`
	IsCorrect      *bool     `json:"is_correct"`
	PointsEarned   float64   `json:"points_earned"`
	MaxPoints      float64   `json:"max_points"`
	PendingGrading bool      `json:"pending_grading"`
	CorrectOptions []int64   `json:"correct_options,omitempty"`
	CorrectAnswers []string  `json:"correct_answers,omitempty"`
}

// questionsForTaker renders the attempt's stored order with answer keys stripped.
// Options follow the stored per-question order when one exists.
func questionsForTaker(exam *model.Exam, a *model.Attempt) []model.QuestionForTaker {
	out := make([]model.QuestionForTaker, 0, len(a.QuestionOrder))
	for _, qid := range a.QuestionOrder {
		q, ok := exam.Question(qid)
		if !ok {
			continue
		}

		options := make([]model.OptionForTaker, 0, len(q.Options))
		byID := make(map[int64]model.Option, len(q.Options))
		for _, o := range q.Options {
			byID[o.ID] = o
		}
		if order, ok := a.OptionOrder[qid]; ok {
			for _, id := range order {
				if o, ok := byID[id]; ok {
					options = append(options, model.OptionForTaker{ID: o.ID, Text: o.Text})
				}
			}
		} else {
			for _, o := range q.Options {
				options = append(options, model.OptionForTaker{ID: o.ID, Text: o.Text})
			}
		}

		out = append(out, model.QuestionForTaker{
			ID:       q.ID,
			Type:     q.Type,
			Text:     q.Text,
			Points:   q.Points,
			Options:  options,
			Position: len(out) + 1,
		})
	}
	return out
}

// buildResult returns nil unless the exam shows results immediately.
func buildResult(exam *model.Exam, a *model.Attempt, responses []*model.Response) *AttemptResult {
	if !exam.ShowResultsImmediately {
		return nil
	}

	res := &AttemptResult{
		TotalScore: a.TotalScore,
		MaxScore:   a.MaxScore,
		Percentage: a.Percentage,
		Grade:      a.Grade,
		PassStatus: a.PassStatus,
	}
	if !exam.ShowCorrectAnswers {
		return res
	}

	for _, r := range responses {
		rr := ResponseResult{
			QuestionID:     r.QuestionID,
			IsCorrect:      r.IsCorrect,
			PointsEarned:   r.PointsEarned,
			MaxPoints:      r.MaxPoints,
			PendingGrading: r.PendingManualGrading(),
		}
		if q, ok := exam.Question(r.QuestionID); ok {
			for _, o := range q.Options {
				if o.IsCorrect {
					rr.CorrectOptions = append(rr.CorrectOptions, o.ID)
				}
			}
			rr.CorrectAnswers = q.CorrectAnswers
		}
		res.Responses = append(res.Responses, rr)
	}
	return res
}

// orderedQuestionIDs lists the exam's questions by order_num.
func orderedQuestionIDs(exam *model.Exam) []uuid.UUID {
	qs := append([]model.Question(nil), exam.Questions...)
	sort.SliceStable(qs, func(i, j int) bool { return qs[i].OrderNum < qs[j].OrderNum })
	ids := make([]uuid.UUID, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	return ids
}
