package grading

import "github.com/stemsi/exstem-attempt/internal/model"

// Summary is the attempt-level score derived from its responses.
type Summary struct {
	TotalScore    float64
	MaxScore      float64
	Percentage    float64
	Grade         string
	Passed        bool
	PendingManual int
	AnsweredCount int
	FlaggedCount  int
}

// Percentage returns 100*earned/max rounded to two decimals, or 0 when max is 0.
func Percentage(earned, max float64) float64 {
	return Round2(ratio(earned, max))
}

func ratio(earned, max float64) float64 {
	if max <= 0 {
		return 0
	}
	return 100 * earned / max
}

// LetterGrade maps a percentage onto the fixed A–F bands.
func LetterGrade(pct float64) string {
	switch {
	case pct >= 90:
		return "A"
	case pct >= 80:
		return "B"
	case pct >= 70:
		return "C"
	case pct >= 60:
		return "D"
	default:
		return "F"
	}
}

// Passed reports whether pct meets the exam's pass mark.
func Passed(pct, passPercentage float64) bool {
	return pct >= passPercentage
}

// Summarize totals responses. Rows still awaiting manual grading contribute
// to MaxScore but not to TotalScore.
func Summarize(responses []*model.Response, passPercentage float64) Summary {
	var s Summary
	for _, r := range responses {
		s.MaxScore += r.MaxPoints
		if r.PendingManualGrading() {
			s.PendingManual++
		} else {
			s.TotalScore += r.PointsEarned
		}
		if !r.Payload.IsEmpty() {
			s.AnsweredCount++
		}
		if r.IsFlagged {
			s.FlaggedCount++
		}
	}
	s.TotalScore = Round2(s.TotalScore)
	s.MaxScore = Round2(s.MaxScore)
	s.Percentage = Percentage(s.TotalScore, s.MaxScore)
	s.Grade = LetterGrade(s.Percentage)
	// the pass mark is checked before rounding
	s.Passed = Passed(ratio(s.TotalScore, s.MaxScore), passPercentage)
	return s
}
