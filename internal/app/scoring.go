package app

import (
	"math"

	"exam-attempt-service/internal/domain"
)

// scoreAttempt walks the frozen snapshot in its original order and computes
// the final score plus the per-question breakdown. Three-way outcome per
// question: a selection matching CorrectIndex earns MarksPerCorrect, a nil
// selection changes nothing (unanswered is never penalized), any other
// selection subtracts NegativeMark. A question whose CorrectIndex is -1 can
// never score as correct since valid selections are non-negative.
func scoreAttempt(snapshots []domain.QuestionSnapshot, answers map[string]*int, cfg domain.ScoringConfig) (float64, []domain.BreakdownItem) {
	score := 0.0
	breakdown := make([]domain.BreakdownItem, 0, len(snapshots))
	for _, snap := range snapshots {
		selected := answers[snap.QuestionID]
		correct := false
		switch {
		case selected == nil:
			// unanswered, no score change
		case *selected == snap.CorrectIndex:
			correct = true
			score += cfg.MarksPerCorrect
		default:
			score -= penalty(cfg.NegativeMark)
		}
		breakdown = append(breakdown, domain.BreakdownItem{
			QuestionID:    snap.QuestionID,
			SelectedIndex: selected,
			CorrectIndex:  snap.CorrectIndex,
			Correct:       correct,
		})
	}
	return score, breakdown
}

// penalty guards against misconfigured negative marks: only a finite
// positive value ever subtracts points.
func penalty(negativeMark float64) float64 {
	if negativeMark > 0 && !math.IsInf(negativeMark, 1) && !math.IsNaN(negativeMark) {
		return negativeMark
	}
	return 0
}

// percentage is display-only; the stored score is never rounded.
func percentage(score float64, totalQuestions int, marksPerCorrect float64) float64 {
	max := float64(totalQuestions) * marksPerCorrect
	if max == 0 {
		return 0
	}
	return score / max * 100
}
