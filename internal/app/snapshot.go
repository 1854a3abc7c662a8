package app

import (
	"log"

	"exam-attempt-service/internal/domain"
)

// buildSnapshot freezes a paper's questions into answer-safe snapshots.
// Option correctness flags are read once to resolve CorrectIndex and then
// dropped; the returned slice shares no memory with the live paper, so later
// content edits cannot affect grading of an already-started attempt.
func buildSnapshot(paper domain.Paper) ([]domain.QuestionSnapshot, error) {
	if len(paper.Questions) == 0 {
		return nil, domain.ErrEmptyPaper
	}

	snapshots := make([]domain.QuestionSnapshot, 0, len(paper.Questions))
	for _, q := range paper.Questions {
		options := make([]domain.OptionSnapshot, 0, len(q.Options))
		correctIndex := -1
		for i, opt := range q.Options {
			options = append(options, domain.OptionSnapshot{Text: opt.Text})
			if correctIndex == -1 && opt.Correct {
				correctIndex = i
			}
		}
		if correctIndex == -1 {
			// Content-quality issue: the question can never score as correct.
			log.Printf("paper %s question %s has no correct option", paper.ID, q.ID)
		}
		snapshots = append(snapshots, domain.QuestionSnapshot{
			QuestionID:   q.ID,
			Text:         q.Text,
			Options:      options,
			CorrectIndex: correctIndex,
		})
	}
	return snapshots, nil
}

// sanitizeSnapshot strips CorrectIndex out of snapshots for client views of
// an in-progress attempt.
func sanitizeSnapshot(snapshots []domain.QuestionSnapshot) []domain.SanitizedQuestion {
	questions := make([]domain.SanitizedQuestion, 0, len(snapshots))
	for _, snap := range snapshots {
		options := make([]string, 0, len(snap.Options))
		for _, opt := range snap.Options {
			options = append(options, opt.Text)
		}
		questions = append(questions, domain.SanitizedQuestion{
			QuestionID: snap.QuestionID,
			Text:       snap.Text,
			Options:    options,
		})
	}
	return questions
}
