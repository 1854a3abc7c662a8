package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"exam-attempt-service/internal/domain"
)

// ContentStore loads paper content (with option correctness flags intact).
// The engine reads papers but never writes them.
type ContentStore interface {
	FindPaper(ctx context.Context, paperID string) (domain.Paper, error)
}

// AccessGate answers "may this user attempt this paper?". Subscription and
// entitlement logic lives behind it.
type AccessGate interface {
	HasAccess(ctx context.Context, userID, paperID string) (bool, error)
}

// AttemptRepository persists attempt aggregates. Create must fail with
// domain.ErrAttemptConflict when an in-progress attempt already exists for
// the same (user, paper); that storage-level constraint, not the service's
// pre-check, is the authoritative duplicate guard. UpsertAnswer and Finalize
// must apply their status guard atomically with the write.
type AttemptRepository interface {
	Create(ctx context.Context, attempt domain.Attempt) error
	FindByID(ctx context.Context, id string) (domain.Attempt, error)
	FindActive(ctx context.Context, userID, paperID string) (domain.Attempt, bool, error)
	FindByOwner(ctx context.Context, userID, paperID string) ([]domain.AttemptSummary, error)
	UpsertAnswer(ctx context.Context, attemptID string, record domain.AnswerRecord) error
	Finalize(ctx context.Context, attemptID string, fin domain.Finalization) error
}

// AttemptService is the attempt state machine: it owns the
// start -> answer* -> submit lifecycle, ownership checks, and idempotency.
type AttemptService struct {
	attempts AttemptRepository
	content  ContentStore
	gate     AccessGate
	defaults domain.ScoringConfig
	now      func() time.Time
}

func NewAttemptService(attempts AttemptRepository, content ContentStore, gate AccessGate, defaults domain.ScoringConfig) *AttemptService {
	return NewAttemptServiceWithClock(attempts, content, gate, defaults, time.Now)
}

// NewAttemptServiceWithClock allows deterministic timestamps in tests.
func NewAttemptServiceWithClock(attempts AttemptRepository, content ContentStore, gate AccessGate, defaults domain.ScoringConfig, now func() time.Time) *AttemptService {
	if defaults.MarksPerCorrect <= 0 {
		defaults.MarksPerCorrect = 1
	}
	defaults.NegativeMark = penalty(defaults.NegativeMark)
	return &AttemptService{
		attempts: attempts,
		content:  content,
		gate:     gate,
		defaults: defaults,
		now:      now,
	}
}

// Start creates a new in-progress attempt for (userID, paperID): it freezes
// the paper into a snapshot, captures the scoring config, and persists the
// aggregate. At most one in-progress attempt may exist per (user, paper).
func (s *AttemptService) Start(ctx context.Context, userID, paperID string, override *domain.ScoringConfig) (domain.StartResult, error) {
	if userID == "" {
		return domain.StartResult{}, domain.ErrForbidden
	}
	if !validSlug(paperID) {
		return domain.StartResult{}, domain.ErrInvalidID
	}

	paper, err := s.content.FindPaper(ctx, paperID)
	if err != nil {
		return domain.StartResult{}, err
	}
	snapshot, err := buildSnapshot(paper)
	if err != nil {
		return domain.StartResult{}, err
	}

	allowed, err := s.gate.HasAccess(ctx, userID, paperID)
	if err != nil {
		return domain.StartResult{}, err
	}
	if !allowed {
		return domain.StartResult{}, domain.ErrForbidden
	}

	// Fast-path duplicate check; the repository's uniqueness constraint is
	// what actually closes the race between concurrent starts.
	if _, active, err := s.attempts.FindActive(ctx, userID, paperID); err != nil {
		return domain.StartResult{}, err
	} else if active {
		return domain.StartResult{}, domain.ErrAttemptConflict
	}

	cfg := s.defaults
	if override != nil {
		if override.MarksPerCorrect > 0 {
			cfg.MarksPerCorrect = override.MarksPerCorrect
		}
		cfg.NegativeMark = penalty(override.NegativeMark)
	}

	startedAt := s.now()
	attempt := domain.Attempt{
		ID:             uuid.NewString(),
		UserID:         userID,
		PaperID:        paperID,
		Status:         domain.StatusInProgress,
		Snapshot:       snapshot,
		Answers:        nil,
		TotalQuestions: len(snapshot),
		Scoring:        cfg,
		TimeLimitSec:   paper.DurationSec,
		StartedAt:      startedAt,
	}
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return domain.StartResult{}, err
	}

	result := domain.StartResult{
		AttemptID:      attempt.ID,
		PaperID:        paperID,
		TotalQuestions: attempt.TotalQuestions,
		Questions:      sanitizeSnapshot(snapshot),
		StartedAt:      startedAt,
	}
	if attempt.TimeLimitSec > 0 {
		duration := attempt.TimeLimitSec
		remaining := attempt.TimeLimitSec
		result.DurationSec = &duration
		result.RemainingSec = &remaining
	}
	return result, nil
}

// Answer records (or clears, when selected is nil) the caller's choice for a
// snapshot question. Repeating the same call converges to the same record,
// so client-side retry and autosave are safe.
func (s *AttemptService) Answer(ctx context.Context, userID, attemptID, questionID string, selected *int) (domain.Ack, error) {
	if !validAttemptID(attemptID) || !validSlug(questionID) {
		return domain.Ack{}, domain.ErrInvalidID
	}

	attempt, err := s.attempts.FindByID(ctx, attemptID)
	if err != nil {
		return domain.Ack{}, err
	}
	if attempt.UserID != userID {
		return domain.Ack{}, domain.ErrForbidden
	}
	if attempt.Status != domain.StatusInProgress {
		return domain.Ack{}, domain.ErrInvalidState
	}

	snap, ok := findSnapshot(attempt.Snapshot, questionID)
	if !ok {
		return domain.Ack{}, domain.ErrUnknownQuestion
	}
	if selected != nil && (*selected < 0 || *selected >= len(snap.Options)) {
		return domain.Ack{}, domain.ErrOptionOutOfRange
	}

	record := domain.AnswerRecord{
		QuestionID:    questionID,
		SelectedIndex: selected,
		UpdatedAt:     s.now(),
	}
	if err := s.attempts.UpsertAnswer(ctx, attemptID, record); err != nil {
		return domain.Ack{}, err
	}
	return domain.Ack{AttemptID: attemptID}, nil
}

// Submit finalizes the attempt: it scores recorded answers against the
// frozen snapshot and transitions to submitted. A submission past the time
// limit is still finalized, with the score forced to zero, before
// domain.ErrTimeLimitExceeded is reported; that is the one error raised
// after a durable state change.
func (s *AttemptService) Submit(ctx context.Context, userID, attemptID string) (domain.ScoreBreakdown, error) {
	if !validAttemptID(attemptID) {
		return domain.ScoreBreakdown{}, domain.ErrInvalidID
	}

	attempt, err := s.attempts.FindByID(ctx, attemptID)
	if err != nil {
		return domain.ScoreBreakdown{}, err
	}
	if attempt.UserID != userID {
		return domain.ScoreBreakdown{}, domain.ErrForbidden
	}
	if attempt.Status != domain.StatusInProgress {
		return domain.ScoreBreakdown{}, domain.ErrInvalidState
	}

	score, breakdown := scoreAttempt(attempt.Snapshot, answerIndex(attempt.Answers), attempt.Scoring)

	submittedAt := s.now()
	durationSec := int(submittedAt.Sub(attempt.StartedAt).Seconds())

	if attempt.TimeLimitSec > 0 && durationSec > attempt.TimeLimitSec {
		// Forfeit on late submission: persist the zero score first so the
		// attempt can neither be resubmitted nor left dangling.
		fin := domain.Finalization{Score: 0, SubmittedAt: submittedAt, DurationSec: durationSec}
		if err := s.attempts.Finalize(ctx, attemptID, fin); err != nil {
			return domain.ScoreBreakdown{}, err
		}
		return domain.ScoreBreakdown{}, domain.ErrTimeLimitExceeded
	}

	fin := domain.Finalization{Score: score, SubmittedAt: submittedAt, DurationSec: durationSec}
	if err := s.attempts.Finalize(ctx, attemptID, fin); err != nil {
		return domain.ScoreBreakdown{}, err
	}

	return domain.ScoreBreakdown{
		AttemptID:      attemptID,
		Score:          score,
		TotalQuestions: attempt.TotalQuestions,
		Percent:        percentage(score, attempt.TotalQuestions, attempt.Scoring.MarksPerCorrect),
		Breakdown:      breakdown,
	}, nil
}

// Get returns the status-dependent read model. While in progress the view
// carries sanitized questions, recorded answers, and remaining time; once
// submitted it reveals the full breakdown. Non-owners need elevated access.
func (s *AttemptService) Get(ctx context.Context, userID, attemptID string, elevated bool) (domain.AttemptView, error) {
	if !validAttemptID(attemptID) {
		return domain.AttemptView{}, domain.ErrInvalidID
	}

	attempt, err := s.attempts.FindByID(ctx, attemptID)
	if err != nil {
		return domain.AttemptView{}, err
	}
	if attempt.UserID != userID && !elevated {
		return domain.AttemptView{}, domain.ErrForbidden
	}

	view := domain.AttemptView{
		AttemptID:      attempt.ID,
		PaperID:        attempt.PaperID,
		Status:         attempt.Status,
		TotalQuestions: attempt.TotalQuestions,
		StartedAt:      attempt.StartedAt,
	}

	switch attempt.Status {
	case domain.StatusInProgress:
		view.Questions = sanitizeSnapshot(attempt.Snapshot)
		view.Answers = attempt.Answers
		if attempt.TimeLimitSec > 0 {
			elapsed := int(s.now().Sub(attempt.StartedAt).Seconds())
			remaining := attempt.TimeLimitSec - elapsed
			if remaining < 0 {
				remaining = 0
			}
			view.RemainingSec = &remaining
		}
	case domain.StatusSubmitted:
		_, breakdown := scoreAttempt(attempt.Snapshot, answerIndex(attempt.Answers), attempt.Scoring)
		score := attempt.Score
		percent := percentage(score, attempt.TotalQuestions, attempt.Scoring.MarksPerCorrect)
		view.Score = &score
		view.Percent = &percent
		view.SubmittedAt = attempt.SubmittedAt
		view.DurationSec = attempt.DurationSec
		view.Breakdown = breakdown
	}
	return view, nil
}

// List returns the caller's attempt history, optionally filtered by paper.
func (s *AttemptService) List(ctx context.Context, userID, paperID string) ([]domain.AttemptSummary, error) {
	if userID == "" {
		return nil, domain.ErrForbidden
	}
	if paperID != "" && !validSlug(paperID) {
		return nil, domain.ErrInvalidID
	}
	return s.attempts.FindByOwner(ctx, userID, paperID)
}

// answerIndex builds questionID -> latest selection from recorded answers;
// questions without a record stay absent and read back as nil (unanswered).
func answerIndex(answers []domain.AnswerRecord) map[string]*int {
	index := make(map[string]*int, len(answers))
	for _, rec := range answers {
		index[rec.QuestionID] = rec.SelectedIndex
	}
	return index
}

func findSnapshot(snapshots []domain.QuestionSnapshot, questionID string) (domain.QuestionSnapshot, bool) {
	for _, snap := range snapshots {
		if snap.QuestionID == questionID {
			return snap, true
		}
	}
	return domain.QuestionSnapshot{}, false
}

// validSlug accepts paper and question identifiers: non-empty, at most 64
// bytes, limited to [A-Za-z0-9._-].
func validSlug(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// validAttemptID accepts the UUIDs this service mints.
func validAttemptID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
