package memory

import (
	"context"
	"sync"
	"time"

	"exam-attempt-service/internal/domain"
)

// AttemptRepository is the in-memory implementation of app.AttemptRepository.
// One mutex covers both the attempt map and the active index, so the
// single-in-progress uniqueness check and the insert happen atomically, the
// same guarantee the postgres partial unique index provides.
type AttemptRepository struct {
	mu       sync.RWMutex
	attempts map[string]*domain.Attempt
	active   map[activeKey]string // (user, paper) -> attempt id while in progress
}

type activeKey struct {
	userID  string
	paperID string
}

func NewAttemptRepository() *AttemptRepository {
	return &AttemptRepository{
		attempts: make(map[string]*domain.Attempt),
		active:   make(map[activeKey]string),
	}
}

func (r *AttemptRepository) Create(_ context.Context, attempt domain.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := activeKey{userID: attempt.UserID, paperID: attempt.PaperID}
	if _, exists := r.active[key]; exists {
		return domain.ErrAttemptConflict
	}
	stored := cloneAttempt(attempt)
	r.attempts[attempt.ID] = &stored
	r.active[key] = attempt.ID
	return nil
}

func (r *AttemptRepository) FindByID(_ context.Context, id string) (domain.Attempt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	attempt, ok := r.attempts[id]
	if !ok {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	return cloneAttempt(*attempt), nil
}

func (r *AttemptRepository) FindActive(_ context.Context, userID, paperID string) (domain.Attempt, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.active[activeKey{userID: userID, paperID: paperID}]
	if !ok {
		return domain.Attempt{}, false, nil
	}
	return cloneAttempt(*r.attempts[id]), true, nil
}

func (r *AttemptRepository) FindByOwner(_ context.Context, userID, paperID string) ([]domain.AttemptSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]domain.AttemptSummary, 0)
	for _, attempt := range r.attempts {
		if attempt.UserID != userID {
			continue
		}
		if paperID != "" && attempt.PaperID != paperID {
			continue
		}
		summary := domain.AttemptSummary{
			AttemptID: attempt.ID,
			PaperID:   attempt.PaperID,
			Status:    attempt.Status,
			StartedAt: attempt.StartedAt,
		}
		if attempt.Status == domain.StatusSubmitted {
			score := attempt.Score
			summary.Score = &score
			summary.SubmittedAt = cloneTimePtr(attempt.SubmittedAt)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (r *AttemptRepository) UpsertAnswer(_ context.Context, attemptID string, record domain.AnswerRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	attempt, ok := r.attempts[attemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if attempt.Status != domain.StatusInProgress {
		return domain.ErrInvalidState
	}

	record.SelectedIndex = cloneIntPtr(record.SelectedIndex)
	for i := range attempt.Answers {
		if attempt.Answers[i].QuestionID == record.QuestionID {
			attempt.Answers[i] = record
			return nil
		}
	}
	attempt.Answers = append(attempt.Answers, record)
	return nil
}

func (r *AttemptRepository) Finalize(_ context.Context, attemptID string, fin domain.Finalization) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	attempt, ok := r.attempts[attemptID]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	if attempt.Status != domain.StatusInProgress {
		return domain.ErrInvalidState
	}

	attempt.Status = domain.StatusSubmitted
	attempt.Score = fin.Score
	submittedAt := fin.SubmittedAt
	attempt.SubmittedAt = &submittedAt
	durationSec := fin.DurationSec
	attempt.DurationSec = &durationSec
	delete(r.active, activeKey{userID: attempt.UserID, paperID: attempt.PaperID})
	return nil
}

// cloneAttempt deep-copies the aggregate so callers can never reach the
// stored snapshot or answer slices.
func cloneAttempt(a domain.Attempt) domain.Attempt {
	out := a
	out.Snapshot = make([]domain.QuestionSnapshot, len(a.Snapshot))
	for i, snap := range a.Snapshot {
		options := make([]domain.OptionSnapshot, len(snap.Options))
		copy(options, snap.Options)
		snap.Options = options
		out.Snapshot[i] = snap
	}
	out.Answers = make([]domain.AnswerRecord, len(a.Answers))
	for i, rec := range a.Answers {
		rec.SelectedIndex = cloneIntPtr(rec.SelectedIndex)
		out.Answers[i] = rec
	}
	out.SubmittedAt = cloneTimePtr(a.SubmittedAt)
	if a.DurationSec != nil {
		d := *a.DurationSec
		out.DurationSec = &d
	}
	return out
}

func cloneIntPtr(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTimePtr(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	t := *p
	return &t
}
