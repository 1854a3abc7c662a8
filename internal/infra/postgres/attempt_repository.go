package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"exam-attempt-service/internal/domain"
)

const uniqueViolation = "23505"

// AttemptRepository persists attempt aggregates in Postgres. The attempt row
// carries the frozen snapshot as JSONB; answers live in their own table keyed
// by (attempt_id, question_id) so concurrent saves for different questions
// never touch the same row. The partial unique index on
// (user_id, paper_id) WHERE status='in_progress' is the authoritative
// duplicate-start guard.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func (r *AttemptRepository) Create(ctx context.Context, attempt domain.Attempt) error {
	snapshot, err := json.Marshal(attempt.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO attempts
			(id, user_id, paper_id, status, snapshot, total_questions,
			 marks_per_correct, negative_mark, time_limit_sec, score, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		attempt.ID, attempt.UserID, attempt.PaperID, string(attempt.Status),
		snapshot, attempt.TotalQuestions,
		attempt.Scoring.MarksPerCorrect, attempt.Scoring.NegativeMark,
		attempt.TimeLimitSec, attempt.Score, attempt.StartedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrAttemptConflict
	}
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (r *AttemptRepository) FindByID(ctx context.Context, id string) (domain.Attempt, error) {
	return r.findOne(ctx, `WHERE id=$1`, id)
}

func (r *AttemptRepository) FindActive(ctx context.Context, userID, paperID string) (domain.Attempt, bool, error) {
	attempt, err := r.findOne(ctx, `WHERE user_id=$1 AND paper_id=$2 AND status='in_progress'`, userID, paperID)
	if errors.Is(err, domain.ErrAttemptNotFound) {
		return domain.Attempt{}, false, nil
	}
	if err != nil {
		return domain.Attempt{}, false, err
	}
	return attempt, true, nil
}

func (r *AttemptRepository) findOne(ctx context.Context, where string, args ...interface{}) (domain.Attempt, error) {
	var (
		attempt domain.Attempt
		status  string
		rawSnap []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, paper_id, status, snapshot, total_questions,
		       marks_per_correct, negative_mark, time_limit_sec, score,
		       started_at, submitted_at, duration_sec
		FROM attempts `+where, args...,
	).Scan(
		&attempt.ID, &attempt.UserID, &attempt.PaperID, &status, &rawSnap,
		&attempt.TotalQuestions, &attempt.Scoring.MarksPerCorrect,
		&attempt.Scoring.NegativeMark, &attempt.TimeLimitSec, &attempt.Score,
		&attempt.StartedAt, &attempt.SubmittedAt, &attempt.DurationSec,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, domain.ErrAttemptNotFound
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("load attempt: %w", err)
	}
	attempt.Status = domain.AttemptStatus(status)
	if err := json.Unmarshal(rawSnap, &attempt.Snapshot); err != nil {
		return domain.Attempt{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	answers, err := r.loadAnswers(ctx, attempt.ID)
	if err != nil {
		return domain.Attempt{}, err
	}
	attempt.Answers = answers
	return attempt, nil
}

func (r *AttemptRepository) loadAnswers(ctx context.Context, attemptID string) ([]domain.AnswerRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT question_id, selected_index, updated_at
		FROM attempt_answers
		WHERE attempt_id=$1
		ORDER BY updated_at, question_id`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	defer rows.Close()

	var answers []domain.AnswerRecord
	for rows.Next() {
		var rec domain.AnswerRecord
		if err := rows.Scan(&rec.QuestionID, &rec.SelectedIndex, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return answers, nil
}

func (r *AttemptRepository) FindByOwner(ctx context.Context, userID, paperID string) ([]domain.AttemptSummary, error) {
	query := `
		SELECT id, paper_id, status, score, started_at, submitted_at
		FROM attempts
		WHERE user_id=$1`
	args := []interface{}{userID}
	if paperID != "" {
		query += ` AND paper_id=$2`
		args = append(args, paperID)
	}
	query += ` ORDER BY started_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	summaries := make([]domain.AttemptSummary, 0)
	for rows.Next() {
		var (
			summary domain.AttemptSummary
			status  string
			score   float64
		)
		if err := rows.Scan(&summary.AttemptID, &summary.PaperID, &status, &score, &summary.StartedAt, &summary.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan attempt summary: %w", err)
		}
		summary.Status = domain.AttemptStatus(status)
		if summary.Status == domain.StatusSubmitted {
			summary.Score = &score
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt summaries: %w", err)
	}
	return summaries, nil
}

// UpsertAnswer writes the latest selection for a question. The insert-select
// keeps the in-progress guard atomic with the write: a submitted attempt can
// never gain or change an answer.
func (r *AttemptRepository) UpsertAnswer(ctx context.Context, attemptID string, record domain.AnswerRecord) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO attempt_answers (attempt_id, question_id, selected_index, updated_at)
		SELECT a.id, $2, $3, $4
		FROM attempts a
		WHERE a.id=$1 AND a.status='in_progress'
		ON CONFLICT (attempt_id, question_id)
		DO UPDATE SET selected_index=EXCLUDED.selected_index, updated_at=EXCLUDED.updated_at`,
		attemptID, record.QuestionID, record.SelectedIndex, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.classifyGuardFailure(ctx, attemptID)
	}
	return nil
}

// Finalize is the submit transition: the status check and the write are one
// conditional update, so a second submit always loses the race cleanly.
func (r *AttemptRepository) Finalize(ctx context.Context, attemptID string, fin domain.Finalization) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE attempts
		SET status='submitted', score=$2, submitted_at=$3, duration_sec=$4
		WHERE id=$1 AND status='in_progress'`,
		attemptID, fin.Score, fin.SubmittedAt, fin.DurationSec,
	)
	if err != nil {
		return fmt.Errorf("finalize attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return r.classifyGuardFailure(ctx, attemptID)
	}
	return nil
}

func (r *AttemptRepository) classifyGuardFailure(ctx context.Context, attemptID string) error {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM attempts WHERE id=$1)`, attemptID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check attempt: %w", err)
	}
	if !exists {
		return domain.ErrAttemptNotFound
	}
	return domain.ErrInvalidState
}
