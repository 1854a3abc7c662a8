package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"exam-attempt-service/internal/domain"
)

// ContentStore loads paper JSONB from Postgres. Papers are owned by the
// content-management side of the system; this store only ever reads.
type ContentStore struct {
	pool *pgxpool.Pool
}

func NewContentStore(pool *pgxpool.Pool) *ContentStore {
	return &ContentStore{pool: pool}
}

func (s *ContentStore) FindPaper(ctx context.Context, paperID string) (domain.Paper, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM papers WHERE id=$1`, paperID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Paper{}, domain.ErrPaperNotFound
	}
	if err != nil {
		return domain.Paper{}, fmt.Errorf("load paper: %w", err)
	}
	var paper domain.Paper
	if err := json.Unmarshal(raw, &paper); err != nil {
		return domain.Paper{}, fmt.Errorf("unmarshal paper: %w", err)
	}
	paper.ID = paperID
	return paper, nil
}
