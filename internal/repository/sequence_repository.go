package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const nextSequenceQuery = `INSERT INTO counters (name, sequence) VALUES ($1, 1)
ON CONFLICT (name) DO UPDATE SET sequence = counters.sequence + 1
RETURNING sequence`

// SequenceRepository hands out monotonically increasing values per counter name.
type SequenceRepository struct {
	db *sqlx.DB
}

// NewSequenceRepository constructs the repository.
func NewSequenceRepository(db *sqlx.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

// Next increments and returns the named counter in a single statement, creating it at 1.
func (r *SequenceRepository) Next(ctx context.Context, exec sqlx.ExtContext, name string) (int64, error) {
	var value int64
	if err := sqlx.GetContext(ctx, pick(r.db, exec), &value, nextSequenceQuery, name); err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", name, err)
	}
	return value, nil
}
