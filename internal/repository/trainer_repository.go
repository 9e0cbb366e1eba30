package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/training-admin-api/internal/models"
)

// TrainerRepository reads trainers.
type TrainerRepository struct {
	db *sqlx.DB
}

// NewTrainerRepository constructs the repository.
func NewTrainerRepository(db *sqlx.DB) *TrainerRepository {
	return &TrainerRepository{db: db}
}

// FindByID loads a trainer by id.
func (r *TrainerRepository) FindByID(ctx context.Context, id string) (*models.Trainer, error) {
	const query = `SELECT id, name, email, status, is_active FROM trainers WHERE id::text = $1`
	var trainer models.Trainer
	if err := r.db.GetContext(ctx, &trainer, query, id); err != nil {
		return nil, err
	}
	return &trainer, nil
}
