package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/training-admin-api/internal/models"
)

// CourseRepository reads the course catalogue.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// FindByName loads an active course by case-insensitive name.
func (r *CourseRepository) FindByName(ctx context.Context, name string) (*models.Course, error) {
	const query = `SELECT id, name, code, cost, class_capacity, is_active, created_at FROM courses WHERE LOWER(name) = LOWER($1) AND is_active = TRUE LIMIT 1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, name); err != nil {
		return nil, err
	}
	return &course, nil
}
