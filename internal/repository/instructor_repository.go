package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusworks/records-api/internal/models"
)

// InstructorRepository handles persistence of instructor profiles.
type InstructorRepository struct {
	db *sqlx.DB
}

// NewInstructorRepository constructs the repository.
func NewInstructorRepository(db *sqlx.DB) *InstructorRepository {
	return &InstructorRepository{db: db}
}

// Create persists a new instructor record.
func (r *InstructorRepository) Create(ctx context.Context, instructor *models.Instructor) error {
	if instructor.ID == "" {
		instructor.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if instructor.CreatedAt.IsZero() {
		instructor.CreatedAt = now
	}
	instructor.UpdatedAt = now
	const query = `INSERT INTO instructors (id, user_id, staff_no, first_name, last_name, hire_date, created_at, updated_at)
        VALUES (:id, :user_id, :staff_no, :first_name, :last_name, :hire_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, instructor); err != nil {
		return fmt.Errorf("create instructor: %w", err)
	}
	return nil
}

// FindByID returns an instructor by its ID.
func (r *InstructorRepository) FindByID(ctx context.Context, id string) (*models.Instructor, error) {
	const query = `SELECT id, user_id, staff_no, first_name, last_name, hire_date, created_at, updated_at
        FROM instructors WHERE id = $1`
	var instructor models.Instructor
	if err := r.db.GetContext(ctx, &instructor, query, id); err != nil {
		return nil, err
	}
	return &instructor, nil
}

// FindByUserID returns the instructor profile linked to a user account.
func (r *InstructorRepository) FindByUserID(ctx context.Context, userID string) (*models.Instructor, error) {
	const query = `SELECT id, user_id, staff_no, first_name, last_name, hire_date, created_at, updated_at
        FROM instructors WHERE user_id = $1`
	var instructor models.Instructor
	if err := r.db.GetContext(ctx, &instructor, query, userID); err != nil {
		return nil, err
	}
	return &instructor, nil
}

// List returns all instructors ordered by staff number.
func (r *InstructorRepository) List(ctx context.Context) ([]models.Instructor, error) {
	const query = `SELECT id, user_id, staff_no, first_name, last_name, hire_date, created_at, updated_at
        FROM instructors ORDER BY staff_no`
	var instructors []models.Instructor
	if err := r.db.SelectContext(ctx, &instructors, query); err != nil {
		return nil, fmt.Errorf("list instructors: %w", err)
	}
	return instructors, nil
}

// AssignedCourses returns the active courses assigned to an instructor.
func (r *InstructorRepository) AssignedCourses(ctx context.Context, instructorID string) ([]models.Course, error) {
	const query = `SELECT id, code, title, credits, max_enrollment, prerequisites, instructor_id, status, created_at, updated_at
        FROM courses WHERE instructor_id = $1 AND status = $2 ORDER BY code`
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, instructorID, models.CourseStatusActive); err != nil {
		return nil, fmt.Errorf("list assigned courses: %w", err)
	}
	return courses, nil
}
