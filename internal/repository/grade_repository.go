package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusworks/records-api/internal/models"
)

// GradeRepository handles persistence of grades. Grades are keyed one per
// enrollment; a resubmission replaces the prior record.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// FindByEnrollment returns the grade recorded for an enrollment.
func (r *GradeRepository) FindByEnrollment(ctx context.Context, enrollmentID string) (*models.Grade, error) {
	const query = `SELECT id, enrollment_id, numeric_score, letter, points, band, submitted_by, comments, created_at, updated_at
        FROM grades WHERE enrollment_id = $1`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, enrollmentID); err != nil {
		return nil, err
	}
	return &grade, nil
}

// UpsertWithCompletion writes the grade and marks its enrollment COMPLETED
// in one transaction. The grade row is keyed by enrollment_id so repeated
// submissions replace the earlier record rather than duplicating it.
func (r *GradeRepository) UpsertWithCompletion(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = now
	}
	grade.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin grade tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const upsert = `INSERT INTO grades (id, enrollment_id, numeric_score, letter, points, band, submitted_by, comments, created_at, updated_at)
        VALUES (:id, :enrollment_id, :numeric_score, :letter, :points, :band, :submitted_by, :comments, :created_at, :updated_at)
        ON CONFLICT (enrollment_id) DO UPDATE SET
            numeric_score = EXCLUDED.numeric_score,
            letter = EXCLUDED.letter,
            points = EXCLUDED.points,
            band = EXCLUDED.band,
            submitted_by = EXCLUDED.submitted_by,
            comments = EXCLUDED.comments,
            updated_at = EXCLUDED.updated_at`
	if _, err := tx.NamedExecContext(ctx, upsert, grade); err != nil {
		return fmt.Errorf("upsert grade: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1`,
		grade.EnrollmentID, models.EnrollmentStatusCompleted, now); err != nil {
		return fmt.Errorf("complete enrollment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grade: %w", err)
	}
	return nil
}

// ListScoresByStudent returns the grade points of every graded completed
// enrollment for the student.
func (r *GradeRepository) ListScoresByStudent(ctx context.Context, studentID string) ([]float64, error) {
	const query = `SELECT g.points FROM grades g
        INNER JOIN enrollments e ON e.id = g.enrollment_id
        WHERE e.student_id = $1 AND e.status = $2
        ORDER BY e.year, e.semester`
	var points []float64
	if err := r.db.SelectContext(ctx, &points, query, studentID, models.EnrollmentStatusCompleted); err != nil {
		return nil, fmt.Errorf("list student grade points: %w", err)
	}
	return points, nil
}

// HasPassingGrade reports whether the student holds a non-F grade for any
// completed enrollment in the course identified by code.
func (r *GradeRepository) HasPassingGrade(ctx context.Context, studentID, courseCode string) (bool, error) {
	const query = `SELECT 1 FROM grades g
        INNER JOIN enrollments e ON e.id = g.enrollment_id
        INNER JOIN courses c ON c.id = e.course_id
        WHERE e.student_id = $1 AND c.code = $2 AND e.status = $3 AND g.letter <> 'F'
        LIMIT 1`
	var found int
	if err := r.db.GetContext(ctx, &found, query, studentID, courseCode, models.EnrollmentStatusCompleted); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check passing grade: %w", err)
	}
	return true, nil
}

// TranscriptRows returns the graded course rows for a student, ordered by
// academic period.
func (r *GradeRepository) TranscriptRows(ctx context.Context, studentID string) ([]models.TranscriptRow, error) {
	const query = `SELECT c.code AS course_code, c.title AS course_title, c.credits, e.year, e.semester,
        g.numeric_score, g.letter, g.points
        FROM grades g
        INNER JOIN enrollments e ON e.id = g.enrollment_id
        INNER JOIN courses c ON c.id = e.course_id
        WHERE e.student_id = $1 AND e.status = $2
        ORDER BY e.year, e.semester, c.code`
	var rows []models.TranscriptRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID, models.EnrollmentStatusCompleted); err != nil {
		return nil, fmt.Errorf("transcript rows: %w", err)
	}
	return rows, nil
}

// CourseGrades returns all grades recorded against a course's enrollments.
func (r *GradeRepository) CourseGrades(ctx context.Context, courseCode string) ([]models.Grade, error) {
	const query = `SELECT g.id, g.enrollment_id, g.numeric_score, g.letter, g.points, g.band, g.submitted_by, g.comments, g.created_at, g.updated_at
        FROM grades g
        INNER JOIN enrollments e ON e.id = g.enrollment_id
        INNER JOIN courses c ON c.id = e.course_id
        WHERE c.code = $1`
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, courseCode); err != nil {
		return nil, fmt.Errorf("course grades: %w", err)
	}
	return grades, nil
}
