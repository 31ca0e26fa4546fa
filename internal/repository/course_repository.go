package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campusworks/records-api/internal/models"
)

// CourseRepository handles persistence of the course catalog.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

// Create persists a new course record.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	if course.Status == "" {
		course.Status = models.CourseStatusActive
	}
	const query = `INSERT INTO courses (id, code, title, credits, max_enrollment, prerequisites, instructor_id, status, created_at, updated_at)
        VALUES (:id, :code, :title, :credits, :max_enrollment, :prerequisites, :instructor_id, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// FindByCode returns a course by its unique code regardless of status.
func (r *CourseRepository) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	const query = `SELECT id, code, title, credits, max_enrollment, prerequisites, instructor_id, status, created_at, updated_at
        FROM courses WHERE code = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, code); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindActiveByCode returns a course by code only if it accepts enrollment.
func (r *CourseRepository) FindActiveByCode(ctx context.Context, code string) (*models.Course, error) {
	const query = `SELECT id, code, title, credits, max_enrollment, prerequisites, instructor_id, status, created_at, updated_at
        FROM courses WHERE code = $1 AND status = $2`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, code, models.CourseStatusActive); err != nil {
		return nil, err
	}
	return &course, nil
}

// List returns courses with instructor names, filtered by criteria.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error) {
	base := `FROM courses c
LEFT JOIN instructors i ON i.id = c.instructor_id`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(c.code ILIKE $%d OR c.title ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("c.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.InstructorID != "" {
		conditions = append(conditions, fmt.Sprintf("c.instructor_id = $%d", len(args)+1))
		args = append(args, filter.InstructorID)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"code":    "c.code",
		"title":   "c.title",
		"credits": "c.credits",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "code"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "c.code"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT c.id, c.code, c.title, c.credits, c.max_enrollment, c.prerequisites, c.instructor_id, c.status, c.created_at, c.updated_at,
        i.first_name || ' ' || i.last_name AS instructor_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var courses []models.CourseDetail
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// Update rewrites the mutable fields of a course keyed by code.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	const query = `UPDATE courses SET title = $2, credits = $3, max_enrollment = $4, status = $5, updated_at = $6 WHERE code = $1`
	course.UpdatedAt = time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, query, course.Code, course.Title, course.Credits, course.MaxEnrollment, course.Status, course.UpdatedAt); err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	return nil
}

// SetPrerequisites replaces the ordered prerequisite list for a course.
func (r *CourseRepository) SetPrerequisites(ctx context.Context, code string, prerequisites []string) error {
	const query = `UPDATE courses SET prerequisites = $2, updated_at = $3 WHERE code = $1`
	if _, err := r.db.ExecContext(ctx, query, code, pq.StringArray(prerequisites), time.Now().UTC()); err != nil {
		return fmt.Errorf("set prerequisites: %w", err)
	}
	return nil
}

// AssignInstructor links an instructor to a course.
func (r *CourseRepository) AssignInstructor(ctx context.Context, code, instructorID string) error {
	const query = `UPDATE courses SET instructor_id = $2, updated_at = $3 WHERE code = $1`
	if _, err := r.db.ExecContext(ctx, query, code, instructorID, time.Now().UTC()); err != nil {
		return fmt.Errorf("assign instructor: %w", err)
	}
	return nil
}

// Delete removes a course by code.
func (r *CourseRepository) Delete(ctx context.Context, code string) error {
	const query = `DELETE FROM courses WHERE code = $1`
	if _, err := r.db.ExecContext(ctx, query, code); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	return nil
}
