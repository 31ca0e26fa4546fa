package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campusworks/records-api/internal/models"
	appErrors "github.com/campusworks/records-api/pkg/errors"
)

const defaultInsertAttempts = 3

// insertRetryRecorder counts retried enrollment transactions.
type insertRetryRecorder interface {
	RecordEnrollmentRetry()
}

// EnrollmentRepository handles persistence of enrollments. Capacity and
// duplicate checks run inside InsertAtomic; callers must not implement
// check-then-insert on top of the plain reads.
type EnrollmentRepository struct {
	db            *sqlx.DB
	insertRetries int
	metrics       insertRetryRecorder
}

// NewEnrollmentRepository constructs the repository. A nil metrics recorder
// disables retry accounting.
func NewEnrollmentRepository(db *sqlx.DB, insertRetries int, metrics insertRetryRecorder) *EnrollmentRepository {
	if insertRetries <= 0 {
		insertRetries = defaultInsertAttempts
	}
	return &EnrollmentRepository{db: db, insertRetries: insertRetries, metrics: metrics}
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, course_id, year, semester, status, created_at, updated_at FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with student and course context.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.course_id, e.year, e.semester, e.status, e.created_at, e.updated_at,
        s.first_name || ' ' || s.last_name AS student_name, s.reg_no AS student_reg_no,
        c.code AS course_code, c.title AS course_title
        FROM enrollments e
        LEFT JOIN students s ON s.id = e.student_id
        LEFT JOIN courses c ON c.id = e.course_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN students s ON s.id = e.student_id
LEFT JOIN courses c ON c.id = e.course_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Year != 0 {
		conditions = append(conditions, fmt.Sprintf("e.year = $%d", len(args)+1))
		args = append(args, filter.Year)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("e.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":   "e.created_at",
		"student_name": "s.last_name",
		"course_code":  "c.code",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.course_id, e.year, e.semester, e.status, e.created_at, e.updated_at,
        s.first_name || ' ' || s.last_name AS student_name, s.reg_no AS student_reg_no,
        c.code AS course_code, c.title AS course_title
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// ExistsActive checks if a non-withdrawn enrollment exists for the tuple.
// Advisory read only; InsertAtomic re-checks under the course lock.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, studentID, courseID string, year int, semester string) (bool, error) {
	const query = `SELECT 1 FROM enrollments
        WHERE student_id = $1 AND course_id = $2 AND year = $3 AND semester = $4 AND status <> $5 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, courseID, year, semester, models.EnrollmentStatusWithdrawn); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// CountActive returns the number of enrollments counting toward capacity.
func (r *EnrollmentRepository) CountActive(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status <> $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, courseID, models.EnrollmentStatusWithdrawn); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}

// InsertAtomic creates the enrollment only if the course still has capacity
// and no duplicate non-withdrawn enrollment exists for the same period. The
// course row is locked for the duration of the transaction so concurrent
// attempts serialize; a partial unique index on the tuple backstops the
// duplicate check. Serialization conflicts are retried a bounded number of
// times; capacity and duplicate rejections surface as typed errors.
func (r *EnrollmentRepository) InsertAtomic(ctx context.Context, enrollment *models.Enrollment) error {
	var err error
	for attempt := 0; attempt < r.insertRetries; attempt++ {
		err = r.insertOnce(ctx, enrollment)
		if err == nil || !isRetryablePQError(err) {
			return err
		}
		if r.metrics != nil {
			r.metrics.RecordEnrollmentRetry()
		}
	}
	return err
}

func (r *EnrollmentRepository) insertOnce(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin enrollment tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var maxEnrollment int
	if err := tx.GetContext(ctx, &maxEnrollment,
		`SELECT max_enrollment FROM courses WHERE id = $1 FOR UPDATE`, enrollment.CourseID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.ErrCourseNotFound
		}
		return fmt.Errorf("lock course row: %w", err)
	}

	var duplicate int
	err = tx.GetContext(ctx, &duplicate,
		`SELECT 1 FROM enrollments WHERE student_id = $1 AND course_id = $2 AND year = $3 AND semester = $4 AND status <> $5 LIMIT 1`,
		enrollment.StudentID, enrollment.CourseID, enrollment.Year, enrollment.Semester, models.EnrollmentStatusWithdrawn)
	if err == nil {
		return appErrors.ErrDuplicateEnrollment
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("check duplicate enrollment: %w", err)
	}

	var active int
	if err := tx.GetContext(ctx, &active,
		`SELECT COUNT(*) FROM enrollments WHERE course_id = $1 AND status <> $2`,
		enrollment.CourseID, models.EnrollmentStatusWithdrawn); err != nil {
		return fmt.Errorf("count active enrollments: %w", err)
	}
	if active >= maxEnrollment {
		return appErrors.ErrEnrollmentLimit
	}

	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO enrollments (id, student_id, course_id, year, semester, status, created_at, updated_at)
         VALUES (:id, :student_id, :course_id, :year, :semester, :status, :created_at, :updated_at)`, enrollment); err != nil {
		if isUniqueViolation(err) {
			return appErrors.ErrDuplicateEnrollment
		}
		return fmt.Errorf("insert enrollment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment: %w", err)
	}
	return nil
}

// UpdateStatus updates the lifecycle status of an enrollment.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	const query = `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// StatsForAllCourses returns active enrollment counts per active course.
func (r *EnrollmentRepository) StatsForAllCourses(ctx context.Context) ([]models.CourseEnrollmentStat, error) {
	const query = `SELECT c.code AS course_code, c.title, COUNT(e.id) AS enrolled_count
        FROM courses c
        LEFT JOIN enrollments e ON e.course_id = c.id AND e.status <> $1
        WHERE c.status = $2
        GROUP BY c.code, c.title
        ORDER BY c.code`
	var stats []models.CourseEnrollmentStat
	if err := r.db.SelectContext(ctx, &stats, query, models.EnrollmentStatusWithdrawn, models.CourseStatusActive); err != nil {
		return nil, fmt.Errorf("enrollment statistics: %w", err)
	}
	return stats, nil
}

// StatsForCourse returns the active enrollment count for one course.
func (r *EnrollmentRepository) StatsForCourse(ctx context.Context, courseCode string) (*models.CourseEnrollmentStat, error) {
	const query = `SELECT c.code AS course_code, c.title, COUNT(e.id) AS enrolled_count
        FROM courses c
        LEFT JOIN enrollments e ON e.course_id = c.id AND e.status <> $1
        WHERE c.code = $2 AND c.status = $3
        GROUP BY c.code, c.title`
	var stat models.CourseEnrollmentStat
	if err := r.db.GetContext(ctx, &stat, query, models.EnrollmentStatusWithdrawn, courseCode, models.CourseStatusActive); err != nil {
		return nil, err
	}
	return &stat, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// isRetryablePQError reports serialization failures and deadlocks, the two
// conflict classes worth a bounded retry.
func isRetryablePQError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
