package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campusworks/records-api/internal/models"
)

// StudentRepository handles persistence of student profiles.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// Create persists a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	if student.Status == "" {
		student.Status = models.StudentStatusActive
	}
	const query = `INSERT INTO students (id, user_id, reg_no, first_name, last_name, admission_date, major, status, created_at, updated_at)
        VALUES (:id, :user_id, :reg_no, :first_name, :last_name, :admission_date, :major, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// FindByID returns a student by its ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, user_id, reg_no, first_name, last_name, admission_date, major, status, created_at, updated_at
        FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByRegNo returns a student by registration number.
func (r *StudentRepository) FindByRegNo(ctx context.Context, regNo string) (*models.Student, error) {
	const query = `SELECT id, user_id, reg_no, first_name, last_name, admission_date, major, status, created_at, updated_at
        FROM students WHERE reg_no = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, regNo); err != nil {
		return nil, err
	}
	return &student, nil
}

// List returns students filtered by the provided criteria.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := `FROM students s`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(s.first_name ILIKE $%d OR s.last_name ILIKE $%d OR s.reg_no ILIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.Major != "" {
		conditions = append(conditions, fmt.Sprintf("s.major = $%d", len(args)+1))
		args = append(args, filter.Major)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"reg_no":         "s.reg_no",
		"last_name":      "s.last_name",
		"admission_date": "s.admission_date",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "reg_no"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "s.reg_no"
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

	query := fmt.Sprintf(`SELECT s.id, s.user_id, s.reg_no, s.first_name, s.last_name, s.admission_date, s.major, s.status, s.created_at, s.updated_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// Update rewrites the mutable fields of a student profile. RegNo is
// immutable after creation and is used as the key.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	const query = `UPDATE students SET first_name = $2, last_name = $3, major = $4, status = $5, updated_at = $6 WHERE reg_no = $1`
	student.UpdatedAt = time.Now().UTC()
	if _, err := r.db.ExecContext(ctx, query, student.RegNo, student.FirstName, student.LastName, student.Major, student.Status, student.UpdatedAt); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Delete removes a student by registration number.
func (r *StudentRepository) Delete(ctx context.Context, regNo string) error {
	const query = `DELETE FROM students WHERE reg_no = $1`
	if _, err := r.db.ExecContext(ctx, query, regNo); err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return nil
}
