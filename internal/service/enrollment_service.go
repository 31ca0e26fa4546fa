package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusworks/records-api/internal/models"
	appErrors "github.com/campusworks/records-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
	ExistsActive(ctx context.Context, studentID, courseID string, year int, semester string) (bool, error)
	CountActive(ctx context.Context, courseID string) (int, error)
	InsertAtomic(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error
}

type courseReader interface {
	FindActiveByCode(ctx context.Context, code string) (*models.Course, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type passingGradeReader interface {
	HasPassingGrade(ctx context.Context, studentID, courseCode string) (bool, error)
}

type statisticsInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

type enrollmentMetrics interface {
	RecordEnrollmentRejection(reason string)
	RecordEnrollmentCreated()
}

// EnrollRequest describes an enrollment creation request.
type EnrollRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	CourseCode string `json:"course_code" validate:"required"`
	Year       int    `json:"year" validate:"required,gte=1900"`
	Semester   string `json:"semester" validate:"required"`
}

// EnrollmentService validates proposed enrollments against capacity,
// duplication and prerequisite rules and creates them. The decisive
// capacity and duplicate checks run inside the repository's atomic insert;
// the service-level reads only short-circuit the obvious rejections early.
type EnrollmentService struct {
	repo      enrollmentRepository
	courses   courseReader
	students  studentReader
	grades    passingGradeReader
	cache     statisticsInvalidator
	metrics   enrollmentMetrics
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, courses courseReader, students studentReader, grades passingGradeReader, cache statisticsInvalidator, metrics enrollmentMetrics, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, courses: courses, students: students, grades: grades, cache: cache, metrics: metrics, validator: validate, logger: logger}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// Enroll registers a student into a course for a (year, semester) period.
// Checks run in order and short-circuit on the first failure: active course,
// duplicate, capacity, prerequisites. A rejection leaves no partial writes.
// A student session may only enroll its own student record; admins enroll
// anyone.
func (s *EnrollmentService) Enroll(ctx context.Context, session *models.Session, req EnrollRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "invalid enrollment payload")
	}

	course, err := s.courses.FindActiveByCode(ctx, req.CourseCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.reject("course_not_found")
			return nil, appErrors.Clone(appErrors.ErrCourseNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Status != models.StudentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "student is not active")
	}
	if err := s.authorizeStudentAction(session, student); err != nil {
		return nil, err
	}

	// Advisory fast-path reads; the atomic insert re-evaluates both under
	// the course row lock.
	exists, err := s.repo.ExistsActive(ctx, req.StudentID, course.ID, req.Year, req.Semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate enrollment")
	}
	if exists {
		s.reject("duplicate")
		return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "")
	}

	active, err := s.repo.CountActive(ctx, course.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}
	if active >= course.MaxEnrollment {
		s.reject("capacity")
		return nil, appErrors.Clone(appErrors.ErrEnrollmentLimit, "")
	}

	for _, prereq := range course.Prerequisites {
		passed, err := s.grades.HasPassingGrade(ctx, req.StudentID, prereq)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check prerequisites")
		}
		if !passed {
			s.reject("prerequisite")
			return nil, appErrors.Clone(appErrors.ErrPrerequisiteNotMet, fmt.Sprintf("missing passing grade in %s", prereq))
		}
	}

	enrollment := &models.Enrollment{
		StudentID: req.StudentID,
		CourseID:  course.ID,
		Year:      req.Year,
		Semester:  req.Semester,
		Status:    models.EnrollmentStatusActive,
	}
	if err := s.repo.InsertAtomic(ctx, enrollment); err != nil {
		switch {
		case errors.Is(err, appErrors.ErrDuplicateEnrollment):
			s.reject("duplicate")
			return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "")
		case errors.Is(err, appErrors.ErrEnrollmentLimit):
			s.reject("capacity")
			return nil, appErrors.Clone(appErrors.ErrEnrollmentLimit, "")
		case errors.Is(err, appErrors.ErrCourseNotFound):
			s.reject("course_not_found")
			return nil, appErrors.Clone(appErrors.ErrCourseNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	if s.metrics != nil {
		s.metrics.RecordEnrollmentCreated()
	}
	s.invalidateStatistics(ctx)
	s.logger.Info("student enrolled",
		zap.String("student_id", req.StudentID),
		zap.String("course_code", course.Code),
		zap.Int("year", req.Year),
		zap.String("semester", req.Semester))

	detail, err := s.repo.FindDetailByID(ctx, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Withdraw marks an enrollment WITHDRAWN, freeing its capacity slot. A
// student session may only withdraw its own enrollments.
func (s *EnrollmentService) Withdraw(ctx context.Context, session *models.Session, id string) (*models.EnrollmentDetail, error) {
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if session != nil && session.Role == models.RoleStudent {
		student, err := s.students.FindByID(ctx, enrollment.StudentID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
		}
		if err := s.authorizeStudentAction(session, student); err != nil {
			return nil, err
		}
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, "enrollment is not active")
	}
	if err := s.repo.UpdateStatus(ctx, id, models.EnrollmentStatusWithdrawn); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw enrollment")
	}
	s.invalidateStatistics(ctx)
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// authorizeStudentAction restricts student sessions to their own record.
// Other roles act on any student.
func (s *EnrollmentService) authorizeStudentAction(session *models.Session, student *models.Student) error {
	if session == nil || session.Role != models.RoleStudent {
		return nil
	}
	if student.UserID != session.UserID {
		return appErrors.Clone(appErrors.ErrInsufficientPermissions, "students may only manage their own enrollments")
	}
	return nil
}

func (s *EnrollmentService) reject(reason string) {
	if s.metrics != nil {
		s.metrics.RecordEnrollmentRejection(reason)
	}
}

// invalidateStatistics drops every cached enrollment statistic. The
// all-courses aggregate lives under its own key, so the wildcard covers
// both it and the per-course entries.
func (s *EnrollmentService) invalidateStatistics(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "stats:enrollment:*"); err != nil {
		s.logger.Warn("failed to invalidate statistics cache", zap.Error(err))
	}
}
