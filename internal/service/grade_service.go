package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusworks/records-api/internal/models"
	appErrors "github.com/campusworks/records-api/pkg/errors"
)

type gradeRepository interface {
	FindByEnrollment(ctx context.Context, enrollmentID string) (*models.Grade, error)
	UpsertWithCompletion(ctx context.Context, grade *models.Grade) error
}

type enrollmentDetailReader interface {
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
}

type courseByCodeReader interface {
	FindByCode(ctx context.Context, code string) (*models.Course, error)
}

type instructorByUserReader interface {
	FindByUserID(ctx context.Context, userID string) (*models.Instructor, error)
}

type gradeMetrics interface {
	RecordGradeSubmission(letter string)
}

// SubmitGradeRequest carries a grade submission for one enrollment.
type SubmitGradeRequest struct {
	EnrollmentID string  `json:"enrollment_id" validate:"required"`
	Score        int     `json:"score"`
	Comments     *string `json:"comments,omitempty" validate:"omitempty,max=500"`
}

// GradeService derives letter grades from numeric scores and records them.
// Instructors may only grade enrollments in courses assigned to them;
// admins may grade any enrollment. Submitting again for the same enrollment
// replaces the previous grade.
type GradeService struct {
	repo        gradeRepository
	enrollments enrollmentDetailReader
	courses     courseByCodeReader
	instructors instructorByUserReader
	cache       statisticsInvalidator
	metrics     gradeMetrics
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewGradeService constructs GradeService.
func NewGradeService(repo gradeRepository, enrollments enrollmentDetailReader, courses courseByCodeReader, instructors instructorByUserReader, cache statisticsInvalidator, metrics gradeMetrics, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{repo: repo, enrollments: enrollments, courses: courses, instructors: instructors, cache: cache, metrics: metrics, validator: validate, logger: logger}
}

// Submit validates a score, derives its grade band and records it for the
// enrollment, marking the enrollment COMPLETED. The derivation and the two
// writes happen in one repository transaction.
func (s *GradeService) Submit(ctx context.Context, session *models.Session, req SubmitGradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "invalid grade payload")
	}

	band, err := ScoreToGrade(req.Score)
	if err != nil {
		return nil, err
	}

	enrollment, err := s.enrollments.FindDetailByID(ctx, req.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status == models.EnrollmentStatusWithdrawn {
		return nil, appErrors.Clone(appErrors.ErrConflict, "cannot grade a withdrawn enrollment")
	}

	if err := s.authorize(ctx, session, enrollment.CourseCode); err != nil {
		return nil, err
	}

	grade := &models.Grade{
		EnrollmentID: req.EnrollmentID,
		NumericScore: req.Score,
		Letter:       band.Letter,
		Points:       band.Points,
		Band:         band.Band,
		SubmittedBy:  session.UserID,
		Comments:     req.Comments,
	}
	if err := s.repo.UpsertWithCompletion(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record grade")
	}

	if s.metrics != nil {
		s.metrics.RecordGradeSubmission(band.Letter)
	}
	s.invalidateStatistics(ctx, enrollment.CourseCode)
	s.logger.Info("grade recorded",
		zap.String("enrollment_id", req.EnrollmentID),
		zap.String("course_code", enrollment.CourseCode),
		zap.String("letter", band.Letter),
		zap.String("submitted_by", session.UserID))
	return grade, nil
}

// Get returns the grade recorded for an enrollment, if any.
func (s *GradeService) Get(ctx context.Context, enrollmentID string) (*models.Grade, error) {
	grade, err := s.repo.FindByEnrollment(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no grade recorded for enrollment")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	return grade, nil
}

func (s *GradeService) authorize(ctx context.Context, session *models.Session, courseCode string) error {
	if session == nil {
		return appErrors.Clone(appErrors.ErrInsufficientPermissions, "")
	}
	if session.Role == models.RoleAdmin {
		return nil
	}
	if session.Role != models.RoleInstructor {
		return appErrors.Clone(appErrors.ErrUnauthorizedGradeChange, "")
	}

	instructor, err := s.instructors.FindByUserID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrUnauthorizedGradeChange, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
	}
	course, err := s.courses.FindByCode(ctx, courseCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrCourseNotFound, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course.InstructorID == nil || *course.InstructorID != instructor.ID {
		return appErrors.Clone(appErrors.ErrUnauthorizedGradeChange, "")
	}
	return nil
}

func (s *GradeService) invalidateStatistics(ctx context.Context, courseCode string) {
	if s.cache == nil {
		return
	}
	patterns := []string{"stats:course:" + courseCode, "stats:gpa:*"}
	for _, pattern := range patterns {
		if err := s.cache.DeleteByPattern(ctx, pattern); err != nil {
			s.logger.Warn("failed to invalidate statistics cache", zap.Error(err))
		}
	}
}
