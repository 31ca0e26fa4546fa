package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/campusworks/records-api/internal/models"
	appErrors "github.com/campusworks/records-api/pkg/errors"
)

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	FindByCode(ctx context.Context, code string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, int, error)
	Update(ctx context.Context, course *models.Course) error
	SetPrerequisites(ctx context.Context, code string, prerequisites []string) error
	AssignInstructor(ctx context.Context, code, instructorID string) error
	Delete(ctx context.Context, code string) error
}

type instructorReader interface {
	FindByID(ctx context.Context, id string) (*models.Instructor, error)
}

// CreateCourseRequest carries a new course definition.
type CreateCourseRequest struct {
	Code          string   `json:"code" validate:"required,min=3,max=16,alphanum"`
	Title         string   `json:"title" validate:"required,max=200"`
	Credits       int      `json:"credits" validate:"required,gte=1,lte=30"`
	MaxEnrollment int      `json:"max_enrollment" validate:"required,gte=1"`
	Prerequisites []string `json:"prerequisites" validate:"omitempty,dive,min=3,max=16"`
	InstructorID  *string  `json:"instructor_id,omitempty" validate:"omitempty,uuid"`
}

// UpdateCourseRequest carries mutable course fields.
type UpdateCourseRequest struct {
	Title         string              `json:"title" validate:"omitempty,max=200"`
	Credits       int                 `json:"credits" validate:"omitempty,gte=1,lte=30"`
	MaxEnrollment int                 `json:"max_enrollment" validate:"omitempty,gte=1"`
	Status        models.CourseStatus `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE"`
}

// CourseService manages the course catalogue.
type CourseService struct {
	repo        courseRepository
	instructors instructorReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(repo courseRepository, instructors instructorReader, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, instructors: instructors, validator: validate, logger: logger}
}

// Create adds a course to the catalogue. Prerequisite codes must already
// exist, and a course can never require itself.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "invalid course payload")
	}
	if _, err := s.repo.FindByCode(ctx, req.Code); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course code already in use")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}
	if err := s.checkPrerequisites(ctx, req.Code, req.Prerequisites); err != nil {
		return nil, err
	}
	if req.InstructorID != nil {
		if err := s.checkInstructor(ctx, *req.InstructorID); err != nil {
			return nil, err
		}
	}

	course := &models.Course{
		Code:          req.Code,
		Title:         req.Title,
		Credits:       req.Credits,
		MaxEnrollment: req.MaxEnrollment,
		Prerequisites: pq.StringArray(req.Prerequisites),
		InstructorID:  req.InstructorID,
		Status:        models.CourseStatusActive,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	s.logger.Info("course created", zap.String("code", course.Code))
	return course, nil
}

// Get returns a course by code.
func (s *CourseService) Get(ctx context.Context, code string) (*models.Course, error) {
	course, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrCourseNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// List returns catalogue entries matching the filter.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update applies mutable fields to an existing course.
func (s *CourseService) Update(ctx context.Context, code string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "invalid course payload")
	}
	course, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if req.Title != "" {
		course.Title = req.Title
	}
	if req.Credits > 0 {
		course.Credits = req.Credits
	}
	if req.MaxEnrollment > 0 {
		course.MaxEnrollment = req.MaxEnrollment
	}
	if req.Status != "" {
		course.Status = req.Status
	}
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	s.logger.Info("course updated", zap.String("code", code))
	return course, nil
}

// SetPrerequisites replaces a course's prerequisite list.
func (s *CourseService) SetPrerequisites(ctx context.Context, code string, prerequisites []string) (*models.Course, error) {
	if _, err := s.Get(ctx, code); err != nil {
		return nil, err
	}
	if err := s.checkPrerequisites(ctx, code, prerequisites); err != nil {
		return nil, err
	}
	if err := s.repo.SetPrerequisites(ctx, code, prerequisites); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set prerequisites")
	}
	return s.Get(ctx, code)
}

// AssignInstructor puts an instructor in charge of a course.
func (s *CourseService) AssignInstructor(ctx context.Context, code, instructorID string) (*models.Course, error) {
	if _, err := s.Get(ctx, code); err != nil {
		return nil, err
	}
	if err := s.checkInstructor(ctx, instructorID); err != nil {
		return nil, err
	}
	if err := s.repo.AssignInstructor(ctx, code, instructorID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign instructor")
	}
	s.logger.Info("instructor assigned", zap.String("code", code), zap.String("instructor_id", instructorID))
	return s.Get(ctx, code)
}

// Delete removes a course from the catalogue.
func (s *CourseService) Delete(ctx context.Context, code string) error {
	if _, err := s.Get(ctx, code); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, code); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	s.logger.Info("course deleted", zap.String("code", code))
	return nil
}

func (s *CourseService) checkPrerequisites(ctx context.Context, code string, prerequisites []string) error {
	for _, prereq := range prerequisites {
		if prereq == code {
			return appErrors.Clone(appErrors.ErrInvalidInput, "a course cannot be its own prerequisite")
		}
		if _, err := s.repo.FindByCode(ctx, prereq); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrCourseNotFound, "unknown prerequisite "+prereq)
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check prerequisite")
		}
	}
	return nil
}

func (s *CourseService) checkInstructor(ctx context.Context, instructorID string) error {
	if _, err := s.instructors.FindByID(ctx, instructorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
	}
	return nil
}
