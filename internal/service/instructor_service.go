package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campusworks/records-api/internal/models"
	appErrors "github.com/campusworks/records-api/pkg/errors"
)

type instructorRepository interface {
	Create(ctx context.Context, instructor *models.Instructor) error
	FindByID(ctx context.Context, id string) (*models.Instructor, error)
	FindByUserID(ctx context.Context, userID string) (*models.Instructor, error)
	List(ctx context.Context) ([]models.Instructor, error)
	AssignedCourses(ctx context.Context, instructorID string) ([]models.Course, error)
}

// CreateInstructorRequest carries a new instructor record.
type CreateInstructorRequest struct {
	UserID    string `json:"user_id" validate:"omitempty,uuid"`
	StaffNo   string `json:"staff_no" validate:"required,min=4,max=20,alphanum"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	HireDate  string `json:"hire_date" validate:"required,datetime=2006-01-02"`
}

// InstructorService manages instructor records.
type InstructorService struct {
	repo      instructorRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewInstructorService constructs InstructorService.
func NewInstructorService(repo instructorRepository, validate *validator.Validate, logger *zap.Logger) *InstructorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstructorService{repo: repo, validator: validate, logger: logger}
}

// Create registers a new instructor.
func (s *InstructorService) Create(ctx context.Context, req CreateInstructorRequest) (*models.Instructor, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "invalid instructor payload")
	}
	hireDate, err := time.Parse("2006-01-02", req.HireDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrDataFormatError, "hire_date must be YYYY-MM-DD")
	}
	instructor := &models.Instructor{
		UserID:    req.UserID,
		StaffNo:   req.StaffNo,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		HireDate:  hireDate,
	}
	if err := s.repo.Create(ctx, instructor); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create instructor")
	}
	s.logger.Info("instructor created", zap.String("staff_no", instructor.StaffNo))
	return instructor, nil
}

// Get returns an instructor by id.
func (s *InstructorService) Get(ctx context.Context, id string) (*models.Instructor, error) {
	instructor, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
	}
	return instructor, nil
}

// List returns all instructors.
func (s *InstructorService) List(ctx context.Context) ([]models.Instructor, error) {
	instructors, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list instructors")
	}
	return instructors, nil
}

// AssignedCourses returns the active courses the instructor teaches.
func (s *InstructorService) AssignedCourses(ctx context.Context, instructorID string) ([]models.Course, error) {
	if _, err := s.Get(ctx, instructorID); err != nil {
		return nil, err
	}
	courses, err := s.repo.AssignedCourses(ctx, instructorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assigned courses")
	}
	return courses, nil
}
