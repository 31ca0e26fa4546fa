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

type studentRepository interface {
	Create(ctx context.Context, student *models.Student) error
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByRegNo(ctx context.Context, regNo string) (*models.Student, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, regNo string) error
}

// CreateStudentRequest carries a new student record.
type CreateStudentRequest struct {
	UserID        string `json:"user_id" validate:"omitempty,uuid"`
	RegNo         string `json:"reg_no" validate:"required,min=4,max=20,alphanum"`
	FirstName     string `json:"first_name" validate:"required,max=100"`
	LastName      string `json:"last_name" validate:"required,max=100"`
	AdmissionDate string `json:"admission_date" validate:"required,datetime=2006-01-02"`
	Major         string `json:"major" validate:"required,max=100"`
}

// UpdateStudentRequest carries mutable student fields. The registration
// number identifies the record and never changes.
type UpdateStudentRequest struct {
	FirstName string               `json:"first_name" validate:"omitempty,max=100"`
	LastName  string               `json:"last_name" validate:"omitempty,max=100"`
	Major     string               `json:"major" validate:"omitempty,max=100"`
	Status    models.StudentStatus `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE GRADUATED WITHDRAWN"`
}

// StudentService manages student records.
type StudentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs StudentService.
func NewStudentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, validator: validate, logger: logger}
}

// Create registers a new student.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "invalid student payload")
	}
	if _, err := s.repo.FindByRegNo(ctx, req.RegNo); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "registration number already in use")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check registration number")
	}

	admission, err := time.Parse("2006-01-02", req.AdmissionDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrDataFormatError, "admission_date must be YYYY-MM-DD")
	}

	student := &models.Student{
		UserID:        req.UserID,
		RegNo:         req.RegNo,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		AdmissionDate: admission,
		Major:         req.Major,
		Status:        models.StudentStatusActive,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.logger.Info("student created", zap.String("reg_no", student.RegNo))
	return student, nil
}

// Get returns a student by registration number.
func (s *StudentService) Get(ctx context.Context, regNo string) (*models.Student, error) {
	student, err := s.repo.FindByRegNo(ctx, regNo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// List returns students matching the filter with pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update applies mutable fields to an existing student.
func (s *StudentService) Update(ctx context.Context, regNo string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidInput.Code, appErrors.ErrInvalidInput.Status, "invalid student payload")
	}
	student, err := s.repo.FindByRegNo(ctx, regNo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if req.FirstName != "" {
		student.FirstName = req.FirstName
	}
	if req.LastName != "" {
		student.LastName = req.LastName
	}
	if req.Major != "" {
		student.Major = req.Major
	}
	if req.Status != "" {
		student.Status = req.Status
	}
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	s.logger.Info("student updated", zap.String("reg_no", regNo))
	return student, nil
}

// Delete removes a student record.
func (s *StudentService) Delete(ctx context.Context, regNo string) error {
	if _, err := s.repo.FindByRegNo(ctx, regNo); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := s.repo.Delete(ctx, regNo); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.logger.Info("student deleted", zap.String("reg_no", regNo))
	return nil
}
