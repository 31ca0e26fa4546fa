package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Severity levels attached to domain errors for logging purposes. They are
// not part of the business contract.
const (
	SeverityInfo    = "INFO"
	SeverityWarning = "WARNING"
	SeverityError   = "ERROR"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Status   int    `json:"status"`
	Severity string `json:"-"`
	Err      error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code. Sentinels compare by code
// so Clone'd and Wrap'ped instances still match errors.Is checks.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e != nil && t != nil && e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, severity, message string) *Error {
	return &Error{Code: code, Status: status, Severity: severity, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Severity: SeverityError, Message: message, Err: err}
}

// Predefined errors. Codes follow the institutional error catalogue:
// 1xxx authentication, 2xxx enrollment, 3xxx grading, 4xxx courses,
// 5xxx input validation.
var (
	ErrAuthFailed              = New("AUTH_FAILED_1001", http.StatusUnauthorized, SeverityWarning, "invalid username or password")
	ErrSessionExpired          = New("SESSION_EXPIRED_1002", http.StatusUnauthorized, SeverityInfo, "session has expired, please login again")
	ErrInsufficientPermissions = New("INSUFFICIENT_PERMISSIONS_1003", http.StatusForbidden, SeverityWarning, "you do not have permission to perform this action")

	ErrEnrollmentLimit     = New("ENROLLMENT_LIMIT_2001", http.StatusConflict, SeverityWarning, "course has reached maximum enrollment capacity")
	ErrPrerequisiteNotMet  = New("PREREQUISITE_NOT_MET_2002", http.StatusPreconditionFailed, SeverityWarning, "required prerequisites are not satisfied")
	ErrDuplicateEnrollment = New("DUPLICATE_ENROLLMENT_2003", http.StatusConflict, SeverityWarning, "student is already enrolled in this course")

	ErrInvalidGrade            = New("INVALID_GRADE_3001", http.StatusBadRequest, SeverityError, "invalid grade value provided")
	ErrUnauthorizedGradeChange = New("UNAUTHORIZED_GRADE_CHANGE_3003", http.StatusForbidden, SeverityError, "unauthorized to modify grades for this course")

	ErrCourseNotFound = New("COURSE_NOT_FOUND_4002", http.StatusNotFound, SeverityError, "requested course does not exist")

	ErrInvalidInput         = New("INVALID_INPUT_5001", http.StatusBadRequest, SeverityWarning, "invalid input provided")
	ErrRequiredFieldMissing = New("REQUIRED_FIELD_MISSING_5002", http.StatusBadRequest, SeverityError, "required field(s) missing")
	ErrDataFormatError      = New("DATA_FORMAT_ERROR_5003", http.StatusBadRequest, SeverityError, "invalid data format")

	ErrNotFound  = New("NOT_FOUND", http.StatusNotFound, SeverityWarning, "resource not found")
	ErrConflict  = New("CONFLICT", http.StatusConflict, SeverityWarning, "conflict")
	ErrInternal  = New("INTERNAL_ERROR", http.StatusInternalServerError, SeverityError, "internal server error")
	ErrCacheMiss = New("CACHE_MISS", http.StatusNotFound, SeverityInfo, "cache miss")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
