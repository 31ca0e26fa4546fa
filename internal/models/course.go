package models

import (
	"time"

	"github.com/lib/pq"
)

// CourseStatus marks whether a course accepts new enrollments.
type CourseStatus string

const (
	CourseStatusActive   CourseStatus = "ACTIVE"
	CourseStatusInactive CourseStatus = "INACTIVE"
)

// Course represents a catalog entry. Prerequisites is an ordered list of
// course codes that must carry a passing grade before enrollment.
type Course struct {
	ID            string         `db:"id" json:"id"`
	Code          string         `db:"code" json:"code"`
	Title         string         `db:"title" json:"title"`
	Credits       int            `db:"credits" json:"credits"`
	MaxEnrollment int            `db:"max_enrollment" json:"max_enrollment"`
	Prerequisites pq.StringArray `db:"prerequisites" json:"prerequisites,omitempty"`
	InstructorID  *string        `db:"instructor_id" json:"instructor_id,omitempty"`
	Status        CourseStatus   `db:"status" json:"status"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updated_at"`
}

// CourseDetail enriches Course with the assigned instructor's name.
type CourseDetail struct {
	Course
	InstructorName *string `db:"instructor_name" json:"instructor_name,omitempty"`
}

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	Search       string
	Status       CourseStatus
	InstructorID string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// CourseEnrollmentStat is the per-course enrollment count row used by the
// statistics reports.
type CourseEnrollmentStat struct {
	CourseCode    string `db:"course_code" json:"course_code"`
	Title         string `db:"title" json:"title"`
	EnrolledCount int    `db:"enrolled_count" json:"enrolled_count"`
}
