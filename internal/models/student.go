package models

import "time"

// StudentStatus tracks the administrative lifecycle of a student record.
type StudentStatus string

const (
	StudentStatusActive    StudentStatus = "ACTIVE"
	StudentStatusInactive  StudentStatus = "INACTIVE"
	StudentStatusGraduated StudentStatus = "GRADUATED"
	StudentStatusWithdrawn StudentStatus = "WITHDRAWN"
)

// Student represents a learner registered with the institution. RegNo is
// unique and immutable after creation.
type Student struct {
	ID            string        `db:"id" json:"id"`
	UserID        string        `db:"user_id" json:"user_id"`
	RegNo         string        `db:"reg_no" json:"reg_no"`
	FirstName     string        `db:"first_name" json:"first_name"`
	LastName      string        `db:"last_name" json:"last_name"`
	AdmissionDate time.Time     `db:"admission_date" json:"admission_date"`
	Major         string        `db:"major" json:"major"`
	Status        StudentStatus `db:"status" json:"status"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	Major     string
	Status    StudentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
