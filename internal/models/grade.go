package models

import "time"

// Grade records the outcome of a completed enrollment. Letter, points and
// band are derived from the numeric score at submission time and stored
// alongside it; a later change to the grading scale never rewrites them.
type Grade struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	NumericScore int       `db:"numeric_score" json:"numeric_score"`
	Letter       string    `db:"letter" json:"letter"`
	Points       float64   `db:"points" json:"points"`
	Band         string    `db:"band" json:"band"`
	SubmittedBy  string    `db:"submitted_by" json:"submitted_by"`
	Comments     *string   `db:"comments" json:"comments,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// TranscriptRow is one graded enrollment on a student's transcript.
type TranscriptRow struct {
	CourseCode   string  `db:"course_code" json:"course_code"`
	CourseTitle  string  `db:"course_title" json:"course_title"`
	Credits      int     `db:"credits" json:"credits"`
	Year         int     `db:"year" json:"year"`
	Semester     string  `db:"semester" json:"semester"`
	NumericScore int     `db:"numeric_score" json:"numeric_score"`
	Letter       string  `db:"letter" json:"letter"`
	Points       float64 `db:"points" json:"points"`
}

// StudentTranscript aggregates a student's graded work with the GPA and
// honours classification derived from it.
type StudentTranscript struct {
	StudentID string          `json:"student_id"`
	RegNo     string          `json:"reg_no"`
	GPA       float64         `json:"gpa"`
	Honours   string          `json:"honours"`
	Rows      []TranscriptRow `json:"rows"`
}

// GPAReport is the summary returned by the GPA endpoint.
type GPAReport struct {
	StudentID   string  `json:"student_id"`
	GPA         float64 `json:"gpa"`
	Honours     string  `json:"honours"`
	GradedCount int     `json:"graded_count"`
}

// CourseStatistics summarises graded performance for one course.
type CourseStatistics struct {
	CourseCode   string         `json:"course_code"`
	AverageScore float64        `json:"average_score"`
	GradedCount  int            `json:"graded_count"`
	Distribution map[string]int `json:"distribution"`
}
