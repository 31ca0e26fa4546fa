package models

import "time"

// Instructor represents a teaching staff member.
type Instructor struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	StaffNo   string    `db:"staff_no" json:"staff_no"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	HireDate  time.Time `db:"hire_date" json:"hire_date"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
