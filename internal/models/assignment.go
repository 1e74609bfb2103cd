package models

import "time"

// SpecializationAssignment is the persisted (theme, specialization, student,
// priorityOrder) record backing each specialization's ordered list.
type SpecializationAssignment struct {
	ID                 string    `db:"id" json:"id"`
	ThemeID            string    `db:"theme_id" json:"theme_id"`
	SpecializationName string    `db:"specialization_name" json:"specialization_name"`
	StudentID          string    `db:"student_id" json:"student_id"`
	PriorityOrder      int       `db:"priority_order" json:"priority_order"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// SpecializationStudent joins an assignment row with its student fields for
// ordered list reads.
type SpecializationStudent struct {
	StudentID     string `db:"student_id" json:"student_id"`
	StudentName   string `db:"student_name" json:"student_name"`
	HardSkill     string `db:"hard_skill" json:"hard_skill"`
	Background    string `db:"background" json:"background"`
	Interests     string `db:"interests" json:"interests"`
	TimeInWeek    string `db:"time_in_week" json:"time_in_week"`
	Active        bool   `db:"active" json:"active"`
	PriorityOrder int    `db:"priority_order" json:"priority_order"`
}
