package models

import "time"

// Student represents a candidate that can be prioritized against themes.
type Student struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	HardSkill  string    `db:"hard_skill" json:"hard_skill"`
	Background string    `db:"background" json:"background"`
	Interests  string    `db:"interests" json:"interests"`
	TimeInWeek string    `db:"time_in_week" json:"time_in_week"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates text search parameters for listing students.
// Non-blank fields are OR-combined as case-insensitive substring matches.
type StudentFilter struct {
	Name       string
	HardSkill  string
	Background string
	Interests  string
	TimeInWeek string
}

// StudentDetail composes a student with its priority placements.
type StudentDetail struct {
	Student
	// ThemePriorities maps theme id to the student's index in that theme's main list.
	ThemePriorities map[string]int `json:"theme_priorities"`
	// SpecializationPriorities maps specialization name to themeId -> priority order.
	SpecializationPriorities map[string]map[string]int `json:"specialization_priorities"`
}

// StudentWithPriority is the row shape returned by ordered list reads.
type StudentWithPriority struct {
	StudentID   string `db:"student_id" json:"student_id"`
	StudentName string `db:"student_name" json:"student_name"`
	Priority    int    `db:"priority" json:"priority"`
	HardSkill   string `db:"hard_skill" json:"hard_skill"`
	Background  string `db:"background" json:"background"`
	Active      bool   `db:"active" json:"active"`
}
