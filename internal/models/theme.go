package models

import (
	"strings"
	"time"
)

// Theme represents a project topic students can be prioritized against.
type Theme struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Author      string    `db:"author" json:"author"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ThemeFilter encapsulates text search parameters for listing themes.
type ThemeFilter struct {
	Name        string
	Description string
	Author      string
}

// ThemeDetail composes a theme with its specialization set, ordered main
// priority list and the ledger of currently ML-sorted specializations.
type ThemeDetail struct {
	Theme
	Specializations  []string `json:"specializations"`
	PriorityStudents []string `json:"priority_students"`
	MLSorted         []string `json:"ml_sorted_specializations"`
}

// HasSpecialization reports whether the theme carries the specialization,
// matched case-insensitively.
func (t *ThemeDetail) HasSpecialization(name string) bool {
	_, ok := t.ExactSpecializationName(name)
	return ok
}

// ExactSpecializationName resolves a caller-supplied specialization string to
// the canonical stored casing.
func (t *ThemeDetail) ExactSpecializationName(name string) (string, bool) {
	for _, s := range t.Specializations {
		if strings.EqualFold(s, name) {
			return s, true
		}
	}
	return "", false
}

// HasPriorityStudent reports whether the student is already in the main list.
func (t *ThemeDetail) HasPriorityStudent(studentID string) bool {
	for _, id := range t.PriorityStudents {
		if id == studentID {
			return true
		}
	}
	return false
}

// ThemeWithPriority is the per-theme view of a single student's placement.
type ThemeWithPriority struct {
	ThemeID     string `db:"theme_id" json:"theme_id"`
	ThemeName   string `db:"theme_name" json:"theme_name"`
	Priority    int    `db:"priority" json:"priority"`
	Description string `db:"description" json:"description"`
	Author      string `db:"author" json:"author"`
}
