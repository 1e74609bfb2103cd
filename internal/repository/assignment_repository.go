package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/theme-match-api/internal/models"
)

// AssignmentRepository manages the per-specialization priority rows and the
// ledger of ML-sorted specializations.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs an AssignmentRepository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// ListOrdered returns the assignment rows for (theme, specialization) sorted
// by priority_order ascending, row id as tie-break.
func (r *AssignmentRepository) ListOrdered(ctx context.Context, themeID, specialization string) ([]models.SpecializationAssignment, error) {
	const query = `SELECT id, theme_id, specialization_name, student_id, priority_order, created_at, updated_at
        FROM theme_specialization_students
        WHERE theme_id = $1 AND specialization_name = $2
        ORDER BY priority_order ASC, id ASC`
	var rows []models.SpecializationAssignment
	if err := r.db.SelectContext(ctx, &rows, query, themeID, specialization); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return rows, nil
}

// ListStudentsOrdered returns the specialization's students joined with their
// profile fields, in priority order.
func (r *AssignmentRepository) ListStudentsOrdered(ctx context.Context, themeID, specialization string) ([]models.SpecializationStudent, error) {
	const query = `SELECT a.student_id, s.name AS student_name, s.hard_skill, s.background, s.interests, s.time_in_week, s.active, a.priority_order
        FROM theme_specialization_students a
        JOIN students s ON s.id = a.student_id
        WHERE a.theme_id = $1 AND a.specialization_name = $2
        ORDER BY a.priority_order ASC, a.id ASC`
	var rows []models.SpecializationStudent
	if err := r.db.SelectContext(ctx, &rows, query, themeID, specialization); err != nil {
		return nil, fmt.Errorf("list assignment students: %w", err)
	}
	return rows, nil
}

// Exists reports whether the (theme, specialization, student) triple is
// already assigned.
func (r *AssignmentRepository) Exists(ctx context.Context, themeID, specialization, studentID string) (bool, error) {
	const query = `SELECT 1 FROM theme_specialization_students
        WHERE theme_id = $1 AND specialization_name = $2 AND student_id = $3 LIMIT 1`
	var one int
	if err := r.db.GetContext(ctx, &one, query, themeID, specialization, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check assignment: %w", err)
	}
	return true, nil
}

// Replace deletes every row for (theme, specialization) and inserts the given
// students with dense priority_order 0..n-1, in one transaction.
func (r *AssignmentRepository) Replace(ctx context.Context, themeID, specialization string, studentIDs []string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace assignments: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		"DELETE FROM theme_specialization_students WHERE theme_id = $1 AND specialization_name = $2",
		themeID, specialization); err != nil {
		return fmt.Errorf("clear assignments: %w", err)
	}
	if err = insertAssignments(ctx, tx, themeID, specialization, studentIDs, 0); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace assignments: %w", err)
	}
	return nil
}

// AppendAll inserts the given students after the current tail, continuing the
// specialization's priority numbering; existing rows are untouched.
func (r *AssignmentRepository) AppendAll(ctx context.Context, themeID, specialization string, studentIDs []string) (err error) {
	if len(studentIDs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append assignments: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var next int
	if err = tx.GetContext(ctx, &next,
		"SELECT COALESCE(MAX(priority_order) + 1, 0) FROM theme_specialization_students WHERE theme_id = $1 AND specialization_name = $2",
		themeID, specialization); err != nil {
		return fmt.Errorf("next priority: %w", err)
	}
	if err = insertAssignments(ctx, tx, themeID, specialization, studentIDs, next); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit append assignments: %w", err)
	}
	return nil
}

// Remove deletes the matching row if present and reports whether a row was
// actually deleted.
func (r *AssignmentRepository) Remove(ctx context.Context, themeID, specialization, studentID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM theme_specialization_students WHERE theme_id = $1 AND specialization_name = $2 AND student_id = $3",
		themeID, specialization, studentID)
	if err != nil {
		return false, fmt.Errorf("remove assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove assignment result: %w", err)
	}
	return affected > 0, nil
}

// UpdatePriorities rewrites priority_order for existing rows following the
// given order, preserving row identity and created_at, in one transaction.
func (r *AssignmentRepository) UpdatePriorities(ctx context.Context, themeID, specialization string, orderedStudentIDs []string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update priorities: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `UPDATE theme_specialization_students SET priority_order = $4, updated_at = $5
        WHERE theme_id = $1 AND specialization_name = $2 AND student_id = $3`
	now := time.Now().UTC()
	for i, studentID := range orderedStudentIDs {
		if _, err = tx.ExecContext(ctx, query, themeID, specialization, studentID, i, now); err != nil {
			return fmt.Errorf("update priority for %s: %w", studentID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update priorities: %w", err)
	}
	return nil
}

// ListByStudent returns every assignment row referencing the student.
func (r *AssignmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.SpecializationAssignment, error) {
	const query = `SELECT id, theme_id, specialization_name, student_id, priority_order, created_at, updated_at
        FROM theme_specialization_students
        WHERE student_id = $1
        ORDER BY theme_id ASC, specialization_name ASC, priority_order ASC`
	var rows []models.SpecializationAssignment
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("list assignments by student: %w", err)
	}
	return rows, nil
}

// ReplaceSorted rewrites the theme's ledger of ML-sorted specializations.
func (r *AssignmentRepository) ReplaceSorted(ctx context.Context, themeID string, names []string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace ml ledger: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM theme_ml_sorted WHERE theme_id = $1", themeID); err != nil {
		return fmt.Errorf("clear ml ledger: %w", err)
	}
	for _, name := range names {
		if _, err = tx.ExecContext(ctx,
			"INSERT INTO theme_ml_sorted (theme_id, specialization_name) VALUES ($1, $2)", themeID, name); err != nil {
			return fmt.Errorf("insert ml ledger entry %q: %w", name, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace ml ledger: %w", err)
	}
	return nil
}

func insertAssignments(ctx context.Context, tx *sqlx.Tx, themeID, specialization string, studentIDs []string, start int) error {
	const query = `INSERT INTO theme_specialization_students (id, theme_id, specialization_name, student_id, priority_order, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	now := time.Now().UTC()
	for i, studentID := range studentIDs {
		if _, err := tx.ExecContext(ctx, query, uuid.NewString(), themeID, specialization, studentID, start+i, now, now); err != nil {
			return fmt.Errorf("insert assignment %s: %w", studentID, err)
		}
	}
	return nil
}
