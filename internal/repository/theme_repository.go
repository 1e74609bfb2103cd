package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/theme-match-api/internal/models"
)

// ThemeRepository manages persistence for themes, their specialization sets
// and the main priority list.
type ThemeRepository struct {
	db *sqlx.DB
}

// NewThemeRepository constructs a ThemeRepository.
func NewThemeRepository(db *sqlx.DB) *ThemeRepository {
	return &ThemeRepository{db: db}
}

const themeColumns = "id, name, description, author, created_at, updated_at"

// List returns themes matching the filter, OR-combined substring search.
func (r *ThemeRepository) List(ctx context.Context, filter models.ThemeFilter) ([]models.Theme, error) {
	conditions := []string{}
	args := []interface{}{}

	addLike := func(column, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		conditions = append(conditions, fmt.Sprintf("LOWER(%s) LIKE $%d", column, len(args)+1))
		args = append(args, "%"+strings.ToLower(value)+"%")
	}
	addLike("name", filter.Name)
	addLike("description", filter.Description)
	addLike("author", filter.Author)

	query := fmt.Sprintf("SELECT %s FROM themes", themeColumns)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " OR ")
	}
	query += " ORDER BY created_at ASC"

	var themes []models.Theme
	if err := r.db.SelectContext(ctx, &themes, query, args...); err != nil {
		return nil, fmt.Errorf("list themes: %w", err)
	}
	return themes, nil
}

// FindByID loads the full theme aggregate: specializations in stored order,
// main priority list in position order and the ml-sorted ledger.
func (r *ThemeRepository) FindByID(ctx context.Context, id string) (*models.ThemeDetail, error) {
	var theme models.Theme
	query := fmt.Sprintf("SELECT %s FROM themes WHERE id = $1", themeColumns)
	if err := r.db.GetContext(ctx, &theme, query, id); err != nil {
		return nil, err
	}

	detail := &models.ThemeDetail{Theme: theme}
	if err := r.db.SelectContext(ctx, &detail.Specializations,
		"SELECT name FROM theme_specializations WHERE theme_id = $1 ORDER BY position ASC", id); err != nil {
		return nil, fmt.Errorf("load theme specializations: %w", err)
	}
	if err := r.db.SelectContext(ctx, &detail.PriorityStudents,
		"SELECT student_id FROM theme_priority_students WHERE theme_id = $1 ORDER BY position ASC", id); err != nil {
		return nil, fmt.Errorf("load theme priority list: %w", err)
	}
	if err := r.db.SelectContext(ctx, &detail.MLSorted,
		"SELECT specialization_name FROM theme_ml_sorted WHERE theme_id = $1 ORDER BY specialization_name ASC", id); err != nil {
		return nil, fmt.Errorf("load theme ml ledger: %w", err)
	}
	return detail, nil
}

// Create inserts the theme with its specialization set and initial main list
// in one transaction.
func (r *ThemeRepository) Create(ctx context.Context, theme *models.Theme, specializations, priorityStudents []string) (err error) {
	if theme.ID == "" {
		theme.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if theme.CreatedAt.IsZero() {
		theme.CreatedAt = now
	}
	theme.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create theme: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO themes (id, name, description, author, created_at, updated_at)
        VALUES (:id, :name, :description, :author, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, theme); err != nil {
		return fmt.Errorf("create theme: %w", err)
	}
	if err = writeSpecializations(ctx, tx, theme.ID, specializations); err != nil {
		return err
	}
	if err = writeMainList(ctx, tx, theme.ID, priorityStudents); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create theme: %w", err)
	}
	return nil
}

// Update modifies the theme's own fields.
func (r *ThemeRepository) Update(ctx context.Context, theme *models.Theme) error {
	theme.UpdatedAt = time.Now().UTC()
	const query = `UPDATE themes SET name = :name, description = :description, author = :author, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, theme); err != nil {
		return fmt.Errorf("update theme: %w", err)
	}
	return nil
}

// Delete removes a theme and explicitly cascades every dependent row.
func (r *ThemeRepository) Delete(ctx context.Context, id string) error {
	return r.DeleteAll(ctx, []string{id})
}

// DeleteAll removes a batch of themes with their dependent rows in one
// transaction.
func (r *ThemeRepository) DeleteAll(ctx context.Context, ids []string) (err error) {
	if len(ids) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete themes: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range []string{
		"DELETE FROM theme_specialization_students WHERE theme_id IN (?)",
		"DELETE FROM theme_priority_students WHERE theme_id IN (?)",
		"DELETE FROM theme_specializations WHERE theme_id IN (?)",
		"DELETE FROM theme_ml_sorted WHERE theme_id IN (?)",
		"DELETE FROM themes WHERE id IN (?)",
	} {
		var query string
		var args []interface{}
		if query, args, err = sqlx.In(stmt, ids); err != nil {
			return fmt.Errorf("build delete in-query: %w", err)
		}
		query = tx.Rebind(query)
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete themes: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete themes: %w", err)
	}
	return nil
}

// ReplaceMainList rewrites the theme's main priority list in the given order
// and touches the theme's updated_at, all in one transaction.
func (r *ThemeRepository) ReplaceMainList(ctx context.Context, themeID string, studentIDs []string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace main list: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM theme_priority_students WHERE theme_id = $1", themeID); err != nil {
		return fmt.Errorf("clear main list: %w", err)
	}
	if err = writeMainList(ctx, tx, themeID, studentIDs); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "UPDATE themes SET updated_at = $2 WHERE id = $1", themeID, time.Now().UTC()); err != nil {
		return fmt.Errorf("touch theme: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace main list: %w", err)
	}
	return nil
}

// ReplaceSpecializations rewrites the theme's specialization set and cascades
// assignment-row and ledger deletion for the removed names.
func (r *ThemeRepository) ReplaceSpecializations(ctx context.Context, themeID string, names, removed []string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace specializations: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if len(removed) > 0 {
		for _, stmt := range []string{
			"DELETE FROM theme_specialization_students WHERE theme_id = ? AND specialization_name IN (?)",
			"DELETE FROM theme_ml_sorted WHERE theme_id = ? AND specialization_name IN (?)",
		} {
			var query string
			var args []interface{}
			if query, args, err = sqlx.In(stmt, themeID, removed); err != nil {
				return fmt.Errorf("build cascade in-query: %w", err)
			}
			query = tx.Rebind(query)
			if _, err = tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("cascade removed specializations: %w", err)
			}
		}
	}

	if _, err = tx.ExecContext(ctx, "DELETE FROM theme_specializations WHERE theme_id = $1", themeID); err != nil {
		return fmt.Errorf("clear specializations: %w", err)
	}
	if err = writeSpecializations(ctx, tx, themeID, names); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, "UPDATE themes SET updated_at = $2 WHERE id = $1", themeID, time.Now().UTC()); err != nil {
		return fmt.Errorf("touch theme: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace specializations: %w", err)
	}
	return nil
}

// ListByStudent returns the themes whose main list contains the student,
// with the student's position in each.
func (r *ThemeRepository) ListByStudent(ctx context.Context, studentID string) ([]models.ThemeWithPriority, error) {
	const query = `SELECT t.id AS theme_id, t.name AS theme_name, p.position AS priority, t.description, t.author
        FROM theme_priority_students p
        JOIN themes t ON t.id = p.theme_id
        WHERE p.student_id = $1
        ORDER BY t.created_at ASC`
	var themes []models.ThemeWithPriority
	if err := r.db.SelectContext(ctx, &themes, query, studentID); err != nil {
		return nil, fmt.Errorf("list themes by student: %w", err)
	}
	return themes, nil
}

func writeSpecializations(ctx context.Context, tx *sqlx.Tx, themeID string, names []string) error {
	const query = `INSERT INTO theme_specializations (theme_id, name, position) VALUES ($1, $2, $3)`
	for i, name := range names {
		if _, err := tx.ExecContext(ctx, query, themeID, name, i); err != nil {
			return fmt.Errorf("insert specialization %q: %w", name, err)
		}
	}
	return nil
}

func writeMainList(ctx context.Context, tx *sqlx.Tx, themeID string, studentIDs []string) error {
	const query = `INSERT INTO theme_priority_students (theme_id, student_id, position) VALUES ($1, $2, $3)`
	for i, id := range studentIDs {
		if _, err := tx.ExecContext(ctx, query, themeID, id, i); err != nil {
			return fmt.Errorf("insert main list entry %s: %w", id, err)
		}
	}
	return nil
}
