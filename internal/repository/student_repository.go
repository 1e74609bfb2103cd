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

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = "id, name, hard_skill, background, interests, time_in_week, active, created_at, updated_at"

// List returns students matching the filter. Non-blank filter fields are
// OR-combined as lower-cased substring matches; a blank filter returns all.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, error) {
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
	addLike("hard_skill", filter.HardSkill)
	addLike("background", filter.Background)
	addLike("interests", filter.Interests)
	addLike("time_in_week", filter.TimeInWeek)

	query := fmt.Sprintf("SELECT %s FROM students", studentColumns)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " OR ")
	}
	query += " ORDER BY created_at ASC"

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	return students, nil
}

// ListByActive returns students filtered on the active flag.
func (r *StudentRepository) ListByActive(ctx context.Context, active bool) ([]models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE active = $1 ORDER BY created_at ASC", studentColumns)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, active); err != nil {
		return nil, fmt.Errorf("list students by active: %w", err)
	}
	return students, nil
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// FindByIDs fetches students whose ids are in the given set. Missing ids are
// simply absent from the result; callers decide whether that is an error.
func (r *StudentRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Student, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(fmt.Sprintf("SELECT %s FROM students WHERE id IN (?)", studentColumns), ids)
	if err != nil {
		return nil, fmt.Errorf("build students in-query: %w", err)
	}
	query = r.db.Rebind(query)
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, fmt.Errorf("find students by ids: %w", err)
	}
	return students, nil
}

// Create inserts a new student record.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	prepareStudent(student)
	const query = `INSERT INTO students (id, name, hard_skill, background, interests, time_in_week, active, created_at, updated_at)
        VALUES (:id, :name, :hard_skill, :background, :interests, :time_in_week, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

// CreateAll inserts a batch of students atomically.
func (r *StudentRepository) CreateAll(ctx context.Context, students []*models.Student) (err error) {
	if len(students) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create students: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO students (id, name, hard_skill, background, interests, time_in_week, active, created_at, updated_at)
        VALUES (:id, :name, :hard_skill, :background, :interests, :time_in_week, :active, :created_at, :updated_at)`
	for _, student := range students {
		prepareStudent(student)
		if _, err = tx.NamedExecContext(ctx, query, student); err != nil {
			return fmt.Errorf("create student %s: %w", student.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create students: %w", err)
	}
	return nil
}

// Update modifies an existing student.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET name = :name, hard_skill = :hard_skill, background = :background,
        interests = :interests, time_in_week = :time_in_week, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// SetActive flips the active flag on one student.
func (r *StudentRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE students SET active = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC()); err != nil {
		return fmt.Errorf("set student activity: %w", err)
	}
	return nil
}

// SetActiveAll flips the active flag on a set of students.
func (r *StudentRepository) SetActiveAll(ctx context.Context, ids []string, active bool) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In("UPDATE students SET active = ?, updated_at = ? WHERE id IN (?)", active, time.Now().UTC(), ids)
	if err != nil {
		return fmt.Errorf("build activity in-query: %w", err)
	}
	query = r.db.Rebind(query)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("set students activity: %w", err)
	}
	return nil
}

// Delete removes a student and explicitly cascades its priority placements
// in the same transaction.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	return r.deleteSet(ctx, []string{id})
}

// DeleteAll removes a batch of students with their placements.
func (r *StudentRepository) DeleteAll(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.deleteSet(ctx, ids)
}

// DeleteInactive removes every inactive student with their placements.
func (r *StudentRepository) DeleteInactive(ctx context.Context) error {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, "SELECT id FROM students WHERE active = false"); err != nil {
		return fmt.Errorf("list inactive students: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	return r.deleteSet(ctx, ids)
}

func (r *StudentRepository) deleteSet(ctx context.Context, ids []string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete students: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range []string{
		"DELETE FROM theme_specialization_students WHERE student_id IN (?)",
		"DELETE FROM theme_priority_students WHERE student_id IN (?)",
		"DELETE FROM students WHERE id IN (?)",
	} {
		var query string
		var args []interface{}
		if query, args, err = sqlx.In(stmt, ids); err != nil {
			return fmt.Errorf("build delete in-query: %w", err)
		}
		query = tx.Rebind(query)
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete students: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete students: %w", err)
	}
	return nil
}

func prepareStudent(student *models.Student) {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
}
