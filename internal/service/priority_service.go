package service

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/theme-match-api/internal/models"
	appErrors "github.com/noah-isme/theme-match-api/pkg/errors"
)

type assignmentRepository interface {
	ListOrdered(ctx context.Context, themeID, specialization string) ([]models.SpecializationAssignment, error)
	ListStudentsOrdered(ctx context.Context, themeID, specialization string) ([]models.SpecializationStudent, error)
	Exists(ctx context.Context, themeID, specialization, studentID string) (bool, error)
	Replace(ctx context.Context, themeID, specialization string, studentIDs []string) error
	AppendAll(ctx context.Context, themeID, specialization string, studentIDs []string) error
	Remove(ctx context.Context, themeID, specialization, studentID string) (bool, error)
}

// PriorityService maintains the two kinds of ordered, deduplicated student
// lists anchored on a theme: the main list and the per-specialization lists.
type PriorityService struct {
	themes      themeRepository
	students    themeStudentReader
	assignments assignmentRepository
	cache       *CacheService
	logger      *zap.Logger
}

// NewPriorityService constructs the priority list engine.
func NewPriorityService(themes themeRepository, students themeStudentReader, assignments assignmentRepository, cache *CacheService, logger *zap.Logger) *PriorityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PriorityService{themes: themes, students: students, assignments: assignments, cache: cache, logger: logger}
}

func (s *PriorityService) theme(ctx context.Context, themeID string) (*models.ThemeDetail, error) {
	theme, err := s.themes.FindByID(ctx, themeID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrThemeNotFound, "theme not found: "+themeID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load theme")
	}
	return theme, nil
}

func (s *PriorityService) student(ctx context.Context, studentID string) (*models.Student, error) {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "student not found: "+studentID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// resolveSpecialization normalizes a caller-supplied specialization name to
// the theme's canonical stored casing.
func (s *PriorityService) resolveSpecialization(theme *models.ThemeDetail, name string) (string, error) {
	exact, ok := theme.ExactSpecializationName(name)
	if !ok {
		return "", appErrors.Clone(appErrors.ErrInvalidSpecialization,
			fmt.Sprintf("specialization %q not found on theme %s", name, theme.ID))
	}
	return exact, nil
}

// requireStudents validates that every id resolves, failing with the first
// missing one.
func (s *PriorityService) requireStudents(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	students, err := s.students.FindByIDs(ctx, ids)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve students")
	}
	if missing := missingIDs(ids, students); len(missing) > 0 {
		return appErrors.Clone(appErrors.ErrStudentNotFound, "student not found: "+missing[0])
	}
	return nil
}

// AddStudentToTheme appends the student at the end of the main list (lowest
// priority). Already-present students are a no-op.
func (s *PriorityService) AddStudentToTheme(ctx context.Context, themeID, studentID string) (*models.ThemeDetail, error) {
	theme, err := s.theme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	if _, err := s.student(ctx, studentID); err != nil {
		return nil, err
	}
	if theme.HasPriorityStudent(studentID) {
		return theme, nil
	}
	updated := append(append([]string{}, theme.PriorityStudents...), studentID)
	if err := s.themes.ReplaceMainList(ctx, themeID, updated); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update main list")
	}
	s.cache.InvalidateTheme(ctx, themeID)
	return s.theme(ctx, themeID)
}

// AddStudentsToTheme appends the given students in input order, skipping
// those already present. Every id must resolve before anything is written.
func (s *PriorityService) AddStudentsToTheme(ctx context.Context, themeID string, studentIDs []string) (*models.ThemeDetail, error) {
	theme, err := s.theme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	if err := s.requireStudents(ctx, studentIDs); err != nil {
		return nil, err
	}
	updated := append([]string{}, theme.PriorityStudents...)
	appended := 0
	for _, id := range studentIDs {
		if theme.HasPriorityStudent(id) || contains(updated, id) {
			continue
		}
		updated = append(updated, id)
		appended++
	}
	if appended == 0 {
		return theme, nil
	}
	if err := s.themes.ReplaceMainList(ctx, themeID, updated); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update main list")
	}
	s.cache.InvalidateTheme(ctx, themeID)
	s.logger.Info("students appended to main list", zap.String("theme_id", themeID), zap.Int("count", appended))
	return s.theme(ctx, themeID)
}

// ReplaceMainOrder rewrites the main list in exactly the given order. Every
// id must resolve to an existing student and appear only once.
func (s *PriorityService) ReplaceMainOrder(ctx context.Context, themeID string, studentIDs []string) (*models.ThemeDetail, error) {
	if _, err := s.theme(ctx, themeID); err != nil {
		return nil, err
	}
	if dup := firstDuplicate(studentIDs); dup != "" {
		return nil, appErrors.Clone(appErrors.ErrDuplicateStudent, "duplicate student in priority list: "+dup)
	}
	if err := s.requireStudents(ctx, studentIDs); err != nil {
		return nil, err
	}
	if err := s.themes.ReplaceMainList(ctx, themeID, studentIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace main list")
	}
	s.cache.InvalidateTheme(ctx, themeID)
	return s.theme(ctx, themeID)
}

// RemoveStudentFromTheme drops the student from the main list; absent
// students are silently ignored.
func (s *PriorityService) RemoveStudentFromTheme(ctx context.Context, themeID, studentID string) (*models.ThemeDetail, error) {
	return s.RemoveStudentsFromTheme(ctx, themeID, []string{studentID})
}

// RemoveStudentsFromTheme drops the given students from the main list.
func (s *PriorityService) RemoveStudentsFromTheme(ctx context.Context, themeID string, studentIDs []string) (*models.ThemeDetail, error) {
	theme, err := s.theme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	drop := make(map[string]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		drop[id] = struct{}{}
	}
	updated := make([]string, 0, len(theme.PriorityStudents))
	for _, id := range theme.PriorityStudents {
		if _, gone := drop[id]; !gone {
			updated = append(updated, id)
		}
	}
	if len(updated) == len(theme.PriorityStudents) {
		return theme, nil
	}
	if err := s.themes.ReplaceMainList(ctx, themeID, updated); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update main list")
	}
	s.cache.InvalidateTheme(ctx, themeID)
	return s.theme(ctx, themeID)
}

// ReplaceSpecializationOrder rewrites the specialization's rows with dense
// priorities 0..n-1 following the given order.
func (s *PriorityService) ReplaceSpecializationOrder(ctx context.Context, themeID, specialization string, studentIDs []string) (*models.ThemeDetail, error) {
	theme, err := s.theme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	exact, err := s.resolveSpecialization(theme, specialization)
	if err != nil {
		return nil, err
	}
	if dup := firstDuplicate(studentIDs); dup != "" {
		return nil, appErrors.Clone(appErrors.ErrDuplicateStudent, "duplicate student in priority list: "+dup)
	}
	if err := s.requireStudents(ctx, studentIDs); err != nil {
		return nil, err
	}
	if err := s.assignments.Replace(ctx, themeID, exact, studentIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace specialization list")
	}
	s.cache.InvalidateTheme(ctx, themeID)
	return theme, nil
}

// AddStudentToSpecialization appends the student after the current tail of
// the specialization's list. An existing triple is a no-op.
func (s *PriorityService) AddStudentToSpecialization(ctx context.Context, themeID, specialization, studentID string) (*models.ThemeDetail, error) {
	theme, err := s.theme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	exact, err := s.resolveSpecialization(theme, specialization)
	if err != nil {
		return nil, err
	}
	if _, err := s.student(ctx, studentID); err != nil {
		return nil, err
	}
	exists, err := s.assignments.Exists(ctx, themeID, exact, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check assignment")
	}
	if exists {
		return theme, nil
	}
	if err := s.assignments.AppendAll(ctx, themeID, exact, []string{studentID}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append to specialization")
	}
	s.cache.InvalidateTheme(ctx, themeID)
	return theme, nil
}

// RemoveStudentFromSpecialization deletes the matching row if present and
// reports whether a row was actually deleted so callers can warn.
func (s *PriorityService) RemoveStudentFromSpecialization(ctx context.Context, themeID, specialization, studentID string) (*models.ThemeDetail, bool, error) {
	theme, err := s.theme(ctx, themeID)
	if err != nil {
		return nil, false, err
	}
	exact, err := s.resolveSpecialization(theme, specialization)
	if err != nil {
		return nil, false, err
	}
	removed, err := s.assignments.Remove(ctx, themeID, exact, studentID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove from specialization")
	}
	if removed {
		s.cache.InvalidateTheme(ctx, themeID)
	}
	return theme, removed, nil
}

// CopyMainToSpecialization replaces the specialization's list with the main
// list's current order.
func (s *PriorityService) CopyMainToSpecialization(ctx context.Context, themeID, specialization string) (*models.ThemeDetail, error) {
	theme, err := s.theme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	exact, err := s.resolveSpecialization(theme, specialization)
	if err != nil {
		return nil, err
	}
	if err := s.assignments.Replace(ctx, themeID, exact, theme.PriorityStudents); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to copy main list")
	}
	s.cache.InvalidateTheme(ctx, themeID)
	return theme, nil
}

// CopyMainToAllSpecializations replaces every specialization's list with the
// main list's current order.
func (s *PriorityService) CopyMainToAllSpecializations(ctx context.Context, themeID string) (*models.ThemeDetail, error) {
	theme, err := s.theme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	for _, name := range theme.Specializations {
		if err := s.assignments.Replace(ctx, themeID, name, theme.PriorityStudents); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to copy main list to "+name)
		}
	}
	s.cache.InvalidateTheme(ctx, themeID)
	return theme, nil
}

// AddMainToSpecialization appends the main-list students not already present
// in the specialization, continuing its priority numbering. Existing rows
// are untouched.
func (s *PriorityService) AddMainToSpecialization(ctx context.Context, themeID, specialization string) (*models.ThemeDetail, error) {
	theme, err := s.theme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	exact, err := s.resolveSpecialization(theme, specialization)
	if err != nil {
		return nil, err
	}
	if err := s.addMissingFromMain(ctx, theme, exact); err != nil {
		return nil, err
	}
	s.cache.InvalidateTheme(ctx, themeID)
	return theme, nil
}

// AddMainToAllSpecializations runs the additive merge for every
// specialization on the theme.
func (s *PriorityService) AddMainToAllSpecializations(ctx context.Context, themeID string) (*models.ThemeDetail, error) {
	theme, err := s.theme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	for _, name := range theme.Specializations {
		if err := s.addMissingFromMain(ctx, theme, name); err != nil {
			return nil, err
		}
	}
	s.cache.InvalidateTheme(ctx, themeID)
	return theme, nil
}

func (s *PriorityService) addMissingFromMain(ctx context.Context, theme *models.ThemeDetail, specialization string) error {
	rows, err := s.assignments.ListOrdered(ctx, theme.ID, specialization)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read specialization list")
	}
	present := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		present[row.StudentID] = struct{}{}
	}
	var toAdd []string
	for _, id := range theme.PriorityStudents {
		if _, ok := present[id]; !ok {
			toAdd = append(toAdd, id)
		}
	}
	if len(toAdd) == 0 {
		return nil
	}
	if err := s.assignments.AppendAll(ctx, theme.ID, specialization, toAdd); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append main list to "+specialization)
	}
	return nil
}

// GetSpecializationStudents returns the specialization's students in
// priority order. Priorities are recomputed over the returned rows; inactive
// students are dropped before the limit is applied when onlyActive is set.
func (s *PriorityService) GetSpecializationStudents(ctx context.Context, themeID, specialization string, limit int, onlyActive bool) ([]models.StudentWithPriority, error) {
	theme, err := s.theme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	exact, err := s.resolveSpecialization(theme, specialization)
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("theme:%s:spec:%s:students:%d:%t", themeID, exact, limit, onlyActive)
	var cached []models.StudentWithPriority
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return cached, nil
	}

	rows, err := s.assignments.ListStudentsOrdered(ctx, themeID, exact)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read specialization list")
	}
	result := make([]models.StudentWithPriority, 0, len(rows))
	for _, row := range rows {
		if onlyActive && !row.Active {
			continue
		}
		result = append(result, models.StudentWithPriority{
			StudentID:   row.StudentID,
			StudentName: row.StudentName,
			Priority:    len(result),
			HardSkill:   row.HardSkill,
			Background:  row.Background,
			Active:      row.Active,
		})
	}
	result = truncate(result, limit)

	_ = s.cache.Set(ctx, cacheKey, result, 0)
	return result, nil
}

// SetSpecializationActivity toggles the active flag on every student in the
// specialization's list.
func (s *PriorityService) SetSpecializationActivity(ctx context.Context, themeID, specialization string, active bool) (*models.ThemeDetail, error) {
	theme, err := s.theme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	exact, err := s.resolveSpecialization(theme, specialization)
	if err != nil {
		return nil, err
	}
	rows, err := s.assignments.ListOrdered(ctx, themeID, exact)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read specialization list")
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.StudentID)
	}
	if err := s.students.SetActiveAll(ctx, ids, active); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to change students activity")
	}
	s.cache.InvalidateTheme(ctx, themeID)
	return theme, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// firstDuplicate returns the first id appearing more than once, or "".
func firstDuplicate(ids []string) string {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return id
		}
		seen[id] = struct{}{}
	}
	return ""
}
