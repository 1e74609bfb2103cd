package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/noah-isme/theme-match-api/internal/models"
	appErrors "github.com/noah-isme/theme-match-api/pkg/errors"
)

type stubCacheRepo struct {
	deletedPatterns []string
	setKeys         []string
}

func (s *stubCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	return appErrors.ErrCacheMiss
}

func (s *stubCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	s.setKeys = append(s.setKeys, key)
	return nil
}

func (s *stubCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	s.deletedPatterns = append(s.deletedPatterns, pattern)
	return nil
}

type fakeThemeRepo struct {
	themes       map[string]*models.ThemeDetail
	removedSpecs map[string][]string
	listErr      error
}

func newFakeThemeRepo(themes ...*models.ThemeDetail) *fakeThemeRepo {
	repo := &fakeThemeRepo{
		themes:       map[string]*models.ThemeDetail{},
		removedSpecs: map[string][]string{},
	}
	for _, theme := range themes {
		repo.themes[theme.ID] = theme
	}
	return repo
}

func (f *fakeThemeRepo) List(ctx context.Context, filter models.ThemeFilter) ([]models.Theme, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Theme
	for _, theme := range f.themes {
		out = append(out, theme.Theme)
	}
	return out, nil
}

func (f *fakeThemeRepo) FindByID(ctx context.Context, id string) (*models.ThemeDetail, error) {
	theme, ok := f.themes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *theme
	clone.Specializations = append([]string{}, theme.Specializations...)
	clone.PriorityStudents = append([]string{}, theme.PriorityStudents...)
	clone.MLSorted = append([]string{}, theme.MLSorted...)
	return &clone, nil
}

func (f *fakeThemeRepo) Create(ctx context.Context, theme *models.Theme, specializations, priorityStudents []string) error {
	if theme.ID == "" {
		theme.ID = fmt.Sprintf("theme-%d", len(f.themes)+1)
	}
	f.themes[theme.ID] = &models.ThemeDetail{
		Theme:            *theme,
		Specializations:  append([]string{}, specializations...),
		PriorityStudents: append([]string{}, priorityStudents...),
	}
	return nil
}

func (f *fakeThemeRepo) Update(ctx context.Context, theme *models.Theme) error {
	existing, ok := f.themes[theme.ID]
	if !ok {
		return sql.ErrNoRows
	}
	existing.Theme = *theme
	return nil
}

func (f *fakeThemeRepo) Delete(ctx context.Context, id string) error {
	delete(f.themes, id)
	return nil
}

func (f *fakeThemeRepo) DeleteAll(ctx context.Context, ids []string) error {
	for _, id := range ids {
		delete(f.themes, id)
	}
	return nil
}

func (f *fakeThemeRepo) ReplaceMainList(ctx context.Context, themeID string, studentIDs []string) error {
	theme, ok := f.themes[themeID]
	if !ok {
		return sql.ErrNoRows
	}
	theme.PriorityStudents = append([]string{}, studentIDs...)
	return nil
}

func (f *fakeThemeRepo) ReplaceSpecializations(ctx context.Context, themeID string, names, removed []string) error {
	theme, ok := f.themes[themeID]
	if !ok {
		return sql.ErrNoRows
	}
	theme.Specializations = append([]string{}, names...)
	f.removedSpecs[themeID] = append(f.removedSpecs[themeID], removed...)
	return nil
}

func (f *fakeThemeRepo) ListByStudent(ctx context.Context, studentID string) ([]models.ThemeWithPriority, error) {
	var out []models.ThemeWithPriority
	for _, theme := range f.themes {
		for i, id := range theme.PriorityStudents {
			if id == studentID {
				out = append(out, models.ThemeWithPriority{ThemeID: theme.ID, ThemeName: theme.Name, Priority: i})
			}
		}
	}
	return out, nil
}

type fakeStudentReader struct {
	students   map[string]*models.Student
	activeSets [][]string
}

func newFakeStudentReader(students ...*models.Student) *fakeStudentReader {
	repo := &fakeStudentReader{students: map[string]*models.Student{}}
	for _, student := range students {
		repo.students[student.ID] = student
	}
	return repo
}

func (f *fakeStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	student, ok := f.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *student
	return &clone, nil
}

func (f *fakeStudentReader) FindByIDs(ctx context.Context, ids []string) ([]models.Student, error) {
	var out []models.Student
	for _, id := range ids {
		if student, ok := f.students[id]; ok {
			out = append(out, *student)
		}
	}
	return out, nil
}

func (f *fakeStudentReader) SetActiveAll(ctx context.Context, ids []string, active bool) error {
	f.activeSets = append(f.activeSets, ids)
	for _, id := range ids {
		if student, ok := f.students[id]; ok {
			student.Active = active
		}
	}
	return nil
}

// fakeAssignmentRepo keeps ordered student id slices per theme|specialization
// key and joins student fields from the reader.
type fakeAssignmentRepo struct {
	students *fakeStudentReader
	lists    map[string][]string
	sorted   map[string][]string
}

func newFakeAssignmentRepo(students *fakeStudentReader) *fakeAssignmentRepo {
	return &fakeAssignmentRepo{
		students: students,
		lists:    map[string][]string{},
		sorted:   map[string][]string{},
	}
}

func listKey(themeID, specialization string) string {
	return themeID + "|" + specialization
}

func (f *fakeAssignmentRepo) ListOrdered(ctx context.Context, themeID, specialization string) ([]models.SpecializationAssignment, error) {
	ids := f.lists[listKey(themeID, specialization)]
	rows := make([]models.SpecializationAssignment, 0, len(ids))
	for i, id := range ids {
		rows = append(rows, models.SpecializationAssignment{
			ThemeID:            themeID,
			SpecializationName: specialization,
			StudentID:          id,
			PriorityOrder:      i,
		})
	}
	return rows, nil
}

func (f *fakeAssignmentRepo) ListStudentsOrdered(ctx context.Context, themeID, specialization string) ([]models.SpecializationStudent, error) {
	ids := f.lists[listKey(themeID, specialization)]
	rows := make([]models.SpecializationStudent, 0, len(ids))
	for i, id := range ids {
		row := models.SpecializationStudent{StudentID: id, PriorityOrder: i, Active: true}
		if student, ok := f.students.students[id]; ok {
			row.StudentName = student.Name
			row.HardSkill = student.HardSkill
			row.Background = student.Background
			row.Interests = student.Interests
			row.TimeInWeek = student.TimeInWeek
			row.Active = student.Active
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (f *fakeAssignmentRepo) Exists(ctx context.Context, themeID, specialization, studentID string) (bool, error) {
	for _, id := range f.lists[listKey(themeID, specialization)] {
		if id == studentID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAssignmentRepo) Replace(ctx context.Context, themeID, specialization string, studentIDs []string) error {
	f.lists[listKey(themeID, specialization)] = append([]string{}, studentIDs...)
	return nil
}

func (f *fakeAssignmentRepo) AppendAll(ctx context.Context, themeID, specialization string, studentIDs []string) error {
	key := listKey(themeID, specialization)
	f.lists[key] = append(f.lists[key], studentIDs...)
	return nil
}

func (f *fakeAssignmentRepo) Remove(ctx context.Context, themeID, specialization, studentID string) (bool, error) {
	key := listKey(themeID, specialization)
	ids := f.lists[key]
	for i, id := range ids {
		if id == studentID {
			f.lists[key] = append(append([]string{}, ids[:i]...), ids[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAssignmentRepo) UpdatePriorities(ctx context.Context, themeID, specialization string, orderedStudentIDs []string) error {
	f.lists[listKey(themeID, specialization)] = append([]string{}, orderedStudentIDs...)
	return nil
}

func (f *fakeAssignmentRepo) ReplaceSorted(ctx context.Context, themeID string, names []string) error {
	f.sorted[themeID] = append([]string{}, names...)
	return nil
}

func (f *fakeAssignmentRepo) ListByStudent(ctx context.Context, studentID string) ([]models.SpecializationAssignment, error) {
	var out []models.SpecializationAssignment
	for key, ids := range f.lists {
		for i, id := range ids {
			if id != studentID {
				continue
			}
			var themeID, spec string
			for j := 0; j < len(key); j++ {
				if key[j] == '|' {
					themeID, spec = key[:j], key[j+1:]
					break
				}
			}
			out = append(out, models.SpecializationAssignment{
				ThemeID:            themeID,
				SpecializationName: spec,
				StudentID:          id,
				PriorityOrder:      i,
			})
		}
	}
	return out, nil
}

func testStudent(id, name string) *models.Student {
	return &models.Student{
		ID:         id,
		Name:       name,
		HardSkill:  "Go",
		Background: "CS",
		Interests:  "backend",
		TimeInWeek: "10h",
		Active:     true,
	}
}

func testTheme(id string, specs, students []string) *models.ThemeDetail {
	return &models.ThemeDetail{
		Theme: models.Theme{
			ID:     id,
			Name:   "Theme " + id,
			Author: "prof",
		},
		Specializations:  specs,
		PriorityStudents: students,
	}
}
