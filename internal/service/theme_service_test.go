package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/theme-match-api/pkg/errors"
)

func newThemeFixture(t *testing.T, themes *fakeThemeRepo, students *fakeStudentReader, assignments *fakeAssignmentRepo) (*ThemeService, *stubCacheRepo) {
	t.Helper()
	cacheRepo := &stubCacheRepo{}
	cacheSvc := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	return NewThemeService(themes, students, assignments, cacheSvc, nil, zap.NewNop()), cacheRepo
}

func TestThemeCreate(t *testing.T) {
	themes := newFakeThemeRepo()
	students := newFakeStudentReader(testStudent("s1", "Alice"), testStudent("s2", "Bob"))
	svc, _ := newThemeFixture(t, themes, students, newFakeAssignmentRepo(students))

	theme, err := svc.Create(context.Background(), CreateThemeRequest{
		Name:             "Compilers",
		Author:           "prof",
		Specializations:  []string{"Backend", "Frontend"},
		PriorityStudents: []string{"s2", "s1"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, theme.ID)
	assert.Equal(t, []string{"Backend", "Frontend"}, theme.Specializations)
	assert.Equal(t, []string{"s2", "s1"}, theme.PriorityStudents)
}

func TestThemeCreate_Rejections(t *testing.T) {
	themes := newFakeThemeRepo()
	students := newFakeStudentReader(testStudent("s1", "Alice"))
	svc, _ := newThemeFixture(t, themes, students, newFakeAssignmentRepo(students))

	_, err := svc.Create(context.Background(), CreateThemeRequest{Author: "prof"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), CreateThemeRequest{
		Name: "X", Author: "prof", Specializations: []string{"Backend", "backend"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateSpecialization.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), CreateThemeRequest{
		Name: "X", Author: "prof", Specializations: []string{"Data & AI"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidSpecialization.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), CreateThemeRequest{
		Name: "X", Author: "prof", PriorityStudents: []string{"s1", "ghost"},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStudentNotFound.Code, appErrors.FromError(err).Code)
}

func TestThemeUpdate(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", nil, nil))
	students := newFakeStudentReader()
	svc, _ := newThemeFixture(t, themes, students, newFakeAssignmentRepo(students))

	theme, err := svc.Update(context.Background(), "t1", UpdateThemeRequest{Name: "Renamed", Author: "prof"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", theme.Name)

	_, err = svc.Update(context.Background(), "ghost", UpdateThemeRequest{Name: "X", Author: "prof"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrThemeNotFound.Code, appErrors.FromError(err).Code)
}

func TestThemeDelete_ReturnsSnapshotAndInvalidates(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", []string{"Backend"}, []string{"s1"}))
	students := newFakeStudentReader()
	svc, cache := newThemeFixture(t, themes, students, newFakeAssignmentRepo(students))

	theme, err := svc.Delete(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", theme.ID)
	assert.Contains(t, cache.deletedPatterns, "theme:t1:*")

	_, err = svc.Get(context.Background(), "t1")
	require.Error(t, err)
}

func TestGetThemeStudents_ActiveBeforeLimit(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", nil, []string{"s1", "s2", "s3"}))
	inactive := testStudent("s1", "Alice")
	inactive.Active = false
	students := newFakeStudentReader(inactive, testStudent("s2", "Bob"), testStudent("s3", "Cleo"))
	svc, cache := newThemeFixture(t, themes, students, newFakeAssignmentRepo(students))

	result, err := svc.GetThemeStudents(context.Background(), "t1", 2, true)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "s2", result[0].StudentID)
	assert.Equal(t, 0, result[0].Priority)
	assert.Equal(t, "s3", result[1].StudentID)
	assert.Equal(t, 1, result[1].Priority)
	assert.Contains(t, cache.setKeys, "theme:t1:students:2:true")
}

func TestGetStudentThemes(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", nil, []string{"s2", "s1"}))
	students := newFakeStudentReader(testStudent("s1", "Alice"))
	svc, _ := newThemeFixture(t, themes, students, newFakeAssignmentRepo(students))

	result, err := svc.GetStudentThemes(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, "t1", result[0].ThemeID)
	assert.Equal(t, 1, result[0].Priority)

	_, err = svc.GetStudentThemes(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStudentNotFound.Code, appErrors.FromError(err).Code)
}

func TestGetStudentSpecializations_GroupsByName(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", []string{"Backend"}, nil))
	students := newFakeStudentReader(testStudent("s1", "Alice"))
	assignments := newFakeAssignmentRepo(students)
	assignments.lists["t1|Backend"] = []string{"s2", "s1"}
	assignments.lists["t2|Backend"] = []string{"s1"}
	svc, _ := newThemeFixture(t, themes, students, assignments)

	result, err := svc.GetStudentSpecializations(context.Background(), "s1")
	require.NoError(t, err)
	require.Contains(t, result, "Backend")
	assert.Equal(t, 1, result["Backend"]["t1"])
	assert.Equal(t, 0, result["Backend"]["t2"])
}

func TestSetStudentsActivity_TouchesMainListOnly(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", nil, []string{"s1", "s2"}))
	students := newFakeStudentReader(testStudent("s1", "Alice"), testStudent("s2", "Bob"), testStudent("s3", "Cleo"))
	svc, cache := newThemeFixture(t, themes, students, newFakeAssignmentRepo(students))

	_, err := svc.SetStudentsActivity(context.Background(), "t1", false)
	require.NoError(t, err)
	require.Len(t, students.activeSets, 1)
	assert.ElementsMatch(t, []string{"s1", "s2"}, students.activeSets[0])
	assert.True(t, students.students["s3"].Active)
	assert.Contains(t, cache.deletedPatterns, "theme:t1:*")
}
