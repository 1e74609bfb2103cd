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

func newPriorityFixture(t *testing.T, theme *fakeThemeRepo, students *fakeStudentReader, assignments *fakeAssignmentRepo) (*PriorityService, *stubCacheRepo) {
	t.Helper()
	cacheRepo := &stubCacheRepo{}
	cacheSvc := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	return NewPriorityService(theme, students, assignments, cacheSvc, zap.NewNop()), cacheRepo
}

func TestAddStudentToTheme_AppendsAtTail(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", nil, []string{"s1"}))
	students := newFakeStudentReader(testStudent("s1", "Alice"), testStudent("s2", "Bob"))
	svc, cache := newPriorityFixture(t, themes, students, newFakeAssignmentRepo(students))

	theme, err := svc.AddStudentToTheme(context.Background(), "t1", "s2")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, theme.PriorityStudents)
	assert.Contains(t, cache.deletedPatterns, "theme:t1:*")
}

func TestAddStudentToTheme_PresentIsNoop(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", nil, []string{"s1", "s2"}))
	students := newFakeStudentReader(testStudent("s1", "Alice"), testStudent("s2", "Bob"))
	svc, cache := newPriorityFixture(t, themes, students, newFakeAssignmentRepo(students))

	theme, err := svc.AddStudentToTheme(context.Background(), "t1", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, theme.PriorityStudents)
	assert.Empty(t, cache.deletedPatterns)
}

func TestAddStudentToTheme_UnknownStudent(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", nil, nil))
	students := newFakeStudentReader()
	svc, _ := newPriorityFixture(t, themes, students, newFakeAssignmentRepo(students))

	_, err := svc.AddStudentToTheme(context.Background(), "t1", "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStudentNotFound.Code, appErrors.FromError(err).Code)
}

func TestAddStudentsToTheme_SkipsPresentKeepsOrder(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", nil, []string{"s1"}))
	students := newFakeStudentReader(testStudent("s1", "Alice"), testStudent("s2", "Bob"), testStudent("s3", "Cleo"))
	svc, _ := newPriorityFixture(t, themes, students, newFakeAssignmentRepo(students))

	theme, err := svc.AddStudentsToTheme(context.Background(), "t1", []string{"s3", "s1", "s2"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s3", "s2"}, theme.PriorityStudents)
}

func TestReplaceMainOrder_Strict(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", nil, []string{"s1", "s2"}))
	students := newFakeStudentReader(testStudent("s1", "Alice"), testStudent("s2", "Bob"))
	svc, _ := newPriorityFixture(t, themes, students, newFakeAssignmentRepo(students))

	theme, err := svc.ReplaceMainOrder(context.Background(), "t1", []string{"s2", "s1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s1"}, theme.PriorityStudents)

	_, err = svc.ReplaceMainOrder(context.Background(), "t1", []string{"s1", "ghost"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStudentNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.ReplaceMainOrder(context.Background(), "t1", []string{"s1", "s1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateStudent.Code, appErrors.FromError(err).Code)
}

func TestRemoveStudentFromTheme_AbsentIsSilent(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", nil, []string{"s1", "s2"}))
	students := newFakeStudentReader(testStudent("s1", "Alice"), testStudent("s2", "Bob"))
	svc, cache := newPriorityFixture(t, themes, students, newFakeAssignmentRepo(students))

	theme, err := svc.RemoveStudentFromTheme(context.Background(), "t1", "s2")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, theme.PriorityStudents)

	deleted := len(cache.deletedPatterns)
	theme, err = svc.RemoveStudentFromTheme(context.Background(), "t1", "ghost")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, theme.PriorityStudents)
	assert.Len(t, cache.deletedPatterns, deleted)
}

func TestReplaceSpecializationOrder_ValidatesAndInvalidates(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", []string{"Backend"}, nil))
	students := newFakeStudentReader(testStudent("s1", "Alice"), testStudent("s2", "Bob"))
	assignments := newFakeAssignmentRepo(students)
	svc, cache := newPriorityFixture(t, themes, students, assignments)

	_, err := svc.ReplaceSpecializationOrder(context.Background(), "t1", "Frontend", []string{"s1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidSpecialization.Code, appErrors.FromError(err).Code)

	_, err = svc.ReplaceSpecializationOrder(context.Background(), "t1", "backend", []string{"s1", "s1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateStudent.Code, appErrors.FromError(err).Code)

	// name is resolved case-insensitively to the stored casing
	_, err = svc.ReplaceSpecializationOrder(context.Background(), "t1", "BACKEND", []string{"s2", "s1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s1"}, assignments.lists["t1|Backend"])
	assert.Contains(t, cache.deletedPatterns, "theme:t1:*")
}

func TestAddStudentToSpecialization_ExistingTripleIsNoop(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", []string{"Backend"}, nil))
	students := newFakeStudentReader(testStudent("s1", "Alice"))
	assignments := newFakeAssignmentRepo(students)
	assignments.lists["t1|Backend"] = []string{"s1"}
	svc, _ := newPriorityFixture(t, themes, students, assignments)

	_, err := svc.AddStudentToSpecialization(context.Background(), "t1", "Backend", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, assignments.lists["t1|Backend"])
}

func TestRemoveStudentFromSpecialization_ReportsRemoved(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", []string{"Backend"}, nil))
	students := newFakeStudentReader(testStudent("s1", "Alice"))
	assignments := newFakeAssignmentRepo(students)
	assignments.lists["t1|Backend"] = []string{"s1"}
	svc, _ := newPriorityFixture(t, themes, students, assignments)

	_, removed, err := svc.RemoveStudentFromSpecialization(context.Background(), "t1", "Backend", "s1")
	require.NoError(t, err)
	assert.True(t, removed)

	_, removed, err = svc.RemoveStudentFromSpecialization(context.Background(), "t1", "Backend", "s1")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestCopyMainToAllSpecializations(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", []string{"Backend", "Frontend"}, []string{"s1", "s2"}))
	students := newFakeStudentReader(testStudent("s1", "Alice"), testStudent("s2", "Bob"))
	assignments := newFakeAssignmentRepo(students)
	assignments.lists["t1|Backend"] = []string{"s2"}
	svc, _ := newPriorityFixture(t, themes, students, assignments)

	_, err := svc.CopyMainToAllSpecializations(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, assignments.lists["t1|Backend"])
	assert.Equal(t, []string{"s1", "s2"}, assignments.lists["t1|Frontend"])
}

func TestAddMainToSpecialization_AppendsOnlyMissing(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", []string{"Backend"}, []string{"s1", "s2", "s3"}))
	students := newFakeStudentReader(testStudent("s1", "Alice"), testStudent("s2", "Bob"), testStudent("s3", "Cleo"))
	assignments := newFakeAssignmentRepo(students)
	assignments.lists["t1|Backend"] = []string{"s2"}
	svc, _ := newPriorityFixture(t, themes, students, assignments)

	_, err := svc.AddMainToSpecialization(context.Background(), "t1", "Backend")
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s1", "s3"}, assignments.lists["t1|Backend"])
}

func TestGetSpecializationStudents_ActiveBeforeLimit(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", []string{"Backend"}, nil))
	inactive := testStudent("s1", "Alice")
	inactive.Active = false
	students := newFakeStudentReader(inactive, testStudent("s2", "Bob"), testStudent("s3", "Cleo"))
	assignments := newFakeAssignmentRepo(students)
	assignments.lists["t1|Backend"] = []string{"s1", "s2", "s3"}
	svc, _ := newPriorityFixture(t, themes, students, assignments)

	result, err := svc.GetSpecializationStudents(context.Background(), "t1", "Backend", 2, true)
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, "s2", result[0].StudentID)
	assert.Equal(t, 0, result[0].Priority)
	assert.Equal(t, "s3", result[1].StudentID)
	assert.Equal(t, 1, result[1].Priority)
}

func TestSetSpecializationActivity(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", []string{"Backend"}, nil))
	students := newFakeStudentReader(testStudent("s1", "Alice"), testStudent("s2", "Bob"))
	assignments := newFakeAssignmentRepo(students)
	assignments.lists["t1|Backend"] = []string{"s1", "s2"}
	svc, _ := newPriorityFixture(t, themes, students, assignments)

	_, err := svc.SetSpecializationActivity(context.Background(), "t1", "Backend", false)
	require.NoError(t, err)
	require.Len(t, students.activeSets, 1)
	assert.ElementsMatch(t, []string{"s1", "s2"}, students.activeSets[0])
	assert.False(t, students.students["s1"].Active)
}
