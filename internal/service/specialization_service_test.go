package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/theme-match-api/pkg/errors"
)

func newSpecializationFixture(t *testing.T, themes *fakeThemeRepo) (*SpecializationService, *stubCacheRepo) {
	t.Helper()
	cacheRepo := &stubCacheRepo{}
	cacheSvc := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true)
	return NewSpecializationService(themes, cacheSvc, zap.NewNop()), cacheRepo
}

func TestValidateSpecializationName(t *testing.T) {
	assert.NoError(t, validateSpecializationName("Backend Development"))
	assert.NoError(t, validateSpecializationName("ML-Ops 2"))
	assert.NoError(t, validateSpecializationName(strings.Repeat("x", 100)))

	cases := []string{"", "   ", "Data & AI", "naïve", strings.Repeat("x", 101)}
	for _, name := range cases {
		err := validateSpecializationName(name)
		require.Error(t, err, "expected %q to be rejected", name)
		assert.Equal(t, appErrors.ErrInvalidSpecialization.Code, appErrors.FromError(err).Code)
	}
}

func TestFirstCaseInsensitiveDuplicate(t *testing.T) {
	assert.Equal(t, "", firstCaseInsensitiveDuplicate([]string{"Backend", "Frontend"}))
	assert.Equal(t, "BACKEND", firstCaseInsensitiveDuplicate([]string{"Backend", "BACKEND"}))
}

func TestSpecializationAdd(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", []string{"Backend"}, nil))
	svc, cache := newSpecializationFixture(t, themes)

	theme, err := svc.Add(context.Background(), "t1", "Frontend")
	require.NoError(t, err)
	assert.Equal(t, []string{"Backend", "Frontend"}, theme.Specializations)
	assert.Contains(t, cache.deletedPatterns, "theme:t1:*")

	_, err = svc.Add(context.Background(), "t1", "backend")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateSpecialization.Code, appErrors.FromError(err).Code)

	_, err = svc.Add(context.Background(), "t1", "Data & AI")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidSpecialization.Code, appErrors.FromError(err).Code)
}

func TestSpecializationRemove_CascadesCaseInsensitively(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", []string{"Backend", "Frontend"}, nil))
	svc, _ := newSpecializationFixture(t, themes)

	theme, err := svc.Remove(context.Background(), "t1", "BACKEND")
	require.NoError(t, err)
	assert.Equal(t, []string{"Frontend"}, theme.Specializations)
	// cascade carries the canonical stored casing
	assert.Equal(t, []string{"Backend"}, themes.removedSpecs["t1"])

	_, err = svc.Remove(context.Background(), "t1", "Backend")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidSpecialization.Code, appErrors.FromError(err).Code)
}

func TestSpecializationReplace_CascadesOnlyDropped(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", []string{"Backend", "Frontend"}, nil))
	svc, _ := newSpecializationFixture(t, themes)

	theme, err := svc.Replace(context.Background(), "t1", []string{"backend", "Data"})
	require.NoError(t, err)
	// Backend survives under case folding and keeps its stored casing;
	// only Frontend is cascaded
	assert.Equal(t, []string{"Backend", "Data"}, theme.Specializations)
	assert.Equal(t, []string{"Frontend"}, themes.removedSpecs["t1"])

	_, err = svc.Replace(context.Background(), "t1", []string{"Data", "DATA"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateSpecialization.Code, appErrors.FromError(err).Code)
}

func TestSpecializationReplace_CaseOnlyRenameKeepsRowsReachable(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", []string{"ML"}, nil))
	students := newFakeStudentReader(testStudent("s1", "Alice"), testStudent("s2", "Bob"))
	assignments := newFakeAssignmentRepo(students)
	require.NoError(t, assignments.Replace(context.Background(), "t1", "ML", []string{"s1", "s2"}))

	svc, _ := newSpecializationFixture(t, themes)
	theme, err := svc.Replace(context.Background(), "t1", []string{"ml"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ML"}, theme.Specializations)
	assert.Empty(t, themes.removedSpecs["t1"])

	prioritySvc, _ := newPriorityFixture(t, themes, students, assignments)
	roster, err := prioritySvc.GetSpecializationStudents(context.Background(), "t1", "ml", 0, false)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, "s1", roster[0].StudentID)
	assert.Equal(t, "s2", roster[1].StudentID)
}

func TestSpecializationService_UnknownTheme(t *testing.T) {
	svc, _ := newSpecializationFixture(t, newFakeThemeRepo())

	_, err := svc.Add(context.Background(), "ghost", "Backend")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrThemeNotFound.Code, appErrors.FromError(err).Code)
}
