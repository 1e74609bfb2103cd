package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/theme-match-api/internal/models"
	"github.com/noah-isme/theme-match-api/pkg/config"
	appErrors "github.com/noah-isme/theme-match-api/pkg/errors"
)

func newMLFixture(t *testing.T, baseURL string, themes *fakeThemeRepo, assignments *fakeAssignmentRepo) *MLSortService {
	t.Helper()
	cacheSvc := NewCacheService(&stubCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	cfg := config.MLConfig{BaseURL: baseURL, RequestTimeout: time.Second, HealthTimeout: time.Second}
	return NewMLSortService(cfg, themes, assignments, cacheSvc, NewMetricsService(), zap.NewNop())
}

func TestReconcileOrder(t *testing.T) {
	rows := []models.SpecializationStudent{
		{StudentID: "a"}, {StudentID: "b"}, {StudentID: "c"},
	}
	// unknown "d" dropped, missing "b" appended in original relative order
	assert.Equal(t, []string{"c", "a", "b"}, reconcileOrder(rows, []string{"c", "a", "d"}))
	// duplicates in the response are ignored after the first occurrence
	assert.Equal(t, []string{"b", "a", "c"}, reconcileOrder(rows, []string{"b", "b", "a"}))
	// empty response keeps everything in place
	assert.Equal(t, []string{"a", "b", "c"}, reconcileOrder(rows, nil))
}

func TestSortSpecialization_PersistsReconciledOrder(t *testing.T) {
	var captured mlSortRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sort-specialization", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(mlSortResponse{SortedStudentIDs: []string{"s2", "s1"}})
	}))
	defer server.Close()

	themes := newFakeThemeRepo(testTheme("t1", []string{"Backend"}, nil))
	students := newFakeStudentReader(testStudent("s1", "Alice"), testStudent("s2", "Bob"))
	assignments := newFakeAssignmentRepo(students)
	assignments.lists["t1|Backend"] = []string{"s1", "s2"}
	svc := newMLFixture(t, server.URL, themes, assignments)

	outcome, err := svc.SortSpecialization(context.Background(), "t1", "backend")
	require.NoError(t, err)
	assert.True(t, outcome.Sorted)
	assert.Equal(t, "Backend", outcome.Specialization)
	assert.Equal(t, []string{"s2", "s1"}, assignments.lists["t1|Backend"])
	assert.Equal(t, []string{"Backend"}, assignments.sorted["t1"])

	assert.Equal(t, "Backend", captured.TargetSpecialization)
	require.Len(t, captured.Students, 2)
	assert.Equal(t, "Alice", captured.Students[0].Name)
}

func TestSortSpecialization_FewerThanTwoSkips(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", []string{"Backend"}, nil))
	students := newFakeStudentReader(testStudent("s1", "Alice"))
	assignments := newFakeAssignmentRepo(students)
	assignments.lists["t1|Backend"] = []string{"s1"}
	svc := newMLFixture(t, "http://127.0.0.1:0", themes, assignments)

	outcome, err := svc.SortSpecialization(context.Background(), "t1", "Backend")
	require.NoError(t, err)
	assert.False(t, outcome.Sorted)
	assert.Equal(t, 1, outcome.StudentCount)
	assert.Equal(t, []string{"s1"}, assignments.lists["t1|Backend"])
}

func TestSortSpecialization_ScorerFailureDegrades(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	themes := newFakeThemeRepo(testTheme("t1", []string{"Backend"}, nil))
	students := newFakeStudentReader(testStudent("s1", "Alice"), testStudent("s2", "Bob"))
	assignments := newFakeAssignmentRepo(students)
	assignments.lists["t1|Backend"] = []string{"s1", "s2"}
	svc := newMLFixture(t, server.URL, themes, assignments)

	outcome, err := svc.SortSpecialization(context.Background(), "t1", "Backend")
	require.NoError(t, err)
	assert.False(t, outcome.Sorted)
	assert.Equal(t, []string{"s1", "s2"}, assignments.lists["t1|Backend"])
}

func TestSortSpecialization_UnknownNames(t *testing.T) {
	themes := newFakeThemeRepo(testTheme("t1", []string{"Backend"}, nil))
	students := newFakeStudentReader()
	svc := newMLFixture(t, "http://127.0.0.1:0", themes, newFakeAssignmentRepo(students))

	_, err := svc.SortSpecialization(context.Background(), "ghost", "Backend")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrThemeNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.SortSpecialization(context.Background(), "t1", "Frontend")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidSpecialization.Code, appErrors.FromError(err).Code)
}

func TestSortTheme_IsolatesFailuresAndRewritesLedger(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req mlSortRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.TargetSpecialization == "Frontend" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		ids := make([]string, 0, len(req.Students))
		for i := len(req.Students) - 1; i >= 0; i-- {
			ids = append(ids, req.Students[i].ID)
		}
		json.NewEncoder(w).Encode(mlSortResponse{SortedStudentIDs: ids})
	}))
	defer server.Close()

	theme := testTheme("t1", []string{"Backend", "Frontend", "Data"}, nil)
	theme.MLSorted = []string{"Frontend"}
	themes := newFakeThemeRepo(theme)
	students := newFakeStudentReader(testStudent("s1", "Alice"), testStudent("s2", "Bob"))
	assignments := newFakeAssignmentRepo(students)
	assignments.lists["t1|Backend"] = []string{"s1", "s2"}
	assignments.lists["t1|Frontend"] = []string{"s1", "s2"}
	assignments.lists["t1|Data"] = []string{"s1"}
	svc := newMLFixture(t, server.URL, themes, assignments)

	outcomes, err := svc.SortTheme(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.True(t, outcomes[0].Sorted)
	assert.False(t, outcomes[1].Sorted)
	assert.False(t, outcomes[2].Sorted) // skipped, single student

	assert.Equal(t, []string{"s2", "s1"}, assignments.lists["t1|Backend"])
	assert.Equal(t, []string{"s1", "s2"}, assignments.lists["t1|Frontend"])
	// ledger reflects this run only
	assert.Equal(t, []string{"Backend"}, assignments.sorted["t1"])
}

func TestMLHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	themes := newFakeThemeRepo()
	students := newFakeStudentReader()
	svc := newMLFixture(t, server.URL, themes, newFakeAssignmentRepo(students))
	assert.True(t, svc.Health(context.Background()))

	server.Close()
	assert.False(t, svc.Health(context.Background()))
}

func TestMLHealth_SlowScorerTimesOut(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		server.Close()
	}()

	cacheSvc := NewCacheService(&stubCacheRepo{}, nil, time.Minute, zap.NewNop(), true)
	cfg := config.MLConfig{BaseURL: server.URL, RequestTimeout: time.Minute, HealthTimeout: 50 * time.Millisecond}
	svc := NewMLSortService(cfg, newFakeThemeRepo(), newFakeAssignmentRepo(newFakeStudentReader()), cacheSvc, NewMetricsService(), zap.NewNop())

	start := time.Now()
	assert.False(t, svc.Health(context.Background()))
	assert.Less(t, time.Since(start), 5*time.Second)
}
