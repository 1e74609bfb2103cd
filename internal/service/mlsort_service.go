package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/theme-match-api/internal/models"
	"github.com/noah-isme/theme-match-api/pkg/config"
	appErrors "github.com/noah-isme/theme-match-api/pkg/errors"
)

type mlAssignmentRepository interface {
	ListStudentsOrdered(ctx context.Context, themeID, specialization string) ([]models.SpecializationStudent, error)
	UpdatePriorities(ctx context.Context, themeID, specialization string, orderedStudentIDs []string) error
	ReplaceSorted(ctx context.Context, themeID string, names []string) error
}

type mlStudentPayload struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	HardSkill  string `json:"hardSkill"`
	Background string `json:"background"`
	Interests  string `json:"interests"`
	TimeInWeek string `json:"timeInWeek"`
}

type mlThemePayload struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Author          string   `json:"author"`
	Specializations []string `json:"specializations"`
}

type mlSortRequest struct {
	Students             []mlStudentPayload `json:"students"`
	Theme                mlThemePayload     `json:"theme"`
	TargetSpecialization string             `json:"targetSpecialization"`
}

type mlSortResponse struct {
	SortedStudentIDs []string `json:"sortedStudentIds"`
}

// SortOutcome reports the result of re-ranking one specialization.
type SortOutcome struct {
	Specialization string `json:"specialization"`
	Sorted         bool   `json:"sorted"`
	StudentCount   int    `json:"student_count"`
}

// MLSortService delegates specialization re-ranking to the external scoring
// service. The scorer is advisory: any failure leaves the stored order
// untouched and surfaces as sorted=false, never as an error.
type MLSortService struct {
	themes        themeRepository
	assignments   mlAssignmentRepository
	cache         *CacheService
	metrics       *MetricsService
	client        *http.Client
	baseURL       string
	healthTimeout time.Duration
	logger        *zap.Logger
}

// NewMLSortService constructs an MLSortService with its own HTTP client.
func NewMLSortService(cfg config.MLConfig, themes themeRepository, assignments mlAssignmentRepository, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *MLSortService {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	healthTimeout := cfg.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = 2 * time.Second
	}
	return &MLSortService{
		themes:        themes,
		assignments:   assignments,
		cache:         cache,
		metrics:       metrics,
		client:        &http.Client{Timeout: timeout},
		baseURL:       cfg.BaseURL,
		healthTimeout: healthTimeout,
		logger:        logger,
	}
}

// SortSpecialization re-ranks one specialization's students via the scoring
// service and persists the reconciled order. Lists with fewer than two
// students are skipped.
func (s *MLSortService) SortSpecialization(ctx context.Context, themeID, specialization string) (SortOutcome, error) {
	theme, err := s.themes.FindByID(ctx, themeID)
	if err != nil {
		if err == sql.ErrNoRows {
			return SortOutcome{}, appErrors.Clone(appErrors.ErrThemeNotFound, "theme not found: "+themeID)
		}
		return SortOutcome{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load theme")
	}
	exact, ok := theme.ExactSpecializationName(specialization)
	if !ok {
		return SortOutcome{}, appErrors.Clone(appErrors.ErrInvalidSpecialization,
			fmt.Sprintf("specialization %q not found on theme %s", specialization, themeID))
	}
	outcome, err := s.sortOne(ctx, theme, exact)
	if err != nil {
		return SortOutcome{}, err
	}
	if outcome.Sorted {
		if err := s.assignments.ReplaceSorted(ctx, themeID, appendSorted(theme.MLSorted, exact)); err != nil {
			return SortOutcome{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record sorted specialization")
		}
		s.cache.InvalidateTheme(ctx, themeID)
	}
	return outcome, nil
}

// SortTheme re-ranks every specialization on the theme. Failures are
// isolated per specialization; the ledger is rewritten with the names that
// actually sorted in this run.
func (s *MLSortService) SortTheme(ctx context.Context, themeID string) ([]SortOutcome, error) {
	theme, err := s.themes.FindByID(ctx, themeID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrThemeNotFound, "theme not found: "+themeID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load theme")
	}

	outcomes := make([]SortOutcome, 0, len(theme.Specializations))
	var sortedNames []string
	for _, name := range theme.Specializations {
		outcome, err := s.sortOne(ctx, theme, name)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
		if outcome.Sorted {
			sortedNames = append(sortedNames, name)
		}
	}
	if err := s.assignments.ReplaceSorted(ctx, themeID, sortedNames); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record sorted specializations")
	}
	s.cache.InvalidateTheme(ctx, themeID)
	return outcomes, nil
}

// sortOne runs one scorer round trip. Only repository failures propagate;
// scorer failures degrade to Sorted=false.
func (s *MLSortService) sortOne(ctx context.Context, theme *models.ThemeDetail, specialization string) (SortOutcome, error) {
	outcome := SortOutcome{Specialization: specialization}

	rows, err := s.assignments.ListStudentsOrdered(ctx, theme.ID, specialization)
	if err != nil {
		return outcome, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read specialization list")
	}
	outcome.StudentCount = len(rows)
	if len(rows) < 2 {
		s.metrics.RecordMLSort("skipped")
		return outcome, nil
	}

	sortedIDs, ok := s.requestSort(ctx, theme, specialization, rows)
	if !ok {
		s.metrics.RecordMLSort("failed")
		return outcome, nil
	}

	reconciled := reconcileOrder(rows, sortedIDs)
	if err := s.assignments.UpdatePriorities(ctx, theme.ID, specialization, reconciled); err != nil {
		return outcome, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist sorted order")
	}
	s.metrics.RecordMLSort("sorted")
	outcome.Sorted = true
	return outcome, nil
}

// requestSort performs the POST round trip; any transport, status or decode
// problem is warn-logged and reported as not ok.
func (s *MLSortService) requestSort(ctx context.Context, theme *models.ThemeDetail, specialization string, rows []models.SpecializationStudent) ([]string, bool) {
	students := make([]mlStudentPayload, 0, len(rows))
	for _, row := range rows {
		students = append(students, mlStudentPayload{
			ID:         row.StudentID,
			Name:       row.StudentName,
			HardSkill:  row.HardSkill,
			Background: row.Background,
			Interests:  row.Interests,
			TimeInWeek: row.TimeInWeek,
		})
	}
	payload := mlSortRequest{
		Students: students,
		Theme: mlThemePayload{
			ID:              theme.ID,
			Name:            theme.Name,
			Description:     theme.Description,
			Author:          theme.Author,
			Specializations: theme.Specializations,
		},
		TargetSpecialization: specialization,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.warnSortFailure(theme.ID, specialization, err)
		return nil, false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/sort-specialization", bytes.NewReader(body))
	if err != nil {
		s.warnSortFailure(theme.ID, specialization, err)
		return nil, false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.warnSortFailure(theme.ID, specialization, err)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		io.Copy(io.Discard, resp.Body)
		s.warnSortFailure(theme.ID, specialization, fmt.Errorf("scoring service returned status %d", resp.StatusCode))
		return nil, false
	}

	var decoded mlSortResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		s.warnSortFailure(theme.ID, specialization, err)
		return nil, false
	}
	return decoded.SortedStudentIDs, true
}

func (s *MLSortService) warnSortFailure(themeID, specialization string, err error) {
	s.logger.Warn("ml sort failed, keeping existing order",
		zap.String("theme_id", themeID),
		zap.String("specialization", specialization),
		zap.Error(err))
}

// Health probes the scoring service under the configured health timeout;
// diagnostics only.
func (s *MLSortService) Health(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.healthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices
}

// reconcileOrder maps the scorer's id sequence back onto the stored rows:
// ids the scorer invented are dropped, ids it omitted keep their original
// relative order at the tail.
func reconcileOrder(rows []models.SpecializationStudent, sortedIDs []string) []string {
	known := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		known[row.StudentID] = struct{}{}
	}
	result := make([]string, 0, len(rows))
	placed := make(map[string]struct{}, len(rows))
	for _, id := range sortedIDs {
		if _, ok := known[id]; !ok {
			continue
		}
		if _, dup := placed[id]; dup {
			continue
		}
		result = append(result, id)
		placed[id] = struct{}{}
	}
	for _, row := range rows {
		if _, ok := placed[row.StudentID]; !ok {
			result = append(result, row.StudentID)
		}
	}
	return result
}

func appendSorted(existing []string, name string) []string {
	for _, v := range existing {
		if v == name {
			return existing
		}
	}
	return append(append([]string{}, existing...), name)
}
