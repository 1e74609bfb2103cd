package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/theme-match-api/internal/models"
	appErrors "github.com/noah-isme/theme-match-api/pkg/errors"
)

type themeRepository interface {
	List(ctx context.Context, filter models.ThemeFilter) ([]models.Theme, error)
	FindByID(ctx context.Context, id string) (*models.ThemeDetail, error)
	Create(ctx context.Context, theme *models.Theme, specializations, priorityStudents []string) error
	Update(ctx context.Context, theme *models.Theme) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context, ids []string) error
	ReplaceMainList(ctx context.Context, themeID string, studentIDs []string) error
	ReplaceSpecializations(ctx context.Context, themeID string, names, removed []string) error
	ListByStudent(ctx context.Context, studentID string) ([]models.ThemeWithPriority, error)
}

type themeStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Student, error)
	SetActiveAll(ctx context.Context, ids []string, active bool) error
}

// CreateThemeRequest holds payload for creating themes.
type CreateThemeRequest struct {
	Name             string   `json:"name" validate:"required,max=200"`
	Description      string   `json:"description" validate:"max=5000"`
	Author           string   `json:"author" validate:"required,max=100"`
	Specializations  []string `json:"specializations"`
	PriorityStudents []string `json:"priority_students"`
}

// UpdateThemeRequest holds payload for updating a theme's own fields.
type UpdateThemeRequest struct {
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	Author      string `json:"author" validate:"required,max=100"`
}

// ThemeService handles theme CRUD and read-side composition.
type ThemeService struct {
	repo        themeRepository
	students    themeStudentReader
	assignments studentPlacementReader
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewThemeService constructs the theme service.
func NewThemeService(repo themeRepository, students themeStudentReader, assignments studentPlacementReader, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ThemeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ThemeService{repo: repo, students: students, assignments: assignments, cache: cache, validator: validate, logger: logger}
}

// List returns themes matching the text filter.
func (s *ThemeService) List(ctx context.Context, filter models.ThemeFilter) ([]models.Theme, error) {
	themes, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list themes")
	}
	return themes, nil
}

// Get returns the theme aggregate.
func (s *ThemeService) Get(ctx context.Context, id string) (*models.ThemeDetail, error) {
	theme, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrThemeNotFound, "theme not found: "+id)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load theme")
	}
	return theme, nil
}

// Create registers a theme with its specialization set and optional initial
// main priority list. Every referenced student must exist.
func (s *ThemeService) Create(ctx context.Context, req CreateThemeRequest) (*models.ThemeDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid theme payload")
	}
	if dup := firstCaseInsensitiveDuplicate(req.Specializations); dup != "" {
		return nil, appErrors.Clone(appErrors.ErrDuplicateSpecialization, "duplicate specialization: "+dup)
	}
	for _, name := range req.Specializations {
		if err := validateSpecializationName(name); err != nil {
			return nil, err
		}
	}

	if len(req.PriorityStudents) > 0 {
		students, err := s.students.FindByIDs(ctx, req.PriorityStudents)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve priority students")
		}
		if missing := missingIDs(req.PriorityStudents, students); len(missing) > 0 {
			return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "student not found: "+missing[0])
		}
	}

	theme := &models.Theme{
		Name:        req.Name,
		Description: req.Description,
		Author:      req.Author,
	}
	if err := s.repo.Create(ctx, theme, req.Specializations, req.PriorityStudents); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create theme")
	}
	s.logger.Info("theme created", zap.String("id", theme.ID), zap.String("name", theme.Name))
	return s.Get(ctx, theme.ID)
}

// Update modifies a theme's own fields.
func (s *ThemeService) Update(ctx context.Context, id string, req UpdateThemeRequest) (*models.ThemeDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid theme payload")
	}
	theme, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	theme.Name = req.Name
	theme.Description = req.Description
	theme.Author = req.Author
	if err := s.repo.Update(ctx, &theme.Theme); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update theme")
	}
	return theme, nil
}

// Delete removes the theme with every dependent row.
func (s *ThemeService) Delete(ctx context.Context, id string) (*models.ThemeDetail, error) {
	theme, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete theme")
	}
	s.cache.InvalidateTheme(ctx, id)
	s.logger.Info("theme deleted", zap.String("id", id))
	return theme, nil
}

// DeleteMany removes a batch of themes.
func (s *ThemeService) DeleteMany(ctx context.Context, ids []string) error {
	if err := s.repo.DeleteAll(ctx, ids); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete themes")
	}
	for _, id := range ids {
		s.cache.InvalidateTheme(ctx, id)
	}
	return nil
}

// GetThemeStudents returns the main-list students in priority order.
// Inactive students are dropped before the limit is applied when onlyActive
// is set; priorities are recomputed over the rows that remain.
func (s *ThemeService) GetThemeStudents(ctx context.Context, themeID string, limit int, onlyActive bool) ([]models.StudentWithPriority, error) {
	cacheKey := fmt.Sprintf("theme:%s:students:%d:%t", themeID, limit, onlyActive)
	var cached []models.StudentWithPriority
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return cached, nil
	}

	theme, err := s.Get(ctx, themeID)
	if err != nil {
		return nil, err
	}
	students, err := s.students.FindByIDs(ctx, theme.PriorityStudents)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load priority students")
	}
	byID := make(map[string]models.Student, len(students))
	for _, st := range students {
		byID[st.ID] = st
	}

	result := make([]models.StudentWithPriority, 0, len(theme.PriorityStudents))
	for _, id := range theme.PriorityStudents {
		st, ok := byID[id]
		if !ok {
			continue
		}
		if onlyActive && !st.Active {
			continue
		}
		result = append(result, models.StudentWithPriority{
			StudentID:   st.ID,
			StudentName: st.Name,
			Priority:    len(result),
			HardSkill:   st.HardSkill,
			Background:  st.Background,
			Active:      st.Active,
		})
	}
	result = truncate(result, limit)

	_ = s.cache.Set(ctx, cacheKey, result, 0)
	return result, nil
}

// GetStudentThemes returns the themes whose main list contains the student.
func (s *ThemeService) GetStudentThemes(ctx context.Context, studentID string) ([]models.ThemeWithPriority, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "student not found: "+studentID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	themes, err := s.repo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student themes")
	}
	return themes, nil
}

// GetStudentSpecializations maps specialization name to themeId -> priority
// order for every specialization list the student belongs to.
func (s *ThemeService) GetStudentSpecializations(ctx context.Context, studentID string) (map[string]map[string]int, error) {
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "student not found: "+studentID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	assignments, err := s.assignments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student placements")
	}
	out := map[string]map[string]int{}
	for _, a := range assignments {
		byTheme, ok := out[a.SpecializationName]
		if !ok {
			byTheme = map[string]int{}
			out[a.SpecializationName] = byTheme
		}
		byTheme[a.ThemeID] = a.PriorityOrder
	}
	return out, nil
}

// SetStudentsActivity toggles the active flag on every main-list member.
func (s *ThemeService) SetStudentsActivity(ctx context.Context, themeID string, active bool) (*models.ThemeDetail, error) {
	theme, err := s.Get(ctx, themeID)
	if err != nil {
		return nil, err
	}
	if err := s.students.SetActiveAll(ctx, theme.PriorityStudents, active); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to change students activity")
	}
	s.cache.InvalidateTheme(ctx, themeID)
	return theme, nil
}

// truncate caps the slice at limit entries; limit <= 0 means no cap.
func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
