package service

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/theme-match-api/internal/models"
	appErrors "github.com/noah-isme/theme-match-api/pkg/errors"
)

// specializationNamePattern admits latin letters, digits, spaces and hyphens.
var specializationNamePattern = regexp.MustCompile(`^[a-zA-Z0-9\s\-]+$`)

// validateSpecializationName enforces the naming rules shared by theme
// creation and the registry: non-blank, at most 100 characters, restricted
// character set.
func validateSpecializationName(name string) error {
	if strings.TrimSpace(name) == "" {
		return appErrors.Clone(appErrors.ErrInvalidSpecialization, "specialization name must not be blank")
	}
	if len(name) > 100 {
		return appErrors.Clone(appErrors.ErrInvalidSpecialization,
			fmt.Sprintf("specialization name %q exceeds 100 characters", name))
	}
	if !specializationNamePattern.MatchString(name) {
		return appErrors.Clone(appErrors.ErrInvalidSpecialization,
			fmt.Sprintf("specialization name %q contains invalid characters", name))
	}
	return nil
}

// firstCaseInsensitiveDuplicate returns the first name that repeats under
// case folding, or "".
func firstCaseInsensitiveDuplicate(names []string) string {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		folded := strings.ToLower(name)
		if _, ok := seen[folded]; ok {
			return name
		}
		seen[folded] = struct{}{}
	}
	return ""
}

// SpecializationService manages a theme's specialization registry. Removing
// a specialization cascades: its assignment rows and ML ledger entries are
// deleted in the same transaction as the registry rewrite.
type SpecializationService struct {
	themes themeRepository
	cache  *CacheService
	logger *zap.Logger
}

// NewSpecializationService constructs a SpecializationService.
func NewSpecializationService(themes themeRepository, cache *CacheService, logger *zap.Logger) *SpecializationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SpecializationService{themes: themes, cache: cache, logger: logger}
}

func (s *SpecializationService) theme(ctx context.Context, themeID string) (*models.ThemeDetail, error) {
	theme, err := s.themes.FindByID(ctx, themeID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrThemeNotFound, "theme not found: "+themeID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load theme")
	}
	return theme, nil
}

// Add registers a new specialization at the end of the theme's list. A name
// already present under case folding is rejected.
func (s *SpecializationService) Add(ctx context.Context, themeID, name string) (*models.ThemeDetail, error) {
	theme, err := s.theme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	if err := validateSpecializationName(name); err != nil {
		return nil, err
	}
	if theme.HasSpecialization(name) {
		return nil, appErrors.Clone(appErrors.ErrDuplicateSpecialization,
			fmt.Sprintf("specialization %q already exists on theme %s", name, themeID))
	}
	updated := append(append([]string{}, theme.Specializations...), name)
	if err := s.themes.ReplaceSpecializations(ctx, themeID, updated, nil); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to add specialization")
	}
	s.cache.InvalidateTheme(ctx, themeID)
	return s.theme(ctx, themeID)
}

// Remove drops the specialization, matched case-insensitively, along with
// its assignment rows and ML ledger entries.
func (s *SpecializationService) Remove(ctx context.Context, themeID, name string) (*models.ThemeDetail, error) {
	theme, err := s.theme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	exact, ok := theme.ExactSpecializationName(name)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidSpecialization,
			fmt.Sprintf("specialization %q not found on theme %s", name, themeID))
	}
	updated := make([]string, 0, len(theme.Specializations)-1)
	for _, existing := range theme.Specializations {
		if existing != exact {
			updated = append(updated, existing)
		}
	}
	if err := s.themes.ReplaceSpecializations(ctx, themeID, updated, []string{exact}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove specialization")
	}
	s.cache.InvalidateTheme(ctx, themeID)
	s.logger.Info("specialization removed", zap.String("theme_id", themeID), zap.String("specialization", exact))
	return s.theme(ctx, themeID)
}

// Replace rewrites the registry to exactly the given names. Specializations
// absent from the new set are cascaded away; names surviving under the same
// case folding keep their stored casing so their assignment rows stay
// reachable.
func (s *SpecializationService) Replace(ctx context.Context, themeID string, names []string) (*models.ThemeDetail, error) {
	theme, err := s.theme(ctx, themeID)
	if err != nil {
		return nil, err
	}
	if dup := firstCaseInsensitiveDuplicate(names); dup != "" {
		return nil, appErrors.Clone(appErrors.ErrDuplicateSpecialization,
			fmt.Sprintf("duplicate specialization %q", dup))
	}
	for _, name := range names {
		if err := validateSpecializationName(name); err != nil {
			return nil, err
		}
	}
	canonical := make(map[string]string, len(theme.Specializations))
	for _, existing := range theme.Specializations {
		canonical[strings.ToLower(existing)] = existing
	}
	incoming := make(map[string]struct{}, len(names))
	rewritten := make([]string, 0, len(names))
	for _, name := range names {
		folded := strings.ToLower(name)
		incoming[folded] = struct{}{}
		if exact, ok := canonical[folded]; ok {
			rewritten = append(rewritten, exact)
		} else {
			rewritten = append(rewritten, name)
		}
	}
	var removed []string
	for _, existing := range theme.Specializations {
		if _, kept := incoming[strings.ToLower(existing)]; !kept {
			removed = append(removed, existing)
		}
	}
	if err := s.themes.ReplaceSpecializations(ctx, themeID, rewritten, removed); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to replace specializations")
	}
	s.cache.InvalidateTheme(ctx, themeID)
	return s.theme(ctx, themeID)
}
