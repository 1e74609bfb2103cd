package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/theme-match-api/internal/models"
	appErrors "github.com/noah-isme/theme-match-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, error)
	ListByActive(ctx context.Context, active bool) ([]models.Student, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	CreateAll(ctx context.Context, students []*models.Student) error
	Update(ctx context.Context, student *models.Student) error
	SetActive(ctx context.Context, id string, active bool) error
	SetActiveAll(ctx context.Context, ids []string, active bool) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context, ids []string) error
	DeleteInactive(ctx context.Context) error
}

type studentPlacementReader interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.SpecializationAssignment, error)
}

type studentThemeReader interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.ThemeWithPriority, error)
}

// CreateStudentRequest holds payload for creating students.
type CreateStudentRequest struct {
	Name       string `json:"name" validate:"required,max=100"`
	HardSkill  string `json:"hard_skill" validate:"required,max=100"`
	Background string `json:"background" validate:"required,max=2000"`
	Interests  string `json:"interests" validate:"required,max=2000"`
	TimeInWeek string `json:"time_in_week" validate:"max=100"`
}

// UpdateStudentRequest holds payload for updating students.
type UpdateStudentRequest struct {
	Name       string `json:"name" validate:"required,max=100"`
	HardSkill  string `json:"hard_skill" validate:"required,max=100"`
	Background string `json:"background" validate:"required,max=2000"`
	Interests  string `json:"interests" validate:"required,max=2000"`
	TimeInWeek string `json:"time_in_week" validate:"max=100"`
}

// StudentService handles student use-cases.
type StudentService struct {
	repo       studentRepository
	placements studentPlacementReader
	themes     studentThemeReader
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, placements studentPlacementReader, themes studentThemeReader, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, placements: placements, themes: themes, validator: validate, logger: logger}
}

// List returns students matching the text filter.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, error) {
	students, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, nil
}

// ListByActivity returns students filtered on the active flag.
func (s *StudentService) ListByActivity(ctx context.Context, active bool) ([]models.Student, error) {
	students, err := s.repo.ListByActive(ctx, active)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, nil
}

// Get returns the student with its main-list and specialization placements.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "student not found: "+id)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	detail := &models.StudentDetail{
		Student:                  *student,
		ThemePriorities:          map[string]int{},
		SpecializationPriorities: map[string]map[string]int{},
	}

	themes, err := s.themes.ListByStudent(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student themes")
	}
	for _, t := range themes {
		detail.ThemePriorities[t.ThemeID] = t.Priority
	}

	assignments, err := s.placements.ListByStudent(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student placements")
	}
	for _, a := range assignments {
		byTheme, ok := detail.SpecializationPriorities[a.SpecializationName]
		if !ok {
			byTheme = map[string]int{}
			detail.SpecializationPriorities[a.SpecializationName] = byTheme
		}
		byTheme[a.ThemeID] = a.PriorityOrder
	}
	return detail, nil
}

// GetByIDs returns the students for the given ids, failing on the first
// missing one.
func (s *StudentService) GetByIDs(ctx context.Context, ids []string) ([]models.Student, error) {
	students, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	if missing := missingIDs(ids, students); len(missing) > 0 {
		return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "student not found: "+missing[0])
	}
	return orderStudents(ids, students), nil
}

// Create registers a new student, active by default.
func (s *StudentService) Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student := &models.Student{
		Name:       req.Name,
		HardSkill:  req.HardSkill,
		Background: req.Background,
		Interests:  req.Interests,
		TimeInWeek: req.TimeInWeek,
		Active:     true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.logger.Info("student created", zap.String("id", student.ID), zap.String("name", student.Name))
	return student, nil
}

// CreateMany registers a batch of students atomically.
func (s *StudentService) CreateMany(ctx context.Context, reqs []CreateStudentRequest) ([]models.Student, error) {
	students := make([]*models.Student, 0, len(reqs))
	for _, req := range reqs {
		if err := s.validator.Struct(req); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
		}
		students = append(students, &models.Student{
			Name:       req.Name,
			HardSkill:  req.HardSkill,
			Background: req.Background,
			Interests:  req.Interests,
			TimeInWeek: req.TimeInWeek,
			Active:     true,
		})
	}
	if err := s.repo.CreateAll(ctx, students); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create students")
	}
	out := make([]models.Student, 0, len(students))
	for _, st := range students {
		out = append(out, *st)
	}
	return out, nil
}

// Update modifies an existing student record.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.Student, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "student not found: "+id)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	student.Name = req.Name
	student.HardSkill = req.HardSkill
	student.Background = req.Background
	student.Interests = req.Interests
	student.TimeInWeek = req.TimeInWeek
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	return student, nil
}

// SetActivity toggles the active flag on one student.
func (s *StudentService) SetActivity(ctx context.Context, id string, active bool) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrStudentNotFound, "student not found: "+id)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to change student activity")
	}
	student.Active = active
	return student, nil
}

// SetActivityMany toggles the active flag on a set of students, validating
// all ids exist first.
func (s *StudentService) SetActivityMany(ctx context.Context, ids []string, active bool) error {
	students, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load students")
	}
	if missing := missingIDs(ids, students); len(missing) > 0 {
		return appErrors.Clone(appErrors.ErrStudentNotFound, "student not found: "+missing[0])
	}
	if err := s.repo.SetActiveAll(ctx, ids, active); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to change students activity")
	}
	return nil
}

// Delete removes a student together with its priority placements.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrStudentNotFound, "student not found: "+id)
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.logger.Info("student deleted", zap.String("id", id))
	return nil
}

// DeleteMany removes a batch of students with their placements.
func (s *StudentService) DeleteMany(ctx context.Context, ids []string) error {
	if err := s.repo.DeleteAll(ctx, ids); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete students")
	}
	return nil
}

// DeleteInactive removes every inactive student.
func (s *StudentService) DeleteInactive(ctx context.Context) error {
	if err := s.repo.DeleteInactive(ctx); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete inactive students")
	}
	return nil
}

// missingIDs returns the requested ids that did not resolve, in request order.
func missingIDs(requested []string, found []models.Student) []string {
	present := make(map[string]struct{}, len(found))
	for _, s := range found {
		present[s.ID] = struct{}{}
	}
	var missing []string
	for _, id := range requested {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// orderStudents arranges found students following the requested id order.
func orderStudents(requested []string, found []models.Student) []models.Student {
	byID := make(map[string]models.Student, len(found))
	for _, s := range found {
		byID[s.ID] = s
	}
	out := make([]models.Student, 0, len(found))
	for _, id := range requested {
		if s, ok := byID[id]; ok {
			out = append(out, s)
		}
	}
	return out
}
