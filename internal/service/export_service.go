package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/theme-match-api/internal/models"
	appErrors "github.com/noah-isme/theme-match-api/pkg/errors"
	"github.com/noah-isme/theme-match-api/pkg/export"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type rosterReader interface {
	GetThemeStudents(ctx context.Context, themeID string, limit int, onlyActive bool) ([]models.StudentWithPriority, error)
}

type specializationRosterReader interface {
	GetSpecializationStudents(ctx context.Context, themeID, specialization string, limit int, onlyActive bool) ([]models.StudentWithPriority, error)
}

// ExportFormat names a supported download format.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult is a rendered roster ready for download.
type ExportResult struct {
	Payload     []byte
	ContentType string
	Filename    string
}

// ExportService renders theme and specialization rosters for download.
type ExportService struct {
	themes rosterReader
	specs  specializationRosterReader
	csv    csvRenderer
	pdf    pdfRenderer
	logger *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(themes rosterReader, specs specializationRosterReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		themes: themes,
		specs:  specs,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
	}
}

// ExportThemeStudents renders the theme's main-list roster.
func (s *ExportService) ExportThemeStudents(ctx context.Context, themeID string, format ExportFormat) (*ExportResult, error) {
	roster, err := s.themes.GetThemeStudents(ctx, themeID, 0, false)
	if err != nil {
		return nil, err
	}
	title := fmt.Sprintf("Theme %s priority list", themeID)
	filename := fmt.Sprintf("theme-%s-students-%s", themeID, time.Now().UTC().Format("20060102"))
	return s.render(rosterDataset(roster), title, filename, format)
}

// ExportSpecializationStudents renders one specialization's roster.
func (s *ExportService) ExportSpecializationStudents(ctx context.Context, themeID, specialization string, format ExportFormat) (*ExportResult, error) {
	roster, err := s.specs.GetSpecializationStudents(ctx, themeID, specialization, 0, false)
	if err != nil {
		return nil, err
	}
	slug := strings.ReplaceAll(strings.ToLower(specialization), " ", "-")
	title := fmt.Sprintf("Theme %s / %s priority list", themeID, specialization)
	filename := fmt.Sprintf("theme-%s-%s-%s", themeID, slug, time.Now().UTC().Format("20060102"))
	return s.render(rosterDataset(roster), title, filename, format)
}

func (s *ExportService) render(dataset export.Dataset, title, filename string, format ExportFormat) (*ExportResult, error) {
	switch format {
	case ExportFormatCSV:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{Payload: payload, ContentType: "text/csv", Filename: filename + ".csv"}, nil
	case ExportFormatPDF:
		payload, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{Payload: payload, ContentType: "application/pdf", Filename: filename + ".pdf"}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func rosterDataset(roster []models.StudentWithPriority) export.Dataset {
	headers := []string{"priority", "student_id", "name", "hard_skill", "background", "active"}
	rows := make([]map[string]string, 0, len(roster))
	for _, entry := range roster {
		rows = append(rows, map[string]string{
			"priority":   strconv.Itoa(entry.Priority),
			"student_id": entry.StudentID,
			"name":       entry.StudentName,
			"hard_skill": entry.HardSkill,
			"background": entry.Background,
			"active":     strconv.FormatBool(entry.Active),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
