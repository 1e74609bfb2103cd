package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/theme-match-api/internal/models"
	appErrors "github.com/noah-isme/theme-match-api/pkg/errors"
)

type stubRoster struct {
	rows []models.StudentWithPriority
	err  error
}

func (s *stubRoster) GetThemeStudents(ctx context.Context, themeID string, limit int, onlyActive bool) ([]models.StudentWithPriority, error) {
	return s.rows, s.err
}

func (s *stubRoster) GetSpecializationStudents(ctx context.Context, themeID, specialization string, limit int, onlyActive bool) ([]models.StudentWithPriority, error) {
	return s.rows, s.err
}

func TestExportThemeStudents_CSV(t *testing.T) {
	roster := &stubRoster{rows: []models.StudentWithPriority{
		{StudentID: "s1", StudentName: "Alice", Priority: 0, HardSkill: "Go", Background: "CS", Active: true},
		{StudentID: "s2", StudentName: "Bob", Priority: 1, HardSkill: "Py", Background: "EE", Active: false},
	}}
	svc := NewExportService(roster, roster, zap.NewNop())

	result, err := svc.ExportThemeStudents(context.Background(), "t1", ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.True(t, strings.HasSuffix(result.Filename, ".csv"))

	lines := strings.Split(strings.TrimSpace(string(result.Payload)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "priority,student_id,name,hard_skill,background,active", lines[0])
	assert.Contains(t, lines[1], "Alice")
	assert.Contains(t, lines[2], "Bob")
}

func TestExportSpecializationStudents_PDF(t *testing.T) {
	roster := &stubRoster{rows: []models.StudentWithPriority{
		{StudentID: "s1", StudentName: "Alice"},
	}}
	svc := NewExportService(roster, roster, zap.NewNop())

	result, err := svc.ExportSpecializationStudents(context.Background(), "t1", "Backend", ExportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.True(t, strings.HasSuffix(result.Filename, ".pdf"))
	assert.NotEmpty(t, result.Payload)
}

func TestExport_UnsupportedFormat(t *testing.T) {
	svc := NewExportService(&stubRoster{}, &stubRoster{}, zap.NewNop())

	_, err := svc.ExportThemeStudents(context.Background(), "t1", ExportFormat("xls"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
