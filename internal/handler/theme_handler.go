package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/theme-match-api/internal/models"
	"github.com/noah-isme/theme-match-api/internal/service"
	appErrors "github.com/noah-isme/theme-match-api/pkg/errors"
	"github.com/noah-isme/theme-match-api/pkg/response"
)

// ThemeHandler exposes theme endpoints: CRUD, the main priority list and
// roster views.
type ThemeHandler struct {
	themes     *service.ThemeService
	priorities *service.PriorityService
	exports    *service.ExportService
}

// NewThemeHandler constructs ThemeHandler.
func NewThemeHandler(themes *service.ThemeService, priorities *service.PriorityService, exports *service.ExportService) *ThemeHandler {
	return &ThemeHandler{themes: themes, priorities: priorities, exports: exports}
}

func listQuery(c *gin.Context) (limit int, onlyActive bool) {
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	onlyActive = c.Query("onlyActive") == "true"
	return limit, onlyActive
}

// List godoc
// @Summary List themes with optional field filters
// @Tags Themes
// @Produce json
// @Param name query string false "Substring match on name"
// @Param description query string false "Substring match on description"
// @Param author query string false "Substring match on author"
// @Success 200 {object} response.Envelope
// @Router /themes [get]
func (h *ThemeHandler) List(c *gin.Context) {
	filter := models.ThemeFilter{
		Name:        strings.TrimSpace(c.Query("name")),
		Description: strings.TrimSpace(c.Query("description")),
		Author:      strings.TrimSpace(c.Query("author")),
	}
	themes, err := h.themes.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, themes)
}

// Get godoc
// @Summary Get a theme with its specializations and priority lists
// @Tags Themes
// @Produce json
// @Param themeId path string true "Theme ID"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId} [get]
func (h *ThemeHandler) Get(c *gin.Context) {
	theme, err := h.themes.Get(c.Request.Context(), c.Param("themeId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme)
}

// Create godoc
// @Summary Create a theme
// @Tags Themes
// @Accept json
// @Produce json
// @Param payload body service.CreateThemeRequest true "Theme payload"
// @Success 201 {object} response.Envelope
// @Router /themes [post]
func (h *ThemeHandler) Create(c *gin.Context) {
	var req service.CreateThemeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	theme, err := h.themes.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, theme)
}

// Update godoc
// @Summary Update a theme's own fields
// @Tags Themes
// @Accept json
// @Produce json
// @Param themeId path string true "Theme ID"
// @Param payload body service.UpdateThemeRequest true "Theme payload"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId} [put]
func (h *ThemeHandler) Update(c *gin.Context) {
	var req service.UpdateThemeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	theme, err := h.themes.Update(c.Request.Context(), c.Param("themeId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme)
}

// Delete godoc
// @Summary Delete a theme with all of its lists
// @Tags Themes
// @Produce json
// @Param themeId path string true "Theme ID"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId} [delete]
func (h *ThemeHandler) Delete(c *gin.Context) {
	theme, err := h.themes.Delete(c.Request.Context(), c.Param("themeId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme)
}

// DeleteBatch godoc
// @Summary Delete a batch of themes
// @Tags Themes
// @Accept json
// @Param payload body idsPayload true "Theme ids"
// @Success 204 "No Content"
// @Router /themes [delete]
func (h *ThemeHandler) DeleteBatch(c *gin.Context) {
	var req idsPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.themes.DeleteMany(c.Request.Context(), req.IDs); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Students godoc
// @Summary Get the theme's main priority list with student details
// @Tags Themes
// @Produce json
// @Param themeId path string true "Theme ID"
// @Param limit query int false "Truncate to the first N entries"
// @Param onlyActive query bool false "Drop inactive students before truncation"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId}/students [get]
func (h *ThemeHandler) Students(c *gin.Context) {
	limit, onlyActive := listQuery(c)
	students, err := h.themes.GetThemeStudents(c.Request.Context(), c.Param("themeId"), limit, onlyActive)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students)
}

// StudentThemes godoc
// @Summary List the themes referencing a student with its priority in each
// @Tags Themes
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /themes/students/{studentId}/themes [get]
func (h *ThemeHandler) StudentThemes(c *gin.Context) {
	themes, err := h.themes.GetStudentThemes(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, themes)
}

// StudentSpecializations godoc
// @Summary Map a student's specialization placements grouped by theme
// @Tags Themes
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /themes/students/{studentId}/specializations [get]
func (h *ThemeHandler) StudentSpecializations(c *gin.Context) {
	placements, err := h.themes.GetStudentSpecializations(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, placements)
}

// ReplacePriority godoc
// @Summary Replace the main priority list order
// @Tags Themes
// @Accept json
// @Produce json
// @Param themeId path string true "Theme ID"
// @Param payload body idsPayload true "Student ids in priority order"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId}/priority [put]
func (h *ThemeHandler) ReplacePriority(c *gin.Context) {
	var req idsPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	theme, err := h.priorities.ReplaceMainOrder(c.Request.Context(), c.Param("themeId"), req.IDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme)
}

// AddStudent godoc
// @Summary Append a student to the end of the main priority list
// @Tags Themes
// @Produce json
// @Param themeId path string true "Theme ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId}/students/{studentId} [post]
func (h *ThemeHandler) AddStudent(c *gin.Context) {
	theme, err := h.priorities.AddStudentToTheme(c.Request.Context(), c.Param("themeId"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme)
}

// AddStudents godoc
// @Summary Append several students to the main priority list
// @Tags Themes
// @Accept json
// @Produce json
// @Param themeId path string true "Theme ID"
// @Param payload body idsPayload true "Student ids"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId}/students [post]
func (h *ThemeHandler) AddStudents(c *gin.Context) {
	var req idsPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	theme, err := h.priorities.AddStudentsToTheme(c.Request.Context(), c.Param("themeId"), req.IDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme)
}

// RemoveStudent godoc
// @Summary Remove a student from the main priority list
// @Tags Themes
// @Produce json
// @Param themeId path string true "Theme ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId}/students/{studentId} [delete]
func (h *ThemeHandler) RemoveStudent(c *gin.Context) {
	theme, err := h.priorities.RemoveStudentFromTheme(c.Request.Context(), c.Param("themeId"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme)
}

// RemoveStudents godoc
// @Summary Remove several students from the main priority list
// @Tags Themes
// @Accept json
// @Produce json
// @Param themeId path string true "Theme ID"
// @Param payload body idsPayload true "Student ids"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId}/students [delete]
func (h *ThemeHandler) RemoveStudents(c *gin.Context) {
	var req idsPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	theme, err := h.priorities.RemoveStudentsFromTheme(c.Request.Context(), c.Param("themeId"), req.IDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme)
}

// SetStudentsActivity godoc
// @Summary Change the active flag of every student on the main list
// @Tags Themes
// @Accept json
// @Produce json
// @Param themeId path string true "Theme ID"
// @Param payload body activityPayload true "Activity payload"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId}/students/active [put]
func (h *ThemeHandler) SetStudentsActivity(c *gin.Context) {
	var req activityPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	theme, err := h.themes.SetStudentsActivity(c.Request.Context(), c.Param("themeId"), *req.Active)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme)
}

// ExportStudents godoc
// @Summary Download the main priority list as CSV or PDF
// @Tags Themes
// @Produce text/csv
// @Param themeId path string true "Theme ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /themes/{themeId}/students/export [get]
func (h *ThemeHandler) ExportStudents(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.exports.ExportThemeStudents(c.Request.Context(), c.Param("themeId"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, result)
}

func serveExport(c *gin.Context, result *service.ExportResult) {
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Payload)
}
