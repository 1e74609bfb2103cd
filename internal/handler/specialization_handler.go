package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/theme-match-api/internal/service"
	appErrors "github.com/noah-isme/theme-match-api/pkg/errors"
	"github.com/noah-isme/theme-match-api/pkg/response"
)

// SpecializationHandler exposes the per-theme specialization registry, the
// per-specialization priority lists and the ML re-ranking endpoints.
type SpecializationHandler struct {
	specs      *service.SpecializationService
	priorities *service.PriorityService
	mlsort     *service.MLSortService
	exports    *service.ExportService
}

// NewSpecializationHandler constructs SpecializationHandler.
func NewSpecializationHandler(specs *service.SpecializationService, priorities *service.PriorityService, mlsort *service.MLSortService, exports *service.ExportService) *SpecializationHandler {
	return &SpecializationHandler{specs: specs, priorities: priorities, mlsort: mlsort, exports: exports}
}

type specializationPayload struct {
	Name string `json:"name" binding:"required"`
}

type specializationsPayload struct {
	Names []string `json:"names" binding:"required"`
}

// Add godoc
// @Summary Register a new specialization on the theme
// @Tags Specializations
// @Accept json
// @Produce json
// @Param themeId path string true "Theme ID"
// @Param payload body specializationPayload true "Specialization name"
// @Success 201 {object} response.Envelope
// @Router /themes/{themeId}/specializations [post]
func (h *SpecializationHandler) Add(c *gin.Context) {
	var req specializationPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	theme, err := h.specs.Add(c.Request.Context(), c.Param("themeId"), req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, theme)
}

// Replace godoc
// @Summary Replace the theme's specialization registry
// @Tags Specializations
// @Accept json
// @Produce json
// @Param themeId path string true "Theme ID"
// @Param payload body specializationsPayload true "Specialization names"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId}/specializations [put]
func (h *SpecializationHandler) Replace(c *gin.Context) {
	var req specializationsPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	theme, err := h.specs.Replace(c.Request.Context(), c.Param("themeId"), req.Names)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme)
}

// Remove godoc
// @Summary Remove a specialization and its priority list
// @Tags Specializations
// @Produce json
// @Param themeId path string true "Theme ID"
// @Param name path string true "Specialization name"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId}/specializations/{name} [delete]
func (h *SpecializationHandler) Remove(c *gin.Context) {
	theme, err := h.specs.Remove(c.Request.Context(), c.Param("themeId"), c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme)
}

// Students godoc
// @Summary Get a specialization's priority list with student details
// @Tags Specializations
// @Produce json
// @Param themeId path string true "Theme ID"
// @Param name path string true "Specialization name"
// @Param limit query int false "Truncate to the first N entries"
// @Param onlyActive query bool false "Drop inactive students before truncation"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId}/specializations/{name}/students [get]
func (h *SpecializationHandler) Students(c *gin.Context) {
	limit, onlyActive := listQuery(c)
	students, err := h.priorities.GetSpecializationStudents(c.Request.Context(), c.Param("themeId"), c.Param("name"), limit, onlyActive)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students)
}

// ReplaceOrder godoc
// @Summary Replace a specialization's priority order
// @Tags Specializations
// @Accept json
// @Produce json
// @Param themeId path string true "Theme ID"
// @Param name path string true "Specialization name"
// @Param payload body idsPayload true "Student ids in priority order"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId}/specializations/{name}/students [put]
func (h *SpecializationHandler) ReplaceOrder(c *gin.Context) {
	var req idsPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	theme, err := h.priorities.ReplaceSpecializationOrder(c.Request.Context(), c.Param("themeId"), c.Param("name"), req.IDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme)
}

// AddStudent godoc
// @Summary Append a student to a specialization's list
// @Tags Specializations
// @Produce json
// @Param themeId path string true "Theme ID"
// @Param name path string true "Specialization name"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId}/specializations/{name}/students/{studentId} [post]
func (h *SpecializationHandler) AddStudent(c *gin.Context) {
	theme, err := h.priorities.AddStudentToSpecialization(c.Request.Context(), c.Param("themeId"), c.Param("name"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme)
}

// RemoveStudent godoc
// @Summary Remove a student from a specialization's list
// @Tags Specializations
// @Produce json
// @Param themeId path string true "Theme ID"
// @Param name path string true "Specialization name"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId}/specializations/{name}/students/{studentId} [delete]
func (h *SpecializationHandler) RemoveStudent(c *gin.Context) {
	theme, removed, err := h.priorities.RemoveStudentFromSpecialization(c.Request.Context(), c.Param("themeId"), c.Param("name"), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme, map[string]interface{}{"removed": removed})
}

// CopyFromTheme godoc
// @Summary Replace a specialization's list with the theme's main list
// @Tags Specializations
// @Produce json
// @Param themeId path string true "Theme ID"
// @Param name path string true "Specialization name"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId}/specializations/{name}/copy-from-theme [put]
func (h *SpecializationHandler) CopyFromTheme(c *gin.Context) {
	theme, err := h.priorities.CopyMainToSpecialization(c.Request.Context(), c.Param("themeId"), c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme)
}

// AddFromTheme godoc
// @Summary Append missing main-list students to a specialization's list
// @Tags Specializations
// @Produce json
// @Param themeId path string true "Theme ID"
// @Param name path string true "Specialization name"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId}/specializations/{name}/add-from-theme [post]
func (h *SpecializationHandler) AddFromTheme(c *gin.Context) {
	theme, err := h.priorities.AddMainToSpecialization(c.Request.Context(), c.Param("themeId"), c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme)
}

// CopyToAll godoc
// @Summary Replace every specialization's list with the theme's main list
// @Tags Specializations
// @Produce json
// @Param themeId path string true "Theme ID"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId}/copy-to-specializations [put]
func (h *SpecializationHandler) CopyToAll(c *gin.Context) {
	theme, err := h.priorities.CopyMainToAllSpecializations(c.Request.Context(), c.Param("themeId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme)
}

// AddToAll godoc
// @Summary Append missing main-list students to every specialization
// @Tags Specializations
// @Produce json
// @Param themeId path string true "Theme ID"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId}/add-to-specializations [post]
func (h *SpecializationHandler) AddToAll(c *gin.Context) {
	theme, err := h.priorities.AddMainToAllSpecializations(c.Request.Context(), c.Param("themeId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme)
}

// SetActivity godoc
// @Summary Change the active flag of every student in a specialization
// @Tags Specializations
// @Accept json
// @Produce json
// @Param themeId path string true "Theme ID"
// @Param name path string true "Specialization name"
// @Param payload body activityPayload true "Activity payload"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId}/specializations/{name}/activity [put]
func (h *SpecializationHandler) SetActivity(c *gin.Context) {
	var req activityPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	theme, err := h.priorities.SetSpecializationActivity(c.Request.Context(), c.Param("themeId"), c.Param("name"), *req.Active)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, theme)
}

// ExportStudents godoc
// @Summary Download a specialization's priority list as CSV or PDF
// @Tags Specializations
// @Produce text/csv
// @Param themeId path string true "Theme ID"
// @Param name path string true "Specialization name"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /themes/{themeId}/specializations/{name}/students/export [get]
func (h *SpecializationHandler) ExportStudents(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.exports.ExportSpecializationStudents(c.Request.Context(), c.Param("themeId"), c.Param("name"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	serveExport(c, result)
}

// MLSort godoc
// @Summary Re-rank a specialization's list via the scoring service
// @Tags ML
// @Produce json
// @Param themeId path string true "Theme ID"
// @Param name path string true "Specialization name"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId}/specializations/{name}/ml-sort [post]
func (h *SpecializationHandler) MLSort(c *gin.Context) {
	outcome, err := h.mlsort.SortSpecialization(c.Request.Context(), c.Param("themeId"), c.Param("name"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcome)
}

// MLSortAll godoc
// @Summary Re-rank every specialization on the theme
// @Tags ML
// @Produce json
// @Param themeId path string true "Theme ID"
// @Success 200 {object} response.Envelope
// @Router /themes/{themeId}/ml-sort-all [post]
func (h *SpecializationHandler) MLSortAll(c *gin.Context) {
	outcomes, err := h.mlsort.SortTheme(c.Request.Context(), c.Param("themeId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, outcomes)
}

// MLHealth godoc
// @Summary Probe the scoring service
// @Tags ML
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /themes/ml-health [get]
func (h *SpecializationHandler) MLHealth(c *gin.Context) {
	response.JSON(c, http.StatusOK, gin.H{"available": h.mlsort.Health(c.Request.Context())})
}
