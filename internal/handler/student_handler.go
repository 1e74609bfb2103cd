package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/theme-match-api/internal/models"
	"github.com/noah-isme/theme-match-api/internal/service"
	appErrors "github.com/noah-isme/theme-match-api/pkg/errors"
	"github.com/noah-isme/theme-match-api/pkg/response"
)

// StudentHandler exposes student endpoints.
type StudentHandler struct {
	students *service.StudentService
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students *service.StudentService) *StudentHandler {
	return &StudentHandler{students: students}
}

type idsPayload struct {
	IDs []string `json:"ids" binding:"required"`
}

type activityPayload struct {
	Active *bool `json:"active" binding:"required"`
}

type idsActivityPayload struct {
	IDs    []string `json:"ids" binding:"required"`
	Active *bool    `json:"active" binding:"required"`
}

// List godoc
// @Summary List students with optional field filters
// @Tags Students
// @Produce json
// @Param name query string false "Substring match on name"
// @Param hardSkill query string false "Substring match on hard skill"
// @Param background query string false "Substring match on background"
// @Param interests query string false "Substring match on interests"
// @Param timeInWeek query string false "Substring match on weekly availability"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	filter := models.StudentFilter{
		Name:       strings.TrimSpace(c.Query("name")),
		HardSkill:  strings.TrimSpace(c.Query("hardSkill")),
		Background: strings.TrimSpace(c.Query("background")),
		Interests:  strings.TrimSpace(c.Query("interests")),
		TimeInWeek: strings.TrimSpace(c.Query("timeInWeek")),
	}
	students, err := h.students.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students)
}

// Get godoc
// @Summary Get a student with its theme and specialization placements
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.students.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student)
}

// GetByIDs godoc
// @Summary Resolve a batch of students by id
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body idsPayload true "Student ids"
// @Success 200 {object} response.Envelope
// @Router /students/by-ids [get]
func (h *StudentHandler) GetByIDs(c *gin.Context) {
	var req idsPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	students, err := h.students.GetByIDs(c.Request.Context(), req.IDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students)
}

// ListActive godoc
// @Summary List active students
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/active [get]
func (h *StudentHandler) ListActive(c *gin.Context) {
	h.listByActivity(c, true)
}

// ListInactive godoc
// @Summary List inactive students
// @Tags Students
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/unactive [get]
func (h *StudentHandler) ListInactive(c *gin.Context) {
	h.listByActivity(c, false)
}

func (h *StudentHandler) listByActivity(c *gin.Context, active bool) {
	students, err := h.students.ListByActivity(c.Request.Context(), active)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students)
}

// Create godoc
// @Summary Create a student
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body service.CreateStudentRequest true "Student payload"
// @Success 201 {object} response.Envelope
// @Router /students [post]
func (h *StudentHandler) Create(c *gin.Context) {
	var req service.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.students.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, student)
}

// CreateBatch godoc
// @Summary Create several students in one transaction
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body []service.CreateStudentRequest true "Student payloads"
// @Success 201 {object} response.Envelope
// @Router /students/batch [post]
func (h *StudentHandler) CreateBatch(c *gin.Context) {
	var reqs []service.CreateStudentRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	students, err := h.students.CreateMany(c.Request.Context(), reqs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, students)
}

// Update godoc
// @Summary Update a student's fields
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body service.UpdateStudentRequest true "Student payload"
// @Success 200 {object} response.Envelope
// @Router /students/{id} [put]
func (h *StudentHandler) Update(c *gin.Context) {
	var req service.UpdateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.students.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student)
}

// SetActivity godoc
// @Summary Change a student's active flag
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body activityPayload true "Activity payload"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/activity [put]
func (h *StudentHandler) SetActivity(c *gin.Context) {
	var req activityPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	student, err := h.students.SetActivity(c.Request.Context(), c.Param("id"), *req.Active)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student)
}

// SetActivityBatch godoc
// @Summary Change the active flag on a batch of students
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body idsActivityPayload true "Activity payload"
// @Success 204 "No Content"
// @Router /students/activity [put]
func (h *StudentHandler) SetActivityBatch(c *gin.Context) {
	var req idsActivityPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.students.SetActivityMany(c.Request.Context(), req.IDs, *req.Active); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Delete a student and all of its placements
// @Tags Students
// @Param id path string true "Student ID"
// @Success 204 "No Content"
// @Router /students/{id} [delete]
func (h *StudentHandler) Delete(c *gin.Context) {
	if err := h.students.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DeleteByIDs godoc
// @Summary Delete a batch of students
// @Tags Students
// @Accept json
// @Param payload body idsPayload true "Student ids"
// @Success 204 "No Content"
// @Router /students/by-ids [delete]
func (h *StudentHandler) DeleteByIDs(c *gin.Context) {
	var req idsPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.students.DeleteMany(c.Request.Context(), req.IDs); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// DeleteInactive godoc
// @Summary Delete every inactive student
// @Tags Students
// @Success 204 "No Content"
// @Router /students/unactive [delete]
func (h *StudentHandler) DeleteInactive(c *gin.Context) {
	if err := h.students.DeleteInactive(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
