package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yuresilva1/inss-study-hub/internal/middleware"
	"github.com/yuresilva1/inss-study-hub/internal/model"
	"github.com/yuresilva1/inss-study-hub/internal/response"
	"github.com/yuresilva1/inss-study-hub/internal/service"
	"github.com/yuresilva1/inss-study-hub/internal/validator"
)

// ExamHandler handles exam endpoints of the signed-in user.
type ExamHandler struct {
	examService *service.ExamService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService) *ExamHandler {
	return &ExamHandler{examService: examService}
}

// CreateExam godoc
// POST /api/v1/exams
// Assembles a new practice exam from the selected subjects.
func (h *ExamHandler) CreateExam(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	exam, err := h.examService.CreateExam(c.Request.Context(), userID, req)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": exam})
}

// ListHistory godoc
// GET /api/v1/exams?limit=50
// Lists the user's exams, newest first.
func (h *ExamHandler) ListHistory(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	exams, err := h.examService.ListHistory(c.Request.Context(), userID, limit)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// GetExam godoc
// GET /api/v1/exams/:exam_id
func (h *ExamHandler) GetExam(c *gin.Context) {
	userID, examID, ok := userAndExam(c)
	if !ok {
		return
	}

	exam, err := h.examService.GetExam(c.Request.Context(), userID, examID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"exam": exam})
}

// GetResult godoc
// GET /api/v1/exams/:exam_id/result?only_errors=true
// Returns the review of a finished exam.
func (h *ExamHandler) GetResult(c *gin.Context) {
	userID, examID, ok := userAndExam(c)
	if !ok {
		return
	}

	onlyErrors, _ := strconv.ParseBool(c.DefaultQuery("only_errors", "false"))
	review, err := h.examService.GetResult(c.Request.Context(), userID, examID, onlyErrors)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, review)
}

// FinalizeExam godoc
// POST /api/v1/exams/:exam_id/finalize
// Finishes an exam without a live session, e.g. after the browser was closed.
// Calling it on a finished exam returns the stored result.
func (h *ExamHandler) FinalizeExam(c *gin.Context) {
	userID, examID, ok := userAndExam(c)
	if !ok {
		return
	}

	res, err := h.examService.Finalize(c.Request.Context(), userID, examID)
	if err != nil {
		fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": res})
}

func userAndExam(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return uuid.Nil, uuid.Nil, false
	}
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, uuid.Nil, false
	}
	return userID, examID, true
}

func fail(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Str("code", string(code)).Msg("request failed")
	}
	response.Fail(c, status, code)
}
