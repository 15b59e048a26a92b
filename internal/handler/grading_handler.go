package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
)

// GradingHandler handles instructor grading endpoints.
type GradingHandler struct {
	grading *service.GradingService
	log     zerolog.Logger
}

// NewGradingHandler creates a new GradingHandler.
func NewGradingHandler(grading *service.GradingService, log zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		grading: grading,
		log:     log.With().Str("component", "grading_handler").Logger(),
	}
}

// GradeResponse godoc
// POST /api/v1/admin/responses/:id/grade
func (h *GradingHandler) GradeResponse(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	responseID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	var req model.GradeResponseRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	graded, err := h.grading.GradeResponseManually(c.Request.Context(), service.GradeInput{
		ResponseID:   responseID,
		PointsEarned: *req.PointsEarned,
		Feedback:     req.Feedback,
		GraderID:     claims.UserID,
	})
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"response": graded})
}

// GradeBulk godoc
// POST /api/v1/admin/responses/grade
func (h *GradingHandler) GradeBulk(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.BulkGradeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	items := make([]service.GradeInput, len(req.Items))
	for i, it := range req.Items {
		items[i] = service.GradeInput{
			ResponseID:   it.ResponseID,
			PointsEarned: *it.PointsEarned,
			Feedback:     it.Feedback,
			GraderID:     claims.UserID,
		}
	}

	graded, err := h.grading.GradeResponsesBulk(c.Request.Context(), items)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"responses": graded})
}

// Recalculate godoc
// POST /api/v1/admin/attempts/:id/recalculate
func (h *GradingHandler) Recalculate(c *gin.Context) {
	attemptID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	a, err := h.grading.RecalculateAttemptScore(c.Request.Context(), attemptID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": a})
}

// Finalize godoc
// POST /api/v1/admin/attempts/:id/finalize
func (h *GradingHandler) Finalize(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	attemptID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	var req model.FinalizeAttemptRequest
	if fields := validator.BindOptional(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	a, err := h.grading.Finalize(c.Request.Context(), attemptID, req.Feedback, claims.UserID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": a})
}
