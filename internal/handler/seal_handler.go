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

// SealHandler covers sealing, sealed auto-submit and the resume request
// flow for both takers and instructors.
type SealHandler struct {
	seals *service.SealService
	log   zerolog.Logger
}

// NewSealHandler creates a new SealHandler.
func NewSealHandler(seals *service.SealService, log zerolog.Logger) *SealHandler {
	return &SealHandler{
		seals: seals,
		log:   log.With().Str("component", "seal_handler").Logger(),
	}
}

// ─── Taker ──────────────────────────────────────────────────────────

// Seal godoc
// POST /api/v1/attempts/:attempt_id/seal
func (h *SealHandler) Seal(c *gin.Context) {
	taker, ok := takerFrom(c)
	if !ok {
		return
	}
	attemptID, ok := paramUUID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.SealRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	a, err := h.seals.Seal(c.Request.Context(), service.SealInput{
		AttemptID:           attemptID,
		Taker:               taker,
		Snapshot:            req.Snapshot,
		SealedAt:            req.SealedAt,
		IntegrityHash:       req.IntegrityHash,
		Reason:              req.Reason,
		TimeRemainingAtSeal: req.TimeRemainingAtSeal,
	})
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"attempt_id": a.ID,
		"is_sealed":  a.IsSealed,
		"sealed_at":  a.SealedAt,
	})
}

// AutoSubmitSealed godoc
// POST /api/v1/attempts/:attempt_id/auto-submit-sealed
func (h *SealHandler) AutoSubmitSealed(c *gin.Context) {
	taker, ok := takerFrom(c)
	if !ok {
		return
	}
	attemptID, ok := paramUUID(c, "attempt_id")
	if !ok {
		return
	}

	res, err := h.seals.AutoSubmitSealed(c.Request.Context(), attemptID, taker)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// RequestResume godoc
// POST /api/v1/attempts/:attempt_id/resume-requests
func (h *SealHandler) RequestResume(c *gin.Context) {
	taker, ok := takerFrom(c)
	if !ok {
		return
	}
	attemptID, ok := paramUUID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.ResumeRequestBody
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	rr, err := h.seals.RequestResume(c.Request.Context(), service.ResumeInput{
		AttemptID:           attemptID,
		Taker:               taker,
		ClientTimeRemaining: req.ClientTimeRemaining,
		RequesterName:       req.RequesterName,
		RequesterContact:    req.RequesterContact,
	})
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"request": rr})
}

// GetResumeRequestStatus godoc
// GET /api/v1/attempts/resume-requests/:request_id
func (h *SealHandler) GetResumeRequestStatus(c *gin.Context) {
	taker, ok := takerFrom(c)
	if !ok {
		return
	}
	requestID, ok := paramUUID(c, "request_id")
	if !ok {
		return
	}

	status, err := h.seals.GetResumeRequestStatus(c.Request.Context(), requestID, taker)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}

// ─── Instructor ─────────────────────────────────────────────────────

// ListPending godoc
// GET /api/v1/admin/exams/:id/resume-requests
func (h *SealHandler) ListPending(c *gin.Context) {
	examID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	reqs, err := h.seals.ListPendingResumeRequests(c.Request.Context(), examID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	if reqs == nil {
		reqs = []*model.ResumeRequest{}
	}
	response.Success(c, http.StatusOK, gin.H{"requests": reqs})
}

// Approve godoc
// POST /api/v1/admin/resume-requests/:id/approve
func (h *SealHandler) Approve(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	requestID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	rr, err := h.seals.Approve(c.Request.Context(), requestID, claims.UserID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"request": rr})
}

// Decline godoc
// POST /api/v1/admin/resume-requests/:id/decline
func (h *SealHandler) Decline(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	requestID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	var req model.DeclineResumeRequest
	if fields := validator.BindOptional(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	rr, err := h.seals.Decline(c.Request.Context(), requestID, claims.UserID, req.Reason)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"request": rr})
}
