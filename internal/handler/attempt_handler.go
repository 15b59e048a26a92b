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

// AttemptHandler handles taker-facing attempt endpoints.
type AttemptHandler struct {
	attempts *service.AttemptService
	log      zerolog.Logger
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attempts *service.AttemptService, log zerolog.Logger) *AttemptHandler {
	return &AttemptHandler{
		attempts: attempts,
		log:      log.With().Str("component", "attempt_handler").Logger(),
	}
}

// Start godoc
// POST /api/v1/attempts/start
// Opens a new attempt or returns the taker's in-progress one.
func (h *AttemptHandler) Start(c *gin.Context) {
	taker, ok := takerFrom(c)
	if !ok {
		return
	}

	var req model.StartAttemptRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	var classID *int
	if claims := middleware.GetClaims(c); claims != nil {
		classID = claims.StudentClassID()
	}

	res, err := h.attempts.Start(c.Request.Context(), service.StartInput{
		ExamID:   req.ExamID,
		Taker:    taker,
		ClassID:  classID,
		Password: req.Password,
	})
	if err != nil {
		failService(c, h.log, err)
		return
	}

	status := http.StatusCreated
	if res.Resumed {
		status = http.StatusOK
	}
	response.Success(c, status, res)
}

// GetState godoc
// GET /api/v1/attempts/:attempt_id
// Returns everything needed to rebuild the exam page after a reload.
func (h *AttemptHandler) GetState(c *gin.Context) {
	taker, ok := takerFrom(c)
	if !ok {
		return
	}
	attemptID, ok := paramUUID(c, "attempt_id")
	if !ok {
		return
	}

	state, err := h.attempts.GetAttemptState(c.Request.Context(), attemptID, taker)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// RecordResponse godoc
// POST /api/v1/attempts/:attempt_id/responses
func (h *AttemptHandler) RecordResponse(c *gin.Context) {
	taker, ok := takerFrom(c)
	if !ok {
		return
	}
	attemptID, ok := paramUUID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.RecordResponseRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	saved, err := h.attempts.RecordResponse(c.Request.Context(), service.RecordInput{
		AttemptID:  attemptID,
		Taker:      taker,
		QuestionID: req.QuestionID,
		Payload:    req.Payload,
		IsFlagged:  req.IsFlagged,
	})
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"response": saved})
}

// LogTabSwitch godoc
// POST /api/v1/attempts/:attempt_id/tab-switch
func (h *AttemptHandler) LogTabSwitch(c *gin.Context) {
	taker, ok := takerFrom(c)
	if !ok {
		return
	}
	attemptID, ok := paramUUID(c, "attempt_id")
	if !ok {
		return
	}

	var req model.TabSwitchRequest
	if fields := validator.BindOptional(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.attempts.LogTabSwitch(c.Request.Context(), attemptID, taker, req.CurrentQuestionID)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// Submit godoc
// POST /api/v1/attempts/:attempt_id/submit
// Idempotent: submitting a finished attempt returns its final state.
func (h *AttemptHandler) Submit(c *gin.Context) {
	taker, ok := takerFrom(c)
	if !ok {
		return
	}
	attemptID, ok := paramUUID(c, "attempt_id")
	if !ok {
		return
	}

	res, err := h.attempts.Submit(c.Request.Context(), attemptID, taker)
	if err != nil {
		failService(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}
