package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/repository"
	"github.com/stemsi/exstem-attempt/internal/response"
)

// ExamCacheWarmer reloads one exam definition into the read cache.
type ExamCacheWarmer interface {
	Warm(ctx context.Context, id uuid.UUID) error
}

// ExamHandler exposes cache maintenance for exam definitions.
type ExamHandler struct {
	cache ExamCacheWarmer
	log   zerolog.Logger
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(cache ExamCacheWarmer, log zerolog.Logger) *ExamHandler {
	return &ExamHandler{
		cache: cache,
		log:   log.With().Str("component", "exam_handler").Logger(),
	}
}

// RefreshExamCache godoc
// POST /api/v1/admin/exams/:id/refresh-cache
// Re-reads the exam from the authoring database after it was edited.
func (h *ExamHandler) RefreshExamCache(c *gin.Context) {
	examID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	if err := h.cache.Warm(c.Request.Context(), examID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Failed to refresh exam cache")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	h.log.Info().Str("exam_id", examID.String()).Msg("Exam cache refreshed")
	response.Success(c, http.StatusOK, gin.H{"exam_id": examID, "refreshed": true})
}
