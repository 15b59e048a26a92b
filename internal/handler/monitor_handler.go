package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/notify"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // prevent slow queries from blocking the SSE loop
)

// MonitorHandler streams an exam room to instructors over SSE.
type MonitorHandler struct {
	exams      service.ExamCatalog
	monitor    *service.MonitorService
	subscriber notify.Subscriber // nil disables live events; refreshes still run
	log        zerolog.Logger

	refreshEvery   time.Duration
	keepAliveEvery time.Duration
}

func NewMonitorHandler(
	exams service.ExamCatalog,
	monitor *service.MonitorService,
	subscriber notify.Subscriber,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		exams:          exams,
		monitor:        monitor,
		subscriber:     subscriber,
		log:            log.With().Str("component", "monitor_handler").Logger(),
		refreshEvery:   refreshInterval,
		keepAliveEvery: keepAliveInterval,
	}
}

// MonitorExamSSE godoc
// GET /api/v1/admin/exams/:id/monitor
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()
	exam, err := h.exams.GetByID(reqCtx, examID)
	if err != nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	var events <-chan []byte
	if h.subscriber != nil {
		events, err = h.subscriber.Subscribe(reqCtx, notify.ExamRoom(examID))
		if err != nil {
			h.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Failed to subscribe to exam room")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
			return
		}
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Status(http.StatusOK)

	c.SSEvent("message", gin.H{
		"type": "snapshot",
		"data": gin.H{
			"exam": gin.H{
				"id":                 examID,
				"title":              exam.Title,
				"time_limit_minutes": exam.TimeLimitMinutes,
				"total_questions":    len(exam.Questions),
			},
			"progress": h.progress(reqCtx, examID),
		},
	})
	c.Writer.Flush()

	keepAlive := time.NewTicker(h.keepAliveEvery)
	defer keepAlive.Stop()
	refresh := time.NewTicker(h.refreshEvery)
	defer refresh.Stop()

	h.log.Info().Str("exam_id", examID.String()).Msg("Instructor attached to live monitor SSE")

	// Pre-allocate a reusable ping payload (never changes)
	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Instructor disconnected from live monitor SSE")
			return

		case msg, ok := <-events:
			if !ok {
				return
			}
			// Forward the encoded notify.Message as is
			writeSSEData(c, msg)

		case <-refresh.C:
			c.SSEvent("message", gin.H{"type": "refresh", "data": h.progress(reqCtx, examID)})
			c.Writer.Flush()

		case <-keepAlive.C:
			writeSSEData(c, pingPayload)
		}
	}
}

// progress fetches a snapshot with a scoped timeout. A failure yields an
// empty snapshot so the stream stays up.
func (h *MonitorHandler) progress(parent context.Context, examID uuid.UUID) *service.ProgressSnapshot {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()

	snap, err := h.monitor.GetProgress(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to fetch attempt progress")
		return &service.ProgressSnapshot{Attempts: []service.AttemptSnapshot{}}
	}
	return snap
}

func writeSSEData(c *gin.Context, data []byte) {
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(data)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
