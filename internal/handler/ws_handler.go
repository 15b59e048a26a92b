package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/notify"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
	ws "github.com/stemsi/exstem-attempt/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler relays an attempt room to the taker's browser, e.g. the result
// page waiting for manual grading.
type WSHandler struct {
	attempts   *service.AttemptService
	subscriber notify.Subscriber
	log        zerolog.Logger
	upgrader   websocket.Upgrader
	pingEvery  time.Duration
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(attempts *service.AttemptService, subscriber notify.Subscriber, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		attempts:   attempts,
		subscriber: subscriber,
		log:        log.With().Str("component", "ws_handler").Logger(),
		upgrader:   buildUpgrader(allowedOrigins),
		pingEvery:  ws.PingPeriod,
	}
}

// AttemptEvents godoc
// WS /ws/v1/attempts/:attempt_id/events?token=
func (h *WSHandler) AttemptEvents(c *gin.Context) {
	if h.subscriber == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrInternal)
		return
	}
	taker, ok := takerFrom(c)
	if !ok {
		return
	}
	attemptID, ok := paramUUID(c, "attempt_id")
	if !ok {
		return
	}

	// Ownership check before upgrading so failures are plain HTTP errors.
	if _, err := h.attempts.GetAttemptState(c.Request.Context(), attemptID, taker); err != nil {
		failService(c, h.log, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	room := notify.AttemptRoom(attemptID)
	wsLog := h.log.With().Str("attempt_id", attemptID.String()).Str("taker", taker.Key()).Logger()

	events, err := h.subscriber.Subscribe(ctx, room)
	if err != nil {
		wsLog.Error().Err(err).Msg("Subscribe failed")
		_ = ws.WriteError(conn, "subscription failed")
		return
	}
	if err := ws.WriteTyped(conn, ws.ConnectedResponse{Event: ws.EventConnected, Room: string(room)}); err != nil {
		return
	}
	wsLog.Info().Msg("Taker connected")

	// Reader: answers app-level pings and notices the close frame.
	pongs := make(chan struct{}, 1)
	go func() {
		defer cancel()
		ws.KeepReadDeadline(conn)
		for {
			var msg ws.RequestEnvelope
			if err := ws.ReadJSON(conn, &msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				} else {
					wsLog.Debug().Msg("Connection closed")
				}
				return
			}
			if msg.Action == ws.ActionPing {
				select {
				case pongs <- struct{}{}:
				default:
				}
			}
		}
	}()

	ticker := time.NewTicker(h.pingEvery)
	defer ticker.Stop()

	// Writer: the only goroutine that writes to conn.
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			if err := ws.WriteRaw(conn, msg); err != nil {
				wsLog.Debug().Err(err).Msg("Write failed")
				return
			}
		case <-pongs:
			if err := ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong}); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.WritePing(conn); err != nil {
				return
			}
		}
	}
}
