package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
)

// failService maps a service error onto the response envelope. An expired
// attempt is returned with its final state so the client can show results.
func failService(c *gin.Context, log zerolog.Logger, err error) {
	var expired *service.ExpiredError
	switch {
	case errors.As(err, &expired):
		response.FailWithData(c, http.StatusGone, response.ErrAttemptExpired, gin.H{"attempt": expired.Attempt})
	case errors.Is(err, service.ErrExpired):
		response.Fail(c, http.StatusGone, response.ErrAttemptExpired)
	case errors.Is(err, service.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrForbidden):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	case errors.Is(err, service.ErrOutOfWindow):
		response.Fail(c, http.StatusForbidden, response.ErrOutOfWindow)
	case errors.Is(err, service.ErrInvalidState):
		response.Fail(c, http.StatusConflict, response.ErrInvalidState)
	case errors.Is(err, service.ErrLimitReached):
		response.Fail(c, http.StatusConflict, response.ErrLimitReached)
	case errors.Is(err, service.ErrPendingGrading):
		response.Fail(c, http.StatusConflict, response.ErrPendingGrading)
	default:
		log.Error().Err(err).
			Str("request_id", response.RequestID(c)).
			Str("path", c.FullPath()).
			Msg("Unhandled service error")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// paramUUID parses a path parameter, writing INVALID_ID on failure.
func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

// takerFrom returns the authenticated taker, writing 401 when absent.
func takerFrom(c *gin.Context) (model.Taker, bool) {
	taker, ok := middleware.GetTaker(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
	}
	return taker, ok
}
