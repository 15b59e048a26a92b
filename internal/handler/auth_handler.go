package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/validator"
)

// AuthHandler issues guest tokens. Student and admin tokens come from the
// main exstem backend and are only validated here.
type AuthHandler struct {
	authService *service.AuthService
	log         zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		log:         log.With().Str("component", "auth_handler").Logger(),
	}
}

// GuestToken godoc
// POST /api/v1/auth/guest
// Issues a token for taking exams that allow guests.
func (h *AuthHandler) GuestToken(c *gin.Context) {
	var req model.GuestTokenRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	token, guestID, err := h.authService.GenerateGuestToken(req.Name)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to sign guest token")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"token":    token,
		"guest_id": guestID,
		"name":     req.Name,
	})
}
