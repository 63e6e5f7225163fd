package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/edudati/openheal-research/models"
	"github.com/edudati/openheal-research/services"
)

type authService interface {
	Login(ctx context.Context, input services.LoginInput) (*models.Researcher, string, error)
}

type AuthHandler struct {
	authService authService
	responder
}

func NewAuthHandler(authService authService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, responder: newResponder(logger)}
}

// Login принимает username или email и возвращает JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input services.LoginInput
	if err := readJSON(w, r, &input); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if input.Login == "" || input.Password == "" {
		h.badRequestResponse(w, r, errors.New("login and password are required"))
		return
	}

	researcher, token, err := h.authService.Login(r.Context(), input)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"token": token, "researcher": researcher}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}
