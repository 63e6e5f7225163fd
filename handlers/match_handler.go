package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/edudati/openheal-research/models"
	"github.com/edudati/openheal-research/services"
	"github.com/go-chi/chi/v5"
)

type matchService interface {
	List(ctx context.Context, principal services.Principal, input services.ListMatchesInput) ([]*models.MatchRecord, error)
	Get(ctx context.Context, principal services.Principal, id string) (*models.MatchRecord, error)
	Update(ctx context.Context, principal services.Principal, id string, input services.UpdateMatchInput) (*models.MatchRecord, error)
}

type MatchHandler struct {
	matchService matchService
	responder
}

func NewMatchHandler(ms matchService, logger *slog.Logger) *MatchHandler {
	return &MatchHandler{matchService: ms, responder: newResponder(logger)}
}

// List: ?participant=<id>&active=<bool>&used=<bool>
func (h *MatchHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	active, err := queryBool(r, "active")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	used, err := queryBool(r, "used")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	matches, err := h.matchService.List(r.Context(), principal, services.ListMatchesInput{
		ParticipantID: r.URL.Query().Get("participant"),
		IsActive:      active,
		IsUsed:        used,
	})
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"matches": matches}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	match, err := h.matchService.Get(r.Context(), principal, chi.URLParam(r, "matchID"))
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Update accepts any match column; OpenHeal-owned ones are silently kept.
func (h *MatchHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var input services.UpdateMatchInput
	if err := readJSON(w, r, &input); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	match, err := h.matchService.Update(r.Context(), principal, chi.URLParam(r, "matchID"), input)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}
