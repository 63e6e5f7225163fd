package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/edudati/openheal-research/models"
	"github.com/edudati/openheal-research/services"
	"github.com/go-chi/chi/v5"
)

type participantService interface {
	Create(ctx context.Context, principal services.Principal, input services.CreateParticipantInput) (*models.Participant, []services.Notice, error)
	Detail(ctx context.Context, principal services.Principal, id string) (*services.ParticipantDetail, error)
	List(ctx context.Context, principal services.Principal, input services.ListParticipantsInput) ([]*models.Participant, error)
	Delete(ctx context.Context, principal services.Principal, id string) error
}

type ParticipantHandler struct {
	participantService participantService
	responder
}

func NewParticipantHandler(ps participantService, logger *slog.Logger) *ParticipantHandler {
	return &ParticipantHandler{participantService: ps, responder: newResponder(logger)}
}

// List: ?study=<code>&group=<control|experimental>
func (h *ParticipantHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	participants, err := h.participantService.List(r.Context(), principal, services.ListParticipantsInput{
		StudyCode: q.Get("study"),
		Group:     models.ParticipantGroup(q.Get("group")),
	})
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"participants": participants}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Create регистрирует участника; id берётся из OpenHeal по email. Sync
// notices of the create-time trigger come back in "messages".
func (h *ParticipantHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var input services.CreateParticipantInput
	if err := readJSON(w, r, &input); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	participant, messages, err := h.participantService.Create(r.Context(), principal, input)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if messages == nil {
		messages = []services.Notice{}
	}

	if err := writeJSON(w, http.StatusCreated, jsonResponse{"participant": participant, "messages": messages}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

// Get is the participant page; loading it pulls new matches from OpenHeal.
func (h *ParticipantHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	detail, err := h.participantService.Detail(r.Context(), principal, chi.URLParam(r, "participantID"))
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, detail, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *ParticipantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	if err := h.participantService.Delete(r.Context(), principal, chi.URLParam(r, "participantID")); err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
