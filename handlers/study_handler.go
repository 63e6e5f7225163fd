package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/edudati/openheal-research/models"
	"github.com/edudati/openheal-research/services"
	"github.com/go-chi/chi/v5"
)

type studyService interface {
	Create(ctx context.Context, principal services.Principal, input services.CreateStudyInput) (*models.Study, error)
	List(ctx context.Context, principal services.Principal) ([]*models.Study, error)
	Get(ctx context.Context, principal services.Principal, id string) (*models.Study, error)
}

type StudyHandler struct {
	studyService studyService
	responder
}

func NewStudyHandler(studyService studyService, logger *slog.Logger) *StudyHandler {
	return &StudyHandler{studyService: studyService, responder: newResponder(logger)}
}

func (h *StudyHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	studies, err := h.studyService.List(r.Context(), principal)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"studies": studies}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *StudyHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	var input services.CreateStudyInput
	if err := readJSON(w, r, &input); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	study, err := h.studyService.Create(r.Context(), principal, input)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"study": study}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *StudyHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	study, err := h.studyService.Get(r.Context(), principal, chi.URLParam(r, "studyID"))
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"study": study}, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}
