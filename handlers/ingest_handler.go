package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/edudati/openheal-research/services"
)

// Telemetry chunks carry whole races of tracking samples.
const maxIngestBytes = 10 << 20

type ingestService interface {
	Ingest(ctx context.Context, body []byte) (*services.IngestResult, error)
}

type IngestHandler struct {
	ingestService ingestService
	responder
}

func NewIngestHandler(is ingestService, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{ingestService: is, responder: newResponder(logger)}
}

// Ingest принимает чанк телеметрии от игрового клиента.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIngestBytes))
	if err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			h.errorResponse(w, r, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		h.badRequestResponse(w, r, err)
		return
	}

	result, err := h.ingestService.Ingest(r.Context(), body)
	if err != nil {
		var verr *services.IngestValidationError
		if errors.As(err, &verr) {
			if werr := writeJSON(w, http.StatusBadRequest, jsonResponse{"status": "invalid", "errors": verr.Errors}, nil); werr != nil {
				h.serverErrorResponse(w, r, werr)
			}
			return
		}
		h.serverErrorResponse(w, r, err)
		return
	}

	response := jsonResponse{"status": "ok", "id": result.ID, "received": result.Received}
	if err := writeJSON(w, http.StatusOK, response, nil); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}
