package handlers

import (
	"log/slog"
	"net/http"

	"github.com/edudati/openheal-research/notices"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// WebSocketHandler подключает клиентов к комнате исследования, куда
// рассылаются уведомления о синхронизации.
type WebSocketHandler struct {
	hub          *notices.Hub
	studyService studyService
	upgrader     websocket.Upgrader
	responder
}

// NewWebSocketHandler builds the handler. allowedOrigins of nil or containing
// "*" accept any origin.
func NewWebSocketHandler(hub *notices.Hub, studyService studyService, allowedOrigins []string, logger *slog.Logger) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:          hub,
		studyService: studyService,
		responder:    newResponder(logger),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// ServeWs: /api/v1/admin/ws/studies/{studyID}
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	study, err := h.studyService.Get(r.Context(), principal, chi.URLParam(r, "studyID"))
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже отправил HTTP-ошибку клиенту
		h.logger.Warn("failed to upgrade websocket connection", slog.String("study_id", study.ID), slog.Any("error", err))
		return
	}

	client := notices.NewClient(h.hub, conn, notices.StudyRoom(study.ID))
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()

	h.logger.Debug("websocket client connected", slog.String("room", client.Room()))
}
