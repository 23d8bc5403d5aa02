package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/farmlean/agkaizen/services"
)

var consultUpgrader = websocket.Upgrader{
	ReadBufferSize:  8 * 1024,
	WriteBufferSize: 8 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ConsultStreamHandler runs consultations over a WebSocket, pushing a stage
// event per pipeline step before the final result. One connection can carry
// several consultations in sequence.
type ConsultStreamHandler struct {
	svc    consultRunner
	logger *zap.SugaredLogger
}

func NewConsultStreamHandler(svc consultRunner, logger *zap.SugaredLogger) *ConsultStreamHandler {
	return &ConsultStreamHandler{svc: svc, logger: logger}
}

type wsStageEvent struct {
	Type  string `json:"type"`
	Stage string `json:"stage"`
}

type wsResultEvent struct {
	Type         string                 `json:"type"`
	Consultation *services.Consultation `json:"consultation"`
}

type wsErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (h *ConsultStreamHandler) HandleConsultStream(c *gin.Context) {
	conn, err := consultUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("consult websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		var payload consultPayload
		if err := conn.ReadJSON(&payload); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debugf("consult websocket closed: %v", err)
			}
			return
		}

		req := services.ConsultRequest{
			UserText: payload.UserText,
			History:  normalizeMessages(payload.History),
		}

		consultation, err := h.svc.ConsultWithProgress(c.Request.Context(), req, func(stage string) {
			if writeErr := conn.WriteJSON(wsStageEvent{Type: "stage", Stage: stage}); writeErr != nil {
				h.logger.Debugf("consult websocket stage write failed: %v", writeErr)
			}
		})
		if err != nil {
			message := "consultation failed"
			if errors.Is(err, services.ErrEmptyInput) {
				message = "please describe your issue first"
			} else {
				h.logger.Warnf("streamed consultation failed: %v", err)
			}
			if writeErr := conn.WriteJSON(wsErrorEvent{Type: "error", Error: message}); writeErr != nil {
				return
			}
			continue
		}

		if err := conn.WriteJSON(wsResultEvent{Type: "result", Consultation: consultation}); err != nil {
			return
		}
	}
}
