package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/farmlean/agkaizen/services"
)

type consultRunner interface {
	Consult(ctx context.Context, req services.ConsultRequest) (*services.Consultation, error)
	ConsultWithProgress(ctx context.Context, req services.ConsultRequest, progress func(stage string)) (*services.Consultation, error)
}

// ConsultHandler exposes the advisory pipeline over HTTP.
type ConsultHandler struct {
	svc    consultRunner
	logger *zap.SugaredLogger
}

func NewConsultHandler(svc consultRunner, logger *zap.SugaredLogger) *ConsultHandler {
	return &ConsultHandler{svc: svc, logger: logger}
}

type messagePayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type consultPayload struct {
	UserText string           `json:"user_text"`
	History  []messagePayload `json:"history"`
}

// HandleConsult runs one consultation for the posted problem description.
func (h *ConsultHandler) HandleConsult(c *gin.Context) {
	var payload consultPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "detail": err.Error()})
		return
	}

	consultation, err := h.svc.Consult(c.Request.Context(), services.ConsultRequest{
		UserText: payload.UserText,
		History:  normalizeMessages(payload.History),
	})
	if err != nil {
		if errors.Is(err, services.ErrEmptyInput) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "please describe your issue (e.g., irrigation delays, post-harvest spoilage)",
			})
			return
		}
		h.logger.Warnf("consultation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "consultation failed", "detail": err.Error()})
		return
	}

	c.JSON(http.StatusOK, consultation)
}

func normalizeMessages(payload []messagePayload) []services.ChatMessage {
	result := make([]services.ChatMessage, 0, len(payload))
	for _, msg := range payload {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := strings.TrimSpace(msg.Role)
		if role == "" {
			role = "user"
		}
		result = append(result, services.ChatMessage{Role: role, Content: content})
	}
	return result
}
