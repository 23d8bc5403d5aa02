package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/farmlean/agkaizen/internal/auth"
	"github.com/farmlean/agkaizen/internal/models"
)

// AuthHandler exposes account registration and login.
type AuthHandler struct {
	svc    *auth.Service
	logger *zap.SugaredLogger
}

func NewAuthHandler(svc *auth.Service, logger *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

type registerPayload struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FarmName string `json:"farm_name"`
	Password string `json:"password"`
}

type loginPayload struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type authResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Account   models.Account `json:"account"`
}

func (h *AuthHandler) HandleRegister(c *gin.Context) {
	var payload registerPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "detail": err.Error()})
		return
	}

	result, err := h.svc.Register(c.Request.Context(), auth.RegisterInput{
		Username: payload.Username,
		Email:    payload.Email,
		FarmName: payload.FarmName,
		Password: payload.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUsernameRequired), errors.Is(err, auth.ErrPasswordTooWeak):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, auth.ErrAccountExists), errors.Is(err, auth.ErrEmailExists):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Warnf("register failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register account"})
		}
		return
	}

	c.JSON(http.StatusCreated, authResponse{Token: result.Token, ExpiresAt: result.ExpiresAt, Account: result.Account})
}

func (h *AuthHandler) HandleLogin(c *gin.Context) {
	var payload loginPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "detail": err.Error()})
		return
	}

	result, err := h.svc.Login(c.Request.Context(), auth.LoginInput{
		Identifier: payload.Identifier,
		Password:   payload.Password,
	})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		h.logger.Warnf("login failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to login"})
		return
	}

	c.JSON(http.StatusOK, authResponse{Token: result.Token, ExpiresAt: result.ExpiresAt, Account: result.Account})
}
