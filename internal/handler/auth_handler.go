package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"baria-go/internal/service"
	apperrors "baria-go/pkg/errors"
	"baria-go/pkg/log"
)

// AuthHandler serves admin login and token refresh.
type AuthHandler struct {
	authService service.AuthService
}

func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "AuthHandler", apperrors.Invalidf("username and password are required"))
		return
	}
	pair, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		respondError(c, "AuthHandler", err)
		return
	}
	log.Infof("[AuthHandler] admin %s logged in", req.Username)
	respondData(c, http.StatusOK, pair)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "AuthHandler", apperrors.Invalidf("refresh_token is required"))
		return
	}
	pair, err := h.authService.Refresh(req.RefreshToken)
	if err != nil {
		respondError(c, "AuthHandler", err)
		return
	}
	respondData(c, http.StatusOK, pair)
}
