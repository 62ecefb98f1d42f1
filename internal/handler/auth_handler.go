package handler

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	internalutils "crosslister/internal/utils"
	"crosslister/pkg/utils"
)

// TokenRequest API request for issuing an access token
type TokenRequest struct {
	ClientID     string `json:"client_id" binding:"required"`
	ClientSecret string `json:"client_secret" binding:"required"`
}

// AuthHandler issues and refreshes JWT tokens for configured API clients
type AuthHandler struct {
	jwtManager *internalutils.JWTManager
	clients    map[string]string
	expire     time.Duration
}

// NewAuthHandler creates an auth handler. clients maps client id to secret.
func NewAuthHandler(jwtManager *internalutils.JWTManager, clients map[string]string, expire time.Duration) *AuthHandler {
	return &AuthHandler{
		jwtManager: jwtManager,
		clients:    clients,
		expire:     expire,
	}
}

// Token exchanges configured client credentials for an access token
func (h *AuthHandler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid parameters")
		return
	}

	if !h.validCredentials(req.ClientID, req.ClientSecret) {
		utils.ErrorResponse(c, http.StatusUnauthorized, "invalid client credentials")
		return
	}

	accessToken, err := h.jwtManager.GenerateAccessToken(0, req.ClientID, "api")
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "token generation failed")
		return
	}

	refreshToken, err := h.jwtManager.GenerateRefreshToken(0, req.ClientID)
	if err != nil {
		utils.ErrorResponse(c, http.StatusInternalServerError, "token generation failed")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "Bearer",
		"expires_in":    int(h.expire.Seconds()),
	})
}

// RefreshToken exchanges a refresh token for a new access token
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid parameters")
		return
	}

	accessToken, err := h.jwtManager.RefreshAccessToken(req.RefreshToken)
	if err != nil {
		utils.ErrorResponse(c, http.StatusUnauthorized, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"access_token": accessToken,
		"token_type":   "Bearer",
		"expires_in":   int(h.expire.Seconds()),
	})
}

func (h *AuthHandler) validCredentials(clientID, clientSecret string) bool {
	secret, ok := h.clients[clientID]
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(clientSecret)) == 1
}
