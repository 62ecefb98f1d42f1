package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	internalutils "crosslister/internal/utils"
)

func newTestAuthHandler() *AuthHandler {
	jwtManager := internalutils.NewJWTManager("test-secret", "crosslister", time.Hour, 24*time.Hour)
	clients := map[string]string{"cli-001": "s3cret"}
	return NewAuthHandler(jwtManager, clients, time.Hour)
}

func TestAuthHandler_Token(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		body           map[string]string
		expectedStatus int
	}{
		{
			name:           "valid credentials",
			body:           map[string]string{"client_id": "cli-001", "client_secret": "s3cret"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "wrong secret",
			body:           map[string]string{"client_id": "cli-001", "client_secret": "wrong"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "unknown client",
			body:           map[string]string{"client_id": "nobody", "client_secret": "s3cret"},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "missing secret",
			body:           map[string]string{"client_id": "cli-001"},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := newTestAuthHandler()
			router := gin.New()
			router.POST("/auth/token", handler.Token)

			jsonBody, _ := json.Marshal(tt.body)
			req, _ := http.NewRequest("POST", "/auth/token", bytes.NewBuffer(jsonBody))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusOK {
				var response map[string]interface{}
				err := json.Unmarshal(w.Body.Bytes(), &response)
				assert.NoError(t, err)

				data := response["data"].(map[string]interface{})
				assert.NotEmpty(t, data["access_token"])
				assert.Equal(t, "Bearer", data["token_type"])
			}
		})
	}
}

func TestAuthHandler_RefreshToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := newTestAuthHandler()
	router := gin.New()
	router.POST("/auth/token", handler.Token)
	router.POST("/auth/refresh", handler.RefreshToken)

	// Obtain a refresh token first.
	jsonBody, _ := json.Marshal(map[string]string{"client_id": "cli-001", "client_secret": "s3cret"})
	req, _ := http.NewRequest("POST", "/auth/token", bytes.NewBuffer(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var tokenResponse map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &tokenResponse))
	refreshToken := tokenResponse["data"].(map[string]interface{})["refresh_token"].(string)

	t.Run("valid refresh token", func(t *testing.T) {
		jsonBody, _ := json.Marshal(map[string]string{"refresh_token": refreshToken})
		req, _ := http.NewRequest("POST", "/auth/refresh", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("garbage refresh token", func(t *testing.T) {
		jsonBody, _ := json.Marshal(map[string]string{"refresh_token": "not-a-token"})
		req, _ := http.NewRequest("POST", "/auth/refresh", bytes.NewBuffer(jsonBody))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
