package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "characterchat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	v, err := NewOpenAPIValidator()
	require.NoError(t, err)

	r := gin.New()
	r.Use(apperrors.ErrorHandler(), v.Middleware())
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.POST("/api/v1/characters", ok)
	r.PATCH("/api/v1/characters/:id", ok)
	r.GET("/api/v1/characters/export", ok)
	r.POST("/api/v1/characters/import", ok)
	return r
}

func TestMiddleware(t *testing.T) {
	r := setupRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"valid create", http.MethodPost, "/api/v1/characters", `{"name":"Ada","description":"Mathematician"}`, http.StatusOK},
		{"missing description", http.MethodPost, "/api/v1/characters", `{"name":"Ada"}`, http.StatusBadRequest},
		{"empty name", http.MethodPost, "/api/v1/characters", `{"name":"","description":"x"}`, http.StatusBadRequest},
		{"wrong type", http.MethodPost, "/api/v1/characters", `{"name":7,"description":"x"}`, http.StatusBadRequest},
		{"valid patch", http.MethodPatch, "/api/v1/characters/abc", `{"personality":"curious"}`, http.StatusOK},
		{"empty patch", http.MethodPatch, "/api/v1/characters/abc", `{}`, http.StatusBadRequest},
		{"export format", http.MethodGet, "/api/v1/characters/export?format=yaml", "", http.StatusOK},
		{"bad export format", http.MethodGet, "/api/v1/characters/export?format=xml", "", http.StatusBadRequest},
		{"undescribed route", http.MethodPost, "/api/v1/characters/import", `not json`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			if tt.want == http.StatusBadRequest {
				assert.Contains(t, w.Body.String(), "INVALID_REQUEST")
			}
		})
	}
}

func TestNewValidator_RejectsBrokenDocument(t *testing.T) {
	_, err := newValidator([]byte("openapi: 3.0.3\npaths: 12\n"))
	assert.Error(t, err)
}
