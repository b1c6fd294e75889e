package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"characterchat/backend/character/repository"
	"characterchat/backend/character/service"
	"characterchat/backend/internal/models"
	"characterchat/backend/pkg/config"
	apperrors "characterchat/backend/pkg/errors"
	"characterchat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := config.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := repository.NewSQLiteCharacterRepository(context.Background(), db)
	require.NoError(t, err)

	log := logger.Nop()
	r := gin.New()
	r.Use(logger.Middleware(log), apperrors.ErrorHandler())
	RegisterCharacterRoutes(r.Group("/api/v1"), NewCharacterHandler(service.NewCharacterService(repo, log)))
	return r
}

func do(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestCharacterRoutes_CRUD(t *testing.T) {
	r := setupRouter(t)

	w := do(r, http.MethodPost, "/api/v1/characters", gin.H{"name": "Ada", "description": "Mathematician", "avatarIcon": "🤖"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.Character
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	w = do(r, http.MethodGet, "/api/v1/characters", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Character
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = do(r, http.MethodPatch, "/api/v1/characters/"+created.ID, gin.H{"personality": "curious"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated models.Character
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "curious", updated.Personality)
	assert.Greater(t, updated.UpdatedAt, created.UpdatedAt)

	w = do(r, http.MethodGet, "/api/v1/characters/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodDelete, "/api/v1/characters/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, http.MethodGet, "/api/v1/characters/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "CHARACTER_NOT_FOUND", decodeError(t, w).Error.Code)
}

func TestCharacterRoutes_Validation(t *testing.T) {
	r := setupRouter(t)

	w := do(r, http.MethodPost, "/api/v1/characters", gin.H{"name": "Ada"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, w).Error.Code)

	w = do(r, http.MethodPost, "/api/v1/characters", gin.H{"name": "Ada", "description": "d", "avatarIcon": "🍕"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, w).Error.Code)

	w = do(r, http.MethodPatch, "/api/v1/characters/whatever", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "EMPTY_UPDATE", decodeError(t, w).Error.Code)
}

func TestCharacterRoutes_ExportImport(t *testing.T) {
	r := setupRouter(t)
	do(r, http.MethodPost, "/api/v1/characters", gin.H{"name": "Ada", "description": "d1"})
	do(r, http.MethodPost, "/api/v1/characters", gin.H{"name": "Bob", "description": "d2"})

	w := do(r, http.MethodGet, "/api/v1/characters/export?format=yaml", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "characterchat-export-")
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".yaml")
	exported := w.Body.Bytes()

	w = do(r, http.MethodGet, "/api/v1/characters/export?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Multipart upload of the YAML export.
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "export.yaml")
	require.NoError(t, err)
	_, _ = fw.Write(exported)
	require.NoError(t, mw.Close())

	req, _ := http.NewRequest(http.MethodPost, "/api/v1/characters/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"success":true,"count":2}`, w.Body.String())

	w = do(r, http.MethodGet, "/api/v1/characters", nil)
	var list []models.Character
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 4)

	w = do(r, http.MethodPost, "/api/v1/characters/import", []gin.H{{"name": "NoDescription"}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, service.MsgNoValidCharacters, decodeError(t, w).Error.Message)
}
