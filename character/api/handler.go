package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"characterchat/backend/character/service"
	"characterchat/backend/internal/models"
	apperrors "characterchat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// maxImportSize bounds an uploaded import file.
const maxImportSize = 5 << 20

type CharacterHandler struct {
	service *service.CharacterService
}

func NewCharacterHandler(service *service.CharacterService) *CharacterHandler {
	return &CharacterHandler{service: service}
}

func (h *CharacterHandler) CreateCharacter(c *gin.Context) {
	var req models.CreateCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", "Invalid character payload").WithDetails(err.Error()))
		return
	}

	character, err := h.service.Add(c.Request.Context(), req)
	if err != nil {
		c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusCreated, character)
}

func (h *CharacterHandler) GetCharacter(c *gin.Context) {
	character, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, character)
}

func (h *CharacterHandler) ListCharacters(c *gin.Context) {
	characters, err := h.service.List(c.Request.Context())
	if err != nil {
		c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, characters)
}

func (h *CharacterHandler) UpdateCharacter(c *gin.Context) {
	var req models.UpdateCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", "Invalid character payload").WithDetails(err.Error()))
		return
	}
	if req.Empty() {
		c.Error(apperrors.NewBadRequestError("EMPTY_UPDATE", "No fields to update"))
		return
	}

	character, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, character)
}

func (h *CharacterHandler) DeleteCharacter(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(toAppError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// ExportCharacters serves a download of the selected characters.
// Query: ids (comma separated, optional) and format (json or yaml).
func (h *CharacterHandler) ExportCharacters(c *gin.Context) {
	format, err := service.ParseFormat(c.Query("format"))
	if err != nil {
		c.Error(toAppError(err))
		return
	}

	var ids []string
	for _, id := range strings.Split(c.Query("ids"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	export, err := h.service.Export(c.Request.Context(), ids, format)
	if err != nil {
		c.Error(toAppError(err))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	c.Data(http.StatusOK, export.ContentType, export.Data)
}

// ImportCharacters accepts either a raw JSON/YAML body or a multipart
// upload in the "file" field.
func (h *CharacterHandler) ImportCharacters(c *gin.Context) {
	data, err := readImport(c)
	if err != nil {
		c.Error(apperrors.NewBadRequestError("INVALID_UPLOAD", "Could not read import file").WithDetails(err.Error()))
		return
	}

	result, err := h.service.Import(c.Request.Context(), data)
	if err != nil {
		c.Error(toAppError(err))
		return
	}
	if !result.Success {
		c.Error(apperrors.NewUnprocessableError("IMPORT_FAILED", result.Error))
		return
	}
	c.JSON(http.StatusOK, result)
}

func readImport(c *gin.Context) ([]byte, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil {
			return nil, err
		}
		if header.Size > maxImportSize {
			return nil, fmt.Errorf("file exceeds %d bytes", maxImportSize)
		}
		f, err := header.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(f)
	}
	return io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxImportSize))
}

func toAppError(err error) *apperrors.AppError {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return apperrors.NewBadRequestError("VALIDATION_ERROR", verr.Error()).WithDetails(gin.H{"field": verr.Field})
	case service.IsNotFound(err):
		return apperrors.NewNotFoundError("CHARACTER_NOT_FOUND", "Character not found")
	default:
		return apperrors.FromError(err)
	}
}
