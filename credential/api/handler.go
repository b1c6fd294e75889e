package api

import (
	"errors"
	"net/http"
	"strings"

	"characterchat/backend/credential"
	apperrors "characterchat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

type CredentialHandler struct {
	service *credential.Service
}

func NewCredentialHandler(service *credential.Service) *CredentialHandler {
	return &CredentialHandler{service: service}
}

type credentialView struct {
	HasKey    bool   `json:"hasKey"`
	MaskedKey string `json:"maskedKey,omitempty"`
}

type keyRequest struct {
	APIKey string `json:"apiKey"`
}

// GetCredential reports whether a key is stored, showing only its masked form.
func (h *CredentialHandler) GetCredential(c *gin.Context) {
	masked, err := h.service.Masked(c.Request.Context())
	if err != nil {
		c.Error(apperrors.FromError(err))
		return
	}
	c.JSON(http.StatusOK, credentialView{HasKey: masked != "", MaskedKey: masked})
}

func (h *CredentialHandler) SetCredential(c *gin.Context) {
	var req keyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", "Invalid credential payload").WithDetails(err.Error()))
		return
	}

	if err := h.service.Set(c.Request.Context(), req.APIKey); err != nil {
		if errors.Is(err, credential.ErrBlankKey) {
			c.Error(apperrors.NewBadRequestError("BLANK_KEY", "API key must not be blank"))
			return
		}
		c.Error(apperrors.FromError(err))
		return
	}
	c.JSON(http.StatusOK, credentialView{HasKey: true, MaskedKey: credential.Mask(strings.TrimSpace(req.APIKey))})
}

func (h *CredentialHandler) ClearCredential(c *gin.Context) {
	if err := h.service.Clear(c.Request.Context()); err != nil {
		c.Error(apperrors.FromError(err))
		return
	}
	c.Status(http.StatusNoContent)
}

// ValidateCredential probes the gateway with the posted key, or with the
// stored key when the body is empty. The probe outcome is always 200.
func (h *CredentialHandler) ValidateCredential(c *gin.Context) {
	var req keyRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", "Invalid credential payload").WithDetails(err.Error()))
			return
		}
	}
	c.JSON(http.StatusOK, h.service.Validate(c.Request.Context(), req.APIKey))
}

// RegisterCredentialRoutes mounts the credential endpoints on group.
func RegisterCredentialRoutes(group *gin.RouterGroup, handler *CredentialHandler) {
	credGroup := group.Group("/credential")
	{
		credGroup.GET("", handler.GetCredential)
		credGroup.PUT("", handler.SetCredential)
		credGroup.DELETE("", handler.ClearCredential)
		credGroup.POST("/validate", handler.ValidateCredential)
	}
}
