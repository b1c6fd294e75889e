package router

import (
	"characterchat/backend/pkg/validator"

	"github.com/gin-gonic/gin"
)

// openAPIValidation builds the request validation middleware and serves the
// document it validates against.
func (r *Router) openAPIValidation() (gin.HandlerFunc, error) {
	v, err := validator.NewOpenAPIValidator()
	if err != nil {
		return nil, err
	}

	r.Engine.GET("/api/docs/openapi.yaml", func(c *gin.Context) {
		c.Data(200, "application/yaml", validator.Schema())
	})
	r.Logger.Info("OpenAPI validation enabled", "schema", "/api/docs/openapi.yaml")

	return v.Middleware(), nil
}
