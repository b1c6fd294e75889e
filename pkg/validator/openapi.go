package validator

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	apperrors "characterchat/backend/pkg/errors"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
)

//go:embed openapi.yaml
var schema []byte

// Schema returns the embedded OpenAPI document.
func Schema() []byte {
	return schema
}

// OpenAPIValidator validates requests against the embedded OpenAPI document
type OpenAPIValidator struct {
	doc    *openapi3.T
	router routers.Router
}

// NewOpenAPIValidator loads and validates the embedded document.
func NewOpenAPIValidator() (*OpenAPIValidator, error) {
	return newValidator(schema)
}

func newValidator(data []byte) (*OpenAPIValidator, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI schema: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI schema: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("error creating OpenAPI router: %w", err)
	}

	return &OpenAPIValidator{doc: doc, router: router}, nil
}

// Middleware returns a Gin middleware that rejects requests violating the
// document. Routes the document does not describe pass through.
func (v *OpenAPIValidator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route, pathParams, err := v.router.FindRoute(c.Request)
		if err != nil {
			c.Next()
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				MultiError:         true,
			},
		}

		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			c.Error(apperrors.BadRequestWithDetails("INVALID_REQUEST", "Request does not match the API schema", describe(err)))
			c.Abort()
			return
		}

		c.Next()
	}
}

// describe flattens validation errors into short messages.
func describe(err error) []string {
	var out []string
	if multi, ok := err.(openapi3.MultiError); ok {
		for _, e := range multi {
			out = append(out, describe(e)...)
		}
		return out
	}
	msg := err.Error()
	if i := strings.Index(msg, "\n"); i >= 0 {
		msg = msg[:i]
	}
	return []string{msg}
}
