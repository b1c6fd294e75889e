package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type contextKey string

// RequestIDKey is the key for request ID values in contexts
const RequestIDKey contextKey = "requestID"

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

// RequestIDMiddleware assigns a request id, honoring one sent by an upstream
// proxy. The id is written back onto the request header so the request
// logger picks up the same value.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
			c.Request.Header.Set(HeaderRequestID, requestID)
		}

		ctx := context.WithValue(c.Request.Context(), RequestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderRequestID, requestID)
		c.Set(string(RequestIDKey), requestID)

		c.Next()
	}
}

// GetRequestID extracts the request ID from a context
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
