package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKey is the gin context key holding the request-scoped logger.
const ContextKey = "logger"

// Middleware returns a Gin middleware function that logs requests
func Middleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)

		reqLogger := logger.WithRequestID(requestID).WithContext(c.Request.Context())
		c.Set(ContextKey, reqLogger)

		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		path := c.Request.URL.Path
		method := c.Request.Method

		reqLogger.LogRequest(method, path, status, latency)

		for _, err := range c.Errors {
			reqLogger.LogError(err.Err, "request error",
				"method", method,
				"path", path,
				"error_type", err.Type,
			)
		}
	}
}

// FromGin returns the request-scoped logger, falling back to the global one.
func FromGin(c *gin.Context) *Logger {
	if v, ok := c.Get(ContextKey); ok {
		if l, ok := v.(*Logger); ok {
			return l
		}
	}
	return GetGlobal()
}
