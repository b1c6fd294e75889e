package errors

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"characterchat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler returns a middleware that catches and formats application errors
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		appErr := FromError(c.Errors[0].Err)

		log := logger.FromGin(c)
		args := []any{
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"status_code", appErr.StatusCode,
			"error_code", appErr.Code,
			"message", appErr.Message,
		}
		if cause := appErr.Unwrap(); cause != nil {
			args = append(args, "cause", cause.Error())
		}
		if appErr.StatusCode >= http.StatusInternalServerError {
			log.Error("Request error", args...)
		} else {
			log.Warn("Request error", args...)
		}

		c.AbortWithStatusJSON(appErr.StatusCode, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			},
		})
	}
}

// RecoveryWithLogger returns a middleware that recovers from any panics
// and logs the error with the request ID if available
func RecoveryWithLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())

				logger.FromGin(c).Error("Panic recovered",
					"error", r,
					"stack", stack,
					"path", c.Request.URL.Path,
					"method", c.Request.Method,
				)

				var details any
				if gin.Mode() == gin.DebugMode {
					details = fmt.Sprintf("Panic: %v\n%s", r, stack)
				}

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": gin.H{
						"code":    "SERVER_ERROR",
						"message": "The server encountered an unexpected error",
						"details": details,
					},
				})
			}
		}()

		c.Next()
	}
}
