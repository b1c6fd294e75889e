package router

import (
	"context"
	"net/http"
	"time"

	charapi "characterchat/backend/character/api"
	"characterchat/backend/conversation/ws"
	credapi "characterchat/backend/credential/api"
	"characterchat/backend/pkg/config"
	"characterchat/backend/pkg/di"
	"characterchat/backend/pkg/errors"
	"characterchat/backend/pkg/logger"
	"characterchat/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// Track server start time for uptime calculations
var startTime = time.Now()

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config
}

// New builds the engine, its middleware chain and every route. Background
// work started here stops when ctx is done.
func New(ctx context.Context, container *di.Container) (*Router, error) {
	cfg := container.Config

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		return nil, err
	}

	engine.Use(middleware.RequestIDMiddleware())

	// The logger middleware goes first among the rest to capture all requests
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())

	rateLimiter := middleware.NewRateLimiter(container.Logger, middleware.RateLimiterOptions{
		Limit:          rate.Limit(cfg.Security.RateLimit),
		Burst:          cfg.Security.RateLimitBurst,
		ExpiryDuration: time.Hour,
		KeyFunc:        func(c *gin.Context) string { return c.ClientIP() },
		Skip:           func(c *gin.Context) bool { return websocket.IsWebSocketUpgrade(c.Request) },
	})
	go rateLimiter.Run(ctx, time.Minute)
	engine.Use(rateLimiter.Middleware())

	engine.Use(middleware.CORS(cfg.Security.AllowedOrigins))
	engine.Use(limitBody(cfg.Security.MaxBodySize))

	r := &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
	}
	if err := r.setupRoutes(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Router) setupRoutes() error {
	r.setupHealthRoutes()

	if r.Container.MetricsHandler != nil {
		r.Engine.GET("/metrics", gin.WrapH(r.Container.MetricsHandler))
	}

	v1 := r.Engine.Group("/api/v1")
	v1.GET("/health", r.detailedHealthHandler())

	validation, err := r.openAPIValidation()
	if err != nil {
		return err
	}

	characterHandler := charapi.NewCharacterHandler(r.Container.Characters)
	characters := charapi.RegisterCharacterRoutes(v1, characterHandler, validation)

	chatHandler := ws.NewHandler(r.Container.Chat, r.Logger)
	characters.GET("/:id/chat", chatHandler.ServeWs)

	credentialHandler := credapi.NewCredentialHandler(r.Container.Credentials)
	credapi.RegisterCredentialRoutes(v1.Group("", validation), credentialHandler)

	return nil
}

// limitBody caps request bodies; oversized reads fail inside the handler.
func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
