// Package httpapi is the reference host's REST and WebSocket surface over
// the kernel, built the way the bridge teacher's internal/api package wires
// gin handlers: one handler struct per resource, a shared response envelope,
// and a websocket handler that fans out kernel events to connected clients.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nexus-edge/anolis/internal/kernel"
)

// Server is the reference host's HTTP server.
type Server struct {
	cfg        Config
	router     *gin.Engine
	httpServer *http.Server
	log        zerolog.Logger
}

// Config is the HTTP server's listen configuration.
type Config struct {
	Host string
	Port int
}

// NewServer wires every handler group against a running *kernel.Kernel.
func NewServer(cfg Config, k *kernel.Kernel, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestIDMiddleware())
	router.Use(accessLogMiddleware(log))

	s := &Server{cfg: cfg, router: router, log: log.With().Str("component", "httpapi").Logger()}
	s.setupRoutes(k)
	return s
}

func (s *Server) setupRoutes(k *kernel.Kernel) {
	s.router.GET("/health", healthHandler(k))
	s.router.GET("/ready", readyHandler(k))

	deviceH := &deviceHandler{k: k}
	callH := &callHandler{k: k}
	modeH := &modeHandler{k: k}
	paramH := &parameterHandler{k: k}
	wsH := newWebSocketHandler(k, s.log)

	api := s.router.Group("/api/v1")
	{
		devices := api.Group("/devices")
		{
			devices.GET("", deviceH.List)
			devices.GET("/:provider/:device", deviceH.Get)
			devices.GET("/:provider/:device/state", deviceH.GetState)
			devices.POST("/:provider/:device/call", callH.Call)
		}

		mode := api.Group("/mode")
		{
			mode.GET("", modeH.Get)
			mode.PUT("", modeH.Set)
		}

		params := api.Group("/parameters")
		{
			params.GET("", paramH.List)
			params.GET("/:name", paramH.Get)
			params.PUT("/:name", paramH.Set)
		}

		api.GET("/events", wsH.HandleWebSocket)
	}
}

// Start runs the HTTP server until it errors or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestIDMiddleware stamps every request with a correlation id, taken from
// the X-Request-ID header or generated with google/uuid, echoes it in the
// response header and stores it for the access log. The id is not passed on
// to the kernel or the MQTT sink.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func accessLogMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/health" || c.Request.URL.Path == "/ready" {
			return
		}
		log.Info().
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("http request")
	}
}
