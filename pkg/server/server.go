package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/denysvitali/tweetvault/internal/models"
	"github.com/denysvitali/tweetvault/pkg/bridge"
	"github.com/denysvitali/tweetvault/pkg/config"
	"github.com/denysvitali/tweetvault/pkg/telemetry"
)

// Syncer runs bookmark syncs on behalf of the host UI. *bridge.Bridge implements it.
type Syncer interface {
	SyncBookmarks(ctx context.Context, cfg models.SyncConfig, onProgress bridge.ProgressFunc) (*models.SyncResult, error)
	Syncing() bool
}

// Server represents the HTTP server
type Server struct {
	config  *config.Config
	logger  *logrus.Logger
	syncer  Syncer
	version string
	engine  *gin.Engine
	server  *http.Server

	startTime time.Time
	mu        sync.RWMutex
	lastSync  time.Time
	syncing   atomic.Bool
}

// New creates a new server instance
func New(cfg *config.Config, syncer Syncer, version string, logger *logrus.Logger) (*Server, error) {
	if syncer == nil {
		return nil, errors.New("server requires a syncer")
	}

	if logger.Level == logrus.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(ginLogger(logger))

	if cfg.Telemetry.Enabled {
		engine.Use(otelgin.Middleware("tweetvault"))
	}

	engine.Use(corsMiddleware(cfg.Server.AllowedOrigins))

	if cfg.Server.SessionAPIKey != "" {
		engine.Use(authMiddleware(cfg.Server.SessionAPIKey))
	}

	now := time.Now()
	server := &Server{
		config:    cfg,
		logger:    logger,
		syncer:    syncer,
		version:   version,
		engine:    engine,
		startTime: now,
		lastSync:  now,
	}
	server.setupRoutes()

	return server, nil
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.config.Server.Port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Engine returns the gin engine for testing purposes
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) setupRoutes() {
	s.engine.GET("/alive", s.handleAlive)
	s.engine.GET("/server_info", s.handleServerInfo)

	s.engine.POST("/sync_bookmarks", s.handleSyncBookmarks)
	s.engine.POST("/sync_bookmarks/stream", s.handleSyncBookmarksStream)

	s.engine.GET("/vault", s.handleVault)
}

func (s *Server) handleAlive(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleServerInfo(c *gin.Context) {
	s.mu.RLock()
	lastSync := s.lastSync
	s.mu.RUnlock()

	syncing := s.busy()
	idle := time.Since(lastSync).Seconds()
	if syncing {
		idle = 0
	}

	c.JSON(http.StatusOK, models.ServerInfoResponse{
		Version:   s.version,
		Uptime:    time.Since(s.startTime).Seconds(),
		IdleTime:  idle,
		Syncing:   syncing,
		Resources: systemResources(s.config.Output.Dir, s.logger),
	})
}

func (s *Server) handleSyncBookmarks(c *gin.Context) {
	ctx, span := otel.Tracer("tweetvault").Start(c.Request.Context(), "handle_sync_bookmarks")
	defer span.End()

	var req models.SyncConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	span.SetAttributes(attribute.String("provider", req.Provider))

	if s.config.Telemetry.Enabled {
		telemetry.ReportJSON(ctx, s.logger, "sync_request", req.Redacted())
	}

	if !s.reserve() {
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: bridge.ErrBusy.Error()})
		return
	}
	result, err := s.syncer.SyncBookmarks(ctx, req, nil)
	s.release()
	if err != nil {
		span.RecordError(err)
		if s.config.Telemetry.Enabled {
			telemetry.ReportJSON(ctx, s.logger, "sync_error", models.ErrorResponse{Error: err.Error()})
		}
		c.JSON(statusFor(err), models.ErrorResponse{Error: err.Error()})
		return
	}

	if s.config.Telemetry.Enabled {
		telemetry.ReportJSON(ctx, s.logger, "sync_response", result)
	}
	c.JSON(http.StatusOK, result)
}

type sseEvent struct {
	name string
	data any
}

// handleSyncBookmarksStream reports progress as Server-Sent Events. Bad input and a
// busy server get a plain status code. Everything after the stream opens arrives as
// a single "error" event.
func (s *Server) handleSyncBookmarksStream(c *gin.Context) {
	ctx, span := otel.Tracer("tweetvault").Start(c.Request.Context(), "handle_sync_bookmarks_stream")
	defer span.End()

	var req models.SyncConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}
	if _, err := bridge.BuildArgs(req); err != nil {
		c.JSON(statusFor(err), models.ErrorResponse{Error: err.Error()})
		return
	}
	if !s.reserve() {
		c.JSON(http.StatusConflict, models.ErrorResponse{Error: bridge.ErrBusy.Error()})
		return
	}

	events := make(chan sseEvent, 8)
	send := func(ev sseEvent) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(events)
		result, err := s.syncer.SyncBookmarks(ctx, req, func(p models.SyncProgress) {
			send(sseEvent{name: "progress", data: p})
		})
		s.release()
		if err != nil {
			span.RecordError(err)
			send(sseEvent{name: "error", data: models.ErrorResponse{Error: err.Error()}})
			return
		}
		send(sseEvent{name: "result", data: *result})
	}()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Stream(func(w io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		c.SSEvent(ev.name, ev.data)
		return true
	})
}

func (s *Server) handleVault(c *gin.Context) {
	dir := c.Query("output_dir")
	if dir == "" {
		dir = s.config.Output.Dir
	}

	entries, err := ListVault(c.Request.Context(), dir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: fmt.Sprintf("failed to list vault: %v", err)})
		return
	}
	c.JSON(http.StatusOK, models.VaultListing{OutputDir: dir, Entries: entries})
}

// reserve claims the single sync slot before any response is written, so a
// losing request always gets a plain 409. It also refuses while the syncer
// reports a run started elsewhere.
func (s *Server) reserve() bool {
	if !s.syncing.CompareAndSwap(false, true) {
		return false
	}
	if s.syncer.Syncing() {
		s.syncing.Store(false)
		return false
	}
	return true
}

func (s *Server) release() {
	s.mu.Lock()
	s.lastSync = time.Now()
	s.mu.Unlock()
	s.syncing.Store(false)
}

func (s *Server) busy() bool {
	return s.syncing.Load() || s.syncer.Syncing()
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, bridge.ErrNoInputSource):
		return http.StatusBadRequest
	case errors.Is(err, bridge.ErrBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ginLogger creates a gin logger middleware using logrus
func ginLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		statusCode := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"status":     statusCode,
			"method":     c.Request.Method,
			"path":       path,
			"ip":         c.ClientIP(),
			"latency":    time.Since(start),
			"user_agent": c.Request.UserAgent(),
		})
		if raw != "" {
			entry = entry.WithField("query", raw)
		}

		switch {
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request completed")
		}
	}
}

// corsMiddleware allows the host webview origin. A "*" entry allows any origin.
func corsMiddleware(allowed []string) gin.HandlerFunc {
	wildcard := len(allowed) == 0 || slices.Contains(allowed, "*")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case wildcard:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(allowed, origin):
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept, Accept-Encoding, X-Session-API-Key")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// authMiddleware validates the session API key
func authMiddleware(expectedAPIKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Session-API-Key") != expectedAPIKey {
			c.AbortWithStatusJSON(http.StatusForbidden, models.ErrorResponse{Error: "Invalid API Key"})
			return
		}
		c.Next()
	}
}
