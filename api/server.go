// Package api serves the journal over HTTP: the watchlist board, drafts,
// history, flags, screenshots and a live snapshot stream.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rustyeddy/tradelog/autosave"
	"github.com/rustyeddy/tradelog/journal"
	"github.com/rustyeddy/tradelog/market"
	"github.com/rustyeddy/tradelog/metrics"
	"github.com/rustyeddy/tradelog/pairflags"
	"github.com/rustyeddy/tradelog/screenshot"
)

// Preferences is the cutoff hour setting.
type Preferences interface {
	Cutoff() int
	SetCutoff(h int) (int, error)
}

// Deps are the collaborators a Server routes requests to. Blobs and Gatherer
// are optional.
type Deps struct {
	Store    journal.Store
	Engine   *autosave.Engine
	Flags    *pairflags.Store
	Blobs    *screenshot.FileStore
	Prefs    Preferences
	Gatherer prometheus.Gatherer
	Pairs    []market.Pair

	AllowedOrigins []string
	ScreenshotTTL  time.Duration
	Logger         *slog.Logger
	Now            func() time.Time
}

// Server is the HTTP surface.
type Server struct {
	Deps
	router *gin.Engine
}

// New builds the router.
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Pairs == nil {
		d.Pairs = market.Pairs
	}
	if d.ScreenshotTTL <= 0 {
		d.ScreenshotTTL = screenshot.DefaultTTL
	}

	s := &Server{Deps: d, router: gin.New()}
	s.router.Use(gin.Recovery(), s.requestLogger(), s.cors())
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "tradelog"})
	})
	if s.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(s.Gatherer)))
	}
	r.GET("/blobs/*key", s.serveBlob)

	api := r.Group("/api")
	api.GET("/pairs", s.listPairs)
	api.GET("/pairs/:pair/draft", s.getDraft)
	api.PUT("/pairs/:pair/draft", s.setDraft)
	api.POST("/pairs/:pair/draft/flush", s.flushDraft)
	api.DELETE("/pairs/:pair/draft", s.clearDraft)
	api.GET("/pairs/:pair/history", s.history)
	api.PUT("/pairs/:pair/flag", s.setFlag)
	api.POST("/pairs/:pair/screenshots/:timeframe", s.uploadScreenshot)
	api.DELETE("/pairs/:pair/screenshots/:timeframe", s.removeScreenshot)

	api.GET("/analyses/:id", s.getAnalysis)
	api.PATCH("/analyses/:id", s.patchAnalysis)
	api.DELETE("/analyses/:id", s.deleteAnalysis)

	api.GET("/settings/cutoff", s.getCutoff)
	api.PUT("/settings/cutoff", s.setCutoff)

	api.GET("/stream", s.stream)
	api.POST("/webhook", s.webhook)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.Logger.Info("http server listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// cors lets the configured origins use the API. The webhook accepts any
// origin so browser extensions can post to it.
func (s *Server) cors() gin.HandlerFunc {
	origins := s.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	app := cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
	hook := cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type", "Authorization", "x-webhook-secret"},
	})
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/webhook") {
			hook(c)
			return
		}
		app(c)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/health" {
			return
		}
		s.Logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
