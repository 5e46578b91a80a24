package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carenod/timecourse-for-raspi/internal/api/handlers"
	"github.com/carenod/timecourse-for-raspi/internal/camera"
	"github.com/carenod/timecourse-for-raspi/internal/config"
	"github.com/carenod/timecourse-for-raspi/internal/health"
	"github.com/carenod/timecourse-for-raspi/internal/session"
	"github.com/carenod/timecourse-for-raspi/internal/storage"
	"github.com/carenod/timecourse-for-raspi/internal/store"
)

type Server struct {
	cfg    *config.Config
	router *gin.Engine
}

func New(cfg *config.Config, machine *session.Manager, frames *store.Store, cam camera.Camera, monitor *health.Monitor, archiveTarget storage.Provider) *Server {
	if cfg.Server.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode) // Set to Release for production
	}

	s := &Server{
		cfg:    cfg,
		router: gin.Default(),
	}

	// CORS: the dashboard is served from wherever the operator's
	// browser happens to be on the LAN.
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type"}
	s.router.Use(cors.New(corsConfig))

	s.setupRoutes(cfg, machine, frames, cam, monitor, archiveTarget)

	return s
}

func (s *Server) setupRoutes(cfg *config.Config, machine *session.Manager, frames *store.Store, cam camera.Camera, monitor *health.Monitor, archiveTarget storage.Provider) {
	sessionHandler := handlers.NewSessionHandler(machine, frames, archiveTarget, cfg.Camera.Width, cfg.Camera.Height)
	frameHandler := handlers.NewFrameHandler(machine, frames)
	systemHandler := handlers.NewSystemHandler(cam, monitor)

	// Liveness + metrics
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "timecourse"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		// --- SESSION CONTROL ---
		v1.POST("/session", sessionHandler.CreateSession)
		v1.POST("/session/start", sessionHandler.Transition(session.ActionStart))
		v1.POST("/session/pause", sessionHandler.Transition(session.ActionPause))
		v1.POST("/session/resume", sessionHandler.Transition(session.ActionResume))
		v1.POST("/session/stop", sessionHandler.Transition(session.ActionStop))
		v1.POST("/session/reset", sessionHandler.Transition(session.ActionReset))
		v1.GET("/session", sessionHandler.GetSession)

		// --- FRAMES ---
		v1.GET("/frames", frameHandler.GetFrames)
		v1.GET("/frames/:seq", frameHandler.GetFrame)

		// --- PAST SESSIONS ---
		v1.GET("/sessions", sessionHandler.ListSessions)
		v1.GET("/sessions/:id/archive", sessionHandler.ArchiveSession)
		v1.POST("/sessions/:id/transfer", sessionHandler.TransferSession)
		v1.DELETE("/sessions/:id", sessionHandler.DeleteSession)
		v1.GET("/archive", sessionHandler.ListArchive)

		// --- SYSTEM ---
		v1.GET("/health", systemHandler.GetHealth)
		v1.GET("/health/history", systemHandler.GetHealthHistory)
		v1.GET("/system", systemHandler.GetSystem)
	}
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves until ctx is cancelled, then drains in-flight requests
// and returns. SIGTERM from the supervisor must end the process, not
// leave it serving with the capture loop dead.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
