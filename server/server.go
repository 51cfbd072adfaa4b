package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/internal/profile"
	apiv1 "github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/server/router/api/v1"
	"github.com/jeremymatthewwerner/dining-philosophers-Dec25-sw-factory/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer *echo.Echo
	apiV1      *apiv1.APIV1Service
}

func NewServer(_ context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogError:  true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				slog.Warn("request", attrs...)
				return nil
			}
			slog.Debug("request", attrs...)
			return nil
		},
	}))

	s := &Server{
		Profile:    profile,
		Store:      store,
		echoServer: e,
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	s.apiV1 = apiv1.NewAPIV1Service(profile, store)
	s.apiV1.RegisterRoutes(e)

	return s, nil
}

// Start launches the HTTP listener on its own goroutine and returns. Startup
// failures other than a clean close are logged, not returned, matching the
// signal-driven lifecycle in main.
func (s *Server) Start(ctx context.Context) error {
	go s.refreshStaleKnowledgeLoop(ctx)

	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	return nil
}

// refreshStaleKnowledgeLoop sweeps aged-out research records once a day so
// cached thinker knowledge does not rot while the server stays up.
func (s *Server) refreshStaleKnowledgeLoop(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			queued, err := s.apiV1.Knowledge.RefreshStale(ctx)
			if err != nil {
				slog.Warn("stale knowledge sweep failed", "error", err)
				continue
			}
			if queued > 0 {
				slog.Info("stale knowledge sweep queued research", "count", queued)
			}
		}
	}
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	// Drain in-flight research jobs before closing the database under them.
	s.apiV1.Shutdown(ctx)

	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}

	slog.Info("dining-philosophers stopped properly")
}
