package daemon

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/involvex/warelay/internal/api"
	"github.com/involvex/warelay/internal/config"
)

// Server is the HTTP/websocket boundary of the daemon.
type Server struct {
	echo   *echo.Echo
	addr   string
	logger *zap.Logger
}

// NewServer builds the echo server with all routes registered.
func NewServer(p Params, cfg *config.Config, svc *api.Service, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	// The web client is served from its own origin during development.
	e.Use(middleware.CORS())

	svc.Register(e)

	addr := cfg.Server.ListenAddr
	if p.ListenAddr != "" {
		addr = p.ListenAddr
	}

	return &Server{echo: e, addr: addr, logger: logger}
}

// Start blocks serving HTTP until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.addr))
	if err := s.echo.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) {
	if err := s.echo.Shutdown(ctx); err != nil {
		s.logger.Warn("http server shutdown", zap.Error(err))
	}
}
