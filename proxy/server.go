// Package proxy hosts the spreadsheet-backed deployment variant: a
// standalone HTTP server whose store calls round-trip to the remote
// scripting endpoint instead of the embedded database. The mutation,
// debounce and broadcast paths are the same ones the embedded variant
// uses.
package proxy

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"registration-system/config"
	"registration-system/realtime"
	"registration-system/security"
	"registration-system/services"
)

type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	dispatcher *services.Dispatcher
	hub        *realtime.Hub
	cfg        *config.Config

	// health checks the backing services; nil means always healthy.
	health func() error
}

func NewServer(cfg *config.Config, dispatcher *services.Dispatcher, hub *realtime.Hub, limiter *security.RateLimiter, health func() error) *Server {
	e := echo.New()
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:       e,
		dispatcher: dispatcher,
		hub:        hub,
		cfg:        cfg,
		health:     health,
	}

	// The public form endpoint gets abuse protection; the staff
	// endpoints stay unthrottled so triage is never rate limited.
	var createMW []echo.MiddlewareFunc
	if limiter != nil {
		createMW = append(createMW, limiter.MutationRateLimit(), limiter.AntiBotMiddleware())
	}

	// Registration endpoints
	e.GET("/api/registrations", s.listRegistrations)
	e.POST("/api/registrations", s.createRegistration, createMW...)
	e.PATCH("/api/registrations/:id/status", s.updateStatus)
	e.PATCH("/api/registrations/:id/remark", s.updateRemark)
	e.DELETE("/api/registrations/:id", s.deleteRegistration)

	// Settings endpoints
	e.GET("/api/settings", s.getSettings)
	e.POST("/api/settings", s.saveSetting)

	// Stats and admin endpoints
	e.GET("/api/stats", s.stats)
	e.POST("/api/admin/clear", s.clear)
	e.GET("/api/admin/export/csv", s.exportCSV)
	e.GET("/api/admin/export/json", s.exportJSON)
	e.GET("/api/qrcode", s.qrCode)

	// Dashboard event stream
	e.GET("/ws", s.connectWS)

	e.GET("/health", s.healthCheck)

	s.httpServer = &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: e,
	}
	return s
}

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	slog.Info("sheet proxy server listening", "port", s.cfg.Port, "scriptURL", s.cfg.SheetScriptURL)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
