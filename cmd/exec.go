package cmd

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"

	"registration-system/broadcast"
	"registration-system/config"
	"registration-system/handlers"
	_ "registration-system/migrations"
	"registration-system/proxy"
	"registration-system/realtime"
	"registration-system/security"
	"registration-system/services"
	"registration-system/store"
	"registration-system/utils"
)

// Start wires the registration system and serves it. The store backend
// decides the shape of the process: "embedded" runs the full PocketBase
// app with its own database, "sheet" runs a lean proxy whose store
// calls round-trip to the remote spreadsheet script.
func Start() error {
	cfg := config.LoadConfig()

	// Redis backs the distributed debounce guard and the public-form
	// abuse protection. The memory guard needs neither.
	var redisClient *redis.Client
	if cfg.DebounceBackend == "redis" || cfg.StoreBackend == "sheet" {
		redisClient = utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
		defer redisClient.Close()
	}

	bus := broadcast.NewBus(cfg.SendBufferSize)
	defer bus.Close()

	var guard services.DebounceGuard
	if cfg.DebounceBackend == "redis" && redisClient != nil {
		guard = services.NewRedisDebounce(redisClient, cfg.DebounceWindow)
	} else {
		guard = services.NewMemoryDebounce(cfg.DebounceWindow)
	}

	// Optional PubNub mirror for dashboards hosted off-origin.
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey

		mirror := broadcast.NewPubNubMirror(pubnub.NewPubNub(pnConfig), bus)
		go mirror.Run()
		defer mirror.Stop()
	}

	if cfg.EnableMetrics {
		go serveMetrics(cfg.MetricsPort)
	}

	if cfg.StoreBackend == "sheet" {
		return startSheetProxy(cfg, bus, guard, redisClient)
	}
	return startEmbedded(cfg, bus, guard)
}

func startEmbedded(cfg *config.Config, bus *broadcast.Bus, guard services.DebounceGuard) error {
	app := pocketbase.New()

	st := store.NewPBStore(app)
	dispatcher := services.NewDispatcher(st, bus, guard, cfg.StoreTimeout)
	hub := realtime.NewHub(bus, dispatcher.List, dispatcher.Settings, realtime.Options{
		PingInterval:     cfg.PingInterval,
		WriteTimeout:     cfg.WriteTimeout,
		SendBuffer:       cfg.SendBufferSize,
		SnapshotOnAttach: cfg.SnapshotOnAttach,
	})
	defer hub.Shutdown()

	registrationHandler := handlers.NewRegistrationHandler(app, dispatcher)
	settingsHandler := handlers.NewSettingsHandler(app, dispatcher)
	adminHandler := handlers.NewAdminHandler(app, dispatcher, hub, cfg.PublicURL)
	wsHandler := handlers.NewWSHandler(hub, cfg.PublicURL)

	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Registration endpoints
		e.Router.GET("/api/registrations", registrationHandler.List)
		e.Router.POST("/api/registrations", registrationHandler.Create)
		e.Router.PATCH("/api/registrations/{id}/status", registrationHandler.UpdateStatus)
		e.Router.PATCH("/api/registrations/{id}/remark", registrationHandler.UpdateRemark)
		e.Router.DELETE("/api/registrations/{id}", registrationHandler.Delete)

		// Settings endpoints
		e.Router.GET("/api/settings", settingsHandler.Get)
		e.Router.POST("/api/settings", settingsHandler.Save)

		// Stats and admin endpoints
		e.Router.GET("/api/stats", adminHandler.Stats)
		e.Router.POST("/api/admin/clear", adminHandler.Clear)
		e.Router.GET("/api/admin/export/csv", adminHandler.ExportCSV)
		e.Router.GET("/api/admin/export/json", adminHandler.ExportJSON)
		e.Router.GET("/api/qrcode", adminHandler.QRCode)

		// Dashboard event stream
		e.Router.GET("/ws", wsHandler.Connect)

		log.Println("Server routes registered")

		return e.Next()
	})

	return app.Start()
}

func startSheetProxy(cfg *config.Config, bus *broadcast.Bus, guard services.DebounceGuard, redisClient *redis.Client) error {
	st := store.NewSheetStore(cfg.SheetScriptURL, cfg.StoreTimeout)
	dispatcher := services.NewDispatcher(st, bus, guard, cfg.StoreTimeout)
	hub := realtime.NewHub(bus, dispatcher.List, dispatcher.Settings, realtime.Options{
		PingInterval:     cfg.PingInterval,
		WriteTimeout:     cfg.WriteTimeout,
		SendBuffer:       cfg.SendBufferSize,
		SnapshotOnAttach: cfg.SnapshotOnAttach,
	})

	var limiter *security.RateLimiter
	var health func() error
	if redisClient != nil {
		limiter = security.NewRateLimiter(redisClient)
		health = func() error { return utils.RedisHealthCheck(redisClient) }
	}

	server := proxy.NewServer(cfg, dispatcher, hub, limiter, health)

	go func() {
		handleShutdown()
		hub.Shutdown()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("proxy shutdown", "error", err)
		}
	}()

	return server.Start()
}

func serveMetrics(port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	slog.Info("metrics server listening", "port", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		slog.Error("metrics server", "error", err)
	}
}

// handleShutdown blocks until an interrupt arrives.
func handleShutdown() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
}
