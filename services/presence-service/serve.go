package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"chorus/services/presence-service/config"
	"chorus/services/presence-service/db"
	"chorus/services/presence-service/handlers"
	"chorus/services/presence-service/metrics"
	"chorus/services/presence-service/middleware"
	"chorus/services/presence-service/registry"
	"chorus/services/presence-service/services"
	"chorus/services/presence-service/signaling"
	"chorus/services/presence-service/utils"
)

const directoryCacheSize = 4096

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	logger := utils.NewLogger(cfg.LogLevel).With("service", "presence-service")
	logInvalidConfig(logger, cfg)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promRegistry)

	database, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := database.DB(); err == nil {
		defer sqlDB.Close()
	}

	redisClient, err := services.NewRedisClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	logger.Info("Connected to storage")

	reg := registry.New()
	broadcaster := services.NewBroadcaster(reg, logger, m)
	store := services.NewRedisPresenceStore(redisClient)
	presence := services.NewPresence(reg, store, broadcaster, logger, m)
	reconciler := services.NewReconciler(reg, store, presence, cfg.ReconcileInterval, cfg.InactivityThreshold, logger, m)
	relay := services.NewRelay(db.NewMessageStore(database), broadcaster, logger, m)

	directory := db.NewCachedDirectory(db.NewUserDirectory(database), directoryCacheSize, cfg.DirectoryCacheTTL)
	coordinator := signaling.NewCoordinator(signaling.Config{
		RingTimeout:       cfg.RingTimeout,
		DeadRoomRetention: cfg.DeadRoomRetention,
	}, broadcaster, directory, logger, m)
	defer coordinator.Close()

	ws := handlers.NewWebsocketHandler(presence, coordinator, relay, cfg.AllowedOrigins, logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})))

	handlers.RegisterRoutes(router, handlers.Handlers{
		Health:   handlers.NewHealthHandler(coordinator),
		Messages: handlers.NewMessageHandler(relay, logger),
		Calls: handlers.NewCallHandler(coordinator, handlers.MediaTokenConfig{
			Secret: cfg.MediaSecret,
			AppID:  cfg.MediaAppID,
			TTL:    cfg.MediaTokenTTL,
		}, logger),
		Debug:     handlers.NewDebugHandler(presence, reconciler, logger),
		Websocket: ws,
	}, cfg.JWTSecret)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("Starting Presence Service", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		return reconciler.Run(gctx)
	})

	group.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := ws.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Websocket connections did not drain", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("Server exited with error", "error", err)
		return err
	}

	logger.Info("Server exited")
	return nil
}

func runCleanup(cmd *cobra.Command, threshold time.Duration) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := config.LoadConfig()
	logger := utils.NewLogger(cfg.LogLevel).With("service", "presence-service", "command", "cleanup")
	logInvalidConfig(logger, cfg)

	redisClient, err := services.NewRedisClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// No sockets are held by this process, so the registry is empty and the
	// broadcast reaches nobody.
	reg := registry.New()
	store := services.NewRedisPresenceStore(redisClient)
	presence := services.NewPresence(reg, store, services.NewBroadcaster(reg, logger, nil), logger, nil)
	reconciler := services.NewReconciler(reg, store, presence, cfg.ReconcileInterval, cfg.InactivityThreshold, logger, nil)

	resp, err := reconciler.Cleanup(ctx, threshold)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func logInvalidConfig(logger *utils.Logger, cfg *config.Config) {
	for _, v := range cfg.Invalid {
		logger.Warn("Invalid configuration value, using default",
			"key", v.Key,
			"value", v.Value,
			"default", v.Fallback,
		)
	}
}
