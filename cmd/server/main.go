package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/BadgersMC/LumalyteSRV/internal/config"
	"github.com/BadgersMC/LumalyteSRV/internal/database"
	"github.com/BadgersMC/LumalyteSRV/internal/discord"
	"github.com/BadgersMC/LumalyteSRV/internal/handler"
	"github.com/BadgersMC/LumalyteSRV/internal/middleware"
	"github.com/BadgersMC/LumalyteSRV/internal/repository"
	"github.com/BadgersMC/LumalyteSRV/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	zerolog.DurationFieldUnit = time.Millisecond
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	// Database
	db, err := database.NewPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := database.Migrate(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	if err := database.VerifySchema(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("schema verification failed")
	}

	// Core services
	linkRepo := repository.NewLinkRepository(db)
	linkSvc := service.NewLinkService(linkRepo)

	tracker := service.NewStatusTracker(cfg.Servers, cfg.PingInterval)
	hub := service.NewProxyHub()
	webhook := service.NewWebhookSender(cfg.WebhookURL)
	bridge := service.NewBridgeService(cfg.Templates, tracker, hub, webhook)
	tracker.SetNotifier(bridge)

	// Discord bot
	bot, err := discord.NewBot(cfg, linkSvc, bridge, tracker)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create Discord bot")
	}
	if bot != nil {
		bridge.SetSender(bot)
		linkSvc.SetRoleSync(bot.RoleSync())
		if err := bot.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to connect Discord bot")
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
		BodyLimit:    256 * 1024,
	})

	app.Use(recover.New())
	app.Use(middleware.Logger())

	// Health + metrics
	healthH := handler.NewHealthHandler(db)
	app.Get("/health", healthH.Health)
	app.Get("/ready", healthH.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// API v1
	v1 := app.Group("/api/v1")

	// Proxy-facing (server key auth)
	proxyH := handler.NewProxyHandler(bridge, linkSvc)
	proxy := v1.Group("/proxy", middleware.ServerKey(cfg.ServerKey))
	proxy.Post("/events", proxyH.Events)
	proxy.Post("/link", proxyH.Link)
	proxy.Post("/unlink", proxyH.Unlink)
	proxy.Get("/link/:uuid", proxyH.Status)

	// Admin (admin key auth)
	admin := v1.Group("/admin", middleware.AdminKey(cfg.AdminKey), middleware.RateLimit(60, time.Minute))
	adminH := handler.NewAdminHandler(linkSvc, tracker, hub)
	admin.Get("/stats", adminH.Stats)

	// Proxy WebSocket feed (Discord -> game)
	wsH := handler.NewWSHandler(hub, cfg.ServerKey)
	app.Get("/ws", wsH.Upgrade)

	// Background workers
	go hub.Run()
	go tracker.Run()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("bridge backend running")

	<-quit
	log.Info().Msg("shutting down")
	_ = app.ShutdownWithTimeout(5 * time.Second)
	bot.Stop()
	tracker.Shutdown()
	hub.Shutdown()
	log.Info().Msg("server stopped")
}
