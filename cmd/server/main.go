package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/web3-frozen/ultrasound-monitor/internal/config"
	"github.com/web3-frozen/ultrasound-monitor/internal/dedup"
	"github.com/web3-frozen/ultrasound-monitor/internal/handler"
	"github.com/web3-frozen/ultrasound-monitor/internal/middleware"
	"github.com/web3-frozen/ultrasound-monitor/internal/monitor"
	"github.com/web3-frozen/ultrasound-monitor/internal/monitor/sources"
	"github.com/web3-frozen/ultrasound-monitor/internal/store"
	"github.com/web3-frozen/ultrasound-monitor/internal/telegram"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Interfaces stay nil unless the backing service is configured.
	var (
		db        *store.Store
		snapStore monitor.SnapshotStore
		userStore telegram.UserStore
		pinger    handler.Pinger
		claimer   monitor.Claimer
		limiter   telegram.Limiter
	)

	// Database
	if cfg.DatabaseURL != "" {
		var err error
		db, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		snapStore, userStore, pinger = db, db, db
		logger.Info("database connected and migrated")
	} else {
		logger.Warn("DATABASE_URL not set, history and subscriptions disabled")
	}

	// Redis dedup (retry up to 30s for ExternalSecret to sync)
	if cfg.RedisURL != "" {
		var (
			dd  *dedup.Deduplicator
			err error
		)
		for i := 0; i < 6; i++ {
			dd, err = dedup.New(cfg.RedisURL, cfg.RedisPassword)
			if err == nil {
				break
			}
			logger.Warn("redis not ready, retrying...", "attempt", i+1, "error", err)
			time.Sleep(5 * time.Second)
		}
		if err != nil {
			logger.Error("failed to connect to redis after retries", "error", err)
			os.Exit(1)
		}
		defer dd.Close()
		claimer, limiter = dd, dd
		logger.Info("redis connected for report dedup")
	}

	// Telegram bot; the engine reaches it through alert once it exists.
	var bot *telegram.Bot
	var alert monitor.AlertFunc
	if cfg.TelegramToken != "" {
		alert = func(chatID int64, msg string) error { return bot.SendMessage(chatID, msg) }
	} else {
		logger.Warn("TELEGRAM_BOT_TOKEN not set, bot and reports disabled")
	}

	// Supply engine
	engine := monitor.NewEngine(sources.NewEthSupply(cfg.SupplyAPIURL), snapStore, claimer, logger, alert,
		monitor.Options{PollInterval: cfg.PollInterval, Cooldown: cfg.Cooldown})

	if cfg.TelegramToken != "" {
		bot = telegram.NewBot(cfg.TelegramToken, userStore, engine, limiter, logger)
		go bot.Run(ctx)
	}
	go engine.Run(ctx)

	// HTTP routes
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.FrontendOrigin))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handler.Health())
	r.Get("/readyz", handler.Ready(pinger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/supply", handler.Supply(engine))
		r.Get("/supply/imprecise", handler.ImpreciseSupply(engine))
		r.Get("/supply/history", handler.SupplyHistory(db))
		r.Get("/supply/stream", handler.SupplyStream(engine, cfg.FrontendOrigin, logger))

		r.Post("/stepper/progress", handler.StepperProgress())
		r.Post("/stepper/scroll-target", handler.StepperScrollTarget())
		r.Post("/stepper/visibility", handler.StepperVisibility())

		if db != nil {
			r.Get("/events", handler.ListEvents(db))
			r.Get("/link", handler.LinkStatus(db))
			r.Post("/link", handler.LinkTelegram(db))
			r.Post("/unlink", handler.UnlinkTelegram(db))
			r.Get("/subscriptions", handler.ListSubscriptions(db))
			r.Post("/subscriptions", handler.Subscribe(db))
			r.Delete("/subscriptions/{id}", handler.Unsubscribe(db))
		}
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "supply_api", cfg.SupplyAPIURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gracefully")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
