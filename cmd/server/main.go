package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pressroom/internal/config"
	"pressroom/internal/handler"
	"pressroom/internal/httpserver"
	"pressroom/internal/repository"
	"pressroom/internal/secrets"
	"pressroom/internal/service/auth"
	"pressroom/internal/service/broadcast"
	"pressroom/internal/service/mailer"
	"pressroom/internal/service/notify"
	"pressroom/internal/service/publisher"
	"pressroom/internal/service/search"
	"pressroom/pkg/db"
	"pressroom/pkg/logger"
	"pressroom/pkg/mq"
	redisclient "pressroom/pkg/redis"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting pressroom...",
		zap.String("db_host", cfg.DB.Host),
		zap.Int("db_port", cfg.DB.Port),
	)

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis
	rdb := redisclient.NewClient(cfg.Redis)
	defer rdb.Close()

	// MQ Publisher (search index events)
	mqPublisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer mqPublisher.Close()

	// Secret store
	secretStore, err := secrets.NewStore(cfg.Secrets.Key)
	if err != nil {
		log.Fatal("Failed to init secret store", zap.Error(err))
	}

	// Repositories
	postRepo := repository.NewPostRepository(dbConn, log)
	reviewRepo := repository.NewReviewRepository(dbConn, log)
	notificationRepo := repository.NewNotificationRepository(dbConn, log)
	auditRepo := repository.NewAuditRepository(dbConn, log)
	userRepo := repository.NewUserRepository(dbConn, log)
	subscriberRepo := repository.NewSubscriberRepository(dbConn, log)
	mailSettingsRepo := repository.NewMailSettingsRepository(dbConn, log)

	// Services
	resolver := mailer.NewResolver(mailSettingsRepo, secretStore, cfg.Mail, log)
	dispatcher := mailer.NewDispatcher(notificationRepo, log)
	unreadCache := notify.NewUnreadCache(rdb, 5*time.Minute)
	fanout := notify.NewFanout(notificationRepo, userRepo, resolver, dispatcher, unreadCache, log)
	broadcaster := broadcast.NewBroadcaster(auditRepo, subscriberRepo, resolver, dispatcher, log).
		WithLimits(cfg.Broadcast.MaxRecipients, cfg.Broadcast.BatchSize)
	indexer := search.NewIndexer(mqPublisher, log)
	scheduler := publisher.NewScheduler(postRepo, reviewRepo, fanout, broadcaster, indexer, auditRepo, log)
	authService := auth.NewService(userRepo, cfg.JWT.Secret)

	cooldown := time.Duration(cfg.Scheduler.CooldownSeconds) * time.Second

	// Background tick: opportunistic MaybeRun, still guarded by the
	// same single-flight admission as the HTTP trigger.
	tickCtx, tickCancel := context.WithCancel(context.Background())
	defer tickCancel()

	if cfg.Scheduler.TickEnabled {
		interval := time.Duration(cfg.Scheduler.TickSeconds) * time.Second
		log.Info("Starting scheduler tick", zap.Duration("interval", interval))

		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-tickCtx.Done():
					log.Info("Scheduler tick stopped")
					return
				case <-ticker.C:
					if _, err := scheduler.MaybeRun(context.Background(), cooldown); err != nil {
						log.Error("Scheduler tick failed", zap.Error(err))
					}
				}
			}
		}()
	}

	// HTTP server
	authHandler := handler.NewAuthHandler(authService, log)
	schedulerHandler := handler.NewSchedulerHandler(scheduler, cooldown, log)
	notificationHandler := handler.NewNotificationHandler(notificationRepo, unreadCache, log)
	mailSettingsHandler := handler.NewMailSettingsHandler(mailSettingsRepo, secretStore, resolver, log)
	healthHandler := handler.NewHealthHandler(dbConn)

	router := httpserver.NewRouter(authHandler, schedulerHandler, notificationHandler, mailSettingsHandler, healthHandler, cfg.JWT.Secret)

	port := cfg.Server.Port
	if port == "" {
		port = ":8080"
	}
	srv := &http.Server{
		Addr:    port,
		Handler: router.Engine,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("pressroom is fully initialized and running")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down pressroom gracefully...")
	tickCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	mqPublisher.Close()
	dbConn.Close()

	log.Info("pressroom shutdown complete")
}
