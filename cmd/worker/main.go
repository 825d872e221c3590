package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"pressroom/internal/config"
	"pressroom/internal/mqhandler"
	"pressroom/internal/repository"
	"pressroom/internal/service/search"
	"pressroom/pkg/db"
	"pressroom/pkg/logger"
	"pressroom/pkg/mq"
	redisclient "pressroom/pkg/redis"
	"pressroom/pkg/util"
)

const (
	upsertQueueName = "search.index.upsert.q"
)

func main() {
	cfg := config.Load()

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("Starting pressroom index worker...")

	// DB
	dbConn, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to init DB", zap.Error(err))
	}
	defer dbConn.Close()

	// Redis
	rdb := redisclient.NewClient(cfg.Redis)
	defer rdb.Close()

	deduper := util.NewDeduper(rdb, time.Hour, log)
	retryCounter := util.NewRetryCounter(rdb, time.Hour)

	// DLQ publisher
	mqPublisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer mqPublisher.Close()

	postRepo := repository.NewPostRepository(dbConn, log)
	reviewRepo := repository.NewReviewRepository(dbConn, log)
	indexStore := search.NewIndexStore(rdb)

	upsertHandler := mqhandler.NewSearchIndexUpsertHandler(
		postRepo, reviewRepo, indexStore,
		mqPublisher, deduper, retryCounter,
		search.RoutingKeyUpsert, log,
	)

	consumer, err := mq.NewConsumer(
		cfg.MQ.URL,
		upsertQueueName,
		search.RoutingKeyUpsert,
		"index-worker",
		log,
	)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(upsertHandler.Handle)

	go func() {
		if err := consumer.StartConsuming(); err != nil {
			log.Fatal("Consumer crashed", zap.Error(err))
		}
	}()

	log.Info("Index worker is running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down index worker...")
	consumer.Close()
	mqPublisher.Close()
	log.Info("Index worker shutdown complete")
}
