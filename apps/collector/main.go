package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mahaj/counseling-smoke/pkg/config"
	"github.com/mahaj/counseling-smoke/pkg/db"
	"github.com/mahaj/counseling-smoke/pkg/logging"
	"github.com/mahaj/counseling-smoke/pkg/report"
)

func main() {
	cfg, err := config.Load(context.Background())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer logger.Sync()

	if len(cfg.Kafka.Brokers) == 0 {
		logger.Fatal("KAFKA_BROKERS is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// scripts/create_report_table does the same; repeated here so a fresh
	// cluster needs no manual step.
	if err := db.EnsureKeyspace(cfg.Scylla.Hosts, cfg.Scylla.Keyspace); err != nil {
		logger.Fatal("ensuring keyspace", zap.Error(err))
	}

	session, err := db.NewSession(cfg.Scylla.Hosts, cfg.Scylla.Keyspace)
	if err != nil {
		logger.Fatal("connecting to scylla", zap.Error(err))
	}
	defer session.Close()

	store := report.NewStore(session)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal("ensuring schema", zap.Error(err))
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.Topic,
		GroupID:  cfg.Kafka.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})

	consumer := NewConsumer(reader, store, logger)
	defer consumer.Close()

	logger.Info("collecting reports",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("keyspace", cfg.Scylla.Keyspace))
	consumer.Consume(ctx)
}
