package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/fittrack/internal/config"
	"example.com/fittrack/internal/consumer"
	persistence "example.com/fittrack/internal/persistence/postgres"
	"example.com/fittrack/internal/push"
	httptransport "example.com/fittrack/internal/transport/http"
)

func main() {
	cfg := config.Load()
	if cfg.PostgresURL == "" {
		log.Fatalf("POSTGRES_URL is required")
	}
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		log.Fatalf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must match the api's key pair")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := persistence.Migrate(ctx, pool); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	keys, err := push.ParseVAPIDKeys(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)
	if err != nil {
		log.Fatalf("invalid VAPID keys: %v", err)
	}
	sender := push.NewSender(keys, cfg.VAPIDSubject, push.WithTTL(cfg.PushTTL))
	broadcaster := push.NewBroadcaster(sender, persistence.NewRepository(pool), nil)

	handler := consumer.Handlers{
		consumer.NewPersistenceHandler(pool),
		consumer.NewPushHandler(broadcaster, nil),
	}

	metrics := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.MetricsAddress), promhttp.Handler())
	go func() {
		log.Printf("notifier metrics listening on %s", cfg.MetricsAddress)
		if err := metrics.Run(ctx); err != nil {
			log.Printf("metrics server error: %v", err)
		}
	}()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroupID,
		Topic:           cfg.ConsumerTopic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
	proc := consumer.NewProcessor(reader, handler)

	log.Printf("notifier started (topic=%s, group=%s)", cfg.ConsumerTopic, cfg.ConsumerGroupID)
	if err := proc.Run(ctx); err != nil && err != context.Canceled {
		log.Printf("notifier stopped with error: %v", err)
	}
	if err := reader.Close(); err != nil {
		log.Printf("close reader: %v", err)
	}
}
