package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/fittrack/internal/api"
	"example.com/fittrack/internal/config"
	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/outbox"
	"example.com/fittrack/internal/persistence/memory"
	persistence "example.com/fittrack/internal/persistence/postgres"
	"example.com/fittrack/internal/push"
	httptransport "example.com/fittrack/internal/transport/http"
)

const dlqBatchSize = 50

func main() {
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		repo       domain.Repository
		dispatcher *outbox.Dispatcher
	)
	if cfg.PostgresURL == "" {
		log.Printf("POSTGRES_URL not set, using in-memory store")
		repo = memory.NewRepository()
	} else {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pool.Close()

		if err := persistence.Migrate(ctx, pool); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
		repo = persistence.NewRepository(pool)

		if cfg.OutboxEnabled {
			producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
			defer producer.Close()

			registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
			dispatcher = outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
			go dispatcher.Start(ctx)

			manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay)
			go manager.Run(ctx, cfg.DLQPollInterval, dlqBatchSize)
		}
	}

	keys, err := loadVAPIDKeys(cfg)
	if err != nil {
		log.Fatalf("failed to load VAPID keys: %v", err)
	}
	sender := push.NewSender(keys, cfg.VAPIDSubject, push.WithTTL(cfg.PushTTL))

	service := domain.NewService(repo)
	handler := api.NewHandler(service, api.WithPushSender(sender))

	logger := log.New(os.Stderr, "[http] ", log.LstdFlags)
	router := httptransport.NewRouter(logger, cfg.CORSOrigin)
	handler.RegisterRoutes(router)
	router.Handle("/metrics", promhttp.Handler())

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), router)

	log.Printf("fittrack api listening on %s", cfg.HTTPAddress)
	if err := server.Run(ctx); err != nil {
		log.Printf("server error: %v", err)
	}
	cancel()

	if dispatcher != nil {
		dispatcher.Wait()
	}
}

// loadVAPIDKeys parses the configured key pair or generates an ephemeral one.
// Subscriptions made against ephemeral keys stop working after a restart.
func loadVAPIDKeys(cfg config.Config) (*push.VAPIDKeys, error) {
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		return push.ParseVAPIDKeys(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)
	}
	keys, err := push.GenerateVAPIDKeys()
	if err != nil {
		return nil, err
	}
	public, err := keys.PublicKey()
	if err != nil {
		return nil, err
	}
	log.Printf("VAPID keys not configured, generated ephemeral key pair (public key %s)", public)
	return keys, nil
}
