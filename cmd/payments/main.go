package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/orderpay/internal/config"
	accountHandler "github.com/jwalitptl/orderpay/internal/handler/account"
	"github.com/jwalitptl/orderpay/internal/inbox"
	"github.com/jwalitptl/orderpay/internal/model"
	"github.com/jwalitptl/orderpay/internal/outbox"
	"github.com/jwalitptl/orderpay/internal/repository/postgres"
	accountService "github.com/jwalitptl/orderpay/internal/service/account"
	paymentService "github.com/jwalitptl/orderpay/internal/service/payment"
	"github.com/jwalitptl/orderpay/pkg/logger"
	"github.com/jwalitptl/orderpay/pkg/messaging"
	kafkabroker "github.com/jwalitptl/orderpay/pkg/messaging/kafka"
	"github.com/jwalitptl/orderpay/pkg/messaging/memory"
	redisbroker "github.com/jwalitptl/orderpay/pkg/messaging/redis"
	"github.com/jwalitptl/orderpay/pkg/metrics"
	"github.com/jwalitptl/orderpay/pkg/worker"
)

func main() {
	log := logger.NewLogger(nil)

	cfg, err := config.LoadConfig("payments")
	if err != nil {
		log.Fatal(err, "Failed to load config")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "Failed to connect to database")
	}
	defer db.Close()

	broker, err := buildBroker(cfg.Broker, log)
	if err != nil {
		log.Fatal(err, "Failed to create broker")
	}
	defer broker.Close()

	base := postgres.NewBaseRepository(db)
	accountRepo := postgres.NewAccountRepository(base)
	outboxRepo := postgres.NewOutboxRepository(base)
	inboxRepo := postgres.NewInboxRepository(base)

	m := metrics.New(prometheus.DefaultRegisterer, "payments")
	writer := outbox.NewWriter(outboxRepo)
	dedup := inbox.NewDeduplicator(&base, inboxRepo, cfg.Inbox.DedupCacheTTL, log, m)
	accounts := accountService.NewService(&base, accountRepo, writer, log)
	payments := paymentService.NewService(accounts, writer, dedup, log)

	dispatcher := worker.NewDispatcher(
		outboxRepo,
		broker,
		map[string]string{
			model.EventTypePaymentStatusUpdated: cfg.Topics.PaymentUpdates,
			model.EventTypeAccountCreated:       cfg.Topics.AccountEvents,
			model.EventTypeAccountDeposited:     cfg.Topics.AccountEvents,
		},
		worker.DispatcherConfig{
			BatchSize:    cfg.Outbox.BatchSize,
			PollInterval: cfg.Outbox.PollInterval,
			PublishRate:  rate.Limit(cfg.Outbox.PublishRate),
		},
		log,
		m,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go dispatcher.Start(ctx)

	if err := broker.Subscribe(ctx, cfg.Topics.PaymentRequests, cfg.Broker.Group, payments.HandleEvent); err != nil {
		log.Fatal(err, "Failed to subscribe to payment requests")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/health/live", func(c *gin.Context) { c.Status(http.StatusOK) })
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	accountHandler.NewHandler(accounts).RegisterRoutes(engine.Group("/api/v1"))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: engine,
	}

	go func() {
		log.Info("Payments service listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "HTTP server failed")
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "HTTP shutdown failed")
	}
}

func buildBroker(cfg config.BrokerConfig, log *logger.Logger) (messaging.Broker, error) {
	switch cfg.Kind {
	case "redis":
		return redisbroker.NewRedisBroker(redisbroker.Config{URL: cfg.URL}, log)
	case "kafka":
		return kafkabroker.NewKafkaBroker(kafkabroker.Config{Brokers: cfg.Brokers}, log)
	case "memory":
		return memory.New(time.Second), nil
	default:
		return nil, fmt.Errorf("unknown broker kind %q", cfg.Kind)
	}
}
