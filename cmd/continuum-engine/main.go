// Continuum Engine — исполнитель workflow runs.
//
// Engine:
//   - Получает события run.created и драйвит runs по шагам
//   - Приостанавливает runs на callback-wait шагах
//   - Возобновляет runs по событиям callback.resolved
//   - Доставляет исходящую почту из mail.outbound
//   - Recovery poll подбирает RUNNING runs после рестарта
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Continuum/internal/config"
	"github.com/shaiso/Continuum/internal/engine"
	"github.com/shaiso/Continuum/internal/ledger"
	"github.com/shaiso/Continuum/internal/mailer"
	"github.com/shaiso/Continuum/internal/mq"
	"github.com/shaiso/Continuum/internal/registration"
	"github.com/shaiso/Continuum/internal/registry"
	"github.com/shaiso/Continuum/internal/repo"
	"github.com/shaiso/Continuum/internal/telemetry"
	"github.com/shaiso/Continuum/internal/token"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting continuum-engine")

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Репозитории
	runRepo := repo.NewRunRepo(pool)
	stepRepo := repo.NewStepRepo(pool)
	callbackRepo := repo.NewCallbackRepo(pool)
	customerRepo := repo.NewCustomerRepo(pool)

	// RabbitMQ
	mqConn, err := mq.NewConnection(cfg.AMQPURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()

	if err := mq.DeclareTopology(mqConn.Channel()); err != nil {
		logger.Error("failed to declare topology", "error", err)
		os.Exit(1)
	}
	publisher := mq.NewPublisher(mqConn)

	// Кодек verification tokens
	tokens, err := token.New(token.Config{Secret: cfg.TokenSecret})
	if err != nil {
		logger.Error("failed to create token codec", "error", err)
		os.Exit(1)
	}

	// Registry + ledger
	reg := registry.New(registry.Config{
		Store:     callbackRepo,
		Publisher: publisher,
		Logger:    logger,
	})
	journal := ledger.New(ledger.Config{Store: stepRepo})

	// Engine
	eng := engine.New(engine.Config{
		Runs:      runRepo,
		Journal:   journal,
		Registrar: reg,
		Logger:    logger,
	})

	// Workflow регистрации клиента
	workflow := registration.New(registration.Config{
		Customers:           customerRepo,
		Mailer:              mailer.NewQueueMailer(publisher),
		Tokens:              tokens,
		BaseURL:             cfg.BaseURL,
		VerificationTimeout: cfg.VerificationTimeout,
	})
	eng.RegisterDefinition(workflow.Definition())

	eng.Start(ctx)

	// Потребители событий
	consumers := []*mq.Consumer{
		mq.NewConsumer(mqConn, mq.ConsumerConfig{
			Queue:   mq.RunCreatedQueue,
			Handler: eng.HandleRunCreated(),
		}, logger),
		mq.NewConsumer(mqConn, mq.ConsumerConfig{
			Queue:   mq.CallbackResolvedQueue,
			Handler: eng.HandleCallbackResolved(),
		}, logger),
		mq.NewConsumer(mqConn, mq.ConsumerConfig{
			Queue:   mq.MailOutboundQueue,
			Handler: mailer.NewDeliverer(nil, logger).Handler(),
		}, logger),
	}
	for _, c := range consumers {
		go func(c *mq.Consumer) {
			if err := c.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("consumer stopped", "error", err)
			}
		}(c)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !mqConn.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := config.Port("ENGINE_PORT", "8081")
	go func() {
		logger.Info("listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	eng.Stop()
	logger.Info("continuum-engine stopped")
}
