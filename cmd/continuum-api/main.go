// Continuum API — HTTP-фасад системы.
//
// API:
//   - Принимает запросы на регистрацию и стартует workflow runs
//   - Подтверждает email по ссылке из письма (разрешает callback)
//   - Отдаёт runs, журнал шагов и клиентов на чтение
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Continuum/internal/api"
	"github.com/shaiso/Continuum/internal/config"
	"github.com/shaiso/Continuum/internal/engine"
	"github.com/shaiso/Continuum/internal/mq"
	"github.com/shaiso/Continuum/internal/registry"
	"github.com/shaiso/Continuum/internal/repo"
	"github.com/shaiso/Continuum/internal/telemetry"
	"github.com/shaiso/Continuum/internal/token"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting continuum-api")

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

	// Registry разрешает callback'и по запросу /verify
	reg := registry.New(registry.Config{
		Store:     callbackRepo,
		Publisher: publisher,
		Logger:    logger,
	})

	// Trigger стартует runs fire-and-forget
	trigger := engine.NewTrigger(runRepo, publisher, logger)

	handler := api.NewHandler(api.Config{
		Starter:   trigger,
		Resolver:  reg,
		Runs:      runRepo,
		Steps:     stepRepo,
		Customers: customerRepo,
		Tokens:    tokens,
		Logger:    logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:    config.Port("API_PORT", "8080"),
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("continuum-api stopped")
}
