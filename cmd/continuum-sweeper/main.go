// Continuum Sweeper — уборка просроченных callback'ов.
//
// Sweeper по cron-расписанию форсирует TIMEOUT для регистраций с
// истекшим дедлайном и публикует события разрешения, чтобы engine
// завершил соответствующие runs.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Continuum/internal/config"
	"github.com/shaiso/Continuum/internal/mq"
	"github.com/shaiso/Continuum/internal/registry"
	"github.com/shaiso/Continuum/internal/repo"
	"github.com/shaiso/Continuum/internal/sweeper"
	"github.com/shaiso/Continuum/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting continuum-sweeper")

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

	reg := registry.New(registry.Config{
		Store:     repo.NewCallbackRepo(pool),
		Publisher: mq.NewPublisher(mqConn),
		Logger:    logger,
	})

	sw := sweeper.New(sweeper.Config{
		Expirer:   reg,
		Logger:    logger,
		BatchSize: cfg.SweepBatch,
	})
	if err := sw.Start(ctx, cfg.SweepSchedule); err != nil {
		logger.Error("failed to start sweeper", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := config.Port("SWEEPER_PORT", "8082")
	go func() {
		logger.Info("listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	sw.Stop()
	logger.Info("continuum-sweeper stopped")
}
