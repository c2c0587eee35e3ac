package sweeper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Expirer форсирует TIMEOUT просроченных callback'ов (см. registry).
type Expirer interface {
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}

// Sweeper — периодическая уборка просроченных callback'ов.
type Sweeper struct {
	expirer   Expirer
	logger    *slog.Logger
	batchSize int

	cron *cron.Cron
}

// Config — конфигурация Sweeper.
type Config struct {
	Expirer Expirer
	Logger  *slog.Logger

	// BatchSize — максимум callback'ов за один тик (default: 500).
	BatchSize int
}

// New создаёт новый Sweeper.
func New(cfg Config) *Sweeper {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Sweeper{
		expirer:   cfg.Expirer,
		logger:    cfg.Logger,
		batchSize: batchSize,
	}
}

// Tick выполняет один проход уборки.
// Повторяет выборку, пока батчи приходят полными: после простоя
// просроченных может накопиться больше одного батча.
func (s *Sweeper) Tick(ctx context.Context) error {
	total := 0

	for {
		n, err := s.expirer.ExpireOverdue(ctx, s.batchSize)
		if err != nil {
			return fmt.Errorf("sweep expired callbacks: %w", err)
		}
		total += n

		if n < s.batchSize {
			break
		}
	}

	if total > 0 {
		s.logger.Info("sweep completed", "expired", total)
	}

	return nil
}

// Start запускает уборку по cron-расписанию (стандартный 5-польный
// формат). Возвращает ошибку при невалидном выражении.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	s.cron = cron.New()

	_, err := s.cron.AddFunc(schedule, func() {
		if err := s.Tick(ctx); err != nil {
			s.logger.Error("sweep tick failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("parse sweep schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.logger.Info("sweeper started", "schedule", schedule)

	return nil
}

// Stop останавливает расписание и дожидается завершения текущего тика.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.logger.Info("sweeper stopped")
}
