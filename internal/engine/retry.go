package engine

import (
	"context"
	"time"
)

// RetryPolicy — политика повторов шага внутри одного драйва.
type RetryPolicy struct {
	// MaxAttempts — всего попыток, включая первую.
	MaxAttempts int
	// InitialDelay — задержка перед второй попыткой.
	InitialDelay time.Duration
	// MaxDelay — потолок экспоненциальной задержки.
	MaxDelay time.Duration
}

// defaultRetryPolicy применяется к шагам без собственной политики.
var defaultRetryPolicy = RetryPolicy{
	MaxAttempts:  3,
	InitialDelay: time.Second,
	MaxDelay:     30 * time.Second,
}

// calculateBackoff вычисляет задержку перед retry.
func calculateBackoff(attempt int, policy *RetryPolicy) time.Duration {
	if policy == nil {
		policy = &defaultRetryPolicy
	}

	initialDelay := policy.InitialDelay
	if initialDelay <= 0 {
		initialDelay = time.Second
	}

	maxDelay := policy.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	// delay = initialDelay * 2^(attempt-1)
	delay := initialDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > maxDelay {
			break
		}
	}
	if delay > maxDelay {
		delay = maxDelay
	}

	return delay
}

// runWithRetry выполняет fn с повторами по политике.
// Возвращает последнюю ошибку, если попытки исчерпаны.
func runWithRetry(ctx context.Context, policy *RetryPolicy, fn func(ctx context.Context) (map[string]any, error)) (map[string]any, error) {
	if policy == nil {
		policy = &defaultRetryPolicy
	}

	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(calculateBackoff(attempt, policy)):
		}
	}

	return nil, lastErr
}
