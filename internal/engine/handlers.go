package engine

import (
	"context"
	"fmt"

	"github.com/shaiso/Continuum/internal/mq"
)

// HandleRunCreated возвращает обработчик событий run.created.
func (e *Engine) HandleRunCreated() mq.Handler {
	return func(ctx context.Context, msg *mq.Message) error {
		payload, err := mq.ParsePayload[mq.RunCreatedPayload](msg)
		if err != nil {
			return err
		}

		if err := e.Drive(ctx, payload.RunID); err != nil {
			return fmt.Errorf("drive run %s: %w", payload.RunID, err)
		}
		return nil
	}
}

// HandleCallbackResolved возвращает обработчик событий callback.resolved.
func (e *Engine) HandleCallbackResolved() mq.Handler {
	return func(ctx context.Context, msg *mq.Message) error {
		payload, err := mq.ParsePayload[mq.CallbackResolvedPayload](msg)
		if err != nil {
			return err
		}

		if err := e.Resume(ctx, payload.RunID, payload.StepName, payload.Outcome, payload.Result); err != nil {
			return fmt.Errorf("resume run %s: %w", payload.RunID, err)
		}
		return nil
	}
}
