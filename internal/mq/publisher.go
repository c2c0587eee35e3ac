package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Continuum/internal/domain"
)

// Message — конверт события в очереди.
type Message struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// RunCreatedPayload — событие о создании run.
type RunCreatedPayload struct {
	RunID uuid.UUID `json:"run_id"`
}

// CallbackResolvedPayload — событие о разрешении callback.
// Engine по нему возобновляет приостановленный run.
type CallbackResolvedPayload struct {
	CallbackID uuid.UUID              `json:"callback_id"`
	RunID      uuid.UUID              `json:"run_id"`
	StepName   string                 `json:"step_name"`
	Outcome    domain.CallbackOutcome `json:"outcome"`
	Result     map[string]any         `json:"result,omitempty"`
}

// MailPayload — письмо для отправки.
type MailPayload struct {
	To         string         `json:"to"`
	TemplateID string         `json:"template_id"`
	Data       map[string]any `json:"data"`
}

// Publisher публикует события Continuum.
type Publisher struct {
	conn *Connection
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection) *Publisher {
	return &Publisher{conn: conn}
}

// PublishRunCreated публикует событие о новом run.
func (p *Publisher) PublishRunCreated(ctx context.Context, runID uuid.UUID) error {
	return p.publish(ctx, RunsExchange, RunCreatedKey, "run.created", RunCreatedPayload{RunID: runID})
}

// PublishCallbackResolved публикует событие о разрешении callback.
func (p *Publisher) PublishCallbackResolved(ctx context.Context, payload CallbackResolvedPayload) error {
	return p.publish(ctx, CallbacksExchange, CallbackResolvedKey, "callback.resolved", payload)
}

// PublishMail ставит письмо в очередь на отправку.
func (p *Publisher) PublishMail(ctx context.Context, payload MailPayload) error {
	return p.publish(ctx, MailExchange, MailOutboundKey, "mail.outbound", payload)
}

func (p *Publisher) publish(ctx context.Context, exchange, key, msgType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	msg := Message{
		ID:         uuid.NewString(),
		Type:       msgType,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Timestamp:    msg.OccurredAt,
			Body:         body,
		})
		if err != nil {
			return fmt.Errorf("publish %s: %w", msgType, err)
		}
		return nil
	})
}

// ParsePayload разбирает payload сообщения в конкретный тип.
func ParsePayload[T any](msg *Message) (*T, error) {
	var payload T
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", msg.Type, err)
	}
	return &payload, nil
}
