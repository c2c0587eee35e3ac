package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает одно сообщение из очереди.
// nil — сообщение подтверждается; ошибка — сообщение отвергается
// и уходит в dead-letter очередь.
type Handler func(ctx context.Context, msg *Message) error

// Consumer — потребитель одной очереди.
//
// Подписка переустанавливается после каждого reconnect соединения.
// Подтверждения ручные: ack после успешной обработки, nack без
// requeue при ошибке (сообщение попадёт в DLQ).
type Consumer struct {
	conn     *Connection
	queue    string
	prefetch int
	handler  Handler
	logger   *slog.Logger
}

// ConsumerConfig — параметры потребителя.
type ConsumerConfig struct {
	Queue    string
	Prefetch int
	Handler  Handler
}

// NewConsumer создаёт потребителя очереди.
func NewConsumer(conn *Connection, cfg ConsumerConfig, logger *slog.Logger) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 8
	}
	return &Consumer{
		conn:     conn,
		queue:    cfg.Queue,
		prefetch: cfg.Prefetch,
		handler:  cfg.Handler,
		logger:   logger.With("queue", cfg.Queue),
	}
}

// Run потребляет сообщения до отмены контекста.
// При разрыве соединения ждёт reconnect и подписывается заново.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if err := c.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("consume interrupted, waiting for reconnect", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
			c.logger.Info("connection restored, resubscribing")
		}
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	ch := c.conn.Channel()
	if ch == nil {
		return fmt.Errorf("no channel available")
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handleDelivery(ctx, d)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Error("malformed message, rejecting", "error", err)
		_ = d.Nack(false, false)
		return
	}

	if err := c.handler(ctx, &msg); err != nil {
		c.logger.Error("handler failed, rejecting",
			"message_id", msg.ID,
			"type", msg.Type,
			"error", err,
		)
		_ = d.Nack(false, false)
		return
	}

	_ = d.Ack(false)
}
