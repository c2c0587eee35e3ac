package mq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Имена exchange'ей и очередей Continuum.
const (
	RunsExchange      = "continuum.runs"
	CallbacksExchange = "continuum.callbacks"
	MailExchange      = "continuum.mail"
	DLXExchange       = "continuum.dlx"

	RunCreatedQueue       = "runs.created"
	CallbackResolvedQueue = "callbacks.resolved"
	MailOutboundQueue     = "mail.outbound"
	DeadLetterQueue       = "continuum.dead-letter"

	RunCreatedKey       = "run.created"
	CallbackResolvedKey = "callback.resolved"
	MailOutboundKey     = "mail.outbound"
	DeadLetterKey       = "dead-letter"
)

// deadLetterArgs — аргументы очередей с dead-letter'ингом.
//
// Routing key переписывается на DeadLetterKey: DLX объявлен direct,
// и без переписывания отвергнутые сообщения сохранили бы исходные
// ключи, под которые у dead-letter очереди нет привязки.
func deadLetterArgs() amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    DLXExchange,
		"x-dead-letter-routing-key": DeadLetterKey,
	}
}

// DeclareTopology объявляет exchange'и, очереди и привязки.
// Идемпотентно: каждый процесс вызывает её при старте, объявления
// с одинаковыми параметрами в RabbitMQ бесконфликтны.
func DeclareTopology(ch *amqp.Channel) error {
	exchanges := []string{RunsExchange, CallbacksExchange, MailExchange, DLXExchange}
	for _, name := range exchanges {
		if err := ch.ExchangeDeclare(name, "direct", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}

	// Очередь мёртвых сообщений: сюда падает всё, что потребители
	// отвергли без requeue.
	if _, err := ch.QueueDeclare(DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", DeadLetterQueue, err)
	}
	if err := ch.QueueBind(DeadLetterQueue, DeadLetterKey, DLXExchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", DeadLetterQueue, err)
	}

	dlxArgs := deadLetterArgs()

	bindings := []struct {
		queue    string
		key      string
		exchange string
	}{
		{RunCreatedQueue, RunCreatedKey, RunsExchange},
		{CallbackResolvedQueue, CallbackResolvedKey, CallbacksExchange},
		{MailOutboundQueue, MailOutboundKey, MailExchange},
	}

	for _, b := range bindings {
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, dlxArgs); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.queue, err)
		}
		if err := ch.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", b.queue, err)
		}
	}

	return nil
}
