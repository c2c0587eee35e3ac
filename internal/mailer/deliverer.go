package mailer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shaiso/Continuum/internal/mq"
)

// Deliverer — потребитель очереди mail.outbound.
//
// Транспорт доставки подключается через Transport; дефолтная
// реализация пишет письмо в лог — достаточно для разработки
// и стендов без SMTP.
type Deliverer struct {
	transport Transport
	logger    *slog.Logger
}

// Transport доставляет готовое письмо до адресата.
type Transport interface {
	Deliver(ctx context.Context, to, templateID string, data map[string]any) error
}

// NewDeliverer создаёт Deliverer.
func NewDeliverer(transport Transport, logger *slog.Logger) *Deliverer {
	if transport == nil {
		transport = logTransport{logger: logger}
	}
	return &Deliverer{transport: transport, logger: logger}
}

// Handler возвращает обработчик сообщений mail.outbound.
func (d *Deliverer) Handler() mq.Handler {
	return func(ctx context.Context, msg *mq.Message) error {
		payload, err := mq.ParsePayload[mq.MailPayload](msg)
		if err != nil {
			return err
		}

		if err := d.transport.Deliver(ctx, payload.To, payload.TemplateID, payload.Data); err != nil {
			return fmt.Errorf("deliver %s to %s: %w", payload.TemplateID, payload.To, err)
		}

		d.logger.Info("mail delivered", "to", payload.To, "template", payload.TemplateID)
		return nil
	}
}

// logTransport пишет письмо в лог вместо настоящей доставки.
type logTransport struct {
	logger *slog.Logger
}

func (t logTransport) Deliver(_ context.Context, to, templateID string, data map[string]any) error {
	t.logger.Info("mail (log transport)", "to", to, "template", templateID, "data", data)
	return nil
}
