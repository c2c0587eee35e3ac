package mailer

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Continuum/internal/mq"
)

// Идентификаторы почтовых шаблонов.
const (
	TemplateVerification = "verification-email"
	TemplateWelcome      = "welcome-email"
)

// ErrDelivery — письмо не удалось поставить в очередь.
var ErrDelivery = errors.New("mail delivery failed")

// Messenger отправляет письмо по шаблону.
type Messenger interface {
	Send(ctx context.Context, to, templateID string, data map[string]any) error
}

// QueueMailer — Messenger поверх очереди mail.outbound.
type QueueMailer struct {
	publisher *mq.Publisher
}

// NewQueueMailer создаёт QueueMailer.
func NewQueueMailer(publisher *mq.Publisher) *QueueMailer {
	return &QueueMailer{publisher: publisher}
}

// Send ставит письмо в очередь на доставку.
func (m *QueueMailer) Send(ctx context.Context, to, templateID string, data map[string]any) error {
	err := m.publisher.PublishMail(ctx, mq.MailPayload{
		To:         to,
		TemplateID: templateID,
		Data:       data,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return nil
}
