// Package mq — обвязка над RabbitMQ: соединение с автоматическим
// reconnect, публикация и потребление событий engine.
//
// Через очереди проходят три вида событий:
//   - run.created — новый run ожидает выполнения (триггер → engine)
//   - callback.resolved — callback разрешён, run можно возобновить
//     (registry/sweeper → engine)
//   - mail.outbound — письмо для отправки (workflow → доставщик писем)
package mq
