// Package mailer отвечает за исходящую почту workflow.
//
// Шаги workflow не ходят в SMTP напрямую: письмо ставится в очередь
// mail.outbound, и доставкой занимается отдельный потребитель.
// Так побочный эффект шага сводится к одной publish-операции.
package mailer
