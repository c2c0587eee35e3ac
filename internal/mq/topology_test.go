package mq

import "testing"

func TestDeadLetterArgsRouteToDeadLetterQueue(t *testing.T) {
	args := deadLetterArgs()

	if got := args["x-dead-letter-exchange"]; got != DLXExchange {
		t.Errorf("x-dead-letter-exchange = %v, want %s", got, DLXExchange)
	}

	// The DLX is a direct exchange and the dead-letter queue is bound
	// with DeadLetterKey, so rejected messages must be re-routed under
	// that exact key or they are silently dropped.
	if got := args["x-dead-letter-routing-key"]; got != DeadLetterKey {
		t.Errorf("x-dead-letter-routing-key = %v, want %s", got, DeadLetterKey)
	}
}
