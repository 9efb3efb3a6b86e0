package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/decision-assistant/internal/infrastructure/resilience"
)

// Connection-level failures the client recovers from on its own once the
// server is reachable again.
var transientErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	nats.ErrDisconnected,
	nats.ErrSlowConsumer,
}

func classify(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyTransport(err); ok {
		return class
	}
	for _, target := range transientErrors {
		if errors.Is(err, target) {
			return resilience.Transient
		}
	}
	return resilience.Permanent
}
