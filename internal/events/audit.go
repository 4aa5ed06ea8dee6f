// Package events publishes security audit events to the optional
// RabbitMQ stream. Without a configured broker every emit is a no-op.
package events

import (
	"context"

	"github.com/datapainel/datapainel-backend/pkg/config"
	"github.com/datapainel/datapainel-backend/pkg/logger"
	"github.com/datapainel/datapainel-backend/pkg/messaging"
)

// Audit fans security events out to the broker. The zero value (and a
// nil *Audit) is a disabled publisher.
type Audit struct {
	publisher *messaging.Publisher
	rmq       *messaging.RabbitMQ
	logger    *logger.Logger
}

// Connect establishes the audit stream. An empty broker URL returns a
// disabled publisher without error; a configured but unreachable broker
// is an error, since the operator asked for auditing.
func Connect(cfg *config.RabbitMQConfig, log *logger.Logger) (*Audit, error) {
	if cfg.URL == "" {
		log.Info().Msg("audit stream disabled: no broker configured")
		return &Audit{logger: log}, nil
	}

	rmq, err := messaging.New(cfg, log)
	if err != nil {
		return nil, err
	}

	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeSecurityEvents, "datapainel-gateway", log)
	if err != nil {
		rmq.Close()
		return nil, err
	}

	return &Audit{
		publisher: publisher,
		rmq:       rmq,
		logger:    log,
	}, nil
}

// Emit publishes one event. Auditing is best-effort: failures are
// logged, never surfaced to the login path.
func (a *Audit) Emit(ctx context.Context, eventType string, data map[string]interface{}) {
	if a == nil || a.publisher == nil {
		return
	}
	if err := a.publisher.Publish(ctx, eventType, data); err != nil {
		a.logger.Warn().Err(err).Str("event_type", eventType).Msg("failed to publish audit event")
	}
}

// Health reports the broker connection status
func (a *Audit) Health() map[string]string {
	if a == nil || a.rmq == nil {
		return map[string]string{"status": "disabled"}
	}
	return a.rmq.Health()
}

// Close shuts the broker connection down
func (a *Audit) Close() {
	if a == nil || a.rmq == nil {
		return
	}
	if err := a.rmq.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to close audit stream")
	}
}
