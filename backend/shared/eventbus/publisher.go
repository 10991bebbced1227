package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/fathima-sithara/social-platform/backend/shared/metrics"
)

// Publisher serializes payloads as bare JSON and hands them to the broker.
type Publisher struct {
	broker Broker
	log    *zap.Logger
}

func NewPublisher(b Broker, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{broker: b, log: log.Named("publisher")}
}

// Emit publishes payload under routingKey and returns after the broker accepted it.
func (p *Publisher) Emit(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", routingKey, err)
	}
	return p.PublishRaw(ctx, routingKey, body)
}

// PublishRaw publishes an already encoded body, as stored by the outbox.
func (p *Publisher) PublishRaw(ctx context.Context, routingKey string, body []byte) error {
	err := p.broker.Publish(ctx, routingKey, body)
	metrics.EventsPublished.WithLabelValues(routingKey, metrics.Result(err)).Inc()
	if err != nil {
		p.log.Error("publish failed", zap.String("routing_key", routingKey), zap.Error(err))
		return err
	}
	p.log.Debug("event published", zap.String("routing_key", routingKey), zap.Int("bytes", len(body)))
	return nil
}
