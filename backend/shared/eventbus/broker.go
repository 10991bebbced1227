package eventbus

import (
	"context"
	"fmt"
	"strings"

	sharedcfg "github.com/fathima-sithara/social-platform/backend/shared/config"
	"go.uber.org/zap"
)

// Broker is the transport under the publisher and the dispatcher.
type Broker interface {
	// Connect establishes the connection, retrying with backoff up to the configured limit.
	Connect(ctx context.Context) error
	// Publish returns once the broker has accepted the message.
	Publish(ctx context.Context, routingKey string, body []byte) error
	// Consume binds a private queue to routingKey. The channel closes when ctx ends
	// or the broker is closed.
	Consume(ctx context.Context, routingKey string) (<-chan Delivery, error)
	Close() error
}

// Delivery is one received message. Exactly one of Ack or DeadLetter must be called.
type Delivery struct {
	RoutingKey  string
	Body        []byte
	Redelivered bool

	ack        func() error
	deadLetter func() error
}

func NewDelivery(routingKey string, body []byte, ack, deadLetter func() error) Delivery {
	return Delivery{RoutingKey: routingKey, Body: body, ack: ack, deadLetter: deadLetter}
}

func (d Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

func (d Delivery) DeadLetter() error {
	if d.deadLetter == nil {
		return nil
	}
	return d.deadLetter()
}

// New builds the broker selected by cfg.Driver. service names the dead-letter queue
// and the consumer groups.
func New(cfg sharedcfg.BusCfg, service string, log *zap.Logger) (Broker, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "amqp", "rabbitmq":
		return NewAMQPBroker(AMQPOptions{
			URL:            cfg.URL,
			Exchange:       cfg.Exchange,
			Durable:        cfg.Durable,
			DeadLetter:     cfg.DeadLetter,
			Service:        service,
			ConnectTimeout: cfg.ConnectTimeout(),
		}, log), nil
	case "kafka":
		return NewKafkaBroker(KafkaOptions{
			Brokers:        cfg.Brokers,
			Service:        service,
			DeadLetter:     cfg.DeadLetter,
			ConnectTimeout: cfg.ConnectTimeout(),
		}, log), nil
	case "memory":
		return NewMemoryBroker(), nil
	default:
		return nil, fmt.Errorf("unknown bus driver %q", cfg.Driver)
	}
}

// MatchTopic reports whether routingKey matches an AMQP topic pattern:
// "*" stands for exactly one word, "#" for zero or more.
func MatchTopic(pattern, routingKey string) bool {
	return matchWords(strings.Split(pattern, "."), strings.Split(routingKey, "."))
}

func matchWords(p, k []string) bool {
	for len(p) > 0 {
		switch p[0] {
		case "#":
			if len(p) == 1 {
				return true
			}
			for i := 0; i <= len(k); i++ {
				if matchWords(p[1:], k[i:]) {
					return true
				}
			}
			return false
		case "*":
			if len(k) == 0 {
				return false
			}
		default:
			if len(k) == 0 || p[0] != k[0] {
				return false
			}
		}
		p, k = p[1:], k[1:]
	}
	return len(k) == 0
}
