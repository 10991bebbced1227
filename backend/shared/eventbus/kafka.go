package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fathima-sithara/social-platform/backend/shared/apperr"
)

// KafkaOptions configures the Kafka broker. Routing keys map one to one onto topics.
type KafkaOptions struct {
	Brokers        []string
	Service        string
	DeadLetter     bool
	ConnectTimeout time.Duration
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type committer interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

func deadLetterTopic(topic string) string { return topic + ".dlq" }

// KafkaBroker is the alternative transport. Every Consume call joins a fresh consumer
// group starting at the tail, which gives the same per-process fan-out as an exclusive
// AMQP queue.
type KafkaBroker struct {
	opts   KafkaOptions
	log    *zap.Logger
	writer messageWriter

	mu      sync.Mutex
	readers []*kafka.Reader
	closed  bool
}

func NewKafkaBroker(opts KafkaOptions, log *zap.Logger) *KafkaBroker {
	if len(opts.Brokers) == 0 {
		opts.Brokers = []string{"localhost:9092"}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaBroker{
		opts: opts,
		log:  log.Named("kafka"),
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(opts.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

// Connect checks that at least one broker answers, retrying until ConnectTimeout.
func (b *KafkaBroker) Connect(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = b.opts.ConnectTimeout
	if bo.MaxElapsedTime <= 0 {
		bo.MaxElapsedTime = 30 * time.Second
	}
	dial := func() error {
		var errs error
		for _, addr := range b.opts.Brokers {
			conn, err := kafka.DialContext(ctx, "tcp", addr)
			if err == nil {
				return conn.Close()
			}
			errs = errors.Join(errs, err)
		}
		return errs
	}
	notify := func(err error, wait time.Duration) {
		b.log.Warn("broker not reachable, retrying", zap.Error(err), zap.Duration("wait", wait))
	}
	if err := backoff.RetryNotify(dial, backoff.WithContext(bo, ctx), notify); err != nil {
		return apperr.Connection("dial kafka", err)
	}
	b.log.Info("connected to broker", zap.Strings("brokers", b.opts.Brokers))
	return nil
}

func (b *KafkaBroker) Publish(ctx context.Context, routingKey string, body []byte) error {
	if b.isClosed() {
		return apperr.Connection("publish "+routingKey, errBrokerClosed)
	}
	err := b.writer.WriteMessages(ctx, kafka.Message{
		Topic: routingKey,
		Value: body,
		Time:  time.Now(),
	})
	if err != nil {
		return apperr.Connection("publish "+routingKey, err)
	}
	return nil
}

// Consume only accepts exact routing keys; topic wildcards have no Kafka equivalent.
func (b *KafkaBroker) Consume(ctx context.Context, routingKey string) (<-chan Delivery, error) {
	if strings.ContainsAny(routingKey, "*#") {
		return nil, fmt.Errorf("kafka broker cannot subscribe to pattern %q", routingKey)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, apperr.Connection("consume "+routingKey, errBrokerClosed)
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     b.opts.Brokers,
		Topic:       routingKey,
		GroupID:     fmt.Sprintf("%s-%s-%s", b.opts.Service, uuid.NewString(), routingKey),
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	b.readers = append(b.readers, r)
	b.mu.Unlock()

	out := make(chan Delivery)
	go b.forward(ctx, routingKey, r, out)
	return out, nil
}

func (b *KafkaBroker) forward(ctx context.Context, routingKey string, r *kafka.Reader, out chan<- Delivery) {
	defer close(out)
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || b.isClosed() || errors.Is(err, context.Canceled) {
				return
			}
			b.log.Warn("kafka fetch failed", zap.String("routing_key", routingKey), zap.Error(err))
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return
			}
		}

		d := b.delivery(m, r)
		select {
		case out <- d:
		case <-ctx.Done():
			return
		}
	}
}

// delivery acks by committing the offset. Dead-lettering copies the message to
// <topic>.dlq first when enabled and commits only once that write succeeded.
func (b *KafkaBroker) delivery(m kafka.Message, c committer) Delivery {
	commit := func() error { return c.CommitMessages(context.Background(), m) }
	return NewDelivery(m.Topic, m.Value, commit, func() error {
		if b.opts.DeadLetter {
			if err := b.writer.WriteMessages(context.Background(), kafka.Message{
				Topic: deadLetterTopic(m.Topic),
				Key:   []byte(b.opts.Service),
				Value: m.Value,
				Time:  time.Now(),
			}); err != nil {
				return fmt.Errorf("write %s: %w", deadLetterTopic(m.Topic), err)
			}
		}
		return commit()
	})
}

func (b *KafkaBroker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *KafkaBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	var err error
	for _, r := range b.readers {
		err = errors.Join(err, r.Close())
	}
	return errors.Join(err, b.writer.Close())
}
