package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/fathima-sithara/social-platform/backend/shared/apperr"
)

// AMQPOptions configures the RabbitMQ broker.
type AMQPOptions struct {
	URL            string
	Exchange       string
	Durable        bool
	DeadLetter     bool
	Service        string
	ConnectTimeout time.Duration
}

func (o AMQPOptions) deadLetterExchange() string { return o.Exchange + ".dlx" }
func (o AMQPOptions) deadLetterQueue() string    { return o.Service + ".dead-letter" }

// AMQPBroker publishes to and consumes from a RabbitMQ topic exchange. One connection
// is shared; publishing uses a dedicated channel in confirm mode and every consumer
// opens its own channel.
type AMQPBroker struct {
	opts AMQPOptions
	log  *zap.Logger

	mu     sync.Mutex
	conn   *amqp.Connection
	pubCh  *amqp.Channel
	closed bool
}

func NewAMQPBroker(opts AMQPOptions, log *zap.Logger) *AMQPBroker {
	if opts.Exchange == "" {
		opts.Exchange = DefaultExchange
	}
	if opts.Service == "" {
		opts.Service = "service"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AMQPBroker{opts: opts, log: log.Named("amqp")}
}

// Connect dials until it succeeds or ConnectTimeout elapses, then declares the topology.
// Calling it on a live connection is a no-op.
func (b *AMQPBroker) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectLocked(ctx, true)
}

// connectLocked reuses a live connection. Otherwise it dials once, or keeps dialing
// with backoff for up to ConnectTimeout when retry is set. Publish and subscribe dial
// once so a dead broker never holds b.mu for ConnectTimeout.
func (b *AMQPBroker) connectLocked(ctx context.Context, retry bool) error {
	if b.closed {
		return apperr.Connection("connect amqp", errBrokerClosed)
	}
	if b.conn != nil && !b.conn.IsClosed() && b.pubCh != nil && !b.pubCh.IsClosed() {
		return nil
	}
	b.dropLocked()

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = b.opts.ConnectTimeout
	if bo.MaxElapsedTime <= 0 {
		bo.MaxElapsedTime = 30 * time.Second
	}

	var conn *amqp.Connection
	dial := func() error {
		c, err := amqp.DialConfig(b.opts.URL, amqp.Config{
			Dial:       amqp.DefaultDial(5 * time.Second),
			Properties: amqp.Table{"connection_name": b.opts.Service},
		})
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		b.log.Warn("broker not reachable, retrying", zap.Error(err), zap.Duration("wait", wait))
	}
	if !retry {
		if err := dial(); err != nil {
			return apperr.Connection("dial amqp", err)
		}
	} else if err := backoff.RetryNotify(dial, backoff.WithContext(bo, ctx), notify); err != nil {
		return apperr.Connection("dial amqp", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return apperr.Connection("open channel", err)
	}
	if err := b.declareTopology(ch); err != nil {
		ch.Close()
		conn.Close()
		return apperr.Connection("declare topology", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return apperr.Connection("enable confirms", err)
	}

	b.conn = conn
	b.pubCh = ch
	b.log.Info("connected to broker", zap.String("exchange", b.opts.Exchange), zap.Bool("durable", b.opts.Durable))
	return nil
}

func (b *AMQPBroker) declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		b.opts.Exchange,
		amqp.ExchangeTopic,
		b.opts.Durable,
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", b.opts.Exchange, err)
	}
	if !b.opts.DeadLetter {
		return nil
	}

	dlx := b.opts.deadLetterExchange()
	if err := ch.ExchangeDeclare(dlx, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", dlx, err)
	}
	q, err := ch.QueueDeclare(b.opts.deadLetterQueue(), true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", b.opts.deadLetterQueue(), err)
	}
	if err := ch.QueueBind(q.Name, "#", dlx, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", q.Name, err)
	}
	return nil
}

// Publish waits for the broker's confirm. A closed connection gets a single redial.
func (b *AMQPBroker) Publish(ctx context.Context, routingKey string, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.connectLocked(ctx, false); err != nil {
		return err
	}

	dc, err := b.pubCh.PublishWithDeferredConfirmWithContext(ctx,
		b.opts.Exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: b.deliveryMode(),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return apperr.Connection("publish "+routingKey, err)
	}
	ok, err := dc.WaitContext(ctx)
	if err != nil {
		return apperr.Connection("confirm "+routingKey, err)
	}
	if !ok {
		return apperr.Connection("confirm "+routingKey, errors.New("broker nacked the message"))
	}
	return nil
}

func (b *AMQPBroker) deliveryMode() uint8 {
	if b.opts.Durable {
		return amqp.Persistent
	}
	return amqp.Transient
}

// Consume declares an exclusive, server-named queue bound to routingKey and delivers
// one message at a time. When the channel drops it resubscribes on a fresh queue.
func (b *AMQPBroker) Consume(ctx context.Context, routingKey string) (<-chan Delivery, error) {
	msgs, ch, err := b.subscribe(ctx, routingKey)
	if err != nil {
		return nil, err
	}
	out := make(chan Delivery)
	go b.forward(ctx, routingKey, ch, msgs, out)
	return out, nil
}

func (b *AMQPBroker) subscribe(ctx context.Context, routingKey string) (<-chan amqp.Delivery, *amqp.Channel, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.connectLocked(ctx, false); err != nil {
		return nil, nil, err
	}
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, nil, apperr.Connection("open channel", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return nil, nil, apperr.Connection("set qos", err)
	}

	var args amqp.Table
	if b.opts.DeadLetter {
		args = amqp.Table{"x-dead-letter-exchange": b.opts.deadLetterExchange()}
	}
	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		args,
	)
	if err != nil {
		ch.Close()
		return nil, nil, apperr.Connection("declare queue", err)
	}
	if err := ch.QueueBind(q.Name, routingKey, b.opts.Exchange, false, nil); err != nil {
		ch.Close()
		return nil, nil, apperr.Connection("bind queue", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx,
		q.Name,
		"",    // consumer
		false, // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, nil, apperr.Connection("consume "+routingKey, err)
	}
	b.log.Info("subscribed", zap.String("routing_key", routingKey), zap.String("queue", q.Name))
	return msgs, ch, nil
}

func (b *AMQPBroker) forward(ctx context.Context, routingKey string, ch *amqp.Channel, msgs <-chan amqp.Delivery, out chan<- Delivery) {
	defer close(out)
	for {
		for m := range msgs {
			d := NewDelivery(m.RoutingKey, m.Body,
				func() error { return m.Ack(false) },
				func() error { return m.Nack(false, false) },
			)
			d.Redelivered = m.Redelivered
			select {
			case out <- d:
			case <-ctx.Done():
				ch.Close()
				return
			}
		}
		ch.Close()

		if ctx.Err() != nil || b.isClosed() {
			return
		}
		b.log.Warn("consumer channel closed, resubscribing", zap.String("routing_key", routingKey))

		bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
		err := backoff.Retry(func() error {
			if b.isClosed() {
				return backoff.Permanent(errBrokerClosed)
			}
			var err error
			msgs, ch, err = b.subscribe(ctx, routingKey)
			return err
		}, bo)
		if err != nil {
			b.log.Error("giving up on subscription", zap.String("routing_key", routingKey), zap.Error(err))
			return
		}
	}
}

func (b *AMQPBroker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *AMQPBroker) dropLocked() {
	if b.pubCh != nil {
		b.pubCh.Close()
		b.pubCh = nil
	}
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
}

// Close tears down the connection; in-flight deliveries that were not acked are
// requeued by the broker.
func (b *AMQPBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	var err error
	if b.pubCh != nil {
		err = errors.Join(err, ignoreClosed(b.pubCh.Close()))
	}
	if b.conn != nil {
		err = errors.Join(err, ignoreClosed(b.conn.Close()))
	}
	b.pubCh, b.conn = nil, nil
	return err
}

func ignoreClosed(err error) error {
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}
