package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/fathima-sithara/social-platform/backend/shared/apperr"
	sharedcfg "github.com/fathima-sithara/social-platform/backend/shared/config"
	"github.com/fathima-sithara/social-platform/backend/shared/metrics"
)

// Handler processes one event body. Returning an error wrapping apperr.ErrMalformedEvent
// skips the remaining attempts.
type Handler func(ctx context.Context, body []byte) error

// RetryPolicy bounds how long the dispatcher keeps trying one delivery.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// HandlerTimeout applies to every attempt; zero disables it.
	HandlerTimeout time.Duration
}

func RetryPolicyFrom(cfg sharedcfg.BusCfg) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval(),
		MaxInterval:     cfg.Retry.MaxInterval(),
		HandlerTimeout:  cfg.HandlerTimeout(),
	}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	bo.MaxElapsedTime = 0
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithMaxRetries(bo, uint64(attempts-1))
}

// Dispatcher binds handlers to routing keys. Each binding is drained by a single
// goroutine, so one handler never runs concurrently with itself.
type Dispatcher struct {
	broker Broker
	policy RetryPolicy
	log    *zap.Logger
	wg     sync.WaitGroup
}

func NewDispatcher(b Broker, policy RetryPolicy, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{broker: b, policy: policy, log: log.Named("dispatcher")}
}

// Bind subscribes h to routingKey until ctx is cancelled.
func (d *Dispatcher) Bind(ctx context.Context, routingKey string, h Handler) error {
	deliveries, err := d.broker.Consume(ctx, routingKey)
	if err != nil {
		return err
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for del := range deliveries {
			d.handle(ctx, routingKey, del, h)
		}
		d.log.Info("consumer stopped", zap.String("routing_key", routingKey))
	}()
	return nil
}

// Wait blocks until every bound consumer has stopped.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) handle(ctx context.Context, binding string, del Delivery, h Handler) {
	key := del.RoutingKey
	if key == "" {
		key = binding
	}
	log := d.log.With(zap.String("routing_key", key))

	attempts := 0
	op := func() error {
		attempts++
		actx, cancel := ctx, context.CancelFunc(func() {})
		if d.policy.HandlerTimeout > 0 {
			actx, cancel = context.WithTimeout(ctx, d.policy.HandlerTimeout)
		}
		defer cancel()

		err := invoke(actx, h, del.Body)
		if errors.Is(err, apperr.ErrMalformedEvent) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		metrics.EventsConsumed.WithLabelValues(key, metrics.OutcomeRetried).Inc()
		log.Warn("handler failed, retrying", zap.Int("attempt", attempts), zap.Duration("wait", wait), zap.Error(err))
	}

	err := backoff.RetryNotify(op, backoff.WithContext(d.policy.backOff(), ctx), notify)
	if err == nil {
		if aerr := del.Ack(); aerr != nil {
			log.Error("ack failed", zap.Error(aerr))
			return
		}
		metrics.EventsConsumed.WithLabelValues(key, metrics.OutcomeAcked).Inc()
		return
	}

	if ctx.Err() != nil {
		// shutting down; the broker redelivers what was never acked
		log.Info("left unacknowledged on shutdown", zap.Error(err))
		return
	}

	herr := &apperr.HandlerError{RoutingKey: key, Attempts: attempts, Err: err}
	log.Error("dead-lettering event", zap.Error(herr), zap.ByteString("body", del.Body))
	if derr := del.DeadLetter(); derr != nil {
		log.Error("dead-letter failed", zap.Error(derr))
		return
	}
	metrics.EventsConsumed.WithLabelValues(key, metrics.OutcomeDeadLettered).Inc()
}

// invoke turns a handler panic into an error so the delivery is retried and
// dead-lettered instead of killing the consumer.
func invoke(ctx context.Context, h Handler, body []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, body)
}

// JSONHandler decodes the body into T before calling fn. Undecodable bodies, and
// payloads whose Validate method fails, are reported as malformed.
func JSONHandler[T any](fn func(ctx context.Context, event T) error) Handler {
	return func(ctx context.Context, body []byte) error {
		var event T
		if err := json.Unmarshal(body, &event); err != nil {
			return apperr.Malformed("decode payload", err)
		}
		if v, ok := any(event).(interface{ Validate() error }); ok {
			if err := v.Validate(); err != nil {
				if !errors.Is(err, apperr.ErrMalformedEvent) {
					err = apperr.Malformed("invalid payload", err)
				}
				return err
			}
		}
		return fn(ctx, event)
	}
}
