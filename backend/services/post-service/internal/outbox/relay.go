package outbox

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/fathima-sithara/social-platform/backend/shared/metrics"
)

// RawPublisher publishes an encoded body and returns once the broker confirmed it.
type RawPublisher interface {
	PublishRaw(ctx context.Context, routingKey string, body []byte) error
}

// Relay moves outbox records onto the bus in creation order. A record is deleted only
// after the broker confirmed it, so a crash in between republishes it (at-least-once).
type Relay struct {
	store    Store
	pub      RawPublisher
	interval time.Duration
	batch    int
	log      *zap.Logger
	kick     chan struct{}
}

func NewRelay(store Store, pub RawPublisher, interval time.Duration, batch int, log *zap.Logger) *Relay {
	if batch <= 0 {
		batch = 100
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{
		store:    store,
		pub:      pub,
		interval: interval,
		batch:    batch,
		log:      log.Named("outbox"),
		kick:     make(chan struct{}, 1),
	}
}

// Kick wakes the relay after a write instead of waiting for the next tick.
func (r *Relay) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled. Failures back off exponentially up to a minute.
func (r *Relay) Run(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.interval
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0

	wait := time.Duration(0)
	for {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-r.kick:
			timer.Stop()
		case <-timer.C:
		}

		n, err := r.Flush(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			wait = bo.NextBackOff()
			r.log.Warn("outbox relay stalled", zap.Error(err), zap.Duration("retry_in", wait))
		case n == r.batch:
			// probably more waiting
			bo.Reset()
			wait = 0
		default:
			bo.Reset()
			wait = r.interval
		}
	}
}

// Flush publishes one batch and stops at the first failure, so a later record never
// overtakes an earlier one.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	recs, err := r.store.Pending(ctx, r.batch)
	if err != nil {
		return 0, err
	}
	for i, rec := range recs {
		if err := r.pub.PublishRaw(ctx, rec.RoutingKey, rec.Payload); err != nil {
			metrics.OutboxRelayed.WithLabelValues("error").Inc()
			if merr := r.store.MarkAttempt(ctx, rec.ID); merr != nil {
				r.log.Warn("could not record attempt", zap.String("id", rec.ID), zap.Error(merr))
			}
			return i, err
		}
		if err := r.store.Delete(ctx, rec.ID); err != nil {
			// published but still stored: it goes out again, consumers are idempotent
			metrics.OutboxRelayed.WithLabelValues("error").Inc()
			return i, err
		}
		metrics.OutboxRelayed.WithLabelValues("ok").Inc()
		r.log.Debug("relayed", zap.String("id", rec.ID), zap.String("routing_key", rec.RoutingKey))
	}
	return len(recs), nil
}
