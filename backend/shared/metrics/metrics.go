package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeAcked        = "acked"
	OutcomeRetried      = "retried"
	OutcomeDeadLettered = "dead_lettered"
)

var (
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Events handed to the broker, by routing key and result.",
	}, []string{"routing_key", "result"})

	EventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_consumed_total",
		Help: "Delivered events by routing key and outcome (acked, retried, dead_lettered).",
	}, []string{"routing_key", "outcome"})

	CacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_invalidations_total",
		Help: "Cache invalidation runs by result.",
	}, []string{"result"})

	CacheKeysDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_keys_deleted_total",
		Help: "Keys removed by cache invalidation.",
	})

	OutboxRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_relay_total",
		Help: "Outbox records processed by the relay, by result.",
	}, []string{"result"})
)

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}

func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
