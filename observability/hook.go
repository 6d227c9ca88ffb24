package observability

import (
	"log/slog"

	"github.com/aindrajaya/ask-football/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Hook receives the failures that are recovered below the router and turns
// them into Prometheus counters. The reporting component has already logged
// them, so the hook only adds a debug line.
type Hook struct {
	log                *slog.Logger
	transportFailures  *prometheus.CounterVec
	identityFallbacks  prometheus.Counter
	quotaStoreFailures *prometheus.CounterVec
	capabilityFailures *prometheus.CounterVec
	published          *prometheus.CounterVec
	rejected           *prometheus.CounterVec
}

// NewHook registers the chat counters on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewHook(log *slog.Logger, reg prometheus.Registerer) *Hook {
	h := &Hook{
		log: log,
		transportFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "transport_failures_total",
			Help:      "Cross-context transport failures by channel.",
		}, []string{"channel"}),
		identityFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "identity_fallbacks_total",
			Help:      "Identity resolutions that fell back to a pseudo-identity.",
		}),
		quotaStoreFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "quota_store_failures_total",
			Help:      "Quota store failures by operation.",
		}, []string{"op"}),
		capabilityFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "ai_reply_failures_total",
			Help:      "AI replies that were not published.",
		}, []string{"channel"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "published_total",
			Help:      "Envelopes published on the bus by channel and type.",
		}, []string{"channel", "type"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "sends_rejected_total",
			Help:      "Sends rejected by the daily quota.",
		}, []string{"channel"}),
	}
	reg.MustRegister(
		h.transportFailures,
		h.identityFallbacks,
		h.quotaStoreFailures,
		h.capabilityFailures,
		h.published,
		h.rejected,
	)
	return h
}

func (h *Hook) TransportFailed(channel domain.ChannelID, err error) {
	h.transportFailures.WithLabelValues(string(channel)).Inc()
	h.log.Debug("transport failure reported", "channel", channel, "error", err)
}

func (h *Hook) IdentityFallback(err error) {
	h.identityFallbacks.Inc()
	h.log.Debug("identity fallback reported", "error", err)
}

func (h *Hook) QuotaStoreFailed(op string, err error) {
	h.quotaStoreFailures.WithLabelValues(op).Inc()
	h.log.Debug("quota store failure reported", "op", op, "error", err)
}

func (h *Hook) CapabilityFailed(channel domain.ChannelID, err error) {
	h.capabilityFailures.WithLabelValues(string(channel)).Inc()
}

func (h *Hook) MessagePublished(channel domain.ChannelID, eventType domain.EventType) {
	h.published.WithLabelValues(string(channel), string(eventType)).Inc()
}

func (h *Hook) SendRejected(channel domain.ChannelID) {
	h.rejected.WithLabelValues(string(channel)).Inc()
}
