package chat

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "parley"

// Metrics aggregates the chat collectors. A nil *Metrics is valid and
// records nothing, which keeps wiring optional in tests.
type Metrics struct {
	sessionsTotal  prometheus.Counter
	sessionsActive prometheus.Gauge
	nameRejections prometheus.Counter
	events         *prometheus.CounterVec
	lagSkipped     prometheus.Counter
}

// NewMetrics registers the chat collectors on reg. The bus feeds a gauge of
// open subscriptions directly.
func NewMetrics(reg prometheus.Registerer, bus *Bus) *Metrics {
	f := promauto.With(reg)

	m := &Metrics{
		sessionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_total",
			Help:      "Sessions accepted since start, including rejected namings.",
		}),
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_active",
			Help:      "Sessions currently in the active state.",
		}),
		nameRejections: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "name_rejections_total",
			Help:      "Naming attempts rejected as taken or invalid.",
		}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bus_events_total",
			Help:      "Events observed on the bus by kind.",
		}, []string{"kind"}),
		lagSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "subscriber_lag_skipped_total",
			Help:      "Events skipped by lagging subscribers.",
		}),
	}

	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "bus_subscribers",
		Help:      "Open bus subscriptions.",
	}, func() float64 { return float64(bus.Subscribers()) })

	return m
}

// ObserveBus feeds the per-kind event counter from its own subscription. It
// is an ordinary subscriber with its own cursor and the usual lag behavior,
// so it never slows publishers down. Blocks until the bus closes or ctx ends;
// run it in a goroutine at service start.
func (m *Metrics) ObserveBus(ctx context.Context, log *slog.Logger, bus *Bus) {
	if m == nil {
		return
	}
	if log == nil {
		log = slog.Default()
	}

	sub := bus.Subscribe()
	defer sub.Close()

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			var lag LagError
			if errors.As(err, &lag) {
				m.lagObserved(lag.Skipped)
				continue
			}
			if !errors.Is(err, ErrBusClosed) && !errors.Is(err, context.Canceled) {
				log.Warn("chat.metrics.observer.stop", "err", err)
			}
			return
		}
		m.eventObserved(ev.Kind)
	}
}

func (m *Metrics) sessionStarted() {
	if m == nil {
		return
	}
	m.sessionsTotal.Inc()
}

func (m *Metrics) sessionWentActive() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

func (m *Metrics) sessionLeftActive() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

func (m *Metrics) nameRejected() {
	if m == nil {
		return
	}
	m.nameRejections.Inc()
}

func (m *Metrics) eventObserved(k EventKind) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(k.String()).Inc()
}

func (m *Metrics) lagObserved(skipped uint64) {
	if m == nil {
		return
	}
	m.lagSkipped.Add(float64(skipped))
}
