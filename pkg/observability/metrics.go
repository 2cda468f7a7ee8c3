package observability

import (
	"context"
	"time"

	"github.com/aretw0/hotswap/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors fed by lifecycle hooks.
type Metrics struct {
	events        *prometheus.CounterVec
	failures      *prometheus.CounterVec
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hotswap",
			Name:      "events_total",
			Help:      "Lifecycle events emitted, by type.",
		}, []string{"type"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hotswap",
			Name:      "failures_total",
			Help:      "Failures reported, by error kind and channel.",
		}, []string{"kind", "channel"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hotswap",
			Name:      "cycles_total",
			Help:      "Settled update cycles, by outcome.",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hotswap",
			Name:      "cycle_duration_seconds",
			Help:      "Time from packet dequeue to settled cycle.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
	}
	reg.MustRegister(m.events, m.failures, m.cycles, m.cycleDuration)
	return m
}

// TrackInstances registers gauges computed from the instance table on scrape.
func (m *Metrics) TrackInstances(reg prometheus.Registerer, list func() []domain.InstanceView) {
	count := func(status domain.InstanceStatus) func() float64 {
		return func() float64 {
			n := 0
			for _, v := range list() {
				if v.Status == status {
					n++
				}
			}
			return float64(n)
		}
	}
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "hotswap",
			Name:        "instances",
			Help:        "Instances in the table, by status.",
			ConstLabels: prometheus.Labels{"status": string(domain.StatusLive)},
		}, count(domain.StatusLive)),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "hotswap",
			Name:        "instances",
			Help:        "Instances in the table, by status.",
			ConstLabels: prometheus.Labels{"status": string(domain.StatusPlaceholder)},
		}, count(domain.StatusPlaceholder)),
	)
}

// Hooks returns the lifecycle hooks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnEvent: func(ctx context.Context, e *domain.Event) {
			m.events.WithLabelValues(string(e.Type)).Inc()
			if e.Type == domain.EventError {
				m.failures.WithLabelValues(string(e.Kind), string(e.Channel)).Inc()
			}
		},
		OnCycleSettled: func(ctx context.Context, cycle string, elapsed time.Duration, reloaded bool) {
			outcome := "applied"
			if reloaded {
				outcome = "reload"
			}
			m.cycles.WithLabelValues(outcome).Inc()
			m.cycleDuration.Observe(elapsed.Seconds())
		},
	}
}

// Combine fans every callback out to all hook sets, in order.
func Combine(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnEvent: func(ctx context.Context, e *domain.Event) {
			for _, h := range sets {
				if h.OnEvent != nil {
					h.OnEvent(ctx, e)
				}
			}
		},
		OnCycleStart: func(ctx context.Context, cycle string, packet domain.UpdatePacket) {
			for _, h := range sets {
				if h.OnCycleStart != nil {
					h.OnCycleStart(ctx, cycle, packet)
				}
			}
		},
		OnCycleSettled: func(ctx context.Context, cycle string, elapsed time.Duration, reloaded bool) {
			for _, h := range sets {
				if h.OnCycleSettled != nil {
					h.OnCycleSettled(ctx, cycle, elapsed, reloaded)
				}
			}
		},
	}
}
