package infra

import (
	"context"
	"errors"
	"fmt"

	"admission-gateway/middleware/admission/domain"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "admission"

// PrometheusStatsStore conta decisões por classe e resultado.
// Labels ficam só em profile/outcome para não explodir cardinalidade com IPs.
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
}

func NewPrometheusStatsStore(reg prometheus.Registerer) (*PrometheusStatsStore, error) {
	decisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decisions_total",
			Help:      "Admission decisions by traffic class and outcome",
		},
		[]string{"profile", "outcome"},
	)
	if err := reg.Register(decisions); err != nil {
		return nil, fmt.Errorf("register decisions counter: %w", err)
	}
	return &PrometheusStatsStore{decisions: decisions}, nil
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.decisions.WithLabelValues(ev.Profile.String(), ev.Outcome.String()).Inc()
	return nil
}

// RegisterStateGauges expõe o tamanho do estado em memória do limiter e do tracker.
// Os valores são lidos de Stats() a cada scrape.
func RegisterStateGauges(reg prometheus.Registerer, lim *WindowLimiter, abuse *AbuseTracker) error {
	gauges := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "ratelimit",
			Name:      "tracked_entries",
			Help:      "Rate limit window entries held in memory",
		}, func() float64 { return float64(lim.Stats().TrackedEntries) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "ratelimit",
			Name:      "blocked_clients",
			Help:      "Clients with an active rate limit block",
		}, func() float64 { return float64(lim.Stats().BlockedClients) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "abuse",
			Name:      "tracked_rows",
			Help:      "Abuse (client, category) counters held in memory",
		}, func() float64 { return float64(abuse.Stats().TrackedRows) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "abuse",
			Name:      "blocked_clients",
			Help:      "Clients in the abuse block set",
		}, func() float64 { return float64(abuse.Stats().BlockedClients) }),
	}
	for _, g := range gauges {
		if err := reg.Register(g); err != nil {
			return fmt.Errorf("register state gauge: %w", err)
		}
	}
	return nil
}

// MultiStatsStore repassa o evento para vários stores. Todos são chamados;
// os erros voltam juntos.
type MultiStatsStore []domain.StatsStore

func (m MultiStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
