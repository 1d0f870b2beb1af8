package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineCollector bundles Prometheus metrics for ingestion and render
// cycles. A nil collector is valid and records nothing.
type PipelineCollector struct {
	gatherer prometheus.Gatherer

	Cycles         *prometheus.CounterVec
	CycleDurations *prometheus.HistogramVec
	LastSuccess    *prometheus.GaugeVec
	SamplesStored  prometheus.Counter
	RecordsSkipped *prometheus.CounterVec
}

// NewPipelineCollector registers pipeline metrics against reg, defaulting to
// the global Prometheus registry when nil.
func NewPipelineCollector(reg prometheus.Registerer) (*PipelineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	cycles, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flightmap_cycles_total",
		Help: "Completed pipeline cycles, labeled by cycle kind and outcome.",
	}, []string{"cycle", "outcome"}), "flightmap_cycles_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flightmap_cycle_duration_seconds",
		Help:    "Wall time of pipeline cycles in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"cycle"}), "flightmap_cycle_duration_seconds")
	if err != nil {
		return nil, err
	}

	lastSuccess, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flightmap_last_success_timestamp_seconds",
		Help: "Unix time of the last successful cycle of each kind.",
	}, []string{"cycle"}), "flightmap_last_success_timestamp_seconds")
	if err != nil {
		return nil, err
	}

	stored, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flightmap_samples_stored_total",
		Help: "Samples durably appended to the history store.",
	}), "flightmap_samples_stored_total")
	if err != nil {
		return nil, err
	}

	skipped, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flightmap_records_skipped_total",
		Help: "Provider records not stored, labeled by reason.",
	}, []string{"reason"}), "flightmap_records_skipped_total")
	if err != nil {
		return nil, err
	}

	return &PipelineCollector{
		gatherer:       gatherer,
		Cycles:         cycles,
		CycleDurations: durations,
		LastSuccess:    lastSuccess,
		SamplesStored:  stored,
		RecordsSkipped: skipped,
	}, nil
}

// ObserveCycle records one finished cycle. outcome is "ok" or an error class.
func (c *PipelineCollector) ObserveCycle(cycle, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Cycles.WithLabelValues(cycle, outcome).Inc()
	c.CycleDurations.WithLabelValues(cycle).Observe(elapsed.Seconds())
	if outcome == "ok" {
		c.LastSuccess.WithLabelValues(cycle).SetToCurrentTime()
	}
}

func (c *PipelineCollector) AddStored(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.SamplesStored.Add(float64(n))
}

func (c *PipelineCollector) AddSkipped(reason string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.RecordsSkipped.WithLabelValues(reason).Add(float64(n))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *PipelineCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
