package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dispatch"

// Metrics holds the service collectors on a private registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec

	appointmentsCreated *prometheus.CounterVec
	assignments         *prometheus.CounterVec
	roundsOpened        *prometheus.CounterVec
	roundsExpired       prometheus.Counter
	claims              *prometheus.CounterVec
	stalled             *prometheus.CounterVec

	sweepDuration prometheus.Histogram
	sweepsSkipped prometheus.Counter
	sweepFailures prometheus.Counter

	partnerLoad  *prometheus.GaugeVec
	hubLoad      *prometheus.GaugeVec
	loadResets   prometheus.Counter
	storeHealthy prometheus.Gauge
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"path", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "HTTP error responses by error code",
		}, []string{"path", "method", "code"}),
		appointmentsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_created_total",
			Help:      "Appointments accepted at intake by origin",
		}, []string{"origin"}),
		assignments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_total",
			Help:      "Assignment attempts by outcome",
		}, []string{"outcome"}),
		roundsOpened: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_opened_total",
			Help:      "Preview rounds opened by round number",
		}, []string{"round"}),
		roundsExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "round_records_expired_total",
			Help:      "Preview round records expired by the escalation sweep",
		}),
		claims: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Claim attempts by outcome",
		}, []string{"outcome"}),
		stalled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_stalled_total",
			Help:      "Appointments for which escalation found no further partners",
		}, []string{"reason"}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "escalation_sweep_duration_seconds",
			Help:      "Duration of escalation sweeps",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
		sweepsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalation_sweeps_skipped_total",
			Help:      "Sweep ticks skipped because another sweep held the lock",
		}),
		sweepFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalation_item_failures_total",
			Help:      "Per-appointment failures inside escalation sweeps",
		}),
		partnerLoad: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "partner_load",
			Help:      "Appointments claimed by each partner this period",
		}, []string{"partner"}),
		hubLoad: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hub_load",
			Help:      "Appointments assigned to each hub this period",
		}, []string{"hub"}),
		loadResets: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_resets_total",
			Help:      "Daily load resets performed",
		}),
		storeHealthy: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_healthy",
			Help:      "1 when the last record store health check succeeded",
		}),
	}
}

// Registry exposes the registry for scraping and tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

func (m *Metrics) AppointmentCreated(origin string) {
	if m == nil {
		return
	}
	m.appointmentsCreated.WithLabelValues(origin).Inc()
}

// AssignmentOutcome counts one Assign call: "assigned", "fallback" or an
// error code.
func (m *Metrics) AssignmentOutcome(outcome string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RoundOpened(round int) {
	if m == nil {
		return
	}
	m.roundsOpened.WithLabelValues(strconv.Itoa(round)).Inc()
}

func (m *Metrics) RoundsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.roundsExpired.Add(float64(n))
}

// ClaimOutcome counts one claim attempt: "accepted" or a rejection code.
func (m *Metrics) ClaimOutcome(outcome string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AppointmentStalled(reason string) {
	if m == nil {
		return
	}
	m.stalled.WithLabelValues(reason).Inc()
}

func (m *Metrics) SweepFinished(duration time.Duration, failures int) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
	if failures > 0 {
		m.sweepFailures.Add(float64(failures))
	}
}

func (m *Metrics) SweepSkipped() {
	if m == nil {
		return
	}
	m.sweepsSkipped.Inc()
}

func (m *Metrics) SetPartnerLoad(partner string, load int) {
	if m == nil {
		return
	}
	m.partnerLoad.WithLabelValues(partner).Set(float64(load))
}

func (m *Metrics) SetHubLoad(hub string, load int) {
	if m == nil {
		return
	}
	m.hubLoad.WithLabelValues(hub).Set(float64(load))
}

// LoadsReset zeroes the load gauges.
func (m *Metrics) LoadsReset() {
	if m == nil {
		return
	}
	m.loadResets.Inc()
	m.partnerLoad.Reset()
	m.hubLoad.Reset()
}

func (m *Metrics) SetStoreHealthy(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.storeHealthy.Set(1)
		return
	}
	m.storeHealthy.Set(0)
}
