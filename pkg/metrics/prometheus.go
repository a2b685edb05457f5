package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cycles       prometheus.Histogram
	stageLatency *prometheus.HistogramVec
	signals      *prometheus.CounterVec
	assessments  *prometheus.CounterVec
	orders       *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	exposure     prometheus.Gauge
	lastPrice    *prometheus.GaugeVec
	messagesSent *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	drainSize    prometheus.Gauge
}

// New registers collectors on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers collectors on reg; tests pass a private registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		cycles: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "quantpipe_cycle_duration_seconds",
			Help:    "Duration of completed pipeline cycles",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		stageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quantpipe_stage_duration_seconds",
			Help:    "Duration of a single stage call",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"stage"}),
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quantpipe_signals_total",
			Help: "Signals produced, by direction",
		}, []string{"direction"}),
		assessments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quantpipe_risk_assessments_total",
			Help: "Risk assessments, by outcome",
		}, []string{"outcome"}),
		orders: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quantpipe_orders_total",
			Help: "Orders attempted, by final status",
		}, []string{"status"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quantpipe_errors_total",
			Help: "Total number of errors encountered",
		}, []string{"type"}),
		exposure: f.NewGauge(prometheus.GaugeOpts{
			Name: "quantpipe_portfolio_exposure_pct",
			Help: "Committed notional as a percentage of portfolio value",
		}),
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quantpipe_last_price",
			Help: "Last recorded close for a symbol",
		}, []string{"symbol"}),
		messagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "quantpipe_messages_sent_total",
			Help: "Total number of messages sent to a backend",
		}, []string{"backend", "topic"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quantpipe_operation_duration_seconds",
			Help:    "Duration of auxiliary operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		drainSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "quantpipe_buffer_drain_size",
			Help: "Candles handed over by the last buffer drain",
		}),
	}
}

func (r *Recorder) RecordCycle(seconds float64) { r.cycles.Observe(seconds) }

func (r *Recorder) RecordStageLatency(stage string, seconds float64) {
	r.stageLatency.WithLabelValues(stage).Observe(seconds)
}

func (r *Recorder) RecordSignal(direction string) { r.signals.WithLabelValues(direction).Inc() }

func (r *Recorder) RecordAssessment(outcome string) { r.assessments.WithLabelValues(outcome).Inc() }

func (r *Recorder) RecordOrder(status string) { r.orders.WithLabelValues(status).Inc() }

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordExposure(pct float64) { r.exposure.Set(pct) }

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordMessageSent records a message handed to a backend topic.
func (r *Recorder) RecordMessageSent(backend, topic string) {
	r.messagesSent.WithLabelValues(backend, topic).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordBufferDrain(size int) { r.drainSize.Set(float64(size)) }
