package kafka

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce       sync.Once
	metricsRegisterer prometheus.Registerer = prometheus.DefaultRegisterer

	producerMsgsTotal     *prometheus.CounterVec
	producerBytesTotal    *prometheus.CounterVec
	producerLatency       *prometheus.HistogramVec
	consumerQueueDepth    *prometheus.GaugeVec
	consumerHandleLatency *prometheus.HistogramVec
	consumerResults       *prometheus.CounterVec
)

// SetMetricsRegisterer must be called before the first producer or consumer is built.
func SetMetricsRegisterer(reg prometheus.Registerer) {
	if reg != nil {
		metricsRegisterer = reg
	}
}

func initMetrics() {
	metricsOnce.Do(func() {
		f := promauto.With(metricsRegisterer)
		producerMsgsTotal = f.NewCounterVec(prometheus.CounterOpts{
			Name: "quantpipe_kafka_producer_messages_total",
			Help: "Messages published to Kafka",
		}, []string{"topic", "result"})
		producerBytesTotal = f.NewCounterVec(prometheus.CounterOpts{
			Name: "quantpipe_kafka_producer_bytes_total",
			Help: "Payload bytes published",
		}, []string{"topic"})
		producerLatency = f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quantpipe_kafka_producer_publish_seconds",
			Help:    "Publish latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
		consumerQueueDepth = f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "quantpipe_kafka_consumer_queue_depth",
			Help: "Messages waiting for a consumer worker",
		}, []string{"topic"})
		consumerHandleLatency = f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quantpipe_kafka_consumer_handle_seconds",
			Help:    "Handling time per message, retries included",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
		consumerResults = f.NewCounterVec(prometheus.CounterOpts{
			Name: "quantpipe_kafka_consumer_messages_total",
			Help: "Consumed messages by outcome",
		}, []string{"topic", "result"})
	})
}

func observePublish(topic string, bytes int64, count int, dur time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	producerMsgsTotal.WithLabelValues(topic, result).Add(float64(count))
	producerBytesTotal.WithLabelValues(topic).Add(float64(bytes))
	producerLatency.WithLabelValues(topic).Observe(dur.Seconds())
}
