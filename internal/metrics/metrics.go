package metrics

import (
	"errors"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tracker-service/internal/publish"
)

// Metrics holds the tracker's Prometheus collectors.
type Metrics struct {
	publishes    *prometheus.CounterVec
	commands     *prometheus.CounterVec
	readFailures *prometheus.CounterVec
	reconnects   *prometheus.CounterVec
	cycles       prometheus.Counter
	cycleLatency prometheus.Histogram
	nextPublish  prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_publishes_total",
			Help: "Publish attempts by topic and result.",
		}, []string{"topic", "result"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_commands_total",
			Help: "Inbound commands by message and scheduling decision.",
		}, []string{"message", "decision"}),
		readFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_sample_read_failures_total",
			Help: "Telemetry reads that fell back to the unavailable value.",
		}, []string{"source"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_transport_reconnects_total",
			Help: "Transport reconnect attempts by result.",
		}, []string{"result"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_publish_cycles_total",
			Help: "Completed publish cycles.",
		}),
		cycleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_publish_cycle_seconds",
			Help:    "Duration of a publish cycle.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		nextPublish: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_next_publish_milliseconds",
			Help: "Time until the next scheduled publish.",
		}),
	}

	reg.MustRegister(m.publishes, m.commands, m.readFailures, m.reconnects,
		m.cycles, m.cycleLatency, m.nextPublish)
	return m
}

// ObserveCycle records the outcome of a publish cycle.
func (m *Metrics) ObserveCycle(r publish.Report) {
	m.cycles.Inc()
	m.cycleLatency.Observe(r.Duration.Seconds())
	for _, topic := range r.Published {
		m.publishes.WithLabelValues(topic, "ok").Inc()
	}
	for topic := range r.Failed {
		m.publishes.WithLabelValues(topic, "failed").Inc()
	}
	for _, source := range r.ReadFailures {
		m.readFailures.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) ObserveCommand(message, decision string) {
	m.commands.WithLabelValues(message, decision).Inc()
}

func (m *Metrics) ObserveReconnect(err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.reconnects.WithLabelValues(result).Inc()
}

func (m *Metrics) SetNextPublish(ms float64) {
	m.nextPublish.Set(ms)
}

// Serve exposes /metrics and /healthz on addr in the background.
func Serve(addr string, gatherer prometheus.Gatherer, logger *log.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("metrics server exited: %v", err)
		}
	}()
	return srv
}
