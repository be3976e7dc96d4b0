// Package metrics exposes process counters on an optional Prometheus HTTP
// endpoint. It is a supplemented feature (spec.md has no metrics module);
// it is wired so the bridge can be monitored the way the teacher's own
// clients can be, instead of left opaque.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the counters and gauges the bridge exposes.
type Metrics struct {
	ElementsReceived  prometheus.Counter
	ElementsForwarded prometheus.Counter
	ElementsDropped   *prometheus.CounterVec
	ROIReconnects     prometheus.Counter
	MQTTReconnects    prometheus.Counter
	MQTTConnected     prometheus.Gauge
	StateTransitions  *prometheus.CounterVec
}

// New registers every metric against reg and returns the handle used to
// update them. Pass prometheus.NewRegistry() for isolated tests, or
// prometheus.DefaultRegisterer for the process registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ElementsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "roiorbison",
			Name:      "elements_received_total",
			Help:      "ROI elements decoded off the TCP stream.",
		}),
		ElementsForwarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "roiorbison",
			Name:      "elements_forwarded_total",
			Help:      "ROI elements published to MQTT.",
		}),
		ElementsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roiorbison",
			Name:      "elements_dropped_total",
			Help:      "ROI elements dropped before publish, by reason.",
		}, []string{"reason"}),
		ROIReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "roiorbison",
			Name:      "roi_reconnects_total",
			Help:      "ROI TCP connection attempts, including the first and failed dials.",
		}),
		MQTTReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "roiorbison",
			Name:      "mqtt_reconnects_total",
			Help:      "MQTT connection-lost events observed.",
		}),
		MQTTConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "roiorbison",
			Name:      "mqtt_connected",
			Help:      "1 if the MQTT client currently reports connected, else 0.",
		}),
		StateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "roiorbison",
			Name:      "roi_state_transitions_total",
			Help:      "ROI state machine transitions, by resulting state.",
		}, []string{"state"}),
	}
}

// Serve starts an HTTP server exposing /metrics on addr and blocks until ctx
// is canceled, then shuts the server down. An empty addr disables serving
// entirely and Serve returns nil immediately.
func Serve(ctx context.Context, addr string, reg prometheus.Gatherer, log *slog.Logger) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics listener starting", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return server.Shutdown(context.Background())
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
