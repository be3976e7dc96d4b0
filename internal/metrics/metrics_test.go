package metrics

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewRegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ElementsReceived.Inc()
	m.ElementsForwarded.Inc()
	m.ElementsDropped.WithLabelValues("no_broker").Inc()
	m.ROIReconnects.Inc()
	m.MQTTReconnects.Inc()
	m.MQTTConnected.Set(1)
	m.StateTransitions.WithLabelValues("listening").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	want := []string{
		"roiorbison_elements_received_total",
		"roiorbison_elements_forwarded_total",
		"roiorbison_elements_dropped_total",
		"roiorbison_roi_reconnects_total",
		"roiorbison_mqtt_reconnects_total",
		"roiorbison_mqtt_connected",
		"roiorbison_roi_state_transitions_total",
	}
	for _, w := range want {
		if !names[w] {
			t.Errorf("Gather() missing metric family %q", w)
		}
	}
}

func TestMetricsDroppedCounterLabelsByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ElementsDropped.WithLabelValues("no_broker").Inc()
	m.ElementsDropped.WithLabelValues("no_broker").Inc()
	m.ElementsDropped.WithLabelValues("publish_error").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	var found *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "roiorbison_elements_dropped_total" {
			found = f
		}
	}
	if found == nil {
		t.Fatal("elements_dropped_total family not found")
	}
	byReason := map[string]float64{}
	for _, metric := range found.Metric {
		for _, l := range metric.Label {
			if l.GetName() == "reason" {
				byReason[l.GetValue()] = metric.Counter.GetValue()
			}
		}
	}
	if byReason["no_broker"] != 2 {
		t.Errorf("no_broker count = %v, want 2", byReason["no_broker"])
	}
	if byReason["publish_error"] != 1 {
		t.Errorf("publish_error count = %v, want 1", byReason["publish_error"])
	}
}

func TestServeNoopOnEmptyAddr(t *testing.T) {
	if err := Serve(context.Background(), "", prometheus.NewRegistry(), testLogger()); err != nil {
		t.Errorf("Serve() error = %v, want nil", err)
	}
}

func TestServeShutsDownOnContextCancel(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	addr := lis.Addr().String()
	lis.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, prometheus.NewRegistry(), testLogger()) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("metrics endpoint never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v, want nil after graceful shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve() did not return after context cancel")
	}
}
