package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsServerServesRegistry(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	server := NewMetricsServer("127.0.0.1:0", registry)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop(context.Background()) })

	resp, err := http.Get("http://" + server.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), "test_counter_total 1") {
		t.Fatalf("counter not exposed:\n%s", body)
	}

	if err := server.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := server.Stop(ctx); err != nil {
		t.Fatalf("second stop should be a no-op: %v", err)
	}
}

func TestRecordersDoNotPanicBeforeInit(t *testing.T) {
	t.Parallel()

	RecordRaidDetection()
	RecordRaidStep("log_channel", "ok")
	RecordModlogRegistration("kicked")
	RecordModlogConsume("hit")
	StartEventProcessing("test")()
}
