package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var (
	tracerProvider *sdktrace.TracerProvider
	initOnce       sync.Once
)

// Init registers metrics with the default registry and installs the global tracer provider.
func Init(ctx context.Context) error {
	initOnce.Do(func() {
		registerMetrics(prometheus.DefaultRegisterer)
		tracerProvider = sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tracerProvider)
	})
	return nil
}

// Shutdown flushes the tracer provider installed by Init.
func Shutdown(ctx context.Context) error {
	if tracerProvider == nil {
		return nil
	}
	return tracerProvider.Shutdown(ctx)
}

// MetricsServer serves /metrics and is managed by the lifecycle runtime.
type MetricsServer struct {
	addr     string
	gatherer prometheus.Gatherer

	runMutex sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

func NewMetricsServer(addr string, gatherer prometheus.Gatherer) *MetricsServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &MetricsServer{addr: addr, gatherer: gatherer}
}

func (m *MetricsServer) Start(ctx context.Context) error {
	m.runMutex.Lock()
	defer m.runMutex.Unlock()
	if m.server != nil || m.addr == "" {
		return nil
	}

	listener, err := net.Listen("tcp", m.addr)
	if err != nil {
		return err
	}

	zapLogger, err := zap.NewProduction()
	if err != nil {
		_ = listener.Close()
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
	m.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          zap.NewStdLog(zapLogger.Named("metrics")),
	}
	m.listener = listener
	m.done = make(chan struct{})

	go func(server *http.Server, done chan struct{}) {
		defer close(done)
		defer func() { _ = zapLogger.Sync() }()
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithField("component", "metrics").WithError(err).Error("metrics server failed")
		}
	}(m.server, m.done)

	log.WithField("component", "metrics").WithField("addr", listener.Addr().String()).Info("metrics server started")
	return nil
}

// Addr returns the bound address once started.
func (m *MetricsServer) Addr() string {
	m.runMutex.Lock()
	defer m.runMutex.Unlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

func (m *MetricsServer) Stop(ctx context.Context) error {
	m.runMutex.Lock()
	server, done := m.server, m.done
	m.server, m.listener = nil, nil
	m.runMutex.Unlock()
	if server == nil {
		return nil
	}

	err := server.Shutdown(ctx)
	select {
	case <-done:
	case <-ctx.Done():
	}
	return err
}
