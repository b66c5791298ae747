// Package metrics exposes Prometheus counters for spec resolution and tool calls.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alucardeht/elk-mcp/internal/logger"
)

var log = logger.ForComponent("metrics")

const namespace = "elkmcp"

// Collector owns its registry so several instances can coexist in one process.
type Collector struct {
	registry *prometheus.Registry

	specResolutions     *prometheus.CounterVec
	specResolveDuration *prometheus.HistogramVec
	toolsRegistered     *prometheus.GaugeVec

	toolCalls        *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		specResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "spec_resolutions_total",
				Help:      "OpenAPI spec resolutions by backend and result",
			},
			[]string{"backend", "result"},
		),
		specResolveDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "spec_resolve_duration_seconds",
				Help:      "Time spent resolving and loading an OpenAPI spec",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"backend"},
		),
		toolsRegistered: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tools_registered",
				Help:      "Tools currently registered per backend",
			},
			[]string{"backend"},
		),
		toolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Tool calls by tool and status",
			},
			[]string{"tool", "status"},
		),
		toolCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_call_duration_seconds",
				Help:      "Tool call latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveResolve records one resolve-and-build cycle for backend.
func (c *Collector) ObserveResolve(backend string, d time.Duration, err error) {
	c.specResolutions.WithLabelValues(backend, result(err)).Inc()
	c.specResolveDuration.WithLabelValues(backend).Observe(d.Seconds())
}

func (c *Collector) SetTools(backend string, n int) {
	c.toolsRegistered.WithLabelValues(backend).Set(float64(n))
}

// ObserveCall matches tools.CallObserver.
func (c *Collector) ObserveCall(name string, _ json.RawMessage, d time.Duration, err error) {
	status := result(err)
	c.toolCalls.WithLabelValues(name, status).Inc()
	c.toolCallDuration.WithLabelValues(status).Observe(d.Seconds())
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Info("metrics listener started", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func result(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "deadline exceeded") {
		return "timeout"
	}
	return "error"
}
