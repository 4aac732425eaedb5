// Package telemetry wires the buffer pool's counters into OpenTelemetry,
// exported via a Prometheus HTTP endpoint, following the upstream engine's
// telemetry bootstrap.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Config controls whether and how metrics are exported.
type Config struct {
	Enabled        bool
	ServiceName    string
	PrometheusPort int
}

// ShutdownFunc stops any background exporter goroutines started by New.
type ShutdownFunc func(context.Context) error

// Instruments holds the counters the disk scheduler and buffer pool
// manager increment on the hot path.
type Instruments struct {
	Hits         metric.Int64Counter
	Misses       metric.Int64Counter
	Evictions    metric.Int64Counter
	DirtyFlushes metric.Int64Counter
	DiskReads    metric.Int64Counter
	DiskWrites   metric.Int64Counter
	PinCount     metric.Int64UpDownCounter
}

// New builds the configured meter provider and derives the buffer pool's
// Instruments from it. When cfg.Enabled is false, every instrument is a
// no-op and New never starts an HTTP server.
func New(cfg Config) (*Instruments, ShutdownFunc, error) {
	if !cfg.Enabled {
		return noopInstruments(), func(context.Context) error { return nil }, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(cfg.ServiceName)

	inst, err := newInstruments(meter)
	if err != nil {
		return nil, nil, fmt.Errorf("creating buffer pool instruments: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.PrometheusPort), Handler: mux}
	go func() {
		_ = server.ListenAndServe()
	}()

	shutdown := func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutting down metrics server: %w", err)
		}
		return provider.Shutdown(ctx)
	}
	return inst, shutdown, nil
}

func newInstruments(meter metric.Meter) (*Instruments, error) {
	hits, err := meter.Int64Counter("bufferpool.hits", metric.WithDescription("page fetches served from the pool without disk access"))
	if err != nil {
		return nil, err
	}
	misses, err := meter.Int64Counter("bufferpool.misses", metric.WithDescription("page fetches that required a disk read"))
	if err != nil {
		return nil, err
	}
	evictions, err := meter.Int64Counter("bufferpool.evictions", metric.WithDescription("frames reclaimed by the replacer"))
	if err != nil {
		return nil, err
	}
	dirtyFlushes, err := meter.Int64Counter("bufferpool.dirty_flushes", metric.WithDescription("frames written back to disk by a flush, whether of a dirty victim or an explicit FlushPage/FlushAllPages"))
	if err != nil {
		return nil, err
	}
	diskReads, err := meter.Int64Counter("bufferpool.disk_reads", metric.WithDescription("pages read from the backing file"))
	if err != nil {
		return nil, err
	}
	diskWrites, err := meter.Int64Counter("bufferpool.disk_writes", metric.WithDescription("pages written to the backing file"))
	if err != nil {
		return nil, err
	}
	pinCount, err := meter.Int64UpDownCounter("bufferpool.pinned_frames", metric.WithDescription("outstanding page guards; a frame held by two guards counts twice"))
	if err != nil {
		return nil, err
	}
	return &Instruments{
		Hits:         hits,
		Misses:       misses,
		Evictions:    evictions,
		DirtyFlushes: dirtyFlushes,
		DiskReads:    diskReads,
		DiskWrites:   diskWrites,
		PinCount:     pinCount,
	}, nil
}

func noopInstruments() *Instruments {
	meter := noop.NewMeterProvider().Meter("noop")
	inst, _ := newInstruments(meter)
	return inst
}

// OrNoop returns inst unchanged, or a fresh no-op Instruments set if inst
// is nil. Components that accept an *Instruments use this so callers can
// pass nil when telemetry isn't wired up.
func OrNoop(inst *Instruments) *Instruments {
	if inst != nil {
		return inst
	}
	return noopInstruments()
}
