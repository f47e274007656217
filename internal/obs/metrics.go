package obs

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds every counter/histogram this control plane emits:
// conflicts detected, sync gate denials, hook rejections, git commits,
// deployment resets, config-lock wait seconds, worktree adds/removals,
// and container-type cache hits/misses.
type Metrics struct {
	ConflictsDetected      metric.Int64Counter
	SyncGateDenials        metric.Int64Counter
	HookRejections         metric.Int64Counter
	GitCommits             metric.Int64Counter
	DeploymentResets       metric.Int64Counter
	ConfigLockWaitSeconds  metric.Float64Histogram
	WorktreeAdds           metric.Int64Counter
	WorktreeRemovals       metric.Int64Counter
	ContainerTypeCacheHits metric.Int64Counter
	ContainerTypeCacheMiss metric.Int64Counter
}

// NewMetrics builds the OTel meter bridged to a fresh Prometheus registry
// (not the controller-runtime global one - this process isn't a
// Kubernetes controller) and returns the populated Metrics struct plus an
// http.Handler ready to be mounted at "/metrics".
func NewMetrics() (*Metrics, http.Handler, error) {
	registry := prometheus.NewRegistry()

	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("gas-sync")

	m := &Metrics{}
	var buildErr error
	build := func(v metric.Int64Counter, e error) metric.Int64Counter {
		if e != nil && buildErr == nil {
			buildErr = e
		}
		return v
	}
	buildHist := func(v metric.Float64Histogram, e error) metric.Float64Histogram {
		if e != nil && buildErr == nil {
			buildErr = e
		}
		return v
	}

	m.ConflictsDetected = build(meter.Int64Counter("gas_sync_conflicts_detected_total"))
	m.SyncGateDenials = build(meter.Int64Counter("gas_sync_sync_gate_denials_total"))
	m.HookRejections = build(meter.Int64Counter("gas_sync_hook_rejections_total"))
	m.GitCommits = build(meter.Int64Counter("gas_sync_git_commits_total"))
	m.DeploymentResets = build(meter.Int64Counter("gas_sync_deployment_resets_total"))
	m.ConfigLockWaitSeconds = buildHist(meter.Float64Histogram("gas_sync_config_lock_wait_seconds"))
	m.WorktreeAdds = build(meter.Int64Counter("gas_sync_worktree_adds_total"))
	m.WorktreeRemovals = build(meter.Int64Counter("gas_sync_worktree_removals_total"))
	m.ContainerTypeCacheHits = build(meter.Int64Counter("gas_sync_container_type_cache_hits_total"))
	m.ContainerTypeCacheMiss = build(meter.Int64Counter("gas_sync_container_type_cache_misses_total"))
	if buildErr != nil {
		return nil, nil, buildErr
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m, handler, nil
}

// IncCounter is a small helper so call sites don't need to import
// context/attribute boilerplate for the common case of a bare increment.
func IncCounter(ctx context.Context, c metric.Int64Counter) {
	if c == nil {
		return
	}
	c.Add(ctx, 1)
}
