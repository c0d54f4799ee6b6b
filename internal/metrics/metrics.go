package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/vovakirdan/caserelay/internal/core"
	"github.com/vovakirdan/caserelay/internal/store"
)

const meterName = "github.com/vovakirdan/caserelay/relay"

// Provider owns the meter provider and the Prometheus registry it exports to.
type Provider struct {
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry
}

// NewProvider wires an OpenTelemetry meter provider to a dedicated Prometheus registry.
func NewProvider() (*Provider, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}
	return &Provider{
		provider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)),
		registry: registry,
	}, nil
}

// Meter returns the relay meter.
func (p *Provider) Meter() metric.Meter {
	return p.provider.Meter(meterName)
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("meter provider: %w", err)
	}
	return nil
}

var _ core.Metrics = (*Relay)(nil)

// Relay records relay activity on OpenTelemetry instruments.
type Relay struct {
	connections     metric.Int64UpDownCounter
	evictions       metric.Int64Counter
	protocolErrors  metric.Int64Counter
	persisted       metric.Int64Counter
	persistFailures metric.Int64Counter
	deliveries      metric.Int64Counter
	dropped         metric.Int64Counter
}

// NewRelay creates the relay instruments. sessions is sampled on every
// collection to report the number of active sessions; it may be nil.
func NewRelay(meter metric.Meter, sessions func() int) (*Relay, error) {
	connections, err := meter.Int64UpDownCounter("relay_connections",
		metric.WithDescription("Open relay connections"))
	if err != nil {
		return nil, err
	}

	evictions, err := meter.Int64Counter("relay_evictions",
		metric.WithDescription("Connections terminated by the liveness monitor"))
	if err != nil {
		return nil, err
	}

	protocolErrors, err := meter.Int64Counter("relay_protocol_errors",
		metric.WithDescription("Error frames sent to clients"))
	if err != nil {
		return nil, err
	}

	persisted, err := meter.Int64Counter("relay_messages_persisted",
		metric.WithDescription("Messages durably stored"))
	if err != nil {
		return nil, err
	}

	persistFailures, err := meter.Int64Counter("relay_persist_failures",
		metric.WithDescription("Messages that failed to persist"))
	if err != nil {
		return nil, err
	}

	deliveries, err := meter.Int64Counter("relay_deliveries",
		metric.WithDescription("Message frames queued to peers"))
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter("relay_deliveries_dropped",
		metric.WithDescription("Message frames dropped for unavailable peers"))
	if err != nil {
		return nil, err
	}

	if sessions != nil {
		gauge, err := meter.Int64ObservableGauge("relay_sessions",
			metric.WithDescription("Sessions with at least one joined connection"))
		if err != nil {
			return nil, err
		}
		_, err = meter.RegisterCallback(
			func(_ context.Context, o metric.Observer) error {
				o.ObserveInt64(gauge, int64(sessions()))
				return nil
			},
			gauge,
		)
		if err != nil {
			return nil, err
		}
	}

	return &Relay{
		connections:     connections,
		evictions:       evictions,
		protocolErrors:  protocolErrors,
		persisted:       persisted,
		persistFailures: persistFailures,
		deliveries:      deliveries,
		dropped:         dropped,
	}, nil
}

func (r *Relay) ConnOpened() {
	r.connections.Add(context.Background(), 1)
}

func (r *Relay) ConnClosed() {
	r.connections.Add(context.Background(), -1)
}

func (r *Relay) Evicted() {
	r.evictions.Add(context.Background(), 1)
}

func (r *Relay) ProtocolError(code string) {
	r.protocolErrors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("code", code)))
}

func (r *Relay) Persisted(t store.MessageType) {
	r.persisted.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", string(t))))
}

func (r *Relay) PersistFailed() {
	r.persistFailures.Add(context.Background(), 1)
}

func (r *Relay) Delivered(n int) {
	if n > 0 {
		r.deliveries.Add(context.Background(), int64(n))
	}
}

func (r *Relay) Dropped(n int) {
	if n > 0 {
		r.dropped.Add(context.Background(), int64(n))
	}
}
