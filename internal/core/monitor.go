package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultPingInterval is the liveness probe period.
const DefaultPingInterval = 30 * time.Second

// Monitor probes every registered connection once per interval and evicts
// the ones that did not answer the previous probe.
type Monitor struct {
	registry *Registry
	interval time.Duration
	metrics  Metrics
	log      *zerolog.Logger
}

// NewMonitor builds a liveness monitor over registry.
func NewMonitor(registry *Registry, interval time.Duration, metrics Metrics, logger *zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultPingInterval
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Monitor{registry: registry, interval: interval, metrics: metrics, log: logger}
}

// Run sweeps on every tick until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep performs one liveness round and returns the number of evicted
// connections. Probes are sent asynchronously; a reply that arrives before
// the next sweep keeps the connection registered.
func (m *Monitor) Sweep(ctx context.Context) int {
	evicted := 0
	for _, c := range m.registry.Snapshot() {
		if !m.registry.IsAlive(c) {
			m.evict(c)
			evicted++
			continue
		}
		m.registry.MarkSuspect(c)
		go m.probe(ctx, c)
	}
	return evicted
}

func (m *Monitor) probe(ctx context.Context, c *Conn) {
	pctx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()

	if err := c.transport.Ping(pctx); err != nil {
		m.log.Debug().Err(err).Str("conn_id", c.ID).Msg("liveness probe failed")
		return
	}
	m.registry.MarkAlive(c)
}

func (m *Monitor) evict(c *Conn) {
	if !m.registry.Deregister(c) {
		return
	}
	if err := c.transport.Close("liveness timeout"); err != nil {
		m.log.Debug().Err(err).Str("conn_id", c.ID).Msg("close evicted transport")
	}
	m.metrics.Evicted()
	m.metrics.ConnClosed()
	m.log.Info().Str("conn_id", c.ID).Msg("evicted unresponsive connection")
}
