package core

import "github.com/rs/zerolog"

// Dispatcher fans persisted messages out to session peers.
type Dispatcher struct {
	sessions *Multiplexer
	metrics  Metrics
	log      *zerolog.Logger
}

// NewDispatcher builds a dispatcher over the given session index.
func NewDispatcher(sessions *Multiplexer, metrics Metrics, logger *zerolog.Logger) *Dispatcher {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Dispatcher{sessions: sessions, metrics: metrics, log: logger}
}

// Broadcast delivers ev to every member of sessionID except exclude and
// returns how many members accepted it. Members that are closing or whose
// queue is full are skipped; the rest of the fan-out continues.
func (d *Dispatcher) Broadcast(sessionID int64, exclude *Conn, ev *Event) int {
	delivered, dropped := 0, 0
	for _, c := range d.sessions.MembersOf(sessionID) {
		if c == exclude {
			continue
		}
		if c.State() != StateJoined {
			continue
		}
		if !c.send(ev) {
			dropped++
			d.log.Warn().
				Str("conn_id", c.ID).
				Int64("session_id", sessionID).
				Msg("skipping peer: send queue unavailable")
			continue
		}
		delivered++
	}

	d.metrics.Delivered(delivered)
	if dropped > 0 {
		d.metrics.Dropped(dropped)
	}
	return delivered
}
