package core

import "github.com/vovakirdan/caserelay/internal/store"

// Metrics receives relay activity counters.
type Metrics interface {
	ConnOpened()
	ConnClosed()
	Evicted()
	ProtocolError(code string)
	Persisted(t store.MessageType)
	PersistFailed()
	Delivered(n int)
	Dropped(n int)
}

type nopMetrics struct{}

func (nopMetrics) ConnOpened()                 {}
func (nopMetrics) ConnClosed()                 {}
func (nopMetrics) Evicted()                    {}
func (nopMetrics) ProtocolError(string)        {}
func (nopMetrics) Persisted(store.MessageType) {}
func (nopMetrics) PersistFailed()              {}
func (nopMetrics) Delivered(int)               {}
func (nopMetrics) Dropped(int)                 {}
