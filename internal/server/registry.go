package server

import (
	"github.com/puzpuzpuz/xsync/v4"
)

// Registry tracks every live session in a process so a single wakeup
// event can be broadcast to all of them without a mutex on the hot
// path (spec §4.3 TCP listener mode addition, SPEC_FULL.md §4.3). The
// default single-session stdio mode never needs one: a session there
// reads directly off the bus channel it owns exclusively.
type Registry struct {
	sessions *xsync.Map[string, chan []byte]
}

// NewRegistry returns an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: xsync.NewMap[string, chan []byte]()}
}

// Register adds a session's wakeup channel to the registry and returns
// an unregister func the caller must defer.
func (r *Registry) Register(id string, ch chan []byte) func() {
	r.sessions.Store(id, ch)
	return func() { r.sessions.Delete(id) }
}

// Broadcast delivers payload to every registered session's wakeup
// channel, non-blocking: a session with a full buffer misses this
// particular event, which is harmless since it always re-reads
// "current" on its next wakeup or client interaction anyway (spec
// §4.4).
func (r *Registry) Broadcast(payload []byte) {
	r.sessions.Range(func(_ string, ch chan []byte) bool {
		select {
		case ch <- payload:
		default:
		}
		return true
	})
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	return r.sessions.Size()
}
