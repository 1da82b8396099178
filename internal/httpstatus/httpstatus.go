// Package httpstatus implements the status sidecar both the builder
// and the server can expose alongside their primary work: Prometheus
// metrics, a one-shot JSON status snapshot, and a websocket stream of
// version-change events (SPEC_FULL.md §D, ambient to spec.md — the
// wire protocol itself has no HTTP surface).
package httpstatus

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/bgpfix/rtrd/internal/store"
)

// Hub fans a single stream of version-change payloads out to every
// connected websocket client, the same broadcast shape
// internal/server.Registry uses for live sessions.
type Hub struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan []byte]struct{})}
}

func (h *Hub) subscribe() chan []byte {
	ch := make(chan []byte, 4)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
	close(ch)
}

// Broadcast delivers payload to every subscriber, non-blocking.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Pump relays events from a wakeup-style source (such as
// internal/wakeup.Bus.Events) into the hub until that channel closes,
// so websocket subscribers see the same version changes live sessions do.
func (h *Hub) Pump(events <-chan []byte) {
	for payload := range events {
		h.Broadcast(payload)
	}
}

// New builds the sidecar router: GET /metrics (Prometheus exposition),
// GET /status (JSON snapshot), GET /events (websocket push stream).
func New(st *store.Store, hub *Hub, log zerolog.Logger) http.Handler {
	rt := &router{
		st:  st,
		hub: hub,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	r := chi.NewRouter()
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	r.Get("/status", rt.status)
	r.Get("/events", rt.events)
	return r
}

type router struct {
	st       *store.Store
	hub      *Hub
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

type statusResponse struct {
	Serial            *uint32 `json:"serial,omitempty"`
	RetainedSnapshots int     `json:"retained_snapshots"`
}

func (rt *router) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{}
	if serial, err := rt.st.ReadCurrent(); err == nil {
		resp.Serial = &serial
	}
	if serials, err := rt.st.RetainedSerials(); err == nil {
		resp.RetainedSnapshots = len(serials)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		rt.log.Warn().Err(err).Msg("httpstatus: failed to encode status")
	}
}

func (rt *router) events(w http.ResponseWriter, r *http.Request) {
	conn, err := rt.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rt.log.Warn().Err(err).Msg("httpstatus: websocket upgrade failed")
		return
	}
	defer conn.Close()

	ch := rt.hub.subscribe()
	defer rt.hub.unsubscribe(ch)

	for payload := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
