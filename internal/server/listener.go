package server

import (
	"context"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/bgpfix/rtrd/internal/store"
)

// ListenerConfig configures the optional TCP listener mode (spec §4.3
// addition, SPEC_FULL.md §4.3): multiple concurrent router connections
// accepted in one process, each running the same session state machine
// as the default stdio mode.
type ListenerConfig struct {
	Addr          string
	Store         *store.Store
	Registry      *Registry
	AcceptPerSec  float64 // rate limit on accepted connections; <= 0 means 50/s
	WakeupBacklog int     // per-session wakeup channel buffer; <= 0 means 4
	Log           zerolog.Logger
}

var sessionSeq atomic.Uint64

// ListenAndServe accepts connections on cfg.Addr until ctx is
// cancelled, running one Session per connection. Each session
// registers its own wakeup channel in cfg.Registry so a builder-side
// notification (broadcast by the caller via cfg.Registry.Broadcast)
// reaches every concurrently-connected router.
func ListenAndServe(ctx context.Context, cfg ListenerConfig) error {
	if cfg.AcceptPerSec <= 0 {
		cfg.AcceptPerSec = 50
	}
	if cfg.WakeupBacklog <= 0 {
		cfg.WakeupBacklog = 4
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	limiter := rate.NewLimiter(rate.Limit(cfg.AcceptPerSec), 1)
	cfg.Log.Info().Str("addr", cfg.Addr).Msg("server: listening")

	for {
		if err := limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}

		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			cfg.Log.Warn().Err(err).Msg("server: accept failed")
			continue
		}

		go serveTCPConn(ctx, conn, cfg)
	}
}

func serveTCPConn(ctx context.Context, conn net.Conn, cfg ListenerConfig) {
	id := conn.RemoteAddr().String() + "#" + strconv.FormatUint(sessionSeq.Add(1), 10)
	log := cfg.Log.With().Str("session", id).Logger()

	wakeupCh := make(chan []byte, cfg.WakeupBacklog)
	unregister := cfg.Registry.Register(id, wakeupCh)
	defer unregister()

	sess := &Session{ID: id, Conn: conn, Store: cfg.Store, Wakeup: wakeupCh, Log: log}
	if err := sess.Run(ctx); err != nil {
		log.Debug().Err(err).Msg("server: session ended")
	}
}
