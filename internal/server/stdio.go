package server

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/bgpfix/rtrd/internal/store"
	"github.com/bgpfix/rtrd/internal/wakeup"
)

// StdioConfig configures the default deployment mode (spec §4.3): one
// process, one session, over a full-duplex byte stream (typically
// stdin/stdout under an SSH forced-command).
type StdioConfig struct {
	Conn  io.ReadWriteCloser
	Store *store.Store
	Bus   *wakeup.Bus            // required
	Kafka *wakeup.KafkaSubscriber // optional second wakeup source
	Log   zerolog.Logger
}

// Serve runs exactly one session to completion. If Kafka is set, its
// events are merged with the unix bus's so either source can trigger a
// re-check of "current" (SPEC_FULL.md §4.3).
func Serve(ctx context.Context, cfg StdioConfig) error {
	wake := cfg.Bus.Events()
	if cfg.Kafka != nil {
		wake = mergeWakeups(ctx, cfg.Bus.Events(), cfg.Kafka.Events())
	}

	sess := &Session{ID: "stdio", Conn: cfg.Conn, Store: cfg.Store, Wakeup: wake, Log: cfg.Log}
	return sess.Run(ctx)
}

// mergeWakeups fans two wakeup sources into one channel a Session can
// select on uniformly.
func mergeWakeups(ctx context.Context, a, b <-chan []byte) <-chan []byte {
	out := make(chan []byte, 4)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-a:
				if !ok {
					a = nil
					continue
				}
				forward(ctx, out, payload)
			case payload, ok := <-b:
				if !ok {
					b = nil
					continue
				}
				forward(ctx, out, payload)
			}
			if a == nil && b == nil {
				return
			}
		}
	}()
	return out
}

func forward(ctx context.Context, out chan<- []byte, payload []byte) {
	select {
	case out <- payload:
	case <-ctx.Done():
	}
}
