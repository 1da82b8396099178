package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/pflag"

	"github.com/bgpfix/rtrd/internal/config"
	"github.com/bgpfix/rtrd/internal/httpstatus"
	"github.com/bgpfix/rtrd/internal/server"
	"github.com/bgpfix/rtrd/internal/store"
	"github.com/bgpfix/rtrd/internal/wakeup"
)

func runServer(args []string) error {
	f := pflag.NewFlagSet("rtrd server", pflag.ExitOnError)
	f.SortFlags = false
	storeDir := f.String("store-dir", ".", "directory holding AXFR/IXFR/current files")
	listen := f.String("listen", "", "optional TCP listen address for many concurrent sessions; empty means single stdio session")
	acceptRate := f.Float64("accept-rate", 50, "max accepted TCP connections per second in --listen mode")
	kafkaBrokers := f.StringSlice("kafka-brokers", nil, "optional Kafka brokers, as a second wakeup source alongside the unix datagram bus")
	kafkaTopic := f.String("kafka-topic", "rtrd-versions", "Kafka topic to subscribe to")
	kafkaGroup := f.String("kafka-group", "rtrd-server", "Kafka consumer group id")
	httpAddr := f.String("http-addr", "", "optional status sidecar listen address (empty disables it)")
	f.String("log", "info", "log level (debug/info/warn/error/disabled)")
	f.Usage = func() { f.PrintDefaults() }

	k, err := config.Load(f, args)
	if err != nil {
		return err
	}
	log, err := config.NewLogger(k.String("log"))
	if err != nil {
		return err
	}

	st := store.New(*storeDir)
	ctx := context.Background()

	var kafkaSub *wakeup.KafkaSubscriber
	if len(*kafkaBrokers) > 0 {
		kafkaSub, err = wakeup.NewKafkaSubscriber(*kafkaGroup, *kafkaBrokers, *kafkaTopic, log)
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer kafkaSub.Close()
	}

	if *httpAddr != "" {
		hub := httpstatus.NewHub()
		httpSrv := &http.Server{Addr: *httpAddr, Handler: httpstatus.New(st, hub, log)}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("server: status sidecar stopped")
			}
		}()
	}

	if *listen != "" {
		registry := server.NewRegistry()
		bus, err := wakeup.Listen(*storeDir)
		if err != nil {
			return err
		}
		defer bus.Close()
		go relayBroadcasts(ctx, registry, bus, kafkaSub)

		return server.ListenAndServe(ctx, server.ListenerConfig{
			Addr:         *listen,
			Store:        st,
			Registry:     registry,
			AcceptPerSec: *acceptRate,
			Log:          log,
		})
	}

	bus, err := wakeup.Listen(*storeDir)
	if err != nil {
		return err
	}
	defer bus.Close()

	return server.Serve(ctx, server.StdioConfig{
		Conn:  stdio{},
		Store: st,
		Bus:   bus,
		Kafka: kafkaSub,
		Log:   log,
	})
}

// relayBroadcasts forwards every wakeup source into the TCP listener
// mode's session registry, so any concurrently-connected router sees
// the same notification a single stdio session would.
func relayBroadcasts(ctx context.Context, registry *server.Registry, bus *wakeup.Bus, kafka *wakeup.KafkaSubscriber) {
	kafkaEvents := (<-chan []byte)(nil)
	if kafka != nil {
		kafkaEvents = kafka.Events()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-bus.Events():
			if !ok {
				return
			}
			registry.Broadcast(payload)
		case payload, ok := <-kafkaEvents:
			if !ok {
				kafkaEvents = nil
				continue
			}
			registry.Broadcast(payload)
		}
	}
}

// stdio adapts os.Stdin/os.Stdout into the io.ReadWriteCloser the
// default single-session mode expects (spec §4.3: "typically
// stdin/stdout inside an SSH forced-command").
type stdio struct{}

func (stdio) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdio) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdio) Close() error                { return nil }
