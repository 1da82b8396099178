package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/pflag"

	"github.com/bgpfix/rtrd/internal/builder"
	"github.com/bgpfix/rtrd/internal/config"
	"github.com/bgpfix/rtrd/internal/httpstatus"
	"github.com/bgpfix/rtrd/internal/roa/fixture"
	"github.com/bgpfix/rtrd/internal/store"
	"github.com/bgpfix/rtrd/internal/wakeup"
)

func runBuilder(args []string) error {
	f := pflag.NewFlagSet("rtrd builder", pflag.ExitOnError)
	f.SortFlags = false
	storeDir := f.String("store-dir", ".", "directory holding AXFR/IXFR/current files")
	roaDirs := f.StringSlice("roa-dir", nil, "validated-ROA directory (repeatable)")
	coldAfter := f.Int("cold-after", 0, "write an additional zstd-compressed copy of an AXFR once this many newer snapshots exist; 0 disables cold copies (live snapshots are never deleted by this core - see spec Non-goals)")
	archiveDir := f.String("archive-dir", "", "directory for zstd-compressed cold copies of older snapshots")
	wakeupRate := f.Float64("wakeup-rate", 100, "max wakeup datagrams sent per second")
	kafkaBrokers := f.StringSlice("kafka-brokers", nil, "optional Kafka brokers for version-change fanout")
	kafkaTopic := f.String("kafka-topic", "rtrd-versions", "Kafka topic for version-change events")
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
	if len(*roaDirs) == 0 {
		return fmt.Errorf("at least one --roa-dir is required")
	}

	st := store.New(*storeDir)
	cfg := builder.Config{
		RoaDirs:    *roaDirs,
		Decoder:    fixture.Decoder{}, // TODO: swap for a real CMS/ASN.1 ROA decoder once one lands in the pack
		Store:      st,
		Notifier:   wakeup.NewNotifier(*storeDir, *wakeupRate, log),
		ArchiveDir: *archiveDir,
		ColdAfter:  *coldAfter,
		Log:        log,
	}

	ctx := context.Background()
	if len(*kafkaBrokers) > 0 {
		kafkaNotifier, err := wakeup.NewKafkaNotifier(ctx, *kafkaBrokers, *kafkaTopic, log)
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer kafkaNotifier.Close()
		cfg.Kafka = kafkaNotifier
	}

	if *httpAddr != "" {
		hub := httpstatus.NewHub()
		httpSrv := &http.Server{Addr: *httpAddr, Handler: httpstatus.New(st, hub, log)}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn().Err(err).Msg("builder: status sidecar stopped")
			}
		}()
	}

	b := builder.New(cfg)
	res, err := b.Run(ctx)
	if err != nil {
		return err
	}
	log.Info().
		Uint32("serial", res.Serial).
		Int("roas", res.RoasParsed).
		Dur("duration", res.Duration).
		Msg("builder: run complete")
	return nil
}
