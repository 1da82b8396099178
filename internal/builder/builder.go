// Package builder orchestrates one version build (spec §4.2): walk the
// configured ROA directories, construct the new canonical prefix set,
// write its AXFR and IXFR files, advance "current", and wake live
// servers. It is meant to be invoked once per process (typically from
// a cron-like scheduler) but tolerates re-entry: every run mints a
// fresh serial and writes to non-overlapping filenames.
package builder

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bgpfix/rtrd/internal/roa"
	"github.com/bgpfix/rtrd/internal/store"
	"github.com/bgpfix/rtrd/internal/wakeup"
)

// Config holds everything one builder run needs. RoaDirs is one or
// more ROA directory roots (spec §6.1); the spec's single-lineage
// "current" pointer only supports one prefix set per serial, so
// multiple configured directories are walked and merged into one
// canonical set rather than producing independent serial lineages
// (see DESIGN.md).
type Config struct {
	RoaDirs    []string
	Decoder    roa.Decoder
	Store      *store.Store
	Notifier   *wakeup.Notifier
	Kafka      *wakeup.KafkaNotifier // optional

	// ArchiveDir and ColdAfter are an optional convenience, not a
	// retention policy: spec.md's Non-goals exclude expiring or
	// garbage-collecting old snapshots ("operator's job"), so this
	// core never removes a live snapshot/delta on its own. When
	// ArchiveDir is set, every AXFR older than the newest ColdAfter
	// retained snapshots also gets a zstd-compressed copy written to
	// ArchiveDir for cheap cold storage; the live file is left exactly
	// where it was. ColdAfter <= 0 disables this (no copies made).
	ArchiveDir string
	ColdAfter  int

	MinInterval time.Duration // minimum wall-clock gap enforced between two mints, default 1s
	Log         zerolog.Logger
}

// Builder runs repeated builds against a fixed Config.
type Builder struct {
	cfg Config
}

// New returns a Builder for cfg, filling in defaults.
func New(cfg Config) *Builder {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = time.Second
	}
	return &Builder{cfg: cfg}
}

// Result reports what one Run call did, for logging and metrics.
type Result struct {
	Serial         uint32
	RoasParsed     int
	RoasSkipped    int
	RetainedBefore int
	RetainedAfter  int
	Archived       []uint32 // serials that got an additional cold-storage copy this run; nothing is removed
	Notified       int
	Duration       time.Duration
}

// Run executes the seven steps of spec §4.2 exactly once. Any error
// before the "current" pointer is advanced leaves the store in its
// previous good state (spec §4.2 "Failure semantics"): partial
// `.ax`/`.ix.*` files may be left behind for an operator to scrub, but
// a server reading `current` never observes them.
func (b *Builder) Run(ctx context.Context) (res *Result, err error) {
	start := time.Now()
	cfg := b.cfg
	log := cfg.Log

	defer func() {
		if err != nil {
			observeFailure()
		}
	}()

	// Step 1: enumerate retained AXFRs.
	retainedSerials, err := cfg.Store.RetainedSerials()
	if err != nil {
		return nil, fmt.Errorf("builder: enumerate retained: %w", err)
	}
	retained := make([]*roa.PrefixSet, 0, len(retainedSerials))
	for _, s := range retainedSerials {
		ps, err := cfg.Store.LoadAxfr(s)
		if err != nil {
			return nil, fmt.Errorf("builder: load retained %d.ax: %w", s, err)
		}
		retained = append(retained, ps)
	}

	serial, err := b.mintSerial(ctx, retainedSerials)
	if err != nil {
		return nil, fmt.Errorf("builder: mint serial: %w", err)
	}

	// Step 2: build the new canonical prefix set across every configured
	// ROA directory.
	merged := &roa.PrefixSet{Serial: serial}
	roasSkipped := 0
	for _, dir := range cfg.RoaDirs {
		ps, skipped, err := roa.BuildPrefixSet(dir, cfg.Decoder, serial, log.With().Str("roa_dir", dir).Logger())
		if err != nil {
			return nil, fmt.Errorf("builder: walk %s: %w", dir, err)
		}
		merged.Assertions = append(merged.Assertions, ps.Assertions...)
		roasSkipped += skipped
	}
	merged.Assertions = roa.Canonicalize(merged.Assertions)

	// Step 3: write the AXFR file.
	if err := cfg.Store.WriteAxfr(merged); err != nil {
		return nil, fmt.Errorf("builder: write axfr %d: %w", serial, err)
	}

	// Step 4: write an IXFR against every retained prior snapshot.
	for _, old := range retained {
		delta := roa.Diff(old.Assertions, merged.Assertions)
		if err := cfg.Store.WriteIxfr(serial, old.Serial, delta); err != nil {
			return nil, fmt.Errorf("builder: write ixfr %d.ix.%d: %w", serial, old.Serial, err)
		}
	}

	// Step 5: atomically advance current. Everything after this point is
	// best-effort: the new version is already live.
	if err := cfg.Store.WriteCurrent(serial); err != nil {
		return nil, fmt.Errorf("builder: advance current: %w", err)
	}

	// Step 6: append to the in-memory retained list, then write cold-
	// storage copies of anything older than ColdAfter. Nothing is ever
	// removed from the live directory here (spec.md Non-goal: this
	// core does not expire or garbage-collect snapshots).
	retained = append(retained, merged)
	archived := b.writeColdCopies(retained)

	// Step 7: wake live servers.
	notified := cfg.Notifier.NotifyAll(ctx, []byte(fmt.Sprintf("serial=%d", serial)))
	if cfg.Kafka != nil {
		if err := cfg.Kafka.Notify(ctx, serial); err != nil {
			log.Warn().Err(err).Msg("builder: kafka notify failed")
		}
	}

	res = &Result{
		Serial:         serial,
		RoasParsed:     len(merged.Assertions),
		RoasSkipped:    roasSkipped,
		RetainedBefore: len(retainedSerials),
		RetainedAfter:  len(retained),
		Archived:       archived,
		Notified:       notified,
		Duration:       time.Since(start),
	}
	observeBuild(res)
	log.Info().
		Uint32("serial", serial).
		Int("roas", res.RoasParsed).
		Int("skipped", res.RoasSkipped).
		Int("notified", notified).
		Dur("duration", res.Duration).
		Msg("builder: version built")
	return res, nil
}

// mintSerial picks the new serial: wall-clock epoch seconds, so long as
// that strictly exceeds every retained serial. If two runs land in the
// same wall-clock second it waits out one MinInterval (the "hard sleep
// gate" of spec §9) and checks again; only if the clock still hasn't
// advanced does it fall back to a persisted monotonic counter file
// (spec §9 Open Question, decided in SPEC_FULL.md).
func (b *Builder) mintSerial(ctx context.Context, retained []uint32) (uint32, error) {
	var maxRetained uint32
	for _, s := range retained {
		if s > maxRetained {
			maxRetained = s
		}
	}

	if now := uint32(time.Now().Unix()); now > maxRetained {
		return now, nil
	}

	select {
	case <-time.After(b.cfg.MinInterval):
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	if now := uint32(time.Now().Unix()); now > maxRetained {
		return now, nil
	}

	ctr, err := b.cfg.Store.ReadCounter()
	if err != nil {
		return 0, err
	}
	next := maxRetained
	if ctr > next {
		next = ctr
	}
	next++
	if err := b.cfg.Store.WriteCounter(next); err != nil {
		return 0, err
	}
	return next, nil
}

// writeColdCopies writes an additional zstd-compressed copy of every
// AXFR snapshot older than the newest cfg.ColdAfter retained snapshots
// into cfg.ArchiveDir, for an operator who wants cheap cold storage.
// It never removes the live ".ax" file — retention and expiry of live
// snapshots stay entirely outside this core's decisions (spec.md
// Non-goal). A no-op unless both ColdAfter and ArchiveDir are set.
func (b *Builder) writeColdCopies(retained []*roa.PrefixSet) []uint32 {
	cfg := b.cfg
	if cfg.ColdAfter <= 0 || cfg.ArchiveDir == "" || len(retained) <= cfg.ColdAfter {
		return nil
	}

	overflow := len(retained) - cfg.ColdAfter
	var archived []uint32
	for _, old := range retained[:overflow] {
		path := cfg.Store.AxfrPath(old.Serial)
		if err := store.Archive(cfg.ArchiveDir, path); err != nil {
			cfg.Log.Warn().Err(err).Uint32("serial", old.Serial).Msg("builder: cold copy failed")
			continue
		}
		archived = append(archived, old.Serial)
	}
	return archived
}
