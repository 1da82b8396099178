package builder_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgpfix/rtrd/internal/builder"
	"github.com/bgpfix/rtrd/internal/roa"
	"github.com/bgpfix/rtrd/internal/roa/fixture"
	"github.com/bgpfix/rtrd/internal/store"
	"github.com/bgpfix/rtrd/internal/wakeup"
)

func writeFixture(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func newBuilder(t *testing.T, roaDir string) (*builder.Builder, *store.Store) {
	t.Helper()
	st := store.New(t.TempDir())
	cfg := builder.Config{
		RoaDirs:     []string{roaDir},
		Decoder:     fixture.Decoder{},
		Store:       st,
		Notifier:    wakeup.NewNotifier(st.Dir, 1000, zerolog.Nop()),
		MinInterval: 10 * time.Millisecond,
		Log:         zerolog.Nop(),
	}
	return builder.New(cfg), st
}

func TestRunColdStartProducesAxfrAndCurrent(t *testing.T) {
	roaDir := t.TempDir()
	writeFixture(t, roaDir, "a.roa", `{"asn":64512,"roas":[{"prefix":"192.0.2.0/24","maxLength":24}]}`)

	b, st := newBuilder(t, roaDir)
	res, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.RoasParsed)
	assert.Equal(t, 0, res.RetainedBefore)
	assert.Equal(t, 1, res.RetainedAfter)

	serial, err := st.ReadCurrent()
	require.NoError(t, err)
	assert.Equal(t, res.Serial, serial)

	ps, err := st.LoadAxfr(serial)
	require.NoError(t, err)
	require.Len(t, ps.Assertions, 1)
}

func TestRunWritesIxfrAgainstRetained(t *testing.T) {
	roaDir := t.TempDir()
	writeFixture(t, roaDir, "a.roa", `{"asn":64512,"roas":[{"prefix":"192.0.2.0/24","maxLength":24}]}`)

	b, st := newBuilder(t, roaDir)
	first, err := b.Run(context.Background())
	require.NoError(t, err)

	writeFixture(t, roaDir, "b.roa", `{"asn":64513,"roas":[{"prefix":"198.51.100.0/24","maxLength":24}]}`)
	second, err := b.Run(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, first.Serial, second.Serial)
	assert.Equal(t, 1, second.RetainedBefore)

	f, err := st.OpenIxfr(second.Serial, first.Serial)
	require.NoError(t, err)
	defer f.Close()
}

func TestRunSkipsMalformedRoaWithoutFailing(t *testing.T) {
	roaDir := t.TempDir()
	writeFixture(t, roaDir, "good.roa", `{"asn":64512,"roas":[{"prefix":"192.0.2.0/24","maxLength":24}]}`)
	writeFixture(t, roaDir, "bad.roa", `not json`)

	b, _ := newBuilder(t, roaDir)
	res, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.RoasParsed)
	assert.Equal(t, 1, res.RoasSkipped)
}

func TestRunSameSecondFallsBackToCounter(t *testing.T) {
	roaDir := t.TempDir()
	writeFixture(t, roaDir, "a.roa", `{"asn":64512,"roas":[{"prefix":"192.0.2.0/24","maxLength":24}]}`)

	b, st := newBuilder(t, roaDir)
	first, err := b.Run(context.Background())
	require.NoError(t, err)

	// force a same-wall-clock-second collision by seeding a retained
	// serial far in the future; the fallback counter must still produce
	// a strictly increasing serial without blocking for real wall time.
	future := first.Serial + 1000
	require.NoError(t, st.WriteAxfr(&roa.PrefixSet{Serial: future}))
	second, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, future+1, second.Serial)
	ctr, err := st.ReadCounter()
	require.NoError(t, err)
	assert.Equal(t, future+1, ctr)
}

func TestRunNotifiesLiveBus(t *testing.T) {
	roaDir := t.TempDir()
	writeFixture(t, roaDir, "a.roa", `{"asn":64512,"roas":[{"prefix":"192.0.2.0/24","maxLength":24}]}`)

	b, st := newBuilder(t, roaDir)
	bus, err := wakeup.Listen(st.Dir)
	require.NoError(t, err)
	defer bus.Close()

	res, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Notified)

	select {
	case <-bus.Events():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for wakeup event")
	}
}

// TestColdCopyNeverDeletesLiveSnapshot confirms the builder's optional
// cold-storage copy is additive only: spec.md's Non-goals exclude
// expiring or garbage-collecting snapshots, so a live ".ax" must stay
// in place (and retained/served) even once it has a cold copy.
func TestColdCopyNeverDeletesLiveSnapshot(t *testing.T) {
	roaDir := t.TempDir()
	writeFixture(t, roaDir, "a.roa", `{"asn":64512,"roas":[{"prefix":"192.0.2.0/24","maxLength":24}]}`)

	st := store.New(t.TempDir())
	archiveDir := filepath.Join(t.TempDir(), "archive")
	b := builder.New(builder.Config{
		RoaDirs:     []string{roaDir},
		Decoder:     fixture.Decoder{},
		Store:       st,
		Notifier:    wakeup.NewNotifier(st.Dir, 1000, zerolog.Nop()),
		ArchiveDir:  archiveDir,
		ColdAfter:   1,
		MinInterval: 10 * time.Millisecond,
		Log:         zerolog.Nop(),
	})

	first, err := b.Run(context.Background())
	require.NoError(t, err)

	writeFixture(t, roaDir, "b.roa", `{"asn":64513,"roas":[{"prefix":"198.51.100.0/24","maxLength":24}]}`)
	second, err := b.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint32{first.Serial}, second.Archived)
	assert.Equal(t, 2, second.RetainedAfter)

	_, err = os.Stat(st.AxfrPath(first.Serial))
	require.NoError(t, err, "live snapshot must not be removed by an automatic cold copy")
	_, err = os.Stat(filepath.Join(archiveDir, filepath.Base(st.AxfrPath(first.Serial))+".zst"))
	require.NoError(t, err)
}
