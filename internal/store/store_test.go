package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgpfix/rtrd/internal/pdu"
	"github.com/bgpfix/rtrd/internal/roa"
	"github.com/bgpfix/rtrd/internal/store"
)

func mkAssertion(prefix uint32) pdu.Prefix {
	return &pdu.IPv4Prefix{Flags: pdu.Announce, Length: 24, MaxLen: 24, Prefix: prefix, ASN: 64512}
}

func TestReadCurrentMissing(t *testing.T) {
	s := store.New(t.TempDir())
	_, err := s.ReadCurrent()
	require.ErrorIs(t, err, store.ErrMissingCurrent)
}

func TestReadCurrentMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "current"), []byte("not-a-number\n"), 0o644))
	s := store.New(dir)
	_, err := s.ReadCurrent()
	require.ErrorIs(t, err, store.ErrMissingCurrent)
}

func TestWriteReadCurrentRoundTrip(t *testing.T) {
	s := store.New(t.TempDir())
	require.NoError(t, s.WriteCurrent(100))
	got, err := s.ReadCurrent()
	require.NoError(t, err)
	assert.Equal(t, uint32(100), got)
}

func TestAxfrRoundTrip(t *testing.T) {
	s := store.New(t.TempDir())
	ps := &roa.PrefixSet{Serial: 100, Assertions: roa.Canonicalize([]pdu.Prefix{mkAssertion(1), mkAssertion(2)})}
	require.NoError(t, s.WriteAxfr(ps))

	got, err := s.LoadAxfr(100)
	require.NoError(t, err)
	require.Len(t, got.Assertions, 2)
	assert.Equal(t, ps.Assertions[0].Encode(), got.Assertions[0].Encode())
}

func TestAxfrIdempotentSave(t *testing.T) {
	// spec §8 invariant 6: loading an AXFR and re-saving it is byte-identical.
	s := store.New(t.TempDir())
	ps := &roa.PrefixSet{Serial: 100, Assertions: roa.Canonicalize([]pdu.Prefix{mkAssertion(5), mkAssertion(9)})}
	require.NoError(t, s.WriteAxfr(ps))

	raw1, err := os.ReadFile(filepath.Join(s.Dir, "100.ax"))
	require.NoError(t, err)

	got, err := s.LoadAxfr(100)
	require.NoError(t, err)
	require.NoError(t, s.WriteAxfr(got))

	raw2, err := os.ReadFile(filepath.Join(s.Dir, "100.ax"))
	require.NoError(t, err)
	assert.Equal(t, raw1, raw2)
}

func TestIxfrMissing(t *testing.T) {
	s := store.New(t.TempDir())
	_, err := s.OpenIxfr(200, 50)
	require.ErrorIs(t, err, store.ErrMissingDelta)
}

func TestRetainedSerials(t *testing.T) {
	dir := t.TempDir()
	s := store.New(dir)
	require.NoError(t, s.WriteAxfr(&roa.PrefixSet{Serial: 300}))
	require.NoError(t, s.WriteAxfr(&roa.PrefixSet{Serial: 100}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notaserial.ax"), nil, 0o644))

	got, err := s.RetainedSerials()
	require.NoError(t, err)
	assert.Equal(t, []uint32{100, 300}, got)
}

func TestArchiveCompressesWithoutRemovingOriginal(t *testing.T) {
	dir := t.TempDir()
	archiveDir := filepath.Join(dir, "archive")
	s := store.New(dir)
	ps := &roa.PrefixSet{Serial: 1, Assertions: roa.Canonicalize([]pdu.Prefix{mkAssertion(1)})}
	require.NoError(t, s.WriteAxfr(ps))

	path := filepath.Join(dir, "1.ax")
	require.NoError(t, store.Archive(archiveDir, path))

	_, err := os.Stat(path)
	require.NoError(t, err, "Archive must leave the live file in place (spec.md: no automatic expiry/GC)")

	_, err = os.Stat(filepath.Join(archiveDir, "1.ax.zst"))
	require.NoError(t, err)
}
