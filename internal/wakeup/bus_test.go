package wakeup_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgpfix/rtrd/internal/wakeup"
)

func TestNotifyAllReachesLiveBus(t *testing.T) {
	dir := t.TempDir()

	bus, err := wakeup.Listen(dir)
	require.NoError(t, err)
	defer bus.Close()

	n := wakeup.NewNotifier(dir, 1000, zerolog.Nop())
	sent := n.NotifyAll(context.Background(), []byte("hello"))
	assert.Equal(t, 1, sent)

	select {
	case payload := <-bus.Events():
		assert.Equal(t, []byte("hello"), payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for wakeup event")
	}
}

func TestNotifyAllIgnoresUnreachable(t *testing.T) {
	dir := t.TempDir()
	// a stale "wakeup.*" entry with no server bound to it: the glob
	// matches it, the send fails, and it is skipped without an error.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wakeup.0"), nil, 0o644))
	n := wakeup.NewNotifier(dir, 1000, zerolog.Nop())
	sent := n.NotifyAll(context.Background(), []byte("hi"))
	assert.Equal(t, 0, sent)
}

func TestBusCloseRemovesSocket(t *testing.T) {
	dir := t.TempDir()
	bus, err := wakeup.Listen(dir)
	require.NoError(t, err)
	require.NoError(t, bus.Close())

	n := wakeup.NewNotifier(dir, 1000, zerolog.Nop())
	assert.Equal(t, 0, n.NotifyAll(context.Background(), []byte("x")), "socket must be gone after Close")
}
