package server_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgpfix/rtrd/internal/pdu"
	"github.com/bgpfix/rtrd/internal/roa"
	"github.com/bgpfix/rtrd/internal/server"
	"github.com/bgpfix/rtrd/internal/store"
	"github.com/bgpfix/rtrd/internal/wakeup"
)

func mkAssertion(prefix uint32) pdu.Prefix {
	return &pdu.IPv4Prefix{Flags: pdu.Announce, Length: 24, MaxLen: 24, Prefix: prefix, ASN: 64512}
}

func runSession(t *testing.T, st *store.Store, wake <-chan []byte) (client net.Conn, done <-chan error) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	ch := make(chan error, 1)
	sess := &server.Session{ID: "t", Conn: serverConn, Store: st, Wakeup: wake, Log: zerolog.Nop()}
	go func() { ch <- sess.Run(context.Background()) }()
	t.Cleanup(func() { clientConn.Close() })
	return clientConn, ch
}

func TestResetQueryColdStart(t *testing.T) {
	st := store.New(t.TempDir())
	client, _ := runSession(t, st, nil)

	_, err := client.Write((&pdu.ResetQuery{}).Encode())
	require.NoError(t, err)

	resp, err := pdu.Decode(client)
	require.NoError(t, err)
	assert.IsType(t, &pdu.CacheReset{}, resp)
}

func TestResetQueryWithData(t *testing.T) {
	st := store.New(t.TempDir())
	ps := &roa.PrefixSet{Serial: 100, Assertions: roa.Canonicalize([]pdu.Prefix{mkAssertion(1)})}
	require.NoError(t, st.WriteAxfr(ps))
	require.NoError(t, st.WriteCurrent(100))

	client, _ := runSession(t, st, nil)
	_, err := client.Write((&pdu.ResetQuery{}).Encode())
	require.NoError(t, err)

	resp1, err := pdu.Decode(client)
	require.NoError(t, err)
	assert.IsType(t, &pdu.CacheResponse{}, resp1)

	resp2, err := pdu.Decode(client)
	require.NoError(t, err)
	prefix, ok := resp2.(*pdu.IPv4Prefix)
	require.True(t, ok)
	assert.Equal(t, uint32(1), prefix.Prefix)

	resp3, err := pdu.Decode(client)
	require.NoError(t, err)
	eod, ok := resp3.(*pdu.EndOfData)
	require.True(t, ok)
	assert.Equal(t, uint32(100), eod.Serial)
}

func TestSerialQueryHit(t *testing.T) {
	st := store.New(t.TempDir())
	require.NoError(t, st.WriteAxfr(&roa.PrefixSet{Serial: 50}))
	require.NoError(t, st.WriteIxfr(100, 50, []pdu.Prefix{mkAssertion(2)}))
	require.NoError(t, st.WriteCurrent(100))

	client, _ := runSession(t, st, nil)
	_, err := client.Write((&pdu.SerialQuery{Serial: 50}).Encode())
	require.NoError(t, err)

	resp1, err := pdu.Decode(client)
	require.NoError(t, err)
	assert.IsType(t, &pdu.CacheResponse{}, resp1)

	resp2, err := pdu.Decode(client)
	require.NoError(t, err)
	assert.IsType(t, &pdu.IPv4Prefix{}, resp2)

	resp3, err := pdu.Decode(client)
	require.NoError(t, err)
	assert.IsType(t, &pdu.EndOfData{}, resp3)
}

func TestSerialQueryMissingDeltaSendsCacheReset(t *testing.T) {
	st := store.New(t.TempDir())
	require.NoError(t, st.WriteCurrent(100))

	client, _ := runSession(t, st, nil)
	_, err := client.Write((&pdu.SerialQuery{Serial: 1}).Encode())
	require.NoError(t, err)

	resp, err := pdu.Decode(client)
	require.NoError(t, err)
	assert.IsType(t, &pdu.CacheReset{}, resp)
}

func TestWakeupTriggersSerialNotify(t *testing.T) {
	st := store.New(t.TempDir())
	require.NoError(t, st.WriteCurrent(1))

	wake := make(chan []byte, 1)
	client, _ := runSession(t, st, wake)

	require.NoError(t, st.WriteCurrent(2))
	wake <- []byte("changed")

	respCh := make(chan pdu.PDU, 1)
	errCh := make(chan error, 1)
	go func() {
		p, err := pdu.Decode(client)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- p
	}()

	select {
	case p := <-respCh:
		notify, ok := p.(*pdu.SerialNotify)
		require.True(t, ok)
		assert.Equal(t, uint32(2), notify.Serial)
	case err := <-errCh:
		t.Fatalf("decode failed: %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for serial notify")
	}
}

func TestMalformedPduGetsErrorReportAndClose(t *testing.T) {
	st := store.New(t.TempDir())
	client, done := runSession(t, st, nil)

	// version 1 is not the supported version 0. Only the 2-byte header is
	// written: the session stops reading once the header fails, and a
	// net.Pipe write blocks until every byte has been read.
	_, err := client.Write([]byte{1, byte(pdu.TypeResetQuery)})
	require.NoError(t, err)

	resp, err := pdu.Decode(client)
	require.NoError(t, err)
	report, ok := resp.(*pdu.ErrorReport)
	require.True(t, ok)
	assert.Equal(t, pdu.ErrUnsupportedVersion, report.ErrNo)

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for session to close")
	}
}

func TestBusIntegration(t *testing.T) {
	dir := t.TempDir()
	st := store.New(dir)
	require.NoError(t, st.WriteCurrent(1))

	bus, err := wakeup.Listen(dir)
	require.NoError(t, err)
	defer bus.Close()

	client, _ := runSession(t, st, bus.Events())

	require.NoError(t, st.WriteCurrent(2))
	n := wakeup.NewNotifier(dir, 1000, zerolog.Nop())
	sent := n.NotifyAll(context.Background(), []byte("x"))
	assert.Equal(t, 1, sent)

	resp, err := pdu.Decode(client)
	require.NoError(t, err)
	notify, ok := resp.(*pdu.SerialNotify)
	require.True(t, ok)
	assert.Equal(t, uint32(2), notify.Serial)
}
