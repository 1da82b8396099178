package client_test

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bgpfix/rtrd/internal/client"
	"github.com/bgpfix/rtrd/internal/pdu"
)

func TestRunSendsResetAndStopsAtEndOfData(t *testing.T) {
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	done := make(chan error, 1)
	go func() { done <- client.Run(local, zerolog.Nop()) }()

	req, err := pdu.Decode(remote)
	require.NoError(t, err)
	require.IsType(t, &pdu.ResetQuery{}, req)

	_, err = remote.Write((&pdu.CacheResponse{}).Encode())
	require.NoError(t, err)
	_, err = remote.Write((&pdu.IPv4Prefix{Flags: pdu.Announce, Length: 24, MaxLen: 24, Prefix: 0xC0000200, ASN: 64512}).Encode())
	require.NoError(t, err)
	_, err = remote.Write((&pdu.EndOfData{Serial: 100}).Encode())
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for client to finish")
	}
}

func TestRunStopsAtCacheReset(t *testing.T) {
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	done := make(chan error, 1)
	go func() { done <- client.Run(local, zerolog.Nop()) }()

	_, err := pdu.Decode(remote)
	require.NoError(t, err)
	_, err = remote.Write((&pdu.CacheReset{}).Encode())
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for client to finish")
	}
}

func TestRunSurfacesErrorReport(t *testing.T) {
	local, remote := net.Pipe()
	defer local.Close()
	defer remote.Close()

	done := make(chan error, 1)
	go func() { done <- client.Run(local, zerolog.Nop()) }()

	_, err := pdu.Decode(remote)
	require.NoError(t, err)
	_, err = remote.Write(pdu.NewErrorReportFor(pdu.ErrCorruptData, nil, "boom").Encode())
	require.NoError(t, err)

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for client to finish")
	}
}
