// Package wakeup implements the out-of-band rendezvous that lets a
// live builder notify live servers that a new version exists (spec
// §3.3, §4.4): one datagram endpoint per server process, discoverable
// by the builder through a filename glob. Datagram loss is acceptable
// by design — servers re-check "current" on every client interaction
// regardless (spec §4.4).
package wakeup

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Bus is a server's wakeup endpoint: a unix datagram socket named
// "wakeup.<pid>" so the builder can glob for it and so cleanup on exit
// is unambiguous (spec §3.3).
type Bus struct {
	conn   *net.UnixConn
	path   string
	events chan []byte
}

// Listen creates and binds a wakeup socket for the current process
// inside dir. Call Close when the server shuts down.
func Listen(dir string) (*Bus, error) {
	path := filepath.Join(dir, fmt.Sprintf("wakeup.%d", os.Getpid()))

	// Remove a stale socket from a previous process with the same PID,
	// if any, so bind doesn't fail with "address already in use".
	_ = os.Remove(path)

	addr := &net.UnixAddr{Name: path, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return nil, fmt.Errorf("wakeup: listen %s: %w", path, err)
	}

	// Restrict the socket to the operator's group; best-effort, not a
	// security boundary the protocol relies on (spec §1: peer auth is
	// out of scope).
	_ = unix.Chmod(path, 0o660)

	b := &Bus{conn: conn, path: path, events: make(chan []byte, 4)}
	go b.recvLoop()
	return b, nil
}

func (b *Bus) recvLoop() {
	defer close(b.events)
	buf := make([]byte, 512)
	for {
		n, err := b.conn.Read(buf)
		if err != nil {
			return // socket closed
		}
		payload := append([]byte(nil), buf[:n]...)
		select {
		case b.events <- payload:
		default:
			// a backlog of unconsumed wakeups collapses to "there was at
			// least one"; the receiver always re-reads current anyway.
		}
	}
}

// Events delivers one message per received datagram, except that a
// datagram arriving while four messages are already queued is dropped.
// It is closed when the bus is closed.
func (b *Bus) Events() <-chan []byte {
	return b.events
}

// Close unbinds and removes the socket file (spec §3.3, §5).
func (b *Bus) Close() error {
	err := b.conn.Close()
	if rmErr := os.Remove(b.path); err == nil {
		err = rmErr
	}
	return err
}
