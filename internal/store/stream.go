package store

import "io"

// streamChunkSize bounds how much of a snapshot/delta file is held in
// memory at once while copying it to a client (spec §5: "a file of
// unbounded size must not be loaded in full").
const streamChunkSize = 64 * 1024

// Copy streams src to dst in fixed-size chunks, transparently: the
// server never parses or re-encodes the PDUs it relays (spec §4.3.2).
func Copy(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, streamChunkSize)
	return io.CopyBuffer(dst, src, buf)
}
