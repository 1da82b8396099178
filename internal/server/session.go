// Package server implements one RTR session per router connection
// (spec §4.3): a single-threaded cooperative event loop multiplexing
// the client's byte stream and the wakeup datagram bus, running over
// stdio by default (the typical SSH forced-command deployment) or,
// optionally, a TCP connection accepted by ListenAndServe.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/valyala/bytebufferpool"

	"github.com/bgpfix/rtrd/internal/pdu"
	"github.com/bgpfix/rtrd/internal/store"
)

// sendPool recycles the buffers used to stage outbound PDUs, avoiding
// a fresh allocation per Serial Notify / Cache Response / End of Data
// on a busy session.
var sendPool bytebufferpool.Pool

// Session runs the state machine of spec §4.3.1-§4.3.4 over one
// full-duplex byte stream.
type Session struct {
	ID     string
	Conn   io.ReadWriteCloser
	Store  *store.Store
	Wakeup <-chan []byte // nil is fine; a nil channel never fires in a select
	Log    zerolog.Logger

	serial    uint32
	hasSerial bool
}

type decoded struct {
	pdu pdu.PDU
	err error
}

// Run drives the session until the client disconnects, the context is
// cancelled, or a framing error forces the session closed. It always
// closes Conn before returning.
func (s *Session) Run(ctx context.Context) error {
	defer s.Conn.Close()
	sessionsTotal.Inc()

	// Step: re-read current on startup (spec §4.3.1).
	s.refreshSerial()

	reqs := make(chan decoded, 1)
	go s.readLoop(reqs)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case req, ok := <-reqs:
			if !ok {
				return nil // client closed the stream cleanly
			}
			if req.err != nil {
				return s.closeWithError(req.err)
			}
			if err := s.handle(req.pdu); err != nil {
				return err
			}

		case payload, ok := <-s.Wakeup:
			if !ok {
				s.Wakeup = nil
				continue
			}
			s.Log.Debug().Bytes("payload", payload).Msg("server: wakeup received")
			s.onWakeup()
		}
	}
}

// readLoop decodes PDUs off Conn and forwards them (or the terminal
// error) to out, then closes it. It runs on its own goroutine so Run
// can multiplex client bytes with wakeup events via select (spec §5).
func (s *Session) readLoop(out chan<- decoded) {
	defer close(out)
	for {
		p, err := pdu.Decode(s.Conn)
		if err == io.EOF {
			return
		}
		out <- decoded{pdu: p, err: err}
		if err != nil {
			return
		}
	}
}

// handle dispatches one successfully decoded client PDU (spec §4.3.2,
// §4.3.4).
func (s *Session) handle(p pdu.PDU) error {
	switch req := p.(type) {
	case *pdu.ResetQuery:
		return s.handleReset()
	case *pdu.SerialQuery:
		return s.handleSerialQuery(req.Serial)
	case *pdu.ErrorReport:
		// the client is reporting a problem with something we sent; log
		// and close, there is nothing more useful to do (spec §4.3.4).
		s.Log.Warn().Uint16("errno", req.ErrNo).Str("message", req.Message).Msg("server: client sent error report")
		return fmt.Errorf("client reported error %d: %s", req.ErrNo, req.Message)
	default:
		return s.closeWithError(fmt.Errorf("%w: unexpected request type %d", pdu.ErrBadPdu, p.Type()))
	}
}

// handleReset implements the Reset Query row of spec §4.3.2.
func (s *Session) handleReset() error {
	resetQueriesTotal.Inc()
	serial, err := s.Store.ReadCurrent()
	if errors.Is(err, store.ErrMissingCurrent) {
		return s.send(&pdu.CacheReset{})
	}
	if err != nil {
		return err
	}

	f, err := s.Store.OpenAxfr(serial)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := s.send(&pdu.CacheResponse{}); err != nil {
		return err
	}
	if _, err := store.Copy(s.Conn, f); err != nil {
		return err
	}
	s.serial, s.hasSerial = serial, true
	return s.send(&pdu.EndOfData{Serial: serial})
}

// handleSerialQuery implements the Serial Query rows of spec §4.3.2.
func (s *Session) handleSerialQuery(from uint32) error {
	serialQueriesTotal.Inc()
	serial, err := s.Store.ReadCurrent()
	if errors.Is(err, store.ErrMissingCurrent) {
		return s.send(&pdu.CacheReset{})
	}
	if err != nil {
		return err
	}

	f, err := s.Store.OpenIxfr(serial, from)
	if errors.Is(err, store.ErrMissingDelta) {
		return s.send(&pdu.CacheReset{})
	}
	if err != nil {
		return err
	}
	defer f.Close()

	if err := s.send(&pdu.CacheResponse{}); err != nil {
		return err
	}
	if _, err := store.Copy(s.Conn, f); err != nil {
		return err
	}
	s.serial, s.hasSerial = serial, true
	return s.send(&pdu.EndOfData{Serial: serial})
}

// onWakeup implements spec §4.3.3: re-read current, notify only if it
// changed.
func (s *Session) onWakeup() {
	serial, err := s.Store.ReadCurrent()
	if err != nil {
		return // still no data, or a transient read error; nothing to announce
	}
	if !s.hasSerial || serial != s.serial {
		if sendErr := s.send(&pdu.SerialNotify{Serial: serial}); sendErr != nil {
			s.Log.Warn().Err(sendErr).Msg("server: failed to send serial notify")
		} else {
			notifiesSentTotal.Inc()
		}
	}
	s.serial, s.hasSerial = serial, true
}

func (s *Session) refreshSerial() {
	serial, err := s.Store.ReadCurrent()
	if err != nil {
		return
	}
	s.serial, s.hasSerial = serial, true
}

func (s *Session) send(p pdu.PDU) error {
	bb := sendPool.Get()
	defer sendPool.Put(bb)
	bb.B = append(bb.B, p.Encode()...)
	_, err := s.Conn.Write(bb.B)
	return err
}

// closeWithError sends an Error Report for a framing violation detected
// while decoding a client PDU, then returns an error causing Run to
// close the session (spec §4.3.4).
func (s *Session) closeWithError(cause error) error {
	sessionErrors.Inc()
	report := pdu.NewErrorReportFor(classifyError(cause), nil, "%s", cause)
	if err := s.send(report); err != nil {
		s.Log.Warn().Err(err).Msg("server: failed to send error report")
	}
	return cause
}

// classifyError picks the closest-matching Error Report code for a
// decode failure. pdu.Decode reports every framing problem as
// pdu.ErrBadPdu with a descriptive message; matching on that message is
// a pragmatic way to keep the wire error code specific without growing
// a parallel error-code return from Decode.
func classifyError(err error) uint16 {
	if !errors.Is(err, pdu.ErrBadPdu) && !errors.Is(err, pdu.ErrOutOfRange) {
		return pdu.ErrInternalError
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "version"):
		return pdu.ErrUnsupportedVersion
	case strings.Contains(msg, "unknown type"):
		return pdu.ErrUnsupportedType
	default:
		return pdu.ErrCorruptData
	}
}
