// Package store implements the on-disk filesystem layout of spec §3.2
// and §6.2: AXFR snapshot files, IXFR delta files, and the atomically-
// updated "current" serial pointer. It is the sole writer's (the
// builder's) and every reader's (servers') interface to that layout.
package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bgpfix/rtrd/internal/pdu"
	"github.com/bgpfix/rtrd/internal/roa"
)

// ErrMissingCurrent reports that the "current" sentinel file is absent
// or does not hold a valid decimal serial. Per spec §4.3.1/§7 this is
// non-fatal: callers treat it as "no data yet".
var ErrMissingCurrent = errors.New("store: current serial unavailable")

// ErrMissingDelta reports that the requested IXFR file does not exist.
// Per spec §4.3.2/§7 this is non-fatal: callers fall back to Cache Reset.
var ErrMissingDelta = errors.New("store: no matching delta")

// Store is the filesystem directory holding snapshot/delta files and
// the "current" pointer, relative to its Dir (spec §6.2).
type Store struct {
	Dir string
}

// New returns a Store rooted at dir. dir must already exist.
func New(dir string) *Store {
	return &Store{Dir: dir}
}

func (s *Store) axfrPath(serial uint32) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%d.ax", serial))
}

// AxfrPath returns the path of the AXFR snapshot file for serial, for
// callers (e.g. the builder's archival step) that need to operate on
// the file directly rather than through Store's read/write methods.
func (s *Store) AxfrPath(serial uint32) string {
	return s.axfrPath(serial)
}

func (s *Store) ixfrPath(to, from uint32) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%d.ix.%d", to, from))
}

func (s *Store) currentPath() string {
	return filepath.Join(s.Dir, "current")
}

// ReadCurrent reads the current serial pointer. A missing file or one
// whose content isn't a bare decimal integer both return
// ErrMissingCurrent, never a raw os.ErrNotExist — §4.3.1 says the
// server must treat both the same way.
func (s *Store) ReadCurrent() (uint32, error) {
	data, err := os.ReadFile(s.currentPath())
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMissingCurrent, err)
	}
	line := strings.TrimSpace(string(data))
	serial, err := strconv.ParseUint(line, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMissingCurrent, err)
	}
	return uint32(serial), nil
}

// WriteCurrent atomically advances the "current" pointer to serial, by
// writing a temp file and renaming it into place (spec §3.2).
func (s *Store) WriteCurrent(serial uint32) error {
	tmp := filepath.Join(s.Dir, fmt.Sprintf("current.%d.tmp", os.Getpid()))
	if err := os.WriteFile(tmp, []byte(fmt.Sprintf("%d\n", serial)), 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.currentPath()); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// WriteAxfr writes the complete AXFR snapshot for ps to "<serial>.ax"
// (spec §4.1.5): the raw concatenation of encoded prefix PDUs, all with
// Announce set, no framing or trailer. It writes to a temp file first
// and renames into place, so a partially-written file is never visible
// under its final name.
func (s *Store) WriteAxfr(ps *roa.PrefixSet) error {
	return writeAssertionsAtomically(s.axfrPath(ps.Serial), ps.Assertions)
}

// WriteIxfr writes the delta "to.ix.from" (spec §4.1.5).
func (s *Store) WriteIxfr(to, from uint32, delta []pdu.Prefix) error {
	return writeAssertionsAtomically(s.ixfrPath(to, from), delta)
}

func writeAssertionsAtomically(path string, assertions []pdu.Prefix) (err error) {
	tmp := path + fmt.Sprintf(".%d.tmp", os.Getpid())
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	w := bufio.NewWriter(f)
	for _, a := range assertions {
		if _, err = w.Write(a.Encode()); err != nil {
			f.Close()
			return err
		}
	}
	if err = w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// HasIxfr reports whether "to.ix.from" exists.
func (s *Store) HasIxfr(to, from uint32) bool {
	_, err := os.Stat(s.ixfrPath(to, from))
	return err == nil
}

// OpenAxfr opens the AXFR snapshot file for streaming (spec §4.3.2); the
// caller is responsible for closing it. Returns ErrMissingCurrent-flavored
// semantics are not implied here — callers check current/HasIxfr first.
func (s *Store) OpenAxfr(serial uint32) (*os.File, error) {
	return os.Open(s.axfrPath(serial))
}

// OpenIxfr opens the "to.ix.from" delta file for streaming.
func (s *Store) OpenIxfr(to, from uint32) (*os.File, error) {
	f, err := os.Open(s.ixfrPath(to, from))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %d.ix.%d", ErrMissingDelta, to, from)
		}
		return nil, err
	}
	return f, nil
}

func (s *Store) counterPath() string {
	return filepath.Join(s.Dir, "current.ctr")
}

// ReadCounter reads the persisted monotonic fallback counter (spec §9
// Open Question: serial monotonicity), used only when wall-clock time
// fails to advance between two builder runs. A missing file reads as 0,
// not an error: a freshly-initialized store has no prior counter.
func (s *Store) ReadCounter() (uint32, error) {
	data, err := os.ReadFile(s.counterPath())
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("store: malformed current.ctr: %w", err)
	}
	return uint32(n), nil
}

// WriteCounter atomically persists the fallback counter.
func (s *Store) WriteCounter(n uint32) error {
	tmp := filepath.Join(s.Dir, fmt.Sprintf("current.ctr.%d.tmp", os.Getpid()))
	if err := os.WriteFile(tmp, []byte(fmt.Sprintf("%d\n", n)), 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.counterPath()); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// RetainedSerials lists the serials of every "<serial>.ax" file present
// in Dir, ascending (spec §4.2 step 1).
func (s *Store) RetainedSerials() ([]uint32, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}

	var serials []uint32
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".ax") {
			continue
		}
		n, err := strconv.ParseUint(strings.TrimSuffix(name, ".ax"), 10, 32)
		if err != nil {
			continue // not a serial-named file, ignore
		}
		serials = append(serials, uint32(n))
	}
	sort.Slice(serials, func(i, j int) bool { return serials[i] < serials[j] })
	return serials, nil
}

// LoadAxfr reads back a previously-written AXFR snapshot in full,
// decoding PDU-by-PDU until EOF (spec §4.1.5). Used by the builder to
// recover its retained-snapshot list across runs (spec §4.2 step 1).
func (s *Store) LoadAxfr(serial uint32) (*roa.PrefixSet, error) {
	f, err := s.OpenAxfr(serial)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var assertions []pdu.Prefix
	r := bufio.NewReader(f)
	for {
		p, err := pdu.Decode(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%d.ax: %w", serial, err)
		}
		prefix, ok := p.(pdu.Prefix)
		if !ok {
			return nil, fmt.Errorf("%d.ax: unexpected pdu type %d in snapshot", serial, p.Type())
		}
		assertions = append(assertions, prefix)
	}
	return &roa.PrefixSet{Serial: serial, Assertions: assertions}, nil
}
