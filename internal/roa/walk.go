package roa

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bgpfix/rtrd/internal/pdu"
)

// BuildPrefixSet walks dir recursively, decodes every ".roa" file with
// dec, and returns the canonical prefix set for serial (spec §4.1.2)
// plus the number of ROA files or unreadable directory entries skipped
// along the way.
//
// Per-ROA errors (ErrMalformedRoa, ErrUnknownAfi, OutOfRange, or a
// plain I/O error opening/decoding one file) are logged and the
// offending file is skipped; they never fail the run (spec §7).
func BuildPrefixSet(dir string, dec Decoder, serial uint32, log zerolog.Logger) (*PrefixSet, int, error) {
	var assertions []pdu.Prefix
	skipped := 0

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("could not walk ROA directory entry")
			skipped++
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, ".roa") {
			return nil
		}

		payload, err := dec.Decode(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("could not decode ROA, skipping")
			skipped++
			return nil
		}

		got, errs := Assertions(payload)
		if len(errs) > 0 {
			for _, e := range errs {
				log.Warn().Err(e).Str("path", path).Msg("invalid ROA content, skipping file")
			}
			skipped++
			return nil
		}
		assertions = append(assertions, got...)
		return nil
	})
	if err != nil {
		return nil, skipped, err
	}

	return &PrefixSet{Serial: serial, Assertions: Canonicalize(assertions)}, skipped, nil
}
