// Package fixture provides a roa.Decoder over a small JSON fixture
// format, for exercising internal/roa and the builder without a real
// RPKI validator in front of them. The format is deliberately close to
// Routinator's "vrps" JSON export, as used for the equivalent purpose
// in the teacher's stages/rpki file loader.
package fixture

import (
	"fmt"
	"os"

	"github.com/buger/jsonparser"

	"github.com/bgpfix/rtrd/internal/roa"
)

// Decoder reads the fixture JSON format:
//
//	{"asn": 64512, "roas": [{"prefix": "192.0.2.0/24", "maxLength": 24}]}
//
// Each fixture file holds one ROA (one ASN, one or more prefixes),
// matching the one-ROA-per-file contract of spec §4.1.1.
type Decoder struct{}

func (Decoder) Decode(path string) (*roa.Payload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	asn, err := jsonparser.GetInt(data, "asn")
	if err != nil {
		return nil, fmt.Errorf("%w: missing asn: %w", roa.ErrMalformedRoa, err)
	}

	var v4, v6 []roa.PrefixEntry
	var parseErr error
	_, err = jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
		if parseErr != nil {
			return
		}
		if err != nil {
			parseErr = err
			return
		}
		prefixStr, err := jsonparser.GetString(value, "prefix")
		if err != nil {
			parseErr = fmt.Errorf("%w: missing prefix: %w", roa.ErrMalformedRoa, err)
			return
		}
		maxLen, mlErr := jsonparser.GetInt(value, "maxLength")

		entry, family, err := parsePrefix(prefixStr)
		if err != nil {
			parseErr = err
			return
		}
		if mlErr == nil {
			m := uint8(maxLen)
			entry.MaxLen = &m
		}
		if family == 4 {
			v4 = append(v4, entry)
		} else {
			v6 = append(v6, entry)
		}
	}, "roas")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", roa.ErrMalformedRoa, err)
	}
	if parseErr != nil {
		return nil, parseErr
	}

	var afis []roa.AFIEntry
	if len(v4) > 0 {
		afis = append(afis, roa.AFIEntry{AFI: roa.AFIv4, Prefixes: v4})
	}
	if len(v6) > 0 {
		afis = append(afis, roa.AFIEntry{AFI: roa.AFIv6, Prefixes: v6})
	}

	return &roa.Payload{Version: 0, ASN: uint32(asn), AFIs: afis}, nil
}
