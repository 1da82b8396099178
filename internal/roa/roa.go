// Package roa decodes validated Route Origin Authorizations into the
// canonical, ordered prefix-set form the rest of this core operates on
// (spec §4.1.1–§4.1.3).
//
// ROA cryptographic validation happens upstream (out of scope, spec
// §1); this package only consumes the decoded payload an external
// validator surfaces for each already-verified ROA object.
package roa

import (
	"errors"
	"fmt"

	"github.com/bgpfix/rtrd/internal/pdu"
)

// AFI values as they appear in a ROA payload.
const (
	AFIv4 uint16 = 0x0001
	AFIv6 uint16 = 0x0002
)

var (
	// ErrMalformedRoa reports a ROA with an unsupported version or a
	// structurally invalid payload.
	ErrMalformedRoa = errors.New("roa: malformed")

	// ErrUnknownAfi reports an AFI value this core does not understand.
	ErrUnknownAfi = errors.New("roa: unknown afi")
)

// PrefixEntry is one prefix_entry from a ROA's payload: a bit string
// (Bits, significant to BitLen bits, left-aligned and zero-padded to a
// byte boundary exactly as a DER BIT STRING content octet sequence
// would be) plus an optional explicit max length.
type PrefixEntry struct {
	Bits   []byte
	BitLen int
	MaxLen *uint8 // nil means "defaults to BitLen"
}

// AFIEntry groups the prefixes announced for one address family.
type AFIEntry struct {
	AFI      uint16
	Prefixes []PrefixEntry
}

// Payload is the decoded triple (version, asn, afi entries) an upstream
// validator surfaces for one already-verified ROA object (spec §6.1).
type Payload struct {
	Version int
	ASN     uint32
	AFIs    []AFIEntry
}

// Decoder turns a validated ROA file's signed container into its
// decoded Payload. Implementations are external collaborators: this
// core never parses or verifies the signed container itself.
type Decoder interface {
	Decode(path string) (*Payload, error)
}

// Assertions converts a decoded ROA payload into zero or more canonical
// prefix assertions (pdu.Prefix, always with Announce set — the
// snapshot-context default of spec §3.1). Entries with an unsupported
// version or an out-of-range field are skipped individually per the
// propagation policy of spec §7; the caller (the directory walker)
// logs the corresponding error.
func Assertions(p *Payload) ([]pdu.Prefix, []error) {
	if p.Version != 0 {
		return nil, []error{fmt.Errorf("%w: version %d, expected 0", ErrMalformedRoa, p.Version)}
	}

	var out []pdu.Prefix
	var errs []error
	for _, afi := range p.AFIs {
		family, err := familyOf(afi.AFI)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, e := range afi.Prefixes {
			a, err := buildAssertion(family, p.ASN, e)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			out = append(out, a)
		}
	}
	return out, errs
}

func familyOf(afi uint16) (int, error) {
	switch afi {
	case AFIv4:
		return 4, nil
	case AFIv6:
		return 6, nil
	default:
		return 0, fmt.Errorf("%w: afi 0x%04x", ErrUnknownAfi, afi)
	}
}

func buildAssertion(family int, asn uint32, e PrefixEntry) (pdu.Prefix, error) {
	width := 32
	if family == 6 {
		width = 128
	}

	length := e.BitLen
	if length < 0 || length > width {
		return nil, fmt.Errorf("%w: prefix length %d out of [0, %d]", pdu.ErrOutOfRange, length, width)
	}

	maxLen := uint8(length)
	if e.MaxLen != nil {
		maxLen = *e.MaxLen
	}
	if int(maxLen) < length || int(maxLen) > width {
		return nil, fmt.Errorf("%w: max-length %d out of [%d, %d]", pdu.ErrOutOfRange, maxLen, length, width)
	}

	bytes := leftPad(e.Bits, width/8)

	switch family {
	case 4:
		a := &pdu.IPv4Prefix{
			Flags:  pdu.Announce,
			Length: uint8(length),
			MaxLen: maxLen,
			Prefix: beUint32(bytes),
			ASN:    asn,
		}
		if err := a.Check(); err != nil {
			return nil, err
		}
		return a, nil
	default:
		a := &pdu.IPv6Prefix{
			Flags:  pdu.Announce,
			Length: uint8(length),
			MaxLen: maxLen,
			ASN:    asn,
		}
		copy(a.Prefix[:], bytes)
		if err := a.Check(); err != nil {
			return nil, err
		}
		return a, nil
	}
}

// leftPad returns a width-byte slice holding bits, left-aligned and
// zero-padded on the right, per spec §4.1.1's "left-padded with zero
// bits to the family width" (padding is added after the significant
// bits, since prefixes are high-bit-significant).
func leftPad(bits []byte, width int) []byte {
	out := make([]byte, width)
	copy(out, bits)
	return out
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
