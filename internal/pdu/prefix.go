package pdu

import (
	"fmt"
	"io"
)

// Prefix is implemented by IPv4Prefix and IPv6Prefix: the two address-family
// flavors of a prefix assertion. Canonical ordering (spec §3.1) is the
// lexicographic order of Encode(), which sorts by PDU type (and so by
// family) first, then by the rest of the body.
type Prefix interface {
	PDU
	Announce() bool
	SetAnnounce(bool)
	Family() int // 4 or 6
}

// IPv4Prefix is the Type 4 PDU: an IPv4 prefix assertion.
type IPv4Prefix struct {
	Color  uint8
	Flags  uint8 // bit 0: announce (1) / withdraw (0)
	Length uint8
	MaxLen uint8
	Prefix uint32
	ASN    uint32
}

// IPv6Prefix is the Type 6 PDU: an IPv6 prefix assertion.
type IPv6Prefix struct {
	Color  uint8
	Flags  uint8
	Length uint8
	MaxLen uint8
	Prefix [16]byte
	ASN    uint32
}

func (p *IPv4Prefix) Type() uint8 { return TypeIPv4Prefix }
func (p *IPv6Prefix) Type() uint8 { return TypeIPv6Prefix }

func (p *IPv4Prefix) Announce() bool { return p.Flags&1 == 1 }
func (p *IPv6Prefix) Announce() bool { return p.Flags&1 == 1 }

func (p *IPv4Prefix) SetAnnounce(v bool) { p.Flags = setAnnounceBit(p.Flags, v) }
func (p *IPv6Prefix) SetAnnounce(v bool) { p.Flags = setAnnounceBit(p.Flags, v) }

func (p *IPv4Prefix) Family() int { return 4 }
func (p *IPv6Prefix) Family() int { return 6 }

func setAnnounceBit(flags uint8, v bool) uint8 {
	if v {
		return flags | 1
	}
	return flags &^ 1
}

// Check validates a prefix assertion against the invariants of spec §3.1:
// L <= family width, L <= M <= family width, announce in {0,1}.
func (p *IPv4Prefix) Check() error { return checkPrefixFields(32, p.Length, p.MaxLen, p.Flags) }
func (p *IPv6Prefix) Check() error { return checkPrefixFields(128, p.Length, p.MaxLen, p.Flags) }

func checkPrefixFields(width, length, maxLen, flags uint8) error {
	if length > width {
		return fmt.Errorf("%w: length %d > family width %d", ErrOutOfRange, length, width)
	}
	if maxLen < length || maxLen > width {
		return fmt.Errorf("%w: max-length %d out of [%d, %d]", ErrOutOfRange, maxLen, length, width)
	}
	if flags&^1 != 0 {
		return fmt.Errorf("%w: flags %#x has reserved bits set", ErrOutOfRange, flags)
	}
	return nil
}

func (p *IPv4Prefix) Encode() []byte {
	b := make([]byte, 15)
	b[0], b[1] = Version, TypeIPv4Prefix
	b[2], b[3], b[4], b[5], b[6] = p.Color, p.Flags, p.Length, p.MaxLen, SourceRPKI
	putUint32(b[7:11], p.Prefix)
	putUint32(b[11:15], p.ASN)
	return b
}

func (p *IPv6Prefix) Encode() []byte {
	b := make([]byte, 27)
	b[0], b[1] = Version, TypeIPv6Prefix
	b[2], b[3], b[4], b[5], b[6] = p.Color, p.Flags, p.Length, p.MaxLen, SourceRPKI
	copy(b[7:23], p.Prefix[:])
	putUint32(b[23:27], p.ASN)
	return b
}

func decodeIPv4Prefix(r io.Reader) (PDU, error) {
	var body [13]byte
	if _, err := io.ReadFull(r, body[:]); err != nil {
		return nil, err
	}
	source := body[4]
	if source != SourceRPKI {
		return nil, fmt.Errorf("%w: source tag %d, expected %d", ErrBadPdu, source, SourceRPKI)
	}
	p := &IPv4Prefix{
		Color:  body[0],
		Flags:  body[1],
		Length: body[2],
		MaxLen: body[3],
		Prefix: beUint32(body[5:9]),
		ASN:    beUint32(body[9:13]),
	}
	if err := p.Check(); err != nil {
		return nil, err
	}
	return p, nil
}

func decodeIPv6Prefix(r io.Reader) (PDU, error) {
	var body [25]byte
	if _, err := io.ReadFull(r, body[:]); err != nil {
		return nil, err
	}
	source := body[4]
	if source != SourceRPKI {
		return nil, fmt.Errorf("%w: source tag %d, expected %d", ErrBadPdu, source, SourceRPKI)
	}
	p := &IPv6Prefix{
		Color:  body[0],
		Flags:  body[1],
		Length: body[2],
		MaxLen: body[3],
		ASN:    beUint32(body[21:25]),
	}
	copy(p.Prefix[:], body[5:21])
	if err := p.Check(); err != nil {
		return nil, err
	}
	return p, nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
