// Package pdu implements the wire format of the rpki-router protocol:
// the framed binary PDUs exchanged between an RTR server and its
// router clients, and the file format used to persist them.
//
// All PDUs share a 2-byte header (version, type) followed by a
// per-type body. Multi-byte integers are big-endian. A file is just a
// concatenation of encoded PDUs with no additional framing; readers
// parse PDU-by-PDU until EOF.
package pdu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Version is the only protocol version this core speaks.
const Version uint8 = 0

// PDU type bytes, per the rpki-router protocol.
const (
	TypeSerialNotify  uint8 = 0
	TypeSerialQuery   uint8 = 1
	TypeResetQuery    uint8 = 2
	TypeCacheResponse uint8 = 3
	TypeIPv4Prefix    uint8 = 4
	TypeIPv6Prefix    uint8 = 6
	TypeEndOfData     uint8 = 7
	TypeCacheReset    uint8 = 8
	TypeErrorReport   uint8 = 10
)

// Source tag for a prefix assertion. This core only ever produces source 0.
const SourceRPKI uint8 = 0

// Announce flag values.
const (
	Withdraw uint8 = 0
	Announce uint8 = 1
)

var (
	// ErrBadPdu reports a wire framing violation: bad version, unknown
	// type, or a reserved field that was not zero.
	ErrBadPdu = errors.New("pdu: bad framing")

	// ErrOutOfRange reports a prefix length, max length, or flag value
	// outside its contract.
	ErrOutOfRange = errors.New("pdu: value out of range")
)

// PDU is implemented by every wire PDU kind. Encode always returns the
// full wire encoding, header included.
type PDU interface {
	Type() uint8
	Encode() []byte
}

// typeName is used only for error messages and logging.
func typeName(t uint8) string {
	switch t {
	case TypeSerialNotify:
		return "Serial Notify"
	case TypeSerialQuery:
		return "Serial Query"
	case TypeResetQuery:
		return "Reset Query"
	case TypeCacheResponse:
		return "Cache Response"
	case TypeIPv4Prefix:
		return "IPv4 Prefix"
	case TypeIPv6Prefix:
		return "IPv6 Prefix"
	case TypeEndOfData:
		return "End of Data"
	case TypeCacheReset:
		return "Cache Reset"
	case TypeErrorReport:
		return "Error Report"
	default:
		return fmt.Sprintf("type %d", t)
	}
}

// Decode reads exactly one PDU from r. It returns io.EOF (unwrapped)
// only if zero bytes could be read before the header; a short read
// after that point is io.ErrUnexpectedEOF.
func Decode(r io.Reader) (PDU, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, err
		}
		return nil, err // plain io.EOF: clean end of stream
	}
	version, pduType := hdr[0], hdr[1]
	if version != Version {
		return nil, fmt.Errorf("%w: version %d, expected %d", ErrBadPdu, version, Version)
	}

	var p PDU
	var err error
	switch pduType {
	case TypeSerialNotify, TypeSerialQuery, TypeEndOfData:
		p, err = decodeSerialPDU(r, pduType)
	case TypeResetQuery, TypeCacheResponse, TypeCacheReset:
		p, err = decodeEmptyPDU(r, pduType)
	case TypeIPv4Prefix:
		p, err = decodeIPv4Prefix(r)
	case TypeIPv6Prefix:
		p, err = decodeIPv6Prefix(r)
	case TypeErrorReport:
		p, err = decodeErrorReport(r)
	default:
		return nil, fmt.Errorf("%w: unknown type %d", ErrBadPdu, pduType)
	}
	if err == io.EOF {
		// the header was already read: a missing body is a truncated PDU
		err = io.ErrUnexpectedEOF
	}
	return p, err
}

func readUint16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func checkZero16(field string, v uint16) error {
	if v != 0 {
		return fmt.Errorf("%w: reserved %s = %d, expected 0", ErrBadPdu, field, v)
	}
	return nil
}
