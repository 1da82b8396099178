package pdu

import "io"

// SerialNotify, SerialQuery and EndOfData share the same wire shape:
// a 2-byte zero reserved field followed by a u32 serial.

type SerialNotify struct{ Serial uint32 }
type SerialQuery struct{ Serial uint32 }
type EndOfData struct{ Serial uint32 }

func (p *SerialNotify) Type() uint8 { return TypeSerialNotify }
func (p *SerialQuery) Type() uint8  { return TypeSerialQuery }
func (p *EndOfData) Type() uint8    { return TypeEndOfData }

func (p *SerialNotify) Encode() []byte { return encodeSerialPDU(p.Type(), p.Serial) }
func (p *SerialQuery) Encode() []byte  { return encodeSerialPDU(p.Type(), p.Serial) }
func (p *EndOfData) Encode() []byte    { return encodeSerialPDU(p.Type(), p.Serial) }

func encodeSerialPDU(pduType uint8, serial uint32) []byte {
	b := make([]byte, 8)
	b[0], b[1] = Version, pduType
	// b[2:4] reserved zero
	putUint32(b[4:8], serial)
	return b
}

func decodeSerialPDU(r io.Reader, pduType uint8) (PDU, error) {
	zero, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	if err := checkZero16("zero", zero); err != nil {
		return nil, err
	}
	serial, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	switch pduType {
	case TypeSerialNotify:
		return &SerialNotify{Serial: serial}, nil
	case TypeSerialQuery:
		return &SerialQuery{Serial: serial}, nil
	default:
		return &EndOfData{Serial: serial}, nil
	}
}

// ResetQuery, CacheResponse and CacheReset carry no payload beyond the
// 2-byte zero reserved field.

type ResetQuery struct{}
type CacheResponse struct{}
type CacheReset struct{}

func (p *ResetQuery) Type() uint8    { return TypeResetQuery }
func (p *CacheResponse) Type() uint8 { return TypeCacheResponse }
func (p *CacheReset) Type() uint8    { return TypeCacheReset }

func (p *ResetQuery) Encode() []byte    { return encodeEmptyPDU(p.Type()) }
func (p *CacheResponse) Encode() []byte { return encodeEmptyPDU(p.Type()) }
func (p *CacheReset) Encode() []byte    { return encodeEmptyPDU(p.Type()) }

func encodeEmptyPDU(pduType uint8) []byte {
	return []byte{Version, pduType, 0, 0}
}

func decodeEmptyPDU(r io.Reader, pduType uint8) (PDU, error) {
	zero, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	if err := checkZero16("zero", zero); err != nil {
		return nil, err
	}
	switch pduType {
	case TypeResetQuery:
		return &ResetQuery{}, nil
	case TypeCacheResponse:
		return &CacheResponse{}, nil
	default:
		return &CacheReset{}, nil
	}
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
