package ndef

import (
	"encoding/binary"
	"errors"
)

// Type 2 tag TLV block types. Lock, memory control and proprietary blocks
// are skipped by length.
const (
	tlvNull       byte = 0x00
	tlvNDEF       byte = 0x03
	tlvTerminator byte = 0xFE
)

var (
	ErrNoNDEF   = errors.New("ndef: no ndef tlv in tag memory")
	ErrShortTLV = errors.New("ndef: tag memory ends inside a tlv")
)

// WrapTLV frames msg as an NDEF TLV followed by a terminator, the layout a
// Type 2 tag expects in its data area.
func WrapTLV(msg []byte) []byte {
	out := make([]byte, 0, len(msg)+5)
	out = append(out, tlvNDEF)
	if len(msg) < 0xFF {
		out = append(out, byte(len(msg)))
	} else {
		out = append(out, 0xFF)
		out = binary.BigEndian.AppendUint16(out, uint16(len(msg)))
	}
	out = append(out, msg...)
	return append(out, tlvTerminator)
}

// UnwrapTLV walks the TLV blocks of a Type 2 data area and returns the value
// of the first NDEF TLV. ErrShortTLV means more memory must be read.
func UnwrapTLV(mem []byte) ([]byte, error) {
	for off := 0; off < len(mem); {
		t := mem[off]
		off++
		switch t {
		case tlvNull:
			continue
		case tlvTerminator:
			return nil, ErrNoNDEF
		}
		if off >= len(mem) {
			return nil, ErrShortTLV
		}
		n := int(mem[off])
		off++
		if n == 0xFF {
			if off+2 > len(mem) {
				return nil, ErrShortTLV
			}
			n = int(binary.BigEndian.Uint16(mem[off:]))
			off += 2
		}
		if off+n > len(mem) {
			return nil, ErrShortTLV
		}
		if t == tlvNDEF {
			return mem[off : off+n], nil
		}
		off += n
	}
	return nil, ErrShortTLV
}
