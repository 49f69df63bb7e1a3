// Package ndef encodes and decodes NFC Data Exchange Format messages. Only
// what a URI-carrying identity tag needs is supported: short and long
// records, optional ID fields, and the well-known URI type. Chunked records
// are rejected.
package ndef

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Type name formats.
const (
	TNFEmpty       byte = 0x00
	TNFWellKnown   byte = 0x01
	TNFMedia       byte = 0x02
	TNFAbsoluteURI byte = 0x03
	TNFExternal    byte = 0x04
	TNFUnknown     byte = 0x05
	TNFUnchanged   byte = 0x06
)

const (
	flagMB  byte = 0x80
	flagME  byte = 0x40
	flagCF  byte = 0x20
	flagSR  byte = 0x10
	flagIL  byte = 0x08
	maskTNF byte = 0x07
)

// RTDURI is the record type of a well-known URI record.
var RTDURI = []byte{'U'}

var (
	ErrEmptyMessage = errors.New("ndef: empty message")
	ErrTruncated    = errors.New("ndef: truncated record")
	ErrChunked      = errors.New("ndef: chunked records not supported")
)

// Record is one NDEF record.
type Record struct {
	TNF     byte
	Type    []byte
	ID      []byte
	Payload []byte
}

// EncodeMessage serializes records into a single message, setting the
// message begin/end flags and choosing the short form when the payload fits.
func EncodeMessage(records []Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, ErrEmptyMessage
	}
	var out []byte
	for i, r := range records {
		if len(r.Type) > 0xFF || len(r.ID) > 0xFF {
			return nil, fmt.Errorf("ndef: record %d: type or id too long", i)
		}
		header := r.TNF & maskTNF
		if i == 0 {
			header |= flagMB
		}
		if i == len(records)-1 {
			header |= flagME
		}
		short := len(r.Payload) <= 0xFF
		if short {
			header |= flagSR
		}
		if len(r.ID) > 0 {
			header |= flagIL
		}

		out = append(out, header, byte(len(r.Type)))
		if short {
			out = append(out, byte(len(r.Payload)))
		} else {
			out = binary.BigEndian.AppendUint32(out, uint32(len(r.Payload)))
		}
		if len(r.ID) > 0 {
			out = append(out, byte(len(r.ID)))
		}
		out = append(out, r.Type...)
		out = append(out, r.ID...)
		out = append(out, r.Payload...)
	}
	return out, nil
}

// ParseMessage splits a raw message into records. Parsing stops at the
// record carrying the message end flag; trailing bytes are ignored.
func ParseMessage(b []byte) ([]Record, error) {
	if len(b) == 0 {
		return nil, ErrEmptyMessage
	}
	var records []Record
	for off := 0; off < len(b); {
		header := b[off]
		if header&flagCF != 0 {
			return nil, ErrChunked
		}
		off++
		if off >= len(b) {
			return nil, ErrTruncated
		}
		typeLen := int(b[off])
		off++

		var payloadLen int
		if header&flagSR != 0 {
			if off >= len(b) {
				return nil, ErrTruncated
			}
			payloadLen = int(b[off])
			off++
		} else {
			if off+4 > len(b) {
				return nil, ErrTruncated
			}
			n := binary.BigEndian.Uint32(b[off:])
			if uint64(n) > uint64(len(b)) {
				return nil, ErrTruncated
			}
			payloadLen = int(n)
			off += 4
		}

		idLen := 0
		if header&flagIL != 0 {
			if off >= len(b) {
				return nil, ErrTruncated
			}
			idLen = int(b[off])
			off++
		}

		end := off + typeLen + idLen + payloadLen
		if end > len(b) {
			return nil, ErrTruncated
		}
		r := Record{TNF: header & maskTNF}
		r.Type = b[off : off+typeLen]
		off += typeLen
		r.ID = b[off : off+idLen]
		off += idLen
		r.Payload = b[off:end]
		off = end
		records = append(records, r)

		if header&flagME != 0 {
			break
		}
	}
	return records, nil
}

// IsURI reports whether r is a well-known URI record.
func (r Record) IsURI() bool {
	return r.TNF == TNFWellKnown && len(r.Type) == len(RTDURI) && r.Type[0] == RTDURI[0]
}
