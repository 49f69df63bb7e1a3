package ndef

import (
	"errors"
	"strings"
)

// uriPrefixes is the URI identifier code table of the NFC Forum URI record
// type definition, indexed by code.
var uriPrefixes = [...]string{
	"",
	"http://www.",
	"https://www.",
	"http://",
	"https://",
	"tel:",
	"mailto:",
	"ftp://anonymous:anonymous@",
	"ftp://ftp.",
	"ftps://",
	"sftp://",
	"smb://",
	"nfs://",
	"ftp://",
	"dav://",
	"news:",
	"telnet://",
	"imap:",
	"rtsp://",
	"urn:",
	"pop:",
	"sip:",
	"sips:",
	"tftp:",
	"btspp://",
	"btl2cap://",
	"btgoep://",
	"tcpobex://",
	"irdaobex://",
	"file://",
	"urn:epc:id:",
	"urn:epc:tag:",
	"urn:epc:pat:",
	"urn:epc:raw:",
	"urn:epc:",
	"urn:nfc:",
}

var ErrBadURIPayload = errors.New("ndef: malformed uri payload")

// URIRecord builds a well-known URI record, abbreviating the longest
// matching prefix.
func URIRecord(uri string) Record {
	code, best := 0, 0
	for i, p := range uriPrefixes {
		if len(p) > best && strings.HasPrefix(uri, p) {
			code, best = i, len(p)
		}
	}
	payload := make([]byte, 0, 1+len(uri)-best)
	payload = append(payload, byte(code))
	payload = append(payload, uri[best:]...)
	return Record{TNF: TNFWellKnown, Type: RTDURI, Payload: payload}
}

// DecodeURIPayload expands a URI record payload back into the full URI.
func DecodeURIPayload(p []byte) (string, error) {
	if len(p) == 0 || int(p[0]) >= len(uriPrefixes) {
		return "", ErrBadURIPayload
	}
	return uriPrefixes[p[0]] + string(p[1:]), nil
}

// EncodeURI returns a message holding exactly one URI record.
func EncodeURI(uri string) ([]byte, error) {
	if uri == "" {
		return nil, ErrBadURIPayload
	}
	return EncodeMessage([]Record{URIRecord(uri)})
}

// FirstURI returns the decoded payload of the first well-known URI record.
// A nil or empty slice yields false.
func FirstURI(records []Record) (string, bool) {
	for _, r := range records {
		if !r.IsURI() {
			continue
		}
		uri, err := DecodeURIPayload(r.Payload)
		if err != nil {
			return "", false
		}
		return uri, true
	}
	return "", false
}

// DecodeURI parses a raw message and returns its first URI. Malformed or
// empty input yields false.
func DecodeURI(msg []byte) (string, bool) {
	records, err := ParseMessage(msg)
	if err != nil {
		return "", false
	}
	return FirstURI(records)
}
