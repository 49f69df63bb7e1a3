// Package pcsc is an nfc.Device backed by a PC/SC reader (ACR122U and
// compatibles) talking to NFC Forum Type 2 tags such as NTAG21x through the
// reader's pseudo-APDUs.
package pcsc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ebfe/scard"
	"go.uber.org/zap"

	"hackops/internal/logging"
	"hackops/internal/ndef"
	"hackops/internal/nfc"
)

const (
	pageSize      = 4
	firstDataPage = 4
	ccPage        = 3
	// Largest Type 2 data area in the NTAG21x family (NTAG216).
	maxDataBytes = 888
)

var errNoReader = errors.New("pcsc: no reader attached")

// Device drives one PC/SC reader.
type Device struct {
	reader string
	poll   time.Duration
	log    *zap.Logger

	mu sync.Mutex
	sc *scard.Context
}

// New returns a device for the first attached reader whose name contains
// reader, or simply the first attached reader when reader is empty.
func New(reader string, poll time.Duration, log *zap.Logger) *Device {
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	return &Device{reader: reader, poll: poll, log: logging.OrNop(log).Named("pcsc")}
}

func (d *Device) scardContext() (*scard.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sc != nil {
		if ok, err := d.sc.IsValid(); err == nil && ok {
			return d.sc, nil
		}
		_ = d.sc.Release()
		d.sc = nil
	}
	sc, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("pcsc: establish context: %w", err)
	}
	d.sc = sc
	return sc, nil
}

// Start establishes the PC/SC context.
func (d *Device) Start(context.Context) error {
	_, err := d.scardContext()
	return err
}

// Supported reports whether a PC/SC service with a matching reader exists.
// It uses a context of its own so it never disturbs a Connect waiting on the
// shared one.
func (d *Device) Supported(context.Context) (bool, error) {
	sc, err := scard.EstablishContext()
	if err != nil {
		return false, fmt.Errorf("pcsc: establish context: %w", err)
	}
	defer func() { _ = sc.Release() }()
	readers, _ := sc.ListReaders()
	if _, err := pickReader(readers, d.reader); err != nil {
		return false, nil
	}
	return true, nil
}

// pickReader returns the first reader whose name contains want, or the first
// reader when want is empty.
func pickReader(readers []string, want string) (string, error) {
	if len(readers) == 0 {
		return "", errNoReader
	}
	if want == "" {
		return readers[0], nil
	}
	for _, r := range readers {
		if strings.Contains(r, want) {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", errNoReader, want)
}

// Connect waits for a card on the reader and connects exclusively. Calls are
// serialized by nfc.Transport, so only one uses the shared context at a time.
func (d *Device) Connect(ctx context.Context) (nfc.Tag, error) {
	sc, err := d.scardContext()
	if err != nil {
		return nil, err
	}
	readers, _ := sc.ListReaders()
	reader, err := pickReader(readers, d.reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", nfc.ErrUnsupported, err)
	}

	states := []scard.ReaderState{{Reader: reader, CurrentState: scard.StateUnaware}}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := sc.GetStatusChange(states, d.poll)
		if err != nil && !errors.Is(err, scard.ErrTimeout) {
			return nil, fmt.Errorf("pcsc: status change: %w", err)
		}
		if states[0].EventState&scard.StatePresent != 0 {
			break
		}
		states[0].CurrentState = states[0].EventState &^ scard.StateChanged
	}

	card, err := sc.Connect(reader, scard.ShareExclusive, scard.ProtocolAny)
	if err != nil {
		return nil, fmt.Errorf("pcsc: connect %s: %w", reader, err)
	}
	d.log.Debug("tag connected", zap.String("reader", reader))
	return &tag{card: card}, nil
}

// Close releases the PC/SC context.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sc == nil {
		return nil
	}
	err := d.sc.Release()
	d.sc = nil
	return err
}

type tag struct {
	card *scard.Card
}

func (t *tag) transmit(apdu []byte) ([]byte, error) {
	resp, err := t.card.Transmit(apdu)
	if err != nil {
		return nil, err
	}
	if len(resp) < 2 {
		return nil, fmt.Errorf("pcsc: short response % x", resp)
	}
	sw := resp[len(resp)-2:]
	if sw[0] != 0x90 || sw[1] != 0x00 {
		return nil, fmt.Errorf("pcsc: status word %02x%02x", sw[0], sw[1])
	}
	return resp[:len(resp)-2], nil
}

// readPages reads four pages starting at page.
func (t *tag) readPages(page int) ([]byte, error) {
	data, err := t.transmit([]byte{0xFF, 0xB0, 0x00, byte(page), 0x10})
	if err != nil {
		return nil, fmt.Errorf("read page %d: %w", page, err)
	}
	return data, nil
}

func (t *tag) writePage(page int, data []byte) error {
	apdu := append([]byte{0xFF, 0xD6, 0x00, byte(page), pageSize}, data...)
	if _, err := t.transmit(apdu); err != nil {
		return fmt.Errorf("write page %d: %w", page, err)
	}
	return nil
}

// capacity returns the data area size advertised by the capability container.
func (t *tag) capacity() (int, error) {
	cc, err := t.readPages(ccPage)
	if err != nil {
		return 0, err
	}
	if len(cc) < pageSize || cc[0] != 0xE1 {
		return 0, errors.New("pcsc: tag is not ndef formatted")
	}
	size := int(cc[2]) * 8
	if size == 0 || size > maxDataBytes {
		size = maxDataBytes
	}
	return size, nil
}

func (t *tag) ReadNDEF(ctx context.Context) ([]byte, error) {
	limit, err := t.capacity()
	if err != nil {
		return nil, err
	}
	var mem []byte
	for page := firstDataPage; len(mem) < limit; page += 4 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunk, err := t.readPages(page)
		if err != nil {
			return nil, err
		}
		mem = append(mem, chunk...)
		msg, err := ndef.UnwrapTLV(mem)
		switch {
		case err == nil:
			return msg, nil
		case errors.Is(err, ndef.ErrNoNDEF):
			return nil, nil
		}
	}
	return nil, nil
}

func (t *tag) WriteNDEF(ctx context.Context, msg []byte) error {
	limit, err := t.capacity()
	if err != nil {
		return err
	}
	data := ndef.WrapTLV(msg)
	if pad := len(data) % pageSize; pad != 0 {
		data = append(data, make([]byte, pageSize-pad)...)
	}
	if len(data) > limit {
		return fmt.Errorf("pcsc: message of %d bytes exceeds tag capacity %d", len(data), limit)
	}
	for i := 0; i < len(data); i += pageSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.writePage(firstDataPage+i/pageSize, data[i:i+pageSize]); err != nil {
			return err
		}
	}
	return nil
}

func (t *tag) Release() error {
	return t.card.Disconnect(scard.LeaveCard)
}
