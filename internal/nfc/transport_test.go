package nfc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackops/internal/ndef"
)

// countingDevice tracks how many tags are held at once.
type countingDevice struct {
	Device
	calls int32
	held  int32
	peak  int32
}

func (d *countingDevice) Connect(ctx context.Context) (Tag, error) {
	atomic.AddInt32(&d.calls, 1)
	tag, err := d.Device.Connect(ctx)
	if err != nil {
		return nil, err
	}
	n := atomic.AddInt32(&d.held, 1)
	for {
		p := atomic.LoadInt32(&d.peak)
		if n <= p || atomic.CompareAndSwapInt32(&d.peak, p, n) {
			break
		}
	}
	return &countedTag{Tag: tag, d: d}, nil
}

type countedTag struct {
	Tag
	d *countingDevice
}

func (t *countedTag) Release() error {
	atomic.AddInt32(&t.d.held, -1)
	return t.Tag.Release()
}

type panicTag struct{ released bool }

func (p *panicTag) ReadNDEF(context.Context) ([]byte, error) { panic("driver bug") }

func (p *panicTag) WriteNDEF(context.Context, []byte) error { panic("driver bug") }

func (p *panicTag) Release() error {
	p.released = true
	return nil
}

type panicDevice struct {
	Unavailable
	tag *panicTag
}

func (d *panicDevice) Supported(context.Context) (bool, error) { return true, nil }

func (d *panicDevice) Connect(context.Context) (Tag, error) { return d.tag, nil }

func TestTransport_WriteThenRead(t *testing.T) {
	sim := NewSimulator()
	tag := NewSimTag(nil)
	sim.Place(tag)
	tr := NewTransport(sim, nil)
	ctx := context.Background()

	require.NoError(t, tr.Start(ctx))
	assert.True(t, tr.IsSupported(ctx))
	require.True(t, tr.WriteURL(ctx, "https://host/users/42"))

	url, ok := tr.ReadURL(ctx)
	require.True(t, ok)
	assert.Equal(t, "https://host/users/42", url)
	assert.Equal(t, 2, tag.Released())

	records, err := ndef.ParseMessage(tag.Message())
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestTransport_ReadFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("blank tag", func(t *testing.T) {
		sim := NewSimulator()
		tag := NewSimTag(nil)
		sim.Present(tag)
		_, err := NewTransport(sim, nil).Read(ctx)
		assert.ErrorIs(t, err, ErrNoURI)
		assert.Equal(t, 1, tag.Released())
	})

	t.Run("read error", func(t *testing.T) {
		sim := NewSimulator()
		tag := NewURITag("https://host/users/1")
		tag.FailReads(true)
		sim.Present(tag)
		url, ok := NewTransport(sim, nil).ReadURL(ctx)
		assert.False(t, ok)
		assert.Empty(t, url)
		assert.Equal(t, 1, tag.Released())
	})

	t.Run("write error", func(t *testing.T) {
		sim := NewSimulator()
		tag := NewSimTag(nil)
		tag.FailWrites(true)
		sim.Present(tag)
		err := NewTransport(sim, nil).Write(ctx, "https://host/users/1")
		assert.ErrorIs(t, err, ErrTransaction)
		assert.Equal(t, 1, tag.Released())
	})

	t.Run("panicking driver", func(t *testing.T) {
		dev := &panicDevice{tag: &panicTag{}}
		var err error
		assert.NotPanics(t, func() { _, err = NewTransport(dev, nil).Read(ctx) })
		assert.ErrorIs(t, err, ErrTransaction)
		assert.True(t, dev.tag.released)
	})
}

func TestTransport_Unsupported(t *testing.T) {
	ctx := context.Background()
	tr := NewTransport(Unavailable{}, nil)

	assert.False(t, tr.IsSupported(ctx))
	assert.False(t, tr.WriteURL(ctx, "https://host/users/1"))
	_, err := tr.Read(ctx)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestTransport_CancelWhileWaiting(t *testing.T) {
	tr := NewTransport(NewSimulator(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := tr.Read(ctx)
	assert.ErrorIs(t, err, ErrTransaction)
}

func TestTransport_Exclusive(t *testing.T) {
	sim := NewSimulator()
	dev := &countingDevice{Device: sim}
	tr := NewTransport(dev, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]string, 2)
	read := func(i int) {
		defer wg.Done()
		results[i], _ = tr.ReadURL(ctx)
	}

	wg.Add(1)
	go read(0)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&dev.calls) == 1 }, time.Second, time.Millisecond)

	wg.Add(1)
	go read(1)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&dev.calls), "second transaction must wait for the first to release")

	first, second := NewURITag("https://host/users/1"), NewURITag("https://host/users/2")
	sim.Present(first)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&dev.calls) == 2 }, time.Second, time.Millisecond)
	sim.Present(second)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&dev.peak))
	assert.ElementsMatch(t, []string{"https://host/users/1", "https://host/users/2"}, results)
	assert.Equal(t, 1, first.Released())
	assert.Equal(t, 1, second.Released())
}

func TestTransport_CloseCancelsInFlight(t *testing.T) {
	sim := NewSimulator()
	tr := NewTransport(sim, nil)

	errCh := make(chan error, 1)
	go func() {
		_, err := tr.Read(context.Background())
		errCh <- err
	}()
	require.Eventually(t, func() bool {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return tr.cancel != nil
	}, time.Second, time.Millisecond)

	require.NoError(t, tr.Close())
	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("in-flight read not cancelled by Close")
	}

	_, err := tr.Read(context.Background())
	assert.True(t, errors.Is(err, ErrClosed))
	assert.NoError(t, tr.Close())
}

func TestTransport_Observer(t *testing.T) {
	sim := NewSimulator()
	sim.Place(NewSimTag(nil))

	var mu sync.Mutex
	var seen []string
	tr := NewTransport(sim, nil).WithObserver(func(op, result string, _ time.Duration) {
		mu.Lock()
		seen = append(seen, op+":"+result)
		mu.Unlock()
	})

	ctx := context.Background()
	_, _ = tr.Read(ctx)
	_ = tr.Write(ctx, "https://host/users/5")
	_, _ = tr.Read(ctx)

	assert.Equal(t, []string{"read:no_uri", "write:ok", "read:ok"}, seen)
}
