package hal

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// duplex joins two pipes into one ReadWriteCloser, giving the test the
// controller's side of the wire.
type duplex struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (d *duplex) Read(p []byte) (int, error)  { return d.r.Read(p) }
func (d *duplex) Write(p []byte) (int, error) { return d.w.Write(p) }
func (d *duplex) Close() error {
	d.r.Close()
	return d.w.Close()
}

func newWire() (host *duplex, controller *duplex) {
	hr, cw := io.Pipe()
	cr, hw := io.Pipe()
	return &duplex{r: hr, w: hw}, &duplex{r: cr, w: cw}
}

func startH4(t *testing.T) (*H4, *duplex) {
	t.Helper()
	hostSide, ctrlSide := newWire()
	h := NewH4(hostSide)
	h.Start(nil)
	t.Cleanup(h.Stop)
	return h, ctrlSide
}

func TestH4WritePrependsIndicator(t *testing.T) {
	h, ctrl := startH4(t)

	go h.SendCommand([]byte{0x03, 0x0C, 0x00})
	buf := make([]byte, 4)
	_, err := io.ReadFull(ctrl, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x03, 0x0C, 0x00}, buf)

	go h.SendACL([]byte{0x40, 0x20, 0x01, 0x00, 0xAA})
	buf = make([]byte, 6)
	_, err = io.ReadFull(ctrl, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x40, 0x20, 0x01, 0x00, 0xAA}, buf)
}

func TestH4ReadDelimitsPackets(t *testing.T) {
	h, ctrl := startH4(t)

	var mu sync.Mutex
	var events, acl [][]byte
	h.RegisterReceiveHandlers(
		func(b []byte) {
			mu.Lock()
			events = append(events, b)
			mu.Unlock()
		},
		func(b []byte) {
			mu.Lock()
			acl = append(acl, b)
			mu.Unlock()
		},
	)

	// An event, an ACL packet, and a skipped SCO packet back to back.
	go ctrl.Write([]byte{
		0x04, 0x0E, 0x04, 0x01, 0x03, 0x0C, 0x00,
		0x03, 0x40, 0x00, 0x02, 0x99, 0x99,
		0x02, 0x40, 0x20, 0x02, 0x00, 0xDE, 0xAD,
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1 && len(acl) == 1
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []byte{0x0E, 0x04, 0x01, 0x03, 0x0C, 0x00}, events[0])
	assert.Equal(t, []byte{0x40, 0x20, 0x02, 0x00, 0xDE, 0xAD}, acl[0])
}

func TestH4ClosedCallbackOnTransportLoss(t *testing.T) {
	hostSide, ctrlSide := newWire()
	h := NewH4(hostSide)

	closed := make(chan error, 1)
	h.RegisterClosedCallback(func(err error) { closed <- err })
	h.Start(nil)

	ctrlSide.Close()
	select {
	case err := <-closed:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("closed callback never fired")
	}
}

func TestH4StopSuppressesClosedCallback(t *testing.T) {
	hostSide, _ := newWire()
	h := NewH4(hostSide)

	fired := false
	h.RegisterClosedCallback(func(error) { fired = true })
	h.Start(nil)
	h.Stop()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, fired)
}
