package acl

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XC-/bthost"
	"github.com/XC-/bthost/hal"
	"github.com/XC-/bthost/hci"
)

// stackHal scripts the controller interrogation and records ACL
// traffic, so the whole HAL -> HCI -> controller -> manager stack runs
// against it.
type stackHal struct {
	mu       sync.Mutex
	commands []hci.Opcode
	aclData  [][]byte

	event func([]byte)
	acl   func([]byte)
}

func (f *stackHal) Dependencies() []*bthost.Descriptor { return nil }
func (f *stackHal) Start(*bthost.Env)                  {}
func (f *stackHal) Stop()                              {}
func (f *stackHal) RegisterClosedCallback(func(error)) {}

func (f *stackHal) RegisterReceiveHandlers(event func([]byte), acl func([]byte)) {
	f.mu.Lock()
	f.event, f.acl = event, acl
	f.mu.Unlock()
}

// Interrogation replies: 2 classic buffers of 27 bytes, no LE buffers
// (classic fallback), every command reported supported.
func (f *stackHal) SendCommand(b []byte) error {
	op := hci.Opcode(uint16(b[0]) | uint16(b[1])<<8)
	f.mu.Lock()
	f.commands = append(f.commands, op)
	ev := f.event
	f.mu.Unlock()

	var rp []byte
	switch op {
	case hci.OpReadBDAddr:
		rp = []byte{0x00, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11}
	case hci.OpReadBufferSize:
		rp = []byte{0x00, 0x1B, 0x00, 0x40, 0x02, 0x00, 0x0A, 0x00}
	case hci.OpLEReadBufferSize:
		rp = []byte{0x00, 0x00, 0x00, 0x00}
	case hci.OpReadLocalSupportedCommands:
		cmds := make([]byte, 64)
		for i := range cmds {
			cmds[i] = 0xFF
		}
		rp = append([]byte{0x00}, cmds...)
	case hci.OpReadLocalExtendedFeatures:
		rp = []byte{0x00, b[3], 0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	case hci.OpLEReadLocalSupportedFeatures:
		rp = []byte{0x00, 0x1F, 0, 0, 0, 0, 0, 0, 0}
	case hci.OpLEReadMaximumAdvertisingDataLength:
		rp = []byte{0x00, 0xFB, 0x00}
	case hci.OpCreateConnection, hci.OpDisconnect, hci.OpAcceptConnectionRequest, hci.OpLECreateConnection:
		// Status-class commands get a Command Status reply.
		ev(statusEvent(0x00, b[0], b[1]))
		return nil
	default:
		rp = []byte{0x00}
	}
	params := append([]byte{0x01, b[0], b[1]}, rp...)
	ev(append([]byte{byte(hci.EventCommandComplete), byte(len(params))}, params...))
	return nil
}

func statusEvent(status, opLo, opHi byte) []byte {
	return []byte{byte(hci.EventCommandStatus), 4, status, 0x01, opLo, opHi}
}

func (f *stackHal) SendACL(b []byte) error {
	f.mu.Lock()
	f.aclData = append(f.aclData, append([]byte(nil), b...))
	f.mu.Unlock()
	return nil
}

func (f *stackHal) sentACL() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.aclData...)
}

func (f *stackHal) sentOpcodes() []hci.Opcode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]hci.Opcode(nil), f.commands...)
}

func (f *stackHal) injectEvent(code hci.EventCode, params ...byte) {
	f.mu.Lock()
	ev := f.event
	f.mu.Unlock()
	ev(append([]byte{byte(code), byte(len(params))}, params...))
}

func (f *stackHal) injectConnectionComplete(status byte, handle uint16, addr hci.Address) {
	f.injectEvent(hci.EventConnectionComplete,
		status, byte(handle), byte(handle>>8),
		addr[5], addr[4], addr[3], addr[2], addr[1], addr[0],
		0x01, 0x00)
}

func (f *stackHal) injectDisconnectionComplete(handle uint16, reason byte) {
	f.injectEvent(hci.EventDisconnectionComplete,
		0x00, byte(handle), byte(handle>>8), reason)
}

func (f *stackHal) injectCompletedPackets(handle uint16, credits uint16) {
	f.injectEvent(hci.EventNumberOfCompletedPackets,
		0x01, byte(handle), byte(handle>>8), byte(credits), byte(credits>>8))
}

type managerHarness struct {
	t   *testing.T
	fh  *stackHal
	mgr *Manager
	tq  *bthost.TaskQueue

	mu        sync.Mutex
	connected []*Connection
	failed    []uint8
}

func newManagerHarness(t *testing.T) *managerHarness {
	t.Helper()
	fh := &stackHal{}
	reg := bthost.NewRegistry()
	reg.Provide(hal.ModuleDescriptor, fh)
	reg.Start(ModuleDescriptor)
	t.Cleanup(reg.StopAll)

	h := &managerHarness{
		t:   t,
		fh:  fh,
		mgr: reg.Get(ModuleDescriptor).(*Manager),
		tq:  bthost.NewTaskQueue("upper"),
	}
	t.Cleanup(h.tq.Shutdown)

	h.mgr.RegisterCallbacks(ConnectionCallbacks{
		OnConnectSuccess: func(c *Connection) {
			h.mu.Lock()
			h.connected = append(h.connected, c)
			h.mu.Unlock()
		},
		OnConnectFail: func(peer hci.Address, reason uint8) {
			h.mu.Lock()
			h.failed = append(h.failed, reason)
			h.mu.Unlock()
		},
	}, h.tq)
	return h
}

func (h *managerHarness) waitConnection() *Connection {
	var c *Connection
	require.Eventually(h.t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		if len(h.connected) == 0 {
			return false
		}
		c = h.connected[len(h.connected)-1]
		return true
	}, time.Second, time.Millisecond)
	return c
}

var peer = hci.Address{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}

func TestManagerConnectionLifecycle(t *testing.T) {
	h := newManagerHarness(t)

	h.mgr.CreateConnection(peer)
	require.Eventually(t, func() bool {
		for _, op := range h.fh.sentOpcodes() {
			if op == hci.OpCreateConnection {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	h.fh.injectConnectionComplete(0x00, 0x0040, peer)
	c := h.waitConnection()
	assert.Equal(t, uint16(0x0040), c.Handle())
	assert.Equal(t, peer, c.Address())
	assert.Equal(t, KindClassic, c.Kind())

	// Outbound payload reaches the wire with the connection's handle.
	c.AclQueueEnd().Enqueue([]byte{0xCA, 0xFE})
	require.Eventually(t, func() bool { return len(h.fh.sentACL()) == 1 }, time.Second, time.Millisecond)
	pkt, err := hci.UnmarshalACL(h.fh.sentACL()[0])
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0040), pkt.Handle)
	assert.Equal(t, []byte{0xCA, 0xFE}, pkt.Data)

	// Inbound fragments surface on the connection's queue end.
	in := &hci.ACLPacket{Handle: 0x0040, Boundary: hci.FirstAutomaticallyFlushable, Data: []byte{0x01}}
	h.fh.mu.Lock()
	aclFn := h.fh.acl
	h.fh.mu.Unlock()
	aclFn(in.Marshal())
	require.Eventually(t, func() bool {
		_, ok := c.AclQueueEnd().TryDequeue()
		return ok
	}, time.Second, time.Millisecond)

	// Disconnect: command out, event in, callback fired, handle gone.
	var mu sync.Mutex
	var reason uint8
	gone := false
	c.RegisterDisconnectCallback(func(r uint8) {
		mu.Lock()
		reason, gone = r, true
		mu.Unlock()
	}, h.tq)

	c.Disconnect(0x13)
	require.Eventually(t, func() bool {
		for _, op := range h.fh.sentOpcodes() {
			if op == hci.OpDisconnect {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	h.fh.injectDisconnectionComplete(0x0040, 0x16)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gone
	}, time.Second, time.Millisecond)
	mu.Lock()
	assert.Equal(t, uint8(0x16), reason)
	mu.Unlock()
}

func TestManagerConnectFail(t *testing.T) {
	h := newManagerHarness(t)

	h.mgr.CreateConnection(peer)
	// Page timeout.
	h.fh.injectConnectionComplete(0x04, 0x0000, peer)

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.failed) == 1 && h.failed[0] == 0x04
	}, time.Second, time.Millisecond)
	h.mu.Lock()
	assert.Empty(t, h.connected)
	h.mu.Unlock()
}

func TestManagerCreditsFlowThroughController(t *testing.T) {
	h := newManagerHarness(t)

	// Two classic buffers; LE falls back to the classic pool figures.
	h.fh.injectConnectionComplete(0x00, 0x0040, peer)
	c := h.waitConnection()

	// Three payloads against two credits: the third waits for a
	// completed-packets event.
	c.AclQueueEnd().Enqueue([]byte{1})
	c.AclQueueEnd().Enqueue([]byte{2})
	c.AclQueueEnd().Enqueue([]byte{3})

	require.Eventually(t, func() bool { return len(h.fh.sentACL()) == 2 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, h.fh.sentACL(), 2)

	h.fh.injectCompletedPackets(0x0040, 1)
	require.Eventually(t, func() bool { return len(h.fh.sentACL()) == 3 }, time.Second, time.Millisecond)
}

func TestManagerLEConnection(t *testing.T) {
	h := newManagerHarness(t)

	h.mgr.CreateLEConnection(peer, 0x00)
	require.Eventually(t, func() bool {
		for _, op := range h.fh.sentOpcodes() {
			if op == hci.OpLECreateConnection {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	h.fh.injectEvent(hci.EventLEMeta,
		0x01, 0x00, 0x48, 0x00, 0x01, 0x00,
		peer[5], peer[4], peer[3], peer[2], peer[1], peer[0],
		0x18, 0x00, 0x00, 0x00, 0xF4, 0x01, 0x00)

	c := h.waitConnection()
	assert.Equal(t, uint16(0x0048), c.Handle())
	assert.Equal(t, KindLE, c.Kind())
	assert.Equal(t, peer, c.Address())
}

func TestManagerAcceptsIncomingConnection(t *testing.T) {
	h := newManagerHarness(t)

	h.fh.injectEvent(hci.EventConnectionRequest,
		peer[5], peer[4], peer[3], peer[2], peer[1], peer[0],
		0x04, 0x02, 0x40, // class of device
		0x01) // ACL

	require.Eventually(t, func() bool {
		for _, op := range h.fh.sentOpcodes() {
			if op == hci.OpAcceptConnectionRequest {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	h.fh.injectConnectionComplete(0x00, 0x0041, peer)
	c := h.waitConnection()
	assert.Equal(t, uint16(0x0041), c.Handle())
}

func TestManagerFinishReleasesHandle(t *testing.T) {
	h := newManagerHarness(t)

	h.fh.injectConnectionComplete(0x00, 0x0040, peer)
	c := h.waitConnection()

	c.Finish()
	c.Finish() // idempotent

	// The handle can be reused immediately.
	h.fh.injectConnectionComplete(0x00, 0x0040, peer)
	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return len(h.connected) == 2
	}, time.Second, time.Millisecond)
}
