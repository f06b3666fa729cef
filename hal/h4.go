package hal

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/XC-/bthost"
)

// H4 packet indicators.
const (
	pktCommand uint8 = 0x01
	pktACLData uint8 = 0x02
	pktSCOData uint8 = 0x03
	pktEvent   uint8 = 0x04
	pktVendor  uint8 = 0xFF
)

// H4 frames HCI packets over a byte stream with the standard one-byte
// packet indicators. It implements both Hal and bthost.Module; the read
// pump starts with the module and the transport closes with it.
type H4 struct {
	rwc io.ReadWriteCloser

	wmu sync.Mutex // serializes writes so frames never interleave

	mu      sync.Mutex
	event   func([]byte)
	aclData func([]byte)
	closed  func(error)
	done    bool

	g errgroup.Group
}

// NewH4 wraps rwc. The pump does not start until the module does.
func NewH4(rwc io.ReadWriteCloser) *H4 {
	return &H4{rwc: rwc}
}

func (h *H4) Dependencies() []*bthost.Descriptor { return nil }

func (h *H4) Start(env *bthost.Env) {
	h.g.Go(h.readLoop)
	go func() {
		err := h.g.Wait()
		h.mu.Lock()
		cb := h.closed
		already := h.done
		h.done = true
		h.mu.Unlock()
		if already {
			return
		}
		if cb != nil {
			cb(err)
		}
	}()
}

func (h *H4) Stop() {
	h.mu.Lock()
	h.done = true
	h.mu.Unlock()
	h.rwc.Close()
}

func (h *H4) RegisterReceiveHandlers(event func([]byte), aclData func([]byte)) {
	h.mu.Lock()
	h.event = event
	h.aclData = aclData
	h.mu.Unlock()
}

func (h *H4) RegisterClosedCallback(fn func(error)) {
	h.mu.Lock()
	h.closed = fn
	h.mu.Unlock()
}

func (h *H4) SendCommand(b []byte) error { return h.write(pktCommand, b) }
func (h *H4) SendACL(b []byte) error     { return h.write(pktACLData, b) }

func (h *H4) write(ind uint8, b []byte) error {
	h.wmu.Lock()
	defer h.wmu.Unlock()
	frame := make([]byte, 0, 1+len(b))
	frame = append(frame, ind)
	frame = append(frame, b...)
	n, err := h.rwc.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("hal: short write: %d of %d bytes", n, len(frame))
	}
	return nil
}

// readLoop delimits packets from the byte stream. Event packets carry a
// 2-byte header with the parameter length in the second byte; ACL
// packets a 4-byte header with a little-endian length in bytes 2-3.
func (h *H4) readLoop() error {
	r := bufio.NewReader(h.rwc)
	for {
		ind, err := r.ReadByte()
		if err != nil {
			return err
		}
		switch ind {
		case pktEvent:
			hdr := make([]byte, 2)
			if _, err := io.ReadFull(r, hdr); err != nil {
				return err
			}
			b := make([]byte, 2+int(hdr[1]))
			copy(b, hdr)
			if _, err := io.ReadFull(r, b[2:]); err != nil {
				return err
			}
			h.dispatchEvent(b)
		case pktACLData:
			hdr := make([]byte, 4)
			if _, err := io.ReadFull(r, hdr); err != nil {
				return err
			}
			dlen := int(hdr[2]) | int(hdr[3])<<8
			b := make([]byte, 4+dlen)
			copy(b, hdr)
			if _, err := io.ReadFull(r, b[4:]); err != nil {
				return err
			}
			h.dispatchACL(b)
		case pktSCOData:
			// 3-byte header, length in the third byte.
			hdr := make([]byte, 3)
			if _, err := io.ReadFull(r, hdr); err != nil {
				return err
			}
			if _, err := io.CopyN(io.Discard, r, int64(hdr[2])); err != nil {
				return err
			}
			log.Warn("hal: SCO packet not supported, skipped")
		default:
			return fmt.Errorf("hal: unknown packet indicator 0x%02X", ind)
		}
	}
}

func (h *H4) dispatchEvent(b []byte) {
	h.mu.Lock()
	fn := h.event
	h.mu.Unlock()
	if fn == nil {
		log.Warn("hal: event received before handlers registered, dropped")
		return
	}
	fn(b)
}

func (h *H4) dispatchACL(b []byte) {
	h.mu.Lock()
	fn := h.aclData
	h.mu.Unlock()
	if fn == nil {
		log.Warn("hal: ACL data received before handlers registered, dropped")
		return
	}
	fn(b)
}
