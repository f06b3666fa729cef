package hci

import "fmt"

// PacketBoundary is the 2-bit packet-boundary flag of an ACL header.
type PacketBoundary uint8

const (
	FirstNonAutomaticallyFlushable PacketBoundary = 0x0
	ContinuingFragment             PacketBoundary = 0x1
	FirstAutomaticallyFlushable    PacketBoundary = 0x2
)

// Broadcast is the 2-bit broadcast flag of an ACL header.
type Broadcast uint8

const (
	PointToPoint    Broadcast = 0x0
	ActiveBroadcast Broadcast = 0x1
)

// An ACLPacket is one ACL fragment as it appears on the wire: a 12-bit
// connection handle, the boundary and broadcast flags, and the fragment
// payload. The layer never reassembles fragments; that is L2CAP's
// concern.
type ACLPacket struct {
	Handle    uint16
	Boundary  PacketBoundary
	Broadcast Broadcast
	Data      []byte
}

// Marshal produces the 4-byte header followed by the payload.
func (p *ACLPacket) Marshal() []byte {
	b := make([]byte, 4+len(p.Data))
	hf := p.Handle & 0xfff
	hf |= uint16(p.Boundary) << 12
	hf |= uint16(p.Broadcast) << 14
	o.PutUint16(b[0:], hf)
	o.PutUint16(b[2:], uint16(len(p.Data)))
	copy(b[4:], p.Data)
	return b
}

// UnmarshalACL parses a complete ACL packet, header included.
func UnmarshalACL(b []byte) (*ACLPacket, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("hci: malformed ACL packet: %d bytes", len(b))
	}
	hf := o.Uint16(b[0:])
	dlen := int(o.Uint16(b[2:]))
	if len(b) != 4+dlen {
		return nil, fmt.Errorf("hci: ACL length mismatch: header %d, payload %d", dlen, len(b)-4)
	}
	return &ACLPacket{
		Handle:    hf & 0xfff,
		Boundary:  PacketBoundary((hf >> 12) & 0x3),
		Broadcast: Broadcast((hf >> 14) & 0x3),
		Data:      b[4:],
	}, nil
}

// Fragment splits an upper-layer payload into MTU-sized ACL fragments
// for handle. The first fragment is marked first-automatically-
// flushable, the rest continuing. An empty payload still produces one
// empty fragment so upper-layer boundaries survive the trip.
func Fragment(handle uint16, payload []byte, mtu int) []*ACLPacket {
	if mtu <= 0 {
		panic(fmt.Sprintf("hci: non-positive ACL MTU %d", mtu))
	}
	boundary := FirstAutomaticallyFlushable
	var out []*ACLPacket
	for {
		n := len(payload)
		if n > mtu {
			n = mtu
		}
		out = append(out, &ACLPacket{
			Handle:   handle,
			Boundary: boundary,
			Data:     payload[:n],
		})
		payload = payload[n:]
		boundary = ContinuingFragment
		if len(payload) == 0 {
			return out
		}
	}
}
