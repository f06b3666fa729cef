// Package acl multiplexes logical ACL connections onto the shared
// controller link: a round-robin credit-accounted scheduler and the
// connection manager that keeps it in sync with controller handles.
package acl

import (
	log "github.com/sirupsen/logrus"

	"github.com/XC-/bthost"
	"github.com/XC-/bthost/hci"
	"github.com/XC-/bthost/queue"
)

var fatalf = func(format string, args ...interface{}) {
	log.Fatalf(format, args...)
}

// Kind distinguishes the two transports, each with its own buffer pool
// and MTU.
type Kind int

const (
	KindClassic Kind = iota
	KindLE
)

func (k Kind) String() string {
	if k == KindLE {
		return "le"
	}
	return "classic"
}

// Buffers carries the controller's immutable buffer figures into the
// scheduler.
type Buffers struct {
	AclCount uint16
	AclMTU   uint16
	LECount  uint16
	LEMTU    uint16
}

type creditPool struct {
	available uint16
	max       uint16
}

// ConnectionQueueEnd is the scheduler's borrowed view of one
// connection's queue: payloads out of the upper layer, inbound
// fragments toward it.
type ConnectionQueueEnd = queue.DownEnd[*hci.ACLPacket, []byte]

type schedConn struct {
	kind              Kind
	end               *ConnectionQueueEnd
	dequeueRegistered bool
	outstanding       uint16
	disconnected      bool
}

type taggedFragment struct {
	kind Kind
	pkt  *hci.ACLPacket
}

// RoundRobinScheduler dispatches upper-layer ACL payloads to the HCI
// egress, fragmenting to the transport MTU and spending one buffer
// credit per fragment. All state belongs to a single task queue; every
// method must be called on it (the manager and the completed-packets
// callback both live there).
type RoundRobinScheduler struct {
	tq      *bthost.TaskQueue
	hciEnd  *queue.UpEnd[*hci.ACLPacket, *hci.ACLPacket]
	buffers Buffers

	classic creditPool
	le      creditPool

	conns  map[uint16]*schedConn
	order  []uint16
	cursor int

	fragments         []taggedFragment
	enqueueRegistered bool
}

// NewRoundRobinScheduler builds an idle scheduler. tq is the queue that
// owns all scheduler state; hciEnd is the HCI layer's ACL endpoint.
func NewRoundRobinScheduler(tq *bthost.TaskQueue, buffers Buffers, hciEnd *queue.UpEnd[*hci.ACLPacket, *hci.ACLPacket]) *RoundRobinScheduler {
	return &RoundRobinScheduler{
		tq:      tq,
		hciEnd:  hciEnd,
		buffers: buffers,
		classic: creditPool{available: buffers.AclCount, max: buffers.AclCount},
		le:      creditPool{available: buffers.LECount, max: buffers.LECount},
		conns:   make(map[uint16]*schedConn),
	}
}

func (s *RoundRobinScheduler) pool(k Kind) *creditPool {
	if k == KindLE {
		return &s.le
	}
	return &s.classic
}

func (s *RoundRobinScheduler) mtu(k Kind) int {
	if k == KindLE {
		return int(s.buffers.LEMTU)
	}
	return int(s.buffers.AclMTU)
}

// Register adds a connection and starts the scheduling loop if it was
// idle. Registering a live handle twice is a contract violation.
func (s *RoundRobinScheduler) Register(kind Kind, handle uint16, end *ConnectionQueueEnd) {
	if _, dup := s.conns[handle]; dup {
		fatalf("acl: handle 0x%04X registered twice", handle)
		return
	}
	s.conns[handle] = &schedConn{kind: kind, end: end}
	s.order = append(s.order, handle)
	s.startRoundRobin()
}

// Unregister removes a connection, detaching its dequeue if registered,
// and resets the rotation cursor.
func (s *RoundRobinScheduler) Unregister(handle uint16) {
	c, ok := s.conns[handle]
	if !ok {
		fatalf("acl: unregister of unknown handle 0x%04X", handle)
		return
	}
	if c.dequeueRegistered {
		c.end.UnregisterDequeue()
		c.dequeueRegistered = false
	}
	delete(s.conns, handle)
	for i, h := range s.order {
		if h == handle {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.cursor = 0
}

// SetDisconnect marks the connection disconnected and reclaims its
// outstanding fragments into the credit pool at once; the controller
// stops reporting completion for a handle after its disconnection.
// Completion credits arriving later for this handle are discarded.
func (s *RoundRobinScheduler) SetDisconnect(handle uint16) {
	c, ok := s.conns[handle]
	if !ok {
		fatalf("acl: disconnect of unknown handle 0x%04X", handle)
		return
	}
	c.disconnected = true
	if c.dequeueRegistered {
		c.end.UnregisterDequeue()
		c.dequeueRegistered = false
	}
	if c.outstanding == 0 {
		return
	}
	pool := s.pool(c.kind)
	wasEmpty := pool.available == 0
	pool.available += c.outstanding
	c.outstanding = 0
	if pool.available > pool.max {
		fatalf("acl: %s credit pool overflow on disconnect of 0x%04X", c.kind, handle)
		return
	}
	if wasEmpty {
		s.startRoundRobin()
	}
}

// IncomingAclCredits returns n completion credits for handle. Unknown
// or disconnected handles are discarded with a log.
func (s *RoundRobinScheduler) IncomingAclCredits(handle uint16, n uint16) {
	c, ok := s.conns[handle]
	if !ok || c.disconnected {
		log.WithFields(log.Fields{"handle": handle, "credits": n}).
			Warn("acl: completion credits for unknown or disconnected handle, discarded")
		return
	}
	if n == 0 {
		return
	}
	if n > c.outstanding {
		fatalf("acl: 0x%04X returned %d credits with %d outstanding", handle, n, c.outstanding)
		return
	}
	pool := s.pool(c.kind)
	wasEmpty := pool.available == 0
	c.outstanding -= n
	pool.available += n
	if pool.available > pool.max {
		fatalf("acl: %s credit pool exceeds maximum %d", c.kind, pool.max)
		return
	}
	if wasEmpty {
		s.startRoundRobin()
	}
}

// startRoundRobin runs the registration phase: while credits are
// available and nothing is buffered, give every connection, starting at
// the rotation cursor, a dequeue registration, then advance the cursor
// one slot. The first payload to arrive wins the burst.
func (s *RoundRobinScheduler) startRoundRobin() {
	if s.enqueueRegistered {
		return
	}
	if len(s.fragments) > 0 {
		s.sendNextFragment()
		return
	}
	if s.classic.available == 0 && s.le.available == 0 {
		return
	}
	n := len(s.order)
	if n == 0 {
		return
	}
	start := s.cursor % n
	for i := 0; i < n; i++ {
		h := s.order[(start+i)%n]
		c := s.conns[h]
		if c.dequeueRegistered || c.disconnected {
			continue
		}
		if s.pool(c.kind).available == 0 {
			continue
		}
		c.dequeueRegistered = true
		handle := h
		c.end.RegisterDequeue(s.tq, func(payload []byte) { s.bufferPacket(handle, payload) })
	}
	s.cursor = (s.cursor + 1) % n
}

// bufferPacket fragments one payload into the FIFO, detaches every
// dequeue so no other connection steals mid-burst, and enters the emit
// phase.
func (s *RoundRobinScheduler) bufferPacket(handle uint16, payload []byte) {
	c, ok := s.conns[handle]
	if !ok {
		fatalf("acl: payload from unregistered handle 0x%04X", handle)
		return
	}
	frags := hci.Fragment(handle, payload, s.mtu(c.kind))
	for _, f := range frags {
		s.fragments = append(s.fragments, taggedFragment{kind: c.kind, pkt: f})
	}
	s.unregisterAllConnections()
	s.sendNextFragment()
}

func (s *RoundRobinScheduler) unregisterAllConnections() {
	for _, c := range s.conns {
		if c.dequeueRegistered {
			c.end.UnregisterDequeue()
			c.dequeueRegistered = false
		}
	}
}

// sendNextFragment enters the emit phase: an enqueue registration on
// the HCI egress that feeds fragments out of the FIFO.
func (s *RoundRobinScheduler) sendNextFragment() {
	if s.enqueueRegistered {
		return
	}
	s.enqueueRegistered = true
	s.hciEnd.RegisterEnqueue(s.tq, s.handleEnqueueNextFragment)
}

// handleEnqueueNextFragment hands the HCI egress its next fragment. A
// front fragment whose pool is dry parks the emit phase until credits
// return; an emptied FIFO re-enters the registration phase.
func (s *RoundRobinScheduler) handleEnqueueNextFragment() (*hci.ACLPacket, bool) {
	if len(s.fragments) == 0 {
		s.unregisterEnqueue()
		s.tq.Post(s.startRoundRobin)
		return nil, false
	}
	front := s.fragments[0]
	pool := s.pool(front.kind)
	if pool.available == 0 {
		s.unregisterEnqueue()
		return nil, false
	}
	pool.available--
	s.fragments = s.fragments[1:]
	// The credit is charged to the connection now, when it is spent. A
	// handle already disconnected or unregistered gives the credit up
	// for good: the controller will flush the fragment without
	// reporting completion.
	if c, ok := s.conns[front.pkt.Handle]; ok && !c.disconnected {
		c.outstanding++
	}
	if len(s.fragments) == 0 {
		s.unregisterEnqueue()
		s.tq.Post(s.startRoundRobin)
	}
	return front.pkt, true
}

func (s *RoundRobinScheduler) unregisterEnqueue() {
	s.hciEnd.UnregisterEnqueue()
	s.enqueueRegistered = false
}

// creditsAvailable reports a pool level; tests assert the conservation
// invariant with it.
func (s *RoundRobinScheduler) creditsAvailable(k Kind) uint16 {
	return s.pool(k).available
}
