// Package hci turns the byte-level HAL into a typed Host Controller
// Interface: command submission with credit-gated issue and reply
// pairing, event-code dispatch, and a bidirectional ACL fragment queue.
package hci

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/XC-/bthost"
	"github.com/XC-/bthost/hal"
	"github.com/XC-/bthost/queue"
)

var fatalf = func(format string, args ...interface{}) {
	log.Fatalf(format, args...)
}

var (
	// ErrProtocol marks replies that violate HCI pairing rules: an
	// opcode mismatch or the wrong completion kind.
	ErrProtocol = errors.New("hci: protocol error")

	// ErrTransportClosed fails commands pending when the HAL is lost or
	// the layer stops.
	ErrTransportClosed = errors.New("hci: transport closed")
)

// ModuleDescriptor identifies the HCI layer in the module registry.
var ModuleDescriptor = &bthost.Descriptor{
	Name: "hci",
	New:  func() bthost.Module { return new(Layer) },
}

type completionKind int

const (
	expectComplete completionKind = iota
	expectStatus
)

// A commandSlot is one submitted command: its serialized bytes, the
// completion kind the caller declared, and where to deliver the reply.
type commandSlot struct {
	op         Opcode
	raw        []byte
	kind       completionKind
	tq         *bthost.TaskQueue
	onComplete func(CommandCompleteView, error)
	onStatus   func(CommandStatusView, error)
}

type subscription struct {
	fn func(EventView)
	tq *bthost.TaskQueue
}

// Layer is the HCI layer module. All of its state is owned by its task
// queue; the exported methods post onto it.
type Layer struct {
	env *bthost.Env
	hal hal.Hal

	// Command pipeline. credits is the controller's command-credit
	// count; commands wait in submission order and issue one per
	// credit. issued is the FIFO of commands at the controller.
	credits int
	waiting []*commandSlot
	issued  []*commandSlot
	closed  bool

	handlers   map[EventCode]subscription
	leHandlers map[SubeventCode]subscription

	// Up items are inbound fragments, down items outbound. The down
	// side is paced one fragment at a time so the scheduler's enqueue
	// callback controls the flow.
	aclQueue *queue.BidiQueue[*ACLPacket, *ACLPacket]
}

func (l *Layer) Dependencies() []*bthost.Descriptor {
	return []*bthost.Descriptor{hal.ModuleDescriptor}
}

func (l *Layer) Start(env *bthost.Env) {
	l.env = env
	l.hal = env.Dependency(hal.ModuleDescriptor).(hal.Hal)
	l.credits = 1
	l.handlers = make(map[EventCode]subscription)
	l.leHandlers = make(map[SubeventCode]subscription)
	l.aclQueue = queue.NewBidi[*ACLPacket, *ACLPacket](0, 1)

	l.aclQueue.DownEnd().RegisterDequeue(env.Queue(), l.sendFragment)

	l.hal.RegisterReceiveHandlers(
		func(b []byte) { env.Queue().Post(func() { l.onEventBytes(b) }) },
		func(b []byte) { env.Queue().Post(func() { l.onACLBytes(b) }) },
	)
	l.hal.RegisterClosedCallback(func(err error) {
		env.Queue().Post(func() { l.shutdown(err) })
	})
}

func (l *Layer) Stop() {
	done := make(chan struct{})
	l.env.Queue().Post(func() {
		l.shutdown(nil)
		close(done)
	})
	<-done
}

// AclQueueEnd returns the upper layer's endpoint of the ACL queue:
// enqueue outbound fragments, dequeue inbound ones.
func (l *Layer) AclQueueEnd() *queue.UpEnd[*ACLPacket, *ACLPacket] {
	return l.aclQueue.UpEnd()
}

// EnqueueCommand submits a command whose reply arrives as a
// Command Complete event. The reply (or failure) is delivered to fn on
// tq, exactly once.
func (l *Layer) EnqueueCommand(cmd Command, tq *bthost.TaskQueue, fn func(CommandCompleteView, error)) {
	slot := &commandSlot{
		op:         cmd.Opcode(),
		raw:        MarshalCommand(cmd),
		kind:       expectComplete,
		tq:         tq,
		onComplete: fn,
	}
	l.env.Queue().Post(func() { l.enqueueSlot(slot) })
}

// EnqueueCommandStatus submits a command whose reply arrives as a
// Command Status event.
func (l *Layer) EnqueueCommandStatus(cmd Command, tq *bthost.TaskQueue, fn func(CommandStatusView, error)) {
	slot := &commandSlot{
		op:       cmd.Opcode(),
		raw:      MarshalCommand(cmd),
		kind:     expectStatus,
		tq:       tq,
		onStatus: fn,
	}
	l.env.Queue().Post(func() { l.enqueueSlot(slot) })
}

// RegisterEventHandler subscribes fn to an event code. One subscriber
// per code; a second registration, or touching a code the layer owns
// (Command Complete, Command Status, LE Meta), is a contract violation.
func (l *Layer) RegisterEventHandler(code EventCode, tq *bthost.TaskQueue, fn func(EventView)) {
	switch code {
	case EventCommandComplete, EventCommandStatus, EventLEMeta:
		fatalf("hci: event %s is owned by the layer", code)
		return
	}
	l.env.Queue().Post(func() {
		if _, dup := l.handlers[code]; dup {
			fatalf("hci: duplicate handler for event %s", code)
			return
		}
		l.handlers[code] = subscription{fn: fn, tq: tq}
	})
}

func (l *Layer) UnregisterEventHandler(code EventCode) {
	l.env.Queue().Post(func() { delete(l.handlers, code) })
}

// RegisterLEEventHandler subscribes fn to an LE meta subevent code.
func (l *Layer) RegisterLEEventHandler(code SubeventCode, tq *bthost.TaskQueue, fn func(EventView)) {
	l.env.Queue().Post(func() {
		if _, dup := l.leHandlers[code]; dup {
			fatalf("hci: duplicate handler for subevent %s", code)
			return
		}
		l.leHandlers[code] = subscription{fn: fn, tq: tq}
	})
}

func (l *Layer) UnregisterLEEventHandler(code SubeventCode) {
	l.env.Queue().Post(func() { delete(l.leHandlers, code) })
}

// Everything below runs on the layer's task queue.

func (l *Layer) enqueueSlot(s *commandSlot) {
	if l.closed {
		l.failSlot(s, ErrTransportClosed)
		return
	}
	l.waiting = append(l.waiting, s)
	l.drainCommands()
}

func (l *Layer) drainCommands() {
	for l.credits > 0 && len(l.waiting) > 0 && !l.closed {
		s := l.waiting[0]
		l.waiting = l.waiting[1:]
		l.credits--
		l.issued = append(l.issued, s)
		log.WithField("opcode", s.op.String()).Debug("hci: issuing command")
		if err := l.hal.SendCommand(s.raw); err != nil {
			log.WithError(err).Error("hci: command write failed")
			l.shutdown(err)
			return
		}
	}
}

func (l *Layer) failSlot(s *commandSlot, err error) {
	switch s.kind {
	case expectComplete:
		fn := s.onComplete
		s.tq.Post(func() { fn(CommandCompleteView{}, err) })
	case expectStatus:
		fn := s.onStatus
		s.tq.Post(func() { fn(CommandStatusView{}, err) })
	}
}

func (l *Layer) shutdown(err error) {
	if l.closed {
		return
	}
	l.closed = true
	if err != nil {
		log.WithError(err).Warn("hci: transport lost")
	}
	for _, s := range l.issued {
		l.failSlot(s, ErrTransportClosed)
	}
	for _, s := range l.waiting {
		l.failSlot(s, ErrTransportClosed)
	}
	l.issued, l.waiting = nil, nil
}

func (l *Layer) onEventBytes(b []byte) {
	ev, err := splitEvent(b)
	if err != nil {
		log.WithError(err).Warnf("hci: dropping event [% X]", b)
		return
	}
	switch ev.Code {
	case EventCommandComplete:
		var v CommandCompleteView
		if err := v.Unmarshal(ev.Params); err != nil {
			log.WithError(err).Warn("hci: malformed Command Complete")
			return
		}
		l.credits += int(v.NumHCICommandPackets)
		l.pairReply(v.CommandOpcode, expectComplete, func(s *commandSlot) {
			fn := s.onComplete
			s.tq.Post(func() { fn(v, nil) })
		})
		l.drainCommands()
	case EventCommandStatus:
		var v CommandStatusView
		if err := v.Unmarshal(ev.Params); err != nil {
			log.WithError(err).Warn("hci: malformed Command Status")
			return
		}
		l.credits += int(v.NumHCICommandPackets)
		l.pairReply(v.CommandOpcode, expectStatus, func(s *commandSlot) {
			fn := s.onStatus
			s.tq.Post(func() { fn(v, nil) })
		})
		l.drainCommands()
	case EventLEMeta:
		if len(ev.Params) == 0 {
			log.Warn("hci: empty LE meta event")
			return
		}
		sub, ok := l.leHandlers[SubeventCode(ev.Params[0])]
		if !ok {
			log.WithField("subevent", SubeventCode(ev.Params[0]).String()).
				Warn("hci: unsolicited LE meta event, dropped")
			return
		}
		sub.tq.Post(func() { sub.fn(ev) })
	default:
		sub, ok := l.handlers[ev.Code]
		if !ok {
			log.WithField("event", ev.Code.String()).Warn("hci: unsolicited event, dropped")
			return
		}
		sub.tq.Post(func() { sub.fn(ev) })
	}
}

// pairReply matches a reply to the front outstanding command. A front
// command whose opcode disagrees is failed with a protocol error and
// pairing tries the next; a matched command of the wrong completion
// kind is failed too. Replies matching nothing are unsolicited.
func (l *Layer) pairReply(op Opcode, kind completionKind, deliver func(*commandSlot)) {
	for len(l.issued) > 0 {
		front := l.issued[0]
		l.issued = l.issued[1:]
		if front.op != op {
			l.failSlot(front, fmt.Errorf("%w: reply for %s while %s outstanding", ErrProtocol, op, front.op))
			continue
		}
		if front.kind != kind {
			l.failSlot(front, fmt.Errorf("%w: wrong completion kind for %s", ErrProtocol, op))
			return
		}
		deliver(front)
		return
	}
	log.WithField("opcode", op.String()).Warn("hci: unsolicited command reply")
}

func (l *Layer) onACLBytes(b []byte) {
	pkt, err := UnmarshalACL(b)
	if err != nil {
		log.WithError(err).Warn("hci: dropping ACL packet")
		return
	}
	l.aclQueue.DownEnd().Enqueue(pkt)
}

func (l *Layer) sendFragment(p *ACLPacket) {
	if l.closed {
		return
	}
	if err := l.hal.SendACL(p.Marshal()); err != nil {
		log.WithError(err).Error("hci: ACL write failed")
		l.shutdown(err)
	}
}
