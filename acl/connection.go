package acl

import (
	log "github.com/sirupsen/logrus"

	"github.com/XC-/bthost"
	"github.com/XC-/bthost/hci"
	"github.com/XC-/bthost/queue"
)

// QueueEnd is the upper layer's endpoint of a connection's queue:
// enqueue payloads (not fragments) down, dequeue inbound fragments up.
type QueueEnd = queue.UpEnd[*hci.ACLPacket, []byte]

type disconnectCallback struct {
	fn func(reason uint8)
	tq *bthost.TaskQueue
}

// A Connection is one live ACL link, identified by its controller-
// assigned handle. It is created by the manager on a connection
// complete event and destroyed after the disconnection complete event
// or an explicit Finish.
type Connection struct {
	mgr    *Manager
	handle uint16
	addr   hci.Address
	kind   Kind

	q *queue.BidiQueue[*hci.ACLPacket, []byte]

	disconnect *disconnectCallback
	finished   bool
}

func newConnection(mgr *Manager, kind Kind, handle uint16, addr hci.Address) *Connection {
	return &Connection{
		mgr:    mgr,
		handle: handle,
		addr:   addr,
		kind:   kind,
		q:      queue.NewBidi[*hci.ACLPacket, []byte](0, 0),
	}
}

func (c *Connection) Handle() uint16       { return c.handle }
func (c *Connection) Address() hci.Address { return c.addr }
func (c *Connection) Kind() Kind           { return c.kind }

// AclQueueEnd returns the endpoint that feeds the scheduler.
func (c *Connection) AclQueueEnd() *QueueEnd { return c.q.UpEnd() }

// schedulerQueueEnd is the scheduler's borrow of the other side.
func (c *Connection) schedulerQueueEnd() *ConnectionQueueEnd { return c.q.DownEnd() }

// RegisterDisconnectCallback installs fn, run on tq when the link goes
// down. At most one callback; re-registration replaces it.
func (c *Connection) RegisterDisconnectCallback(fn func(reason uint8), tq *bthost.TaskQueue) {
	c.mgr.env.Queue().Post(func() {
		c.disconnect = &disconnectCallback{fn: fn, tq: tq}
	})
}

// Disconnect asks the controller to tear the link down. Destruction
// still waits for the disconnection complete event.
func (c *Connection) Disconnect(reason uint8) {
	c.mgr.disconnect(c, reason)
}

// Finish releases the connection without waiting for a controller
// event: the scheduler borrow is dropped and the handle forgotten.
// Calling it twice is harmless.
func (c *Connection) Finish() {
	c.mgr.env.Queue().Post(func() {
		if c.finished {
			return
		}
		log.WithField("handle", c.handle).Debug("acl: connection finished")
		c.mgr.forget(c, 0, false)
	})
}
