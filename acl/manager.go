package acl

import (
	log "github.com/sirupsen/logrus"

	"github.com/XC-/bthost"
	"github.com/XC-/bthost/controller"
	"github.com/XC-/bthost/hci"
)

// ModuleDescriptor identifies the ACL manager in the module registry.
var ModuleDescriptor = &bthost.Descriptor{
	Name: "acl",
	New:  func() bthost.Module { return new(Manager) },
}

// ConnectionCallbacks is the upper layer's sink for connection
// lifecycle. OnConnectSuccess yields an owned connection; the receiver
// is responsible for its Finish.
type ConnectionCallbacks struct {
	OnConnectSuccess func(c *Connection)
	OnConnectFail    func(peer hci.Address, reason uint8)
}

type callbackSink struct {
	cb ConnectionCallbacks
	tq *bthost.TaskQueue
}

// Default connection parameters, as the stack has no per-call knobs at
// this layer.
const (
	packetTypeAllACL = 0xcc18 // DM1/DH1/DM3/DH3/DM5/DH5
	roleRemainSlave  = 0x01
	defaultReason    = 0x13 // remote user terminated
)

// Manager tracks logical ACL connections, translating connection
// complete and disconnection complete events into lifecycle actions and
// keeping the scheduler's handle map in sync with the controller's.
type Manager struct {
	env   *bthost.Env
	hci   *hci.Layer
	ctrl  *controller.Controller
	cmds  *hci.CommandInterface
	sched *RoundRobinScheduler

	conns map[uint16]*Connection
	sink  *callbackSink
}

func (m *Manager) Dependencies() []*bthost.Descriptor {
	return []*bthost.Descriptor{hci.ModuleDescriptor, controller.ModuleDescriptor}
}

func (m *Manager) Start(env *bthost.Env) {
	m.env = env
	m.hci = env.Dependency(hci.ModuleDescriptor).(*hci.Layer)
	m.ctrl = env.Dependency(controller.ModuleDescriptor).(*controller.Controller)
	m.cmds = m.hci.AclConnection()
	m.conns = make(map[uint16]*Connection)

	m.sched = NewRoundRobinScheduler(env.Queue(), Buffers{
		AclCount: m.ctrl.AclBufferCount(),
		AclMTU:   m.ctrl.AclMTU(),
		LECount:  m.ctrl.LEBufferCount(),
		LEMTU:    m.ctrl.LEMTU(),
	}, m.hci.AclQueueEnd())

	m.ctrl.RegisterCompletedAclPacketsCallback(m.sched.IncomingAclCredits, env.Queue())

	m.hci.RegisterEventHandler(hci.EventConnectionComplete, env.Queue(), m.onConnectionComplete)
	m.hci.RegisterEventHandler(hci.EventConnectionRequest, env.Queue(), m.onConnectionRequest)
	m.hci.RegisterEventHandler(hci.EventDisconnectionComplete, env.Queue(), m.onDisconnectionComplete)
	m.hci.RegisterLEEventHandler(hci.SubeventLEConnectionComplete, env.Queue(), m.onLEConnectionComplete)

	m.hci.AclQueueEnd().RegisterDequeue(env.Queue(), m.routeInbound)
}

func (m *Manager) Stop() {
	m.hci.AclQueueEnd().UnregisterDequeue()
	m.hci.UnregisterEventHandler(hci.EventConnectionComplete)
	m.hci.UnregisterEventHandler(hci.EventConnectionRequest)
	m.hci.UnregisterEventHandler(hci.EventDisconnectionComplete)
	m.hci.UnregisterLEEventHandler(hci.SubeventLEConnectionComplete)
}

// RegisterCallbacks installs the upper layer's connection sink. Must be
// called before any CreateConnection.
func (m *Manager) RegisterCallbacks(cb ConnectionCallbacks, tq *bthost.TaskQueue) {
	m.env.Queue().Post(func() {
		m.sink = &callbackSink{cb: cb, tq: tq}
	})
}

// CreateConnection pages a classic peer. The outcome arrives through
// the registered callbacks.
func (m *Manager) CreateConnection(peer hci.Address) {
	m.cmds.EnqueueCommandStatus(hci.CreateConnection{
		BDAddr:          peer,
		PacketType:      packetTypeAllACL,
		AllowRoleSwitch: 1,
	}, m.env.Queue(), func(v hci.CommandStatusView, err error) {
		if err != nil {
			m.connectFail(peer, 0xff, err)
		} else if v.Status != 0x00 {
			m.connectFail(peer, v.Status, nil)
		}
	})
}

// CreateLEConnection initiates an LE link to peer.
func (m *Manager) CreateLEConnection(peer hci.Address, peerAddressType uint8) {
	m.cmds.EnqueueCommandStatus(hci.LECreateConnection{
		LEScanInterval:     0x0060,
		LEScanWindow:       0x0030,
		PeerAddressType:    peerAddressType,
		PeerAddress:        peer,
		ConnIntervalMin:    0x0018,
		ConnIntervalMax:    0x0028,
		SupervisionTimeout: 0x01f4,
	}, m.env.Queue(), func(v hci.CommandStatusView, err error) {
		if err != nil {
			m.connectFail(peer, 0xff, err)
		} else if v.Status != 0x00 {
			m.connectFail(peer, v.Status, nil)
		}
	})
}

// CancelConnect withdraws a pending classic page to peer.
func (m *Manager) CancelConnect(peer hci.Address) {
	m.cmds.EnqueueCommand(hci.CreateConnectionCancel{BDAddr: peer},
		m.env.Queue(), func(v hci.CommandCompleteView, err error) {
			if err != nil {
				log.WithError(err).WithField("peer", peer.String()).
					Warn("acl: create connection cancel failed")
			}
		})
}

func (m *Manager) connectFail(peer hci.Address, reason uint8, err error) {
	if err != nil {
		log.WithError(err).WithField("peer", peer.String()).Warn("acl: connect failed")
	}
	sink := m.sink
	if sink == nil || sink.cb.OnConnectFail == nil {
		return
	}
	sink.tq.Post(func() { sink.cb.OnConnectFail(peer, reason) })
}

// Event handlers; all run on the manager's queue.

func (m *Manager) onConnectionComplete(ev hci.EventView) {
	var v hci.ConnectionCompleteView
	if err := v.Unmarshal(ev.Params); err != nil {
		log.WithError(err).Warn("acl: malformed Connection Complete")
		return
	}
	if v.Status != 0x00 {
		m.connectFail(v.BDAddr, v.Status, nil)
		return
	}
	m.connected(KindClassic, v.ConnectionHandle, v.BDAddr)
}

func (m *Manager) onLEConnectionComplete(ev hci.EventView) {
	var v hci.LEConnectionCompleteView
	if err := v.Unmarshal(ev.Params); err != nil {
		log.WithError(err).Warn("acl: malformed LE Connection Complete")
		return
	}
	if v.Status != 0x00 {
		m.connectFail(v.PeerAddress, v.Status, nil)
		return
	}
	m.connected(KindLE, v.ConnectionHandle, v.PeerAddress)
}

// onConnectionRequest accepts incoming classic connections, keeping the
// peripheral role.
func (m *Manager) onConnectionRequest(ev hci.EventView) {
	var v hci.ConnectionRequestView
	if err := v.Unmarshal(ev.Params); err != nil {
		log.WithError(err).Warn("acl: malformed Connection Request")
		return
	}
	m.cmds.EnqueueCommandStatus(hci.AcceptConnectionRequest{
		BDAddr: v.BDAddr,
		Role:   roleRemainSlave,
	}, m.env.Queue(), func(s hci.CommandStatusView, err error) {
		if err != nil {
			log.WithError(err).WithField("peer", v.BDAddr.String()).
				Warn("acl: accept connection failed")
		}
	})
}

func (m *Manager) connected(kind Kind, handle uint16, peer hci.Address) {
	if old, dup := m.conns[handle]; dup {
		log.WithFields(log.Fields{"handle": handle, "peer": old.addr.String()}).
			Warn("acl: handle still live on connection complete, dropping old")
		m.forget(old, defaultReason, true)
	}
	c := newConnection(m, kind, handle, peer)
	m.conns[handle] = c
	m.sched.Register(kind, handle, c.schedulerQueueEnd())
	log.WithFields(log.Fields{"handle": handle, "peer": peer.String(), "kind": kind.String()}).
		Info("acl: connected")

	sink := m.sink
	if sink == nil || sink.cb.OnConnectSuccess == nil {
		log.WithField("handle", handle).Warn("acl: connection with no callback sink")
		return
	}
	sink.tq.Post(func() { sink.cb.OnConnectSuccess(c) })
}

func (m *Manager) onDisconnectionComplete(ev hci.EventView) {
	var v hci.DisconnectionCompleteView
	if err := v.Unmarshal(ev.Params); err != nil {
		log.WithError(err).Warn("acl: malformed Disconnection Complete")
		return
	}
	c, ok := m.conns[v.ConnectionHandle]
	if !ok {
		log.WithField("handle", v.ConnectionHandle).
			Warn("acl: disconnection for unknown handle")
		return
	}
	log.WithFields(log.Fields{"handle": v.ConnectionHandle, "reason": v.Reason}).
		Info("acl: disconnected")
	m.forget(c, v.Reason, true)
}

// disconnect issues the Disconnect command for c; the connection stays
// live until the controller confirms.
func (m *Manager) disconnect(c *Connection, reason uint8) {
	m.cmds.EnqueueCommandStatus(hci.Disconnect{
		ConnectionHandle: c.handle,
		Reason:           reason,
	}, m.env.Queue(), func(v hci.CommandStatusView, err error) {
		if err != nil {
			log.WithError(err).WithField("handle", c.handle).
				Warn("acl: disconnect command failed")
		}
	})
}

// forget releases a connection: scheduler borrow dropped, handle
// removed, optional disconnect notification. Runs on the manager's
// queue.
func (m *Manager) forget(c *Connection, reason uint8, notify bool) {
	if c.finished {
		return
	}
	c.finished = true
	m.sched.SetDisconnect(c.handle)
	m.sched.Unregister(c.handle)
	delete(m.conns, c.handle)
	if !notify {
		return
	}
	if cb := c.disconnect; cb != nil {
		cb.tq.Post(func() { cb.fn(reason) })
	}
}

// routeInbound fans inbound fragments out to their connection's queue.
func (m *Manager) routeInbound(pkt *hci.ACLPacket) {
	c, ok := m.conns[pkt.Handle]
	if !ok {
		log.WithField("handle", pkt.Handle).Warn("acl: inbound data for unknown handle, dropped")
		return
	}
	c.schedulerQueueEnd().Enqueue(pkt)
}
