// Package controller interrogates the Bluetooth controller at startup
// and caches its capabilities for the lifetime of the stack. It also
// owns the Number Of Completed Packets subscription, fanning completion
// credits out to whoever registers for them (the ACL scheduler).
package controller

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/XC-/bthost"
	"github.com/XC-/bthost/hci"
)

var fatalf = func(format string, args ...interface{}) {
	log.Fatalf(format, args...)
}

// ModuleDescriptor identifies the controller in the module registry.
var ModuleDescriptor = &bthost.Descriptor{
	Name: "controller",
	New:  func() bthost.Module { return new(Controller) },
}

// Capabilities is the immutable snapshot captured at startup.
type Capabilities struct {
	BDAddr            hci.Address
	SupportedCommands [64]byte
	ExtendedFeatures  [][8]byte

	AclBufferCount uint16
	AclMTU         uint16
	LEBufferCount  uint16
	LEMTU          uint16

	LEFeatures               uint64
	MaxAdvertisingDataLength uint16
}

// The bring-up event masks, straight from the Core Specification
// defaults this stack relies on.
const (
	eventMask   = 0x3dbff807fffbffff
	leEventMask = 0x000000000000001f
)

type completedCallback struct {
	fn func(handle, credits uint16)
	tq *bthost.TaskQueue
}

// Controller is the capability module. After Start returns, every
// accessor is a pure read on immutable state.
type Controller struct {
	env  *bthost.Env
	hci  *hci.Layer
	caps Capabilities

	completed *completedCallback
}

func (c *Controller) Dependencies() []*bthost.Descriptor {
	return []*bthost.Descriptor{hci.ModuleDescriptor}
}

func (c *Controller) Start(env *bthost.Env) {
	c.env = env
	c.hci = env.Dependency(hci.ModuleDescriptor).(*hci.Layer)

	c.hci.RegisterEventHandler(hci.EventNumberOfCompletedPackets, env.Queue(), c.onCompletedPackets)

	c.interrogate()
}

func (c *Controller) Stop() {
	c.hci.UnregisterEventHandler(hci.EventNumberOfCompletedPackets)
}

// interrogate runs the fixed startup sequence. It blocks until every
// reply has arrived; module start is single-threaded by contract, so
// nothing else observes the capabilities half-built.
func (c *Controller) interrogate() {
	c.command(hci.Reset{})
	c.command(hci.SetEventMask{EventMask: eventMask})
	c.command(hci.LESetEventMask{LEEventMask: leEventMask})
	c.command(hci.WriteSimplePairingMode{SimplePairingMode: 1})
	c.command(hci.WriteLEHostSupported{LESupportedHost: 1})

	var addr hci.ReadBDAddrRP
	c.commandInto(hci.ReadBDAddr{}, &addr)
	c.caps.BDAddr = addr.BDAddr

	var bufs hci.ReadBufferSizeRP
	c.commandInto(hci.ReadBufferSize{}, &bufs)
	c.caps.AclBufferCount = bufs.TotalNumACLDataPackets
	c.caps.AclMTU = bufs.ACLDataPacketLength

	var lebufs hci.LEReadBufferSizeRP
	c.commandInto(hci.LEReadBufferSize{}, &lebufs)
	c.caps.LEBufferCount = uint16(lebufs.TotalNumLEACLDataPackets)
	c.caps.LEMTU = lebufs.LEACLDataPacketLength
	if c.caps.LEBufferCount == 0 {
		// Controllers without dedicated LE buffers share the classic
		// pool.
		c.caps.LEBufferCount = c.caps.AclBufferCount
		c.caps.LEMTU = c.caps.AclMTU
	}

	var cmds hci.ReadLocalSupportedCommandsRP
	c.commandInto(hci.ReadLocalSupportedCommands{}, &cmds)
	c.caps.SupportedCommands = cmds.SupportedCommands

	var page0 hci.ReadLocalExtendedFeaturesRP
	c.commandInto(hci.ReadLocalExtendedFeatures{PageNumber: 0}, &page0)
	c.caps.ExtendedFeatures = append(c.caps.ExtendedFeatures, page0.Features)
	for p := uint8(1); p <= page0.MaximumPage; p++ {
		var page hci.ReadLocalExtendedFeaturesRP
		c.commandInto(hci.ReadLocalExtendedFeatures{PageNumber: p}, &page)
		c.caps.ExtendedFeatures = append(c.caps.ExtendedFeatures, page.Features)
	}

	var lef hci.LEReadLocalSupportedFeaturesRP
	c.commandInto(hci.LEReadLocalSupportedFeatures{}, &lef)
	c.caps.LEFeatures = lef.LEFeatures

	if c.IsCommandSupported(hci.OpLEReadMaximumAdvertisingDataLength) {
		var adv hci.LEReadMaximumAdvertisingDataLengthRP
		c.commandInto(hci.LEReadMaximumAdvertisingDataLength{}, &adv)
		c.caps.MaxAdvertisingDataLength = adv.MaximumAdvertisingDataLength
	} else {
		// Legacy advertising payload limit.
		c.caps.MaxAdvertisingDataLength = 31
	}

	log.WithFields(log.Fields{
		"bdaddr": c.caps.BDAddr.String(),
		"aclNum": c.caps.AclBufferCount,
		"aclMTU": c.caps.AclMTU,
		"leNum":  c.caps.LEBufferCount,
		"leMTU":  c.caps.LEMTU,
	}).Info("controller: interrogation complete")
}

// command issues cmd and waits for its Command Complete, checking only
// the status byte.
func (c *Controller) command(cmd hci.Command) []byte {
	ret, err := c.exchange(cmd)
	if err != nil {
		fatalf("controller: %s failed: %v", cmd.Opcode(), err)
	}
	if len(ret) > 0 && ret[0] != 0x00 {
		fatalf("controller: %s returned status 0x%02X", cmd.Opcode(), ret[0])
	}
	return ret
}

type unmarshaler interface {
	Unmarshal(b []byte) error
}

func (c *Controller) commandInto(cmd hci.Command, rp unmarshaler) {
	ret := c.command(cmd)
	if err := rp.Unmarshal(ret); err != nil {
		fatalf("controller: %s: %v", cmd.Opcode(), err)
	}
}

func (c *Controller) exchange(cmd hci.Command) ([]byte, error) {
	type result struct {
		ret []byte
		err error
	}
	ch := make(chan result, 1)
	c.hci.EnqueueCommand(cmd, c.env.Queue(), func(v hci.CommandCompleteView, err error) {
		if err != nil {
			ch <- result{err: err}
			return
		}
		ch <- result{ret: v.ReturnParameters}
	})
	r := <-ch
	return r.ret, r.err
}

// Capability accessors. All pure reads after Start.

func (c *Controller) BDAddr() hci.Address              { return c.caps.BDAddr }
func (c *Controller) AclBufferCount() uint16           { return c.caps.AclBufferCount }
func (c *Controller) AclMTU() uint16                   { return c.caps.AclMTU }
func (c *Controller) LEBufferCount() uint16            { return c.caps.LEBufferCount }
func (c *Controller) LEMTU() uint16                    { return c.caps.LEMTU }
func (c *Controller) LEFeatures() uint64               { return c.caps.LEFeatures }
func (c *Controller) MaxAdvertisingDataLength() uint16 { return c.caps.MaxAdvertisingDataLength }
func (c *Controller) Capabilities() Capabilities       { return c.caps }

// ExtendedFeatures returns the feature block for page, or zeroes when
// the controller reports fewer pages.
func (c *Controller) ExtendedFeatures(page int) [8]byte {
	if page < 0 || page >= len(c.caps.ExtendedFeatures) {
		return [8]byte{}
	}
	return c.caps.ExtendedFeatures[page]
}

// commandBit locates an opcode in the supported-commands bitmap
// (Core Specification Vol 4 Part E §6.27).
var commandBit = map[hci.Opcode]struct{ octet, bit int }{
	hci.OpInquiry:                            {0, 0},
	hci.OpInquiryCancel:                      {0, 1},
	hci.OpCreateConnection:                   {0, 4},
	hci.OpDisconnect:                         {0, 5},
	hci.OpCreateConnectionCancel:             {0, 7},
	hci.OpAcceptConnectionRequest:            {1, 0},
	hci.OpRejectConnectionRequest:            {1, 1},
	hci.OpLinkKeyReply:                       {1, 2},
	hci.OpLinkKeyNegativeReply:               {1, 3},
	hci.OpPinCodeReply:                       {1, 4},
	hci.OpPinCodeNegativeReply:               {1, 5},
	hci.OpAuthenticationRequested:            {1, 7},
	hci.OpSetEventMask:                       {5, 6},
	hci.OpReset:                              {5, 7},
	hci.OpReadBufferSize:                     {14, 7},
	hci.OpReadBDAddr:                         {15, 1},
	hci.OpLESetEventMask:                     {25, 0},
	hci.OpLEReadBufferSize:                   {25, 1},
	hci.OpLEReadLocalSupportedFeatures:       {25, 2},
	hci.OpLESetRandomAddress:                 {25, 4},
	hci.OpLESetAdvertisingParameters:         {25, 5},
	hci.OpLESetAdvertisingData:               {25, 7},
	hci.OpLESetScanResponseData:              {26, 0},
	hci.OpLESetAdvertiseEnable:               {26, 1},
	hci.OpLESetScanParameters:                {26, 2},
	hci.OpLESetScanEnable:                    {26, 3},
	hci.OpLECreateConnection:                 {26, 4},
	hci.OpLECreateConnectionCancel:           {26, 5},
	hci.OpLEEncrypt:                          {27, 6},
	hci.OpLERand:                             {27, 7},
	hci.OpLEStartEncryption:                  {28, 0},
	hci.OpLELongTermKeyReply:                 {28, 1},
	hci.OpLELongTermKeyNegativeReply:         {28, 2},
	hci.OpLEReadMaximumAdvertisingDataLength: {36, 1},
}

// IsCommandSupported consults the supported-commands bitmap. Opcodes
// this stack has no bitmap entry for report unsupported.
func (c *Controller) IsCommandSupported(op hci.Opcode) bool {
	pos, ok := commandBit[op]
	if !ok {
		return false
	}
	return c.caps.SupportedCommands[pos.octet]&(1<<uint(pos.bit)) != 0
}

// RegisterCompletedAclPacketsCallback routes Number Of Completed
// Packets entries to fn on tq, one call per (handle, credits) pair.
func (c *Controller) RegisterCompletedAclPacketsCallback(fn func(handle, credits uint16), tq *bthost.TaskQueue) {
	c.env.Queue().Post(func() {
		if c.completed != nil {
			fatalf("controller: completed-packets callback already registered")
			return
		}
		c.completed = &completedCallback{fn: fn, tq: tq}
	})
}

func (c *Controller) onCompletedPackets(ev hci.EventView) {
	var v hci.NumberOfCompletedPacketsView
	if err := v.Unmarshal(ev.Params); err != nil {
		log.WithError(err).Warn("controller: malformed Number Of Completed Packets")
		return
	}
	cb := c.completed
	if cb == nil {
		log.Warn("controller: completed packets with no consumer, dropped")
		return
	}
	for _, p := range v.Packets {
		p := p
		cb.tq.Post(func() { cb.fn(p.ConnectionHandle, p.NumCompleted) })
	}
}

// String renders a one-line summary of the capability record.
func (c *Controller) String() string {
	return fmt.Sprintf("controller %s acl %d*%d le %d*%d",
		c.caps.BDAddr, c.caps.AclBufferCount, c.caps.AclMTU,
		c.caps.LEBufferCount, c.caps.LEMTU)
}
