package hci

import (
	"encoding/binary"
	"errors"
)

type order struct{ binary.ByteOrder }

// HCI is little-endian on the wire; addresses are transmitted
// least-significant byte first.
var o = order{binary.LittleEndian}

func (o order) PutUint8(b []byte, v uint8) { b[0] = v }
func (o order) PutAddr(b []byte, a Address) {
	b[0], b[1], b[2], b[3], b[4], b[5] = a[5], a[4], a[3], a[2], a[1], a[0]
}
func (o order) Uint8(b []byte) uint8 { return b[0] }
func (o order) Int8(b []byte) int8   { return int8(b[0]) }
func (o order) Addr(b []byte) Address {
	return Address{b[5], b[4], b[3], b[2], b[1], b[0]}
}

// A Command serializes one HCI command's parameters. Marshal writes
// exactly Len bytes into its argument.
type Command interface {
	Opcode() Opcode
	Len() int
	Marshal(b []byte)
}

// MarshalCommand builds the full command packet: opcode, parameter
// length, parameters. The H4 packet indicator is the HAL's concern.
func MarshalCommand(c Command) []byte {
	b := make([]byte, 3+c.Len())
	op := c.Opcode()
	b[0], b[1] = byte(op), byte(op>>8)
	b[2] = byte(c.Len())
	c.Marshal(b[3:])
	return b
}

var errShortReturn = errors.New("hci: return parameters too short")

// Link Control Commands

// Create Connection (0x0005)
type CreateConnection struct {
	BDAddr                 Address
	PacketType             uint16
	PageScanRepetitionMode uint8
	ClockOffset            uint16
	AllowRoleSwitch        uint8
}

func (c CreateConnection) Opcode() Opcode { return OpCreateConnection }
func (c CreateConnection) Len() int       { return 13 }
func (c CreateConnection) Marshal(b []byte) {
	o.PutAddr(b[0:], c.BDAddr)
	o.PutUint16(b[6:], c.PacketType)
	o.PutUint8(b[8:], c.PageScanRepetitionMode)
	o.PutUint8(b[9:], 0) // reserved
	o.PutUint16(b[10:], c.ClockOffset)
	o.PutUint8(b[12:], c.AllowRoleSwitch)
}

// Disconnect (0x0006)
type Disconnect struct {
	ConnectionHandle uint16
	Reason           uint8
}

func (c Disconnect) Opcode() Opcode { return OpDisconnect }
func (c Disconnect) Len() int       { return 3 }
func (c Disconnect) Marshal(b []byte) {
	o.PutUint16(b[0:], c.ConnectionHandle)
	b[2] = c.Reason
}

// Create Connection Cancel (0x0008)
type CreateConnectionCancel struct {
	BDAddr Address
}

func (c CreateConnectionCancel) Opcode() Opcode   { return OpCreateConnectionCancel }
func (c CreateConnectionCancel) Len() int         { return 6 }
func (c CreateConnectionCancel) Marshal(b []byte) { o.PutAddr(b, c.BDAddr) }

type CreateConnectionCancelRP struct {
	Status uint8
	BDAddr Address
}

func (rp *CreateConnectionCancelRP) Unmarshal(b []byte) error {
	if len(b) < 7 {
		return errShortReturn
	}
	rp.Status = o.Uint8(b[0:])
	rp.BDAddr = o.Addr(b[1:])
	return nil
}

// Accept Connection Request (0x0009)
type AcceptConnectionRequest struct {
	BDAddr Address
	Role   uint8
}

func (c AcceptConnectionRequest) Opcode() Opcode { return OpAcceptConnectionRequest }
func (c AcceptConnectionRequest) Len() int       { return 7 }
func (c AcceptConnectionRequest) Marshal(b []byte) {
	o.PutAddr(b[0:], c.BDAddr)
	o.PutUint8(b[6:], c.Role)
}

// Reject Connection Request (0x000A)
type RejectConnectionRequest struct {
	BDAddr Address
	Reason uint8
}

func (c RejectConnectionRequest) Opcode() Opcode { return OpRejectConnectionRequest }
func (c RejectConnectionRequest) Len() int       { return 7 }
func (c RejectConnectionRequest) Marshal(b []byte) {
	o.PutAddr(b[0:], c.BDAddr)
	o.PutUint8(b[6:], c.Reason)
}

// Host Control Commands

// Set Event Mask (0x0001)
type SetEventMask struct{ EventMask uint64 }

func (c SetEventMask) Opcode() Opcode   { return OpSetEventMask }
func (c SetEventMask) Len() int         { return 8 }
func (c SetEventMask) Marshal(b []byte) { o.PutUint64(b, c.EventMask) }

// Reset (0x0003)
type Reset struct{}

func (c Reset) Opcode() Opcode   { return OpReset }
func (c Reset) Len() int         { return 0 }
func (c Reset) Marshal(b []byte) {}

// Write Simple Pairing Mode (0x0056)
type WriteSimplePairingMode struct{ SimplePairingMode uint8 }

func (c WriteSimplePairingMode) Opcode() Opcode   { return OpWriteSimplePairingMode }
func (c WriteSimplePairingMode) Len() int         { return 1 }
func (c WriteSimplePairingMode) Marshal(b []byte) { b[0] = c.SimplePairingMode }

// Write LE Host Supported (0x006D)
type WriteLEHostSupported struct {
	LESupportedHost    uint8
	SimultaneousLEHost uint8
}

func (c WriteLEHostSupported) Opcode() Opcode { return OpWriteLEHostSupported }
func (c WriteLEHostSupported) Len() int       { return 2 }
func (c WriteLEHostSupported) Marshal(b []byte) {
	b[0], b[1] = c.LESupportedHost, c.SimultaneousLEHost
}

// Informational Parameters

// Read Local Supported Commands (0x0002)
type ReadLocalSupportedCommands struct{}

func (c ReadLocalSupportedCommands) Opcode() Opcode   { return OpReadLocalSupportedCommands }
func (c ReadLocalSupportedCommands) Len() int         { return 0 }
func (c ReadLocalSupportedCommands) Marshal(b []byte) {}

type ReadLocalSupportedCommandsRP struct {
	Status            uint8
	SupportedCommands [64]byte
}

func (rp *ReadLocalSupportedCommandsRP) Unmarshal(b []byte) error {
	if len(b) < 65 {
		return errShortReturn
	}
	rp.Status = o.Uint8(b[0:])
	copy(rp.SupportedCommands[:], b[1:65])
	return nil
}

// Read Local Extended Features (0x0004)
type ReadLocalExtendedFeatures struct{ PageNumber uint8 }

func (c ReadLocalExtendedFeatures) Opcode() Opcode   { return OpReadLocalExtendedFeatures }
func (c ReadLocalExtendedFeatures) Len() int         { return 1 }
func (c ReadLocalExtendedFeatures) Marshal(b []byte) { b[0] = c.PageNumber }

type ReadLocalExtendedFeaturesRP struct {
	Status      uint8
	PageNumber  uint8
	MaximumPage uint8
	Features    [8]byte
}

func (rp *ReadLocalExtendedFeaturesRP) Unmarshal(b []byte) error {
	if len(b) < 11 {
		return errShortReturn
	}
	rp.Status = o.Uint8(b[0:])
	rp.PageNumber = o.Uint8(b[1:])
	rp.MaximumPage = o.Uint8(b[2:])
	copy(rp.Features[:], b[3:11])
	return nil
}

// Read Buffer Size (0x0005)
type ReadBufferSize struct{}

func (c ReadBufferSize) Opcode() Opcode   { return OpReadBufferSize }
func (c ReadBufferSize) Len() int         { return 0 }
func (c ReadBufferSize) Marshal(b []byte) {}

type ReadBufferSizeRP struct {
	Status                 uint8
	ACLDataPacketLength    uint16
	SCODataPacketLength    uint8
	TotalNumACLDataPackets uint16
	TotalNumSCODataPackets uint16
}

func (rp *ReadBufferSizeRP) Unmarshal(b []byte) error {
	if len(b) < 8 {
		return errShortReturn
	}
	rp.Status = o.Uint8(b[0:])
	rp.ACLDataPacketLength = o.Uint16(b[1:])
	rp.SCODataPacketLength = o.Uint8(b[3:])
	rp.TotalNumACLDataPackets = o.Uint16(b[4:])
	rp.TotalNumSCODataPackets = o.Uint16(b[6:])
	return nil
}

// Read BD_ADDR (0x0009)
type ReadBDAddr struct{}

func (c ReadBDAddr) Opcode() Opcode   { return OpReadBDAddr }
func (c ReadBDAddr) Len() int         { return 0 }
func (c ReadBDAddr) Marshal(b []byte) {}

type ReadBDAddrRP struct {
	Status uint8
	BDAddr Address
}

func (rp *ReadBDAddrRP) Unmarshal(b []byte) error {
	if len(b) < 7 {
		return errShortReturn
	}
	rp.Status = o.Uint8(b[0:])
	rp.BDAddr = o.Addr(b[1:])
	return nil
}

// LE Controller Commands

// LE Set Event Mask (0x0001)
type LESetEventMask struct{ LEEventMask uint64 }

func (c LESetEventMask) Opcode() Opcode   { return OpLESetEventMask }
func (c LESetEventMask) Len() int         { return 8 }
func (c LESetEventMask) Marshal(b []byte) { o.PutUint64(b, c.LEEventMask) }

// LE Read Buffer Size (0x0002)
type LEReadBufferSize struct{}

func (c LEReadBufferSize) Opcode() Opcode   { return OpLEReadBufferSize }
func (c LEReadBufferSize) Len() int         { return 0 }
func (c LEReadBufferSize) Marshal(b []byte) {}

type LEReadBufferSizeRP struct {
	Status                   uint8
	LEACLDataPacketLength    uint16
	TotalNumLEACLDataPackets uint8
}

func (rp *LEReadBufferSizeRP) Unmarshal(b []byte) error {
	if len(b) < 4 {
		return errShortReturn
	}
	rp.Status = o.Uint8(b[0:])
	rp.LEACLDataPacketLength = o.Uint16(b[1:])
	rp.TotalNumLEACLDataPackets = o.Uint8(b[3:])
	return nil
}

// LE Read Local Supported Features (0x0003)
type LEReadLocalSupportedFeatures struct{}

func (c LEReadLocalSupportedFeatures) Opcode() Opcode   { return OpLEReadLocalSupportedFeatures }
func (c LEReadLocalSupportedFeatures) Len() int         { return 0 }
func (c LEReadLocalSupportedFeatures) Marshal(b []byte) {}

type LEReadLocalSupportedFeaturesRP struct {
	Status     uint8
	LEFeatures uint64
}

func (rp *LEReadLocalSupportedFeaturesRP) Unmarshal(b []byte) error {
	if len(b) < 9 {
		return errShortReturn
	}
	rp.Status = o.Uint8(b[0:])
	rp.LEFeatures = o.Uint64(b[1:])
	return nil
}

// LE Create Connection (0x000D)
type LECreateConnection struct {
	LEScanInterval        uint16
	LEScanWindow          uint16
	InitiatorFilterPolicy uint8
	PeerAddressType       uint8
	PeerAddress           Address
	OwnAddressType        uint8
	ConnIntervalMin       uint16
	ConnIntervalMax       uint16
	ConnLatency           uint16
	SupervisionTimeout    uint16
	MinimumCELength       uint16
	MaximumCELength       uint16
}

func (c LECreateConnection) Opcode() Opcode { return OpLECreateConnection }
func (c LECreateConnection) Len() int       { return 25 }
func (c LECreateConnection) Marshal(b []byte) {
	o.PutUint16(b[0:], c.LEScanInterval)
	o.PutUint16(b[2:], c.LEScanWindow)
	o.PutUint8(b[4:], c.InitiatorFilterPolicy)
	o.PutUint8(b[5:], c.PeerAddressType)
	o.PutAddr(b[6:], c.PeerAddress)
	o.PutUint8(b[12:], c.OwnAddressType)
	o.PutUint16(b[13:], c.ConnIntervalMin)
	o.PutUint16(b[15:], c.ConnIntervalMax)
	o.PutUint16(b[17:], c.ConnLatency)
	o.PutUint16(b[19:], c.SupervisionTimeout)
	o.PutUint16(b[21:], c.MinimumCELength)
	o.PutUint16(b[23:], c.MaximumCELength)
}

// LE Create Connection Cancel (0x000E)
type LECreateConnectionCancel struct{}

func (c LECreateConnectionCancel) Opcode() Opcode   { return OpLECreateConnectionCancel }
func (c LECreateConnectionCancel) Len() int         { return 0 }
func (c LECreateConnectionCancel) Marshal(b []byte) {}

// LE Read Maximum Advertising Data Length (0x003A)
type LEReadMaximumAdvertisingDataLength struct{}

func (c LEReadMaximumAdvertisingDataLength) Opcode() Opcode {
	return OpLEReadMaximumAdvertisingDataLength
}
func (c LEReadMaximumAdvertisingDataLength) Len() int         { return 0 }
func (c LEReadMaximumAdvertisingDataLength) Marshal(b []byte) {}

type LEReadMaximumAdvertisingDataLengthRP struct {
	Status                       uint8
	MaximumAdvertisingDataLength uint16
}

func (rp *LEReadMaximumAdvertisingDataLengthRP) Unmarshal(b []byte) error {
	if len(b) < 3 {
		return errShortReturn
	}
	rp.Status = o.Uint8(b[0:])
	rp.MaximumAdvertisingDataLength = o.Uint16(b[1:])
	return nil
}
