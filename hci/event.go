package hci

import (
	"errors"
	"fmt"
)

// EventCode identifies an HCI event.
type EventCode uint8

const (
	EventInquiryComplete          EventCode = 0x01
	EventInquiryResult            EventCode = 0x02
	EventConnectionComplete       EventCode = 0x03
	EventConnectionRequest        EventCode = 0x04
	EventDisconnectionComplete    EventCode = 0x05
	EventAuthenticationComplete   EventCode = 0x06
	EventRemoteNameReqComplete    EventCode = 0x07
	EventEncryptionChange         EventCode = 0x08
	EventReadRemoteFeatures       EventCode = 0x0B
	EventCommandComplete          EventCode = 0x0E
	EventCommandStatus            EventCode = 0x0F
	EventHardwareError            EventCode = 0x10
	EventRoleChange               EventCode = 0x12
	EventNumberOfCompletedPackets EventCode = 0x13
	EventModeChange               EventCode = 0x14
	EventPinCodeRequest           EventCode = 0x16
	EventLinkKeyRequest           EventCode = 0x17
	EventLinkKeyNotification      EventCode = 0x18
	EventDataBufferOverflow       EventCode = 0x1A
	EventIOCapabilityRequest      EventCode = 0x31
	EventIOCapabilityResponse     EventCode = 0x32
	EventUserConfirmationRequest  EventCode = 0x33
	EventUserPasskeyRequest       EventCode = 0x34
	EventSimplePairingComplete    EventCode = 0x36
	EventLEMeta                   EventCode = 0x3E
)

var eventName = map[EventCode]string{
	EventInquiryComplete:          "Inquiry Complete",
	EventInquiryResult:            "Inquiry Result",
	EventConnectionComplete:       "Connection Complete",
	EventConnectionRequest:        "Connection Request",
	EventDisconnectionComplete:    "Disconnection Complete",
	EventAuthenticationComplete:   "Authentication Complete",
	EventRemoteNameReqComplete:    "Remote Name Request Complete",
	EventEncryptionChange:         "Encryption Change",
	EventReadRemoteFeatures:       "Read Remote Supported Features Complete",
	EventCommandComplete:          "Command Complete",
	EventCommandStatus:            "Command Status",
	EventHardwareError:            "Hardware Error",
	EventRoleChange:               "Role Change",
	EventNumberOfCompletedPackets: "Number Of Completed Packets",
	EventModeChange:               "Mode Change",
	EventPinCodeRequest:           "PIN Code Request",
	EventLinkKeyRequest:           "Link Key Request",
	EventLinkKeyNotification:      "Link Key Notification",
	EventDataBufferOverflow:       "Data Buffer Overflow",
	EventIOCapabilityRequest:      "IO Capability Request",
	EventIOCapabilityResponse:     "IO Capability Response",
	EventUserConfirmationRequest:  "User Confirmation Request",
	EventUserPasskeyRequest:       "User Passkey Request",
	EventSimplePairingComplete:    "Simple Pairing Complete",
	EventLEMeta:                   "LE Meta",
}

func (e EventCode) String() string {
	if s, ok := eventName[e]; ok {
		return s
	}
	return fmt.Sprintf("Unknown (0x%02X)", uint8(e))
}

// SubeventCode identifies an LE meta subevent.
type SubeventCode uint8

const (
	SubeventLEConnectionComplete       SubeventCode = 0x01
	SubeventLEAdvertisingReport        SubeventCode = 0x02
	SubeventLEConnectionUpdateComplete SubeventCode = 0x03
	SubeventLEReadRemoteFeatures       SubeventCode = 0x04
	SubeventLELongTermKeyRequest       SubeventCode = 0x05
)

var subeventName = map[SubeventCode]string{
	SubeventLEConnectionComplete:       "LE Connection Complete",
	SubeventLEAdvertisingReport:        "LE Advertising Report",
	SubeventLEConnectionUpdateComplete: "LE Connection Update Complete",
	SubeventLEReadRemoteFeatures:       "LE Read Remote Used Features Complete",
	SubeventLELongTermKeyRequest:       "LE Long Term Key Request",
}

func (e SubeventCode) String() string {
	if s, ok := subeventName[e]; ok {
		return s
	}
	return fmt.Sprintf("Unknown (0x%02X)", uint8(e))
}

var errMalformedEvent = errors.New("hci: malformed event")

// An EventView is one received event: its code and raw parameters. For
// LE meta events, Params still begins with the subevent code so the
// subevent unmarshalers see the bytes they expect.
type EventView struct {
	Code   EventCode
	Params []byte
}

// splitEvent validates the 2-byte event header against the packet
// length and returns the view.
func splitEvent(b []byte) (EventView, error) {
	if len(b) < 2 || len(b) != 2+int(b[1]) {
		return EventView{}, errMalformedEvent
	}
	return EventView{Code: EventCode(b[0]), Params: b[2:]}, nil
}

// Event Parameters

type CommandCompleteView struct {
	NumHCICommandPackets uint8
	CommandOpcode        Opcode
	ReturnParameters     []byte
}

func (ep *CommandCompleteView) Unmarshal(b []byte) error {
	if len(b) < 3 {
		return errMalformedEvent
	}
	ep.NumHCICommandPackets = o.Uint8(b[0:])
	ep.CommandOpcode = Opcode(o.Uint16(b[1:]))
	ep.ReturnParameters = b[3:]
	return nil
}

type CommandStatusView struct {
	Status               uint8
	NumHCICommandPackets uint8
	CommandOpcode        Opcode
}

func (ep *CommandStatusView) Unmarshal(b []byte) error {
	if len(b) < 4 {
		return errMalformedEvent
	}
	ep.Status = o.Uint8(b[0:])
	ep.NumHCICommandPackets = o.Uint8(b[1:])
	ep.CommandOpcode = Opcode(o.Uint16(b[2:]))
	return nil
}

type ConnectionCompleteView struct {
	Status            uint8
	ConnectionHandle  uint16
	BDAddr            Address
	LinkType          uint8
	EncryptionEnabled uint8
}

func (ep *ConnectionCompleteView) Unmarshal(b []byte) error {
	if len(b) < 11 {
		return errMalformedEvent
	}
	ep.Status = o.Uint8(b[0:])
	ep.ConnectionHandle = o.Uint16(b[1:]) & 0xfff
	ep.BDAddr = o.Addr(b[3:])
	ep.LinkType = o.Uint8(b[9:])
	ep.EncryptionEnabled = o.Uint8(b[10:])
	return nil
}

type ConnectionRequestView struct {
	BDAddr        Address
	ClassOfDevice [3]byte
	LinkType      uint8
}

func (ep *ConnectionRequestView) Unmarshal(b []byte) error {
	if len(b) < 10 {
		return errMalformedEvent
	}
	ep.BDAddr = o.Addr(b[0:])
	copy(ep.ClassOfDevice[:], b[6:9])
	ep.LinkType = o.Uint8(b[9:])
	return nil
}

type DisconnectionCompleteView struct {
	Status           uint8
	ConnectionHandle uint16
	Reason           uint8
}

func (ep *DisconnectionCompleteView) Unmarshal(b []byte) error {
	if len(b) < 4 {
		return errMalformedEvent
	}
	ep.Status = o.Uint8(b[0:])
	ep.ConnectionHandle = o.Uint16(b[1:]) & 0xfff
	ep.Reason = o.Uint8(b[3:])
	return nil
}

type CompletedPackets struct {
	ConnectionHandle uint16
	NumCompleted     uint16
}

type NumberOfCompletedPacketsView struct {
	Packets []CompletedPackets
}

func (ep *NumberOfCompletedPacketsView) Unmarshal(b []byte) error {
	if len(b) < 1 {
		return errMalformedEvent
	}
	n := int(b[0])
	if len(b) < 1+4*n {
		return errMalformedEvent
	}
	ep.Packets = make([]CompletedPackets, n)
	for i := 0; i < n; i++ {
		ep.Packets[i].ConnectionHandle = o.Uint16(b[1+4*i:]) & 0xfff
		ep.Packets[i].NumCompleted = o.Uint16(b[3+4*i:])
	}
	return nil
}

type LEConnectionCompleteView struct {
	SubeventCode        uint8
	Status              uint8
	ConnectionHandle    uint16
	Role                uint8
	PeerAddressType     uint8
	PeerAddress         Address
	ConnInterval        uint16
	ConnLatency         uint16
	SupervisionTimeout  uint16
	MasterClockAccuracy uint8
}

func (ep *LEConnectionCompleteView) Unmarshal(b []byte) error {
	if len(b) < 19 {
		return errMalformedEvent
	}
	ep.SubeventCode = o.Uint8(b[0:])
	ep.Status = o.Uint8(b[1:])
	ep.ConnectionHandle = o.Uint16(b[2:]) & 0xfff
	ep.Role = o.Uint8(b[4:])
	ep.PeerAddressType = o.Uint8(b[5:])
	ep.PeerAddress = o.Addr(b[6:])
	ep.ConnInterval = o.Uint16(b[12:])
	ep.ConnLatency = o.Uint16(b[14:])
	ep.SupervisionTimeout = o.Uint16(b[16:])
	ep.MasterClockAccuracy = o.Uint8(b[18:])
	return nil
}
