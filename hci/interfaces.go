package hci

import "github.com/XC-/bthost"

// A CommandInterface is an opcode-filtered view of the layer's command
// pipeline, handed to a profile so it can only issue the commands in
// its charter. Submitting an out-of-scope opcode is a contract
// violation.
type CommandInterface struct {
	name    string
	l       *Layer
	allowed map[Opcode]bool
}

func (ci *CommandInterface) check(op Opcode) {
	if !ci.allowed[op] {
		fatalf("hci: opcode %s outside the %s interface", op, ci.name)
	}
}

func (ci *CommandInterface) EnqueueCommand(cmd Command, tq *bthost.TaskQueue, fn func(CommandCompleteView, error)) {
	ci.check(cmd.Opcode())
	ci.l.EnqueueCommand(cmd, tq, fn)
}

func (ci *CommandInterface) EnqueueCommandStatus(cmd Command, tq *bthost.TaskQueue, fn func(CommandStatusView, error)) {
	ci.check(cmd.Opcode())
	ci.l.EnqueueCommandStatus(cmd, tq, fn)
}

// Security returns the classic pairing/authentication command surface.
func (l *Layer) Security() *CommandInterface {
	return &CommandInterface{name: "security", l: l, allowed: map[Opcode]bool{
		OpLinkKeyReply:                  true,
		OpLinkKeyNegativeReply:          true,
		OpPinCodeReply:                  true,
		OpPinCodeNegativeReply:          true,
		OpAuthenticationRequested:       true,
		OpSetConnectionEncryption:       true,
		OpIOCapabilityReply:             true,
		OpUserConfirmationReply:         true,
		OpUserConfirmationNegativeReply: true,
		OpUserPasskeyReply:              true,
		OpUserPasskeyNegativeReply:      true,
		OpWriteSimplePairingMode:        true,
	}}
}

// LESecurity returns the LE encryption command surface.
func (l *Layer) LESecurity() *CommandInterface {
	return &CommandInterface{name: "le-security", l: l, allowed: map[Opcode]bool{
		OpLEEncrypt:                  true,
		OpLERand:                     true,
		OpLEStartEncryption:          true,
		OpLELongTermKeyReply:         true,
		OpLELongTermKeyNegativeReply: true,
	}}
}

// AclConnection returns the connection-management command surface used
// by the ACL manager.
func (l *Layer) AclConnection() *CommandInterface {
	return &CommandInterface{name: "acl-connection", l: l, allowed: map[Opcode]bool{
		OpCreateConnection:         true,
		OpCreateConnectionCancel:   true,
		OpDisconnect:               true,
		OpAcceptConnectionRequest:  true,
		OpRejectConnectionRequest:  true,
		OpLECreateConnection:       true,
		OpLECreateConnectionCancel: true,
	}}
}

// LEAdvertising returns the advertising command surface.
func (l *Layer) LEAdvertising() *CommandInterface {
	return &CommandInterface{name: "le-advertising", l: l, allowed: map[Opcode]bool{
		OpLESetRandomAddress:                 true,
		OpLESetAdvertisingParameters:         true,
		OpLESetAdvertisingData:               true,
		OpLESetScanResponseData:              true,
		OpLESetAdvertiseEnable:               true,
		OpLEReadMaximumAdvertisingDataLength: true,
	}}
}

// LEScanning returns the scanning command surface.
func (l *Layer) LEScanning() *CommandInterface {
	return &CommandInterface{name: "le-scanning", l: l, allowed: map[Opcode]bool{
		OpLESetScanParameters: true,
		OpLESetScanEnable:     true,
	}}
}
