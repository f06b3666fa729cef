// Package hal defines the transport boundary between the stack and the
// Bluetooth controller, and ships an H4 (UART framing) driver over any
// io.ReadWriteCloser.
package hal

import (
	log "github.com/sirupsen/logrus"

	"github.com/XC-/bthost"
)

// Hal is the duplex byte pipe the HCI layer drives. Payloads exclude
// the H4 packet indicator; framing is the driver's concern.
type Hal interface {
	SendCommand(b []byte) error
	SendACL(b []byte) error

	// RegisterReceiveHandlers installs the inbound demux. event receives
	// complete event packets (header included); aclData complete ACL
	// packets (header included). Must be called before traffic flows.
	RegisterReceiveHandlers(event func([]byte), aclData func([]byte))

	// RegisterClosedCallback installs fn, invoked once when the
	// transport is lost or closed.
	RegisterClosedCallback(fn func(error))
}

// ModuleDescriptor identifies the HAL in the module registry. There is
// no default constructor: the transport is external, so callers provide
// a configured instance (NewH4, or a fake in tests) via
// Registry.Provide.
var ModuleDescriptor = &bthost.Descriptor{
	Name: "hal",
	New: func() bthost.Module {
		log.Fatal("hal: no transport provided; use Registry.Provide with hal.NewH4")
		return nil
	},
}
