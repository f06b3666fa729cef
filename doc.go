// Package bthost implements the host side of a Bluetooth stack: the
// HCI transport and flow-control core that sits between a Bluetooth
// controller and the higher protocol layers.
//
// The root package is the module runtime. A stack is assembled from
// modules (HAL, HCI layer, controller, ACL manager), each pinned to its
// own single-threaded task queue and started in dependency order:
//
//	reg := bthost.NewRegistry()
//	reg.Provide(hal.ModuleDescriptor, hal.NewH4(rwc))
//	reg.Start(acl.ModuleDescriptor)
//	defer reg.StopAll()
//
//	mgr := reg.Get(acl.ModuleDescriptor).(*acl.Manager)
//
// Subpackages:
//
//	queue       callback-registered FIFO pairs wiring modules together
//	hal         the HCI transport boundary and an H4 framing driver
//	hci         HCI wire types and the command/event/ACL layer
//	controller  controller capability interrogation
//	acl         round-robin ACL scheduler and connection manager
//
// The stack does not parse L2CAP PDUs, does not pair, and persists
// nothing; those concerns belong to the layers above and below.
package bthost
