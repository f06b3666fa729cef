package hci

import "fmt"

// Address is a Bluetooth device address (BD_ADDR), most significant
// byte first. The wire order is reversed by the marshal helpers.
type Address [6]byte

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}
