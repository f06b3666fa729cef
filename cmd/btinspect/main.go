// btinspect brings a stack up against an H4 device, prints the
// controller's capability record, and tears the stack back down. It is
// both a diagnostic tool and a smoke test for the module runtime.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/XC-/bthost"
	"github.com/XC-/bthost/controller"
	"github.com/XC-/bthost/hal"
	"github.com/XC-/bthost/hci"
)

var (
	device  string
	verbose bool
)

func main() {
	root := &cobra.Command{
		Use:   "btinspect",
		Short: "Dump the capabilities of a Bluetooth controller behind an H4 device",
		RunE:  run,
	}
	root.Flags().StringVarP(&device, "device", "d", "", "H4 device path (e.g. /dev/ttyUSB0)")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	root.MarkFlagRequired("device")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if verbose {
		log.SetLevel(log.DebugLevel)
	}

	f, err := os.OpenFile(device, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", device, err)
	}

	reg := bthost.NewRegistry()
	reg.Provide(hal.ModuleDescriptor, hal.NewH4(f))
	reg.Start(controller.ModuleDescriptor)
	defer reg.StopAll()

	ctrl := reg.Get(controller.ModuleDescriptor).(*controller.Controller)

	color.New(color.Bold).Printf("controller %s\n\n", ctrl.BDAddr())

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Capability", "Value"})
	table.Append([]string{"BD_ADDR", ctrl.BDAddr().String()})
	table.Append([]string{"ACL buffers", fmt.Sprintf("%d", ctrl.AclBufferCount())})
	table.Append([]string{"ACL MTU", fmt.Sprintf("%d", ctrl.AclMTU())})
	table.Append([]string{"LE buffers", fmt.Sprintf("%d", ctrl.LEBufferCount())})
	table.Append([]string{"LE MTU", fmt.Sprintf("%d", ctrl.LEMTU())})
	table.Append([]string{"LE features", fmt.Sprintf("0x%016X", ctrl.LEFeatures())})
	table.Append([]string{"Max adv data", fmt.Sprintf("%d", ctrl.MaxAdvertisingDataLength())})
	table.Append([]string{"Extended features p0", fmt.Sprintf("% X", ctrl.ExtendedFeatures(0))})
	table.Render()

	for _, op := range []hci.Opcode{
		hci.OpCreateConnection,
		hci.OpLECreateConnection,
		hci.OpLEReadMaximumAdvertisingDataLength,
	} {
		mark := color.RedString("no")
		if ctrl.IsCommandSupported(op) {
			mark = color.GreenString("yes")
		}
		fmt.Printf("%-42s %s\n", op, mark)
	}
	return nil
}
