//go:build linux

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smazurov/framenode/internal/logging"
	"github.com/smazurov/framenode/pkg/linuxav/v4l2"
)

// CreateProbeCmd creates the probe command, which lists the V4L2 capture
// devices on the system.
func CreateProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "List V4L2 capture devices",
		Run: func(_ *cobra.Command, _ []string) {
			logging.Initialize(logging.Config{Level: "info", Format: "text"})
			logger := logging.GetLogger("probe")

			devices, err := v4l2.FindDevices()
			if err != nil {
				logger.Error("failed to enumerate devices", "error", err)
				os.Exit(1)
			}

			if len(devices) == 0 {
				fmt.Println("No V4L2 capture devices found.")
				return
			}

			fmt.Printf("Found %d V4L2 capture devices:\n", len(devices))
			for i, dev := range devices {
				fmt.Printf("%d. %s\n   %s\n", i+1, dev.DevicePath, dev.DeviceName)
			}
		},
	}
}
