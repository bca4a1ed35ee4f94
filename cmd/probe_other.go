//go:build !linux

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// CreateProbeCmd creates the probe command. Device enumeration needs V4L2,
// so off Linux it only reports that.
func CreateProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "List V4L2 capture devices",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println("Device probing requires Linux with V4L2.")
		},
	}
}
