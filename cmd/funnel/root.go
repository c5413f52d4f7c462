package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "funnel",
	Short: "Funnel is a booking conversion orchestration engine",
	Long: `Funnel drives bookings through their lifecycle, detects customer
drop-off from behavioral signals and decides which reassurance message
or remediation action to surface.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
