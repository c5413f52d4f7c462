package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/convertly/funnel"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the engine version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(funnel.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
