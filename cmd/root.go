package cmd

import (
	"fmt"
	"log"
	"os"

	"ReplayFM/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "replayfm",
	Short: "ReplayFM answers statistical questions about personal listening history.",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("Starting ReplayFM server...")
		server.Start()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
