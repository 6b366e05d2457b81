package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aclr/agg-go/config"
)

var rootCmd = &cobra.Command{
	Use:   "aggregatord",
	Short: "Ingests web feeds and Telegram chats into a searchable store.",
}

func init() {
	rootCmd.AddCommand(runCmd)
	config.SetFlagsFromConfig(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
