package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "relay-cli",
	Short: "relay-cli is a CLI interface for inspecting the OTP relay pipeline.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&configFile, "config", "config.json5",
		"path to the relayd configuration file",
	)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
