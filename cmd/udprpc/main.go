// SPDX-License-Identifier: GPL-3.0-or-later

// Command udprpc sends quests to a UDP RPC server.
//
// Flags may also be set through UDPRPC_<FLAG> environment variables, with
// dashes replaced by underscores (e.g., UDPRPC_LOG_LEVEL=debug).
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is the version of the udprpc command.
const Version = "0.1.0"

var (
	rootCmd = &cobra.Command{
		Use:           "udprpc",
		Short:         "UDP RPC client",
		Long:          fmt.Sprintf("udprpc (v%s)\n\nSend quests to a UDP RPC server over a connected datagram socket.", Version),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of udprpc",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "udprpc v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.AddCommand(questCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	viper.SetEnvPrefix("udprpc")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "udprpc: %s\n", err.Error())
		os.Exit(1)
	}
}
