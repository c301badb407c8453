package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tkv-io/tKV/cmd/oplog"
	"github.com/tkv-io/tKV/cmd/serve"
	"github.com/tkv-io/tKV/cmd/store"
	"github.com/tkv-io/tKV/cmd/util"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "tkv",
		Short: "timestamp-versioned document store",
		Long: fmt.Sprintf(`tKV (v%s)

A timestamp-versioned document store written in Go. Every write carries a
logical timestamp, reads can be pinned to any retained point in history and
batches of replication operations can be applied atomically.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of tKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tKV v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(store.StoreCommands)
	RootCmd.AddCommand(oplog.OplogCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
