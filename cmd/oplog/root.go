package oplog

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tkv-io/tKV/cmd/util"
	"github.com/tkv-io/tKV/rpc/client"
)

var (
	rpcClient client.IStorageClient

	// OplogCommands represents the oplog command group
	OplogCommands = &cobra.Command{
		Use:               "oplog",
		Short:             "Apply oplog entry batches to a server",
		PersistentPreRunE: setupOplogClient,
	}

	applyCmd = &cobra.Command{
		Use:   "apply [file]",
		Short: "Applies a batch of oplog entries from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			applied, results, err := rpcClient.ApplyOps(
				viper.GetString("db"),
				ops,
				viper.GetString("mode"),
				util.GetTerm(),
			)
			if err != nil {
				return err
			}
			fmt.Printf("applied=%d, results=%v\n", applied, results)
			return nil
		},
	}

	txnCmd = &cobra.Command{
		Use:   "txn [file]",
		Short: "Applies a batch of oplog entries from a JSON file as one transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ops, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			applied, results, err := rpcClient.DoTxn(
				viper.GetString("db"),
				ops,
				util.GetTerm(),
			)
			if err != nil {
				return err
			}
			fmt.Printf("applied=%d, results=%v\n", applied, results)
			return nil
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the oplog command
	util.SetupRPCClientFlags(OplogCommands)

	// Add flags
	OplogCommands.PersistentFlags().String("db", "admin", util.WrapString("Database the batch is applied against"))
	applyCmd.Flags().String("mode", "atomic", util.WrapString("Apply mode (atomic, nonatomic)"))

	// Add subcommands
	OplogCommands.AddCommand(applyCmd)
	OplogCommands.AddCommand(txnCmd)
	OplogCommands.AddCommand(perfTestCmd)
}

// setupOplogClient initializes the RPC client
func setupOplogClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get client configuration components
	config := util.GetClientConfig()

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	// Create the client
	rpcClient, err = client.NewRPCClient(*config, t, s)
	return err
}
