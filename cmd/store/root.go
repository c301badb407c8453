package store

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/tkv-io/tKV/cmd/util"
	"github.com/tkv-io/tKV/rpc/client"
)

var (
	rpcClient client.IStorageClient

	// StoreCommands represents the store command group
	StoreCommands = &cobra.Command{
		Use:               "store",
		Short:             "Perform document store operations",
		PersistentPreRunE: setupStoreClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the store command
	util.SetupRPCClientFlags(StoreCommands)

	// Add common read flag
	StoreCommands.PersistentFlags().Uint64("ts", 0, util.WrapString("Timestamp to read at (0 = latest)"))

	// Add subcommands
	StoreCommands.AddCommand(insertCmd)
	StoreCommands.AddCommand(upsertCmd)
	StoreCommands.AddCommand(getCmd)
	StoreCommands.AddCommand(delCmd)
	StoreCommands.AddCommand(listCmd)
	StoreCommands.AddCommand(countCmd)
	StoreCommands.AddCommand(createCmd)
	StoreCommands.AddCommand(dropCmd)
	StoreCommands.AddCommand(dropDBCmd)
	StoreCommands.AddCommand(identsCmd)
	StoreCommands.AddCommand(infoCmd)
}

// setupStoreClient initializes the RPC client
func setupStoreClient(cmd *cobra.Command, _ []string) error {
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

// encodeID converts a command line argument to a canonical JSON record id.
// Valid JSON is passed through unchanged, everything else is treated as a
// string id.
func encodeID(arg string) []byte {
	if json.Valid([]byte(arg)) {
		return []byte(arg)
	}
	key, _ := json.Marshal(arg)
	return key
}
