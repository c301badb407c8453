package store

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tkv-io/tKV/cmd/util"
)

var (
	insertCmd = &cobra.Command{
		Use:   "insert [namespace] [document]",
		Short: "Inserts a document into a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns := args[0]
			doc := args[1]
			ts, err := rpcClient.Insert(ns, []byte(doc))
			if err != nil {
				return err
			}
			fmt.Printf("inserted at ts=%d\n", ts)
			return nil
		},
	}
	upsertCmd = &cobra.Command{
		Use:   "upsert [namespace] [document]",
		Short: "Inserts or replaces a document in a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns := args[0]
			doc := args[1]
			ts, err := rpcClient.Upsert(ns, []byte(doc))
			if err != nil {
				return err
			}
			fmt.Printf("upserted at ts=%d\n", ts)
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [namespace] [id]",
		Short: "Reads a document by id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns := args[0]
			id := args[1]
			doc, ok, err := rpcClient.Find(ns, encodeID(id), viper.GetUint64("ts"))
			if err != nil {
				return err
			}
			fmt.Printf("id=%s, found=%v, doc=%s\n", id, ok, doc)
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [namespace] [id]",
		Short: "Deletes a document by id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns := args[0]
			id := args[1]
			ts, err := rpcClient.Delete(ns, encodeID(id))
			if err != nil {
				return err
			}
			fmt.Printf("deleted at ts=%d\n", ts)
			return nil
		},
	}
	listCmd = &cobra.Command{
		Use:   "list [namespace]",
		Short: "Lists all documents of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns := args[0]
			docs, err := rpcClient.FindAll(ns, viper.GetUint64("ts"))
			if err != nil {
				return err
			}
			for _, doc := range docs {
				fmt.Println(string(doc))
			}
			return nil
		},
	}
	countCmd = &cobra.Command{
		Use:   "count [namespace]",
		Short: "Counts the documents of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns := args[0]
			count, err := rpcClient.Count(ns, viper.GetUint64("ts"))
			if err != nil {
				return err
			}
			fmt.Printf("count=%d\n", count)
			return nil
		},
	}
	createCmd = &cobra.Command{
		Use:   "create [namespace]",
		Short: "Creates a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns := args[0]
			collUUID, err := rpcClient.CreateCollection(ns, viper.GetString("uuid"))
			if err != nil {
				return err
			}
			fmt.Printf("created with uuid=%s\n", collUUID)
			return nil
		},
	}
	dropCmd = &cobra.Command{
		Use:   "drop [namespace]",
		Short: "Drops a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns := args[0]
			ts, term, err := rpcClient.DropCollection(ns, util.GetTerm())
			if err != nil {
				return err
			}
			fmt.Printf("dropped at ts=%d, t=%d\n", ts, term)
			return nil
		},
	}
	dropDBCmd = &cobra.Command{
		Use:   "dropdb [database]",
		Short: "Drops all collections of a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dbName := args[0]
			if err := rpcClient.DropDatabase(dbName, util.GetTerm()); err != nil {
				return err
			}
			fmt.Println("dropped database")
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Shows storage engine statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := rpcClient.EngineInfo()
			if err != nil {
				return err
			}
			fmt.Println(string(info))
			return nil
		},
	}
	identsCmd = &cobra.Command{
		Use:   "idents",
		Short: "Lists the namespaces visible at a timestamp",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := rpcClient.ListIdents(viper.GetUint64("ts"))
			if err != nil {
				return err
			}
			fmt.Println(strings.Join(names, "\n"))
			return nil
		},
	}
)

func init() {
	createCmd.Flags().String("uuid", "", util.WrapString("UUID to assign to the collection (empty = server assigned)"))
}
