package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/cuemby/legdb/pkg/legdb"
)

var getCmd = &cobra.Command{
	Use:   "get <table> <oid>",
	Short: "Point-lookup a document by oid",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		oid, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid oid %q: %w", args[1], err)
		}

		db, err := legdb.Open(legdb.Config{Path: dbPath(cmd), ReadOnly: true})
		if err != nil {
			return err
		}
		defer db.Close()

		doc, found, err := db.Get(nil, args[0], oid)
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("not found")
			return nil
		}
		return printDocument(doc)
	},
}

func printDocument(doc *legdb.Document) error {
	out := map[string]interface{}{"oid": doc.OID}
	doc.Range(func(key string, v legdb.Value) bool {
		out[key] = v.CanonicalString()
		return true
	})
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
