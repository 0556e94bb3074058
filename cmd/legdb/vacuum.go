package main

import (
	"github.com/spf13/cobra"

	"github.com/cuemby/legdb/pkg/legdb"
)

var vacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Reclaim free pages by dumping and reloading the database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := legdb.Open(legdb.Config{Path: dbPath(cmd)})
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Vacuum()
	},
}
