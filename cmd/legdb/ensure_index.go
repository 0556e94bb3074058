package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/legdb/pkg/legdb"
)

var ensureIndexCmd = &cobra.Command{
	Use:   "ensure-index <table> <name> <attrs> <template>",
	Short: "Declare or rebuild a secondary index",
	Long: `attrs is a comma-separated list of attribute names the index
covers, e.g. "c" or "start_id,end_id". template is the key-rendering
template, e.g. "{c}" or "{start_id}|{end_id}".`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		duplicates, _ := cmd.Flags().GetBool("duplicates")
		force, _ := cmd.Flags().GetBool("force")

		db, err := legdb.Open(legdb.Config{Path: dbPath(cmd)})
		if err != nil {
			return err
		}
		defer db.Close()

		attrs := strings.Split(args[2], ",")
		return db.EnsureIndex(args[0], args[1], attrs, args[3], duplicates, force)
	},
}

func init() {
	ensureIndexCmd.Flags().Bool("duplicates", true, "Allow duplicate keys in this index")
	ensureIndexCmd.Flags().Bool("force", false, "Rebuild the index from existing data even if already declared")
}
