package main

import (
	"github.com/spf13/cobra"

	"github.com/cuemby/legdb/pkg/legdb"
)

var compressCmd = &cobra.Command{
	Use:   "compress <table>",
	Short: "Train a zstd dictionary from existing documents and enable compression",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetInt("level")
		sampleCount, _ := cmd.Flags().GetInt("samples")

		db, err := legdb.Open(legdb.Config{Path: dbPath(cmd)})
		if err != nil {
			return err
		}
		defer db.Close()

		var samples [][]byte
		rows, err := db.Find(nil, args[0], nil)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() && len(samples) < sampleCount {
			raw, err := rows.Item().Doc.MarshalBinary()
			if err != nil {
				return err
			}
			samples = append(samples, raw)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		return db.Compress(args[0], samples, level)
	},
}

func init() {
	compressCmd.Flags().Int("level", 0, "zstd compression level (0 = default)")
	compressCmd.Flags().Int("samples", 1000, "Number of documents to sample for dictionary training")
}
