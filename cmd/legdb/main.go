package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/legdb/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "legdb",
	Short: "legdb - an embedded graph database",
	Long: `legdb is an embedded graph database layered over a transactional,
memory-mapped key-value store. It manages nodes and edges, supports
user-declared secondary indexes, and exposes a traversal pipeline that
compiles into a plan over the underlying store.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"legdb version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("db", "./legdb.db", "Path to the database file")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(ensureIndexCmd)
	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(vacuumCmd)
	rootCmd.AddCommand(serveMetricsCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func dbPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("db")
	return path
}
