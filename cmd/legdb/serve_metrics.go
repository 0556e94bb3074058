package main

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/cuemby/legdb/pkg/log"
	"github.com/cuemby/legdb/pkg/metrics"
)

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Serve Prometheus metrics over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		log.WithComponent("metrics").Info().Str("addr", addr).Msg("serving metrics")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		return http.ListenAndServe(addr, mux)
	},
}

func init() {
	serveMetricsCmd.Flags().String("addr", ":9090", "Address to serve /metrics on")
}
