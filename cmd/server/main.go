package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ratesampler",
	Short: "Rate-limiting trace sampling service",
	Long: `Serves rate-limiting sampling decisions over HTTP.

Endpoints:
  POST /sample              - Ask for a sampling decision
  GET  /strategy            - View applied strategies
  PUT  /strategy            - Update default or per-service rates
  GET  /metrics             - View decision metrics (JSON)
  GET  /metrics/prometheus  - Prometheus scrape endpoint
  GET  /dashboard           - View dashboard (HTML)
  GET  /health              - Health check`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", getEnv("RATESAMPLER_CONFIG", ""), "path to the YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
