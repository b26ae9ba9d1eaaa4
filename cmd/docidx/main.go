// Package main implements the docidx server binary.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath is the optional YAML config file.
	configPath string
	// version information
	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "docidx",
	Short: "Multi-tenant document indexing service",
	Long: `docidx ingests documents into per-tenant search indices and serves
scope-filtered similarity search over them.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
