package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pickupsports/mapcluster/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "mapcluster",
	Short: "Marker clustering service for the pickup sports map",
	Long:  `Clusters facility and challenge markers for a map viewport.

  serve      HTTP API returning clusters for a region as JSON or GeoJSON
  migrate    create the PostGIS or SQLite schema
  import     load facilities or challenges from CSV, XLSX, shapefile or GeoJSON
  dedupe     report facilities that would be merged on import
  cluster    cluster one viewport from files or the store and print it

Settings come from config.yaml and MAPCLUSTER_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
