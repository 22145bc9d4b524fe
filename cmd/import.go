package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/pickupsports/mapcluster/internal/importer"
	"github.com/pickupsports/mapcluster/pkg/geocode"
)

var (
	importSource    string
	importNoDedupe  bool
	importNoGeocode bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load facilities or challenges from files into the store",
}

var importFacilitiesCmd = &cobra.Command{
	Use:   "facilities <file>...",
	Short: "Import facilities from CSV, XLSX, shapefile or GeoJSON files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "import")
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		var geocoder geocode.Geocoder
		if !importNoGeocode {
			geocoder = newGeocoder()
		}

		im := importer.New(st, geocoder, importOptions())
		report, err := im.ImportFiles(ctx, args)
		if err != nil {
			return eris.Wrap(err, "import facilities")
		}
		return printJSON(report)
	},
}

var importChallengesCmd = &cobra.Command{
	Use:   "challenges <file>...",
	Short: "Import challenges from CSV, XLSX or GeoJSON files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, "import")
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		report, err := importer.New(st, nil, importOptions()).ImportChallenges(ctx, args)
		if err != nil {
			return eris.Wrap(err, "import challenges")
		}
		return printJSON(report)
	},
}

func importOptions() importer.Options {
	return importer.Options{
		Concurrency: cfg.Import.Concurrency,
		BatchSize:   cfg.Import.BatchSize,
		Source:      importSource,
		Dedupe:      cfg.Dedupe,
		SkipDedupe:  importNoDedupe,
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "write output")
}

func init() {
	importCmd.PersistentFlags().StringVar(&importSource, "source", "", "source label for imported rows (default: file name)")
	importFacilitiesCmd.Flags().BoolVar(&importNoDedupe, "no-dedupe", false, "skip duplicate merging")
	importFacilitiesCmd.Flags().BoolVar(&importNoGeocode, "no-geocode", false, "skip rows without coordinates instead of geocoding them")
	importCmd.AddCommand(importFacilitiesCmd, importChallengesCmd)
	rootCmd.AddCommand(importCmd)
}
