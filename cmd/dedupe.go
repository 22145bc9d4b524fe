package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pickupsports/mapcluster/internal/facility"
	"github.com/pickupsports/mapcluster/internal/importer"
	"github.com/pickupsports/mapcluster/internal/model"
)

var (
	dedupeAll           bool
	dedupeMaxDistance   float64
	dedupeSimilarity    float64
	dedupePreferRichest bool
)

// dedupeGroup is the report form of a facility.Group.
type dedupeGroup struct {
	Primary    model.Facility   `json:"primary"`
	Duplicates []model.Facility `json:"duplicates,omitempty"`
	Sports     []string         `json:"sports,omitempty"`
}

var dedupeCmd = &cobra.Command{
	Use:   "dedupe <file>...",
	Short: "Report duplicate facilities across import files",
	Long:  "Reads facility files without touching the store and prints the groups that would be merged on import.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("dedupe"); err != nil {
			return err
		}

		opts := cfg.Dedupe
		if cmd.Flags().Changed("max-distance") {
			opts.MaxDistance = dedupeMaxDistance
		}
		if cmd.Flags().Changed("name-similarity") {
			opts.NameSimilarity = dedupeSimilarity
		}
		if cmd.Flags().Changed("prefer-richest") {
			opts.PreferRichest = dedupePreferRichest
		}

		im := importer.New(nil, nil, importer.Options{Concurrency: cfg.Import.Concurrency})
		facilities, report, err := im.ReadFacilities(cmd.Context(), args)
		if err != nil {
			return eris.Wrap(err, "read facilities")
		}

		groups := facility.GroupDuplicates(facilities, opts)
		out := make([]dedupeGroup, 0, len(groups))
		for _, g := range groups {
			if !dedupeAll && len(g.Duplicates) == 0 {
				continue
			}
			out = append(out, dedupeGroup{Primary: g.Primary, Duplicates: g.Duplicates, Sports: g.Sports})
		}

		zap.L().Info("dedupe complete",
			zap.Int("rows", report.Rows),
			zap.Int("facilities", len(facilities)),
			zap.Int("groups", len(groups)),
			zap.Int("duplicate_groups", countMerged(groups)),
		)
		return printJSON(out)
	},
}

func countMerged(groups []facility.Group) int {
	n := 0
	for _, g := range groups {
		if g.Size() > 1 {
			n++
		}
	}
	return n
}

func init() {
	dedupeCmd.Flags().BoolVar(&dedupeAll, "all", false, "include facilities with no duplicates")
	dedupeCmd.Flags().Float64Var(&dedupeMaxDistance, "max-distance", facility.DefaultMaxDistance, "meters within which same-named facilities merge")
	dedupeCmd.Flags().Float64Var(&dedupeSimilarity, "name-similarity", facility.DefaultNameSimilarity, "minimum name word overlap (0-1)")
	dedupeCmd.Flags().BoolVar(&dedupePreferRichest, "prefer-richest", false, "keep the facility listing the most sports as primary")
	rootCmd.AddCommand(dedupeCmd)
}
