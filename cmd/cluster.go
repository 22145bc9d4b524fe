package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/pickupsports/mapcluster/internal/cluster"
	"github.com/pickupsports/mapcluster/internal/geo"
	"github.com/pickupsports/mapcluster/internal/importer"
	"github.com/pickupsports/mapcluster/internal/mapview"
	"github.com/pickupsports/mapcluster/internal/model"
)

var (
	clusterKind   string
	clusterRegion geo.Region
	clusterFormat string
)

var clusterCmd = &cobra.Command{
	Use:   "cluster [file]...",
	Short: "Cluster records for one viewport and print the result",
	Long: "Clusters facilities read from import files, or challenges read from a JSON array file, " +
		"for the given viewport. With no files the records are read from the store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("cluster"); err != nil {
			return err
		}
		if err := clusterRegion.Validate(); err != nil {
			return err
		}
		kind, err := model.ParseKind(clusterKind)
		if err != nil {
			return err
		}
		profiles, err := cfg.Cluster.Profiles()
		if err != nil {
			return err
		}
		opts, ok := profiles[string(kind)]
		if !ok {
			return eris.Errorf("no clustering profile for %s", kind)
		}

		var body []byte
		switch kind {
		case model.KindFacilities:
			points, err := loadFacilities(ctx, args)
			if err != nil {
				return err
			}
			body, err = mapview.EncodeResult(cluster.ClusterPoints(points, clusterRegion, opts), clusterFormat)
			if err != nil {
				return err
			}
		case model.KindChallenges:
			points, err := loadChallenges(ctx, args)
			if err != nil {
				return err
			}
			body, err = mapview.EncodeResult(cluster.ClusterPoints(points, clusterRegion, opts), clusterFormat)
			if err != nil {
				return err
			}
		}

		body = append(body, '\n')
		_, err = os.Stdout.Write(body)
		return eris.Wrap(err, "write output")
	},
}

func loadFacilities(ctx context.Context, paths []string) ([]model.Facility, error) {
	if len(paths) > 0 {
		im := importer.New(nil, nil, importer.Options{Concurrency: cfg.Import.Concurrency})
		facilities, _, err := im.ReadFacilities(ctx, paths)
		return facilities, err
	}
	st, err := openStore(ctx, "serve")
	if err != nil {
		return nil, err
	}
	defer func() { _ = st.Close() }()
	return st.FacilitiesInBBox(ctx, clusterRegion.Bounds(1), 0)
}

func loadChallenges(ctx context.Context, paths []string) ([]model.Challenge, error) {
	if len(paths) == 0 {
		st, err := openStore(ctx, "serve")
		if err != nil {
			return nil, err
		}
		defer func() { _ = st.Close() }()
		return st.ChallengesInBBox(ctx, clusterRegion.Bounds(1), 0)
	}

	var out []model.Challenge
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s", path)
		}
		var cs []model.Challenge
		if err := json.Unmarshal(data, &cs); err != nil {
			return nil, eris.Wrapf(err, "decode %s", path)
		}
		out = append(out, cs...)
	}
	return out, nil
}

func init() {
	f := clusterCmd.Flags()
	f.StringVar(&clusterKind, "kind", string(model.KindFacilities), "record kind: facilities or challenges")
	f.Float64Var(&clusterRegion.Latitude, "lat", 0, "viewport center latitude")
	f.Float64Var(&clusterRegion.Longitude, "lng", 0, "viewport center longitude")
	f.Float64Var(&clusterRegion.LatitudeDelta, "lat-delta", 0.1, "viewport latitude span in degrees")
	f.Float64Var(&clusterRegion.LongitudeDelta, "lng-delta", 0.1, "viewport longitude span in degrees")
	f.StringVar(&clusterFormat, "format", mapview.FormatJSON, "output format: json or geojson")
	rootCmd.AddCommand(clusterCmd)
}
