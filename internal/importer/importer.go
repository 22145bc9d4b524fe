package importer

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pickupsports/mapcluster/internal/facility"
	"github.com/pickupsports/mapcluster/internal/model"
	"github.com/pickupsports/mapcluster/pkg/geocode"
)

// idNamespace scopes the deterministic ids derived from source rows.
var idNamespace = uuid.MustParse("6f1c2a4e-9b7d-4c1e-8a53-2d0e7f9b4c61")

// Writer is the subset of the store the importer needs.
type Writer interface {
	UpsertFacilities(ctx context.Context, facilities []model.Facility) (int64, error)
	UpsertChallenges(ctx context.Context, challenges []model.Challenge) (int64, error)
}

// Options configures an Importer.
type Options struct {
	// Concurrency bounds how many files are read at once. Default 4.
	Concurrency int
	// BatchSize bounds rows per store call. Default 1000.
	BatchSize int
	// Source labels imported facilities. Defaults to the file name.
	Source string
	// Dedupe controls duplicate merging; SkipDedupe disables it.
	Dedupe     facility.Options
	SkipDedupe bool
}

// Report summarises one import run.
type Report struct {
	Files      int   `json:"files"`
	Rows       int   `json:"rows"`
	Geocoded   int   `json:"geocoded"`
	Skipped    int   `json:"skipped"`
	Duplicates int   `json:"duplicates"`
	Upserted   int64 `json:"upserted"`
}

// Importer reads facility and challenge files into a store.
type Importer struct {
	w        Writer
	geocoder geocode.Geocoder
	opts     Options
}

// New builds an Importer. w may be nil for read-only use; geocoder may be
// nil, in which case rows without coordinates are skipped.
func New(w Writer, geocoder geocode.Geocoder, opts Options) *Importer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	return &Importer{w: w, geocoder: geocoder, opts: opts}
}

// fileResult holds one file's parsed facilities.
type fileResult struct {
	placed  []model.Facility
	pending []model.Facility
	skipped int
	rows    int
}

// ReadFacilities reads every file concurrently and geocodes rows that lack
// coordinates. Output preserves file order, then row order.
func (im *Importer) ReadFacilities(ctx context.Context, paths []string) ([]model.Facility, Report, error) {
	results := make([]fileResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.opts.Concurrency)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			recs, err := readFile(gctx, path)
			if err != nil {
				return err
			}
			results[i] = im.facilitiesFrom(path, recs)
			zap.L().Info("importer: read file",
				zap.String("path", path),
				zap.Int("rows", results[i].rows),
				zap.Int("pending_geocode", len(results[i].pending)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Report{}, err
	}

	report := Report{Files: len(paths)}
	var (
		out     []model.Facility
		pending []model.Facility
	)
	for _, r := range results {
		report.Rows += r.rows
		report.Skipped += r.skipped
		out = append(out, r.placed...)
		pending = append(pending, r.pending...)
	}

	if len(pending) > 0 {
		located, err := im.geocode(ctx, pending)
		if err != nil {
			return nil, Report{}, err
		}
		report.Geocoded = len(located)
		report.Skipped += len(pending) - len(located)
		out = append(out, located...)
	}
	return out, report, nil
}

// ImportFiles reads facility files, merges duplicates and upserts the
// result in batches.
func (im *Importer) ImportFiles(ctx context.Context, paths []string) (Report, error) {
	if im.w == nil {
		return Report{}, eris.New("importer: no store configured")
	}
	facilities, report, err := im.ReadFacilities(ctx, paths)
	if err != nil {
		return report, err
	}

	if !im.opts.SkipDedupe {
		merged := facility.Dedupe(facilities, im.opts.Dedupe)
		report.Duplicates = len(facilities) - len(merged)
		facilities = merged
	}

	for start := 0; start < len(facilities); start += im.opts.BatchSize {
		end := min(start+im.opts.BatchSize, len(facilities))
		n, err := im.w.UpsertFacilities(ctx, facilities[start:end])
		if err != nil {
			return report, eris.Wrapf(err, "importer: upsert facilities %d-%d", start, end)
		}
		report.Upserted += n
	}

	zap.L().Info("importer: facilities imported",
		zap.Int("files", report.Files),
		zap.Int("rows", report.Rows),
		zap.Int("geocoded", report.Geocoded),
		zap.Int("skipped", report.Skipped),
		zap.Int("duplicates", report.Duplicates),
		zap.Int64("upserted", report.Upserted),
	)
	return report, nil
}

// ImportChallenges reads challenge files and upserts them. Rows need a
// title and coordinates.
func (im *Importer) ImportChallenges(ctx context.Context, paths []string) (Report, error) {
	if im.w == nil {
		return Report{}, eris.New("importer: no store configured")
	}

	var (
		mu         sync.Mutex
		challenges = make([][]model.Challenge, len(paths))
		report     = Report{Files: len(paths)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.opts.Concurrency)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			recs, err := readFile(gctx, path)
			if err != nil {
				return err
			}
			var skipped int
			for _, rec := range recs {
				c, err := challengeFrom(path, rec)
				if err != nil {
					zap.L().Warn("importer: skip challenge row",
						zap.String("path", path),
						zap.Int("line", rec.line),
						zap.Error(err),
					)
					skipped++
					continue
				}
				challenges[i] = append(challenges[i], c)
			}
			mu.Lock()
			report.Rows += len(recs)
			report.Skipped += skipped
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	var all []model.Challenge
	for _, cs := range challenges {
		all = append(all, cs...)
	}
	for start := 0; start < len(all); start += im.opts.BatchSize {
		end := min(start+im.opts.BatchSize, len(all))
		n, err := im.w.UpsertChallenges(ctx, all[start:end])
		if err != nil {
			return report, eris.Wrapf(err, "importer: upsert challenges %d-%d", start, end)
		}
		report.Upserted += n
	}
	return report, nil
}

func (im *Importer) sourceLabel(path string) string {
	if im.opts.Source != "" {
		return im.opts.Source
	}
	return filepath.Base(path)
}

// facilitiesFrom converts rows, splitting those that still need a
// position from those already placed.
func (im *Importer) facilitiesFrom(path string, recs []record) fileResult {
	res := fileResult{rows: len(recs)}
	source := im.sourceLabel(path)
	for _, rec := range recs {
		name := rec.get(fieldName)
		if name == "" {
			zap.L().Warn("importer: skip row without name",
				zap.String("path", path),
				zap.Int("line", rec.line),
			)
			res.skipped++
			continue
		}

		sourceID := rec.get(fieldID)
		if sourceID == "" {
			sourceID = strconv.Itoa(rec.line)
		}
		f := model.Facility{
			ID:       facilityID(source, sourceID),
			Name:     name,
			Address:  rec.get(fieldAddress),
			City:     rec.get(fieldCity),
			State:    strings.ToUpper(rec.get(fieldState)),
			ZipCode:  rec.get(fieldZip),
			Sports:   sportsFrom(rec.get(fieldSports)),
			Source:   source,
			SourceID: sourceID,
		}

		if lat, lng, ok := rec.coordinates(); ok && validPosition(lat, lng) {
			f.Latitude, f.Longitude = lat, lng
			res.placed = append(res.placed, f)
			continue
		}
		if im.geocoder == nil || addressOf(f).Empty() {
			zap.L().Warn("importer: skip row without coordinates",
				zap.String("path", path),
				zap.Int("line", rec.line),
				zap.String("name", name),
			)
			res.skipped++
			continue
		}
		res.pending = append(res.pending, f)
	}
	return res
}

// geocode resolves pending facilities in one batch and returns those that
// matched.
func (im *Importer) geocode(ctx context.Context, pending []model.Facility) ([]model.Facility, error) {
	addrs := make([]geocode.AddressInput, len(pending))
	for i, f := range pending {
		addrs[i] = addressOf(f)
		addrs[i].ID = strconv.Itoa(i)
	}

	results, err := im.geocoder.BatchGeocode(ctx, addrs)
	if err != nil {
		return nil, eris.Wrap(err, "importer: geocode")
	}

	located := make([]model.Facility, 0, len(pending))
	for i, f := range pending {
		if i >= len(results) || !results[i].Matched {
			zap.L().Warn("importer: no geocode match",
				zap.String("name", f.Name),
				zap.String("address", addrs[i].OneLine()),
			)
			continue
		}
		f.Latitude = results[i].Latitude
		f.Longitude = results[i].Longitude
		located = append(located, f)
	}
	return located, nil
}

func addressOf(f model.Facility) geocode.AddressInput {
	return geocode.AddressInput{
		Street:  f.Address,
		City:    f.City,
		State:   f.State,
		ZipCode: f.ZipCode,
	}
}

// facilityID derives a stable id so re-importing a file updates rows in
// place.
func facilityID(source, sourceID string) string {
	return uuid.NewSHA1(idNamespace, []byte(source+"\x00"+sourceID)).String()
}

func sportsFrom(cell string) []string {
	var out []string
	for _, s := range splitList(cell) {
		if n := facility.NormalizeSport(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func validPosition(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

var startLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseStartsAt(s string) (time.Time, error) {
	for _, layout := range startLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, eris.Errorf("importer: unparseable start time %q", s)
}

func challengeFrom(path string, rec record) (model.Challenge, error) {
	title := rec.get(fieldTitle)
	if title == "" {
		title = rec.get(fieldName)
	}
	if title == "" {
		return model.Challenge{}, eris.New("importer: challenge has no title")
	}
	lat, lng, ok := rec.coordinates()
	if !ok || !validPosition(lat, lng) {
		return model.Challenge{}, eris.New("importer: challenge has no coordinates")
	}

	c := model.Challenge{
		Title:     title,
		Sport:     facility.NormalizeSport(rec.get(fieldSport)),
		TeamID:    rec.get(fieldTeamID),
		CreatorID: rec.get(fieldCreatorID),
		Location: model.Location{
			Name:      rec.get(fieldLocation),
			Latitude:  lat,
			Longitude: lng,
		},
		Status: model.ChallengeStatusOpen,
	}
	if id := rec.get(fieldID); id != "" {
		c.ID = facilityID(filepath.Base(path), id)
	}
	if s := rec.get(fieldStartsAt); s != "" {
		t, err := parseStartsAt(s)
		if err != nil {
			return model.Challenge{}, err
		}
		c.StartsAt = t
	}
	if s := rec.get(fieldParticipants); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return model.Challenge{}, eris.Errorf("importer: invalid participants %q", s)
		}
		c.Participants = n
	}
	if s := rec.get(fieldMaxParticipants); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return model.Challenge{}, eris.Errorf("importer: invalid max_participants %q", s)
		}
		c.MaxParticipants = n
	}
	if s := strings.ToLower(rec.get(fieldStatus)); s != "" {
		c.Status = model.ChallengeStatus(s)
	}
	return c, nil
}
