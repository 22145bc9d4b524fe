package facility

import (
	"sort"

	"github.com/pickupsports/mapcluster/internal/cluster"
	"github.com/pickupsports/mapcluster/internal/geo"
	"github.com/pickupsports/mapcluster/internal/model"
)

// Defaults for Options.
const (
	DefaultMaxDistance    = 75.0
	DefaultNameSimilarity = 0.8
)

// Options controls when two records count as the same place.
type Options struct {
	// MaxDistance is the Haversine distance in meters under which two
	// similarly named facilities are merged.
	MaxDistance float64 `mapstructure:"max_distance_m" yaml:"max_distance_m"`
	// NameSimilarity is the minimum word-set Jaccard score for two
	// different normalized names to be treated as equal.
	NameSimilarity float64 `mapstructure:"name_similarity" yaml:"name_similarity"`
	// PreferRichest promotes the record listing the most sports to
	// primary instead of the first one seen.
	PreferRichest bool `mapstructure:"prefer_richest" yaml:"prefer_richest"`
}

func (o Options) withDefaults() Options {
	if o.MaxDistance <= 0 {
		o.MaxDistance = DefaultMaxDistance
	}
	if o.NameSimilarity <= 0 || o.NameSimilarity > 1 {
		o.NameSimilarity = DefaultNameSimilarity
	}
	return o
}

// Group is one physical place and the records that describe it.
type Group struct {
	Primary    model.Facility   `json:"primary"`
	Duplicates []model.Facility `json:"duplicates,omitempty"`
	Sports     []string         `json:"sports,omitempty"`
}

// Size returns the number of records in the group.
func (g Group) Size() int {
	return 1 + len(g.Duplicates)
}

type normalized struct {
	name    string
	address string
	coords  geo.Coordinates
}

func normalizeAll(facilities []model.Facility) []normalized {
	out := make([]normalized, len(facilities))
	for i, f := range facilities {
		out[i] = normalized{
			name:    NormalizeName(f.Name),
			address: NormalizeAddress(f.Address),
			coords:  f.Coordinates(),
		}
	}
	return out
}

// Same reports whether a and b describe the same place: their names must
// match and either their addresses agree or they are within MaxDistance.
func Same(a, b model.Facility, opts Options) bool {
	opts = opts.withDefaults()
	na := normalizeAll([]model.Facility{a, b})
	return same(na[0], na[1], opts)
}

func same(a, b normalized, opts Options) bool {
	if a.name == "" || b.name == "" {
		return false
	}
	if a.name != b.name && NameSimilarity(a.name, b.name) < opts.NameSimilarity {
		return false
	}
	if a.address != "" && a.address == b.address {
		return true
	}
	return geo.Haversine(a.coords, b.coords) <= opts.MaxDistance
}

// GroupDuplicates walks facilities in input order. Each unassigned record
// seeds a group and claims every unassigned record that is the same place
// as the seed, in input order. Candidates come from the seed's grid
// neighbourhood and from records sharing its normalized address.
// Coordinates must be finite.
func GroupDuplicates(facilities []model.Facility, opts Options) []Group {
	opts = opts.withDefaults()
	norms := normalizeAll(facilities)

	coords := make([]geo.Coordinates, len(norms))
	byAddress := make(map[string][]int)
	for i, n := range norms {
		coords[i] = n.coords
		if n.address != "" {
			byAddress[n.address] = append(byAddress[n.address], i)
		}
	}
	grid := cluster.NewGrid(coords, cluster.CellSize(opts.MaxDistance))

	assigned := make([]bool, len(facilities))
	groups := make([]Group, 0, len(facilities))

	for i := range facilities {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		g := Group{Primary: facilities[i]}

		var candidates []int
		grid.Neighbors(i, func(j int) {
			if !assigned[j] {
				candidates = append(candidates, j)
			}
		})
		if norms[i].address != "" {
			for _, j := range byAddress[norms[i].address] {
				if !assigned[j] {
					candidates = append(candidates, j)
				}
			}
		}
		sort.Ints(candidates)

		for _, j := range candidates {
			if assigned[j] || !same(norms[i], norms[j], opts) {
				continue
			}
			assigned[j] = true
			g.Duplicates = append(g.Duplicates, facilities[j])
		}

		if opts.PreferRichest {
			g = promoteRichest(g)
		}
		g.Sports = mergeSports(g)
		groups = append(groups, g)
	}
	return groups
}

func promoteRichest(g Group) Group {
	best := -1
	most := len(g.Primary.Sports)
	for i, d := range g.Duplicates {
		if len(d.Sports) > most {
			best, most = i, len(d.Sports)
		}
	}
	if best < 0 {
		return g
	}
	members := make([]model.Facility, 0, g.Size())
	members = append(members, g.Primary)
	members = append(members, g.Duplicates...)
	primary := members[best+1]
	dups := make([]model.Facility, 0, len(members)-1)
	for i, m := range members {
		if i != best+1 {
			dups = append(dups, m)
		}
	}
	return Group{Primary: primary, Duplicates: dups}
}

func mergeSports(g Group) []string {
	set := make(map[string]bool)
	add := func(sports []string) {
		for _, s := range sports {
			if n := NormalizeSport(s); n != "" {
				set[n] = true
			}
		}
	}
	add(g.Primary.Sports)
	for _, d := range g.Duplicates {
		add(d.Sports)
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Merge collapses each group into one facility: the primary record with
// the union of sports and any empty descriptive fields filled from its
// duplicates.
func Merge(groups []Group) []model.Facility {
	out := make([]model.Facility, 0, len(groups))
	for _, g := range groups {
		f := g.Primary
		f.Sports = g.Sports
		for _, d := range g.Duplicates {
			if f.Address == "" {
				f.Address = d.Address
			}
			if f.City == "" {
				f.City = d.City
			}
			if f.State == "" {
				f.State = d.State
			}
			if f.ZipCode == "" {
				f.ZipCode = d.ZipCode
			}
		}
		out = append(out, f)
	}
	return out
}

// Dedupe groups and merges in one step.
func Dedupe(facilities []model.Facility, opts Options) []model.Facility {
	return Merge(GroupDuplicates(facilities, opts))
}
