package cluster

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Built-in profile names.
const (
	ProfileFacilities = "facilities"
	ProfileChallenges = "challenges"
)

// FacilityMaxPoints caps a facility clustering pass.
const FacilityMaxPoints = 2000

// Profiles maps a point kind to its clustering options.
type Profiles map[string]Options

// DefaultProfiles returns the built-in profiles. Facilities are pre-filtered
// to the viewport and capped; challenges are clustered unconditionally.
func DefaultProfiles() Profiles {
	return Profiles{
		ProfileFacilities: {
			MaxPoints:        FacilityMaxPoints,
			FilterVisible:    true,
			VisibilityBuffer: 0.2,
			Linkage:          SeedLinkage,
		},
		ProfileChallenges: {
			Linkage: SeedLinkage,
		},
	}
}

// Names returns the profile names in sorted order.
func (p Profiles) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadProfiles reads profiles from a YAML file with a top-level "profiles"
// map and layers them over DefaultProfiles.
func LoadProfiles(path string) (Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "cluster: read profiles %s", path)
	}
	return ParseProfiles(data)
}

// ParseProfiles parses YAML profile data and layers it over DefaultProfiles.
func ParseProfiles(data []byte) (Profiles, error) {
	var wrapper struct {
		Profiles map[string]Options `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "cluster: parse profiles")
	}

	profiles := DefaultProfiles()
	for name, opts := range wrapper.Profiles {
		linkage, err := ParseLinkage(string(opts.Linkage))
		if err != nil {
			return nil, eris.Wrapf(err, "cluster: profile %s", name)
		}
		opts.Linkage = linkage
		if opts.MaxPoints < 0 {
			return nil, eris.Errorf("cluster: profile %s: max_points must not be negative", name)
		}
		if opts.VisibilityBuffer < 0 {
			return nil, eris.Errorf("cluster: profile %s: visibility_buffer must not be negative", name)
		}
		profiles[name] = opts
	}
	return profiles, nil
}
