package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Kind names a class of map records.
type Kind string

const (
	KindFacilities Kind = "facilities"
	KindChallenges Kind = "challenges"
)

// ErrUnknownKind is returned by ParseKind for unsupported names.
var ErrUnknownKind = eris.New("model: unknown kind")

// ParseKind parses a kind name, accepting singular forms.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "facilities", "facility":
		return KindFacilities, nil
	case "challenges", "challenge":
		return KindChallenges, nil
	default:
		return "", eris.Wrapf(ErrUnknownKind, "%q", s)
	}
}
