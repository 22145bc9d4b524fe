// Package importer loads map records from tabular and spatial files.
package importer

import (
	"math"
	"strconv"
	"strings"
)

// Canonical field names. Source headers are matched case-insensitively
// against these and their aliases.
const (
	fieldID              = "id"
	fieldName            = "name"
	fieldAddress         = "address"
	fieldCity            = "city"
	fieldState           = "state"
	fieldZip             = "zip"
	fieldSports          = "sports"
	fieldLat             = "lat"
	fieldLng             = "lng"
	fieldTitle           = "title"
	fieldSport           = "sport"
	fieldStartsAt        = "starts_at"
	fieldLocation        = "location"
	fieldTeamID          = "team_id"
	fieldCreatorID       = "creator_id"
	fieldParticipants    = "participants"
	fieldMaxParticipants = "max_participants"
	fieldStatus          = "status"
)

var fieldAliases = map[string]string{
	"id":               fieldID,
	"source_id":        fieldID,
	"name":             fieldName,
	"facility_name":    fieldName,
	"address":          fieldAddress,
	"street":           fieldAddress,
	"street_address":   fieldAddress,
	"city":             fieldCity,
	"state":            fieldState,
	"zip":              fieldZip,
	"zipcode":          fieldZip,
	"zip_code":         fieldZip,
	"postal_code":      fieldZip,
	"sports":           fieldSports,
	"lat":              fieldLat,
	"latitude":         fieldLat,
	"y":                fieldLat,
	"lng":              fieldLng,
	"lon":              fieldLng,
	"long":             fieldLng,
	"longitude":        fieldLng,
	"x":                fieldLng,
	"title":            fieldTitle,
	"sport":            fieldSport,
	"starts_at":        fieldStartsAt,
	"start_time":       fieldStartsAt,
	"location":         fieldLocation,
	"location_name":    fieldLocation,
	"team_id":          fieldTeamID,
	"creator_id":       fieldCreatorID,
	"participants":     fieldParticipants,
	"max_participants": fieldMaxParticipants,
	"status":           fieldStatus,
}

// canonicalField maps a source header to its canonical name, or "" when
// the column is not used.
func canonicalField(header string) string {
	h := strings.ToLower(strings.TrimSpace(header))
	h = strings.TrimRight(h, "\x00")
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	return fieldAliases[h]
}

// headerIndex maps canonical field names to column positions. The first
// column wins when two headers map to the same field.
func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		f := canonicalField(h)
		if f == "" {
			continue
		}
		if _, dup := idx[f]; !dup {
			idx[f] = i
		}
	}
	return idx
}

// record is one source row keyed by canonical field name.
type record struct {
	line   int
	fields map[string]string
}

func recordFromRow(line int, idx map[string]int, row []string) record {
	r := record{line: line, fields: make(map[string]string, len(idx))}
	for f, i := range idx {
		if i < len(row) {
			if v := strings.TrimSpace(row[i]); v != "" {
				r.fields[f] = v
			}
		}
	}
	return r
}

func (r record) get(field string) string { return r.fields[field] }

// coordinates returns the row's position when both values parse as finite
// numbers.
func (r record) coordinates() (lat, lng float64, ok bool) {
	lat, err := strconv.ParseFloat(r.get(fieldLat), 64)
	if err != nil {
		return 0, 0, false
	}
	lng, err = strconv.ParseFloat(r.get(fieldLng), 64)
	if err != nil {
		return 0, 0, false
	}
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lng) || math.IsInf(lng, 0) {
		return 0, 0, false
	}
	return lat, lng, true
}

// splitList splits a ";" or "," separated cell.
func splitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' || r == '|' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
