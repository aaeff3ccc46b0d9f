// Package location assigns every place a single canonical identity.
//
// A Key is derived from whatever identity the caller has: a stable
// geocoder id, a raw "<lat>,<lon>" string from older records, or only the
// coordinates. Two locations are equal exactly when their keys are equal;
// there is no name or distance based matching.
package location

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Key is the canonical identity of a location.
type Key string

// Key prefixes.
const (
	PrefixOSM   = "osm:"
	PrefixCoord = "coord:"
	PrefixID    = "id:"
)

// CoordPrecision is the number of decimals kept in coordinate keys.
const CoordPrecision = 3

var (
	numericID = regexp.MustCompile(`^\d+$`)
	coordPair = regexp.MustCompile(`^\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*$`)

	// placeholderIDs are markers older builds stored when a place had no
	// real id. They carry no identity of their own.
	placeholderIDs = map[string]bool{
		"undefined": true,
		"null":      true,
		"unknown":   true,
		"nan":       true,
	}
	placeholderPrefixes = []string{"tmp-", "temp-", "placeholder"}
)

// String returns the key as a plain string.
func (k Key) String() string { return string(k) }

// IsCanonical reports whether s already carries one of the key prefixes.
func IsCanonical(s string) bool {
	return strings.HasPrefix(s, PrefixOSM) ||
		strings.HasPrefix(s, PrefixCoord) ||
		strings.HasPrefix(s, PrefixID)
}

// Resolve maps an optional raw id plus coordinates to a canonical Key.
// An empty rawID means the caller has no id.
//
// Resolve is pure and idempotent: Resolve(string(Resolve(id, lat, lon)), x, y)
// returns the same key for any x, y.
func Resolve(rawID string, lat, lon float64) Key {
	id := strings.TrimSpace(rawID)
	if id == "" {
		return CoordKey(lat, lon)
	}
	if IsCanonical(id) {
		return Key(id)
	}
	if isPlaceholder(id) {
		return CoordKey(lat, lon)
	}
	// Legacy records used the coordinate string itself as the id, and that
	// string is the source of truth for them.
	if m := coordPair.FindStringSubmatch(id); m != nil {
		pLat, errLat := strconv.ParseFloat(m[1], 64)
		pLon, errLon := strconv.ParseFloat(m[2], 64)
		if errLat == nil && errLon == nil {
			return CoordKey(pLat, pLon)
		}
	}
	if numericID.MatchString(id) {
		return Key(PrefixOSM + id)
	}
	return Key(PrefixID + id)
}

// CoordKey builds a coordinate key rounded to CoordPrecision decimals.
func CoordKey(lat, lon float64) Key {
	return Key(PrefixCoord + formatCoord(lat) + "," + formatCoord(lon))
}

// Candidate is anything that can be resolved to a Key.
type Candidate interface {
	LocationKey() Key
}

// Same reports whether a and b resolve to the same key.
func Same(a, b Candidate) bool {
	return a.LocationKey() == b.LocationKey()
}

func isPlaceholder(id string) bool {
	lower := strings.ToLower(id)
	if placeholderIDs[lower] {
		return true
	}
	for _, p := range placeholderPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func formatCoord(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	scale := math.Pow(10, CoordPrecision)
	r := math.Round(v*scale) / scale
	if r == 0 {
		// avoid "-0.000"
		r = 0
	}
	return strconv.FormatFloat(r, 'f', CoordPrecision, 64)
}
