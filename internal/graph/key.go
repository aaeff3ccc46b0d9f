package graph

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/i474232898/weather-favorites/internal/cache"
	"github.com/i474232898/weather-favorites/internal/location"
	"github.com/i474232898/weather-favorites/internal/weather"
)

// SchemaVersion is stored with every entry. Bump it whenever the rendered
// output or the entry layout changes so that older entries read as misses.
const SchemaVersion = "3"

// Mode selects what the graph shows.
type Mode string

const (
	ModeDetailed Mode = "detailed" // hourly, next N hours or one day
	ModeSummary  Mode = "summary"  // one row per day
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeDetailed || m == ModeSummary }

// Palette is the UI theme the markdown is rendered for.
type Palette string

const (
	PaletteLight Palette = "light"
	PaletteDark  Palette = "dark"
)

// Valid reports whether p is a known palette.
func (p Palette) Valid() bool { return p == PaletteLight || p == PaletteDark }

// Key builds the cache key for a graph:
//
//	graph:<locationKey>:<mode>:<palette>[:<targetDate>|:<dataHash>]
//
// A target date takes precedence over the data hash.
func Key(locationKey location.Key, mode Mode, targetDate, dataHash string, palette Palette) string {
	k := cache.PrefixGraph + locationKey.String() + ":" + string(mode) + ":" + string(palette)
	switch {
	case targetDate != "":
		k += ":" + targetDate
	case dataHash != "":
		k += ":" + dataHash
	}
	return k
}

// LocationPrefix is the key prefix shared by every graph of a location.
func LocationPrefix(locationKey location.Key) string {
	return cache.PrefixGraph + locationKey.String() + ":"
}

// HashInput is the summary of the inputs a graph depends on.
type HashInput struct {
	Series  []weather.TimeseriesEntry
	Name    string
	Hours   int
	Sun     map[string]weather.SunTimes
	Palette Palette
}

// ComputeDataHash returns a short digest of the graph inputs. Only the
// series length and its first and last timestamps are hashed, not every
// value, so a change in the middle of an otherwise identical series goes
// unnoticed until the TTL expires.
func ComputeDataHash(in HashInput) string {
	h := xxhash.New()

	_, _ = h.WriteString(strconv.Itoa(len(in.Series)))
	_, _ = h.Write([]byte{0})
	if n := len(in.Series); n > 0 {
		_, _ = h.WriteString(strconv.FormatInt(in.Series[0].Time.UnixMilli(), 10))
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(strconv.FormatInt(in.Series[n-1].Time.UnixMilli(), 10))
	}
	_, _ = h.Write([]byte{0})

	_, _ = h.WriteString(in.Name)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(strconv.Itoa(in.Hours))
	_, _ = h.Write([]byte{0})

	// encoding/json sorts map keys, so the serialization is stable.
	if len(in.Sun) > 0 {
		if b, err := json.Marshal(in.Sun); err == nil {
			_, _ = h.Write(b)
		}
	}
	_, _ = h.Write([]byte{0})

	_, _ = h.WriteString(string(in.Palette))

	return fmt.Sprintf("%016x", h.Sum64())
}
