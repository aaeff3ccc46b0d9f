package location

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		rawID    string
		lat, lon float64
		want     Key
	}{
		{"numeric id becomes osm key", "123", 59.9139, 10.7522, "osm:123"},
		{"no id rounds coordinates", "", 59.91390, 10.75220, "coord:59.914,10.752"},
		{"coordinate string wins over arguments", "59.914,10.752", 0, 0, "coord:59.914,10.752"},
		{"coordinate string with spaces", " 59.91390 , 10.75220 ", 1, 1, "coord:59.914,10.752"},
		{"negative coordinate string", "-33.8688,151.2093", 0, 0, "coord:-33.869,151.209"},
		{"canonical osm is unchanged", "osm:42", 1, 2, "osm:42"},
		{"canonical coord is unchanged", "coord:1.000,2.000", 5, 6, "coord:1.000,2.000"},
		{"canonical id is unchanged", "id:abc", 5, 6, "id:abc"},
		{"placeholder falls back to coordinates", "undefined", 1.23456, 2.34567, "coord:1.235,2.346"},
		{"tmp placeholder falls back to coordinates", "tmp-1699999", 1, 2, "coord:1.000,2.000"},
		{"other ids are wrapped", "N12345", 1, 2, "id:N12345"},
		{"negative zero is normalized", "", -0.0001, 0.0002, "coord:0.000,0.000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.rawID, tt.lat, tt.lon))
		})
	}
}

func TestResolveIsDeterministicAndIdempotent(t *testing.T) {
	inputs := []struct {
		id       string
		lat, lon float64
	}{
		{"", 48.8566, 2.3522},
		{"987", 0, 0},
		{"59.9,10.7", 3, 4},
		{"some-slug", 1, 1},
	}

	for _, in := range inputs {
		first := Resolve(in.id, in.lat, in.lon)
		second := Resolve(in.id, in.lat, in.lon)
		assert.Equal(t, first, second)

		// Feeding a key back in must not change it.
		assert.Equal(t, first, Resolve(first.String(), 10, 20))
	}
}

type point struct {
	id       string
	lat, lon float64
}

func (p point) LocationKey() Key { return Resolve(p.id, p.lat, p.lon) }

func TestSame(t *testing.T) {
	assert.True(t, Same(point{"", 59.91391, 10.75219}, point{"59.914,10.752", 0, 0}))
	assert.False(t, Same(point{"123", 59.9139, 10.7522}, point{"", 59.9139, 10.7522}))
	assert.False(t, Same(point{"", 59.914, 10.752}, point{"", 59.915, 10.752}))
}
