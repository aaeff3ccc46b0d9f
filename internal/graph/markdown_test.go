package graph

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-favorites/internal/weather"
)

func TestMarkdownRendererDetailed(t *testing.T) {
	req := request("osm:1", 30)
	req.Hours = 6
	req.Sun = map[string]weather.SunTimes{
		"2024-05-01": {
			Date:    "2024-05-01",
			Sunrise: time.Date(2024, 5, 1, 3, 5, 0, 0, time.UTC),
			Sunset:  time.Date(2024, 5, 1, 19, 30, 0, 0, time.UTC),
		},
	}

	md, err := MarkdownRenderer{}.Render(req)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(md, "## Oslo, next 6 hours"))
	assert.Equal(t, 6, strings.Count(md, "°C |"))
	assert.Contains(t, md, "sunrise 03:05, sunset 19:30")

	// The same request renders identically.
	again, err := MarkdownRenderer{}.Render(req)
	require.NoError(t, err)
	assert.Equal(t, md, again)
}

func TestMarkdownRendererTargetDateAndSummary(t *testing.T) {
	req := request("osm:1", 30)
	req.TargetDate = "2024-05-02"

	md, err := MarkdownRenderer{}.Render(req)
	require.NoError(t, err)
	assert.Contains(t, md, "## Oslo, 2024-05-02")
	assert.Equal(t, 18, strings.Count(md, "°C |"), "entries from 00:00 to 17:00")

	req.TargetDate = ""
	req.Mode = ModeSummary
	md, err = MarkdownRenderer{}.Render(req)
	require.NoError(t, err)
	assert.Contains(t, md, "## Oslo, 2 days")
}

func TestMarkdownRendererErrors(t *testing.T) {
	_, err := MarkdownRenderer{}.Render(Request{Name: "Empty"})
	require.Error(t, err)

	req := request("osm:1", 3)
	req.Mode = "weird"
	_, err = MarkdownRenderer{}.Render(req)
	require.Error(t, err)
}

func TestSparklineUsesPaletteGlyphs(t *testing.T) {
	light := sparkline([]float64{0, 10}, PaletteLight)
	dark := sparkline([]float64{0, 10}, PaletteDark)
	assert.Equal(t, "▁█", light)
	assert.Equal(t, "⡀⣿", dark)
	assert.Equal(t, "▁▁", sparkline([]float64{5, 5}, "unknown"))
}
