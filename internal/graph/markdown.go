package graph

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/i474232898/weather-favorites/internal/weather"
)

var sparkGlyphs = map[Palette][]rune{
	PaletteLight: []rune("▁▂▃▄▅▆▇█"),
	PaletteDark:  []rune("⡀⣀⣄⣤⣦⣶⣷⣿"),
}

var conditionIcons = map[weather.Condition]string{
	weather.ConditionClear:   "☀️",
	weather.ConditionCloudy:  "☁️",
	weather.ConditionRain:    "🌧️",
	weather.ConditionSnow:    "🌨️",
	weather.ConditionStorm:   "⛈️",
	weather.ConditionMist:    "🌫️",
	weather.ConditionUnknown: "·",
}

// MarkdownRenderer renders forecasts as markdown tables with a text
// sparkline. Output depends only on the request.
type MarkdownRenderer struct{}

// Render implements Renderer.
func (MarkdownRenderer) Render(r Request) (string, error) {
	if len(r.Series) == 0 {
		return "", fmt.Errorf("no forecast data for %s", r.Name)
	}

	var b strings.Builder
	switch r.Mode {
	case ModeSummary:
		renderSummary(&b, r)
	case ModeDetailed, "":
		renderDetailed(&b, r)
	default:
		return "", fmt.Errorf("unknown graph mode %q", r.Mode)
	}
	renderSun(&b, r.Sun)
	return b.String(), nil
}

func renderDetailed(b *strings.Builder, r Request) {
	series := r.Series
	title := fmt.Sprintf("next %d hours", r.Hours)
	if r.TargetDate != "" {
		series = weather.FilterDate(series, r.TargetDate)
		title = r.TargetDate
	} else {
		series = weather.Window(series, series[0].Time, r.Hours)
	}

	fmt.Fprintf(b, "## %s, %s\n\n", r.Name, title)
	if len(series) == 0 {
		b.WriteString("_No forecast data for this period._\n")
		return
	}

	temps := make([]float64, len(series))
	for i, e := range series {
		temps[i] = e.TemperatureC
	}
	fmt.Fprintf(b, "```\n%s\n```\n\n", sparkline(temps, r.Palette))

	b.WriteString("| Time | | Temp | Precip | Wind |\n")
	b.WriteString("|---|---|---:|---:|---:|\n")
	for _, e := range series {
		fmt.Fprintf(b, "| %s | %s | %.1f°C | %.1f mm | %.1f m/s |\n",
			e.Time.UTC().Format("Mon 15:04"), icon(e.Condition),
			e.TemperatureC, e.PrecipMm, e.WindSpeedMS)
	}
}

func renderSummary(b *strings.Builder, r Request) {
	days := weather.SummarizeDays(r.Series)
	fmt.Fprintf(b, "## %s, %d days\n\n", r.Name, len(days))

	highs := make([]float64, len(days))
	for i, d := range days {
		highs[i] = d.MaxTempC
	}
	fmt.Fprintf(b, "```\n%s\n```\n\n", sparkline(highs, r.Palette))

	b.WriteString("| Day | | Low | High | Precip | Wind |\n")
	b.WriteString("|---|---|---:|---:|---:|---:|\n")
	for _, d := range days {
		fmt.Fprintf(b, "| %s | %s | %.0f°C | %.0f°C | %.1f mm | %.0f m/s |\n",
			d.Date, icon(d.Condition), d.MinTempC, d.MaxTempC, d.PrecipMm, d.MaxWindMS)
	}
}

func renderSun(b *strings.Builder, sun map[string]weather.SunTimes) {
	if len(sun) == 0 {
		return
	}
	dates := make([]string, 0, len(sun))
	for d := range sun {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	b.WriteString("\n")
	for _, d := range dates {
		st := sun[d]
		rise, set := "n/a", "n/a"
		if !st.Sunrise.IsZero() {
			rise = st.Sunrise.UTC().Format("15:04")
		}
		if !st.Sunset.IsZero() {
			set = st.Sunset.UTC().Format("15:04")
		}
		fmt.Fprintf(b, "- %s: sunrise %s, sunset %s (UTC)\n", d, rise, set)
	}
}

func sparkline(values []float64, p Palette) string {
	glyphs, ok := sparkGlyphs[p]
	if !ok {
		glyphs = sparkGlyphs[PaletteLight]
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	out := make([]rune, len(values))
	for i, v := range values {
		level := 0
		if hi > lo {
			level = int((v - lo) / (hi - lo) * float64(len(glyphs)-1))
		}
		out[i] = glyphs[level]
	}
	return string(out)
}

func icon(c weather.Condition) string {
	if s, ok := conditionIcons[c]; ok {
		return s
	}
	return conditionIcons[weather.ConditionUnknown]
}
