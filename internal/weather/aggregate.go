package weather

import (
	"time"

	"github.com/i474232898/weather-favorites/internal/common"
)

// DateLayout formats dates used as map keys and cache key segments.
const DateLayout = "2006-01-02"

// SummarizeDays groups series by UTC day and aggregates each group:
// temperature range, total precipitation, strongest wind and the majority
// condition (first seen wins on ties). Days are returned in order.
func SummarizeDays(series []TimeseriesEntry) []DailySummary {
	var (
		out   []DailySummary
		idx   = make(map[string]int)
		conds = make(map[string]map[Condition]int)
		order = make(map[string][]Condition)
	)

	for _, e := range series {
		day := e.Time.UTC().Format(DateLayout)
		i, ok := idx[day]
		if !ok {
			i = len(out)
			idx[day] = i
			out = append(out, DailySummary{
				Date:     day,
				MinTempC: e.TemperatureC,
				MaxTempC: e.TemperatureC,
			})
			conds[day] = make(map[Condition]int)
		}

		s := &out[i]
		if e.TemperatureC < s.MinTempC {
			s.MinTempC = e.TemperatureC
		}
		if e.TemperatureC > s.MaxTempC {
			s.MaxTempC = e.TemperatureC
		}
		if e.WindSpeedMS > s.MaxWindMS {
			s.MaxWindMS = e.WindSpeedMS
		}
		s.PrecipMm += e.PrecipMm
		s.EntriesCount++

		if conds[day][e.Condition] == 0 {
			order[day] = append(order[day], e.Condition)
		}
		conds[day][e.Condition]++
	}

	for i := range out {
		day := out[i].Date
		best := ConditionUnknown
		bestCount := 0
		for _, c := range order[day] {
			if n := conds[day][c]; n > bestCount {
				best, bestCount = c, n
			}
		}
		out[i].Condition = best
	}
	return out
}

// FilterDate returns the entries falling on date (YYYY-MM-DD, UTC).
func FilterDate(series []TimeseriesEntry, date string) []TimeseriesEntry {
	var out []TimeseriesEntry
	for _, e := range series {
		if e.Time.UTC().Format(DateLayout) == date {
			out = append(out, e)
		}
	}
	return out
}

// Window returns up to hours entries starting at the first entry not
// before from.
func Window(series []TimeseriesEntry, from time.Time, hours int) []TimeseriesEntry {
	from = from.Truncate(time.Hour)
	start := len(series)
	for i, e := range series {
		if !e.Time.Before(from) {
			start = i
			break
		}
	}
	end := start + hours
	if hours <= 0 || end > len(series) {
		end = len(series)
	}
	return series[start:end]
}

// ConditionFromSymbol maps a met.no symbol code such as
// "lightrainshowers_day" to a Condition.
func ConditionFromSymbol(symbol string) Condition {
	switch s := symbol; {
	case s == "":
		return ConditionUnknown
	case common.HasAnyFold(s, "thunder"):
		return ConditionStorm
	case common.HasAnyFold(s, "snow", "sleet"):
		return ConditionSnow
	case common.HasAnyFold(s, "rain"):
		return ConditionRain
	case common.HasAnyFold(s, "fog"):
		return ConditionMist
	case common.HasAnyFold(s, "cloudy"):
		return ConditionCloudy
	case common.HasAnyFold(s, "clearsky", "fair"):
		return ConditionClear
	default:
		return ConditionUnknown
	}
}
