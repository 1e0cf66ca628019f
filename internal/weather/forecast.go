package weather

import (
	"time"
)

const dateLayout = "2006-01-02"

// AggregateForecast groups 3-hour forecast entries into calendar days in loc
// and summarises each day. Days are emitted in the order they first appear in
// entries. A nil loc means time.Local.
func AggregateForecast(entries []ForecastEntry, loc *time.Location) []DailyForecast {
	if loc == nil {
		loc = time.Local
	}

	days := make([]DailyForecast, 0)
	index := make(map[string]int)

	for _, e := range entries {
		date := time.Unix(e.Dt, 0).In(loc).Format(dateLayout)
		i, ok := index[date]
		if !ok {
			i = len(days)
			index[date] = i
			days = append(days, DailyForecast{
				Date:    date,
				MinTemp: e.Main.TempMin,
				MaxTemp: e.Main.TempMax,
			})
		}
		d := &days[i]
		if e.Main.TempMin < d.MinTemp {
			d.MinTemp = e.Main.TempMin
		}
		if e.Main.TempMax > d.MaxTemp {
			d.MaxTemp = e.Main.TempMax
		}
		d.Hourly = append(d.Hourly, e)
	}

	for i := range days {
		days[i].Weather = dominantCondition(days[i].Hourly)
	}

	return days
}

// dominantCondition returns the condition whose id occurs most often. Ties go
// to the id seen first; the returned object is that id's first occurrence.
func dominantCondition(entries []ForecastEntry) Condition {
	counts := make(map[int]int)
	var order []int
	first := make(map[int]Condition)

	for _, e := range entries {
		if len(e.Weather) == 0 {
			continue
		}
		c := e.Weather[0]
		if _, seen := counts[c.ID]; !seen {
			order = append(order, c.ID)
			first[c.ID] = c
		}
		counts[c.ID]++
	}

	var best Condition
	bestCount := 0
	for _, id := range order {
		if counts[id] > bestCount {
			bestCount = counts[id]
			best = first[id]
		}
	}
	return best
}

// ForecastLocation returns the zone used to bucket a forecast. When
// useCityOffset is set, the forecast city's own UTC offset wins over fallback.
func ForecastLocation(f *ForecastResponse, fallback *time.Location, useCityOffset bool) *time.Location {
	if useCityOffset && f != nil {
		return time.FixedZone(f.City.Name, f.City.Timezone)
	}
	return fallback
}
