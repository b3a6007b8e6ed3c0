package aggregator

import (
	"github.com/dennisdiepolder/monti/cdrinsight/internal/cdr"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/temporal"
)

// HoursPerDay is the number of hour slots in every hourly series
const HoursPerDay = 24

// DaysPerWeek is the number of weekday slots, 0=Sunday
const DaysPerWeek = 7

// HourlySeries is the per-hour call count of one disposition
type HourlySeries struct {
	Disposition string           `json:"disposition"`
	Counts      [HoursPerDay]int `json:"counts"`
}

func hourOf(x temporal.Extractor, rec cdr.Record) (int, bool) {
	h, ok := x.Hour(rec.CallDate)
	if !ok || h < 0 || h >= HoursPerDay {
		return 0, false
	}
	return h, true
}

// HourlyByDisposition builds one 24-slot series per tracked disposition.
// Records with no parsable hour or an untracked disposition are skipped.
func HourlyByDisposition(records []cdr.Record, x temporal.Extractor) []HourlySeries {
	series := make([]HourlySeries, len(cdr.TrackedDispositions))
	idx := make(map[string]int, len(cdr.TrackedDispositions))
	for i, d := range cdr.TrackedDispositions {
		series[i].Disposition = d
		idx[d] = i
	}

	for _, rec := range records {
		i, tracked := idx[rec.Disposition]
		if !tracked {
			continue
		}
		h, ok := hourOf(x, rec)
		if !ok {
			continue
		}
		series[i].Counts[h]++
	}
	return series
}

// HourlyTotals counts every record per hour regardless of disposition
func HourlyTotals(records []cdr.Record, x temporal.Extractor) [HoursPerDay]int {
	var out [HoursPerDay]int
	for _, rec := range records {
		if h, ok := hourOf(x, rec); ok {
			out[h]++
		}
	}
	return out
}

// HourlyAverageDuration averages billsec per hour slot, 0 for empty slots
func HourlyAverageDuration(records []cdr.Record, x temporal.Extractor) [HoursPerDay]int {
	var sum, count [HoursPerDay]int
	for _, rec := range records {
		h, ok := hourOf(x, rec)
		if !ok {
			continue
		}
		sum[h] += rec.BillSeconds()
		count[h]++
	}

	var out [HoursPerDay]int
	for h := range out {
		if count[h] > 0 {
			out[h] = round(float64(sum[h]) / float64(count[h]))
		}
	}
	return out
}

// WeekdayHistogram counts records per weekday, 0=Sunday
func WeekdayHistogram(records []cdr.Record, x temporal.Extractor) [DaysPerWeek]int {
	var out [DaysPerWeek]int
	for _, rec := range records {
		wd, ok := x.Weekday(rec.CallDate)
		if !ok || wd < 0 || wd >= DaysPerWeek {
			continue
		}
		out[wd]++
	}
	return out
}
