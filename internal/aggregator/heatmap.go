package aggregator

import (
	"github.com/dennisdiepolder/monti/cdrinsight/internal/cdr"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/temporal"
)

// HeatmapLevelCount is the number of discrete display intensities
const HeatmapLevelCount = 6

// Heatmap is a weekday x hour call count matrix
type Heatmap [DaysPerWeek][HoursPerDay]int

// BuildHeatmap increments (weekday, hour) for every record where both parse
func BuildHeatmap(records []cdr.Record, x temporal.Extractor) Heatmap {
	var m Heatmap
	for _, rec := range records {
		wd, h, ok := temporal.WeekdayHour(x, rec.CallDate)
		if !ok || wd < 0 || wd >= DaysPerWeek || h < 0 || h >= HoursPerDay {
			continue
		}
		m[wd][h]++
	}
	return m
}

// Max returns the largest cell
func (m Heatmap) Max() int {
	peak := 0
	for _, row := range m {
		for _, v := range row {
			if v > peak {
				peak = v
			}
		}
	}
	return peak
}

// Sum returns the total of all cells
func (m Heatmap) Sum() int {
	sum := 0
	for _, row := range m {
		for _, v := range row {
			sum += v
		}
	}
	return sum
}

// Levels maps each cell linearly onto 0..HeatmapLevelCount-1. The maximum
// cell lands on the last level; an all-zero matrix is all level 0.
func (m Heatmap) Levels() Heatmap {
	var out Heatmap
	peak := m.Max()
	if peak == 0 {
		return out
	}
	for d, row := range m {
		for h, v := range row {
			lvl := v * HeatmapLevelCount / peak
			if lvl >= HeatmapLevelCount {
				lvl = HeatmapLevelCount - 1
			}
			out[d][h] = lvl
		}
	}
	return out
}
