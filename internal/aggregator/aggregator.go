// Package aggregator holds the stateless reducers that turn a filtered
// set of call records into chart and table data. Every function here is
// pure; absent or non-numeric numeric fields count as 0.
package aggregator

import (
	"math"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/cdr"
)

// TopN is the length of every ranked output
const TopN = 10

// Bucket is one key of a histogram or ranking
type Bucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Totals are the headline counters of a filtered set
type Totals struct {
	Total       int `json:"total"`
	Answered    int `json:"answered"`
	BillSeconds int `json:"billSeconds"`
	BillMinutes int `json:"billMinutes"`
	// AvgDuration is billable seconds per answered call
	AvgDuration int `json:"avgDuration"`
}

// ComputeTotals sums counts and billable time
func ComputeTotals(records []cdr.Record) Totals {
	t := Totals{Total: len(records)}
	for _, rec := range records {
		if rec.IsAnswered() {
			t.Answered++
		}
		t.BillSeconds += rec.BillSeconds()
	}
	t.BillMinutes = round(float64(t.BillSeconds) / 60)
	if t.Answered > 0 {
		t.AvgDuration = round(float64(t.BillSeconds) / float64(t.Answered))
	}
	return t
}

// DispositionHistogram counts records per disposition in first-seen order.
// Records without a disposition are counted under cdr.Unknown, so the
// counts always sum to len(records).
func DispositionHistogram(records []cdr.Record) []Bucket {
	idx := make(map[string]int)
	out := []Bucket{}
	for _, rec := range records {
		key := rec.Disposition
		if !rec.Has(cdr.FieldDisposition) || key == "" {
			key = cdr.Unknown
		}
		i, ok := idx[key]
		if !ok {
			i = len(out)
			idx[key] = i
			out = append(out, Bucket{Key: key})
		}
		out[i].Count++
	}
	return out
}

// round matches JavaScript Math.round: halves go towards +Inf
func round(x float64) int {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return int(math.Floor(x + 0.5))
}

// round1 rounds to one decimal place
func round1(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return math.Floor(x*10+0.5) / 10
}

// percent returns part/total*100 with one decimal, 0 when total is 0
func percent(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(part) / float64(total) * 100)
}
