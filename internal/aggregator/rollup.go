package aggregator

import (
	"sort"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/cdr"
)

// DestinationRow is the per-destination table row
type DestinationRow struct {
	Destination string `json:"destination"`
	Total       int    `json:"total"`
	Answered    int    `json:"answered"`
	NoAnswer    int    `json:"noAnswer"`
	Failed      int    `json:"failed"`
	Busy        int    `json:"busy"`
	Other       int    `json:"other"`
	BillSeconds int    `json:"billSeconds"`
	// AvgDuration is billable seconds per answered call
	AvgDuration int `json:"avgDuration"`
	// SuccessRate is answered/total as a percentage with one decimal
	SuccessRate float64 `json:"successRate"`
}

// DestinationRollup aggregates calls per destination, ordered by total
// calls descending (ties in first-seen order) and truncated to TopN.
// Records without a destination are left out.
func DestinationRollup(records []cdr.Record) []DestinationRow {
	idx := make(map[string]int)
	var rows []DestinationRow
	for _, rec := range records {
		if rec.Destination == "" {
			continue
		}
		i, ok := idx[rec.Destination]
		if !ok {
			i = len(rows)
			idx[rec.Destination] = i
			rows = append(rows, DestinationRow{Destination: rec.Destination})
		}

		row := &rows[i]
		row.Total++
		row.BillSeconds += rec.BillSeconds()
		switch rec.Disposition {
		case cdr.Answered:
			row.Answered++
		case cdr.NoAnswer:
			row.NoAnswer++
		case cdr.Failed:
			row.Failed++
		case cdr.Busy:
			row.Busy++
		default:
			row.Other++
		}
	}

	for i := range rows {
		row := &rows[i]
		if row.Answered > 0 {
			row.AvgDuration = round(float64(row.BillSeconds) / float64(row.Answered))
		}
		row.SuccessRate = percent(row.Answered, row.Total)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Total > rows[j].Total
	})
	if len(rows) > TopN {
		rows = rows[:TopN]
	}
	if rows == nil {
		rows = []DestinationRow{}
	}
	return rows
}
