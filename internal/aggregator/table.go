package aggregator

import "github.com/dennisdiepolder/monti/cdrinsight/internal/cdr"

// DefaultTableLimit caps the number of rows in a call table
const DefaultTableLimit = 1000

// CallRow is one displayed call
type CallRow struct {
	CallDate    string `json:"calldate"`
	Source      string `json:"src"`
	Destination string `json:"destination"`
	Disposition string `json:"disposition"`
	Duration    string `json:"duration"`
	BillSec     string `json:"billsec"`
}

// CallTable is the head of the filtered set, in input order
type CallTable struct {
	Rows      []CallRow `json:"rows"`
	Total     int       `json:"total"`
	Truncated bool      `json:"truncated"`
}

// BuildCallTable projects at most limit records for display.
// A non-positive limit means DefaultTableLimit.
func BuildCallTable(records []cdr.Record, limit int) CallTable {
	if limit <= 0 {
		limit = DefaultTableLimit
	}
	n := len(records)
	if n > limit {
		n = limit
	}

	rows := make([]CallRow, 0, n)
	for _, rec := range records[:n] {
		rows = append(rows, CallRow{
			CallDate:    rec.CallDate,
			Source:      rec.Source,
			Destination: rec.DisplayDestination(),
			Disposition: rec.Disposition,
			Duration:    rec.Duration,
			BillSec:     rec.BillSec,
		})
	}
	return CallTable{
		Rows:      rows,
		Total:     len(records),
		Truncated: len(records) > limit,
	}
}
