// Package export renders analytics snapshots as XLSX workbooks and ships
// them to an S3-compatible bucket.
package export

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/aggregator"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/cdr"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/pipeline"
)

// ContentType is the MIME type of the rendered workbook
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sheet names in workbook order
const (
	SheetSummary      = "summary"
	SheetDispositions = "dispositions"
	SheetDestinations = "top_destinations"
	SheetSources      = "top_sources"
	SheetRollup       = "destination_rollup"
	SheetHourly       = "hourly"
	SheetWeekday      = "weekday"
	SheetHeatmap      = "heatmap"
	SheetCalls        = "calls"
)

var weekdayNames = [aggregator.DaysPerWeek]string{
	"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday",
}

// Workbook builds an excelize workbook of snap. The calls sheet holds at
// most limit rows.
func Workbook(snap *pipeline.Snapshot, limit int) (*excelize.File, error) {
	x := excelize.NewFile()
	var err error
	add := func(name string, rows [][]any) {
		if err != nil {
			return
		}
		if _, err = x.NewSheet(name); err != nil {
			return
		}
		for r, row := range rows {
			for c, v := range row {
				cell, cerr := excelize.CoordinatesToCellName(c+1, r+1)
				if cerr != nil {
					err = cerr
					return
				}
				if err = x.SetCellValue(name, cell, v); err != nil {
					return
				}
			}
		}
	}

	add(SheetSummary, summaryRows(snap))
	add(SheetDispositions, bucketRows("disposition", snap.Dispositions))
	add(SheetDestinations, bucketRows("destination", snap.TopDestinations))
	add(SheetSources, bucketRows("source", snap.TopSources))
	add(SheetRollup, rollupRows(snap.DestinationRollup))
	add(SheetHourly, hourlyRows(snap))
	add(SheetWeekday, weekdayRows(snap.Weekdays))
	add(SheetHeatmap, heatmapRows(snap.Heatmap))
	add(SheetCalls, callRows(snap.Calls(limit)))
	if err != nil {
		x.Close()
		return nil, fmt.Errorf("failed to build workbook: %w", err)
	}

	if err := x.DeleteSheet("Sheet1"); err != nil {
		x.Close()
		return nil, fmt.Errorf("failed to build workbook: %w", err)
	}
	if idx, err := x.GetSheetIndex(SheetSummary); err == nil {
		x.SetActiveSheet(idx)
	}
	return x, nil
}

// Write renders snap as XLSX into w
func Write(w io.Writer, snap *pipeline.Snapshot, limit int) error {
	x, err := Workbook(snap, limit)
	if err != nil {
		return err
	}
	defer x.Close()

	if _, err := x.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// Render returns the XLSX bytes of snap
func Render(snap *pipeline.Snapshot, limit int) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, snap, limit); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileName is the download name of a snapshot workbook
func FileName(snap *pipeline.Snapshot, now time.Time) string {
	return fmt.Sprintf("cdr-report-%s-g%d.xlsx", now.UTC().Format("20060102-150405"), snap.Generation)
}

func summaryRows(snap *pipeline.Snapshot) [][]any {
	k := snap.KPIs
	t := snap.Totals
	rows := [][]any{
		{"metric", "value"},
		{"dataset_id", snap.DatasetID},
		{"generation", snap.Generation},
		{"records", snap.RecordCount},
		{"filtered_calls", t.Total},
		{"answered_calls", t.Answered},
		{"bill_seconds", t.BillSeconds},
		{"bill_minutes", t.BillMinutes},
		{"avg_duration", t.AvgDuration},
		{"success_rate", k.SuccessRate},
		{"no_answer_rate", k.NoAnswerRate},
		{"failed_rate", k.FailedRate},
		{"busy_rate", k.BusyRate},
		{"peak_hour", k.PeakHour},
		{"peak_hour_calls", k.PeakHourCalls},
		{"busiest_destination", k.BusiestDestination},
		{"busiest_destination_calls", k.BusiestDestinationCalls},
		{"avg_wait_time", k.AvgWaitTime},
		{"filter_disposition", snap.Filters.Disposition},
		{"filter_source", snap.Filters.Source},
		{"filter_min_duration", snap.Filters.MinDuration},
		{"filter_destinations", fmt.Sprint(snap.Filters.Destinations)},
	}
	for _, a := range snap.Alerts {
		rows = append(rows, []any{"alert_" + a.Rule, a.Severity + ": " + a.Message})
	}
	return rows
}

func bucketRows(key string, buckets []aggregator.Bucket) [][]any {
	rows := [][]any{{key, "calls"}}
	for _, b := range buckets {
		rows = append(rows, []any{b.Key, b.Count})
	}
	return rows
}

func rollupRows(in []aggregator.DestinationRow) [][]any {
	rows := [][]any{{"destination", "total", "answered", "no_answer", "failed", "busy", "other", "bill_seconds", "avg_duration", "success_rate"}}
	for _, r := range in {
		rows = append(rows, []any{r.Destination, r.Total, r.Answered, r.NoAnswer, r.Failed, r.Busy, r.Other, r.BillSeconds, r.AvgDuration, r.SuccessRate})
	}
	return rows
}

func hourlyRows(snap *pipeline.Snapshot) [][]any {
	header := []any{"hour"}
	for _, s := range snap.Hourly {
		header = append(header, s.Disposition)
	}
	header = append(header, "avg_duration")

	rows := [][]any{header}
	for h := 0; h < aggregator.HoursPerDay; h++ {
		row := []any{h}
		for _, s := range snap.Hourly {
			row = append(row, s.Counts[h])
		}
		row = append(row, snap.HourlyAvgDuration[h])
		rows = append(rows, row)
	}
	return rows
}

func weekdayRows(days [aggregator.DaysPerWeek]int) [][]any {
	rows := [][]any{{"weekday", "calls"}}
	for d, n := range days {
		rows = append(rows, []any{weekdayNames[d], n})
	}
	return rows
}

func heatmapRows(m aggregator.Heatmap) [][]any {
	header := []any{"weekday"}
	for h := 0; h < aggregator.HoursPerDay; h++ {
		header = append(header, h)
	}
	rows := [][]any{header}
	for d := range m {
		row := []any{weekdayNames[d]}
		for _, v := range m[d] {
			row = append(row, v)
		}
		rows = append(rows, row)
	}
	return rows
}

func callRows(t aggregator.CallTable) [][]any {
	rows := [][]any{{cdr.ColCallDate, cdr.ColSource, cdr.ColDestination, cdr.ColDisposition, cdr.ColDuration, cdr.ColBillSec}}
	for _, r := range t.Rows {
		rows = append(rows, []any{r.CallDate, r.Source, r.Destination, r.Disposition, r.Duration, r.BillSec})
	}
	return rows
}
