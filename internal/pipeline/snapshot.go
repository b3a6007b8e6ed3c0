// Package pipeline filters a loaded CDR dataset and runs every
// aggregator over the result, publishing one consistent Snapshot per
// dataset or filter change.
package pipeline

import (
	"fmt"
	"runtime"
	"slices"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/aggregator"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/alerts"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/cdr"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/filter"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/temporal"
)

// Section names, as listed in Snapshot.Failed
const (
	SectionTotals          = "totals"
	SectionDispositions    = "dispositions"
	SectionTopDestinations = "topDestinations"
	SectionTopSources      = "topSources"
	SectionHourly          = "hourly"
	SectionHourlyAvg       = "hourlyAvgDuration"
	SectionWeekdays        = "weekdays"
	SectionHeatmap         = "heatmap"
	SectionRollup          = "destinationRollup"
	SectionKPIs            = "kpis"
)

// Snapshot is the full set of aggregates for one (dataset, filter) pair.
// It is never mutated after publication.
type Snapshot struct {
	DatasetID  string       `json:"datasetId"`
	Generation uint64       `json:"generation"`
	Filters    filter.State `json:"filters"`

	// RecordCount is the size of the unfiltered dataset
	RecordCount int `json:"recordCount"`

	Totals            aggregator.Totals           `json:"totals"`
	Dispositions      []aggregator.Bucket         `json:"dispositions"`
	TopDestinations   []aggregator.Bucket         `json:"topDestinations"`
	TopSources        []aggregator.Bucket         `json:"topSources"`
	Hourly            []aggregator.HourlySeries   `json:"hourly"`
	HourlyAvgDuration [aggregator.HoursPerDay]int `json:"hourlyAvgDuration"`
	Weekdays          [aggregator.DaysPerWeek]int `json:"weekdays"`
	Heatmap           aggregator.Heatmap          `json:"heatmap"`
	HeatmapLevels     aggregator.Heatmap          `json:"heatmapLevels"`
	DestinationRollup []aggregator.DestinationRow `json:"destinationRollup"`
	KPIs              aggregator.KPIs             `json:"kpis"`

	// Alerts are the KPI rules this snapshot trips
	Alerts []alerts.Alert `json:"alerts,omitempty"`

	// Failed names the sections whose aggregator panicked. Those
	// sections hold their zero value.
	Failed []string `json:"failed,omitempty"`

	filtered []cdr.Record
}

// Filtered returns the filtered records the snapshot was built from.
// Callers must not modify the returned slice.
func (s *Snapshot) Filtered() []cdr.Record {
	return s.filtered
}

// Calls returns the call table view of the filtered set
func (s *Snapshot) Calls(limit int) aggregator.CallTable {
	return aggregator.BuildCallTable(s.filtered, limit)
}

// CallsView is the call table tagged with the snapshot it came from
type CallsView struct {
	DatasetID  string `json:"datasetId"`
	Generation uint64 `json:"generation"`
	aggregator.CallTable
}

// Options tune a recompute
type Options struct {
	// Extractor defaults to temporal.Default
	Extractor temporal.Extractor

	// Parallel runs the aggregators concurrently
	Parallel bool

	// Alerts are checked against the KPIs of every snapshot
	Alerts alerts.Rules

	Logger zerolog.Logger
}

type section struct {
	name string
	run  func(in []cdr.Record, x temporal.Extractor, s *Snapshot)
}

var sections = []section{
	{SectionTotals, func(in []cdr.Record, _ temporal.Extractor, s *Snapshot) {
		s.Totals = aggregator.ComputeTotals(in)
	}},
	{SectionDispositions, func(in []cdr.Record, _ temporal.Extractor, s *Snapshot) {
		s.Dispositions = aggregator.DispositionHistogram(in)
	}},
	{SectionTopDestinations, func(in []cdr.Record, _ temporal.Extractor, s *Snapshot) {
		s.TopDestinations = aggregator.TopDestinations(in)
	}},
	{SectionTopSources, func(in []cdr.Record, _ temporal.Extractor, s *Snapshot) {
		s.TopSources = aggregator.TopSources(in)
	}},
	{SectionHourly, func(in []cdr.Record, x temporal.Extractor, s *Snapshot) {
		s.Hourly = aggregator.HourlyByDisposition(in, x)
	}},
	{SectionHourlyAvg, func(in []cdr.Record, x temporal.Extractor, s *Snapshot) {
		s.HourlyAvgDuration = aggregator.HourlyAverageDuration(in, x)
	}},
	{SectionWeekdays, func(in []cdr.Record, x temporal.Extractor, s *Snapshot) {
		s.Weekdays = aggregator.WeekdayHistogram(in, x)
	}},
	{SectionHeatmap, func(in []cdr.Record, x temporal.Extractor, s *Snapshot) {
		m := aggregator.BuildHeatmap(in, x)
		s.Heatmap, s.HeatmapLevels = m, m.Levels()
	}},
	{SectionRollup, func(in []cdr.Record, _ temporal.Extractor, s *Snapshot) {
		s.DestinationRollup = aggregator.DestinationRollup(in)
	}},
	{SectionKPIs, func(in []cdr.Record, x temporal.Extractor, s *Snapshot) {
		s.KPIs = aggregator.ComputeKPIs(in, x)
	}},
}

// Recompute filters records once and builds a Snapshot from the result.
// Each aggregator runs in isolation: a panic leaves that section at its
// zero value, records its name in Failed and does not affect the others.
// The returned snapshot carries no DatasetID or Generation.
func Recompute(records []cdr.Record, st filter.State, opts Options) *Snapshot {
	return recompute(records, st, opts, sections)
}

func recompute(records []cdr.Record, st filter.State, opts Options, secs []section) *Snapshot {
	x := opts.Extractor
	if x == nil {
		x = temporal.Default
	}
	st = st.Normalized()

	snap := &Snapshot{
		Filters:     st,
		RecordCount: len(records),
		filtered:    filter.Apply(records, st),
	}

	var (
		mu     sync.Mutex
		failed []string
	)
	runOne := func(sec section) {
		defer func() {
			if r := recover(); r != nil {
				opts.Logger.Error().
					Str("section", sec.name).
					Str("panic", fmt.Sprint(r)).
					Msg("aggregator failed")
				mu.Lock()
				failed = append(failed, sec.name)
				mu.Unlock()
			}
		}()
		sec.run(snap.filtered, x, snap)
	}

	if opts.Parallel {
		var g errgroup.Group
		g.SetLimit(runtime.GOMAXPROCS(0))
		for _, sec := range secs {
			g.Go(func() error {
				runOne(sec)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, sec := range secs {
			runOne(sec)
		}
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		snap.Failed = failed
	}
	if !slices.Contains(failed, SectionKPIs) {
		snap.Alerts = alerts.Check(snap.KPIs, opts.Alerts)
	}
	return snap
}
