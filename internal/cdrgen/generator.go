// Package cdrgen generates synthetic call detail records with realistic
// disposition mixes and hour-of-day load curves.
package cdrgen

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/cdr"
)

// Header is the column layout of generated datasets
var Header = []string{
	cdr.ColCallDate, cdr.ColSource, cdr.ColDestination,
	cdr.ColDisposition, cdr.ColDuration, cdr.ColBillSec,
}

// Weight pairs a value with a relative weight for distribution
type Weight struct {
	Value  string
	Weight float64
}

// Config controls a generation run
type Config struct {
	Count int
	Start time.Time
	Days  int
	Seed  int64

	// Destinations are the called extensions
	Destinations []Weight

	// Dispositions is the outcome mix
	Dispositions []Weight

	// Callers is the size of the calling number pool
	Callers int

	// PeakHours get PeakHourFactor times the business-hour load
	PeakHours      []int
	PeakHourFactor float64
}

// DefaultConfig returns a week of traffic to a small PBX
func DefaultConfig() Config {
	return Config{
		Count: 500,
		Start: time.Date(2025, 10, 27, 0, 0, 0, 0, time.UTC),
		Days:  7,
		Seed:  1,
		Destinations: []Weight{
			{"100", 5}, {"101", 4}, {"102", 3}, {"200", 2}, {"201", 2}, {"300", 1},
		},
		Dispositions: []Weight{
			{cdr.Answered, 60}, {cdr.NoAnswer, 25}, {cdr.Busy, 10}, {cdr.Failed, 5},
		},
		Callers:        40,
		PeakHours:      []int{10, 11, 15},
		PeakHourFactor: 2.0,
	}
}

// Call is one generated call
type Call struct {
	ID          int
	Time        time.Time
	Source      string
	Destination string
	Disposition string
	Duration    int
	BillSec     int
}

// Generator creates calls from a seeded source
type Generator struct {
	cfg         Config
	rng         *rand.Rand
	hourWeights []Weight
}

// New validates cfg and creates a Generator
func New(cfg Config) (*Generator, error) {
	if cfg.Count < 0 {
		return nil, errors.New("count must not be negative")
	}
	if cfg.Days <= 0 {
		return nil, errors.New("days must be positive")
	}
	if len(cfg.Destinations) == 0 || len(cfg.Dispositions) == 0 {
		return nil, errors.New("destinations and dispositions are required")
	}
	if cfg.Callers <= 0 {
		cfg.Callers = 1
	}
	if cfg.PeakHourFactor <= 0 {
		cfg.PeakHourFactor = 1.0
	}

	return &Generator{
		cfg:         cfg,
		rng:         rand.New(rand.NewSource(cfg.Seed)),
		hourWeights: hourWeights(cfg.PeakHours, cfg.PeakHourFactor),
	}, nil
}

// hourWeights models office traffic: low at night, flat during business
// hours, multiplied at peak hours
func hourWeights(peaks []int, factor float64) []Weight {
	w := make([]Weight, 24)
	for h := range w {
		weight := 0.1
		if h >= 8 && h < 19 {
			weight = 1.0
		}
		w[h] = Weight{Value: fmt.Sprint(h), Weight: weight}
	}
	for _, h := range peaks {
		if h >= 0 && h < 24 {
			w[h].Weight *= factor
		}
	}
	return w
}

// Calls generates cfg.Count calls sorted by time
func (g *Generator) Calls() []Call {
	calls := make([]Call, g.cfg.Count)
	for i := range calls {
		calls[i] = g.call()
	}
	sort.SliceStable(calls, func(i, j int) bool { return calls[i].Time.Before(calls[j].Time) })
	for i := range calls {
		calls[i].ID = i + 1
	}
	return calls
}

func (g *Generator) call() Call {
	day := g.rng.Intn(g.cfg.Days)
	var hour int
	fmt.Sscan(pick(g.rng, g.hourWeights), &hour)
	ts := g.cfg.Start.AddDate(0, 0, day).
		Add(time.Duration(hour)*time.Hour +
			time.Duration(g.rng.Intn(60))*time.Minute +
			time.Duration(g.rng.Intn(60))*time.Second)

	c := Call{
		Time:        ts,
		Source:      fmt.Sprintf("555%04d", g.rng.Intn(g.cfg.Callers)),
		Destination: pick(g.rng, g.cfg.Destinations),
		Disposition: pick(g.rng, g.cfg.Dispositions),
	}

	switch c.Disposition {
	case cdr.Answered:
		ring := g.rng.Intn(20)
		// exponential talk time, mean two minutes
		talk := int(math.Min(g.rng.ExpFloat64()*120, 3600)) + 1
		c.Duration, c.BillSec = ring+talk, talk
	case cdr.NoAnswer:
		c.Duration = 15 + g.rng.Intn(31)
	case cdr.Busy:
		c.Duration = g.rng.Intn(6)
	}
	return c
}

// pick selects a value based on the configured weights
func pick(rng *rand.Rand, weights []Weight) string {
	var total float64
	for _, w := range weights {
		total += w.Weight
	}

	r := rng.Float64() * total
	for _, w := range weights {
		r -= w.Weight
		if r <= 0 {
			return w.Value
		}
	}
	return weights[len(weights)-1].Value
}

// CallDate renders t the way PBX exports write calldate: DD/MM/YY, H:MM
func CallDate(t time.Time) string {
	return fmt.Sprintf("%s, %d:%02d", t.Format("02/01/06"), t.Hour(), t.Minute())
}

// Dataset converts calls into the tabular upload shape. Durations are
// numeric cells as a PBX JSON export would carry them.
func Dataset(calls []Call) cdr.Dataset {
	rows := make([][]any, len(calls))
	for i, c := range calls {
		rows[i] = []any{CallDate(c.Time), c.Source, c.Destination, c.Disposition, c.Duration, c.BillSec}
	}
	return cdr.Dataset{Header: Header, Rows: rows}
}
