package cdrgen

import (
	"context"
	"database/sql"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/aggregator"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/cdr"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/config"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/source"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/temporal"
)

func generate(t *testing.T, cfg Config) []Call {
	t.Helper()
	g, err := New(cfg)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	return g.Calls()
}

func TestGeneratorDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	a := generate(t, cfg)
	b := generate(t, cfg)
	if !reflect.DeepEqual(a, b) {
		t.Error("expected identical calls for the same seed")
	}

	cfg.Seed = 2
	if reflect.DeepEqual(a, generate(t, cfg)) {
		t.Error("expected different calls for a different seed")
	}
}

func TestGeneratorCalls(t *testing.T) {
	cfg := DefaultConfig()
	calls := generate(t, cfg)

	if len(calls) != cfg.Count {
		t.Fatalf("expected %d calls, got %d", cfg.Count, len(calls))
	}

	end := cfg.Start.AddDate(0, 0, cfg.Days)
	for i, c := range calls {
		if c.ID != i+1 {
			t.Errorf("call %d: expected sequential id, got %d", i, c.ID)
		}
		if i > 0 && c.Time.Before(calls[i-1].Time) {
			t.Errorf("call %d is out of order", i)
		}
		if c.Time.Before(cfg.Start) || !c.Time.Before(end) {
			t.Errorf("call %d at %v outside window", i, c.Time)
		}
		if c.BillSec > c.Duration {
			t.Errorf("call %d billsec %d exceeds duration %d", i, c.BillSec, c.Duration)
		}
		if c.Disposition != cdr.Answered && c.BillSec != 0 {
			t.Errorf("call %d (%s) has billsec %d", i, c.Disposition, c.BillSec)
		}
		if c.Disposition == cdr.Answered && c.BillSec == 0 {
			t.Errorf("answered call %d has no talk time", i)
		}
	}
}

func TestGeneratorPeakHours(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Count = 5000
	cfg.PeakHours = []int{10}
	cfg.PeakHourFactor = 4

	recs, err := cdr.NormalizeDataset(Dataset(generate(t, cfg)))
	if err != nil {
		t.Fatalf("NormalizeDataset returned error: %v", err)
	}
	hour, _ := aggregator.PeakHour(aggregator.HourlyTotals(recs, temporal.Default))
	if hour != 10 {
		t.Errorf("expected peak hour 10, got %d", hour)
	}
}

func TestGeneratorValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"negative count", func(c *Config) { c.Count = -1 }},
		{"no days", func(c *Config) { c.Days = 0 }},
		{"no destinations", func(c *Config) { c.Destinations = nil }},
		{"no dispositions", func(c *Config) { c.Dispositions = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if _, err := New(cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCallDate(t *testing.T) {
	ts := time.Date(2025, 10, 31, 9, 5, 0, 0, time.UTC)
	got := CallDate(ts)
	if got != "31/10/25, 9:05" {
		t.Fatalf("unexpected calldate %q", got)
	}

	wd, hour, ok := temporal.ExtractWeekdayHour(got)
	if !ok || wd != int(time.Friday) || hour != 9 {
		t.Errorf("expected Friday 9h, got weekday=%d hour=%d ok=%v", wd, hour, ok)
	}
}

func TestDatasetNormalizes(t *testing.T) {
	calls := generate(t, DefaultConfig())

	recs, err := cdr.NormalizeDataset(Dataset(calls))
	if err != nil {
		t.Fatalf("NormalizeDataset returned error: %v", err)
	}
	if len(recs) != len(calls) {
		t.Fatalf("expected %d records, got %d", len(calls), len(recs))
	}
	for i, r := range recs {
		if r.Destination != calls[i].Destination || r.DurationSeconds() != calls[i].Duration {
			t.Errorf("record %d does not match call: %+v vs %+v", i, r, calls[i])
		}
	}
}

func TestSeedSQLite(t *testing.T) {
	db, err := sql.Open(config.QueryDriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	cfg := DefaultConfig()
	cfg.Count = 50
	calls := generate(t, cfg)

	ctx := context.Background()
	if err := SeedSQLite(ctx, db, "cdr", calls); err != nil {
		t.Fatalf("SeedSQLite returned error: %v", err)
	}
	if err := SeedSQLite(ctx, db, "cdr; DROP TABLE cdr", calls); err == nil {
		t.Error("expected invalid table name to fail")
	}

	src, err := source.NewSQLSource(db, config.QueryDriverSQLite, "cdr", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSQLSource returned error: %v", err)
	}
	ds, err := src.Fetch(ctx, source.Query{})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	recs, err := cdr.NormalizeDataset(ds)
	if err != nil {
		t.Fatalf("NormalizeDataset returned error: %v", err)
	}
	if len(recs) != len(calls) {
		t.Fatalf("expected %d records, got %d", len(calls), len(recs))
	}

	// remote dates are rendered zero-padded, generated ones are not
	first := recs[0]
	if first.CallDate != calls[0].Time.Format(source.CallDateLayout) {
		t.Errorf("unexpected calldate %q", first.CallDate)
	}
	if first.Source != calls[0].Source || first.Disposition != calls[0].Disposition {
		t.Errorf("unexpected first record %+v", first)
	}
}
