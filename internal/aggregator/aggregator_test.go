package aggregator

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/cdr"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/temporal"
)

var header = []string{"calldate", "src", "destination", "disposition", "duration", "billsec"}

func records(t *testing.T, rows ...[]any) []cdr.Record {
	t.Helper()
	recs, err := cdr.Normalize(header, rows)
	if err != nil {
		t.Fatalf("failed to normalize: %v", err)
	}
	return recs
}

func scenario(t *testing.T) []cdr.Record {
	return records(t,
		[]any{"31/10/25, 16:39", "5551234", "101", "ANSWERED", "30", "30"},
		[]any{"31/10/25, 9:05", "5559876", "102", "NO ANSWER", "10", "0"},
	)
}

func TestComputeTotalsScenario(t *testing.T) {
	got := ComputeTotals(scenario(t))
	want := Totals{Total: 2, Answered: 1, BillSeconds: 30, BillMinutes: 1, AvgDuration: 30}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}

func TestComputeTotalsNoAnswered(t *testing.T) {
	got := ComputeTotals(records(t, []any{"", "", "", "BUSY", "5", "abc"}))
	if got.AvgDuration != 0 || got.BillSeconds != 0 {
		t.Errorf("expected zero averages, got %+v", got)
	}
}

func TestDispositionHistogram(t *testing.T) {
	recs := records(t,
		[]any{"", "", "", "ANSWERED", "", ""},
		[]any{"", "", "", "NO ANSWER", "", ""},
		[]any{"", "", "", "ANSWERED", "", ""},
		[]any{"", "", ""},
		[]any{"", "", "", "CONGESTION", "", ""},
	)

	got := DispositionHistogram(recs)
	want := []Bucket{
		{Key: "ANSWERED", Count: 2},
		{Key: "NO ANSWER", Count: 1},
		{Key: cdr.Unknown, Count: 1},
		{Key: "CONGESTION", Count: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	sum := 0
	for _, b := range got {
		sum += b.Count
	}
	if sum != len(recs) {
		t.Errorf("expected histogram to sum to %d, got %d", len(recs), sum)
	}
}

func TestDispositionHistogramScenario(t *testing.T) {
	got := DispositionHistogram(scenario(t))
	want := []Bucket{{Key: "ANSWERED", Count: 1}, {Key: "NO ANSWER", Count: 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFrequencyStableTies(t *testing.T) {
	recs := records(t,
		[]any{"", "a", "300", "", "", ""},
		[]any{"", "b", "200", "", "", ""},
		[]any{"", "c", "100", "", "", ""},
		[]any{"", "d", "200", "", "", ""},
		[]any{"", "e", "100", "", "", ""},
		[]any{"", "f", "", "", "", ""},
	)

	got := TopDestinations(recs)
	want := []Bucket{{Key: "200", Count: 2}, {Key: "100", Count: 2}, {Key: "300", Count: 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTopNTruncation(t *testing.T) {
	var rows [][]any
	for i := 0; i < 25; i++ {
		for j := 0; j <= i%4; j++ {
			rows = append(rows, []any{"", fmt.Sprintf("src-%d", i), fmt.Sprintf("%d", 100+i), "", "", ""})
		}
	}
	recs := records(t, rows...)

	for name, ranking := range map[string][]Bucket{
		"destinations": TopDestinations(recs),
		"sources":      TopSources(recs),
	} {
		if len(ranking) != TopN {
			t.Errorf("%s: expected %d entries, got %d", name, TopN, len(ranking))
		}
		for i := 1; i < len(ranking); i++ {
			if ranking[i].Count > ranking[i-1].Count {
				t.Errorf("%s: ranking not sorted at %d: %v", name, i, ranking)
			}
		}
	}

	if len(DestinationFrequency(recs)) != 25 {
		t.Errorf("expected untruncated frequency to keep all 25 keys")
	}
}

func TestTopSourcesEmpty(t *testing.T) {
	got := TopSources(nil)
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil ranking, got %v", got)
	}
}

func TestHourlyByDispositionScenario(t *testing.T) {
	series := HourlyByDisposition(scenario(t), temporal.Default)
	if len(series) != 4 {
		t.Fatalf("expected 4 series, got %d", len(series))
	}

	byName := map[string][HoursPerDay]int{}
	for _, s := range series {
		byName[s.Disposition] = s.Counts
	}
	if byName[cdr.Answered][16] != 1 {
		t.Errorf("expected ANSWERED at 16 to be 1, got %d", byName[cdr.Answered][16])
	}
	if byName[cdr.NoAnswer][9] != 1 {
		t.Errorf("expected NO ANSWER at 9 to be 1, got %d", byName[cdr.NoAnswer][9])
	}
}

func TestHourlyByDispositionSkipsBadInput(t *testing.T) {
	recs := records(t,
		[]any{"31/10/25, 99:00", "", "", "ANSWERED", "", ""},
		[]any{"no time", "", "", "ANSWERED", "", ""},
		[]any{"31/10/25, 10:00", "", "", "CONGESTION", "", ""},
	)
	for _, s := range HourlyByDisposition(recs, temporal.Default) {
		for h, v := range s.Counts {
			if v != 0 {
				t.Errorf("expected no counts, got %s[%d]=%d", s.Disposition, h, v)
			}
		}
	}
}

func TestHourlyAverageDuration(t *testing.T) {
	recs := records(t,
		[]any{"31/10/25, 10:00", "", "", "ANSWERED", "40", "30"},
		[]any{"31/10/25, 10:30", "", "", "ANSWERED", "50", "45"},
		[]any{"31/10/25, 10:45", "", "", "NO ANSWER", "20", "x"},
		[]any{"31/10/25, 11:00", "", "", "ANSWERED", "5", "5"},
	)
	got := HourlyAverageDuration(recs, temporal.Default)
	if got[10] != 25 {
		t.Errorf("expected round(75/3)=25 at hour 10, got %d", got[10])
	}
	if got[11] != 5 {
		t.Errorf("expected 5 at hour 11, got %d", got[11])
	}
	if got[12] != 0 {
		t.Errorf("expected 0 for an empty slot, got %d", got[12])
	}
}

func TestWeekdayHistogramScenario(t *testing.T) {
	got := WeekdayHistogram(scenario(t), temporal.Default)
	want := [DaysPerWeek]int{0, 0, 0, 0, 0, 2, 0}
	if got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestBuildHeatmap(t *testing.T) {
	recs := records(t,
		[]any{"31/10/25, 16:39", "", "", "", "", ""},
		[]any{"31/10/25, 16:05", "", "", "", "", ""},
		[]any{"02/11/25, 8:00", "", "", "", "", ""},
		[]any{"garbage", "", "", "", "", ""},
		[]any{"31/10/25, 99:00", "", "", "", "", ""},
	)
	m := BuildHeatmap(recs, temporal.Default)
	if m[5][16] != 2 {
		t.Errorf("expected 2 at friday 16h, got %d", m[5][16])
	}
	if m[0][8] != 1 {
		t.Errorf("expected 1 at sunday 8h, got %d", m[0][8])
	}
	if m.Sum() != 3 {
		t.Errorf("expected heatmap total 3, got %d", m.Sum())
	}
	if m.Sum() > len(recs) {
		t.Error("heatmap total exceeds record count")
	}
}

func TestHeatmapLevels(t *testing.T) {
	var m Heatmap
	m[1][1] = 12
	m[2][2] = 6
	m[3][3] = 1
	m[4][4] = 10

	lv := m.Levels()
	if lv[1][1] != HeatmapLevelCount-1 {
		t.Errorf("expected max cell at last level, got %d", lv[1][1])
	}
	if lv[2][2] != 3 {
		t.Errorf("expected floor(6/12*6)=3, got %d", lv[2][2])
	}
	if lv[3][3] != 0 {
		t.Errorf("expected floor(1/12*6)=0, got %d", lv[3][3])
	}
	if lv[4][4] != 5 {
		t.Errorf("expected floor(10/12*6)=5, got %d", lv[4][4])
	}
}

func TestHeatmapLevelsAllZero(t *testing.T) {
	m := BuildHeatmap(records(t, []any{"no date", "", "", "", "", ""}), temporal.Default)
	if m.Levels() != (Heatmap{}) {
		t.Error("expected every cell at level 0")
	}
}

func TestDestinationRollup(t *testing.T) {
	recs := records(t,
		[]any{"", "", "101", "ANSWERED", "40", "30"},
		[]any{"", "", "102", "BUSY", "0", "0"},
		[]any{"", "", "101", "NO ANSWER", "20", "0"},
		[]any{"", "", "101", "ANSWERED", "70", "61"},
		[]any{"", "", "102", "CONGESTION", "0", "0"},
		[]any{"", "", "", "ANSWERED", "10", "10"},
		[]any{"", "", "103", "FAILED", "0", "0"},
	)

	rows := DestinationRollup(recs)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	first := rows[0]
	want := DestinationRow{
		Destination: "101", Total: 3, Answered: 2, NoAnswer: 1,
		BillSeconds: 91, AvgDuration: 46, SuccessRate: 66.7,
	}
	if first != want {
		t.Errorf("expected %+v, got %+v", want, first)
	}

	if rows[1].Destination != "102" || rows[1].Busy != 1 || rows[1].Other != 1 || rows[1].SuccessRate != 0 {
		t.Errorf("unexpected second row %+v", rows[1])
	}
	if rows[2].Destination != "103" || rows[2].Failed != 1 || rows[2].AvgDuration != 0 {
		t.Errorf("unexpected third row %+v", rows[2])
	}
}

func TestDestinationRollupTruncates(t *testing.T) {
	var rows [][]any
	for i := 0; i < 15; i++ {
		rows = append(rows, []any{"", "", fmt.Sprintf("%d", 200+i), "ANSWERED", "1", "1"})
	}
	if got := DestinationRollup(records(t, rows...)); len(got) != TopN {
		t.Errorf("expected %d rows, got %d", TopN, len(got))
	}
}

func TestComputeKPIs(t *testing.T) {
	recs := records(t,
		[]any{"31/10/25, 16:39", "", "101", "ANSWERED", "30", "20"},
		[]any{"31/10/25, 9:05", "", "102", "NO ANSWER", "10", "0"},
		[]any{"31/10/25, 9:15", "", "102", "FAILED", "0", "0"},
		[]any{"31/10/25, 16:45", "", "101", "ANSWERED", "5", "15"},
	)

	k := ComputeKPIs(recs, temporal.Default)
	if k.Total != 4 {
		t.Errorf("expected total 4, got %d", k.Total)
	}
	if k.SuccessRate != 50 || k.AnsweredRate != 50 {
		t.Errorf("expected 50%% answered, got %v/%v", k.SuccessRate, k.AnsweredRate)
	}
	if k.NoAnswerRate != 25 || k.FailedRate != 25 || k.BusyRate != 0 {
		t.Errorf("unexpected rates %+v", k)
	}
	if k.PeakHour != 9 || k.PeakHourCalls != 2 {
		t.Errorf("expected first peak at 9 with 2 calls, got %d/%d", k.PeakHour, k.PeakHourCalls)
	}
	if k.BusiestDestination != "101" || k.BusiestDestinationCalls != 2 {
		t.Errorf("expected busiest 101 (first of tie), got %s/%d", k.BusiestDestination, k.BusiestDestinationCalls)
	}
	// (10 + 10 + 0 - 10) / 4
	if k.AvgWaitTime != 2.5 {
		t.Errorf("expected unclamped average wait 2.5, got %v", k.AvgWaitTime)
	}
}

func TestComputeKPIsEmpty(t *testing.T) {
	k := ComputeKPIs(nil, temporal.Default)
	if k != (KPIs{}) {
		t.Errorf("expected zero KPIs for empty input, got %+v", k)
	}
}

func TestRounding(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{2.5, 3},
		{-2.5, -2},
		{2.4, 2},
		{0, 0},
	}
	for _, tt := range tests {
		if got := round(tt.in); got != tt.want {
			t.Errorf("round(%v) = %d, expected %d", tt.in, got, tt.want)
		}
	}
	if got := round1(66.666); got != 66.7 {
		t.Errorf("round1(66.666) = %v, expected 66.7", got)
	}
	if got := percent(1, 0); got != 0 {
		t.Errorf("expected 0 for empty total, got %v", got)
	}
}

func TestBuildCallTable(t *testing.T) {
	recs := records(t,
		[]any{"31/10/25, 16:39", "1", "101", "ANSWERED", "30", "30"},
		[]any{"31/10/25, 9:05", "2"},
		[]any{"31/10/25, 9:06", "3", "103", "BUSY", "0", "0"},
	)

	table := BuildCallTable(recs, 2)
	if len(table.Rows) != 2 || table.Total != 3 || !table.Truncated {
		t.Errorf("unexpected table shape %+v", table)
	}
	if table.Rows[1].Destination != "-" {
		t.Errorf("expected '-' for missing destination, got %q", table.Rows[1].Destination)
	}

	full := BuildCallTable(recs, 0)
	if len(full.Rows) != 3 || full.Truncated {
		t.Errorf("expected default limit to keep all rows, got %+v", full)
	}
}
