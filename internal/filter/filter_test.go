package filter

import (
	"reflect"
	"testing"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/cdr"
)

var header = []string{"calldate", "src", "destination", "disposition", "duration", "billsec"}

func mustRecords(t *testing.T, rows ...[]any) []cdr.Record {
	t.Helper()
	records, err := cdr.Normalize(header, rows)
	if err != nil {
		t.Fatalf("failed to normalize: %v", err)
	}
	return records
}

func sampleRecords(t *testing.T) []cdr.Record {
	return mustRecords(t,
		[]any{"31/10/25, 16:39", "5551234", "101", "ANSWERED", "30", "30"},
		[]any{"31/10/25, 9:05", "5559876", "102", "NO ANSWER", "10", "0"},
		[]any{"31/10/25, 9:30", "SIP/Trunk-A", "101", "BUSY", "abc", "0"},
		[]any{"01/11/25, 11:00", "5551234", "103", "ANSWERED", "120", "95"},
	)
}

func sources(records []cdr.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Source + "/" + r.Destination + "/" + r.Duration
	}
	return out
}

func TestApply(t *testing.T) {
	records := sampleRecords(t)

	tests := []struct {
		name  string
		state State
		want  []string
	}{
		{
			name:  "no filters keeps everything in order",
			state: State{},
			want:  []string{"5551234/101/30", "5559876/102/10", "SIP/Trunk-A/101/abc", "5551234/103/120"},
		},
		{
			name:  "disposition exact match",
			state: State{Disposition: "ANSWERED"},
			want:  []string{"5551234/101/30", "5551234/103/120"},
		},
		{
			name:  "disposition is case sensitive",
			state: State{Disposition: "answered"},
			want:  []string{},
		},
		{
			name:  "destination set",
			state: State{Destinations: []string{"101", "103"}},
			want:  []string{"5551234/101/30", "SIP/Trunk-A/101/abc", "5551234/103/120"},
		},
		{
			name:  "source substring is case insensitive",
			state: State{Source: "trunk"},
			want:  []string{"SIP/Trunk-A/101/abc"},
		},
		{
			name:  "min duration excludes short and malformed",
			state: State{MinDuration: 15},
			want:  []string{"5551234/101/30", "5551234/103/120"},
		},
		{
			name:  "min duration is inclusive",
			state: State{MinDuration: 30},
			want:  []string{"5551234/101/30", "5551234/103/120"},
		},
		{
			name:  "combined predicates",
			state: State{Disposition: "ANSWERED", Source: "555", MinDuration: 60, Destinations: []string{"103"}},
			want:  []string{"5551234/103/120"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sources(Apply(records, tt.state))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestApplyMalformedDurationAsymmetry(t *testing.T) {
	records := mustRecords(t,
		[]any{"31/10/25, 16:39", "1", "101", "ANSWERED", "abc", "0"},
		[]any{"31/10/25, 16:40", "2", "102", "ANSWERED", "-3", "0"},
		[]any{"31/10/25, 16:41", "3", "103", "ANSWERED", "-9", "0"},
	)

	tests := []struct {
		name  string
		floor int
		want  []string
	}{
		{"zero floor keeps everything", 0, []string{"1/101/abc", "2/102/-3", "3/103/-9"}},
		{"positive floor drops malformed", 1, []string{}},
		{"negative floor compares numerically", -5, []string{"2/102/-3"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sources(Apply(records, State{MinDuration: tt.floor}))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MinDuration %d kept %v, want %v", tt.floor, got, tt.want)
			}
		})
	}
}

func TestApplyScenarioMinDuration(t *testing.T) {
	records := mustRecords(t,
		[]any{"31/10/25, 16:39", "", "101", "ANSWERED", "30", "30"},
		[]any{"31/10/25, 9:05", "", "102", "NO ANSWER", "10", "0"},
	)
	got := Apply(records, State{MinDuration: 15})
	if len(got) != 1 || got[0].Destination != "101" {
		t.Errorf("expected only destination 101 to survive, got %v", sources(got))
	}
}

func TestApplyIsSubsequence(t *testing.T) {
	records := sampleRecords(t)
	states := []State{
		{},
		{Disposition: "BUSY"},
		{Source: "555"},
		{MinDuration: 100},
		{Destinations: []string{"102", "101"}},
	}

	for _, st := range states {
		got := Apply(records, st)
		j := 0
		for _, r := range got {
			for j < len(records) && !reflect.DeepEqual(records[j], r) {
				j++
			}
			if j == len(records) {
				t.Fatalf("result for %+v is not a subsequence of the input", st)
			}
			j++
		}
	}
}

func TestApplyAbsentDestinationNeverMatchesSet(t *testing.T) {
	records, _ := cdr.Normalize([]string{"src"}, [][]any{{"1"}})
	if got := Apply(records, State{Destinations: []string{""}}); len(got) != 0 {
		t.Errorf("expected absent destination to be excluded, got %d", len(got))
	}
}

func TestApplyDoesNotModifyInput(t *testing.T) {
	records := sampleRecords(t)
	before := sources(records)
	Apply(records, State{Disposition: "ANSWERED"})
	if !reflect.DeepEqual(before, sources(records)) {
		t.Error("Apply modified its input")
	}
}

func TestNormalized(t *testing.T) {
	st := State{Source: "SIP", MinDuration: -5, Destinations: []string{"101", "102", "101"}}.Normalized()
	if st.Source != "sip" {
		t.Errorf("expected lower-cased source, got %q", st.Source)
	}
	if st.MinDuration != -5 {
		t.Errorf("expected negative MinDuration kept, got %d", st.MinDuration)
	}
	if !reflect.DeepEqual(st.Destinations, []string{"101", "102"}) {
		t.Errorf("expected de-duplicated destinations, got %v", st.Destinations)
	}
	if !(State{}).IsZero() {
		t.Error("expected zero state to report IsZero")
	}
	if (State{MinDuration: -1}).IsZero() {
		t.Error("a negative floor is an active predicate")
	}
}

func TestDestinationOptions(t *testing.T) {
	records := mustRecords(t,
		[]any{"", "", "201", "", "", ""},
		[]any{"", "", "30", "", "", ""},
		[]any{"", "", "s", "", "", ""},
		[]any{"", "", "201", "", "", ""},
		[]any{"", "", "", "", "", ""},
		[]any{"", "", "100", "", "", ""},
	)

	got := DestinationOptions(records)
	want := []string{"30", "100", "201", "s"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	if got := DestinationOptions(nil); got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", got)
	}
}
