package aggregator

import (
	"sort"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/cdr"
)

// Frequency counts records per key, sorted by count descending. Ties keep
// first-encountered order. Empty keys are skipped.
func Frequency(records []cdr.Record, key func(cdr.Record) string) []Bucket {
	idx := make(map[string]int)
	var out []Bucket
	for _, rec := range records {
		k := key(rec)
		if k == "" {
			continue
		}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, Bucket{Key: k})
		}
		out[i].Count++
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	if out == nil {
		out = []Bucket{}
	}
	return out
}

// Top truncates a ranking to n entries
func Top(ranking []Bucket, n int) []Bucket {
	if len(ranking) > n {
		return ranking[:n]
	}
	return ranking
}

func destinationKey(r cdr.Record) string { return r.Destination }
func sourceKey(r cdr.Record) string      { return r.Source }

// DestinationFrequency is the untruncated destination ranking
func DestinationFrequency(records []cdr.Record) []Bucket {
	return Frequency(records, destinationKey)
}

// TopDestinations returns the TopN most called destinations
func TopDestinations(records []cdr.Record) []Bucket {
	return Top(DestinationFrequency(records), TopN)
}

// TopSources returns the TopN most frequent callers
func TopSources(records []cdr.Record) []Bucket {
	return Top(Frequency(records, sourceKey), TopN)
}
