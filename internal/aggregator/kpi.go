package aggregator

import (
	"github.com/dennisdiepolder/monti/cdrinsight/internal/cdr"
	"github.com/dennisdiepolder/monti/cdrinsight/internal/temporal"
)

// KPIs are the scalar indicators shown above the charts
type KPIs struct {
	Total int `json:"total"`

	// Rates are percentages of Total with one decimal, 0 when Total is 0.
	// SuccessRate and AnsweredRate both count ANSWERED calls.
	SuccessRate  float64 `json:"successRate"`
	AnsweredRate float64 `json:"answeredRate"`
	NoAnswerRate float64 `json:"noAnswerRate"`
	FailedRate   float64 `json:"failedRate"`
	BusyRate     float64 `json:"busyRate"`

	PeakHour      int `json:"peakHour"`
	PeakHourCalls int `json:"peakHourCalls"`

	BusiestDestination      string `json:"busiestDestination"`
	BusiestDestinationCalls int    `json:"busiestDestinationCalls"`

	// AvgWaitTime is the mean of duration-billsec in seconds. Negative
	// contributions from inconsistent records are not clamped.
	AvgWaitTime float64 `json:"avgWaitTime"`
}

// ComputeKPIs derives the scalar indicators of a filtered set
func ComputeKPIs(records []cdr.Record, x temporal.Extractor) KPIs {
	k := KPIs{Total: len(records)}

	var answered, noAnswer, failed, busy, wait int
	for _, rec := range records {
		switch rec.Disposition {
		case cdr.Answered:
			answered++
		case cdr.NoAnswer:
			noAnswer++
		case cdr.Failed:
			failed++
		case cdr.Busy:
			busy++
		}
		wait += rec.DurationSeconds() - rec.BillSeconds()
	}

	k.AnsweredRate = percent(answered, k.Total)
	k.SuccessRate = k.AnsweredRate
	k.NoAnswerRate = percent(noAnswer, k.Total)
	k.FailedRate = percent(failed, k.Total)
	k.BusyRate = percent(busy, k.Total)

	k.PeakHour, k.PeakHourCalls = PeakHour(HourlyTotals(records, x))

	if ranking := DestinationFrequency(records); len(ranking) > 0 {
		k.BusiestDestination = ranking[0].Key
		k.BusiestDestinationCalls = ranking[0].Count
	}

	if k.Total > 0 {
		k.AvgWaitTime = round1(float64(wait) / float64(k.Total))
	}
	return k
}

// PeakHour returns the index and value of the first maximum
func PeakHour(hours [HoursPerDay]int) (hour, calls int) {
	for h, v := range hours {
		if v > calls {
			hour, calls = h, v
		}
	}
	return hour, calls
}
