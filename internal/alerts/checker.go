package alerts

import (
	"fmt"
	"time"

	"github.com/dennisdiepolder/monti/cdrinsight/internal/aggregator"
)

// Severity levels
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Rule names
const (
	RuleAnsweredRateLow = "answered_rate_low"
	RuleFailedRateHigh  = "failed_rate_high"
	RuleWaitLong        = "wait_long"
)

// Alert is one tripped rule
type Alert struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Rules are KPI thresholds. A zero threshold disables its rule.
type Rules struct {
	MinAnsweredRate float64
	MaxFailedRate   float64
	MaxAvgWait      time.Duration

	// MinCalls suppresses every rule on smaller filtered sets
	MinCalls int
}

// Check evaluates rules against the KPIs of one filtered set
func Check(k aggregator.KPIs, r Rules) []Alert {
	if k.Total == 0 || k.Total < r.MinCalls {
		return nil
	}

	var out []Alert
	if r.MinAnsweredRate > 0 && k.AnsweredRate < r.MinAnsweredRate {
		severity := SeverityWarning
		if k.AnsweredRate < r.MinAnsweredRate/2 {
			severity = SeverityCritical
		}
		out = append(out, Alert{
			Rule:     RuleAnsweredRateLow,
			Severity: severity,
			Message:  fmt.Sprintf("Answered %.1f%% of %d calls", k.AnsweredRate, k.Total),
		})
	}
	if r.MaxFailedRate > 0 && k.FailedRate > r.MaxFailedRate {
		out = append(out, Alert{
			Rule:     RuleFailedRateHigh,
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("Failed %.1f%% of %d calls", k.FailedRate, k.Total),
		})
	}
	if r.MaxAvgWait > 0 {
		wait := time.Duration(k.AvgWaitTime * float64(time.Second))
		if wait > r.MaxAvgWait {
			out = append(out, Alert{
				Rule:     RuleWaitLong,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("Average wait %s", formatDuration(wait)),
			})
		}
	}
	return out
}

func formatDuration(d time.Duration) string {
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if mins >= 60 {
		hours := mins / 60
		mins = mins % 60
		return fmt.Sprintf("%dh%dm", hours, mins)
	}
	return fmt.Sprintf("%dm%ds", mins, secs)
}
