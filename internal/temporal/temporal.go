// Package temporal extracts hour-of-day and day-of-week from the textual
// call timestamp. Aggregators only see the Extractor interface, so a
// different timestamp layout can be supported by adding an implementation.
package temporal

import (
	"regexp"
	"strconv"
	"time"
)

// Extractor derives time buckets from a raw calldate value
type Extractor interface {
	// Hour returns the hour component. It is not range checked.
	Hour(ts string) (int, bool)
	// Weekday returns 0=Sunday..6=Saturday.
	Weekday(ts string) (int, bool)
}

var (
	hourRE     = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	dateHourRE = regexp.MustCompile(`^\s*(\d{1,2})/(\d{1,2})/(\d{2}),?\s*(\d{1,2}):(\d{2})`)
)

// Default understands "DD/MM/YY, H:MM" and "DD/MM/YY, HH:MM".
// Two-digit years are read as 2000-2099.
var Default Extractor = dayMonthYear{}

type dayMonthYear struct{}

func (dayMonthYear) Hour(ts string) (int, bool)    { return ExtractHour(ts) }
func (dayMonthYear) Weekday(ts string) (int, bool) { return ExtractWeekday(ts) }

// ExtractHour returns the hour of the first H:MM or HH:MM token in ts.
// Garbage such as "99:00" is returned as-is.
func ExtractHour(ts string) (int, bool) {
	m := hourRE.FindStringSubmatch(ts)
	if m == nil {
		return 0, false
	}
	h, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return h, true
}

// ExtractWeekday returns the weekday of a leading DD/MM/YY date token.
// The token must be followed by an hour token; out-of-range days and
// months roll over the way calendar construction does.
func ExtractWeekday(ts string) (int, bool) {
	wd, _, ok := ExtractWeekdayHour(ts)
	return wd, ok
}

// ExtractWeekdayHour returns weekday and hour from one combined match
func ExtractWeekdayHour(ts string) (weekday, hour int, ok bool) {
	m := dateHourRE.FindStringSubmatch(ts)
	if m == nil {
		return 0, 0, false
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	hour, _ = strconv.Atoi(m[4])

	date := time.Date(2000+year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return int(date.Weekday()), hour, true
}

// WeekdayHour resolves both components through an Extractor
func WeekdayHour(x Extractor, ts string) (weekday, hour int, ok bool) {
	if x == Default {
		return ExtractWeekdayHour(ts)
	}
	wd, ok := x.Weekday(ts)
	if !ok {
		return 0, 0, false
	}
	h, ok := x.Hour(ts)
	if !ok {
		return 0, 0, false
	}
	return wd, h, true
}
