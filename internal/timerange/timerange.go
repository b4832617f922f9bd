// Package timerange translates dashboard date-range selectors into the token
// sent to the reporting endpoint and into the local-time window used to
// narrow the fetched records.
//
// The reporting endpoint buckets calendar ranges in UTC. Calendar selectors
// are therefore widened upstream and narrowed again here against the local
// calendar.
package timerange

import (
	"strings"
	"time"

	"flowboard/internal/types"
)

// Range is a date-range selector as spelled on the wire.
type Range string

const (
	Last5Minutes Range = "last 5 minutes"
	LastHour     Range = "last hour"
	Last6Hours   Range = "last 6 hours"
	Today        Range = "today"
	Yesterday    Range = "yesterday"
	Last7Days    Range = "last 7 days"
	ThisWeek     Range = "this week"
	ThisMonth    Range = "this month"
	LastMonth    Range = "last month"
)

// Default is the selector used when nothing has been chosen yet.
const Default = Today

// Option pairs a selector with its display label.
type Option struct {
	Label string `json:"label"`
	Value Range  `json:"value"`
}

var options = []Option{
	{Label: "Last 5 Minutes", Value: Last5Minutes},
	{Label: "Last Hour", Value: LastHour},
	{Label: "Last 6 Hours", Value: Last6Hours},
	{Label: "Today", Value: Today},
	{Label: "Yesterday", Value: Yesterday},
	{Label: "Last 7 Days", Value: Last7Days},
	{Label: "This Week", Value: ThisWeek},
	{Label: "Last Month", Value: LastMonth},
	{Label: "This Month", Value: ThisMonth},
}

// Options returns the selectors in display order.
func Options() []Option {
	out := make([]Option, len(options))
	copy(out, options)
	return out
}

// Known reports whether r is one of the fixed selectors.
func (r Range) Known() bool {
	for _, o := range options {
		if o.Value == r {
			return true
		}
	}
	return false
}

// Label returns the display label, or the raw token for unknown selectors.
func (r Range) Label() string {
	for _, o := range options {
		if o.Value == r {
			return o.Label
		}
	}
	return string(r)
}

// Parse normalises user input ("Last Hour", " today ", "last-7-days").
// Unknown input is returned as-is with ok=false; callers keep identity
// behaviour for it.
func Parse(s string) (Range, bool) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", " ", "_", " ").Replace(norm)
	norm = strings.Join(strings.Fields(norm), " ")
	r := Range(norm)
	if r.Known() {
		return r, true
	}
	return Range(s), false
}

// APIRange returns the token to send upstream. Relative selectors are
// anchored to "now" and pass through. today, yesterday and this week are
// widened to last 7 days so the local window is a subset of what is fetched.
// Month selectors pass through and rely on the upstream UTC month.
func APIRange(r Range) Range {
	switch r {
	case Today, Yesterday, ThisWeek:
		return Last7Days
	default:
		return r
	}
}

// Hourly reports whether volume for r is bucketed by hour rather than day.
func Hourly(r Range) bool {
	switch r {
	case Last5Minutes, LastHour, Last6Hours, Today, Yesterday:
		return true
	default:
		return false
	}
}

// Window is a half-open interval [Start, End). A zero End means "through now".
type Window struct {
	Start time.Time
	End   time.Time
}

// Bounded reports whether the window has an explicit end.
func (w Window) Bounded() bool {
	return !w.End.IsZero()
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if t.Before(w.Start) {
		return false
	}
	return !w.Bounded() || t.Before(w.End)
}

// LocalWindow computes the local-time window for r relative to now, in
// now's location. ok is false for unknown selectors.
func LocalWindow(r Range, now time.Time) (Window, bool) {
	loc := now.Location()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)

	switch r {
	case Last5Minutes:
		return Window{Start: now.Add(-5 * time.Minute)}, true
	case LastHour:
		return Window{Start: now.Add(-time.Hour)}, true
	case Last6Hours:
		return Window{Start: now.Add(-6 * time.Hour)}, true
	case Today:
		return Window{Start: midnight}, true
	case Yesterday:
		return Window{Start: midnight.AddDate(0, 0, -1), End: midnight}, true
	case Last7Days:
		return Window{Start: now.AddDate(0, 0, -7)}, true
	case ThisWeek:
		return Window{Start: startOfWeek(midnight)}, true
	case ThisMonth:
		return Window{Start: monthStart}, true
	case LastMonth:
		return Window{Start: monthStart.AddDate(0, -1, 0), End: monthStart}, true
	default:
		return Window{}, false
	}
}

// startOfWeek returns the Monday on or before day (already at midnight).
func startOfWeek(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// Filter narrows records to the local window for r. Unknown selectors are an
// identity pass-through; otherwise records without a parseable timestamp are
// dropped. The input slice is not modified.
func Filter(records []types.ExecutionRecord, r Range, now time.Time) []types.ExecutionRecord {
	w, ok := LocalWindow(r, now)
	if !ok {
		out := make([]types.ExecutionRecord, len(records))
		copy(out, records)
		return out
	}
	out := make([]types.ExecutionRecord, 0, len(records))
	for _, rec := range records {
		t, ok := rec.CreatedAt(now.Location())
		if !ok {
			continue
		}
		if w.Contains(t) {
			out = append(out, rec)
		}
	}
	return out
}
