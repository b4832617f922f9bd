// Package format renders durations, relative times and identifiers for
// display surfaces.
package format

import (
	"fmt"
	"math"
	"time"

	"flowboard/internal/types"
)

// Placeholder is shown for values that are missing or not yet measured.
const Placeholder = "-"

// Duration renders seconds as "45s", "2m 5s" or "1h 1m".
func Duration(seconds float64) string {
	if seconds <= 0 || math.IsNaN(seconds) {
		return Placeholder
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds", int64(math.Round(seconds)))
	}
	total := int64(math.Round(seconds))
	mins := total / 60
	if mins < 60 {
		return fmt.Sprintf("%dm %ds", mins, total%60)
	}
	return fmt.Sprintf("%dh %dm", mins/60, mins%60)
}

// DurationPtr is Duration for optional values.
func DurationPtr(seconds *float64) string {
	if seconds == nil {
		return Placeholder
	}
	return Duration(*seconds)
}

// TimeAgo renders the time elapsed between ts and now as "42s ago",
// "3m ago", "5h ago" or "2d ago". Empty or unparseable input yields the
// placeholder.
func TimeAgo(ts string, now time.Time) string {
	then, ok := types.ParseTimestamp(ts, now.Location())
	if !ok {
		return Placeholder
	}
	return Since(then, now)
}

// Since is TimeAgo for an already parsed instant.
func Since(then, now time.Time) string {
	secs := int64(now.Sub(then) / time.Second)
	if secs < 0 {
		secs = 0
	}
	if secs < 60 {
		return fmt.Sprintf("%ds ago", secs)
	}
	mins := secs / 60
	if mins < 60 {
		return fmt.Sprintf("%dm ago", mins)
	}
	hours := mins / 60
	if hours < 24 {
		return fmt.Sprintf("%dh ago", hours)
	}
	return fmt.Sprintf("%dd ago", hours/24)
}

// TruncateID shortens id to n runes followed by "...".
func TruncateID(id string, n int) string {
	runes := []rune(id)
	if n < 0 || len(runes) <= n {
		return id
	}
	return string(runes[:n]) + "..."
}

// Percent renders a 0-100 rate with one decimal.
func Percent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	return fmt.Sprintf("%.1f%%", v)
}
