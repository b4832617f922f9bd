// Package aggregate derives the dashboard views from a flat list of
// execution records. Every function is pure: inputs are never modified and
// the same input always yields the same output.
package aggregate

import (
	"sort"
	"time"

	"flowboard/internal/timerange"
	"flowboard/internal/types"
)

// Execution statuses reported upstream. The set is open-ended.
const (
	StatusComplete   = "complete"
	StatusError      = "error"
	StatusRunning    = "running"
	StatusStarting   = "starting"
	StatusWaiting    = "waiting"
	StatusTerminated = "terminated"
)

// UnknownWorkflow groups records without a workflow short name.
const UnknownWorkflow = "Unknown"

// DefaultStatusColor is used for statuses missing from the colour table.
const DefaultStatusColor = "#6b7280"

var statusColors = map[string]string{
	StatusComplete:   "#22c55e",
	StatusError:      "#ef4444",
	StatusRunning:    "#3b82f6",
	StatusStarting:   "#8b5cf6",
	StatusWaiting:    "#f59e0b",
	StatusTerminated: "#6b7280",
}

// StatusColor returns the chart colour for a status.
func StatusColor(status string) string {
	if c, ok := statusColors[status]; ok {
		return c
	}
	return DefaultStatusColor
}

// InFlight reports whether status describes an execution that has not
// finished yet.
func InFlight(status string) bool {
	switch status {
	case StatusRunning, StatusStarting, StatusWaiting:
		return true
	default:
		return false
	}
}

// Metrics holds the headline numbers for a record set.
type Metrics struct {
	TotalExecutions    int     `json:"totalExecutions"`
	SuccessRate        float64 `json:"successRate"`
	ErrorCount         int     `json:"errorCount"`
	AvgDurationSeconds float64 `json:"avgDurationSeconds"`
	RunningCount       int     `json:"runningCount"`
}

// ComputeMetrics computes Metrics in a single pass. Durations that are
// missing or non-positive are left out of the average.
func ComputeMetrics(records []types.ExecutionRecord) Metrics {
	var m Metrics
	var completed, samples int
	var durationSum float64

	for _, r := range records {
		m.TotalExecutions++
		switch {
		case r.Status == StatusComplete:
			completed++
		case r.Status == StatusError:
			m.ErrorCount++
		case InFlight(r.Status):
			m.RunningCount++
		}
		if d, ok := r.Duration(); ok {
			durationSum += d
			samples++
		}
	}

	if m.TotalExecutions > 0 {
		m.SuccessRate = float64(completed) / float64(m.TotalExecutions) * 100
	}
	if samples > 0 {
		m.AvgDurationSeconds = durationSum / float64(samples)
	}
	return m
}

// VolumeBucket counts executions that started inside one hour or day.
type VolumeBucket struct {
	Time     string    `json:"time"`
	Start    time.Time `json:"start"`
	Complete int       `json:"complete"`
	Error    int       `json:"error"`
	Other    int       `json:"other"`
}

// Total returns the number of executions in the bucket.
func (b VolumeBucket) Total() int {
	return b.Complete + b.Error + b.Other
}

const (
	hourLabel = "15:04"
	dayLabel  = "Jan 02"
)

// ComputeVolumeData buckets records by local hour for intraday selectors and
// by local day otherwise. Buckets exist only where data exists and are
// ordered by their start instant. Records without a valid timestamp are
// skipped.
func ComputeVolumeData(records []types.ExecutionRecord, r timerange.Range, loc *time.Location) []VolumeBucket {
	if loc == nil {
		loc = time.Local
	}
	hourly := timerange.Hourly(r)
	label := dayLabel
	if hourly {
		label = hourLabel
	}

	buckets := make(map[int64]*VolumeBucket)
	for _, rec := range records {
		t, ok := rec.CreatedAt(loc)
		if !ok {
			continue
		}
		start := truncate(t.In(loc), hourly)
		key := start.Unix()
		b, exists := buckets[key]
		if !exists {
			b = &VolumeBucket{Time: start.Format(label), Start: start}
			buckets[key] = b
		}
		switch rec.Status {
		case StatusComplete:
			b.Complete++
		case StatusError:
			b.Error++
		default:
			b.Other++
		}
	}

	out := make([]VolumeBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// truncate cuts t to the start of its local hour or day. time.Truncate
// works on absolute time and would misplace day boundaries outside UTC.
func truncate(t time.Time, hourly bool) time.Time {
	if hourly {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// StatusBucket counts executions with one status.
type StatusBucket struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Color string `json:"color"`
}

// ComputeStatusData counts records per status in order of first appearance.
func ComputeStatusData(records []types.ExecutionRecord) []StatusBucket {
	index := make(map[string]int)
	out := make([]StatusBucket, 0)
	for _, r := range records {
		i, ok := index[r.Status]
		if !ok {
			i = len(out)
			index[r.Status] = i
			out = append(out, StatusBucket{Name: r.Status, Color: StatusColor(r.Status)})
		}
		out[i].Value++
	}
	return out
}

// DistributionEntry counts executions and errors for one workflow.
type DistributionEntry struct {
	Name   string `json:"name"`
	Count  int    `json:"count"`
	Errors int    `json:"errors"`
}

// ComputeDistributionData groups records by workflow short name, busiest
// first. Workflows with equal counts keep their order of first appearance.
func ComputeDistributionData(records []types.ExecutionRecord) []DistributionEntry {
	index := make(map[string]int)
	out := make([]DistributionEntry, 0)
	for _, r := range records {
		name := r.WorkflowShortName
		if name == "" {
			name = UnknownWorkflow
		}
		i, ok := index[name]
		if !ok {
			i = len(out)
			index[name] = i
			out = append(out, DistributionEntry{Name: name})
		}
		out[i].Count++
		if r.Status == StatusError {
			out[i].Errors++
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	return out
}
