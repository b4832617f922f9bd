package aggregate

import (
	"sort"
	"strings"

	"flowboard/internal/types"
)

// DefaultPageSize is the number of rows per page in the executions table.
const DefaultPageSize = 15

// SortKey selects the executions table column to sort by.
type SortKey string

const (
	SortWorkflow SortKey = "workflow"
	SortStatus   SortKey = "status"
	SortDuration SortKey = "duration"
	SortCreated  SortKey = "created"
)

// SortDir is the sort direction.
type SortDir string

const (
	Asc  SortDir = "asc"
	Desc SortDir = "desc"
)

// ParseSort maps query values onto a sort key and direction, falling back to
// newest first.
func ParseSort(key, dir string) (SortKey, SortDir) {
	k := SortKey(strings.ToLower(strings.TrimSpace(key)))
	switch k {
	case SortWorkflow, SortStatus, SortDuration, SortCreated:
	default:
		k = SortCreated
	}
	d := SortDir(strings.ToLower(strings.TrimSpace(dir)))
	if d != Asc {
		d = Desc
	}
	return k, d
}

// RecentErrors returns up to limit error records, newest first. A limit of
// zero or less returns all of them.
func RecentErrors(records []types.ExecutionRecord, limit int) []types.ExecutionRecord {
	out := make([]types.ExecutionRecord, 0)
	for _, r := range records {
		if r.Status == StatusError {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedDate > out[j].CreatedDate
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SortExecutions returns a sorted copy of records. Missing durations sort as
// zero; creation times compare as ISO-8601 strings.
func SortExecutions(records []types.ExecutionRecord, key SortKey, dir SortDir) []types.ExecutionRecord {
	out := make([]types.ExecutionRecord, len(records))
	copy(out, records)

	cmp := func(a, b types.ExecutionRecord) int {
		switch key {
		case SortWorkflow:
			return strings.Compare(a.WorkflowShortName, b.WorkflowShortName)
		case SortStatus:
			return strings.Compare(a.Status, b.Status)
		case SortDuration:
			da, db := durationOrZero(a), durationOrZero(b)
			switch {
			case da < db:
				return -1
			case da > db:
				return 1
			}
			return 0
		default:
			return strings.Compare(a.CreatedDate, b.CreatedDate)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		c := cmp(out[i], out[j])
		if dir == Asc {
			return c < 0
		}
		return c > 0
	})
	return out
}

func durationOrZero(r types.ExecutionRecord) float64 {
	if r.DurationSeconds == nil {
		return 0
	}
	return *r.DurationSeconds
}

// Page is one page of the executions table.
type Page struct {
	Items      []types.ExecutionRecord `json:"items"`
	Page       int                     `json:"page"`
	PageSize   int                     `json:"pageSize"`
	TotalPages int                     `json:"totalPages"`
	Total      int                     `json:"total"`
}

// Paginate slices records into pages of size rows. page is zero-based and
// clamped to the available range.
func Paginate(records []types.ExecutionRecord, page, size int) Page {
	if size <= 0 {
		size = DefaultPageSize
	}
	total := len(records)
	pages := (total + size - 1) / size
	if page >= pages {
		page = pages - 1
	}
	if page < 0 {
		page = 0
	}

	start := page * size
	end := start + size
	if end > total {
		end = total
	}
	items := make([]types.ExecutionRecord, 0, end-start)
	items = append(items, records[start:end]...)

	return Page{
		Items:      items,
		Page:       page,
		PageSize:   size,
		TotalPages: pages,
		Total:      total,
	}
}
