package projection

import "flowboard/internal/types"

// Progress is the partial result of a detail fan-out. It only grows: every
// Add returns a new value and leaves the receiver untouched, so snapshots
// handed to subscribers are never mutated afterwards.
type Progress struct {
	Total       int                      `json:"totalCount"`
	Failed      int                      `json:"failedCount"`
	Submissions []types.SubmissionRecord `json:"submissions"`
}

// NewProgress starts tracking a fan-out of total lookups.
func NewProgress(total int) Progress {
	return Progress{Total: total, Submissions: []types.SubmissionRecord{}}
}

// Loaded is the number of lookups that resolved successfully.
func (p Progress) Loaded() int {
	return len(p.Submissions)
}

// Done reports whether every lookup has either resolved or failed.
func (p Progress) Done() bool {
	return p.Loaded()+p.Failed >= p.Total
}

// Add records a resolved lookup.
func (p Progress) Add(sub types.SubmissionRecord) Progress {
	next := make([]types.SubmissionRecord, len(p.Submissions), len(p.Submissions)+1)
	copy(next, p.Submissions)
	p.Submissions = append(next, sub)
	return p
}

// Fail records a lookup that will not resolve.
func (p Progress) Fail() Progress {
	p.Failed++
	return p
}
