package dashboard

import (
	"fmt"
	"time"

	"flowboard/internal/aggregate"
	"flowboard/internal/format"
	"flowboard/internal/projection"
	"flowboard/internal/timerange"
	"flowboard/internal/types"
)

// RecentErrorLimit is how many failed executions a snapshot lists.
const RecentErrorLimit = 10

// tableIDLength is the instance id prefix shown in tables.
const tableIDLength = 12

// Snapshot holds every derived view of one tenant and range.
type Snapshot struct {
	TenantID     string                        `json:"tenantId"`
	TenantName   string                        `json:"tenantName"`
	Range        timerange.Range               `json:"range"`
	RangeLabel   string                        `json:"rangeLabel"`
	APIRange     timerange.Range               `json:"apiRange"`
	RecordCount  int                           `json:"recordCount"`
	Metrics      aggregate.Metrics             `json:"metrics"`
	Volume       []aggregate.VolumeBucket      `json:"volume"`
	Status       []aggregate.StatusBucket      `json:"status"`
	Distribution []aggregate.DistributionEntry `json:"distribution"`
	RecentErrors []ExecutionRow                `json:"recentErrors"`
	FetchedAt    time.Time                     `json:"fetchedAt"`
}

// ExecutionRow is a display-ready execution.
type ExecutionRow struct {
	InstanceID      string   `json:"instanceId"`
	ShortID         string   `json:"shortId"`
	Workflow        string   `json:"workflow"`
	Status          string   `json:"status"`
	StatusColor     string   `json:"statusColor"`
	DurationSeconds *float64 `json:"durationSeconds"`
	Duration        string   `json:"duration"`
	CreatedDate     string   `json:"createdDate"`
	Age             string   `json:"age"`
}

// NewExecutionRow formats r relative to now.
func NewExecutionRow(r types.ExecutionRecord, now time.Time) ExecutionRow {
	workflow := r.WorkflowShortName
	if workflow == "" {
		workflow = aggregate.UnknownWorkflow
	}
	return ExecutionRow{
		InstanceID:      r.InstanceID,
		ShortID:         format.TruncateID(r.InstanceID, tableIDLength),
		Workflow:        workflow,
		Status:          r.Status,
		StatusColor:     aggregate.StatusColor(r.Status),
		DurationSeconds: r.DurationSeconds,
		Duration:        format.DurationPtr(r.DurationSeconds),
		CreatedDate:     r.CreatedDate,
		Age:             format.TimeAgo(r.CreatedDate, now),
	}
}

func executionRows(records []types.ExecutionRecord, now time.Time) []ExecutionRow {
	rows := make([]ExecutionRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, NewExecutionRow(r, now))
	}
	return rows
}

// ExecutionsPage is one sorted page of the executions table.
type ExecutionsPage struct {
	Range      timerange.Range   `json:"range"`
	Sort       aggregate.SortKey `json:"sort"`
	Dir        aggregate.SortDir `json:"dir"`
	Items      []ExecutionRow    `json:"items"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
	TotalPages int               `json:"totalPages"`
	Total      int               `json:"total"`
}

// CertificatesView is the certificate lookup table state.
type CertificatesView struct {
	TenantID string          `json:"tenantId"`
	Range    timerange.Range `json:"range"`
	Query    string          `json:"query"`
	Loading  bool            `json:"loading"`
	// Loaded counts resolved lookups before the search filter.
	Loaded int `json:"loadedCount"`
	projection.Progress
}

// NewCertificatesView applies query to p. Loading state is taken from the
// unfiltered progress.
func NewCertificatesView(tenantID string, r timerange.Range, query string, p projection.Progress) CertificatesView {
	loaded, done := p.Loaded(), p.Done()
	p.Submissions = projection.Search(p.Submissions, query)
	return CertificatesView{
		TenantID: tenantID,
		Range:    r,
		Query:    query,
		Loading:  !done,
		Loaded:   loaded,
		Progress: p,
	}
}

// LoadingText renders the progress caption shown while lookups are pending.
func (v CertificatesView) LoadingText() string {
	return fmt.Sprintf("Loading %d/%d...", v.Loaded, v.Total)
}

// Message is the envelope pushed over the websocket.
type Message struct {
	Type         string            `json:"type"`
	Snapshot     *Snapshot         `json:"snapshot,omitempty"`
	Certificates *CertificatesView `json:"certificates,omitempty"`
	TenantID     string            `json:"tenantId,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Message types.
const (
	MessageSnapshot     = "snapshot"
	MessageCertificates = "certificates"
	MessageError        = "error"
	MessageTenant       = "tenant"
)

// clientMessage is what a browser may send.
type clientMessage struct {
	Type  string `json:"type"`
	Range string `json:"range"`
	Query string `json:"query"`
}
