package types

import (
	"strings"
	"time"
)

// ExecutionRecord is one row of the simple_instances workflow report.
type ExecutionRecord struct {
	InstanceID        string   `json:"instanceid"`
	WorkflowShortName string   `json:"workflow_short_name"`
	DoozerName        string   `json:"doozer_name"`
	DurationSeconds   *float64 `json:"duration_seconds"`
	Status            string   `json:"status"`
	TS                int64    `json:"_ts"`
	CreatedDate       string   `json:"createddate"`
	EndDate           *string  `json:"enddate"`
}

// Duration returns the measured duration and whether it is usable.
// Missing or non-positive values are "not yet measured".
func (r ExecutionRecord) Duration() (float64, bool) {
	if r.DurationSeconds == nil || *r.DurationSeconds <= 0 {
		return 0, false
	}
	return *r.DurationSeconds, true
}

// CreatedAt parses CreatedDate. Zone-less timestamps are read in loc.
func (r ExecutionRecord) CreatedAt(loc *time.Location) (time.Time, bool) {
	return ParseTimestamp(r.CreatedDate, loc)
}

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 and the zone-less ISO-8601 forms the
// reporting endpoint emits. It never panics; ok is false for anything else.
func ParseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range zonelessLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// WorkflowInstanceDetail is the /workflow/instance payload. Only the fields
// the dashboard reads are typed strictly; DataDictionary is free-form.
type WorkflowInstanceDetail struct {
	ID                string                 `json:"id"`
	WorkflowShortName string                 `json:"workflow_short_name"`
	WorkflowName      string                 `json:"workflow_name"`
	DoozerName        string                 `json:"doozer_name"`
	Status            string                 `json:"status"`
	StartDate         string                 `json:"start_date"`
	EndDate           *string                `json:"end_date"`
	DurationSeconds   *float64               `json:"duration_seconds"`
	CurrentStepID     string                 `json:"current_step_id"`
	CompletedSteps    []string               `json:"completed_steps"`
	ActiveSteps       []string               `json:"active_steps"`
	InitialVariables  map[string]interface{} `json:"initial_variables"`
	// the upstream field name is misspelled
	DataDictionary    map[string]interface{} `json:"data_dictinary"`
	Costs             *WorkflowCosts         `json:"costs"`
	ErrorMessage      *string                `json:"error_message"`
	ErrorStepID       *string                `json:"error_step_id"`
	FinalOutput       *string                `json:"final_output"`
	InitiationContext map[string]interface{} `json:"initiation_context"`
}

// WorkflowCosts holds token usage for an instance.
type WorkflowCosts struct {
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalCost        float64 `json:"total_cost"`
}

// SubmissionRecord is the flat view of a certificate submission.
type SubmissionRecord struct {
	InstanceID        string `json:"instanceId"`
	CertificateNumber string `json:"certificateNumber"`
	CustomerName      string `json:"customerName"`
	CustomerEmail     string `json:"customerEmail"`
	ExactAddress      string `json:"exactAddress"`
	Status            string `json:"status"`
	CreatedAt         string `json:"createdAt"`
}

// WorkflowDefinition is one entry of the /workflow/list catalog.
type WorkflowDefinition struct {
	ID           string `json:"id"`
	ShortName    string `json:"short_name"`
	WorkflowName string `json:"workflow_name"`
	Description  string `json:"description"`
	WorkerID     string `json:"worker_id"`
	Version      int    `json:"version"`
}

// Worker is the agent profile bound to a tenant.
type Worker struct {
	WorkerID   int          `json:"WorkerID"`
	Name       string       `json:"Name"`
	Role       string       `json:"Role"`
	Email      string       `json:"Email"`
	HireStatus string       `json:"HireStatus"`
	WorkerGUID string       `json:"WorkerGUID"`
	Picture    string       `json:"Picture"`
	Tools      []WorkerTool `json:"tools"`
}

// WorkerTool is a tool enabled on a worker.
type WorkerTool struct {
	ToolID   string `json:"ToolID"`
	ToolName string `json:"ToolName"`
}
