// Package projection turns certificate workflow instance details into flat
// submission records.
package projection

import (
	"encoding/json"
	"strconv"
	"strings"

	"flowboard/internal/types"
)

// CertificateWorkflow is the workflow whose instances carry submissions.
const CertificateWorkflow = "Certificate Submit v2"

// Data dictionary keys read into a SubmissionRecord.
const (
	keyCertificateNumber = "certificate_number"
	keyCustomerName      = "customer_name"
	keyCustomerEmail     = "customer_email"
	keyExactAddress      = "exact_address"
)

// Qualifying returns the records that need a detail lookup: certificate
// workflow executions with an instance id.
func Qualifying(records []types.ExecutionRecord) []types.ExecutionRecord {
	out := make([]types.ExecutionRecord, 0)
	for _, r := range records {
		if r.WorkflowShortName == CertificateWorkflow && r.InstanceID != "" {
			out = append(out, r)
		}
	}
	return out
}

// Project maps an instance detail onto a SubmissionRecord. Missing or
// non-textual dictionary entries become empty strings.
func Project(detail *types.WorkflowInstanceDetail) types.SubmissionRecord {
	if detail == nil {
		return types.SubmissionRecord{}
	}
	d := detail.DataDictionary
	return types.SubmissionRecord{
		InstanceID:        detail.ID,
		CertificateNumber: Stringify(d[keyCertificateNumber]),
		CustomerName:      Stringify(d[keyCustomerName]),
		CustomerEmail:     Stringify(d[keyCustomerEmail]),
		ExactAddress:      Stringify(d[keyExactAddress]),
		Status:            detail.Status,
		CreatedAt:         detail.StartDate,
	}
}

// Stringify renders a decoded JSON primitive. Objects, arrays and null
// become "".
func Stringify(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

// Search keeps submissions whose certificate number, customer name, email or
// address contains query, ignoring case. A blank query keeps everything.
func Search(subs []types.SubmissionRecord, query string) []types.SubmissionRecord {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]types.SubmissionRecord, 0, len(subs))
	for _, s := range subs {
		if q == "" ||
			strings.Contains(strings.ToLower(s.CertificateNumber), q) ||
			strings.Contains(strings.ToLower(s.CustomerName), q) ||
			strings.Contains(strings.ToLower(s.CustomerEmail), q) ||
			strings.Contains(strings.ToLower(s.ExactAddress), q) {
			out = append(out, s)
		}
	}
	return out
}
