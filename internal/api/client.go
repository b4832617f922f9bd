package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"flowboard/internal/log"
	"flowboard/internal/types"
)

// DefaultBaseURL is the public automation platform API.
const DefaultBaseURL = "https://api.doozerai.com/v3"

// ReportTypeSimpleInstances selects the flat execution report.
const ReportTypeSimpleInstances = "simple_instances"

// ErrNoCredentials is returned when a call is made without a tenant key.
var ErrNoCredentials = errors.New("no tenant configured")

// Credentials identify the tenant on every request. They are passed by value
// so a request never observes a tenant switch halfway through.
type Credentials struct {
	TenantID        string
	APIKey          string
	SubscriptionKey string
}

// CredentialsFor snapshots the keys of a tenant.
func CredentialsFor(t types.TenantConfig) Credentials {
	return Credentials{TenantID: t.ID, APIKey: t.APIKey, SubscriptionKey: t.SubscriptionKey}
}

// Valid reports whether the credentials can be sent upstream.
func (c Credentials) Valid() bool {
	return c.APIKey != "" || c.SubscriptionKey != ""
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithLogger sets the client logger.
func WithLogger(l log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client performs authenticated GET requests against the upstream API.
type Client struct {
	baseURL string
	http    *http.Client
	retry   RetryPolicy
	logger  log.Logger
}

// NewClient creates a client for baseURL (DefaultBaseURL when empty).
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		retry:   DefaultRetryPolicy(),
		logger:  log.Global(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Get fetches endpoint with params and decodes the JSON body into out.
// Empty parameter values are omitted from the query string.
func (c *Client) Get(ctx context.Context, creds Credentials, endpoint string, params map[string]string, out interface{}) error {
	if !creds.Valid() {
		return ErrNoCredentials
	}
	u, err := url.Parse(c.baseURL + endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			if v != "" {
				q.Set(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	target := u.String()

	return Do(ctx, c.retry, c.logger, func(ctx context.Context) error {
		return c.get(ctx, creds, target, out)
	})
}

func (c *Client) get(ctx context.Context, creds Credentials, target string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("API_KEY", creds.APIKey)
	req.Header.Set("Ocp-Apim-Subscription-Key", creds.SubscriptionKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("failed to close response body", "error", cerr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	c.logger.Debug("upstream response", "url", req.URL.Path, "status", resp.StatusCode, "tenant", creds.TenantID, "elapsed", time.Since(start).String())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", req.URL.Path, err)
	}
	return nil
}

// Report fetches the flat execution report for an API date-range token.
func (c *Client) Report(ctx context.Context, creds Credentials, dateRange string) ([]types.ExecutionRecord, error) {
	var records []types.ExecutionRecord
	err := c.Get(ctx, creds, "/workflow/report", map[string]string{
		"report_type": ReportTypeSimpleInstances,
		"date_range":  dateRange,
		"doozer_name": "",
	}, &records)
	if err != nil {
		return nil, fmt.Errorf("workflow report: %w", err)
	}
	return records, nil
}

// Instance fetches the full detail of one workflow instance.
func (c *Client) Instance(ctx context.Context, creds Credentials, instanceID string) (*types.WorkflowInstanceDetail, error) {
	var detail types.WorkflowInstanceDetail
	if err := c.Get(ctx, creds, "/workflow/instance", map[string]string{"instance_id": instanceID}, &detail); err != nil {
		return nil, fmt.Errorf("workflow instance %s: %w", instanceID, err)
	}
	return &detail, nil
}

// Workflows fetches the workflow catalog.
func (c *Client) Workflows(ctx context.Context, creds Credentials) ([]types.WorkflowDefinition, error) {
	var defs []types.WorkflowDefinition
	if err := c.Get(ctx, creds, "/workflow/list", nil, &defs); err != nil {
		return nil, fmt.Errorf("workflow list: %w", err)
	}
	return defs, nil
}

// Worker fetches the worker profile.
func (c *Client) Worker(ctx context.Context, creds Credentials, workerID int) (*types.Worker, error) {
	var w types.Worker
	if err := c.Get(ctx, creds, "/worker/"+strconv.Itoa(workerID), nil, &w); err != nil {
		return nil, fmt.Errorf("worker %d: %w", workerID, err)
	}
	return &w, nil
}
