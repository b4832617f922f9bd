package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowboard/internal/log"
)

var testCreds = Credentials{TenantID: "acme", APIKey: "key-1", SubscriptionKey: "sub-1"}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, WithRetryPolicy(fastPolicy()), WithLogger(log.Nop{}))
}

func TestClient_HeadersAndParams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/workflow/report", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("API_KEY"))
		assert.Equal(t, "sub-1", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		q := r.URL.Query()
		assert.Equal(t, "simple_instances", q.Get("report_type"))
		assert.Equal(t, "last 7 days", q.Get("date_range"))
		_, hasDoozer := q["doozer_name"]
		assert.False(t, hasDoozer, "empty params are omitted")

		_, _ = w.Write([]byte(`[{"instanceid":"a1","workflow_short_name":"Intake","status":"complete","duration_seconds":12.5,"createddate":"2024-03-13T10:00:00Z","_ts":1710324000}]`))
	})

	records, err := c.Report(context.Background(), testCreds, "last 7 days")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a1", records[0].InstanceID)
	assert.Equal(t, "Intake", records[0].WorkflowShortName)
	d, ok := records[0].Duration()
	assert.True(t, ok)
	assert.Equal(t, 12.5, d)
}

func TestClient_InstanceWorkerWorkflows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/workflow/instance":
			assert.Equal(t, "i-9", r.URL.Query().Get("instance_id"))
			_, _ = w.Write([]byte(`{"id":"i-9","status":"complete","start_date":"2024-03-13T10:00:00Z","data_dictinary":{"certificate_number":42}}`))
		case "/worker/215":
			_, _ = w.Write([]byte(`{"WorkerID":215,"Name":"Dispatch","tools":[]}`))
		case "/workflow/list":
			_, _ = w.Write([]byte(`[{"id":"w1","short_name":"Certificate Submit v2","version":2}]`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	detail, err := c.Instance(ctx, testCreds, "i-9")
	require.NoError(t, err)
	assert.Equal(t, "i-9", detail.ID)
	assert.Equal(t, float64(42), detail.DataDictionary["certificate_number"])

	worker, err := c.Worker(ctx, testCreds, 215)
	require.NoError(t, err)
	assert.Equal(t, "Dispatch", worker.Name)

	defs, err := c.Workflows(ctx, testCreds)
	require.NoError(t, err)
	require.Len(t, defs, 1)
}

func TestClient_APIErrorAndRetry(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantCalls int32
		wantAuth  bool
	}{
		{"server error retried twice", http.StatusInternalServerError, 3, false},
		{"not found retried twice", http.StatusNotFound, 3, false},
		{"unauthorized not retried", http.StatusUnauthorized, 1, true},
		{"forbidden not retried", http.StatusForbidden, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("nope"))
			})

			_, err := c.Report(context.Background(), testCreds, "today")
			require.Error(t, err)
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
			assert.Equal(t, tt.wantAuth, IsAuthError(err))
			assert.Equal(t, tt.status, StatusOf(err))

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, "nope", apiErr.Body)
		})
	}
}

func TestClient_RecoversAfterTransientFailure(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	records, err := c.Report(context.Background(), testCreds, "today")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_NoCredentials(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", WithLogger(log.Nop{}))
	_, err := c.Report(context.Background(), Credentials{}, "today")
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestAPIError_Message(t *testing.T) {
	err := &APIError{Status: 503, Body: "down"}
	assert.Equal(t, "API Error 503: down", err.Error())
	assert.True(t, err.IsRecoverable())
	assert.False(t, (&APIError{Status: 401}).IsRecoverable())
}
