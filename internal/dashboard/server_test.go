package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowboard/internal/api"
	"flowboard/internal/log"
	"flowboard/internal/projection"
	"flowboard/internal/timerange"
	"flowboard/internal/types"
)

func newTestServer(t *testing.T, up *fakeUpstream) (*Server, *httptest.Server) {
	t.Helper()
	svc := newTestService(t, up)
	srv := NewServer(svc, ServerOptions{RefreshInterval: time.Hour, Logger: log.Nop{}})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func doJSON(t *testing.T, method, url, body string, out interface{}) int {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestServer_Ranges(t *testing.T) {
	_, ts := newTestServer(t, &fakeUpstream{})

	var body struct {
		Options []timerange.Option `json:"options"`
		Default timerange.Range    `json:"default"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/ranges", &body))
	assert.Len(t, body.Options, 9)
	assert.Equal(t, timerange.Today, body.Default)
}

func TestServer_Snapshot(t *testing.T) {
	_, ts := newTestServer(t, &fakeUpstream{records: sampleRecords()})

	var snap Snapshot
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/snapshot?range=today", &snap))
	assert.Equal(t, 4, snap.Metrics.TotalExecutions)
	assert.Equal(t, timerange.Last7Days, snap.APIRange)

	var errBody errorBody
	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/snapshot?range=fortnight", &errBody))
}

func TestServer_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"server error", &api.APIError{Status: 500, Body: "boom"}, http.StatusBadGateway, "upstream"},
		{"unauthorized", &api.APIError{Status: 401, Body: "bad key"}, http.StatusUnauthorized, "authorization"},
		{"forbidden", &api.APIError{Status: 403, Body: "nope"}, http.StatusUnauthorized, "authorization"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ts := newTestServer(t, &fakeUpstream{reportErr: tt.err})

			var body errorBody
			assert.Equal(t, tt.wantStatus, getJSON(t, ts.URL+"/api/snapshot", &body))
			assert.Equal(t, tt.wantKind, body.Kind)
			assert.Equal(t, api.StatusOf(tt.err), body.UpstreamStatus)
			assert.Contains(t, body.Error, "API Error")
		})
	}
}

func TestServer_Executions(t *testing.T) {
	_, ts := newTestServer(t, &fakeUpstream{records: sampleRecords()})

	var page ExecutionsPage
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/executions?range=today&sort=workflow&dir=asc&page=3", &page))
	assert.Equal(t, 0, page.Page, "page is clamped")
	require.Len(t, page.Items, 4)
	assert.Equal(t, "Certificate Submit v2", page.Items[0].Workflow)
	assert.Equal(t, "Intake", page.Items[3].Workflow)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, ts.URL+"/api/executions?page=x", nil))
}

func TestServer_Certificates(t *testing.T) {
	_, ts := newTestServer(t, &fakeUpstream{records: sampleRecords(), details: sampleDetails()})

	var view CertificatesView
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/certificates?range=today&q=C-3", &view))
	assert.Equal(t, 3, view.Total)
	assert.Equal(t, 3, view.Loaded)
	assert.False(t, view.Loading)
	require.Len(t, view.Submissions, 1)
	assert.Equal(t, "c-3", view.Submissions[0].InstanceID)
}

func TestServer_Tenants(t *testing.T) {
	srv, ts := newTestServer(t, &fakeUpstream{records: sampleRecords()})

	var list []tenantView
	assert.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/api/tenants", &list))
	require.Len(t, list, 2)
	assert.True(t, list[0].Active)
	assert.True(t, list[0].HasKeys)

	raw, err := json.Marshal(list)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "k-acme")

	var added tenantView
	assert.Equal(t, http.StatusCreated, doJSON(t, http.MethodPost, ts.URL+"/api/tenants",
		`{"displayName":"Initech","apiKey":"k-ini","workerId":9}`, &added))
	assert.NotEmpty(t, added.ID)
	assert.False(t, added.Active)

	assert.Equal(t, http.StatusConflict, doJSON(t, http.MethodPost, ts.URL+"/api/tenants",
		`{"id":"acme","displayName":"Dup"}`, nil))
	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPost, ts.URL+"/api/tenants", `{`, nil))

	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, ts.URL+"/api/tenants/"+added.ID+"/activate", "", &list))
	assert.Equal(t, added.ID, srv.service.Session().Current().Tenant.ID)

	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodPut, ts.URL+"/api/tenants/"+added.ID, `{"displayName":"Initech Corp"}`, &list))
	updated, ok := srv.service.Session().Registry().Get(added.ID)
	require.True(t, ok)
	assert.Equal(t, "Initech Corp", updated.DisplayName)
	assert.Equal(t, "k-ini", updated.APIKey, "omitted keys are kept")

	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodDelete, ts.URL+"/api/tenants/"+added.ID, "", &list))
	assert.Len(t, list, 2)
	assert.Equal(t, "acme", srv.service.Session().Current().Tenant.ID)

	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodDelete, ts.URL+"/api/tenants/missing", "", nil))
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodPost, ts.URL+"/api/tenants/missing/activate", "", nil))
}

func TestServer_Preferences(t *testing.T) {
	srv, ts := newTestServer(t, &fakeUpstream{})

	var prefs preferencesBody
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodPut, ts.URL+"/api/preferences",
		`{"dateRange":"Last_Hour","theme":"dark"}`, &prefs))
	assert.Equal(t, timerange.LastHour, prefs.DateRange)
	require.NotNil(t, prefs.Theme)
	assert.Equal(t, "dark", *prefs.Theme)
	assert.Equal(t, timerange.LastHour, srv.service.Session().DateRange())

	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPut, ts.URL+"/api/preferences", `{"dateRange":"fortnight"}`, nil))
	assert.Equal(t, http.StatusBadRequest, doJSON(t, http.MethodPut, ts.URL+"/api/preferences", `{"theme":"neon"}`, nil))
}

func TestServer_Report(t *testing.T) {
	_, ts := newTestServer(t, &fakeUpstream{records: sampleRecords()})

	resp, err := http.Get(ts.URL + "/report?range=today&download=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "flowboard-report-")
	assert.Contains(t, string(body), "Acme")
	assert.Contains(t, string(body), "50.0%")
	assert.Contains(t, string(body), "Certificate Submit v2")
}

func TestServer_WebSocket(t *testing.T) {
	srv, ts := newTestServer(t, &fakeUpstream{records: sampleRecords(), details: sampleDetails()})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?range=today"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageSnapshot, msg.Type)
	require.NotNil(t, msg.Snapshot)
	assert.Equal(t, timerange.Today, msg.Snapshot.Range)
	assert.Eventually(t, func() bool { return srv.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "range", "range": "last hour"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageSnapshot, msg.Type)
	assert.Equal(t, timerange.LastHour, msg.Snapshot.Range)
	assert.Equal(t, 1, msg.Snapshot.RecordCount)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "range", "range": "fortnight"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageError, msg.Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "certificates"}))
	var last Message
	for {
		require.NoError(t, conn.ReadJSON(&last))
		require.Equal(t, MessageCertificates, last.Type)
		if !last.Certificates.Loading {
			break
		}
	}
	assert.Equal(t, 3, last.Certificates.Loaded)

	srv.broadcast(context.Background())
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageSnapshot, msg.Type)
	assert.Equal(t, timerange.LastHour, msg.Snapshot.Range)
}

func TestCertificatesView_LoadingText(t *testing.T) {
	v := CertificatesView{Loaded: 3}
	v.Total = 10
	assert.Equal(t, "Loading 3/10...", v.LoadingText())
}

func TestCertificatesView_SearchKeepsLoadingState(t *testing.T) {
	p := projection.NewProgress(3)
	for _, id := range []string{"c-1", "c-2", "c-3"} {
		p = p.Add(types.SubmissionRecord{InstanceID: id, CertificateNumber: "C-" + strings.TrimPrefix(id, "c-")})
	}
	require.True(t, p.Done())

	tests := []struct {
		name     string
		progress projection.Progress
		query    string
		loading  bool
		matches  int
	}{
		{name: "all resolved, search hides two", progress: p, query: "C-3", loading: false, matches: 1},
		{name: "all resolved, search hides all", progress: p, query: "nothing", loading: false, matches: 0},
		{name: "pending, no search", progress: projection.NewProgress(3).Add(types.SubmissionRecord{InstanceID: "c-1"}), loading: true, matches: 1},
		{name: "resolved with a failure", progress: projection.NewProgress(2).Add(types.SubmissionRecord{InstanceID: "c-1", CertificateNumber: "C-1"}).Fail(), query: "C-1", loading: false, matches: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := NewCertificatesView("acme", timerange.Today, tt.query, tt.progress)
			assert.Equal(t, tt.loading, view.Loading)
			assert.Len(t, view.Submissions, tt.matches)
			assert.Equal(t, tt.progress.Loaded(), view.Loaded)
			assert.Equal(t, "acme", view.TenantID)
		})
	}
}

func TestServer_DeliverDropsInactiveTenant(t *testing.T) {
	up := &fakeUpstream{byKey: tenantRecords()}
	srv, _ := newTestServer(t, up)
	svc := srv.service

	// acme's snapshot is computed, then the tenant switches before delivery
	stale, err := svc.Snapshot(context.Background(), timerange.Today)
	require.NoError(t, err)
	require.NoError(t, svc.Session().Switch("globex"))

	c := newClient("c1", nil, timerange.Today)
	assert.False(t, srv.deliver(c, Message{Type: MessageSnapshot, Snapshot: stale}))
	view := NewCertificatesView("acme", timerange.Today, "", projection.NewProgress(0))
	assert.False(t, srv.deliver(c, Message{Type: MessageCertificates, Certificates: &view}))
	assert.Len(t, c.out, 0)

	fresh, err := svc.Snapshot(context.Background(), timerange.Today)
	require.NoError(t, err)
	assert.True(t, srv.deliver(c, Message{Type: MessageSnapshot, Snapshot: fresh}))
	require.Len(t, c.out, 1)
	msg := <-c.out
	assert.Equal(t, "globex", msg.Snapshot.TenantID)
}

func TestServer_TenantSwitchNotifiesClients(t *testing.T) {
	srv, _ := newTestServer(t, &fakeUpstream{byKey: tenantRecords()})

	c := newClient("c1", nil, timerange.Today)
	srv.clientsMutex.Lock()
	srv.clients[c.id] = c
	srv.clientsMutex.Unlock()

	require.NoError(t, srv.service.Session().Switch("globex"))
	require.Len(t, c.out, 1)
	msg := <-c.out
	assert.Equal(t, MessageTenant, msg.Type)
	assert.Equal(t, "globex", msg.TenantID)
}

func TestWriteHTMLReport_NilSnapshot(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, WriteHTMLReport(&buf, nil))
}
