package app

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/smallnest/tenantflow/ingestion"
	"github.com/smallnest/tenantflow/llm/llmtest"
	"github.com/smallnest/tenantflow/log"
	"github.com/smallnest/tenantflow/spamtriage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, a *App) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHandler(a, a.Metrics().Handler(), log.NoOpLogger{}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, contentType, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func TestHTTPChatAndThreads(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newTestApp(t, nil, scripted(llmtest.Echo())))

	code, body := do(t, http.MethodPost, srv.URL+"/v1/chat", "application/json", `{"message": "hi there", "thread_id": "web-1"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.JSONEq(t, `{"answer": "hi there", "thread_id": "web-1"}`, body)

	code, body = do(t, http.MethodGet, srv.URL+"/v1/threads/web-1", "", "")
	require.Equal(t, http.StatusOK, code, body)
	var thread threadResponse
	require.NoError(t, json.Unmarshal([]byte(body), &thread))
	assert.Equal(t, "web-1", thread.ThreadID)
	require.Len(t, thread.Messages, 2)
	assert.Equal(t, "hi there", thread.Messages[1].Content)

	code, _ = do(t, http.MethodDelete, srv.URL+"/v1/threads/web-1", "", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = do(t, http.MethodDelete, srv.URL+"/v1/threads/web-1", "", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = do(t, http.MethodGet, srv.URL+"/v1/threads/web-1", "", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHTTPChatAssignsThread(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newTestApp(t, nil, scripted(llmtest.Echo())))

	code, body := do(t, http.MethodPost, srv.URL+"/v1/chat", "application/json", `{"message": "new"}`)
	require.Equal(t, http.StatusOK, code, body)
	var resp chatResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.NotEmpty(t, resp.ThreadID)

	code, _ = do(t, http.MethodGet, srv.URL+"/v1/threads/"+resp.ThreadID, "", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestHTTPChatErrors(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newTestApp(t, nil, scripted(llmtest.Echo())))

	code, body := do(t, http.MethodPost, srv.URL+"/v1/chat", "application/json", `{"message": ""}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body, "empty message")

	code, _ = do(t, http.MethodPost, srv.URL+"/v1/chat", "application/json", `{"message": "hi", "provider": "nope"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, http.MethodPost, srv.URL+"/v1/chat", "application/json", `not json`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHTTPChatStream(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newTestApp(t, nil, scripted(llmtest.New(llmtest.Text("one two three")))))

	code, body := do(t, http.MethodPost, srv.URL+"/v1/chat/stream", "application/json", `{"message": "count", "thread_id": "sse"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t,
		"data: {\"delta\":\"one \"}\n\n"+
			"data: {\"delta\":\"two \"}\n\n"+
			"data: {\"delta\":\"three\"}\n\n"+
			"event: done\ndata: {\"thread_id\":\"sse\"}\n\n",
		body)
}

func TestHTTPSpam(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newTestApp(t, nil, scripted(llmtest.Echo())))

	code, body := do(t, http.MethodPost, srv.URL+"/v1/spam", "application/json",
		`{"id": "m1", "subject": "You have won!", "body": "You have won the lottery. Click here to claim."}`)
	require.Equal(t, http.StatusOK, code, body)

	var d spamtriage.Decision
	require.NoError(t, json.Unmarshal([]byte(body), &d))
	assert.Equal(t, spamtriage.ActionReject, d.Action)
	assert.Equal(t, []spamtriage.ReasonCode{spamtriage.ReasonHighSpamScore}, d.ReasonCodes)
}

func TestHTTPIngest(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newTestApp(t, nil, scripted(llmtest.Echo())))

	code, body := do(t, http.MethodPost, srv.URL+"/v1/ingest/teams", "text/csv; charset=utf-8",
		"name,city,founded\nLakers,Los Angeles,1947\nCeltics,,1946\n")
	require.Equal(t, http.StatusOK, code, body)
	var r ingestion.Result
	require.NoError(t, json.Unmarshal([]byte(body), &r))
	assert.Equal(t, 1, r.DB)
	assert.Equal(t, 2, r.Total)
	assert.Equal(t, []string{`record 2: missing required field "city"`}, r.Errors)

	code, body = do(t, http.MethodPost, srv.URL+"/v1/ingest/matches", "application/json",
		`{"records": [{"home_team": "A", "away_team": "B", "date": "2024-05-01", "home_score": 101}]}`)
	require.Equal(t, http.StatusOK, code, body)
	require.NoError(t, json.Unmarshal([]byte(body), &r))
	assert.Equal(t, 1, r.DB)

	code, _ = do(t, http.MethodPost, srv.URL+"/v1/ingest/coaches", "application/json", `{"records": []}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHTTPMetrics(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newTestApp(t, nil, scripted(llmtest.Echo())))

	code, _ := do(t, http.MethodPost, srv.URL+"/v1/chat", "application/json", `{"message": "hi"}`)
	require.Equal(t, http.StatusOK, code)

	code, body := do(t, http.MethodGet, srv.URL+"/metrics", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `tenantflow_graph_runs_total{graph="chat_agent",status="ok"} 1`)

	code, _ = do(t, http.MethodGet, srv.URL+"/healthz", "", "")
	assert.Equal(t, http.StatusOK, code)
}
