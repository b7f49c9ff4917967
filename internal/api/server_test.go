package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timechildgames/cloudrelay/internal/auth"
	"github.com/timechildgames/cloudrelay/internal/connectivity"
	"github.com/timechildgames/cloudrelay/internal/dispatch"
	"github.com/timechildgames/cloudrelay/internal/events"
	"github.com/timechildgames/cloudrelay/internal/queue"
	"github.com/timechildgames/cloudrelay/internal/storage"
)

const adminKey = "admin-key"

type fakeRelay struct {
	mu        sync.Mutex
	submitted []dispatch.Request
	results   *queue.Queue
}

func newFakeRelay() *fakeRelay { return &fakeRelay{results: queue.New()} }

func (f *fakeRelay) Submit(req dispatch.Request) queue.RequestID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	return queue.RequestID(len(f.submitted) - 1)
}

func (f *fakeRelay) FetchNext() (queue.Result, bool) { return f.results.PopOldest() }
func (f *fakeRelay) Outstanding() int { return 3 }
func (f *fakeRelay) Queued() int { return f.results.Len() }

func (f *fakeRelay) last() dispatch.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted[len(f.submitted)-1]
}

func newTestServer(t *testing.T, relay Relay, opts ...Option) (*Server, *events.Hub) {
	t.Helper()
	hub := events.NewHub(16)
	cfg := Config{
		APIKey: adminKey,
		Tokens: []auth.TokenConfig{
			{Token: "reader", Scopes: []string{auth.ScopeResultsRO, auth.ScopeEventsRO}},
			{Token: "submitter", Scopes: []string{auth.ScopeRequestsRW}},
		},
	}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return New(cfg, relay, hub, logger, opts...), hub
}

func do(t *testing.T, h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzIsPublic(t *testing.T) {
	s, _ := newTestServer(t, newFakeRelay(), WithProbe(connectivity.Static(false)))
	rec := do(t, s.Handler(), http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Outstanding)
	assert.False(t, resp.NetworkAvailable)
}

func TestAuthRequired(t *testing.T) {
	s, _ := newTestServer(t, newFakeRelay())
	h := s.Handler()

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/results/next", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/results/next", "wrong", "").Code)
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/results/next", "reader", "").Code)
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodPost, "/requests", "reader", `{}`).Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodGet, "/results/next", adminKey, "").Code)
}

func TestSubmitFunction(t *testing.T) {
	relay := newFakeRelay()
	s, _ := newTestServer(t, relay)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/functions/hello", "submitter", `{"params":{"name":"Ada"},"session_token":"r:1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"request_id":0}`, rec.Body.String())
	assert.Equal(t, dispatch.Request{Function: "hello", Params: `{"name":"Ada"}`, SessionToken: "r:1"}, relay.last())

	rec = do(t, h, http.MethodPost, "/functions/hello", "submitter", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"request_id":1}`, rec.Body.String())
	assert.Equal(t, dispatch.Request{Function: "hello"}, relay.last())

	rec = do(t, h, http.MethodPost, "/functions/hello", "submitter", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitREST(t *testing.T) {
	relay := newFakeRelay()
	s, _ := newTestServer(t, relay)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/requests", adminKey, `{"method":"PUT","endpoint":"classes/Score/1","body":{"points":3}}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, dispatch.Request{Method: "PUT", Endpoint: "classes/Score/1", Body: `{"points":3}`}, relay.last())

	rec = do(t, h, http.MethodPost, "/requests", adminKey, `{"method":"GET"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNextResult(t *testing.T) {
	relay := newFakeRelay()
	s, _ := newTestServer(t, relay)
	h := s.Handler()

	relay.results.Push(queue.Failure(4, 500, "boom"))
	relay.results.Push(queue.Success(2, 200, "ok"))

	rec := do(t, h, http.MethodGet, "/results/next", adminKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var first map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.Equal(t, float64(4), first["request_id"])
	assert.Equal(t, false, first["succeeded"])
	assert.Equal(t, "boom", first["error_message"])

	rec = do(t, h, http.MethodGet, "/results/next", adminKey, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"request_id":2`)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodGet, "/results/next", adminKey, "").Code)
}

func TestResultLog(t *testing.T) {
	s, _ := newTestServer(t, newFakeRelay())
	assert.Equal(t, http.StatusNotFound, do(t, s.Handler(), http.MethodGet, "/results/log", "reader", "").Code)

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	journal := storage.NewJournal(db)
	t.Cleanup(journal.Close)
	journal.Completed(queue.Success(0, 200, "a"))
	journal.Completed(queue.Failure(1, 0, "offline"))

	s, _ = newTestServer(t, newFakeRelay(), WithJournal(journal))
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/results/log?limit=1", "reader", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []storage.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, int64(1), entries[0].RequestID)
	assert.Equal(t, "offline", entries[0].ErrorMessage)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/results/log?limit=zero", "reader", "").Code)
}

func TestEventsStream(t *testing.T) {
	s, hub := newTestServer(t, newFakeRelay())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	hub.Publish(events.RequestSubmitted, events.SubmittedData{RequestID: 0, Request: "function hello"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer reader")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	scanner := bufio.NewScanner(resp.Body)
	readEvent := func() (string, string) {
		var typ, data string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				typ = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && typ != "":
				return typ, data
			}
		}
		return typ, data
	}

	typ, data := readEvent()
	assert.Equal(t, events.RequestSubmitted, typ)
	assert.JSONEq(t, `{"request_id":0,"request":"function hello"}`, data)

	hub.Publish(events.RequestCompleted, events.CompletedData{RequestID: 0, Succeeded: true, StatusCode: 200})
	typ, data = readEvent()
	assert.Equal(t, events.RequestCompleted, typ)
	assert.JSONEq(t, `{"request_id":0,"succeeded":true,"status_code":200}`, data)
}

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, int64(0), parseLastEventID(""))
	assert.Equal(t, int64(0), parseLastEventID("-4"))
	assert.Equal(t, int64(0), parseLastEventID("abc"))
	assert.Equal(t, int64(12), parseLastEventID("12"))
}
