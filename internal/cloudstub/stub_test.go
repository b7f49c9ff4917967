package cloudstub

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timechildgames/cloudrelay/internal/protocol"
)

func newTestStub(t *testing.T) (*Stub, *httptest.Server) {
	t.Helper()
	s := New(Config{
		ApplicationID: "app",
		RESTAPIKey:    "key",
		Users:         map[string]string{"ada": "lovelace"},
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func call(t *testing.T, method, url, body string, headers map[string]string) (int, string) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func keys() map[string]string {
	return map[string]string{
		protocol.HeaderApplicationID: "app",
		protocol.HeaderRESTAPIKey:    "key",
	}
}

func TestRejectsMissingKeys(t *testing.T) {
	_, srv := newTestStub(t)

	status, _ := call(t, http.MethodPost, srv.URL+"/1/functions/hello", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = call(t, http.MethodPost, srv.URL+"/1/functions/hello", "", map[string]string{
		protocol.HeaderApplicationID: "app",
		protocol.HeaderRESTAPIKey:    "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestHello(t *testing.T) {
	s, srv := newTestStub(t)

	status, body := call(t, http.MethodPost, srv.URL+"/1/functions/hello", `{"name":"Ada"}`, keys())
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"result":"Hello, Ada!"}`, body)

	status, body = call(t, http.MethodPost, srv.URL+"/1/functions/hello", `{}`, keys())
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"result":"Hello, World!"}`, body)

	assert.Equal(t, 2, s.Calls("hello"))
}

func TestUnknownFunction(t *testing.T) {
	_, srv := newTestStub(t)

	status, body := call(t, http.MethodPost, srv.URL+"/1/functions/nope", `{}`, keys())
	assert.Equal(t, http.StatusBadRequest, status)
	be, ok := protocol.DecodeBackendError(body)
	require.True(t, ok)
	assert.Equal(t, CodeScriptFailed, be.Code)
}

func TestLoginMatchmakingLogout(t *testing.T) {
	_, srv := newTestStub(t)

	status, _ := call(t, http.MethodGet, srv.URL+"/1/login?username=ada&password=wrong", "", keys())
	assert.Equal(t, http.StatusNotFound, status)

	status, body := call(t, http.MethodGet, srv.URL+"/1/login?username=ada&password=lovelace", "", keys())
	require.Equal(t, http.StatusOK, status)
	var login struct {
		Username     string `json:"username"`
		SessionToken string `json:"sessionToken"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &login))
	assert.Equal(t, "ada", login.Username)
	require.True(t, strings.HasPrefix(login.SessionToken, "r:"))

	status, _ = call(t, http.MethodPost, srv.URL+"/1/functions/requestMatchmakingGame", `{"gameType":"duel"}`, keys())
	assert.Equal(t, http.StatusBadRequest, status, "needs a session")

	withSession := keys()
	withSession[protocol.HeaderSessionToken] = login.SessionToken
	status, body = call(t, http.MethodPost, srv.URL+"/1/functions/requestMatchmakingGame", `{"gameType":"duel"}`, withSession)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"result":"Hello, World!"}`, body)

	status, _ = call(t, http.MethodPost, srv.URL+"/1/logout", "", withSession)
	assert.Equal(t, http.StatusOK, status)
	status, _ = call(t, http.MethodPost, srv.URL+"/1/logout", "", withSession)
	assert.Equal(t, http.StatusBadRequest, status, "token already revoked")
}
