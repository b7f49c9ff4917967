package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatic(t *testing.T) {
	assert.True(t, Static(true).Reachable())
	assert.False(t, Static(false).Reachable())
}

func TestMonitorCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusNotFound)
	}))

	m := NewMonitor(srv.URL, time.Hour, time.Second)
	assert.True(t, m.Reachable(), "optimistic before first check")
	assert.False(t, m.Checked())

	assert.True(t, m.Check(context.Background()), "any HTTP answer is reachable")
	assert.True(t, m.Checked())

	srv.Close()
	assert.False(t, m.Check(context.Background()))
	assert.False(t, m.Reachable())
}

func TestMonitorInvalidURL(t *testing.T) {
	m := NewMonitor("://nope", time.Hour, time.Second)
	assert.False(t, m.Check(context.Background()))
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	m := NewMonitor(srv.URL, 10*time.Millisecond, time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- m.Run(ctx) }()

	assert.Eventually(t, m.Checked, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
