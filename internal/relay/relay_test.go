package relay

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timechildgames/cloudrelay/internal/config"
)

func validConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Backend.BaseURL = "http://127.0.0.1:1/1/"
	cfg.Backend.ApplicationID = "app"
	cfg.Backend.RESTAPIKey = "key"
	return cfg
}

func TestOpenRejectsBadBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Backend.BaseURL = "not a url"
	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)
}

func TestOpenRejectsBadPrecedence(t *testing.T) {
	cfg := validConfig()
	cfg.Transport.ErrorPrecedence = "loudest"
	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)
}

func TestOpenFillsInstallationID(t *testing.T) {
	cfg := validConfig()
	r, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer r.Close()

	assert.NotEmpty(t, cfg.Backend.InstallationID)
	assert.Nil(t, r.Journal)
	assert.NotNil(t, r.Monitor)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := validConfig()
	cfg.Transport.Kind = "sdk"
	cfg.Connectivity.FailFast = true
	cfg.Connectivity.Interval = 20 * time.Millisecond
	cfg.Connectivity.Timeout = 100 * time.Millisecond
	cfg.Journal.Enabled = true
	cfg.Journal.Path = filepath.Join(t.TempDir(), "results.db")

	r, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, r.Journal)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, r.Monitor.Checked, 2*time.Second, 10*time.Millisecond)
	assert.False(t, r.Monitor.Reachable(), "nothing listens on port 1")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	r.Close()
	r.Close()
}
