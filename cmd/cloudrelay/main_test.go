package main

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/timechildgames/cloudrelay/internal/cloudstub"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cloudrelay.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func stubConfig(t *testing.T) string {
	t.Helper()
	stub := cloudstub.New(cloudstub.Config{ApplicationID: "app", RESTAPIKey: "key"})
	srv := httptest.NewServer(stub.Handler())
	t.Cleanup(srv.Close)
	return writeConfig(t, `
backend:
  base_url: `+srv.URL+`/1/
  application_id: app
  rest_api_key: key
  timeout: 5s
transport:
  workers: 2
`)
}

func TestRunCLIUnknownCommand(t *testing.T) {
	if code := runCLI([]string{"frobnicate"}); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if code := runCLI(nil); code != 1 {
		t.Fatalf("expected exit 1 without args, got %d", code)
	}
}

func TestRunCLIHelpAndVersion(t *testing.T) {
	for _, args := range [][]string{
		{"help"},
		{"--version"},
		{"version", "--json"},
		{"start", "--help"},
		{"call", "-h"},
		{"config", "help"},
	} {
		if code := runCLI(args); code != 0 {
			t.Fatalf("runCLI(%v) = %d, want 0", args, code)
		}
	}
	if code := runCLI([]string{"version", "extra"}); code != 1 {
		t.Fatalf("expected exit 1 for stray version args, got %d", code)
	}
}

func TestConfigCheck(t *testing.T) {
	good := writeConfig(t, "backend:\n  application_id: app\n  rest_api_key: key\n")
	if code := runCLI([]string{"config", "check", "--config", good}); code != 0 {
		t.Fatalf("expected valid config, got exit %d", code)
	}

	bad := writeConfig(t, "transport:\n  kind: pigeon\n")
	if code := runCLI([]string{"config", "check", "--config", bad}); code != 1 {
		t.Fatalf("expected invalid config to fail, got exit %d", code)
	}

	if code := runCLI([]string{"config", "nope"}); code != 1 {
		t.Fatalf("expected unknown action to fail, got exit %d", code)
	}
}

func TestCall(t *testing.T) {
	cfg := stubConfig(t)

	if code := runCLI([]string{"call", "--config", cfg, "hello", `{"name":"CLI"}`}); code != 0 {
		t.Fatalf("expected successful call, got exit %d", code)
	}
	if code := runCLI([]string{"call", "--config", cfg, "missingFunction"}); code != 2 {
		t.Fatalf("expected backend failure exit 2, got %d", code)
	}
	if code := runCLI([]string{"call", "--config", cfg, "bad name"}); code != 2 {
		t.Fatalf("expected construction failure to surface as a result, got %d", code)
	}
	if code := runCLI([]string{"call", "--config", cfg}); code != 1 {
		t.Fatalf("expected usage error, got %d", code)
	}
}

func TestShortenCommit(t *testing.T) {
	if got := shortenCommit("0123456789abcdef"); got != "0123456789ab" {
		t.Fatalf("shortenCommit = %q", got)
	}
	if got := shortenCommit("abc"); got != "abc" {
		t.Fatalf("shortenCommit = %q", got)
	}
}
