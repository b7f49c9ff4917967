package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/timechildgames/cloudrelay/internal/log"
	"github.com/timechildgames/cloudrelay/internal/protocol"
)

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 4 << 20

// RESTConfig configures a REST transport.
type RESTConfig struct {
	Timeout time.Duration
	Workers int
	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
}

// REST sends calls as plain HTTP requests.
type REST struct {
	client  *http.Client
	workers *workers
	logger  *slog.Logger
}

// NewREST creates a REST transport with its own worker pool.
func NewREST(cfg RESTConfig) (*REST, error) {
	w, err := newWorkers(cfg.Workers)
	if err != nil {
		return nil, err
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &REST{
		client:  client,
		workers: w,
		logger:  log.WithComponent("transport.rest"),
	}, nil
}

// Send performs call on a worker and reports the outcome to done.
func (t *REST) Send(call protocol.Call, done func(protocol.Completion)) error {
	return t.workers.run(
		func() { done(t.Do(context.Background(), call)) },
		func(err error) { done(protocol.Failure(0, "", err)) },
	)
}

// Do performs call synchronously. 2xx responses succeed; anything else fails
// with the response body attached.
func (t *REST) Do(ctx context.Context, call protocol.Call) protocol.Completion {
	var body io.Reader
	if call.Body != "" {
		body = strings.NewReader(call.Body)
	}

	req, err := http.NewRequestWithContext(ctx, call.Method, call.URL, body)
	if err != nil {
		return protocol.Failure(0, "", fmt.Errorf("build http request: %w", err))
	}
	for k, v := range call.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Debug("http request failed", "method", call.Method, "url", call.URL, "error", err)
		return protocol.Failure(0, "", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return protocol.Failure(resp.StatusCode, "", fmt.Errorf("read response body: %w", err))
	}

	t.logger.Debug("http request completed",
		"method", call.Method,
		"url", call.URL,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return protocol.Failure(resp.StatusCode, string(data), nil)
	}
	return protocol.Success(resp.StatusCode, string(data))
}

// Running returns the number of calls currently executing.
func (t *REST) Running() int {
	return t.workers.running()
}

// Close waits for scheduled calls and releases the worker pool.
func (t *REST) Close() {
	t.workers.close()
}
