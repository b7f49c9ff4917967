package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/timechildgames/cloudrelay/internal/dispatch"
	"github.com/timechildgames/cloudrelay/internal/log"
)

var (
	_ dispatch.Probe = Static(false)
	_ dispatch.Probe = (*Monitor)(nil)
)

// Static is a dispatch.Probe with a fixed answer.
type Static bool

func (s Static) Reachable() bool { return bool(s) }

// Monitor checks a URL in the background and caches the answer.
// Any HTTP response counts as reachable; only transport errors do not.
type Monitor struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger

	reachable atomic.Bool
	checked   atomic.Bool
}

// NewMonitor creates a Monitor. It reports reachable until the first check
// completes so startup never fails requests spuriously.
func NewMonitor(url string, interval, timeout time.Duration) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	m := &Monitor{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		logger:   log.WithComponent("connectivity"),
	}
	m.reachable.Store(true)
	return m
}

// Reachable returns the result of the latest check.
func (m *Monitor) Reachable() bool {
	return m.reachable.Load()
}

// Checked reports whether at least one check has finished.
func (m *Monitor) Checked() bool {
	return m.checked.Load()
}

// Check probes the URL once and updates the cached answer.
func (m *Monitor) Check(ctx context.Context) bool {
	ok := m.probe(ctx)
	prev := m.reachable.Swap(ok)
	m.checked.Store(true)
	if prev != ok {
		m.logger.Info("connectivity changed", "url", m.url, "reachable", ok)
	}
	return ok
}

func (m *Monitor) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.url, nil)
	if err != nil {
		m.logger.Error("invalid probe url", "url", m.url, "error", err)
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Debug("probe failed", "url", m.url, "error", err)
		return false
	}
	_ = resp.Body.Close()
	return true
}

// Run checks immediately and then on every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
