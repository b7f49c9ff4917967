package storage

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/timechildgames/cloudrelay/internal/dispatch"
	"github.com/timechildgames/cloudrelay/internal/log"
	"github.com/timechildgames/cloudrelay/internal/queue"
)

// timeLayout sorts lexically, which Prune relies on.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const (
	recordTimeout = 5 * time.Second
	journalBuffer = 1024
)

// Entry is one journaled result. Payloads are not stored, only their hash.
type Entry struct {
	RunID        string    `json:"run_id"`
	RequestID    int64     `json:"request_id"`
	Succeeded    bool      `json:"succeeded"`
	StatusCode   int       `json:"status_code"`
	PayloadHash  string    `json:"payload_hash,omitempty"`
	PayloadSize  int       `json:"payload_size"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Journal records completed results. Request IDs restart with every process,
// so rows are keyed by a run id as well.
//
// Completed runs on transport goroutines and only enqueues; a single writer
// goroutine inserts in completion order. When the buffer is full results are
// dropped and counted rather than stalling the transport.
type Journal struct {
	db     *sql.DB
	runID  string
	logger *slog.Logger

	mu      sync.RWMutex
	closed  bool
	ops     chan journalOp
	done    chan struct{}
	dropped atomic.Int64
}

// journalOp is either a result to insert or a flush marker.
type journalOp struct {
	result  queue.Result
	flushed chan struct{}
}

var _ dispatch.Observer = (*Journal)(nil)

// NewJournal returns a Journal writing to db under a fresh run id.
// Close must be called before db is closed.
func NewJournal(db *sql.DB) *Journal {
	return newJournal(db, journalBuffer)
}

func newJournal(db *sql.DB, buffer int) *Journal {
	j := &Journal{
		db:     db,
		runID:  uuid.NewString(),
		logger: log.WithComponent("journal"),
		ops:    make(chan journalOp, buffer),
		done:   make(chan struct{}),
	}
	go j.write()
	return j
}

func (j *Journal) write() {
	defer close(j.done)
	for op := range j.ops {
		if op.flushed != nil {
			close(op.flushed)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := j.Record(ctx, op.result); err != nil {
			j.logger.Error("failed to journal result", "request_id", int64(op.result.RequestID()), "error", err)
		}
		cancel()
	}
}

// RunID identifies this process's rows.
func (j *Journal) RunID() string { return j.runID }

// Submitted implements dispatch.Observer. Pending requests are not persisted.
func (j *Journal) Submitted(queue.RequestID, dispatch.Request) {}

// Completed implements dispatch.Observer. It never blocks.
func (j *Journal) Completed(r queue.Result) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		j.logger.Warn("journal closed, result not recorded", "request_id", int64(r.RequestID()))
		return
	}
	select {
	case j.ops <- journalOp{result: r}:
	default:
		n := j.dropped.Add(1)
		j.logger.Warn("journal buffer full, result not recorded", "request_id", int64(r.RequestID()), "dropped", n)
	}
}

// Dropped reports how many results Completed discarded because the buffer was full.
func (j *Journal) Dropped() int64 { return j.dropped.Load() }

// Flush waits until every result enqueued before the call has been written.
func (j *Journal) Flush(ctx context.Context) error {
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return nil
	}
	marker := make(chan struct{})
	select {
	case j.ops <- journalOp{flushed: marker}:
		j.mu.RUnlock()
	case <-ctx.Done():
		j.mu.RUnlock()
		return ctx.Err()
	}
	select {
	case <-marker:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting results and waits for the queued ones to be written.
func (j *Journal) Close() {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return
	}
	j.closed = true
	close(j.ops)
	j.mu.Unlock()
	<-j.done
}

// Record inserts r.
func (j *Journal) Record(ctx context.Context, r queue.Result) error {
	var hash sql.NullString
	if p := r.Payload(); p != "" {
		sum := blake3.Sum256([]byte(p))
		hash = sql.NullString{String: hex.EncodeToString(sum[:]), Valid: true}
	}
	var errMsg sql.NullString
	if !r.Succeeded() {
		errMsg = sql.NullString{String: r.ErrorMessage(), Valid: true}
	}

	_, err := j.db.ExecContext(ctx, `
INSERT INTO result_log(run_id, request_id, succeeded, status_code, payload_hash, payload_size, error_message, completed_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, j.runID, int64(r.RequestID()), r.Succeeded(), r.StatusCode(), hash, len(r.Payload()), errMsg,
		r.CompletedAt().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert result_log: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. Results already handed to
// Completed are written before the query runs.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	if err := j.Flush(ctx); err != nil {
		return nil, fmt.Errorf("flush journal: %w", err)
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT run_id, request_id, succeeded, status_code, payload_hash, payload_size, error_message, completed_at
FROM result_log
ORDER BY seq DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query result_log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e           Entry
			hash        sql.NullString
			errMsg      sql.NullString
			completedAt string
		)
		if err := rows.Scan(&e.RunID, &e.RequestID, &e.Succeeded, &e.StatusCode, &hash, &e.PayloadSize, &errMsg, &completedAt); err != nil {
			return nil, fmt.Errorf("scan result_log: %w", err)
		}
		e.PayloadHash = hash.String
		e.ErrorMessage = errMsg.String
		if e.CompletedAt, err = time.Parse(timeLayout, completedAt); err != nil {
			return nil, fmt.Errorf("parse completed_at %q: %w", completedAt, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result_log: %w", err)
	}
	return out, nil
}

// Prune deletes entries completed more than retention ago and reports how many went.
func (j *Journal) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().Format(timeLayout)
	res, err := j.db.ExecContext(ctx, `DELETE FROM result_log WHERE completed_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune result_log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune result_log: %w", err)
	}
	if n > 0 {
		j.logger.Info("pruned result log", "deleted", n, "retention", retention.String())
	}
	return n, nil
}

// RunPruner prunes on every interval until ctx is done.
func (j *Journal) RunPruner(ctx context.Context, retention, interval time.Duration) {
	if retention <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := j.Prune(ctx, retention); err != nil && ctx.Err() == nil {
			j.logger.Warn("prune failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
