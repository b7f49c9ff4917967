package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/timechildgames/cloudrelay/internal/log"
	"github.com/timechildgames/cloudrelay/internal/protocol"
	"github.com/timechildgames/cloudrelay/internal/queue"
)

//go:generate mockgen -destination=mocks/mock_transport.go -package=mocks github.com/timechildgames/cloudrelay/internal/dispatch Transport

// ErrOffline is reported for requests submitted while the probe says the
// network is unreachable and fail-fast is enabled.
var ErrOffline = errors.New("network unavailable")

// Transport performs calls asynchronously. Send must not block on the network
// and must invoke done exactly once, from any goroutine, unless it returns an
// error, in which case done must not be invoked.
type Transport interface {
	Send(call protocol.Call, done func(protocol.Completion)) error
}

// Probe reports network reachability. It must answer without blocking.
type Probe interface {
	Reachable() bool
}

// Observer is notified as requests move through the dispatcher.
// Completed is called from the transport's goroutine after the result is queued.
type Observer interface {
	Submitted(id queue.RequestID, req Request)
	Completed(r queue.Result)
}

// Request is what the host asks for. When Function is set the request is a
// cloud function call with Params as its JSON object; otherwise Method,
// Endpoint and Body describe a REST request relative to the backend root.
type Request struct {
	Function string
	Params   string

	Method   string
	Endpoint string
	Body     string

	SessionToken string
}

// Describe returns a short label for logs and events.
func (r Request) Describe() string {
	if r.Function != "" {
		return "function " + r.Function
	}
	return r.Method + " " + r.Endpoint
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithPrecedence sets the failure message precedence.
func WithPrecedence(p ErrorPrecedence) Option {
	return func(d *Dispatcher) { d.precedence = p }
}

// WithProbe makes Submit fail fast with ErrOffline while probe is unreachable.
func WithProbe(p Probe) Option {
	return func(d *Dispatcher) { d.probe = p }
}

// WithObserver registers an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observers = append(d.observers, o) }
}

// WithLogger replaces the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// Dispatcher owns the ID allocator and the result queue for one session.
type Dispatcher struct {
	ids       Allocator
	results   *queue.Queue
	builder   *protocol.Builder
	transport Transport

	precedence ErrorPrecedence
	probe      Probe
	observers  []Observer
	logger     *slog.Logger

	outstanding atomic.Int64
}

// New creates a Dispatcher that builds calls with b and sends them over t.
func New(b *protocol.Builder, t Transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		results:   queue.New(),
		builder:   b,
		transport: t,
		logger:    log.WithComponent("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit starts req and returns its ID immediately. It never fails: problems
// found before or during dispatch are queued as a failure result for the ID.
func (d *Dispatcher) Submit(req Request) queue.RequestID {
	id := d.ids.Next()
	d.outstanding.Add(1)

	logger := d.logger.With("request_id", int64(id))
	for _, o := range d.observers {
		o.Submitted(id, req)
	}

	done := d.completer(id, logger)

	call, err := d.build(req)
	if err != nil {
		logger.Warn("request construction failed", "request", req.Describe(), "error", err)
		done(protocol.Failure(queue.StatusUnknown, "", err))
		return id
	}

	if d.probe != nil && !d.probe.Reachable() {
		logger.Warn("network unreachable, failing request", "request", req.Describe())
		done(protocol.Failure(queue.StatusUnknown, "", ErrOffline))
		return id
	}

	if err := d.send(call, done); err != nil {
		logger.Error("transport refused request", "request", req.Describe(), "error", err)
		done(protocol.Failure(queue.StatusUnknown, "", fmt.Errorf("dispatch: %w", err)))
		return id
	}

	logger.Debug("request dispatched", "request", req.Describe(), "url", call.URL)
	return id
}

// FetchNext pops the oldest completed result. ok is false when none is waiting.
func (d *Dispatcher) FetchNext() (r queue.Result, ok bool) {
	return d.results.PopOldest()
}

// Outstanding returns how many submitted requests have not produced a result yet.
func (d *Dispatcher) Outstanding() int {
	return int(d.outstanding.Load())
}

// Queued returns how many results are waiting to be fetched.
func (d *Dispatcher) Queued() int {
	return d.results.Len()
}

// Issued returns how many request IDs have been handed out.
func (d *Dispatcher) Issued() int64 {
	return d.ids.Issued()
}

// Wait blocks until every submitted request has produced a result or ctx is done.
// Results stay queued; Wait does not consume them.
func (d *Dispatcher) Wait(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for d.Outstanding() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (d *Dispatcher) build(req Request) (protocol.Call, error) {
	if req.Function != "" {
		return d.builder.FunctionCall(req.Function, req.Params, req.SessionToken)
	}
	return d.builder.RESTCall(req.Method, req.Endpoint, req.Body, req.SessionToken)
}

// send shields Submit from a panicking transport.
func (d *Dispatcher) send(call protocol.Call, done func(protocol.Completion)) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	return d.transport.Send(call, done)
}

// completer returns the single-shot handler for id.
func (d *Dispatcher) completer(id queue.RequestID, logger *slog.Logger) func(protocol.Completion) {
	var once sync.Once
	return func(c protocol.Completion) {
		fired := false
		once.Do(func() {
			fired = true
			d.finish(Normalize(id, c, d.precedence), logger)
		})
		if !fired {
			logger.Warn("duplicate completion ignored", "status_code", c.StatusCode)
		}
	}
}

func (d *Dispatcher) finish(r queue.Result, logger *slog.Logger) {
	d.results.Push(r)
	d.outstanding.Add(-1)

	if r.Succeeded() {
		logger.Debug("request completed", "status_code", r.StatusCode())
	} else {
		logger.Info("request failed", "status_code", r.StatusCode(), "error", r.ErrorMessage())
	}

	for _, o := range d.observers {
		o.Completed(r)
	}
}
