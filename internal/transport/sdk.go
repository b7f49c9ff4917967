package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timechildgames/cloudrelay/internal/protocol"
)

// ErrUnsupportedCall is returned by SDK.Send for calls that are not cloud functions.
var ErrUnsupportedCall = errors.New("sdk transport only supports cloud functions")

// FunctionCaller is the vendor SDK surface: invoke a cloud function by name
// with flat string parameters. The session token, if any, travels in ctx.
type FunctionCaller interface {
	CallFunction(ctx context.Context, name string, params map[string]string) (string, error)
}

// StatusCoder is implemented by errors that carry a transport status.
type StatusCoder interface {
	StatusCode() int
}

type sessionKey struct{}

// WithSessionToken attaches a session token for a FunctionCaller.
func WithSessionToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, token)
}

// SessionToken returns the token attached by WithSessionToken.
func SessionToken(ctx context.Context) string {
	s, _ := ctx.Value(sessionKey{}).(string)
	return s
}

// SDK adapts a FunctionCaller to the dispatcher's transport contract.
type SDK struct {
	caller  FunctionCaller
	timeout time.Duration
	workers *workers
}

// NewSDK wraps caller. timeout bounds each call; zero means no deadline.
func NewSDK(caller FunctionCaller, workers int, timeout time.Duration) (*SDK, error) {
	w, err := newWorkers(workers)
	if err != nil {
		return nil, err
	}
	return &SDK{caller: caller, timeout: timeout, workers: w}, nil
}

// Send invokes the call's function. Results are reported with StatusOK;
// failures carry the error's status when it has one.
func (s *SDK) Send(call protocol.Call, done func(protocol.Completion)) error {
	if !call.IsFunction() {
		return fmt.Errorf("%w: %s %s", ErrUnsupportedCall, call.Method, call.URL)
	}
	params, err := protocol.FlattenParams(call.Params)
	if err != nil {
		return err
	}

	return s.workers.run(
		func() { done(s.invoke(call.Function, params, call.SessionToken())) },
		func(err error) { done(protocol.Failure(0, "", err)) },
	)
}

func (s *SDK) invoke(name string, params map[string]string, token string) protocol.Completion {
	ctx := WithSessionToken(context.Background(), token)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := s.caller.CallFunction(ctx, name, params)
	if err != nil {
		status := 0
		var sc StatusCoder
		if errors.As(err, &sc) {
			status = sc.StatusCode()
		}
		return protocol.Failure(status, "", err)
	}
	return protocol.Success(200, result)
}

// Close waits for scheduled calls and releases the worker pool.
func (s *SDK) Close() {
	s.workers.close()
}
