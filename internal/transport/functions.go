package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/timechildgames/cloudrelay/internal/protocol"
)

// StatusError is a failed call that carries its HTTP status.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string { return e.Err.Error() }
func (e *StatusError) Unwrap() error { return e.Err }

// StatusCode implements StatusCoder.
func (e *StatusError) StatusCode() int { return e.Code }

// Functions implements FunctionCaller over the REST transport, so the SDK
// code path can run without a vendor SDK.
type Functions struct {
	rest    *REST
	builder *protocol.Builder
}

func NewFunctions(rest *REST, builder *protocol.Builder) *Functions {
	return &Functions{rest: rest, builder: builder}
}

// CallFunction posts params to the named function and unwraps its result.
func (f *Functions) CallFunction(ctx context.Context, name string, params map[string]string) (string, error) {
	if params == nil {
		params = map[string]string{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}
	call, err := f.builder.FunctionCall(name, string(body), SessionToken(ctx))
	if err != nil {
		return "", err
	}

	c := f.rest.Do(ctx, call)
	switch {
	case c.Err != nil:
		return "", &StatusError{Code: c.StatusCode, Err: c.Err}
	case !c.Succeeded:
		if be, ok := protocol.DecodeBackendError(c.Body); ok {
			return "", &StatusError{Code: c.StatusCode, Err: be}
		}
		if c.HasBody() {
			return "", &StatusError{Code: c.StatusCode, Err: errors.New(c.Body)}
		}
		return "", &StatusError{Code: c.StatusCode, Err: fmt.Errorf("function %s failed with status %d", name, c.StatusCode)}
	}
	return protocol.DecodeFunctionResult(c.Body)
}
