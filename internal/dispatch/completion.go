package dispatch

import (
	"fmt"
	"strings"

	"github.com/timechildgames/cloudrelay/internal/protocol"
	"github.com/timechildgames/cloudrelay/internal/queue"
)

// ErrorPrecedence decides which part of a failed completion becomes the
// result's error message.
type ErrorPrecedence int

const (
	// ExceptionFirst uses the transport error, then the response body.
	ExceptionFirst ErrorPrecedence = iota
	// BodyFirst uses the response body, then the transport error.
	BodyFirst
)

func (p ErrorPrecedence) String() string {
	switch p {
	case BodyFirst:
		return "body_first"
	default:
		return "exception_first"
	}
}

// ParsePrecedence accepts "exception_first" or "body_first". Empty means ExceptionFirst.
func ParsePrecedence(s string) (ErrorPrecedence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exception_first":
		return ExceptionFirst, nil
	case "body_first":
		return BodyFirst, nil
	default:
		return ExceptionFirst, fmt.Errorf("unknown error precedence %q (want exception_first or body_first)", s)
	}
}

// Normalize converts a transport completion into a Result.
//
// Succeeded and IsError always agree on the returned Result: a delivered
// response is only a success when its status is StatusOK (or unreported), and
// a failure reported with StatusOK is downgraded to StatusUnknown.
func Normalize(id queue.RequestID, c protocol.Completion, p ErrorPrecedence) queue.Result {
	if c.Succeeded {
		switch c.StatusCode {
		case queue.StatusOK, queue.StatusUnknown:
			return queue.Success(id, queue.StatusOK, c.Body)
		}
		return queue.Failure(id, c.StatusCode, errorMessage(protocol.Failure(c.StatusCode, c.Body, nil), p))
	}

	status := c.StatusCode
	if status == queue.StatusOK {
		status = queue.StatusUnknown
	}
	return queue.Failure(id, status, errorMessage(c, p))
}

func errorMessage(c protocol.Completion, p ErrorPrecedence) string {
	var errText, body string
	if c.Err != nil {
		errText = c.Err.Error()
	}
	if c.HasBody() {
		body = c.Body
	}

	first, second := errText, body
	if p == BodyFirst {
		first, second = body, errText
	}

	switch {
	case first != "":
		return first
	case second != "":
		return second
	default:
		return queue.UnknownErrorMessage
	}
}
