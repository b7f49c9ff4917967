package queue

import (
	"encoding/json"
	"time"
)

const (
	// StatusOK is the only status code treated as a successful completion.
	StatusOK = 200

	// StatusUnknown marks a result that carries no meaningful transport status,
	// e.g. a request that failed before it reached the network.
	StatusUnknown = 0

	// UnknownErrorMessage is reported when a failure carries neither an error nor a body.
	UnknownErrorMessage = "An unknown error occurred."
)

// RequestID identifies one submitted request for the lifetime of its dispatcher.
type RequestID int64

// Result is the normalized, immutable outcome of one request.
// Build it with Success or Failure; the zero value is not a valid result.
type Result struct {
	requestID    RequestID
	succeeded    bool
	statusCode   int
	payload      string
	errorMessage string
	completedAt  time.Time
}

// Success returns a result for a request that completed with a payload.
func Success(id RequestID, statusCode int, payload string) Result {
	return Result{
		requestID:   id,
		succeeded:   true,
		statusCode:  statusCode,
		payload:     payload,
		completedAt: time.Now().UTC(),
	}
}

// Failure returns a result for a request that failed. An empty message is
// replaced with UnknownErrorMessage so every failure explains itself.
func Failure(id RequestID, statusCode int, message string) Result {
	if message == "" {
		message = UnknownErrorMessage
	}
	return Result{
		requestID:    id,
		statusCode:   statusCode,
		errorMessage: message,
		completedAt:  time.Now().UTC(),
	}
}

func (r Result) RequestID() RequestID { return r.requestID }

// Succeeded reports whether the transport delivered the request successfully.
func (r Result) Succeeded() bool { return r.succeeded }

// StatusCode is the transport status, or StatusUnknown.
func (r Result) StatusCode() int { return r.statusCode }

func (r Result) CompletedAt() time.Time { return r.completedAt }

// Payload is the raw response body. Empty for failures.
func (r Result) Payload() string { return r.payload }

// ErrorMessage is the failure description. Empty for successes.
func (r Result) ErrorMessage() string { return r.errorMessage }

// IsError reports whether the status code differs from StatusOK.
func (r Result) IsError() bool {
	return r.statusCode != StatusOK
}

// Text returns the payload for successes and the error message for failures.
func (r Result) Text() string {
	if r.succeeded {
		return r.payload
	}
	return r.errorMessage
}

type resultJSON struct {
	RequestID    RequestID `json:"request_id"`
	Succeeded    bool      `json:"succeeded"`
	StatusCode   int       `json:"status_code"`
	Payload      string    `json:"payload,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CompletedAt  time.Time `json:"completed_at"`
}

// MarshalJSON exposes the unexported fields for the bridge API.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		RequestID:    r.requestID,
		Succeeded:    r.succeeded,
		StatusCode:   r.statusCode,
		Payload:      r.payload,
		ErrorMessage: r.errorMessage,
		CompletedAt:  r.completedAt,
	})
}
