package protocol

import "strings"

// Header names understood by the backend's REST surface.
const (
	HeaderApplicationID  = "X-Parse-Application-Id"
	HeaderRESTAPIKey     = "X-Parse-REST-API-Key"
	HeaderSessionToken   = "X-Parse-Session-Token"
	HeaderInstallationID = "X-Parse-Installation-Id"
	HeaderContentType    = "Content-Type"

	ContentTypeJSON = "application/json"
)

// Call is a fully built, transport-agnostic request.
type Call struct {
	Method  string
	URL     string
	Body    string
	Headers map[string]string

	// Function and Params are set for cloud function calls so SDK-style
	// transports can invoke the function by name instead of by URL.
	Function string
	Params   string
}

// IsFunction reports whether the call targets a cloud function.
func (c Call) IsFunction() bool {
	return c.Function != ""
}

// SessionToken returns the session header value, if any.
func (c Call) SessionToken() string {
	return c.Headers[HeaderSessionToken]
}

// Completion is what a transport reports exactly once per call.
type Completion struct {
	Succeeded  bool
	StatusCode int
	Body       string
	Err        error
}

// Success builds the completion for a delivered response.
func Success(statusCode int, body string) Completion {
	return Completion{Succeeded: true, StatusCode: statusCode, Body: body}
}

// Failure builds the completion for a failed call. err may be nil when the
// backend answered with an error status but the transport itself did not fail.
func Failure(statusCode int, body string, err error) Completion {
	return Completion{StatusCode: statusCode, Body: body, Err: err}
}

// HasBody reports whether the completion carries a non-blank body.
func (c Completion) HasBody() bool {
	return strings.TrimSpace(c.Body) != ""
}
