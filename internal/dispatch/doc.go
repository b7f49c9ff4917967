// Package dispatch relays host requests to an asynchronous transport and
// buffers their outcomes for the host's main loop.
//
// Submit reserves a request ID, builds the call and hands it to the
// transport together with a single-shot completion handler, then returns the
// ID without waiting. The handler normalizes whatever the transport reports
// into a queue.Result and pushes it onto the dispatcher's queue, where the
// host collects it with FetchNext.
//
// Guarantees:
//   - IDs are strictly increasing and never reused, even when the call is
//     rejected before it reaches the transport
//   - Every ID produces exactly one Result; duplicate completions are dropped
//   - Results are queued in completion order, not submission order
//   - Neither Submit nor FetchNext blocks on the network
//
// Failure message precedence is configurable (see ErrorPrecedence). The
// default, ExceptionFirst, prefers the transport error over the response body.
//
// Limitations:
//   - Requests cannot be cancelled once submitted
//   - No retries; retry policy belongs to the transport
package dispatch
