package events

import (
	"github.com/timechildgames/cloudrelay/internal/dispatch"
	"github.com/timechildgames/cloudrelay/internal/queue"
)

// Event types published for the request lifecycle.
const (
	RequestSubmitted = "request.submitted"
	RequestCompleted = "request.completed"
)

// SubmittedData is the payload of a request.submitted event.
type SubmittedData struct {
	RequestID int64  `json:"request_id"`
	Request   string `json:"request"`
}

// CompletedData is the payload of a request.completed event.
type CompletedData struct {
	RequestID  int64  `json:"request_id"`
	Succeeded  bool   `json:"succeeded"`
	StatusCode int    `json:"status_code"`
	Error      string `json:"error,omitempty"`
}

// Observer publishes dispatcher activity to a Hub. Payloads are never
// included; subscribers fetch results through the queue.
type Observer struct {
	hub *Hub
}

var _ dispatch.Observer = Observer{}

// NewObserver returns an Observer publishing to hub.
func NewObserver(hub *Hub) Observer { return Observer{hub: hub} }

func (o Observer) Submitted(id queue.RequestID, req dispatch.Request) {
	o.hub.Publish(RequestSubmitted, SubmittedData{RequestID: int64(id), Request: req.Describe()})
}

func (o Observer) Completed(r queue.Result) {
	data := CompletedData{
		RequestID:  int64(r.RequestID()),
		Succeeded:  r.Succeeded(),
		StatusCode: r.StatusCode(),
	}
	if !r.Succeeded() {
		data.Error = r.ErrorMessage()
	}
	o.hub.Publish(RequestCompleted, data)
}
