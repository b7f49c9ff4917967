package api

import "encoding/json"

// FunctionRequest is the optional JSON body for POST /functions/{name}.
type FunctionRequest struct {
	Params       json.RawMessage `json:"params,omitempty"`
	SessionToken string          `json:"session_token,omitempty"`
}

// RESTRequest is the JSON body for POST /requests.
type RESTRequest struct {
	Method       string          `json:"method"`
	Endpoint     string          `json:"endpoint"`
	Body         json.RawMessage `json:"body,omitempty"`
	SessionToken string          `json:"session_token,omitempty"`
}

// SubmitResponse is returned once a request has been accepted.
type SubmitResponse struct {
	RequestID int64 `json:"request_id"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status           string `json:"status"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	Outstanding      int    `json:"outstanding"`
	Queued           int    `json:"queued"`
	NetworkAvailable bool   `json:"network_available"`
}
