package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FlattenParams converts a JSON object into the string map vendor SDKs accept.
// String values are kept verbatim; every other value becomes its JSON text.
func FlattenParams(params string) (map[string]string, error) {
	if strings.TrimSpace(params) == "" {
		return map[string]string{}, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(params), &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	out := make(map[string]string, len(obj))
	for k, raw := range obj {
		out[k] = jsonText(raw)
	}
	return out, nil
}

// jsonText unquotes a JSON string and returns any other value as written,
// so null stays "null".
func jsonText(raw json.RawMessage) string {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// DecodeFunctionResult unwraps the {"result": ...} envelope returned by cloud
// functions. String results are returned unquoted; anything else, null
// included, as raw JSON.
func DecodeFunctionResult(body string) (string, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return "", fmt.Errorf("decode function result: %w", err)
	}
	result, ok := env["result"]
	if !ok {
		return "", fmt.Errorf("decode function result: missing result field")
	}
	return jsonText(result), nil
}

// BackendError is the backend's {"code": n, "error": "..."} failure body.
type BackendError struct {
	Code    int    `json:"code"`
	Message string `json:"error"`
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.Code, e.Message)
}

// DecodeBackendError parses an error body. ok is false when body is not one.
func DecodeBackendError(body string) (*BackendError, bool) {
	var be BackendError
	if err := json.Unmarshal([]byte(body), &be); err != nil {
		return nil, false
	}
	if be.Message == "" {
		return nil, false
	}
	return &be, true
}
