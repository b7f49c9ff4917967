package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

var (
	ErrInvalidFunctionName = errors.New("invalid function name")
	ErrInvalidEndpoint     = errors.New("invalid endpoint")
	ErrInvalidMethod       = errors.New("invalid method")
	ErrInvalidParams       = errors.New("invalid parameters")
)

var functionNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Credentials are attached to every call built by a Builder.
type Credentials struct {
	ApplicationID  string
	RESTAPIKey     string
	InstallationID string
}

// Builder turns function names and REST endpoints into Calls against one backend.
type Builder struct {
	base           *url.URL
	functionPrefix string
	creds          Credentials
}

// NewBuilder validates baseURL and returns a Builder rooted at it.
func NewBuilder(baseURL, functionPrefix string, creds Credentials) (*Builder, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q: missing host", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if functionPrefix != "" && !strings.HasSuffix(functionPrefix, "/") {
		functionPrefix += "/"
	}
	return &Builder{base: u, functionPrefix: functionPrefix, creds: creds}, nil
}

// FunctionURL returns the URL a cloud function is invoked at.
func (b *Builder) FunctionURL(name string) (string, error) {
	if !functionNamePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFunctionName, name)
	}
	return b.resolve(b.functionPrefix + name)
}

// FunctionCall builds a POST to the named cloud function. params must be a JSON
// object; an empty string is sent as {}.
func (b *Builder) FunctionCall(name, params, sessionToken string) (Call, error) {
	target, err := b.FunctionURL(name)
	if err != nil {
		return Call{}, err
	}

	if strings.TrimSpace(params) == "" {
		params = "{}"
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(params), &obj); err != nil {
		return Call{}, fmt.Errorf("%w: function %s expects a JSON object: %v", ErrInvalidParams, name, err)
	}

	return Call{
		Method:   http.MethodPost,
		URL:      target,
		Body:     params,
		Headers:  b.headers(sessionToken),
		Function: name,
		Params:   params,
	}, nil
}

// RESTCall builds a request against an endpoint relative to the base URL.
func (b *Builder) RESTCall(method, endpoint, body, sessionToken string) (Call, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
	default:
		return Call{}, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}

	target, err := b.resolve(endpoint)
	if err != nil {
		return Call{}, err
	}
	if body != "" && !json.Valid([]byte(body)) {
		return Call{}, fmt.Errorf("%w: body is not valid JSON", ErrInvalidParams)
	}

	return Call{
		Method:  method,
		URL:     target,
		Body:    body,
		Headers: b.headers(sessionToken),
	}, nil
}

// resolve joins a relative endpoint onto the base URL. Absolute URLs and
// paths escaping the base are rejected so credentials never leave the backend.
func (b *Builder) resolve(endpoint string) (string, error) {
	endpoint = strings.TrimLeft(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidEndpoint)
	}

	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return "", fmt.Errorf("%w: %q must be relative", ErrInvalidEndpoint, endpoint)
	}

	u := b.base.ResolveReference(ref)
	if !strings.HasPrefix(u.Path, b.base.Path) {
		return "", fmt.Errorf("%w: %q escapes base path", ErrInvalidEndpoint, endpoint)
	}
	return u.String(), nil
}

func (b *Builder) headers(sessionToken string) map[string]string {
	h := map[string]string{
		HeaderApplicationID: b.creds.ApplicationID,
		HeaderRESTAPIKey:    b.creds.RESTAPIKey,
		HeaderContentType:   ContentTypeJSON,
	}
	if b.creds.InstallationID != "" {
		h[HeaderInstallationID] = b.creds.InstallationID
	}
	if sessionToken != "" {
		h[HeaderSessionToken] = sessionToken
	}
	return h
}
