// Package auth resolves bridge API bearer tokens to scoped principals.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Scopes understood by the bridge API. A ":rw" scope implies its ":ro" twin.
const (
	ScopeAll        = "*"
	ScopeRequestsRW = "requests:rw"
	ScopeResultsRO  = "results:ro"
	ScopeResultsRW  = "results:rw"
	ScopeEventsRO   = "events:ro"
)

var (
	ErrNoCredentials = errors.New("missing Authorization header")
	ErrNotBearer     = errors.New("authorization scheme must be Bearer")
	ErrEmptyToken    = errors.New("empty bearer token")
)

// TokenConfig is a bearer token with a set of scopes.
type TokenConfig struct {
	Token  string
	Scopes []string
}

// ScopeSet holds granted scopes with ":ro" twins already expanded.
type ScopeSet map[string]struct{}

// NewScopeSet trims and expands scopes. Blank entries are dropped.
func NewScopeSet(scopes ...string) ScopeSet {
	set := make(ScopeSet, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		set[s] = struct{}{}
		if resource, ok := strings.CutSuffix(s, ":rw"); ok {
			set[resource+":ro"] = struct{}{}
		}
	}
	return set
}

// Allows reports whether the set holds "*" or any of required.
// An empty requirement is always satisfied.
func (s ScopeSet) Allows(required ...string) bool {
	if len(required) == 0 {
		return true
	}
	if _, ok := s[ScopeAll]; ok {
		return true
	}
	for _, r := range required {
		if _, ok := s[r]; ok {
			return true
		}
	}
	return false
}

// Principal is an authenticated bridge caller. Label identifies which
// credential matched and is safe to log; the token itself is not kept.
type Principal struct {
	Label  string
	Scopes ScopeSet
}

type principalKey struct{}

// WithPrincipal attaches p to ctx for the scope checks further down the chain.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// ExtractBearerToken reads the token from the Authorization header.
// The scheme name is matched case-insensitively.
func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrNoCredentials
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrNotBearer
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}

// Authenticate matches presented against the relay API key, which grants
// every scope, and then against each scoped token in order.
func Authenticate(presented, apiKey string, tokens []TokenConfig) (Principal, bool) {
	if presented == "" {
		return Principal{}, false
	}
	if tokenMatches(presented, apiKey) {
		return Principal{Label: "api_key", Scopes: NewScopeSet(ScopeAll)}, true
	}
	for i, t := range tokens {
		if tokenMatches(presented, t.Token) {
			return Principal{
				Label:  fmt.Sprintf("tokens[%d]", i),
				Scopes: NewScopeSet(t.Scopes...),
			}, true
		}
	}
	return Principal{}, false
}

// HasAnyScope is shorthand for p.Scopes.Allows.
func HasAnyScope(p Principal, required ...string) bool {
	return p.Scopes.Allows(required...)
}

// tokenMatches compares in constant time; an unset secret never matches.
func tokenMatches(presented, secret string) bool {
	return secret != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) == 1
}
