package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "valid", header: "Bearer test-key", want: "test-key"},
		{name: "padded", header: "Bearer   test-key  ", want: "test-key"},
		{name: "missing", header: "", wantErr: true},
		{name: "lowercase scheme", header: "bearer test-key", want: "test-key"},
		{name: "basic", header: "Basic abc", wantErr: true},
		{name: "scheme only", header: "Bearer", wantErr: true},
		{name: "empty token", header: "Bearer   ", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "http://example.test", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			got, err := ExtractBearerToken(req)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	tokens := []TokenConfig{
		{Token: "reader", Scopes: []string{ScopeResultsRO, ScopeEventsRO}},
		{Token: "writer", Scopes: []string{" requests:rw ", "results:rw", ""}},
	}

	admin, ok := Authenticate("admin-key", "admin-key", tokens)
	require.True(t, ok)
	assert.Equal(t, "api_key", admin.Label)
	assert.True(t, HasAnyScope(admin, ScopeRequestsRW))

	reader, ok := Authenticate("reader", "admin-key", tokens)
	require.True(t, ok)
	assert.True(t, HasAnyScope(reader, ScopeResultsRO))
	assert.False(t, HasAnyScope(reader, ScopeResultsRW, ScopeRequestsRW))

	writer, ok := Authenticate("writer", "admin-key", tokens)
	require.True(t, ok)
	assert.Equal(t, "tokens[1]", writer.Label)
	assert.True(t, HasAnyScope(writer, ScopeRequestsRW))
	assert.True(t, HasAnyScope(writer, ScopeResultsRO), "rw implies ro")
	assert.False(t, HasAnyScope(writer, ScopeEventsRO))

	_, ok = Authenticate("nope", "admin-key", tokens)
	assert.False(t, ok)
	_, ok = Authenticate("", "", nil)
	assert.False(t, ok, "empty key never authenticates")
	_, ok = Authenticate("x", "", []TokenConfig{{Token: ""}})
	assert.False(t, ok, "unset secrets never match")
}

func TestExtractBearerTokenErrors(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "http://example.test", nil)
	_, err := ExtractBearerToken(req)
	assert.ErrorIs(t, err, ErrNoCredentials)

	req.Header.Set("Authorization", "Token abc")
	_, err = ExtractBearerToken(req)
	assert.ErrorIs(t, err, ErrNotBearer)

	req.Header.Set("Authorization", "Bearer  ")
	_, err = ExtractBearerToken(req)
	assert.ErrorIs(t, err, ErrEmptyToken)
}

func TestScopeSetAllows(t *testing.T) {
	t.Parallel()

	set := NewScopeSet(" events:rw", "", "requests:rw")
	assert.Len(t, set, 4)
	assert.True(t, set.Allows(ScopeEventsRO))
	assert.True(t, set.Allows("requests:ro"))
	assert.False(t, set.Allows(ScopeResultsRO))
	assert.True(t, set.Allows())

	var none ScopeSet
	assert.False(t, none.Allows(ScopeResultsRO))
	assert.True(t, NewScopeSet(ScopeAll).Allows(ScopeResultsRW))
}

func TestPrincipalContext(t *testing.T) {
	t.Parallel()

	_, ok := PrincipalFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{Label: "tokens[0]"})
	p, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "tokens[0]", p.Label)
	assert.True(t, HasAnyScope(p))
}
