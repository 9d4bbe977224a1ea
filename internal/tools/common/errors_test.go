package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"

	"github.com/teemow/gdrive-mcp/internal/google"
	"github.com/teemow/gdrive-mcp/internal/mcp/oauth"
)

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if !assert.Len(t, r.Content, 1) {
		return ""
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	assert.True(t, ok)
	return tc.Text
}

func TestToolError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "exchange failure hides the upstream body",
			err:  fmt.Errorf("exchange: %w", &oauth.TokenExchangeError{StatusCode: 400, Body: `{"error":"invalid_grant","secret":"x"}`}),
			want: msgExchangeFailed,
		},
		{
			name: "discovery failure hides the issuer",
			err:  fmt.Errorf("exchange: %w", &oauth.DiscoveryError{Issuer: "https://as.internal.example", URL: "https://as.internal.example/.well-known/oauth-authorization-server", StatusCode: 500, Status: "500 Internal Server Error"}),
			want: msgExchangeFailed,
		},
		{
			name: "malformed discovery document",
			err:  &oauth.MalformedDiscoveryError{URL: "https://as.internal.example", Missing: []string{"token_endpoint"}},
			want: msgExchangeFailed,
		},
		{
			name: "no stored credentials",
			err:  google.ErrNoCredentials,
			want: msgNoCredentials,
		},
		{
			name: "expired stored credentials",
			err:  google.ErrCredentialsExpired,
			want: msgCredentialsExpired,
		},
		{
			name: "expired local token",
			err:  &oauth.TokenValidationError{Kind: oauth.KindExpired},
			want: msgCredentialsExpired,
		},
		{
			name: "missing token",
			err:  oauth.ErrMissingToken,
			want: msgAuthRequired,
		},
		{
			name: "other validation failure",
			err:  &oauth.TokenValidationError{Kind: oauth.KindSignature, Err: errors.New("bad sig")},
			want: msgAuthRequired,
		},
		{
			name: "api error keeps detail",
			err:  errors.New("googleapi: Error 404: File not found"),
			want: "Failed to read file: googleapi: Error 404: File not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ToolError("read file", tt.err)
			assert.True(t, r.IsError)
			assert.Equal(t, tt.want, resultText(t, r))
		})
	}
}

func TestRedactError(t *testing.T) {
	exchange := &oauth.TokenExchangeError{StatusCode: 400, Body: "secret"}
	assert.EqualError(t, RedactError(exchange), msgExchangeFailed)

	other := errors.New("googleapi: Error 404")
	assert.Same(t, other, RedactError(other))
}
