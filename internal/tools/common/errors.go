package common

import (
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/gdrive-mcp/internal/google"
	"github.com/teemow/gdrive-mcp/internal/mcp/oauth"
)

// Messages returned to the model when no Google credential could be obtained.
// Upstream response bodies are never included.
const (
	msgAuthRequired       = "Authentication required"
	msgExchangeFailed     = "Failed to obtain Google credentials for this user"
	msgNoCredentials      = "No Google credentials found. Run 'gdrive-mcp auth' to authorize this server"
	msgCredentialsExpired = "Google credentials have expired. Run 'gdrive-mcp refresh' or wait for the background refresh"
)

// ToolError converts err into an isError tool result. Credential failures get
// a fixed message; other errors are prefixed with action.
func ToolError(action string, err error) *mcp.CallToolResult {
	if msg, ok := credentialMessage(err); ok {
		return mcp.NewToolResultError(msg)
	}
	return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: %v", action, err))
}

// RedactError replaces credential failures with their fixed message so that
// protocol-level errors carry no upstream detail either
func RedactError(err error) error {
	if msg, ok := credentialMessage(err); ok {
		return errors.New(msg)
	}
	return err
}

func credentialMessage(err error) (string, bool) {
	var (
		exchangeErr  *oauth.TokenExchangeError
		discoveryErr *oauth.DiscoveryError
		malformedErr *oauth.MalformedDiscoveryError
	)
	switch {
	case errors.As(err, &exchangeErr), errors.As(err, &discoveryErr), errors.As(err, &malformedErr):
		return msgExchangeFailed, true
	case errors.Is(err, google.ErrNoCredentials):
		return msgNoCredentials, true
	case errors.Is(err, google.ErrCredentialsExpired), oauth.ValidationKind(err) == oauth.KindExpired:
		return msgCredentialsExpired, true
	case errors.Is(err, oauth.ErrMissingToken), errors.Is(err, oauth.ErrMalformedAuthorization):
		return msgAuthRequired, true
	default:
		var tve *oauth.TokenValidationError
		if errors.As(err, &tve) {
			return msgAuthRequired, true
		}
		return "", false
	}
}
