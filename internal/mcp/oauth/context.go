package oauth

import (
	"context"
	"fmt"
	"slices"

	"github.com/teemow/gdrive-mcp/internal/logging"
)

// contextKey is the type for context keys
type contextKey string

// authContextKey is the key for storing the AuthContext in the request context
const authContextKey contextKey = "auth_context"

// AuthContext is the normalized identity of a validated request.
// It is built once per request and must not be modified afterwards.
type AuthContext struct {
	RawToken    string
	ClientID    string
	Scopes      []string
	ExpiresAt   int64
	ResourceURL string
	SubjectID   string
}

// HasScope reports whether scope was granted
func (a *AuthContext) HasScope(scope string) bool {
	return slices.Contains(a.Scopes, scope)
}

// WithResourceURL returns a copy of the context bound to resourceURL
func (a *AuthContext) WithResourceURL(resourceURL string) *AuthContext {
	out := *a
	out.Scopes = slices.Clone(a.Scopes)
	out.ResourceURL = resourceURL
	return &out
}

// String redacts the raw token
func (a *AuthContext) String() string {
	return fmt.Sprintf("AuthContext{client=%s subject=%s scopes=%v expires=%d token=%s}",
		a.ClientID, logging.AnonymizeSubject(a.SubjectID), a.Scopes, a.ExpiresAt, logging.SanitizeToken(a.RawToken))
}

// WithAuthContext attaches ac to ctx
func WithAuthContext(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, ac)
}

// AuthContextFromContext retrieves the AuthContext attached by the gate
func AuthContextFromContext(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey).(*AuthContext)
	return ac, ok && ac != nil
}
