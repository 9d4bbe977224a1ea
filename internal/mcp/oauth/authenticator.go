package oauth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Authenticator turns an incoming request into an AuthContext.
// Exactly one implementation is active per process, selected by configuration.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (*AuthContext, error)
}

// TokenValidator validates a bearer token issued by issuer
type TokenValidator interface {
	Validate(ctx context.Context, token, issuer string) (*AuthContext, error)
}

// JWTAuthenticator authenticates requests carrying a bearer JWT issued by a
// configured remote issuer
type JWTAuthenticator struct {
	validator TokenValidator
	issuer    string
}

// NewJWTAuthenticator creates a JWTAuthenticator for issuer
func NewJWTAuthenticator(validator TokenValidator, issuer string) *JWTAuthenticator {
	return &JWTAuthenticator{validator: validator, issuer: issuer}
}

// Authenticate implements Authenticator
func (a *JWTAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*AuthContext, error) {
	if r == nil {
		return nil, ErrMissingToken
	}
	token, err := BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}
	return a.validator.Validate(ctx, token, a.issuer)
}

// BearerToken extracts the token from an Authorization header value.
// The scheme is matched case-insensitively.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMalformedAuthorization
	}

	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrMalformedAuthorization
	}
	return token, nil
}

func isMissingToken(err error) bool {
	return errors.Is(err, ErrMissingToken)
}

func isMalformedHeader(err error) bool {
	return errors.Is(err, ErrMalformedAuthorization)
}
