package oauth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingToken is returned when a protected request has no Authorization header
	ErrMissingToken = errors.New("missing bearer token")

	// ErrMalformedAuthorization is returned when the Authorization header is not "Bearer <token>"
	ErrMalformedAuthorization = errors.New("malformed Authorization header")
)

// DiscoveryError indicates the discovery endpoint was unreachable or answered
// with a non-success status
type DiscoveryError struct {
	Issuer     string
	URL        string
	StatusCode int    // 0 when the request never got a response
	Status     string // HTTP status text, e.g. "404 Not Found"
	Err        error
}

// Error implements the error interface
func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discovery failed for %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("discovery failed for %s: %s", e.URL, e.Status)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// MalformedDiscoveryError indicates a discovery document lacks required fields
type MalformedDiscoveryError struct {
	URL     string
	Missing []string
	Err     error
}

// Error implements the error interface
func (e *MalformedDiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed discovery document at %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("malformed discovery document at %s: missing %s", e.URL, strings.Join(e.Missing, ", "))
}

func (e *MalformedDiscoveryError) Unwrap() error {
	return e.Err
}

// ValidationErrorKind distinguishes token validation failures for logging and metrics.
// All kinds are reported to clients as the same 401.
type ValidationErrorKind string

const (
	KindDiscovery       ValidationErrorKind = "discovery"
	KindSignature       ValidationErrorKind = "signature"
	KindExpired         ValidationErrorKind = "expired"
	KindIssuerMismatch  ValidationErrorKind = "issuer_mismatch"
	KindMalformedClaims ValidationErrorKind = "malformed_claims"
)

// TokenValidationError is returned when a bearer token cannot be turned into an AuthContext
type TokenValidationError struct {
	Kind ValidationErrorKind
	Err  error
}

// Error implements the error interface
func (e *TokenValidationError) Error() string {
	if e.Err == nil {
		return "token validation failed: " + string(e.Kind)
	}
	return fmt.Sprintf("token validation failed (%s): %v", e.Kind, e.Err)
}

func (e *TokenValidationError) Unwrap() error {
	return e.Err
}

func newValidationError(kind ValidationErrorKind, err error) *TokenValidationError {
	return &TokenValidationError{Kind: kind, Err: err}
}

// ValidationKind returns the validation failure kind carried by err, or an
// empty string if err is not a TokenValidationError
func ValidationKind(err error) ValidationErrorKind {
	var tve *TokenValidationError
	if errors.As(err, &tve) {
		return tve.Kind
	}
	return ""
}

// TokenExchangeError indicates the upstream token endpoint rejected an exchange
type TokenExchangeError struct {
	StatusCode int
	Body       string
	Err        error
}

// Error implements the error interface
func (e *TokenExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token exchange failed: %v", e.Err)
	}
	return fmt.Sprintf("token exchange failed with status %d: %s", e.StatusCode, e.Body)
}

func (e *TokenExchangeError) Unwrap() error {
	return e.Err
}

// ErrorResponse is the OAuth error body written on 401 responses
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
