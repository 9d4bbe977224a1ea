package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/teemow/gdrive-mcp/internal/instrumentation"
)

// KeySetFactory creates a key resolver for a JWKS URL. The resolver must
// stay usable until ctx is cancelled.
type KeySetFactory func(ctx context.Context, jwksURI string) (jwt.Keyfunc, error)

// RemoteKeySet is the default KeySetFactory. Keys are fetched from jwksURI
// and refreshed in the background.
func RemoteKeySet(ctx context.Context, jwksURI string) (jwt.Keyfunc, error) {
	kf, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURI})
	if err != nil {
		return nil, err
	}
	return kf.Keyfunc, nil
}

// accessTokenClaims are the claims projected into an AuthContext
type accessTokenClaims struct {
	jwt.RegisteredClaims
	AuthorizedParty string `json:"azp,omitempty"`
	Scope           string `json:"scope,omitempty"`
}

// Validator verifies bearer JWTs against the key set published by an issuer
type Validator struct {
	discoverer  Discoverer
	opts        clientOptions
	allowedAlgs []string
	leeway      time.Duration
	newKeySet   KeySetFactory

	lifetime context.Context
	stop     context.CancelFunc

	mu       sync.RWMutex
	keySets  map[string]jwt.Keyfunc
	keyGroup singleflight.Group
}

// ValidatorOption configures a Validator
type ValidatorOption func(*Validator)

// WithAllowedAlgorithms restricts the accepted JWS algorithms
func WithAllowedAlgorithms(algs ...string) ValidatorOption {
	return func(v *Validator) {
		if len(algs) > 0 {
			v.allowedAlgs = algs
		}
	}
}

// WithLeeway sets the clock skew tolerance for time based claims
func WithLeeway(leeway time.Duration) ValidatorOption {
	return func(v *Validator) {
		v.leeway = leeway
	}
}

// WithKeySetFactory replaces the JWKS resolver
func WithKeySetFactory(factory KeySetFactory) ValidatorOption {
	return func(v *Validator) {
		if factory != nil {
			v.newKeySet = factory
		}
	}
}

// WithClientOptions applies outbound client settings to the validator
func WithClientOptions(opts ...ClientOption) ValidatorOption {
	return func(v *Validator) {
		for _, opt := range opts {
			opt(&v.opts)
		}
	}
}

// NewValidator creates a Validator that resolves issuers through discoverer.
// Close must be called to stop background key refreshes.
func NewValidator(discoverer Discoverer, opts ...ValidatorOption) *Validator {
	lifetime, stop := context.WithCancel(context.Background())
	v := &Validator{
		discoverer:  discoverer,
		opts:        newClientOptions(nil),
		allowedAlgs: DefaultAllowedAlgorithms,
		newKeySet:   RemoteKeySet,
		lifetime:    lifetime,
		stop:        stop,
		keySets:     make(map[string]jwt.Keyfunc),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Close stops background key refreshes
func (v *Validator) Close() {
	v.stop()
}

// Validate verifies token as a JWT issued by issuer and returns its AuthContext.
// The iss claim is compared with the issuer named in the discovery document.
func (v *Validator) Validate(ctx context.Context, token, issuer string) (*AuthContext, error) {
	ctx, span := instrumentation.StartSpan(ctx, "oauth.validate",
		attribute.String(instrumentation.SpanAttrIssuer, issuer))
	defer span.End()

	ac, err := v.validate(ctx, token, issuer)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		v.opts.metrics.RecordTokenValidation(ctx, instrumentation.StatusError, string(ValidationKind(err)))
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	v.opts.metrics.RecordTokenValidation(ctx, instrumentation.StatusSuccess, "")
	return ac, nil
}

func (v *Validator) validate(ctx context.Context, token, issuer string) (*AuthContext, error) {
	if token == "" {
		return nil, newValidationError(KindMalformedClaims, errors.New("empty token"))
	}

	doc, err := v.discoverer.Discover(ctx, issuer)
	if err != nil {
		return nil, newValidationError(KindDiscovery, err)
	}

	kf, err := v.keySet(ctx, doc.JWKSURI)
	if err != nil {
		return nil, newValidationError(KindDiscovery, err)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(v.allowedAlgs),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(doc.Issuer),
		jwt.WithLeeway(v.leeway),
	)

	claims := &accessTokenClaims{}
	if _, err := parser.ParseWithClaims(token, claims, kf); err != nil {
		return nil, newValidationError(classifyJWTError(err), err)
	}

	if claims.Subject == "" {
		return nil, newValidationError(KindMalformedClaims, errors.New("sub claim is required"))
	}

	return &AuthContext{
		RawToken:  token,
		ClientID:  claims.AuthorizedParty,
		Scopes:    strings.Fields(claims.Scope),
		ExpiresAt: claims.ExpiresAt.Unix(),
		SubjectID: claims.Subject,
	}, nil
}

// keySet returns the cached resolver for jwksURI, creating it at most once.
// The caller stops waiting when ctx ends or the fetch timeout elapses; the
// resolver creation itself continues and is cached for later requests.
func (v *Validator) keySet(ctx context.Context, jwksURI string) (jwt.Keyfunc, error) {
	v.mu.RLock()
	kf, ok := v.keySets[jwksURI]
	v.mu.RUnlock()
	if ok {
		return kf, nil
	}

	ch := v.keyGroup.DoChan(jwksURI, func() (interface{}, error) {
		kf, err := v.newKeySet(v.lifetime, jwksURI)
		if err != nil {
			return nil, err
		}
		v.mu.Lock()
		v.keySets[jwksURI] = kf
		v.mu.Unlock()
		return kf, nil
	})

	waitCtx, cancel := context.WithTimeout(ctx, v.opts.timeout)
	defer cancel()

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("resolving key set %s: %w", jwksURI, res.Err)
		}
		return res.Val.(jwt.Keyfunc), nil
	case <-waitCtx.Done():
		return nil, fmt.Errorf("resolving key set %s: %w", jwksURI, waitCtx.Err())
	}
}

// classifyJWTError maps golang-jwt validation errors onto a ValidationErrorKind.
// Several errors may be joined; the most security relevant one wins.
func classifyJWTError(err error) ValidationErrorKind {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return KindMalformedClaims
	case errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrSignatureInvalid):
		return KindSignature
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return KindIssuerMismatch
	case errors.Is(err, jwt.ErrTokenExpired):
		return KindExpired
	default:
		return KindMalformedClaims
	}
}
