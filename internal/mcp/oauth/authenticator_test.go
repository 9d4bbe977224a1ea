package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		want    string
		wantErr error
	}{
		{header: "Bearer abc", want: "abc"},
		{header: "bearer abc", want: "abc"},
		{header: "BEARER   abc  ", want: "abc"},
		{header: "", wantErr: ErrMissingToken},
		{header: "   ", wantErr: ErrMissingToken},
		{header: "Bearer", wantErr: ErrMalformedAuthorization},
		{header: "Bearer ", wantErr: ErrMalformedAuthorization},
		{header: "Basic dXNlcjpwYXNz", wantErr: ErrMalformedAuthorization},
		{header: "abc", wantErr: ErrMalformedAuthorization},
		{header: "Bearer a b", wantErr: ErrMalformedAuthorization},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, err := BearerToken(tt.header)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type recordingValidator struct {
	token  string
	issuer string
}

func (r *recordingValidator) Validate(_ context.Context, token, issuer string) (*AuthContext, error) {
	r.token, r.issuer = token, issuer
	return &AuthContext{RawToken: token, SubjectID: "user1"}, nil
}

func TestJWTAuthenticator(t *testing.T) {
	rv := &recordingValidator{}
	a := NewJWTAuthenticator(rv, "https://as.example.com")

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer tok")
	ac, err := a.Authenticate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "user1", ac.SubjectID)
	assert.Equal(t, "tok", rv.token)
	assert.Equal(t, "https://as.example.com", rv.issuer)

	_, err = a.Authenticate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = a.Authenticate(context.Background(), httptest.NewRequest(http.MethodPost, "/mcp", nil))
	assert.ErrorIs(t, err, ErrMissingToken)
}
