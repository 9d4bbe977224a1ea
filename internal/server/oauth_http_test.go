package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/gdrive-mcp/internal/mcp/oauth"
)

func TestValidateHTTPSRequirement(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		wantErr bool
	}{
		{
			name:    "valid HTTPS URL",
			baseURL: "https://mcp.example.com",
			wantErr: false,
		},
		{
			name:    "valid HTTP localhost",
			baseURL: "http://localhost:8080",
			wantErr: false,
		},
		{
			name:    "valid HTTP 127.0.0.1",
			baseURL: "http://127.0.0.1:8080",
			wantErr: false,
		},
		{
			name:    "valid HTTP ::1 (IPv6 loopback)",
			baseURL: "http://[::1]:8080",
			wantErr: false,
		},
		{
			name:    "invalid HTTP non-localhost",
			baseURL: "http://mcp.example.com",
			wantErr: true,
		},
		{
			name:    "invalid HTTP with localhost substring",
			baseURL: "http://localhost.example.com",
			wantErr: true,
		},
		{
			name:    "invalid HTTP with 127.0.0.1 in domain",
			baseURL: "http://127.0.0.1.example.com",
			wantErr: true,
		},
		{
			name:    "empty URL",
			baseURL: "",
			wantErr: true,
		},
		{
			name:    "invalid URL format",
			baseURL: "not a url",
			wantErr: true,
		},
		{
			name:    "invalid scheme",
			baseURL: "ftp://example.com",
			wantErr: true,
		},
		{
			name:    "HTTPS with port",
			baseURL: "https://mcp.example.com:8443",
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateHTTPSRequirement(tt.baseURL)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateHTTPSRequirement() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResponseWriter(t *testing.T) {
	t.Run("captures status code", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := newResponseWriter(recorder)

		rw.WriteHeader(http.StatusNotFound)

		if rw.statusCode != http.StatusNotFound {
			t.Errorf("statusCode = %d, want %d", rw.statusCode, http.StatusNotFound)
		}
	})

	t.Run("defaults to 200", func(t *testing.T) {
		rw := newResponseWriter(httptest.NewRecorder())

		if rw.statusCode != http.StatusOK {
			t.Errorf("statusCode = %d, want %d", rw.statusCode, http.StatusOK)
		}
	})

	t.Run("passes write header to underlying writer", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		rw := newResponseWriter(recorder)

		rw.WriteHeader(http.StatusCreated)

		if recorder.Code != http.StatusCreated {
			t.Errorf("recorder.Code = %d, want %d", recorder.Code, http.StatusCreated)
		}
	})

	t.Run("flushes underlying writer", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		newResponseWriter(recorder).Flush()

		if !recorder.Flushed {
			t.Error("expected underlying writer to be flushed")
		}
	})
}

func TestInstrumentationMiddleware_NoMetrics(t *testing.T) {
	server := &OAuthHTTPServer{}
	called := false
	next := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		called = true
	})

	server.instrumentationMiddleware(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/test", nil))

	if !called {
		t.Error("expected next handler to be called")
	}
}

func TestRouteLabel(t *testing.T) {
	server := &OAuthHTTPServer{mcpPath: "/mcp"}

	tests := map[string]string{
		"/mcp": "/mcp",
		"/.well-known/oauth-protected-resource/mcp": "/.well-known",
		"/.well-known/oauth-authorization-server":   "/.well-known",
		"/healthz":          "/healthz",
		"/readyz":           "/readyz",
		"/healthz/detailed": "/healthz/detailed",
		"/mcp/extra":        "other",
		"/random/path/1234": "other",
	}
	for path, want := range tests {
		assert.Equal(t, want, server.routeLabel(path), path)
	}
}

func TestNewOAuthHTTPServer_Validation(t *testing.T) {
	mcpSrv := mcpserver.NewMCPServer("test", "0.0.0")

	_, err := NewOAuthHTTPServer(mcpSrv, HTTPServerConfig{})
	assert.ErrorContains(t, err, "auth stack is required")

	issuer := newTestIssuer(t)
	stack := issuer.stack(t, func(c *oauth.Config) { c.BaseURL = "http://mcp.example.com" })
	_, err = NewOAuthHTTPServer(mcpSrv, HTTPServerConfig{Stack: stack})
	assert.ErrorContains(t, err, "HTTPS is required")
}

// whoamiServer exposes a tool echoing the caller subject the gate resolved
func whoamiServer() *mcpserver.MCPServer {
	s := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(false))
	s.AddTool(mcp.NewTool("whoami"), func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ac, ok := oauth.AuthContextFromContext(ctx)
		if !ok {
			return mcp.NewToolResultError("no caller"), nil
		}
		return mcp.NewToolResultText("caller=" + ac.SubjectID), nil
	})
	return s
}

func newTestHTTPServer(t *testing.T) (*testIssuer, *httptest.Server) {
	t.Helper()
	issuer := newTestIssuer(t)
	health := NewHealthChecker(nil)
	health.SetReady(true)

	srv, err := NewOAuthHTTPServer(whoamiServer(), HTTPServerConfig{
		Stack:  issuer.stack(t, nil),
		Health: health,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return issuer, ts
}

func doRequest(t *testing.T, method, url, token, body string) (*http.Response, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func TestOAuthHTTPServer_Unauthenticated(t *testing.T) {
	_, ts := newTestHTTPServer(t)

	for _, method := range []string{http.MethodPost, http.MethodGet, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			resp, _ := doRequest(t, method, ts.URL+"/mcp", "", `{}`)

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t,
				"Bearer resource_metadata="+ts.URL+"/.well-known/oauth-protected-resource/mcp",
				resp.Header.Get("WWW-Authenticate"))
		})
	}
}

func TestOAuthHTTPServer_MethodNotAllowed(t *testing.T) {
	issuer, ts := newTestHTTPServer(t)
	token := issuer.token(t, "user-1")

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			resp, body := doRequest(t, method, ts.URL+"/mcp", token, "")

			assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
			assert.JSONEq(t,
				`{"jsonrpc":"2.0","error":{"code":-32000,"message":"Method not allowed."},"id":null}`,
				body)
		})
	}
}

func TestOAuthHTTPServer_ToolCallSeesCaller(t *testing.T) {
	issuer, ts := newTestHTTPServer(t)

	resp, body := doRequest(t, http.MethodPost, ts.URL+"/mcp", issuer.token(t, "user-42"),
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"whoami","arguments":{}}}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "caller=user-42")
}

func TestOAuthHTTPServer_PublicEndpoints(t *testing.T) {
	_, ts := newTestHTTPServer(t)

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/.well-known/oauth-protected-resource/mcp", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t,
		`{"resource":"`+ts.URL+`/mcp","authorization_servers":["`+ts.URL+`/"]}`,
		body)

	resp, body = doRequest(t, http.MethodGet, ts.URL+"/.well-known/oauth-authorization-server", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"jwks_uri"`)

	resp, _ = doRequest(t, http.MethodGet, ts.URL+"/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodGet, ts.URL+"/readyz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
