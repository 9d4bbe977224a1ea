package common

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/oauth2"

	"github.com/teemow/gdrive-mcp/internal/instrumentation"
	"github.com/teemow/gdrive-mcp/internal/mcp/oauth"
	"github.com/teemow/gdrive-mcp/internal/server"
)

type nopCredentials struct{}

func (nopCredentials) Credential(context.Context, *oauth.AuthContext) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "t"}, nil
}

func newTestServerContext(t *testing.T, opts ...server.Option) *server.ServerContext {
	t.Helper()
	sc, err := server.NewServerContext(context.Background(), nopCredentials{}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func callTool(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestInstrumentedToolHandler_Success(t *testing.T) {
	sc := newTestServerContext(t)

	called := false
	wrapped := InstrumentedToolHandler("test_tool", sc, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("success"), nil
	})

	result, err := wrapped(context.Background(), mcp.CallToolRequest{})

	require.NoError(t, err)
	assert.True(t, called)
	assert.NotNil(t, result)
}

func TestInstrumentedToolHandler_RegistersWithServer(t *testing.T) {
	sc := newTestServerContext(t)
	s := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(false))

	var handler mcpserver.ToolHandlerFunc = InstrumentedToolHandlerWithService("test_tool", "drive", "list", sc,
		func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("ok"), nil
		})
	assert.NotPanics(t, func() { s.AddTool(mcp.NewTool("test_tool"), handler) })

	result, err := handler(context.Background(), callTool(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)
}

func TestInstrumentedToolHandler_PassesErrorsThrough(t *testing.T) {
	sc := newTestServerContext(t)
	expected := errors.New("boom")

	wrapped := InstrumentedToolHandler("test_tool", sc, func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, expected
	})

	_, err := wrapped(context.Background(), mcp.CallToolRequest{})
	assert.Same(t, expected, err)
}

func TestInstrumentedToolHandler_AuditRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	meter := noop.NewMeterProvider().Meter("test")
	metrics, err := instrumentation.NewMetrics(meter, false)
	require.NoError(t, err)

	sc := newTestServerContext(t,
		server.WithMetrics(metrics),
		server.WithAuditLogger(instrumentation.NewAuditLogger(logger)))

	wrapped := InstrumentedToolHandlerWithService("gdrive_read_file", "drive", "read", sc,
		func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("not found"), nil
		})

	ctx := oauth.WithAuthContext(context.Background(), &oauth.AuthContext{SubjectID: "alice@example.com", ClientID: "cli"})
	result, err := wrapped(ctx, callTool(map[string]interface{}{"fileId": "file-1"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	out := buf.String()
	assert.Contains(t, out, `"msg":"tool_failed"`)
	assert.Contains(t, out, `"tool":"gdrive_read_file"`)
	assert.Contains(t, out, "file-1")
	assert.Contains(t, out, `"cli"`)
	assert.NotContains(t, out, "alice@example.com")
}

func TestInstrumentedToolHandler_NoAuditLogger(t *testing.T) {
	sc := newTestServerContext(t)

	wrapped := InstrumentedToolHandlerWithService("gsheets_read", "sheets", "read", sc,
		func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("{}"), nil
		})

	result, err := wrapped(context.Background(), callTool(map[string]interface{}{"spreadsheetId": "s1"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
}

func TestResourceID(t *testing.T) {
	assert.Equal(t, "f", resourceID(map[string]interface{}{"fileId": "f"}))
	assert.Equal(t, "s", resourceID(map[string]interface{}{"spreadsheetId": "s"}))
	assert.Equal(t, "", resourceID(map[string]interface{}{"fileId": 3}))
	assert.Equal(t, "", resourceID(nil))
}
