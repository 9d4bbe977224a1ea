package sheets_tools

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/gdrive-mcp/internal/mcp/oauth"
	"github.com/teemow/gdrive-mcp/internal/server"
)

type staticCredentials struct{}

func (staticCredentials) Credential(context.Context, *oauth.AuthContext) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "ya29.test"}, nil
}

// fakeSheetsAPI records update bodies and answers batchGet and sheet title lookups
type fakeSheetsAPI struct {
	mu      sync.Mutex
	updates []string
	ranges  [][]string
}

func (f *fakeSheetsAPI) serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.updates = append(f.updates, r.URL.Path+" "+string(body))
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"updatedCells":1}`))
	case strings.HasSuffix(r.URL.Path, "/values:batchGet"):
		ranges := r.URL.Query()["ranges"]
		f.mu.Lock()
		f.ranges = append(f.ranges, ranges)
		f.mu.Unlock()
		var out []map[string]any
		for _, rg := range ranges {
			out = append(out, map[string]any{"range": rg, "values": [][]string{{"a", "b"}}})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"valueRanges": out})
	case r.URL.Path == "/v4/spreadsheets/missing":
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Requested entity was not found."}}`))
	default:
		_, _ = w.Write([]byte(`{"sheets":[{"properties":{"title":"Sheet1"}},{"properties":{"title":"Q1 Plan"}}]}`))
	}
}

func newTestContext(t *testing.T) (*server.ServerContext, *fakeSheetsAPI) {
	t.Helper()
	api := &fakeSheetsAPI{}
	srv := httptest.NewServer(http.HandlerFunc(api.serve))
	t.Cleanup(srv.Close)

	sc, err := server.NewServerContext(context.Background(), staticCredentials{},
		server.WithGoogleEndpoints(srv.URL+"/", srv.URL+"/"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc, api
}

func callerCtx() context.Context {
	return oauth.WithAuthContext(context.Background(), &oauth.AuthContext{SubjectID: "user-1", RawToken: "jwt"})
}

func request(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func textOf(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, r.Content)
	tc, ok := r.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestRegisterSheetsTools_ReadOnly(t *testing.T) {
	sc, _ := newTestContext(t)

	s := mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(false))
	require.NoError(t, RegisterSheetsTools(s, sc, true))
	assert.Contains(t, s.ListTools(), "gsheets_read")
	assert.NotContains(t, s.ListTools(), "gsheets_update_cell")

	s = mcpserver.NewMCPServer("test", "0.0.0", mcpserver.WithToolCapabilities(false))
	require.NoError(t, RegisterSheetsTools(s, sc, false))
	assert.Contains(t, s.ListTools(), "gsheets_update_cell")
}

func TestHandleUpdateCell(t *testing.T) {
	sc, api := newTestContext(t)

	result, err := handleUpdateCell(callerCtx(), request(map[string]interface{}{
		"fileId": "ss1",
		"range":  "Sheet1!A1",
		"value":  "42",
	}), sc)
	require.NoError(t, err)
	assert.Equal(t, "Updated cell Sheet1!A1 to value: 42", textOf(t, result))

	require.Len(t, api.updates, 1)
	assert.Contains(t, api.updates[0], "/v4/spreadsheets/ss1/values/Sheet1!A1")
	assert.Contains(t, api.updates[0], `[["42"]]`)
}

func TestHandleUpdateCell_Validation(t *testing.T) {
	sc, api := newTestContext(t)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing fileId", map[string]interface{}{"range": "A1", "value": "x"}, "fileId is required"},
		{"missing range", map[string]interface{}{"fileId": "ss1", "value": "x"}, "range is required"},
		{"missing value", map[string]interface{}{"fileId": "ss1", "range": "A1"}, "value is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := handleUpdateCell(callerCtx(), request(tt.args), sc)
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Equal(t, tt.want, textOf(t, result))
		})
	}
	assert.Empty(t, api.updates)
}

func TestHandleRead(t *testing.T) {
	sc, api := newTestContext(t)

	t.Run("given ranges", func(t *testing.T) {
		result, err := handleRead(callerCtx(), request(map[string]interface{}{
			"spreadsheetId": "ss1",
			"ranges":        []interface{}{"Sheet1!A1:B1"},
		}), sc)
		require.NoError(t, err)
		require.False(t, result.IsError, textOf(t, result))

		var values map[string][][]string
		require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &values))
		assert.Equal(t, map[string][][]string{"Sheet1!A1:B1": {{"a", "b"}}}, values)
	})

	t.Run("all sheets", func(t *testing.T) {
		result, err := handleRead(callerCtx(), request(map[string]interface{}{"spreadsheetId": "ss1"}), sc)
		require.NoError(t, err)
		require.False(t, result.IsError, textOf(t, result))
		assert.Equal(t, []string{"'Sheet1'", "'Q1 Plan'"}, api.ranges[len(api.ranges)-1])
	})

	t.Run("bad ranges", func(t *testing.T) {
		result, err := handleRead(callerCtx(), request(map[string]interface{}{
			"spreadsheetId": "ss1",
			"ranges":        "Sheet1!A1",
		}), sc)
		require.NoError(t, err)
		assert.True(t, result.IsError)
	})

	t.Run("api error", func(t *testing.T) {
		result, err := handleRead(callerCtx(), request(map[string]interface{}{"spreadsheetId": "missing"}), sc)
		require.NoError(t, err)
		assert.True(t, result.IsError)
		assert.Contains(t, textOf(t, result), "Failed to read spreadsheet")
	})
}

func TestStringSlice(t *testing.T) {
	got, err := stringSlice([]interface{}{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	got, err = stringSlice(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = stringSlice([]interface{}{"a", 1})
	assert.Error(t, err)
	_, err = stringSlice([]interface{}{""})
	assert.Error(t, err)
}
