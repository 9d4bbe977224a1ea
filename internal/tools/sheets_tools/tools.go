package sheets_tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gdrive-mcp/internal/instrumentation"
	"github.com/teemow/gdrive-mcp/internal/server"
	"github.com/teemow/gdrive-mcp/internal/tools/common"
)

// RegisterSheetsTools registers all Google Sheets tools with the MCP server
func RegisterSheetsTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	readTool := mcp.NewTool("gsheets_read",
		mcp.WithDescription("Read data from a Google Spreadsheet. Returns a JSON object mapping each range to its rows"),
		mcp.WithString("spreadsheetId",
			mcp.Required(),
			mcp.Description("ID of the spreadsheet"),
		),
		mcp.WithArray("ranges",
			mcp.Description("Ranges in A1 notation (e.g. 'Sheet1!A1:B10'). Every sheet is read when omitted"),
			mcp.WithStringItems(),
		),
	)
	s.AddTool(readTool, common.InstrumentedToolHandlerWithService(
		"gsheets_read", instrumentation.ServiceSheets, instrumentation.OperationRead, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleRead(ctx, request, sc)
		}))

	if readOnly {
		return nil
	}

	updateCellTool := mcp.NewTool("gsheets_update_cell",
		mcp.WithDescription("Update a cell value in a Google Spreadsheet"),
		mcp.WithString("fileId",
			mcp.Required(),
			mcp.Description("ID of the spreadsheet"),
		),
		mcp.WithString("range",
			mcp.Required(),
			mcp.Description("Cell range in A1 notation (e.g. 'Sheet1!A1')"),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("New cell value"),
		),
	)
	s.AddTool(updateCellTool, common.InstrumentedToolHandlerWithService(
		"gsheets_update_cell", instrumentation.ServiceSheets, instrumentation.OperationUpdate, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleUpdateCell(ctx, request, sc)
		}))

	return nil
}

func handleRead(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	spreadsheetID, ok := args["spreadsheetId"].(string)
	if !ok || spreadsheetID == "" {
		return mcp.NewToolResultError("spreadsheetId is required"), nil
	}

	ranges, err := stringSlice(args["ranges"])
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, err := sc.SheetsClient(ctx)
	if err != nil {
		return common.ToolError("read spreadsheet", err), nil
	}

	values, err := client.Read(ctx, spreadsheetID, ranges)
	if err != nil {
		return common.ToolError("read spreadsheet", err), nil
	}

	result, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(result)), nil
}

func handleUpdateCell(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	fileID, ok := args["fileId"].(string)
	if !ok || fileID == "" {
		return mcp.NewToolResultError("fileId is required"), nil
	}
	a1Range, ok := args["range"].(string)
	if !ok || a1Range == "" {
		return mcp.NewToolResultError("range is required"), nil
	}
	value, ok := args["value"].(string)
	if !ok {
		return mcp.NewToolResultError("value is required"), nil
	}

	client, err := sc.SheetsClient(ctx)
	if err != nil {
		return common.ToolError("update cell", err), nil
	}

	if err := client.UpdateCell(ctx, fileID, a1Range, value); err != nil {
		return common.ToolError("update cell", err), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Updated cell %s to value: %s", a1Range, value)), nil
}

// stringSlice converts a JSON array argument into strings
func stringSlice(v interface{}) ([]string, error) {
	if v == nil {
		return nil, nil
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("ranges must be an array of strings")
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("ranges must be an array of non-empty strings")
		}
		out = append(out, s)
	}
	return out, nil
}
