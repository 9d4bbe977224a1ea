package drive_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gdrive-mcp/internal/drive"
	"github.com/teemow/gdrive-mcp/internal/instrumentation"
	"github.com/teemow/gdrive-mcp/internal/server"
	"github.com/teemow/gdrive-mcp/internal/tools/common"
)

func registerFileTools(s *mcpserver.MCPServer, sc *server.ServerContext, _ bool) error {
	searchTool := mcp.NewTool("gdrive_search",
		mcp.WithDescription("Search for files in Google Drive"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Full-text search query"),
		),
	)
	s.AddTool(searchTool, common.InstrumentedToolHandlerWithService(
		"gdrive_search", instrumentation.ServiceDrive, instrumentation.OperationSearch, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSearch(ctx, request, sc)
		}))

	listFilesTool := mcp.NewTool("gdrive_list_files",
		mcp.WithDescription("List files in Google Drive one page at a time"),
		mcp.WithString("pageToken",
			mcp.Description("Token of the page to return, taken from nextPageToken of the previous call"),
		),
		mcp.WithNumber("pageSize",
			mcp.Description(fmt.Sprintf("Number of files per page (default %d, max %d)", drive.DefaultPageSize, drive.MaxPageSize)),
		),
	)
	s.AddTool(listFilesTool, common.InstrumentedToolHandlerWithService(
		"gdrive_list_files", instrumentation.ServiceDrive, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListFiles(ctx, request, sc)
		}))

	readFileTool := mcp.NewTool("gdrive_read_file",
		mcp.WithDescription("Read the contents of a file from Google Drive. Google Docs, Sheets, Slides and Drawings are exported"),
		mcp.WithString("fileId",
			mcp.Required(),
			mcp.Description("ID of the file to read"),
		),
	)
	s.AddTool(readFileTool, common.InstrumentedToolHandlerWithService(
		"gdrive_read_file", instrumentation.ServiceDrive, instrumentation.OperationRead, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleReadFile(ctx, request, sc)
		}))

	return nil
}

func handleSearch(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	client, err := sc.DriveClient(ctx)
	if err != nil {
		return common.ToolError("search files", err), nil
	}

	list, err := client.Search(ctx, query, 0)
	if err != nil {
		return common.ToolError("search files", err), nil
	}

	return mcp.NewToolResultText(formatSearchResults(list)), nil
}

func formatSearchResults(list *drive.FileList) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d files:", len(list.Files))
	for _, f := range list.Files {
		fmt.Fprintf(&b, "\n%s (%s)", f.Name, f.MimeType)
	}
	return b.String()
}

func handleListFiles(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	pageToken, _ := args["pageToken"].(string)
	pageSize := 0
	if v, ok := args["pageSize"].(float64); ok {
		if v < 1 {
			return mcp.NewToolResultError("pageSize must be at least 1"), nil
		}
		pageSize = int(v)
	}

	client, err := sc.DriveClient(ctx)
	if err != nil {
		return common.ToolError("list files", err), nil
	}

	list, err := client.ListFiles(ctx, pageToken, pageSize)
	if err != nil {
		return common.ToolError("list files", err), nil
	}

	result, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(result)), nil
}

func handleReadFile(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	fileID, ok := args["fileId"].(string)
	if !ok || fileID == "" {
		return mcp.NewToolResultError("fileId is required"), nil
	}

	client, err := sc.DriveClient(ctx)
	if err != nil {
		return common.ToolError("read file", err), nil
	}

	content, err := client.ReadFile(ctx, fileID)
	if err != nil {
		return common.ToolError("read file", err), nil
	}

	if content.IsText() {
		return mcp.NewToolResultText(fmt.Sprintf("Contents of %s:\n\n%s", content.File.Name, content.Text)), nil
	}
	return mcp.NewToolResultResource(
		fmt.Sprintf("Contents of %s (%s, base64 encoded):", content.File.Name, content.MimeType),
		mcp.BlobResourceContents{
			URI:      drive.ResourceURI(fileID),
			MIMEType: content.MimeType,
			Blob:     content.Blob,
		},
	), nil
}
