package resources

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gdrive-mcp/internal/drive"
	"github.com/teemow/gdrive-mcp/internal/server"
	"github.com/teemow/gdrive-mcp/internal/tools/common"
)

// FileTemplate is the URI template of a Drive file resource
const FileTemplate = drive.URIScheme + "{fileId}"

// RegisterDriveResources registers the Drive file resource template
func RegisterDriveResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	template := mcp.NewResourceTemplate(
		FileTemplate,
		"Google Drive file",
		mcp.WithTemplateDescription("Contents of a Google Drive file. Google Docs, Sheets, Slides and Drawings are exported"),
	)

	s.AddResourceTemplate(template, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleReadFile(ctx, request, sc)
	})
	return nil
}

func handleReadFile(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	uri := request.Params.URI
	fileID, err := drive.FileIDFromURI(uri)
	if err != nil {
		return nil, err
	}

	client, err := sc.DriveClient(ctx)
	if err != nil {
		return nil, common.RedactError(err)
	}

	content, err := client.ReadFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", uri, err)
	}

	if content.IsText() {
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      uri,
				MIMEType: content.MimeType,
				Text:     content.Text,
			},
		}, nil
	}
	return []mcp.ResourceContents{
		mcp.BlobResourceContents{
			URI:      uri,
			MIMEType: content.MimeType,
			Blob:     content.Blob,
		},
	}, nil
}
