package common

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/gdrive-mcp/internal/instrumentation"
	"github.com/teemow/gdrive-mcp/internal/mcp/oauth"
	"github.com/teemow/gdrive-mcp/internal/server"
)

// ToolHandler is the signature mcp-go expects for tool handlers
type ToolHandler = mcpserver.ToolHandlerFunc

// InstrumentedToolHandler wraps a tool handler with a span, metrics and audit logging.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", sc, handler))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return instrument(toolName, "", "", sc, handler)
}

// InstrumentedToolHandlerWithService is like InstrumentedToolHandler but also
// records the Google service and operation on the audit record and span.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandlerWithService("my_tool", "drive", "list", sc, handler))
func InstrumentedToolHandlerWithService(
	toolName string,
	serviceName string,
	operation string,
	sc *server.ServerContext,
	handler ToolHandler,
) ToolHandler {
	return instrument(toolName, serviceName, operation, sc, handler)
}

func instrument(toolName, serviceName, operation string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		metrics := sc.Metrics()
		auditLogger := sc.AuditLogger()

		ac, _ := oauth.AuthContextFromContext(ctx)
		var subjectID, clientID string
		if ac != nil {
			subjectID, clientID = ac.SubjectID, ac.ClientID
		}
		resource := resourceID(request.GetArguments())

		ctx, span := instrumentation.StartToolSpan(ctx, toolName,
			instrumentation.ToolSpanAttributes(serviceName, operation, clientID, resource)...)
		defer span.End()

		invocation := instrumentation.StartToolInvocation(ctx, toolName, subjectID, clientID)
		invocation.Service, invocation.Operation, invocation.ResourceID = serviceName, operation, resource

		result, err := handler(ctx, request)
		invocation.Finish(result == nil || !result.IsError, err)

		switch {
		case err != nil:
			instrumentation.SetSpanError(span, err)
		case invocation.Success:
			instrumentation.SetSpanSuccess(span)
		}

		if metrics != nil {
			metrics.RecordToolInvocationWithClient(ctx, toolName, invocation.Status(), clientID, invocation.Duration)
		}
		auditLogger.LogToolInvocation(ctx, invocation)

		return result, err
	}
}

// resourceID picks the file or spreadsheet id out of the tool arguments
func resourceID(args map[string]any) string {
	for _, key := range []string{"fileId", "spreadsheetId"} {
		if id, ok := args[key].(string); ok && id != "" {
			return id
		}
	}
	return ""
}
