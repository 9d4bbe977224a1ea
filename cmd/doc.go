// Package cmd implements the command-line interface for gdrive-mcp.
//
// This package provides the following commands:
//   - serve: Start the MCP server over stdio (local credentials) or
//     streamable HTTP (bearer tokens exchanged for Google credentials)
//   - auth: Authorize with Google and store the local credential file
//   - refresh: Refresh the local credential file once
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// Configuration is read from the environment with envdecode and overridden
// by flags that are set explicitly.
package cmd
