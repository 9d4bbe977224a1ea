// Package drive_tools provides the MCP tools for Google Drive.
//
// Available tools:
//   - gdrive_search: full-text search, listed as "name (mimeType)"
//   - gdrive_list_files: page through all files with pageToken and pageSize
//   - gdrive_read_file: read a file, exporting Google Workspace documents
//
// Each call builds a Drive client from the calling user's credential.
package drive_tools
