// Package resources exposes Google Drive files as MCP resources through the
// gdrive:///{fileId} resource template. Text content (including exported
// Google Workspace documents) is returned as text; anything else as a
// base64 blob.
package resources
