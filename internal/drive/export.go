package drive

import "strings"

// Google Workspace MIME types
const (
	MimeTypeDocument     = "application/vnd.google-apps.document"
	MimeTypeSpreadsheet  = "application/vnd.google-apps.spreadsheet"
	MimeTypePresentation = "application/vnd.google-apps.presentation"
	MimeTypeDrawing      = "application/vnd.google-apps.drawing"
	MimeTypeFolder       = "application/vnd.google-apps.folder"

	googleAppsPrefix = "application/vnd.google-apps."
)

// exportFormats maps Google Workspace types to the format they are exported as
var exportFormats = map[string]string{
	MimeTypeDocument:     "text/markdown",
	MimeTypeSpreadsheet:  "text/csv",
	MimeTypePresentation: "text/plain",
	MimeTypeDrawing:      "image/png",
}

// IsGoogleWorkspace reports whether mimeType is a native Google Workspace type
func IsGoogleWorkspace(mimeType string) bool {
	return strings.HasPrefix(mimeType, googleAppsPrefix)
}

// ExportMimeType returns the export format for a Google Workspace type
func ExportMimeType(mimeType string) (string, bool) {
	format, ok := exportFormats[mimeType]
	return format, ok
}

// IsTextMimeType reports whether content of mimeType is returned as text
func IsTextMimeType(mimeType string) bool {
	return strings.HasPrefix(mimeType, "text/") || mimeType == "application/json"
}

// escapeQuery escapes a value for use inside a single quoted Drive query string
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
