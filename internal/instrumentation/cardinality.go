package instrumentation

import "strings"

// Label values derived from user data must stay bounded. MimeTypeClass maps
// an arbitrary Drive MIME type onto a small fixed set.
//
// Example:
//
//	MimeTypeClass("application/vnd.google-apps.spreadsheet")  // "google-apps"
//	MimeTypeClass("text/csv")                                 // "text"
//	MimeTypeClass("image/png")                                // "image"
//	MimeTypeClass("")                                         // "unknown"
func MimeTypeClass(mimeType string) string {
	switch {
	case mimeType == "":
		return "unknown"
	case strings.HasPrefix(mimeType, "application/vnd.google-apps."):
		return "google-apps"
	case strings.HasPrefix(mimeType, "text/"), mimeType == "application/json":
		return "text"
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	default:
		return "binary"
	}
}

// Operation types for Google API metrics.
// Status, OAuth, and Service constants are defined in config.go.
const (
	OperationList   = "list"
	OperationGet    = "get"
	OperationExport = "export"
	OperationSearch = "search"
	OperationRead   = "read"
	OperationUpdate = "update"
)
