package drive

import (
	"fmt"
	"strings"
)

// URIScheme prefixes Drive resource URIs: gdrive:///<fileId>
const URIScheme = "gdrive:///"

// ResourceURI returns the resource URI of a file
func ResourceURI(fileID string) string {
	return URIScheme + fileID
}

// FileIDFromURI extracts the file id from a gdrive:/// URI
func FileIDFromURI(uri string) (string, error) {
	id, ok := strings.CutPrefix(uri, URIScheme)
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", fmt.Errorf("invalid drive resource URI: %q", uri)
	}
	return id, nil
}
