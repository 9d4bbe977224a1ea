package drive

import "time"

// FileInfo represents metadata about a file in Google Drive
type FileInfo struct {
	// ID is the unique identifier for the file
	ID string `json:"id"`

	// Name is the name of the file
	Name string `json:"name"`

	// MimeType is the MIME type of the file
	MimeType string `json:"mimeType"`

	// Size is the size of the file in bytes (not populated for Google Workspace files)
	Size int64 `json:"size,omitempty"`

	// ModifiedTime is when the file was last modified
	ModifiedTime time.Time `json:"modifiedTime,omitzero"`

	// WebViewLink is a link for opening the file in a relevant Google editor or viewer
	WebViewLink string `json:"webViewLink,omitempty"`
}

// FileList is one page of files
type FileList struct {
	Files []*FileInfo `json:"files"`

	// NextPageToken is empty on the last page
	NextPageToken string `json:"nextPageToken,omitempty"`
}

// FileContent is the readable content of a file.
// Exactly one of Text and Blob is set; Blob is base64 encoded.
type FileContent struct {
	File     *FileInfo
	MimeType string
	Text     string
	Blob     string
}

// IsText reports whether the content is returned as text
func (c *FileContent) IsText() bool {
	return IsTextMimeType(c.MimeType)
}
