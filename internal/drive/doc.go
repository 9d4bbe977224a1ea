// Package drive provides a read-only client for the Google Drive API.
//
// A Client is bound to one Google access token and is meant to live for a
// single tool call:
//
//	client, err := drive.NewClient(ctx, tok)
//	if err != nil {
//	    return err
//	}
//	content, err := client.ReadFile(ctx, fileID)
//
// Google Workspace documents are exported on read: Docs as Markdown, Sheets
// as CSV, Slides as plain text and Drawings as PNG. Other text files are
// returned as text and everything else base64 encoded. Reads are capped at
// MaxFileSize.
package drive
