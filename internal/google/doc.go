// Package google manages the Google credentials used to call Drive and Sheets.
//
// Two sources exist. In remote mode every tool call exchanges the caller's
// bearer token for a Google access token (ExchangeSource). In local mode a
// credential file written by "gdrive-mcp auth" is read from disk
// (LocalSource) and kept fresh by a background Refresher.
//
// Credentials are never held in a package-level client: each Drive or Sheets
// client is built from the token returned for the current call.
package google
