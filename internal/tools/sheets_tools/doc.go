// Package sheets_tools provides the MCP tools for Google Sheets.
//
// Available tools:
//   - gsheets_read: read ranges, or every sheet, as JSON
//   - gsheets_update_cell: write a raw value into one cell (not registered in read-only mode)
package sheets_tools
