// Package sheets reads and updates Google Sheets values.
package sheets
