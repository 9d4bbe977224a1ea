package google

// Google OAuth scopes requested by the local login flow
const (
	DriveReadonlyScope = "https://www.googleapis.com/auth/drive.readonly"
	SpreadsheetsScope  = "https://www.googleapis.com/auth/spreadsheets"
)

// DefaultOAuthScopes are requested by "gdrive-mcp auth".
// Cell updates need the full spreadsheets scope.
var DefaultOAuthScopes = []string{
	DriveReadonlyScope,
	SpreadsheetsScope,
}
