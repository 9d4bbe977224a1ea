// Package logging holds the shared slog conventions for gdrive-mcp.
//
// Attribute keys are defined once here so every package emits the same
// field names. Identities and credentials never reach the log verbatim:
//
//	logger.Info("request authenticated",
//	    logging.SubjectHash(ac.SubjectID),
//	    slog.String("token", logging.SanitizeToken(ac.RawToken)))
//
// Logger is a small leveled interface for background workers that are
// configured from outside and should not depend on *slog.Logger directly.
package logging
