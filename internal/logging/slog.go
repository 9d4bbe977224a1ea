package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
)

// Attribute keys
const (
	KeyOperation   = "operation"
	KeyService     = "service"
	KeySubjectHash = "subject_hash"
	KeyClientID    = "client_id"
	KeyRequestID   = "request_id"
	KeyIssuer      = "issuer"
	KeyAudience    = "audience"
	KeyFileID      = "file_id"
	KeyDuration    = "duration"
	KeyError       = "error"
	KeyTool        = "tool"
)

// Issuer is the authorization server issuer URL.
func Issuer(issuer string) slog.Attr { return slog.String(KeyIssuer, issuer) }

// Audience is the token exchange audience.
func Audience(audience string) slog.Attr { return slog.String(KeyAudience, audience) }

// FileID is a Drive file or spreadsheet id.
func FileID(id string) slog.Attr { return slog.String(KeyFileID, id) }

// Err renders err under the error key. A nil err yields an empty group,
// which handlers drop, so callers need no nil check:
//
//	logger.Warn("refresh failed", logging.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeSubject hashes a token subject to "sub:" plus 16 hex characters.
// Equal subjects give equal hashes so entries stay correlatable.
func AnonymizeSubject(subject string) string {
	if subject == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(subject))
	return "sub:" + hex.EncodeToString(sum[:8])
}

// SubjectHash is the anonymized subject under the subject_hash key.
func SubjectHash(subject string) slog.Attr {
	return slog.String(KeySubjectHash, AnonymizeSubject(subject))
}

// SanitizeToken describes a bearer or access token by length only.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}
