package oauth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// JSON-RPC error codes used outside of the MCP message handler
const (
	CodeServerError   = -32000
	CodeInternalError = -32603
)

// JSONRPCError is the error member of a JSON-RPC response
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSONRPCErrorResponse is a JSON-RPC response without a request id
type JSONRPCErrorResponse struct {
	JSONRPC string       `json:"jsonrpc"`
	Error   JSONRPCError `json:"error"`
	ID      any          `json:"id"`
}

// WriteJSONRPCError writes a JSON-RPC error envelope with a null id
func WriteJSONRPCError(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(JSONRPCErrorResponse{
		JSONRPC: "2.0",
		Error:   JSONRPCError{Code: code, Message: message},
		ID:      nil,
	})
}

// MethodNotAllowed answers GET and DELETE on the MCP path
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	WriteJSONRPCError(w, http.StatusMethodNotAllowed, CodeServerError, "Method not allowed.")
}

// InternalError writes the generic internal error envelope
func InternalError(w http.ResponseWriter) {
	WriteJSONRPCError(w, http.StatusInternalServerError, CodeInternalError, "Internal server error")
}

// Recover converts panics in next into an internal error response
func Recover(logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("Handler panic",
					slog.Any("panic", rec),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())))
				InternalError(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
