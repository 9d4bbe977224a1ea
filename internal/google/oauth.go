package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/browser"
	"golang.org/x/oauth2"
)

const callbackPath = "/oauth2callback"

// LoginOptions configures the interactive login flow
type LoginOptions struct {
	// Out receives the authorization URL (default: io.Discard)
	Out io.Writer

	// OpenBrowser opens the authorization URL (default: browser.OpenURL).
	// Errors are logged and the printed URL can be used instead.
	OpenBrowser func(url string) error

	// ListenAddr is the loopback address for the redirect listener (default: 127.0.0.1:0)
	ListenAddr string

	Logger *slog.Logger
}

type callbackResult struct {
	code string
	err  error
}

// Login runs the installed-app authorization code flow with PKCE, using a
// loopback redirect, and saves the resulting credentials to store.
func Login(ctx context.Context, conf *oauth2.Config, store *CredentialStore, opts LoginOptions) (*StoredCredentials, error) {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = browser.OpenURL
	}
	if opts.ListenAddr == "" {
		opts.ListenAddr = "127.0.0.1:0"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ln, err := net.Listen("tcp", opts.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to start redirect listener: %w", err)
	}

	c := *conf
	c.RedirectURL = fmt.Sprintf("http://%s%s", ln.Addr().String(), callbackPath)

	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	results := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var res callbackResult
		switch {
		case q.Get("state") != state:
			res.err = errors.New("state mismatch in OAuth callback")
		case q.Get("error") != "":
			res.err = fmt.Errorf("authorization denied: %s", q.Get("error"))
		case q.Get("code") == "":
			res.err = errors.New("no authorization code in OAuth callback")
		default:
			res.code = q.Get("code")
		}

		if res.err != nil {
			http.Error(w, "Authentication failed. You can close this window.", http.StatusBadRequest)
		} else {
			_, _ = io.WriteString(w, "Authentication complete. You can close this window.")
		}
		select {
		case results <- res:
		default:
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			opts.Logger.Error("Redirect listener failed", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := c.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier))

	fmt.Fprintf(opts.Out, "Open the following URL in your browser to authorize gdrive-mcp:\n\n%s\n\n", authURL)
	if err := opts.OpenBrowser(authURL); err != nil {
		opts.Logger.Warn("Could not open browser", slog.String("error", err.Error()))
	}

	var res callbackResult
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-results:
	}
	if res.err != nil {
		return nil, res.err
	}

	tok, err := c.Exchange(ctx, res.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	creds := CredentialsFromToken(tok)
	if err := store.Save(ctx, creds); err != nil {
		return nil, err
	}
	return creds, nil
}
