package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/gdrive-mcp/internal/google"
	"github.com/teemow/gdrive-mcp/internal/logging"
)

func newAuthCmd() *cobra.Command {
	var (
		credsDir   string
		listenAddr string
		noBrowser  bool
	)

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize gdrive-mcp with your Google account",
		Long: `Run the browser based OAuth flow and store the resulting credentials for
the local stdio server.

The OAuth client is read from gcp-oauth.keys.json in the credentials
directory (GDRIVE_CREDS_DIR, default $XDG_CONFIG_HOME/gdrive-mcp).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("creds-dir") {
				credsDir = os.Getenv("GDRIVE_CREDS_DIR")
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runAuth(ctx, cmd, credsDir, listenAddr, noBrowser)
		},
	}

	cmd.Flags().StringVar(&credsDir, "creds-dir", "", "Directory holding the credential file and OAuth keyfile")
	cmd.Flags().StringVar(&listenAddr, "listen-addr", "127.0.0.1:0", "Loopback address for the OAuth redirect")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Only print the authorization URL")

	return cmd
}

func runAuth(ctx context.Context, cmd *cobra.Command, credsDir, listenAddr string, noBrowser bool) error {
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))

	store, err := google.NewCredentialStore(credsDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(store.Dir(), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}

	conf, err := google.LoadClientConfig(store.Dir(), google.DefaultOAuthScopes...)
	if err != nil {
		return err
	}

	opts := google.LoginOptions{
		Out:        cmd.OutOrStdout(),
		ListenAddr: listenAddr,
		Logger:     logger,
	}
	if noBrowser {
		opts.OpenBrowser = func(string) error { return nil }
	}

	creds, err := google.Login(ctx, conf, store, opts)
	if err != nil {
		logger.Error("Authentication failed", logging.Err(err))
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Credentials saved to %s (expires %s)\n",
		store.Path(), creds.Expiry().Format(time.RFC3339))
	return nil
}
