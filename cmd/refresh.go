package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/gdrive-mcp/internal/google"
	"github.com/teemow/gdrive-mcp/internal/logging"
)

// forceRefreshThreshold makes every token with an expiry due for refresh
const forceRefreshThreshold = 100 * 365 * 24 * time.Hour

func newRefreshCmd() *cobra.Command {
	var (
		credsDir string
		force    bool
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the stored Google credentials once",
		Long: `Refresh the local credential file if its access token expires soon.
This runs the same refresh the stdio server performs in the background and
never starts an interactive login.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("creds-dir") {
				credsDir = os.Getenv("GDRIVE_CREDS_DIR")
			}

			store, err := google.NewCredentialStore(credsDir)
			if err != nil {
				return err
			}
			conf, err := google.LoadClientConfig(store.Dir(), google.DefaultOAuthScopes...)
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
			opts := []google.RefresherOption{google.WithRefreshLogger(logging.NewSlogAdapter(logger))}
			if force {
				opts = append(opts, google.WithRefreshThreshold(forceRefreshThreshold))
			}

			result, err := google.NewRefresher(store, conf, opts...).Refresh(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to refresh credentials: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Credentials %s\n", result)
			return nil
		},
	}

	cmd.Flags().StringVar(&credsDir, "creds-dir", "", "Directory holding the credential file and OAuth keyfile")
	cmd.Flags().BoolVar(&force, "force", false, "Refresh even if the access token is not about to expire")

	return cmd
}
