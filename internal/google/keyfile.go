package google

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// KeyfileName is the OAuth client file downloaded from the Google Cloud console.
// It lives next to the credential file.
const KeyfileName = "gcp-oauth.keys.json"

// LoadClientConfig parses the OAuth client keyfile in dir.
// Both "installed" and "web" client types are accepted.
func LoadClientConfig(dir string, scopes ...string) (*oauth2.Config, error) {
	path := filepath.Join(dir, KeyfileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("OAuth keyfile not found at %s: download an OAuth client from the Google Cloud console", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read OAuth keyfile: %w", err)
	}

	if len(scopes) == 0 {
		scopes = DefaultOAuthScopes
	}
	conf, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("invalid OAuth keyfile %s: %w", path, err)
	}
	return conf, nil
}
