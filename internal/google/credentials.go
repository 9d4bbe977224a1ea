package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/oauth2"
)

const (
	// CredentialsFileName is the persisted credential file inside the credentials directory
	CredentialsFileName = ".gdrive-server-credentials.json"

	// lockTimeout bounds how long a read or write waits for the file lock
	lockTimeout = time.Second

	lockRetryDelay = 25 * time.Millisecond
)

// ErrNoCredentials is returned when the credential file does not exist
var ErrNoCredentials = errors.New("no stored Google credentials, run 'gdrive-mcp auth' first")

// ErrCredentialsExpired is returned when the stored access token is past its expiry
var ErrCredentialsExpired = errors.New("stored Google access token has expired, run 'gdrive-mcp refresh'")

// StoredCredentials is the on-disk credential format.
// expiry_date is in unix milliseconds.
type StoredCredentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiryDate   int64  `json:"expiry_date,omitempty"`
	Scope        string `json:"scope,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// Expiry returns the access token expiry, or the zero time if unknown
func (c *StoredCredentials) Expiry() time.Time {
	if c.ExpiryDate == 0 {
		return time.Time{}
	}
	return time.UnixMilli(c.ExpiryDate)
}

// Expired reports whether the access token has expired at now
func (c *StoredCredentials) Expired(now time.Time) bool {
	exp := c.Expiry()
	return !exp.IsZero() && !now.Before(exp)
}

// Scopes splits the space separated scope field
func (c *StoredCredentials) Scopes() []string {
	return strings.Fields(c.Scope)
}

// Token converts the stored credentials to an oauth2 token
func (c *StoredCredentials) Token() *oauth2.Token {
	tokenType := c.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    tokenType,
		RefreshToken: c.RefreshToken,
		Expiry:       c.Expiry(),
	}
}

// CredentialsFromToken converts an oauth2 token returned by Google
func CredentialsFromToken(tok *oauth2.Token) *StoredCredentials {
	c := &StoredCredentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		c.ExpiryDate = tok.Expiry.UnixMilli()
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		c.Scope = scope
	}
	return c
}

// CredentialStore reads and writes the credential file under a file lock
type CredentialStore struct {
	dir  string
	path string
}

// NewCredentialStore creates a store for dir. An empty dir uses DefaultCredentialsDir.
func NewCredentialStore(dir string) (*CredentialStore, error) {
	if dir == "" {
		d, err := DefaultCredentialsDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	dir = filepath.Clean(dir)
	return &CredentialStore{dir: dir, path: filepath.Join(dir, CredentialsFileName)}, nil
}

// DefaultCredentialsDir returns $XDG_CONFIG_HOME/gdrive-mcp or the platform equivalent
func DefaultCredentialsDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine config directory: %w", err)
	}
	return filepath.Join(base, "gdrive-mcp"), nil
}

// Dir returns the credentials directory
func (s *CredentialStore) Dir() string { return s.dir }

// Path returns the credential file path
func (s *CredentialStore) Path() string { return s.path }

// Exists reports whether the credential file is present
func (s *CredentialStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads the credential file under a shared lock
func (s *CredentialStore) Load(ctx context.Context) (*StoredCredentials, error) {
	if !s.Exists() {
		return nil, ErrNoCredentials
	}
	unlock, err := s.lock(ctx, true)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.read()
}

// Save writes creds under an exclusive lock
func (s *CredentialStore) Save(ctx context.Context, creds *StoredCredentials) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	unlock, err := s.lock(ctx, false)
	if err != nil {
		return err
	}
	defer unlock()
	return s.write(creds)
}

// Update loads the credentials, applies fn and writes the result, all under
// one exclusive lock. When fn returns nil credentials nothing is written.
func (s *CredentialStore) Update(ctx context.Context, fn func(*StoredCredentials) (*StoredCredentials, error)) error {
	if !s.Exists() {
		return ErrNoCredentials
	}
	unlock, err := s.lock(ctx, false)
	if err != nil {
		return err
	}
	defer unlock()

	current, err := s.read()
	if err != nil {
		return err
	}
	updated, err := fn(current)
	if err != nil {
		return err
	}
	if updated == nil {
		return nil
	}
	return s.write(updated)
}

func (s *CredentialStore) lock(ctx context.Context, shared bool) (func(), error) {
	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	fl := flock.New(s.path + ".lock")
	var (
		locked bool
		err    error
	)
	if shared {
		locked, err = fl.TryRLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = fl.TryLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock credentials file: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock credentials file %s", s.path)
	}
	return func() { _ = fl.Unlock() }, nil
}

func (s *CredentialStore) read() (*StoredCredentials, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds StoredCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file %s: %w", s.path, err)
	}
	if creds.AccessToken == "" {
		return nil, fmt.Errorf("credentials file %s has no access_token", s.path)
	}
	return &creds, nil
}

// write replaces the credential file atomically
func (s *CredentialStore) write(creds *StoredCredentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".gdrive-credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary credentials file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set credentials file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credentials file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace credentials file: %w", err)
	}
	return nil
}
