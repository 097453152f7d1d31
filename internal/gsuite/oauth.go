// Package gsuite implements the downstream booking capabilities on real
// Google APIs: a Sheets append, a tentative Calendar hold, and a Gmail
// confirmation draft. OAuth tokens are stored at an XDG path and
// refreshed automatically by the oauth2 client.
package gsuite

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// NewOAuthConfig creates the OAuth2 config for the Google APIs the
// capabilities use. Credentials come from the GOOGLE_CLIENT_ID and
// GOOGLE_CLIENT_SECRET environment variables.
func NewOAuthConfig() (*oauth2.Config, error) {
	clientID := os.Getenv("GOOGLE_CLIENT_ID")
	clientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("google OAuth credentials not configured. Set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET environment variables")
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  "http://localhost:8080/oauth/callback",
		Scopes: []string{
			"https://www.googleapis.com/auth/spreadsheets",
			"https://www.googleapis.com/auth/calendar.events",
			"https://www.googleapis.com/auth/gmail.compose",
		},
		Endpoint: google.Endpoint,
	}, nil
}

// TokenPath returns the XDG-compliant path for storing OAuth tokens.
func TokenPath() string {
	return filepath.Join(xdg.DataHome, "slotline", "google-credentials.json")
}

// SaveToken writes the OAuth token with restricted permissions.
func SaveToken(token *oauth2.Token) error {
	path := TokenPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = f.Close() }()
	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return nil
}

// LoadToken reads a previously saved OAuth token.
func LoadToken() (*oauth2.Token, error) {
	f, err := os.Open(TokenPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open token file: %w", err)
	}
	defer func() { _ = f.Close() }()
	var token oauth2.Token
	if err := json.NewDecoder(f).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	return &token, nil
}

// NewHTTPClient builds an auto-refreshing authenticated HTTP client from
// the stored token.
func NewHTTPClient(ctx context.Context) (*http.Client, error) {
	config, err := NewOAuthConfig()
	if err != nil {
		return nil, err
	}
	token, err := LoadToken()
	if err != nil {
		return nil, err
	}
	return config.Client(ctx, token), nil
}
