package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/reise69/directus-go-sdk/pkg/directus"
)

// savedSession is the on-disk form of a login.
type savedSession struct {
	URL    string          `json:"url"`
	Tokens directus.Tokens `json:"tokens"`
}

// loadSession returns the tokens saved for url. A missing file or a session
// for another server yields ok == false.
func loadSession(path, url string) (directus.Tokens, bool, error) {
	if path == "" {
		return directus.Tokens{}, false, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return directus.Tokens{}, false, nil
	}
	if err != nil {
		return directus.Tokens{}, false, fmt.Errorf("session: read %s: %w", path, err)
	}
	var s savedSession
	if err := json.Unmarshal(data, &s); err != nil {
		return directus.Tokens{}, false, fmt.Errorf("session: parse %s: %w", path, err)
	}
	if s.URL != url || s.Tokens.AccessToken == "" {
		return directus.Tokens{}, false, nil
	}
	return s.Tokens, true, nil
}

func saveSession(path, url string, t directus.Tokens) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	data, err := json.MarshalIndent(savedSession{URL: url, Tokens: t}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("session: write %s: %w", path, err)
	}
	return nil
}

func removeSession(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("session: %w", err)
	}
	return nil
}
