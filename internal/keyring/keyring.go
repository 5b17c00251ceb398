// Package keyring stores the optional release API token in the OS keyring.
// The token lifts the anonymous rate limit of the release index.
package keyring

import (
	"errors"
	"fmt"
	"sync"

	"github.com/99designs/keyring"
)

const (
	serviceName = "codeviewer"
	tokenKey    = "release-api-token"
)

var (
	ring     keyring.Keyring
	ringOnce sync.Once
	ringErr  error
)

// initKeyring opens the platform keyring once
func initKeyring() (keyring.Keyring, error) {
	ringOnce.Do(func() {
		ring, ringErr = keyring.Open(keyring.Config{
			ServiceName: serviceName,
			AllowedBackends: []keyring.BackendType{
				keyring.WinCredBackend,       // Windows Credential Manager
				keyring.KeychainBackend,      // macOS Keychain
				keyring.SecretServiceBackend, // Linux Secret Service (GNOME Keyring, KWallet)
				keyring.PassBackend,          // Pass (password-store.org)
			},
		})
	})
	return ring, ringErr
}

// SetToken stores the release API token
func SetToken(token string) error {
	if token == "" {
		return errors.New("token must not be empty")
	}
	kr, err := initKeyring()
	if err != nil {
		return fmt.Errorf("failed to open keyring: %w", err)
	}

	return kr.Set(keyring.Item{
		Key:   tokenKey,
		Label: "codeviewer release API token",
		Data:  []byte(token),
	})
}

// GetToken returns the stored release API token, or "" when none is stored
func GetToken() (string, error) {
	kr, err := initKeyring()
	if err != nil {
		return "", fmt.Errorf("failed to open keyring: %w", err)
	}

	item, err := kr.Get(tokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to retrieve token: %w", err)
	}
	return string(item.Data), nil
}

// DeleteToken removes the stored release API token
func DeleteToken() error {
	kr, err := initKeyring()
	if err != nil {
		return fmt.Errorf("failed to open keyring: %w", err)
	}

	err = kr.Remove(tokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return errors.New("no release API token stored")
	}
	return err
}

// TokenOrEmpty is a release.TokenSource that never fails: keyring errors
// are treated as "no token" so a missing keyring never blocks updates.
func TokenOrEmpty() string {
	token, err := GetToken()
	if err != nil {
		return ""
	}
	return token
}
