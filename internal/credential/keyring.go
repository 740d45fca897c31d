// Package credential reads and stores API tokens in the OS keyring
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "llm-email-triage"

// Keys used for stored secrets
const (
	JMAPTokenKey = "jmap-token"
	OpenAIKeyKey = "openai-api-key"
	GeminiKeyKey = "gemini-api-key"
)

// ErrNotFound is returned when no credential is stored under a key
var ErrNotFound = errors.New("credential not found")

// opener is swapped in tests
var opener = openKeyring

func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/llm-email-triage/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("llm-email-triage-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key
func Get(key string) (string, error) {
	ring, err := opener()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", fmt.Errorf("getting credential %q: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key
func Set(key, value string) error {
	ring, err := opener()
	if err != nil {
		return err
	}

	if err := ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: serviceName + " " + key}); err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential by key
func Delete(key string) error {
	ring, err := opener()
	if err != nil {
		return err
	}

	if err := ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// Resolve returns value when set, otherwise the keyring entry for key.
// A missing keyring entry yields an empty string and no error.
func Resolve(value, key string) (string, error) {
	if value != "" {
		return value, nil
	}

	stored, err := Get(key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return stored, err
}
