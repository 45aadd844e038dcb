package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	secretService         = "jarvis"
	apiTokenAccount       = "api_token"
	messagingTokenAccount = "messaging_token"

	apiTokenEnv = "JARVIS_API_TOKEN"
)

// ErrSecretNotFound is returned by a SecretStore for an account that was
// never stored.
var ErrSecretNotFound = errors.New("secret not found")

// SecretStore reads and writes secrets by service and account.
type SecretStore interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// NewKeychain returns the platform secret store.
func NewKeychain() SecretStore {
	return keychain{}
}

type keychain struct{}

func (keychain) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (keychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

// GetAPIToken returns the bearer token of the HTTP API. JARVIS_API_TOKEN
// wins; otherwise the stored token is used, and a new random token is
// generated and stored on first use. A store that cannot be read is an
// error: replacing the token would lock out running clients.
func GetAPIToken(kc SecretStore) (string, error) {
	if tok := os.Getenv(apiTokenEnv); tok != "" {
		return tok, nil
	}
	tok, err := kc.Get(secretService, apiTokenAccount)
	switch {
	case err == nil && tok != "":
		return tok, nil
	case err != nil && !errors.Is(err, ErrSecretNotFound):
		return "", fmt.Errorf("reading API token: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok = hex.EncodeToString(buf)
	if err := kc.Set(secretService, apiTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}

// SetMessagingToken stores the messaging bridge token in the secret store.
func SetMessagingToken(kc SecretStore, token string) error {
	if token == "" {
		return errors.New("messaging token is empty")
	}
	return kc.Set(secretService, messagingTokenAccount, token)
}

// readDotEnv parses a .env file. A missing file yields no entries.
func readDotEnv(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return env, nil
}

// envLookup returns a lookup where process variables win over dotenv.
func envLookup(dotenv map[string]string) func(string) string {
	return func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return dotenv[key]
	}
}
