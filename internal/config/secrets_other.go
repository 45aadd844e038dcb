//go:build !darwin

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kalambet/jarvis/internal/fsutil"
)

// secretsFile stands in for the OS keychain: a 0600 JSON object mapping
// service to account to value, e.g.
// {"jarvis": {"api_token": "...", "messaging_token": "..."}}.
type secretsFile struct {
	path string
}

func defaultSecretsFile() secretsFile {
	if p := os.Getenv("JARVIS_SECRETS_FILE"); p != "" {
		return secretsFile{path: p}
	}
	return secretsFile{path: filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), "secrets.json")}
}

// read returns the stored secrets. A missing file is an empty store; a
// malformed one is an error so that writes never discard its tokens.
func (f secretsFile) read() (map[string]map[string]string, error) {
	secrets := make(map[string]map[string]string)
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return secrets, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file %s: %w", f.path, err)
	}
	return secrets, nil
}

func (f secretsFile) get(service, account string) (string, error) {
	secrets, err := f.read()
	if err != nil {
		return "", err
	}
	val, ok := secrets[service][account]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrSecretNotFound, service, account)
	}
	return val, nil
}

func (f secretsFile) set(service, account, value string) error {
	secrets, err := f.read()
	if err != nil {
		return err
	}
	if secrets[service] == nil {
		secrets[service] = make(map[string]string)
	}
	secrets[service][account] = value

	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(f.path, out, 0o600)
}

func keychainGet(service, account string) ([]byte, error) {
	val, err := defaultSecretsFile().get(service, account)
	return []byte(val), err
}

func keychainSet(service, account, value string) error {
	return defaultSecretsFile().set(service, account, value)
}
