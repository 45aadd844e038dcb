package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mockKeychain is a test double for SecretStore.
type mockKeychain struct {
	values map[string]string
	err    error
}

func (m *mockKeychain) Get(service, account string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	v, ok := m.values[service+"/"+account]
	if !ok {
		return "", ErrSecretNotFound
	}
	return v, nil
}

func (m *mockKeychain) Set(service, account, value string) error {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[service+"/"+account] = value
	return nil
}

// mapBackend is an in-memory ConfigBackend.
type mapBackend map[string]any

func (b mapBackend) GetString(key string) (string, bool, error) {
	v, ok := b[key]
	if !ok {
		return "", false, nil
	}
	s, _ := v.(string)
	return s, true, nil
}

func (b mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := b[key]
	if !ok {
		return 0, false, nil
	}
	i, ok := v.(int)
	if !ok {
		return 0, true, errors.New("not an int")
	}
	return i, true, nil
}

func (b mapBackend) GetBool(key string) (bool, bool, error) {
	v, ok := b[key]
	if !ok {
		return false, false, nil
	}
	bv, ok := v.(bool)
	if !ok {
		return false, true, errors.New("not a bool")
	}
	return bv, true, nil
}

func (b mapBackend) SetString(key, val string) error { b[key] = val; return nil }

func (b mapBackend) SetBool(key string, val bool) error { b[key] = val; return nil }

func (b mapBackend) SetInt(key string, val int) error { b[key] = val; return nil }

func (b mapBackend) Delete(key string) error { delete(b, key); return nil }

func noEnv(string) string { return "" }

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

// TestDefaults verifies all default values are applied when the backend is empty.
func TestDefaults(t *testing.T) {
	cfg, err := loadWith(mapBackend{}, &mockKeychain{}, noEnv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.SessionTTL() != 24*time.Hour {
		t.Errorf("SessionTTL = %v, want 24h", cfg.SessionTTL())
	}
	if cfg.Auth.KDFIterations != 100_000 {
		t.Errorf("KDFIterations = %d", cfg.Auth.KDFIterations)
	}
	if cfg.FlushInterval() != 0 {
		t.Errorf("FlushInterval = %v, want write-through", cfg.FlushInterval())
	}
	if !cfg.Assistant.Journal || cfg.Assistant.DefaultProfile != "Default" {
		t.Errorf("Assistant = %+v", cfg.Assistant)
	}
	if cfg.ProfilesDir() != filepath.Join(cfg.Storage.DataDir, "profiles") {
		t.Errorf("ProfilesDir = %q", cfg.ProfilesDir())
	}
	if cfg.LearningFile() != filepath.Join(cfg.Storage.DataDir, "learning.json") {
		t.Errorf("LearningFile = %q", cfg.LearningFile())
	}
}

// TestBackendValues verifies that all fields are read from the backend.
func TestBackendValues(t *testing.T) {
	b := mapBackend{
		"server.port":             5000,
		"storage.data_dir":        "/tmp/jarvis-test",
		"profiles.dir":            "/tmp/profiles",
		"learning.flush_interval": "5s",
		"auth.session_ttl":        "1h",
		"messaging.bus_url":       "ws://localhost:9000/bus",
		"assistant.journal":       false,
		"log.level":               "debug",
	}
	cfg, err := loadWith(b, &mockKeychain{}, noEnv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.ProfilesDir() != "/tmp/profiles" {
		t.Errorf("ProfilesDir = %q", cfg.ProfilesDir())
	}
	if cfg.LearningFile() != filepath.Join("/tmp/jarvis-test", "learning.json") {
		t.Errorf("LearningFile = %q", cfg.LearningFile())
	}
	if cfg.FlushInterval() != 5*time.Second {
		t.Errorf("FlushInterval = %v", cfg.FlushInterval())
	}
	if cfg.SessionTTL() != time.Hour {
		t.Errorf("SessionTTL = %v", cfg.SessionTTL())
	}
	if cfg.Messaging.BusURL != "ws://localhost:9000/bus" {
		t.Errorf("BusURL = %q", cfg.Messaging.BusURL)
	}
	if cfg.Assistant.Journal {
		t.Error("Journal not disabled")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

// TestEnvOverride verifies that environment variables override backend values.
func TestEnvOverride(t *testing.T) {
	b := mapBackend{"server.port": 5000, "log.level": "info"}
	env := envMap(map[string]string{
		"JARVIS_SERVER_PORT":         "6000",
		"JARVIS_LOG_LEVEL":           "warn",
		"JARVIS_AUTH_KDF_ITERATIONS": "not-a-number",
	})

	cfg, err := loadWith(b, &mockKeychain{}, env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Auth.KDFIterations != 100_000 {
		t.Errorf("bad env value not ignored: %d", cfg.Auth.KDFIterations)
	}
}

func TestMessagingToken_EnvThenKeychain(t *testing.T) {
	kc := &mockKeychain{values: map[string]string{"jarvis/messaging_token": "from-keychain"}}

	cfg, _ := loadWith(mapBackend{}, kc, noEnv)
	if cfg.Messaging.Token != "from-keychain" {
		t.Errorf("Token = %q, want keychain value", cfg.Messaging.Token)
	}

	cfg, _ = loadWith(mapBackend{}, kc, envMap(map[string]string{"JARVIS_MESSAGING_TOKEN": "from-env"}))
	if cfg.Messaging.Token != "from-env" {
		t.Errorf("Token = %q, want env value", cfg.Messaging.Token)
	}
}

func TestSecretsNotReadFromBackend(t *testing.T) {
	cfg, _ := loadWith(mapBackend{"messaging.token": "plain"}, &mockKeychain{}, noEnv)
	if cfg.Messaging.Token != "" {
		t.Errorf("secret read from backend: %q", cfg.Messaging.Token)
	}
}

func TestInvalidKDFIterations(t *testing.T) {
	_, err := loadWith(mapBackend{"auth.kdf_iterations": 0}, &mockKeychain{}, noEnv)
	if err == nil || !strings.Contains(err.Error(), "kdf_iterations") {
		t.Errorf("err = %v", err)
	}
}

func TestInvalidDurationsFallBack(t *testing.T) {
	cfg := defaults()
	cfg.Auth.SessionTTL = "forever"
	cfg.Learning.FlushInterval = "often"
	if cfg.SessionTTL() != 24*time.Hour {
		t.Errorf("SessionTTL = %v", cfg.SessionTTL())
	}
	if cfg.FlushInterval() != 0 {
		t.Errorf("FlushInterval = %v", cfg.FlushInterval())
	}
}

func TestSetKey(t *testing.T) {
	b := mapBackend{}
	if err := setKey(b, "server.port", "4200"); err != nil {
		t.Fatalf("setKey: %v", err)
	}
	if b["server.port"] != 4200 {
		t.Errorf("server.port = %v", b["server.port"])
	}
	if err := setKey(b, "assistant.journal", "false"); err != nil {
		t.Fatalf("setKey bool: %v", err)
	}
	if b["assistant.journal"] != false {
		t.Errorf("assistant.journal = %#v", b["assistant.journal"])
	}
	if err := setKey(b, "assistant.journal", "no"); err == nil {
		t.Error("invalid bool accepted")
	}
	if err := setKey(b, "messaging.token", "x"); err == nil {
		t.Error("secret accepted")
	}
	if err := setKey(b, "nope", "x"); err == nil {
		t.Error("unknown key accepted")
	}
}

func TestUnsetKey(t *testing.T) {
	b := mapBackend{"server.port": 5000}
	if err := unsetKey(b, "server.port"); err != nil {
		t.Fatalf("unsetKey: %v", err)
	}
	cfg, err := loadWith(b, &mockKeychain{}, noEnv)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want default", cfg.Server.Port)
	}
	if err := unsetKey(b, "messaging.token"); err == nil {
		t.Error("secret key accepted")
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Messaging.Token = "s3cret"
	for _, k := range ShowAll(cfg) {
		if k.Key == "messaging.token" || k.Value == "s3cret" {
			t.Errorf("secret listed: %+v", k)
		}
	}
	if len(ValidKeys()) != len(ShowAll(cfg)) {
		t.Error("ValidKeys and ShowAll disagree")
	}
}

func TestGetAPIToken(t *testing.T) {
	t.Setenv(apiTokenEnv, "")
	kc := &mockKeychain{}

	tok, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if len(tok) != 64 {
		t.Errorf("token length = %d, want 64", len(tok))
	}
	again, _ := GetAPIToken(kc)
	if again != tok {
		t.Error("stored token not reused")
	}

	t.Setenv(apiTokenEnv, "env-token")
	if got, _ := GetAPIToken(kc); got != "env-token" {
		t.Errorf("env token ignored: %q", got)
	}
}

func TestGetAPIToken_UnreadableStoreKeepsToken(t *testing.T) {
	t.Setenv(apiTokenEnv, "")
	kc := &mockKeychain{err: errors.New("keychain locked")}

	if _, err := GetAPIToken(kc); err == nil {
		t.Fatal("expected error for unreadable store")
	}
	if len(kc.values) != 0 {
		t.Errorf("token was replaced: %v", kc.values)
	}
}

func TestSetMessagingToken(t *testing.T) {
	kc := &mockKeychain{}
	if err := SetMessagingToken(kc, ""); err == nil {
		t.Error("empty token accepted")
	}
	if err := SetMessagingToken(kc, "bridge-secret"); err != nil {
		t.Fatalf("SetMessagingToken: %v", err)
	}
	cfg, err := loadWith(mapBackend{}, kc, noEnv)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Messaging.Token != "bridge-secret" {
		t.Errorf("Messaging.Token = %q", cfg.Messaging.Token)
	}
}

func TestDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("JARVIS_TEST_ONLY_KEY=from-dotenv\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	dotenv, err := readDotEnv(path)
	if err != nil {
		t.Fatalf("readDotEnv: %v", err)
	}
	lookup := envLookup(dotenv)
	if got := lookup("JARVIS_TEST_ONLY_KEY"); got != "from-dotenv" {
		t.Errorf("lookup = %q", got)
	}

	t.Setenv("JARVIS_TEST_ONLY_KEY", "from-process")
	if got := lookup("JARVIS_TEST_ONLY_KEY"); got != "from-process" {
		t.Errorf("process env did not win: %q", got)
	}

	missing, err := readDotEnv(filepath.Join(dir, "absent.env"))
	if err != nil || missing != nil {
		t.Errorf("missing file: %v, %v", missing, err)
	}
}
