package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Profiles  ProfilesConfig
	Learning  LearningConfig
	Auth      AuthConfig
	Messaging MessagingConfig
	Assistant AssistantConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type ProfilesConfig struct {
	// Dir defaults to <DataDir>/profiles.
	Dir string
	// KeyFile defaults to <Dir>/profiles.key.
	KeyFile string
}

type LearningConfig struct {
	// File defaults to <DataDir>/learning.json.
	File string
	// FlushInterval enables batched writes when set, e.g. "5s". Empty means
	// every update is written through.
	FlushInterval string
}

type AuthConfig struct {
	SessionTTL    string
	KDFIterations int
}

type MessagingConfig struct {
	BusURL  string
	Proxy   string
	Session string
	Token   string
}

type AssistantConfig struct {
	DefaultProfile string
	Journal        bool
}

type LogConfig struct {
	Level string
}

const (
	defaultSessionTTL    = 24 * time.Hour
	defaultKDFIterations = 100_000
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Auth: AuthConfig{
			SessionTTL:    defaultSessionTTL.String(),
			KDFIterations: defaultKDFIterations,
		},
		Assistant: AssistantConfig{
			DefaultProfile: "Default",
			Journal:        true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ProfilesDir returns the directory holding profile records.
func (c Config) ProfilesDir() string {
	if c.Profiles.Dir != "" {
		return c.Profiles.Dir
	}
	return filepath.Join(c.Storage.DataDir, "profiles")
}

// LearningFile returns the path of the learning model file.
func (c Config) LearningFile() string {
	if c.Learning.File != "" {
		return c.Learning.File
	}
	return filepath.Join(c.Storage.DataDir, "learning.json")
}

// SessionTTL parses Auth.SessionTTL, falling back to 24h.
func (c Config) SessionTTL() time.Duration {
	d, err := time.ParseDuration(c.Auth.SessionTTL)
	if err != nil || d <= 0 {
		if c.Auth.SessionTTL != "" {
			fmt.Fprintf(os.Stderr, "[WARN] invalid auth.session_ttl %q, using %s\n", c.Auth.SessionTTL, defaultSessionTTL)
		}
		return defaultSessionTTL
	}
	return d
}

// FlushInterval parses Learning.FlushInterval. Zero means write-through.
func (c Config) FlushInterval() time.Duration {
	if c.Learning.FlushInterval == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Learning.FlushInterval)
	if err != nil || d < 0 {
		fmt.Fprintf(os.Stderr, "[WARN] invalid learning.flush_interval %q, writing through\n", c.Learning.FlushInterval)
		return 0
	}
	return d
}

// Load reads configuration from the platform-native backend, a .env file
// in the working directory, environment variables and the platform secret
// store.
//
// On macOS the backend is UserDefaults (domain: com.jarvis.app) and secrets
// live in the macOS Keychain.
// Elsewhere the backend is a JSON file at $XDG_CONFIG_HOME/jarvis/config.json
// and secrets live in $XDG_DATA_HOME/jarvis/secrets.json.
//
// Environment variables (JARVIS_*) override backend values on all platforms;
// variables already set in the process win over .env entries.
func Load() (Config, error) {
	dotenv, err := readDotEnv(".env")
	if err != nil {
		return Config{}, err
	}
	return loadWith(newPlatformBackend(), NewKeychain(), envLookup(dotenv))
}

func loadWith(b ConfigBackend, kc SecretStore, getenv func(string) string) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg, getenv)

	if cfg.Messaging.Token == "" {
		if tok, err := kc.Get(secretService, messagingTokenAccount); err == nil && tok != "" {
			cfg.Messaging.Token = tok
		}
	}

	if cfg.Auth.KDFIterations <= 0 {
		return Config{}, fmt.Errorf("auth.kdf_iterations must be positive, got %d", cfg.Auth.KDFIterations)
	}

	return cfg, nil
}
