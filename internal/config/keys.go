package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "JARVIS_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "JARVIS_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "profiles.dir", typ: kString, env: "JARVIS_PROFILES_DIR",
		apply:   func(cfg *Config, v any) { cfg.Profiles.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.ProfilesDir() },
	},
	{
		key: "profiles.key_file", typ: kString, env: "JARVIS_PROFILES_KEY_FILE",
		apply:   func(cfg *Config, v any) { cfg.Profiles.KeyFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Profiles.KeyFile },
	},
	{
		key: "learning.file", typ: kString, env: "JARVIS_LEARNING_FILE",
		apply:   func(cfg *Config, v any) { cfg.Learning.File = v.(string) },
		extract: func(cfg Config) any { return cfg.LearningFile() },
	},
	{
		key: "learning.flush_interval", typ: kString, env: "JARVIS_LEARNING_FLUSH_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Learning.FlushInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Learning.FlushInterval },
	},
	{
		key: "auth.session_ttl", typ: kString, env: "JARVIS_AUTH_SESSION_TTL",
		apply:   func(cfg *Config, v any) { cfg.Auth.SessionTTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.SessionTTL },
	},
	{
		key: "auth.kdf_iterations", typ: kInt, env: "JARVIS_AUTH_KDF_ITERATIONS",
		apply:   func(cfg *Config, v any) { cfg.Auth.KDFIterations = v.(int) },
		extract: func(cfg Config) any { return cfg.Auth.KDFIterations },
	},
	{
		key: "messaging.bus_url", typ: kString, env: "JARVIS_MESSAGING_BUS_URL",
		apply:   func(cfg *Config, v any) { cfg.Messaging.BusURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Messaging.BusURL },
	},
	{
		key: "messaging.proxy", typ: kString, env: "JARVIS_MESSAGING_PROXY",
		apply:   func(cfg *Config, v any) { cfg.Messaging.Proxy = v.(string) },
		extract: func(cfg Config) any { return cfg.Messaging.Proxy },
	},
	{
		key: "messaging.session", typ: kString, env: "JARVIS_MESSAGING_SESSION",
		apply:   func(cfg *Config, v any) { cfg.Messaging.Session = v.(string) },
		extract: func(cfg Config) any { return cfg.Messaging.Session },
	},
	{
		key: "messaging.token", typ: kString, env: "JARVIS_MESSAGING_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Messaging.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Messaging.Token },
	},
	{
		key: "assistant.default_profile", typ: kString, env: "JARVIS_ASSISTANT_DEFAULT_PROFILE",
		apply:   func(cfg *Config, v any) { cfg.Assistant.DefaultProfile = v.(string) },
		extract: func(cfg Config) any { return cfg.Assistant.DefaultProfile },
	},
	{
		key: "assistant.journal", typ: kBool, env: "JARVIS_ASSISTANT_JOURNAL",
		apply:   func(cfg *Config, v any) { cfg.Assistant.Journal = v.(bool) },
		extract: func(cfg Config) any { return cfg.Assistant.Journal },
	},
	{
		key: "log.level", typ: kString, env: "JARVIS_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetBool(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
