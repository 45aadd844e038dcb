package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/kalambet/jarvis/internal/assistant"
	"github.com/kalambet/jarvis/internal/config"
	"github.com/kalambet/jarvis/internal/launcher"
	"github.com/kalambet/jarvis/internal/learning"
	"github.com/kalambet/jarvis/internal/messaging"
	"github.com/kalambet/jarvis/internal/profile"
	"github.com/kalambet/jarvis/internal/storage"
)

// appEnv holds the long-lived components shared by run and serve.
type appEnv struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.Store
	profiles  *profile.Manager
	learner   *learning.Store
	messenger *messaging.Client
	assistant *assistant.Assistant
}

func openProfiles(cfg config.Config, logger *slog.Logger) (*profile.Manager, error) {
	m, err := profile.Open(profile.Options{
		Dir:           cfg.ProfilesDir(),
		KeyFile:       cfg.Profiles.KeyFile,
		SessionTTL:    cfg.SessionTTL(),
		KDFIterations: cfg.Auth.KDFIterations,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("opening profiles: %w", err)
	}
	return m, nil
}

func openLearning(cfg config.Config, logger *slog.Logger) *learning.Store {
	opts := []learning.Option{learning.WithLogger(logger)}
	if cfg.FlushInterval() > 0 {
		opts = append(opts, learning.WithBatchedWrites())
	}
	return learning.New(cfg.LearningFile(), opts...)
}

// ensureDefaultProfile creates the configured default profile when no
// profile exists yet and returns the name turns should start with.
func ensureDefaultProfile(m *profile.Manager, name string) (string, error) {
	if name == "" {
		name = "Default"
	}
	if m.Exists(name) {
		return name, nil
	}
	if names := m.Names(); len(names) > 0 {
		return names[0], nil
	}
	if _, err := m.Create(name, ""); err != nil {
		return "", fmt.Errorf("creating default profile: %w", err)
	}
	return name, nil
}

// openEnv wires storage, profiles, learning, messaging and the assistant.
// prompter may be nil when no interactive terminal is available.
func openEnv(cfg config.Config, logger *slog.Logger, prompter assistant.PasswordPrompter) (*appEnv, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	profiles, err := openProfiles(cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	learner := openLearning(cfg, logger)

	env := &appEnv{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		profiles: profiles,
		learner:  learner,
	}

	handlers := &assistant.Handlers{
		Prompter: prompter,
		IntN:     rand.IntN,
	}
	l := launcher.New(launcher.WithRecorder(store), launcher.WithLogger(logger))
	handlers.Launcher = l
	handlers.Web = l

	if cfg.Messaging.BusURL != "" {
		mc, err := messaging.New(messaging.Config{
			URL:     cfg.Messaging.BusURL,
			Proxy:   cfg.Messaging.Proxy,
			Token:   cfg.Messaging.Token,
			Session: cfg.Messaging.Session,
			Logger:  logger,
		})
		if err != nil {
			env.Close()
			return nil, fmt.Errorf("configuring messaging: %w", err)
		}
		env.messenger = mc
		handlers.Messenger = mc
	}

	acfg := assistant.Config{
		Profiles: profiles,
		Sessions: profiles.Authenticator(),
		Learner:  learner,
		Handlers: handlers,
		Logger:   logger,
	}
	if cfg.Assistant.Journal {
		acfg.Journal = store
	}
	env.assistant = assistant.New(acfg)

	return env, nil
}

// journal returns the interaction store, or nil when journaling is off.
func (e *appEnv) journal() *storage.Store {
	if !e.cfg.Assistant.Journal {
		return nil
	}
	return e.store
}

// Close flushes the learning model and releases every resource.
func (e *appEnv) Close() error {
	var errs []error
	if e.messenger != nil {
		errs = append(errs, e.messenger.Close())
	}
	if e.learner != nil {
		if err := e.learner.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing learning store: %w", err))
		}
	}
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
