// Package profile holds user profiles, their encrypted on-disk records and
// the password-gated sessions that unlock sensitive commands.
package profile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/jarvis/internal/fsutil"
)

var (
	ErrNotFound = errors.New("profile not found")
	ErrExists   = errors.New("profile already exists")

	// ErrKeyFile marks a key file that exists but cannot be used. Unlike a
	// single undecryptable record it is fatal to the caller.
	ErrKeyFile = errors.New("unusable key file")
)

// PersistenceError describes a failed read or write of one record.
type PersistenceError struct {
	Op   string
	Name string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s profile %q: %v", e.Op, e.Name, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Options configures a Manager.
type Options struct {
	// Dir holds one record file per profile.
	Dir string
	// KeyFile holds the raw store key. It is generated when missing.
	KeyFile string
	// Key overrides KeyFile when set.
	Key []byte

	Clock         Clock
	SessionTTL    time.Duration
	KDFIterations int
	Logger        *slog.Logger
}

// Manager owns every profile and its encrypted record. Callers receive
// copies; changes become visible through Save.
type Manager struct {
	dir     string
	keyFile string
	clock   Clock
	auth    *Authenticator
	logger  *slog.Logger

	mu       sync.RWMutex
	key      []byte
	profiles map[string]*Profile
}

// Open resolves the store key and loads all records from opts.Dir.
// It returns ErrKeyFile when an existing key file is unreadable or malformed.
func Open(opts Options) (*Manager, error) {
	if opts.Dir == "" {
		return nil, errors.New("profile directory is required")
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.KeyFile == "" {
		opts.KeyFile = filepath.Join(opts.Dir, "profiles.key")
	}
	if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating profile directory: %w", err)
	}

	m := &Manager{
		dir:      opts.Dir,
		keyFile:  opts.KeyFile,
		clock:    opts.Clock,
		auth:     NewAuthenticator(opts.Clock, opts.SessionTTL, opts.KDFIterations),
		logger:   opts.Logger,
		profiles: make(map[string]*Profile),
	}

	switch {
	case opts.Key != nil:
		if len(opts.Key) != KeySize {
			return nil, fmt.Errorf("store key must be %d bytes, got %d", KeySize, len(opts.Key))
		}
		m.key = append([]byte(nil), opts.Key...)
	default:
		key, err := readKeyFile(opts.KeyFile)
		if errors.Is(err, os.ErrNotExist) {
			if key, err = GenerateKey(); err != nil {
				return nil, err
			}
			if err := fsutil.WriteFileAtomic(opts.KeyFile, key, 0o600); err != nil {
				return nil, fmt.Errorf("writing new key file: %w", err)
			}
			m.logger.Info("generated profile store key", "path", opts.KeyFile)
		} else if err != nil {
			return nil, err
		}
		m.key = key
	}

	if err := m.LoadAll(); err != nil {
		return nil, err
	}
	return m, nil
}

// readKeyFile returns os.ErrNotExist for a missing file and ErrKeyFile for
// any other problem.
func readKeyFile(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrKeyFile, path, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w %s: expected %d bytes, got %d", ErrKeyFile, path, KeySize, len(key))
	}
	return key, nil
}

// LoadAll replaces the in-memory profiles with the records on disk. A
// record that cannot be read or decoded is logged and skipped. Legacy
// plaintext records are re-saved encrypted under the current key.
func (m *Manager) LoadAll() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("reading profile directory: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loaded := make(map[string]*Profile, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		path := filepath.Join(m.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			m.logger.Warn("skipping unreadable profile record", "file", e.Name(), "error", err)
			continue
		}
		p, legacy, err := decodeRecord(m.key, data)
		if err != nil {
			m.logger.Warn("skipping profile record", "file", e.Name(), "error", err)
			continue
		}
		target := m.path(p.Name)
		if legacy && target != path {
			if _, err := os.Stat(target); err == nil {
				m.logger.Warn("ignoring legacy profile record superseded by an encrypted one", "file", e.Name(), "profile", p.Name)
				m.retireLegacy(path)
				continue
			}
		}
		if _, dup := loaded[p.Name]; dup {
			m.logger.Warn("skipping duplicate profile record", "file", e.Name(), "profile", p.Name)
			continue
		}
		loaded[p.Name] = p

		if legacy {
			if err := m.writeLocked(p); err != nil {
				m.logger.Warn("legacy profile loaded but not migrated", "profile", p.Name, "error", err)
				continue
			}
			m.logger.Info("migrated legacy profile record", "profile", p.Name)
			if target != path {
				m.retireLegacy(path)
			}
		}
	}
	m.profiles = loaded
	m.logger.Debug("loaded profiles", "count", len(loaded))
	return nil
}

// retireLegacy moves a migrated legacy record out of the way so later
// loads only see the encrypted record.
func (m *Manager) retireLegacy(path string) {
	if err := os.Rename(path, path+legacySuffix); err != nil {
		m.logger.Warn("could not retire legacy profile record", "file", filepath.Base(path), "error", err)
	}
}

// Create stores and persists a new default profile. It returns ErrExists
// when the name is taken. If persisting fails the profile is still kept in
// memory and the PersistenceError is returned alongside it.
func (m *Manager) Create(name, location string) (*Profile, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("profile name is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.profiles[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	}
	p := New(name, location)
	m.profiles[name] = p
	return p.Clone(), m.writeLocked(p)
}

// Save replaces the stored copy of p and rewrites its record. The record is
// written to a temp file and renamed into place. On failure the in-memory
// copy is still updated.
func (m *Manager) Save(p *Profile) error {
	if p == nil || p.Name == "" {
		return errors.New("profile name is required")
	}
	cp := p.Clone()
	cp.normalize()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.profiles[cp.Name] = cp
	return m.writeLocked(cp)
}

func (m *Manager) writeLocked(p *Profile) error {
	data, err := encodeRecord(m.key, p)
	if err != nil {
		return &PersistenceError{Op: "encode", Name: p.Name, Err: err}
	}
	if err := fsutil.WriteFileAtomic(m.path(p.Name), data, 0o600); err != nil {
		m.logger.Error("saving profile", "profile", p.Name, "error", err)
		return &PersistenceError{Op: "write", Name: p.Name, Err: err}
	}
	return nil
}

func (m *Manager) path(name string) string {
	return filepath.Join(m.dir, fileName(name))
}

// Get returns a copy of the named profile.
func (m *Manager) Get(name string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return p.Clone(), nil
}

// Exists reports whether a profile with this name is loaded.
func (m *Manager) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.profiles[name]
	return ok
}

// Names returns the sorted profile names.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.profiles))
	for n := range m.profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Delete removes the profile from memory and disk.
func (m *Manager) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.profiles[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(m.profiles, name)
	if err := os.Remove(m.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &PersistenceError{Op: "delete", Name: name, Err: err}
	}
	return nil
}

// Rename moves a profile to a new name. The old record is removed only
// after the new one is written.
func (m *Manager) Rename(oldName, newName string) (*Profile, error) {
	if strings.TrimSpace(newName) == "" {
		return nil, errors.New("profile name is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[oldName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, oldName)
	}
	if _, taken := m.profiles[newName]; taken {
		return nil, fmt.Errorf("%w: %s", ErrExists, newName)
	}

	cp := p.Clone()
	cp.Name = newName
	if err := m.writeLocked(cp); err != nil {
		return nil, err
	}
	m.profiles[newName] = cp
	delete(m.profiles, oldName)
	if err := os.Remove(m.path(oldName)); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.Warn("removing renamed profile record", "profile", oldName, "error", err)
	}
	return cp.Clone(), nil
}

// ExportKey writes the raw store key to path with owner-only permissions.
func (m *Manager) ExportKey(path string) error {
	m.mu.RLock()
	key := append([]byte(nil), m.key...)
	m.mu.RUnlock()

	if err := fsutil.WriteFileAtomic(path, key, 0o600); err != nil {
		return fmt.Errorf("exporting key: %w", err)
	}
	return nil
}

// ImportKey makes the key stored at path the active store key and writes
// it to the configured key file. Records are not re-encrypted: those
// sealed under the previous key stay unreadable until it is restored.
// Profiles already in memory are kept and sealed with the new key on
// their next Save.
func (m *Manager) ImportKey(path string) error {
	key, err := readKeyFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w %s: %v", ErrKeyFile, path, err)
	}
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := fsutil.WriteFileAtomic(m.keyFile, key, 0o600); err != nil {
		return fmt.Errorf("storing imported key: %w", err)
	}
	m.key = key
	return nil
}

// Authenticate checks password for the named profile and starts a session.
// The returned token is the session's bearer token.
func (m *Manager) Authenticate(name, password string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	token, err := m.auth.Authenticate(p, password)
	if err != nil {
		return "", err
	}
	if err := m.writeLocked(p); err != nil {
		m.logger.Warn("session started but not persisted", "profile", name, "error", err)
	}
	return token, nil
}

// IsAuthenticated reports whether the named profile has a live session,
// matching token when one is given.
func (m *Manager) IsAuthenticated(name, token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[name]
	if !ok {
		return false
	}
	was := p.Session.Authenticated
	valid := m.auth.IsAuthenticated(p, token)
	if was && !p.Session.Authenticated {
		if err := m.writeLocked(p); err != nil {
			m.logger.Warn("persisting expired session", "profile", name, "error", err)
		}
	}
	return valid
}

// Logout ends the session of the named profile.
func (m *Manager) Logout(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	m.auth.Logout(p)
	return m.writeLocked(p)
}

// Authenticator exposes the session logic for callers holding a profile copy.
func (m *Manager) Authenticator() *Authenticator {
	return m.auth
}

// Now returns the manager's clock reading.
func (m *Manager) Now() time.Time {
	return m.clock.Now()
}
