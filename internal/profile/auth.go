package profile

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultSessionTTL is how long a successful login stays valid.
	DefaultSessionTTL = 24 * time.Hour

	// DefaultKDFIterations is the PBKDF2-SHA256 work factor for new verifiers.
	DefaultKDFIterations = 100_000

	saltSize     = 16
	verifierSize = 32
	tokenSize    = 32
)

var (
	ErrEmptyPassword   = errors.New("empty password")
	ErrInvalidPassword = errors.New("invalid password")
)

// Credential is the stored password verifier of a profile. The derived
// key is only compared, never used to encrypt anything.
type Credential struct {
	Salt       []byte `json:"salt"`
	Hash       []byte `json:"hash"`
	Iterations int    `json:"iterations"`
}

// Authenticator issues and checks profile sessions.
type Authenticator struct {
	clock      Clock
	ttl        time.Duration
	iterations int
	random     io.Reader
}

// NewAuthenticator returns an Authenticator. Zero ttl or iterations select
// the defaults.
func NewAuthenticator(clock Clock, ttl time.Duration, iterations int) *Authenticator {
	if clock == nil {
		clock = realClock{}
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if iterations <= 0 {
		iterations = DefaultKDFIterations
	}
	return &Authenticator{clock: clock, ttl: ttl, iterations: iterations, random: rand.Reader}
}

// Authenticate verifies password against the profile's verifier and starts
// a new session, returning its bearer token. A profile without a verifier
// enrolls password as its first credential.
func (a *Authenticator) Authenticate(p *Profile, password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if p.Credential == nil {
		if err := a.SetPassword(p, password); err != nil {
			return "", err
		}
	} else if !p.Credential.matches(password) {
		return "", ErrInvalidPassword
	}

	buf := make([]byte, tokenSize)
	if _, err := io.ReadFull(a.random, buf); err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	token := hex.EncodeToString(buf)
	p.Session.start(token, a.clock.Now().Add(a.ttl))
	return token, nil
}

// IsAuthenticated reports whether p has a live session, matching token
// when one is given. An expired session is cleared as a side effect.
func (a *Authenticator) IsAuthenticated(p *Profile, token string) bool {
	return p.Session.Valid(a.clock.Now(), token)
}

// Logout ends the session of p.
func (a *Authenticator) Logout(p *Profile) {
	p.Session.End()
}

// SetPassword replaces the verifier of p with one derived from password
// under a fresh random salt. Any running session is ended.
func (a *Authenticator) SetPassword(p *Profile, password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(a.random, salt); err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}
	p.Credential = &Credential{
		Salt:       salt,
		Hash:       pbkdf2.Key([]byte(password), salt, a.iterations, verifierSize, sha256.New),
		Iterations: a.iterations,
	}
	p.Session.End()
	return nil
}

func (c *Credential) matches(password string) bool {
	if c.Iterations <= 0 || len(c.Salt) == 0 || len(c.Hash) == 0 {
		return false
	}
	got := pbkdf2.Key([]byte(password), c.Salt, c.Iterations, len(c.Hash), sha256.New)
	return subtle.ConstantTimeCompare(got, c.Hash) == 1
}
