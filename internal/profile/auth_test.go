package profile

import (
	"errors"
	"testing"
	"time"
)

func newTestAuth(clock Clock) *Authenticator {
	return NewAuthenticator(clock, 0, 1000)
}

func TestAuthenticate_ThenValid(t *testing.T) {
	clock := &mockClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	a := newTestAuth(clock)
	p := New("Ada", "")

	token, err := a.Authenticate(p, "secret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if len(token) != 2*tokenSize {
		t.Errorf("token length = %d", len(token))
	}
	if !a.IsAuthenticated(p, "") || !a.IsAuthenticated(p, token) {
		t.Fatal("expected authenticated immediately after login")
	}
	if want := clock.now.Add(24 * time.Hour); !p.Session.ExpiresAt.Equal(want) {
		t.Errorf("expiry = %v, want %v", p.Session.ExpiresAt, want)
	}

	clock.Advance(24*time.Hour - time.Second)
	if !a.IsAuthenticated(p, token) {
		t.Error("expected still valid one second before expiry")
	}
	clock.Advance(time.Second)
	if a.IsAuthenticated(p, token) {
		t.Error("expected expired at the expiry instant")
	}
	if p.Session.Authenticated {
		t.Error("expiry did not flip the flag")
	}
}

func TestAuthenticate_EnrollsThenVerifies(t *testing.T) {
	a := newTestAuth(nil)
	p := New("Ada", "")

	if _, err := a.Authenticate(p, "first"); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if p.Credential == nil || len(p.Credential.Salt) != saltSize {
		t.Fatalf("credential not stored: %+v", p.Credential)
	}
	a.Logout(p)

	if _, err := a.Authenticate(p, "wrong"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
	if a.IsAuthenticated(p, "") {
		t.Error("failed login must not start a session")
	}
	if _, err := a.Authenticate(p, "first"); err != nil {
		t.Errorf("correct password rejected: %v", err)
	}
}

func TestAuthenticate_EmptyPassword(t *testing.T) {
	a := newTestAuth(nil)
	if _, err := a.Authenticate(New("Ada", ""), ""); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("expected ErrEmptyPassword, got %v", err)
	}
}

func TestAuthenticate_SaltIsPerProfile(t *testing.T) {
	a := newTestAuth(nil)
	p1, p2 := New("Ada", ""), New("Grace", "")
	a.Authenticate(p1, "same")
	a.Authenticate(p2, "same")

	if string(p1.Credential.Salt) == string(p2.Credential.Salt) {
		t.Error("profiles share a salt")
	}
	if string(p1.Credential.Hash) == string(p2.Credential.Hash) {
		t.Error("equal passwords produced equal verifiers")
	}
}

func TestAuthenticate_NewTokenEachLogin(t *testing.T) {
	a := newTestAuth(nil)
	p := New("Ada", "")
	t1, _ := a.Authenticate(p, "pw")
	t2, _ := a.Authenticate(p, "pw")
	if t1 == t2 {
		t.Error("token reused across logins")
	}
	if a.IsAuthenticated(p, t1) {
		t.Error("old token still accepted")
	}
}

func TestLogout_Unconditional(t *testing.T) {
	a := newTestAuth(nil)
	p := New("Ada", "")

	a.Logout(p) // never authenticated
	if a.IsAuthenticated(p, "") {
		t.Fatal("unexpected session")
	}

	token, _ := a.Authenticate(p, "pw")
	a.Logout(p)
	if a.IsAuthenticated(p, "") || a.IsAuthenticated(p, token) {
		t.Error("authenticated after logout")
	}
	if p.Session.Token != "" || !p.Session.ExpiresAt.IsZero() {
		t.Errorf("session not cleared: %+v", p.Session)
	}
}

func TestSetPassword_EndsSession(t *testing.T) {
	a := newTestAuth(nil)
	p := New("Ada", "")
	a.Authenticate(p, "old")

	if err := a.SetPassword(p, "new"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if a.IsAuthenticated(p, "") {
		t.Error("session survived password change")
	}
	if _, err := a.Authenticate(p, "old"); !errors.Is(err, ErrInvalidPassword) {
		t.Errorf("old password still accepted: %v", err)
	}
}
