package launcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/kalambet/jarvis/internal/storage"
)

type call struct {
	name string
	args []string
}

type mockStarter struct {
	calls []call
	err   error
}

func (m *mockStarter) start(name string, args ...string) error {
	m.calls = append(m.calls, call{name: name, args: args})
	return m.err
}

type mockRecorder struct {
	launches []storage.Launch
}

func (m *mockRecorder) SaveLaunch(l storage.Launch) (storage.Launch, error) {
	m.launches = append(m.launches, l)
	return l, nil
}

func newTestLauncher(goos string, s *mockStarter, opts ...Option) *Launcher {
	base := []Option{
		WithGOOS(goos),
		WithStart(s.start),
		WithEnv(func(k string) string {
			if k == "USERNAME" {
				return "ada"
			}
			return ""
		}),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return New(append(base, opts...)...)
}

func TestLaunch_KnownApp(t *testing.T) {
	tests := []struct {
		goos string
		want call
	}{
		{"linux", call{"spotify", nil}},
		{"darwin", call{"open", []string{"-a", "/Applications/Spotify.app"}}},
		{"windows", call{`C:\Users\ada\AppData\Roaming\Spotify\Spotify.exe`, nil}},
	}
	for _, tt := range tests {
		s := &mockStarter{}
		ok, msg := newTestLauncher(tt.goos, s).Launch(context.Background(), "Spotify")
		if !ok || msg != "Launched spotify successfully" {
			t.Errorf("%s: Launch() = %v, %q", tt.goos, ok, msg)
		}
		if len(s.calls) != 1 || !reflect.DeepEqual(s.calls[0], tt.want) {
			t.Errorf("%s: started %+v, want %+v", tt.goos, s.calls, tt.want)
		}
	}
}

func TestLaunch_UnknownApp(t *testing.T) {
	s := &mockStarter{}
	ok, msg := newTestLauncher("linux", s).Launch(context.Background(), "gimp")
	if !ok || msg != "Attempted to launch gimp" {
		t.Errorf("Launch() = %v, %q", ok, msg)
	}
	if s.calls[0].name != "gimp" {
		t.Errorf("started %q", s.calls[0].name)
	}
}

func TestLaunch_Failure(t *testing.T) {
	s := &mockStarter{err: errors.New("exec: not found")}
	rec := &mockRecorder{}
	ok, msg := newTestLauncher("linux", s, WithRecorder(rec)).Launch(context.Background(), "firefox")
	if ok || !strings.HasPrefix(msg, "Failed to launch firefox") {
		t.Errorf("Launch() = %v, %q", ok, msg)
	}
	if len(rec.launches) != 1 || rec.launches[0].Succeeded || rec.launches[0].Detail == "" {
		t.Errorf("recorded %+v", rec.launches)
	}
}

func TestLaunch_UnsupportedOnOS(t *testing.T) {
	s := &mockStarter{}
	ok, msg := newTestLauncher("plan9", s).Launch(context.Background(), "chrome")
	if ok || msg != "Application chrome is not supported on plan9" {
		t.Errorf("Launch() = %v, %q", ok, msg)
	}
	if len(s.calls) != 0 {
		t.Error("process started for unsupported app")
	}
}

func TestOpen_AddsScheme(t *testing.T) {
	s := &mockStarter{}
	rec := &mockRecorder{}
	ok, msg := newTestLauncher("linux", s, WithRecorder(rec)).Open(context.Background(), "example.com")
	if !ok || msg != "Opened https://example.com successfully" {
		t.Errorf("Open() = %v, %q", ok, msg)
	}
	want := call{"xdg-open", []string{"https://example.com"}}
	if !reflect.DeepEqual(s.calls[0], want) {
		t.Errorf("started %+v, want %+v", s.calls[0], want)
	}
	if rec.launches[0].Kind != "url" || !rec.launches[0].Succeeded {
		t.Errorf("recorded %+v", rec.launches[0])
	}
}

func TestOpenWith_Browser(t *testing.T) {
	s := &mockStarter{}
	l := newTestLauncher("linux", s)

	ok, _ := l.OpenWith(context.Background(), "http://go.dev", "Firefox")
	if !ok {
		t.Fatal("OpenWith failed")
	}
	want := call{"firefox", []string{"http://go.dev"}}
	if !reflect.DeepEqual(s.calls[0], want) {
		t.Errorf("started %+v, want %+v", s.calls[0], want)
	}

	if ok, msg := l.OpenWith(context.Background(), "go.dev", "lynx"); ok || msg != "Browser lynx is not supported" {
		t.Errorf("unsupported browser: %v, %q", ok, msg)
	}
}

func TestSearchURL(t *testing.T) {
	if got := SearchURL(" rust books "); got != "https://www.google.com/search?q=rust+books" {
		t.Errorf("SearchURL = %q", got)
	}
}

func TestLaunch_CancelledContext(t *testing.T) {
	s := &mockStarter{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if ok, _ := newTestLauncher("linux", s).Launch(ctx, "spotify"); ok {
		t.Error("launch succeeded with cancelled context")
	}
	if len(s.calls) != 0 {
		t.Error("process started with cancelled context")
	}
}
