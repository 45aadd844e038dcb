// Package launcher starts desktop applications and opens URLs.
package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/kalambet/jarvis/internal/storage"
)

// SearchEngine is the query URL prefix used by SearchURL.
const SearchEngine = "https://www.google.com/search?q="

// Recorder persists launch attempts. Implemented by storage.Store.
type Recorder interface {
	SaveLaunch(l storage.Launch) (storage.Launch, error)
}

// StartFunc starts a detached process.
type StartFunc func(name string, args ...string) error

// Launcher starts applications from a per-OS table, falling back to the
// raw name for anything unknown.
type Launcher struct {
	goos     string
	paths    map[string]string
	start    StartFunc
	recorder Recorder
	getenv   func(string) string
	logger   *slog.Logger
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithGOOS overrides the target OS and its default paths.
func WithGOOS(goos string) Option {
	return func(l *Launcher) {
		l.goos = goos
		l.paths = DefaultPaths(goos)
	}
}

// WithPath adds or replaces the executable for one application.
func WithPath(app, path string) Option {
	return func(l *Launcher) { l.paths[strings.ToLower(app)] = path }
}

// WithStart replaces the process starter.
func WithStart(fn StartFunc) Option {
	return func(l *Launcher) { l.start = fn }
}

// WithRecorder records every attempt.
func WithRecorder(r Recorder) Option {
	return func(l *Launcher) { l.recorder = r }
}

// WithEnv replaces the environment lookup used to expand Windows paths.
func WithEnv(getenv func(string) string) Option {
	return func(l *Launcher) { l.getenv = getenv }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Launcher) { l.logger = logger }
}

// New returns a Launcher for the running OS.
func New(opts ...Option) *Launcher {
	l := &Launcher{
		goos:   runtime.GOOS,
		paths:  DefaultPaths(runtime.GOOS),
		start:  startDetached,
		getenv: os.Getenv,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// startDetached starts the process and reaps it in the background.
func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}

// Launch starts the named application.
func (l *Launcher) Launch(ctx context.Context, name string) (bool, string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false, "No application name given"
	}
	if err := ctx.Err(); err != nil {
		return false, fmt.Sprintf("Failed to launch %s: %v", name, err)
	}

	path, known := l.paths[name]
	if !known && Known(name) {
		return false, fmt.Sprintf("Application %s is not supported on %s", name, l.goos)
	}

	var err error
	if known {
		err = l.startApp(l.expand(path))
	} else {
		err = l.startUnknown(name)
	}
	l.record(name, "app", err)
	if err != nil {
		l.logger.Error("launching application", "app", name, "error", err)
		return false, fmt.Sprintf("Failed to launch %s: %v", name, err)
	}

	if !known {
		l.logger.Info("attempted to launch unknown application", "app", name)
		return true, fmt.Sprintf("Attempted to launch %s", name)
	}
	l.logger.Info("launched application", "app", name)
	return true, fmt.Sprintf("Launched %s successfully", name)
}

func (l *Launcher) startApp(path string, args ...string) error {
	if l.goos == "darwin" {
		a := append([]string{"-a", path}, args...)
		return l.start("open", a...)
	}
	return l.start(path, args...)
}

func (l *Launcher) startUnknown(name string) error {
	if l.goos == "darwin" {
		return l.start("open", "-a", name)
	}
	return l.start(name)
}

func (l *Launcher) expand(path string) string {
	if l.goos == "windows" && strings.Contains(path, "%USERNAME%") {
		return strings.ReplaceAll(path, "%USERNAME%", l.getenv("USERNAME"))
	}
	return path
}

// Open opens rawURL in the default browser. A missing scheme becomes https.
func (l *Launcher) Open(ctx context.Context, rawURL string) (bool, string) {
	return l.OpenWith(ctx, rawURL, "")
}

// OpenWith opens rawURL in the named browser, or the default browser when
// browser is empty.
func (l *Launcher) OpenWith(ctx context.Context, rawURL, browser string) (bool, string) {
	target := NormalizeURL(rawURL)
	if target == "" {
		return false, "No website given"
	}
	if err := ctx.Err(); err != nil {
		return false, fmt.Sprintf("Failed to open %s: %v", target, err)
	}

	var err error
	if browser = strings.ToLower(browser); browser != "" {
		path, ok := l.paths[browser]
		if !ok {
			return false, fmt.Sprintf("Browser %s is not supported", browser)
		}
		err = l.startApp(l.expand(path), target)
	} else {
		err = l.openDefault(target)
	}
	l.record(target, "url", err)
	if err != nil {
		l.logger.Error("opening website", "url", target, "error", err)
		return false, fmt.Sprintf("Failed to open %s: %v", target, err)
	}
	l.logger.Info("opened website", "url", target)
	return true, fmt.Sprintf("Opened %s successfully", target)
}

func (l *Launcher) openDefault(target string) error {
	switch l.goos {
	case "windows":
		return l.start("rundll32", "url.dll,FileProtocolHandler", target)
	case "darwin":
		return l.start("open", target)
	default:
		return l.start("xdg-open", target)
	}
}

// Search opens a web search for query.
func (l *Launcher) Search(ctx context.Context, query, browser string) (bool, string) {
	return l.OpenWith(ctx, SearchURL(query), browser)
}

func (l *Launcher) record(target, kind string, err error) {
	if l.recorder == nil {
		return
	}
	rec := storage.Launch{CreatedAt: time.Now(), Target: target, Kind: kind, Succeeded: err == nil}
	if err != nil {
		rec.Detail = err.Error()
	}
	if _, rerr := l.recorder.SaveLaunch(rec); rerr != nil {
		l.logger.Warn("recording launch", "target", target, "error", rerr)
	}
}

// NormalizeURL trims rawURL and prefixes https:// when no http(s) scheme
// is present.
func NormalizeURL(rawURL string) string {
	u := strings.TrimSpace(rawURL)
	if u == "" {
		return ""
	}
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = "https://" + u
	}
	return u
}

// SearchURL returns the search engine URL for query.
func SearchURL(query string) string {
	return SearchEngine + url.QueryEscape(strings.TrimSpace(query))
}
