package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/jarvis/internal/profile"
)

const (
	// DeniedResponse is returned instead of running a sensitive handler
	// without an authenticated session.
	DeniedResponse = "Authentication required. Please authenticate first by saying 'login' or 'authenticate'."

	// FaultResponse replaces the reply of a handler that failed.
	FaultResponse = "I'm sorry, I encountered an error while processing your request. Please try again."
)

// Hint is a display-state event for the presentation layer.
type Hint string

const (
	HintListening        Hint = "listening"
	HintAuthChanged      Hint = "auth_changed"
	HintProfileChanged   Hint = "profile_changed"
	HintExit             Hint = "exit"
	HintRestartSuggested Hint = "restart_suggested"
)

// SensitiveCategories require an authenticated session.
var SensitiveCategories = []string{"message", "contact", "telegram", "profile"}

// Turn is the input of one handler call.
type Turn struct {
	// Profile is the working copy of the active profile. Handlers may
	// change it; the caller persists it after the turn.
	Profile  *profile.Profile
	Category string
	// Text is the lower-cased utterance; Raw keeps the original casing.
	Text string
	Raw  string
	Now  time.Time
}

// Reply is what a handler returns.
type Reply struct {
	Text string
	// Failed marks a handled turn whose action did not succeed, e.g. a
	// launch that could not start the process.
	Failed bool
	Hints  []Hint
	// SwitchTo names the profile that should become active.
	SwitchTo string
	// Deleted means the active profile no longer exists and must not be
	// saved again.
	Deleted bool
}

// HandlerFunc handles one category.
type HandlerFunc func(ctx context.Context, t *Turn) (Reply, error)

// HandlerFault wraps a handler error or recovered panic.
type HandlerFault struct {
	Category string
	Err      error
	Panic    any
}

func (f *HandlerFault) Error() string {
	if f.Panic != nil {
		return fmt.Sprintf("handler %q panicked: %v", f.Category, f.Panic)
	}
	return fmt.Sprintf("handler %q failed: %v", f.Category, f.Err)
}

func (f *HandlerFault) Unwrap() error { return f.Err }

// Result is the outcome of Dispatch.
type Result struct {
	Reply
	// Succeeded is true when the handler ran without fault and did not
	// report failure.
	Succeeded bool
	Denied    bool
	Fault     *HandlerFault
}

const (
	faultBurst  = 5
	faultWindow = 60 * time.Second
)

// Dispatcher routes categories to handlers and enforces the session gate
// on sensitive ones.
type Dispatcher struct {
	handlers  map[string]HandlerFunc
	sensitive map[string]bool
	sessions  Sessions
	learner   Learner
	clock     func() time.Time
	logger    *slog.Logger

	mu     sync.Mutex
	faults []time.Time
}

// NewDispatcher returns an empty Dispatcher. learner may be nil.
func NewDispatcher(sessions Sessions, learner Learner, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		handlers:  make(map[string]HandlerFunc),
		sensitive: make(map[string]bool),
		sessions:  sessions,
		learner:   learner,
		clock:     time.Now,
		logger:    logger,
	}
	for _, c := range SensitiveCategories {
		d.sensitive[c] = true
	}
	return d
}

// Handle registers fn for every listed category.
func (d *Dispatcher) Handle(fn HandlerFunc, categories ...string) {
	for _, c := range categories {
		d.handlers[c] = fn
	}
}

// Has reports whether a handler is registered for category.
func (d *Dispatcher) Has(category string) bool {
	_, ok := d.handlers[category]
	return ok
}

// Sensitive reports whether category requires a session.
func (d *Dispatcher) Sensitive(category string) bool {
	return d.sensitive[category]
}

// Dispatch runs the handler of category for utterance on p.
//
// A sensitive category without a live session is denied: the handler is
// not called, nothing is learned and the usage counter is untouched.
// Otherwise the usage counter is incremented and the outcome is learned.
// A handler error or panic becomes FaultResponse, is learned as a failure
// and does not count as a use.
func (d *Dispatcher) Dispatch(ctx context.Context, p *profile.Profile, category, utterance string) Result {
	fn, ok := d.handlers[category]
	if !ok {
		return d.fault(category, utterance, &HandlerFault{Category: category, Err: fmt.Errorf("no handler")})
	}

	if d.sensitive[category] && (d.sessions == nil || !d.sessions.IsAuthenticated(p, "")) {
		d.logger.Info("denied sensitive command", "category", category, "profile", p.Name)
		return Result{Reply: Reply{Text: DeniedResponse}, Denied: true}
	}

	turn := &Turn{
		Profile:  p,
		Category: category,
		Text:     strings.ToLower(utterance),
		Raw:      utterance,
		Now:      d.clock(),
	}
	reply, fault := d.call(ctx, fn, turn)
	if fault != nil {
		return d.fault(category, utterance, fault)
	}

	p.CountCommand(category)
	succeeded := !reply.Failed
	d.learn(utterance, category, succeeded)
	return Result{Reply: reply, Succeeded: succeeded}
}

func (d *Dispatcher) call(ctx context.Context, fn HandlerFunc, t *Turn) (reply Reply, fault *HandlerFault) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked", "category", t.Category, "panic", r, "stack", string(debug.Stack()))
			fault = &HandlerFault{Category: t.Category, Panic: r}
		}
	}()
	reply, err := fn(ctx, t)
	if err != nil {
		return Reply{}, &HandlerFault{Category: t.Category, Err: err}
	}
	return reply, nil
}

func (d *Dispatcher) fault(category, utterance string, f *HandlerFault) Result {
	d.logger.Error("command failed", "category", category, "error", f)
	d.learn(utterance, category, false)

	res := Result{Reply: Reply{Text: FaultResponse}, Fault: f}
	if d.recordFault() {
		res.Hints = append(res.Hints, HintRestartSuggested)
	}
	return res
}

// recordFault reports whether more than faultBurst faults happened within
// faultWindow. The history is cleared when it does.
func (d *Dispatcher) recordFault() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock()
	kept := d.faults[:0]
	for _, t := range d.faults {
		if now.Sub(t) < faultWindow {
			kept = append(kept, t)
		}
	}
	d.faults = append(kept, now)
	if len(d.faults) > faultBurst {
		d.faults = d.faults[:0]
		return true
	}
	return false
}

func (d *Dispatcher) learn(utterance, category string, succeeded bool) {
	if d.learner == nil {
		return
	}
	if err := d.learner.Learn(strings.ToLower(utterance), category, succeeded); err != nil {
		d.logger.Warn("learning update not persisted", "category", category, "error", err)
	}
}
