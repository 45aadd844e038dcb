package assistant

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Listener captures one utterance, e.g. from a microphone. It must return
// when ctx is cancelled.
type Listener interface {
	Listen(ctx context.Context) (string, error)
}

// Runner is the foreground interaction loop. Typed input and, when a
// Listener is set, heard input are processed one at a time against the
// active profile.
type Runner struct {
	Assistant *Assistant
	Profile   string
	// Listener is optional. It runs in a single background goroutine that
	// only hands utterances to the loop.
	Listener Listener
	// Present receives every outcome. OnHint receives display hints that
	// are not tied to an outcome, like HintListening.
	Present func(Outcome)
	OnHint  func(Hint)
	// ListenRetry is the pause after a failed Listen. Defaults to 1s.
	ListenRetry time.Duration
	Logger      *slog.Logger

	mu sync.Mutex
}

// ActiveProfile returns the profile turns are currently processed for.
func (r *Runner) ActiveProfile() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Profile
}

func (r *Runner) setProfile(name string) {
	r.mu.Lock()
	r.Profile = name
	r.mu.Unlock()
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Run processes input until ctx is cancelled, typed is closed or a turn
// asks to exit. It returns after the listener goroutine has stopped.
func (r *Runner) Run(ctx context.Context, typed <-chan string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var heard chan string
	if r.Listener != nil {
		heard = make(chan string)
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.listen(ctx, heard)
		}()
	}
	defer wg.Wait()
	// cancel runs before wg.Wait: deferred calls are LIFO.
	defer cancel()

	for {
		r.hint(HintListening)

		var utterance string
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-typed:
			if !ok {
				return nil
			}
			utterance = u
		case utterance = <-heard:
		}

		out, err := r.Assistant.Process(ctx, r.ActiveProfile(), utterance)
		if err != nil {
			if errors.Is(err, ErrEmptyUtterance) {
				continue
			}
			r.logger().Error("turn failed", "profile", r.ActiveProfile(), "error", err)
			continue
		}
		if out.SwitchTo != "" {
			r.setProfile(out.SwitchTo)
		}
		if r.Present != nil {
			r.Present(out)
		}
		for _, h := range out.Hints {
			if h == HintExit {
				return nil
			}
		}
	}
}

func (r *Runner) listen(ctx context.Context, heard chan<- string) {
	retry := r.ListenRetry
	if retry <= 0 {
		retry = time.Second
	}
	for {
		u, err := r.Listener.Listen(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			r.logger().Debug("listen failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(retry):
			}
			continue
		}
		if u == "" {
			continue
		}
		select {
		case heard <- u:
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) hint(h Hint) {
	if r.OnHint != nil {
		r.OnHint(h)
	}
}
