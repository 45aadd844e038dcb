package assistant

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// The journal's connection opener lives until test cleanup closes the DB.
var ignoreJournal = goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener")

// scriptListener returns queued utterances, then blocks until cancelled.
type scriptListener struct {
	mu    sync.Mutex
	queue []string
	fail  int // leading calls that return an error
}

func (l *scriptListener) Listen(ctx context.Context) (string, error) {
	l.mu.Lock()
	if l.fail > 0 {
		l.fail--
		l.mu.Unlock()
		return "", errors.New("no speech detected")
	}
	if len(l.queue) > 0 {
		u := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()
		return u, nil
	}
	l.mu.Unlock()

	<-ctx.Done()
	return "", ctx.Err()
}

func TestRunner_TypedInputUntilExit(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreJournal)
	env := newTestEnv(t)

	var outcomes []Outcome
	r := &Runner{
		Assistant: env.assistant,
		Profile:   "Ada",
		Present:   func(o Outcome) { outcomes = append(outcomes, o) },
	}

	typed := make(chan string, 3)
	typed <- "hello"
	typed <- "exit"
	typed <- "hello again"

	if err := r.Run(context.Background(), typed); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2 (stop at exit)", len(outcomes))
	}
	if outcomes[1].Response != "Goodbye! Have a great day." {
		t.Errorf("exit response = %q", outcomes[1].Response)
	}
}

func TestRunner_ListenerFeedsLoop(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreJournal)
	env := newTestEnv(t)

	listener := &scriptListener{queue: []string{"thank you", "exit"}, fail: 2}
	var (
		mu        sync.Mutex
		responses []string
		listening int
	)
	r := &Runner{
		Assistant:   env.assistant,
		Profile:     "Ada",
		Listener:    listener,
		ListenRetry: time.Millisecond,
		Present: func(o Outcome) {
			mu.Lock()
			responses = append(responses, o.Response)
			mu.Unlock()
		},
		OnHint: func(h Hint) {
			if h == HintListening {
				mu.Lock()
				listening++
				mu.Unlock()
			}
		},
		Logger: quietLogger(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// typed stays open and empty: input only comes from the listener.
	if err := r.Run(ctx, make(chan string)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ctx.Err() != nil {
		t.Fatal("runner did not stop on exit")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(responses) != 2 || responses[0] != "You're welcome! Is there anything else you need help with?" {
		t.Errorf("responses = %q", responses)
	}
	if listening != 2 {
		t.Errorf("listening hints = %d, want 2", listening)
	}
}

func TestRunner_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreJournal)
	env := newTestEnv(t)

	r := &Runner{Assistant: env.assistant, Profile: "Ada", Listener: &scriptListener{}}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, nil) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunner_SwitchesProfile(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreJournal)
	env := newTestEnv(t)
	env.profiles.Create("Grace", "")

	r := &Runner{Assistant: env.assistant, Profile: "Ada"}
	typed := make(chan string, 3)
	typed <- "login"
	typed <- "switch profile to Grace"
	close(typed)

	if err := r.Run(context.Background(), typed); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.ActiveProfile() != "Grace" {
		t.Errorf("active profile = %q, want Grace", r.ActiveProfile())
	}
}
