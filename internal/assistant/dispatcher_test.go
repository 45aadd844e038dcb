package assistant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/jarvis/internal/profile"
)

// --- Mocks ---

type mockSessions struct {
	authenticated bool
}

func (s *mockSessions) Authenticate(*profile.Profile, string) (string, error) {
	s.authenticated = true
	return "tok", nil
}

func (s *mockSessions) IsAuthenticated(*profile.Profile, string) bool { return s.authenticated }

func (s *mockSessions) Logout(*profile.Profile) { s.authenticated = false }

type learnCall struct {
	Utterance string
	Category  string
	Succeeded bool
}

type mockLearner struct {
	mu    sync.Mutex
	calls []learnCall
}

func (l *mockLearner) Learn(utterance, category string, succeeded bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, learnCall{utterance, category, succeeded})
	return nil
}

func (l *mockLearner) Predict(string) (string, bool) { return "", false }

func (l *mockLearner) Suggest(string, int) []string { return nil }

func (l *mockLearner) Calls() []learnCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]learnCall(nil), l.calls...)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDispatcher(sessions Sessions, learner Learner) (*Dispatcher, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	d := NewDispatcher(sessions, learner, quietLogger())
	d.clock = clock.Now
	return d, clock
}

// --- Tests ---

func TestDispatch_DeniesSensitiveWithoutSession(t *testing.T) {
	learner := &mockLearner{}
	d, _ := newTestDispatcher(&mockSessions{}, learner)

	called := false
	d.Handle(func(context.Context, *Turn) (Reply, error) {
		called = true
		return Reply{Text: "sent"}, nil
	}, "message")

	p := profile.New("Ada", "")
	res := d.Dispatch(context.Background(), p, "message", "message Bob saying hi")

	if !res.Denied || res.Text != DeniedResponse {
		t.Fatalf("result = %+v, want denial", res)
	}
	if res.Succeeded {
		t.Error("denied dispatch counted as success")
	}
	if called {
		t.Error("handler ran without a session")
	}
	if n := len(learner.Calls()); n != 0 {
		t.Errorf("learner called %d times, want 0", n)
	}
	if n := p.Preferences.FrequentCommands["message"]; n != 0 {
		t.Errorf("usage counter = %d, want 0", n)
	}
}

func TestDispatch_AllSensitiveCategoriesGated(t *testing.T) {
	d, _ := newTestDispatcher(&mockSessions{}, nil)
	for _, c := range []string{"message", "contact", "telegram", "profile"} {
		d.Handle(func(context.Context, *Turn) (Reply, error) { return Reply{Text: "ran"}, nil }, c)
		if !d.Sensitive(c) {
			t.Errorf("%s not sensitive", c)
		}
		res := d.Dispatch(context.Background(), profile.New("Ada", ""), c, c)
		if !res.Denied {
			t.Errorf("%s: not denied", c)
		}
	}
	if d.Sensitive("weather") {
		t.Error("weather marked sensitive")
	}
}

func TestDispatch_SuccessCountsAndLearns(t *testing.T) {
	learner := &mockLearner{}
	d, _ := newTestDispatcher(&mockSessions{authenticated: true}, learner)

	var got *Turn
	d.Handle(func(_ context.Context, turn *Turn) (Reply, error) {
		got = turn
		return Reply{Text: "Message sent to @bob"}, nil
	}, "message")

	p := profile.New("Ada", "")
	res := d.Dispatch(context.Background(), p, "message", "Message Bob saying Hi")

	if !res.Succeeded || res.Text != "Message sent to @bob" {
		t.Fatalf("result = %+v", res)
	}
	if got.Text != "message bob saying hi" || got.Raw != "Message Bob saying Hi" {
		t.Errorf("turn text = %q raw = %q", got.Text, got.Raw)
	}
	if p.Preferences.FrequentCommands["message"] != 1 {
		t.Errorf("usage counter = %d, want 1", p.Preferences.FrequentCommands["message"])
	}
	calls := learner.Calls()
	want := learnCall{"message bob saying hi", "message", true}
	if len(calls) != 1 || calls[0] != want {
		t.Errorf("learn calls = %+v, want [%+v]", calls, want)
	}
}

func TestDispatch_FailedReplyLearnsFalse(t *testing.T) {
	learner := &mockLearner{}
	d, _ := newTestDispatcher(nil, learner)
	d.Handle(func(context.Context, *Turn) (Reply, error) {
		return Reply{Text: "Failed to launch foo", Failed: true}, nil
	}, "open")

	p := profile.New("Ada", "")
	res := d.Dispatch(context.Background(), p, "open", "open foo")
	if res.Succeeded || res.Fault != nil {
		t.Fatalf("result = %+v", res)
	}
	if p.Preferences.FrequentCommands["open"] != 1 {
		t.Error("handled turn not counted")
	}
	if calls := learner.Calls(); len(calls) != 1 || calls[0].Succeeded {
		t.Errorf("learn calls = %+v", calls)
	}
}

func TestDispatch_PanicBecomesFault(t *testing.T) {
	learner := &mockLearner{}
	d, _ := newTestDispatcher(nil, learner)
	d.Handle(func(context.Context, *Turn) (Reply, error) {
		var m map[string]int
		m["boom"]++
		return Reply{}, nil
	}, "weather")

	p := profile.New("Ada", "")
	res := d.Dispatch(context.Background(), p, "weather", "weather")

	if res.Fault == nil || res.Fault.Panic == nil {
		t.Fatalf("Fault = %+v, want recovered panic", res.Fault)
	}
	if res.Text != FaultResponse || res.Succeeded {
		t.Errorf("result = %+v", res)
	}
	if p.Preferences.FrequentCommands["weather"] != 0 {
		t.Error("faulted turn counted as a use")
	}
	if calls := learner.Calls(); len(calls) != 1 || calls[0].Succeeded {
		t.Errorf("learn calls = %+v, want one unsuccessful", calls)
	}
}

func TestDispatch_ErrorBecomesFault(t *testing.T) {
	d, _ := newTestDispatcher(nil, nil)
	sentinel := errors.New("disk gone")
	d.Handle(func(context.Context, *Turn) (Reply, error) { return Reply{}, sentinel }, "todo")

	res := d.Dispatch(context.Background(), profile.New("Ada", ""), "todo", "todo")
	if !errors.Is(res.Fault, sentinel) {
		t.Errorf("Fault = %v, want wrapping %v", res.Fault, sentinel)
	}
	if res.Text != FaultResponse {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestDispatch_UnknownCategoryIsFault(t *testing.T) {
	d, _ := newTestDispatcher(nil, nil)
	res := d.Dispatch(context.Background(), profile.New("Ada", ""), "teleport", "teleport me")
	if res.Fault == nil {
		t.Error("expected fault for unregistered category")
	}
}

func TestDispatch_FaultBurstSuggestsRestart(t *testing.T) {
	d, clock := newTestDispatcher(nil, nil)
	d.Handle(func(context.Context, *Turn) (Reply, error) { return Reply{}, errors.New("x") }, "news")
	p := profile.New("Ada", "")

	hasHint := func(r Result) bool {
		for _, h := range r.Hints {
			if h == HintRestartSuggested {
				return true
			}
		}
		return false
	}

	for i := 1; i <= 5; i++ {
		if res := d.Dispatch(context.Background(), p, "news", "news"); hasHint(res) {
			t.Fatalf("fault %d suggested restart", i)
		}
		clock.Advance(time.Second)
	}
	if res := d.Dispatch(context.Background(), p, "news", "news"); !hasHint(res) {
		t.Fatal("sixth fault within a minute did not suggest restart")
	}
	if res := d.Dispatch(context.Background(), p, "news", "news"); hasHint(res) {
		t.Error("history not reset after suggesting restart")
	}
}

func TestDispatch_SpreadFaultsDoNotSuggestRestart(t *testing.T) {
	d, clock := newTestDispatcher(nil, nil)
	d.Handle(func(context.Context, *Turn) (Reply, error) { return Reply{}, errors.New("x") }, "news")
	p := profile.New("Ada", "")

	for i := 0; i < 10; i++ {
		res := d.Dispatch(context.Background(), p, "news", "news")
		if len(res.Hints) != 0 {
			t.Fatalf("fault %d: hints = %v", i, res.Hints)
		}
		clock.Advance(15 * time.Second)
	}
}
