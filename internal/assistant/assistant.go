// Package assistant turns utterances into command outcomes: it classifies,
// applies the session gate, runs the category handler and records the turn
// on the profile, the learning model and the interaction journal.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/jarvis/internal/intent"
	"github.com/kalambet/jarvis/internal/storage"
)

// ErrEmptyUtterance is returned by Process for blank input.
var ErrEmptyUtterance = errors.New("empty utterance")

// Outcome is the result of one processed turn.
type Outcome struct {
	ID        string        `json:"id,omitempty"`
	Profile   string        `json:"profile"`
	Utterance string        `json:"utterance"`
	Category  string        `json:"category,omitempty"`
	Source    intent.Source `json:"source,omitempty"`
	Response  string        `json:"response"`
	// Succeeded is true when the turn counted as a successful command.
	Succeeded bool   `json:"succeeded"`
	Denied    bool   `json:"denied,omitempty"`
	Fault     bool   `json:"fault,omitempty"`
	Hints     []Hint `json:"hints,omitempty"`
	SwitchTo  string `json:"switch_to,omitempty"`
}

// Config wires an Assistant. Profiles, Sessions and Learner are required.
type Config struct {
	Profiles ProfileStore
	Sessions Sessions
	Learner  Learner
	// Journal is optional.
	Journal  Journal
	Handlers *Handlers
	Clock    func() time.Time
	Logger   *slog.Logger
}

// Assistant processes turns. Turns are serialized: a turn reads, changes
// and saves a copy of the profile while holding the lock.
type Assistant struct {
	profiles   ProfileStore
	learner    Learner
	journal    Journal
	classifier *intent.Classifier
	dispatcher *Dispatcher
	clock      func() time.Time
	logger     *slog.Logger

	mu sync.Mutex
}

// New builds an Assistant and registers the built-in handlers.
func New(cfg Config) *Assistant {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	d := NewDispatcher(cfg.Sessions, cfg.Learner, logger)
	d.clock = clock

	h := cfg.Handlers
	if h == nil {
		h = &Handlers{}
	}
	if h.Profiles == nil {
		h.Profiles = cfg.Profiles
	}
	if h.Sessions == nil {
		h.Sessions = cfg.Sessions
	}
	h.Register(d)

	return &Assistant{
		profiles:   cfg.Profiles,
		learner:    cfg.Learner,
		journal:    cfg.Journal,
		classifier: intent.NewClassifier(cfg.Learner),
		dispatcher: d,
		clock:      clock,
		logger:     logger,
	}
}

// Dispatcher exposes the handler table, e.g. to register extra categories.
func (a *Assistant) Dispatcher() *Dispatcher {
	return a.dispatcher
}

// Classify returns the category an utterance would be routed to.
func (a *Assistant) Classify(utterance string) (intent.Match, bool) {
	return a.classifier.Classify(utterance)
}

// Suggest returns categories whose learned words start with prefix.
func (a *Assistant) Suggest(prefix string, limit int) []string {
	if a.learner == nil {
		return nil
	}
	return a.learner.Suggest(strings.ToLower(prefix), limit)
}

// Exclusive runs fn while no turn is in flight. Profile changes made
// outside of turns, like logins or deletes from the API, go through it so
// a turn's save cannot undo them.
func (a *Assistant) Exclusive(fn func() error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fn()
}

// Process runs one turn of utterance for the named profile.
//
// Only a missing profile or blank input is returned as an error. Handler
// faults, denials and persistence failures are reported in the Outcome
// and the log.
func (a *Assistant) Process(ctx context.Context, profileName, utterance string) (Outcome, error) {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return Outcome{}, ErrEmptyUtterance
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	p, err := a.profiles.Get(profileName)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading profile %q: %w", profileName, err)
	}

	now := a.clock()
	p.AddHistory(utterance, now)

	out := Outcome{Profile: p.Name, Utterance: utterance}
	status := "conversation"
	reply := Reply{}

	match, ok := a.classifier.Classify(utterance)
	if ok && a.dispatcher.Has(match.Category) {
		out.Category = match.Category
		out.Source = match.Source

		res := a.dispatcher.Dispatch(ctx, p, match.Category, utterance)
		reply = res.Reply
		out.Succeeded = res.Succeeded
		out.Denied = res.Denied
		out.Fault = res.Fault != nil
		switch {
		case res.Denied:
			status = "denied"
		case res.Succeeded:
			status = "succeeded"
		default:
			status = "failed"
		}
	} else {
		if ok {
			a.logger.Debug("no handler for learned category", "category", match.Category)
		}
		reply.Text = converse(p.Name, utterance)
	}

	out.Response = reply.Text
	out.Hints = reply.Hints
	out.SwitchTo = reply.SwitchTo

	if !out.Denied {
		p.UpdateLearning(utterance, reply.Text, status == "succeeded")
	}
	if !reply.Deleted {
		if err := a.profiles.Save(p); err != nil {
			a.logger.Warn("profile not persisted, keeping in-memory state", "profile", p.Name, "error", err)
		}
	}

	if a.journal != nil {
		rec, err := a.journal.SaveInteraction(storage.Interaction{
			CreatedAt: now,
			Profile:   p.Name,
			Utterance: utterance,
			Category:  out.Category,
			Source:    string(out.Source),
			Response:  out.Response,
			Status:    status,
		})
		if err != nil {
			a.logger.Warn("interaction not journaled", "profile", p.Name, "error", err)
		} else {
			out.ID = rec.ID
		}
	}

	a.logger.Debug("turn processed",
		"profile", p.Name,
		"category", out.Category,
		"status", status,
	)
	return out, nil
}
