// Package learning keeps the process-wide word/category statistics used to
// guess a command category for utterances that match no trigger keyword.
package learning

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/kalambet/jarvis/internal/fsutil"
)

// Threshold is the minimum normalized score a prediction must exceed.
const Threshold = 0.1

// DefaultSuggestLimit caps Suggest when the caller passes a non-positive limit.
const DefaultSuggestLimit = 3

// CategoryStats holds the counters learned for one category.
type CategoryStats struct {
	Name           string         `json:"name"`
	Keywords       map[string]int `json:"keywords"`
	TotalUses      int            `json:"total_uses"`
	SuccessfulUses int            `json:"successful_uses"`
}

// Option configures a Store.
type Option func(*Store)

// WithBatchedWrites disables write-through persistence. Learn only marks the
// model dirty; a Flusher or Close writes it out.
func WithBatchedWrites() Option {
	return func(s *Store) { s.writeThrough = false }
}

// WithLogger sets the logger used for load and persistence warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store owns the learning model. It is safe for concurrent use.
//
// Categories are kept in first-learned order. Prediction ties and Suggest
// results follow that order.
type Store struct {
	path         string
	writeThrough bool
	logger       *slog.Logger

	mu    sync.Mutex
	order []string
	cats  map[string]*CategoryStats
	dirty bool
}

// New creates a Store backed by path and loads any existing model from it.
// A missing file yields an empty model; an unreadable one is logged and
// also yields an empty model. An empty path keeps the model in memory only.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:         path,
		writeThrough: true,
		logger:       slog.Default(),
		cats:         make(map[string]*CategoryStats),
	}
	for _, o := range opts {
		o(s)
	}
	if path != "" {
		if err := s.load(); err != nil {
			s.logger.Error("loading learning model, starting empty", "path", path, "error", err)
		}
	}
	return s
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading model: %w", err)
	}
	cats, err := decodeModel(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cats {
		if _, dup := s.cats[c.Name]; dup {
			continue
		}
		s.order = append(s.order, c.Name)
		s.cats[c.Name] = c
	}
	s.logger.Debug("loaded learning model", "categories", len(s.order))
	return nil
}

// Tokenize lower-cases text, splits on whitespace and keeps tokens longer
// than two characters.
func Tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) > 2 {
			out = append(out, f)
		}
	}
	return out
}

// Learn records one use of category for utterance. The in-memory model is
// always updated; the returned error only reports a failed write.
func (s *Store) Learn(utterance, category string, succeeded bool) error {
	if category == "" {
		return errors.New("learning: empty category")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cats[category]
	if !ok {
		c = &CategoryStats{Name: category, Keywords: make(map[string]int)}
		s.cats[category] = c
		s.order = append(s.order, category)
	}
	c.TotalUses++
	if succeeded {
		c.SuccessfulUses++
	}
	for _, w := range Tokenize(utterance) {
		c.Keywords[w]++
	}
	s.dirty = true

	if !s.writeThrough {
		return nil
	}
	return s.flushLocked()
}

// Predict returns the category whose normalized keyword score is strictly
// highest and above Threshold. On equal scores the earliest learned
// category wins.
func (s *Store) Predict(utterance string) (string, bool) {
	words := Tokenize(utterance)

	s.mu.Lock()
	defer s.mu.Unlock()

	best := ""
	highest := 0.0
	for _, name := range s.order {
		c := s.cats[name]
		if c.TotalUses == 0 {
			continue
		}
		sum := 0
		for _, w := range words {
			sum += c.Keywords[w]
		}
		score := float64(sum) / float64(c.TotalUses)
		if score > highest {
			highest = score
			best = name
		}
	}
	if highest > Threshold {
		return best, true
	}
	return "", false
}

// Suggest returns up to limit categories having a known word that starts
// with prefix, in category order.
func (s *Store) Suggest(prefix string, limit int) []string {
	if limit <= 0 {
		limit = DefaultSuggestLimit
	}
	prefix = strings.ToLower(prefix)

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for _, name := range s.order {
		for w := range s.cats[name].Keywords {
			if strings.HasPrefix(w, prefix) {
				out = append(out, name)
				break
			}
		}
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Stats returns a copy of every category's counters in category order.
func (s *Store) Stats() []CategoryStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]CategoryStats, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, copyStats(s.cats[name]))
	}
	return out
}

// Category returns a copy of one category's counters.
func (s *Store) Category(name string) (CategoryStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cats[name]
	if !ok {
		return CategoryStats{}, false
	}
	return copyStats(c), true
}

// Reset discards the whole model and persists the empty state.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = nil
	s.cats = make(map[string]*CategoryStats)
	s.dirty = true
	return s.flushLocked()
}

// Flush writes the model if it changed since the last write.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// Close performs the final flush.
func (s *Store) Close() error {
	return s.Flush()
}

func (s *Store) flushLocked() error {
	if !s.dirty || s.path == "" {
		return nil
	}
	cats := make([]*CategoryStats, 0, len(s.order))
	for _, name := range s.order {
		cats = append(cats, s.cats[name])
	}
	data, err := encodeModel(cats)
	if err != nil {
		return fmt.Errorf("encoding model: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0o600); err != nil {
		s.logger.Error("saving learning model", "path", s.path, "error", err)
		return fmt.Errorf("saving model: %w", err)
	}
	s.dirty = false
	return nil
}

func copyStats(c *CategoryStats) CategoryStats {
	cp := *c
	cp.Keywords = make(map[string]int, len(c.Keywords))
	for k, v := range c.Keywords {
		cp.Keywords[k] = v
	}
	return cp
}
