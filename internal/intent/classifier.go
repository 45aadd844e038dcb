// Package intent maps free-text utterances to command categories.
package intent

import "strings"

// Predictor guesses a category for text that contains no trigger keyword.
// Implemented by learning.Store.
type Predictor interface {
	Predict(utterance string) (string, bool)
}

// DefaultKeywords is the ordered trigger vocabulary. The first keyword
// contained in an utterance wins, so "open the browser and search" is
// classified as "open".
var DefaultKeywords = []string{
	"message", "call", "alarm", "reminder", "timer", "todo",
	"weather", "news", "music",
	"open", "launch", "start", "run",
	"spotify", "chrome", "firefox", "telegram", "browser",
	"search", "google", "find", "look up",
	"contact", "profile", "feedback", "help", "exit",
	"authenticate", "login", "logout",
}

// Source says how a category was chosen.
type Source string

const (
	SourceKeyword Source = "keyword"
	SourceLearned Source = "learned"
)

// Match is a classification result.
type Match struct {
	Category string `json:"category"`
	Source   Source `json:"source"`
}

// Classifier combines keyword containment with a learned fallback. It has
// no side effects and never fails: a miss is reported as ok=false.
type Classifier struct {
	keywords  []string
	predictor Predictor
}

// NewClassifier returns a Classifier over DefaultKeywords. predictor may
// be nil, in which case only keywords are used.
func NewClassifier(predictor Predictor) *Classifier {
	return NewClassifierWithKeywords(DefaultKeywords, predictor)
}

// NewClassifierWithKeywords uses a custom ordered vocabulary.
func NewClassifierWithKeywords(keywords []string, predictor Predictor) *Classifier {
	kw := make([]string, len(keywords))
	for i, k := range keywords {
		kw[i] = strings.ToLower(k)
	}
	return &Classifier{keywords: kw, predictor: predictor}
}

// Classify returns the category of utterance.
func (c *Classifier) Classify(utterance string) (Match, bool) {
	text := strings.ToLower(utterance)
	if strings.TrimSpace(text) == "" {
		return Match{}, false
	}

	for _, kw := range c.keywords {
		if strings.Contains(text, kw) {
			return Match{Category: kw, Source: SourceKeyword}, true
		}
	}

	if c.predictor != nil {
		if cat, ok := c.predictor.Predict(text); ok {
			return Match{Category: cat, Source: SourceLearned}, true
		}
	}
	return Match{}, false
}

// Keywords returns a copy of the trigger vocabulary in match order.
func (c *Classifier) Keywords() []string {
	return append([]string(nil), c.keywords...)
}
