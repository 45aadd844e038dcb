package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Interaction is one journaled assistant turn.
type Interaction struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Profile   string    `json:"profile"`
	Utterance string    `json:"utterance"`
	Category  string    `json:"category"` // empty for open conversation
	Source    string    `json:"source"`   // "keyword", "learned" or empty
	Response  string    `json:"response"`
	Status    string    `json:"status"` // "succeeded", "failed", "denied", "conversation"
}

// Launch records an application or URL opened on behalf of the user.
type Launch struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Target    string    `json:"target"`
	Kind      string    `json:"kind"` // "app" or "url"
	Succeeded bool      `json:"succeeded"`
	Detail    string    `json:"detail"`
}
