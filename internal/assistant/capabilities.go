package assistant

import (
	"context"

	"github.com/kalambet/jarvis/internal/profile"
	"github.com/kalambet/jarvis/internal/storage"
)

// Messenger delivers a chat message. Implemented by messaging.Client.
type Messenger interface {
	Send(ctx context.Context, recipient, text string) (bool, string)
}

// sessionUser is implemented by messengers that can switch the bridge
// session to the one linked on a profile.
type sessionUser interface {
	UseSession(session string)
}

// AppLauncher starts applications. Implemented by launcher.Launcher.
type AppLauncher interface {
	Launch(ctx context.Context, name string) (bool, string)
}

// WebOpener opens URLs, optionally in a specific browser. Implemented by
// launcher.Launcher.
type WebOpener interface {
	Open(ctx context.Context, url string) (bool, string)
	OpenWith(ctx context.Context, url, browser string) (bool, string)
}

// PasswordPrompter asks the user for a password out of band. An empty
// result means the prompt was cancelled.
type PasswordPrompter interface {
	PromptPassword(ctx context.Context, profileName string) (string, error)
}

// Learner is the process-wide learning model. Implemented by learning.Store.
type Learner interface {
	Learn(utterance, category string, succeeded bool) error
	Predict(utterance string) (string, bool)
	Suggest(prefix string, limit int) []string
}

// Sessions checks and changes profile sessions. Implemented by
// profile.Authenticator.
type Sessions interface {
	Authenticate(p *profile.Profile, password string) (string, error)
	IsAuthenticated(p *profile.Profile, token string) bool
	Logout(p *profile.Profile)
}

// ProfileStore is the subset of profile.Manager the assistant uses.
type ProfileStore interface {
	Get(name string) (*profile.Profile, error)
	Save(p *profile.Profile) error
	Create(name, location string) (*profile.Profile, error)
	Delete(name string) error
	Rename(oldName, newName string) (*profile.Profile, error)
	Names() []string
	Exists(name string) bool
}

// Journal records processed turns. Implemented by storage.Store.
type Journal interface {
	SaveInteraction(i storage.Interaction) (storage.Interaction, error)
}
