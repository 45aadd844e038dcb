package assistant

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/kalambet/jarvis/internal/launcher"
	"github.com/kalambet/jarvis/internal/profile"
)

// HelpText lists what the assistant can do.
const HelpText = `I can help you with:
1. Sending messages via Telegram
2. Opening applications like Spotify, Chrome, Firefox, and Telegram
3. Searching the web using Chrome or Firefox
4. Setting alarms and reminders
5. Creating to-do lists
6. Checking weather and news
7. Managing your contacts
8. Managing your profile and security settings

Just ask me what you need!`

var knownApps = []string{"spotify", "chrome", "firefox", "telegram", "notepad", "calculator"}

var weatherConditions = []string{"sunny", "partly cloudy", "cloudy", "rainy", "stormy"}

// Handlers holds the collaborators used by the built-in category handlers.
// Nil collaborators make the corresponding handlers answer that the
// feature is unavailable.
type Handlers struct {
	Messenger Messenger
	Launcher  AppLauncher
	Web       WebOpener
	Profiles  ProfileStore
	Sessions  Sessions
	Prompter  PasswordPrompter
	// IntN returns a random int in [0, n). Defaults to math/rand/v2.
	IntN func(n int) int
}

// Register installs every built-in handler on d.
func (h *Handlers) Register(d *Dispatcher) {
	d.Handle(h.message, "message")
	d.Handle(h.call, "call")
	d.Handle(h.alarm, "alarm")
	d.Handle(h.reminder, "reminder")
	d.Handle(h.timer, "timer")
	d.Handle(h.todo, "todo")
	d.Handle(h.weather, "weather")
	d.Handle(h.news, "news")
	d.Handle(h.music, "music")
	d.Handle(h.openApp, "open", "launch", "start", "run")
	d.Handle(h.spotify, "spotify")
	d.Handle(h.browser("chrome"), "chrome", "browser")
	d.Handle(h.browser("firefox"), "firefox")
	d.Handle(h.telegram, "telegram")
	d.Handle(h.search, "search", "google", "find", "look up")
	d.Handle(h.contact, "contact")
	d.Handle(h.profile, "profile")
	d.Handle(h.feedback, "feedback")
	d.Handle(h.help, "help")
	d.Handle(h.exit, "exit")
	d.Handle(h.authenticate, "authenticate", "login")
	d.Handle(h.logout, "logout")
}

func (h *Handlers) intN(n int) int {
	if h.IntN != nil {
		return h.IntN(n)
	}
	return rand.IntN(n)
}

func say(format string, args ...any) (Reply, error) {
	return Reply{Text: fmt.Sprintf(format, args...)}, nil
}

// outcome turns a collaborator (ok, message) pair into a Reply.
func outcome(ok bool, msg string) (Reply, error) {
	return Reply{Text: msg, Failed: !ok}, nil
}

func (h *Handlers) message(ctx context.Context, t *Turn) (Reply, error) {
	if h.Messenger == nil {
		return say("Telegram is not configured. Please set up your Telegram account in settings.")
	}
	if su, ok := h.Messenger.(sessionUser); ok && t.Profile.MessagingSession != "" {
		su.UseSession(t.Profile.MessagingSession)
	}

	var recipient, content string
	if containsWord(t.Raw, "saying") {
		content, _ = after(t.Raw, "saying")
		if r, ok := between(t.Raw, "to", "saying"); ok {
			recipient = r
		} else {
			recipient, _ = between(t.Raw, "message", "saying")
		}
	} else {
		recipient, _ = after(t.Raw, "to")
	}

	if recipient == "" {
		return say("Who would you like to message?")
	}
	if content == "" {
		return say("What message would you like to send to %s?", recipient)
	}

	contact, known := t.Profile.Contact(recipient)
	address := recipient
	if known && contact.Handle != "" {
		address = contact.Handle
	}

	ok, msg := h.Messenger.Send(ctx, address, content)
	if ok && known {
		contact.MarkContacted(t.Now)
	}
	return outcome(ok, msg)
}

func (h *Handlers) call(_ context.Context, t *Turn) (Reply, error) {
	if rest, ok := after(t.Raw, "call"); ok {
		return say("Calling %s... Placing calls is not supported yet.", firstWord(rest))
	}
	return say("Who would you like to call?")
}

func (h *Handlers) alarm(_ context.Context, t *Turn) (Reply, error) {
	if when, ok := after(t.Raw, "for"); ok {
		return say("Alarm set for %s.", when)
	}
	return say("When would you like to set the alarm for?")
}

func (h *Handlers) reminder(_ context.Context, t *Turn) (Reply, error) {
	if task, ok := after(t.Raw, "to"); ok {
		return say("I'll remind you to %s. When would you like to be reminded?", task)
	}
	return say("What would you like me to remind you about?")
}

func (h *Handlers) timer(_ context.Context, t *Turn) (Reply, error) {
	if d, ok := after(t.Raw, "for"); ok {
		return say("Timer set for %s.", d)
	}
	return say("How long would you like to set the timer for?")
}

func (h *Handlers) todo(_ context.Context, t *Turn) (Reply, error) {
	switch {
	case containsWord(t.Text, "add") && containsWord(t.Text, "list"):
		if item, ok := between(t.Raw, "add", "to"); ok {
			return say("Added '%s' to your to-do list.", item)
		}
		return say("What would you like to add to your to-do list?")
	case containsWord(t.Text, "show") && containsWord(t.Text, "list"):
		return say("Your to-do list is empty.")
	}
	return say("What would you like to do with your to-do list?")
}

func (h *Handlers) weather(_ context.Context, t *Turn) (Reply, error) {
	location, ok := after(t.Raw, "in")
	if !ok {
		location = t.Profile.Location
	}
	if location == "" {
		location = "your current location"
	}
	condition := weatherConditions[h.intN(len(weatherConditions))]
	temp := 60 + h.intN(25)
	return say("The weather in %s is currently %s with a temperature of %d°F.", location, condition, temp)
}

func (h *Handlers) news(_ context.Context, t *Turn) (Reply, error) {
	topic, ok := after(t.Raw, "about")
	if !ok {
		topic = "general"
	}
	return say("Here are the latest headlines about %s: no news source is configured yet.", topic)
}

func (h *Handlers) music(_ context.Context, t *Turn) (Reply, error) {
	if song, ok := after(t.Raw, "play"); ok {
		return say("Playing %s...", song)
	}
	return say("What music would you like me to play?")
}

func (h *Handlers) openApp(ctx context.Context, t *Turn) (Reply, error) {
	if h.Launcher == nil {
		return Reply{Text: "Launching applications is not available.", Failed: true}, nil
	}

	app := ""
	for _, a := range knownApps {
		if strings.Contains(t.Text, a) {
			app = a
			break
		}
	}
	if app == "" {
		for _, verb := range []string{"open", "launch", "start", "run"} {
			if rest, ok := after(t.Text, verb); ok {
				app = rest
				break
			}
		}
	}
	if app == "" {
		return say("Which application would you like to open?")
	}

	ok, msg := h.Launcher.Launch(ctx, app)
	if ok {
		t.Profile.AddFavoriteApp(app)
	}
	return outcome(ok, msg)
}

func hasLaunchVerb(text string) bool {
	for _, v := range []string{"open", "launch", "start", "run"} {
		if containsWord(text, v) {
			return true
		}
	}
	return false
}

func (h *Handlers) spotify(ctx context.Context, t *Turn) (Reply, error) {
	if h.Launcher == nil {
		return Reply{Text: "Launching applications is not available.", Failed: true}, nil
	}
	ok, msg := h.Launcher.Launch(ctx, "spotify")
	if ok && !hasLaunchVerb(t.Text) {
		if song, found := after(t.Raw, "play"); found {
			return say("Opening Spotify and playing %s...", song)
		}
	}
	return outcome(ok, msg)
}

// website finds a site named in an utterance: after "go to" or "visit",
// or any word that looks like a domain.
func website(raw string) string {
	for _, marker := range []string{"go to", "visit"} {
		if site, ok := after(raw, marker); ok {
			return firstWord(site)
		}
	}
	for _, w := range strings.Fields(raw) {
		lw := strings.ToLower(w)
		for _, tld := range []string{".com", ".org", ".net", ".dev", ".io"} {
			if strings.Contains(lw, tld) {
				return trimSlot(w)
			}
		}
	}
	return ""
}

func (h *Handlers) browser(name string) HandlerFunc {
	return func(ctx context.Context, t *Turn) (Reply, error) {
		if containsWord(t.Text, "search") {
			return h.search(ctx, t)
		}
		if site := website(t.Raw); site != "" {
			if h.Web == nil {
				return Reply{Text: "Opening websites is not available.", Failed: true}, nil
			}
			return outcome(h.Web.OpenWith(ctx, site, name))
		}
		if h.Launcher == nil {
			return Reply{Text: "Launching applications is not available.", Failed: true}, nil
		}
		return outcome(h.Launcher.Launch(ctx, name))
	}
}

func (h *Handlers) telegram(ctx context.Context, t *Turn) (Reply, error) {
	if !hasLaunchVerb(t.Text) && (containsWord(t.Text, "send") || strings.Contains(t.Text, "message")) {
		return h.message(ctx, t)
	}
	if h.Launcher == nil {
		return Reply{Text: "Launching applications is not available.", Failed: true}, nil
	}
	return outcome(h.Launcher.Launch(ctx, "telegram"))
}

func (h *Handlers) search(ctx context.Context, t *Turn) (Reply, error) {
	browser := ""
	switch {
	case strings.Contains(t.Text, "chrome"):
		browser = "chrome"
	case strings.Contains(t.Text, "firefox"):
		browser = "firefox"
	}

	var query string
	for _, marker := range []string{"search for", "search", "google", "find", "look up"} {
		if q, ok := after(t.Raw, marker); ok {
			query = q
			break
		}
	}
	if browser != "" {
		query = cutWord(cutWord(query, "in"), "on")
		query = cutWord(query, "using")
	}
	if query == "" {
		return say("What would you like to search for?")
	}
	if h.Web == nil {
		return Reply{Text: "Opening websites is not available.", Failed: true}, nil
	}

	ok, msg := h.Web.OpenWith(ctx, launcher.SearchURL(query), browser)
	if !ok {
		return outcome(ok, msg)
	}
	return say("Searching for '%s'", query)
}

func (h *Handlers) contact(_ context.Context, t *Turn) (Reply, error) {
	p := t.Profile
	switch {
	case containsWord(t.Text, "add"):
		name, ok := after(t.Raw, "named")
		if !ok {
			return say("What is the name of the contact you'd like to add?")
		}
		c := &profile.Contact{Name: name}
		for _, marker := range []string{"with", "handle", "phone", "email"} {
			c.Name = cutWord(c.Name, marker)
		}
		if v, ok := after(name, "handle"); ok {
			c.Handle = firstWord(v)
		}
		if v, ok := after(name, "phone"); ok {
			c.Phone = firstWord(v)
		}
		if v, ok := after(name, "email"); ok {
			c.Email = firstWord(v)
		}
		if _, exists := p.Contact(c.Name); exists {
			return say("A contact named %s already exists. Would you like to update it?", c.Name)
		}
		p.AddContact(c)
		if c.Handle == "" && c.Phone == "" && c.Email == "" {
			return say("Contact %s added. Would you like to add their Telegram username or phone number?", c.Name)
		}
		return say("Contact %s added.", c.Name)

	case (containsWord(t.Text, "list") || containsWord(t.Text, "show")) && strings.Contains(t.Text, "contacts"):
		contacts := p.ContactList()
		if len(contacts) == 0 {
			return say("You don't have any contacts yet. Would you like to add one?")
		}
		var b strings.Builder
		b.WriteString("Here are your contacts:")
		for _, c := range contacts {
			b.WriteString("\n- " + c.Name)
		}
		return Reply{Text: b.String()}, nil

	case containsWord(t.Text, "remove") || containsWord(t.Text, "delete"):
		name, ok := after(t.Raw, "contact")
		if !ok {
			return say("Which contact would you like to remove?")
		}
		if !p.RemoveContact(name) {
			return Reply{Text: fmt.Sprintf("I couldn't find a contact named %s.", name), Failed: true}, nil
		}
		return say("Contact %s has been removed.", name)

	case containsWord(t.Text, "find"):
		name, ok := after(t.Raw, "contact")
		if !ok {
			return say("Which contact are you looking for?")
		}
		c, found := p.Contact(name)
		if !found {
			return Reply{Text: fmt.Sprintf("I couldn't find a contact named %s.", name), Failed: true}, nil
		}
		var details []string
		if c.Handle != "" {
			details = append(details, "Telegram: "+c.Handle)
		}
		if c.Phone != "" {
			details = append(details, "Phone: "+c.Phone)
		}
		if c.Email != "" {
			details = append(details, "Email: "+c.Email)
		}
		if len(details) == 0 {
			return say("I found %s in your contacts, but there are no details saved.", c.Name)
		}
		return say("Contact details for %s:\n%s", c.Name, strings.Join(details, "\n"))
	}
	return say("What would you like to do with your contacts? You can add, list, find, or remove contacts.")
}

func (h *Handlers) profile(_ context.Context, t *Turn) (Reply, error) {
	if h.Profiles == nil {
		return Reply{Text: "Profile management is not available.", Failed: true}, nil
	}
	current := t.Profile.Name

	switch {
	// Confirmation first: it also contains "delete" and "profile".
	case strings.Contains(t.Text, "yes, delete profile") || strings.Contains(t.Text, "yes delete profile"):
		if err := h.Profiles.Delete(current); err != nil {
			return Reply{}, fmt.Errorf("deleting profile %q: %w", current, err)
		}
		next := ""
		if names := h.Profiles.Names(); len(names) > 0 {
			next = names[0]
		} else {
			if _, err := h.Profiles.Create("Default", ""); err != nil && !errors.Is(err, profile.ErrExists) {
				return Reply{}, fmt.Errorf("creating default profile: %w", err)
			}
			next = "Default"
		}
		return Reply{
			Text:     fmt.Sprintf("Profile '%s' has been deleted.", current),
			Deleted:  true,
			SwitchTo: next,
			Hints:    []Hint{HintProfileChanged, HintAuthChanged},
		}, nil

	case containsWord(t.Text, "delete"):
		return say("Are you sure you want to delete the profile '%s'? Say 'yes, delete profile' to confirm.", current)

	case containsWord(t.Text, "create"):
		name, ok := after(t.Raw, "named")
		if !ok {
			return say("Let's create a new profile. What name would you like to use?")
		}
		location, _ := after(name, "in")
		name = cutWord(name, "in")
		if _, err := h.Profiles.Create(name, location); err != nil {
			if errors.Is(err, profile.ErrExists) {
				return Reply{Text: fmt.Sprintf("A profile named %s already exists.", name), Failed: true}, nil
			}
			return Reply{}, fmt.Errorf("creating profile %q: %w", name, err)
		}
		return Reply{
			Text:     fmt.Sprintf("Profile '%s' created. Switching to it now.", name),
			SwitchTo: name,
			Hints:    []Hint{HintProfileChanged, HintAuthChanged},
		}, nil

	case containsWord(t.Text, "switch"):
		if target, ok := after(t.Raw, "to"); ok && h.Profiles.Exists(target) {
			return Reply{
				Text:     fmt.Sprintf("Switched to profile '%s'.", target),
				SwitchTo: target,
				Hints:    []Hint{HintProfileChanged, HintAuthChanged},
			}, nil
		}
		names := h.Profiles.Names()
		if len(names) == 0 {
			return say("You don't have any profiles yet. Let's create one.")
		}
		return say("Available profiles: %s. Which one would you like to switch to?", strings.Join(names, ", "))

	case containsWord(t.Text, "rename"):
		target, ok := after(t.Raw, "to")
		if !ok {
			return say("What would you like to rename your profile to?")
		}
		if _, err := h.Profiles.Rename(current, target); err != nil {
			if errors.Is(err, profile.ErrExists) {
				return Reply{Text: fmt.Sprintf("A profile named %s already exists.", target), Failed: true}, nil
			}
			return Reply{}, fmt.Errorf("renaming profile %q: %w", current, err)
		}
		// The store now holds the renamed copy; this turn's copy must not
		// recreate the old record.
		return Reply{
			Text:     fmt.Sprintf("Your profile is now called '%s'.", target),
			Deleted:  true,
			SwitchTo: target,
			Hints:    []Hint{HintProfileChanged},
		}, nil
	}
	return say("What would you like to do with your profile? You can create, switch, rename, or delete profiles.")
}

func (h *Handlers) feedback(_ context.Context, t *Turn) (Reply, error) {
	rest, _ := after(t.Raw, "feedback")
	fields := strings.Fields(rest)
	for i, f := range fields {
		n, err := strconv.Atoi(strings.TrimSuffix(trimSlot(f), "/5"))
		if err != nil || n < 1 || n > 5 {
			continue
		}
		comment := strings.Join(append(append([]string(nil), fields[:i]...), fields[i+1:]...), " ")
		t.Profile.AddFeedback(n, trimSlot(comment), t.Now)
		return say("Thank you for your feedback! Rating: %d/5", n)
	}
	return say("Thank you for providing feedback! Say 'feedback' with a rating from 1 to 5 to rate me.")
}

func (h *Handlers) help(context.Context, *Turn) (Reply, error) {
	return Reply{Text: HelpText}, nil
}

func (h *Handlers) exit(context.Context, *Turn) (Reply, error) {
	return Reply{Text: "Goodbye! Have a great day.", Hints: []Hint{HintExit}}, nil
}

func (h *Handlers) authenticate(ctx context.Context, t *Turn) (Reply, error) {
	if h.Sessions == nil {
		return Reply{Text: "Authentication is not available.", Failed: true}, nil
	}
	if h.Sessions.IsAuthenticated(t.Profile, "") {
		return say("You are already authenticated.")
	}
	if h.Prompter == nil {
		return Reply{Text: "Authentication cancelled.", Failed: true}, nil
	}

	password, err := h.Prompter.PromptPassword(ctx, t.Profile.Name)
	if err != nil {
		return Reply{}, fmt.Errorf("reading password: %w", err)
	}
	if password == "" {
		return Reply{Text: "Authentication cancelled.", Failed: true}, nil
	}
	if _, err := h.Sessions.Authenticate(t.Profile, password); err != nil {
		if errors.Is(err, profile.ErrInvalidPassword) {
			return Reply{Text: "Authentication failed. Incorrect password.", Failed: true}, nil
		}
		return Reply{}, err
	}
	return Reply{Text: "Authentication successful.", Hints: []Hint{HintAuthChanged}}, nil
}

func (h *Handlers) logout(_ context.Context, t *Turn) (Reply, error) {
	if h.Sessions == nil || !h.Sessions.IsAuthenticated(t.Profile, "") {
		return say("You are not currently authenticated.")
	}
	h.Sessions.Logout(t.Profile)
	return Reply{Text: "You have been logged out.", Hints: []Hint{HintAuthChanged}}, nil
}
