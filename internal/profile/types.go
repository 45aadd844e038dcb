package profile

import (
	"sort"
	"strings"
	"time"
)

// MaxHistory bounds Profile.History; older entries are evicted first.
const MaxHistory = 100

// Profile is the persisted identity and state of one user.
type Profile struct {
	Name             string                       `json:"name"`
	Location         string                       `json:"location"`
	Preferences      Preferences                  `json:"preferences"`
	History          []HistoryEntry               `json:"history"`
	Learning         map[string]*LearningFeedback `json:"learning"`
	Contacts         map[string]*Contact          `json:"contacts"` // lower-cased name → contact
	MessagingSession string                       `json:"messaging_session,omitempty"`
	Session          Session                      `json:"session"`
	Credential       *Credential                  `json:"credential,omitempty"`
}

// Preferences captures speech settings and usage statistics.
type Preferences struct {
	VoiceRate        int            `json:"voice_rate"`
	Voice            string         `json:"voice"`
	Theme            string         `json:"theme"`
	FavoriteApps     []string       `json:"favorite_apps"`
	FrequentCommands map[string]int `json:"frequent_commands"`
	Feedback         []Feedback     `json:"feedback"`
}

// Feedback is one user rating of the assistant.
type Feedback struct {
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	Timestamp time.Time `json:"timestamp"`
}

// HistoryEntry records one utterance.
type HistoryEntry struct {
	Command   string    `json:"command"`
	Timestamp time.Time `json:"timestamp"`
}

// LearningFeedback tracks how a raw command was answered over time.
type LearningFeedback struct {
	Responses      map[string]int `json:"responses"`
	TotalUses      int            `json:"total_uses"`
	SuccessfulUses int            `json:"successful_uses"`
}

// Contact is an entry in a profile's address book.
type Contact struct {
	Name          string     `json:"name"`
	Handle        string     `json:"handle,omitempty"` // messaging handle, e.g. "@bob"
	Phone         string     `json:"phone,omitempty"`
	Email         string     `json:"email,omitempty"`
	LastContacted *time.Time `json:"last_contacted,omitempty"`
	Frequency     int        `json:"frequency"`
}

// CommandCount pairs a category with its usage count.
type CommandCount struct {
	Category string
	Count    int
}

// New returns a profile with default preferences.
func New(name, location string) *Profile {
	p := &Profile{Name: name, Location: location}
	p.normalize()
	return p
}

// normalize fills defaults and nil collections, e.g. after decoding.
func (p *Profile) normalize() {
	if p.Preferences.VoiceRate == 0 {
		p.Preferences.VoiceRate = 180
	}
	if p.Preferences.Voice == "" {
		p.Preferences.Voice = "Male"
	}
	if p.Preferences.Theme == "" {
		p.Preferences.Theme = "dark"
	}
	if p.Preferences.FrequentCommands == nil {
		p.Preferences.FrequentCommands = make(map[string]int)
	}
	if p.Learning == nil {
		p.Learning = make(map[string]*LearningFeedback)
	}
	for k, lf := range p.Learning {
		if lf == nil {
			delete(p.Learning, k)
			continue
		}
		if lf.Responses == nil {
			lf.Responses = make(map[string]int)
		}
	}
	if p.Contacts == nil {
		p.Contacts = make(map[string]*Contact)
	}
	for k, c := range p.Contacts {
		if c == nil {
			delete(p.Contacts, k)
		}
	}
	if len(p.History) > MaxHistory {
		p.History = append([]HistoryEntry(nil), p.History[len(p.History)-MaxHistory:]...)
	}
}

// AddHistory appends command, evicting the oldest entries beyond MaxHistory.
func (p *Profile) AddHistory(command string, at time.Time) {
	p.History = append(p.History, HistoryEntry{Command: command, Timestamp: at})
	if over := len(p.History) - MaxHistory; over > 0 {
		p.History = append(p.History[:0], p.History[over:]...)
	}
}

// CountCommand increments the usage counter of category.
func (p *Profile) CountCommand(category string) {
	if p.Preferences.FrequentCommands == nil {
		p.Preferences.FrequentCommands = make(map[string]int)
	}
	p.Preferences.FrequentCommands[category]++
}

// MostFrequent returns up to limit categories by descending usage.
// Equal counts are ordered by name.
func (p *Profile) MostFrequent(limit int) []CommandCount {
	out := make([]CommandCount, 0, len(p.Preferences.FrequentCommands))
	for c, n := range p.Preferences.FrequentCommands {
		out = append(out, CommandCount{Category: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// AddFeedback records a rating.
func (p *Profile) AddFeedback(rating int, comment string, at time.Time) {
	p.Preferences.Feedback = append(p.Preferences.Feedback, Feedback{
		Rating:    rating,
		Comment:   comment,
		Timestamp: at,
	})
}

// AddFavoriteApp appends app unless already present.
func (p *Profile) AddFavoriteApp(app string) {
	for _, a := range p.Preferences.FavoriteApps {
		if a == app {
			return
		}
	}
	p.Preferences.FavoriteApps = append(p.Preferences.FavoriteApps, app)
}

// RemoveFavoriteApp deletes app if present.
func (p *Profile) RemoveFavoriteApp(app string) {
	apps := p.Preferences.FavoriteApps
	for i, a := range apps {
		if a == app {
			p.Preferences.FavoriteApps = append(apps[:i:i], apps[i+1:]...)
			return
		}
	}
}

// UpdateLearning records that command was answered with response.
func (p *Profile) UpdateLearning(command, response string, success bool) {
	if p.Learning == nil {
		p.Learning = make(map[string]*LearningFeedback)
	}
	lf, ok := p.Learning[command]
	if !ok {
		lf = &LearningFeedback{Responses: make(map[string]int)}
		p.Learning[command] = lf
	}
	lf.TotalUses++
	if success {
		lf.SuccessfulUses++
	}
	lf.Responses[response]++
}

// AddContact stores c under its case-insensitive name, replacing any
// existing entry.
func (p *Profile) AddContact(c *Contact) {
	if p.Contacts == nil {
		p.Contacts = make(map[string]*Contact)
	}
	p.Contacts[contactKey(c.Name)] = c
}

// Contact looks up a contact by case-insensitive name.
func (p *Profile) Contact(name string) (*Contact, bool) {
	c, ok := p.Contacts[contactKey(name)]
	return c, ok
}

// RemoveContact deletes a contact and reports whether it existed.
func (p *Profile) RemoveContact(name string) bool {
	key := contactKey(name)
	if _, ok := p.Contacts[key]; !ok {
		return false
	}
	delete(p.Contacts, key)
	return true
}

// ContactList returns all contacts sorted by name.
func (p *Profile) ContactList() []*Contact {
	out := make([]*Contact, 0, len(p.Contacts))
	for _, c := range p.Contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return contactKey(out[i].Name) < contactKey(out[j].Name) })
	return out
}

// SetMessagingSession links the profile to a messaging client session.
func (p *Profile) SetMessagingSession(id string) {
	p.MessagingSession = id
}

// MarkContacted stamps the contact and bumps its frequency.
func (c *Contact) MarkContacted(at time.Time) {
	c.LastContacted = &at
	c.Frequency++
}

func contactKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Clone returns a deep copy of p.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	cp := *p

	if p.History != nil {
		cp.History = make([]HistoryEntry, len(p.History))
		copy(cp.History, p.History)
	}
	if p.Preferences.FavoriteApps != nil {
		cp.Preferences.FavoriteApps = make([]string, len(p.Preferences.FavoriteApps))
		copy(cp.Preferences.FavoriteApps, p.Preferences.FavoriteApps)
	}
	if p.Preferences.FrequentCommands != nil {
		cp.Preferences.FrequentCommands = make(map[string]int, len(p.Preferences.FrequentCommands))
		for k, v := range p.Preferences.FrequentCommands {
			cp.Preferences.FrequentCommands[k] = v
		}
	}
	if p.Preferences.Feedback != nil {
		cp.Preferences.Feedback = make([]Feedback, len(p.Preferences.Feedback))
		copy(cp.Preferences.Feedback, p.Preferences.Feedback)
	}
	if p.Learning != nil {
		cp.Learning = make(map[string]*LearningFeedback, len(p.Learning))
		for k, lf := range p.Learning {
			if lf == nil {
				continue
			}
			l := *lf
			l.Responses = make(map[string]int, len(lf.Responses))
			for r, n := range lf.Responses {
				l.Responses[r] = n
			}
			cp.Learning[k] = &l
		}
	}
	if p.Contacts != nil {
		cp.Contacts = make(map[string]*Contact, len(p.Contacts))
		for k, c := range p.Contacts {
			if c == nil {
				continue
			}
			cc := *c
			if c.LastContacted != nil {
				t := *c.LastContacted
				cc.LastContacted = &t
			}
			cp.Contacts[k] = &cc
		}
	}
	if p.Credential != nil {
		cred := *p.Credential
		cred.Salt = append([]byte(nil), p.Credential.Salt...)
		cred.Hash = append([]byte(nil), p.Credential.Hash...)
		cp.Credential = &cred
	}
	return &cp
}
