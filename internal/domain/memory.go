package domain

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// ProfileStore persists per-user profiles keyed by user id.
// GetProfile returns (nil, nil) when no profile exists.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	SaveProfile(ctx context.Context, p *Profile) error
}

// DescriptionCache maps an attachment locator to a previously computed
// description. Writes are persisted before PutDescription returns.
type DescriptionCache interface {
	GetDescription(ctx context.Context, locator string) (string, bool, error)
	PutDescription(ctx context.Context, locator, description string) error
}

// Profile is the durable per-user personalization record.
type Profile struct {
	ID         string    `json:"id"`
	Platform   Platform  `json:"platform"`
	MentionTag string    `json:"mention_tag"`
	Username   string    `json:"username"`
	RealName   string    `json:"real_name"`
	Title      string    `json:"title"`
	Team       string    `json:"team,omitempty"`
	Status     string    `json:"status"`
	IsBot      bool      `json:"is_bot"`
	Bio        string    `json:"bio"`
	Notes      []string  `json:"notes"`
	Audience   string    `json:"audience"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HasPersonalization reports whether the profile carries anything worth
// putting in a prompt.
func (p *Profile) HasPersonalization() bool {
	return p != nil && (len(p.Notes) > 0 || p.Audience != "" || p.Bio != "")
}

// AddNotes appends the notes not already present and returns how many were added.
func (p *Profile) AddNotes(notes ...string) int {
	added := 0
	for _, n := range notes {
		if n == "" || slices.Contains(p.Notes, n) {
			continue
		}
		p.Notes = append(p.Notes, n)
		added++
	}
	return added
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Notes = slices.Clone(p.Notes)
	return &c
}

func (p *Profile) String() string {
	return fmt.Sprintf("User Info:\nID: %s\nMention Tag: %s\nUsername: %s\nReal Name: %s\nTitle: %s\nTeam: %s\nStatus: %s\nIs Bot: %t\nBio: %s\nAI Notes: %q\nHow to Respond: %s",
		p.ID, p.MentionTag, p.Username, p.RealName, p.Title, p.Team, p.Status, p.IsBot, p.Bio, p.Notes, p.Audience)
}
