package agent

import (
	"phasebot/internal/domain"
	"phasebot/internal/lexicon"
)

// dateLayout is the current-date stamp format used in prompts.
const dateLayout = "01/02/2006"

// RunContext is the working context of one pipeline run. Phase 1 creates it,
// phase 2 adds the transcript and annotations, phases 3 and 4 only read it.
// It is never persisted.
type RunContext struct {
	Author *domain.Profile

	// PriorEvents is filled only for continued conversations, oldest first,
	// and never includes the triggering event.
	PriorEvents []*domain.Event

	// Participants are distinct and in discovery order. Neither list holds
	// the actor or the author, and no id appears in both.
	ThreadParticipants    []*domain.Profile
	MentionedParticipants []*domain.Profile

	Transcript   string
	Annotations  []lexicon.Annotation
	EnrichedText string
	CurrentDate  string
}

// Resolved reports whether id is the author or an already resolved participant.
func (rc *RunContext) Resolved(id string) bool {
	if rc.Author != nil && rc.Author.ID == id {
		return true
	}
	for _, p := range rc.ThreadParticipants {
		if p.ID == id {
			return true
		}
	}
	for _, p := range rc.MentionedParticipants {
		if p.ID == id {
			return true
		}
	}
	return false
}

// Attachments returns the attachments of the triggering event followed by
// those of every prior event.
func (rc *RunContext) Attachments(ev *domain.Event) []*domain.Attachment {
	out := append([]*domain.Attachment(nil), ev.Attachments...)
	for _, prior := range rc.PriorEvents {
		out = append(out, prior.Attachments...)
	}
	return out
}
