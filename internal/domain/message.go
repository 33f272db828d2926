package domain

import "strings"

// Platform identifies the chat platform an Actor and its Events belong to.
type Platform string

const (
	PlatformSlack   Platform = "slack"
	PlatformDiscord Platform = "discord"
	PlatformConsole Platform = "console"
)

// Actor is the bot identity. It is built once at startup and never mutated.
type Actor struct {
	ID           string
	Platform     Platform
	MentionToken string // e.g. "<@U123>"
	DisplayName  string
	Capability   Capability
}

// EventKind distinguishes messages from reactions on the inbound path.
type EventKind string

const (
	EventMessage       EventKind = "message"
	EventReactionAdded EventKind = "reaction_added"
)

// Event is one inbound message or reaction.
type Event struct {
	Kind            EventKind
	Text            string
	SenderID        string
	MessageID       string
	ChannelID       string
	ThreadID        string
	ParentMessageID string

	MentionsActor   bool // text contains the actor's mention token
	IsDirectMessage bool // arrived in a 1:1 channel
	IsReplyToActor  bool // platform-native reply to one of the actor's messages

	Attachments []*Attachment
	Links       []Link
	Reactions   []ReactionSignal

	// ThreadParticipantIDs is filled by the decision gate when it fetches
	// participants for the thread check.
	ThreadParticipantIDs []string

	// Set by the decision gate before any phase runs.
	ShouldRespond         bool
	ContinuedConversation bool
}

// Link is a URL embedded in a message.
type Link struct {
	URL string
}

// AttachmentKind is derived from an attachment's media type.
type AttachmentKind int

const (
	AttachmentOther AttachmentKind = iota
	AttachmentImage
	AttachmentDocument
)

// Attachment is a file embedded in a message. The context aggregator fills
// Text, Data and OCRText; the enrichment engine fills Summary.
type Attachment struct {
	Name      string
	URL       string // source locator, also the description cache key
	MediaType string
	Text      string // extracted document text
	OCRText   string
	Summary   string // document summary or image description
	Data      []byte `json:"-"` // raw image bytes
}

// Kind classifies the attachment by its media type tag.
func (a *Attachment) Kind() AttachmentKind {
	mt := strings.ToLower(a.MediaType)
	switch {
	case strings.Contains(mt, "image"):
		return AttachmentImage
	case strings.Contains(mt, "pdf"), strings.Contains(mt, "txt"), strings.HasPrefix(mt, "text/"), mt == "text":
		return AttachmentDocument
	default:
		return AttachmentOther
	}
}

// IsPDF reports whether the attachment should be decoded as a PDF.
func (a *Attachment) IsPDF() bool {
	return strings.Contains(strings.ToLower(a.MediaType), "pdf")
}

// ReactionSignal is a reaction on a message. The same shape carries both
// historical platform reactions and the pipeline's own status signals.
type ReactionSignal struct {
	Name      string // symbolic name ("phase-processing") or platform reaction name
	ActorID   string
	MessageID string
	ChannelID string
	OwnerID   string // owner of the target message
	RunID     string // set for status signals; scopes add/remove to one run
}

// OutboundMessage is a reply addressed to a channel, thread and parent message.
type OutboundMessage struct {
	ChannelID       string
	ThreadID        string
	ParentMessageID string
	Text            string
}
