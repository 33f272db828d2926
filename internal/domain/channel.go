package domain

import "context"

// Capability is the fixed set of platform operations the pipeline depends on.
// It is implemented once per platform and injected at construction.
//
// Every list operation returns events oldest first. Lookups that find nothing
// return (nil, nil).
type Capability interface {
	Send(ctx context.Context, msg OutboundMessage) error
	AddSignal(ctx context.Context, sig ReactionSignal) error
	RemoveSignal(ctx context.Context, sig ReactionSignal) error
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	ListChannelEvents(ctx context.Context, channelID string) ([]*Event, error)
	ListThreadEvents(ctx context.Context, channelID, threadID string) ([]*Event, error)
	GetEvent(ctx context.Context, channelID, eventID string) (*Event, error)
	ListThreadParticipants(ctx context.Context, channelID, threadID string) ([]string, error)
	ListPriorEvents(ctx context.Context, channelID, eventID, threadID string) ([]*Event, error)
}
