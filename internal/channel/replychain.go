package channel

import (
	"context"
	"fmt"
	"slices"

	"phasebot/internal/domain"
)

// DefaultMaxReplyDepth bounds WalkReplyChain when no depth is given.
const DefaultMaxReplyDepth = 50

// EventGetter looks up a single event. domain.Capability satisfies it.
type EventGetter interface {
	GetEvent(ctx context.Context, channelID, eventID string) (*domain.Event, error)
}

// WalkReplyChain follows ParentMessageID links upward from eventID and
// returns the ancestors oldest first, without the starting event. The walk
// stops at the root, at a missing parent, after maxDepth ancestors, or when
// a message is seen twice.
func WalkReplyChain(ctx context.Context, g EventGetter, channelID, eventID string, maxDepth int) ([]*domain.Event, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxReplyDepth
	}

	start, err := g.GetEvent(ctx, channelID, eventID)
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	if start == nil {
		return nil, nil
	}

	visited := map[string]bool{eventID: true}
	var chain []*domain.Event
	next := start.ParentMessageID
	for next != "" && len(chain) < maxDepth {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if visited[next] {
			break
		}
		visited[next] = true

		parent, err := g.GetEvent(ctx, channelID, next)
		if err != nil {
			return nil, fmt.Errorf("get event %s: %w", next, err)
		}
		if parent == nil {
			break
		}
		chain = append(chain, parent)
		next = parent.ParentMessageID
	}

	slices.Reverse(chain)
	return chain, nil
}
