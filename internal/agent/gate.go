package agent

import (
	"context"
	"log/slog"
	"slices"

	"phasebot/internal/domain"
	"phasebot/internal/platform"
)

// Gate decides whether the actor should respond to an inbound event.
type Gate struct {
	actor  *domain.Actor
	logger *slog.Logger
}

func NewGate(actor *domain.Actor, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{actor: actor, logger: logger}
}

// Decide sets ev.ShouldRespond and ev.ContinuedConversation and returns the
// former. The only side effect is one participant fetch for threaded
// messages on thread-capable platforms. Missing data means "do not respond".
func (g *Gate) Decide(ctx context.Context, ev *domain.Event) bool {
	ev.ShouldRespond = false
	ev.ContinuedConversation = false

	if ev.Kind != domain.EventMessage || ev.SenderID == g.actor.ID {
		return false
	}

	if ev.MentionsActor || ev.IsDirectMessage {
		g.logger.Debug("event addresses the actor directly", "message_id", ev.MessageID)
		ev.ShouldRespond = true
	}

	if ev.IsReplyToActor && platform.ReplyCapable(g.actor.Platform) {
		g.logger.Debug("event is a reply to the actor", "message_id", ev.MessageID)
		ev.ShouldRespond = true
		ev.ContinuedConversation = true
	}

	if ev.ThreadID != "" && platform.ThreadCapable(g.actor.Platform) && g.actor.Capability != nil {
		ids, err := g.actor.Capability.ListThreadParticipants(ctx, ev.ChannelID, ev.ThreadID)
		if err != nil {
			g.logger.Warn("thread participants unavailable", "channel", ev.ChannelID, "thread", ev.ThreadID, "err", err)
		} else {
			ev.ThreadParticipantIDs = ids
			if slices.Contains(ids, g.actor.ID) {
				g.logger.Debug("actor already participates in thread", "thread", ev.ThreadID)
				ev.ShouldRespond = true
				ev.ContinuedConversation = true
			}
		}
	}

	return ev.ShouldRespond
}
