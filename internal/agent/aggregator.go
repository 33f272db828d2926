package agent

import (
	"context"
	"log/slog"
	"time"

	"phasebot/internal/domain"
	"phasebot/internal/platform"
)

// ContentExtractor pulls text and bytes out of attachments.
type ContentExtractor interface {
	Document(ctx context.Context, a *domain.Attachment) (string, error)
	Image(ctx context.Context, a *domain.Attachment) ([]byte, string, error)
}

// AggregatorConfig configures the context aggregator.
type AggregatorConfig struct {
	Actor     *domain.Actor
	Profiles  domain.ProfileStore
	Extractor ContentExtractor // optional; attachments are left untouched when nil
	Logger    *slog.Logger
	Now       func() time.Time
}

// Aggregator builds the RunContext for one run (phase 1).
type Aggregator struct {
	actor     *domain.Actor
	profiles  domain.ProfileStore
	extractor ContentExtractor
	logger    *slog.Logger
	now       func() time.Time
}

func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Aggregator{
		actor:     cfg.Actor,
		profiles:  cfg.Profiles,
		extractor: cfg.Extractor,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
}

// Gather builds the context for ev. Every fetch failure is logged and leaves
// the corresponding part of the context empty.
func (a *Aggregator) Gather(ctx context.Context, ev *domain.Event) *RunContext {
	rc := &RunContext{CurrentDate: a.now().Format(dateLayout)}
	rc.Author = a.resolveProfile(ctx, ev.SenderID)

	if ev.ContinuedConversation {
		rc.PriorEvents = a.priorEvents(ctx, ev)
		for _, id := range a.threadParticipantIDs(ctx, ev) {
			if a.skip(rc, id) {
				continue
			}
			rc.ThreadParticipants = append(rc.ThreadParticipants, a.resolveProfile(ctx, id))
		}
	}

	for _, id := range platform.MentionedIDs(a.actor.Platform, ev.Text) {
		if a.skip(rc, id) {
			continue
		}
		rc.MentionedParticipants = append(rc.MentionedParticipants, a.resolveProfile(ctx, id))
	}

	for _, att := range rc.Attachments(ev) {
		a.extract(ctx, att)
	}

	a.logger.Debug("context gathered",
		"message_id", ev.MessageID,
		"prior_events", len(rc.PriorEvents),
		"thread_participants", len(rc.ThreadParticipants),
		"mentioned", len(rc.MentionedParticipants),
	)
	return rc
}

func (a *Aggregator) skip(rc *RunContext, id string) bool {
	return id == "" || id == a.actor.ID || rc.Resolved(id)
}

// resolveProfile reads the store first, falls back to the platform and caches
// what the platform returns. It never returns nil.
func (a *Aggregator) resolveProfile(ctx context.Context, userID string) *domain.Profile {
	if a.profiles != nil {
		p, err := a.profiles.GetProfile(ctx, userID)
		if err != nil {
			a.logger.Warn("profile lookup failed", "user", userID, "err", err)
		} else if p != nil {
			return p
		}
	}

	if a.actor.Capability != nil {
		p, err := a.actor.Capability.GetProfile(ctx, userID)
		if err != nil {
			a.logger.Warn("platform profile fetch failed", "user", userID, "err", err)
		} else if p != nil {
			if p.ID == "" {
				p.ID = userID
			}
			if a.profiles != nil {
				if err := a.profiles.SaveProfile(ctx, p); err != nil {
					a.logger.Warn("caching profile failed", "user", userID, "err", err)
				}
			}
			return p
		}
	}

	return &domain.Profile{
		ID:         userID,
		Platform:   a.actor.Platform,
		MentionTag: platform.MentionToken(a.actor.Platform, userID),
	}
}

func (a *Aggregator) priorEvents(ctx context.Context, ev *domain.Event) []*domain.Event {
	if a.actor.Capability == nil {
		return nil
	}
	events, err := a.actor.Capability.ListPriorEvents(ctx, ev.ChannelID, ev.MessageID, ev.ThreadID)
	if err != nil {
		a.logger.Warn("prior events unavailable", "channel", ev.ChannelID, "message_id", ev.MessageID, "err", err)
		return nil
	}
	out := events[:0:0]
	for _, prior := range events {
		if prior == nil || prior.MessageID == ev.MessageID {
			continue
		}
		out = append(out, prior)
	}
	return out
}

func (a *Aggregator) threadParticipantIDs(ctx context.Context, ev *domain.Event) []string {
	if len(ev.ThreadParticipantIDs) > 0 || ev.ThreadID == "" || a.actor.Capability == nil {
		return ev.ThreadParticipantIDs
	}
	ids, err := a.actor.Capability.ListThreadParticipants(ctx, ev.ChannelID, ev.ThreadID)
	if err != nil {
		a.logger.Warn("thread participants unavailable", "thread", ev.ThreadID, "err", err)
		return nil
	}
	return ids
}

func (a *Aggregator) extract(ctx context.Context, att *domain.Attachment) {
	if a.extractor == nil {
		return
	}
	switch att.Kind() {
	case domain.AttachmentDocument:
		text, err := a.extractor.Document(ctx, att)
		if err != nil {
			a.logger.Warn("document extraction failed", "attachment", att.Name, "err", err)
			return
		}
		att.Text = text
	case domain.AttachmentImage:
		data, ocr, err := a.extractor.Image(ctx, att)
		if data != nil {
			att.Data = data
		}
		if err != nil {
			a.logger.Warn("image extraction failed", "attachment", att.Name, "err", err)
			return
		}
		att.OCRText = ocr
	}
}
