package agent

import (
	"context"
	"testing"

	"phasebot/internal/domain"
)

func TestGate_Decide(t *testing.T) {
	tests := []struct {
		name          string
		platform      domain.Platform
		participants  []string
		ev            domain.Event
		wantRespond   bool
		wantContinued bool
		wantFetches   int
	}{
		{
			name:        "mention",
			platform:    domain.PlatformSlack,
			ev:          domain.Event{Kind: domain.EventMessage, SenderID: "U1", MentionsActor: true},
			wantRespond: true,
		},
		{
			name:        "direct message",
			platform:    domain.PlatformDiscord,
			ev:          domain.Event{Kind: domain.EventMessage, SenderID: "U1", IsDirectMessage: true},
			wantRespond: true,
		},
		{
			name:     "plain channel message",
			platform: domain.PlatformSlack,
			ev:       domain.Event{Kind: domain.EventMessage, SenderID: "U1", Text: "hello all"},
		},
		{
			name:     "own message",
			platform: domain.PlatformSlack,
			ev:       domain.Event{Kind: domain.EventMessage, SenderID: "UBOT00001", MentionsActor: true},
		},
		{
			name:     "reaction",
			platform: domain.PlatformSlack,
			ev:       domain.Event{Kind: domain.EventReactionAdded, SenderID: "U1", MentionsActor: true},
		},
		{
			name:          "reply to actor on discord",
			platform:      domain.PlatformDiscord,
			ev:            domain.Event{Kind: domain.EventMessage, SenderID: "U1", IsReplyToActor: true},
			wantRespond:   true,
			wantContinued: true,
		},
		{
			name:     "reply flag ignored on slack",
			platform: domain.PlatformSlack,
			ev:       domain.Event{Kind: domain.EventMessage, SenderID: "U1", IsReplyToActor: true},
		},
		{
			name:          "slack thread with actor",
			platform:      domain.PlatformSlack,
			participants:  []string{"U1", "UBOT00001"},
			ev:            domain.Event{Kind: domain.EventMessage, SenderID: "U1", ChannelID: "C1", ThreadID: "T1"},
			wantRespond:   true,
			wantContinued: true,
			wantFetches:   1,
		},
		{
			name:         "slack thread without actor",
			platform:     domain.PlatformSlack,
			participants: []string{"U1", "U2"},
			ev:           domain.Event{Kind: domain.EventMessage, SenderID: "U1", ChannelID: "C1", ThreadID: "T1"},
			wantFetches:  1,
		},
		{
			name:         "discord thread not fetched",
			platform:     domain.PlatformDiscord,
			participants: []string{"UBOT00001"},
			ev:           domain.Event{Kind: domain.EventMessage, SenderID: "U1", ChannelID: "C1", ThreadID: "T1"},
		},
		{
			name:          "mention in thread with actor",
			platform:      domain.PlatformSlack,
			participants:  []string{"UBOT00001"},
			ev:            domain.Event{Kind: domain.EventMessage, SenderID: "U1", ThreadID: "T1", MentionsActor: true},
			wantRespond:   true,
			wantContinued: true,
			wantFetches:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCapability{participants: tt.participants}
			actor := slackActor(c)
			actor.Platform = tt.platform
			g := NewGate(actor, testLogger())

			ev := tt.ev
			got := g.Decide(context.Background(), &ev)
			if got != tt.wantRespond || ev.ShouldRespond != tt.wantRespond {
				t.Errorf("respond = %v (field %v), want %v", got, ev.ShouldRespond, tt.wantRespond)
			}
			if ev.ContinuedConversation != tt.wantContinued {
				t.Errorf("continued = %v, want %v", ev.ContinuedConversation, tt.wantContinued)
			}
			if c.participantHits != tt.wantFetches {
				t.Errorf("participant fetches = %d, want %d", c.participantHits, tt.wantFetches)
			}
		})
	}
}

func TestGate_ResetsStaleFlags(t *testing.T) {
	g := NewGate(slackActor(&fakeCapability{}), testLogger())
	ev := &domain.Event{Kind: domain.EventMessage, SenderID: "U1", ShouldRespond: true, ContinuedConversation: true}
	if g.Decide(context.Background(), ev) {
		t.Fatal("expected no response")
	}
	if ev.ShouldRespond || ev.ContinuedConversation {
		t.Errorf("flags not reset: %+v", ev)
	}
}

func TestGate_ParticipantErrorMeansNoResponse(t *testing.T) {
	c := &fakeCapability{participantsErr: errBoom}
	g := NewGate(slackActor(c), testLogger())
	ev := &domain.Event{Kind: domain.EventMessage, SenderID: "U1", ThreadID: "T1"}
	if g.Decide(context.Background(), ev) {
		t.Error("expected no response when participants are unavailable")
	}
	if ev.ThreadParticipantIDs != nil {
		t.Errorf("participants = %v, want nil", ev.ThreadParticipantIDs)
	}
}

func TestGate_StoresParticipants(t *testing.T) {
	c := &fakeCapability{participants: []string{"U1", "U2"}}
	g := NewGate(slackActor(c), testLogger())
	ev := &domain.Event{Kind: domain.EventMessage, SenderID: "U1", ThreadID: "T1"}
	g.Decide(context.Background(), ev)
	if len(ev.ThreadParticipantIDs) != 2 {
		t.Errorf("participants = %v", ev.ThreadParticipantIDs)
	}
}
