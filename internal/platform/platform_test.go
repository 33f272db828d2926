package platform

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"phasebot/internal/domain"
)

func TestNativeReaction(t *testing.T) {
	tests := []struct {
		platform domain.Platform
		name     string
		want     string
	}{
		{domain.PlatformSlack, string(domain.SignalProcessing), "brain"},
		{domain.PlatformSlack, string(domain.SignalRequestFailed), "x"},
		{domain.PlatformDiscord, string(domain.SignalRequestComplete), "✅"},
		{domain.PlatformDiscord, string(domain.SignalContextGathering), "\U0001F440"},
		{domain.PlatformConsole, string(domain.SignalValidation), "mag"},
		{domain.PlatformSlack, ReactionThumbsUp, "thumbsup"},
		{domain.PlatformSlack, "party_parrot", "party_parrot"},
	}
	for _, tt := range tests {
		if got := NativeReaction(tt.platform, tt.name); got != tt.want {
			t.Errorf("NativeReaction(%s, %q) = %q, want %q", tt.platform, tt.name, got, tt.want)
		}
	}
}

func TestNativeReaction_EverySignalMapped(t *testing.T) {
	for _, p := range []domain.Platform{domain.PlatformSlack, domain.PlatformDiscord} {
		for _, sig := range domain.Signals() {
			if got := NativeReaction(p, string(sig)); got == string(sig) {
				t.Errorf("%s has no native reaction for %s", p, sig)
			}
		}
	}
}

func TestSymbolicReaction(t *testing.T) {
	if got := SymbolicReaction(domain.PlatformDiscord, "\U0001F44D"); got != ReactionThumbsUp {
		t.Errorf("got %q, want %q", got, ReactionThumbsUp)
	}
	if got := SymbolicReaction(domain.PlatformSlack, "tada"); got != "tada" {
		t.Errorf("unknown reaction should pass through, got %q", got)
	}
}

func TestMentionedIDs(t *testing.T) {
	got := MentionedIDs(domain.PlatformSlack, "<@U111> ask <@U222> and <@U111> again")
	if diff := cmp.Diff([]string{"U111", "U222"}, got); diff != "" {
		t.Errorf("slack ids mismatch (-want +got):\n%s", diff)
	}

	got = MentionedIDs(domain.PlatformDiscord, "<@!123456> meet <@789012>")
	if diff := cmp.Diff([]string{"123456", "789012"}, got); diff != "" {
		t.Errorf("discord ids mismatch (-want +got):\n%s", diff)
	}

	if got := MentionedIDs(domain.PlatformSlack, "no mentions here"); len(got) != 0 {
		t.Errorf("expected no ids, got %v", got)
	}
}

func TestStripMention(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"<@BOT> what is a widget?", "what is a widget?"},
		{"<@!BOT> hello <@BOT>", "hello"},
		{"hey <@OTHER>", "hey <@OTHER>"},
	}
	for _, tt := range tests {
		if got := StripMention(tt.in, "BOT"); got != tt.want {
			t.Errorf("StripMention(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeMentions(t *testing.T) {
	tests := []struct {
		name     string
		platform domain.Platform
		in       string
		want     string
	}{
		{"slack bracketed", domain.PlatformSlack, "hi <@U12345678>", "hi <@U12345678>"},
		{"slack bang", domain.PlatformSlack, "hi <@!U12345678>", "hi <@U12345678>"},
		{"slack at", domain.PlatformSlack, "ping @U12345678 now", "ping <@U12345678> now"},
		{"slack bare", domain.PlatformSlack, "ask U12345678 later", "ask <@U12345678> later"},
		{"slack short id untouched", domain.PlatformSlack, "room U123", "room U123"},
		{"slack lowercase untouched", domain.PlatformSlack, "Universities", "Universities"},
		{"discord bracketed", domain.PlatformDiscord, "yo <@123456789012345678>", "yo <@!123456789012345678>"},
		{"discord at", domain.PlatformDiscord, "yo @123456789012345678", "yo <@!123456789012345678>"},
		{"discord bare", domain.PlatformDiscord, "id 123456789012345678", "id <@!123456789012345678>"},
		{"discord short number untouched", domain.PlatformDiscord, "answer 42", "answer 42"},
		{"console at", domain.PlatformConsole, "thanks @alice", "thanks <@alice>"},
		{"console email untouched", domain.PlatformConsole, "mail a@b.com", "mail a@b.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeMentions(tt.platform, tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCapabilities(t *testing.T) {
	tests := []struct {
		platform      domain.Platform
		thread, reply bool
	}{
		{domain.PlatformSlack, true, false},
		{domain.PlatformDiscord, false, true},
		{domain.PlatformConsole, true, true},
	}
	for _, tt := range tests {
		if got := ThreadCapable(tt.platform); got != tt.thread {
			t.Errorf("ThreadCapable(%s) = %v", tt.platform, got)
		}
		if got := ReplyCapable(tt.platform); got != tt.reply {
			t.Errorf("ReplyCapable(%s) = %v", tt.platform, got)
		}
	}
}
