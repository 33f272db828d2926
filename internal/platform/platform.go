// Package platform holds what the pipeline needs to know about each chat
// platform: how status signals render as native reactions and how user
// mentions are written.
package platform

import (
	"regexp"
	"strings"

	"phasebot/internal/domain"
)

// Generic reaction names usable alongside the status signals.
const (
	ReactionLooking      = "looking"
	ReactionThinking     = "thinking"
	ReactionThumbsUp     = "thumbs_up"
	ReactionThumbsDown   = "thumbs_down"
	ReactionGreenCheck   = "green_check"
	ReactionRedX         = "red_x"
	ReactionProcessImage = "process_image"
)

// Slack reactions are short-codes without colons.
var slackReactions = map[string]string{
	string(domain.SignalContextGathering): "eyes",
	string(domain.SignalEnrichment):       "frame_with_picture",
	string(domain.SignalProcessing):       "brain",
	string(domain.SignalValidation):       "mag",
	string(domain.SignalRequestComplete):  "white_check_mark",
	string(domain.SignalRequestFailed):    "x",
	ReactionLooking:                       "eyes",
	ReactionThinking:                      "brain",
	ReactionThumbsUp:                      "thumbsup",
	ReactionThumbsDown:                    "thumbsdown",
	ReactionGreenCheck:                    "white_check_mark",
	ReactionRedX:                          "x",
	ReactionProcessImage:                  "frame_with_picture",
}

// Discord reactions are unicode emoji.
var discordReactions = map[string]string{
	string(domain.SignalContextGathering): "\U0001F440",       // eyes
	string(domain.SignalEnrichment):       "\U0001F5BC️", // frame with picture
	string(domain.SignalProcessing):       "\U0001F9E0",       // brain
	string(domain.SignalValidation):       "\U0001F50D",       // mag
	string(domain.SignalRequestComplete):  "✅",
	string(domain.SignalRequestFailed):    "❌",
	ReactionLooking:                       "\U0001F440",
	ReactionThinking:                      "\U0001F9E0",
	ReactionThumbsUp:                      "\U0001F44D",
	ReactionThumbsDown:                    "\U0001F44E",
	ReactionGreenCheck:                    "✅",
	ReactionRedX:                          "❌",
	ReactionProcessImage:                  "\U0001F5BC️",
}

// ThreadCapable reports whether the platform groups replies into threads, so
// that thread participation means the actor is already in the conversation.
func ThreadCapable(p domain.Platform) bool {
	return p == domain.PlatformSlack || p == domain.PlatformConsole
}

// ReplyCapable reports whether the platform has native replies to a single
// earlier message.
func ReplyCapable(p domain.Platform) bool {
	return p == domain.PlatformDiscord || p == domain.PlatformConsole
}

// NativeReaction renders a symbolic reaction name for the given platform.
// Unknown names pass through unchanged.
func NativeReaction(p domain.Platform, name string) string {
	var table map[string]string
	switch p {
	case domain.PlatformDiscord:
		table = discordReactions
	default:
		table = slackReactions
	}
	if native, ok := table[name]; ok {
		return native
	}
	return name
}

// SymbolicReaction maps a native reaction back to its generic name, for
// rendering history. Status signal names are never returned.
func SymbolicReaction(p domain.Platform, native string) string {
	table := slackReactions
	if p == domain.PlatformDiscord {
		table = discordReactions
	}
	for _, name := range []string{ReactionLooking, ReactionThinking, ReactionThumbsUp, ReactionThumbsDown, ReactionGreenCheck, ReactionRedX, ReactionProcessImage} {
		if table[name] == native {
			return name
		}
	}
	return native
}

var (
	slackMentionScan   = regexp.MustCompile(`<@(\w+)>`)
	discordMentionScan = regexp.MustCompile(`<@!?(\d+)>`)

	slackMentionFix   = regexp.MustCompile(`<@!?(U[A-Z0-9]{8,})>|@!?\b(U[A-Z0-9]{8,})\b|\b(U[A-Z0-9]{8,})\b`)
	discordMentionFix = regexp.MustCompile(`<@!?([0-9]{15,})>|@!?([0-9]{15,})|([0-9]{15,})`)
	consoleMentionFix = regexp.MustCompile(`<@!?(\w+)>|(?:^|\s)@(\w+)`)
)

// MentionToken returns the platform's canonical mention for a user id.
func MentionToken(p domain.Platform, userID string) string {
	if p == domain.PlatformDiscord {
		return "<@!" + userID + ">"
	}
	return "<@" + userID + ">"
}

// MentionedIDs returns the distinct user ids mentioned in text, in order of
// first appearance.
func MentionedIDs(p domain.Platform, text string) []string {
	re := slackMentionScan
	if p == domain.PlatformDiscord {
		re = discordMentionScan
	}
	var ids []string
	seen := make(map[string]bool)
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			ids = append(ids, m[1])
		}
	}
	return ids
}

// StripMention removes every mention of userID from text and trims the result.
func StripMention(text, userID string) string {
	text = strings.ReplaceAll(text, "<@"+userID+">", "")
	text = strings.ReplaceAll(text, "<@!"+userID+">", "")
	return strings.TrimSpace(text)
}

// NormalizeMentions rewrites bracketed, @-prefixed and bare user ids in text
// to the platform's canonical mention form.
func NormalizeMentions(p domain.Platform, text string) string {
	var re *regexp.Regexp
	switch p {
	case domain.PlatformSlack:
		re = slackMentionFix
	case domain.PlatformDiscord:
		re = discordMentionFix
	default:
		re = consoleMentionFix
	}
	return re.ReplaceAllStringFunc(text, func(match string) string {
		groups := re.FindStringSubmatch(match)
		id := ""
		for _, g := range groups[1:] {
			if g != "" {
				id = g
				break
			}
		}
		if id == "" {
			return match
		}
		// Keep whitespace consumed by the console pattern's leading anchor.
		lead := ""
		if trimmed := strings.TrimLeft(match, " \t\n\r"); len(trimmed) < len(match) {
			lead = match[:len(match)-len(trimmed)]
		}
		return lead + MentionToken(p, id)
	})
}
