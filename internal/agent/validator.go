package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"phasebot/internal/domain"
	"phasebot/internal/platform"
)

var (
	// ErrResultFailed is returned by Validate for a failed processing result.
	ErrResultFailed = errors.New("processing result not ok")
	// ErrEmptyReply is returned when nothing is left to send after cleanup.
	ErrEmptyReply = errors.New("empty reply")
)

// NoteQueue accepts note-extraction jobs without blocking.
type NoteQueue interface {
	Enqueue(job NoteJob) error
}

// ValidatorConfig configures the validator and dispatcher.
type ValidatorConfig struct {
	Actor  *domain.Actor
	Notes  NoteQueue // optional
	Logger *slog.Logger
}

// Validator post-processes the model reply, schedules note extraction and
// sends the reply (phase 4).
type Validator struct {
	actor  *domain.Actor
	notes  NoteQueue
	logger *slog.Logger
}

func NewValidator(cfg ValidatorConfig) *Validator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Validator{actor: cfg.Actor, notes: cfg.Notes, logger: cfg.Logger}
}

// Clean strips a leading "<actor-id>:" prefix and rewrites mentions to the
// platform's canonical form.
func (v *Validator) Clean(payload string) string {
	if rest, ok := strings.CutPrefix(payload, v.actor.ID+":"); ok {
		payload = strings.TrimSpace(rest)
	}
	return platform.NormalizeMentions(v.actor.Platform, payload)
}

// Validate dispatches an ok result as a reply to ev. The note job is queued
// before sending and never delays it. A non-nil error means the run failed.
func (v *Validator) Validate(ctx context.Context, ev *domain.Event, rc *RunContext, result domain.ProcessingResult) error {
	if !result.OK() {
		return ErrResultFailed
	}

	reply := v.Clean(result.Payload)
	if strings.TrimSpace(reply) == "" {
		return ErrEmptyReply
	}

	if v.notes != nil && rc.Author != nil {
		job := NoteJob{
			Author:    rc.Author.Clone(),
			SenderID:  ev.SenderID,
			Request:   ev.Text,
			Response:  reply,
			MessageID: ev.MessageID,
		}
		if err := v.notes.Enqueue(job); err != nil {
			v.logger.Warn("note extraction not scheduled", "user", ev.SenderID, "err", err)
		}
	}

	if v.actor.Capability == nil {
		return fmt.Errorf("send reply: no platform capability")
	}
	err := v.actor.Capability.Send(ctx, domain.OutboundMessage{
		ChannelID:       ev.ChannelID,
		ThreadID:        ev.ThreadID,
		ParentMessageID: ev.MessageID,
		Text:            reply,
	})
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}
