package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"phasebot/internal/bus"
	"phasebot/internal/domain"
	"phasebot/internal/platform"
)

// PlannerConfig configures the response planner.
type PlannerConfig struct {
	Actor          *domain.Actor
	Provider       domain.Provider
	Model          string
	MaxTokens      int
	IncludeLexicon bool // add the lexicon annotations block to the prompt
	Limiter        *RateLimiter
	Notices        *bus.NoticeBus
	Logger         *slog.Logger
}

// Planner assembles the prompt for a run and asks the model for a reply
// (phase 3).
type Planner struct {
	actor          *domain.Actor
	model          modelCaller
	modelName      string
	maxTokens      int
	includeLexicon bool
	logger         *slog.Logger
}

func NewPlanner(cfg PlannerConfig) *Planner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Planner{
		actor:          cfg.Actor,
		model:          modelCaller{provider: cfg.Provider, limiter: cfg.Limiter, notices: cfg.Notices, source: "planner"},
		modelName:      cfg.Model,
		maxTokens:      cfg.MaxTokens,
		includeLexicon: cfg.IncludeLexicon,
		logger:         cfg.Logger,
	}
}

// Plan sends the assembled prompt to the model. A model error yields a
// failed result with no payload.
func (p *Planner) Plan(ctx context.Context, ev *domain.Event, rc *RunContext) domain.ProcessingResult {
	prompt := p.BuildPrompt(ev, rc)
	p.logger.Debug("planner prompt", "message_id", ev.MessageID, "prompt", prompt)

	reply, err := p.model.chat(ctx, domain.ChatRequest{
		Model:     p.modelName,
		MaxTokens: p.maxTokens,
		Messages:  userPrompt(prompt),
	})
	if err != nil {
		p.logger.Error("model invocation failed", "message_id", ev.MessageID, "err", err)
		return domain.ProcessingResult{Status: domain.ResultFailed}
	}
	return domain.ProcessingResult{Status: domain.ResultOK, Payload: reply}
}

// BuildPrompt assembles the prompt deterministically from the event and its
// context. Optional blocks are left out when empty.
func (p *Planner) BuildPrompt(ev *domain.Event, rc *RunContext) string {
	var sb strings.Builder

	sb.WriteString("Current Date: " + rc.CurrentDate + "\n")
	fmt.Fprintf(&sb, "You are a helpful AI Assistant named %s.  You are in a conversation with %s and will answer their request to the best of your ability.\n", p.actor.ID, ev.SenderID)

	if rc.Author.HasPersonalization() {
		fmt.Fprintf(&sb, "``` Use their User Info to influence your responses \n User Info: \n%s\n```", rc.Author)
	}

	if len(rc.PriorEvents) > 0 {
		sb.WriteString(rc.Transcript)
	}

	if len(rc.ThreadParticipants) > 0 {
		sb.WriteString("``` Use the following Thread Participants to influence your responses: \n")
		for _, participant := range rc.ThreadParticipants {
			fmt.Fprintf(&sb, "%s\n", participant)
		}
		sb.WriteString("```")
	}

	if len(rc.MentionedParticipants) > 0 {
		sb.WriteString("``` Use the following Mentioned Participants to influence your responses: \n")
		for _, participant := range rc.MentionedParticipants {
			fmt.Fprintf(&sb, "\n\n%s\n\n", participant)
		}
		sb.WriteString("```")
	}

	if p.includeLexicon && len(rc.Annotations) > 0 {
		sb.WriteString("``` Use the following Lexicon Enrichment to influence your responses: \n")
		for _, ann := range rc.Annotations {
			sb.WriteString(ann.String() + "\n")
		}
		sb.WriteString("```")
	}

	for _, att := range ev.Attachments {
		sb.WriteString(attachmentLine(att))
	}

	fmt.Fprintf(&sb, "``` Request: \n%s\n```", platform.StripMention(ev.Text, p.actor.ID))
	return sb.String()
}
