package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"

	"phasebot/internal/bus"
	"phasebot/internal/domain"
	"phasebot/internal/lexicon"
)

const (
	visionPrompt  = "Describe the image in comprehensive detail"
	summaryPrompt = "Summarize the Following Document: \n\n "

	transcriptHeader = "Below is the transcript of the conversation leading up to this message. If relevant, use this to help understand the context of the current request:\n\n ```\n"
	transcriptFooter = "\n```\n\n"
)

// LexiconSource returns the lexicon in effect for a run.
type LexiconSource interface {
	Current() *lexicon.Lexicon
}

// EnricherConfig configures the enrichment engine.
type EnricherConfig struct {
	Vision       domain.Provider
	VisionModel  string
	Text         domain.Provider
	TextModel    string
	Descriptions domain.DescriptionCache
	Lexicon      LexiconSource // optional
	Limiter      *RateLimiter
	Notices      *bus.NoticeBus
	Logger       *slog.Logger
}

// Enricher attaches descriptions, summaries, the transcript and lexicon
// annotations to a RunContext (phase 2).
type Enricher struct {
	vision       modelCaller
	visionModel  string
	text         modelCaller
	textModel    string
	descriptions domain.DescriptionCache
	lexicon      LexiconSource
	notices      *bus.NoticeBus
	logger       *slog.Logger
	inflight     singleflight.Group
}

func NewEnricher(cfg EnricherConfig) *Enricher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Enricher{
		vision:       modelCaller{provider: cfg.Vision, limiter: cfg.Limiter, notices: cfg.Notices, source: "enrichment"},
		visionModel:  cfg.VisionModel,
		text:         modelCaller{provider: cfg.Text, limiter: cfg.Limiter, notices: cfg.Notices, source: "enrichment"},
		textModel:    cfg.TextModel,
		descriptions: cfg.Descriptions,
		lexicon:      cfg.Lexicon,
		notices:      cfg.Notices,
		logger:       cfg.Logger,
	}
}

// Enrich fills attachment summaries, rc.Transcript, rc.Annotations and
// rc.EnrichedText. Failures are logged and leave the field empty.
func (e *Enricher) Enrich(ctx context.Context, ev *domain.Event, rc *RunContext) {
	for _, att := range rc.Attachments(ev) {
		switch att.Kind() {
		case domain.AttachmentImage:
			desc, err := e.Describe(ctx, att)
			if err != nil {
				e.logger.Warn("image description failed", "attachment", att.Name, "err", err)
				continue
			}
			att.Summary = desc
		case domain.AttachmentDocument:
			summary, err := e.Summarize(ctx, att)
			if err != nil {
				e.logger.Warn("document summary failed", "attachment", att.Name, "err", err)
				continue
			}
			att.Summary = summary
		}
	}

	if len(rc.PriorEvents) > 0 {
		rc.Transcript = BuildTranscript(rc.PriorEvents)
	}

	rc.Annotations = nil
	rc.EnrichedText = ev.Text
	if e.lexicon == nil {
		return
	}
	lex := e.lexicon.Current()
	if lex == nil {
		return
	}
	anns, err := lex.Annotate(ctx, ev.Text, false, nil)
	if err != nil {
		e.logger.Error("lexicon enrichment failed", "err", err)
		return
	}
	rc.Annotations = anns
	rc.EnrichedText = lexicon.Render(ev.Text, anns)
}

// Describe returns the description of an image attachment, keyed on its
// locator in the description cache. Concurrent misses for one locator share
// a single vision call. Attachments without a locator are never shared or
// cached.
func (e *Enricher) Describe(ctx context.Context, att *domain.Attachment) (string, error) {
	if att.URL == "" {
		return e.describe(ctx, att)
	}
	if desc, ok := e.cachedDescription(ctx, att.URL); ok {
		e.notices.Emit(bus.Notice{Type: bus.NoticeDescriptionHit, Source: "enrichment", Payload: map[string]any{"locator": att.URL}})
		return desc, nil
	}

	v, err, _ := e.inflight.Do(att.URL, func() (any, error) {
		if desc, ok := e.cachedDescription(ctx, att.URL); ok {
			return desc, nil
		}
		desc, err := e.describe(ctx, att)
		if err != nil {
			return "", err
		}
		if e.descriptions != nil {
			if err := e.descriptions.PutDescription(ctx, att.URL, desc); err != nil {
				e.logger.Warn("storing description failed", "locator", att.URL, "err", err)
			}
		}
		return desc, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// describe asks the vision model about the image bytes of att.
func (e *Enricher) describe(ctx context.Context, att *domain.Attachment) (string, error) {
	if len(att.Data) == 0 {
		return "", fmt.Errorf("no image data for %q", att.Name)
	}
	e.notices.Emit(bus.Notice{Type: bus.NoticeDescriptionMiss, Source: "enrichment", Payload: map[string]any{"locator": att.URL}})
	return e.vision.chat(ctx, domain.ChatRequest{
		Model:    e.visionModel,
		Messages: []domain.Message{{Role: "user", Content: visionPrompt, Images: [][]byte{att.Data}}},
	})
}

func (e *Enricher) cachedDescription(ctx context.Context, locator string) (string, bool) {
	if e.descriptions == nil || locator == "" {
		return "", false
	}
	desc, ok, err := e.descriptions.GetDescription(ctx, locator)
	if err != nil {
		e.logger.Warn("description cache read failed", "locator", locator, "err", err)
		return "", false
	}
	return desc, ok
}

// Summarize asks the text model for a summary of a document attachment.
// Summaries are not cached.
func (e *Enricher) Summarize(ctx context.Context, att *domain.Attachment) (string, error) {
	if strings.TrimSpace(att.Text) == "" {
		return "", fmt.Errorf("no extracted text for %q", att.Name)
	}
	return e.text.chat(ctx, domain.ChatRequest{
		Model:    e.textModel,
		Messages: userPrompt(summaryPrompt + att.Text),
	})
}

// BuildTranscript renders prior events in order: one "sender: text" line per
// event, then one line per attachment and one per reaction.
func BuildTranscript(events []*domain.Event) string {
	var sb strings.Builder
	sb.WriteString(transcriptHeader)
	for _, ev := range events {
		fmt.Fprintf(&sb, "%s: %s\n", ev.SenderID, ev.Text)
		for _, att := range ev.Attachments {
			sb.WriteString(attachmentLine(att))
		}
		for _, r := range ev.Reactions {
			fmt.Fprintf(&sb, "*User ID %s reacted to this message with: %s*\n", r.ActorID, r.Name)
		}
	}
	sb.WriteString(transcriptFooter)
	return sb.String()
}

// attachmentLine annotates one attachment for a prompt; other kinds render
// as nothing.
func attachmentLine(att *domain.Attachment) string {
	switch att.Kind() {
	case domain.AttachmentImage:
		return fmt.Sprintf("*** Image Attached containing text: %s and described as: %s ***\n", att.OCRText, att.Summary)
	case domain.AttachmentDocument:
		return fmt.Sprintf("*** Document Attached summarized as: %s ***\n", att.Summary)
	}
	return ""
}
