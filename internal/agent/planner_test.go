package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"phasebot/internal/domain"
	"phasebot/internal/lexicon"
)

const intro = "You are a helpful AI Assistant named UBOT00001.  You are in a conversation with U1 and will answer their request to the best of your ability.\n"

func TestPlanner_BuildPrompt_Minimal(t *testing.T) {
	p := NewPlanner(PlannerConfig{Actor: slackActor(nil), Logger: testLogger()})
	ev := &domain.Event{SenderID: "U1", Text: "<@UBOT00001> what is a widget?"}
	rc := &RunContext{Author: &domain.Profile{ID: "U1"}, CurrentDate: "03/05/2024"}

	want := "Current Date: 03/05/2024\n" + intro + "``` Request: \nwhat is a widget?\n```"
	if diff := cmp.Diff(want, p.BuildPrompt(ev, rc)); diff != "" {
		t.Errorf("prompt mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanner_BuildPrompt_Full(t *testing.T) {
	p := NewPlanner(PlannerConfig{Actor: slackActor(nil), IncludeLexicon: true, Logger: testLogger()})
	author := &domain.Profile{ID: "U1", Notes: []string{"prefers short answers"}}
	ev := &domain.Event{
		SenderID: "U1",
		Text:     "<@UBOT00001> compare with <@U3>'s widget",
		Attachments: []*domain.Attachment{
			{MediaType: "application/pdf", Summary: "widget datasheet"},
		},
	}
	rc := &RunContext{
		Author:                author,
		CurrentDate:           "03/05/2024",
		PriorEvents:           []*domain.Event{{SenderID: "U2", Text: "earlier"}},
		Transcript:            "<transcript>",
		ThreadParticipants:    []*domain.Profile{{ID: "U2"}},
		MentionedParticipants: []*domain.Profile{{ID: "U3"}},
		Annotations:           []lexicon.Annotation{{Key: "widget", Name: "widget", Meaning: "a small part"}},
	}

	got := p.BuildPrompt(ev, rc)

	blocks := []string{
		"Current Date: 03/05/2024\n",
		intro,
		"``` Use their User Info to influence your responses \n User Info: \n" + author.String() + "\n```",
		"<transcript>",
		"``` Use the following Thread Participants to influence your responses: \n" + rc.ThreadParticipants[0].String() + "\n```",
		"``` Use the following Mentioned Participants to influence your responses: \n\n\n" + rc.MentionedParticipants[0].String() + "\n\n```",
		"``` Use the following Lexicon Enrichment to influence your responses: \n[widget: a small part]\n```",
		"*** Document Attached summarized as: widget datasheet ***\n",
		"``` Request: \ncompare with <@U3>'s widget\n```",
	}
	if diff := cmp.Diff(strings.Join(blocks, ""), got); diff != "" {
		t.Errorf("prompt mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanner_BuildPrompt_LexiconOptional(t *testing.T) {
	p := NewPlanner(PlannerConfig{Actor: slackActor(nil), Logger: testLogger()})
	rc := &RunContext{Author: &domain.Profile{ID: "U1"}, Annotations: []lexicon.Annotation{{Key: "a", Name: "a", Meaning: "b"}}}
	if got := p.BuildPrompt(&domain.Event{SenderID: "U1"}, rc); strings.Contains(got, "Lexicon") {
		t.Errorf("lexicon block present when disabled: %q", got)
	}
}

func TestPlanner_BuildPrompt_NoTranscriptWithoutPriorEvents(t *testing.T) {
	p := NewPlanner(PlannerConfig{Actor: slackActor(nil), Logger: testLogger()})
	rc := &RunContext{Author: &domain.Profile{ID: "U1"}, Transcript: "<stale>"}
	if got := p.BuildPrompt(&domain.Event{SenderID: "U1"}, rc); strings.Contains(got, "<stale>") {
		t.Errorf("transcript rendered without prior events: %q", got)
	}
}

func TestPlanner_Plan(t *testing.T) {
	model := &fakeProvider{replies: []string{"A widget is a part."}}
	p := NewPlanner(PlannerConfig{Actor: slackActor(nil), Provider: model, Model: "m1", MaxTokens: 512, Logger: testLogger()})
	ev := &domain.Event{SenderID: "U1", Text: "what is a widget?"}
	rc := &RunContext{Author: &domain.Profile{ID: "U1"}}

	res := p.Plan(context.Background(), ev, rc)
	want := domain.ProcessingResult{Status: domain.ResultOK, Payload: "A widget is a part."}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	req := model.reqs[0]
	if req.Model != "m1" || req.MaxTokens != 512 || req.Messages[0].Role != "user" {
		t.Errorf("request = %+v", req)
	}
}

func TestPlanner_PlanModelFailure(t *testing.T) {
	p := NewPlanner(PlannerConfig{Actor: slackActor(nil), Provider: &fakeProvider{errs: []error{errBoom}}, Logger: testLogger()})
	res := p.Plan(context.Background(), &domain.Event{SenderID: "U1"}, &RunContext{})
	if res.OK() || res.Payload != "" {
		t.Errorf("result = %+v, want failed without payload", res)
	}
}
