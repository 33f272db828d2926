package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"phasebot/internal/bus"
	"phasebot/internal/domain"
)

type stubPhases struct {
	gather   func() *RunContext
	enrich   func()
	plan     func() domain.ProcessingResult
	validate func() error
	planned  bool
}

func (s *stubPhases) Gather(context.Context, *domain.Event) *RunContext {
	if s.gather != nil {
		return s.gather()
	}
	return &RunContext{}
}

func (s *stubPhases) Enrich(context.Context, *domain.Event, *RunContext) {
	if s.enrich != nil {
		s.enrich()
	}
}

func (s *stubPhases) Plan(context.Context, *domain.Event, *RunContext) domain.ProcessingResult {
	s.planned = true
	if s.plan != nil {
		return s.plan()
	}
	return domain.ProcessingResult{Status: domain.ResultOK, Payload: "hi"}
}

func (s *stubPhases) Validate(context.Context, *domain.Event, *RunContext, domain.ProcessingResult) error {
	if s.validate != nil {
		return s.validate()
	}
	return nil
}

func newTestOrchestrator(c *fakeCapability, s *stubPhases, nb *bus.NoticeBus) *Orchestrator {
	return NewOrchestrator(OrchestratorConfig{
		Actor:    slackActor(c),
		Context:  s,
		Enrich:   s,
		Plan:     s,
		Validate: s,
		Notices:  nb,
		Logger:   testLogger(),
		NewRunID: func() string { return "run-1" },
	})
}

func add(sig domain.Signal) signalCall { return signalCall{Op: "add", Name: string(sig)} }
func remove(sig domain.Signal) signalCall { return signalCall{Op: "remove", Name: string(sig)} }

func TestOrchestrator_SignalSequences(t *testing.T) {
	through := func(phases ...domain.Signal) []signalCall {
		var out []signalCall
		for _, p := range phases {
			out = append(out, add(p), remove(p))
		}
		return out
	}

	tests := []struct {
		name  string
		stub  *stubPhases
		want  []signalCall
		state State
	}{
		{
			name: "complete",
			stub: &stubPhases{},
			want: append(through(domain.SignalContextGathering, domain.SignalEnrichment, domain.SignalProcessing, domain.SignalValidation),
				add(domain.SignalRequestComplete)),
			state: StateComplete,
		},
		{
			name: "model failure skips validation",
			stub: &stubPhases{plan: func() domain.ProcessingResult { return domain.ProcessingResult{Status: domain.ResultFailed} }},
			want: append(through(domain.SignalContextGathering, domain.SignalEnrichment, domain.SignalProcessing),
				add(domain.SignalRequestFailed)),
			state: StateFailed,
		},
		{
			name: "send failure",
			stub: &stubPhases{validate: func() error { return errBoom }},
			want: append(through(domain.SignalContextGathering, domain.SignalEnrichment, domain.SignalProcessing, domain.SignalValidation),
				add(domain.SignalRequestFailed)),
			state: StateFailed,
		},
		{
			name: "panic in enrichment",
			stub: &stubPhases{enrich: func() { panic("bad attachment") }},
			want: append(through(domain.SignalContextGathering, domain.SignalEnrichment),
				add(domain.SignalRequestFailed)),
			state: StateFailed,
		},
		{
			name:  "no context",
			stub:  &stubPhases{gather: func() *RunContext { return nil }},
			want:  append(through(domain.SignalContextGathering), add(domain.SignalRequestFailed)),
			state: StateFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCapability{}
			o := newTestOrchestrator(c, tt.stub, nil)
			ev := &domain.Event{Kind: domain.EventMessage, MessageID: "M1", ChannelID: "C1", SenderID: "U1"}

			if got := o.Run(context.Background(), ev); got != tt.state {
				t.Errorf("state = %s, want %s", got, tt.state)
			}
			if diff := cmp.Diff(tt.want, c.signalLog()); diff != "" {
				t.Errorf("signals mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOrchestrator_ExactlyOneTerminalSignal(t *testing.T) {
	c := &fakeCapability{}
	o := newTestOrchestrator(c, &stubPhases{validate: func() error { return errBoom }}, nil)
	o.Run(context.Background(), &domain.Event{MessageID: "M1"})

	terminal := 0
	for _, s := range c.signalLog() {
		if s.Name == string(domain.SignalRequestComplete) || s.Name == string(domain.SignalRequestFailed) {
			terminal++
		}
	}
	if terminal != 1 {
		t.Errorf("terminal signals = %d, want 1", terminal)
	}
}

func TestOrchestrator_SignalsCarryRun(t *testing.T) {
	c := &fakeCapability{}
	o := newTestOrchestrator(c, &stubPhases{}, nil)
	o.Run(context.Background(), &domain.Event{MessageID: "M1", ChannelID: "C1", SenderID: "U1"})

	for _, sig := range c.sigs {
		want := domain.ReactionSignal{Name: sig.Name, ActorID: "UBOT00001", MessageID: "M1", ChannelID: "C1", OwnerID: "U1", RunID: "run-1"}
		if diff := cmp.Diff(want, sig); diff != "" {
			t.Errorf("signal mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestOrchestrator_Notices(t *testing.T) {
	nb := bus.NewNoticeBus(testLogger())
	var outcomes []string
	phases := 0
	nb.On(bus.NoticeRunFinished, func(n bus.Notice) { outcomes = append(outcomes, n.Payload["outcome"].(string)) })
	nb.On(bus.NoticePhaseFinished, func(bus.Notice) { phases++ })

	o := newTestOrchestrator(&fakeCapability{}, &stubPhases{}, nb)
	o.Run(context.Background(), &domain.Event{MessageID: "M1"})

	if diff := cmp.Diff([]string{"complete"}, outcomes); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}
	if phases != 4 {
		t.Errorf("phase notices = %d, want 4", phases)
	}
}

func TestOrchestrator_FailedPlanNeverValidates(t *testing.T) {
	validated := false
	s := &stubPhases{
		plan:     func() domain.ProcessingResult { return domain.ProcessingResult{Status: domain.ResultFailed} },
		validate: func() error { validated = true; return nil },
	}
	newTestOrchestrator(&fakeCapability{}, s, nil).Run(context.Background(), &domain.Event{})
	if !s.planned || validated {
		t.Errorf("planned=%v validated=%v", s.planned, validated)
	}
}

func TestTransition(t *testing.T) {
	valid := [][2]State{
		{StateIdle, StateContext},
		{StateContext, StateEnrichment},
		{StateEnrichment, StateProcessing},
		{StateProcessing, StateValidation},
		{StateValidation, StateComplete},
		{StateContext, StateFailed},
		{StateValidation, StateFailed},
	}
	for _, v := range valid {
		if err := Transition(v[0], v[1]); err != nil {
			t.Errorf("%s -> %s: %v", v[0], v[1], err)
		}
	}

	invalid := [][2]State{
		{StateIdle, StateProcessing},
		{StateIdle, StateFailed},
		{StateContext, StateValidation},
		{StateProcessing, StateComplete},
		{StateComplete, StateFailed},
		{StateFailed, StateContext},
	}
	for _, v := range invalid {
		err := Transition(v[0], v[1])
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("%s -> %s: err = %v, want ErrInvalidTransition", v[0], v[1], err)
		}
	}
}

func TestState_String(t *testing.T) {
	if StateProcessing.String() != "processing" {
		t.Errorf("got %q", StateProcessing.String())
	}
	if !StateFailed.Terminal() || StateValidation.Terminal() {
		t.Error("Terminal mismatch")
	}
}
