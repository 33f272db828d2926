package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"phasebot/internal/bus"
	"phasebot/internal/domain"
)

// ErrInvalidTransition is returned when a run tries to move between states
// that are not adjacent in the pipeline.
var ErrInvalidTransition = errors.New("invalid phase transition")

// State is a pipeline run state.
type State int

const (
	StateIdle State = iota
	StateContext
	StateEnrichment
	StateProcessing
	StateValidation
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateContext:
		return "context"
	case StateEnrichment:
		return "enrichment"
	case StateProcessing:
		return "processing"
	case StateValidation:
		return "validation"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether the run has ended.
func (s State) Terminal() bool { return s == StateComplete || s == StateFailed }

var transitions = map[State][]State{
	StateIdle:       {StateContext},
	StateContext:    {StateEnrichment, StateFailed},
	StateEnrichment: {StateProcessing, StateFailed},
	StateProcessing: {StateValidation, StateFailed},
	StateValidation: {StateComplete, StateFailed},
}

// Transition checks that to may follow from.
func Transition(from, to State) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

var phaseSignals = map[State]domain.Signal{
	StateContext:    domain.SignalContextGathering,
	StateEnrichment: domain.SignalEnrichment,
	StateProcessing: domain.SignalProcessing,
	StateValidation: domain.SignalValidation,
	StateComplete:   domain.SignalRequestComplete,
	StateFailed:     domain.SignalRequestFailed,
}

// The four phases, as consumed by the orchestrator.
type (
	ContextPhase interface {
		Gather(ctx context.Context, ev *domain.Event) *RunContext
	}
	EnrichPhase interface {
		Enrich(ctx context.Context, ev *domain.Event, rc *RunContext)
	}
	PlanPhase interface {
		Plan(ctx context.Context, ev *domain.Event, rc *RunContext) domain.ProcessingResult
	}
	ValidatePhase interface {
		Validate(ctx context.Context, ev *domain.Event, rc *RunContext, result domain.ProcessingResult) error
	}
)

// OrchestratorConfig wires the phases of a run.
type OrchestratorConfig struct {
	Actor    *domain.Actor
	Context  ContextPhase
	Enrich   EnrichPhase
	Plan     PlanPhase
	Validate ValidatePhase
	Notices  *bus.NoticeBus
	Logger   *slog.Logger
	NewRunID func() string
}

// Orchestrator drives one event through the four phases and reports
// progress as status signals on the triggering message.
type Orchestrator struct {
	actor    *domain.Actor
	gather   ContextPhase
	enrich   EnrichPhase
	plan     PlanPhase
	validate ValidatePhase
	notices  *bus.NoticeBus
	logger   *slog.Logger
	newRunID func() string
}

func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.NewRunID == nil {
		cfg.NewRunID = uuid.NewString
	}
	return &Orchestrator{
		actor:    cfg.Actor,
		gather:   cfg.Context,
		enrich:   cfg.Enrich,
		plan:     cfg.Plan,
		validate: cfg.Validate,
		notices:  cfg.Notices,
		logger:   cfg.Logger,
		newRunID: cfg.NewRunID,
	}
}

// run is the state of one pipeline run.
type run struct {
	id     string
	ev     *domain.Event
	state  State
	logger *slog.Logger
}

// Run drives ev through the pipeline and returns the terminal state. Exactly
// one of the complete and failed signals is emitted.
func (o *Orchestrator) Run(ctx context.Context, ev *domain.Event) State {
	r := &run{id: o.newRunID(), ev: ev, state: StateIdle}
	r.logger = o.logger.With("run_id", r.id, "message_id", ev.MessageID)
	start := time.Now()
	o.notices.Emit(bus.Notice{Type: bus.NoticeRunStarted, Source: "orchestrator", Payload: map[string]any{"run_id": r.id}})

	final := o.drive(ctx, r)

	o.finish(ctx, r, final)
	r.logger.Info("run finished", "outcome", r.state.String(), "duration_ms", time.Since(start).Milliseconds())
	o.notices.Emit(bus.Notice{
		Type:    bus.NoticeRunFinished,
		Source:  "orchestrator",
		Payload: map[string]any{"run_id": r.id, "outcome": r.state.String(), "duration": time.Since(start)},
	})
	return r.state
}

// drive runs the phases in order and returns the terminal state to enter.
func (o *Orchestrator) drive(ctx context.Context, r *run) State {
	var rc *RunContext
	if err := o.phase(ctx, r, StateContext, "phase 1: context gathering", func() error {
		rc = o.gather.Gather(ctx, r.ev)
		if rc == nil {
			return errors.New("no context produced")
		}
		return nil
	}); err != nil {
		return StateFailed
	}

	if err := o.phase(ctx, r, StateEnrichment, "phase 2: enrichment", func() error {
		o.enrich.Enrich(ctx, r.ev, rc)
		return nil
	}); err != nil {
		return StateFailed
	}

	var result domain.ProcessingResult
	if err := o.phase(ctx, r, StateProcessing, "phase 3: processing", func() error {
		result = o.plan.Plan(ctx, r.ev, rc)
		return nil
	}); err != nil {
		return StateFailed
	}
	if !result.OK() {
		r.logger.Error("processing failed")
		return StateFailed
	}

	if err := o.phase(ctx, r, StateValidation, "phase 4: validation", func() error {
		return o.validate.Validate(ctx, r.ev, rc, result)
	}); err != nil {
		return StateFailed
	}
	return StateComplete
}

// phase enters state, sets its signal, runs fn with panic recovery and clears
// the signal again before returning.
func (o *Orchestrator) phase(ctx context.Context, r *run, state State, label string, fn func() error) (err error) {
	if err := o.enter(r, state); err != nil {
		return err
	}
	r.logger.Info(label)
	start := time.Now()
	sig := o.signal(r, phaseSignals[state])
	o.addSignal(ctx, r, sig)

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in %s: %v", state, p)
		}
		if err != nil {
			r.logger.Error("phase failed", "phase", state.String(), "err", err)
		}
		o.removeSignal(ctx, r, sig)
		o.notices.Emit(bus.Notice{
			Type:    bus.NoticePhaseFinished,
			Source:  "orchestrator",
			Payload: map[string]any{"run_id": r.id, "phase": state.String(), "duration": time.Since(start), "failed": err != nil},
		})
	}()

	return fn()
}

func (o *Orchestrator) finish(ctx context.Context, r *run, final State) {
	if err := o.enter(r, final); err != nil {
		// Only reachable from a state with no path to final; force failure.
		r.logger.Error("forcing failure", "err", err)
		r.state = StateFailed
	}
	o.addSignal(ctx, r, o.signal(r, phaseSignals[r.state]))
}

func (o *Orchestrator) enter(r *run, next State) error {
	if err := Transition(r.state, next); err != nil {
		return err
	}
	r.state = next
	return nil
}

func (o *Orchestrator) signal(r *run, sig domain.Signal) domain.ReactionSignal {
	return domain.ReactionSignal{
		Name:      string(sig),
		ActorID:   o.actor.ID,
		MessageID: r.ev.MessageID,
		ChannelID: r.ev.ChannelID,
		OwnerID:   r.ev.SenderID,
		RunID:     r.id,
	}
}

func (o *Orchestrator) addSignal(ctx context.Context, r *run, sig domain.ReactionSignal) {
	if o.actor.Capability == nil {
		return
	}
	if err := o.actor.Capability.AddSignal(ctx, sig); err != nil {
		r.logger.Warn("add signal failed", "signal", sig.Name, "err", err)
	}
}

func (o *Orchestrator) removeSignal(ctx context.Context, r *run, sig domain.ReactionSignal) {
	if o.actor.Capability == nil {
		return
	}
	if err := o.actor.Capability.RemoveSignal(ctx, sig); err != nil {
		r.logger.Warn("remove signal failed", "signal", sig.Name, "err", err)
	}
}
