package agent

import (
	"context"
	"log/slog"
	"sync"

	"phasebot/internal/bus"
	"phasebot/internal/domain"
)

const defaultConcurrency = 3

// LoopConfig holds the dependencies of the inbound event loop.
type LoopConfig struct {
	Bus          domain.EventBus
	Gate         *Gate
	Orchestrator *Orchestrator
	Notices      *bus.NoticeBus
	Logger       *slog.Logger
	Concurrency  int // max parallel runs (default 3)
}

// Loop consumes inbound events and runs each one that passes the gate as an
// independent pipeline run.
type Loop struct {
	bus          domain.EventBus
	gate         *Gate
	orchestrator *Orchestrator
	notices      *bus.NoticeBus
	logger       *slog.Logger
	concurrency  int
	wg           sync.WaitGroup
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Loop{
		bus:          cfg.Bus,
		gate:         cfg.Gate,
		orchestrator: cfg.Orchestrator,
		notices:      cfg.Notices,
		logger:       cfg.Logger,
		concurrency:  cfg.Concurrency,
	}
}

// Run consumes inbound events with bounded concurrency until ctx is done or
// the bus is closed, then waits for in-flight runs.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("event loop started", "concurrency", l.concurrency)
	defer l.wg.Wait()

	sem := make(chan struct{}, l.concurrency)
	inbound := l.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("event loop stopping")
			return
		case ev, ok := <-inbound:
			if !ok {
				l.logger.Info("inbound bus closed, event loop stopping")
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			l.wg.Add(1)
			go func(ev *domain.Event) {
				defer func() {
					<-sem
					l.wg.Done()
				}()
				l.Handle(ctx, ev)
			}(ev)
		}
	}
}

// Handle routes one event and blocks until its run, if any, has finished.
// It returns the terminal state, or StateIdle when no run was started.
func (l *Loop) Handle(ctx context.Context, ev *domain.Event) State {
	switch ev.Kind {
	case domain.EventReactionAdded:
		for _, r := range ev.Reactions {
			l.logger.Debug("reaction added", "reaction", r.Name, "user", r.ActorID, "message_id", r.MessageID)
		}
		return StateIdle
	case domain.EventMessage:
	default:
		l.logger.Debug("ignoring event", "kind", ev.Kind)
		return StateIdle
	}

	if !l.gate.Decide(ctx, ev) {
		l.notices.Emit(bus.Notice{Type: bus.NoticeEventIgnored, Source: "loop", Payload: map[string]any{"message_id": ev.MessageID}})
		return StateIdle
	}
	l.logger.Info("responding to event",
		"message_id", ev.MessageID,
		"sender", ev.SenderID,
		"continued", ev.ContinuedConversation,
	)
	return l.orchestrator.Run(ctx, ev)
}
