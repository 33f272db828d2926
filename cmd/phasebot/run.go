package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"phasebot/internal/agent"
	"phasebot/internal/bus"
	"phasebot/internal/channel"
	"phasebot/internal/config"
	"phasebot/internal/domain"
	"phasebot/internal/extract"
	"phasebot/internal/lexicon"
	"phasebot/internal/memory"
	"phasebot/internal/metrics"
	"phasebot/internal/platform"
	"phasebot/internal/provider"
)

const inboundBufferSize = 100

func runCmd() *cobra.Command {
	var (
		user   string
		direct bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Chat with the bot in a local console channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runConsole(ctx, cfg, user, direct)
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id to speak as (default \"user\")")
	cmd.Flags().BoolVar(&direct, "direct", false, "treat every message as a direct message")
	return cmd
}

func runConsole(ctx context.Context, cfg *config.Config, user string, direct bool) error {
	if cfg.Actor.Platform != "" && cfg.Actor.Platform != string(domain.PlatformConsole) {
		logger.Warn("run always uses the console platform", "configured", cfg.Actor.Platform)
	}

	if err := os.MkdirAll(cfg.General.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	store, err := memory.NewSQLiteStore(cfg.Store.DBPath, time.Duration(cfg.Store.CacheTTLSeconds)*time.Second, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	factory := provider.NewFactory(cfg, logger)
	text, err := factory.Text()
	if err != nil {
		return fmt.Errorf("text provider: %w", err)
	}
	vision, err := factory.Vision()
	if err != nil {
		logger.Warn("vision provider unavailable, using text provider", "err", err)
		vision = text
	}
	if err := text.Healthy(ctx); err != nil {
		logger.Warn("text provider is not healthy", "provider", text.Name(), "err", err)
	}

	lex, err := lexicon.Load(cfg.Lexicon.BundlePath, logger)
	if err != nil {
		return fmt.Errorf("load lexicon: %w", err)
	}
	lexicons := lexicon.NewHolder(lex, cfg.Lexicon.BundlePath, logger)
	if cfg.Lexicon.Watch {
		go func() {
			if err := lexicons.Watch(ctx); err != nil {
				logger.Warn("lexicon watch stopped", "err", err)
			}
		}()
	}

	notices := bus.NewNoticeBus(logger)
	if cfg.Metrics.Enabled {
		metrics.Attach(notices)
		srv := serveMetrics(cfg.Metrics)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	inbound := bus.New(inboundBufferSize, logger)
	console := channel.NewConsole(channel.ConsoleConfig{
		ActorID:       cfg.Actor.ID,
		ActorName:     cfg.Actor.DisplayName,
		UserID:        user,
		Direct:        direct,
		Bus:           inbound,
		MaxReplyDepth: cfg.History.MaxReplyDepth,
		Logger:        logger,
	})
	actor := &domain.Actor{
		ID:           cfg.Actor.ID,
		Platform:     domain.PlatformConsole,
		MentionToken: platform.MentionToken(domain.PlatformConsole, cfg.Actor.ID),
		DisplayName:  cfg.Actor.DisplayName,
		Capability:   console,
	}

	limiter := agent.NewRateLimiter(agent.RateLimiterConfig{
		Burst:         cfg.Models.Burst,
		RatePerMinute: cfg.Models.RatePerMinute,
	})
	extractor := extract.New(extract.Config{
		AuthToken:  cfg.Attachments.AuthToken,
		MaxBytes:   cfg.Attachments.MaxBytes,
		Timeout:    time.Duration(cfg.Attachments.TimeoutSeconds) * time.Second,
		OCREnabled: cfg.Attachments.OCR.Enabled,
		OCRCommand: cfg.Attachments.OCR.Command,
		Logger:     logger,
	})

	var notes agent.NoteQueue
	if cfg.Notes.Enabled {
		worker := agent.NewNoteWorker(agent.NoteWorkerConfig{
			Profiles:    store,
			Provider:    text,
			Model:       cfg.Models.TextModel,
			Temperature: cfg.Models.NotesTemperature,
			MaxAttempts: cfg.Notes.MaxAttempts,
			Workers:     cfg.Notes.Workers,
			QueueSize:   cfg.Notes.QueueSize,
			Limiter:     limiter,
			Notices:     notices,
			Logger:      logger,
		})
		worker.Start(ctx)
		defer func() {
			worker.Close()
			s := worker.Stats()
			logger.Info("note worker stopped", "updated", s.Updated, "unchanged", s.Unchanged, "abandoned", s.Abandoned, "dropped", s.Dropped)
		}()
		notes = worker
	}

	orchestrator := agent.NewOrchestrator(agent.OrchestratorConfig{
		Actor: actor,
		Context: agent.NewAggregator(agent.AggregatorConfig{
			Actor:     actor,
			Profiles:  store,
			Extractor: extractor,
			Logger:    logger,
		}),
		Enrich: agent.NewEnricher(agent.EnricherConfig{
			Vision:       vision,
			VisionModel:  cfg.Models.VisionModel,
			Text:         text,
			TextModel:    cfg.Models.TextModel,
			Descriptions: store,
			Lexicon:      lexicons,
			Limiter:      limiter,
			Notices:      notices,
			Logger:       logger,
		}),
		Plan: agent.NewPlanner(agent.PlannerConfig{
			Actor:          actor,
			Provider:       text,
			Model:          cfg.Models.TextModel,
			MaxTokens:      cfg.Models.MaxTokens,
			IncludeLexicon: cfg.Lexicon.IncludeInPrompt,
			Limiter:        limiter,
			Notices:        notices,
			Logger:         logger,
		}),
		Validate: agent.NewValidator(agent.ValidatorConfig{
			Actor:  actor,
			Notes:  notes,
			Logger: logger,
		}),
		Notices: notices,
		Logger:  logger,
	})

	loop := agent.NewLoop(agent.LoopConfig{
		Bus:          inbound,
		Gate:         agent.NewGate(actor, logger),
		Orchestrator: orchestrator,
		Notices:      notices,
		Logger:       logger,
		Concurrency:  cfg.General.MaxConcurrentRuns,
	})
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(ctx)
	}()

	logger.Info("phasebot started",
		"version", version,
		"actor", actor.ID,
		"provider", text.Name(),
		"lexicon_terms", lex.Len(),
	)

	// Run blocks on stdin, so a signal must not wait for it.
	consoleDone := make(chan error, 1)
	go func() { consoleDone <- console.Run(ctx) }()
	select {
	case err = <-consoleDone:
	case <-ctx.Done():
		err = nil
	}

	// Closing the bus lets the loop finish queued events before returning.
	inbound.Close()
	<-loopDone
	return err
}

func serveMetrics(cfg config.MetricsConfig) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Endpoint, metrics.Collector.Handler())
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", cfg.Addr, "err", err)
		}
	}()
	logger.Info("metrics endpoint listening", "addr", cfg.Addr, "endpoint", cfg.Endpoint)
	return srv
}
