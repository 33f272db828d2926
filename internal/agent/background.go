package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"phasebot/internal/bus"
	"phasebot/internal/domain"
)

// ErrQueueFull is returned by Enqueue when the note queue has no room.
var ErrQueueFull = errors.New("note queue full")

// ErrWorkerClosed is returned by Enqueue after Close.
var ErrWorkerClosed = errors.New("note worker closed")

const (
	defaultNoteWorkers     = 2
	defaultNoteQueueSize   = 64
	defaultNoteMaxAttempts = 3
)

const notesInstructions = "Based on the user's profile, user's request, and assistant response, provide any new and relevant personal characteristics, interests, and facts relevant to the user's personality profile.\n" +
	"Exclude notes about the conversation or interaction. If no update is necessary, respond with an empty JSON array '[]'.\n"

// NoteJob asks for new profile notes from one completed exchange.
type NoteJob struct {
	Author    *domain.Profile // snapshot taken when the job was queued
	SenderID  string
	Request   string
	Response  string
	MessageID string
}

// NoteStats counts note jobs by outcome.
type NoteStats struct {
	Queued    int64
	Dropped   int64
	Updated   int64
	Unchanged int64
	Abandoned int64
}

// NoteWorkerConfig configures the background note worker.
type NoteWorkerConfig struct {
	Profiles    domain.ProfileStore
	Provider    domain.Provider
	Model       string
	Temperature float64
	MaxAttempts int
	Workers     int
	QueueSize   int
	Limiter     *RateLimiter
	Notices     *bus.NoticeBus
	Logger      *slog.Logger
}

// NoteWorker extracts profile notes in the background. Jobs for the same
// user are serialized by a per-user lock and always merge into the latest
// stored profile.
type NoteWorker struct {
	profiles    domain.ProfileStore
	model       modelCaller
	modelName   string
	temperature float64
	maxAttempts int
	workers     int
	notices     *bus.NoticeBus
	logger      *slog.Logger

	jobs    chan NoteJob
	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup

	locksMu sync.Mutex
	locks   map[string]*userLock // only users with a job running or waiting

	queued, dropped, updated, unchanged, abandoned atomic.Int64
}

func NewNoteWorker(cfg NoteWorkerConfig) *NoteWorker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultNoteWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultNoteQueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultNoteMaxAttempts
	}
	return &NoteWorker{
		profiles:    cfg.Profiles,
		model:       modelCaller{provider: cfg.Provider, limiter: cfg.Limiter, notices: cfg.Notices, source: "notes"},
		modelName:   cfg.Model,
		temperature: cfg.Temperature,
		maxAttempts: cfg.MaxAttempts,
		workers:     cfg.Workers,
		notices:     cfg.Notices,
		logger:      cfg.Logger,
		jobs:        make(chan NoteJob, cfg.QueueSize),
		locks:       make(map[string]*userLock),
	}
}

// Start launches the workers. They stop when ctx is done or after Close.
func (w *NoteWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.closed {
		return
	}
	w.started = true
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-w.jobs:
					if !ok {
						return
					}
					if _, err := w.Process(ctx, job); err != nil {
						w.logger.Error("note extraction failed", "user", job.SenderID, "err", err)
					}
				}
			}
		}()
	}
	w.logger.Info("note worker started", "workers", w.workers)
}

// Enqueue schedules a job without blocking.
func (w *NoteWorker) Enqueue(job NoteJob) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWorkerClosed
	}
	select {
	case w.jobs <- job:
		w.queued.Add(1)
		return nil
	default:
		w.dropped.Add(1)
		return ErrQueueFull
	}
}

// Close stops accepting jobs, lets the workers drain the queue and waits
// for them.
func (w *NoteWorker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.jobs)
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *NoteWorker) Stats() NoteStats {
	return NoteStats{
		Queued:    w.queued.Load(),
		Dropped:   w.dropped.Load(),
		Updated:   w.updated.Load(),
		Unchanged: w.unchanged.Load(),
		Abandoned: w.abandoned.Load(),
	}
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// lockUser serializes jobs for one user and returns the unlock function.
// The entry is dropped when the last holder or waiter unlocks.
func (w *NoteWorker) lockUser(id string) func() {
	w.locksMu.Lock()
	l, ok := w.locks[id]
	if !ok {
		l = &userLock{}
		w.locks[id] = l
	}
	l.refs++
	w.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		w.locksMu.Lock()
		if l.refs--; l.refs == 0 {
			delete(w.locks, id)
		}
		w.locksMu.Unlock()
	}
}

func (w *NoteWorker) lockedUsers() int {
	w.locksMu.Lock()
	defer w.locksMu.Unlock()
	return len(w.locks)
}

// Process runs one job and returns how many notes were added. Malformed
// model output is retried up to the attempt limit; an empty array ends the
// job without retry.
func (w *NoteWorker) Process(ctx context.Context, job NoteJob) (int, error) {
	unlock := w.lockUser(job.SenderID)
	defer unlock()

	profile := w.latestProfile(ctx, job)
	prompt := NotesPrompt(profile, job)

	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		reply, err := w.model.chat(ctx, domain.ChatRequest{
			Model:       w.modelName,
			Temperature: w.temperature,
			Messages:    userPrompt(prompt),
		})
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			lastErr = err
			w.logger.Warn("notes request failed", "attempt", attempt, "err", err)
			continue
		}

		notes, err := ParseNotes(reply)
		if err != nil {
			lastErr = err
			w.logger.Warn("notes reply is not a JSON list", "attempt", attempt, "err", err)
			continue
		}

		added := profile.AddNotes(notes...)
		if added == 0 {
			w.unchanged.Add(1)
			return 0, nil
		}
		if w.profiles != nil {
			if err := w.profiles.SaveProfile(ctx, profile); err != nil {
				return 0, fmt.Errorf("save profile %s: %w", profile.ID, err)
			}
		}
		w.updated.Add(1)
		w.notices.Emit(bus.Notice{Type: bus.NoticeNotesUpdated, Source: "notes", Payload: map[string]any{"user": profile.ID, "added": added}})
		w.logger.Info("profile notes updated", "user", profile.ID, "added", added)
		return added, nil
	}

	w.abandoned.Add(1)
	w.notices.Emit(bus.Notice{Type: bus.NoticeNotesAbandoned, Source: "notes", Payload: map[string]any{"user": job.SenderID}})
	return 0, fmt.Errorf("no valid notes after %d attempts: %w", w.maxAttempts, lastErr)
}

func (w *NoteWorker) latestProfile(ctx context.Context, job NoteJob) *domain.Profile {
	if w.profiles != nil {
		p, err := w.profiles.GetProfile(ctx, job.SenderID)
		if err != nil {
			w.logger.Warn("profile reload failed, using snapshot", "user", job.SenderID, "err", err)
		} else if p != nil {
			return p
		}
	}
	if job.Author != nil {
		return job.Author.Clone()
	}
	return &domain.Profile{ID: job.SenderID}
}

// NotesPrompt builds the note-extraction prompt for a profile and exchange.
func NotesPrompt(profile *domain.Profile, job NoteJob) string {
	notes := profile.Notes
	if notes == nil {
		notes = []string{}
	}
	current, _ := json.Marshal(notes)

	var sb strings.Builder
	sb.WriteString(notesInstructions)
	fmt.Fprintf(&sb, "User Info: \n%s\n", profile)
	fmt.Fprintf(&sb, "Request: %s: %s\n", job.SenderID, job.Request)
	fmt.Fprintf(&sb, "Assistant Response: %s\n", job.Response)
	fmt.Fprintf(&sb, "Current Notes in JSON Format: %s\n", current)
	sb.WriteString("New Notes (in JSON List Format): ")
	return sb.String()
}
