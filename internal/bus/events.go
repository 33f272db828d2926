package bus

import (
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Notice is an internal pipeline lifecycle event.
type Notice struct {
	Type      string         // e.g. "run.started", "phase.finished", "notes.updated"
	Source    string         // originating component
	Payload   map[string]any // notice-specific data
	Timestamp time.Time
}

// NoticeHandler is a callback for notices.
type NoticeHandler func(Notice)

// NoticeBus is a topic-based publish/subscribe bus for lifecycle notices.
// It supports wildcard subscriptions and a bounded history for replay.
// A nil *NoticeBus is valid and drops everything.
type NoticeBus struct {
	handlers   map[string][]namedHandler
	mu         sync.RWMutex
	logger     *slog.Logger
	history    []Notice
	maxHistory int
	nextID     int
}

type namedHandler struct {
	ID      string
	Handler NoticeHandler
}

func NewNoticeBus(logger *slog.Logger) *NoticeBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoticeBus{
		handlers:   make(map[string][]namedHandler),
		logger:     logger,
		maxHistory: 1000,
	}
}

// On registers a handler for the given notice type.
// Use "*" to listen to all notices. Returns the handler ID for unsubscription.
func (nb *NoticeBus) On(noticeType string, handler NoticeHandler) string {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	nb.nextID++
	id := noticeType + "-" + strconv.Itoa(nb.nextID)
	nb.handlers[noticeType] = append(nb.handlers[noticeType], namedHandler{ID: id, Handler: handler})
	return id
}

// Off removes a handler by its ID.
func (nb *NoticeBus) Off(noticeType, handlerID string) {
	nb.mu.Lock()
	defer nb.mu.Unlock()
	handlers := nb.handlers[noticeType]
	for i, h := range handlers {
		if h.ID == handlerID {
			nb.handlers[noticeType] = append(handlers[:i:i], handlers[i+1:]...)
			return
		}
	}
}

// Emit publishes a notice to all registered handlers.
// Handlers are called synchronously in registration order.
func (nb *NoticeBus) Emit(n Notice) {
	if nb == nil {
		return
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	nb.mu.Lock()
	if len(nb.history) >= nb.maxHistory {
		nb.history = nb.history[1:]
	}
	nb.history = append(nb.history, n)
	handlers := make([]namedHandler, 0, len(nb.handlers[n.Type])+len(nb.handlers["*"]))
	handlers = append(handlers, nb.handlers[n.Type]...)
	handlers = append(handlers, nb.handlers["*"]...)
	nb.mu.Unlock()

	for _, h := range handlers {
		func(nh namedHandler) {
			defer func() {
				if r := recover(); r != nil {
					nb.logger.Error("notice handler panic", "notice", n.Type, "handler", nh.ID, "panic", r)
				}
			}()
			nh.Handler(n)
		}(h)
	}
}

// Replay returns historical notices matching the given type since the given time.
// Use "*" for all types.
func (nb *NoticeBus) Replay(noticeType string, since time.Time) []Notice {
	nb.mu.RLock()
	defer nb.mu.RUnlock()

	var result []Notice
	for _, n := range nb.history {
		if n.Timestamp.Before(since) {
			continue
		}
		if noticeType == "*" || n.Type == noticeType {
			result = append(result, n)
		}
	}
	return result
}

func (nb *NoticeBus) HistoryLen() int {
	nb.mu.RLock()
	defer nb.mu.RUnlock()
	return len(nb.history)
}

// Well-known notice types.
const (
	NoticeEventIgnored    = "event.ignored"
	NoticeRunStarted      = "run.started"
	NoticeRunFinished     = "run.finished"
	NoticePhaseFinished   = "phase.finished"
	NoticeModelRequest    = "model.request"
	NoticeModelThrottled  = "model.throttled"
	NoticeDescriptionHit  = "description.hit"
	NoticeDescriptionMiss = "description.miss"
	NoticeNotesUpdated    = "notes.updated"
	NoticeNotesAbandoned  = "notes.abandoned"
)
