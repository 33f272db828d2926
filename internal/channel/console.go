package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"phasebot/internal/domain"
	"phasebot/internal/platform"
)

// ConsoleChannelID is the single channel the console exposes.
const ConsoleChannelID = "console"

const (
	defaultConsoleUser   = "user"
	consoleMaxMessageLen = 2000
)

type ConsoleConfig struct {
	ActorID       string
	ActorName     string
	UserID        string // initial speaker (default "user")
	Direct        bool   // treat every message as a direct message
	Bus           domain.EventBus
	In            io.Reader
	Out           io.Writer
	Profiles      map[string]*domain.Profile // platform-side profiles returned by GetProfile
	MaxReplyDepth int
	MaxMessageLen int
	NewID         func() string
	Logger        *slog.Logger
}

type signalKey struct {
	messageID string
	name      string
	runID     string
}

// Console is a local chat platform on a terminal. It implements
// domain.Capability over an in-memory message history and feeds typed
// lines to the event bus.
type Console struct {
	actorID   string
	actorName string
	bus       domain.EventBus
	in        io.Reader
	out       io.Writer
	maxDepth  int
	maxLen    int
	newID     func() string
	logger    *slog.Logger

	outMu sync.Mutex

	mu       sync.RWMutex
	events   map[string]*domain.Event
	order    []string
	profiles map[string]*domain.Profile
	signals  map[signalKey]struct{}

	// REPL state, owned by Run.
	user    string
	direct  bool
	thread  string
	replyTo string
	pending []*domain.Attachment
}

func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.UserID == "" {
		cfg.UserID = defaultConsoleUser
	}
	if cfg.ActorName == "" {
		cfg.ActorName = cfg.ActorID
	}
	if cfg.MaxMessageLen <= 0 {
		cfg.MaxMessageLen = consoleMaxMessageLen
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.NewString()[:8] }
	}
	profiles := make(map[string]*domain.Profile, len(cfg.Profiles))
	for id, p := range cfg.Profiles {
		profiles[id] = p.Clone()
	}
	return &Console{
		actorID:   cfg.ActorID,
		actorName: cfg.ActorName,
		bus:       cfg.Bus,
		in:        cfg.In,
		out:       cfg.Out,
		maxDepth:  cfg.MaxReplyDepth,
		maxLen:    cfg.MaxMessageLen,
		newID:     cfg.NewID,
		logger:    cfg.Logger,
		events:    make(map[string]*domain.Event),
		profiles:  profiles,
		signals:   make(map[signalKey]struct{}),
		user:      cfg.UserID,
		direct:    cfg.Direct,
	}
}

// Run reads lines until EOF, /quit or ctx is done. Plain lines are posted
// as messages and published on the bus.
func (c *Console) Run(ctx context.Context) error {
	c.printf("phasebot console. You are %s; mention the bot with %s. Type /help for commands.\n",
		c.user, platform.MentionToken(domain.PlatformConsole, c.actorID))
	c.prompt()

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			c.prompt()
			continue
		}
		if cmd := ParseCommand(line); cmd != nil {
			if quit := c.handleCommand(ctx, cmd); quit {
				c.logger.Info("user requested quit")
				return nil
			}
			c.prompt()
			continue
		}

		ev := c.post(line)
		c.printf("(message %s)\n", ev.MessageID)
		c.prompt()
	}
}

func (c *Console) handleCommand(ctx context.Context, cmd *Command) (quit bool) {
	switch cmd.Name {
	case "quit", "exit", "q":
		return true
	case "help":
		c.printf("%s\n", helpText())
	case "new", "clear":
		c.thread, c.replyTo, c.pending = "", "", nil
		c.printf("Started a new conversation.\n")
	case "thread":
		root, ok := c.lookupArg(cmd)
		if !ok {
			return false
		}
		if root.ThreadID != "" {
			c.thread = root.ThreadID
		} else {
			c.thread = root.MessageID
		}
		c.printf("Posting in thread %s.\n", c.thread)
	case "reply":
		parent, ok := c.lookupArg(cmd)
		if !ok {
			return false
		}
		c.replyTo = parent.MessageID
		c.printf("Next message replies to %s.\n", c.replyTo)
	case "attach":
		if len(cmd.Args) != 1 {
			c.printf("usage: /attach <path|url>\n")
			return false
		}
		att := newAttachment(cmd.Args[0])
		c.pending = append(c.pending, att)
		c.printf("Attached %s (%s) to the next message.\n", att.Name, att.MediaType)
	case "react":
		if len(cmd.Args) != 2 {
			c.printf("usage: /react <message-id> <name>\n")
			return false
		}
		if err := c.react(cmd.Args[0], cmd.Args[1]); err != nil {
			c.printf("%v\n", err)
		}
	case "as":
		if len(cmd.Args) != 1 {
			c.printf("usage: /as <user-id>\n")
			return false
		}
		c.user = cmd.Args[0]
		c.printf("You are now %s.\n", c.user)
	case "dm":
		c.direct = !c.direct
		c.printf("Direct-message mode: %t\n", c.direct)
	case "history":
		c.printHistory(ctx)
	default:
		c.printf("Unknown command /%s. Type /help.\n", cmd.Name)
	}
	return false
}

func (c *Console) lookupArg(cmd *Command) (*domain.Event, bool) {
	if len(cmd.Args) != 1 {
		c.printf("usage: /%s <message-id>\n", cmd.Name)
		return nil, false
	}
	ev := c.event(cmd.Args[0])
	if ev == nil {
		c.printf("No message %s.\n", cmd.Args[0])
		return nil, false
	}
	return ev, true
}

// post records a message from the current user and publishes it.
func (c *Console) post(text string) *domain.Event {
	ev := &domain.Event{
		Kind:            domain.EventMessage,
		Text:            text,
		SenderID:        c.user,
		MessageID:       c.newID(),
		ChannelID:       ConsoleChannelID,
		ThreadID:        c.thread,
		ParentMessageID: c.replyTo,
		MentionsActor:   strings.Contains(text, platform.MentionToken(domain.PlatformConsole, c.actorID)),
		IsDirectMessage: c.direct,
		Attachments:     c.pending,
	}
	if c.replyTo != "" {
		if parent := c.event(c.replyTo); parent != nil {
			ev.IsReplyToActor = parent.SenderID == c.actorID
		}
	}
	c.replyTo, c.pending = "", nil

	c.record(ev)
	if c.bus != nil {
		c.bus.Publish(cloneEvent(ev))
	}
	return ev
}

func (c *Console) react(messageID, name string) error {
	c.mu.Lock()
	target, ok := c.events[messageID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("no message %s", messageID)
	}
	sig := domain.ReactionSignal{
		Name:      name,
		ActorID:   c.user,
		MessageID: messageID,
		ChannelID: target.ChannelID,
		OwnerID:   target.SenderID,
	}
	target.Reactions = append(target.Reactions, sig)
	c.mu.Unlock()

	if c.bus != nil {
		c.bus.Publish(&domain.Event{
			Kind:      domain.EventReactionAdded,
			SenderID:  c.user,
			MessageID: messageID,
			ChannelID: sig.ChannelID,
			Reactions: []domain.ReactionSignal{sig},
		})
	}
	return nil
}

func (c *Console) printHistory(ctx context.Context) {
	var events []*domain.Event
	if c.thread != "" {
		events, _ = c.ListThreadEvents(ctx, ConsoleChannelID, c.thread)
	} else {
		events, _ = c.ListChannelEvents(ctx, ConsoleChannelID)
	}
	for _, ev := range events {
		c.printf("[%s] %s: %s\n", ev.MessageID, ev.SenderID, ev.Text)
	}
}

func (c *Console) record(ev *domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[ev.MessageID] = cloneEvent(ev)
	c.order = append(c.order, ev.MessageID)
}

func (c *Console) event(id string) *domain.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneEvent(c.events[id])
}

// Send prints the reply and records each chunk as a message from the actor.
func (c *Console) Send(_ context.Context, msg domain.OutboundMessage) error {
	chunks := splitMessage(msg.Text, c.maxLen)
	for _, chunk := range chunks {
		ev := &domain.Event{
			Kind:            domain.EventMessage,
			Text:            chunk,
			SenderID:        c.actorID,
			MessageID:       c.newID(),
			ChannelID:       msg.ChannelID,
			ThreadID:        msg.ThreadID,
			ParentMessageID: msg.ParentMessageID,
		}
		c.record(ev)
		c.printf("\r\033[K--- %s (message %s) ---\n%s\n----------------\n", c.actorName, ev.MessageID, chunk)
	}
	c.prompt()
	return nil
}

func (c *Console) AddSignal(_ context.Context, sig domain.ReactionSignal) error {
	key := signalKey{sig.MessageID, sig.Name, sig.RunID}
	c.mu.Lock()
	if _, ok := c.signals[key]; ok {
		c.mu.Unlock()
		return nil
	}
	c.signals[key] = struct{}{}
	c.mu.Unlock()

	c.logger.Debug("signal added", "message_id", sig.MessageID, "signal", sig.Name, "run_id", sig.RunID)
	c.printf("\r\033[K  [%s] +:%s:\n", sig.MessageID, platform.NativeReaction(domain.PlatformConsole, sig.Name))
	return nil
}

// RemoveSignal only removes a signal added by the same run.
func (c *Console) RemoveSignal(_ context.Context, sig domain.ReactionSignal) error {
	key := signalKey{sig.MessageID, sig.Name, sig.RunID}
	c.mu.Lock()
	if _, ok := c.signals[key]; !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.signals, key)
	c.mu.Unlock()

	c.logger.Debug("signal removed", "message_id", sig.MessageID, "signal", sig.Name, "run_id", sig.RunID)
	return nil
}

// ActiveSignals returns the names of the signals currently on a message.
func (c *Console) ActiveSignals(messageID string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var names []string
	for k := range c.signals {
		if k.messageID == messageID {
			names = append(names, k.name)
		}
	}
	slices.Sort(names)
	return names
}

func (c *Console) GetProfile(_ context.Context, userID string) (*domain.Profile, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.profiles[userID]; ok {
		return p.Clone(), nil
	}
	if userID == c.actorID {
		return c.minimalProfile(userID, c.actorName, true), nil
	}
	for _, id := range c.order {
		if c.events[id].SenderID == userID {
			return c.minimalProfile(userID, userID, false), nil
		}
	}
	return nil, nil
}

func (c *Console) minimalProfile(id, name string, bot bool) *domain.Profile {
	return &domain.Profile{
		ID:         id,
		Platform:   domain.PlatformConsole,
		MentionTag: platform.MentionToken(domain.PlatformConsole, id),
		Username:   name,
		IsBot:      bot,
	}
}

// ListChannelEvents returns the top-level messages of a channel.
func (c *Console) ListChannelEvents(_ context.Context, channelID string) ([]*domain.Event, error) {
	return c.filter(func(ev *domain.Event) bool {
		return ev.ChannelID == channelID && ev.ThreadID == ""
	}), nil
}

// ListThreadEvents returns the thread root followed by its replies.
func (c *Console) ListThreadEvents(_ context.Context, channelID, threadID string) ([]*domain.Event, error) {
	return c.filter(func(ev *domain.Event) bool {
		return ev.ChannelID == channelID && (ev.MessageID == threadID || ev.ThreadID == threadID)
	}), nil
}

func (c *Console) GetEvent(_ context.Context, channelID, eventID string) (*domain.Event, error) {
	ev := c.event(eventID)
	if ev == nil || ev.ChannelID != channelID {
		return nil, nil
	}
	return ev, nil
}

func (c *Console) ListThreadParticipants(ctx context.Context, channelID, threadID string) ([]string, error) {
	events, err := c.ListThreadEvents(ctx, channelID, threadID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, ev := range events {
		if !slices.Contains(ids, ev.SenderID) {
			ids = append(ids, ev.SenderID)
		}
	}
	return ids, nil
}

// ListPriorEvents returns the thread for threaded messages, the reply chain
// for replies and the channel history otherwise.
func (c *Console) ListPriorEvents(ctx context.Context, channelID, eventID, threadID string) ([]*domain.Event, error) {
	if threadID != "" {
		return c.ListThreadEvents(ctx, channelID, threadID)
	}
	if ev := c.event(eventID); ev != nil && ev.ParentMessageID != "" {
		return WalkReplyChain(ctx, c, channelID, eventID, c.maxDepth)
	}
	return c.ListChannelEvents(ctx, channelID)
}

func (c *Console) filter(keep func(*domain.Event) bool) []*domain.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*domain.Event
	for _, id := range c.order {
		if ev := c.events[id]; keep(ev) {
			out = append(out, cloneEvent(ev))
		}
	}
	return out
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *Console) prompt() {
	c.printf("%s> ", c.user)
}

// cloneEvent copies an event deeply enough that callers may fill attachment
// fields without touching the stored history.
func cloneEvent(ev *domain.Event) *domain.Event {
	if ev == nil {
		return nil
	}
	c := *ev
	c.Attachments = make([]*domain.Attachment, len(ev.Attachments))
	for i, a := range ev.Attachments {
		cp := *a
		c.Attachments[i] = &cp
	}
	c.Links = slices.Clone(ev.Links)
	c.Reactions = slices.Clone(ev.Reactions)
	c.ThreadParticipantIDs = slices.Clone(ev.ThreadParticipantIDs)
	return &c
}

var textExtensions = map[string]string{
	".txt": "text/plain",
	".md":  "text/markdown",
	".log": "text/plain",
	".csv": "text/csv",
}

func newAttachment(locator string) *domain.Attachment {
	p := locator
	if u, err := url.Parse(locator); err == nil && u.Path != "" {
		p = u.Path
	}
	ext := strings.ToLower(filepath.Ext(p))
	mt, ok := textExtensions[ext]
	if !ok {
		mt = mime.TypeByExtension(ext)
	}
	if mt == "" {
		mt = "application/octet-stream"
	}
	return &domain.Attachment{Name: filepath.Base(p), URL: locator, MediaType: mt}
}
