package lexicon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Holder owns the active Lexicon. Runs read it through Current, so a reload
// swaps the whole lexicon between runs and never mutates one in use.
type Holder struct {
	cur      atomic.Pointer[Lexicon]
	path     string
	logger   *slog.Logger
	debounce time.Duration
	reloads  atomic.Int64
}

func NewHolder(lex *Lexicon, path string, logger *slog.Logger) *Holder {
	if logger == nil {
		logger = slog.Default()
	}
	if lex == nil {
		lex = New()
	}
	h := &Holder{path: path, logger: logger, debounce: 200 * time.Millisecond}
	h.cur.Store(lex)
	return h
}

// Current returns the active lexicon.
func (h *Holder) Current() *Lexicon {
	return h.cur.Load()
}

// Reloads returns how many successful reloads have happened.
func (h *Holder) Reloads() int64 {
	return h.reloads.Load()
}

// Reload reads the bundle again. On error the active lexicon is kept.
func (h *Holder) Reload() error {
	lex, err := Load(h.path, h.logger)
	if err != nil {
		return err
	}
	h.cur.Store(lex)
	h.reloads.Add(1)
	return nil
}

// Watch reloads the bundle whenever it changes on disk, until ctx is done.
// Bursts of events are collapsed into one reload.
func (h *Holder) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create lexicon watcher: %w", err)
	}
	defer watcher.Close()

	dir, file := h.path, ""
	if info, err := os.Stat(h.path); err != nil || !info.IsDir() {
		dir, file = filepath.Dir(h.path), filepath.Base(h.path)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	h.logger.Info("watching lexicon", "path", h.path)

	timer := time.NewTimer(h.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event, file) {
				continue
			}
			h.logger.Debug("lexicon changed", "op", event.Op.String(), "file", event.Name)
			timer.Reset(h.debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			h.logger.Error("lexicon watcher error", "err", err)
		case <-timer.C:
			if err := h.Reload(); err != nil {
				h.logger.Error("lexicon reload failed, keeping previous", "err", err)
				continue
			}
			h.logger.Info("lexicon reloaded", "terms", h.Current().Len())
		}
	}
}

func relevant(event fsnotify.Event, file string) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Base(event.Name)
	if file != "" {
		return name == file
	}
	return isBundleFile(name)
}
