package lexicon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const sampleBundle = `terms:
  - term: widget
    senses: ["a small mechanical part"]
    references: [gadget]
  - term: gadget
    senses: ["a clever device", "a small tool"]
aliases:
  - alias: gizmos
    terms: [widget, gadget]
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	writeFile(t, path, sampleBundle)

	l, err := Load(path, testLogger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.Len() != 2 {
		t.Fatalf("expected 2 terms, got %d", l.Len())
	}
	e, ok := l.Entry("gadget")
	if !ok || len(e.Senses) != 2 {
		t.Fatalf("gadget entry: %+v %v", e, ok)
	}
	if diff := cmp.Diff([]string{"widget", "gadget"}, l.AliasTerms("gizmos")); diff != "" {
		t.Errorf("alias mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_MissingPath(t *testing.T) {
	l, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), testLogger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.Len() != 0 {
		t.Errorf("expected empty lexicon, got %d terms", l.Len())
	}
}

func TestLoad_DirectorySkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), sampleBundle)
	writeFile(t, filepath.Join(dir, "b.yml"), "terms:\n  - term: sprocket\n    senses: []\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	l, err := Load(dir, testLogger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff([]string{"widget", "gadget"}, l.Terms()); diff != "" {
		t.Errorf("terms mismatch (-want +got):\n%s", diff)
	}
}

func TestBundleValidate(t *testing.T) {
	tests := []struct {
		name    string
		bundle  Bundle
		wantErr string
	}{
		{
			name:    "missing sense",
			bundle:  Bundle{Terms: []TermDef{{Term: "widget"}}},
			wantErr: "at least one sense",
		},
		{
			name: "unknown alias target",
			bundle: Bundle{
				Terms:   []TermDef{{Term: "widget", Senses: []string{"part"}}},
				Aliases: []AliasDef{{Alias: "gizmo", Terms: []string{"gadget"}}},
			},
			wantErr: `unknown term "gadget"`,
		},
		{
			name:    "unknown reference",
			bundle:  Bundle{Terms: []TermDef{{Term: "widget", Senses: []string{"part"}, References: []string{"gadget"}}}},
			wantErr: `unknown reference "gadget"`,
		},
		{
			name:   "valid",
			bundle: Bundle{Terms: []TermDef{{Term: "widget", Senses: []string{"part"}}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.bundle.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	l := New()
	l.AddTerm("widget", "a small mechanical part", "gadget")
	l.AddTerm("gadget", "a clever device")
	l.AddAlias("gizmos", "widget")

	path := filepath.Join(t.TempDir(), "nested", "lexicon.yaml")
	if err := Save(path, l); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path, testLogger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(l.Bundle(), loaded.Bundle()); diff != "" {
		t.Errorf("bundle mismatch (-want +got):\n%s", diff)
	}
}

func TestHolder_WatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	writeFile(t, path, sampleBundle)

	lex, err := Load(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	h := NewHolder(lex, path, testLogger())
	h.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Watch(ctx) }()

	updated := sampleBundle + "  - alias: doodads\n    terms: [widget]\n"
	deadline := time.Now().Add(5 * time.Second)
	for len(h.Current().AliasTerms("doodads")) == 0 && time.Now().Before(deadline) {
		writeFile(t, path, updated)
		time.Sleep(100 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if h.Reloads() == 0 {
		t.Fatal("lexicon was never reloaded")
	}
	if got := h.Current().AliasTerms("doodads"); len(got) != 1 {
		t.Errorf("reloaded lexicon missing new alias, got %v", got)
	}
}

func TestHolder_BadReloadKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	writeFile(t, path, sampleBundle)
	lex, _ := Load(path, testLogger())
	h := NewHolder(lex, path, testLogger())

	writeFile(t, path, "terms: [")
	if err := h.Reload(); err == nil {
		t.Fatal("expected parse error")
	}
	if h.Current() != lex {
		t.Error("active lexicon replaced after failed reload")
	}
}
