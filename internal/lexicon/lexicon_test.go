package lexicon

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type pickSecond struct {
	calls int
}

func (p *pickSecond) Choose(_ context.Context, _ string, candidates []Sense) (Sense, error) {
	p.calls++
	return candidates[1], nil
}

func TestEnrich_SingleSense(t *testing.T) {
	l := New()
	l.AddTerm("widget", "a small mechanical part")

	got, err := l.Enrich(context.Background(), "<@BOT> what is a widget?", false, nil)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	want := "<@BOT> what is a widget? [widget: a small mechanical part]"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEnrich_MultipleSensesNonInteractive(t *testing.T) {
	l := New()
	l.AddTerm("bank", "edge of a river")
	l.AddTerm("bank", "financial institution")

	anns, err := l.Annotate(context.Background(), "meet me at the bank", false, nil)
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	want := []Annotation{
		{Key: "bank", Name: "bank", Meaning: "edge of a river"},
		{Key: "bank", Name: "bank", Meaning: "financial institution"},
	}
	if diff := cmp.Diff(want, anns); diff != "" {
		t.Errorf("annotations mismatch (-want +got):\n%s", diff)
	}
}

func TestEnrich_Interactive(t *testing.T) {
	l := New()
	l.AddTerm("bank", "edge of a river")
	l.AddTerm("bank", "financial institution")
	l.AddTerm("widget", "a small mechanical part")

	d := &pickSecond{}
	got, err := l.Enrich(context.Background(), "a widget at the bank", true, d)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	want := "a widget at the bank [widget: a small mechanical part] [bank: financial institution]"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if d.calls != 1 {
		t.Errorf("disambiguator called %d times, want 1", d.calls)
	}
}

func TestEnrich_InteractiveWithoutDisambiguator(t *testing.T) {
	l := New()
	l.AddTerm("bank", "edge of a river")
	l.AddTerm("bank", "financial institution")

	_, err := l.Enrich(context.Background(), "the bank", true, nil)
	if !errors.Is(err, ErrNoDisambiguator) {
		t.Fatalf("expected ErrNoDisambiguator, got %v", err)
	}
}

func TestFindRelevantTerms_AliasUnion(t *testing.T) {
	l := New()
	l.AddTerm("widget", "a small mechanical part")
	l.AddTerm("gadget", "a clever device")
	l.AddAlias("gizmos", "widget")
	l.AddAlias("gizmos", "gadget")

	got := l.FindRelevantTerms("any gizmos in stock?")
	want := []Match{{
		Key: "gizmos",
		Senses: []Sense{
			{Term: "widget", Meaning: "a small mechanical part"},
			{Term: "gadget", Meaning: "a clever device"},
		},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("matches mismatch (-want +got):\n%s", diff)
	}

	text, _ := l.Enrich(context.Background(), "gizmos", false, nil)
	wantText := "gizmos [gizmos: widget - a small mechanical part] [gizmos: gadget - a clever device]"
	if text != wantText {
		t.Errorf("got %q, want %q", text, wantText)
	}
}

func TestFindRelevantTerms_References(t *testing.T) {
	l := New()
	l.AddTerm("API", "application programming interface", "REST", "missing")
	l.AddTerm("REST", "representational state transfer")

	got := l.FindRelevantTerms("call the API")
	keys := make([]string, len(got))
	for i, m := range got {
		keys[i] = m.Key
	}
	if diff := cmp.Diff([]string{"API", "REST"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestFindRelevantTerms_WordBoundaries(t *testing.T) {
	l := New()
	l.AddTerm("widget", "a small mechanical part")
	l.AddTerm("red", "a color")
	l.AddTerm("red widget", "a widget painted red")

	if got := l.FindRelevantTerms("many widgets"); len(got) != 0 {
		t.Errorf("plural should not match, got %v", got)
	}

	got := l.FindRelevantTerms("a red widget")
	if len(got) != 1 || got[0].Key != "red widget" {
		t.Errorf("expected longest term to win, got %v", got)
	}
}

func TestEnrich_EmptyLexicon(t *testing.T) {
	l := New()
	got, err := l.Enrich(context.Background(), "hello there", false, nil)
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if got != "hello there" {
		t.Errorf("got %q", got)
	}
}

func TestAnnotation_String(t *testing.T) {
	tests := []struct {
		ann  Annotation
		want string
	}{
		{Annotation{Key: "widget", Name: "widget", Meaning: "a part"}, "[widget: a part]"},
		{Annotation{Key: "gizmo", Name: "widget", Meaning: "a part"}, "[gizmo: widget - a part]"},
	}
	for _, tt := range tests {
		if got := tt.ann.String(); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}

func TestFindRelevantTerms_PatternsCompiledOnce(t *testing.T) {
	l := New()
	l.AddTerm("kubernetes", "container orchestrator")
	l.AddAlias("k8s", "kubernetes")

	if got := l.FindRelevantTerms("k8s and kubernetes"); len(got) != 2 {
		t.Fatalf("matches = %+v", got)
	}
	re, aliases := l.patterns()
	l.FindRelevantTerms("more k8s")
	re2, aliases2 := l.patterns()
	if re != re2 || len(aliases) != 1 || aliases[0].re != aliases2[0].re {
		t.Fatal("patterns recompiled without a change")
	}

	l.AddAlias("kube", "kubernetes")
	got := l.FindRelevantTerms("ask the kube team")
	if diff := cmp.Diff([]Match{{Key: "kube", Senses: []Sense{{Term: "kubernetes", Meaning: "container orchestrator"}}}}, got); diff != "" {
		t.Errorf("alias added later (-want +got):\n%s", diff)
	}
	if _, aliases3 := l.patterns(); len(aliases3) != 2 {
		t.Errorf("alias patterns = %d, want 2", len(aliases3))
	}

	l.AddTerm("helm", "package manager")
	if got := l.FindRelevantTerms("helm chart"); len(got) != 1 || got[0].Key != "helm" {
		t.Errorf("term added later: %+v", got)
	}
}
