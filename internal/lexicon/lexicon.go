// Package lexicon matches domain terms and aliases in prompt text and renders
// their definitions as inline annotations.
package lexicon

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// ErrNoDisambiguator is returned by interactive enrichment when no
// Disambiguator was supplied.
var ErrNoDisambiguator = errors.New("lexicon: interactive enrichment requires a disambiguator")

// Sense is one definition of a term.
type Sense struct {
	Term    string `json:"term"`
	Meaning string `json:"meaning"`
}

// Match is a matched key (term, referenced term or alias) with every
// candidate sense for it.
type Match struct {
	Key    string
	Senses []Sense
}

// Annotation is a resolved sense attached to a matched key.
type Annotation struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Meaning string `json:"meaning"`
}

func (a Annotation) String() string {
	if a.Key != a.Name {
		return "[" + a.Key + ": " + a.Name + " - " + a.Meaning + "]"
	}
	return "[" + a.Key + ": " + a.Meaning + "]"
}

// Disambiguator picks one sense when a key has several candidates.
type Disambiguator interface {
	Choose(ctx context.Context, key string, candidates []Sense) (Sense, error)
}

// Entry is a term with its ordered senses and cross-references.
type Entry struct {
	Term       string
	Senses     []string
	References []string
}

// Lexicon is safe for concurrent reads. Writers (AddTerm, AddAlias) are
// expected during loading only.
type Lexicon struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	termOrder  []string
	aliases    map[string][]string
	aliasOrder []string

	// Match patterns, rebuilt on the first lookup after a change.
	compiled      bool
	pattern       *regexp.Regexp // nil when there are no terms
	aliasPatterns []aliasPattern
}

type aliasPattern struct {
	alias string
	re    *regexp.Regexp
}

func New() *Lexicon {
	return &Lexicon{
		entries: make(map[string]*Entry),
		aliases: make(map[string][]string),
	}
}

// AddTerm appends a sense to term, creating it if needed.
func (l *Lexicon) AddTerm(term, meaning string, references ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[term]
	if !ok {
		e = &Entry{Term: term}
		l.entries[term] = e
		l.termOrder = append(l.termOrder, term)
		l.compiled = false
	}
	if meaning != "" {
		e.Senses = append(e.Senses, meaning)
	}
	e.References = append(e.References, references...)
}

// AddAlias maps alias to term. An alias may map to several terms.
func (l *Lexicon) AddAlias(alias, term string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.aliases[alias]; !ok {
		l.aliasOrder = append(l.aliasOrder, alias)
		l.compiled = false
	}
	l.aliases[alias] = append(l.aliases[alias], term)
}

// Entry returns a copy of the entry for term.
func (l *Lexicon) Entry(term string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[term]
	if !ok {
		return Entry{}, false
	}
	return Entry{
		Term:       e.Term,
		Senses:     append([]string(nil), e.Senses...),
		References: append([]string(nil), e.References...),
	}, true
}

// Terms returns term keys in insertion order.
func (l *Lexicon) Terms() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.termOrder...)
}

// Aliases returns alias keys in insertion order.
func (l *Lexicon) Aliases() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.aliasOrder...)
}

// AliasTerms returns the terms alias maps to.
func (l *Lexicon) AliasTerms(alias string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.aliases[alias]...)
}

// Len returns the number of terms.
func (l *Lexicon) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.termOrder)
}

// patterns returns the term alternation and the per-alias patterns,
// compiling them if the lexicon changed. In the term alternation longer keys
// are tried first so a multi-word term wins over a term it contains.
func (l *Lexicon) patterns() (*regexp.Regexp, []aliasPattern) {
	l.mu.RLock()
	if l.compiled {
		defer l.mu.RUnlock()
		return l.pattern, l.aliasPatterns
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.compiled {
		return l.pattern, l.aliasPatterns
	}

	l.pattern = nil
	if len(l.termOrder) > 0 {
		keys := append([]string(nil), l.termOrder...)
		sort.SliceStable(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
		quoted := make([]string, len(keys))
		for i, k := range keys {
			quoted[i] = regexp.QuoteMeta(k)
		}
		l.pattern = regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`)
	}

	l.aliasPatterns = make([]aliasPattern, 0, len(l.aliasOrder))
	for _, alias := range l.aliasOrder {
		if alias == "" {
			continue
		}
		l.aliasPatterns = append(l.aliasPatterns, aliasPattern{
			alias: alias,
			re:    regexp.MustCompile(`\b` + regexp.QuoteMeta(alias) + `\b`),
		})
	}
	l.compiled = true
	return l.pattern, l.aliasPatterns
}

// FindRelevantTerms returns every key matched in text with its candidate
// senses. A literal term match also yields each of its cross-referenced terms
// under their own key. Aliases found at a word boundary yield the senses of
// every term they map to. Keys are ordered by first discovery; a key found
// again keeps its position and takes the latest senses.
func (l *Lexicon) FindRelevantTerms(text string) []Match {
	re, aliases := l.patterns()

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Match
	index := make(map[string]int)
	put := func(key string, senses []Sense) {
		if i, ok := index[key]; ok {
			out[i].Senses = senses
			return
		}
		index[key] = len(out)
		out = append(out, Match{Key: key, Senses: senses})
	}

	if re != nil {
		for _, m := range re.FindAllString(text, -1) {
			e, ok := l.entries[m]
			if !ok {
				continue
			}
			put(m, sensesOf(e))
			for _, ref := range e.References {
				if r, ok := l.entries[ref]; ok {
					put(ref, sensesOf(r))
				}
			}
		}
	}

	for _, ap := range aliases {
		if !ap.re.MatchString(text) {
			continue
		}
		var senses []Sense
		for _, term := range l.aliases[ap.alias] {
			if e, ok := l.entries[term]; ok {
				senses = append(senses, sensesOf(e)...)
			}
		}
		put(ap.alias, senses)
	}
	return out
}

// Annotate resolves the matches in text to annotations. Keys with one sense
// resolve directly. Keys with several senses are resolved through d when
// interactive is set, otherwise every candidate is kept.
func (l *Lexicon) Annotate(ctx context.Context, text string, interactive bool, d Disambiguator) ([]Annotation, error) {
	var out []Annotation
	for _, m := range l.FindRelevantTerms(text) {
		switch {
		case len(m.Senses) == 0:
			continue
		case len(m.Senses) == 1:
			out = append(out, annotation(m.Key, m.Senses[0]))
		case interactive:
			if d == nil {
				return nil, ErrNoDisambiguator
			}
			s, err := d.Choose(ctx, m.Key, m.Senses)
			if err != nil {
				return nil, err
			}
			out = append(out, annotation(m.Key, s))
		default:
			for _, s := range m.Senses {
				out = append(out, annotation(m.Key, s))
			}
		}
	}
	return out, nil
}

// Enrich returns text with its annotations appended in discovery order.
func (l *Lexicon) Enrich(ctx context.Context, text string, interactive bool, d Disambiguator) (string, error) {
	anns, err := l.Annotate(ctx, text, interactive, d)
	if err != nil {
		return "", err
	}
	return Render(text, anns), nil
}

// Render appends each annotation to text, space separated.
func Render(text string, anns []Annotation) string {
	var b strings.Builder
	b.WriteString(text)
	for _, a := range anns {
		b.WriteByte(' ')
		b.WriteString(a.String())
	}
	return b.String()
}

func annotation(key string, s Sense) Annotation {
	return Annotation{Key: key, Name: s.Term, Meaning: s.Meaning}
}

func sensesOf(e *Entry) []Sense {
	out := make([]Sense, len(e.Senses))
	for i, m := range e.Senses {
		out[i] = Sense{Term: e.Term, Meaning: m}
	}
	return out
}
