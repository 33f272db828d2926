package lexicon

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Bundle is the on-disk form of a lexicon.
//
//	terms:
//	  - term: widget
//	    senses: ["a small mechanical part"]
//	    references: [gadget]
//	aliases:
//	  - alias: gizmos
//	    terms: [widget, gadget]
type Bundle struct {
	Terms   []TermDef  `yaml:"terms"`
	Aliases []AliasDef `yaml:"aliases,omitempty"`
}

type TermDef struct {
	Term       string   `yaml:"term"`
	Senses     []string `yaml:"senses"`
	References []string `yaml:"references,omitempty"`
}

type AliasDef struct {
	Alias string   `yaml:"alias"`
	Terms []string `yaml:"terms"`
}

// Validate checks that every term is named and has a sense, and that every
// alias and reference points to a defined term.
func (b *Bundle) Validate() error {
	known := make(map[string]bool, len(b.Terms))
	for i, t := range b.Terms {
		if strings.TrimSpace(t.Term) == "" {
			return fmt.Errorf("terms[%d]: term is required", i)
		}
		if len(t.Senses) == 0 {
			return fmt.Errorf("term %q: at least one sense is required", t.Term)
		}
		known[t.Term] = true
	}
	for _, t := range b.Terms {
		for _, ref := range t.References {
			if !known[ref] {
				return fmt.Errorf("term %q: unknown reference %q", t.Term, ref)
			}
		}
	}
	for i, a := range b.Aliases {
		if strings.TrimSpace(a.Alias) == "" {
			return fmt.Errorf("aliases[%d]: alias is required", i)
		}
		for _, term := range a.Terms {
			if !known[term] {
				return fmt.Errorf("alias %q: unknown term %q", a.Alias, term)
			}
		}
	}
	return nil
}

// Lexicon builds a Lexicon from the bundle.
func (b *Bundle) Lexicon() *Lexicon {
	l := New()
	for _, t := range b.Terms {
		for i, s := range t.Senses {
			if i == 0 {
				l.AddTerm(t.Term, s, t.References...)
				continue
			}
			l.AddTerm(t.Term, s)
		}
	}
	for _, a := range b.Aliases {
		for _, term := range a.Terms {
			l.AddAlias(a.Alias, term)
		}
	}
	return l
}

// Bundle exports l in on-disk form.
func (l *Lexicon) Bundle() *Bundle {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b := &Bundle{}
	for _, term := range l.termOrder {
		e := l.entries[term]
		b.Terms = append(b.Terms, TermDef{
			Term:       e.Term,
			Senses:     append([]string(nil), e.Senses...),
			References: append([]string(nil), e.References...),
		})
	}
	for _, alias := range l.aliasOrder {
		b.Aliases = append(b.Aliases, AliasDef{Alias: alias, Terms: append([]string(nil), l.aliases[alias]...)})
	}
	return b
}

// ReadBundle parses and validates one bundle file.
func ReadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon bundle: %w", err)
	}
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse lexicon bundle %s: %w", path, err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lexicon bundle %s: %w", path, err)
	}
	return &b, nil
}

// Load builds a Lexicon from path. A directory loads every .yaml and .yml
// file in it, in name order; unreadable files are skipped with a warning.
// A missing path yields an empty lexicon.
func Load(path string, logger *slog.Logger) (*Lexicon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logger.Debug("lexicon bundle does not exist, starting empty", "path", path)
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat lexicon bundle: %w", err)
	}
	if !info.IsDir() {
		b, err := ReadBundle(path)
		if err != nil {
			return nil, err
		}
		return b.Lexicon(), nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon dir: %w", err)
	}
	merged := &Bundle{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isBundleFile(name) {
			continue
		}
		b, err := ReadBundle(filepath.Join(path, name))
		if err != nil {
			logger.Warn("skipping lexicon bundle", "path", filepath.Join(path, name), "err", err)
			continue
		}
		merged.Terms = append(merged.Terms, b.Terms...)
		merged.Aliases = append(merged.Aliases, b.Aliases...)
	}
	lex := merged.Lexicon()
	logger.Info("loaded lexicon", "path", path, "terms", lex.Len())
	return lex, nil
}

// Save writes l to path as YAML.
func Save(path string, l *Lexicon) error {
	data, err := yaml.Marshal(l.Bundle())
	if err != nil {
		return fmt.Errorf("marshal lexicon: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create lexicon dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write lexicon: %w", err)
	}
	return nil
}

func isBundleFile(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
