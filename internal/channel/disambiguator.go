package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"phasebot/internal/lexicon"
)

// TerminalDisambiguator asks the user on a terminal which sense of an
// ambiguous lexicon key is meant. It re-prompts until a listed number is
// entered.
type TerminalDisambiguator struct {
	in  *bufio.Reader
	out io.Writer
}

func NewTerminalDisambiguator(in io.Reader, out io.Writer) *TerminalDisambiguator {
	return &TerminalDisambiguator{in: bufio.NewReader(in), out: out}
}

func (d *TerminalDisambiguator) Choose(ctx context.Context, key string, candidates []lexicon.Sense) (lexicon.Sense, error) {
	if len(candidates) == 0 {
		return lexicon.Sense{}, errors.New("no candidates to choose from")
	}
	fmt.Fprintf(d.out, "Disambiguation: When you say '%s', which are you referring to?\n", key)
	for {
		if err := ctx.Err(); err != nil {
			return lexicon.Sense{}, err
		}
		for i, s := range candidates {
			if s.Term != key {
				fmt.Fprintf(d.out, "%d. %s: %s - %s\n", i+1, key, s.Term, s.Meaning)
			} else {
				fmt.Fprintf(d.out, "%d. %s - %s\n", i+1, key, s.Meaning)
			}
		}
		fmt.Fprint(d.out, "> ")

		line, err := d.in.ReadString('\n')
		if strings.TrimSpace(line) == "" && err != nil {
			return lexicon.Sense{}, fmt.Errorf("read selection: %w", err)
		}
		n, convErr := strconv.Atoi(strings.TrimSpace(line))
		if convErr == nil && n >= 1 && n <= len(candidates) {
			return candidates[n-1], nil
		}
		fmt.Fprintln(d.out, "Invalid Selection - Try Again")
		if err != nil {
			return lexicon.Sense{}, fmt.Errorf("read selection: %w", err)
		}
	}
}
