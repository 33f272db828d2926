package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"phasebot/internal/domain"
)

type mapGetter struct {
	events map[string]*domain.Event
	err    error
	calls  int
}

func (g *mapGetter) GetEvent(_ context.Context, _, id string) (*domain.Event, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return g.events[id], nil
}

func chain(links map[string]string) *mapGetter {
	g := &mapGetter{events: map[string]*domain.Event{}}
	for id, parent := range links {
		g.events[id] = &domain.Event{MessageID: id, ParentMessageID: parent}
	}
	return g
}

func ids(events []*domain.Event) []string {
	var out []string
	for _, ev := range events {
		out = append(out, ev.MessageID)
	}
	return out
}

func TestWalkReplyChain(t *testing.T) {
	tests := []struct {
		name     string
		links    map[string]string
		start    string
		maxDepth int
		want     []string
	}{
		{
			name:  "linear",
			links: map[string]string{"a": "", "b": "a", "c": "b", "d": "c"},
			start: "d",
			want:  []string{"a", "b", "c"},
		},
		{
			name:  "root has no ancestors",
			links: map[string]string{"a": ""},
			start: "a",
		},
		{
			name:  "missing parent ends the walk",
			links: map[string]string{"b": "gone", "c": "b"},
			start: "c",
			want:  []string{"b"},
		},
		{
			name:  "cycle",
			links: map[string]string{"a": "c", "b": "a", "c": "b"},
			start: "c",
			want:  []string{"a", "b"},
		},
		{
			name:     "depth limit keeps the nearest ancestors",
			links:    map[string]string{"a": "", "b": "a", "c": "b", "d": "c"},
			start:    "d",
			maxDepth: 2,
			want:     []string{"b", "c"},
		},
		{
			name:  "unknown start",
			links: map[string]string{},
			start: "x",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := WalkReplyChain(context.Background(), chain(tt.links), "C1", tt.start, tt.maxDepth)
			if err != nil {
				t.Fatalf("WalkReplyChain: %v", err)
			}
			if diff := cmp.Diff(tt.want, ids(got)); diff != "" {
				t.Errorf("chain mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWalkReplyChain_DefaultDepth(t *testing.T) {
	links := map[string]string{"0": ""}
	prev := "0"
	for i := 1; i <= DefaultMaxReplyDepth+10; i++ {
		id := string(rune('A' + i%26)) + prev
		links[id] = prev
		prev = id
	}
	got, err := WalkReplyChain(context.Background(), chain(links), "C1", prev, 0)
	if err != nil {
		t.Fatalf("WalkReplyChain: %v", err)
	}
	if len(got) != DefaultMaxReplyDepth {
		t.Errorf("len = %d, want %d", len(got), DefaultMaxReplyDepth)
	}
}

func TestWalkReplyChain_Errors(t *testing.T) {
	g := &mapGetter{err: errors.New("rate limited")}
	if _, err := WalkReplyChain(context.Background(), g, "C1", "a", 5); err == nil {
		t.Error("expected error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g = chain(map[string]string{"a": "", "b": "a"})
	if _, err := WalkReplyChain(ctx, g, "C1", "b", 5); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
