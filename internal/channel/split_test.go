package channel

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name   string
		msg    string
		maxLen int
		want   []string
	}{
		{"short", "hello", 10, []string{"hello"}},
		{"hard cut", "aaaaabbbbbcc", 5, []string{"aaaaa", "bbbbb", "cc"}},
		{"newline", "aaaa\nbbbbbbb", 7, []string{"aaaa\n", "bbbbbbb"}},
		{"early newline ignored", "a\nbbbbbbbbb", 8, []string{"a\nbbbbbb", "bbb"}},
		{"no limit", "abc", 0, []string{"abc"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitMessage(tt.msg, tt.maxLen)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("chunks mismatch (-want +got):\n%s", diff)
			}
			if strings.Join(got, "") != tt.msg {
				t.Error("chunks do not reassemble the message")
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want *Command
	}{
		{"hello", nil},
		{"/", nil},
		{"  /Reply m1 ", &Command{Name: "reply", Args: []string{"m1"}, Raw: "/Reply m1"}},
		{"/help", &Command{Name: "help", Raw: "/help"}},
		{"/react m1 thumbsup", &Command{Name: "react", Args: []string{"m1", "thumbsup"}, Raw: "/react m1 thumbsup"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, ParseCommand(tt.in)); diff != "" {
			t.Errorf("ParseCommand(%q) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}
