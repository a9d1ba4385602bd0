package session

import "testing"

func TestStripThinking(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"no tags", "plain answer", "plain answer"},
		{"leading block", "<think>working it out</think>the answer", "the answer"},
		{"embedded block", "a<think>x</think>b", "ab"},
		{"two blocks", "<think>a</think>one<think>b</think>two", "onetwo"},
		{"unterminated drops tail", "start<think>never closed", "start"},
		{"only a block", "<think>everything</think>", ""},
	}
	for _, c := range cases {
		if got := StripThinking(c.in); got != c.want {
			t.Errorf("%s: expected %q, got %q", c.name, c.want, got)
		}
	}
}

func TestThinkingFilterShowPassesThrough(t *testing.T) {
	f := NewThinkingFilter(true)
	if got := f.Filter("<think>raw</think>done"); got != "<think>raw</think>done" {
		t.Errorf("show mode must not filter, got %q", got)
	}
}

func TestThinkingFilterHidesBlocks(t *testing.T) {
	f := NewThinkingFilter(false)
	got := f.Filter("<think>hidden</think>visible")
	if got != "visible" {
		t.Errorf("expected %q, got %q", "visible", got)
	}
}

// A tag split across chunk boundaries must still be recognized, and the
// held-back prefix must not leak.
func TestThinkingFilterSplitTag(t *testing.T) {
	f := NewThinkingFilter(false)
	var out string
	for _, chunk := range []string{"<thi", "nk>secret</th", "ink>an", "swer"} {
		out += f.Filter(chunk)
	}
	if out != "answer" {
		t.Errorf("expected %q, got %q", "answer", out)
	}
}

// A lone '<' that never becomes a tag must eventually be emitted.
func TestThinkingFilterFalsePrefix(t *testing.T) {
	f := NewThinkingFilter(false)
	out := f.Filter("a <")
	out += f.Filter("b")
	if out != "a <b" {
		t.Errorf("expected %q, got %q", "a <b", out)
	}
}
