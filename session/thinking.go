package session

import "strings"

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// ThinkingFilter is the streaming variant of StripThinking: it hides
// <think>...</think> segments from incremental chunks, buffering a partial
// tag at a chunk boundary until the next chunk settles it.
type ThinkingFilter struct {
	show    bool
	inThink bool
	pending string
}

// NewThinkingFilter creates a filter. When show is true everything passes
// through untouched.
func NewThinkingFilter(show bool) *ThinkingFilter {
	return &ThinkingFilter{show: show}
}

// Filter returns the displayable part of chunk.
func (f *ThinkingFilter) Filter(chunk string) string {
	if f.show {
		return chunk
	}

	f.pending += chunk
	var out strings.Builder
	for {
		target := thinkOpen
		if f.inThink {
			target = thinkClose
		}

		idx := strings.Index(f.pending, target)
		if idx == -1 {
			// Hold back a trailing prefix of the tag we are looking
			// for; it may complete in the next chunk.
			if cut := strings.LastIndexByte(f.pending, '<'); cut != -1 && strings.HasPrefix(target, f.pending[cut:]) {
				f.emit(&out, f.pending[:cut])
				f.pending = f.pending[cut:]
			} else {
				f.emit(&out, f.pending)
				f.pending = ""
			}
			return out.String()
		}

		f.emit(&out, f.pending[:idx])
		f.pending = f.pending[idx+len(target):]
		f.inThink = !f.inThink
	}
}

func (f *ThinkingFilter) emit(out *strings.Builder, text string) {
	if !f.inThink {
		out.WriteString(text)
	}
}

// StripThinking removes <think>...</think> segments from a model answer.
// An opening tag with no matching close drops the rest of the text, which
// matches how a truncated reasoning stream should be hidden rather than
// half-shown.
func StripThinking(s string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, thinkOpen)
		if start == -1 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:start])
		rest := s[start+len(thinkOpen):]
		end := strings.Index(rest, thinkClose)
		if end == -1 {
			break
		}
		s = rest[end+len(thinkClose):]
	}
	return strings.TrimSpace(b.String())
}
