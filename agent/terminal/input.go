package terminal

import (
	"fmt"
	"strings"
)

// Overlay identifies which transient panel, if any, is open below the
// prompt.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayShortcuts
	OverlayCommands
)

// InputState is the raw-terminal input state machine. It consumes one
// keystroke at a time and decides the minimal redraw; all terminal writes go
// through the Renderer. The cursor always sits at the end of the buffer
// (there is no mid-line editing), history is append-only, and historyIndex
// equal to len(history) means the buffer is live rather than browsing.
type InputState struct {
	buffer  []rune
	history []string
	// historyIndex is always within [0, len(history)].
	historyIndex          int
	thinkingEnabled       bool
	modelSupportsThinking bool
	overlay               Overlay
	waiting               bool

	render   Renderer
	onSubmit func(text string)
}

// NewInputState creates the state machine. onSubmit receives each trimmed,
// non-empty submitted line.
func NewInputState(render Renderer, modelSupportsThinking bool, onSubmit func(string)) *InputState {
	return &InputState{
		render:                render,
		modelSupportsThinking: modelSupportsThinking,
		onSubmit:              onSubmit,
	}
}

// Buffer returns the current editable text.
func (s *InputState) Buffer() string { return string(s.buffer) }

// CursorPos returns the cursor position, which always equals the buffer
// length.
func (s *InputState) CursorPos() int { return len(s.buffer) }

// History returns the submitted-line history.
func (s *InputState) History() []string { return s.history }

// HistoryIndex returns the history browse position.
func (s *InputState) HistoryIndex() int { return s.historyIndex }

// ActiveOverlay returns the currently open panel.
func (s *InputState) ActiveOverlay() Overlay { return s.overlay }

// ThinkingEnabled reports whether thinking display is on.
func (s *InputState) ThinkingEnabled() bool { return s.thinkingEnabled }

// Waiting reports whether a turn is in flight.
func (s *InputState) Waiting() bool { return s.waiting }

// SetWaiting flips the waiting flag. While set, HandleKey ignores all input;
// the round-trip runner owns the keyboard for the duration of the turn.
func (s *InputState) SetWaiting(waiting bool) { s.waiting = waiting }

// SetModelSupportsThinking updates the thinking capability in place, e.g.
// after a model switch. Thinking display is forced off when unsupported.
func (s *InputState) SetModelSupportsThinking(supported bool) {
	s.modelSupportsThinking = supported
	if !supported {
		s.thinkingEnabled = false
	}
}

// DrawPrompt paints the full prompt block for the current state.
func (s *InputState) DrawPrompt() {
	s.render.PromptBlock(string(s.buffer), s.hint())
}

// HandleKey processes one keystroke against the current state.
func (s *InputState) HandleKey(ev KeyEvent) {
	if s.waiting {
		return
	}

	switch s.overlay {
	case OverlayShortcuts:
		s.handleShortcutsKey(ev)
	case OverlayCommands:
		s.handleCommandsKey(ev)
	default:
		s.handleKey(ev)
	}
}

// handleShortcutsKey dismisses the panel on any key; unless the key was
// backspace or ESC it is then reprocessed as if the panel had never opened.
func (s *InputState) handleShortcutsKey(ev KeyEvent) {
	s.closeOverlay()
	if ev.Kind == KeyBackspace || ev.Kind == KeyEsc {
		return
	}
	s.handleKey(ev)
}

func (s *InputState) handleCommandsKey(ev KeyEvent) {
	switch ev.Kind {
	case KeyRune:
		s.buffer = append(s.buffer, ev.Rune)
		s.render.Echo(ev.Rune)
	case KeyBackspace:
		if len(s.buffer) == 0 {
			return
		}
		s.buffer = s.buffer[:len(s.buffer)-1]
		s.render.Erase()
		if len(s.buffer) == 0 {
			s.closeOverlay()
		}
	case KeyEsc:
		s.buffer = nil
		s.closeOverlay()
		s.render.InputLine("")
	case KeyEnter:
		s.closeOverlay()
		s.submit()
	}
}

func (s *InputState) handleKey(ev KeyEvent) {
	switch ev.Kind {
	case KeyRune:
		if len(s.buffer) == 0 {
			switch ev.Rune {
			case '?':
				s.overlay = OverlayShortcuts
				s.render.OpenOverlay(shortcutsPanel, len(s.buffer))
				return
			case '/':
				s.buffer = append(s.buffer, '/')
				s.render.Echo('/')
				s.overlay = OverlayCommands
				s.render.OpenOverlay(commandsPanel, len(s.buffer))
				return
			}
		}
		s.buffer = append(s.buffer, ev.Rune)
		s.render.Echo(ev.Rune)
	case KeyTab:
		if !s.modelSupportsThinking {
			return
		}
		s.thinkingEnabled = !s.thinkingEnabled
		s.render.Hint(s.hint(), len(s.buffer))
	case KeyEnter:
		s.submit()
	case KeyBackspace:
		if len(s.buffer) > 0 {
			s.buffer = s.buffer[:len(s.buffer)-1]
			s.render.Erase()
		}
	case KeyUp:
		if len(s.history) == 0 {
			return
		}
		if s.historyIndex > 0 {
			s.historyIndex--
		}
		s.buffer = []rune(s.history[s.historyIndex])
		s.render.InputLine(string(s.buffer))
	case KeyDown:
		if s.historyIndex < len(s.history) {
			s.historyIndex++
		}
		if s.historyIndex == len(s.history) {
			s.buffer = nil
		} else {
			s.buffer = []rune(s.history[s.historyIndex])
		}
		s.render.InputLine(string(s.buffer))
	}
}

// submit trims the buffer, records non-empty lines in history and hands the
// text to the submit callback. Empty submissions just redraw the prompt.
func (s *InputState) submit() {
	text := strings.TrimSpace(string(s.buffer))
	s.buffer = nil
	if text == "" {
		s.render.InputLine("")
		return
	}
	s.history = append(s.history, text)
	s.historyIndex = len(s.history)
	s.render.Submit()
	if s.onSubmit != nil {
		s.onSubmit(text)
	}
}

func (s *InputState) closeOverlay() {
	n := len(shortcutsPanel)
	if s.overlay == OverlayCommands {
		n = len(commandsPanel)
	}
	s.overlay = OverlayNone
	s.render.CloseOverlay(n, s.hint(), len(s.buffer))
}

// hint is the bottom-border text for the current state. Overlay dismissal
// restores exactly this line, so it must depend only on persistent state.
func (s *InputState) hint() string {
	if s.modelSupportsThinking {
		mode := "off"
		if s.thinkingEnabled {
			mode = "on"
		}
		return fmt.Sprintf("thinking: %s (tab) · ? shortcuts · / commands", mode)
	}
	return "? shortcuts · / commands · enter to send"
}
