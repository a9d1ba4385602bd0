package terminal

import (
	"bufio"
	"unicode"
)

// KeyKind classifies one decoded keystroke.
type KeyKind int

const (
	// KeyRune is a printable character.
	KeyRune KeyKind = iota
	KeyEnter
	KeyBackspace
	KeyTab
	// KeyEsc is a lone ESC byte, distinguished from escape sequences by
	// the absence of buffered follow-up bytes (sequences arrive together).
	KeyEsc
	KeyUp
	KeyDown
	KeyCtrlC
	// KeyOther covers unrecognized control bytes and escape sequences;
	// the state machine ignores them.
	KeyOther
)

// KeyEvent is one keystroke delivered to the input state machine.
type KeyEvent struct {
	Kind KeyKind
	Rune rune
}

// ReadKey decodes the next keystroke from a raw-mode reader.
func ReadKey(r *bufio.Reader) (KeyEvent, error) {
	ru, _, err := r.ReadRune()
	if err != nil {
		return KeyEvent{}, err
	}

	switch ru {
	case '\x03':
		return KeyEvent{Kind: KeyCtrlC}, nil
	case '\t':
		return KeyEvent{Kind: KeyTab}, nil
	case '\r', '\n':
		return KeyEvent{Kind: KeyEnter}, nil
	case '\x7f', '\x08':
		return KeyEvent{Kind: KeyBackspace}, nil
	case '\x1b':
		return readEscape(r), nil
	}

	if unicode.IsPrint(ru) {
		return KeyEvent{Kind: KeyRune, Rune: ru}, nil
	}
	return KeyEvent{Kind: KeyOther}, nil
}

// readEscape disambiguates a lone ESC from a multi-byte sequence. Arrow keys
// are the fixed 3-byte sequences ESC [ A and ESC [ B; anything else that
// follows an ESC is consumed and ignored.
func readEscape(r *bufio.Reader) KeyEvent {
	if r.Buffered() == 0 {
		return KeyEvent{Kind: KeyEsc}
	}
	r2, _, err := r.ReadRune()
	if err != nil || r2 != '[' {
		return KeyEvent{Kind: KeyOther}
	}
	r3, _, err := r.ReadRune()
	if err != nil {
		return KeyEvent{Kind: KeyOther}
	}
	switch r3 {
	case 'A':
		return KeyEvent{Kind: KeyUp}
	case 'B':
		return KeyEvent{Kind: KeyDown}
	}
	return KeyEvent{Kind: KeyOther}
}
