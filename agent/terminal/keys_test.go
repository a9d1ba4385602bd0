package terminal

import (
	"bufio"
	"io"
	"strings"
	"testing"
)

func readAllKeys(t *testing.T, input string) []KeyEvent {
	t.Helper()
	r := bufio.NewReader(strings.NewReader(input))
	var out []KeyEvent
	for {
		ev, err := ReadKey(r)
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("ReadKey failed: %v", err)
		}
		out = append(out, ev)
	}
}

func TestReadKeyBasics(t *testing.T) {
	evs := readAllKeys(t, "a\t\r\x7f\x03")
	want := []KeyEvent{
		{Kind: KeyRune, Rune: 'a'},
		{Kind: KeyTab},
		{Kind: KeyEnter},
		{Kind: KeyBackspace},
		{Kind: KeyCtrlC},
	}
	if len(evs) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(evs))
	}
	for i := range want {
		if evs[i] != want[i] {
			t.Errorf("event %d: expected %+v, got %+v", i, want[i], evs[i])
		}
	}
}

func TestReadKeyArrowSequences(t *testing.T) {
	evs := readAllKeys(t, "\x1b[A\x1b[B")
	if len(evs) != 2 || evs[0].Kind != KeyUp || evs[1].Kind != KeyDown {
		t.Errorf("expected up then down, got %+v", evs)
	}
}

// A lone ESC arrives with nothing buffered behind it, unlike an escape
// sequence whose bytes land together.
func TestReadKeyLoneEsc(t *testing.T) {
	evs := readAllKeys(t, "\x1b")
	if len(evs) != 1 || evs[0].Kind != KeyEsc {
		t.Errorf("expected a lone ESC, got %+v", evs)
	}
}

func TestReadKeyUnknownSequence(t *testing.T) {
	// The first three bytes of a delete key (ESC [ 3 ~) must not be
	// misread as anything meaningful.
	evs := readAllKeys(t, "\x1b[3")
	if len(evs) != 1 || evs[0].Kind != KeyOther {
		t.Errorf("expected KeyOther for an unknown sequence, got %+v", evs)
	}
}

func TestReadKeyUnicode(t *testing.T) {
	evs := readAllKeys(t, "é")
	if len(evs) != 1 || evs[0].Kind != KeyRune || evs[0].Rune != 'é' {
		t.Errorf("expected the rune é, got %+v", evs)
	}
}
