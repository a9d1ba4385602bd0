package terminal

import (
	"fmt"
	"io"
	"strings"
)

// Escape sequences used by the renderer. Everything is cursor-relative so
// drawing stays correct when the prompt block sits at the bottom of the
// screen and output scrolls.
const (
	escClearLine   = "\x1b[2K"
	escCursorUp    = "\x1b[%dA"
	escCursorDown  = "\x1b[%dB"
	escCursorRight = "\x1b[%dC"
	escDim         = "\x1b[2m"
	escCyan        = "\x1b[36m"
	escBold        = "\x1b[1m"
	escReset       = "\x1b[0m"
)

const (
	promptPrefix = "│ ❯ "
	promptWidth  = 4 // display cells occupied by promptPrefix
	borderTop    = "╭──────────────────────────────────────────"
	borderBottom = "╰─ "
)

// Renderer is the terminal drawing contract. The input state machine and the
// round-trip runner only ever touch the screen through it, which keeps both
// testable against a recording fake.
type Renderer interface {
	// PromptBlock paints the full three-line prompt (top border, input
	// line, hint line) and leaves the cursor at the end of the buffer.
	PromptBlock(buffer, hint string)
	// InputLine repaints only the input line in place.
	InputLine(buffer string)
	// Hint repaints only the hint line; bufLen restores the cursor column.
	Hint(hint string, bufLen int)
	// Echo writes one printable character at the cursor.
	Echo(r rune)
	// Erase removes the character cell before the cursor.
	Erase()
	// OpenOverlay draws a panel below the prompt block.
	OpenOverlay(lines []string, bufLen int)
	// CloseOverlay clears an n-line panel and restores the hint line.
	CloseOverlay(n int, hint string, bufLen int)
	// Submit moves the cursor below the prompt block for turn output.
	Submit()
	// Status repaints the current line with transient progress text.
	Status(text string)
	// ClearStatus erases the status line.
	ClearStatus()
	// Print writes ordinary output at the cursor.
	Print(text string)
}

// ANSI renders to a raw-mode terminal. Raw mode disables output
// post-processing, so every newline written through it becomes CRLF.
type ANSI struct {
	out io.Writer
}

func NewANSI(out io.Writer) *ANSI {
	return &ANSI{out: out}
}

func (a *ANSI) write(s string) {
	io.WriteString(a.out, s)
}

// Print writes text, translating newlines for raw mode.
func (a *ANSI) Print(text string) {
	a.write(strings.ReplaceAll(text, "\n", "\r\n"))
}

func (a *ANSI) PromptBlock(buffer, hint string) {
	var b strings.Builder
	b.WriteString("\r" + escClearLine + escDim + borderTop + escReset + "\r\n")
	b.WriteString(escClearLine + promptPrefix + buffer + "\r\n")
	b.WriteString(escClearLine + escDim + borderBottom + hint + escReset)
	fmt.Fprintf(&b, escCursorUp, 1)
	b.WriteString("\r")
	moveRight(&b, promptWidth+runeLen(buffer))
	a.write(b.String())
}

func (a *ANSI) InputLine(buffer string) {
	a.write("\r" + escClearLine + promptPrefix + buffer)
}

func (a *ANSI) Hint(hint string, bufLen int) {
	var b strings.Builder
	fmt.Fprintf(&b, escCursorDown, 1)
	b.WriteString("\r" + escClearLine + escDim + borderBottom + hint + escReset)
	fmt.Fprintf(&b, escCursorUp, 1)
	b.WriteString("\r")
	moveRight(&b, promptWidth+bufLen)
	a.write(b.String())
}

func (a *ANSI) Echo(r rune) {
	a.write(string(r))
}

func (a *ANSI) Erase() {
	a.write("\b \b")
}

func (a *ANSI) OpenOverlay(lines []string, bufLen int) {
	var b strings.Builder
	// Two newlines walk past the hint line; at the bottom of the screen
	// they scroll, which keeps all movement below cursor-relative.
	b.WriteString("\r\n\r\n")
	for _, line := range lines {
		b.WriteString(escClearLine + line + "\r\n")
	}
	fmt.Fprintf(&b, escCursorUp, len(lines)+2)
	b.WriteString("\r")
	moveRight(&b, promptWidth+bufLen)
	a.write(b.String())
}

func (a *ANSI) CloseOverlay(n int, hint string, bufLen int) {
	var b strings.Builder
	fmt.Fprintf(&b, escCursorDown, 1)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, escCursorDown, 1)
		b.WriteString("\r" + escClearLine)
	}
	fmt.Fprintf(&b, escCursorUp, n+1)
	a.write(b.String())
	a.Hint(hint, bufLen)
}

func (a *ANSI) Submit() {
	var b strings.Builder
	fmt.Fprintf(&b, escCursorDown, 1)
	b.WriteString("\r\n")
	a.write(b.String())
}

func (a *ANSI) Status(text string) {
	a.write("\r" + escClearLine + escDim + text + escReset)
}

func (a *ANSI) ClearStatus() {
	a.write("\r" + escClearLine)
}

func moveRight(b *strings.Builder, n int) {
	if n > 0 {
		fmt.Fprintf(b, escCursorRight, n)
	}
}

func runeLen(s string) int {
	return len([]rune(s))
}

// shortcutsPanel is the 7-line panel opened by "?" on an empty buffer.
var shortcutsPanel = []string{
	escBold + "shortcuts" + escReset,
	"  enter   send message",
	"  tab     toggle thinking mode",
	"  ↑ / ↓   browse input history",
	"  esc     cancel an in-flight request",
	"  /       open the command panel",
	"  ctrl+c  quit",
}

// commandsPanel is the 12-line panel opened by "/" on an empty buffer.
var commandsPanel = []string{
	escBold + "commands" + escReset,
	"  /servers        list connected tool servers",
	"  /tools          list available tools",
	"  /vault <path>   switch vault root (alias: /cd)",
	"  /model [name]   show or switch the model",
	"  /models         list available models",
	"  /export [file]  export the transcript to markdown",
	"  /clear          clear conversation history",
	"  /help           show help",
	"  /quit           exit (aliases: /exit, /bye)",
	"",
	escDim + "finish the command and press enter, esc to dismiss" + escReset,
}
