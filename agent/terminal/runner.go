package terminal

import (
	"context"
	goerrors "errors"
	"fmt"
	"time"

	"github.com/dp-veritas/ollama-mcp-agent/agent"
	"github.com/dp-veritas/ollama-mcp-agent/llm"
	"github.com/dp-veritas/ollama-mcp-agent/session"
)

// Outcome classifies how a round-trip ended.
type Outcome int

const (
	OutcomeAnswered Outcome = iota
	OutcomeCancelled
	OutcomeError
	OutcomeQuit
)

// TurnResult is what Run hands back to the repl.
type TurnResult struct {
	Outcome Outcome
	Result  *agent.Result
	Err     error
	Elapsed time.Duration
	// Streamed reports that the answer was already written to the
	// terminal chunk by chunk and must not be printed again.
	Streamed bool
}

// cancelHintAfter is how long a turn runs before ticks start carrying the
// esc-to-cancel nudge. It is a UI hint only, never a timeout.
const cancelHintAfter = 60 * time.Second

// Runner executes exactly one orchestrator turn while letting the user
// cancel it with a bare ESC key. Cancellation is advisory: it stops the
// local wait immediately and cancels the turn context; the orchestrator
// observes that context between tool calls and inside the model request.
type Runner struct {
	input  *InputState
	render Renderer
	keys   <-chan KeyEvent

	tick      time.Duration
	hintAfter time.Duration
}

func NewRunner(input *InputState, render Renderer, keys <-chan KeyEvent) *Runner {
	return &Runner{
		input:     input,
		render:    render,
		keys:      keys,
		tick:      time.Second,
		hintAfter: cancelHintAfter,
	}
}

// turnFunc is one orchestrator turn; onChunk receives streamed content when
// the turn runs without tool declarations.
type turnFunc func(ctx context.Context, onChunk llm.StreamFunc) (*agent.Result, error)

// Run drives one turn: it suppresses normal key handling, shows elapsed-time
// feedback once per second, and races the turn against a lone-ESC cancel
// signal. Whichever resolves first wins; the loser's result is discarded,
// but the turn context is cancelled so in-flight work can stop promptly.
func (r *Runner) Run(ctx context.Context, fn turnFunc) TurnResult {
	r.input.SetWaiting(true)
	defer r.input.SetWaiting(false)

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		res *agent.Result
		err error
	}
	chunks := make(chan string, 64)
	done := make(chan outcome, 1)
	go func() {
		res, err := fn(turnCtx, func(c string) { chunks <- c })
		close(chunks)
		done <- outcome{res, err}
	}()

	start := time.Now()
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	label := "Processing..."
	if r.input.ThinkingEnabled() {
		label = "Thinking..."
	}
	r.render.Status(label)

	filter := session.NewThinkingFilter(r.input.ThinkingEnabled())
	streamed := false
	keys := r.keys

	for {
		select {
		case ev, ok := <-keys:
			// Closed means stdin hit EOF; stop listening and let the
			// turn run out.
			if !ok {
				keys = nil
				continue
			}
			// The only recognized signals while waiting: a lone ESC
			// cancels the turn, Ctrl+C exits. Everything else is
			// dropped.
			switch ev.Kind {
			case KeyCtrlC:
				cancel()
				go drain(chunks)
				return TurnResult{Outcome: OutcomeQuit, Elapsed: time.Since(start)}
			case KeyEsc:
				cancel()
				go drain(chunks)
				if !streamed {
					r.render.ClearStatus()
				}
				return TurnResult{Outcome: OutcomeCancelled, Elapsed: time.Since(start), Streamed: streamed}
			}

		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			streamed = r.emit(filter, c, streamed)

		case <-ticker.C:
			if streamed {
				continue
			}
			elapsed := time.Since(start)
			status := fmt.Sprintf("%s %ds", label, int(elapsed.Seconds()))
			if elapsed >= r.hintAfter {
				status += " · press esc to cancel"
			}
			r.render.Status(status)

		case out := <-done:
			// Flush whatever the stream produced after the final
			// chunk select lost the race.
			if chunks != nil {
				for c := range chunks {
					streamed = r.emit(filter, c, streamed)
				}
			}
			if !streamed {
				r.render.ClearStatus()
			}
			res := TurnResult{
				Result:   out.res,
				Err:      out.err,
				Elapsed:  time.Since(start),
				Streamed: streamed,
			}
			switch {
			case goerrors.Is(out.err, context.Canceled):
				res.Outcome = OutcomeCancelled
			case out.err != nil:
				res.Outcome = OutcomeError
			default:
				res.Outcome = OutcomeAnswered
			}
			return res
		}
	}
}

// emit writes one streamed chunk, clearing the status line before the first
// visible byte.
func (r *Runner) emit(filter *session.ThinkingFilter, chunk string, streamed bool) bool {
	visible := filter.Filter(chunk)
	if visible == "" {
		return streamed
	}
	if !streamed {
		r.render.ClearStatus()
	}
	r.render.Print(visible)
	return true
}

// drain discards leftover stream chunks after a cancelled turn so the
// orchestrator goroutine can finish and be collected.
func drain(chunks <-chan string) {
	for range chunks {
	}
}
