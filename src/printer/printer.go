// Package printer renders forum, planner and team progress for the terminal.
package printer

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/Protocol-Lattice/agentforum/src/bus"
	"github.com/Protocol-Lattice/agentforum/src/forum"
	"github.com/Protocol-Lattice/agentforum/src/memory"
	"github.com/Protocol-Lattice/agentforum/src/planner"
	"github.com/Protocol-Lattice/agentforum/src/team"
)

func init() {
	// Users can disable with NO_COLOR
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
	faint  = color.New(color.Faint)
)

// Printer writes progress to out and failures to errOut.
type Printer struct {
	out    io.Writer
	errOut io.Writer
	round  int
}

func New(out, errOut io.Writer) *Printer {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	return &Printer{out: out, errOut: errOut}
}

func (p *Printer) Success(format string, a ...any) {
	green.Fprintf(p.out, "✓ %s\n", fmt.Sprintf(format, a...))
}

func (p *Printer) Step(format string, a ...any) {
	cyan.Fprintf(p.out, "→ %s\n", fmt.Sprintf(format, a...))
}

func (p *Printer) Warning(format string, a ...any) {
	yellow.Fprintf(p.out, "⚠️  %s\n", fmt.Sprintf(format, a...))
}

func (p *Printer) Printf(format string, a ...any) {
	fmt.Fprintf(p.out, format, a...)
}

// Error prints title, explanation and any context lines to errOut and returns
// a plain error carrying the title.
func (p *Printer) Error(title, explanation string, context ...string) error {
	red.Fprintf(p.errOut, "%s\n", title)
	if explanation != "" {
		fmt.Fprintf(p.errOut, "\n%s\n", explanation)
	}
	if len(context) > 0 {
		fmt.Fprintln(p.errOut)
		for _, line := range context {
			fmt.Fprintf(p.errOut, "  %s\n", line)
		}
	}
	return fmt.Errorf("%s", title)
}

// ForumEvent renders one step of a forum session.
func (p *Printer) ForumEvent(e forum.Event) {
	switch e.Phase {
	case forum.PhaseOpen:
		bold.Fprintf(p.out, "%s\n\n", e.Content)
	case forum.PhaseRound:
		if e.Round != p.round {
			p.round = e.Round
			cyan.Fprintf(p.out, "── Round %d ──\n", e.Round)
		}
		green.Fprintf(p.out, "[%s] ", e.Speaker)
		fmt.Fprintf(p.out, "%s\n\n", e.Content)
	case forum.PhaseGuidance:
		yellow.Fprintf(p.out, "[%s] ", e.Speaker)
		fmt.Fprintf(p.out, "%s\n\n", e.Content)
	case forum.PhaseConclude:
		bold.Fprintln(p.out, "Conclusion")
		fmt.Fprintf(p.out, "%s\n", e.Content)
	}
}

// Discussion prints entries as "[speaker] text" lines.
func (p *Printer) Discussion(entries []forum.Entry) {
	for _, e := range entries {
		green.Fprintf(p.out, "[%s] ", e.Speaker)
		fmt.Fprintf(p.out, "%s\n", e.Content)
	}
}

// Iteration renders a planner iteration.
func (p *Printer) Iteration(it planner.Iteration) {
	d := it.Decision
	cyan.Fprintf(p.out, "Iteration %d", it.Number)
	fmt.Fprintf(p.out, " (%s)\n", d.Status)
	if d.Reasoning != "" {
		faint.Fprintf(p.out, "  reasoning: %s\n", d.Reasoning)
	}
	if it.Step != nil {
		fmt.Fprintf(p.out, "  %s\n", it.Step.Action)
		fmt.Fprintf(p.out, "  result: %s\n", it.Step.Result)
	}
	if it.Fact != nil {
		fmt.Fprintf(p.out, "  remembered %s = %s\n", it.Fact.Key, it.Fact.Value)
	}
	if d.Status == planner.StatusCompleted {
		green.Fprintf(p.out, "  answer: %s\n", d.FinalAnswer)
	}
}

// Memory prints a planner memory summary.
func (p *Printer) Memory(snap memory.Snapshot) {
	bold.Fprintln(p.out, "Memory")
	fmt.Fprintln(p.out, snap.Summarize())
}

// Stage renders a finished team stage.
func (p *Printer) Stage(stage team.Stage, out string) {
	cyan.Fprintf(p.out, "── %s ──\n", strings.ToUpper(string(stage)))
	fmt.Fprintf(p.out, "%s\n\n", out)
}

// Messages prints bus history in publish order.
func (p *Printer) Messages(msgs []bus.Message) {
	for _, m := range msgs {
		faint.Fprintf(p.out, "%s ", m.Timestamp.Format("15:04:05"))
		fmt.Fprintf(p.out, "%s -> %s [%s]: %s\n", m.Sender, m.Receiver, m.Kind, clip(messageText(m), 120))
	}
}

func messageText(m bus.Message) string {
	if s, ok := m.Content.(string); ok {
		return s
	}
	return fmt.Sprint(m.Content)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
