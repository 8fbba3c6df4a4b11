// Package diag renders the compiler's fatal invariant diagnostics.
//
// Per spec.md §7, a broken MIR invariant (a missing terminator, a
// dangling operand back-link, a malformed PHI) is a programming error,
// not a recoverable condition: the pass that detects it panics with a
// *Fault, and the top-level driver is the only place that recovers.
package diag

import (
	"fmt"

	"github.com/fatih/color"
)

// Location pins a Fault to a place in the MIR graph.
type Location struct {
	Function  string
	Block     string
	InstIndex int // -1 when the fault is not instruction-scoped
}

func (l Location) String() string {
	switch {
	case l.Function == "":
		return "<module>"
	case l.Block == "":
		return l.Function
	case l.InstIndex < 0:
		return fmt.Sprintf("%s.%s", l.Function, l.Block)
	default:
		return fmt.Sprintf("%s.%s[%d]", l.Function, l.Block, l.InstIndex)
	}
}

// Fault is a fatal, unrecoverable invariant violation.
type Fault struct {
	Code     string // e.g. "I-TERM", "I-USE", "I-PHI"
	Invariant string
	Message  string
	At       Location
}

func (f *Fault) Error() string {
	return fmt.Sprintf("[%s] %s: %s (%s)", f.Code, f.Invariant, f.Message, f.At)
}

// Bug raises a Fault by panicking with it. Passes call this the moment
// they observe a broken invariant; they never try to continue past it.
func Bug(code, invariant, message string, at Location) {
	panic(&Fault{Code: code, Invariant: invariant, Message: message, At: at})
}

// Recover formats a panicking *Fault (if any) to stderr-style colored
// text and reports whether it recovered one. Intended to be called
// once, from a single deferred recover() at the top of main().
func Recover(r interface{}) (formatted string, ok bool) {
	f, isFault := r.(*Fault)
	if !isFault {
		return "", false
	}
	return Format(f), true
}

// Format renders a Fault the way the teacher's error reporter rendered
// parser diagnostics: a bold colored level tag, a location line, and
// the invariant name as a "help:" line.
func Format(f *Fault) string {
	bold := color.New(color.FgRed, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()
	help := color.New(color.FgGreen).SprintFunc()

	out := fmt.Sprintf("%s[%s]: %s\n", bold("fault"), f.Code, f.Message)
	out += fmt.Sprintf("   %s %s\n", dim("-->"), f.At)
	out += fmt.Sprintf("   %s %s %s\n", dim("|"), help("help:"), f.Invariant)
	return out
}
