// Package diag implements the VM's error/diagnostics surface: the
// runtime_error / runtime_warning reporting contract of §4.8/§7, and the
// detailed stack/value dump used to diagnose stack underflows.
package diag

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
)

// RuntimeError is the concrete error type every VM primitive that can
// fail returns or wraps. It carries a stack captured at the point the
// error was raised (via github.com/pkg/errors), the source line from the
// chunk's line table, and an optional StackDump (set by the VM for stack
// underflows) that Reporter.ReportError prints only when verbose errors
// are enabled (§4.8).
type RuntimeError struct {
	cause     error
	Line      int32
	StackDump string
}

func (e *RuntimeError) Error() string {
	if e.Line >= 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.cause.Error())
	}
	return e.cause.Error()
}

func (e *RuntimeError) Unwrap() error { return e.cause }

// NewRuntimeError wraps msg with a captured stack trace (§4.8: "prints
// the location... the formatted message, optionally a stack dump").
func NewRuntimeError(line int32, format string, args ...interface{}) *RuntimeError {
	return &RuntimeError{cause: errors.Errorf(format, args...), Line: line}
}

// WrapRuntimeError attaches line/stack context to an error surfaced from
// deeper in the VM (e.g. a value.RangeError or a builtin failure) without
// discarding it — errors.WithStack preserves the original via Unwrap.
func WrapRuntimeError(line int32, err error) *RuntimeError {
	return &RuntimeError{cause: errors.WithStack(err), Line: line}
}

// Reporter formats runtime errors/warnings the way the teacher's REPL and
// disassembler format colored terminal output: color-coded when writing
// to a real terminal, plain when piped (to a log file, a CI runner, or a
// test's captured buffer).
type Reporter struct {
	out           io.Writer
	errColor      *color.Color
	warnColor     *color.Color
	VerboseErrors bool
}

// NewReporter builds a Reporter writing to w. If w is an *os.File (such as
// os.Stdout or os.Stderr) that is a real terminal, colors are enabled and
// routed through
// mattn/go-colorable so they also render correctly on Windows consoles.
func NewReporter(w io.Writer) *Reporter {
	out := w
	plain := true
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		out = colorable.NewColorable(f)
		plain = false
	}
	r := &Reporter{out: out}
	r.errColor = color.New(color.FgRed, color.Bold)
	r.warnColor = color.New(color.FgYellow)
	if plain {
		r.errColor.DisableColor()
		r.warnColor.DisableColor()
	}
	return r
}

// ReportError prints a runtime error (§4.8). It is the formatting half of
// the runtime_error contract; setting the VM's abort flag is the caller's
// responsibility (internal/vm).
func (r *Reporter) ReportError(err *RuntimeError) {
	r.errColor.Fprintf(r.out, "runtime error: %s\n", err.Error())
	if r.VerboseErrors && err.StackDump != "" {
		fmt.Fprintln(r.out, err.StackDump)
	}
}

// ReportWarning prints the non-fatal variant (§4.8): it never sets an
// abort flag, it only informs.
func (r *Reporter) ReportWarning(line int32, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if line >= 0 {
		r.warnColor.Fprintf(r.out, "runtime warning (line %d): %s\n", line, msg)
	} else {
		r.warnColor.Fprintf(r.out, "runtime warning: %s\n", msg)
	}
}

// DumpFrame is one line of stack-trace context a caller supplies to
// DumpStackInfo — kept intentionally generic (just name + ip) so
// internal/vm doesn't need to import this package's concrete frame type.
type DumpFrame struct {
	Name string
	IP   int
}

// DumpStackInfo renders the operand stack, call stack and (if non-empty)
// the active builtin name — the "detailed" dump contract of §4.8's
// vm_dump_stack_info_detailed, implemented with go-spew so nested
// aggregate values (arrays, records) print legibly instead of as Go's
// default %v representation.
func DumpStackInfo(operandStack []interface{}, frames []DumpFrame, activeBuiltin string) string {
	var b strings.Builder
	b.WriteString("--- stack dump ---\n")
	if activeBuiltin != "" {
		fmt.Fprintf(&b, "in builtin: %s\n", activeBuiltin)
	}
	b.WriteString("call stack:\n")
	for i := len(frames) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "  #%d %s (ip=%d)\n", i, frames[i].Name, frames[i].IP)
	}
	b.WriteString("operand stack:\n")
	b.WriteString(spew.Sdump(operandStack))
	return b.String()
}
