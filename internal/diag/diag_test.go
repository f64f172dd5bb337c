package diag

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestRuntimeErrorIncludesLine(t *testing.T) {
	err := NewRuntimeError(42, "stack underflow: need %d, have %d", 2, 0)
	if got := err.Error(); !strings.Contains(got, "line 42") {
		t.Fatalf("expected line number in error, got %q", got)
	}
}

func TestWrapRuntimeErrorPreservesCause(t *testing.T) {
	base := errors.New("RangeCheck: value out of bounds")
	wrapped := WrapRuntimeError(7, base)
	if !strings.Contains(wrapped.Error(), "RangeCheck") {
		t.Fatalf("expected wrapped message to retain cause, got %q", wrapped.Error())
	}
	if errors.Unwrap(wrapped) == nil {
		t.Fatalf("expected Unwrap to surface the original error")
	}
}

func TestReporterOnNonTTYDisablesColor(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)
	r.ReportError(NewRuntimeError(1, "divide by zero"))
	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("expected plain output on a non-terminal writer, got %q", out)
	}
	if !strings.Contains(out, "divide by zero") {
		t.Fatalf("expected message in output, got %q", out)
	}
}

func TestReporterWarningDoesNotPanicOnNegativeLine(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)
	r.ReportWarning(-1, "deprecated builtin %s", "OldProc")
	if !strings.Contains(buf.String(), "deprecated builtin OldProc") {
		t.Fatalf("expected warning text, got %q", buf.String())
	}
}

func TestDumpStackInfoIncludesActiveBuiltin(t *testing.T) {
	frames := []DumpFrame{{Name: "main", IP: 10}, {Name: "Fibonacci", IP: 3}}
	dump := DumpStackInfo([]interface{}{1, "two", 3.0}, frames, "WriteLn")
	if !strings.Contains(dump, "WriteLn") {
		t.Fatalf("expected active builtin name in dump, got %q", dump)
	}
	if !strings.Contains(dump, "Fibonacci") {
		t.Fatalf("expected frame name in dump, got %q", dump)
	}
}
