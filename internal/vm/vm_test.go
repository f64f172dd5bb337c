package vm

import (
	"bytes"
	"testing"

	"github.com/pscalvm/pscalvm/internal/asm"
	"github.com/pscalvm/pscalvm/internal/config"
	"github.com/pscalvm/pscalvm/internal/value"
)

func newTestVM() (*VM, *bytes.Buffer) {
	var out bytes.Buffer
	cfg := config.Defaults()
	return New(cfg, &out), &out
}

func TestArithmeticAddsTwoLiterals(t *testing.T) {
	b := asm.New()
	b.PushInt(2).PushInt(3).Add().Halt()

	m, _ := newTestVM()
	if err := m.Run(b.Build()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	top, err := m.StackTop()
	if err != nil {
		t.Fatalf("StackTop: %v", err)
	}
	if top.AsInt() != 5 {
		t.Fatalf("want 5, got %d", top.AsInt())
	}
}

// TestFibonacciRecursiveUserProc builds:
//
//	fib(n):
//	  if n < 2: return n
//	  return fib(n-1) + fib(n-2)
//
// as a hand-assembled recursive CALL_USER_PROC chain, matching §8's
// Fibonacci testable property exercised at the opcode level rather than
// through the host-function shortcut.
func TestFibonacciRecursiveUserProc(t *testing.T) {
	b := asm.New()

	// main: push 10, call fib, halt.
	b.PushInt(10)
	b.CallUserProc("fib", 1)
	b.Halt()

	fibEntry := b.CurrentOffset()
	// fib(n) — n is local slot 0.
	b.GetLocal(0)
	b.PushInt(2)
	b.Less()
	_, jmpAt := b.JumpIfFalse()
	b.GetLocal(0)
	b.Return()
	b.PatchJump(jmpAt)

	b.GetLocal(0)
	b.PushInt(1)
	b.Sub()
	b.CallUserProc("fib", 1)

	b.GetLocal(0)
	b.PushInt(2)
	b.Sub()
	b.CallUserProc("fib", 1)

	b.Add()
	b.Return()

	chunk := b.Build()

	m, _ := newTestVM()
	asm.RegisterProcedure(m.Procedures(), "fib", fibEntry, 1, 1)

	if err := m.Run(chunk); err != nil {
		t.Fatalf("Run: %v", err)
	}
	top, err := m.StackTop()
	if err != nil {
		t.Fatalf("StackTop: %v", err)
	}
	if top.AsInt() != 55 {
		t.Fatalf("fib(10): want 55, got %d", top.AsInt())
	}
}

func TestGlobalInlineCacheResolvesAcrossRepeatedAccess(t *testing.T) {
	b := asm.New()
	b.DefineGlobal("counter", value.Integer)
	b.PushInt(41)
	b.SetGlobal("counter")
	b.GetGlobal("counter")
	b.PushInt(1)
	b.Add()
	b.SetGlobal("counter")
	b.GetGlobal("counter")
	b.Halt()

	m, _ := newTestVM()
	if err := m.Run(b.Build()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	top, err := m.StackTop()
	if err != nil {
		t.Fatalf("StackTop: %v", err)
	}
	if top.AsInt() != 42 {
		t.Fatalf("want 42, got %d", top.AsInt())
	}
}

func TestCallBuiltinProcWriteLnConcatenatesArgs(t *testing.T) {
	b := asm.New()
	b.PushString("answer=")
	b.PushInt(42)
	b.CallBuiltinProc("WriteLn", 2)
	b.Halt()

	m, out := newTestVM()
	if err := m.Run(b.Build()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.String() != "answer=42\n" {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

// TestDisposeAcceptsLivePointer confirms the VM-level Dispose
// builtin accepts a live pointer without erroring; the ref-counted
// ptrBox aliasing semantics themselves are covered by internal/value's
// own tests.
func TestDisposeAcceptsLivePointer(t *testing.T) {
	m, _ := newTestVM()
	target := value.MakeInt(7)
	ptr := value.MakePointer(&target, "Integer")

	fn, ok := m.Builtins().ResolveExact("Dispose")
	if !ok {
		t.Fatalf("Dispose not registered")
	}
	if _, err := fn(m, []value.Value{ptr}); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
}

func TestThreadCreateJoinRunsSiblingVM(t *testing.T) {
	b := asm.New()
	// main: create a thread at the trampoline below, join it, halt.
	entry := uint16(0) // patched below once known
	b.ThreadCreate(entry)
	b.ThreadJoin()
	b.Halt()

	trampoline := b.CurrentOffset()
	b.PushInt(99)
	b.Return()

	chunk := b.Build()
	// ThreadCreate's operand was emitted before trampoline's offset was
	// known; patch it now the same way a compiler would backpatch a
	// forward reference.
	if err := chunk.PatchShort(1, uint16(trampoline)); err != nil {
		t.Fatalf("PatchShort: %v", err)
	}

	m, _ := newTestVM()
	if err := m.Run(chunk); err != nil {
		t.Fatalf("Run: %v", err)
	}
	top, err := m.StackTop()
	if err != nil {
		t.Fatalf("StackTop: %v", err)
	}
	if top.AsInt() != 99 {
		t.Fatalf("want 99 from joined thread, got %d", top.AsInt())
	}
}

func TestCallHostFibonacciMatchesRecursiveVersion(t *testing.T) {
	b := asm.New()
	b.PushInt(10)
	b.CallHost(HostFibonacci)
	b.Halt()

	m, _ := newTestVM()
	if err := m.Run(b.Build()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	top, err := m.StackTop()
	if err != nil {
		t.Fatalf("StackTop: %v", err)
	}
	if top.AsInt() != 55 {
		t.Fatalf("fibonacci(10): want 55, got %d", top.AsInt())
	}
}

func TestOpcodeProfileRecordsExecutedInstructions(t *testing.T) {
	b := asm.New()
	b.PushInt(1).PushInt(2).Add().Halt()

	m, _ := newTestVM()
	if err := m.Run(b.Build()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	snapshot := m.Profile().Snapshot()
	if len(snapshot) == 0 {
		t.Fatalf("expected a non-empty opcode profile")
	}
	var sawAdd bool
	for _, row := range snapshot {
		if row.Op.String() == "ADD" && row.Count == 1 {
			sawAdd = true
		}
	}
	if !sawAdd {
		t.Fatalf("expected exactly one recorded ADD, got %#v", snapshot)
	}
}

// TestIOResultFlowReportsMissingFileThenClears exercises §8 scenario 4:
// Assign to a nonexistent path, Reset, then IOResult twice — the first
// call must be non-zero, the second must have cleared back to 0.
func TestIOResultFlowReportsMissingFileThenClears(t *testing.T) {
	m, _ := newTestVM()
	fileVal := value.MakeFile("", value.Integer)
	filePtr := value.MakePointer(&fileVal, "file")

	assign, ok := m.Builtins().ResolveExact("Assign")
	if !ok {
		t.Fatalf("Assign not registered")
	}
	if _, err := assign(m, []value.Value{filePtr, value.MakeString("/does/not/exist", 0)}); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	reset, ok := m.Builtins().ResolveExact("Reset")
	if !ok {
		t.Fatalf("Reset not registered")
	}
	if _, err := reset(m, []value.Value{filePtr}); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	ioResult, ok := m.Builtins().ResolveExact("IOResult")
	if !ok {
		t.Fatalf("IOResult not registered")
	}

	first, err := ioResult(m, nil)
	if err != nil {
		t.Fatalf("IOResult: %v", err)
	}
	if first.AsInt() == 0 {
		t.Fatalf("expected a non-zero IOResult after Reset on a missing file")
	}

	second, err := ioResult(m, nil)
	if err != nil {
		t.Fatalf("IOResult: %v", err)
	}
	if second.AsInt() != 0 {
		t.Fatalf("expected IOResult to clear on read, got %d", second.AsInt())
	}
}

// TestJumpIfFalseIsRelativeToFollowingByte builds a JUMP_IF_FALSE whose
// patched target lands exactly on the instruction after a single-byte
// PUSH_IMMEDIATE_INT8, confirming the offset is interpreted relative to
// the byte following the 2-byte operand rather than as an absolute
// chunk offset (a zero-width skip would land mid-instruction under
// absolute semantics).
func TestJumpIfFalseIsRelativeToFollowingByte(t *testing.T) {
	b := asm.New()
	b.PushBool(false)
	_, jmpAt := b.JumpIfFalse()
	b.PushInt(111) // skipped
	b.PatchJump(jmpAt)
	b.PushInt(222)
	b.Halt()

	m, _ := newTestVM()
	if err := m.Run(b.Build()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	top, err := m.StackTop()
	if err != nil {
		t.Fatalf("StackTop: %v", err)
	}
	if top.AsInt() != 222 {
		t.Fatalf("want 222 (the skip-ahead branch), got %d", top.AsInt())
	}
}

// TestMutexDoubleUnlockReturnsRuntimeErrorNotPanic confirms an unlock of an
// already-released mutex surfaces as an ordinary VM runtime error instead
// of panicking through sync.Mutex.
func TestMutexDoubleUnlockReturnsRuntimeErrorNotPanic(t *testing.T) {
	b := asm.New()
	b.MutexCreate()
	b.Dup()
	b.Dup()
	b.MutexLock()
	b.MutexUnlock()
	b.MutexUnlock()
	b.Halt()

	m, _ := newTestVM()
	if err := m.Run(b.Build()); err == nil {
		t.Fatalf("expected a runtime error from double-unlocking a mutex")
	}
}

func TestMutexLockUnlockRoundTrips(t *testing.T) {
	b := asm.New()
	b.MutexCreate()
	b.Dup()
	b.Dup()
	b.MutexLock()
	b.MutexUnlock()
	b.MutexDestroy()
	b.Halt()

	m, _ := newTestVM()
	if err := m.Run(b.Build()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
