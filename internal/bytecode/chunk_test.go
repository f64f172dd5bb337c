package bytecode

import (
	"bytes"
	"testing"

	"github.com/pscalvm/pscalvm/internal/value"
)

func TestAddConstantDedupesPrimitiveKinds(t *testing.T) {
	c := New()
	i1 := c.AddConstant(value.MakeInt(10))
	i2 := c.AddConstant(value.MakeInt(10))
	if i1 != i2 {
		t.Errorf("expected dedup of equal Integer constants, got %d and %d", i1, i2)
	}

	s1 := c.AddConstant(value.MakeString("hi", 0))
	s2 := c.AddConstant(value.MakeString("hi", 0))
	if s1 != s2 {
		t.Errorf("expected dedup of equal String constants, got %d and %d", s1, s2)
	}

	r1 := c.AddConstant(value.MakeReal(value.Double, 3.5))
	r2 := c.AddConstant(value.MakeReal(value.Double, 3.5))
	if r1 != r2 {
		t.Errorf("expected dedup of equal Real constants, got %d and %d", r1, r2)
	}

	ch1 := c.AddConstant(value.MakeChar('x'))
	ch2 := c.AddConstant(value.MakeChar('x'))
	if ch1 != ch2 {
		t.Errorf("expected dedup of equal Char constants, got %d and %d", ch1, ch2)
	}

	distinct := c.AddConstant(value.MakeInt(11))
	if distinct == i1 {
		t.Errorf("expected a distinct index for a different Integer value")
	}
}

func TestAddConstantDoesNotMutateCaller(t *testing.T) {
	c := New()
	src := value.MakeString("hello", 0)
	idx := c.AddConstant(src)

	c.Constants[idx].StringData().Buf[0] = 'H'

	if src.AsString() != "hello" {
		t.Errorf("AddConstant must deep-copy; caller's value was mutated to %q", src.AsString())
	}
}

func TestInstructionLengthSumsToCodeLength(t *testing.T) {
	c := New()
	line := int32(1)

	c.WriteByte(byte(OpPushImmediateInt8), line)
	c.WriteByte(10, line)

	idx := c.AddConstant(value.MakeString("n", 0))
	c.WriteByte(byte(OpSetGlobal), line)
	c.WriteByte(byte(idx), line)
	c.WriteInlineCacheSlot(line)

	c.WriteByte(byte(OpHalt), line)

	if err := VerifyLength(c); err != nil {
		t.Fatalf("VerifyLength failed: %v", err)
	}
}

func TestPatchShortBoundsChecks(t *testing.T) {
	c := New()
	c.WriteByte(byte(OpJump), 1)
	c.EmitShort(0, 1)

	if err := c.PatchShort(1, 5); err != nil {
		t.Errorf("expected in-bounds patch to succeed: %v", err)
	}
	if err := c.PatchShort(100, 5); err == nil {
		t.Errorf("expected out-of-bounds patch to fail")
	}
}

func TestWriteCacheReadCacheRoundTrip(t *testing.T) {
	c := New()
	c.AddConstant(value.MakeInt(42))
	c.AddConstant(value.MakeString("Hello, world", 0))
	c.WriteByte(byte(OpHalt), 1)

	var buf bytes.Buffer
	if err := WriteCache(c, &buf); err != nil {
		t.Fatalf("WriteCache failed: %v", err)
	}

	loaded, err := ReadCache(&buf, CurrentVersion)
	if err != nil {
		t.Fatalf("ReadCache failed: %v", err)
	}
	if len(loaded.Constants) != len(c.Constants) {
		t.Fatalf("expected %d constants, got %d", len(c.Constants), len(loaded.Constants))
	}
	if loaded.Constants[1].AsString() != "Hello, world" {
		t.Errorf("expected round-tripped string constant, got %q", loaded.Constants[1].AsString())
	}
}

func TestReadCacheRejectsStaleVersion(t *testing.T) {
	c := New()
	c.WriteByte(byte(OpHalt), 1)

	var buf bytes.Buffer
	if err := WriteCache(c, &buf); err != nil {
		t.Fatalf("WriteCache failed: %v", err)
	}

	if _, err := ReadCache(&buf, CurrentVersion+1); err == nil {
		t.Errorf("expected stale-version error")
	}
}

func TestDisassembleDoesNotError(t *testing.T) {
	c := New()
	idx := c.AddConstant(value.MakeInt(55))
	c.WriteByte(byte(OpConstant), 1)
	c.WriteByte(byte(idx), 1)
	c.WriteByte(byte(OpHalt), 1)

	d := NewDisassembler()
	text, err := d.Disassemble(c, "test")
	if err != nil {
		t.Fatalf("Disassemble failed: %v", err)
	}
	if text == "" {
		t.Errorf("expected non-empty disassembly")
	}
}
