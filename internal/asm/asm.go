// Package asm is a small builder-style chunk assembler, the Go analogue
// of the teacher's pkg/compiler emit helpers. It exists for two
// consumers: internal/vm's tests, which need hand-built chunks without
// reaching into bytecode.Chunk's byte layout directly, and cmd/pscalvm's
// REPL, which assembles each arithmetic line it parses. It does not parse
// Pascal source — a
// real front end is out of scope here, same as the teacher's compiler
// only ever consumed an already-parsed ast.Program.
package asm

import (
	"github.com/pscalvm/pscalvm/internal/bytecode"
	"github.com/pscalvm/pscalvm/internal/symtab"
	"github.com/pscalvm/pscalvm/internal/value"
)

// Builder accumulates instructions into a bytecode.Chunk, tracking the
// current source line the way the teacher's compiler.emit did with its
// trailing line argument.
type Builder struct {
	Chunk *bytecode.Chunk
	Line  int32
}

// New starts a fresh Builder over an empty chunk.
func New() *Builder {
	return &Builder{Chunk: bytecode.New(), Line: 1}
}

// AtLine sets the source line stamped on subsequently emitted bytes.
func (b *Builder) AtLine(line int32) *Builder {
	b.Line = line
	return b
}

func (b *Builder) op(op bytecode.Op) *Builder {
	b.Chunk.WriteByte(byte(op), b.Line)
	return b
}

func (b *Builder) byte(v byte) *Builder {
	b.Chunk.WriteByte(v, b.Line)
	return b
}

func (b *Builder) short(v uint16) *Builder {
	b.Chunk.EmitShort(v, b.Line)
	return b
}

func (b *Builder) int32field(v uint32) *Builder {
	b.Chunk.EmitInt32(v, b.Line)
	return b
}

func (b *Builder) cacheSlot() *Builder {
	b.Chunk.WriteInlineCacheSlot(b.Line)
	return b
}

// Const adds v to the constant pool (deduplicated per AddConstant's
// value-equality contract) and emits CONSTANT/CONSTANT16, whichever fits
// the resulting index.
func (b *Builder) Const(v value.Value) *Builder {
	idx := b.Chunk.AddConstant(v)
	if idx <= 0xFF {
		return b.op(bytecode.OpConstant).byte(byte(idx))
	}
	return b.op(bytecode.OpConstant16).short(uint16(idx))
}

// PushInt emits the shortest available encoding for a literal integer.
func (b *Builder) PushInt(n int64) *Builder {
	switch n {
	case 0:
		return b.op(bytecode.OpConst0)
	case 1:
		return b.op(bytecode.OpConst1)
	}
	if n >= -128 && n <= 127 {
		return b.op(bytecode.OpPushImmediateInt8).byte(byte(int8(n)))
	}
	return b.Const(value.MakeInt(n))
}

// PushBool emits CONST_TRUE/CONST_FALSE.
func (b *Builder) PushBool(v bool) *Builder {
	if v {
		return b.op(bytecode.OpConstTrue)
	}
	return b.op(bytecode.OpConstFalse)
}

// PushString adds a string constant and emits its CONSTANT load.
func (b *Builder) PushString(s string) *Builder {
	return b.Const(value.MakeString(s, 0))
}

// Pop, Dup, Swap mirror the zero-operand stack opcodes.
func (b *Builder) Pop() *Builder  { return b.op(bytecode.OpPop) }
func (b *Builder) Dup() *Builder  { return b.op(bytecode.OpDup) }
func (b *Builder) Swap() *Builder { return b.op(bytecode.OpSwap) }

// Arithmetic/comparison/bitwise opcodes, all zero-operand.
func (b *Builder) Add() *Builder          { return b.op(bytecode.OpAdd) }
func (b *Builder) Sub() *Builder          { return b.op(bytecode.OpSub) }
func (b *Builder) Mul() *Builder          { return b.op(bytecode.OpMul) }
func (b *Builder) Div() *Builder          { return b.op(bytecode.OpDiv) }
func (b *Builder) IntDiv() *Builder       { return b.op(bytecode.OpIntDiv) }
func (b *Builder) Mod() *Builder          { return b.op(bytecode.OpMod) }
func (b *Builder) Negate() *Builder       { return b.op(bytecode.OpNegate) }
func (b *Builder) Not() *Builder          { return b.op(bytecode.OpNot) }
func (b *Builder) ToBool() *Builder       { return b.op(bytecode.OpToBool) }
func (b *Builder) Equal() *Builder        { return b.op(bytecode.OpEqual) }
func (b *Builder) NotEqual() *Builder     { return b.op(bytecode.OpNotEqual) }
func (b *Builder) Greater() *Builder      { return b.op(bytecode.OpGreater) }
func (b *Builder) GreaterEqual() *Builder { return b.op(bytecode.OpGreaterEqual) }
func (b *Builder) Less() *Builder         { return b.op(bytecode.OpLess) }
func (b *Builder) LessEqual() *Builder    { return b.op(bytecode.OpLessEqual) }

// Jump emits JUMP with a placeholder target and returns the code offset
// of the 2-byte operand, for later PatchJump.
func (b *Builder) Jump() (*Builder, int) {
	b.op(bytecode.OpJump)
	at := len(b.Chunk.Code)
	b.short(0)
	return b, at
}

// JumpIfFalse emits JUMP_IF_FALSE the same way Jump does.
func (b *Builder) JumpIfFalse() (*Builder, int) {
	b.op(bytecode.OpJumpIfFalse)
	at := len(b.Chunk.Code)
	b.short(0)
	return b, at
}

// PatchJump backfills a placeholder emitted by Jump/JumpIfFalse with the
// signed offset, relative to the byte following the 2-byte operand,
// needed to reach the current code length (§6.3: "jumps use signed
// 16-bit relative offsets from the byte following the operand").
func (b *Builder) PatchJump(at int) *Builder {
	rel := int16(len(b.Chunk.Code) - (at + 2))
	_ = b.Chunk.PatchShort(at, uint16(rel))
	return b
}

// Return, Halt, Exit terminate a frame or the whole program.
func (b *Builder) Return() *Builder { return b.op(bytecode.OpReturn) }
func (b *Builder) Halt() *Builder   { return b.op(bytecode.OpHalt) }
func (b *Builder) Exit() *Builder   { return b.op(bytecode.OpExit) }

// DefineGlobal emits DEFINE_GLOBAL[16] for a scalar-kind global (the
// common case in tests); array/string/file declarations need their own
// payload shape and are out of scope for this convenience helper.
func (b *Builder) DefineGlobal(name string, declared value.Kind) *Builder {
	idx := b.Chunk.AddConstant(value.MakeString(name, 0))
	if idx <= 0xFF {
		b.op(bytecode.OpDefineGlobal).byte(byte(idx))
	} else {
		b.op(bytecode.OpDefineGlobal16).short(uint16(idx))
	}
	b.byte(byte(declared))
	return b.short(0)
}

// GetGlobal/SetGlobal emit the 8-bit, cache-eligible forms.
func (b *Builder) GetGlobal(name string) *Builder {
	idx := b.Chunk.AddConstant(value.MakeString(name, 0))
	return b.op(bytecode.OpGetGlobal).byte(byte(idx)).cacheSlot()
}

func (b *Builder) SetGlobal(name string) *Builder {
	idx := b.Chunk.AddConstant(value.MakeString(name, 0))
	return b.op(bytecode.OpSetGlobal).byte(byte(idx)).cacheSlot()
}

// GetLocal/SetLocal address a frame-relative slot.
func (b *Builder) GetLocal(slot int) *Builder { return b.op(bytecode.OpGetLocal).byte(byte(slot)) }
func (b *Builder) SetLocal(slot int) *Builder { return b.op(bytecode.OpSetLocal).byte(byte(slot)) }

// CallBuiltinProc emits a self-caching builtin-procedure call, pre-seeding
// its two reserved cache bytes with the 0xFFFF "unresolved" sentinel
// (internal/vm/calls.go's resolveBuiltin contract — 0x0000 would be
// misread as "cached index 0").
func (b *Builder) CallBuiltinProc(name string, argCount int) *Builder {
	idx := b.Chunk.AddConstant(value.MakeString(name, 0))
	b.op(bytecode.OpCallBuiltinProc).short(uint16(idx)).byte(byte(argCount))
	return b.short(0xFFFF)
}

// CallBuiltin emits the function-style (result-producing) builtin call,
// which carries no self-patching cache.
func (b *Builder) CallBuiltin(name string, argCount int) *Builder {
	idx := b.Chunk.AddConstant(value.MakeString(name, 0))
	return b.op(bytecode.OpCallBuiltin).short(uint16(idx)).byte(byte(argCount))
}

// CallUserProc emits a call by procedure name, resolved against the VM's
// procedure table at execution time (see internal/symtab.ProcedureTable).
func (b *Builder) CallUserProc(name string, argCount int) *Builder {
	idx := b.Chunk.AddConstant(value.MakeString(name, 0))
	return b.op(bytecode.OpCallUserProc).short(uint16(idx)).byte(byte(argCount))
}

// Call emits a direct call to an already-known byte offset (entry), the
// form a compiler would use for statically resolved recursive calls.
func (b *Builder) Call(entry uint32, argCount int) *Builder {
	return b.op(bytecode.OpCall).int32field(entry).byte(byte(argCount))
}

// CallHost emits a call into the dense host-function registry by numeric
// ID (internal/vm/hostfn.go).
func (b *Builder) CallHost(id int) *Builder {
	return b.op(bytecode.OpCallHost).byte(byte(id))
}

// ThreadCreate/ThreadJoin/Mutex* mirror the concurrency opcodes.
func (b *Builder) ThreadCreate(entry uint16) *Builder {
	return b.op(bytecode.OpThreadCreate).short(entry)
}
func (b *Builder) ThreadJoin() *Builder    { return b.op(bytecode.OpThreadJoin) }
func (b *Builder) MutexCreate() *Builder   { return b.op(bytecode.OpMutexCreate) }
func (b *Builder) RCMutexCreate() *Builder { return b.op(bytecode.OpRCMutexCreate) }
func (b *Builder) MutexLock() *Builder     { return b.op(bytecode.OpMutexLock) }
func (b *Builder) MutexUnlock() *Builder   { return b.op(bytecode.OpMutexUnlock) }
func (b *Builder) MutexDestroy() *Builder  { return b.op(bytecode.OpMutexDestroy) }

// FormatValue emits FORMAT_VALUE with a signed width and unsigned decimal
// count (§6.3's Write(x:width:decimals) field formatting).
func (b *Builder) FormatValue(width int8, decimals byte) *Builder {
	return b.op(bytecode.OpFormatValue).byte(byte(width)).byte(decimals)
}

// CurrentOffset reports the current code length, useful as a jump/call
// target before emitting the instructions it will point to.
func (b *Builder) CurrentOffset() int { return len(b.Chunk.Code) }

// RegisterProcedure records a procedure's entry offset/arity in the
// chunk-external procedure table a VM will consult for CALL_USER_PROC and
// CALL_METHOD (entry must already have been reserved via CurrentOffset).
func RegisterProcedure(table *symtab.ProcedureTable, name string, entry, localCount, paramCount int) {
	table.Register(&symtab.Symbol{
		Name:        name,
		ByteOffset:  entry,
		LocalCount:  localCount,
		ParamCount:  paramCount,
	})
}

// Build finalizes and returns the assembled chunk.
func (b *Builder) Build() *bytecode.Chunk { return b.Chunk }
