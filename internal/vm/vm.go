// Package vm implements the bytecode virtual machine: the stack-based
// interpreter described in §4 that executes a bytecode.Chunk produced by
// a compiler front end. The VM owns the operand stack, the call-frame
// stack, the globals/procedure symbol tables, the host-function and
// builtin registries, and a reference to the owning process's
// concurrency.Registry for THREAD_*/MUTEX_* opcodes.
//
// Execution model:
//
//	Chunk (§3.2/§4.2) -> VM.Run -> dispatch loop over Op (§6.3) -> Result
//
// Each call frame tracks its own instruction pointer and a base pointer
// into the shared operand stack where its locals begin (§4.4), mirroring
// the teacher's approach of a flat value stack shared across frames
// rather than a per-frame stack allocation.
package vm

import (
	"io"

	"github.com/pscalvm/pscalvm/internal/bytecode"
	"github.com/pscalvm/pscalvm/internal/concurrency"
	"github.com/pscalvm/pscalvm/internal/config"
	"github.com/pscalvm/pscalvm/internal/diag"
	"github.com/pscalvm/pscalvm/internal/symtab"
	"github.com/pscalvm/pscalvm/internal/value"
)

// Frame is one activation record on the call stack (§4.4). BasePointer
// is the index into VM.stack where this frame's locals begin; locals are
// addressed as stack[BasePointer+slot].
type Frame struct {
	Chunk       *bytecode.Chunk
	IP          int
	BasePointer int
	Name        string
	Closure     *value.ClosureData
}

// VM is one interpreter instance. A sibling VM spawned by THREAD_CREATE
// shares the owner's globals table, procedure table, builtin/host
// registries and concurrency.Registry, but gets its own stack and frame
// list (§4.7: "concurrency operations must walk to the owner before
// touching the registry").
type VM struct {
	cfg config.Config

	stack []value.Value
	sp    int

	frames []*Frame

	globals       *symtab.HashTable
	constGlobals  *symtab.HashTable
	procedures    *symtab.ProcedureTable
	hostFns       *HostRegistry
	builtins      *BuiltinRegistry
	concurrency   *concurrency.Registry
	threadHandles *threadHandleTable
	reporter      *diag.Reporter
	profile       *OpcodeProfile

	// owner is the opaque mutex-ownership token this VM presents to
	// concurrency.Registry.Lock/Unlock — distinct per sibling VM so
	// reentrant-mutex bookkeeping can tell workers apart (§4.7).
	owner int64

	out io.Writer

	// ioResult mirrors the source's IOResult builtin: the status code of
	// the most recent file/stream operation (builtin.c in original_source).
	ioResult int
}

// New builds a fresh top-level VM: its own globals/procedure tables, its
// own concurrency.Registry capped at cfg.MaxWorkers, and the standard
// host-function and builtin registries (§4.1, §4.5).
func New(cfg config.Config, out io.Writer) *VM {
	vm := &VM{
		cfg:           cfg,
		stack:         make([]value.Value, cfg.StackMax),
		frames:        make([]*Frame, 0, cfg.FrameStackMax),
		globals:       symtab.NewHashTable(256),
		constGlobals:  symtab.NewHashTable(64),
		procedures:    symtab.NewProcedureTable(),
		concurrency:   concurrency.NewRegistry(cfg.MaxWorkers),
		threadHandles: newThreadHandleTable(),
		reporter:      diag.NewReporter(out),
		profile:       newOpcodeProfile(),
		out:           out,
		owner:         1,
	}
	vm.reporter.VerboseErrors = cfg.VerboseErrors
	vm.hostFns = newHostRegistry()
	vm.builtins = newBuiltinRegistry()
	registerStandardHostFunctions(vm.hostFns)
	registerStandardBuiltins(vm.builtins)
	return vm
}

// sibling builds a VM that shares the owner's globals, procedures,
// registries and concurrency.Registry but has its own stack/frames — the
// shape THREAD_CREATE spawns for each worker job (§4.7).
func (vm *VM) sibling(owner int64) *VM {
	return &VM{
		cfg:           vm.cfg,
		stack:         make([]value.Value, vm.cfg.StackMax),
		frames:        make([]*Frame, 0, vm.cfg.FrameStackMax),
		globals:       vm.globals,
		constGlobals:  vm.constGlobals,
		procedures:    vm.procedures,
		hostFns:       vm.hostFns,
		builtins:      vm.builtins,
		concurrency:   vm.concurrency,
		threadHandles: vm.threadHandles,
		reporter:      vm.reporter,
		profile:       vm.profile,
		out:           vm.out,
		owner:         owner,
	}
}

// Globals exposes the globals table so a compiler-facing assembler
// (internal/asm) can pre-declare symbols before Run.
func (vm *VM) Globals() *symtab.HashTable { return vm.globals }

// Procedures exposes the procedure table for the same reason.
func (vm *VM) Procedures() *symtab.ProcedureTable { return vm.procedures }

// Builtins exposes the builtin registry so callers can register
// additional host-specific builtins (frontends are out of scope, but
// tests and cmd/pscalvm both need this hook).
func (vm *VM) Builtins() *BuiltinRegistry { return vm.builtins }

// HostFunctions exposes the host-function registry for the same reason.
func (vm *VM) HostFunctions() *HostRegistry { return vm.hostFns }

// Profile returns the accumulated opcode execution counts (§4.8's
// opcode-profile dump).
func (vm *VM) Profile() *OpcodeProfile { return vm.profile }

func (vm *VM) frame() *Frame { return vm.frames[len(vm.frames)-1] }

func (vm *VM) pushFrame(f *Frame) error {
	if len(vm.frames) >= vm.cfg.FrameStackMax {
		return diag.NewRuntimeError(vm.currentLine(), "StackOverflow: call stack exceeds %d frames", vm.cfg.FrameStackMax)
	}
	vm.frames = append(vm.frames, f)
	return nil
}

func (vm *VM) popFrame() *Frame {
	f := vm.frames[len(vm.frames)-1]
	vm.frames = vm.frames[:len(vm.frames)-1]
	return f
}

func (vm *VM) currentLine() int32 {
	if len(vm.frames) == 0 {
		return -1
	}
	f := vm.frame()
	if f.IP >= 0 && f.IP < len(f.Chunk.Lines) {
		return f.Chunk.Lines[f.IP]
	}
	return -1
}

func (vm *VM) push(v value.Value) error {
	if vm.sp >= len(vm.stack) {
		return diag.NewRuntimeError(vm.currentLine(), "StackOverflow: operand stack exceeds %d slots", vm.cfg.StackMax)
	}
	vm.stack[vm.sp] = v
	vm.sp++
	return nil
}

func (vm *VM) pop() (value.Value, error) {
	if vm.sp == 0 {
		err := diag.NewRuntimeError(vm.currentLine(), "StackUnderflow: pop on empty operand stack")
		err.StackDump = vm.dumpStackInfo("")
		return value.MakeNil(), err
	}
	vm.sp--
	v := vm.stack[vm.sp]
	vm.stack[vm.sp] = value.Value{}
	return v, nil
}

func (vm *VM) peek(distance int) (value.Value, error) {
	idx := vm.sp - 1 - distance
	if idx < 0 {
		err := diag.NewRuntimeError(vm.currentLine(), "StackUnderflow: peek(%d) on stack of size %d", distance, vm.sp)
		err.StackDump = vm.dumpStackInfo("")
		return value.MakeNil(), err
	}
	return vm.stack[idx], nil
}

// dumpStackInfo renders the operand stack and call-frame stack for a
// RuntimeError's verbose detail (§4.8's vm_dump_stack_info_detailed).
func (vm *VM) dumpStackInfo(activeBuiltin string) string {
	frames := make([]diag.DumpFrame, len(vm.frames))
	for i, f := range vm.frames {
		frames[i] = diag.DumpFrame{Name: f.Name, IP: f.IP}
	}
	operands := make([]interface{}, vm.sp)
	for i := 0; i < vm.sp; i++ {
		operands[i] = vm.stack[i].String()
	}
	return diag.DumpStackInfo(operands, frames, activeBuiltin)
}

// StackTop returns the value on top of the operand stack without
// removing it — used by callers (tests, cmd/pscalvm) to read a program's
// final result after Run returns.
func (vm *VM) StackTop() (value.Value, error) { return vm.peek(0) }

// Run loads chunk into a new top-level frame and executes it until
// RETURN/HALT/EXIT or a runtime error (§4.1's main execution loop).
func (vm *VM) Run(chunk *bytecode.Chunk) error {
	if err := vm.pushFrame(&Frame{Chunk: chunk, Name: "main program"}); err != nil {
		if rerr, ok := err.(*diag.RuntimeError); ok {
			vm.reporter.ReportError(rerr)
		}
		return err
	}
	defer func() {
		if len(vm.frames) > 0 {
			vm.popFrame()
		}
	}()
	err := vm.loop()
	if err != nil {
		rerr, ok := err.(*diag.RuntimeError)
		if !ok {
			rerr = diag.WrapRuntimeError(vm.currentLine(), err)
		}
		vm.reporter.ReportError(rerr)
	}
	return err
}

// loop is the dispatch core. It runs until the frame stack empties (the
// top-level RETURN or an explicit HALT/EXIT), or until an opcode handler
// returns an error.
func (vm *VM) loop() error {
	for {
		f := vm.frame()
		if f.IP >= len(f.Chunk.Code) {
			return diag.NewRuntimeError(vm.currentLine(), "InstructionPointer: ran off the end of the chunk")
		}
		op := bytecode.Op(f.Chunk.Code[f.IP])
		vm.profile.record(op)
		f.IP++

		halt, err := vm.dispatch(op, f)
		if err != nil {
			return err
		}
		if halt {
			return nil
		}
		if len(vm.frames) == 0 {
			return nil
		}
	}
}

// dispatch executes one already-decoded opcode. halt is true for
// OpHalt/OpExit, or for an OpReturn that unwinds the last frame.
func (vm *VM) dispatch(op bytecode.Op, f *Frame) (halt bool, err error) {
	switch {
	case isStackOp(op):
		return false, vm.execStackOp(op, f)
	case isArithOp(op):
		return false, vm.execArithOp(op)
	case isControlOp(op):
		return vm.execControlOp(op, f)
	case isGlobalOp(op):
		return false, vm.execGlobalOp(op, f)
	case isLocalOp(op):
		return false, vm.execLocalOp(op, f)
	case isFieldOp(op):
		return false, vm.execFieldOp(op, f)
	case isElementOp(op):
		return false, vm.execElementOp(op, f)
	case isCallOp(op):
		return false, vm.execCallOp(op, f)
	case isUpvalueOp(op):
		return false, vm.execUpvalueOp(op, f)
	case op == bytecode.OpFormatValue:
		return false, vm.execFormatValue(f)
	case isConcurrencyOp(op):
		return false, vm.execConcurrencyOp(op, f)
	default:
		return false, diag.NewRuntimeError(vm.currentLine(), "unimplemented opcode %s", op)
	}
}

// readByte/readInt8/readUint16/readUint32 advance f.IP past the operand
// they decode, matching the big-endian encoding documented in chunk.go.
func (vm *VM) readByte(f *Frame) byte {
	b := f.Chunk.Code[f.IP]
	f.IP++
	return b
}

func (vm *VM) readInt8(f *Frame) int8 {
	return int8(vm.readByte(f))
}

func (vm *VM) readUint16(f *Frame) uint16 {
	v := bytecode.ReadUint16(f.Chunk.Code, f.IP)
	f.IP += 2
	return v
}

func (vm *VM) readUint32(f *Frame) uint32 {
	v := bytecode.ReadUint32(f.Chunk.Code, f.IP)
	f.IP += 4
	return v
}

// skipInlineCacheSlot advances past the reserved 8-byte inline-cache slot
// that follows every globals opcode in the code stream. The actual cache
// lives in Chunk.GlobalSymbolCache (see globals.go); the in-stream bytes
// stay zero and unread, matching chunk.go's documented contract.
func (vm *VM) skipInlineCacheSlot(f *Frame) {
	f.IP += bytecode.InlineCacheSlotSize
}

func (vm *VM) runtimeErrorf(format string, args ...interface{}) error {
	return diag.NewRuntimeError(vm.currentLine(), format, args...)
}
