package vm

import (
	"fmt"
	"os"
	"strings"

	"github.com/pscalvm/pscalvm/internal/value"
)

// BuiltinFunc is a name-resolved builtin (§4.5, §4.2): CALL_BUILTIN and
// CALL_BUILTIN_PROC both dispatch through this registry, the difference
// being whether the caller keeps the pushed result (function context) or
// discards it (procedure context).
type BuiltinFunc func(vm *VM, args []value.Value) (value.Value, error)

type builtinEntry struct {
	name string
	fn   BuiltinFunc
}

// BuiltinRegistry resolves a builtin name to its implementation. It keeps
// two maps per the §9 Open Question decision: byLower for the normal,
// cache-friendly case-insensitive path, and byExact for the documented
// fallback when a call site's name constant has no precomputed lowercase
// alias (see bytecode.Chunk.GetBuiltinLowercaseIndex).
type BuiltinRegistry struct {
	entries []builtinEntry
	byLower map[string]int
	byExact map[string]int
}

func newBuiltinRegistry() *BuiltinRegistry {
	return &BuiltinRegistry{byLower: make(map[string]int), byExact: make(map[string]int)}
}

// Register installs fn under name, indexed both by its lowercase form and
// its exact declared spelling.
func (r *BuiltinRegistry) Register(name string, fn BuiltinFunc) {
	idx := len(r.entries)
	r.entries = append(r.entries, builtinEntry{name: name, fn: fn})
	r.byLower[strings.ToLower(name)] = idx
	r.byExact[name] = idx
}

// ResolveLower looks a builtin up by an already-lowercased name — the
// fast path used once a call site's lowercase alias has been computed.
func (r *BuiltinRegistry) ResolveLower(lower string) (BuiltinFunc, bool) {
	idx, ok := r.byLower[lower]
	if !ok {
		return nil, false
	}
	return r.entries[idx].fn, true
}

// ResolveExact looks a builtin up by its exact declared spelling — the
// fallback path for a call site with no precomputed alias.
func (r *BuiltinRegistry) ResolveExact(name string) (BuiltinFunc, bool) {
	idx, ok := r.byExact[name]
	if !ok {
		return nil, false
	}
	return r.entries[idx].fn, true
}

func registerStandardBuiltins(r *BuiltinRegistry) {
	r.Register("WriteLn", builtinWriteLn)
	r.Register("Write", builtinWrite)
	r.Register("Length", builtinLength)
	r.Register("Inc", builtinInc)
	r.Register("Dec", builtinDec)
	r.Register("New", builtinNew)
	r.Register("Dispose", builtinDispose)
	r.Register("Assign", builtinAssign)
	r.Register("Reset", builtinReset)
	r.Register("IOResult", builtinIOResult)
}

// builtinWriteLn/builtinWrite ground builtin.c's text-output primitives:
// each argument is rendered with Value.String and concatenated; WriteLn
// appends a trailing newline.
func builtinWriteLn(vm *VM, args []value.Value) (value.Value, error) {
	if _, err := builtinWrite(vm, args); err != nil {
		return value.Value{}, err
	}
	fmt.Fprintln(vm.out)
	return value.MakeVoid(), nil
}

func builtinWrite(vm *VM, args []value.Value) (value.Value, error) {
	for _, a := range args {
		fmt.Fprint(vm.out, a.String())
	}
	return value.MakeVoid(), nil
}

func builtinLength(vm *VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Value{}, vm.runtimeErrorf("Length expects 1 argument, got %d", len(args))
	}
	a := args[0]
	switch {
	case a.StringData() != nil:
		return value.MakeInt(int64(len(a.StringData().Buf))), nil
	case a.ArrayData() != nil:
		return value.MakeInt(int64(a.ArrayData().TotalElements())), nil
	default:
		return value.Value{}, vm.runtimeErrorf("TypeMismatch: Length requires a string or array argument")
	}
}

func derefVarArg(vm *VM, args []value.Value, i int) (*value.Value, error) {
	if i >= len(args) {
		return nil, vm.runtimeErrorf("missing VAR argument %d", i)
	}
	ptr := args[i].Pointer()
	if ptr == nil || !ptr.IsLive() {
		return nil, vm.runtimeErrorf("NilPointer: VAR argument %d is not a live pointer", i)
	}
	return ptr.Target(), nil
}

// builtinInc/builtinDec ground builtin.c's Inc/Dec: the argument must be
// the address of an ordinal cell (obtained by the compiler emitting
// GET_LOCAL_ADDRESS/GET_GLOBAL_ADDRESS before the call).
func builtinInc(vm *VM, args []value.Value) (value.Value, error) {
	cell, err := derefVarArg(vm, args, 0)
	if err != nil {
		return value.Value{}, err
	}
	delta := int64(1)
	if len(args) > 1 {
		delta = args[1].AsInt()
	}
	wrapped, err := value.Inc(cell, delta)
	if err != nil {
		return value.Value{}, vm.runtimeErrorf("%s", err)
	}
	if wrapped {
		vm.reporter.ReportWarning(vm.currentLine(), "%s ordinal wrapped on Inc", cell.Kind)
	}
	return value.MakeVoid(), nil
}

func builtinDec(vm *VM, args []value.Value) (value.Value, error) {
	cell, err := derefVarArg(vm, args, 0)
	if err != nil {
		return value.Value{}, err
	}
	delta := int64(1)
	if len(args) > 1 {
		delta = args[1].AsInt()
	}
	wrapped, err := value.Dec(cell, delta)
	if err != nil {
		return value.Value{}, vm.runtimeErrorf("%s", err)
	}
	if wrapped {
		vm.reporter.ReportWarning(vm.currentLine(), "%s ordinal wrapped on Dec", cell.Kind)
	}
	return value.MakeVoid(), nil
}

// builtinNew grounds builtin.c's New: the argument is the address of a
// Pointer variable; New allocates a fresh zero Value of the pointer's
// declared base kind and makes the variable point at it.
func builtinNew(vm *VM, args []value.Value) (value.Value, error) {
	cell, err := derefVarArg(vm, args, 0)
	if err != nil {
		return value.Value{}, err
	}
	baseType := ""
	if p := cell.Pointer(); p != nil {
		baseType = p.BaseType()
	}
	target := new(value.Value)
	*target = value.MakeNil()
	*cell = value.MakePointer(target, baseType)
	return value.MakeVoid(), nil
}

// builtinDispose grounds builtin.c's Dispose, resolving the §9 "Dispose
// aliasing" Open Question via value.Dispose — every Value sharing the
// same ptrBox observes the pointer going dead immediately.
func builtinDispose(vm *VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Value{}, vm.runtimeErrorf("Dispose expects 1 argument, got %d", len(args))
	}
	value.Dispose(args[0])
	return value.MakeVoid(), nil
}

// builtinAssign/builtinReset/builtinIOResult ground builtin.c's file
// primitives in simplified form: Assign binds a file variable's Name,
// Reset attempts to open it and records a non-zero IOResult on failure,
// IOResult reports and clears the VM's running I/O status code (0 = no
// error), matching Pascal's clear-on-read convention.
func builtinAssign(vm *VM, args []value.Value) (value.Value, error) {
	cell, err := derefVarArg(vm, args, 0)
	if err != nil {
		return value.Value{}, err
	}
	fd := cell.FileData()
	if fd == nil {
		return value.Value{}, vm.runtimeErrorf("TypeMismatch: Assign requires a file variable")
	}
	if len(args) > 1 {
		fd.Name = args[1].AsString()
	}
	vm.ioResult = 0
	return value.MakeVoid(), nil
}

func builtinReset(vm *VM, args []value.Value) (value.Value, error) {
	cell, err := derefVarArg(vm, args, 0)
	if err != nil {
		return value.Value{}, err
	}
	fd := cell.FileData()
	if fd == nil {
		return value.Value{}, vm.runtimeErrorf("TypeMismatch: Reset requires a file variable")
	}
	f, openErr := os.Open(fd.Name)
	if openErr != nil {
		fd.IsOpen = false
		fd.LastErr = openErr
		vm.ioResult = ioResultFileNotFound
		return value.MakeVoid(), nil
	}
	fd.Handle = f
	fd.IsOpen = true
	fd.LastErr = nil
	vm.ioResult = 0
	return value.MakeVoid(), nil
}

// ioResultFileNotFound is the non-zero IOResult code surfaced when Reset
// cannot open the file named by Assign (builtin.c's IO_ERROR_FILE_NOT_FOUND
// in original_source).
const ioResultFileNotFound = 2

// builtinIOResult reports and clears the VM's running I/O status, mirroring
// Pascal's clear-on-read IOResult semantics: a second call after a failed
// Reset reports 0.
func builtinIOResult(vm *VM, args []value.Value) (value.Value, error) {
	code := vm.ioResult
	vm.ioResult = 0
	return value.MakeInt(int64(code)), nil
}
