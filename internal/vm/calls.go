package vm

import (
	"strings"

	"github.com/pscalvm/pscalvm/internal/bytecode"
	"github.com/pscalvm/pscalvm/internal/value"
)

func isCallOp(op bytecode.Op) bool {
	switch op {
	case bytecode.OpCall, bytecode.OpCallIndirect, bytecode.OpProcCallIndirect,
		bytecode.OpCallUserProc, bytecode.OpCallBuiltin, bytecode.OpCallBuiltinProc,
		bytecode.OpCallMethod, bytecode.OpCallHost:
		return true
	}
	return false
}

func (vm *VM) execCallOp(op bytecode.Op, f *Frame) error {
	switch op {
	case bytecode.OpCall:
		entry := int(vm.readUint32(f))
		argCount := int(vm.readByte(f))
		return vm.callAtOffset(f, entry, argCount, "")

	case bytecode.OpCallUserProc:
		nameIdx := int(vm.readUint16(f))
		argCount := int(vm.readByte(f))
		name := f.Chunk.Constants[nameIdx].AsString()
		sym, ok := vm.procedures.ByName(name)
		if !ok {
			return vm.runtimeErrorf("UndefinedProcedure: %q is not defined", name)
		}
		return vm.callAtOffset(f, sym.ByteOffset, argCount, name)

	case bytecode.OpCallMethod:
		nameIdx := int(vm.readByte(f))
		argCount := int(vm.readByte(f))
		name := f.Chunk.Constants[nameIdx].AsString()
		sym, ok := vm.procedures.ByName(name)
		if !ok {
			return vm.runtimeErrorf("UndefinedProcedure: %q is not defined", name)
		}
		return vm.callAtOffset(f, sym.ByteOffset, argCount, name)

	case bytecode.OpCallIndirect, bytecode.OpProcCallIndirect:
		argCount := int(vm.readByte(f))
		return vm.callIndirect(f, argCount)

	case bytecode.OpCallBuiltin:
		return vm.execCallBuiltin(f, false)
	case bytecode.OpCallBuiltinProc:
		return vm.execCallBuiltin(f, true)

	case bytecode.OpCallHost:
		id := int(vm.readByte(f))
		return vm.execCallHost(id)
	}
	return vm.runtimeErrorf("execCallOp: unreachable opcode %s", op)
}

// callAtOffset pushes a new Frame whose locals begin at the argCount
// values already sitting on top of the operand stack (§4.4). If the
// target offset is registered in the procedure table, its LocalCount
// reserves additional zero-valued local slots beyond the parameters.
func (vm *VM) callAtOffset(caller *Frame, entry, argCount int, name string) error {
	base := vm.sp - argCount
	if base < 0 {
		return vm.runtimeErrorf("StackUnderflow: call expects %d arguments", argCount)
	}
	localCount := argCount
	if sym, ok := vm.procedures.ByAddress(entry); ok {
		if name == "" {
			name = sym.Name
		}
		if sym.LocalCount > localCount {
			localCount = sym.LocalCount
		}
	}
	for vm.sp < base+localCount {
		if err := vm.push(value.MakeNil()); err != nil {
			return err
		}
	}
	if name == "" {
		name = "proc"
	}
	return vm.pushFrame(&Frame{Chunk: caller.Chunk, IP: entry, BasePointer: base, Name: name})
}

// callIndirect pops argCount arguments and then the callee descriptor
// (expected to be a Closure Value, as produced by GET_UPVALUE/GET_LOCAL
// on a procedural-type variable). The new frame carries the closure so
// GET_UPVALUE/SET_UPVALUE can resolve into its captured environment
// (§4.4).
func (vm *VM) callIndirect(caller *Frame, argCount int) error {
	if vm.sp-argCount < 0 {
		return vm.runtimeErrorf("StackUnderflow: indirect call expects %d arguments", argCount)
	}
	args := make([]value.Value, argCount)
	for i := argCount - 1; i >= 0; i-- {
		v, err := vm.pop()
		if err != nil {
			return err
		}
		args[i] = v
	}
	calleeVal, err := vm.pop()
	if err != nil {
		return err
	}
	cd := calleeVal.ClosureData()
	if cd == nil {
		return vm.runtimeErrorf("TypeMismatch: indirect call target is not a procedural value")
	}
	for _, a := range args {
		if err := vm.push(a); err != nil {
			return err
		}
	}
	base := vm.sp - argCount
	name := "closure"
	localCount := argCount
	if sym, ok := vm.procedures.ByAddress(cd.EntryOffset); ok {
		name = sym.Name
		if sym.LocalCount > localCount {
			localCount = sym.LocalCount
		}
	} else if cd.Fn != nil {
		name = cd.Fn.Name
	}
	for vm.sp < base+localCount {
		if err := vm.push(value.MakeNil()); err != nil {
			return err
		}
	}
	cd.Env.Retain()
	return vm.pushFrame(&Frame{Chunk: caller.Chunk, IP: cd.EntryOffset, BasePointer: base, Name: name, Closure: cd})
}

// execCallBuiltin resolves and invokes a name-keyed builtin (§4.5, §9's
// lowercase-alias decision). proc selects whether the result is pushed
// back (a function-style builtin) or dropped (a procedure-style one).
func (vm *VM) execCallBuiltin(f *Frame, proc bool) error {
	nameIdx := int(vm.readUint16(f))
	argCount := int(vm.readByte(f))
	var cacheOffset int
	if proc {
		cacheOffset = f.IP
		f.IP += 2
	}

	fn, err := vm.resolveBuiltin(f, nameIdx, cacheOffset, proc)
	if err != nil {
		return err
	}

	if vm.sp-argCount < 0 {
		return vm.runtimeErrorf("StackUnderflow: builtin call expects %d arguments", argCount)
	}
	args := make([]value.Value, argCount)
	for i := argCount - 1; i >= 0; i-- {
		v, perr := vm.pop()
		if perr != nil {
			return perr
		}
		args[i] = v
	}
	result, err := fn(vm, args)
	if err != nil {
		return err
	}
	if proc {
		return nil
	}
	return vm.push(result)
}

// resolveBuiltin implements the §9 decision: prefer the precomputed
// lowercase-alias constant if one was set, otherwise fall back to an
// exact-spelling match. CALL_BUILTIN_PROC additionally self-caches the
// resolved builtin's registry index into its own two reserved operand
// bytes once resolved, avoiding a second name lookup on the next call
// through the same call site.
func (vm *VM) resolveBuiltin(f *Frame, nameIdx, cacheOffset int, useCache bool) (BuiltinFunc, error) {
	if useCache && cacheOffset >= 0 {
		cached := bytecode.ReadUint16(f.Chunk.Code, cacheOffset)
		if cached != 0xFFFF {
			if fn, ok := vm.builtinByCacheIndex(int(cached)); ok {
				return fn, nil
			}
		}
	}

	if nameIdx < 0 || nameIdx >= len(f.Chunk.Constants) {
		return nil, vm.runtimeErrorf("builtin name constant index %d out of range", nameIdx)
	}
	name := f.Chunk.Constants[nameIdx].AsString()

	if lowerIdx, ok := f.Chunk.GetBuiltinLowercaseIndex(nameIdx); ok {
		lowerName := f.Chunk.Constants[lowerIdx].AsString()
		if fn, ok := vm.builtins.ResolveLower(lowerName); ok {
			vm.primeBuiltinCache(f, cacheOffset, useCache, lowerName)
			return fn, nil
		}
	}

	if fn, ok := vm.builtins.ResolveExact(name); ok {
		vm.primeBuiltinCache(f, cacheOffset, useCache, name)
		return fn, nil
	}

	return nil, vm.runtimeErrorf("UndefinedBuiltin: %q is not a registered builtin", name)
}

func (vm *VM) builtinByCacheIndex(idx int) (BuiltinFunc, bool) {
	if idx < 0 || idx >= len(vm.builtins.entries) {
		return nil, false
	}
	return vm.builtins.entries[idx].fn, true
}

func (vm *VM) primeBuiltinCache(f *Frame, cacheOffset int, useCache bool, resolvedName string) {
	if !useCache || cacheOffset < 0 {
		return
	}
	idx, ok := vm.builtins.byLower[strings.ToLower(resolvedName)]
	if !ok {
		return
	}
	_ = f.Chunk.PatchShort(cacheOffset, uint16(idx))
}
