package vm

import (
	"github.com/pscalvm/pscalvm/internal/bytecode"
	"github.com/pscalvm/pscalvm/internal/value"
)

func isUpvalueOp(op bytecode.Op) bool {
	switch op {
	case bytecode.OpGetUpvalue, bytecode.OpSetUpvalue, bytecode.OpGetUpvalueAddress:
		return true
	}
	return false
}

// execUpvalueOp reads/writes a captured variable in the current frame's
// closure environment (§4.4). A frame with no Closure (a top-level call)
// can never legally reach one of these opcodes — that is a compiler
// invariant, not something the VM re-validates per access beyond a nil
// check.
func (vm *VM) execUpvalueOp(op bytecode.Op, f *Frame) error {
	slot := int(vm.readByte(f))
	if f.Closure == nil || f.Closure.Env == nil {
		return vm.runtimeErrorf("UpvalueError: no closure environment in this frame")
	}
	if slot < 0 || slot >= len(f.Closure.Env.Upvalues) {
		return vm.runtimeErrorf("RangeCheck: upvalue slot %d out of range", slot)
	}
	cell := f.Closure.Env.Upvalues[slot]

	switch op {
	case bytecode.OpGetUpvalue:
		return vm.push(value.Copy(*cell))
	case bytecode.OpSetUpvalue:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		return value.AssignInto(cell, v)
	case bytecode.OpGetUpvalueAddress:
		return vm.push(value.MakePointer(cell, "upvalue"))
	}
	return vm.runtimeErrorf("execUpvalueOp: unreachable opcode %s", op)
}
