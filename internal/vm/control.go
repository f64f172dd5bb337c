package vm

import (
	"github.com/pscalvm/pscalvm/internal/bytecode"
	"github.com/pscalvm/pscalvm/internal/value"
)

func isControlOp(op bytecode.Op) bool {
	switch op {
	case bytecode.OpJump, bytecode.OpJumpIfFalse, bytecode.OpReturn, bytecode.OpHalt, bytecode.OpExit:
		return true
	}
	return false
}

// execControlOp handles jumps, RETURN/HALT/EXIT. halt=true tells the
// dispatch loop to stop executing (HALT/EXIT, or RETURN unwinding the
// last remaining frame).
func (vm *VM) execControlOp(op bytecode.Op, f *Frame) (bool, error) {
	switch op {
	case bytecode.OpJump:
		rel := int16(vm.readUint16(f))
		f.IP += int(rel)
		return false, nil
	case bytecode.OpJumpIfFalse:
		rel := int16(vm.readUint16(f))
		cond, err := vm.pop()
		if err != nil {
			return false, err
		}
		b, err := value.ToBool(cond)
		if err != nil {
			return false, vm.runtimeErrorf("%s", err)
		}
		if !b {
			f.IP += int(rel)
		}
		return false, nil
	case bytecode.OpReturn:
		return vm.execReturn()
	case bytecode.OpHalt, bytecode.OpExit:
		return true, nil
	}
	return false, vm.runtimeErrorf("execControlOp: unreachable opcode %s", op)
}

// execReturn pops the current frame, truncates the operand stack back to
// the frame's BasePointer, and leaves the frame's result value (if any)
// on top — mirroring the teacher's "RETURN pops a frame and keeps the
// returned value on the shared stack" convention (§4.4).
func (vm *VM) execReturn() (bool, error) {
	f := vm.popFrame()

	var result value.Value
	haveResult := vm.sp > f.BasePointer
	if haveResult {
		var err error
		result, err = vm.pop()
		if err != nil {
			return false, err
		}
	}

	// Unwind locals belonging to the returning frame.
	for vm.sp > f.BasePointer {
		vm.sp--
		vm.stack[vm.sp] = value.Value{}
	}

	if f.Closure != nil {
		f.Closure.Env.Release()
	}

	if len(vm.frames) == 0 {
		if haveResult {
			if err := vm.push(result); err != nil {
				return false, err
			}
		}
		return true, nil
	}

	if haveResult {
		if err := vm.push(result); err != nil {
			return false, err
		}
	}
	return false, nil
}
