package vm

import (
	"github.com/pscalvm/pscalvm/internal/bytecode"
	"github.com/pscalvm/pscalvm/internal/value"
)

func isStackOp(op bytecode.Op) bool {
	switch op {
	case bytecode.OpConstant, bytecode.OpConstant16, bytecode.OpConst0, bytecode.OpConst1,
		bytecode.OpConstTrue, bytecode.OpConstFalse, bytecode.OpPushImmediateInt8,
		bytecode.OpPop, bytecode.OpSwap, bytecode.OpDup:
		return true
	}
	return false
}

// execStackOp handles the constant-load and plain stack-shuffle opcodes
// (§6.3). Constants are pushed by value.Copy so later mutation of the
// stack slot never aliases the chunk's constant pool.
func (vm *VM) execStackOp(op bytecode.Op, f *Frame) error {
	switch op {
	case bytecode.OpConstant:
		idx := int(vm.readByte(f))
		return vm.pushConstant(f, idx)
	case bytecode.OpConstant16:
		idx := int(vm.readUint16(f))
		return vm.pushConstant(f, idx)
	case bytecode.OpConst0:
		return vm.push(value.MakeInt(0))
	case bytecode.OpConst1:
		return vm.push(value.MakeInt(1))
	case bytecode.OpConstTrue:
		return vm.push(value.MakeBool(true))
	case bytecode.OpConstFalse:
		return vm.push(value.MakeBool(false))
	case bytecode.OpPushImmediateInt8:
		n := vm.readInt8(f)
		return vm.push(value.MakeInt(int64(n)))
	case bytecode.OpPop:
		_, err := vm.pop()
		return err
	case bytecode.OpSwap:
		a, err := vm.pop()
		if err != nil {
			return err
		}
		b, err := vm.pop()
		if err != nil {
			return err
		}
		if err := vm.push(a); err != nil {
			return err
		}
		return vm.push(b)
	case bytecode.OpDup:
		top, err := vm.peek(0)
		if err != nil {
			return err
		}
		return vm.push(value.Copy(top))
	}
	return vm.runtimeErrorf("execStackOp: unreachable opcode %s", op)
}

func (vm *VM) pushConstant(f *Frame, idx int) error {
	if idx < 0 || idx >= len(f.Chunk.Constants) {
		return vm.runtimeErrorf("constant index %d out of range (pool size %d)", idx, len(f.Chunk.Constants))
	}
	return vm.push(value.Copy(f.Chunk.Constants[idx]))
}
