package vm

import (
	"github.com/pscalvm/pscalvm/internal/bytecode"
	"github.com/pscalvm/pscalvm/internal/value"
)

func isLocalOp(op bytecode.Op) bool {
	switch op {
	case bytecode.OpGetLocal, bytecode.OpSetLocal, bytecode.OpIncLocal, bytecode.OpDecLocal,
		bytecode.OpGetLocalAddress, bytecode.OpInitLocalFile, bytecode.OpInitLocalString,
		bytecode.OpInitLocalPointer, bytecode.OpInitLocalArray:
		return true
	}
	return false
}

// localSlot returns the absolute stack index of local slot n in the
// current frame (§4.4: locals live at stack[BasePointer+n]).
func (vm *VM) localSlot(f *Frame, n int) int { return f.BasePointer + n }

func (vm *VM) execLocalOp(op bytecode.Op, f *Frame) error {
	switch op {
	case bytecode.OpGetLocal:
		slot := vm.localSlot(f, int(vm.readByte(f)))
		return vm.push(value.Copy(vm.stack[slot]))
	case bytecode.OpSetLocal:
		slot := vm.localSlot(f, int(vm.readByte(f)))
		v, err := vm.pop()
		if err != nil {
			return err
		}
		return value.AssignInto(&vm.stack[slot], v)
	case bytecode.OpIncLocal:
		slot := vm.localSlot(f, int(vm.readByte(f)))
		wrapped, err := value.Inc(&vm.stack[slot], 1)
		if err != nil {
			return vm.runtimeErrorf("%s", err)
		}
		if wrapped {
			vm.reporter.ReportWarning(vm.currentLine(), "%s ordinal wrapped on increment", vm.stack[slot].Kind)
		}
		return nil
	case bytecode.OpDecLocal:
		slot := vm.localSlot(f, int(vm.readByte(f)))
		wrapped, err := value.Dec(&vm.stack[slot], 1)
		if err != nil {
			return vm.runtimeErrorf("%s", err)
		}
		if wrapped {
			vm.reporter.ReportWarning(vm.currentLine(), "%s ordinal wrapped on decrement", vm.stack[slot].Kind)
		}
		return nil
	case bytecode.OpGetLocalAddress:
		slot := vm.localSlot(f, int(vm.readByte(f)))
		return vm.push(value.MakePointer(&vm.stack[slot], "local"))
	case bytecode.OpInitLocalFile:
		slot := vm.localSlot(f, int(vm.readByte(f)))
		elemType := value.Kind(vm.readByte(f))
		_ = vm.readUint16(f) // type-name constant index, diagnostics only
		vm.stack[slot] = value.MakeFile("", elemType)
		return nil
	case bytecode.OpInitLocalString:
		slot := vm.localSlot(f, int(vm.readByte(f)))
		maxLen := int(vm.readByte(f))
		vm.stack[slot] = value.MakeString("", maxLen)
		return nil
	case bytecode.OpInitLocalPointer:
		slot := vm.localSlot(f, int(vm.readByte(f)))
		_ = vm.readUint16(f) // base-type-name constant index, diagnostics only
		vm.stack[slot] = value.MakeNilPointer("")
		return nil
	case bytecode.OpInitLocalArray:
		return vm.execInitLocalArray(f)
	}
	return vm.runtimeErrorf("execLocalOp: unreachable opcode %s", op)
}

// execInitLocalArray mirrors bytecode.arrayPayloadLen's layout: slot byte,
// dims byte, dims*(2 bound-constant indices), elemtype byte, elem
// type-name constant index (§6.3).
func (vm *VM) execInitLocalArray(f *Frame) error {
	slot := vm.localSlot(f, int(vm.readByte(f)))
	dims := int(vm.readByte(f))
	lower := make([]int, dims)
	upper := make([]int, dims)
	for i := 0; i < dims; i++ {
		lowIdx := int(vm.readUint16(f))
		highIdx := int(vm.readUint16(f))
		lower[i] = int(vm.constInt(f, lowIdx))
		upper[i] = int(vm.constInt(f, highIdx))
	}
	elemType := value.Kind(vm.readByte(f))
	_ = vm.readUint16(f) // elem type-name constant index, diagnostics only
	vm.stack[slot] = value.MakeArray(lower, upper, elemType, "")
	return nil
}
