package vm

import (
	"github.com/pscalvm/pscalvm/internal/bytecode"
	"github.com/pscalvm/pscalvm/internal/value"
)

func isFieldOp(op bytecode.Op) bool {
	switch op {
	case bytecode.OpGetFieldAddress, bytecode.OpGetFieldAddress16,
		bytecode.OpGetFieldOffset, bytecode.OpGetFieldOffset16,
		bytecode.OpLoadFieldValue, bytecode.OpLoadFieldValue16,
		bytecode.OpLoadFieldValueByName, bytecode.OpLoadFieldValueByName16,
		bytecode.OpAllocObject, bytecode.OpAllocObject16,
		bytecode.OpInitFieldArray:
		return true
	}
	return false
}

// execFieldOp handles record/object field access (§3.1's Record kind,
// modeling the source's field-offset-based object model). ALLOC_OBJECT
// pushes a fresh zero-valued Record with fieldCount empty-named fields
// ready to be populated by INIT_FIELD_ARRAY or SET_INDIRECT through a
// field address.
func (vm *VM) execFieldOp(op bytecode.Op, f *Frame) error {
	switch op {
	case bytecode.OpAllocObject:
		return vm.execAllocObject(int(vm.readByte(f)))
	case bytecode.OpAllocObject16:
		return vm.execAllocObject(int(vm.readUint16(f)))

	case bytecode.OpGetFieldOffset:
		_ = vm.readByte(f) // field index, consumed; offset is the index itself
		return nil
	case bytecode.OpGetFieldOffset16:
		_ = vm.readUint16(f)
		return nil

	case bytecode.OpGetFieldAddress:
		idx := int(vm.readByte(f))
		return vm.execGetFieldAddress(idx)
	case bytecode.OpGetFieldAddress16:
		idx := int(vm.readUint16(f))
		return vm.execGetFieldAddress(idx)

	case bytecode.OpLoadFieldValue:
		idx := int(vm.readByte(f))
		return vm.execLoadFieldValue(idx)
	case bytecode.OpLoadFieldValue16:
		idx := int(vm.readUint16(f))
		return vm.execLoadFieldValue(idx)

	case bytecode.OpLoadFieldValueByName:
		idx := int(vm.readByte(f))
		return vm.execLoadFieldValueByName(f, idx)
	case bytecode.OpLoadFieldValueByName16:
		idx := int(vm.readUint16(f))
		return vm.execLoadFieldValueByName(f, idx)

	case bytecode.OpInitFieldArray:
		return vm.execInitFieldArray(f)
	}
	return vm.runtimeErrorf("execFieldOp: unreachable opcode %s", op)
}

func (vm *VM) execAllocObject(fieldCount int) error {
	fields := make([]value.Field, fieldCount)
	for i := range fields {
		fields[i] = value.Field{Name: "", Val: value.MakeNil()}
	}
	return vm.push(value.MakeRecord(fields))
}

func (vm *VM) popRecord() (*value.RecordData, error) {
	v, err := vm.pop()
	if err != nil {
		return nil, err
	}
	rec := v.RecordData()
	if rec == nil {
		return nil, vm.runtimeErrorf("TypeMismatch: field access on non-record value (%s)", v.Kind)
	}
	return rec, nil
}

func (vm *VM) execGetFieldAddress(idx int) error {
	rec, err := vm.popRecord()
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(rec.Fields) {
		return vm.runtimeErrorf("RangeCheck: field index %d out of range (%d fields)", idx, len(rec.Fields))
	}
	return vm.push(value.MakePointer(&rec.Fields[idx].Val, "field"))
}

func (vm *VM) execLoadFieldValue(idx int) error {
	rec, err := vm.popRecord()
	if err != nil {
		return err
	}
	if idx < 0 || idx >= len(rec.Fields) {
		return vm.runtimeErrorf("RangeCheck: field index %d out of range (%d fields)", idx, len(rec.Fields))
	}
	return vm.push(value.Copy(rec.Fields[idx].Val))
}

func (vm *VM) execLoadFieldValueByName(f *Frame, nameIdx int) error {
	rec, err := vm.popRecord()
	if err != nil {
		return err
	}
	if nameIdx < 0 || nameIdx >= len(f.Chunk.Constants) {
		return vm.runtimeErrorf("field name constant index %d out of range", nameIdx)
	}
	name := f.Chunk.Constants[nameIdx].AsString()
	fv, ok := rec.Get(name)
	if !ok {
		return vm.runtimeErrorf("UndefinedField: no field named %q", name)
	}
	return vm.push(value.Copy(*fv))
}

// execInitFieldArray mirrors execInitLocalArray's payload layout, but
// targets a field of the record on top of the stack instead of a local
// slot (§6.3).
func (vm *VM) execInitFieldArray(f *Frame) error {
	fieldIdx := int(vm.readByte(f))
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

	rec, err := vm.popRecord()
	if err != nil {
		return err
	}
	if fieldIdx < 0 || fieldIdx >= len(rec.Fields) {
		return vm.runtimeErrorf("RangeCheck: field index %d out of range (%d fields)", fieldIdx, len(rec.Fields))
	}
	rec.Fields[fieldIdx].Val = value.MakeArray(lower, upper, elemType, "")
	return vm.push(value.MakeRecord(rec.Fields))
}
