package vm

import (
	"github.com/pscalvm/pscalvm/internal/bytecode"
	"github.com/pscalvm/pscalvm/internal/value"
)

func isElementOp(op bytecode.Op) bool {
	switch op {
	case bytecode.OpGetElementAddress, bytecode.OpGetElementAddressConst,
		bytecode.OpLoadElementValue, bytecode.OpLoadElementValueConst,
		bytecode.OpGetCharAddress, bytecode.OpGetCharFromString,
		bytecode.OpSetIndirect, bytecode.OpGetIndirect, bytecode.OpIn:
		return true
	}
	return false
}

// execElementOp handles array/string element access and pointer
// indirection (§3.1, §4.2). Array addressing requires the base on the
// stack to already be a live Pointer (produced by GET_LOCAL_ADDRESS,
// GET_GLOBAL_ADDRESS, GET_FIELD_ADDRESS, or a chained GET_ELEMENT_ADDRESS)
// so the resulting element pointer aliases real storage rather than a
// transient copy.
func (vm *VM) execElementOp(op bytecode.Op, f *Frame) error {
	switch op {
	case bytecode.OpGetElementAddress:
		ndims := int(vm.readByte(f))
		return vm.execElementAddress(ndims, false)
	case bytecode.OpLoadElementValue:
		ndims := int(vm.readByte(f))
		return vm.execElementAddress(ndims, true)

	case bytecode.OpGetElementAddressConst:
		idxConst := int(vm.readUint16(f))
		_ = vm.readUint16(f) // reserved
		return vm.execElementAddressConst(f, idxConst, false)
	case bytecode.OpLoadElementValueConst:
		idxConst := int(vm.readUint16(f))
		_ = vm.readUint16(f) // reserved
		return vm.execElementAddressConst(f, idxConst, true)

	case bytecode.OpGetCharAddress:
		return vm.execGetCharAddress()
	case bytecode.OpGetCharFromString:
		return vm.execGetCharFromString()

	case bytecode.OpSetIndirect:
		return vm.execSetIndirect()
	case bytecode.OpGetIndirect:
		return vm.execGetIndirect()
	case bytecode.OpIn:
		return vm.execIn()
	}
	return vm.runtimeErrorf("execElementOp: unreachable opcode %s", op)
}

func (vm *VM) arrayTargetFromPointer(base value.Value) (*value.ArrayData, error) {
	ptr := base.Pointer()
	if ptr == nil || !ptr.IsLive() {
		return nil, vm.runtimeErrorf("NilPointer: array base is not a live pointer")
	}
	target := ptr.Target()
	arr := target.ArrayData()
	if arr == nil {
		return nil, vm.runtimeErrorf("TypeMismatch: array element access on non-array value")
	}
	return arr, nil
}

func (vm *VM) execElementAddress(ndims int, loadValue bool) error {
	indices := make([]int, ndims)
	for i := ndims - 1; i >= 0; i-- {
		iv, err := vm.pop()
		if err != nil {
			return err
		}
		indices[i] = int(iv.AsInt())
	}
	base, err := vm.pop()
	if err != nil {
		return err
	}
	arr, err := vm.arrayTargetFromPointer(base)
	if err != nil {
		return err
	}
	flat, err := arr.FlatIndex(indices)
	if err != nil {
		return vm.runtimeErrorf("%s", err)
	}
	if loadValue {
		return vm.push(value.Copy(arr.Elements[flat]))
	}
	return vm.push(value.MakePointer(&arr.Elements[flat], "element"))
}

// execElementAddressConst is the single-dimension, compile-time-constant
// index variant: the index comes from the constant pool instead of the
// stack.
func (vm *VM) execElementAddressConst(f *Frame, idxConst int, loadValue bool) error {
	base, err := vm.pop()
	if err != nil {
		return err
	}
	arr, err := vm.arrayTargetFromPointer(base)
	if err != nil {
		return err
	}
	idx := int(vm.constInt(f, idxConst))
	flat, err := arr.FlatIndex([]int{idx})
	if err != nil {
		return vm.runtimeErrorf("%s", err)
	}
	if loadValue {
		return vm.push(value.Copy(arr.Elements[flat]))
	}
	return vm.push(value.MakePointer(&arr.Elements[flat], "element"))
}

// execGetCharAddress addresses a character within a string. Because
// string storage is a byte buffer rather than a slice of addressable
// Values, the "address" produced is a standalone Char cell rather than a
// true alias into the string's buffer — writes through it do not write
// back into the source string. Programs that need in-place character
// mutation use SetIndirect on a fresh assignment instead of holding this
// address across a statement boundary (documented simplification, see
// DESIGN.md).
func (vm *VM) execGetCharAddress() error {
	idxVal, err := vm.pop()
	if err != nil {
		return err
	}
	base, err := vm.pop()
	if err != nil {
		return err
	}
	ptr := base.Pointer()
	if ptr == nil || !ptr.IsLive() {
		return vm.runtimeErrorf("NilPointer: string base is not a live pointer")
	}
	sd := ptr.Target().StringData()
	if sd == nil {
		return vm.runtimeErrorf("TypeMismatch: char address on non-string value")
	}
	idx := int(idxVal.AsInt())
	if idx < 0 || idx >= len(sd.Buf) {
		return vm.runtimeErrorf("RangeCheck: char index %d out of range (length %d)", idx, len(sd.Buf))
	}
	cell := value.MakeChar(sd.Buf[idx])
	return vm.push(value.MakePointer(&cell, "char"))
}

func (vm *VM) execGetCharFromString() error {
	idxVal, err := vm.pop()
	if err != nil {
		return err
	}
	strVal, err := vm.pop()
	if err != nil {
		return err
	}
	sd := strVal.StringData()
	if sd == nil {
		return vm.runtimeErrorf("TypeMismatch: GET_CHAR_FROM_STRING on non-string value")
	}
	idx := int(idxVal.AsInt())
	if idx < 0 || idx >= len(sd.Buf) {
		return vm.runtimeErrorf("RangeCheck: char index %d out of range (length %d)", idx, len(sd.Buf))
	}
	return vm.push(value.MakeChar(sd.Buf[idx]))
}

func (vm *VM) execSetIndirect() error {
	v, err := vm.pop()
	if err != nil {
		return err
	}
	ptrVal, err := vm.pop()
	if err != nil {
		return err
	}
	ptr := ptrVal.Pointer()
	if ptr == nil || !ptr.IsLive() {
		return vm.runtimeErrorf("NilPointer: SET_INDIRECT through a dead or nil pointer")
	}
	return value.AssignInto(ptr.Target(), v)
}

func (vm *VM) execGetIndirect() error {
	ptrVal, err := vm.pop()
	if err != nil {
		return err
	}
	ptr := ptrVal.Pointer()
	if ptr == nil || !ptr.IsLive() {
		return vm.runtimeErrorf("NilPointer: GET_INDIRECT through a dead or nil pointer")
	}
	return vm.push(value.Copy(*ptr.Target()))
}

func (vm *VM) execIn() error {
	setVal, err := vm.pop()
	if err != nil {
		return err
	}
	ord, err := vm.pop()
	if err != nil {
		return err
	}
	sd := setVal.SetData()
	if sd == nil {
		return vm.runtimeErrorf("TypeMismatch: IN requires a set operand")
	}
	return vm.push(value.MakeBool(sd.Contains(int(ord.AsInt()))))
}
