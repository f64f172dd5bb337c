package vm

import (
	"github.com/pscalvm/pscalvm/internal/bytecode"
	"github.com/pscalvm/pscalvm/internal/symtab"
	"github.com/pscalvm/pscalvm/internal/value"
)

func isGlobalOp(op bytecode.Op) bool {
	switch op {
	case bytecode.OpDefineGlobal, bytecode.OpDefineGlobal16,
		bytecode.OpGetGlobal, bytecode.OpGetGlobal16,
		bytecode.OpSetGlobal, bytecode.OpSetGlobal16,
		bytecode.OpGetGlobalCached, bytecode.OpGetGlobal16Cached,
		bytecode.OpSetGlobalCached, bytecode.OpSetGlobal16Cached,
		bytecode.OpGetGlobalAddress, bytecode.OpGetGlobalAddress16:
		return true
	}
	return false
}

// execGlobalOp implements DEFINE_GLOBAL[16], GET/SET_GLOBAL[16][_CACHED]
// and GET_GLOBAL_ADDRESS[16] (§4.3). The inline cache is kept as a
// per-constant-index side array on the Chunk (Chunk.GlobalSymbolCache)
// rather than by patching the 8 reserved bytes in the code stream — once
// primed, every later access (cached or not) for that constant index
// resolves in O(1) without a HashTable lookup.
func (vm *VM) execGlobalOp(op bytecode.Op, f *Frame) error {
	switch op {
	case bytecode.OpDefineGlobal:
		return vm.execDefineGlobal(f, int(vm.readByte(f)))
	case bytecode.OpDefineGlobal16:
		return vm.execDefineGlobal(f, int(vm.readUint16(f)))

	case bytecode.OpGetGlobal, bytecode.OpGetGlobalCached:
		idx := int(vm.readByte(f))
		vm.skipInlineCacheSlot(f)
		return vm.execGetGlobal(f, idx)
	case bytecode.OpGetGlobal16, bytecode.OpGetGlobal16Cached:
		idx := int(vm.readUint16(f))
		vm.skipInlineCacheSlot(f)
		return vm.execGetGlobal(f, idx)

	case bytecode.OpSetGlobal, bytecode.OpSetGlobalCached:
		idx := int(vm.readByte(f))
		vm.skipInlineCacheSlot(f)
		return vm.execSetGlobal(f, idx)
	case bytecode.OpSetGlobal16, bytecode.OpSetGlobal16Cached:
		idx := int(vm.readUint16(f))
		vm.skipInlineCacheSlot(f)
		return vm.execSetGlobal(f, idx)

	case bytecode.OpGetGlobalAddress:
		idx := int(vm.readByte(f))
		return vm.execGetGlobalAddress(f, idx)
	case bytecode.OpGetGlobalAddress16:
		idx := int(vm.readUint16(f))
		return vm.execGetGlobalAddress(f, idx)
	}
	return vm.runtimeErrorf("execGlobalOp: unreachable opcode %s", op)
}

// resolveGlobal returns the storage cell for the global whose name is
// Constants[idx], consulting/priming Chunk.GlobalSymbolCache first.
func (vm *VM) resolveGlobal(f *Frame, idx int) (*value.Value, error) {
	c := f.Chunk
	if idx < 0 || idx >= len(c.Constants) {
		return nil, vm.runtimeErrorf("global name constant index %d out of range", idx)
	}
	if idx < len(c.GlobalSymbolCache) && c.GlobalSymbolCache[idx] != nil {
		return c.GlobalSymbolCache[idx], nil
	}
	name := c.Constants[idx].AsString()
	sym, ok := vm.globals.Get(name)
	if !ok {
		return nil, vm.runtimeErrorf("UndefinedGlobal: %q is not defined", name)
	}
	for len(c.GlobalSymbolCache) <= idx {
		c.GlobalSymbolCache = append(c.GlobalSymbolCache, nil)
	}
	c.GlobalSymbolCache[idx] = sym.Storage
	return sym.Storage, nil
}

func (vm *VM) execGetGlobal(f *Frame, idx int) error {
	cell, err := vm.resolveGlobal(f, idx)
	if err != nil {
		return err
	}
	return vm.push(value.Copy(*cell))
}

func (vm *VM) execSetGlobal(f *Frame, idx int) error {
	cell, err := vm.resolveGlobal(f, idx)
	if err != nil {
		return err
	}
	v, err := vm.pop()
	if err != nil {
		return err
	}
	return value.AssignInto(cell, v)
}

func (vm *VM) execGetGlobalAddress(f *Frame, idx int) error {
	cell, err := vm.resolveGlobal(f, idx)
	if err != nil {
		return err
	}
	return vm.push(value.MakePointer(cell, "global"))
}

// execDefineGlobal creates a zero-valued global of the declared shape and
// registers it by name in vm.globals (§4.3). The caller has already read
// the name index (1 or 2 bytes, by opcode); the declared-type byte and its
// payload are read here.
func (vm *VM) execDefineGlobal(f *Frame, nameIdx int) error {
	c := f.Chunk
	if nameIdx < 0 || nameIdx >= len(c.Constants) {
		return vm.runtimeErrorf("DEFINE_GLOBAL: name constant index %d out of range", nameIdx)
	}
	name := c.Constants[nameIdx].AsString()
	declared := value.Kind(vm.readByte(f))

	zero, err := vm.zeroValueForDeclared(f, declared)
	if err != nil {
		return err
	}

	storage := new(value.Value)
	*storage = zero
	vm.globals.Put(name, &symtab.Symbol{Name: name, DeclaredType: declared, Storage: storage})
	return nil
}

// zeroValueForDeclared decodes the declared-type payload the same way
// bytecode.definePayloadLen measures it, and returns the type's zero
// value (§4.1's default-initialization rule).
func (vm *VM) zeroValueForDeclared(f *Frame, declared value.Kind) (value.Value, error) {
	switch declared {
	case value.Array:
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
		return value.MakeArray(lower, upper, elemType, ""), nil
	case value.String:
		maxLen := int(vm.readUint16(f))
		_ = vm.readUint16(f) // reserved
		return value.MakeString("", maxLen), nil
	case value.File:
		elemType := value.Kind(vm.readByte(f))
		_ = vm.readUint16(f) // type-name constant index, diagnostics only
		return value.MakeFile("", elemType), nil
	default:
		_ = vm.readUint16(f) // reserved
		return zeroScalar(declared), nil
	}
}

func (vm *VM) constInt(f *Frame, idx int) int64 {
	if idx < 0 || idx >= len(f.Chunk.Constants) {
		return 0
	}
	return f.Chunk.Constants[idx].AsInt()
}

func zeroScalar(k value.Kind) value.Value {
	switch k {
	case value.Integer:
		return value.MakeInt(0)
	case value.Byte:
		return value.MakeByte(0)
	case value.Word:
		return value.MakeWord(0)
	case value.Cardinal:
		return value.MakeCardinal(0)
	case value.Boolean:
		return value.MakeBool(false)
	case value.Char:
		return value.MakeChar(0)
	case value.Real:
		return value.MakeReal(value.Double, 0)
	case value.Pointer:
		return value.MakeNilPointer("")
	default:
		return value.MakeNil()
	}
}
