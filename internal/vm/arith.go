package vm

import (
	"github.com/pscalvm/pscalvm/internal/bytecode"
	"github.com/pscalvm/pscalvm/internal/value"
)

var binOpFor = map[bytecode.Op]value.BinaryOp{
	bytecode.OpAdd:          value.OpAdd,
	bytecode.OpSub:          value.OpSub,
	bytecode.OpMul:          value.OpMul,
	bytecode.OpDiv:          value.OpDiv,
	bytecode.OpIntDiv:       value.OpIntDiv,
	bytecode.OpMod:          value.OpMod,
	bytecode.OpAnd:          value.OpAnd,
	bytecode.OpOr:           value.OpOr,
	bytecode.OpXor:          value.OpXor,
	bytecode.OpShl:          value.OpShl,
	bytecode.OpShr:          value.OpShr,
	bytecode.OpEqual:        value.OpEqual,
	bytecode.OpNotEqual:     value.OpNotEqual,
	bytecode.OpGreater:      value.OpGreater,
	bytecode.OpGreaterEqual: value.OpGreaterEqual,
	bytecode.OpLess:         value.OpLess,
	bytecode.OpLessEqual:    value.OpLessEqual,
}

func isArithOp(op bytecode.Op) bool {
	switch op {
	case bytecode.OpNegate, bytecode.OpNot, bytecode.OpToBool:
		return true
	}
	_, ok := binOpFor[op]
	return ok
}

// execArithOp handles every binary arithmetic/compare/bitwise opcode plus
// the three unary ones, delegating the numeric-tower semantics to
// value.Apply/Negate/Not/ToBool (§4.2's "dispatch to value package").
func (vm *VM) execArithOp(op bytecode.Op) error {
	switch op {
	case bytecode.OpNegate:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		r, err := value.Negate(v)
		if err != nil {
			return vm.runtimeErrorf("%s", err)
		}
		return vm.push(r)
	case bytecode.OpNot:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		r, err := value.Not(v)
		if err != nil {
			return vm.runtimeErrorf("%s", err)
		}
		return vm.push(r)
	case bytecode.OpToBool:
		v, err := vm.pop()
		if err != nil {
			return err
		}
		b, err := value.ToBool(v)
		if err != nil {
			return vm.runtimeErrorf("%s", err)
		}
		return vm.push(value.MakeBool(b))
	}

	binOp, ok := binOpFor[op]
	if !ok {
		return vm.runtimeErrorf("execArithOp: unreachable opcode %s", op)
	}
	b, err := vm.pop()
	if err != nil {
		return err
	}
	a, err := vm.pop()
	if err != nil {
		return err
	}
	r, err := value.Apply(binOp, a, b)
	if err != nil {
		return vm.runtimeErrorf("%s", err)
	}
	return vm.push(r)
}
