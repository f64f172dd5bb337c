package vm

import (
	"github.com/pscalvm/pscalvm/internal/bytecode"
	"github.com/pscalvm/pscalvm/internal/value"
)

// HostFunc is a VM-privileged routine invoked by CALL_HOST's numeric ID
// operand rather than by name (§4.5: "a small, fixed table of VM-internal
// routines the compiler can reference directly, bypassing name
// resolution"). Unlike builtins, host functions pop exactly the
// arguments they expect and are responsible for their own arity
// checking.
type HostFunc func(vm *VM) (value.Value, error)

// HostRegistry is a dense array indexed by host-function ID, matching the
// source's HostFunctionID enum (vm.h in original_source) rather than a
// name-keyed map — CALL_HOST's single-byte operand is that index.
type HostRegistry struct {
	fns   [256]HostFunc
	names [256]string
}

func newHostRegistry() *HostRegistry { return &HostRegistry{} }

// Register installs fn at id, overwriting any previous registration —
// used both by registerStandardHostFunctions and by tests that want a
// private host slot.
func (r *HostRegistry) Register(id int, name string, fn HostFunc) {
	r.fns[id] = fn
	r.names[id] = name
}

func (r *HostRegistry) Get(id int) (HostFunc, bool) {
	if id < 0 || id >= len(r.fns) || r.fns[id] == nil {
		return nil, false
	}
	return r.fns[id], true
}

// Host function IDs. VMVersion mirrors vm_version.c in original_source
// (a host function returning the running VM's bytecode.CurrentVersion);
// Fibonacci grounds the §8 Fibonacci scenario in the VM itself rather
// than requiring it be hand-assembled every time (ext_builtins/math/
// fibonacci.c).
const (
	HostVMVersion = iota
	HostFibonacci
)

func registerStandardHostFunctions(r *HostRegistry) {
	r.Register(HostVMVersion, "vm_version", hostVMVersion)
	r.Register(HostFibonacci, "fibonacci", hostFibonacci)
}

func hostVMVersion(vm *VM) (value.Value, error) {
	return value.MakeInt(int64(bytecode.CurrentVersion)), nil
}

// hostFibonacci pops a single integer n and returns fib(n), computed
// iteratively — the host-function equivalent of looping CALL_USER_PROC
// recursion, grounding the source's ext_builtins/math/fibonacci.c as a
// VM-native fast path rather than a bytecode loop.
func hostFibonacci(vm *VM) (value.Value, error) {
	n, err := vm.pop()
	if err != nil {
		return value.Value{}, err
	}
	k := n.AsInt()
	if k < 0 {
		return value.Value{}, vm.runtimeErrorf("RangeCheck: fibonacci requires a non-negative argument, got %d", k)
	}
	a, b := int64(0), int64(1)
	for i := int64(0); i < k; i++ {
		a, b = b, a+b
	}
	return value.MakeInt(a), nil
}

func (vm *VM) execCallHost(id int) error {
	fn, ok := vm.hostFns.Get(id)
	if !ok {
		return vm.runtimeErrorf("UndefinedHost: no host function registered at id %d", id)
	}
	result, err := fn(vm)
	if err != nil {
		return err
	}
	return vm.push(result)
}
