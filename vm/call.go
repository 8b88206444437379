package vm

import "github.com/lollipopkit/luavm/value"

// execCall implements CALL A B C: call R(A) with args R(A+1)..R(A+B-1) (or
// all registers up to vm.top if B==0), place results at R(A).. (C-1 of
// them, or all of them up to vm.top if C==0).
func (vm *VM) execCall(inst Instruction) ([]any, bool, error) {
	f := vm.cur()
	a, b, c := inst.ABC()
	fnVal := vm.reg(a)

	var args []any
	if b == 0 {
		for i := f.base + a + 1; i < vm.top; i++ {
			args = append(args, vm.stack[i])
		}
	} else {
		for i := 0; i < b-1; i++ {
			args = append(args, vm.reg(a+1+i))
		}
	}

	closure, ok := fnVal.(*value.Closure)
	if !ok {
		return nil, false, newError(ErrNotCallable, "attempt to call a %s value", value.TypeOf(fnVal))
	}

	nResults := -1
	if c != 0 {
		nResults = c - 1
	}
	results, err := vm.Call(closure, args, nResults)
	if err != nil {
		return nil, false, err
	}

	if c == 0 {
		vm.top = f.base + a
		for _, v := range results {
			vm.ensure(vm.top + 1)
			vm.stack[vm.top] = v
			vm.top++
		}
	} else {
		for i := 0; i < c-1; i++ {
			var v any
			if i < len(results) {
				v = results[i]
			}
			vm.setReg(a+i, v)
		}
	}
	return nil, false, nil
}

// execTailCall proper-tail-calls R(A): it behaves like CALL followed
// immediately by RETURN, returning the callee's results straight through
// the current frame's result path. It still recurses one Go frame (and one
// VM frame) per Lua call underneath (no trampoline), so tail calls count
// toward maxCallDepth like any other call.
func (vm *VM) execTailCall(inst Instruction) ([]any, bool, error) {
	f := vm.cur()
	a, b, _ := inst.ABC()
	fnVal := vm.reg(a)

	var args []any
	if b == 0 {
		for i := f.base + a + 1; i < vm.top; i++ {
			args = append(args, vm.stack[i])
		}
	} else {
		for i := 0; i < b-1; i++ {
			args = append(args, vm.reg(a+1+i))
		}
	}

	closure, ok := fnVal.(*value.Closure)
	if !ok {
		return nil, false, newError(ErrNotCallable, "attempt to call a %s value", value.TypeOf(fnVal))
	}

	vm.closeUpvals(f.base)
	results, err := vm.Call(closure, args, -1)
	if err != nil {
		return nil, false, err
	}
	return results, true, nil
}

// execTForCall implements the generic-for iterator step: R(A+3),
// ...,R(A+2+C) := R(A)(R(A+1), R(A+2)).
func (vm *VM) execTForCall(inst Instruction) ([]any, bool, error) {
	a, _, c := inst.ABC()
	iter, ok := vm.reg(a).(*value.Closure)
	if !ok {
		return nil, false, newError(ErrNotCallable, "attempt to call a %s value", value.TypeOf(vm.reg(a)))
	}
	results, err := vm.Call(iter, []any{vm.reg(a + 1), vm.reg(a + 2)}, c)
	if err != nil {
		return nil, false, err
	}
	for i := 0; i < c; i++ {
		if i < len(results) {
			vm.setReg(a+3+i, results[i])
		} else {
			vm.setReg(a+3+i, nil)
		}
	}
	return nil, false, nil
}
