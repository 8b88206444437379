package vm

import (
	"github.com/lollipopkit/luavm/value"
)

// forPrep implements numeric-for setup: R(A)-=R(A+2); pc+=sBx, after
// coercing init/limit/step to a consistent int-or-float triple (Lua 5.4
// keeps the loop integer only when all three operands are integers).
func (vm *VM) forPrep(inst Instruction) error {
	f := vm.cur()
	a, sbx := inst.AsBx()

	init, step, ok1 := loopNumber(vm.reg(a)), loopNumber(vm.reg(a + 2)), true
	limit := loopNumber(vm.reg(a + 1))
	if init == nil || step == nil || limit == nil {
		ok1 = false
	}
	if !ok1 {
		return newError(ErrOther, "'for' initial value must be a number")
	}

	vm.setReg(a, init)
	vm.setReg(a+1, limit)
	vm.setReg(a+2, step)

	iv, lv, sv := toFloatTriple(init, limit, step)
	if sv == 0 {
		return newError(ErrOther, "'for' step is zero")
	}
	if (sv > 0 && iv > lv) || (sv < 0 && iv < lv) {
		f.pc += sbx + 1 // skip straight past the matching FORLOOP
	} else {
		cur := subtractStep(init, step)
		vm.setReg(a, cur)
		f.pc += sbx
	}
	return nil
}

// forLoop implements R(A)+=R(A+2); if within limit then { pc+=sBx;
// R(A+3)=R(A) }.
func (vm *VM) forLoop(inst Instruction) error {
	f := vm.cur()
	a, sbx := inst.AsBx()

	next := addStep(vm.reg(a), vm.reg(a+2))
	iv, lv, sv := toFloatTriple(next, vm.reg(a+1), vm.reg(a+2))
	inRange := (sv > 0 && iv <= lv) || (sv < 0 && iv >= lv)
	if inRange {
		vm.setReg(a, next)
		vm.setReg(a+3, next)
		f.pc += sbx
	}
	return nil
}

func loopNumber(v any) any {
	switch v.(type) {
	case int64, float64:
		return v
	}
	if f, ok := value.ConvertToFloat(v); ok {
		return f
	}
	return nil
}

func toFloatTriple(a, b, c any) (float64, float64, float64) {
	af, _ := value.ConvertToFloat(a)
	bf, _ := value.ConvertToFloat(b)
	cf, _ := value.ConvertToFloat(c)
	return af, bf, cf
}

func addStep(v, step any) any {
	vi, vIsInt := v.(int64)
	si, sIsInt := step.(int64)
	if vIsInt && sIsInt {
		return vi + si
	}
	vf, _ := value.ConvertToFloat(v)
	sf, _ := value.ConvertToFloat(step)
	return vf + sf
}

func subtractStep(v, step any) any {
	vi, vIsInt := v.(int64)
	si, sIsInt := step.(int64)
	if vIsInt && sIsInt {
		return vi - si
	}
	vf, _ := value.ConvertToFloat(v)
	sf, _ := value.ConvertToFloat(step)
	return vf - sf
}

// setList implements R(A)[(C-1)*FieldsPerFlush+i] := R(A+i), grounded on the
// teacher's cg_exp.go batching of table-constructor array fields.
func (vm *VM) setList(inst Instruction) {
	f := vm.cur()
	a, b, c := inst.ABC()
	t, _ := vm.reg(a).(*value.Table)
	if b == 0 {
		b = vm.top - (f.base + a + 1)
	}
	offset := (c - 1) * FieldsPerFlush
	for i := 1; i <= b; i++ {
		t.Set(int64(offset+i), vm.reg(a+i))
	}
}
