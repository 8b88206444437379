package vm

import (
	"context"
	"fmt"

	"github.com/lollipopkit/luavm/logger"
	"github.com/lollipopkit/luavm/value"
)

// frame is one active call's register window: registers live at
// stack[base:base+proto.MaxStackSize], unlike the teacher's per-call
// independent lkStack, so upvalues can point directly at shared slots
// without a linked-list-of-stacks indirection.
type frame struct {
	closure *value.Closure
	base    int
	pc      int
	varargs []any
	openUV  map[int]*value.Upvalue
}

// VM executes compiled protos against a flat register stack shared by every
// active call frame.
type VM struct {
	ctx     context.Context
	stack   []any
	frames  []*frame
	top     int
	globals *value.Table

	// instructionBudget/maxStackSize come from an embedder's config.VM
	// document (see api.NewWithConfig); zero means unbounded. config.Parse
	// defaults the budget to zero and the stack size to
	// config.DefaultMaxStackSize.
	instructionBudget int64
	instructionCount  int64
	maxStackSize      int
}

const minStackGrow = 64

func New(ctx context.Context, globals *value.Table) *VM {
	return &VM{ctx: ctx, globals: globals, stack: make([]any, minStackGrow)}
}

// NewWithLimits creates a machine the same way New does, additionally
// enforcing an instruction budget and/or a max register-stack size. A zero
// value for either leaves that dimension unbounded.
func NewWithLimits(ctx context.Context, globals *value.Table, instructionBudget int64, maxStackSize int) *VM {
	v := New(ctx, globals)
	v.instructionBudget = instructionBudget
	v.maxStackSize = maxStackSize
	return v
}

func (vm *VM) Globals() *value.Table { return vm.globals }

func (vm *VM) cur() *frame { return vm.frames[len(vm.frames)-1] }

func (vm *VM) ensure(n int) {
	for len(vm.stack) < n {
		vm.stack = append(vm.stack, make([]any, minStackGrow)...)
	}
}

func (vm *VM) reg(idx int) any {
	f := vm.cur()
	return vm.stack[f.base+idx]
}

func (vm *VM) setReg(idx int, v any) {
	f := vm.cur()
	vm.ensure(f.base + idx + 1)
	vm.stack[f.base+idx] = v
}

// rk resolves an ABC operand that may be a register or (via the top bit) a
// constant index into the current proto's constant table.
func (vm *VM) rk(operand int) any {
	if IsConstant(operand) {
		return vm.cur().closure.Proto.Constants[ConstantIndex(operand)]
	}
	return vm.reg(operand)
}

// Call invokes a Lua or Go closure with args and returns its results.
// nResults < 0 requests all results (multret); the distinction mirrors the
// teacher's api_call.go nResults convention but operates on value slices
// directly instead of threading through a stack-based C API.
func (vm *VM) Call(c *value.Closure, args []any, nResults int) ([]any, error) {
	if c.IsGo() {
		return vm.callGo(c, args)
	}
	return vm.callLua(c, args, nResults)
}

func (vm *VM) callGo(c *value.Closure, args []any) ([]any, error) {
	logger.Debugf(vm.ctx, "call go function %s with %d args", c.GoName, len(args))
	return c.GoFunc(args)
}

func (vm *VM) callLua(c *value.Closure, args []any, nResults int) ([]any, error) {
	if len(vm.frames) >= maxCallDepth {
		return nil, newError(ErrStackOverflow, "stack overflow")
	}
	p := c.Proto
	base := vm.top
	if vm.maxStackSize > 0 && base+p.MaxStackSize > vm.maxStackSize {
		return nil, newError(ErrStackOverflow, "stack size limit exceeded")
	}
	vm.ensure(base + p.MaxStackSize + minStackGrow)

	nParams := p.NumParams
	for i := 0; i < nParams; i++ {
		if i < len(args) {
			vm.stack[base+i] = args[i]
		} else {
			vm.stack[base+i] = nil
		}
	}
	for i := nParams; i < p.MaxStackSize; i++ {
		vm.stack[base+i] = nil
	}

	f := &frame{closure: c, base: base}
	if p.IsVararg && len(args) > nParams {
		f.varargs = append([]any(nil), args[nParams:]...)
	}
	vm.frames = append(vm.frames, f)
	vm.top = base + p.MaxStackSize

	results, err := vm.run()

	vm.frames = vm.frames[:len(vm.frames)-1]
	vm.top = base
	if err != nil {
		return nil, err
	}
	if nResults >= 0 && len(results) > nResults {
		results = results[:nResults]
	}
	for nResults >= 0 && len(results) < nResults {
		results = append(results, nil)
	}
	return results, nil
}

const maxCallDepth = 200

// run executes the current frame until OP_RETURN, returning that opcode's
// results.
func (vm *VM) run() ([]any, error) {
	for {
		if vm.instructionBudget > 0 {
			vm.instructionCount++
			if vm.instructionCount > vm.instructionBudget {
				return nil, vm.decorate(newError(ErrInstructionBudget, "instruction budget exceeded"))
			}
		}
		f := vm.cur()
		if f.pc >= len(f.closure.Proto.Code) {
			return nil, nil
		}
		inst := Instruction(f.closure.Proto.Code[f.pc])
		f.pc++

		results, done, err := vm.dispatch(inst)
		if err != nil {
			return nil, vm.decorate(err)
		}
		if done {
			return results, nil
		}
	}
}

func (vm *VM) decorate(err error) error {
	re, ok := err.(*RuntimeError)
	if !ok {
		re = newError(ErrOther, "%s", err.Error())
	}
	if len(re.Traceback) > 0 {
		return re
	}
	for i := len(vm.frames) - 1; i >= 0; i-- {
		fr := vm.frames[i]
		name := "?"
		if fr.closure != nil && fr.closure.Proto != nil {
			name = fmt.Sprintf("%s:%d", fr.closure.Proto.Source, fr.closure.Proto.LineDefined)
		}
		re.Traceback = append(re.Traceback, name)
	}
	return re
}

// dispatch executes one instruction. done=true (with OP_RETURN's results)
// unwinds the current frame.
func (vm *VM) dispatch(inst Instruction) (results []any, done bool, err error) {
	f := vm.cur()
	switch inst.Opcode() {
	case OP_MOVE:
		a, b, _ := inst.ABC()
		vm.setReg(a, vm.reg(b))
	case OP_LOADK:
		a, bx := inst.ABx()
		vm.setReg(a, f.closure.Proto.Constants[bx])
	case OP_LOADBOOL:
		a, b, c := inst.ABC()
		vm.setReg(a, b != 0)
		if c != 0 {
			f.pc++
		}
	case OP_LOADINT:
		a, sbx := inst.AsBx()
		vm.setReg(a, int64(sbx))
	case OP_LOADFLOAT:
		a, sbx := inst.AsBx()
		vm.setReg(a, float64(sbx))
	case OP_LOADNIL:
		a, b, _ := inst.ABC()
		for i := 0; i <= b; i++ {
			vm.setReg(a+i, nil)
		}
	case OP_GETUPVAL:
		a, b, _ := inst.ABC()
		vm.setReg(a, f.closure.Upvals[b].Get())
	case OP_SETUPVAL:
		a, b, _ := inst.ABC()
		f.closure.Upvals[b].Set(vm.reg(a))
	case OP_GETTABUP:
		a, b, c := inst.ABC()
		t, _ := f.closure.Upvals[b].Get().(*value.Table)
		v, e := vm.index(t, vm.rk(c))
		if e != nil {
			return nil, false, e
		}
		vm.setReg(a, v)
	case OP_SETTABUP:
		a, b, c := inst.ABC()
		t, _ := f.closure.Upvals[a].Get().(*value.Table)
		if e := vm.newindex(t, vm.rk(b), vm.rk(c)); e != nil {
			return nil, false, e
		}
	case OP_GETTABLE:
		a, b, c := inst.ABC()
		t, _ := vm.reg(b).(*value.Table)
		v, e := vm.index(t, vm.rk(c))
		if e != nil {
			return nil, false, e
		}
		vm.setReg(a, v)
	case OP_SETTABLE:
		a, b, c := inst.ABC()
		t, _ := vm.reg(a).(*value.Table)
		if e := vm.newindex(t, vm.rk(b), vm.rk(c)); e != nil {
			return nil, false, e
		}
	case OP_NEWTABLE:
		a, b, c := inst.ABC()
		vm.setReg(a, value.NewTable(b, c))
	case OP_SELF:
		a, b, c := inst.ABC()
		recv := vm.reg(b)
		t, _ := recv.(*value.Table)
		v, e := vm.index(t, vm.rk(c))
		if e != nil {
			return nil, false, e
		}
		vm.setReg(a+1, recv)
		vm.setReg(a, v)
	case OP_ADD, OP_SUB, OP_MUL, OP_MOD, OP_POW, OP_DIV, OP_IDIV,
		OP_BAND, OP_BOR, OP_BXOR, OP_SHL, OP_SHR:
		a, b, c := inst.ABC()
		v, e := vm.arith(inst.Opcode(), vm.rk(b), vm.rk(c))
		if e != nil {
			return nil, false, e
		}
		vm.setReg(a, v)
	case OP_UNM:
		a, b, _ := inst.ABC()
		v, e := vm.arith(OP_SUB, int64(0), vm.reg(b))
		if e != nil {
			return nil, false, e
		}
		vm.setReg(a, v)
	case OP_BNOT:
		a, b, _ := inst.ABC()
		v, e := vm.arith(OP_BXOR, int64(-1), vm.reg(b))
		if e != nil {
			return nil, false, e
		}
		vm.setReg(a, v)
	case OP_NOT:
		a, b, _ := inst.ABC()
		vm.setReg(a, !value.ConvertToBoolean(vm.reg(b)))
	case OP_LEN:
		a, b, _ := inst.ABC()
		v, e := vm.length(vm.reg(b))
		if e != nil {
			return nil, false, e
		}
		vm.setReg(a, v)
	case OP_CONCAT:
		a, b, c := inst.ABC()
		v, e := vm.concat(b, c)
		if e != nil {
			return nil, false, e
		}
		vm.setReg(a, v)
	case OP_JMP:
		a, sbx := inst.AsBx()
		f.pc += sbx
		if a != 0 {
			vm.closeUpvals(f.base + a - 1)
		}
	case OP_EQ, OP_LT, OP_LE:
		a, b, c := inst.ABC()
		res, e := vm.compare(inst.Opcode(), vm.rk(b), vm.rk(c))
		if e != nil {
			return nil, false, e
		}
		if res != (a != 0) {
			f.pc++
		}
	case OP_TEST:
		a, _, c := inst.ABC()
		if value.ConvertToBoolean(vm.reg(a)) != (c != 0) {
			f.pc++
		}
	case OP_TESTSET:
		a, b, c := inst.ABC()
		bv := vm.reg(b)
		if value.ConvertToBoolean(bv) == (c != 0) {
			vm.setReg(a, bv)
		} else {
			f.pc++
		}
	case OP_CALL:
		return vm.execCall(inst)
	case OP_TAILCALL:
		return vm.execTailCall(inst)
	case OP_RETURN:
		a, b, _ := inst.ABC()
		var out []any
		if b == 0 {
			for i := f.base + a; i < vm.top; i++ {
				out = append(out, vm.stack[i])
			}
		} else {
			for i := 0; i < b-1; i++ {
				out = append(out, vm.reg(a+i))
			}
		}
		vm.closeUpvals(f.base)
		return out, true, nil
	case OP_FORPREP:
		return nil, false, vm.forPrep(inst)
	case OP_FORLOOP:
		return nil, false, vm.forLoop(inst)
	case OP_TFORCALL:
		return vm.execTForCall(inst)
	case OP_TFORLOOP:
		a, sbx := inst.AsBx()
		if vm.reg(a+1) != nil {
			vm.setReg(a, vm.reg(a+1))
			f.pc += sbx
		}
	case OP_SETLIST:
		vm.setList(inst)
	case OP_CLOSURE:
		a, bx := inst.ABx()
		sub := f.closure.Proto.Protos[bx]
		vm.setReg(a, vm.makeClosure(sub))
	case OP_VARARG:
		a, b, _ := inst.ABC()
		va := f.varargs
		if b == 0 {
			vm.top = f.base + a
			for _, v := range va {
				vm.stack[vm.top] = v
				vm.top++
				vm.ensure(vm.top + 1)
			}
		} else {
			for i := 0; i < b-1; i++ {
				if i < len(va) {
					vm.setReg(a+i, va[i])
				} else {
					vm.setReg(a+i, nil)
				}
			}
		}
	default:
		return nil, false, newError(ErrOther, "unimplemented opcode %s", inst.OpName())
	}
	return nil, false, nil
}
