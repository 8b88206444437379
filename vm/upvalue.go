package vm

import (
	"github.com/lollipopkit/luavm/proto"
	"github.com/lollipopkit/luavm/value"
)

// openUpval returns the shared cell for the live register at absolute stack
// index idx, creating it on first capture so two closures over the same
// local share one cell, per the teacher's CloseUpvalues contract in
// api/lua_vm.go.
func (vm *VM) openUpval(idx int) *value.Upvalue {
	f := vm.cur()
	if f.openUV == nil {
		f.openUV = make(map[int]*value.Upvalue)
	}
	if uv, ok := f.openUV[idx]; ok {
		return uv
	}
	uv := &value.Upvalue{Stack: &vm.stack, Index: idx}
	f.openUV[idx] = uv
	return uv
}

// closeUpvals copies the final values of every open upvalue at or above the
// absolute index floor into its cell and detaches it from the stack, called
// when a scope holding captured locals exits (JMP with A!=0, OP_RETURN).
func (vm *VM) closeUpvals(floor int) {
	f := vm.cur()
	for idx, uv := range f.openUV {
		if idx >= floor {
			uv.Close()
			delete(f.openUV, idx)
		}
	}
}

// makeClosure builds a closure for a nested function literal, resolving
// each of its upvalue descriptors against the *current* frame: InStack
// captures one of this frame's own locals (freshly opened), otherwise it
// re-shares one of this frame's own closure's upvalue cells.
func (vm *VM) makeClosure(p *proto.Proto) *value.Closure {
	f := vm.cur()
	c := value.NewLuaClosure(p)
	for i, uv := range p.Upvalues {
		if uv.InStack {
			c.Upvals[i] = vm.openUpval(f.base + uv.Index)
		} else {
			c.Upvals[i] = f.closure.Upvals[uv.Index]
		}
	}
	return c
}
