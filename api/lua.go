package api

import (
	"context"

	"github.com/lollipopkit/luavm/config"
	"github.com/lollipopkit/luavm/value"
	"github.com/lollipopkit/luavm/vm"
)

// HostFunc is a function a host embeds into the global table, matching
// spec §6's Lua::register(name, host_fn). Returning an error aborts
// execution with a host-side message, the Go idiom for the contract's
// "negative return signals error" rule.
type HostFunc func(ctx *VmContext) error

// Lua is a running machine: one global table and one VM bound to it,
// the generalization of the teacher's lkState into a handle a host keeps
// around across Execute calls.
type Lua struct {
	vm      *vm.VM
	globals *value.Table
}

// New creates a machine with an empty global table.
func New(ctx context.Context) *Lua {
	globals := value.NewTable(0, 8)
	return &Lua{vm: vm.New(ctx, globals), globals: globals}
}

// NewWithConfig creates a machine the same way New does, additionally
// parsing doc (see config.Parse) and applying its instruction budget and
// max stack size to the underlying VM. A nil/empty doc gets config.Parse's
// defaults: no instruction budget, and a stack capped at
// config.DefaultMaxStackSize (New leaves the stack unbounded).
func NewWithConfig(ctx context.Context, doc []byte) (*Lua, error) {
	cfg, err := config.Parse(doc)
	if err != nil {
		return nil, err
	}
	globals := value.NewTable(0, 8)
	v := vm.NewWithLimits(ctx, globals, cfg.InstructionBudget, cfg.MaxStackSize)
	return &Lua{vm: v, globals: globals}, nil
}

// Register installs a host function into the globals table under name,
// matching spec §6's Lua::register.
func (l *Lua) Register(name string, fn HostFunc) {
	goFn := func(args []any) ([]any, error) {
		ctx := newContext(args)
		if err := fn(ctx); err != nil {
			return nil, err
		}
		return ctx.results, nil
	}
	l.globals.Set(name, value.NewGoClosure(name, goFn))
}

// Execute loads p as the main closure (zero args, variadic) and runs it
// to completion, matching spec §6's Lua::execute.
func (l *Lua) Execute(p *Program) error {
	closure := value.NewLuaClosure(p.Proto)
	for i := range closure.Upvals {
		closure.Upvals[i] = &value.Upvalue{Val: l.globals}
	}
	_, err := l.vm.Call(closure, nil, 0)
	return err
}

// Globals exposes the global table directly, for a host that wants to
// read back values a script left there.
func (l *Lua) Globals() *value.Table { return l.globals }
