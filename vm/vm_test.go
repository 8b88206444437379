package vm

import (
	"context"
	"testing"

	"github.com/lollipopkit/luavm/proto"
	"github.com/lollipopkit/luavm/value"
)

// buildAddOneTwoProto hand-assembles the bytecode for a chunk equivalent to
// `return 1 + 2`, exercising OP_LOADK/OP_ADD/OP_RETURN without going through
// the compiler.
func buildAddOneTwoProto() *proto.Proto {
	p := &proto.Proto{MaxStackSize: 4}
	oneIdx, _ := p.AddConstant(int64(1))
	twoIdx, _ := p.AddConstant(int64(2))
	p.Code = []uint32{
		uint32(EncodeABx(OP_LOADK, 0, oneIdx)),
		uint32(EncodeABx(OP_LOADK, 1, twoIdx)),
		uint32(EncodeABC(OP_ADD, 2, 0, 1)),
		uint32(EncodeABC(OP_RETURN, 2, 2, 0)),
	}
	return p
}

func TestVMCallLuaArithmetic(t *testing.T) {
	globals := value.NewTable(0, 0)
	machine := New(context.Background(), globals)
	closure := value.NewLuaClosure(buildAddOneTwoProto())

	results, err := machine.Call(closure, nil, -1)
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	got, ok := results[0].(int64)
	if !ok || got != 3 {
		t.Fatalf("results[0] = %#v, want int64(3)", results[0])
	}
}

func TestVMCallGoClosure(t *testing.T) {
	globals := value.NewTable(0, 0)
	machine := New(context.Background(), globals)
	closure := value.NewGoClosure("double", func(args []any) ([]any, error) {
		n := args[0].(int64)
		return []any{n * 2}, nil
	})

	results, err := machine.Call(closure, []any{int64(21)}, -1)
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if len(results) != 1 || results[0].(int64) != 42 {
		t.Fatalf("results = %#v, want [42]", results)
	}
}

func TestVMCallReturnsMultipleValues(t *testing.T) {
	p := &proto.Proto{MaxStackSize: 4}
	oneIdx, _ := p.AddConstant(int64(1))
	twoIdx, _ := p.AddConstant(int64(2))
	p.Code = []uint32{
		uint32(EncodeABx(OP_LOADK, 0, oneIdx)),
		uint32(EncodeABx(OP_LOADK, 1, twoIdx)),
		uint32(EncodeABC(OP_RETURN, 0, 3, 0)), // return both regs 0,1
	}

	globals := value.NewTable(0, 0)
	machine := New(context.Background(), globals)
	closure := value.NewLuaClosure(p)

	results, err := machine.Call(closure, nil, -1)
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if len(results) != 2 || results[0].(int64) != 1 || results[1].(int64) != 2 {
		t.Fatalf("results = %#v, want [1, 2]", results)
	}
}

func TestVMDivisionByZeroErrors(t *testing.T) {
	p := &proto.Proto{MaxStackSize: 4}
	oneIdx, _ := p.AddConstant(int64(1))
	zeroIdx, _ := p.AddConstant(int64(0))
	p.Code = []uint32{
		uint32(EncodeABx(OP_LOADK, 0, oneIdx)),
		uint32(EncodeABx(OP_LOADK, 1, zeroIdx)),
		uint32(EncodeABC(OP_IDIV, 2, 0, 1)),
		uint32(EncodeABC(OP_RETURN, 2, 2, 0)),
	}

	globals := value.NewTable(0, 0)
	machine := New(context.Background(), globals)
	closure := value.NewLuaClosure(p)

	if _, err := machine.Call(closure, nil, -1); err == nil {
		t.Fatal("expected an error dividing by zero, got nil")
	}
}
