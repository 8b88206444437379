package proto

import "testing"

func TestAddConstantDedups(t *testing.T) {
	p := &Proto{}
	i1, err := p.AddConstant("hello")
	if err != nil {
		t.Fatal(err)
	}
	i2, err := p.AddConstant("hello")
	if err != nil {
		t.Fatal(err)
	}
	if i1 != i2 {
		t.Fatalf("AddConstant didn't dedup: %d != %d", i1, i2)
	}
	if len(p.Constants) != 1 {
		t.Fatalf("Constants = %v, want 1 entry", p.Constants)
	}
}

func TestAddUpvalueDedups(t *testing.T) {
	p := &Proto{}
	i1 := p.AddUpvalue("x", true, 2)
	i2 := p.AddUpvalue("x", true, 2)
	if i1 != i2 {
		t.Fatalf("AddUpvalue didn't dedup: %d != %d", i1, i2)
	}
	i3 := p.AddUpvalue("y", true, 3)
	if i3 == i1 {
		t.Fatal("AddUpvalue deduped distinct upvalues")
	}
}

func TestAddProto(t *testing.T) {
	p := &Proto{}
	sub := &Proto{Source: "inner"}
	idx := p.AddProto(sub)
	if idx != 0 || len(p.Protos) != 1 || p.Protos[0] != sub {
		t.Fatalf("AddProto result wrong: idx=%d protos=%v", idx, p.Protos)
	}
}

func TestDumpLoadRoundTrip(t *testing.T) {
	p := &Proto{
		Source:       "=test",
		NumParams:    2,
		IsVararg:     true,
		MaxStackSize: 5,
		Code:         []uint32{1, 2, 3},
		Constants:    []any{"a", "b"},
		Upvalues:     []Upvalue{{Name: "_ENV", InStack: false, Index: 0}},
	}
	data, err := Dump(p)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	loaded, err := Load(data)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Source != p.Source || loaded.NumParams != p.NumParams ||
		loaded.IsVararg != p.IsVararg || loaded.MaxStackSize != p.MaxStackSize {
		t.Fatalf("round trip mismatch: got %+v", loaded)
	}
	if len(loaded.Code) != len(p.Code) || len(loaded.Constants) != len(p.Constants) ||
		len(loaded.Upvalues) != len(p.Upvalues) {
		t.Fatalf("round trip slice length mismatch: got %+v", loaded)
	}
	if loaded.Upvalues[0].Name != "_ENV" {
		t.Fatalf("upvalue name not preserved: %+v", loaded.Upvalues[0])
	}
}

func TestAddConstantOverflow(t *testing.T) {
	p := &Proto{Constants: make([]any, 1<<17)}
	if _, err := p.AddConstant("new"); err == nil {
		t.Fatal("expected overflow error, got nil")
	}
}
