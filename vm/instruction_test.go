package vm

import "testing"

func TestEncodeABCRoundTrip(t *testing.T) {
	i := EncodeABC(OP_ADD, 3, 250, 5)
	if got := i.Opcode(); got != OP_ADD {
		t.Fatalf("Opcode() = %d, want %d", got, OP_ADD)
	}
	a, b, c := i.ABC()
	if a != 3 || b != 250 || c != 5 {
		t.Fatalf("ABC() = (%d, %d, %d), want (3, 250, 5)", a, b, c)
	}
}

func TestEncodeABxRoundTrip(t *testing.T) {
	i := EncodeABx(OP_LOADK, 7, MaxArgBx)
	a, bx := i.ABx()
	if a != 7 || bx != MaxArgBx {
		t.Fatalf("ABx() = (%d, %d), want (7, %d)", a, bx, MaxArgBx)
	}
}

func TestEncodeAsBxRoundTripNegative(t *testing.T) {
	i := EncodeAsBx(OP_JMP, 0, -100)
	a, sbx := i.AsBx()
	if a != 0 || sbx != -100 {
		t.Fatalf("AsBx() = (%d, %d), want (0, -100)", a, sbx)
	}
}

func TestEncodeAsBxRoundTripPositive(t *testing.T) {
	i := EncodeAsBx(OP_FORLOOP, 2, 1000)
	a, sbx := i.AsBx()
	if a != 2 || sbx != 1000 {
		t.Fatalf("AsBx() = (%d, %d), want (2, 1000)", a, sbx)
	}
}

func TestEncodeAxRoundTrip(t *testing.T) {
	i := EncodeAx(OP_SETLIST, 1<<20)
	if got := i.Ax(); got != 1<<20 {
		t.Fatalf("Ax() = %d, want %d", got, 1<<20)
	}
}

func TestConstantFlag(t *testing.T) {
	rk := AsConstant(42)
	if !IsConstant(rk) {
		t.Fatalf("IsConstant(%d) = false, want true", rk)
	}
	if got := ConstantIndex(rk); got != 42 {
		t.Fatalf("ConstantIndex(%d) = %d, want 42", rk, got)
	}
	if IsConstant(42) {
		t.Fatalf("IsConstant(42) = true, want false (plain register index)")
	}
}

func TestOpName(t *testing.T) {
	i := EncodeABC(OP_ADD, 0, 0, 0)
	if i.OpName() == "" {
		t.Fatal("OpName() returned empty string for OP_ADD")
	}
}
