package compiler

import (
	"context"
	"testing"

	"github.com/lollipopkit/luavm/value"
	"github.com/lollipopkit/luavm/vm"
)

// runChunk compiles source and executes it against a fresh machine,
// returning the globals table so tests can inspect what the script left
// behind.
func runChunk(t *testing.T, source string) *value.Table {
	t.Helper()
	p, err := Compile(source, "=test")
	if err != nil {
		t.Fatalf("Compile(%q): %v", source, err)
	}
	globals := value.NewTable(0, 8)
	machine := vm.New(context.Background(), globals)
	closure := value.NewLuaClosure(p)
	for i := range closure.Upvals {
		closure.Upvals[i] = &value.Upvalue{Val: globals}
	}
	if _, err := machine.Call(closure, nil, 0); err != nil {
		t.Fatalf("Call: %v", err)
	}
	return globals
}

func TestCompileLocalAndArithmetic(t *testing.T) {
	g := runChunk(t, `local a = 1 local b = 2 result = a + b * 3`)
	if got := g.Get("result"); got != int64(7) {
		t.Fatalf("result = %#v, want int64(7)", got)
	}
}

func TestCompileWhileLoop(t *testing.T) {
	g := runChunk(t, `
		local i = 0
		local sum = 0
		while i < 5 do
			sum = sum + i
			i = i + 1
		end
		result = sum
	`)
	if got := g.Get("result"); got != int64(10) {
		t.Fatalf("result = %#v, want int64(10)", got)
	}
}

func TestCompileNumericForLoop(t *testing.T) {
	g := runChunk(t, `
		local sum = 0
		for i = 1, 5 do
			sum = sum + i
		end
		result = sum
	`)
	if got := g.Get("result"); got != int64(15) {
		t.Fatalf("result = %#v, want int64(15)", got)
	}
}

func TestCompileIfElseif(t *testing.T) {
	g := runChunk(t, `
		local function classify(n)
			if n < 0 then
				return "negative"
			elseif n == 0 then
				return "zero"
			else
				return "positive"
			end
		end
		a = classify(-1)
		b = classify(0)
		c = classify(1)
	`)
	if g.Get("a") != "negative" || g.Get("b") != "zero" || g.Get("c") != "positive" {
		t.Fatalf("a=%#v b=%#v c=%#v", g.Get("a"), g.Get("b"), g.Get("c"))
	}
}

func TestCompileLocalFunctionRecursion(t *testing.T) {
	g := runChunk(t, `
		local function fact(n)
			if n <= 1 then
				return 1
			end
			return n * fact(n - 1)
		end
		result = fact(5)
	`)
	if got := g.Get("result"); got != int64(120) {
		t.Fatalf("result = %#v, want int64(120)", got)
	}
}

func TestCompileBreak(t *testing.T) {
	g := runChunk(t, `
		local sum = 0
		for i = 1, 10 do
			if i > 3 then
				break
			end
			sum = sum + i
		end
		result = sum
	`)
	if got := g.Get("result"); got != int64(6) {
		t.Fatalf("result = %#v, want int64(6)", got)
	}
}

func TestCompileForwardGoto(t *testing.T) {
	g := runChunk(t, `
		local x = 0
		goto skip
		x = 100
		::skip::
		x = x + 1
		result = x
	`)
	if got := g.Get("result"); got != int64(1) {
		t.Fatalf("result = %#v, want int64(1)", got)
	}
}

func TestCompileBackwardGoto(t *testing.T) {
	g := runChunk(t, `
		local i = 0
		::top::
		i = i + 1
		if i < 3 then
			goto top
		end
		result = i
	`)
	if got := g.Get("result"); got != int64(3) {
		t.Fatalf("result = %#v, want int64(3)", got)
	}
}

func TestCompileUnmatchedGotoErrors(t *testing.T) {
	_, err := Compile(`goto nowhere`, "=bad_goto")
	if err == nil {
		t.Fatal("expected a compile error for an unmatched goto")
	}
}

func TestCompileTableConstructorAndIndex(t *testing.T) {
	g := runChunk(t, `
		local t = { 10, 20, 30, x = "y" }
		a = t[1]
		b = t[3]
		c = t.x
	`)
	if g.Get("a") != int64(10) || g.Get("b") != int64(30) || g.Get("c") != "y" {
		t.Fatalf("a=%#v b=%#v c=%#v", g.Get("a"), g.Get("b"), g.Get("c"))
	}
}

func TestCompileMultipleAssignmentFromCall(t *testing.T) {
	g := runChunk(t, `
		local function two() return 1, 2 end
		a, b = two()
	`)
	if g.Get("a") != int64(1) || g.Get("b") != int64(2) {
		t.Fatalf("a=%#v b=%#v", g.Get("a"), g.Get("b"))
	}
}
