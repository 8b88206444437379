package api

import (
	"context"
	"testing"
)

func TestParseAndExecuteSimpleChunk(t *testing.T) {
	l := New(context.Background())
	prog, err := Parse([]byte("result = 1 + 2"), "=test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := l.Execute(prog); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := l.Globals().Get("result")
	if got != int64(3) {
		t.Fatalf("globals[result] = %#v, want int64(3)", got)
	}
}

func TestParseCachesIdenticalSource(t *testing.T) {
	source := []byte("x = 1")
	p1, err := Parse(source, "=cache_test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p2, err := Parse(source, "=cache_test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p1.Proto != p2.Proto {
		t.Fatal("expected identical (chunkName, source) to be served from cache")
	}
}

func TestParseSyntaxError(t *testing.T) {
	if _, err := Parse([]byte("local = "), "=bad"); err == nil {
		t.Fatal("expected a compile error for invalid syntax")
	}
}

func TestRegisterHostFunction(t *testing.T) {
	l := New(context.Background())
	l.Register("host_add", func(ctx *VmContext) error {
		a := ctx.Arg(1).(int64)
		b := ctx.Arg(2).(int64)
		ctx.PushResult(a + b)
		return nil
	})

	prog, err := Parse([]byte("sum = host_add(3, 4)"), "=host_add_test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := l.Execute(prog); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := l.Globals().Get("sum"); got != int64(7) {
		t.Fatalf("globals[sum] = %#v, want int64(7)", got)
	}
}

func TestHostFunctionErrorAbortsExecution(t *testing.T) {
	l := New(context.Background())
	l.Register("fail", func(ctx *VmContext) error {
		return errBoom
	})

	prog, err := Parse([]byte("fail()"), "=fail_test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := l.Execute(prog); err == nil {
		t.Fatal("expected Execute to propagate the host function's error")
	}
}

var errBoom = errBoomType{}

type errBoomType struct{}

func (errBoomType) Error() string { return "boom" }
