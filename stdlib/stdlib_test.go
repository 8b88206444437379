package stdlib

import (
	"context"
	"testing"

	"github.com/lollipopkit/luavm/api"
)

func newMachine(t *testing.T) *api.Lua {
	t.Helper()
	l := api.New(context.Background())
	Open(l)
	return l
}

func run(t *testing.T, l *api.Lua, source string) error {
	t.Helper()
	prog, err := api.Parse([]byte(source), "=stdlib_test")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return l.Execute(prog)
}

func TestBuiltinType(t *testing.T) {
	l := newMachine(t)
	if err := run(t, l, `
		t_nil = type(nil)
		t_bool = type(true)
		t_num = type(1)
		t_str = type("x")
	`); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	cases := map[string]string{
		"t_nil":  "nil",
		"t_bool": "boolean",
		"t_num":  "number",
		"t_str":  "string",
	}
	for name, want := range cases {
		if got := l.Globals().Get(name); got != want {
			t.Errorf("%s = %#v, want %q", name, got, want)
		}
	}
}

func TestBuiltinAssertPassesThroughOnTruthy(t *testing.T) {
	l := newMachine(t)
	if err := run(t, l, `ok = assert(42)`); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := l.Globals().Get("ok"); got != int64(42) {
		t.Fatalf("ok = %#v, want int64(42)", got)
	}
}

func TestBuiltinAssertFailsOnFalse(t *testing.T) {
	l := newMachine(t)
	if err := run(t, l, `assert(false, "boom")`); err == nil {
		t.Fatal("expected assert(false, ...) to raise an error")
	}
}

func TestBuiltinAssertDefaultMessage(t *testing.T) {
	l := newMachine(t)
	if err := run(t, l, `assert(nil)`); err == nil {
		t.Fatal("expected assert(nil) to raise an error")
	}
}

func TestJSONGet(t *testing.T) {
	l := newMachine(t)
	err := run(t, l, `
		ok, val = json.get('{"a": {"b": 7}}', "a.b")
	`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := l.Globals().Get("ok"); got != true {
		t.Fatalf("ok = %#v, want true", got)
	}
	if got := l.Globals().Get("val"); got != "7" {
		t.Fatalf("val = %#v, want \"7\"", got)
	}
}

func TestJSONGetMissingPath(t *testing.T) {
	l := newMachine(t)
	err := run(t, l, `
		ok, val = json.get('{"a": 1}', "nope")
	`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := l.Globals().Get("ok"); got != false {
		t.Fatalf("ok = %#v, want false", got)
	}
}

func TestBuiltinWarnToggle(t *testing.T) {
	l := newMachine(t)
	if err := run(t, l, `warn("@off") warn("should be silent") warn("@on")`); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !warnEnabled {
		t.Fatal("expected warn(\"@on\") to leave warnEnabled true")
	}
}
