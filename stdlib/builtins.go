// Package stdlib holds the host builtins spec §1/§6 names to demonstrate
// the host-function contract: print, type, assert, warn, plus the
// supplemented json.get (see DESIGN.md). Grounded on the teacher's
// stdlib/lib_basic.go OpenBaseLib registration pattern, adapted from its
// push/pop LkState C-API onto api.VmContext's argument-window contract.
package stdlib

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lollipopkit/luavm/api"
	"github.com/lollipopkit/luavm/logger"
	"github.com/lollipopkit/luavm/value"
)

// warnEnabled is the state behind warn("@on")/warn("@off"): a plain
// captured Go variable, the idiomatic equivalent of the host-function
// contract's "read/write access to its upvalues" (see api.VmContext).
var warnEnabled = true

// Open registers every builtin this package provides into l's globals,
// the equivalent of the teacher's OpenBaseLib/OpenJsonLib calls.
func Open(l *api.Lua) {
	l.Register("print", builtinPrint)
	l.Register("type", builtinType)
	l.Register("assert", builtinAssert)
	l.Register("warn", builtinWarn)
	openJSON(l)
}

// print (···)
// prints every argument, tab-separated, the same as real Lua's print.
func builtinPrint(ctx *api.VmContext) error {
	parts := make([]string, ctx.NArgs())
	for i := range parts {
		parts[i] = value.ToString(ctx.Arg(i + 1))
	}
	fmt.Println(strings.Join(parts, "\t"))
	return nil
}

// type (v)
// returns the Lua type name of its single argument.
func builtinType(ctx *api.VmContext) error {
	ctx.PushResult(value.TypeOf(ctx.Arg(1)).String())
	return nil
}

var errAssertionFailed = errors.New("assertion failed!")

// assert (v [, message])
// returns all its arguments if v is truthy, else raises message (or the
// default assertion-failed message) as a runtime error.
func builtinAssert(ctx *api.VmContext) error {
	if value.ConvertToBoolean(ctx.Arg(1)) {
		for i := 1; i <= ctx.NArgs(); i++ {
			ctx.PushResult(ctx.Arg(i))
		}
		return nil
	}
	if msg, ok := ctx.Arg(2).(string); ok {
		return errors.New(msg)
	}
	return errAssertionFailed
}

// warn (···)
// concatenates its string arguments and logs them at Warn level, never
// fatal. warn("@on")/warn("@off") toggle emission, matching real Lua
// 5.4's control-message convention (see DESIGN.md/SPEC_FULL.md §4).
func builtinWarn(ctx *api.VmContext) error {
	if ctx.NArgs() == 1 {
		if s, ok := ctx.Arg(1).(string); ok {
			switch s {
			case "@on":
				warnEnabled = true
				return nil
			case "@off":
				warnEnabled = false
				return nil
			}
		}
	}
	if !warnEnabled {
		return nil
	}
	parts := make([]string, ctx.NArgs())
	for i := range parts {
		s, _ := ctx.Arg(i + 1).(string)
		parts[i] = s
	}
	logger.Warnf(context.Background(), "%s", strings.Join(parts, ""))
	return nil
}
