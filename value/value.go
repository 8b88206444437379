// Package value holds the tagged runtime value and the Table type the
// compiler and VM pass around: nil, boolean, integer, float, string, Table,
// *Closure and Go functions all travel as a plain Go `any`.
package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lollipopkit/luavm/proto"
)

// Type is the Lua type tag reported by type().
type Type int

const (
	TypeNil Type = iota
	TypeBoolean
	TypeNumber
	TypeString
	TypeTable
	TypeFunction
)

func (t Type) String() string {
	switch t {
	case TypeNil:
		return "nil"
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeTable:
		return "table"
	case TypeFunction:
		return "function"
	default:
		return "unknown"
	}
}

// TypeOf reports the Lua type tag of a value. A single string case covers
// both short and long strings: Go's string already gives the sharing and
// immutability properties that a separate inline short-string repr would
// exist for, so there is no second string tag to collapse here.
func TypeOf(v any) Type {
	switch v.(type) {
	case nil:
		return TypeNil
	case bool:
		return TypeBoolean
	case int64, float64:
		return TypeNumber
	case string:
		return TypeString
	case *Table:
		return TypeTable
	case *Closure, GoFunction:
		return TypeFunction
	default:
		return TypeNil
	}
}

// GoFunction is a host builtin: it receives a call frame-level argument
// slice and returns the values the call produces.
type GoFunction func(args []any) ([]any, error)

// Closure is a Lua function value: a compiled prototype plus its captured
// upvalues, or a wrapped GoFunction for host builtins installed as globals.
type Closure struct {
	Proto  *proto.Proto
	Upvals []*Upvalue
	GoFunc GoFunction
	GoName string
}

func NewLuaClosure(p *proto.Proto) *Closure {
	c := &Closure{Proto: p}
	if n := len(p.Upvalues); n > 0 {
		c.Upvals = make([]*Upvalue, n)
	}
	return c
}

func NewGoClosure(name string, f GoFunction) *Closure {
	return &Closure{GoFunc: f, GoName: name}
}

func (c *Closure) IsGo() bool { return c.GoFunc != nil }

// Upvalue is a shared cell: Open points at a live stack slot (Val is nil,
// Stack/Index resolve the current value); Close copies the slot's final
// value into Val and clears Stack so the cell outlives its frame.
type Upvalue struct {
	Stack *[]any
	Index int
	Val   any
}

func (u *Upvalue) Get() any {
	if u.Stack != nil {
		return (*u.Stack)[u.Index]
	}
	return u.Val
}

func (u *Upvalue) Set(v any) {
	if u.Stack != nil {
		(*u.Stack)[u.Index] = v
		return
	}
	u.Val = v
}

func (u *Upvalue) Close() {
	if u.Stack != nil {
		u.Val = (*u.Stack)[u.Index]
		u.Stack = nil
	}
}

// ConvertToBoolean applies Lua's truthiness rule: only nil and false are
// falsy, 0, "" and empty tables are truthy.
func ConvertToBoolean(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	default:
		return true
	}
}

// ConvertToFloat implements Lua's "string coercible to number" rule used by
// arithmetic operators.
func ConvertToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case string:
		return parseFloat(x)
	default:
		return 0, false
	}
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ConvertToInteger implements Lua 5.4's "float with no fractional part
// converts to integer" rule for bitwise/array-index contexts.
func ConvertToInteger(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case float64:
		return FloatToInteger(x)
	case string:
		if f, ok := parseFloat(x); ok {
			return FloatToInteger(f)
		}
	}
	return 0, false
}

func FloatToInteger(f float64) (int64, bool) {
	i := int64(f)
	if float64(i) == f && !math.IsInf(f, 0) {
		return i, true
	}
	return 0, false
}

// ToString renders a value the way print()/tostring() do.
func ToString(v any) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case bool:
		if x {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatFloat(x)
	case string:
		return x
	case *Table:
		return fmt.Sprintf("table: %p", x)
	case *Closure:
		if x.IsGo() {
			return fmt.Sprintf("function: builtin:%s", x.GoName)
		}
		return fmt.Sprintf("function: %p", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func formatFloat(f float64) string {
	if math.IsInf(f, 1) {
		return "inf"
	}
	if math.IsInf(f, -1) {
		return "-inf"
	}
	if math.IsNaN(f) {
		return "nan"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', 14, 64)
}
