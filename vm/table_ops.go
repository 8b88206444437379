package vm

import "github.com/lollipopkit/luavm/value"

func (vm *VM) index(t *value.Table, key any) (any, error) {
	if t == nil {
		return nil, newError(ErrNotCallable, "attempt to index a nil value")
	}
	return t.Get(key), nil
}

func (vm *VM) newindex(t *value.Table, key, val any) error {
	if t == nil {
		return newError(ErrNotCallable, "attempt to index a nil value")
	}
	if key == nil {
		return newError(ErrTableIndexNil, "table index is nil")
	}
	if err := t.Set(key, val); err != nil {
		return newError(ErrTableIndexNaN, "%s", err.Error())
	}
	return nil
}

func (vm *VM) length(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return int64(len(x)), nil
	case *value.Table:
		return int64(x.Len()), nil
	default:
		return nil, newError(ErrOther, "attempt to get length of a %s value", value.TypeOf(v))
	}
}

// concat folds R(b)..R(c) with Lua's right-to-left string concatenation,
// matching the teacher's CONCAT opcode semantics (absent from its opcode
// table but present in real Lua 5.4; grounded on its inst_operators.go
// arithmetic-dispatch pattern).
func (vm *VM) concat(b, c int) (any, error) {
	parts := make([]string, 0, c-b+1)
	for i := b; i <= c; i++ {
		s, err := concatOperand(vm.reg(i))
		if err != nil {
			return nil, err
		}
		parts = append(parts, s)
	}
	out := ""
	for _, p := range parts {
		out += p
	}
	return out, nil
}

func concatOperand(v any) (string, error) {
	switch v.(type) {
	case string, int64, float64:
		return value.ToString(v), nil
	case nil:
		return "", newError(ErrNilConcat, "attempt to concatenate a nil value")
	case bool:
		return "", newError(ErrBoolConcat, "attempt to concatenate a boolean value")
	case *value.Table:
		return "", newError(ErrTableConcat, "attempt to concatenate a table value")
	default:
		return "", newError(ErrOther, "attempt to concatenate a %s value", value.TypeOf(v))
	}
}
