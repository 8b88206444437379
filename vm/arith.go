package vm

import (
	"math"

	"github.com/lollipopkit/luavm/value"
)

// arith implements Lua 5.4's mixed int/float arithmetic: two integers stay
// integer for +,-,*,%,//, two bitwise-capable operands must both convert to
// integer, and / and ^ always produce float. Grounded on the teacher's
// _binaryArith dispatch shape in vm/inst_operators.go, generalized to
// return a (Value, error) pair instead of mutating a shared stack.
func (vm *VM) arith(op int, a, b any) (any, error) {
	switch op {
	case OP_BAND, OP_BOR, OP_BXOR, OP_SHL, OP_SHR:
		ai, aok := value.ConvertToInteger(a)
		bi, bok := value.ConvertToInteger(b)
		if !aok || !bok {
			return nil, bitwiseErr(a, b)
		}
		switch op {
		case OP_BAND:
			return ai & bi, nil
		case OP_BOR:
			return ai | bi, nil
		case OP_BXOR:
			return ai ^ bi, nil
		case OP_SHL:
			return shiftLeft(ai, bi), nil
		case OP_SHR:
			return shiftLeft(ai, -bi), nil
		}
	}

	ai, aIsInt := a.(int64)
	bi, bIsInt := b.(int64)
	if aIsInt && bIsInt {
		switch op {
		case OP_ADD:
			return ai + bi, nil
		case OP_SUB:
			return ai - bi, nil
		case OP_MUL:
			return ai * bi, nil
		case OP_MOD:
			if bi == 0 {
				return nil, newError(ErrOther, "attempt to perform 'n%%0'")
			}
			m := ai % bi
			if m != 0 && (m^bi) < 0 {
				m += bi
			}
			return m, nil
		case OP_IDIV:
			if bi == 0 {
				return nil, newError(ErrOther, "attempt to perform 'n//0'")
			}
			q := ai / bi
			if (ai%bi != 0) && ((ai ^ bi) < 0) {
				q--
			}
			return q, nil
		}
	}

	af, aok := value.ConvertToFloat(a)
	bf, bok := value.ConvertToFloat(b)
	if !aok || !bok {
		return nil, arithErr(a, b)
	}
	switch op {
	case OP_ADD:
		return af + bf, nil
	case OP_SUB:
		return af - bf, nil
	case OP_MUL:
		return af * bf, nil
	case OP_MOD:
		m := math.Mod(af, bf)
		if m != 0 && (m < 0) != (bf < 0) {
			m += bf
		}
		return m, nil
	case OP_POW:
		return math.Pow(af, bf), nil
	case OP_DIV:
		return af / bf, nil
	case OP_IDIV:
		return math.Floor(af / bf), nil
	}
	return nil, newError(ErrOther, "unsupported arithmetic op")
}

func shiftLeft(a, n int64) int64 {
	if n <= -64 || n >= 64 {
		return 0
	}
	if n >= 0 {
		return int64(uint64(a) << uint(n))
	}
	return int64(uint64(a) >> uint(-n))
}

func arithErr(a, b any) error {
	for _, v := range []any{a, b} {
		switch v.(type) {
		case nil:
			return newError(ErrNilArithmetic, "attempt to perform arithmetic on a nil value")
		case bool:
			return newError(ErrBoolArithmetic, "attempt to perform arithmetic on a boolean value")
		case *value.Table:
			return newError(ErrTableArithmetic, "attempt to perform arithmetic on a table value")
		case string:
			return newError(ErrStringArithmetic, "attempt to perform arithmetic on a string value")
		}
	}
	return newError(ErrOther, "attempt to perform arithmetic")
}

func bitwiseErr(a, b any) error {
	for _, v := range []any{a, b} {
		switch x := v.(type) {
		case nil:
			return newError(ErrNilBitwise, "attempt to perform bitwise operation on a nil value")
		case bool:
			return newError(ErrBoolBitwise, "attempt to perform bitwise operation on a boolean value")
		case *value.Table:
			return newError(ErrTableBitwise, "attempt to perform bitwise operation on a table value")
		case string:
			return newError(ErrStringBitwise, "attempt to perform bitwise operation on a string value")
		case float64:
			return newError(ErrFloatBitwise, "number has no integer representation: %v", x)
		}
	}
	return newError(ErrOther, "attempt to perform bitwise operation")
}

// compare implements ==, < and <= across mixed int/float, with string
// ordering falling back to Go's native (byte-lexicographic) comparison.
func (vm *VM) compare(op int, a, b any) (bool, error) {
	if op == OP_EQ {
		return valuesEqual(a, b), nil
	}
	af, aIsNum := numericValue(a)
	bf, bIsNum := numericValue(b)
	if aIsNum && bIsNum {
		if op == OP_LT {
			return af < bf, nil
		}
		return af <= bf, nil
	}
	as, aIsStr := a.(string)
	bs, bIsStr := b.(string)
	if aIsStr && bIsStr {
		if op == OP_LT {
			return as < bs, nil
		}
		return as <= bs, nil
	}
	return false, newError(ErrOther, "attempt to compare %s with %s", value.TypeOf(a), value.TypeOf(b))
}

func numericValue(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

func valuesEqual(a, b any) bool {
	af, aIsNum := numericValue(a)
	bf, bIsNum := numericValue(b)
	if aIsNum && bIsNum {
		return af == bf
	}
	return a == b
}
