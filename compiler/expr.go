package compiler

import (
	"math"
	"strconv"
	"strings"

	"github.com/lollipopkit/luavm/compiler/lexer"
	"github.com/lollipopkit/luavm/value"
	"github.com/lollipopkit/luavm/vm"
)

// binopPriority is Lua's operator-precedence table (left, right binding
// power); right < left on `..` and `^` gives them right-associativity, the
// same trick real Lua's lparser.c subexpr() uses.
type priority struct{ left, right int }

var binopPriority = map[int]priority{
	lexer.TOKEN_OP_OR:    {1, 1},
	lexer.TOKEN_OP_AND:   {2, 2},
	lexer.TOKEN_OP_LT:    {3, 3},
	lexer.TOKEN_OP_GT:    {3, 3},
	lexer.TOKEN_OP_LE:    {3, 3},
	lexer.TOKEN_OP_GE:    {3, 3},
	lexer.TOKEN_OP_NE:    {3, 3},
	lexer.TOKEN_OP_EQ:    {3, 3},
	lexer.TOKEN_OP_BOR:   {4, 4},
	lexer.TOKEN_OP_WAVE:  {5, 5},
	lexer.TOKEN_OP_BAND:  {6, 6},
	lexer.TOKEN_OP_SHL:   {7, 7},
	lexer.TOKEN_OP_SHR:   {7, 7},
	lexer.TOKEN_CONCAT:   {9, 8}, // right-assoc
	lexer.TOKEN_OP_ADD:   {10, 10},
	lexer.TOKEN_OP_MINUS: {10, 10},
	lexer.TOKEN_OP_MUL:   {11, 11},
	lexer.TOKEN_OP_DIV:   {11, 11},
	lexer.TOKEN_OP_IDIV:  {11, 11},
	lexer.TOKEN_OP_MOD:   {11, 11},
	lexer.TOKEN_OP_POW:   {14, 13}, // right-assoc
}

const unaryPriority = 12

var arithAndBitwiseOps = map[int]int{
	lexer.TOKEN_OP_ADD:   vm.OP_ADD,
	lexer.TOKEN_OP_MINUS: vm.OP_SUB,
	lexer.TOKEN_OP_MUL:   vm.OP_MUL,
	lexer.TOKEN_OP_MOD:   vm.OP_MOD,
	lexer.TOKEN_OP_POW:   vm.OP_POW,
	lexer.TOKEN_OP_DIV:   vm.OP_DIV,
	lexer.TOKEN_OP_IDIV:  vm.OP_IDIV,
	lexer.TOKEN_OP_BAND:  vm.OP_BAND,
	lexer.TOKEN_OP_BOR:   vm.OP_BOR,
	lexer.TOKEN_OP_WAVE:  vm.OP_BXOR,
	lexer.TOKEN_OP_SHL:   vm.OP_SHL,
	lexer.TOKEN_OP_SHR:   vm.OP_SHR,
}

var compareOps = map[int]int{
	lexer.TOKEN_OP_EQ: vm.OP_EQ,
	lexer.TOKEN_OP_LT: vm.OP_LT,
	lexer.TOKEN_OP_LE: vm.OP_LE,
}

// expr parses a full expression via precedence climbing, the single-pass
// replacement for the teacher's two-phase parser.parseExp* + codegen.cgBinopExp
// split.
func (c *compilerState) expr() (expDesc, error) {
	return c.subexpr(0)
}

func (c *compilerState) subexpr(limit int) (expDesc, error) {
	var e expDesc
	var err error

	if isUnop(c.cur.Kind) {
		op := c.cur.Kind
		line := c.cur.Line
		if err := c.advance(); err != nil {
			return e, err
		}
		operand, err := c.subexpr(unaryPriority)
		if err != nil {
			return e, err
		}
		e, err = c.emitUnop(op, operand, line)
		if err != nil {
			return e, err
		}
	} else {
		e, err = c.simpleExpr()
		if err != nil {
			return e, err
		}
	}

	for {
		pri, ok := binopPriority[c.cur.Kind]
		if !ok || pri.left <= limit {
			break
		}
		op := c.cur.Kind
		line := c.cur.Line
		if err := c.advance(); err != nil {
			return e, err
		}

		if op == lexer.TOKEN_OP_AND {
			e, err = c.prepAnd(e, line)
		} else if op == lexer.TOKEN_OP_OR {
			e, err = c.prepOr(e, line)
		}
		if err != nil {
			return e, err
		}

		rhs, err := c.subexpr(pri.right)
		if err != nil {
			return e, err
		}

		switch op {
		case lexer.TOKEN_OP_AND:
			e, err = c.finishAnd(e, rhs, line)
		case lexer.TOKEN_OP_OR:
			e, err = c.finishOr(e, rhs, line)
		case lexer.TOKEN_CONCAT:
			e, err = c.emitConcat(e, rhs, line)
		default:
			e, err = c.emitBinop(op, e, rhs, line)
		}
		if err != nil {
			return e, err
		}
	}
	return e, nil
}

func isUnop(k int) bool {
	switch k {
	case lexer.TOKEN_OP_MINUS, lexer.TOKEN_OP_NOT, lexer.TOKEN_OP_LEN, lexer.TOKEN_OP_WAVE:
		return true
	}
	return false
}

/* and/or: true jump-list threading per spec, grounded on original_source's
   Binop (binops.rs) separating Or/And from arithmetic, unlike the teacher's
   combined TESTSET-per-operand shortcut. */

func (c *compilerState) prepAnd(e expDesc, line int) (expDesc, error) {
	c.goIfFalse(&e, line)
	return e, nil
}

func (c *compilerState) finishAnd(lhs, rhs expDesc, line int) (expDesc, error) {
	rhs.f = c.fs.concatJump(rhs.f, lhs.f)
	return rhs, nil
}

func (c *compilerState) prepOr(e expDesc, line int) (expDesc, error) {
	c.goIfTrue(&e, line)
	return e, nil
}

func (c *compilerState) finishOr(lhs, rhs expDesc, line int) (expDesc, error) {
	rhs.t = c.fs.concatJump(rhs.t, lhs.t)
	return rhs, nil
}

// goIfTrue/goIfFalse convert e into a conditional jump, appending to its
// jump lists, the core primitive behind and/or/if/while short-circuiting.
func (c *compilerState) goIfTrue(e *expDesc, line int) {
	if e.kind != eRelation {
		reg := c.exp2AnyReg(c.fs, e, line)
		c.fs.emitABC(vm.OP_TEST, reg, 0, 1, line)
	}
	jmp := c.fs.emitJump(line)
	c.fs.patchToHere(e.f)
	e.f = noJump
	e.t = c.fs.concatJump(e.t, jmp)
}

func (c *compilerState) goIfFalse(e *expDesc, line int) {
	if e.kind == eRelation {
		c.negateRelation(e)
	} else {
		reg := c.exp2AnyReg(c.fs, e, line)
		c.fs.emitABC(vm.OP_TEST, reg, 0, 0, line)
	}
	jmp := c.fs.emitJump(line)
	c.fs.patchToHere(e.t)
	e.t = noJump
	e.f = c.fs.concatJump(e.f, jmp)
}

func (c *compilerState) negateRelation(e *expDesc) {
	// the pending EQ/LT/LE test instruction's A operand flips sense
	op := vm.Instruction(c.fs.proto.Code[e.info])
	a, b, cc := op.ABC()
	c.fs.patchInstruction(e.info, vm.EncodeABC(op.Opcode(), 1-a, b, cc))
}

func (c *compilerState) emitUnop(op int, operand expDesc, line int) (expDesc, error) {
	if v, isNum := constNumber(c.fs, operand); isNum {
		folded, didFold, err := c.foldUnop(op, v, line)
		if err != nil {
			return expDesc{}, err
		}
		if didFold {
			dst := c.fs.allocReg()
			c.loadNumberConst(dst, folded, line)
			return expDesc{kind: eNonReloc, info: dst, t: noJump, f: noJump}, nil
		}
	}
	reg := c.exp2AnyReg(c.fs, &operand, line)
	c.fs.freeTo(reg)
	dst := c.fs.allocReg()
	switch op {
	case lexer.TOKEN_OP_MINUS:
		c.fs.emitABC(vm.OP_UNM, dst, reg, 0, line)
	case lexer.TOKEN_OP_NOT:
		c.fs.emitABC(vm.OP_NOT, dst, reg, 0, line)
	case lexer.TOKEN_OP_LEN:
		c.fs.emitABC(vm.OP_LEN, dst, reg, 0, line)
	case lexer.TOKEN_OP_WAVE:
		c.fs.emitABC(vm.OP_BNOT, dst, reg, 0, line)
	}
	return expDesc{kind: eNonReloc, info: dst, t: noJump, f: noJump}, nil
}

// emitBinop emits a comparison/arithmetic/bitwise binop. Only the C operand
// of the underlying ABC instruction is RK-capable (vm/instruction.go's B
// field carries no constant-flag bit), so the left operand (-> B) must
// always be materialized into a real register via exp2AnyReg; only the
// right operand (-> C) may stay RK-encoded via exp2RK.
func (c *compilerState) emitBinop(op int, lhs, rhs expDesc, line int) (expDesc, error) {
	if cmpOp, ok := compareOps[op]; ok {
		bReg := c.exp2AnyReg(c.fs, &lhs, line)
		cReg := c.exp2RK(c.fs, &rhs, line)
		c.fs.freeTo(minUsed(c.fs, bReg, cReg))
		pc := c.fs.emitABC(cmpOp, 1, bReg, cReg, line)
		return expDesc{kind: eRelation, info: pc, t: noJump, f: noJump}, nil
	}
	if op == lexer.TOKEN_OP_NE {
		bReg := c.exp2AnyReg(c.fs, &lhs, line)
		cReg := c.exp2RK(c.fs, &rhs, line)
		c.fs.freeTo(minUsed(c.fs, bReg, cReg))
		pc := c.fs.emitABC(vm.OP_EQ, 0, bReg, cReg, line)
		return expDesc{kind: eRelation, info: pc, t: noJump, f: noJump}, nil
	}
	if op == lexer.TOKEN_OP_GT {
		return c.emitBinop(lexer.TOKEN_OP_LT, rhs, lhs, line)
	}
	if op == lexer.TOKEN_OP_GE {
		return c.emitBinop(lexer.TOKEN_OP_LE, rhs, lhs, line)
	}
	vmOp, ok := arithAndBitwiseOps[op]
	if !ok {
		return expDesc{}, c.errorf(ErrNotBinaryOperator, line, "not a binary operator")
	}
	if lv, lok := constNumber(c.fs, lhs); lok {
		if rv, rok := constNumber(c.fs, rhs); rok {
			folded, didFold, err := c.foldConst(vmOp, lv, rv, line)
			if err != nil {
				return expDesc{}, err
			}
			if didFold {
				dst := c.fs.allocReg()
				c.loadNumberConst(dst, folded, line)
				return expDesc{kind: eNonReloc, info: dst, t: noJump, f: noJump}, nil
			}
		}
	}
	bReg := c.exp2AnyReg(c.fs, &lhs, line)
	cReg := c.exp2RK(c.fs, &rhs, line)
	c.fs.freeTo(minUsed(c.fs, bReg, cReg))
	dst := c.fs.allocReg()
	c.fs.emitABC(vmOp, dst, bReg, cReg, line)
	return expDesc{kind: eNonReloc, info: dst, t: noJump, f: noJump}, nil
}

// constNumber reports the literal numeric value behind a constant-kind
// expDesc, if any, so emitBinop/emitUnop can attempt to fold it instead of
// emitting a runtime arithmetic op (spec.md §4.3 "Constant folding").
func constNumber(fs *funcState, e expDesc) (any, bool) {
	if e.kind != eConst {
		return nil, false
	}
	switch v := fs.proto.Constants[e.info].(type) {
	case int64, float64:
		return v, true
	default:
		return nil, false
	}
}

// foldConst evaluates a binary arith/bitwise op on two literal numbers at
// compile time, per spec.md §4.3's typed rules: int op int stays int for
// +,-,*,%,//; / and ^ always float; any float operand promotes the rest;
// bitwise ops require an integer or a float with no fractional part.
//
// ok=false (with err=nil) means "don't fold, emit the runtime op instead":
// an integer % or // by a literal zero is not folded (as in real Lua's
// lcode.c) and is deferred to the runtime op, which raises the normal
// ErrOther arithmetic fault. Float /, // and % by zero do fold, to ±Inf
// or NaN.
func (c *compilerState) foldConst(vmOp int, a, b any, line int) (result any, ok bool, err error) {
	switch vmOp {
	case vm.OP_BAND, vm.OP_BOR, vm.OP_BXOR, vm.OP_SHL, vm.OP_SHR:
		ai, aok := foldToInt(a)
		bi, bok := foldToInt(b)
		if !aok || !bok {
			return nil, false, c.errorf(ErrFloatBitwise, line, "number has no integer representation")
		}
		switch vmOp {
		case vm.OP_BAND:
			return ai & bi, true, nil
		case vm.OP_BOR:
			return ai | bi, true, nil
		case vm.OP_BXOR:
			return ai ^ bi, true, nil
		case vm.OP_SHL:
			return foldShiftLeft(ai, bi), true, nil
		case vm.OP_SHR:
			return foldShiftLeft(ai, -bi), true, nil
		}
	}

	ai, aIsInt := a.(int64)
	bi, bIsInt := b.(int64)
	if aIsInt && bIsInt {
		switch vmOp {
		case vm.OP_ADD:
			return ai + bi, true, nil
		case vm.OP_SUB:
			return ai - bi, true, nil
		case vm.OP_MUL:
			return ai * bi, true, nil
		case vm.OP_MOD:
			if bi == 0 {
				return nil, false, nil
			}
			m := ai % bi
			if m != 0 && (m^bi) < 0 {
				m += bi
			}
			return m, true, nil
		case vm.OP_IDIV:
			if bi == 0 {
				return nil, false, nil
			}
			q := ai / bi
			if (ai%bi != 0) && ((ai ^ bi) < 0) {
				q--
			}
			return q, true, nil
		}
	}

	af, aok := value.ConvertToFloat(a)
	bf, bok := value.ConvertToFloat(b)
	if !aok || !bok {
		return nil, false, nil
	}
	switch vmOp {
	case vm.OP_ADD:
		return af + bf, true, nil
	case vm.OP_SUB:
		return af - bf, true, nil
	case vm.OP_MUL:
		return af * bf, true, nil
	case vm.OP_MOD:
		m := math.Mod(af, bf)
		if m != 0 && (m < 0) != (bf < 0) {
			m += bf
		}
		return m, true, nil
	case vm.OP_POW:
		return math.Pow(af, bf), true, nil
	case vm.OP_DIV:
		return af / bf, true, nil
	case vm.OP_IDIV:
		return math.Floor(af / bf), true, nil
	}
	return nil, false, nil
}

// foldUnop evaluates a unary minus/bitwise-not on a literal number at
// compile time; not/len never fold (len has no literal-table case, and
// not is always emitted as a runtime OP_NOT).
func (c *compilerState) foldUnop(op int, v any, line int) (any, bool, error) {
	switch op {
	case lexer.TOKEN_OP_MINUS:
		switch x := v.(type) {
		case int64:
			return -x, true, nil
		case float64:
			return -x, true, nil
		}
	case lexer.TOKEN_OP_WAVE:
		i, ok := foldToInt(v)
		if !ok {
			return nil, false, c.errorf(ErrFloatBitwise, line, "number has no integer representation")
		}
		return ^i, true, nil
	}
	return nil, false, nil
}

func foldToInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case float64:
		return value.FloatToInteger(x)
	}
	return 0, false
}

func foldShiftLeft(a, n int64) int64 {
	if n <= -64 || n >= 64 {
		return 0
	}
	if n >= 0 {
		return int64(uint64(a) << uint(n))
	}
	return int64(uint64(a) >> uint(-n))
}

// loadNumberConst discharges a folded literal number into dst. Values that
// fit the sBx-inline range skip the constant pool entirely (spec.md §4.4's
// LoadInteger/LoadFloat); larger ones fall back to LOADK.
func (c *compilerState) loadNumberConst(dst int, v any, line int) {
	const lo, hi = -vm.BiasSBx, vm.MaxArgBx - vm.BiasSBx
	switch x := v.(type) {
	case int64:
		if x >= lo && x <= hi {
			c.fs.emitAsBx(vm.OP_LOADINT, dst, int(x), line)
			return
		}
		idx, _ := c.fs.proto.AddConstant(x)
		c.fs.emitABx(vm.OP_LOADK, dst, idx, line)
	case float64:
		if i := int64(x); float64(i) == x && i >= int64(lo) && i <= int64(hi) {
			c.fs.emitAsBx(vm.OP_LOADFLOAT, dst, int(i), line)
			return
		}
		idx, _ := c.fs.proto.AddConstant(x)
		c.fs.emitABx(vm.OP_LOADK, dst, idx, line)
	}
}

func (c *compilerState) emitConcat(lhs, rhs expDesc, line int) (expDesc, error) {
	b := c.exp2NextReg(c.fs, &lhs, line)
	cc := c.exp2NextReg(c.fs, &rhs, line)
	c.fs.freeTo(b)
	dst := c.fs.allocReg()
	c.fs.emitABC(vm.OP_CONCAT, dst, b, cc, line)
	return expDesc{kind: eNonReloc, info: dst, t: noJump, f: noJump}, nil
}

// minUsed frees registers back down to below whichever of the two RK
// operands was a freshly-allocated register, leaving constants untouched.
func minUsed(fs *funcState, a, b int) int {
	n := fs.usedRegs
	floor := 0
	if len(fs.locals) > 0 {
		floor = fs.locals[len(fs.locals)-1].slot + 1
	}
	if !vm.IsConstant(a) && a >= floor && a < n {
		n = a
	}
	if !vm.IsConstant(b) && b >= floor && b < n {
		n = b
	}
	return n
}

/* primary / simple expressions */

func (c *compilerState) simpleExpr() (expDesc, error) {
	line := c.cur.Line
	switch c.cur.Kind {
	case lexer.TOKEN_NUMBER:
		v, err := parseNumber(c.cur.Value)
		if err != nil {
			return expDesc{}, c.errorf(ErrParse, line, "%s", err.Error())
		}
		if err := c.advance(); err != nil {
			return expDesc{}, err
		}
		idx, _ := c.fs.proto.AddConstant(v)
		return c.constExp(idx), nil
	case lexer.TOKEN_STRING:
		s := c.cur.Value
		if err := c.advance(); err != nil {
			return expDesc{}, err
		}
		idx, _ := c.fs.proto.AddConstant(s)
		return c.constExp(idx), nil
	case lexer.TOKEN_KW_NIL:
		if err := c.advance(); err != nil {
			return expDesc{}, err
		}
		return nilExp(), nil
	case lexer.TOKEN_KW_TRUE:
		if err := c.advance(); err != nil {
			return expDesc{}, err
		}
		return boolExp(true), nil
	case lexer.TOKEN_KW_FALSE:
		if err := c.advance(); err != nil {
			return expDesc{}, err
		}
		return boolExp(false), nil
	case lexer.TOKEN_VARARG:
		if !c.fs.proto.IsVararg {
			return expDesc{}, c.errorf(ErrOrphanExp, line, "cannot use '...' outside a vararg function")
		}
		if err := c.advance(); err != nil {
			return expDesc{}, err
		}
		pc := c.fs.emitABC(vm.OP_VARARG, 0, 0, 2, line)
		return expDesc{kind: eVararg, info: pc, t: noJump, f: noJump}, nil
	case lexer.TOKEN_SEP_LCURLY:
		return c.tableConstructor()
	case lexer.TOKEN_KW_FUNCTION:
		if err := c.advance(); err != nil {
			return expDesc{}, err
		}
		return c.funcBody(line, false)
	default:
		return c.suffixedExpr()
	}
}

func parseNumber(s string) (any, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if !strings.ContainsAny(s, ".pP") {
			if i, err := strconv.ParseUint(s[2:], 16, 64); err == nil {
				return int64(i), nil
			}
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err
	}
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err
}

/* prefix/suffixed expressions: names, indexing, calls */

func (c *compilerState) primaryExpr() (expDesc, error) {
	switch c.cur.Kind {
	case lexer.TOKEN_SEP_LPAREN:
		if err := c.advance(); err != nil {
			return expDesc{}, err
		}
		e, err := c.expr()
		if err != nil {
			return expDesc{}, err
		}
		if err := c.expect(lexer.TOKEN_SEP_RPAREN); err != nil {
			return expDesc{}, err
		}
		// parenthesized multi-value exprs truncate to one value
		if e.kind == eCall || e.kind == eVararg {
			reg := c.exp2NextReg(c.fs, &e, c.cur.Line)
			return expDesc{kind: eNonReloc, info: reg, t: noJump, f: noJump}, nil
		}
		return e, nil
	case lexer.TOKEN_IDENTIFIER:
		return c.nameExpr()
	default:
		return expDesc{}, c.errorf(ErrParse, c.cur.Line, "unexpected symbol near '%s'", c.cur.String())
	}
}

func (c *compilerState) nameExpr() (expDesc, error) {
	name := c.cur.Value
	line := c.cur.Line
	if err := c.advance(); err != nil {
		return expDesc{}, err
	}
	if slot, ok := c.fs.resolveLocal(name); ok {
		return c.localExp(slot), nil
	}
	if idx, ok := c.fs.resolveUpval(name); ok {
		return expDesc{kind: eUpval, info: idx, t: noJump, f: noJump}, nil
	}
	// free name: _ENV[name], _ENV resolved as this function's own upvalue
	envIdx, ok := c.fs.resolveUpval("_ENV")
	if !ok {
		return expDesc{}, c.errorf(ErrParse, line, "no _ENV upvalue available")
	}
	kidx, _ := c.fs.proto.AddConstant(name)
	return expDesc{kind: eIndexed, info: envIdx, aux: vm.AsConstant(kidx), tIsUpval: true, t: noJump, f: noJump}, nil
}

func (c *compilerState) suffixedExpr() (expDesc, error) {
	e, err := c.primaryExpr()
	if err != nil {
		return e, err
	}
	for {
		line := c.cur.Line
		switch c.cur.Kind {
		case lexer.TOKEN_SEP_DOT:
			if err := c.advance(); err != nil {
				return e, err
			}
			name, err := c.expectIdentifier()
			if err != nil {
				return e, err
			}
			e, err = c.indexField(e, name, line)
			if err != nil {
				return e, err
			}
		case lexer.TOKEN_SEP_LBRACK:
			if err := c.advance(); err != nil {
				return e, err
			}
			keyExp, err := c.expr()
			if err != nil {
				return e, err
			}
			if err := c.expect(lexer.TOKEN_SEP_RBRACK); err != nil {
				return e, err
			}
			e, err = c.indexKey(e, keyExp, line)
			if err != nil {
				return e, err
			}
		case lexer.TOKEN_SEP_COLON:
			if err := c.advance(); err != nil {
				return e, err
			}
			method, err := c.expectIdentifier()
			if err != nil {
				return e, err
			}
			e, err = c.methodCall(e, method, line)
			if err != nil {
				return e, err
			}
		case lexer.TOKEN_SEP_LPAREN, lexer.TOKEN_STRING, lexer.TOKEN_SEP_LCURLY:
			e, err = c.call(e, line)
			if err != nil {
				return e, err
			}
		default:
			return e, nil
		}
	}
}

func (c *compilerState) indexField(obj expDesc, name string, line int) (expDesc, error) {
	kidx, _ := c.fs.proto.AddConstant(name)
	return c.indexed(obj, vm.AsConstant(kidx), line)
}

func (c *compilerState) indexKey(obj, key expDesc, line int) (expDesc, error) {
	rk := c.exp2RK(c.fs, &key, line)
	return c.indexed(obj, rk, line)
}

func (c *compilerState) indexed(obj expDesc, rk int, line int) (expDesc, error) {
	if obj.kind == eUpval {
		return expDesc{kind: eIndexed, info: obj.info, aux: rk, tIsUpval: true, t: noJump, f: noJump}, nil
	}
	reg := c.exp2AnyReg(c.fs, &obj, line)
	return expDesc{kind: eIndexed, info: reg, aux: rk, t: noJump, f: noJump}, nil
}
