package compiler

import "github.com/lollipopkit/luavm/vm"

type expKind int

const (
	eVoid expKind = iota
	eNil
	eTrue
	eFalse
	eConst    // info = constant table index
	eNonReloc // info = register already holding the final value
	eLocal    // info = register of a local variable
	eUpval    // info = upvalue index
	eIndexed  // info = table register/upval index; aux = RK-encoded key
	eRelation // info = pc of a pending EQ/LT/LE test instruction
	eCall     // info = pc of a CALL instruction
	eVararg   // info = pc of a VARARG instruction
)

// expDesc is the compiler's one-slot "value in progress" descriptor, the
// generalization of the teacher's exp_helper.go line-tracking plus cg_exp.go's
// ad-hoc register/constant resolution into the single tagged struct a real
// single-pass Lua compiler threads through expression parsing.
type expDesc struct {
	kind     expKind
	info     int
	aux      int
	tIsUpval bool // for eIndexed: info names an upvalue instead of a register
	t        int  // true-jump list (for relational/logical exprs)
	f        int  // false-jump list
}

func voidExp() expDesc   { return expDesc{kind: eVoid, t: noJump, f: noJump} }
func nilExp() expDesc    { return expDesc{kind: eNil, t: noJump, f: noJump} }
func boolExp(b bool) expDesc {
	k := eFalse
	if b {
		k = eTrue
	}
	return expDesc{kind: k, t: noJump, f: noJump}
}

func (c *compilerState) constExp(idx int) expDesc {
	return expDesc{kind: eConst, info: idx, t: noJump, f: noJump}
}

func (c *compilerState) localExp(slot int) expDesc {
	return expDesc{kind: eLocal, info: slot, t: noJump, f: noJump}
}

// hasJumps reports whether this expression's truth value still depends on
// an unresolved jump list (used to decide whether a cheap constant-fold
// shortcut is safe).
func (e expDesc) hasJumps() bool { return e.t != e.f || e.t != noJump }

/* discharge: turn an expDesc into a concrete register */

// dischargeToReg forces e's value into register reg, emitting whatever load
// instruction its kind implies.
func (c *compilerState) dischargeToReg(fs *funcState, e *expDesc, reg int, line int) {
	switch e.kind {
	case eNil:
		fs.emitABC(vm.OP_LOADNIL, reg, 0, 0, line)
	case eTrue:
		fs.emitABC(vm.OP_LOADBOOL, reg, 1, 0, line)
	case eFalse:
		fs.emitABC(vm.OP_LOADBOOL, reg, 0, 0, line)
	case eConst:
		fs.emitABx(vm.OP_LOADK, reg, e.info, line)
	case eLocal:
		if e.info != reg {
			fs.emitABC(vm.OP_MOVE, reg, e.info, 0, line)
		}
	case eUpval:
		fs.emitABC(vm.OP_GETUPVAL, reg, e.info, 0, line)
	case eIndexed:
		tabArg := e.info
		op := vm.OP_GETTABLE
		if e.tIsUpval {
			op = vm.OP_GETTABUP
		}
		fs.emitABC(op, reg, tabArg, e.aux, line)
	case eNonReloc:
		if e.info != reg {
			fs.emitABC(vm.OP_MOVE, reg, e.info, 0, line)
		}
	case eCall, eVararg:
		// results already materialize starting at reg by construction
		// (the call/vararg instruction's own A operand), nothing to do.
	case eRelation:
		c.materializeRelation(fs, e, reg, line)
	case eVoid:
		// nothing to load
	}
	e.kind = eNonReloc
	e.info = reg
}

// materializeRelation turns a pending comparison into a concrete boolean in
// reg via the LOADBOOL/JMP/LOADBOOL idiom real Lua uses when a relational
// expression is consumed as a value rather than a branch condition.
func (c *compilerState) materializeRelation(fs *funcState, e *expDesc, reg int, line int) {
	jmpTrue := fs.emitJump(line)
	fs.patchToHere(e.f)
	fs.emitABC(vm.OP_LOADBOOL, reg, 0, 1, line)
	fs.patchToHere(jmpTrue)
	fs.patchToHere(e.t)
	fs.emitABC(vm.OP_LOADBOOL, reg, 1, 0, line)
}

// exp2NextReg discharges e into a freshly allocated register and returns it.
func (c *compilerState) exp2NextReg(fs *funcState, e *expDesc, line int) int {
	c.dischargeVars(fs, e, line)
	reg := fs.allocReg()
	c.dischargeToReg(fs, e, reg, line)
	return reg
}

// exp2AnyReg returns a register holding e's value, reusing e's own register
// if it already has one fixed (avoids a redundant MOVE).
func (c *compilerState) exp2AnyReg(fs *funcState, e *expDesc, line int) int {
	c.dischargeVars(fs, e, line)
	if e.kind == eNonReloc || e.kind == eLocal {
		return e.info
	}
	return c.exp2NextReg(fs, e, line)
}

// exp2RK returns an RK-encoded operand (register or, for constants small
// enough, a constant-table index with the is-constant bit set).
func (c *compilerState) exp2RK(fs *funcState, e *expDesc, line int) int {
	c.dischargeVars(fs, e, line)
	switch e.kind {
	case eNil:
		idx, _ := fs.proto.AddConstant(nil)
		return vm.AsConstant(idx)
	case eTrue:
		idx, _ := fs.proto.AddConstant(true)
		return vm.AsConstant(idx)
	case eFalse:
		idx, _ := fs.proto.AddConstant(false)
		return vm.AsConstant(idx)
	case eConst:
		if e.info <= 0xFF {
			return vm.AsConstant(e.info)
		}
	}
	return c.exp2AnyReg(fs, e, line)
}

// rkToAnyReg materializes an RK-encoded operand (as produced by exp2RK, or
// stored in an eIndexed expDesc's aux) into a real register, emitting LOADK
// if it was constant-flagged. Needed wherever the destination ABC field
// can't carry the RK is-constant bit — see emitBinop's doc comment on the
// B/C asymmetry, which SETTABLE/SETTABUP's key operand shares.
func (c *compilerState) rkToAnyReg(fs *funcState, rk int, line int) int {
	if !vm.IsConstant(rk) {
		return rk
	}
	reg := fs.allocReg()
	fs.emitABx(vm.OP_LOADK, reg, vm.ConstantIndex(rk), line)
	return reg
}

// dischargeVars resolves eIndexed/eCall/eVararg/eRelation into the register
// each ultimately occupies, the generalization of the teacher's
// cg_nameExp/cg_tableAccessExp dispatch.
func (c *compilerState) dischargeVars(fs *funcState, e *expDesc, line int) {
	// indexed/local/upval/const already describe their value lazily;
	// materialization happens in dischargeToReg on demand. Nothing eager
	// is required here beyond keeping the kind intact.
	_ = fs
	_ = line
	_ = e
}
