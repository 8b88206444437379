package compiler

import (
	"github.com/lollipopkit/luavm/compiler/lexer"
	"github.com/lollipopkit/luavm/vm"
)

// blockFollows reports whether the current token ends a block, the same
// terminator set the teacher's parse_block.go checks for.
func (c *compilerState) blockFollows() bool {
	switch c.cur.Kind {
	case lexer.TOKEN_EOF, lexer.TOKEN_KW_END, lexer.TOKEN_KW_ELSE,
		lexer.TOKEN_KW_ELSEIF, lexer.TOKEN_KW_UNTIL:
		return true
	}
	return false
}

func (c *compilerState) block() error {
	for !c.blockFollows() {
		if c.check(lexer.TOKEN_KW_RETURN) {
			return c.returnStat()
		}
		if err := c.statement(); err != nil {
			return err
		}
	}
	return nil
}

func (c *compilerState) statement() error {
	line := c.cur.Line
	switch c.cur.Kind {
	case lexer.TOKEN_SEP_SEMI:
		return c.advance()
	case lexer.TOKEN_KW_BREAK:
		return c.breakStat(line)
	case lexer.TOKEN_SEP_LABEL:
		return c.labelStat()
	case lexer.TOKEN_KW_GOTO:
		return c.gotoStat()
	case lexer.TOKEN_KW_DO:
		return c.doStat()
	case lexer.TOKEN_KW_WHILE:
		return c.whileStat()
	case lexer.TOKEN_KW_REPEAT:
		return c.repeatStat()
	case lexer.TOKEN_KW_IF:
		return c.ifStat()
	case lexer.TOKEN_KW_FOR:
		return c.forStat()
	case lexer.TOKEN_KW_FUNCTION:
		return c.funcStat()
	case lexer.TOKEN_KW_LOCAL:
		return c.localStat()
	default:
		return c.assignOrCallStat()
	}
}

func (c *compilerState) doStat() error {
	if err := c.advance(); err != nil {
		return err
	}
	c.fs.enterBlock(false)
	if err := c.block(); err != nil {
		return err
	}
	c.closeBlockUpvals()
	b := c.fs.leaveBlock()
	if err := c.closeGotos(b); err != nil {
		return err
	}
	return c.expect(lexer.TOKEN_KW_END)
}

// closeBlockUpvals emits nothing. The compiler never emits a JMP with A!=0
// (the VM's close-upvalues form), so a local captured by a closure is not
// closed when its block exits; open upvalues are closed only when the
// enclosing function returns or tail-calls.
func (c *compilerState) closeBlockUpvals() {
	if c.fs.block.firstLocal > 0 {
		// no-op
	}
}

func (c *compilerState) breakStat(line int) error {
	if err := c.advance(); err != nil {
		return err
	}
	b := c.fs.block
	for b != nil && !b.isLoop {
		b = b.parent
	}
	if b == nil {
		return c.errorf(ErrBreakOutsideLoop, line, "break outside a loop")
	}
	jmp := c.fs.emitJump(line)
	b.breakJumps = append(b.breakJumps, jmp)
	return nil
}

func (c *compilerState) labelStat() error {
	line := c.cur.Line
	if err := c.advance(); err != nil {
		return err
	}
	name, err := c.expectIdentifier()
	if err != nil {
		return err
	}
	if err := c.expect(lexer.TOKEN_SEP_LABEL); err != nil {
		return err
	}
	for _, l := range c.fs.block.labels {
		if l.name == name {
			return c.errorf(ErrLabelRedefinition, line, "label '%s' already defined", name)
		}
	}
	lbl := labelDesc{name: name, pc: len(c.fs.proto.Code), nLocals: len(c.fs.locals), line: line}
	c.fs.block.labels = append(c.fs.block.labels, lbl)

	// A label can satisfy gotos that ran ahead of it and parked themselves
	// in this block waiting for a match (forward goto), including ones
	// bubbled up here from a nested block that has since closed.
	remaining := c.fs.block.gotos[:0]
	for _, g := range c.fs.block.gotos {
		if g.name != name {
			remaining = append(remaining, g)
			continue
		}
		// A local declared between the goto and this label is live at the
		// label but wasn't at the goto site: jumping here would skip its
		// initialization (spec.md §4.3 "Labels and goto").
		if lbl.nLocals > g.nLocals {
			return c.errorf(ErrGotoIntoScope, g.line, "<goto %s> jumps into the scope of a local variable", name)
		}
		c.fs.patchJumpTo(g.pc, lbl.pc)
	}
	c.fs.block.gotos = remaining
	return nil
}

func (c *compilerState) gotoStat() error {
	line := c.cur.Line
	if err := c.advance(); err != nil {
		return err
	}
	name, err := c.expectIdentifier()
	if err != nil {
		return err
	}
	for b := c.fs.block; b != nil; b = b.parent {
		for _, l := range b.labels {
			if l.name == name {
				jmp := c.fs.emitJump(line)
				c.fs.patchJumpTo(jmp, l.pc)
				return nil
			}
		}
	}
	// No visible label yet: park this goto in the current block. It is
	// resolved either by a later labelStat() in the same block, or by
	// closeGotos bubbling it up to an enclosing block as blocks close;
	// an unmatched goto that reaches the function's outermost block is
	// a compile error (see closeGotos).
	jmp := c.fs.emitJump(line)
	c.fs.block.gotos = append(c.fs.block.gotos, gotoDesc{name: name, pc: jmp, nLocals: len(c.fs.locals), line: line})
	return nil
}

// closeGotos is called after every leaveBlock with the block just left: any
// goto that block never matched against a label is either handed up to the
// now-current enclosing block (where a later label, or a further bubble-up,
// may still resolve it) or, if there is no enclosing block left within this
// function, reported as unmatched.
func (c *compilerState) closeGotos(b *blockScope) error {
	if len(b.gotos) == 0 {
		return nil
	}
	if c.fs.block == nil {
		g := b.gotos[0]
		return c.errorf(ErrUnmatchedGoto, g.line, "no visible label '%s' for <goto>", g.name)
	}
	c.fs.block.gotos = append(c.fs.block.gotos, b.gotos...)
	return nil
}

func (c *compilerState) whileStat() error {
	line := c.cur.Line
	if err := c.advance(); err != nil {
		return err
	}
	condStart := c.fs.pc() + 1
	cond, err := c.expr()
	if err != nil {
		return err
	}
	if err := c.expect(lexer.TOKEN_KW_DO); err != nil {
		return err
	}
	c.goIfFalse(&cond, line)
	exitJumps := cond.f

	c.fs.enterBlock(true)
	if err := c.block(); err != nil {
		return err
	}
	b := c.fs.leaveBlock()
	if err := c.closeGotos(b); err != nil {
		return err
	}

	backJump := c.fs.emitJump(c.cur.Line)
	c.fs.patchJumpTo(backJump, condStart)
	c.fs.patchToHere(exitJumps)
	for _, j := range b.breakJumps {
		c.fs.patchToHere(j)
	}
	return c.expect(lexer.TOKEN_KW_END)
}

func (c *compilerState) repeatStat() error {
	if err := c.advance(); err != nil {
		return err
	}
	start := c.fs.pc() + 1
	c.fs.enterBlock(true)
	if err := c.block(); err != nil {
		return err
	}
	if err := c.expect(lexer.TOKEN_KW_UNTIL); err != nil {
		return err
	}
	line := c.cur.Line
	cond, err := c.expr()
	if err != nil {
		return err
	}
	b := c.fs.leaveBlock()
	if err := c.closeGotos(b); err != nil {
		return err
	}
	c.goIfFalse(&cond, line)
	c.fs.patchJumpTo(cond.f, start)
	c.fs.patchToHere(cond.t)
	for _, j := range b.breakJumps {
		c.fs.patchToHere(j)
	}
	return nil
}

func (c *compilerState) ifStat() error {
	var endJumps int = noJump
	if err := c.advance(); err != nil {
		return err
	}
	for {
		line := c.cur.Line
		cond, err := c.expr()
		if err != nil {
			return err
		}
		if err := c.expect(lexer.TOKEN_KW_THEN); err != nil {
			return err
		}
		c.goIfFalse(&cond, line)
		falseJumps := cond.f

		c.fs.enterBlock(false)
		if err := c.block(); err != nil {
			return err
		}
		if err := c.closeGotos(c.fs.leaveBlock()); err != nil {
			return err
		}

		if c.check(lexer.TOKEN_KW_ELSE) || c.check(lexer.TOKEN_KW_ELSEIF) {
			j := c.fs.emitJump(c.cur.Line)
			endJumps = c.fs.concatJump(endJumps, j)
		}
		c.fs.patchToHere(falseJumps)

		if c.check(lexer.TOKEN_KW_ELSEIF) {
			if err := c.advance(); err != nil {
				return err
			}
			continue
		}
		break
	}
	if ok, err := c.accept(lexer.TOKEN_KW_ELSE); err != nil {
		return err
	} else if ok {
		c.fs.enterBlock(false)
		if err := c.block(); err != nil {
			return err
		}
		if err := c.closeGotos(c.fs.leaveBlock()); err != nil {
			return err
		}
	}
	c.fs.patchToHere(endJumps)
	return c.expect(lexer.TOKEN_KW_END)
}

func (c *compilerState) forStat() error {
	if err := c.advance(); err != nil {
		return err
	}
	name, err := c.expectIdentifier()
	if err != nil {
		return err
	}
	if c.check(lexer.TOKEN_OP_ASSIGN) {
		return c.numericForStat(name)
	}
	return c.genericForStat(name)
}

func (c *compilerState) numericForStat(name string) error {
	line := c.cur.Line
	if err := c.expect(lexer.TOKEN_OP_ASSIGN); err != nil {
		return err
	}
	initExp, err := c.expr()
	if err != nil {
		return err
	}
	if err := c.expect(lexer.TOKEN_SEP_COMMA); err != nil {
		return err
	}
	limitExp, err := c.expr()
	if err != nil {
		return err
	}
	hasStep, err := c.accept(lexer.TOKEN_SEP_COMMA)
	if err != nil {
		return err
	}
	stepExp := expDesc{kind: eConst, t: noJump, f: noJump}
	if hasStep {
		stepExp, err = c.expr()
		if err != nil {
			return err
		}
	} else {
		idx, _ := c.fs.proto.AddConstant(int64(1))
		stepExp = c.constExp(idx)
	}
	if err := c.expect(lexer.TOKEN_KW_DO); err != nil {
		return err
	}

	base := c.fs.usedRegs
	c.exp2NextReg(c.fs, &initExp, line)
	c.exp2NextReg(c.fs, &limitExp, line)
	c.exp2NextReg(c.fs, &stepExp, line)

	c.fs.enterBlock(true)
	c.fs.addLocal(name)

	prep := c.fs.emitAsBx(vm.OP_FORPREP, base, noJump, line)
	if err := c.block(); err != nil {
		return err
	}
	b := c.fs.leaveBlock()
	if err := c.closeGotos(b); err != nil {
		return err
	}

	loopLine := c.cur.Line
	loopPC := c.fs.emitAsBx(vm.OP_FORLOOP, base, noJump, loopLine)
	c.fs.patchJumpTo(prep, loopPC)
	c.fs.patchJumpTo(loopPC, prep+1)
	for _, j := range b.breakJumps {
		c.fs.patchToHere(j)
	}
	c.fs.freeTo(base)
	return c.expect(lexer.TOKEN_KW_END)
}

func (c *compilerState) genericForStat(first string) error {
	line := c.cur.Line
	names := []string{first}
	for {
		ok, err := c.accept(lexer.TOKEN_SEP_COMMA)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		n, err := c.expectIdentifier()
		if err != nil {
			return err
		}
		names = append(names, n)
	}
	if err := c.expect(lexer.TOKEN_KW_IN); err != nil {
		return err
	}
	exps, err := c.exprList()
	if err != nil {
		return err
	}
	if err := c.expect(lexer.TOKEN_KW_DO); err != nil {
		return err
	}

	base := c.fs.usedRegs
	for i := 0; i < 3; i++ {
		if i < len(exps) {
			c.exp2NextReg(c.fs, &exps[i], line)
		} else {
			e := nilExp()
			c.exp2NextReg(c.fs, &e, line)
		}
	}

	c.fs.enterBlock(true)
	for _, n := range names {
		c.fs.addLocal(n)
	}

	jmpToCall := c.fs.emitJump(line)
	bodyStart := c.fs.pc() + 1
	if err := c.block(); err != nil {
		return err
	}
	b := c.fs.leaveBlock()
	if err := c.closeGotos(b); err != nil {
		return err
	}

	c.fs.patchToHere(jmpToCall)
	c.fs.emitABC(vm.OP_TFORCALL, base, 0, len(names), c.cur.Line)
	loopPC := c.fs.emitAsBx(vm.OP_TFORLOOP, base+1, noJump, c.cur.Line)
	c.fs.patchJumpTo(loopPC, bodyStart)
	for _, j := range b.breakJumps {
		c.fs.patchToHere(j)
	}
	c.fs.freeTo(base)
	return c.expect(lexer.TOKEN_KW_END)
}

func (c *compilerState) funcStat() error {
	line := c.cur.Line
	if err := c.advance(); err != nil {
		return err
	}
	name, err := c.expectIdentifier()
	if err != nil {
		return err
	}
	target, err := c.nameTarget(name)
	if err != nil {
		return err
	}
	isMethod := false
	for c.check(lexer.TOKEN_SEP_DOT) || c.check(lexer.TOKEN_SEP_COLON) {
		isMethod = c.check(lexer.TOKEN_SEP_COLON)
		if err := c.advance(); err != nil {
			return err
		}
		field, err := c.expectIdentifier()
		if err != nil {
			return err
		}
		target, err = c.indexField(target, field, line)
		if err != nil {
			return err
		}
		if isMethod {
			break
		}
	}
	fn, err := c.funcBody(line, isMethod)
	if err != nil {
		return err
	}
	return c.assignTo(target, fn, line)
}

// nameTarget resolves a bare identifier to an assignable expDesc the same
// way nameExpr() resolves it for reads.
func (c *compilerState) nameTarget(name string) (expDesc, error) {
	if slot, ok := c.fs.resolveLocal(name); ok {
		return c.localExp(slot), nil
	}
	if idx, ok := c.fs.resolveUpval(name); ok {
		return expDesc{kind: eUpval, info: idx, t: noJump, f: noJump}, nil
	}
	envIdx, _ := c.fs.resolveUpval("_ENV")
	kidx, _ := c.fs.proto.AddConstant(name)
	return expDesc{kind: eIndexed, info: envIdx, aux: vm.AsConstant(kidx), tIsUpval: true, t: noJump, f: noJump}, nil
}

func (c *compilerState) localStat() error {
	line := c.cur.Line
	if err := c.advance(); err != nil {
		return err
	}
	if c.check(lexer.TOKEN_KW_FUNCTION) {
		if err := c.advance(); err != nil {
			return err
		}
		name, err := c.expectIdentifier()
		if err != nil {
			return err
		}
		// declare before the body so the function can recurse, per real
		// Lua's `local function` sugar.
		slot := c.fs.addLocal(name)
		fn, err := c.funcBody(line, false)
		if err != nil {
			return err
		}
		if err := c.assignTo(c.localExp(slot), fn, line); err != nil {
			return err
		}
		c.fs.freeTo(slot + 1)
		return nil
	}

	var names []string
	for {
		n, err := c.expectIdentifier()
		if err != nil {
			return err
		}
		names = append(names, n)
		// attribs (<const>/<close>) are parsed and ignored: neither affects
		// register allocation in this subset.
		if c.check(lexer.TOKEN_OP_LT) {
			if err := c.advance(); err != nil {
				return err
			}
			if _, err := c.expectIdentifier(); err != nil {
				return err
			}
			if err := c.expect(lexer.TOKEN_OP_GT); err != nil {
				return err
			}
		}
		ok, err := c.accept(lexer.TOKEN_SEP_COMMA)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
	}

	var exps []expDesc
	if ok, err := c.accept(lexer.TOKEN_OP_ASSIGN); err != nil {
		return err
	} else if ok {
		exps, err = c.exprList()
		if err != nil {
			return err
		}
	}

	base := c.fs.usedRegs
	assignExprsToRegs(c, names, exps, line)
	for _, n := range names {
		_ = n
	}
	for i, n := range names {
		_ = i
		c.fs.locals = append(c.fs.locals, localVar{name: n, slot: base + i})
	}
	return nil
}

// assignExprsToRegs evaluates an expression list into exactly len(names)
// fresh registers starting at c.fs.usedRegs, nil-padding short lists and
// spreading the last expr's multiple results when it is a call/vararg,
// matching Lua's multiple-assignment adjustment rule.
func assignExprsToRegs(c *compilerState, names []string, exps []expDesc, line int) {
	n := len(names)
	if len(exps) == 0 {
		for i := 0; i < n; i++ {
			e := nilExp()
			c.exp2NextReg(c.fs, &e, line)
		}
		return
	}
	for i := 0; i < len(exps); i++ {
		last := i == len(exps)-1
		if last && (exps[i].kind == eCall || exps[i].kind == eVararg) && n > len(exps) {
			want := n - len(exps) + 1
			c.setMultiRetN(&exps[i], want)
			c.materializeMultiRet(&exps[i], want, line)
			continue
		}
		if i < n {
			c.exp2NextReg(c.fs, &exps[i], line)
		} else {
			c.exp2NextReg(c.fs, &exps[i], line)
			c.fs.freeReg()
		}
	}
	for i := len(exps); i < n; i++ {
		e := nilExp()
		c.exp2NextReg(c.fs, &e, line)
	}
}

func (c *compilerState) setMultiRetN(e *expDesc, want int) {
	if e.kind != eCall {
		return
	}
	inst := vm.Instruction(c.fs.proto.Code[e.info])
	a, b, _ := inst.ABC()
	c.fs.patchInstruction(e.info, vm.EncodeABC(inst.Opcode(), a, b, want+1))
}

func (c *compilerState) materializeMultiRet(e *expDesc, want int, line int) {
	if e.kind == eCall || e.kind == eVararg {
		for i := 0; i < want; i++ {
			c.fs.allocReg()
		}
		return
	}
	for i := 0; i < want; i++ {
		c.exp2NextReg(c.fs, e, line)
	}
}

func (c *compilerState) assignOrCallStat() error {
	line := c.cur.Line
	first, err := c.suffixedExpr()
	if err != nil {
		return err
	}
	if c.check(lexer.TOKEN_OP_ASSIGN) || c.check(lexer.TOKEN_SEP_COMMA) {
		targets := []expDesc{first}
		for c.check(lexer.TOKEN_SEP_COMMA) {
			if err := c.advance(); err != nil {
				return err
			}
			t, err := c.suffixedExpr()
			if err != nil {
				return err
			}
			targets = append(targets, t)
		}
		if err := c.expect(lexer.TOKEN_OP_ASSIGN); err != nil {
			return err
		}
		exps, err := c.exprList()
		if err != nil {
			return err
		}
		return c.multiAssign(targets, exps, line)
	}
	if first.kind != eCall {
		return c.errorf(ErrOrphanExp, line, "syntax error: expression used as a statement")
	}
	return nil
}

func (c *compilerState) multiAssign(targets []expDesc, exps []expDesc, line int) error {
	base := c.fs.usedRegs
	assignExprsToRegs(c, placeholderNames(len(targets)), exps, line)
	for i, t := range targets {
		src := expDesc{kind: eNonReloc, info: base + i, t: noJump, f: noJump}
		if err := c.assignTo(t, src, line); err != nil {
			return err
		}
	}
	c.fs.freeTo(base)
	return nil
}

func placeholderNames(n int) []string {
	names := make([]string, n)
	return names
}

// assignTo stores src into target, dispatching on the target's kind the
// way real Lua's assignment lowering does (local MOVE, upvalue SETUPVAL,
// indexed SETTABLE/SETTABUP).
func (c *compilerState) assignTo(target, src expDesc, line int) error {
	switch target.kind {
	case eLocal:
		reg := c.exp2AnyReg(c.fs, &src, line)
		if reg != target.info {
			c.fs.emitABC(vm.OP_MOVE, target.info, reg, 0, line)
		}
	case eUpval:
		reg := c.exp2AnyReg(c.fs, &src, line)
		c.fs.emitABC(vm.OP_SETUPVAL, reg, target.info, 0, line)
	case eIndexed:
		// The key (target.aux) may be RK-encoded, but SETTABLE/SETTABUP's B
		// field can't carry the is-constant bit — only C can (same asymmetry
		// emitBinop works around) — so the key must land in a real register
		// and only the value may stay RK-encoded.
		keyReg := c.rkToAnyReg(c.fs, target.aux, line)
		rk := c.exp2RK(c.fs, &src, line)
		op := vm.OP_SETTABLE
		if target.tIsUpval {
			op = vm.OP_SETTABUP
		}
		c.fs.emitABC(op, target.info, keyReg, rk, line)
	default:
		return c.errorf(ErrParse, line, "cannot assign to this expression")
	}
	return nil
}

func (c *compilerState) returnStat() error {
	line := c.cur.Line
	if err := c.advance(); err != nil {
		return err
	}
	if c.blockFollows() || c.check(lexer.TOKEN_SEP_SEMI) {
		c.fs.emitABC(vm.OP_RETURN, 0, 1, 0, line)
		c.accept(lexer.TOKEN_SEP_SEMI)
		return nil
	}
	exps, err := c.exprList()
	if err != nil {
		return err
	}
	base := c.fs.usedRegs
	last := &exps[len(exps)-1]
	multi := last.kind == eCall || last.kind == eVararg
	for i := range exps {
		if i == len(exps)-1 && multi {
			c.setMultiRet(&exps[i])
			continue
		}
		c.exp2NextReg(c.fs, &exps[i], line)
	}
	b := len(exps) + 1
	if multi {
		b = 0
	}
	c.fs.emitABC(vm.OP_RETURN, base, b, 0, line)
	c.accept(lexer.TOKEN_SEP_SEMI)
	return nil
}
