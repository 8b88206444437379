package compiler

import (
	"github.com/lollipopkit/luavm/compiler/lexer"
	"github.com/lollipopkit/luavm/vm"
)

// call parses and emits a function-call suffix: fn(args), fn"str" or
// fn{table}, grounded on the teacher's cg_exp.go prepFuncCall multi-return
// argument handling.
func (c *compilerState) call(fn expDesc, line int) (expDesc, error) {
	fnReg := c.exp2NextReg(c.fs, &fn, line)
	nargs, multiArg, err := c.callArgs()
	if err != nil {
		return expDesc{}, err
	}
	b := nargs + 1
	if multiArg {
		b = 0
	}
	pc := c.fs.emitABC(vm.OP_CALL, fnReg, b, 2, line)
	c.fs.freeTo(fnReg)
	return expDesc{kind: eCall, info: pc, t: noJump, f: noJump}, nil
}

// methodCall parses obj:name(args), emitting SELF to fetch the method with
// obj as an implicit first argument.
func (c *compilerState) methodCall(obj expDesc, name string, line int) (expDesc, error) {
	objReg := c.exp2AnyReg(c.fs, &obj, line)
	c.fs.freeTo(objReg)
	selfReg := c.fs.allocReg()
	c.fs.allocReg() // reserve obj's copy slot at selfReg+1
	kidx, _ := c.fs.proto.AddConstant(name)
	c.fs.emitABC(vm.OP_SELF, selfReg, objReg, vm.AsConstant(kidx), line)

	nargs, multiArg, err := c.callArgs()
	if err != nil {
		return expDesc{}, err
	}
	b := nargs + 2 // +1 for self, +1 for the B encoding bias
	if multiArg {
		b = 0
	}
	pc := c.fs.emitABC(vm.OP_CALL, selfReg, b, 2, line)
	c.fs.freeTo(selfReg)
	return expDesc{kind: eCall, info: pc, t: noJump, f: noJump}, nil
}

// callArgs parses the argument list and leaves each argument in its own
// freshly-allocated register, reporting whether the last argument is
// multi-valued (a call or `...`) so the caller can encode B=0.
func (c *compilerState) callArgs() (nargs int, multiArg bool, err error) {
	switch c.cur.Kind {
	case lexer.TOKEN_STRING:
		s := c.cur.Value
		line := c.cur.Line
		if err := c.advance(); err != nil {
			return 0, false, err
		}
		idx, _ := c.fs.proto.AddConstant(s)
		e := c.constExp(idx)
		c.exp2NextReg(c.fs, &e, line)
		return 1, false, nil
	case lexer.TOKEN_SEP_LCURLY:
		e, err := c.tableConstructor()
		if err != nil {
			return 0, false, err
		}
		c.exp2NextReg(c.fs, &e, c.cur.Line)
		return 1, false, nil
	case lexer.TOKEN_SEP_LPAREN:
		if err := c.advance(); err != nil {
			return 0, false, err
		}
		if ok, err := c.accept(lexer.TOKEN_SEP_RPAREN); err != nil {
			return 0, false, err
		} else if ok {
			return 0, false, nil
		}
		exps, err := c.exprList()
		if err != nil {
			return 0, false, err
		}
		if err := c.expect(lexer.TOKEN_SEP_RPAREN); err != nil {
			return 0, false, err
		}
		last := &exps[len(exps)-1]
		multiArg = last.kind == eCall || last.kind == eVararg
		for i := range exps {
			if i == len(exps)-1 && multiArg {
				c.setMultiRet(&exps[i])
				continue
			}
			c.exp2NextReg(c.fs, &exps[i], c.cur.Line)
		}
		return len(exps), multiArg, nil
	default:
		return 0, false, c.errorf(ErrParse, c.cur.Line, "function arguments expected")
	}
}

// setMultiRet rewrites a trailing call/vararg's result count to "all",
// matching the teacher's prepFuncCall(-1) convention for a tail argument.
func (c *compilerState) setMultiRet(e *expDesc) {
	inst := vm.Instruction(c.fs.proto.Code[e.info])
	a, b, _ := inst.ABC()
	c.fs.patchInstruction(e.info, vm.EncodeABC(inst.Opcode(), a, b, 0))
}

func (c *compilerState) exprList() ([]expDesc, error) {
	var out []expDesc
	e, err := c.expr()
	if err != nil {
		return nil, err
	}
	out = append(out, e)
	for {
		ok, err := c.accept(lexer.TOKEN_SEP_COMMA)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		e, err := c.expr()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// tableConstructor emits NEWTABLE plus a SETTABLE/SETLIST per field,
// grounded on the teacher's cg_exp.go cgTableConstructorExp (FieldsPerFlush
// batching of the array part).
func (c *compilerState) tableConstructor() (expDesc, error) {
	line := c.cur.Line
	if err := c.expect(lexer.TOKEN_SEP_LCURLY); err != nil {
		return expDesc{}, err
	}
	tabReg := c.fs.allocReg()
	pc := c.fs.emitABC(vm.OP_NEWTABLE, tabReg, 0, 0, line)

	arrIdx := 0
	pendingFlush := 0
	for !c.check(lexer.TOKEN_SEP_RCURLY) {
		if c.check(lexer.TOKEN_SEP_LBRACK) {
			if err := c.advance(); err != nil {
				return expDesc{}, err
			}
			keyExp, err := c.expr()
			if err != nil {
				return expDesc{}, err
			}
			if err := c.expect(lexer.TOKEN_SEP_RBRACK); err != nil {
				return expDesc{}, err
			}
			if err := c.expect(lexer.TOKEN_OP_ASSIGN); err != nil {
				return expDesc{}, err
			}
			valExp, err := c.expr()
			if err != nil {
				return expDesc{}, err
			}
			// SETTABLE's B (the key) has no RK-capable flag bit in this
			// repo's layout (see emitBinop's doc comment) — only C does,
			// so the key must land in a real register and only the value
			// may stay RK-encoded.
			kReg := c.exp2AnyReg(c.fs, &keyExp, line)
			vReg := c.exp2RK(c.fs, &valExp, line)
			c.fs.emitABC(vm.OP_SETTABLE, tabReg, kReg, vReg, line)
			c.fs.freeTo(tabReg + 1)
		} else if c.check(lexer.TOKEN_IDENTIFIER) {
			kind, err := c.lex.LookAhead()
			if err != nil {
				return expDesc{}, err
			}
			if kind == lexer.TOKEN_OP_ASSIGN {
				name := c.cur.Value
				if err := c.advance(); err != nil {
					return expDesc{}, err
				}
				if err := c.advance(); err != nil {
					return expDesc{}, err
				}
				valExp, err := c.expr()
				if err != nil {
					return expDesc{}, err
				}
				kidx, _ := c.fs.proto.AddConstant(name)
				keyExp := c.constExp(kidx)
				kReg := c.exp2AnyReg(c.fs, &keyExp, line)
				vReg := c.exp2RK(c.fs, &valExp, line)
				c.fs.emitABC(vm.OP_SETTABLE, tabReg, kReg, vReg, line)
				c.fs.freeTo(tabReg + 1)
			} else {
				arrIdx++
				pendingFlush++
				e, err := c.expr()
				if err != nil {
					return expDesc{}, err
				}
				c.exp2NextReg(c.fs, &e, line)
			}
		} else {
			arrIdx++
			pendingFlush++
			e, err := c.expr()
			if err != nil {
				return expDesc{}, err
			}
			c.exp2NextReg(c.fs, &e, line)
		}

		if pendingFlush == vm.FieldsPerFlush {
			c.fs.emitABC(vm.OP_SETLIST, tabReg, pendingFlush, arrIdx/vm.FieldsPerFlush, line)
			c.fs.freeTo(tabReg + 1)
			pendingFlush = 0
		}

		more, err := c.accept(lexer.TOKEN_SEP_COMMA)
		if err != nil {
			return expDesc{}, err
		}
		if !more {
			more, err = c.accept(lexer.TOKEN_SEP_SEMI)
			if err != nil {
				return expDesc{}, err
			}
		}
		if !more {
			break
		}
	}
	if err := c.expect(lexer.TOKEN_SEP_RCURLY); err != nil {
		return expDesc{}, err
	}
	if pendingFlush > 0 {
		c.fs.emitABC(vm.OP_SETLIST, tabReg, pendingFlush, (arrIdx-1)/vm.FieldsPerFlush+1, line)
		c.fs.freeTo(tabReg + 1)
	}
	_ = pc
	return expDesc{kind: eNonReloc, info: tabReg, t: noJump, f: noJump}, nil
}

// funcBody parses `(params) block end` for a function literal and emits a
// CLOSURE instruction in the enclosing function.
func (c *compilerState) funcBody(line int, isMethod bool) (expDesc, error) {
	parent := c.fs
	fs := newFuncState(parent, parent.chunkNameHint(), line)
	c.fs = fs
	fs.enterBlock(false)

	if isMethod {
		fs.addLocal("self")
		fs.proto.NumParams++
	}

	if err := c.expect(lexer.TOKEN_SEP_LPAREN); err != nil {
		return expDesc{}, err
	}
	for !c.check(lexer.TOKEN_SEP_RPAREN) {
		if c.check(lexer.TOKEN_VARARG) {
			if err := c.advance(); err != nil {
				return expDesc{}, err
			}
			fs.proto.IsVararg = true
			break
		}
		name, err := c.expectIdentifier()
		if err != nil {
			return expDesc{}, err
		}
		fs.addLocal(name)
		fs.proto.NumParams++
		more, err := c.accept(lexer.TOKEN_SEP_COMMA)
		if err != nil {
			return expDesc{}, err
		}
		if !more {
			break
		}
	}
	if err := c.expect(lexer.TOKEN_SEP_RPAREN); err != nil {
		return expDesc{}, err
	}

	if err := c.block(); err != nil {
		return expDesc{}, err
	}
	endLine := c.cur.Line
	if err := c.expect(lexer.TOKEN_KW_END); err != nil {
		return expDesc{}, err
	}
	fs.emitABC(vm.OP_RETURN, 0, 1, 0, endLine)
	if err := c.closeGotos(fs.leaveBlock()); err != nil {
		return expDesc{}, err
	}
	fs.proto.LastLineDefined = endLine
	fs.proto.MaxStackSize = fs.maxRegs + 2

	c.fs = parent
	idx := parent.proto.AddProto(fs.proto)
	dst := parent.fs_allocForClosure()
	parent.emitABx(vm.OP_CLOSURE, dst, idx, endLine)
	return expDesc{kind: eNonReloc, info: dst, t: noJump, f: noJump}, nil
}

func (fs *funcState) fs_allocForClosure() int { return fs.allocReg() }

// chunkNameHint lets nested functions share the enclosing chunk's source
// name for error messages without threading an extra parameter everywhere.
func (fs *funcState) chunkNameHint() string { return fs.proto.Source }
