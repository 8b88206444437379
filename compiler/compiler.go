package compiler

import (
	"github.com/lollipopkit/luavm/compiler/lexer"
	"github.com/lollipopkit/luavm/proto"
	"github.com/lollipopkit/luavm/vm"
)

// compilerState drives the lexer and funcState stack through one compile:
// the single-pass analogue of the teacher's Compile(chunk, chunkName) entry
// point plus parser.Parse, collapsed into one pass with no intermediate
// AST.
type compilerState struct {
	lex       *lexer.Lexer
	chunkName string
	fs        *funcState
	cur       lexer.Token
}

// Compile compiles a chunk of Lua source into a top-level Proto, the
// equivalent of the teacher's compiler.Compile but producing a proto.Proto
// instead of a binchunk.Prototype.
func Compile(source, chunkName string) (p *proto.Proto, err error) {
	defer func() {
		if r := recover(); r != nil {
			if ce, ok := r.(*Error); ok {
				err = ce
				return
			}
			panic(r)
		}
	}()

	c := &compilerState{lex: lexer.NewLexer(source, chunkName), chunkName: chunkName}
	if e := c.advance(); e != nil {
		return nil, e
	}

	fs := newFuncState(nil, chunkName, 0)
	fs.proto.IsVararg = true
	c.fs = fs
	// _ENV is the implicit upvalue every chunk captures for free-name
	// resolution, matching the teacher's code_gen.go GenProto convention.
	fs.upvals = append(fs.upvals, upvalDesc{name: "_ENV", inStack: false, index: 0})
	fs.proto.AddUpvalue("_ENV", false, 0)

	fs.enterBlock(false)
	if err := c.block(); err != nil {
		return nil, err
	}
	if c.cur.Kind != lexer.TOKEN_EOF {
		return nil, c.errorf(ErrParse, c.cur.Line, "'<eof>' expected near %s", c.cur.String())
	}
	fs.emitABC(vm.OP_RETURN, 0, 1, 0, c.cur.Line)
	if err := c.closeGotos(fs.leaveBlock()); err != nil {
		return nil, err
	}
	fs.proto.LastLineDefined = c.cur.Line
	fs.proto.MaxStackSize = fs.maxRegs + 2

	return fs.proto, nil
}

func (c *compilerState) advance() error {
	tok, err := c.lex.NextToken()
	if err != nil {
		return err
	}
	c.cur = tok
	return nil
}

func (c *compilerState) check(kind int) bool { return c.cur.Kind == kind }

func (c *compilerState) accept(kind int) (bool, error) {
	if c.cur.Kind != kind {
		return false, nil
	}
	if err := c.advance(); err != nil {
		return false, err
	}
	return true, nil
}

func (c *compilerState) expect(kind int) error {
	if c.cur.Kind != kind {
		return c.errorf(ErrParse, c.cur.Line, "'%s' expected near '%s'", lexer.TokenName(kind), c.cur.String())
	}
	return c.advance()
}

func (c *compilerState) expectIdentifier() (string, error) {
	if c.cur.Kind != lexer.TOKEN_IDENTIFIER {
		return "", c.errorf(ErrParse, c.cur.Line, "identifier expected near '%s'", c.cur.String())
	}
	name := c.cur.Value
	return name, c.advance()
}
