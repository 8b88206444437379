package compiler

import (
	"github.com/lollipopkit/luavm/proto"
	"github.com/lollipopkit/luavm/vm"
)

// localVar is a compile-time local variable descriptor: its live range
// within the enclosing function, grounded on the teacher's locVarInfo
// (compiler/codegen/func_info.go) and original_source's Local (locals.rs).
type localVar struct {
	name    string
	slot    int
	scopeLv int
}

// upvalDesc records how this function resolves one of its own upvalues:
// from a local slot in the immediately enclosing funcState (InStack) or
// from that function's own upvalue list.
type upvalDesc struct {
	name    string
	inStack bool
	index   int
}

// labelDesc/gotoDesc implement Lua's forward-goto resolution: a goto whose
// target label hasn't been seen yet waits in its block's gotos list until the block
// closes or the label appears.
type labelDesc struct {
	name    string
	pc      int
	nLocals int
	line    int
}

type gotoDesc struct {
	name    string
	pc      int
	nLocals int
	line    int
}

// blockScope tracks one nested { ... } scope: which locals it owns (for
// unwinding on exit) and where its break list and labels/gotos live.
type blockScope struct {
	parent       *blockScope
	isLoop       bool
	firstLocal   int
	breakJumps   []int
	labels       []labelDesc
	gotos        []gotoDesc
	hasUpvalCapture bool
}

// funcState is the compiler's per-function register allocator and code
// buffer, equivalent to the teacher's funcInfo (compiler/codegen/func_info.go)
// generalized to drive code generation directly from the parser instead of
// from a separately-built AST.
type funcState struct {
	parent *funcState
	proto  *proto.Proto

	locals   []localVar
	upvals   []upvalDesc
	usedRegs int
	maxRegs  int

	block *blockScope

	lastLine int
}

func newFuncState(parent *funcState, source string, line int) *funcState {
	return &funcState{
		parent: parent,
		proto: &proto.Proto{
			Source:      source,
			LineDefined: line,
		},
	}
}

func (fs *funcState) enterBlock(isLoop bool) {
	fs.block = &blockScope{parent: fs.block, isLoop: isLoop, firstLocal: len(fs.locals)}
}

// leaveBlock pops the block's locals and returns any break jumps / pending
// gotos that must now resolve against the parent scope.
func (fs *funcState) leaveBlock() *blockScope {
	b := fs.block
	fs.removeLocals(b.firstLocal)
	fs.block = b.parent
	return b
}

func (fs *funcState) removeLocals(down int) {
	fs.locals = fs.locals[:down]
}

/* registers */

func (fs *funcState) allocReg() int {
	r := fs.usedRegs
	fs.usedRegs++
	if fs.usedRegs > fs.maxRegs {
		fs.maxRegs = fs.usedRegs
	}
	if fs.usedRegs > 255 {
		panic(&Error{Kind: ErrStackOverflow, Msg: "too many local variables or temporaries"})
	}
	return r
}

func (fs *funcState) freeReg() {
	fs.usedRegs--
}

// freeTo truncates usedRegs back down to n, discarding any temporaries
// above it (e.g. after an expression's value has been consumed).
func (fs *funcState) freeTo(n int) {
	fs.usedRegs = n
}

/* locals */

func (fs *funcState) addLocal(name string) int {
	slot := fs.allocReg()
	fs.locals = append(fs.locals, localVar{name: name, slot: slot})
	return slot
}

// resolveLocal finds name among this function's own live locals, nearest
// scope first.
func (fs *funcState) resolveLocal(name string) (slot int, ok bool) {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return fs.locals[i].slot, true
		}
	}
	return 0, false
}

// resolveUpval implements the teacher's indexOfUpval recursive upvalue-chain
// resolution (compiler/codegen/func_info.go): if the parent function has
// name as a local, capture it directly (InStack); otherwise recurse into
// the parent's own upvalues so a deeply nested closure threads the capture
// through every enclosing function.
func (fs *funcState) resolveUpval(name string) (index int, ok bool) {
	for i, uv := range fs.upvals {
		if uv.name == name {
			return i, true
		}
	}
	if fs.parent == nil {
		return 0, false
	}
	if slot, found := fs.parent.resolveLocal(name); found {
		idx := fs.proto.AddUpvalue(name, true, slot)
		fs.upvals = append(fs.upvals, upvalDesc{name: name, inStack: true, index: slot})
		return idx, true
	}
	if pidx, found := fs.parent.resolveUpval(name); found {
		idx := fs.proto.AddUpvalue(name, false, pidx)
		fs.upvals = append(fs.upvals, upvalDesc{name: name, inStack: false, index: pidx})
		return idx, true
	}
	return 0, false
}

/* emit */

func (fs *funcState) emit(i vm.Instruction, line int) int {
	fs.proto.Code = append(fs.proto.Code, uint32(i))
	fs.proto.Lines = append(fs.proto.Lines, line)
	return len(fs.proto.Code) - 1
}

func (fs *funcState) emitABC(op, a, b, c, line int) int {
	return fs.emit(vm.EncodeABC(op, a, b, c), line)
}

func (fs *funcState) emitABx(op, a, bx, line int) int {
	return fs.emit(vm.EncodeABx(op, a, bx), line)
}

func (fs *funcState) emitAsBx(op, a, sbx, line int) int {
	return fs.emit(vm.EncodeAsBx(op, a, sbx), line)
}

func (fs *funcState) pc() int { return len(fs.proto.Code) - 1 }

func (fs *funcState) patchInstruction(pc int, i vm.Instruction) {
	fs.proto.Code[pc] = uint32(i)
}
