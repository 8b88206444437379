package compiler

import "github.com/lollipopkit/luavm/vm"

// noJump is the sentinel "end of chain" value, the same convention
// lparser.c's NO_JUMP/real Lua use: a jump list is a linked chain threaded
// through each JMP instruction's own sBx field, terminated by noJump rather
// than a separate slice, so patching the whole chain to one target is O(n)
// without extra allocation.
const noJump = -1

func (fs *funcState) emitJump(line int) int {
	return fs.emitAsBx(vm.OP_JMP, 0, noJump, line)
}

// concatJump appends list2 onto the end of jump-chain list1 and returns the
// combined chain's head.
func (fs *funcState) concatJump(list1, list2 int) int {
	if list2 == noJump {
		return list1
	}
	if list1 == noJump {
		return list2
	}
	p := list1
	for {
		next := fs.jumpTarget(p)
		if next == noJump {
			break
		}
		p = next
	}
	fs.patchJumpTo(p, list2)
	return list1
}

// jumpTarget reads the next link in the chain starting at instruction pc.
func (fs *funcState) jumpTarget(pc int) int {
	_, sbx := vm.Instruction(fs.proto.Code[pc]).AsBx()
	if sbx == noJump {
		return noJump
	}
	return pc + 1 + sbx
}

// patchJumpTo rewrites the sBx of the jump at pc (a JMP, or a FORPREP/
// FORLOOP/TFORLOOP, whose opcode is kept) to link to (or land on, if dest
// is absolute) the given destination pc. A jump beyond the signed 17-bit sBx
// range can't be encoded; that's a LongJump compile error (spec.md §4.3),
// raised via panic/recover the same way allocReg's ErrStackOverflow is
// (patchJumpTo has no error return, and is called from many places that
// don't either).
func (fs *funcState) patchJumpTo(pc, dest int) {
	inst := vm.Instruction(fs.proto.Code[pc])
	a, _ := inst.AsBx()
	sbx := dest - (pc + 1)
	if sbx < -vm.BiasSBx || sbx > vm.MaxArgBx-vm.BiasSBx {
		panic(&Error{Kind: ErrLongJump, Msg: "control structure too long"})
	}
	fs.patchInstruction(pc, vm.EncodeAsBx(inst.Opcode(), a, sbx))
}

// patchList patches every jump in the chain starting at list to target pc.
func (fs *funcState) patchList(list, target int) {
	for list != noJump {
		next := fs.jumpTarget(list)
		fs.patchJumpTo(list, target)
		list = next
	}
}

// patchToHere patches list to the current end of the instruction stream.
func (fs *funcState) patchToHere(list int) {
	fs.patchList(list, len(fs.proto.Code))
}
