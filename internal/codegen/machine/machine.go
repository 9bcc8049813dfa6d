package machine

import (
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/ast"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"
)

// Program is the whole machine-code translation unit: every function's
// lowered body plus the global declarations carried through unchanged
// from the SSA Program, mirroring MachineProgram.
type Program struct {
	Funcs   []*Function
	Globals []*ast.Decl
}

// Function is one lowered function body: an arena of blocks, the
// frame/virtual-register bookkeeping the allocator and emitter need, and
// the deferred sp-argument-offset fixups applied once the final frame
// size is known (SPEC_FULL.md §4.7/§4.9), mirroring MachineFunc.
type Function struct {
	Source *ssa.Function

	Entry *Block

	blocks pool[Block]
	insts  pool[Instruction]

	nextBlockID int

	VirtualMax uint32
	StackSize  uint32

	UsedCalleeSaved map[Reg]bool
	UseLR           bool

	SPArgFixup []*Instruction
}

func NewFunction(src *ssa.Function) *Function {
	return &Function{
		Source:          src,
		blocks:          newPool[Block](),
		insts:           newPool[Instruction](),
		UsedCalleeSaved: make(map[Reg]bool),
	}
}

func (f *Function) NewBlock() *Block {
	b, _ := f.blocks.allocate()
	b.id = f.nextBlockID
	f.nextBlockID++
	b.Func = f
	return b
}

func (f *Function) NewInst(tag Tag) *Instruction {
	inst, _ := f.insts.allocate()
	inst.Tag = tag
	return inst
}

func (f *Function) NewVirtual() Operand {
	v := V(int32(f.VirtualMax))
	f.VirtualMax++
	return v
}

// Blocks returns every block allocated for f, in allocation (== source
// SSA block) order.
func (f *Function) Blocks() []*Block {
	out := make([]*Block, f.nextBlockID)
	for i := range out {
		out[i] = f.blocks.view(i)
	}
	return out
}

// Block is a basic block of machine instructions, mirroring MachineBB:
// up to two successors (mirroring a conditional branch's true/false
// targets), liveness sets filled in by internal/codegen/regalloc.
type Block struct {
	id   int
	Func *Function

	Source *ssa.Block

	head, tail *Instruction

	Preds []*Block
	Succs [2]*Block

	// ControlTransfer points at the first instruction of this block's
	// terminator sequence (a Compare before a Branch, the move into r0
	// before a value-returning Return, or the Branch/Jump/Return itself),
	// the insertion point generate_imm_operand and the
	// phi-resolution parallel-move lowering use so materialized constants
	// and phi moves land before control leaves the block.
	ControlTransfer *Instruction

	LiveUse map[Operand]bool
	Def     map[Operand]bool
	LiveIn  map[Operand]bool
	LiveOut map[Operand]bool
}

func (b *Block) First() *Instruction { return b.head }
func (b *Block) Last() *Instruction  { return b.tail }

// ID returns the block's number, used by the emitter for its _BB_<id>
// label (SPEC_FULL.md §6) and by tests/diagnostics.
func (b *Block) ID() int { return b.id }

func (b *Block) Instructions() []*Instruction {
	var out []*Instruction
	for i := b.head; i != nil; i = i.next {
		out = append(out, i)
	}
	return out
}

func (b *Block) PushBack(inst *Instruction) {
	inst.Block = b
	inst.prev = b.tail
	inst.next = nil
	if b.tail != nil {
		b.tail.next = inst
	} else {
		b.head = inst
	}
	b.tail = inst
}

func (b *Block) PushFront(inst *Instruction) {
	inst.Block = b
	inst.next = b.head
	inst.prev = nil
	if b.head != nil {
		b.head.prev = inst
	} else {
		b.tail = inst
	}
	b.head = inst
}

func (b *Block) InsertBefore(mark, inst *Instruction) {
	inst.Block = b
	inst.prev = mark.prev
	inst.next = mark
	if mark.prev != nil {
		mark.prev.next = inst
	} else {
		b.head = inst
	}
	mark.prev = inst
}

func (b *Block) InsertAfter(mark, inst *Instruction) {
	inst.Block = b
	inst.next = mark.next
	inst.prev = mark
	if mark.next != nil {
		mark.next.prev = inst
	} else {
		b.tail = inst
	}
	mark.next = inst
}

func (b *Block) Remove(inst *Instruction) {
	if inst.prev != nil {
		inst.prev.next = inst.next
	} else if b.head == inst {
		b.head = inst.next
	}
	if inst.next != nil {
		inst.next.prev = inst.prev
	} else if b.tail == inst {
		b.tail = inst.prev
	}
	inst.prev, inst.next = nil, nil
}

// Clear empties the instruction list (used by the scheduler, which
// rebuilds it in dependency-respecting order).
func (b *Block) Clear() {
	b.head, b.tail = nil, nil
	b.ControlTransfer = nil
}
