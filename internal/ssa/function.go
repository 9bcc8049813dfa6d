package ssa

import "github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/ast"

// Function is one SSA-form function body: an arena of blocks plus the
// arenas (pools) for every Value kind it owns, mirroring the teacher's
// per-function pool ownership in ssa/func.go so that resetting a builder
// between functions reuses backing storage (see pool.go).
type Function struct {
	Decl *ast.Func

	Entry *Block

	blocks    pool[Block]
	instrs    pool[Instruction]
	consts    pool[ConstValue]
	globals   pool[GlobalRef]
	params    pool[ParamRef]

	constIndex map[int32]*ConstValue // interning table, see Const

	nextValueID ValueID
	nextBlockID int
}

// NewFunction allocates an empty Function for decl, ready to receive
// blocks from a Builder.
func NewFunction(decl *ast.Func) *Function {
	return &Function{
		Decl:       decl,
		blocks:     newPool[Block](),
		instrs:     newPool[Instruction](),
		consts:     newPool[ConstValue](),
		globals:    newPool[GlobalRef](),
		params:     newPool[ParamRef](),
		constIndex: make(map[int32]*ConstValue),
	}
}

// NewBlock allocates a fresh block named name (names are for readability
// in dumps/tests only, not semantically load-bearing).
func (f *Function) NewBlock(name string) *Block {
	b, _ := f.blocks.allocate()
	b.id = f.nextBlockID
	f.nextBlockID++
	b.Name = name
	b.RPONum = -1
	b.Func = f
	return b
}

// NewInst allocates a zeroed instruction of the given opcode inserted into
// no block yet; the caller links it via Block.PushBack/PushFront.
func (f *Function) NewInst(op Opcode) *Instruction {
	inst, _ := f.instrs.allocate()
	inst.id = f.nextValueID
	f.nextValueID++
	inst.Op = op
	return inst
}

// Const returns the interned ConstValue for imm, allocating it on first
// use within this function.
func (f *Function) Const(imm int32) *ConstValue {
	if c, ok := f.constIndex[imm]; ok {
		return c
	}
	c, _ := f.consts.allocate()
	c.id = f.nextValueID
	f.nextValueID++
	c.Imm = imm
	f.constIndex[imm] = c
	return c
}

// Global returns a fresh GlobalRef for decl (not interned: isel decides
// whether repeated references share a materialized address register).
func (f *Function) Global(decl *ast.Decl) *GlobalRef {
	g, _ := f.globals.allocate()
	g.id = f.nextValueID
	f.nextValueID++
	g.Decl = decl
	return g
}

// Param returns a fresh ParamRef for decl.
func (f *Function) Param(decl *ast.Decl) *ParamRef {
	p, _ := f.params.allocate()
	p.id = f.nextValueID
	f.nextValueID++
	p.Decl = decl
	return p
}

// Blocks returns every block in allocation order (not necessarily a valid
// traversal order; use pass.ReversePostorder for that).
func (f *Function) Blocks() []*Block {
	out := make([]*Block, f.nextBlockID)
	for i := range out {
		out[i] = f.blocks.view(i)
	}
	return out
}
