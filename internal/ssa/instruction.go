package ssa

import "github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/ast"

// Opcode tags an Instruction's kind. One flat tagged struct stands in for
// original_source/src/structure/ir.hpp's per-opcode class hierarchy, in the
// same spirit as the teacher's ssa/instructions.go: a single Instruction
// type with opcode-specific fields populated according to Opcode.
type Opcode int

const (
	OpBinary Opcode = iota
	OpUnary
	OpLoad
	OpStore
	OpGetElementPtr
	OpAlloca
	OpPhi
	OpMemPhi
	OpMemOp
	OpCall
	OpJump
	OpBranch
	OpReturn
)

func (op Opcode) String() string {
	switch op {
	case OpBinary:
		return "binary"
	case OpUnary:
		return "unary"
	case OpLoad:
		return "load"
	case OpStore:
		return "store"
	case OpGetElementPtr:
		return "getelementptr"
	case OpAlloca:
		return "alloca"
	case OpPhi:
		return "phi"
	case OpMemPhi:
		return "memphi"
	case OpMemOp:
		return "memop"
	case OpCall:
		return "call"
	case OpJump:
		return "jump"
	case OpBranch:
		return "branch"
	case OpReturn:
		return "return"
	default:
		return "?"
	}
}

// BinOp mirrors ast.BinOp restricted to the subset legal on SSA values
// (the frontend has already lowered && / || to branches by the time the
// builder emits a Binary instruction; % has already been lowered to the
// a - b*(a/b) sequence per SPEC_FULL.md §4.1).
type BinOp = ast.BinOp

// Instruction is one SSA instruction. It is simultaneously a Value (its
// result, when it has one) and a node in its owning Block's intrusive
// instruction list.
type Instruction struct {
	valueBase

	Op    Opcode
	Block *Block

	prev, next *Instruction // intrusive position within Block.instructions

	// Binary / comparison.
	BinOp       BinOp
	LHS, RHS    Use
	CondResult  bool // true if this Binary's result is a 0/1 comparison outcome

	// Unary (negation, logical not).
	UnOp    ast.UnOp
	Operand Use

	// Load: reads *Addr.
	// Store: writes Value into *Addr.
	Addr  Use
	Value Use

	// GetElementPtr: Base indexed by Indices (each a Use), producing an
	// address; Dims[k] is the element stride (in ints) of Indices[k].
	Base    Use
	Indices []Use
	Dims    []int32

	// Alloca: reserves space for a scalar or an array of ArraySize ints
	// (ArraySize == 0 for a scalar). Decl is nil for compiler-introduced
	// temporaries.
	ArraySize int32
	Decl      *ast.Decl

	// Phi / MemPhi: one incoming Use per predecessor, aligned by index with
	// Block.Preds. MemPhi additionally tracks which Alloca (by Decl, or nil
	// for "all other memory") it summarizes, per the memory-dependence
	// model in SPEC_FULL.md §3.2.
	Incoming   []Use
	MemDecl    *ast.Decl
	TracksAll  bool // MemPhi with MemDecl == nil summarizes non-local memory

	// MemOp is a synthetic placeholder recording that a Load/Store/Call
	// consumes/produces a particular memory state; MemInput/MemResult link
	// it into the memory SSA graph used by alias analysis and GVN/GCM.
	MemInput Use

	// Call.
	Callee *ast.Func
	Args   []Use

	// Branch: conditional two-way; Jump: unconditional one-way;
	// Return: function exit, optional value for int-returning functions.
	Cond        Use
	TrueTarget  *Block
	FalseTarget *Block
	Target      *Block
	HasRetValue bool
}

func (i *Instruction) init(block *Block) {
	i.Block = block
	i.LHS.init(i)
	i.RHS.init(i)
	i.Operand.init(i)
	i.Addr.init(i)
	i.Value.init(i)
	i.Base.init(i)
	i.MemInput.init(i)
	i.Cond.init(i)
}

// AddIndex appends an index operand, wiring its Use to this instruction.
func (i *Instruction) AddIndex(v Value) {
	u := Use{}
	u.init(i)
	u.Set(v)
	i.Indices = append(i.Indices, u)
}

// AddIncoming appends a Phi/MemPhi incoming-value operand for the
// predecessor at the same position in Block.Preds.
func (i *Instruction) AddIncoming(v Value) {
	u := Use{}
	u.init(i)
	u.Set(v)
	i.Incoming = append(i.Incoming, u)
}

// AddArg appends a Call argument operand.
func (i *Instruction) AddArg(v Value) {
	u := Use{}
	u.init(i)
	u.Set(v)
	i.Args = append(i.Args, u)
}

// IsTerminator reports whether this instruction ends a basic block.
func (i *Instruction) IsTerminator() bool {
	switch i.Op {
	case OpJump, OpBranch, OpReturn:
		return true
	default:
		return false
	}
}

// HasResult reports whether this instruction produces a usable SSA value
// (Store, Jump, Branch, Return and void Calls do not).
func (i *Instruction) HasResult() bool {
	switch i.Op {
	case OpStore, OpJump, OpBranch, OpReturn, OpMemOp:
		return false
	case OpCall:
		return i.Callee != nil && i.Callee.IsInt
	default:
		return true
	}
}

// CloneShape allocates a fresh Instruction of i's opcode in fn, copying
// every opcode-specific scalar field (BinOp/UnOp/CondResult, GEP
// Dims/ArraySize, Decl, Callee, HasRetValue, MemDecl/TracksAll) but none of
// i's operands or block/list linkage: the caller wires operands afresh via
// Use.Set once the destination values exist. Used by cross-function passes
// (internal/ssa/pass's inliner) that cannot reach Instruction's unexported
// fields directly.
func (i *Instruction) CloneShape(fn *Function) *Instruction {
	ni := fn.NewInst(i.Op)
	ni.BinOp = i.BinOp
	ni.CondResult = i.CondResult
	ni.UnOp = i.UnOp
	ni.Dims = append([]int32(nil), i.Dims...)
	ni.ArraySize = i.ArraySize
	ni.Decl = i.Decl
	ni.MemDecl = i.MemDecl
	ni.TracksAll = i.TracksAll
	ni.Callee = i.Callee
	ni.HasRetValue = i.HasRetValue
	for range i.Indices {
		ni.AddIndex(Undef())
	}
	for range i.Incoming {
		ni.AddIncoming(Undef())
	}
	for range i.Args {
		ni.AddArg(Undef())
	}
	return ni
}

// Prev and Next walk the intrusive instruction list within Block.
func (i *Instruction) Prev() *Instruction { return i.prev }
func (i *Instruction) Next() *Instruction { return i.next }
