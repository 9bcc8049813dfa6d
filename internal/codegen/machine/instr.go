package machine

import "github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/ast"

// Tag identifies an Instruction's shape, mirroring MachineInst::Tag.
type Tag int

const (
	Add Tag = iota
	Sub
	Rsb
	Mul
	Div
	ModTag
	Lt
	Le
	Ge
	Gt
	Eq
	Ne
	And
	Or

	LongMul
	FMA
	Mv
	Branch
	Jump
	Return
	Load
	Store
	Compare
	Call
	Global
	Comment
)

func (t Tag) IsBinary() bool { return Add <= t && t <= Or }
func (t Tag) IsCompareOp() bool { return Lt <= t && t <= Ne }

func (t Tag) String() string {
	names := [...]string{
		"add", "sub", "rsb", "mul", "div", "mod", "lt", "le", "ge", "gt", "eq", "ne", "and", "or",
		"longmul", "fma", "mv", "branch", "jump", "return", "load", "store", "compare", "call", "global", "comment",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return "?"
}

// AccessMode distinguishes ldr/str addressing forms; this compiler only
// ever emits the offset form (no pre/post-increment addressing), but the
// enum is kept to mirror MIAccess::Mode and leave room for it.
type AccessMode int

const (
	Offset AccessMode = iota
	Prefix
	Postfix
)

// Instruction is one machine instruction, a node in its Block's intrusive
// list. One flat tagged struct stands in for MachineInst's subclass
// hierarchy (MIBinary, MIMove, MILoad, ...), matching the Instruction
// design already used for the SSA layer (internal/ssa/instruction.go).
type Instruction struct {
	Tag   Tag
	Block *Block

	prev, next *Instruction

	// Binary ALU (Add..Or), LongMul, FMA.
	Dst, Lhs, Rhs, Acc Operand
	ShiftOp            Shift
	FMAAdd, FMASigned  bool // FMA only: accumulate with + (else -), signed multiply

	// Move.
	MvCond Cond

	// Branch / Jump.
	BrCond Cond
	Target *Block

	// Load / Store.
	Mode   AccessMode
	Addr   Operand
	Offset Operand
	OffsetShift int32 // left-shift applied to Offset before adding to Addr (2 for element index, 0 for byte offset)
	Data   Operand     // Store only

	// PredCond is the condition suffix postalloc's if-to-cond pass
	// attaches to a Load, Store or FMA when it replaces a branch-over
	// block with straight-line predicated execution (Any otherwise),
	// per original_source/src/passes/asm/if_to_cond.cpp's MIAccess::cond
	// / MIFma::cond (conditional Move already gets its condition at
	// selection time via MvCond, so if-to-cond never touches it).
	PredCond Cond

	// Compare.
	CmpLHS, CmpRHS Operand

	// Call.
	Callee *ast.Func

	// Global address load.
	Sym *ast.Decl

	// Comment.
	Text string
}

// IsIdentity reports whether a binary Add/Sub instruction is a literal
// no-op (dst == lhs, rhs == 0, no shift), per MIBinary::isIdentity.
func (i *Instruction) IsIdentity() bool {
	if i.Tag != Add && i.Tag != Sub {
		return false
	}
	return i.Dst.IsEquiv(i.Lhs) && i.Rhs == I(0) && i.ShiftOp.IsNone()
}

// IsSimpleMove reports whether a Move is unconditional and unshifted, per
// MIMove::is_simple.
func (i *Instruction) IsSimpleMove() bool {
	return i.Tag == Mv && i.MvCond == Any && i.ShiftOp.IsNone()
}

// DefUse returns the registers defined and used by i, per
// original_source/src/passes/asm/allocate_register.cpp's
// get_def_use: used by liveness analysis and interference-graph
// construction. Only operands that NeedsColor() matter to those passes,
// but this returns every register-shaped operand and lets the caller
// filter.
func (i *Instruction) DefUse() (def []Operand, use []Operand) {
	switch i.Tag {
	case LongMul:
		return []Operand{i.Dst}, []Operand{i.Lhs, i.Rhs}
	case FMA:
		return []Operand{i.Dst}, []Operand{i.Dst, i.Lhs, i.Rhs, i.Acc}
	case Mv:
		return []Operand{i.Dst}, []Operand{i.Rhs}
	case Load:
		return []Operand{i.Dst}, []Operand{i.Addr, i.Offset}
	case Store:
		return nil, []Operand{i.Data, i.Addr, i.Offset}
	case Compare:
		return nil, []Operand{i.CmpLHS, i.CmpRHS}
	case Call:
		n := 0
		if i.Callee != nil {
			n = len(i.Callee.Params)
		}
		if n > 4 {
			n = 4
		}
		for r := 0; r < n; r++ {
			use = append(use, R(Reg(r)))
		}
		for r := int(R0); r <= int(R3); r++ {
			def = append(def, R(Reg(r)))
		}
		def = append(def, R(LR), R(IP))
		return def, use
	case Global:
		return []Operand{i.Dst}, nil
	case Return:
		return nil, []Operand{R(R0)}
	default:
		if i.Tag.IsBinary() {
			return []Operand{i.Dst}, []Operand{i.Lhs, i.Rhs}
		}
		return nil, nil
	}
}

// DefUsePtr is DefUse but returns pointers into i's own operand fields,
// so the register allocator's final "replace every colored operand"
// sweep (and its spill-code insertion) can mutate in place, per
// get_def_use_ptr. Call operands are intentionally excluded (its
// registers are calling-convention fixed, never virtual).
func (i *Instruction) DefUsePtr() (def *Operand, use []*Operand) {
	switch i.Tag {
	case LongMul:
		return &i.Dst, []*Operand{&i.Lhs, &i.Rhs}
	case FMA:
		return &i.Dst, []*Operand{&i.Dst, &i.Lhs, &i.Rhs, &i.Acc}
	case Mv:
		return &i.Dst, []*Operand{&i.Rhs}
	case Load:
		return &i.Dst, []*Operand{&i.Addr, &i.Offset}
	case Store:
		return nil, []*Operand{&i.Data, &i.Addr, &i.Offset}
	case Compare:
		return nil, []*Operand{&i.CmpLHS, &i.CmpRHS}
	case Global:
		return &i.Dst, nil
	default:
		if i.Tag.IsBinary() {
			return &i.Dst, []*Operand{&i.Lhs, &i.Rhs}
		}
		return nil, nil
	}
}

// DefUseScheduling is DefUse plus the synthetic CondZero pseudo-register
// threading flag dependencies between a flag-setting Compare and the
// conditional Move/Branch that consumes it, per scheduling.cpp's
// get_def_use_scheduling.
func (i *Instruction) DefUseScheduling() (def []Operand, use []Operand) {
	def, use = i.DefUse()
	switch i.Tag {
	case Mv:
		if i.MvCond != Any {
			use = append(use, CondZero)
		}
	case Compare:
		def = append(def, CondZero)
	case Branch:
		if i.BrCond != Any {
			use = append(use, CondZero)
		}
	case Call:
		use = append(use, R(SP))
	}
	return def, use
}

// FUKind is a Cortex-A72 functional-unit class, per scheduling.cpp's
// CortexA72FUKind and the Cortex-A72 software optimization guide.
type FUKind int

const (
	FUBranch FUKind = iota
	FUInteger
	FUIntMul
	FULoad
	FUStore
)

// LatencyAndUnit returns the scheduling latency and functional-unit class
// for i, per scheduling.cpp's get_info.
func (i *Instruction) LatencyAndUnit() (latency uint32, unit FUKind) {
	switch i.Tag {
	case Mul:
		return 3, FUIntMul
	case Div:
		return 8, FUIntMul
	case LongMul:
		return 3, FUIntMul
	case FMA:
		return 4, FUIntMul
	case Mv:
		if i.MvCond == Any {
			return 1, FUInteger
		}
		return 2, FUInteger
	case Load:
		return 4, FULoad
	case Store:
		return 3, FUStore
	case Compare:
		return 1, FUInteger
	case Call, Return, Branch, Jump:
		return 1, FUBranch
	case Global:
		return 1, FUInteger
	default:
		if i.Tag.IsBinary() {
			if i.ShiftOp.IsNone() {
				return 1, FUInteger
			}
			return 2, FUIntMul
		}
		return 1, FUInteger
	}
}

func (i *Instruction) IsTerminator() bool {
	switch i.Tag {
	case Branch, Jump, Return:
		return true
	default:
		return false
	}
}

func (i *Instruction) Prev() *Instruction { return i.prev }
func (i *Instruction) Next() *Instruction { return i.next }
