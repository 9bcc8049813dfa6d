// Package isel lowers one function's SSA IR to the ARM machine IR
// (internal/codegen/machine), grounded on
// original_source/src/conv/codegen.cpp's single-pass tree-matching
// selector, with the resolve/get_imm_operand/cond_map closures from that
// file reworked as methods on a per-function selector struct (the teacher's
// backend/isa/arm64/lower_instr.go groups lowering the same way, one
// receiver type holding the in-progress machine function plus its value
// maps).
package isel

import (
	"math/bits"

	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/ast"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"

	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/codegen/machine"
)

// Options configures lowering choices that SPEC_FULL.md leaves open.
type Options struct {
	// ExcludedMagicDivisors lists divisor constants for which the
	// magic-number division optimization is disabled, falling back to a
	// plain machine Div instruction. original_source hard-coded a single
	// literal (1000000007) for this; SPEC_FULL.md's Open Questions flag
	// that as an implementation detail to keep configurable rather than
	// bake in, so callers populate this set instead (empty by default).
	ExcludedMagicDivisors map[int32]bool
}

// Select lowers every non-builtin function in prog to machine IR.
func Select(prog *ssa.Program, opts Options) *machine.Program {
	mp := &machine.Program{Globals: prog.Globals}
	for _, fn := range prog.Funcs {
		if fn.Decl.Builtin {
			continue
		}
		mp.Funcs = append(mp.Funcs, selectFunction(fn, opts))
	}
	return mp
}

type condEntry struct {
	inst *machine.Instruction
	cond machine.Cond
}

type selector struct {
	opts Options

	fn *machine.Function

	blocks    map[*ssa.Block]*machine.Block
	blockOrd  map[*ssa.Block]int
	values    map[ssa.Value]machine.Operand
	globals   map[*ast.Decl]machine.Operand
	params    map[*ast.Decl]machine.Operand
	condMap   map[*ssa.Instruction]condEntry
}

func selectFunction(fn *ssa.Function, opts Options) *machine.Function {
	mf := machine.NewFunction(fn)
	s := &selector{
		opts:    opts,
		fn:      mf,
		blocks:  make(map[*ssa.Block]*machine.Block),
		blockOrd: make(map[*ssa.Block]int),
		values:  make(map[ssa.Value]machine.Operand),
		globals: make(map[*ast.Decl]machine.Operand),
		params:  make(map[*ast.Decl]machine.Operand),
		condMap: make(map[*ssa.Instruction]condEntry),
	}

	srcBlocks := fn.Blocks()
	for i, b := range srcBlocks {
		mb := mf.NewBlock()
		mb.Source = b
		s.blocks[b] = mb
		s.blockOrd[b] = i
	}
	mf.Entry = s.blocks[fn.Entry]
	for _, b := range srcBlocks {
		mb := s.blocks[b]
		for _, p := range b.Preds {
			mb.Preds = append(mb.Preds, s.blocks[p])
		}
		for i, succ := range b.Succs {
			if i < 2 {
				mb.Succs[i] = s.blocks[succ]
			}
		}
	}

	for _, b := range srcBlocks {
		s.selectBlock(b)
	}
	s.resolvePhis(srcBlocks)

	return mf
}

// --- operand resolution -----------------------------------------------

// resolve materializes v as a machine Operand, usable as an instruction
// operand slot that may legally be an Immediate.
func (s *selector) resolve(v ssa.Value, mbb *machine.Block) machine.Operand {
	switch x := v.(type) {
	case *ssa.ParamRef:
		decl := x.Decl.(*ast.Decl)
		if op, ok := s.params[decl]; ok {
			return op
		}
		res := s.fn.NewVirtual()
		s.params[decl] = res
		s.values[v] = res
		idx := paramIndex(s.fn.Source.Decl, decl)
		entry := s.fn.Entry
		if idx < 4 {
			mv := s.fn.NewInst(machine.Mv)
			mv.Dst = res
			mv.Rhs = machine.R(machine.Reg(idx))
			mv.MvCond = machine.Any
			entry.PushFront(mv)
		} else {
			off := s.fn.NewVirtual()
			ld := s.fn.NewInst(machine.Load)
			ld.Addr = machine.R(machine.SP)
			ld.Offset = off
			ld.OffsetShift = 0
			ld.Dst = res
			entry.PushFront(ld)
			mv := s.fn.NewInst(machine.Mv)
			mv.Dst = off
			mv.Rhs = machine.I(int32(idx-4) * 4)
			entry.PushFront(mv)
			s.fn.SPArgFixup = append(s.fn.SPArgFixup, mv)
		}
		return res
	case *ssa.GlobalRef:
		decl := x.Decl.(*ast.Decl)
		if op, ok := s.globals[decl]; ok {
			return op
		}
		res := s.fn.NewVirtual()
		s.globals[decl] = res
		g := s.fn.NewInst(machine.Global)
		g.Sym = decl
		g.Dst = res
		s.fn.Entry.PushFront(g)
		return res
	case *ssa.ConstValue:
		return s.getImmOperand(x.Imm, mbb)
	case *ssa.UndefValue:
		return machine.I(0)
	default:
		if op, ok := s.values[v]; ok {
			return op
		}
		res := s.fn.NewVirtual()
		s.values[v] = res
		return res
	}
}

// resolveNoImm is resolve but never returns an Immediate operand (used
// wherever the ARM encoding forbids an immediate, e.g. the data operand
// of a Store), materializing it through a Move instead.
func (s *selector) resolveNoImm(v ssa.Value, mbb *machine.Block) machine.Operand {
	if c, ok := v.(*ssa.ConstValue); ok {
		res := s.fn.NewVirtual()
		s.emitMove(mbb, res, machine.I(c.Imm), machine.Any)
		return res
	}
	return s.resolve(v, mbb)
}

// define records and returns the virtual register standing for inst's
// SSA result.
func (s *selector) define(inst *ssa.Instruction) machine.Operand {
	if op, ok := s.values[inst]; ok {
		return op
	}
	res := s.fn.NewVirtual()
	s.values[inst] = res
	return res
}

// getImmOperand returns imm directly when ARM can encode it, else
// materializes it into a fresh virtual via a Move inserted just before
// mbb's control-transfer sequence (or at the block's end if none has
// been emitted yet), per generate_imm_operand.
func (s *selector) getImmOperand(imm int32, mbb *machine.Block) machine.Operand {
	if machine.CanEncodeImm(imm) {
		return machine.I(imm)
	}
	vreg := s.fn.NewVirtual()
	mv := s.fn.NewInst(machine.Mv)
	mv.Dst = vreg
	mv.Rhs = machine.I(imm)
	mv.MvCond = machine.Any
	if mbb.ControlTransfer != nil {
		mbb.InsertBefore(mbb.ControlTransfer, mv)
	} else {
		mbb.PushBack(mv)
	}
	return vreg
}

func (s *selector) emitMove(mbb *machine.Block, dst, rhs machine.Operand, cond machine.Cond) {
	mv := s.fn.NewInst(machine.Mv)
	mv.Dst = dst
	mv.Rhs = rhs
	mv.MvCond = cond
	mbb.PushBack(mv)
}

func paramIndex(fn *ast.Func, decl *ast.Decl) int {
	for i := range fn.Params {
		if &fn.Params[i] == decl {
			return i
		}
	}
	return -1
}

// singleUse reports whether v has exactly one Use.
func singleUse(v ssa.Value) bool {
	u := v.FirstUse()
	return u != nil && u.NextUse() == nil
}

var binOpTag = map[ast.BinOp]machine.Tag{
	ast.Add: machine.Add, ast.Sub: machine.Sub, ast.Mul: machine.Mul, ast.Div: machine.Div,
	ast.Lt: machine.Lt, ast.Le: machine.Le, ast.Ge: machine.Ge, ast.Gt: machine.Gt,
	ast.Eq: machine.Eq, ast.Ne: machine.Ne, ast.And: machine.And, ast.Or: machine.Or,
}

var binOpCond = map[ast.BinOp]machine.Cond{
	ast.Lt: machine.Lt, ast.Le: machine.Le, ast.Ge: machine.Ge, ast.Gt: machine.Gt,
	ast.Eq: machine.Eq, ast.Ne: machine.Ne,
}

func isCompareOp(op ast.BinOp) bool {
	_, ok := binOpCond[op]
	return ok
}

// --- per-block selection -------------------------------------------------

func (s *selector) selectBlock(b *ssa.Block) {
	mbb := s.blocks[b]
	insts := b.Instructions()
	for i := 0; i < len(insts); i++ {
		inst := insts[i]
		switch inst.Op {
		case ssa.OpPhi, ssa.OpMemPhi, ssa.OpMemOp:
			continue // phis resolved in a second pass; memory tokens never reach assembly
		case ssa.OpAlloca:
			s.selectAlloca(inst, mbb)
		case ssa.OpGetElementPtr:
			s.selectGEP(inst, mbb)
		case ssa.OpLoad:
			s.selectLoad(inst, mbb)
		case ssa.OpStore:
			s.selectStore(inst, mbb)
		case ssa.OpUnary:
			s.selectUnary(inst, mbb)
		case ssa.OpBinary:
			if fused := s.selectBinary(inst, insts, i, mbb); fused {
				i++ // the fused mul+add/sub consumed the following instruction too
			}
		case ssa.OpCall:
			s.selectCall(inst, mbb)
		case ssa.OpJump:
			s.selectJump(inst, mbb)
		case ssa.OpBranch:
			s.selectBranch(inst, mbb)
		case ssa.OpReturn:
			s.selectReturn(inst, mbb)
		}
	}
}

func (s *selector) selectAlloca(inst *ssa.Instruction, mbb *machine.Block) {
	size := int32(1)
	if inst.ArraySize > 0 {
		size = inst.ArraySize
	}
	size *= 4
	dst := s.define(inst)
	offset := s.getImmOperand(int32(s.fn.StackSize), mbb)
	add := s.fn.NewInst(machine.Add)
	add.Dst = dst
	add.Lhs = machine.R(machine.SP)
	add.Rhs = offset
	mbb.PushBack(add)
	s.fn.StackSize += uint32(size)
}

// selectGEP walks inst's index chain, folding each dimension's
// base+index*stride step per SPEC_FULL.md §4.7: an identity move when the
// offset is zero, an Add with an encodable immediate offset for a
// constant index, a shifted Add when the stride is a power of two, or an
// FMA (move + mov-immediate-stride + multiply-accumulate) otherwise.
func (s *selector) selectGEP(inst *ssa.Instruction, mbb *machine.Block) {
	dst := s.define(inst)
	cur := s.resolve(inst.Base.Value(), mbb)
	if len(inst.Indices) == 0 {
		s.emitMove(mbb, dst, cur, machine.Any)
		return
	}
	for idx := range inst.Indices {
		mult := inst.Dims[idx] * 4
		target := dst
		if idx != len(inst.Indices)-1 {
			target = s.fn.NewVirtual()
		}
		cur = s.emitGEPStep(mbb, cur, inst.Indices[idx].Value(), mult, target)
	}
}

func (s *selector) emitGEPStep(mbb *machine.Block, lhs machine.Operand, indexVal ssa.Value, mult int32, dst machine.Operand) machine.Operand {
	if c, ok := indexVal.(*ssa.ConstValue); ok {
		if mult == 0 || c.Imm == 0 {
			s.emitMove(mbb, dst, lhs, machine.Any)
			return dst
		}
		off := s.getImmOperand(mult*c.Imm, mbb)
		add := s.fn.NewInst(machine.Add)
		add.Dst, add.Lhs, add.Rhs = dst, lhs, off
		mbb.PushBack(add)
		return dst
	}
	if mult == 0 {
		s.emitMove(mbb, dst, lhs, machine.Any)
		return dst
	}
	if mult&(mult-1) == 0 {
		idxOp := s.resolve(indexVal, mbb)
		add := s.fn.NewInst(machine.Add)
		add.Dst, add.Lhs, add.Rhs = dst, lhs, idxOp
		add.ShiftOp = machine.Shift{Kind: machine.Lsl, Amount: int32(bits.TrailingZeros32(uint32(mult)))}
		mbb.PushBack(add)
		return dst
	}
	idxOp := s.resolveNoImm(indexVal, mbb)
	s.emitMove(mbb, dst, lhs, machine.Any)
	multVreg := s.fn.NewVirtual()
	s.emitMove(mbb, multVreg, machine.I(mult), machine.Any)
	fma := s.fn.NewInst(machine.FMA)
	fma.Dst, fma.Acc, fma.Lhs, fma.Rhs = dst, dst, idxOp, multVreg
	fma.FMAAdd, fma.FMASigned = true, false
	mbb.PushBack(fma)
	return dst
}

func (s *selector) selectLoad(inst *ssa.Instruction, mbb *machine.Block) {
	addr := s.resolve(inst.Addr.Value(), mbb)
	dst := s.define(inst)
	ld := s.fn.NewInst(machine.Load)
	ld.Dst, ld.Addr, ld.Offset = dst, addr, machine.I(0)
	mbb.PushBack(ld)
}

func (s *selector) selectStore(inst *ssa.Instruction, mbb *machine.Block) {
	addr := s.resolve(inst.Addr.Value(), mbb)
	data := s.resolveNoImm(inst.Value.Value(), mbb)
	st := s.fn.NewInst(machine.Store)
	st.Addr, st.Offset, st.Data = addr, machine.I(0), data
	mbb.PushBack(st)
}

func (s *selector) selectUnary(inst *ssa.Instruction, mbb *machine.Block) {
	operand := s.resolveNoImm(inst.Operand.Value(), mbb)
	dst := s.define(inst)
	switch inst.UnOp {
	case ast.Neg:
		rsb := s.fn.NewInst(machine.Rsb)
		rsb.Dst, rsb.Lhs, rsb.Rhs = dst, operand, machine.I(0)
		mbb.PushBack(rsb)
	case ast.Not:
		cmp := s.fn.NewInst(machine.Compare)
		cmp.CmpLHS, cmp.CmpRHS = operand, machine.I(0)
		mbb.PushBack(cmp)
		s.emitCondMove(mbb, dst, 1, machine.Eq)
		s.emitCondMove(mbb, dst, 0, machine.Ne)
	}
}

func (s *selector) emitCondMove(mbb *machine.Block, dst machine.Operand, imm int32, cond machine.Cond) {
	mv := s.fn.NewInst(machine.Mv)
	mv.Dst = dst
	mv.Rhs = s.getImmOperand(imm, mbb)
	mv.MvCond = cond
	mbb.PushBack(mv)
}

// selectBinary lowers a Binary SSA instruction, reporting whether it
// consumed the very next instruction by fusing a multiply into an
// MLA/MLS (SPEC_FULL.md §4.7's "fuse mul then add/sub").
func (s *selector) selectBinary(inst *ssa.Instruction, insts []*ssa.Instruction, i int, mbb *machine.Block) bool {
	lhsVal, rhsVal := inst.LHS.Value(), inst.RHS.Value()
	lhs := s.resolveNoImm(lhsVal, mbb)

	if c, ok := rhsVal.(*ssa.ConstValue); ok && c.Imm > 0 && inst.BinOp == ast.Div {
		s.selectDivByConst(inst, lhs, c.Imm, mbb)
		return false
	}
	if c, ok := rhsVal.(*ssa.ConstValue); ok && inst.BinOp == ast.Mul && c.Imm > 0 && c.Imm&(c.Imm-1) == 0 {
		dst := s.define(inst)
		log := bits.TrailingZeros32(uint32(c.Imm))
		mv := s.fn.NewInst(machine.Mv)
		mv.Dst, mv.Rhs, mv.MvCond = dst, lhs, machine.Any
		if log > 0 {
			mv.ShiftOp = machine.Shift{Kind: machine.Lsl, Amount: int32(log)}
		}
		mbb.PushBack(mv)
		return false
	}

	var rhs machine.Operand
	tag := binOpTag[inst.BinOp]
	if c, ok := rhsVal.(*ssa.ConstValue); ok {
		imm := c.Imm
		if inst.BinOp == ast.Add || inst.BinOp == ast.Sub {
			if !machine.CanEncodeImm(imm) && machine.CanEncodeImm(-imm) {
				imm = -imm
				if inst.BinOp == ast.Add {
					tag = machine.Sub
				} else {
					tag = machine.Add
				}
			}
		}
		rhs = s.getImmOperand(imm, mbb)
	} else {
		rhs = s.resolveNoImm(rhsVal, mbb)
	}

	if inst.BinOp == ast.Mul && singleUse(inst) && i+1 < len(insts) {
		if y := insts[i+1]; y.Op == ssa.OpBinary && (y.BinOp == ast.Add || y.BinOp == ast.Sub) && y.RHS.Value() == ssa.Value(inst) {
			acc := s.resolve(y.LHS.Value(), mbb)
			dst := s.define(y)
			s.emitMove(mbb, dst, acc, machine.Any)
			fma := s.fn.NewInst(machine.FMA)
			fma.Dst, fma.Acc, fma.Lhs, fma.Rhs = dst, dst, lhs, rhs
			fma.FMAAdd = y.BinOp == ast.Add
			fma.FMASigned = false
			mbb.PushBack(fma)
			return true
		}
	}

	if isCompareOp(inst.BinOp) {
		s.selectCompare(inst, lhs, rhs, mbb)
		return false
	}
	if inst.BinOp == ast.And || inst.BinOp == ast.Or {
		s.selectLogical(inst, lhsVal, rhsVal, mbb)
		return false
	}

	dst := s.define(inst)
	bin := s.fn.NewInst(tag)
	bin.Dst, bin.Lhs, bin.Rhs = dst, lhs, rhs
	mbb.PushBack(bin)
	return false
}

// selectDivByConst lowers x/d for a positive constant d: a right shift
// when d is a power of two, or Granlund & Montgomery magic-number
// multiplication otherwise, per original_source/src/conv/codegen.cpp and
// SPEC_FULL.md's Open Question on the division path (the exact magic-
// number algorithm followed verbatim; the literal-1000000007 escape
// hatch generalized into Options.ExcludedMagicDivisors).
func (s *selector) selectDivByConst(inst *ssa.Instruction, lhs machine.Operand, d int32, mbb *machine.Block) {
	dst := s.define(inst)
	u := uint32(d)
	shiftAmt := bits.TrailingZeros32(u)
	if u == uint32(1)<<uint(shiftAmt) {
		mv := s.fn.NewInst(machine.Mv)
		mv.Dst, mv.Rhs, mv.MvCond = dst, lhs, machine.Any
		if shiftAmt > 0 {
			mv.ShiftOp = machine.Shift{Kind: machine.Lsr, Amount: int32(shiftAmt)}
		}
		mbb.PushBack(mv)
		return
	}
	if s.opts.ExcludedMagicDivisors[d] {
		rhs := s.getImmOperand(d, mbb)
		div := s.fn.NewInst(machine.Div)
		div.Dst, div.Lhs, div.Rhs = dst, lhs, rhs
		mbb.PushBack(div)
		return
	}

	const w = 32
	nc := uint64(1<<(w-1)) - uint64(1<<(w-1))%uint64(u) - 1
	p := uint64(w)
	for (uint64(1) << p) <= nc*(uint64(u)-(uint64(1)<<p)%uint64(u)) {
		p++
	}
	twoToP := uint64(1) << p
	m := uint32((twoToP + uint64(u) - twoToP%uint64(u)) / uint64(u))
	shift := int32(p - w)

	mConst := s.fn.NewVirtual()
	s.emitMove(mbb, mConst, machine.I(int32(m)), machine.Any)
	temp := s.fn.NewVirtual()
	if m >= 0x80000000 {
		fma := s.fn.NewInst(machine.FMA)
		fma.Dst, fma.Acc, fma.Lhs, fma.Rhs = temp, lhs, lhs, mConst
		fma.FMAAdd, fma.FMASigned = true, true
		mbb.PushBack(fma)
	} else {
		lm := s.fn.NewInst(machine.LongMul)
		lm.Dst, lm.Lhs, lm.Rhs = temp, lhs, mConst
		mbb.PushBack(lm)
	}
	shifted := s.fn.NewVirtual()
	mv := s.fn.NewInst(machine.Mv)
	mv.Dst, mv.Rhs, mv.MvCond = shifted, temp, machine.Any
	mv.ShiftOp = machine.Shift{Kind: machine.Asr, Amount: shift}
	mbb.PushBack(mv)

	add := s.fn.NewInst(machine.Add)
	add.Dst, add.Lhs, add.Rhs = dst, shifted, lhs
	add.ShiftOp = machine.Shift{Kind: machine.Lsr, Amount: 31}
	mbb.PushBack(add)
}

func (s *selector) selectCompare(inst *ssa.Instruction, lhs, rhs machine.Operand, mbb *machine.Block) {
	cmp := s.fn.NewInst(machine.Compare)
	cmp.CmpLHS, cmp.CmpRHS = lhs, rhs
	cond := binOpCond[inst.BinOp]
	opposite := cond.Opposite()

	if singleUse(inst) {
		user := inst.FirstUse().User()
		if user.Op == ssa.OpBranch && inst.Next() == user {
			mbb.PushBack(cmp)
			s.condMap[inst] = condEntry{inst: cmp, cond: cond}
			return
		}
	}
	mbb.PushBack(cmp)
	dst := s.define(inst)
	s.emitCondMove(mbb, dst, 1, cond)
	s.emitCondMove(mbb, dst, 0, opposite)
}

// selectLogical lowers a bitwise And/Or SSA value (only reachable if an
// earlier pass rematerializes one; the SSA builder itself always lowers
// source-level &&/|| to a branch diamond, see SPEC_FULL.md §4.1) the same
// way original_source's codegen.cpp does: each operand is independently
// reduced to 0/1 via compare+conditional-moves, then combined.
func (s *selector) selectLogical(inst *ssa.Instruction, lhsVal, rhsVal ssa.Value, mbb *machine.Block) {
	lhsBool := s.materializeBool(lhsVal, mbb)
	rhsBool := s.materializeBool(rhsVal, mbb)
	dst := s.define(inst)
	bin := s.fn.NewInst(binOpTag[inst.BinOp])
	bin.Dst, bin.Lhs, bin.Rhs = dst, lhsBool, rhsBool
	mbb.PushBack(bin)
}

func (s *selector) materializeBool(v ssa.Value, mbb *machine.Block) machine.Operand {
	op := s.resolveNoImm(v, mbb)
	cmp := s.fn.NewInst(machine.Compare)
	cmp.CmpLHS, cmp.CmpRHS = op, machine.I(0)
	mbb.PushBack(cmp)
	res := s.fn.NewVirtual()
	s.emitCondMove(mbb, res, 1, machine.Ne)
	s.emitCondMove(mbb, res, 0, machine.Eq)
	return res
}

func (s *selector) selectCall(inst *ssa.Instruction, mbb *machine.Block) {
	n := len(inst.Args)
	for i, a := range inst.Args {
		if i < 4 {
			mv := s.fn.NewInst(machine.Mv)
			mv.Dst, mv.Rhs, mv.MvCond = machine.R(machine.Reg(i)), s.resolve(a.Value(), mbb), machine.Any
			mbb.PushBack(mv)
		} else {
			data := s.resolveNoImm(a.Value(), mbb)
			st := s.fn.NewInst(machine.Store)
			st.Addr, st.Offset, st.OffsetShift, st.Data = machine.R(machine.SP), machine.I(int32(-(n - i))), 2, data
			mbb.PushBack(st)
		}
	}
	if n > 4 {
		sub := s.fn.NewInst(machine.Sub)
		sub.Dst, sub.Lhs, sub.Rhs = machine.R(machine.SP), machine.R(machine.SP), s.getImmOperand(int32(4*(n-4)), mbb)
		mbb.PushBack(sub)
	}
	call := s.fn.NewInst(machine.Call)
	call.Callee = inst.Callee
	mbb.PushBack(call)
	if n > 4 {
		add := s.fn.NewInst(machine.Add)
		add.Dst, add.Lhs, add.Rhs = machine.R(machine.SP), machine.R(machine.SP), s.getImmOperand(int32(4*(n-4)), mbb)
		mbb.PushBack(add)
	}
	if inst.Callee != nil && inst.Callee.IsInt {
		dst := s.define(inst)
		s.emitMove(mbb, dst, machine.R(machine.R0), machine.Any)
	}
}

func (s *selector) selectJump(inst *ssa.Instruction, mbb *machine.Block) {
	j := s.fn.NewInst(machine.Jump)
	j.Target = s.blocks[inst.Target]
	mbb.PushBack(j)
	mbb.ControlTransfer = j
}

func (s *selector) selectBranch(inst *ssa.Instruction, mbb *machine.Block) {
	var cmpInst *machine.Instruction
	var cond machine.Cond
	if condVal, ok := inst.Cond.Value().(*ssa.Instruction); ok {
		if entry, ok := s.condMap[condVal]; ok {
			cmpInst, cond = entry.inst, entry.cond
		}
	}
	if cmpInst == nil {
		condOp := s.resolveNoImm(inst.Cond.Value(), mbb)
		cmp := s.fn.NewInst(machine.Compare)
		cmp.CmpLHS, cmp.CmpRHS = condOp, machine.I(0)
		mbb.PushBack(cmp)
		cmpInst, cond = cmp, machine.Ne
	}
	mbb.ControlTransfer = cmpInst

	br := s.fn.NewInst(machine.Branch)
	fallsThrough := s.blockOrd[inst.TrueTarget] == s.blockOrd[blockOf(mbb)]+1
	if fallsThrough {
		br.BrCond = cond.Opposite()
		br.Target = s.blocks[inst.FalseTarget]
		mbb.PushBack(br)
		j := s.fn.NewInst(machine.Jump)
		j.Target = s.blocks[inst.TrueTarget]
		mbb.PushBack(j)
	} else {
		br.BrCond = cond
		br.Target = s.blocks[inst.TrueTarget]
		mbb.PushBack(br)
		j := s.fn.NewInst(machine.Jump)
		j.Target = s.blocks[inst.FalseTarget]
		mbb.PushBack(j)
	}
}

func blockOf(mb *machine.Block) *ssa.Block { return mb.Source }

func (s *selector) selectReturn(inst *ssa.Instruction, mbb *machine.Block) {
	if inst.HasRetValue {
		val := s.resolve(inst.Value.Value(), mbb)
		mv := s.fn.NewInst(machine.Mv)
		mv.Dst, mv.Rhs, mv.MvCond = machine.R(machine.R0), val, machine.Any
		mbb.PushBack(mv)
		ret := s.fn.NewInst(machine.Return)
		mbb.PushBack(ret)
		mbb.ControlTransfer = mv
	} else {
		ret := s.fn.NewInst(machine.Return)
		mbb.PushBack(ret)
		mbb.ControlTransfer = ret
	}
}

// --- phi resolution --------------------------------------------------

// resolvePhis lowers every OpPhi into the two-sided parallel-move pattern
// of SPEC_FULL.md §4.7: a fresh virtual per phi, assigned into the phi's
// destination at the top of this block, and assigned from the
// corresponding incoming value at the end of each predecessor — so the
// moves may be serialized in any order without clobbering each other.
func (s *selector) resolvePhis(srcBlocks []*ssa.Block) {
	for _, b := range srcBlocks {
		mbb := s.blocks[b]
		type assign struct{ dst, rhs machine.Operand }
		var headMoves []assign
		predMoves := make(map[*ssa.Block][]assign)

		for _, inst := range b.Phis() {
			if inst.Op != ssa.OpPhi {
				continue
			}
			vr := s.fn.NewVirtual()
			headMoves = append(headMoves, assign{s.define(inst), vr})
			for i, pred := range b.Preds {
				val := inst.Incoming[i].Value()
				predMB := s.blocks[pred]
				rhs := s.resolve(val, predMB)
				predMoves[pred] = append(predMoves[pred], assign{vr, rhs})
			}
		}

		for i := len(headMoves) - 1; i >= 0; i-- {
			mv := s.fn.NewInst(machine.Mv)
			mv.Dst, mv.Rhs, mv.MvCond = headMoves[i].dst, headMoves[i].rhs, machine.Any
			mbb.PushFront(mv)
		}
		for pred, moves := range predMoves {
			predMB := s.blocks[pred]
			for _, mvAssign := range moves {
				mv := s.fn.NewInst(machine.Mv)
				mv.Dst, mv.Rhs, mv.MvCond = mvAssign.dst, mvAssign.rhs, machine.Any
				if predMB.ControlTransfer != nil {
					predMB.InsertBefore(predMB.ControlTransfer, mv)
				} else {
					predMB.PushBack(mv)
				}
			}
		}
	}
}
