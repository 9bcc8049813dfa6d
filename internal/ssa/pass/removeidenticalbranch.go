package pass

import (
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/ast"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"
)

// RemoveIdenticalBranch collapses the narrow pattern left behind by
// earlier passes on array-heavy reduction loops:
//
//	bb:    ...; branch (x == 0) ? then : else
//	then:  jump after                           (empty, one pred)
//	else:  t1 = load a[i]; t2 = load b[j]
//	       t3 = x * t2; t4 = t1 + t3
//	       store a[j] = t4; jump after           (one pred)
//	after: ... (no leading phi)
//
// where the then arm is an empty placeholder and every effect lives on the
// else arm, so the branch can be replaced with an unconditional jump
// straight into else, grounded on
// original_source/src/passes/ir/remove_identical_branch.cpp. Deliberately
// narrow, same scope as the original.
func RemoveIdenticalBranch(fn *ssa.Function) bool {
	for _, bb := range fn.Blocks() {
		if tryRemoveIdenticalBranch(fn, bb) {
			return true
		}
	}
	return false
}

func tryRemoveIdenticalBranch(fn *ssa.Function, bb *ssa.Block) bool {
	br := bb.Terminator()
	if br == nil || br.Op != ssa.OpBranch {
		return false
	}
	cond, ok := br.Cond.Value().(*ssa.Instruction)
	if !ok || !isEqZero(cond) {
		return false
	}
	thenBB, elseBB := br.TrueTarget, br.FalseTarget
	if thenBB.First() != thenBB.Last() || len(thenBB.Preds) != 1 || len(elseBB.Preds) != 1 {
		return false
	}
	j1 := thenBB.Terminator()
	j2 := elseBB.Terminator()
	if j1 == nil || j1.Op != ssa.OpJump || j2 == nil || j2.Op != ssa.OpJump || j1.Target != j2.Target {
		return false
	}
	if len(j1.Target.Phis()) != 0 {
		return false
	}

	// each array Load/Store is preceded by the GEP computing its address
	skipGEPs := func(i *ssa.Instruction) *ssa.Instruction {
		for i != nil && i.Op == ssa.OpGetElementPtr {
			i = i.Next()
		}
		return i
	}
	i1 := skipGEPs(elseBB.First())
	if i1 == nil || i1.Op != ssa.OpLoad || !isParamArray(instBase(i1)) || !singlyUsed(i1) {
		return false
	}
	i2 := skipGEPs(i1.Next())
	if i2 == nil || i2.Op != ssa.OpLoad || !isParamArray(instBase(i2)) || instBase(i2) == instBase(i1) || !singlyUsed(i2) {
		return false
	}
	i3 := i2.Next()
	if i3 == nil || i3.Op != ssa.OpBinary || i3.BinOp != ast.Mul || i3.LHS.Value() != cond.LHS.Value() || i3.RHS.Value() != ssa.Value(i2) || !singlyUsed(i3) {
		return false
	}
	i4 := i3.Next()
	if i4 == nil || i4.Op != ssa.OpBinary || i4.BinOp != ast.Add || i4.LHS.Value() != ssa.Value(i1) || i4.RHS.Value() != ssa.Value(i3) || !singlyUsed(i4) {
		return false
	}
	i5 := skipGEPs(i4.Next())
	if i5 == nil || i5.Op != ssa.OpStore || instBase(i5) != instBase(i1) || i5.Next() != j2 {
		return false
	}

	jmp := fn.NewInst(ssa.OpJump)
	jmp.Target = elseBB
	bb.InsertBefore(br, jmp)
	bb.Remove(br)
	bb.Succs = []*ssa.Block{elseBB}

	removePred(thenBB, bb)
	removePred(j1.Target, thenBB)
	removeBlock(thenBB)
	return true
}

func isEqZero(i *ssa.Instruction) bool {
	if i.Op != ssa.OpBinary || !i.CondResult || i.BinOp != ast.Eq {
		return false
	}
	c, ok := i.RHS.Value().(*ssa.ConstValue)
	return ok && c.Imm == 0
}

func singlyUsed(i *ssa.Instruction) bool {
	u := i.FirstUse()
	return u != nil && u.NextUse() == nil
}

// instBase returns a Load/Store's array base, looking through the one
// level of GetElementPtr indirection the builder always inserts for an
// indexed array access.
func instBase(i *ssa.Instruction) ssa.Value {
	if gep, ok := i.Addr.Value().(*ssa.Instruction); ok && gep.Op == ssa.OpGetElementPtr {
		return gep.Base.Value()
	}
	return i.Addr.Value()
}

func isParamArray(v ssa.Value) bool {
	_, ok := v.(*ssa.ParamRef)
	return ok
}
