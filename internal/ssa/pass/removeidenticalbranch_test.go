package pass

import (
	"testing"

	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/ast"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"
	"github.com/stretchr/testify/require"
)

// buildReductionShape builds the exact bb/then/else/after shape
// RemoveIdenticalBranch matches: `if (x == 0) {} else { a[j] = a[i] + x*b[j]; }`.
func buildReductionShape(fn *ssa.Function) (bb, thenBB, elseBB, after *ssa.Block) {
	bb = fn.NewBlock("bb")
	thenBB = fn.NewBlock("then")
	elseBB = fn.NewBlock("else")
	after = fn.NewBlock("after")
	fn.Entry = bb

	x := fn.Param(&ast.Decl{Name: "x"})
	a := fn.Param(&ast.Decl{Name: "a"})
	b := fn.Param(&ast.Decl{Name: "b"})

	cond := fn.NewInst(ssa.OpBinary)
	bb.PushBack(cond)
	cond.BinOp = ast.Eq
	cond.CondResult = true
	cond.LHS.Set(x)
	cond.RHS.Set(fn.Const(0))

	branchOn(fn, bb, cond, thenBB, elseBB)

	jumpTo(fn, thenBB, after)

	gepAI := fn.NewInst(ssa.OpGetElementPtr)
	elseBB.PushBack(gepAI)
	gepAI.Base.Set(a)
	gepAI.AddIndex(fn.Const(1))
	i1 := fn.NewInst(ssa.OpLoad)
	elseBB.PushBack(i1)
	i1.Addr.Set(gepAI)

	gepBJ := fn.NewInst(ssa.OpGetElementPtr)
	elseBB.PushBack(gepBJ)
	gepBJ.Base.Set(b)
	gepBJ.AddIndex(fn.Const(2))
	i2 := fn.NewInst(ssa.OpLoad)
	elseBB.PushBack(i2)
	i2.Addr.Set(gepBJ)

	i3 := fn.NewInst(ssa.OpBinary)
	elseBB.PushBack(i3)
	i3.BinOp = ast.Mul
	i3.LHS.Set(x)
	i3.RHS.Set(i2)

	i4 := fn.NewInst(ssa.OpBinary)
	elseBB.PushBack(i4)
	i4.BinOp = ast.Add
	i4.LHS.Set(i1)
	i4.RHS.Set(i3)

	gepAJ := fn.NewInst(ssa.OpGetElementPtr)
	elseBB.PushBack(gepAJ)
	gepAJ.Base.Set(a)
	gepAJ.AddIndex(fn.Const(2))
	i5 := fn.NewInst(ssa.OpStore)
	elseBB.PushBack(i5)
	i5.Addr.Set(gepAJ)
	i5.Value.Set(i4)

	jumpTo(fn, elseBB, after)
	retVoid(fn, after)
	return
}

func TestRemoveIdenticalBranch_Matches(t *testing.T) {
	fn := newTestFunc("f")
	bb, thenBB, elseBB, after := buildReductionShape(fn)

	changed := RemoveIdenticalBranch(fn)
	require.True(t, changed)

	term := bb.Terminator()
	require.Equal(t, ssa.OpJump, term.Op)
	require.Equal(t, elseBB, term.Target)
	require.Equal(t, []*ssa.Block{elseBB}, bb.Succs)
	require.Empty(t, thenBB.Preds)
	require.Equal(t, []*ssa.Block{bb}, elseBB.Preds)
	require.Equal(t, elseBB, after.Preds[0])
}

func TestRemoveIdenticalBranch_NoMatchWhenThenNotEmpty(t *testing.T) {
	fn := newTestFunc("f")
	_, thenBB, _, after := buildReductionShape(fn)

	// Give `then` a real effect so it no longer matches the narrow shape.
	extra := fn.NewInst(ssa.OpBinary)
	thenBB.InsertBefore(thenBB.Terminator(), extra)
	extra.BinOp = ast.Add
	extra.LHS.Set(fn.Const(1))
	extra.RHS.Set(fn.Const(2))
	_ = after

	changed := RemoveIdenticalBranch(fn)
	require.False(t, changed)
}
