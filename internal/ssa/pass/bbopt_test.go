package pass

import (
	"testing"

	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"
	"github.com/stretchr/testify/require"
)

func TestSimplifyBranches_ConstantCond(t *testing.T) {
	fn := newTestFunc("f")
	entry := fn.NewBlock("entry")
	thenB := fn.NewBlock("then")
	elseB := fn.NewBlock("else")
	fn.Entry = entry

	branchOn(fn, entry, fn.Const(1), thenB, elseB)
	retVoid(fn, thenB)
	retVoid(fn, elseB)

	changed := simplifyBranches(fn)
	require.True(t, changed)

	term := entry.Terminator()
	require.Equal(t, ssa.OpJump, term.Op)
	require.Equal(t, thenB, term.Target)
	require.Equal(t, []*ssa.Block{thenB}, entry.Succs)
	require.Empty(t, elseB.Preds)
}

func TestElideEmptyJumpBlocks(t *testing.T) {
	fn := newTestFunc("f")
	entry := fn.NewBlock("entry")
	mid := fn.NewBlock("mid")
	exit := fn.NewBlock("exit")
	fn.Entry = entry

	jumpTo(fn, entry, mid)
	jumpTo(fn, mid, exit)
	retVoid(fn, exit)

	changed := elideEmptyJumpBlocks(fn)
	require.True(t, changed)

	term := entry.Terminator()
	require.Equal(t, ssa.OpJump, term.Op)
	require.Equal(t, exit, term.Target)
	require.Equal(t, []*ssa.Block{entry}, exit.Preds)
}

func TestPruneUnreachable(t *testing.T) {
	fn := newTestFunc("f")
	entry := fn.NewBlock("entry")
	reachable := fn.NewBlock("reachable")
	dead := fn.NewBlock("dead")
	fn.Entry = entry

	jumpTo(fn, entry, reachable)
	retVoid(fn, reachable)
	retVoid(fn, dead) // dead has no predecessor reachable from entry

	changed := pruneUnreachable(fn)
	require.True(t, changed)
	require.Nil(t, dead.Succs)
	require.Nil(t, dead.Preds)
}

func TestMergeStraightLine(t *testing.T) {
	fn := newTestFunc("f")
	entry := fn.NewBlock("entry")
	next := fn.NewBlock("next")
	fn.Entry = entry

	c := fn.NewInst(ssa.OpBinary)
	entry.PushBack(c)
	c.LHS.Set(fn.Const(1))
	c.RHS.Set(fn.Const(2))

	jumpTo(fn, entry, next)
	r := fn.NewInst(ssa.OpUnary)
	next.PushBack(r)
	r.Operand.Set(c)
	retVoid(fn, next)

	changed := mergeStraightLine(fn)
	require.True(t, changed)
	require.Equal(t, ssa.OpReturn, entry.Terminator().Op)
	// the unary that lived in `next` now lives in `entry`, after `c`
	require.Equal(t, r, c.Next())
}

func TestBBOpt_Fixpoint(t *testing.T) {
	fn := newTestFunc("f")
	entry := fn.NewBlock("entry")
	thenB := fn.NewBlock("then")
	elseB := fn.NewBlock("else")
	merge := fn.NewBlock("merge")
	fn.Entry = entry

	branchOn(fn, entry, fn.Const(0), thenB, elseB)
	jumpTo(fn, thenB, merge)
	jumpTo(fn, elseB, merge)
	retVoid(fn, merge)

	changed := BBOpt(fn)
	require.True(t, changed)
	// the branch folds to else, both arms are elided, and the final merge
	// pulls `merge` (and its return) into entry
	require.Equal(t, ssa.OpReturn, entry.Terminator().Op)
}
