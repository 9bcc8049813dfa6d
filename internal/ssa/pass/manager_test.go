package pass

import (
	"testing"

	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/ast"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"
	"github.com/stretchr/testify/require"
)

func TestManager_OptLevel0_SkipsOptionalPasses(t *testing.T) {
	fn := newTestFunc("f")
	bb := fn.NewBlock("entry")
	fn.Entry = bb
	// a redundant binary GVN/DCE at -O1 would fold away
	a := fn.NewInst(ssa.OpBinary)
	bb.PushBack(a)
	a.BinOp = ast.Add
	a.LHS.Set(fn.Const(1))
	a.RHS.Set(fn.Const(1))
	b := fn.NewInst(ssa.OpBinary)
	bb.PushBack(b)
	b.BinOp = ast.Add
	b.LHS.Set(fn.Const(1))
	b.RHS.Set(fn.Const(1))
	retVoid(fn, bb)

	prog := &ssa.Program{Funcs: []*ssa.Function{fn}}
	NewManager(0).Run(prog)

	count := 0
	for i := bb.First(); i != nil; i = i.Next() {
		if i.Op == ssa.OpBinary {
			count++
		}
	}
	require.Equal(t, 2, count)
}

func TestManager_OptLevel1_FoldsRedundantBinary(t *testing.T) {
	fn := newTestFunc("f")
	bb := fn.NewBlock("entry")
	fn.Entry = bb
	a := fn.NewInst(ssa.OpBinary)
	bb.PushBack(a)
	a.BinOp = ast.Add
	a.LHS.Set(fn.Const(1))
	a.RHS.Set(fn.Const(1))
	b := fn.NewInst(ssa.OpBinary)
	bb.PushBack(b)
	b.BinOp = ast.Add
	b.LHS.Set(fn.Const(1))
	b.RHS.Set(fn.Const(1))
	ret := fn.NewInst(ssa.OpReturn)
	bb.PushBack(ret)
	ret.HasRetValue = true
	ret.Value.Set(b)

	prog := &ssa.Program{Funcs: []*ssa.Function{fn}}
	fn.Decl.Name = "main"
	NewManager(1).Run(prog)

	count := 0
	for i := bb.First(); i != nil; i = i.Next() {
		if i.Op == ssa.OpBinary {
			count++
		}
	}
	// GVN constant-folds both 1+1 instructions, so none survives
	require.Equal(t, 0, count)
}
