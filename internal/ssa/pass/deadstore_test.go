package pass

import (
	"testing"

	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/ast"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"
	"github.com/stretchr/testify/require"
)

func TestDeadStoreElim_OverwrittenBeforeLoad(t *testing.T) {
	fn := newTestFunc("f")
	bb := fn.NewBlock("entry")
	fn.Entry = bb

	decl := &ast.Decl{Name: "x"}
	alloca := fn.NewInst(ssa.OpAlloca)
	alloca.Decl = decl
	bb.PushBack(alloca)

	s1 := fn.NewInst(ssa.OpStore)
	bb.PushBack(s1)
	s1.Addr.Set(alloca)
	s1.Value.Set(fn.Const(1))

	s2 := fn.NewInst(ssa.OpStore)
	bb.PushBack(s2)
	s2.Addr.Set(alloca)
	s2.Value.Set(fn.Const(2))

	retVoid(fn, bb)

	changed := DeadStoreElim(fn)
	require.True(t, changed)

	var stores []*ssa.Instruction
	for i := bb.First(); i != nil; i = i.Next() {
		if i.Op == ssa.OpStore {
			stores = append(stores, i)
		}
	}
	require.Len(t, stores, 1)
	require.Equal(t, s2, stores[0])
}

func TestDeadStoreElim_LoadInBetweenKeepsBothStores(t *testing.T) {
	fn := newTestFunc("f")
	bb := fn.NewBlock("entry")
	fn.Entry = bb

	decl := &ast.Decl{Name: "x"}
	alloca := fn.NewInst(ssa.OpAlloca)
	alloca.Decl = decl
	bb.PushBack(alloca)

	s1 := fn.NewInst(ssa.OpStore)
	bb.PushBack(s1)
	s1.Addr.Set(alloca)
	s1.Value.Set(fn.Const(1))

	ld := fn.NewInst(ssa.OpLoad)
	bb.PushBack(ld)
	ld.Addr.Set(alloca)

	s2 := fn.NewInst(ssa.OpStore)
	bb.PushBack(s2)
	s2.Addr.Set(alloca)
	s2.Value.Set(ld)

	retVoid(fn, bb)

	changed := DeadStoreElim(fn)
	require.False(t, changed)
}
