package pass

import (
	"testing"

	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/ast"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"
	"github.com/stretchr/testify/require"
)

func TestMarkGlobalConst_NeverWrittenBecomesConst(t *testing.T) {
	readOnly := &ast.Decl{Name: "table", IsGlob: true}
	written := &ast.Decl{Name: "counter", IsGlob: true}
	prog := &ssa.Program{Globals: []*ast.Decl{readOnly, written}}

	fn := newTestFunc("f")
	bb := fn.NewBlock("entry")
	fn.Entry = bb

	readGep := fn.NewInst(ssa.OpGetElementPtr)
	bb.PushBack(readGep)
	readGep.Base.Set(fn.Global(readOnly))
	readGep.AddIndex(fn.Const(0))
	ld := fn.NewInst(ssa.OpLoad)
	bb.PushBack(ld)
	ld.Addr.Set(readGep)

	writeGep := fn.NewInst(ssa.OpGetElementPtr)
	bb.PushBack(writeGep)
	writeGep.Base.Set(fn.Global(written))
	writeGep.AddIndex(fn.Const(0))
	st := fn.NewInst(ssa.OpStore)
	bb.PushBack(st)
	st.Addr.Set(writeGep)
	st.Value.Set(fn.Const(1))

	retVoid(fn, bb)
	prog.Funcs = []*ssa.Function{fn}

	MarkGlobalConst(prog)

	require.True(t, readOnly.IsConst)
	require.False(t, written.IsConst)
}

func TestMarkGlobalConst_PassedByReferenceIsNotConst(t *testing.T) {
	arr := &ast.Decl{Name: "arr", IsGlob: true}
	prog := &ssa.Program{Globals: []*ast.Decl{arr}}

	fn := newTestFunc("f")
	bb := fn.NewBlock("entry")
	fn.Entry = bb

	gep := fn.NewInst(ssa.OpGetElementPtr)
	bb.PushBack(gep)
	gep.Base.Set(fn.Global(arr))
	gep.AddIndex(fn.Const(0))

	callee := &ast.Func{Name: "mutate"}
	call := fn.NewInst(ssa.OpCall)
	bb.PushBack(call)
	call.Callee = callee
	call.AddArg(gep)

	retVoid(fn, bb)
	prog.Funcs = []*ssa.Function{fn}

	MarkGlobalConst(prog)

	require.False(t, arr.IsConst)
}
