package ssa_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/diag"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/parser"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/typeck"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"
)

func build(t *testing.T, src string) *ssa.Program {
	t.Helper()
	unit, err := parser.ParseString("t.c", src)
	require.NoError(t, err)
	prog := parser.Convert(unit)
	rep := diag.NewReporter("t.c", src)
	require.NoError(t, typeck.Check(prog, rep))
	return ssa.BuildProgram(prog)
}

func TestBuildSimpleReturn(t *testing.T) {
	p := build(t, `int main() { return 1 + 2; }`)
	require.Len(t, p.Funcs, 1)
	fn := p.Funcs[0]
	assert.Equal(t, "main", fn.Decl.Name)
	ret := fn.Entry.Terminator()
	require.NotNil(t, ret)
	assert.Equal(t, ssa.OpReturn, ret.Op)
	assert.True(t, ret.HasRetValue)
}

func TestBuildIfCreatesDiamond(t *testing.T) {
	p := build(t, `int main() { int x; if (1 < 2) { x = 1; } else { x = 2; } return x; }`)
	fn := p.Funcs[0]
	blocks := fn.Blocks()
	assert.GreaterOrEqual(t, len(blocks), 4) // entry, then, else, merge
}

func TestBuildWhileLoopsBack(t *testing.T) {
	p := build(t, `int main() { int i; i = 0; while (i < 10) { i = i + 1; } return i; }`)
	fn := p.Funcs[0]
	var condBlock *ssa.Block
	for _, blk := range fn.Blocks() {
		if blk.Name == "while.cond" {
			condBlock = blk
		}
	}
	require.NotNil(t, condBlock)
	assert.GreaterOrEqual(t, len(condBlock.Preds), 2) // entry jump + body back edge
}

func TestBuildModLoweredToDivMulSub(t *testing.T) {
	p := build(t, `int main() { return 7 % 3; }`)
	fn := p.Funcs[0]
	var sawDiv, sawMul, sawSub bool
	for i := fn.Entry.First(); i != nil; i = i.Next() {
		if i.Op == ssa.OpBinary {
			switch i.BinOp {
			case 3: // Div
				sawDiv = true
			case 2: // Mul
				sawMul = true
			case 1: // Sub
				sawSub = true
			}
		}
	}
	assert.True(t, sawDiv && sawMul && sawSub, "expected a % b to lower to div/mul/sub")
}

func TestBuildArrayMemsetHeuristic(t *testing.T) {
	// 20 zero elements should trigger the memset call path rather than 20
	// individual stores.
	p := build(t, `int main() { int a[20] = {0}; return a[0]; }`)
	fn := p.Funcs[0]
	var sawMemset bool
	for i := fn.Entry.First(); i != nil; i = i.Next() {
		if i.Op == ssa.OpCall && i.Callee != nil && i.Callee.Name == "memset" {
			sawMemset = true
		}
	}
	assert.True(t, sawMemset, "expected a run of >10 zero elements to lower to memset")
}
