package pass

import (
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/ast"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"
)

// newTestFunc allocates a bare int-returning Function for a test, mirroring
// the small fixture functions original_source's own pass tests build by
// hand over a fixed-shape CFG.
func newTestFunc(name string) *ssa.Function {
	fn := ssa.NewFunction(&ast.Func{Name: name, IsInt: true})
	return fn
}

// jumpTo closes bb with an unconditional Jump to target and wires the edge.
func jumpTo(fn *ssa.Function, bb, target *ssa.Block) {
	j := fn.NewInst(ssa.OpJump)
	j.Target = target
	bb.PushBack(j)
	bb.AddSucc(target)
}

// branchOn closes bb with a Branch on cond to trueTarget/falseTarget.
func branchOn(fn *ssa.Function, bb *ssa.Block, cond ssa.Value, trueTarget, falseTarget *ssa.Block) *ssa.Instruction {
	br := fn.NewInst(ssa.OpBranch)
	br.TrueTarget, br.FalseTarget = trueTarget, falseTarget
	bb.PushBack(br)
	br.Cond.Set(cond)
	bb.AddSucc(trueTarget)
	bb.AddSucc(falseTarget)
	return br
}

func retVoid(fn *ssa.Function, bb *ssa.Block) {
	r := fn.NewInst(ssa.OpReturn)
	bb.PushBack(r)
}
