package pass

import (
	"testing"

	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"
	"github.com/stretchr/testify/require"
)

// buildCountingLoop builds entry -> header -(body/exit)-> ...; body: i_next =
// i+1; jump header -- a minimal two-block loop eligible for unrolling.
func buildCountingLoop(fn *ssa.Function) (header, body, exit *ssa.Block, phi *ssa.Instruction) {
	entry := fn.NewBlock("entry")
	header = fn.NewBlock("header")
	body = fn.NewBlock("body")
	exit = fn.NewBlock("exit")
	fn.Entry = entry

	jumpTo(fn, entry, header)

	phi = fn.NewInst(ssa.OpPhi)
	header.PushFront(phi)
	phi.AddIncoming(fn.Const(0)) // from entry, filled in after Preds known

	n := fn.Param(nil)
	cmp := fn.NewInst(ssa.OpBinary)
	header.PushBack(cmp)
	cmp.CondResult = true
	cmp.LHS.Set(phi)
	cmp.RHS.Set(n)

	branchOn(fn, header, cmp, body, exit)

	inc := fn.NewInst(ssa.OpBinary)
	body.PushBack(inc)
	inc.LHS.Set(phi)
	inc.RHS.Set(fn.Const(1))

	jumpTo(fn, body, header)
	phi.AddIncoming(inc) // from body, the back edge

	retVoid(fn, exit)
	return
}

func TestUnrollLoops_GuardedDoubleCopy(t *testing.T) {
	fn := newTestFunc("f")
	header, body, _, phi := buildCountingLoop(fn)

	cfg := Build(fn)
	require.Len(t, cfg.Loops, 1)

	changed := UnrollLoops(fn, cfg)
	require.True(t, changed)

	// header gained a third predecessor (the new unrolled block's back edge)
	// and the loop phi a matching third incoming value.
	require.Len(t, header.Preds, 3)
	require.Len(t, phi.Incoming, 3)
	second := header.Preds[2]
	require.Contains(t, second.Name, ".unr")

	bodyTerm := body.Terminator()
	require.Equal(t, ssa.OpBranch, bodyTerm.Op)
	cmp2, ok := bodyTerm.Cond.Value().(*ssa.Instruction)
	require.True(t, ok)
	require.Equal(t, ssa.OpBinary, cmp2.Op)
	require.True(t, cmp2.CondResult)

	secondTerm := second.Terminator()
	require.Equal(t, ssa.OpJump, secondTerm.Op)
	require.Equal(t, header, secondTerm.Target)

	// second's cloned increment must read body's inc result, not header's phi.
	var secondInc *ssa.Instruction
	for i := second.First(); i != nil; i = i.Next() {
		if i.Op == ssa.OpBinary {
			secondInc = i
			break
		}
	}
	require.NotNil(t, secondInc)
	require.NotEqual(t, phi, secondInc.LHS.Value())
}
