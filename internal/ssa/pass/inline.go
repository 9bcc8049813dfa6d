package pass

import (
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/clog"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/ast"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"
)

// inlineThreshold matches original_source/src/passes/ir/inline_func.cpp's
// size cutoff: callees with 64 or more instructions are never inlined.
const inlineThreshold = 64

// Inline inlines calls to small, non-recursive functions, grounded on
// original_source/src/passes/ir/inline_func.cpp: a callee qualifies when
// its instruction count is below inlineThreshold and callgraph says it is
// not (self-)recursive. Cloning keeps old->new maps for blocks and values;
// phis are created empty and filled once every cloned body exists. A
// callee Return becomes a Jump to a synthesized "continue" block, feeding
// a Phi for the call's result.
func Inline(prog *ssa.Program, cg *CallGraph) {
	log := clog.For("inline")
	inlinable := make(map[*ssa.Function]bool)
	for _, f := range prog.Funcs {
		inlinable[f] = !cg.Recursive[f] && countInsts(f) < inlineThreshold
	}
	for _, caller := range prog.Funcs {
		for {
			site, callee := findInlinableCall(caller, prog, inlinable)
			if site == nil {
				break
			}
			log.Debug().Str("caller", caller.Decl.Name).Str("callee", callee.Decl.Name).Msg("inlining call")
			inlineCall(caller, site, callee)
		}
	}
}

func countInsts(f *ssa.Function) int {
	n := 0
	for _, b := range f.Blocks() {
		for i := b.First(); i != nil; i = i.Next() {
			n++
		}
	}
	return n
}

func findInlinableCall(caller *ssa.Function, prog *ssa.Program, inlinable map[*ssa.Function]bool) (*ssa.Instruction, *ssa.Function) {
	for _, b := range caller.Blocks() {
		for i := b.First(); i != nil; i = i.Next() {
			if i.Op != ssa.OpCall || i.Callee == nil || i.Callee.Builtin {
				continue
			}
			callee := prog.FuncByName(i.Callee.Name)
			if callee == nil || callee == caller || !inlinable[callee] {
				continue
			}
			return i, callee
		}
	}
	return nil, nil
}

// inlineCall splices a clone of callee's body into caller at the call
// site call, splitting call's block into a head (everything up to and
// including the call's predecessors) and a tail (everything after the
// call), with the cloned entry jumped into from the head and every cloned
// Return turned into a Jump to the tail, feeding a Phi there when the
// callee returns int.
func inlineCall(caller *ssa.Function, call *ssa.Instruction, callee *ssa.Function) {
	origBlock := call.Block
	tail := caller.NewBlock("inline.cont")
	moveRestInto(origBlock, call, tail)

	blockMap := map[*ssa.Block]*ssa.Block{}
	valueMap := map[ssa.Value]ssa.Value{}
	for i, ref := range calleeParamRefs(callee) {
		if ref != nil {
			valueMap[ssa.Value(ref)] = call.Args[i].Value()
		}
	}

	for _, b := range callee.Blocks() {
		blockMap[b] = caller.NewBlock("inline." + b.Name)
	}
	// Second pass: clone instructions now that every block has a mapped
	// counterpart (phi incoming values may reference any cloned block).
	var retPhi *ssa.Instruction
	if callee.Decl.IsInt {
		retPhi = caller.NewInst(ssa.OpPhi)
	}
	type pendingReturn struct {
		nb    *ssa.Block
		value ssa.Value // old (callee-side) return value, nil for void
	}
	var returns []pendingReturn
	for _, b := range callee.Blocks() {
		nb := blockMap[b]
		for i := b.First(); i != nil; i = i.Next() {
			if i.Op == ssa.OpReturn {
				var v ssa.Value
				if i.HasRetValue {
					v = i.Value.Value()
				}
				returns = append(returns, pendingReturn{nb: nb, value: v})
				continue
			}
			ni := cloneInst(caller, i)
			nb.PushBack(ni)
			valueMap[ssa.Value(i)] = ni
		}
	}
	fixupClonedOperands(callee, blockMap, valueMap)

	for _, r := range returns {
		jmp := caller.NewInst(ssa.OpJump)
		jmp.Target = tail
		r.nb.PushBack(jmp)
		r.nb.AddSucc(tail)
		if retPhi != nil {
			v := r.value
			if mapped, ok := valueMap[v]; ok {
				v = mapped
			}
			retPhi.AddIncoming(v)
		}
	}

	origJump := caller.NewInst(ssa.OpJump)
	origJump.Target = blockMap[callee.Entry]
	origBlock.PushBack(origJump)
	origBlock.AddSucc(blockMap[callee.Entry])

	if retPhi != nil {
		tail.PushFront(retPhi)
		replaceAllUses(call, retPhi)
	}
	call.Block.Remove(call)
}

// moveRestInto splits origBlock at call: every instruction after call
// moves to tail (call itself stays in origBlock; inlineCall removes it),
// and origBlock's successors become tail's.
func moveRestInto(origBlock *ssa.Block, call *ssa.Instruction, tail *ssa.Block) {
	var rest []*ssa.Instruction
	for i := call.Next(); i != nil; i = i.Next() {
		rest = append(rest, i)
	}
	for _, i := range rest {
		origBlock.Remove(i)
		tail.PushBack(i)
	}
	tail.Succs = origBlock.Succs
	for _, s := range tail.Succs {
		for idx, p := range s.Preds {
			if p == origBlock {
				s.Preds[idx] = tail
			}
		}
	}
	origBlock.Succs = nil
}

// calleeParamRefs finds, for each of callee's declared parameters, the
// single ssa.ParamRef instance the (already mem2reg'd) body uses for it,
// by scanning every instruction's operands: after mem2reg a scalar
// parameter's alloca is gone and every former load has already been
// replaced by the one ParamRef the entry-block store propagated, and array
// parameters are cached to one ParamRef by the builder, so at most one
// instance per declaration exists to find.
func calleeParamRefs(f *ssa.Function) []*ssa.ParamRef {
	byDecl := make(map[*ast.Decl]*ssa.ParamRef)
	for _, b := range f.Blocks() {
		for i := b.First(); i != nil; i = i.Next() {
			for _, op := range instOperands(i) {
				if ref, ok := op.(*ssa.ParamRef); ok {
					byDecl[ref.Decl.(*ast.Decl)] = ref
				}
			}
		}
	}
	out := make([]*ssa.ParamRef, len(f.Decl.Params))
	for i := range f.Decl.Params {
		out[i] = byDecl[&f.Decl.Params[i]]
	}
	return out
}

// cloneInst allocates a structural copy of i (a non-Return instruction) in
// caller; operand wiring that needs the full blockMap/valueMap is deferred
// to fixupClonedOperands since callee instructions may reference values
// defined later (phi incoming from not-yet-cloned predecessors).
func cloneInst(caller *ssa.Function, i *ssa.Instruction) *ssa.Instruction {
	return i.CloneShape(caller)
}

// fixupClonedOperands re-walks the cloned callee and wires every operand
// through valueMap/blockMap now that both are complete.
func fixupClonedOperands(callee *ssa.Function, blockMap map[*ssa.Block]*ssa.Block, valueMap map[ssa.Value]ssa.Value) {
	remap := func(v ssa.Value) ssa.Value {
		if v == nil {
			return nil
		}
		if mapped, ok := valueMap[v]; ok {
			return mapped
		}
		return v
	}
	for _, b := range callee.Blocks() {
		nb := blockMap[b]
		oi, ni := b.First(), nb.First()
		for oi != nil && ni != nil {
			switch oi.Op {
			case ssa.OpBinary:
				ni.LHS.Set(remap(oi.LHS.Value()))
				ni.RHS.Set(remap(oi.RHS.Value()))
			case ssa.OpUnary:
				ni.Operand.Set(remap(oi.Operand.Value()))
			case ssa.OpLoad:
				ni.Addr.Set(remap(oi.Addr.Value()))
				ni.MemInput.Set(remap(oi.MemInput.Value()))
			case ssa.OpStore:
				ni.Addr.Set(remap(oi.Addr.Value()))
				ni.Value.Set(remap(oi.Value.Value()))
			case ssa.OpGetElementPtr:
				ni.Base.Set(remap(oi.Base.Value()))
				for idx := range oi.Indices {
					ni.Indices[idx].Set(remap(oi.Indices[idx].Value()))
				}
			case ssa.OpCall:
				for idx := range oi.Args {
					ni.Args[idx].Set(remap(oi.Args[idx].Value()))
				}
				ni.MemInput.Set(remap(oi.MemInput.Value()))
			case ssa.OpPhi, ssa.OpMemPhi:
				for idx := range oi.Incoming {
					ni.Incoming[idx].Set(remap(oi.Incoming[idx].Value()))
				}
			case ssa.OpBranch:
				ni.Cond.Set(remap(oi.Cond.Value()))
				ni.TrueTarget = blockMap[oi.TrueTarget]
				ni.FalseTarget = blockMap[oi.FalseTarget]
			case ssa.OpJump:
				ni.Target = blockMap[oi.Target]
			}
			oi, ni = oi.Next(), ni.Next()
		}
		nb.Succs = make([]*ssa.Block, len(b.Succs))
		for idx, s := range b.Succs {
			nb.Succs[idx] = blockMap[s]
		}
	}
	for _, b := range callee.Blocks() {
		nb := blockMap[b]
		nb.Preds = nil
	}
	for _, b := range callee.Blocks() {
		nb := blockMap[b]
		for _, s := range nb.Succs {
			if s != nil {
				s.Preds = append(s.Preds, nb)
			}
		}
	}
}
