package pass

import "github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"

// BBOpt simplifies a function's control-flow shape without touching its
// observable behavior, grounded on original_source/src/passes/ir/bbopt.cpp.
// It repeats constant/identical-branch folding and empty-jump-block
// elision until neither changes anything, then prunes unreachable blocks
// and merges straight-line blocks once each; folding can expose new empty
// blocks, and merging can expose new constant branches on later runs of the
// pass manager's pipeline.
func BBOpt(fn *ssa.Function) bool {
	changed := false
	for {
		c1 := simplifyBranches(fn)
		c2 := elideEmptyJumpBlocks(fn)
		if !c1 && !c2 {
			break
		}
		changed = true
	}
	if pruneUnreachable(fn) {
		changed = true
	}
	if mergeStraightLine(fn) {
		changed = true
	}
	return changed
}

// simplifyBranches folds a Branch with a constant condition, or with
// identical true/false targets (introduced by elideEmptyJumpBlocks merging
// two arms into the same block), into a Jump, dropping the now-dead edge's
// predecessor entry and matching phi incoming slot in the abandoned target.
func simplifyBranches(fn *ssa.Function) bool {
	changed := false
	for _, bb := range fn.Blocks() {
		term := bb.Terminator()
		if term == nil || term.Op != ssa.OpBranch {
			continue
		}
		var kept, dropped *ssa.Block
		if c, ok := term.Cond.Value().(*ssa.ConstValue); ok {
			if c.Imm != 0 {
				kept, dropped = term.TrueTarget, term.FalseTarget
			} else {
				kept, dropped = term.FalseTarget, term.TrueTarget
			}
		} else if term.TrueTarget == term.FalseTarget {
			kept, dropped = term.TrueTarget, term.FalseTarget
			changed = true // may expose a new empty jump-only block
		} else {
			continue
		}
		jmp := fn.NewInst(ssa.OpJump)
		jmp.Target = kept
		bb.InsertBefore(term, jmp)
		bb.Remove(term)
		term.Cond.Set(nil)

		bb.Succs = []*ssa.Block{kept}
		removePred(dropped, bb)
		changed = true
	}
	return changed
}

// retargetTerminator repoints term's block-reference field(s) from from to
// to, keeping the terminating instruction consistent with a Succs edit
// applied by its block's caller.
func retargetTerminator(term *ssa.Instruction, from, to *ssa.Block) {
	if term == nil {
		return
	}
	switch term.Op {
	case ssa.OpJump:
		if term.Target == from {
			term.Target = to
		}
	case ssa.OpBranch:
		if term.TrueTarget == from {
			term.TrueTarget = to
		}
		if term.FalseTarget == from {
			term.FalseTarget = to
		}
	}
}

// removePred drops bb from target's predecessor list and erases the
// matching incoming slot from every leading Phi/MemPhi.
func removePred(target, bb *ssa.Block) {
	idx := target.PredIndex(bb)
	if idx < 0 {
		return
	}
	target.Preds = append(target.Preds[:idx], target.Preds[idx+1:]...)
	for _, phi := range target.Phis() {
		phi.Incoming[idx].Set(nil)
		phi.Incoming = append(phi.Incoming[:idx], phi.Incoming[idx+1:]...)
	}
}

// elideEmptyJumpBlocks removes a non-entry block containing nothing but an
// unconditional Jump (to some other block), splicing its predecessors
// directly onto the target. A phi at target loses the one incoming slot
// that came from the elided block and gains one copy of that same value
// per real predecessor the elided block had, since those are now target's
// direct predecessors.
func elideEmptyJumpBlocks(fn *ssa.Function) bool {
	changed := false
	for _, bb := range fn.Blocks() {
		if bb == fn.Entry {
			continue
		}
		term := bb.Terminator()
		if term == nil || term.Op != ssa.OpJump || bb.First() != term || term.Target == bb {
			continue
		}
		target := term.Target
		// A predecessor that reaches target via both arms of a Branch would
		// lose the ability to distinguish which arm a target Phi's value
		// came from if bb (one of those arms) were elided into target.
		if len(target.Phis()) > 0 {
			ambiguous := false
			for _, p := range bb.Preds {
				pterm := p.Terminator()
				if pterm != nil && pterm.Op == ssa.OpBranch && (pterm.TrueTarget == target || pterm.FalseTarget == target) {
					ambiguous = true
					break
				}
			}
			if ambiguous {
				continue
			}
		}

		idx := target.PredIndex(bb)
		if idx < 0 {
			continue
		}
		target.Preds = append(target.Preds[:idx], target.Preds[idx+1:]...)
		preds := append([]*ssa.Block(nil), bb.Preds...)
		for _, p := range preds {
			for si, s := range p.Succs {
				if s == bb {
					p.Succs[si] = target
				}
			}
			retargetTerminator(p.Terminator(), bb, target)
			target.Preds = append(target.Preds, p)
		}
		for _, phi := range target.Phis() {
			v := phi.Incoming[idx].Value()
			phi.Incoming[idx].Set(nil)
			phi.Incoming = append(phi.Incoming[:idx], phi.Incoming[idx+1:]...)
			for range preds {
				phi.AddIncoming(v)
			}
		}
		removeBlock(bb)
		changed = true
	}
	return changed
}

// pruneUnreachable deletes every block no longer reachable from entry
// (possible once simplifyBranches/elideEmptyJumpBlocks drop edges),
// erasing the corresponding predecessor/phi entries on any still-reachable
// successor an unreachable block pointed at.
func pruneUnreachable(fn *ssa.Function) bool {
	reachable := map[*ssa.Block]bool{fn.Entry: true}
	worklist := []*ssa.Block{fn.Entry}
	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, s := range b.Succs {
			if s != nil && !reachable[s] {
				reachable[s] = true
				worklist = append(worklist, s)
			}
		}
	}
	changed := false
	for _, bb := range fn.Blocks() {
		if reachable[bb] {
			continue
		}
		for _, s := range bb.Succs {
			if s != nil && reachable[s] {
				removePred(s, bb)
			}
		}
	}
	for _, bb := range fn.Blocks() {
		if !reachable[bb] {
			removeBlock(bb)
			changed = true
		}
	}
	return changed
}

// mergeStraightLine splices a block's unique successor into it when that
// successor has exactly one predecessor and starts no Phi, purely to make
// later passes' block-local reasoning simpler; it has no effect on
// generated code.
func mergeStraightLine(fn *ssa.Function) bool {
	changed := false
	for _, bb := range fn.Blocks() {
		term := bb.Terminator()
		if term == nil || term.Op != ssa.OpJump {
			continue
		}
		target := term.Target
		if target == bb || len(target.Preds) != 1 || len(target.Phis()) != 0 {
			continue
		}
		bb.Remove(term)
		for i := target.First(); i != nil; {
			next := i.Next()
			target.Remove(i)
			bb.PushBack(i)
			i = next
		}
		bb.Succs = target.Succs
		for _, s := range bb.Succs {
			if s == nil {
				continue
			}
			idx := s.PredIndex(target)
			if idx >= 0 {
				s.Preds[idx] = bb
			}
		}
		removeBlock(target)
		changed = true
	}
	return changed
}

// removeBlock disconnects bb so no CFG walk from entry reaches it; callers
// have already retargeted every edge that used to point at bb. The pool
// arena never shrinks (see pool.go), so bb's slot stays allocated but
// unreferenced, the same convention DCE's instruction removal follows for
// individual instructions.
func removeBlock(bb *ssa.Block) {
	bb.Preds = nil
	bb.Succs = nil
}
