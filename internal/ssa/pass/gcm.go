package pass

import "github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"

// GCM repositions every movable instruction (binary, GEP, load, pure call)
// to the cheapest legal block: schedule-early pins it at the dominator-tree
// position closest to the root that every operand's definition dominates;
// schedule-late then walks from the LCA of all its users back up toward
// that early position, picking the block with the smallest loop depth,
// grounded on original_source/src/passes/ir/gvn_gcm.cpp's two-pass GCM.
// Must run after a fresh DCE + MemDep (SPEC_FULL.md §5's ordering rule).
func GCM(fn *ssa.Function, cfg *CFG) {
	early := make(map[*ssa.Instruction]*ssa.Block)
	var movable []*ssa.Instruction
	for _, b := range cfg.ReversePostorder() {
		for i := b.First(); i != nil; i = i.Next() {
			if isMovable(i) {
				movable = append(movable, i)
			}
		}
	}
	for _, i := range movable {
		scheduleEarlyImpl(i, fn.Entry, early)
	}
	for _, i := range movable {
		scheduleLate(i, early[i])
	}
	rescheduleComparesBeforeBranches(fn)
}

func isMovable(i *ssa.Instruction) bool {
	switch i.Op {
	case ssa.OpBinary, ssa.OpGetElementPtr, ssa.OpUnary:
		return true
	case ssa.OpLoad:
		return true
	case ssa.OpCall:
		return i.Callee != nil && isPure(i.Callee)
	}
	return false
}

func operandsOf(i *ssa.Instruction) []ssa.Value {
	var out []ssa.Value
	switch i.Op {
	case ssa.OpBinary:
		out = append(out, i.LHS.Value(), i.RHS.Value())
	case ssa.OpUnary:
		out = append(out, i.Operand.Value())
	case ssa.OpGetElementPtr:
		out = append(out, i.Base.Value())
		for _, idx := range i.Indices {
			out = append(out, idx.Value())
		}
	case ssa.OpLoad:
		out = append(out, i.Addr.Value())
	case ssa.OpCall:
		for _, a := range i.Args {
			out = append(out, a.Value())
		}
	}
	return out
}

// scheduleEarlyImpl places i (and, recursively, every movable operand it
// has not already been placed for) at the deepest of its operands'
// definition blocks, which every operand's definition dominates, per the
// classic Click GCM algorithm.
func scheduleEarlyImpl(i *ssa.Instruction, entry *ssa.Block, early map[*ssa.Instruction]*ssa.Block) *ssa.Block {
	if b, ok := early[i]; ok {
		return b
	}
	best := entry
	for _, op := range operandsOf(i) {
		var defBlock *ssa.Block
		switch v := op.(type) {
		case *ssa.Instruction:
			if isMovable(v) {
				defBlock = scheduleEarlyImpl(v, entry, early)
			} else {
				defBlock = v.Block
			}
		default:
			continue // constants/globals/params have no position requirement
		}
		if defBlock != nil && defBlock.DomLevel > best.DomLevel {
			best = defBlock
		}
	}
	early[i] = best
	return best
}

func scheduleLate(i *ssa.Instruction, earlyBlock *ssa.Block) {
	var lca *ssa.Block
	for u := i.FirstUse(); u != nil; u = u.NextUse() {
		user := u.User()
		useBlock := user.Block
		if user.Op == ssa.OpPhi || user.Op == ssa.OpMemPhi {
			idx := indexOfUse(user, u)
			if idx >= 0 && idx < len(useBlock.Preds) {
				useBlock = useBlock.Preds[idx]
			}
		}
		lca = lcaBlocks(lca, useBlock)
	}
	if lca == nil {
		return // dead or only used by itself; leave in place for DCE
	}
	best := lca
	for b := lca; b != nil && b != earlyBlock.IDom; b = b.IDom {
		if loopDepthOf(b) < loopDepthOf(best) {
			best = b
		}
		if b == earlyBlock {
			break
		}
	}
	if best == i.Block {
		return
	}
	moveToBlock(i, best)
}

func indexOfUse(phi *ssa.Instruction, u *ssa.Use) int {
	for idx := range phi.Incoming {
		if &phi.Incoming[idx] == u {
			return idx
		}
	}
	return -1
}

func lcaBlocks(a, b *ssa.Block) *ssa.Block {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	for a.DomLevel > b.DomLevel {
		a = a.IDom
	}
	for b.DomLevel > a.DomLevel {
		b = b.IDom
	}
	for a != b {
		a = a.IDom
		b = b.IDom
	}
	return a
}

func loopDepthOf(b *ssa.Block) int {
	if b.Loop == nil {
		return 0
	}
	return b.Loop.Depth
}

// moveToBlock relocates i into dst, placed immediately before its first
// user among dst's non-phi instructions (or at the end if none lives
// there), matching the original's "insert before first use in block."
func moveToBlock(i *ssa.Instruction, dst *ssa.Block) {
	i.Block.Remove(i)
	var firstUser *ssa.Instruction
	for cur := dst.First(); cur != nil; cur = cur.Next() {
		if instUses(cur, i) {
			firstUser = cur
			break
		}
	}
	if firstUser != nil {
		dst.InsertBefore(firstUser, i)
	} else if dst.Terminator() != nil {
		dst.InsertBefore(dst.Terminator(), i)
	} else {
		dst.PushBack(i)
	}
}

func instUses(user, target *ssa.Instruction) bool {
	for _, op := range operandsOf(user) {
		if op == ssa.Value(target) {
			return true
		}
	}
	return false
}

// rescheduleComparesBeforeBranches pulls a Binary comparison used only by
// the Branch that immediately follows it into the slot right before that
// branch, the small final re-schedule named in SPEC_FULL.md §4.5.
func rescheduleComparesBeforeBranches(fn *ssa.Function) {
	for _, b := range fn.Blocks() {
		term := b.Terminator()
		if term == nil || term.Op != ssa.OpBranch {
			continue
		}
		cmp, ok := term.Cond.Value().(*ssa.Instruction)
		if !ok || cmp.Op != ssa.OpBinary || !cmp.CondResult {
			continue
		}
		if cmp.FirstUse() == nil || cmp.FirstUse().NextUse() != nil {
			continue
		}
		if cmp.Block != term.Block || cmp.Next() == term {
			continue
		}
		cmp.Block.Remove(cmp)
		term.Block.InsertBefore(term, cmp)
	}
}
