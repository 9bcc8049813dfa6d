package pass

import "github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"

// Mem2Reg promotes scalar-only allocas (arrays are left in memory; alias
// analysis in memdep.go handles those) to SSA registers, grounded on
// original_source/src/passes/ir/mem2reg.cpp: iterated-dominance-frontier
// phi placement followed by a dominator-tree-order renaming walk.
func Mem2Reg(fn *ssa.Function, cfg *CFG) {
	allocas := scalarAllocas(fn)
	if len(allocas) == 0 {
		return
	}

	defBlocks := make(map[*ssa.Instruction]map[*ssa.Block]bool)
	for _, a := range allocas {
		defBlocks[a] = map[*ssa.Block]bool{}
	}
	for _, b := range cfg.ReversePostorder() {
		for i := b.First(); i != nil; i = i.Next() {
			if i.Op == ssa.OpStore {
				if a, ok := i.Addr.Value().(*ssa.Instruction); ok && defBlocks[a] != nil {
					defBlocks[a][b] = true
				}
			}
		}
	}

	phis := make(map[*ssa.Instruction]map[*ssa.Block]*ssa.Instruction) // alloca -> block -> its phi
	for _, a := range allocas {
		phis[a] = placePhis(a, defBlocks[a])
	}

	// every promoted alloca starts out undef at entry, so its loads and
	// stores are tracked from the first block on
	seed := make(map[*ssa.Instruction]ssa.Value, len(allocas))
	for _, a := range allocas {
		seed[a] = ssa.Undef()
	}
	renameFromBlock(fn.Entry, allocas, phis, seed, map[*ssa.Block]bool{})

	for _, a := range allocas {
		a.Block.Remove(a)
	}
}

func scalarAllocas(fn *ssa.Function) []*ssa.Instruction {
	var out []*ssa.Instruction
	for _, b := range fn.Blocks() {
		for i := b.First(); i != nil; i = i.Next() {
			if i.Op == ssa.OpAlloca && i.ArraySize == 0 {
				out = append(out, i)
			}
		}
	}
	return out
}

// placePhis computes the iterated dominance frontier of defBlocks and
// inserts one Phi per block in it, returning the block -> Phi map.
func placePhis(alloca *ssa.Instruction, defBlocks map[*ssa.Block]bool) map[*ssa.Block]*ssa.Instruction {
	result := make(map[*ssa.Block]*ssa.Instruction)
	hasPhi := make(map[*ssa.Block]bool)
	worklist := make([]*ssa.Block, 0, len(defBlocks))
	for b := range defBlocks {
		worklist = append(worklist, b)
	}
	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, f := range b.DomFrontier {
			if hasPhi[f] {
				continue
			}
			hasPhi[f] = true
			phi := f.First() // placeholder, overwritten below
			_ = phi
			inst := newPhi(f, len(f.Preds))
			f.PushFront(inst)
			result[f] = inst
			if !defBlocks[f] {
				worklist = append(worklist, f)
			}
		}
	}
	return result
}

func newPhi(b *ssa.Block, numPreds int) *ssa.Instruction {
	inst := b.Func.NewInst(ssa.OpPhi)
	for i := 0; i < numPreds; i++ {
		inst.AddIncoming(ssa.Undef())
	}
	return inst
}

// renameFromBlock walks the dominator tree from b, threading the current
// SSA value of each tracked alloca through `current`, filling phi operands
// at every successor and recursing into dominator children, matching
// mem2reg.cpp's worklist2 of (block, values) pairs.
func renameFromBlock(b *ssa.Block, allocas []*ssa.Instruction, phis map[*ssa.Instruction]map[*ssa.Block]*ssa.Instruction, incoming map[*ssa.Instruction]ssa.Value, visited map[*ssa.Block]bool) {
	if visited[b] {
		return
	}
	visited[b] = true

	current := make(map[*ssa.Instruction]ssa.Value, len(allocas))
	for a, v := range incoming {
		current[a] = v
	}
	for _, a := range allocas {
		if phi, ok := phis[a][b]; ok {
			current[a] = phi
		}
	}

	var next *ssa.Instruction
	for i := b.First(); i != nil; i = next {
		next = i.Next()
		switch i.Op {
		case ssa.OpPhi:
			// already accounted for above unless it belongs to a
			// different alloca than the ones we're tracking; leave as is.
		case ssa.OpAlloca:
			// handled at the Mem2Reg top level (removed after renaming).
		case ssa.OpLoad:
			if a, ok := i.Addr.Value().(*ssa.Instruction); ok {
				if v, tracked := current[a]; tracked {
					replaceAllUses(i, v)
					b.Remove(i)
				}
			}
		case ssa.OpStore:
			if a, ok := i.Addr.Value().(*ssa.Instruction); ok {
				if _, tracked := current[a]; tracked {
					current[a] = i.Value.Value()
					b.Remove(i)
				}
			}
		}
	}

	for _, s := range b.Succs {
		predIdx := s.PredIndex(b)
		for _, a := range allocas {
			if phi, ok := phis[a][s]; ok {
				phi.Incoming[predIdx].Set(current[a])
			}
		}
	}

	for _, child := range b.DomChildren {
		renameFromBlock(child, allocas, phis, current, visited)
	}
}

// replaceAllUses rewrites every user of old to point at repl instead.
func replaceAllUses(old *ssa.Instruction, repl ssa.Value) {
	for u := old.FirstUse(); u != nil; {
		next := u.NextUse()
		u.Set(repl)
		u = next
	}
}
