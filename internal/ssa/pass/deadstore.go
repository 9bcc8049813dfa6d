package pass

import "github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"

// DeadStoreElim removes a Store when, scanning forward within its own
// block, another Store to the exact same (base, indices) overwrites it
// before any aliasing Load or side-effecting Call could observe the first
// value, grounded on
// original_source/src/passes/ir/dead_store_elim.cpp. This is intentionally
// block-local (the original's forward scan never crosses a block
// boundary either) and runs after MemDep so alias decisions reuse the same
// symbol resolution.
func DeadStoreElim(fn *ssa.Function) bool {
	changed := false
	for _, b := range fn.Blocks() {
		var next *ssa.Instruction
		for i := b.First(); i != nil; i = next {
			next = i.Next()
			if i.Op != ssa.OpStore {
				continue
			}
			sym := gepSymbol(i.Addr.Value())
			if sym == nil {
				continue
			}
			for j := i.Next(); j != nil; j = j.Next() {
				if j.Op == ssa.OpLoad && gepSymbol(j.Addr.Value()) == sym {
					break
				}
				if j.Op == ssa.OpCall && callMayAlias(j, sym) {
					break
				}
				if j.Op == ssa.OpStore && gepSymbol(j.Addr.Value()) == sym && sameAddress(i.Addr.Value(), j.Addr.Value()) {
					b.Remove(i)
					changed = true
					break
				}
			}
		}
	}
	return changed
}
