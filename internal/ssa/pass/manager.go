package pass

import "github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"

// Manager runs the fixed IR pipeline over a whole program, gated by an
// optimization level (`-O` on the CLI), grounded on
// original_source/src/main.cpp's pass-ordering calls and the ordering
// guarantees recorded in SPEC_FULL.md §5: mem2reg depends on dominance;
// memdep depends on a just-run mem2reg; GVN depends on a just-run memdep;
// GCM depends on a just-run DCE and a just-run memdep; scheduling (outside
// this package) runs after register allocation.
//
// mem2reg and memdep are not gated by OptLevel: they always run as
// mandatory lowering, not an optional optimization — an Open Question
// decision recorded in DESIGN.md.
type Manager struct {
	OptLevel int
}

// NewManager returns a Manager for the given -O level (0 disables every
// optional pass below).
func NewManager(optLevel int) *Manager {
	return &Manager{OptLevel: optLevel}
}

// Run lowers and (if OptLevel > 0) optimizes every function in prog, then
// prunes functions unreachable from main.
func (m *Manager) Run(prog *ssa.Program) {
	for _, fn := range prog.Funcs {
		m.runFunction(fn)
	}
	if m.OptLevel > 0 {
		MarkGlobalConst(prog)
		cg := BuildCallGraph(prog)
		Inline(prog, cg)
		for _, fn := range prog.Funcs {
			m.runFunction(fn) // re-lower/optimize bodies grown by inlining
		}
		cg = BuildCallGraph(prog)
		RemoveUnusedFunctions(prog, cg)
	}
}

// runFunction applies the mandatory lowering and, at OptLevel > 0, the
// optional passes, re-deriving the CFG whenever a preceding pass could
// have changed dominance (mem2reg does not touch edges, so memdep reuses
// its CFG; every pass that can add/remove blocks or edges rebuilds it
// before the next CFG-dependent pass runs).
func (m *Manager) runFunction(fn *ssa.Function) {
	cfg := Build(fn)
	Mem2Reg(fn, cfg)
	MemDep(fn, cfg)

	if m.OptLevel == 0 {
		return
	}

	for {
		changed := false
		if GVN(fn, cfg) {
			changed = true
		}
		DCE(fn, cfg)
		cfg = Build(fn)
		MemDep(fn, cfg)
		GCM(fn, cfg)
		if BBOpt(fn) {
			changed = true
		}
		cfg = Build(fn)
		if UnrollLoops(fn, cfg) {
			changed = true
			cfg = Build(fn)
			MemDep(fn, cfg)
		}
		if DeadStoreElim(fn) {
			changed = true
		}
		if RemoveIdenticalBranch(fn) {
			changed = true
			cfg = Build(fn)
		}
		if !changed {
			break
		}
	}
	DCE(fn, cfg)
}
