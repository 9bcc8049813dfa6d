package pass

import "github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"

// CallGraph is the direct (non-transitive) call relation between a
// program's functions, grounded on
// original_source/src/passes/ir/callgraph.cpp: used by the inliner to
// refuse inlining a (mutually or self) recursive callee, and by
// RemoveUnusedFunctions to prune anything unreachable from main.
type CallGraph struct {
	Calls     map[*ssa.Function][]*ssa.Function
	Recursive map[*ssa.Function]bool
}

// BuildCallGraph walks every call site in every function of prog.
func BuildCallGraph(prog *ssa.Program) *CallGraph {
	cg := &CallGraph{
		Calls:     make(map[*ssa.Function][]*ssa.Function),
		Recursive: make(map[*ssa.Function]bool),
	}
	for _, f := range prog.Funcs {
		seen := make(map[*ssa.Function]bool)
		for _, b := range f.Blocks() {
			for i := b.First(); i != nil; i = i.Next() {
				if i.Op != ssa.OpCall || i.Callee == nil || i.Callee.Builtin {
					continue
				}
				callee := prog.FuncByName(i.Callee.Name)
				if callee == nil || seen[callee] {
					continue
				}
				seen[callee] = true
				cg.Calls[f] = append(cg.Calls[f], callee)
			}
		}
	}
	for _, f := range prog.Funcs {
		cg.Recursive[f] = reaches(cg, f, f, make(map[*ssa.Function]bool))
	}
	return cg
}

// reaches reports whether start is reachable (transitively) from f's
// direct callees, i.e. f calls itself directly or through some chain.
func reaches(cg *CallGraph, f, start *ssa.Function, visited map[*ssa.Function]bool) bool {
	for _, callee := range cg.Calls[f] {
		if callee == start {
			return true
		}
		if visited[callee] {
			continue
		}
		visited[callee] = true
		if reaches(cg, callee, start, visited) {
			return true
		}
	}
	return false
}

// RemoveUnusedFunctions prunes every function unreachable from main,
// never touching builtins (which have no ssa.Function at all).
func RemoveUnusedFunctions(prog *ssa.Program, cg *CallGraph) {
	main := prog.FuncByName("main")
	if main == nil {
		return
	}
	reachable := map[*ssa.Function]bool{main: true}
	worklist := []*ssa.Function{main}
	for len(worklist) > 0 {
		f := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, callee := range cg.Calls[f] {
			if !reachable[callee] {
				reachable[callee] = true
				worklist = append(worklist, callee)
			}
		}
	}
	var kept []*ssa.Function
	for _, f := range prog.Funcs {
		if reachable[f] {
			kept = append(kept, f)
		}
	}
	prog.Funcs = kept
}
