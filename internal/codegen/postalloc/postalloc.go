// Package postalloc is the machine-code peephole/scheduling pipeline that
// runs once register allocation has finished: asm-level simplification,
// if-conversion, frame-size bookkeeping, and instruction scheduling,
// grounded on original_source/src/passes/asm/*.cpp (run in that order
// from main.cpp, one pass per file rather than one combined pass).
package postalloc

import "github.com/TrivialCompiler/TrivialCompiler-sub000/internal/codegen/machine"

// Run applies every post-allocation pass to every function in mp, in the
// order the original compiler's driver applies them: peephole cleanup
// first (so if-to-cond and the scheduler see a minimal instruction
// stream), if-conversion next (removes branches, which must happen
// before ComputeStackInfo since the sp-argument fixups are keyed to the
// final frame layout, not branch structure), then stack-frame
// bookkeeping, and scheduling last (reorders the now-final instruction
// set).
func Run(mp *machine.Program) {
	for _, fn := range mp.Funcs {
		AsmSimplify(fn)
		IfToCond(fn)
		ComputeStackInfo(fn)
		Schedule(fn)
	}
}
