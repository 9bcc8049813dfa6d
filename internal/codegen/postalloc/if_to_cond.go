package postalloc

import "github.com/TrivialCompiler/TrivialCompiler-sub000/internal/codegen/machine"

// IfToCond converts the pattern
//
//	BB1: b.cond BB3
//	BB2: ...Load/Store/FMA only...
//	BB3:
//
// (BB1 falls into BB2, BB2 falls into BB3, and BB1's sole branch target
// is BB3) into straight-line predicated execution: BB1's branch is
// dropped and every instruction in BB2 is given the opposite condition,
// so BB2 runs unconditionally but each predicated instruction only
// commits when the original branch would not have been taken. Ported
// from original_source/src/passes/asm/if_to_cond.cpp; a branch on Ge is
// never converted, as in the original.
func IfToCond(fn *machine.Function) {
	blocks := fn.Blocks()
	for bi, bb1 := range blocks {
		br := bb1.Last()
		if br == nil || br.Tag != machine.Branch {
			continue
		}
		if bi+1 >= len(blocks) {
			continue
		}
		bb2 := blocks[bi+1]
		bb3 := br.Target
		if bi+2 >= len(blocks) || blocks[bi+2] != bb3 {
			continue
		}
		if br.BrCond == machine.Ge {
			continue
		}

		canOptimize := true
		for i := bb2.First(); i != nil; i = i.Next() {
			switch i.Tag {
			case machine.Load, machine.Store, machine.FMA:
				if i.PredCond != machine.Any {
					canOptimize = false
				}
			default:
				canOptimize = false
			}
			if !canOptimize {
				break
			}
		}
		if !canOptimize {
			continue
		}

		bb1.Remove(br)
		if bb1.ControlTransfer == br {
			bb1.ControlTransfer = nil
		}
		cond := br.BrCond.Opposite()
		for i := bb2.First(); i != nil; i = i.Next() {
			i.PredCond = cond
		}
	}
}
