package pass

import (
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/clog"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"
)

// unrollBodyThreshold matches original_source/src/passes/ir/loop_unroll.cpp:
// only bodies under 16 instructions, with no calls or allocas, are unrolled.
const unrollBodyThreshold = 16

// UnrollLoops unrolls by factor 2 every loop of exactly two blocks (header +
// body) whose header ends in a single comparison-branch and whose body is a
// straight-line block closed by an unconditional jump back to the header,
// per SPEC_FULL.md §4.6. The unrolled form clones the header's guard into
// the body so a second copy of the body only runs when the loop would have
// continued anyway, preserving exact semantics for both even and odd trip
// counts (the "guarding if" named in the spec).
func UnrollLoops(fn *ssa.Function, cfg *CFG) bool {
	log := clog.For("loop_unroll")
	changed := false
	for _, loop := range cfg.Loops {
		if !eligibleForUnroll(loop) {
			continue
		}
		log.Debug().Str("func", fn.Decl.Name).Str("header", loop.Header.Name).Msg("unrolling loop body")
		unrollOnce(fn, loop)
		changed = true
	}
	return changed
}

func eligibleForUnroll(loop *ssa.Loop) bool {
	if len(loop.Body) != 2 {
		return false
	}
	body := bodyBlock(loop)
	header := loop.Header
	if body == nil {
		return false
	}
	n := 0
	for i := body.First(); i != nil; i = i.Next() {
		n++
		if i.Op == ssa.OpCall || i.Op == ssa.OpAlloca {
			return false
		}
	}
	if n >= unrollBodyThreshold {
		return false
	}
	term := body.Terminator()
	if term == nil || term.Op != ssa.OpJump || term.Target != header {
		return false
	}
	hterm := header.Terminator()
	if hterm == nil || hterm.Op != ssa.OpBranch {
		return false
	}
	cmp, ok := hterm.Cond.Value().(*ssa.Instruction)
	return ok && cmp.Op == ssa.OpBinary && cmp.CondResult && cmp.Block == header
}

func bodyBlock(loop *ssa.Loop) *ssa.Block {
	for _, b := range loop.Body {
		if b != loop.Header {
			return b
		}
	}
	return nil
}

// unrollOnce performs the guarded two-copy expansion described above.
func unrollOnce(fn *ssa.Function, loop *ssa.Loop) {
	header := loop.Header
	body := bodyBlock(loop)
	hterm := header.Terminator()
	cmp := hterm.Cond.Value().(*ssa.Instruction)
	bodyPredIdx := header.PredIndex(body)

	headerPhis := header.Phis()
	// bodyNext[phi] is the value body produced for phi this trip, i.e. the
	// value flowing into header's phi along the body->header edge: the
	// correct "current" value to feed a second trip through the body.
	bodyNext := make(map[*ssa.Instruction]ssa.Value, len(headerPhis))
	for _, phi := range headerPhis {
		bodyNext[phi] = phi.Incoming[bodyPredIdx].Value()
	}
	remapToBody := func(v ssa.Value) ssa.Value {
		if phi, ok := v.(*ssa.Instruction); ok {
			if nv, tracked := bodyNext[phi]; tracked {
				return nv
			}
		}
		return v
	}

	// Detach the old unconditional jump back to header before appending
	// anything else, since Block.Terminator only recognizes the tail
	// instruction and a non-terminator tail would make it return nil.
	bodyTerm := body.Terminator()
	body.Remove(bodyTerm)

	// Clone the header guard into the tail of body, reading post-body
	// values instead of the header phis, so the second copy only runs
	// when the loop would genuinely have continued.
	cmp2 := cmp.CloneShape(fn)
	body.PushBack(cmp2)
	copyRemappedOperands(cmp, cmp2, remapToBody)

	second := fn.NewBlock(body.Name + ".unr")

	guard := fn.NewInst(ssa.OpBranch)
	body.PushBack(guard)
	guard.Cond.Set(cmp2)

	// body already has a Preds entry on header for the (pre-existing)
	// body->header edge; only the fresh body->second edge needs AddSucc
	// (which also appends body to second.Preds). Re-adding header via
	// AddSucc here would double-count it in header.Preds.
	body.Succs = nil
	if hterm.TrueTarget == body {
		guard.TrueTarget, guard.FalseTarget = second, header
		body.AddSucc(second)
		body.Succs = append(body.Succs, header)
	} else {
		guard.TrueTarget, guard.FalseTarget = header, second
		body.Succs = append(body.Succs, header)
		body.AddSucc(second)
	}

	// Clone body's own instructions a second time into `second`: a use of
	// one of body's own instructions reads its clone in `second`
	// (valueMap2), and a use of a header phi reads bodyNext, the value the
	// first copy already computed in `body`.
	valueMap2 := make(map[ssa.Value]ssa.Value)
	var insts []*ssa.Instruction
	for i := body.First(); i != nil && i != guard; i = i.Next() {
		if i == cmp2 {
			continue
		}
		insts = append(insts, i)
	}
	var cloned []*ssa.Instruction
	for _, i := range insts {
		ni := i.CloneShape(fn)
		cloned = append(cloned, ni)
		valueMap2[ssa.Value(i)] = ni
	}
	remapToSecond := func(v ssa.Value) ssa.Value {
		if mapped, ok := valueMap2[v]; ok {
			return mapped
		}
		return remapToBody(v)
	}
	for idx, i := range insts {
		ni := cloned[idx]
		copyRemappedOperands(i, ni, remapToSecond)
		second.PushBack(ni)
	}
	jmp := fn.NewInst(ssa.OpJump)
	jmp.Target = header
	second.PushBack(jmp)
	second.AddSucc(header) // appends second to header.Preds

	// header now has a third predecessor (second's back edge); append a
	// matching incoming value to every existing phi, in the same order
	// AddSucc just appended it.
	for _, phi := range headerPhis {
		bodyVal := bodyNext[phi]
		if inst, ok := bodyVal.(*ssa.Instruction); ok {
			if mapped, ok2 := valueMap2[inst]; ok2 {
				phi.AddIncoming(mapped)
				continue
			}
		}
		phi.AddIncoming(bodyVal)
	}
}

// copyRemappedOperands wires ni's operands to the remapped equivalents of
// i's operands (values defined within the loop body remap to their clones
// via remap; everything else — constants, loop-invariant values — passes
// through unchanged). Branch/Jump targets are left to the caller since
// unrolling only ever needs straight-line bodies.
func copyRemappedOperands(i, ni *ssa.Instruction, remap func(ssa.Value) ssa.Value) {
	switch i.Op {
	case ssa.OpBinary:
		ni.LHS.Set(remap(i.LHS.Value()))
		ni.RHS.Set(remap(i.RHS.Value()))
	case ssa.OpUnary:
		ni.Operand.Set(remap(i.Operand.Value()))
	case ssa.OpLoad:
		ni.Addr.Set(remap(i.Addr.Value()))
		ni.MemInput.Set(remap(i.MemInput.Value()))
	case ssa.OpStore:
		ni.Addr.Set(remap(i.Addr.Value()))
		ni.Value.Set(remap(i.Value.Value()))
	case ssa.OpGetElementPtr:
		ni.Base.Set(remap(i.Base.Value()))
		for idx := range i.Indices {
			ni.Indices[idx].Set(remap(i.Indices[idx].Value()))
		}
	case ssa.OpCall:
		for idx := range i.Args {
			ni.Args[idx].Set(remap(i.Args[idx].Value()))
		}
		ni.MemInput.Set(remap(i.MemInput.Value()))
	}
}
