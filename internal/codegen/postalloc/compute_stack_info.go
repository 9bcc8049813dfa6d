package postalloc

import "github.com/TrivialCompiler/TrivialCompiler-sub000/internal/codegen/machine"

// ComputeStackInfo records which callee-saved registers and lr the final
// allocated body actually touches, then patches every deferred
// stack-argument load (isel's resolve for ParamRef index >= 4) now that
// the frame's total size -- locals, spills, and the callee-saved
// save area the emitter's prologue will push -- is known, ported from
// original_source/src/passes/asm/compute_stack_info.cpp.
func ComputeStackInfo(fn *machine.Function) {
	fn.UsedCalleeSaved = make(map[machine.Reg]bool)
	fn.UseLR = false
	for _, b := range fn.Blocks() {
		for i := b.First(); i != nil; i = i.Next() {
			def, use := i.DefUse()
			regs := append(append([]machine.Operand(nil), use...), def...)
			for _, r := range regs {
				if !r.IsReg() || (r.State != machine.PreColored && r.State != machine.Allocated) {
					continue
				}
				reg := machine.Reg(r.Value)
				if reg >= machine.R4 && reg <= machine.R11 {
					fn.UsedCalleeSaved[reg] = true
				}
				if reg == machine.LR {
					fn.UseLR = true
				}
			}
		}
	}

	// The emitter's prologue always pushes {r4-r11,lr}: nine words.
	const savedRegs = 9
	for _, mv := range fn.SPArgFixup {
		mv.Rhs = machine.I(mv.Rhs.Value + int32(fn.StackSize) + 4*int32(savedRegs))
	}
}
