package postalloc

import "github.com/TrivialCompiler/TrivialCompiler-sub000/internal/codegen/machine"

// AsmSimplify removes the handful of redundant patterns register
// allocation and instruction selection routinely leave behind, ported
// from original_source/src/passes/asm/simplify_asm.cpp.
func AsmSimplify(fn *machine.Function) {
	blocks := fn.Blocks()
	for bi, b := range blocks {
		var nextBlock *machine.Block
		if bi+1 < len(blocks) {
			nextBlock = blocks[bi+1]
		}
		for i := b.First(); i != nil; {
			next := i.Next()
			switch i.Tag {
			case machine.Mv:
				if i.Dst.IsEquiv(i.Rhs) && i.IsSimpleMove() {
					b.Remove(i)
				} else if y := i.Next(); y != nil && y.Tag == machine.Mv {
					if y.Dst.IsEquiv(i.Dst) && !y.Rhs.IsEquiv(i.Dst) && y.IsSimpleMove() && i.IsSimpleMove() {
						b.Remove(i)
					}
				}
			case machine.Load:
				if y := i.Prev(); y != nil && y.Tag == machine.Store {
					if i.Addr.IsEquiv(y.Addr) && i.Offset == y.Offset && i.OffsetShift == y.OffsetShift && i.Mode == y.Mode {
						mv := fn.NewInst(machine.Mv)
						mv.Dst, mv.Rhs, mv.MvCond = i.Dst, y.Data, machine.Any
						b.InsertAfter(i, mv)
						b.Remove(i)
					}
				}
			case machine.Compare:
				if y := i.Next(); y != nil && y.Tag == machine.Mv {
					if z := y.Next(); z != nil && z.Tag == machine.Mv {
						if i.CmpRHS == machine.I(0) && y.Rhs == machine.I(1) && z.Rhs == machine.I(0) &&
							i.CmpLHS.IsEquiv(y.Dst) && i.CmpLHS.IsEquiv(z.Dst) &&
							y.MvCond == machine.Ne && z.MvCond == machine.Eq &&
							y.ShiftOp.IsNone() && z.ShiftOp.IsNone() {
							b.Remove(z)
						}
					}
				}
			default:
				if i.Tag.IsBinary() && i.IsIdentity() {
					b.Remove(i)
				} else if i.Tag == machine.Jump && i.Target == nextBlock {
					b.Remove(i)
					if b.ControlTransfer == i {
						b.ControlTransfer = nil
					}
				}
			}
			i = next
		}
	}
}
