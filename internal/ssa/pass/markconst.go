package pass

import (
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/ast"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"
)

// MarkGlobalConst flags every global that is never written (through a
// direct Store, a GetElementPtr chain eventually stored through, or passed
// as an argument to some call) as const, letting GVN's globalConstLoad fold
// a Load of it straight to the initializer value, grounded on
// original_source/src/passes/ir/mark_global_const.cpp.
func MarkGlobalConst(prog *ssa.Program) {
	written := make(map[*ast.Decl]bool)
	for _, fn := range prog.Funcs {
		for _, b := range fn.Blocks() {
			for i := b.First(); i != nil; i = i.Next() {
				if i.Op != ssa.OpGetElementPtr {
					continue
				}
				g, ok := i.Base.Value().(*ssa.GlobalRef)
				if !ok {
					continue
				}
				if globalEscapesToStore(i) {
					written[g.Decl.(*ast.Decl)] = true
				}
			}
		}
	}
	for _, decl := range prog.Globals {
		if decl.IsConst {
			continue
		}
		if !written[decl] {
			decl.IsConst = true
		}
	}
}

// globalEscapesToStore reports whether any use of gep (or a GEP chained
// off it) is a Store, or an argument to any call (calls are treated
// conservatively: the callee might write through a by-reference array
// argument, matching has_side_effect's role in the original).
func globalEscapesToStore(gep *ssa.Instruction) bool {
	for u := gep.FirstUse(); u != nil; u = u.NextUse() {
		user := u.User()
		switch user.Op {
		case ssa.OpLoad:
			continue
		case ssa.OpStore:
			if user.Addr.Value() == ssa.Value(gep) {
				return true
			}
		case ssa.OpGetElementPtr:
			if globalEscapesToStore(user) {
				return true
			}
		case ssa.OpCall:
			for _, a := range user.Args {
				if a.Value() == ssa.Value(gep) {
					return true
				}
			}
		}
	}
	return false
}
