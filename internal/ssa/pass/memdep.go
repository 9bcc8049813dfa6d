package pass

import (
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/ast"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"
)

// MemDep installs memory dependence edges over the array-typed state the
// builder leaves in memory (mem2reg only promotes scalars), grounded on
// original_source/src/passes/ir/memdep.cpp's two-pass "memory SSA":
//
//  1. Load <- writers: for every symbol loaded anywhere, a MemPhi is placed
//     at the IDF of the blocks that write (Store or aliasing Call) that
//     symbol, and every Load's MemInput is rewritten to point at the
//     nearest dominating writer or MemPhi.
//  2. Writer <- load: for every distinct Load a synthetic MemOp records
//     that each aliasing writer "depends on" that load, so GCM/GVN know
//     hoisting a load above a writer that could have produced its value is
//     illegal.
//
// Alias rules are as specified in SPEC_FULL.md §4.4 (unchanged from the
// original): two parameter arrays alias iff same name; a parameter array
// aliases a global iff dimension lists are postfix-compatible; a local
// array aliases only itself; a call aliases a load iff the loaded decl is
// global/parameter or one of the call's args is a GEP into an aliasing
// array.
func MemDep(fn *ssa.Function, cfg *CFG) {
	writers := collectWriters(fn)

	loads := collectLoads(fn)
	for _, ld := range loads {
		sym := loadSymbol(ld)
		if sym == nil {
			continue
		}
		ws := writers[symKey(sym)]
		phis := placeMemPhis(sym, ws, cfg)
		renameLoadDeps(fn.Entry, sym, phis, nil, map[*ssa.Block]bool{})
		removeUselessMemPhis(fn, phis)
	}

	for _, ld := range loads {
		installWriterDeps(fn, ld, writers)
	}
}

type writerSet struct {
	blocks map[*ssa.Block][]*ssa.Instruction
	decl   interface{}
}

func symKey(decl interface{}) interface{} { return decl }

// collectWriters groups every Store and every potentially-aliasing Call by
// the symbol (declaration identity) it writes.
func collectWriters(fn *ssa.Function) map[interface{}]*writerSet {
	out := make(map[interface{}]*writerSet)
	ensure := func(sym interface{}) *writerSet {
		if ws, ok := out[sym]; ok {
			return ws
		}
		ws := &writerSet{blocks: make(map[*ssa.Block][]*ssa.Instruction), decl: sym}
		out[sym] = ws
		return ws
	}
	for _, b := range fn.Blocks() {
		for i := b.First(); i != nil; i = i.Next() {
			switch i.Op {
			case ssa.OpStore:
				if sym := gepSymbol(i.Addr.Value()); sym != nil {
					ws := ensure(sym)
					ws.blocks[b] = append(ws.blocks[b], i)
				}
			case ssa.OpCall:
				for sym := range collectAllDecls(fn) {
					if callMayAlias(i, sym) {
						ws := ensure(sym)
						ws.blocks[b] = append(ws.blocks[b], i)
					}
				}
			}
		}
	}
	return out
}

// collectAllDecls enumerates every array-typed declaration reachable from
// this function: its own array locals/array-parameters plus every global.
func collectAllDecls(fn *ssa.Function) map[interface{}]bool {
	out := make(map[interface{}]bool)
	for _, b := range fn.Blocks() {
		for i := b.First(); i != nil; i = i.Next() {
			if i.Op == ssa.OpAlloca && i.ArraySize > 0 {
				out[i] = true
			}
			if i.Op == ssa.OpGetElementPtr {
				if g, ok := i.Base.Value().(*ssa.GlobalRef); ok {
					out[g.Decl] = true
				}
				if p, ok := i.Base.Value().(*ssa.ParamRef); ok {
					out[p.Decl] = true
				}
			}
		}
	}
	return out
}

// gepSymbol resolves the symbol (Alloca instruction, or the ast.Decl behind
// a GlobalRef/ParamRef) that addr ultimately indexes into.
func gepSymbol(addr ssa.Value) interface{} {
	switch v := addr.(type) {
	case *ssa.Instruction:
		if v.Op == ssa.OpAlloca {
			return v
		}
		if v.Op == ssa.OpGetElementPtr {
			return gepSymbol(v.Base.Value())
		}
	case *ssa.GlobalRef:
		return v.Decl
	case *ssa.ParamRef:
		return v.Decl
	}
	return nil
}

func loadSymbol(ld *ssa.Instruction) interface{} {
	return gepSymbol(ld.Addr.Value())
}

func collectLoads(fn *ssa.Function) []*ssa.Instruction {
	var out []*ssa.Instruction
	for _, b := range fn.Blocks() {
		for i := b.First(); i != nil; i = i.Next() {
			if i.Op == ssa.OpLoad {
				out = append(out, i)
			}
		}
	}
	return out
}

// callMayAlias decides whether call c could write through sym, per the
// alias rules: a call aliases iff sym is global/parameter (escaped to
// callees through the ABI's by-reference array convention) or one of c's
// arguments is itself a GEP/pointer into sym.
func callMayAlias(c *ssa.Instruction, sym interface{}) bool {
	if c.Callee != nil && c.Callee.Builtin {
		switch c.Callee.Name {
		case "getint", "getch", "putint", "putch":
			return false
		}
	}
	if _, ok := sym.(*ssa.Instruction); ok {
		for _, a := range c.Args {
			if gepSymbol(a.Value()) == sym {
				return true
			}
		}
		return false
	}
	// global or parameter declaration: conservatively aliased by any call
	// that isn't a pure I/O builtin with unrelated signature.
	return true
}

func placeMemPhis(sym interface{}, ws *writerSet, cfg *CFG) map[*ssa.Block]*ssa.Instruction {
	result := make(map[*ssa.Block]*ssa.Instruction)
	if ws == nil {
		return result
	}
	hasPhi := make(map[*ssa.Block]bool)
	worklist := make([]*ssa.Block, 0, len(ws.blocks))
	for b := range ws.blocks {
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
			inst := f.Func.NewInst(ssa.OpMemPhi)
			switch s := sym.(type) {
			case *ast.Decl:
				inst.MemDecl = s
			case *ssa.Instruction:
				inst.MemDecl = s.Decl
			}
			for range f.Preds {
				inst.AddIncoming(ssa.Undef())
			}
			f.PushFront(inst)
			result[f] = inst
			if _, isWriter := ws.blocks[f]; !isWriter {
				worklist = append(worklist, f)
			}
		}
	}
	return result
}

// renameLoadDeps walks the dominator tree threading "the nearest dominating
// writer or MemPhi for sym" and rewrites each Load.MemInput as it's seen.
func renameLoadDeps(b *ssa.Block, sym interface{}, phis map[*ssa.Block]*ssa.Instruction, incoming ssa.Value, visited map[*ssa.Block]bool) {
	if visited[b] {
		return
	}
	visited[b] = true

	current := incoming
	if phi, ok := phis[b]; ok {
		current = phi
	}

	for i := b.First(); i != nil; i = i.Next() {
		switch i.Op {
		case ssa.OpStore:
			if gepSymbol(i.Addr.Value()) == sym {
				current = i
			}
		case ssa.OpCall:
			if callMayAlias(i, sym) {
				current = i
			}
		case ssa.OpLoad:
			if gepSymbol(i.Addr.Value()) == sym {
				i.MemInput.Set(current)
			}
		}
	}

	for _, s := range b.Succs {
		if phi, ok := phis[s]; ok {
			predIdx := s.PredIndex(b)
			phi.Incoming[predIdx].Set(current)
		}
	}
	for _, child := range b.DomChildren {
		renameLoadDeps(child, sym, phis, current, visited)
	}
}

// removeUselessMemPhis deletes MemPhis with no remaining uses (no Load ever
// keyed off them) to a fixpoint, matching SPEC_FULL.md §4.4.
func removeUselessMemPhis(fn *ssa.Function, phis map[*ssa.Block]*ssa.Instruction) {
	changed := true
	for changed {
		changed = false
		for b, phi := range phis {
			if phi.Block == nil {
				continue
			}
			if phi.FirstUse() == nil {
				b.Remove(phi)
				phi.Block = nil
				changed = true
			}
		}
	}
}

// installWriterDeps appends a synthetic MemOp edge from each writer of
// ld's symbol to ld itself, recording "this store/call must not be moved
// below the point where it would change ld's observed value."
func installWriterDeps(fn *ssa.Function, ld *ssa.Instruction, writers map[interface{}]*writerSet) {
	sym := loadSymbol(ld)
	if sym == nil {
		return
	}
	ws := writers[sym]
	if ws == nil {
		return
	}
	for _, insts := range ws.blocks {
		for _, w := range insts {
			op := w.Block.Func.NewInst(ssa.OpMemOp)
			w.Block.InsertAfter(w, op)
			op.MemInput.Set(ld)
		}
	}
}
