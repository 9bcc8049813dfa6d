// Package pass holds the SSA-level optimization and analysis passes:
// dominance/CFG analysis, mem2reg promotion, memory dependence, GVN/GCM,
// dead code elimination, inlining, loop unrolling and the other cleanup
// passes original_source runs between irgen and codegen. Each file is
// grounded on the matching original_source/src/passes/ir/*.cpp file, kept
// in its own Go idiom (explicit slices and maps rather than STL
// containers, errors where original_source used asserts).
package pass

import "github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"

// CFG holds analysis results for one function's control-flow graph:
// reverse postorder, dominance and dominance frontiers, computed with the
// "A Simple, Fast Dominance Algorithm" (Cooper/Harvey/Kennedy) iterative
// fixpoint, matching original_source/src/passes/ir/mem2reg.cpp's approach
// (also reused by GVN/GCM and loop detection).
type CFG struct {
	fn    *ssa.Function
	rpo   []*ssa.Block
	Loops []*ssa.Loop
}

// Build computes reverse postorder, dominators, dominance frontiers and
// natural loops for fn. Call after the function's CFG (blocks + Succs)
// is final, i.e. once the builder has finished emitting it.
func Build(fn *ssa.Function) *CFG {
	c := &CFG{fn: fn}
	c.computeRPO()
	c.computeDominators()
	c.computeDominanceFrontier()
	c.computeDomLevels()
	c.detectLoops()
	return c
}

// computeDomLevels assigns each reachable block its depth in the dominator
// tree (entry is 0), used by GCM to walk from a schedule-late LCA back up
// toward the schedule-early position.
func (c *CFG) computeDomLevels() {
	var visit func(b *ssa.Block, depth int)
	visit = func(b *ssa.Block, depth int) {
		b.DomLevel = depth
		for _, ch := range b.DomChildren {
			visit(ch, depth+1)
		}
	}
	visit(c.fn.Entry, 0)
}

// ReversePostorder returns the blocks in reverse-postorder, the order
// every other pass in this package iterates in.
func (c *CFG) ReversePostorder() []*ssa.Block { return c.rpo }

func (c *CFG) computeRPO() {
	visited := make(map[*ssa.Block]bool)
	var post []*ssa.Block
	var visit func(b *ssa.Block)
	visit = func(b *ssa.Block) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range b.Succs {
			visit(s)
		}
		post = append(post, b)
	}
	visit(c.fn.Entry)
	c.rpo = make([]*ssa.Block, len(post))
	for i, b := range post {
		c.rpo[len(post)-1-i] = b
		b.RPONum = len(post) - 1 - i
	}
}

// computeDominators runs the iterative dataflow fixpoint: IDom[entry] =
// entry, then repeatedly IDom[b] = intersect of IDom[p] over already
// processed predecessors p, until no change. Blocks unreachable from
// entry (RPONum never set, i.e. == -1 default... here detected by absence
// from rpo) are left with a nil IDom.
func (c *CFG) computeDominators() {
	entry := c.fn.Entry
	entry.IDom = entry

	changed := true
	for changed {
		changed = false
		for _, b := range c.rpo {
			if b == entry {
				continue
			}
			var newIdom *ssa.Block
			for _, p := range b.Preds {
				if p.IDom == nil {
					continue
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersect(newIdom, p)
			}
			if newIdom != b.IDom {
				b.IDom = newIdom
				changed = true
			}
		}
	}
}

func intersect(a, b *ssa.Block) *ssa.Block {
	for a != b {
		for a.RPONum > b.RPONum {
			a = a.IDom
		}
		for b.RPONum > a.RPONum {
			b = b.IDom
		}
	}
	return a
}

func (c *CFG) computeDominanceFrontier() {
	for _, b := range c.rpo {
		if len(b.Preds) < 2 {
			continue
		}
		for _, p := range b.Preds {
			if p.IDom == nil {
				continue
			}
			runner := p
			for runner != b.IDom {
				runner.DomFrontier = append(runner.DomFrontier, b)
				runner = runner.IDom
			}
		}
	}
	for _, b := range c.rpo {
		if b.IDom != nil && b.IDom != b {
			b.IDom.DomChildren = append(b.IDom.DomChildren, b)
		}
	}
}

// Dominates reports whether a dominates b (inclusive: a dominates a).
func Dominates(a, b *ssa.Block) bool {
	for b != nil {
		if b == a {
			return true
		}
		if b.IDom == b {
			return b == a
		}
		b = b.IDom
	}
	return false
}

// detectLoops finds natural loops via back edges (an edge b -> h where h
// dominates b) and links nested loops by header-dominance, matching
// original_source's loop-discovery pass; the loops feed loop unrolling and
// GCM's loop-depth placement.
func (c *CFG) detectLoops() {
	headerLoop := make(map[*ssa.Block]*ssa.Loop)
	for _, b := range c.rpo {
		for _, s := range b.Succs {
			if Dominates(s, b) {
				loop := headerLoop[s]
				if loop == nil {
					loop = &ssa.Loop{Header: s, Latch: b}
					headerLoop[s] = loop
					c.Loops = append(c.Loops, loop)
					s.Loop = loop
				}
				collectLoopBody(loop, b)
			}
		}
	}
	// Link nesting and depth by dominance between headers.
	for _, l := range c.Loops {
		depth := 1
		for _, other := range c.Loops {
			if other != l && other.Header != l.Header && Dominates(other.Header, l.Header) {
				if l.Parent == nil || Dominates(l.Parent.Header, other.Header) {
					l.Parent = other
				}
			}
		}
		for p := l.Parent; p != nil; p = p.Parent {
			depth++
		}
		l.Depth = depth
	}
}

func collectLoopBody(loop *ssa.Loop, latch *ssa.Block) {
	inBody := make(map[*ssa.Block]bool)
	for _, b := range loop.Body {
		inBody[b] = true
	}
	if inBody[loop.Header] && inBody[latch] {
		return
	}
	var worklist []*ssa.Block
	add := func(b *ssa.Block) {
		if !inBody[b] {
			inBody[b] = true
			loop.Body = append(loop.Body, b)
			b.Loop = loop
			worklist = append(worklist, b)
		}
	}
	if !inBody[loop.Header] {
		inBody[loop.Header] = true
		loop.Body = append(loop.Body, loop.Header)
		loop.Header.Loop = loop
	}
	add(latch)
	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for _, p := range b.Preds {
			add(p)
		}
	}
}
