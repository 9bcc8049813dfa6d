// Package regalloc assigns physical ARM registers to the virtual
// registers instruction selection produced, by iterated register
// coalescing (Chaitin/Briggs/George), grounded on
// original_source/src/passes/asm/allocate_register.cpp.
package regalloc

import (
	"sort"

	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/codegen/machine"
)

// Allocatable is the set of 14 colors the allocator assigns from: r0-r12
// plus lr, per SPEC_FULL.md's register budget. r11 is allocatable like
// any other callee-saved register, matching the original's K=14 constant.
// sp, ip and pc are not in the list: where isel names them directly they
// are precolored operands (NeedsColor is true for those), and no virtual
// register is ever given one of them, since assignColors only picks
// colors from this list.
var Allocatable = []machine.Reg{
	machine.R0, machine.R1, machine.R2, machine.R3,
	machine.R4, machine.R5, machine.R6, machine.R7,
	machine.R8, machine.R9, machine.R10, machine.R11,
	machine.R12, machine.LR,
}

const K = 14

// CalleeSaved is the subset of Allocatable the AAPCS32 callee must
// preserve (r4-r11).
var CalleeSaved = map[machine.Reg]bool{
	machine.R4: true, machine.R5: true, machine.R6: true, machine.R7: true,
	machine.R8: true, machine.R9: true, machine.R10: true, machine.R11: true,
}

// Run allocates registers for every function in mp, in place.
func Run(mp *machine.Program) {
	for _, fn := range mp.Funcs {
		Allocate(fn)
	}
}

// Allocate runs the build/simplify/coalesce/freeze/spill/assign-colors
// loop to fixpoint for one function: each outer iteration either colors
// every virtual register or inserts spill code for the registers it
// could not color and starts over, mirroring allocate_register.cpp's
// outer `while (true)` retry loop around `allocate_once`.
func Allocate(fn *machine.Function) {
	for {
		a := newAllocator(fn)
		a.livenessAnalysis()
		a.build()
		a.makeWorklist()
		for len(a.simplifyWorklist) > 0 || len(a.worklistMoves) > 0 || len(a.freezeWorklist) > 0 || len(a.spillWorklist) > 0 {
			switch {
			case len(a.simplifyWorklist) > 0:
				a.simplify()
			case len(a.worklistMoves) > 0:
				a.coalesce()
			case len(a.freezeWorklist) > 0:
				a.freeze()
			case len(a.spillWorklist) > 0:
				a.selectSpill()
			}
		}
		a.assignColors()
		if len(a.spilledNodes) == 0 {
			a.rewriteColors()
			// UsedCalleeSaved/UseLR are computed afresh by
			// internal/codegen/postalloc's compute-stack-info pass, which
			// scans every def (including precolored ones this pass never
			// assigns a color to, e.g. Call's implicit lr clobber) once
			// colors are final.
			return
		}
		a.rewriteWithSpills()
		// retry: liveness and the graph are rebuilt from scratch next
		// iteration, same as the original's per-function retry loop.
	}
}

type moveRec struct {
	inst     *machine.Instruction
	dst, src machine.Operand
}

type allocator struct {
	fn *machine.Function

	adjSet  map[[2]machine.Operand]bool
	adjList map[machine.Operand]map[machine.Operand]bool
	degree  map[machine.Operand]int

	moveList map[machine.Operand]map[*moveRec]bool
	allMoves []*moveRec

	alias map[machine.Operand]machine.Operand
	color map[machine.Operand]machine.Reg

	precolored  map[machine.Operand]bool
	initial     []machine.Operand
	seenInitial map[machine.Operand]bool

	simplifyWorklist []machine.Operand
	freezeWorklist   []machine.Operand
	spillWorklist    []machine.Operand
	spillCost        map[machine.Operand]int

	selectStack []machine.Operand
	onStack     map[machine.Operand]bool

	coalescedNodes map[machine.Operand]bool
	coloredNodes   map[machine.Operand]bool
	spilledNodes   []machine.Operand

	worklistMoves   map[*moveRec]bool
	activeMoves     map[*moveRec]bool
	coalescedMoves  map[*moveRec]bool
	constrainedMoves map[*moveRec]bool
	frozenMoves     map[*moveRec]bool
}

func newAllocator(fn *machine.Function) *allocator {
	return &allocator{
		fn:               fn,
		adjSet:           make(map[[2]machine.Operand]bool),
		adjList:          make(map[machine.Operand]map[machine.Operand]bool),
		degree:           make(map[machine.Operand]int),
		moveList:         make(map[machine.Operand]map[*moveRec]bool),
		alias:            make(map[machine.Operand]machine.Operand),
		color:            make(map[machine.Operand]machine.Reg),
		precolored:       make(map[machine.Operand]bool),
		seenInitial:      make(map[machine.Operand]bool),
		spillCost:        make(map[machine.Operand]int),
		onStack:          make(map[machine.Operand]bool),
		coalescedNodes:   make(map[machine.Operand]bool),
		coloredNodes:     make(map[machine.Operand]bool),
		worklistMoves:    make(map[*moveRec]bool),
		activeMoves:      make(map[*moveRec]bool),
		coalescedMoves:   make(map[*moveRec]bool),
		constrainedMoves: make(map[*moveRec]bool),
		frozenMoves:      make(map[*moveRec]bool),
	}
}

// --- liveness analysis ----------------------------------------------

// livenessAnalysis computes per-block LiveUse/Def/LiveIn/LiveOut to a
// fixpoint by iterating blocks in reverse order until nothing changes,
// grounded on allocate_register.cpp's liveness_analysis.
func (a *allocator) livenessAnalysis() {
	blocks := a.fn.Blocks()
	for _, b := range blocks {
		b.LiveUse = make(map[machine.Operand]bool)
		b.Def = make(map[machine.Operand]bool)
		b.LiveIn = make(map[machine.Operand]bool)
		b.LiveOut = make(map[machine.Operand]bool)
		for i := b.First(); i != nil; i = i.Next() {
			def, use := i.DefUse()
			for _, u := range use {
				if u.NeedsColor() && !b.Def[u] {
					b.LiveUse[u] = true
				}
			}
			for _, d := range def {
				if d.NeedsColor() {
					b.Def[d] = true
				}
			}
		}
	}

	for changed := true; changed; {
		changed = false
		for i := len(blocks) - 1; i >= 0; i-- {
			b := blocks[i]
			out := make(map[machine.Operand]bool)
			for _, succ := range b.Succs {
				if succ == nil {
					continue
				}
				for v := range succ.LiveIn {
					out[v] = true
				}
			}
			in := make(map[machine.Operand]bool)
			for v := range b.LiveUse {
				in[v] = true
			}
			for v := range out {
				if !b.Def[v] {
					in[v] = true
				}
			}
			if !sameSet(in, b.LiveIn) || !sameSet(out, b.LiveOut) {
				changed = true
			}
			b.LiveIn, b.LiveOut = in, out
		}
	}
}

func sameSet(a, b map[machine.Operand]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// --- interference graph build ----------------------------------------

// build walks every block backward from LiveOut, adding interference
// edges exactly as allocate_register.cpp's build does (a move's source
// does not interfere with its own destination, enabling coalescing).
func (a *allocator) build() {
	for _, b := range a.fn.Blocks() {
		live := make(map[machine.Operand]bool)
		for v := range b.LiveOut {
			live[v] = true
		}
		for i := b.Last(); i != nil; i = i.Prev() {
			def, use := i.DefUse()
			isMove := i.Tag == machine.Mv && i.Dst.NeedsColor() && i.Rhs.NeedsColor()

			if isMove {
				// A move's source does not interfere with its own
				// destination: drop it from the live set before adding
				// def's interference edges below, so coalescing stays
				// possible.
				delete(live, i.Rhs)
				mv := &moveRec{inst: i, dst: i.Dst, src: i.Rhs}
				a.allMoves = append(a.allMoves, mv)
				a.worklistMoves[mv] = true
				a.addMoveNode(i.Dst, mv)
				a.addMoveNode(i.Rhs, mv)
			}

			for _, d := range def {
				if !d.NeedsColor() {
					continue
				}
				for l := range live {
					a.addEdge(l, d)
				}
				a.spillCost[d]++
				delete(live, d)
			}
			for _, u := range use {
				if u.NeedsColor() {
					live[u] = true
					a.spillCost[u]++
				}
			}
		}
	}
}

func (a *allocator) addMoveNode(n machine.Operand, mv *moveRec) {
	a.noteInitial(n)
	if a.moveList[n] == nil {
		a.moveList[n] = make(map[*moveRec]bool)
	}
	a.moveList[n][mv] = true
}

func (a *allocator) noteInitial(n machine.Operand) {
	if a.seenInitial[n] {
		return
	}
	a.seenInitial[n] = true
	if n.IsPrecolored() {
		a.precolored[n] = true
		a.color[n] = machine.Reg(n.Value)
	} else {
		a.initial = append(a.initial, n)
	}
}

func (a *allocator) addEdge(u, v machine.Operand) {
	if u == v {
		return
	}
	a.noteInitial(u)
	a.noteInitial(v)
	key := edgeKey(u, v)
	if a.adjSet[key] {
		return
	}
	a.adjSet[key] = true
	if !u.IsPrecolored() {
		a.adj(u)[v] = true
		a.degree[u]++
	}
	if !v.IsPrecolored() {
		a.adj(v)[u] = true
		a.degree[v]++
	}
}

func edgeKey(u, v machine.Operand) [2]machine.Operand {
	if less(u, v) {
		return [2]machine.Operand{u, v}
	}
	return [2]machine.Operand{v, u}
}

func less(a, b machine.Operand) bool {
	if a.State != b.State {
		return a.State < b.State
	}
	return a.Value < b.Value
}

func (a *allocator) adj(n machine.Operand) map[machine.Operand]bool {
	if a.adjList[n] == nil {
		a.adjList[n] = make(map[machine.Operand]bool)
	}
	return a.adjList[n]
}

// --- worklist construction --------------------------------------------

func (a *allocator) makeWorklist() {
	sort.Slice(a.initial, func(i, j int) bool { return less(a.initial[i], a.initial[j]) })
	for _, n := range a.initial {
		switch {
		case a.degree[n] >= K:
			a.spillWorklist = append(a.spillWorklist, n)
		case a.isMoveRelated(n):
			a.freezeWorklist = append(a.freezeWorklist, n)
		default:
			a.simplifyWorklist = append(a.simplifyWorklist, n)
		}
	}
	a.initial = nil
}

func (a *allocator) nodeMoves(n machine.Operand) map[*moveRec]bool {
	out := make(map[*moveRec]bool)
	for mv := range a.moveList[n] {
		if a.activeMoves[mv] || a.worklistMoves[mv] {
			out[mv] = true
		}
	}
	return out
}

func (a *allocator) isMoveRelated(n machine.Operand) bool {
	return len(a.nodeMoves(n)) > 0
}

// --- simplify ------------------------------------------------------

func (a *allocator) simplify() {
	n := a.simplifyWorklist[len(a.simplifyWorklist)-1]
	a.simplifyWorklist = a.simplifyWorklist[:len(a.simplifyWorklist)-1]
	a.selectStack = append(a.selectStack, n)
	a.onStack[n] = true
	for m := range a.adjacent(n) {
		a.decrementDegree(m)
	}
}

func (a *allocator) adjacent(n machine.Operand) map[machine.Operand]bool {
	out := make(map[machine.Operand]bool)
	for m := range a.adjList[n] {
		if !a.onStack[m] && !a.coalescedNodes[m] {
			out[m] = true
		}
	}
	return out
}

func (a *allocator) decrementDegree(n machine.Operand) {
	d := a.degree[n]
	a.degree[n] = d - 1
	if d != K {
		return
	}
	nodes := a.adjacent(n)
	nodes[n] = true
	a.enableMoves(nodes)
	a.removeFromSpillWorklist(n)
	if a.isMoveRelated(n) {
		a.freezeWorklist = append(a.freezeWorklist, n)
	} else {
		a.simplifyWorklist = append(a.simplifyWorklist, n)
	}
}

func (a *allocator) removeFromSpillWorklist(n machine.Operand) {
	for i, m := range a.spillWorklist {
		if m == n {
			a.spillWorklist = append(a.spillWorklist[:i], a.spillWorklist[i+1:]...)
			return
		}
	}
}

func (a *allocator) enableMoves(nodes map[machine.Operand]bool) {
	for n := range nodes {
		for mv := range a.nodeMoves(n) {
			if a.activeMoves[mv] {
				delete(a.activeMoves, mv)
				a.worklistMoves[mv] = true
			}
		}
	}
}

// --- coalesce (conservative: Briggs and George tests) -----------------

func (a *allocator) coalesce() {
	var mv *moveRec
	for m := range a.worklistMoves {
		mv = m
		break
	}
	delete(a.worklistMoves, mv)

	x := a.getAlias(mv.dst)
	y := a.getAlias(mv.src)
	var u, v machine.Operand
	if y.IsPrecolored() {
		u, v = y, x
	} else {
		u, v = x, y
	}

	switch {
	case u == v:
		a.coalescedMoves[mv] = true
		a.addWorklist(u)
	case v.IsPrecolored() || a.adjSet[edgeKey(u, v)]:
		a.constrainedMoves[mv] = true
		a.addWorklist(u)
		a.addWorklist(v)
	case (u.IsPrecolored() && a.george(u, v)) || (!u.IsPrecolored() && a.briggs(u, v)):
		a.coalescedMoves[mv] = true
		a.combine(u, v)
		a.addWorklist(u)
	default:
		a.activeMoves[mv] = true
	}
}

func (a *allocator) addWorklist(n machine.Operand) {
	if n.IsPrecolored() || a.isMoveRelated(n) || a.degree[n] >= K {
		return
	}
	a.removeFromFreezeWorklist(n)
	a.simplifyWorklist = append(a.simplifyWorklist, n)
}

func (a *allocator) removeFromFreezeWorklist(n machine.Operand) {
	for i, m := range a.freezeWorklist {
		if m == n {
			a.freezeWorklist = append(a.freezeWorklist[:i], a.freezeWorklist[i+1:]...)
			return
		}
	}
}

// briggs is the conservative coalescing heuristic: safe if fewer than K
// of the combined neighborhood have degree >= K.
func (a *allocator) briggs(u, v machine.Operand) bool {
	k := 0
	seen := make(map[machine.Operand]bool)
	check := func(n machine.Operand) {
		if seen[n] {
			return
		}
		seen[n] = true
		if a.degree[n] >= K {
			k++
		}
	}
	for n := range a.adjacent(u) {
		check(n)
	}
	for n := range a.adjacent(v) {
		check(n)
	}
	return k < K
}

// george is safe when every high-degree neighbor of v already
// interferes with the precolored u.
func (a *allocator) george(u, v machine.Operand) bool {
	for t := range a.adjacent(v) {
		if a.degree[t] < K || t.IsPrecolored() || a.adjSet[edgeKey(t, u)] {
			continue
		}
		return false
	}
	return true
}

func (a *allocator) getAlias(n machine.Operand) machine.Operand {
	for a.coalescedNodes[n] {
		n = a.alias[n]
	}
	return n
}

func (a *allocator) combine(u, v machine.Operand) {
	a.removeFromFreezeWorklist(v)
	removeFromSlice(&a.spillWorklist, v)
	a.coalescedNodes[v] = true
	a.alias[v] = u
	for mv := range a.moveList[v] {
		if a.moveList[u] == nil {
			a.moveList[u] = make(map[*moveRec]bool)
		}
		a.moveList[u][mv] = true
	}
	for t := range a.adjacent(v) {
		a.addEdge(t, u)
		a.decrementDegree(t)
	}
	if a.degree[u] >= K && a.isMoveInFreezeWorklist(u) {
		a.removeFromFreezeWorklist(u)
		a.spillWorklist = append(a.spillWorklist, u)
	}
}

func (a *allocator) isMoveInFreezeWorklist(n machine.Operand) bool {
	for _, m := range a.freezeWorklist {
		if m == n {
			return true
		}
	}
	return false
}

func removeFromSlice(s *[]machine.Operand, n machine.Operand) {
	for i, m := range *s {
		if m == n {
			*s = append((*s)[:i], (*s)[i+1:]...)
			return
		}
	}
}

// --- freeze -----------------------------------------------------------

func (a *allocator) freeze() {
	n := a.freezeWorklist[len(a.freezeWorklist)-1]
	a.freezeWorklist = a.freezeWorklist[:len(a.freezeWorklist)-1]
	a.simplifyWorklist = append(a.simplifyWorklist, n)
	a.freezeMoves(n)
}

func (a *allocator) freezeMoves(n machine.Operand) {
	for mv := range a.nodeMoves(n) {
		var other machine.Operand
		if a.getAlias(mv.src) == a.getAlias(n) {
			other = a.getAlias(mv.dst)
		} else {
			other = a.getAlias(mv.src)
		}
		delete(a.activeMoves, mv)
		a.frozenMoves[mv] = true
		if len(a.nodeMoves(other)) == 0 && a.degree[other] < K && !other.IsPrecolored() {
			a.removeFromFreezeWorklist(other)
			a.simplifyWorklist = append(a.simplifyWorklist, other)
		}
	}
}

// --- select spill -------------------------------------------------

// selectSpill picks the optimistic spill candidate: the spill-worklist
// node with the lowest (use/def count + 1) / (degree + 1), i.e. few
// references relative to the interference it causes, adapted from
// allocate_register.cpp's heuristic. Loop depth is not weighed.
func (a *allocator) selectSpill() {
	best := -1
	var bestScore float64
	for i, n := range a.spillWorklist {
		score := float64(a.spillCost[n]+1) / float64(a.degree[n]+1)
		if best == -1 || score < bestScore {
			best = i
			bestScore = score
		}
	}
	n := a.spillWorklist[best]
	a.spillWorklist = append(a.spillWorklist[:best], a.spillWorklist[best+1:]...)
	a.simplifyWorklist = append(a.simplifyWorklist, n)
	a.freezeMoves(n)
}

// --- assign colors -----------------------------------------------------

func (a *allocator) assignColors() {
	for i := len(a.selectStack) - 1; i >= 0; i-- {
		n := a.selectStack[i]
		okColors := make(map[machine.Reg]bool, K)
		for _, r := range Allocatable {
			okColors[r] = true
		}
		for w := range a.adjList[n] {
			aw := a.getAlias(w)
			if aw.IsPrecolored() || a.coloredNodes[aw] {
				delete(okColors, a.color[aw])
			}
		}
		if len(okColors) == 0 {
			a.spilledNodes = append(a.spilledNodes, n)
			continue
		}
		a.coloredNodes[n] = true
		a.color[n] = pickReg(okColors)
	}
	a.selectStack = nil
	for n := range a.coalescedNodes {
		a.color[n] = a.color[a.getAlias(n)]
	}
}

func pickReg(ok map[machine.Reg]bool) machine.Reg {
	for _, r := range Allocatable {
		if ok[r] {
			return r
		}
	}
	return Allocatable[0]
}

// rewriteColors replaces every NeedsColor operand with its assigned
// Allocated physical register, in place, via DefUsePtr.
func (a *allocator) rewriteColors() {
	for _, b := range a.fn.Blocks() {
		for i := b.First(); i != nil; i = i.Next() {
			def, uses := i.DefUsePtr()
			if def != nil && def.NeedsColor() {
				*def = machine.Operand{State: machine.Allocated, Value: int32(a.color[a.getAlias(*def)])}
			}
			for _, u := range uses {
				if u.NeedsColor() {
					*u = machine.Operand{State: machine.Allocated, Value: int32(a.color[a.getAlias(*u)])}
				}
			}
		}
	}
}

// --- spill code insertion -----------------------------------------

// rewriteWithSpills gives every spilled virtual its own stack slot and
// inserts a Load before each use and a Store after each def, each
// through a fresh virtual register (so the next allocation round treats
// the reload/spill as ordinary short-lived temporaries), grounded on
// allocate_register.cpp's rewrite_program.
func (a *allocator) rewriteWithSpills() {
	slot := make(map[machine.Operand]machine.Operand)
	for _, n := range a.spilledNodes {
		off := a.fn.NewVirtual()
		mv := a.fn.NewInst(machine.Mv)
		mv.Dst = off
		mv.Rhs = machine.I(int32(a.fn.StackSize))
		a.fn.Entry.PushFront(mv)
		slot[n] = off
		a.fn.StackSize += 4
	}

	for _, b := range a.fn.Blocks() {
		for i := b.First(); i != nil; {
			next := i.Next()
			def, uses := i.DefUsePtr()
			for _, u := range uses {
				if off, ok := slot[*u]; ok {
					fresh := a.fn.NewVirtual()
					ld := a.fn.NewInst(machine.Load)
					ld.Dst, ld.Addr, ld.Offset = fresh, machine.R(machine.SP), off
					b.InsertBefore(i, ld)
					*u = fresh
				}
			}
			if def != nil {
				if off, ok := slot[*def]; ok {
					fresh := a.fn.NewVirtual()
					*def = fresh
					st := a.fn.NewInst(machine.Store)
					st.Addr, st.Offset, st.Data = machine.R(machine.SP), off, fresh
					b.InsertAfter(i, st)
				}
			}
			i = next
		}
	}
}
