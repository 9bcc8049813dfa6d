package postalloc

import "github.com/TrivialCompiler/TrivialCompiler-sub000/internal/codegen/machine"

type schedNode struct {
	inst     *machine.Instruction
	priority uint32
	latency  uint32
	unit     machine.FUKind
	degree   int
	out, in  map[*schedNode]bool
}

// Schedule reorders each block's instructions for the Cortex-A72's six
// functional units (one branch, two integer, one integer-multiply, one
// load, one store slot) by greedy list scheduling over a dependence DAG
// ranked by longest-latency-weighted path to a sink, ported from
// original_source/src/passes/asm/scheduling.cpp's instruction_schedule.
func Schedule(fn *machine.Function) {
	for _, b := range fn.Blocks() {
		nodes := buildDependenceGraph(b)
		if len(nodes) == 0 {
			continue
		}
		computePriorities(nodes)
		order := listSchedule(nodes)

		b.Clear()
		for _, n := range order {
			b.PushBack(n.inst)
			if b.ControlTransfer == nil && (n.inst.IsTerminator() || n.inst.Tag == machine.Compare) {
				b.ControlTransfer = n.inst
			}
		}
	}
}

func buildDependenceGraph(b *machine.Block) []*schedNode {
	var nodes []*schedNode
	readInsts := make(map[machine.Operand][]*schedNode)
	writeInsts := make(map[machine.Operand]*schedNode)
	var sideEffect *schedNode

	link := func(from, to *schedNode) {
		if from.out == nil {
			from.out = make(map[*schedNode]bool)
		}
		if to.in == nil {
			to.in = make(map[*schedNode]bool)
		}
		from.out[to] = true
		to.in[from] = true
	}

	for i := b.First(); i != nil; i = i.Next() {
		if i.Tag == machine.Comment {
			continue
		}
		def, use := i.DefUseScheduling()
		latency, unit := i.LatencyAndUnit()
		n := &schedNode{inst: i, latency: latency, unit: unit}
		nodes = append(nodes, n)

		for _, u := range use {
			if u.IsReg() {
				if w, ok := writeInsts[u]; ok {
					link(w, n)
				}
			}
		}
		for _, d := range def {
			if d.IsReg() {
				for _, r := range readInsts[d] {
					link(r, n)
				}
				if w, ok := writeInsts[d]; ok {
					link(w, n)
				}
			}
		}
		for _, u := range use {
			if u.IsReg() {
				readInsts[u] = append(readInsts[u], n)
			}
		}
		for _, d := range def {
			if d.IsReg() {
				readInsts[d] = nil
				writeInsts[d] = n
			}
		}

		if sideEffect != nil {
			link(sideEffect, n)
		}
		if i.Tag == machine.Load || i.Tag == machine.Store || i.Tag == machine.Call {
			sideEffect = n
		}

		if i.IsTerminator() {
			for _, other := range nodes {
				if other != n {
					link(other, n)
				}
			}
		}
	}
	return nodes
}

func computePriorities(nodes []*schedNode) {
	outDeg := make(map[*schedNode]int, len(nodes))
	var ready []*schedNode
	for _, n := range nodes {
		outDeg[n] = len(n.out)
		if len(n.out) == 0 {
			n.priority = n.latency
			ready = append(ready, n)
		}
	}
	for len(ready) > 0 {
		n := ready[len(ready)-1]
		ready = ready[:len(ready)-1]
		for pred := range n.in {
			if cand := pred.latency + n.priority; cand > pred.priority {
				pred.priority = cand
			}
			outDeg[pred]--
			if outDeg[pred] == 0 {
				ready = append(ready, pred)
			}
		}
	}
}

const numFUs = 6

var fuKinds = [numFUs]machine.FUKind{
	machine.FUBranch, machine.FUInteger, machine.FUInteger,
	machine.FUIntMul, machine.FULoad, machine.FUStore,
}

func listSchedule(nodes []*schedNode) []*machine.Instruction {
	var inflight [numFUs]*schedNode
	var completeCycle [numFUs]uint32

	inDeg := make(map[*schedNode]int, len(nodes))
	var ready []*schedNode
	for _, n := range nodes {
		inDeg[n] = len(n.in)
		if len(n.in) == 0 {
			ready = append(ready, n)
		}
	}

	var order []*machine.Instruction
	numInflight := 0
	var cycle uint32
	for len(ready) > 0 || numInflight > 0 {
		sortReady(ready)
		for i := 0; i < len(ready); {
			n := ready[i]
			fired := false
			for f := 0; f < numFUs; f++ {
				if fuKinds[f] == n.unit && inflight[f] == nil {
					order = append(order, n.inst)
					numInflight++
					inflight[f] = n
					completeCycle[f] = cycle + n.latency
					ready = append(ready[:i], ready[i+1:]...)
					fired = true
					break
				}
			}
			if !fired {
				i++
			}
		}
		cycle++
		for f := 0; f < numFUs; f++ {
			if inflight[f] != nil && completeCycle[f] == cycle {
				for t := range inflight[f].out {
					inDeg[t]--
					if inDeg[t] == 0 {
						ready = append(ready, t)
					}
				}
				inflight[f] = nil
				numInflight--
			}
		}
	}
	return order
}

func sortReady(ready []*schedNode) {
	for i := 1; i < len(ready); i++ {
		for j := i; j > 0; j-- {
			a, b := ready[j-1], ready[j]
			if a.priority < b.priority || (a.priority == b.priority && a.latency < b.latency) {
				ready[j-1], ready[j] = ready[j], ready[j-1]
			} else {
				break
			}
		}
	}
}
