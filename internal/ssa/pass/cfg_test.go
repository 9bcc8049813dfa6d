package pass

import (
	"testing"

	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/ssa"
	"github.com/stretchr/testify/require"
)

// TestCFG_Dominators mirrors the teacher's table-driven dominator test
// (ssa/pass_dom_test.go), adapted to this package's Block/AddSucc API: each
// case names edges by block index and the expected immediate dominator of
// every non-entry block.
func TestCFG_Dominators(t *testing.T) {
	for _, tc := range []struct {
		name    string
		edges   [][2]int
		n       int
		expDoms map[int]int
	}{
		{
			name:    "linear",
			n:       5,
			edges:   [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 4}},
			expDoms: map[int]int{1: 0, 2: 1, 3: 2, 4: 3},
		},
		{
			name:    "diamond",
			n:       4,
			edges:   [][2]int{{0, 1}, {0, 2}, {1, 3}, {2, 3}},
			expDoms: map[int]int{1: 0, 2: 0, 3: 0},
		},
		{
			name:    "loop",
			n:       4,
			edges:   [][2]int{{0, 1}, {1, 2}, {2, 3}, {3, 1}},
			expDoms: map[int]int{1: 0, 2: 1, 3: 2},
		},
		{
			name:    "loop with branch",
			n:       5,
			edges:   [][2]int{{0, 1}, {1, 2}, {1, 3}, {2, 4}, {4, 3}},
			expDoms: map[int]int{1: 0, 2: 1, 3: 1, 4: 2},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fn := newTestFunc(tc.name)
			blocks := make([]*ssa.Block, tc.n)
			for i := 0; i < tc.n; i++ {
				blocks[i] = fn.NewBlock("b")
			}
			fn.Entry = blocks[0]
			for _, e := range tc.edges {
				blocks[e[0]].Succs = append(blocks[e[0]].Succs, blocks[e[1]])
				blocks[e[1]].Preds = append(blocks[e[1]].Preds, blocks[e[0]])
			}
			// Every block needs a terminator for Terminator()-based passes,
			// though Build itself only walks Succs/Preds.
			for _, b := range blocks {
				if b.Terminator() == nil {
					r := fn.NewInst(ssa.OpReturn)
					b.PushBack(r)
				}
			}

			cfg := Build(fn)
			_ = cfg
			for idx, expIdx := range tc.expDoms {
				require.Equal(t, blocks[expIdx], blocks[idx].IDom, "block %d", idx)
			}
		})
	}
}

func TestCFG_NaturalLoopDetection(t *testing.T) {
	fn := newTestFunc("f")
	entry := fn.NewBlock("entry")
	header := fn.NewBlock("header")
	body := fn.NewBlock("body")
	exit := fn.NewBlock("exit")
	fn.Entry = entry

	jumpTo(fn, entry, header)
	branchOn(fn, header, fn.Const(1), body, exit)
	jumpTo(fn, body, header)
	retVoid(fn, exit)

	cfg := Build(fn)
	require.Len(t, cfg.Loops, 1)
	require.Equal(t, header, cfg.Loops[0].Header)
	require.ElementsMatch(t, []*ssa.Block{header, body}, cfg.Loops[0].Body)
}
