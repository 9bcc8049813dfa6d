package ssa

// pool is a page-based arena allocator, grounded on
// faddat-wazero/internal/engine/wazevo/ssa/pool.go: instead of allocating
// one object at a time, pages of a fixed size are allocated and handed out
// as a slice backing store, so the garbage collector sees large contiguous
// regions rather than many small ones. reset() re-uses all pages for the
// next function without giving them back to the runtime.
type pool[T any] struct {
	pages     []*[128]T
	allocated int
}

func newPool[T any]() pool[T] {
	return pool[T]{pages: make([]*[128]T, 0, 2)}
}

// allocate returns a pointer to a fresh zero-valued T and its dense index.
func (p *pool[T]) allocate() (*T, int) {
	pageIndex := p.allocated / 128
	within := p.allocated % 128
	if pageIndex >= len(p.pages) {
		p.pages = append(p.pages, new([128]T))
	}
	idx := p.allocated
	p.allocated++
	item := &p.pages[pageIndex][within]
	var zero T
	*item = zero
	return item, idx
}

// view returns the i'th allocated item.
func (p *pool[T]) view(i int) *T {
	return &p.pages[i/128][i%128]
}

// reset rewinds the cursor without releasing pages, so the next function
// built in the same builder reuses already-allocated backing storage.
func (p *pool[T]) reset() {
	p.allocated = 0
}
