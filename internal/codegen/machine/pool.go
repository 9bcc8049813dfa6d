package machine

// pool is the same page-based arena allocator as internal/ssa's pool.go,
// grounded on faddat-wazero/internal/engine/wazevo/ssa/pool.go. It is
// duplicated rather than shared because the SSA and machine IR layers are
// deliberately independent packages (instruction selection is the only
// bridge between them) and each owns its own arena of its own node type.
type pool[T any] struct {
	pages     []*[128]T
	allocated int
}

func newPool[T any]() pool[T] {
	return pool[T]{pages: make([]*[128]T, 0, 2)}
}

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

func (p *pool[T]) view(i int) *T {
	return &p.pages[i/128][i%128]
}
