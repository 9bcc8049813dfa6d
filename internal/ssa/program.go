package ssa

import "github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/ast"

// Program is a whole compiled translation unit: every user function in
// SSA form plus the flattened global declarations carried over from the
// AST (globals are never promoted to registers; only their reads/writes
// go through Load/Store/GetElementPtr against a GlobalRef).
type Program struct {
	Funcs   []*Function
	Globals []*ast.Decl
}

// FuncByName finds a previously built Function by its declaration name,
// used by the call graph and by inline_func (see internal/ssa/pass) to
// resolve callees.
func (p *Program) FuncByName(name string) *Function {
	for _, f := range p.Funcs {
		if f.Decl.Name == name {
			return f
		}
	}
	return nil
}
