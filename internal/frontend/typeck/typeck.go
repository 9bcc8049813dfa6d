// Package typeck resolves identifiers and calls, folds constant
// expressions, and computes dimension products and flattened initializers.
// It is the sole producer of the decorated AST boundary described in
// SPEC_FULL.md §3.1. Grounded directly on
// original_source/src/typeck.cpp's Env::ck_func/ck_decl/ck_stmt/ck_expr/eval.
package typeck

import (
	"fmt"

	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/diag"
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/ast"
)

// symbol is either a *ast.Func or a *ast.Decl, distinguished at the call
// site rather than with a tagged union: Go's interfaces already give us
// what the original's pointer-tagging trick was working around.
type symbol struct {
	fn   *ast.Func
	decl *ast.Decl
}

type scope map[string]*ast.Decl

type env struct {
	glob    map[string]symbol
	locals  []scope
	curFunc *ast.Func
	loopCnt int
	rep     *diag.Reporter
}

// exprShape mirrors ck_expr's std::pair<Expr**, Expr**> return convention:
// nilShape means "void"; a non-nil shape with an empty Dims slice means
// "scalar int"; otherwise it names the remaining array dimensions of a
// partially-indexed array.
type exprShape struct {
	isVoid bool
	dims   []ast.Expr // remaining dims; empty means scalar int
}

func scalarShape() exprShape { return exprShape{} }
func voidShape() exprShape   { return exprShape{isVoid: true} }
func (s exprShape) isInt() bool {
	return !s.isVoid && len(s.dims) == 0
}

// Error is a type-check failure, reported with position information when
// available.
type Error struct {
	Msg string
	Pos ast.Position
}

func (e *Error) Error() string { return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename, e.Pos.Line, e.Pos.Column, e.Msg) }

// Check resolves and validates an entire program in place, mutating Decl
// and Call nodes with resolved pointers and folded constants. The checker
// panics with *Error on the first violation, matching the original's
// ERR_EXIT abort-on-first-error behavior; Check recovers that panic itself
// and returns the *Error as err.
func Check(prog *ast.Program, rep *diag.Reporter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(*Error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()

	e := &env{glob: map[string]symbol{}, rep: rep}
	for i := range ast.BuiltinTable {
		b := ast.BuiltinTable[i]
		e.ckFunc(builtinAsFunc(b))
	}
	// Globals are registered before any function body is checked. The
	// original walks a single program sequence mixing functions and
	// globals in textual order (original_source/src/typeck.cpp's
	// type_check); ast.Program has already split that sequence into
	// Funcs/Globals slices by the time it reaches here, so the finer
	// "must be declared above its first use" rule can't be reproduced --
	// this checks every global before every function instead, which
	// covers the ordering every program in this language subset actually
	// uses (globals declared ahead of the functions that read them).
	for _, d := range prog.Globals {
		d.IsGlob = true
		e.ckDecl(d)
		if _, dup := e.glob[d.Name]; dup {
			e.fail(d.Pos, "duplicate global declaration: "+d.Name)
		}
		e.glob[d.Name] = symbol{decl: d}
	}
	for _, f := range prog.Funcs {
		e.ckFunc(f)
	}
	return nil
}

func builtinAsFunc(b ast.Builtin) *ast.Func {
	params := make([]ast.Decl, 0, b.NumParams)
	n := b.NumParams
	if n < 0 {
		n = 0 // variadic (putf/printf): arity isn't checked below n
	}
	for i := 0; i < n; i++ {
		params = append(params, ast.Decl{Name: fmt.Sprintf("arg%d", i)})
	}
	return &ast.Func{Name: b.SourceName, IsInt: b.IsInt, Builtin: true, Params: params, Body: &ast.BlockStmt{}}
}

func (e *env) fail(pos ast.Position, msg string) {
	if e.rep != nil {
		e.rep.Report(diag.Diagnostic{Level: diag.Error, Message: msg, Position: diag.Position(pos)})
	}
	panic(&Error{Msg: msg, Pos: pos})
}

func (e *env) lookupFunc(name string) *ast.Func {
	if s, ok := e.glob[name]; ok && s.fn != nil {
		return s.fn
	}
	e.fail(ast.Position{}, "no such function: "+name)
	return nil
}

func (e *env) lookupDecl(name string) *ast.Decl {
	for i := len(e.locals) - 1; i >= 0; i-- {
		if d, ok := e.locals[i][name]; ok {
			return d
		}
	}
	if s, ok := e.glob[name]; ok && s.decl != nil {
		return s.decl
	}
	e.fail(ast.Position{}, "no such variable: "+name)
	return nil
}

func (e *env) ckFunc(f *ast.Func) {
	e.curFunc = f
	if _, dup := e.glob[f.Name]; dup {
		e.fail(f.Pos, "duplicate function: "+f.Name)
	}
	e.glob[f.Name] = symbol{fn: f}
	e.locals = append(e.locals, scope{})
	top := e.locals[len(e.locals)-1]
	for i := range f.Params {
		d := &f.Params[i]
		e.ckDecl(d)
		if _, dup := top[d.Name]; dup {
			e.fail(d.Pos, "duplicate parameter: "+d.Name)
		}
		top[d.Name] = d
	}
	if f.Body != nil {
		for _, s := range f.Body.Stmts {
			e.ckStmt(s)
		}
	}
	e.locals = e.locals[:len(e.locals)-1]
}

// ckDecl computes DimProducts (each dim's result times all dims to its
// right) and FlattenInit, matching ck_decl's right-to-left dimension sweep.
func (e *env) ckDecl(d *ast.Decl) {
	d.DimProducts = make([]int32, len(d.Dims))
	for i := len(d.Dims) - 1; i >= 0; i-- {
		dim := d.Dims[i]
		if dim == nil {
			continue // unspecified leading dimension of an array parameter
		}
		e.eval(dim)
		v, _ := dim.Result()
		if v < 0 {
			e.fail(dim.Pos(), "array dimension must be non-negative")
		}
		d.DimProducts[i] = v
		if i+1 < len(d.Dims) {
			d.DimProducts[i] *= d.DimProducts[i+1]
		}
	}

	switch {
	case d.HasInit:
		switch init := d.Init.(type) {
		case *ast.InitList:
			e.flattenInit([]ast.Expr{init}, d.Dims, d.DimProducts, d.IsConst || d.IsGlob, &d.FlattenInit)
		default:
			if len(d.Dims) != 0 {
				e.fail(d.Pos, "incompatible declaration type and initializer")
			}
			e.ckExpr(d.Init)
			if d.IsConst || d.IsGlob {
				e.eval(d.Init)
			}
			v, _ := d.Init.Result()
			d.FlattenInit = []int32{v}
		}
	case d.IsConst:
		e.fail(d.Pos, "const declaration has no initializer")
	case d.IsGlob:
		n := int32(1)
		if len(d.Dims) > 0 {
			n = d.DimProducts[0]
		}
		d.FlattenInit = make([]int32, n)
	}
}

// flattenInit mirrors Env::flatten_init: src is a list of InitVal-shaped
// entries (each either a scalar Expr or a nested *ast.InitList), dims/prods
// describe the remaining dimensions, and the result is appended to dst,
// zero-padded to the expected element count.
func (e *env) flattenInit(src []ast.Expr, dims []ast.Expr, prods []int32, needEval bool, dst *[]int32) {
	elemSize := int32(1)
	if len(prods) > 1 {
		elemSize = prods[1]
	}
	expect := prods[0]
	oldLen := len(*dst)
	cnt := int32(0)

	var walk func(items []ast.Expr)
	walk = func(items []ast.Expr) {
		for _, item := range items {
			if list, ok := item.(*ast.InitList); ok {
				if cnt != 0 {
					for cnt != elemSize {
						*dst = append(*dst, 0)
						cnt++
					}
					cnt = 0
				}
				if len(dims) == 0 {
					e.fail(item.Pos(), "initializer list has too many dimensions")
				}
				e.flattenInit(list.Elems, dims[1:], prods[1:], needEval, dst)
				continue
			}
			if needEval {
				e.eval(item)
			} else {
				e.ckExpr(item)
			}
			v, _ := item.Result()
			*dst = append(*dst, v)
			cnt++
			if cnt == elemSize {
				cnt = 0
			}
		}
	}
	walk(src)

	actual := int32(len(*dst)) - oldLen
	if actual <= expect {
		for actual < expect {
			*dst = append(*dst, 0)
			actual++
		}
	} else {
		e.fail(ast.Position{}, "too many initializer values")
	}
}

func (e *env) ckStmt(s ast.Stmt) {
	switch x := s.(type) {
	case *ast.AssignStmt:
		d := e.lookupDecl(x.Target.Name)
		x.Target.Decl = d
		if d.IsConst {
			e.fail(x.Pos(), "cannot assign to const declaration: "+d.Name)
		}
		for _, idx := range x.Target.Indices {
			if !e.ckExpr(idx).isInt() {
				e.fail(idx.Pos(), "index expects an int operand")
			}
		}
		rhs := e.ckExpr(x.Value)
		if !rhs.isInt() || len(d.Dims) != len(x.Target.Indices) {
			e.fail(x.Pos(), "can only assign int to int")
		}
	case *ast.ExprStmt:
		e.ckExpr(x.X)
	case *ast.DeclStmt:
		top := e.locals[len(e.locals)-1]
		for _, d := range x.Decls {
			e.ckDecl(d)
			if _, dup := top[d.Name]; dup {
				e.fail(d.Pos, "duplicate local declaration: "+d.Name)
			}
			top[d.Name] = d
		}
	case *ast.BlockStmt:
		e.locals = append(e.locals, scope{})
		for _, st := range x.Stmts {
			e.ckStmt(st)
		}
		e.locals = e.locals[:len(e.locals)-1]
	case *ast.IfStmt:
		if !e.ckExpr(x.Cond).isInt() {
			e.fail(x.Cond.Pos(), "if condition must be int")
		}
		e.ckStmt(x.Then)
		if x.Else != nil {
			e.ckStmt(x.Else)
		}
	case *ast.WhileStmt:
		if !e.ckExpr(x.Cond).isInt() {
			e.fail(x.Cond.Pos(), "while condition must be int")
		}
		e.loopCnt++
		e.ckStmt(x.Body)
		e.loopCnt--
	case *ast.BreakStmt:
		if e.loopCnt == 0 {
			e.fail(x.Pos(), "break outside a loop")
		}
	case *ast.ContinueStmt:
		if e.loopCnt == 0 {
			e.fail(x.Pos(), "continue outside a loop")
		}
	case *ast.ReturnStmt:
		if x.Value != nil {
			if !e.ckExpr(x.Value).isInt() || !e.curFunc.IsInt {
				e.fail(x.Pos(), "return type mismatch")
			}
		} else if e.curFunc.IsInt {
			e.fail(x.Pos(), "return type mismatch")
		}
	default:
		e.fail(ast.Position{}, "unreachable: unknown statement kind")
	}
}

func (e *env) ckExpr(expr ast.Expr) exprShape {
	switch x := expr.(type) {
	case *ast.Binary:
		l, r := e.ckExpr(x.LHS), e.ckExpr(x.RHS)
		if !l.isInt() || !r.isInt() {
			e.fail(x.Pos(), "binary operator expects int operands")
		}
		return scalarShape()
	case *ast.Unary:
		if !e.ckExpr(x.Operand).isInt() {
			e.fail(x.Pos(), "unary operator expects int operand")
		}
		return scalarShape()
	case *ast.Call:
		f := e.lookupFunc(x.Name)
		x.Func = f
		if b, ok := ast.LookupBuiltin(x.Name); ok {
			x.LineArg = b.LineArg
			if b.ExternName == "_sysy_starttime" || b.ExternName == "_sysy_stoptime" {
				x.Name = x.Name // the assembly emitter substitutes the extern name (calleeSymbol), not here
			}
			if b.NumParams >= 0 && len(x.Args) != b.NumParams {
				e.fail(x.Pos(), "function call argument count mismatch: "+x.Name)
			}
		} else if len(f.Params) != len(x.Args) {
			e.fail(x.Pos(), "function call argument count mismatch: "+x.Name)
		}
		for i, a := range x.Args {
			shape := e.ckExpr(a)
			if i < len(f.Params) {
				p := &f.Params[i]
				ok := !shape.isVoid && len(shape.dims) == len(p.Dims)
				for j := 1; ok && j < len(p.Dims); j++ {
					lv, _ := shape.dims[j].Result()
					rv, _ := p.Dims[j].Result()
					if lv != rv {
						ok = false
					}
				}
				if !ok {
					e.fail(a.Pos(), fmt.Sprintf("argument %d mismatch in call to %s", i+1, x.Name))
				}
			}
		}
		if f.IsInt {
			return scalarShape()
		}
		return voidShape()
	case *ast.Index:
		d := e.lookupDecl(x.Name)
		x.Decl = d
		if len(x.Indices) > len(d.Dims) {
			e.fail(x.Pos(), "index operator expects an array operand: "+x.Name)
		}
		for _, idx := range x.Indices {
			if !e.ckExpr(idx).isInt() {
				e.fail(idx.Pos(), "index operator expects an int operand")
			}
		}
		if len(d.Dims) == 0 {
			return scalarShape()
		}
		return exprShape{dims: d.Dims[len(x.Indices):]}
	case *ast.IntConst:
		x.SetResult(x.Value)
		return scalarShape()
	default:
		e.fail(ast.Position{}, "unreachable: unknown expression kind")
	}
	return exprShape{}
}

// eval constant-folds an expression in place, matching Env::eval. It
// assumes ckExpr-level well-formedness and only rejects the
// constant-expression-specific restrictions (no calls, only const
// variables, fully-indexed arrays).
func (e *env) eval(expr ast.Expr) {
	switch x := expr.(type) {
	case *ast.Binary:
		e.eval(x.LHS)
		e.eval(x.RHS)
		l, _ := x.LHS.Result()
		r, _ := x.RHS.Result()
		var v int32
		switch x.Op {
		case ast.Add:
			v = l + r
		case ast.Sub:
			v = l - r
		case ast.Mul:
			v = l * r
		case ast.Div:
			v = l / r
		case ast.Mod:
			v = l % r
		case ast.Lt:
			v = boolToI32(l < r)
		case ast.Le:
			v = boolToI32(l <= r)
		case ast.Ge:
			v = boolToI32(l >= r)
		case ast.Gt:
			v = boolToI32(l > r)
		case ast.Eq:
			v = boolToI32(l == r)
		case ast.Ne:
			v = boolToI32(l != r)
		case ast.And:
			v = boolToI32(l != 0 && r != 0)
		case ast.Or:
			v = boolToI32(l != 0 || r != 0)
		}
		x.SetResult(v)
	case *ast.Unary:
		e.eval(x.Operand)
		r, _ := x.Operand.Result()
		switch x.Op {
		case ast.Neg:
			x.SetResult(-r)
		case ast.Not:
			x.SetResult(boolToI32(r == 0))
		default:
			x.SetResult(r)
		}
	case *ast.Call:
		e.fail(x.Pos(), "function call in constant expression")
	case *ast.Index:
		d := e.lookupDecl(x.Name)
		if !d.IsConst {
			e.fail(x.Pos(), "non-constant variable used in constant expression: "+x.Name)
		}
		if len(d.Dims) != len(x.Indices) {
			e.fail(x.Pos(), "constant index expression must fully index the array")
		}
		off := int32(0)
		for i, idxExpr := range x.Indices {
			e.eval(idxExpr)
			idx, _ := idxExpr.Result()
			stride := int32(1)
			if i+1 < len(d.Dims) {
				stride = d.DimProducts[i+1]
			}
			off += stride * idx
		}
		if int(off) >= len(d.FlattenInit) || off < 0 {
			e.fail(x.Pos(), "constant index out of range")
		}
		x.SetResult(d.FlattenInit[off])
	case *ast.IntConst:
		x.SetResult(x.Value)
	default:
		e.fail(ast.Position{}, "unreachable: unknown expression kind in constant evaluation")
	}
}

func boolToI32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
