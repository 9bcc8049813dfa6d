package parser

import (
	"github.com/TrivialCompiler/TrivialCompiler-sub000/internal/frontend/ast"
)

// Convert folds a raw grammar tree down into the ast.Program shape the type
// checker consumes. No symbol resolution or constant folding happens here;
// that is typeck's job (see internal/frontend/typeck).
func Convert(unit *CompUnit) *ast.Program {
	prog := &ast.Program{}
	for _, item := range unit.Items {
		switch {
		case item.Func != nil:
			prog.Funcs = append(prog.Funcs, convertFunc(item.Func))
		case item.Decl != nil:
			prog.Globals = append(prog.Globals, convertDeclStmt(item.Decl)...)
		}
	}
	return prog
}

func convertFunc(f *FuncDef) *ast.Func {
	params := make([]ast.Decl, len(f.Params))
	for i, p := range f.Params {
		params[i] = ast.Decl{Name: p.Name, Dims: convertDims(p.Dims)}
	}
	return &ast.Func{
		Name:   f.Name,
		IsInt:  f.RetType == "int",
		Params: params,
		Body:   convertBlock(f.Body),
	}
}

func convertDims(dims []*Dim) []ast.Expr {
	out := make([]ast.Expr, len(dims))
	for i, d := range dims {
		if d.Unspecified {
			out[i] = nil
		} else {
			out[i] = convertExpr(d.Size)
		}
	}
	return out
}

func convertDeclStmt(d *DeclStmt) []*ast.Decl {
	decls := make([]*ast.Decl, len(d.Names))
	for i, v := range d.Names {
		decl := &ast.Decl{
			IsConst: d.IsConst,
			Name:    v.Name,
			Dims:    convertDims(v.Dims),
		}
		if v.Init != nil {
			decl.HasInit = true
			decl.Init = convertInitVal(v.Init)
		}
		decls[i] = decl
	}
	return decls
}

func convertInitVal(v *InitVal) ast.Expr {
	if v.List != nil {
		elems := make([]ast.Expr, len(v.List.Elems))
		for i, e := range v.List.Elems {
			elems[i] = convertInitVal(e)
		}
		return &ast.InitList{Elems: elems}
	}
	return convertExpr(v.Expr)
}

func convertBlock(b *Block) *ast.BlockStmt {
	stmts := make([]ast.Stmt, 0, len(b.Stmts))
	for _, s := range b.Stmts {
		stmts = append(stmts, convertStmt(s)...)
	}
	return &ast.BlockStmt{Stmts: stmts}
}

func convertStmt(s *Stmt) []ast.Stmt {
	switch {
	case s.Decl != nil:
		return []ast.Stmt{&ast.DeclStmt{Decls: convertDeclStmt(s.Decl)}}
	case s.Block != nil:
		return []ast.Stmt{convertBlock(s.Block)}
	case s.If != nil:
		st := &ast.IfStmt{Cond: convertExpr(s.If.Cond), Then: firstOrBlock(convertStmt(s.If.Then))}
		if s.If.Else != nil {
			st.Else = firstOrBlock(convertStmt(s.If.Else))
		}
		return []ast.Stmt{st}
	case s.While != nil:
		return []ast.Stmt{&ast.WhileStmt{Cond: convertExpr(s.While.Cond), Body: firstOrBlock(convertStmt(s.While.Body))}}
	case s.Break != nil:
		return []ast.Stmt{&ast.BreakStmt{}}
	case s.Continue != nil:
		return []ast.Stmt{&ast.ContinueStmt{}}
	case s.Return != nil:
		var v ast.Expr
		if s.Return.Value != nil {
			v = convertExpr(s.Return.Value)
		}
		return []ast.Stmt{&ast.ReturnStmt{Value: v}}
	case s.Assign != nil:
		target := &ast.Index{Name: s.Assign.Target.Name, Indices: convertExprs(s.Assign.Target.Indices)}
		return []ast.Stmt{&ast.AssignStmt{Target: target, Value: convertExpr(s.Assign.Value)}}
	case s.ExprStmt != nil:
		return []ast.Stmt{&ast.ExprStmt{X: convertExpr(s.ExprStmt.X)}}
	}
	return nil
}

// firstOrBlock wraps a nested statement conversion's singleton result so
// if/while bodies are always a single ast.Stmt even though convertStmt
// returns a slice (declarations can introduce several).
func firstOrBlock(stmts []ast.Stmt) ast.Stmt {
	if len(stmts) == 1 {
		return stmts[0]
	}
	return &ast.BlockStmt{Stmts: stmts}
}

func convertExprs(exprs []*Expr) []ast.Expr {
	out := make([]ast.Expr, len(exprs))
	for i, e := range exprs {
		out[i] = convertExpr(e)
	}
	return out
}

func convertExpr(e *Expr) ast.Expr {
	return convertOr(e.Or)
}

func convertOr(o *OrExpr) ast.Expr {
	expr := convertAnd(o.LHS)
	for _, r := range o.Rest {
		expr = &ast.Binary{Op: ast.Or, LHS: expr, RHS: convertAnd(r)}
	}
	return expr
}

func convertAnd(a *AndExpr) ast.Expr {
	expr := convertEq(a.LHS)
	for _, r := range a.Rest {
		expr = &ast.Binary{Op: ast.And, LHS: expr, RHS: convertEq(r)}
	}
	return expr
}

func convertEq(e *EqExpr) ast.Expr {
	expr := convertRel(e.LHS)
	for i, r := range e.Rest {
		op := ast.Eq
		if e.Ops[i] == "!=" {
			op = ast.Ne
		}
		expr = &ast.Binary{Op: op, LHS: expr, RHS: convertRel(r)}
	}
	return expr
}

func convertRel(r *RelExpr) ast.Expr {
	expr := convertAdd(r.LHS)
	for i, rhs := range r.Rest {
		var op ast.BinOp
		switch r.Ops[i] {
		case "<":
			op = ast.Lt
		case "<=":
			op = ast.Le
		case ">":
			op = ast.Gt
		case ">=":
			op = ast.Ge
		}
		expr = &ast.Binary{Op: op, LHS: expr, RHS: convertAdd(rhs)}
	}
	return expr
}

func convertAdd(a *AddExpr) ast.Expr {
	expr := convertMul(a.LHS)
	for i, rhs := range a.Rest {
		op := ast.Add
		if a.Ops[i] == "-" {
			op = ast.Sub
		}
		expr = &ast.Binary{Op: op, LHS: expr, RHS: convertMul(rhs)}
	}
	return expr
}

func convertMul(m *MulExpr) ast.Expr {
	expr := convertUnary(m.LHS)
	for i, rhs := range m.Rest {
		var op ast.BinOp
		switch m.Ops[i] {
		case "*":
			op = ast.Mul
		case "/":
			op = ast.Div
		case "%":
			op = ast.Mod
		}
		expr = &ast.Binary{Op: op, LHS: expr, RHS: convertUnary(rhs)}
	}
	return expr
}

func convertUnary(u *UnaryExpr) ast.Expr {
	if u.Primary != nil {
		return convertPrimary(u.Primary)
	}
	operand := convertUnary(u.Operand)
	switch u.Op {
	case "-":
		return &ast.Unary{Op: ast.Neg, Operand: operand}
	case "!":
		return &ast.Unary{Op: ast.Not, Operand: operand}
	default:
		return &ast.Unary{Op: ast.Pos, Operand: operand}
	}
}

func convertPrimary(p *Primary) ast.Expr {
	switch {
	case p.Paren != nil:
		return convertExpr(p.Paren)
	case p.Call != nil:
		return &ast.Call{Name: p.Call.Name, Args: convertExprs(p.Call.Args)}
	case p.Index != nil:
		return &ast.Index{Name: p.Index.Name, Indices: convertExprs(p.Index.Indices)}
	case p.Int != nil:
		return &ast.IntConst{Value: *p.Int}
	}
	return nil
}
