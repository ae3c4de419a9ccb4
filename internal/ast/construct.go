package ast

import (
	"github.com/gmofishsauce/xcc/internal/token"
	"github.com/gmofishsauce/xcc/internal/types"
)

// Constructors below are the only way another package can build a node
// with its position token set, since baseExpr/baseStmt/baseDecl are
// unexported embeddings (an importer cannot name them in a keyed struct
// literal). Each constructor mirrors one node's field list.

func NewLiteral(tok token.Token, v int64, unsigned, isLong bool) *Literal {
	return &Literal{baseExpr: baseExpr{Tok: tok}, IntVal: v, Unsigned: unsigned, IsLong: isLong}
}

func NewStringLiteral(tok token.Token, v []byte) *StringLiteral {
	return &StringLiteral{baseExpr: baseExpr{Tok: tok}, Value: v}
}

func NewIdent(tok token.Token, name string) *Ident {
	return &Ident{baseExpr: baseExpr{Tok: tok}, Name: name}
}

func NewBinary(tok token.Token, op BinOp, x, y Expr) *Binary {
	return &Binary{baseExpr: baseExpr{Tok: tok}, Op: op, X: x, Y: y}
}

func NewUnary(tok token.Token, op UnaryOp, x Expr) *Unary {
	return &Unary{baseExpr: baseExpr{Tok: tok}, Op: op, X: x}
}

func NewMember(tok token.Token, x Expr, field string, arrow bool) *Member {
	return &Member{baseExpr: baseExpr{Tok: tok}, X: x, Field: field, Arrow: arrow}
}

func NewIndex(tok token.Token, x, i Expr) *Index {
	return &Index{baseExpr: baseExpr{Tok: tok}, X: x, I: i}
}

func NewCast(tok token.Token, x Expr, ty *types.Type, implicit bool) *Cast {
	c := &Cast{baseExpr: baseExpr{Tok: tok, Typ: ty}, X: x, Implicit: implicit}
	return c
}

func NewCall(tok token.Token, callee Expr, args []Expr) *Call {
	return &Call{baseExpr: baseExpr{Tok: tok}, Callee: callee, Args: args}
}

func NewCond(tok token.Token, c, t, f Expr) *Cond {
	return &Cond{baseExpr: baseExpr{Tok: tok}, C: c, T: t, F: f}
}

func NewComma(tok token.Token, x, y Expr) *Comma {
	return &Comma{baseExpr: baseExpr{Tok: tok}, X: x, Y: y}
}

func NewAssign(tok token.Token, op AssignOp, lhs, rhs Expr) *Assign {
	return &Assign{baseExpr: baseExpr{Tok: tok}, Op: op, LHS: lhs, RHS: rhs}
}

func NewIncDec(tok token.Token, x Expr, inc, post bool) *IncDec {
	return &IncDec{baseExpr: baseExpr{Tok: tok}, X: x, Inc: inc, Post: post}
}

func NewSizeofExpr(tok token.Token, x Expr) *SizeofExpr {
	return &SizeofExpr{baseExpr: baseExpr{Tok: tok}, X: x}
}

func NewSizeofType(tok token.Token, t *types.Type) *SizeofType {
	return &SizeofType{baseExpr: baseExpr{Tok: tok}, T: t}
}

// ---- Statements ----

func NewExprStmt(tok token.Token, x Expr) *ExprStmt {
	return &ExprStmt{baseStmt: baseStmt{Tok: tok}, X: x}
}

func NewBlock(tok token.Token, scope *Scope, stmts []Stmt) *Block {
	return &Block{baseStmt: baseStmt{Tok: tok}, Scope: scope, Stmts: stmts}
}

func NewIf(tok token.Token, cond Expr, then, els Stmt) *If {
	return &If{baseStmt: baseStmt{Tok: tok}, Cond: cond, Then: then, Else: els}
}

func NewSwitch(tok token.Token, x Expr, body Stmt) *Switch {
	return &Switch{baseStmt: baseStmt{Tok: tok}, X: x, Body: body}
}

func NewCase(tok token.Token, v int64) *Case {
	return &Case{baseStmt: baseStmt{Tok: tok}, Value: v}
}

func NewDefault(tok token.Token) *Default {
	return &Default{baseStmt: baseStmt{Tok: tok}}
}

func NewWhile(tok token.Token, cond Expr, body Stmt) *While {
	return &While{baseStmt: baseStmt{Tok: tok}, Cond: cond, Body: body}
}

func NewDoWhile(tok token.Token, cond Expr, body Stmt) *DoWhile {
	return &DoWhile{baseStmt: baseStmt{Tok: tok}, Cond: cond, Body: body}
}

func NewFor(tok token.Token, init Stmt, cond Expr, post Expr, body Stmt) *For {
	return &For{baseStmt: baseStmt{Tok: tok}, Init: init, Cond: cond, Post: post, Body: body}
}

func NewBreak(tok token.Token) *Break { return &Break{baseStmt{Tok: tok}} }

func NewContinue(tok token.Token) *Continue { return &Continue{baseStmt{Tok: tok}} }

func NewReturn(tok token.Token, x Expr) *Return {
	return &Return{baseStmt: baseStmt{Tok: tok}, X: x}
}

func NewGoto(tok token.Token, label string) *Goto {
	return &Goto{baseStmt: baseStmt{Tok: tok}, Label: label}
}

func NewLabeled(tok token.Token, label string, stmt Stmt) *Labeled {
	return &Labeled{baseStmt: baseStmt{Tok: tok}, Label: label, Stmt: stmt}
}

func NewLocalDecl(tok token.Token, decls []*VarDecl) *LocalDecl {
	return &LocalDecl{baseStmt: baseStmt{Tok: tok}, Decls: decls}
}

// ---- Declarations ----

func NewVarDecl(tok token.Token, name string, ty *types.Type, storage StorageClass) *VarDecl {
	return &VarDecl{baseDecl: baseDecl{Tok: tok}, Name: name, Type: ty, Storage: storage}
}

func NewFuncDecl(tok token.Token, name string, ty *types.Type, storage StorageClass) *FuncDecl {
	return &FuncDecl{baseDecl: baseDecl{Tok: tok}, Name: name, Type: ty, Storage: storage, Labels: make(map[string]token.Token)}
}

func NewStructDecl(tok token.Token, info *types.StructInfo) *StructDecl {
	return &StructDecl{baseDecl: baseDecl{Tok: tok}, Info: info}
}

func NewTypedefDecl(tok token.Token, name string, ty *types.Type) *TypedefDecl {
	return &TypedefDecl{baseDecl: baseDecl{Tok: tok}, Name: name, Type: ty}
}
