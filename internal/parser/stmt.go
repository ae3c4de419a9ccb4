package parser

import (
	"github.com/gmofishsauce/xcc/internal/ast"
	"github.com/gmofishsauce/xcc/internal/token"
)

// parseBlock parses a `{ ... }` compound statement, opening a scope that
// sema will later link to its ast.Scope (the scope itself is created by
// sema as it walks the tree, not here — the parser has no symbol table of
// its own beyond typedefs/structTags/enumConsts, per §4.2).
func (p *Parser) parseBlock() *ast.Block {
	tok := p.expect(token.Kind('{'))
	var stmts []ast.Stmt
	for !p.at(token.Kind('}')) {
		stmts = append(stmts, p.parseStmt())
	}
	p.expect(token.Kind('}'))
	return ast.NewBlock(tok, nil, stmts)
}

// parseStmt parses one statement, per §3's statement variants plus the
// do/while supplement (§13).
func (p *Parser) parseStmt() ast.Stmt {
	tok := p.cur()
	switch tok.Kind {
	case token.Kind('{'):
		return p.parseBlock()
	case token.KwIf:
		return p.parseIf()
	case token.KwSwitch:
		return p.parseSwitch()
	case token.KwCase:
		return p.parseCase()
	case token.KwDefault:
		p.advance()
		p.expect(token.Kind(':'))
		return ast.NewDefault(tok)
	case token.KwWhile:
		return p.parseWhile()
	case token.KwDo:
		return p.parseDoWhile()
	case token.KwFor:
		return p.parseFor()
	case token.KwBreak:
		p.advance()
		p.expect(token.Kind(';'))
		return ast.NewBreak(tok)
	case token.KwContinue:
		p.advance()
		p.expect(token.Kind(';'))
		return ast.NewContinue(tok)
	case token.KwReturn:
		p.advance()
		var x ast.Expr
		if !p.at(token.Kind(';')) {
			x = p.parseExpr()
		}
		p.expect(token.Kind(';'))
		return ast.NewReturn(tok, x)
	case token.KwGoto:
		p.advance()
		label := p.expect(token.Ident).Name
		p.expect(token.Kind(';'))
		return ast.NewGoto(tok, label)
	case token.Kind(';'):
		p.advance()
		return ast.NewExprStmt(tok, nil)
	case token.Ident:
		if p.peekAt(1).Kind == token.Kind(':') {
			p.advance()
			p.advance()
			return ast.NewLabeled(tok, tok.Name, p.parseStmt())
		}
	}
	if p.isTypeStart() {
		return p.parseLocalDeclStmt()
	}
	x := p.parseExpr()
	p.expect(token.Kind(';'))
	return ast.NewExprStmt(tok, x)
}

func (p *Parser) parseIf() ast.Stmt {
	tok := p.expect(token.KwIf)
	p.expect(token.Kind('('))
	cond := p.parseExpr()
	p.expect(token.Kind(')'))
	then := p.parseStmt()
	var els ast.Stmt
	if _, ok := p.accept(token.KwElse); ok {
		els = p.parseStmt()
	}
	return ast.NewIf(tok, cond, then, els)
}

func (p *Parser) parseSwitch() ast.Stmt {
	tok := p.expect(token.KwSwitch)
	p.expect(token.Kind('('))
	x := p.parseExpr()
	p.expect(token.Kind(')'))
	body := p.parseStmt()
	return ast.NewSwitch(tok, x, body)
}

func (p *Parser) parseCase() ast.Stmt {
	tok := p.expect(token.KwCase)
	v := p.parseConstExprFold()
	p.expect(token.Kind(':'))
	return ast.NewCase(tok, v)
}

func (p *Parser) parseWhile() ast.Stmt {
	tok := p.expect(token.KwWhile)
	p.expect(token.Kind('('))
	cond := p.parseExpr()
	p.expect(token.Kind(')'))
	body := p.parseStmt()
	return ast.NewWhile(tok, cond, body)
}

// parseDoWhile parses the post-tested loop §13 calls out as an explicit
// supplement to the distilled grammar: `do STMT while ( EXPR ) ;`.
func (p *Parser) parseDoWhile() ast.Stmt {
	tok := p.expect(token.KwDo)
	body := p.parseStmt()
	p.expect(token.KwWhile)
	p.expect(token.Kind('('))
	cond := p.parseExpr()
	p.expect(token.Kind(')'))
	p.expect(token.Kind(';'))
	return ast.NewDoWhile(tok, cond, body)
}

func (p *Parser) parseFor() ast.Stmt {
	tok := p.expect(token.KwFor)
	p.expect(token.Kind('('))

	var init ast.Stmt
	if !p.at(token.Kind(';')) {
		if p.isTypeStart() {
			init = p.parseLocalDeclStmtNoSemi()
		} else {
			itok := p.cur()
			init = ast.NewExprStmt(itok, p.parseExpr())
		}
	}
	p.expect(token.Kind(';'))

	var cond ast.Expr
	if !p.at(token.Kind(';')) {
		cond = p.parseExpr()
	}
	p.expect(token.Kind(';'))

	var post ast.Expr
	if !p.at(token.Kind(')')) {
		post = p.parseExpr()
	}
	p.expect(token.Kind(')'))

	body := p.parseStmt()
	return ast.NewFor(tok, init, cond, post, body)
}

// parseLocalDeclStmt parses a local variable declaration appearing as a
// statement, consuming its terminating `;`.
func (p *Parser) parseLocalDeclStmt() ast.Stmt {
	tok := p.cur()
	decls := p.parseLocalVarDecls()
	p.expect(token.Kind(';'))
	return ast.NewLocalDecl(tok, decls)
}

// parseLocalDeclStmtNoSemi is the for-loop-init variant: the caller
// consumes the `;` itself.
func (p *Parser) parseLocalDeclStmtNoSemi() ast.Stmt {
	tok := p.cur()
	decls := p.parseLocalVarDecls()
	return ast.NewLocalDecl(tok, decls)
}

func (p *Parser) parseLocalVarDecls() []*ast.VarDecl {
	spec := p.parseDeclSpec()
	var decls []*ast.VarDecl
	for {
		declTok := p.cur()
		name, ty := p.parseDeclarator(spec.base)
		if spec.isTypedef {
			p.typedefs[name] = ty
			if _, ok := p.accept(token.Kind(',')); ok {
				continue
			}
			break
		}
		d := ast.NewVarDecl(declTok, name, ty, spec.storage)
		if _, ok := p.accept(token.Kind('=')); ok {
			d.Init = p.parseInitializer()
		}
		decls = append(decls, d)
		if _, ok := p.accept(token.Kind(',')); !ok {
			break
		}
	}
	return decls
}
