package parser

import (
	"github.com/gmofishsauce/xcc/internal/ast"
	"github.com/gmofishsauce/xcc/internal/token"
)

// The expression grammar follows §4.2's precedence table exactly, low to
// high: comma, assignment, ternary, logical-or, logical-and, bit-or,
// bit-xor, bit-and, equality, relational, shift, additive, multiplicative,
// cast, unary, postfix, primary. Each precedence level is one method,
// calling the next-tighter level for its operands — the standard
// recursive-descent-with-precedence-climbing shape.

func (p *Parser) parseExpr() ast.Expr {
	x := p.parseAssign()
	for {
		tok := p.cur()
		if _, ok := p.accept(token.Kind(',')); ok {
			y := p.parseAssign()
			x = ast.NewComma(tok, x, y)
			continue
		}
		break
	}
	return x
}

func (p *Parser) parseAssign() ast.Expr {
	x := p.parseConditional()
	tok := p.cur()
	op, isAssign := assignOpFor(tok.Kind)
	if !isAssign {
		return x
	}
	p.advance()
	y := p.parseAssign()
	return ast.NewAssign(tok, op, x, y)
}

func assignOpFor(k token.Kind) (ast.AssignOp, bool) {
	switch k {
	case token.Kind('='):
		return ast.AssignSimple, true
	case token.AddAssign:
		return ast.AssignAdd, true
	case token.SubAssign:
		return ast.AssignSub, true
	case token.MulAssign:
		return ast.AssignMul, true
	case token.DivAssign:
		return ast.AssignDiv, true
	case token.ModAssign:
		return ast.AssignMod, true
	case token.AndAssign:
		return ast.AssignAnd, true
	case token.OrAssign:
		return ast.AssignOr, true
	case token.XorAssign:
		return ast.AssignXor, true
	case token.ShlAssign:
		return ast.AssignShl, true
	case token.ShrAssign:
		return ast.AssignShr, true
	}
	return 0, false
}

func (p *Parser) parseConditional() ast.Expr {
	c := p.parseLogOr()
	tok := p.cur()
	if _, ok := p.accept(token.Kind('?')); ok {
		t := p.parseExpr()
		p.expect(token.Kind(':'))
		f := p.parseConditional()
		return ast.NewCond(tok, c, t, f)
	}
	return c
}

// binLevel describes one left-associative binary precedence level: the
// set of token kinds recognised and the BinOp each maps to, plus the
// next-tighter parse function.
type binLevel struct {
	toks map[token.Kind]ast.BinOp
	next func(*Parser) ast.Expr
}

func (p *Parser) parseBinLevel(lv binLevel) ast.Expr {
	x := lv.next(p)
	for {
		tok := p.cur()
		op, ok := lv.toks[tok.Kind]
		if !ok {
			return x
		}
		p.advance()
		y := lv.next(p)
		x = ast.NewBinary(tok, op, x, y)
	}
}

func (p *Parser) parseLogOr() ast.Expr {
	return p.parseBinLevel(binLevel{map[token.Kind]ast.BinOp{token.OrOr: ast.LogOr}, (*Parser).parseLogAnd})
}
func (p *Parser) parseLogAnd() ast.Expr {
	return p.parseBinLevel(binLevel{map[token.Kind]ast.BinOp{token.AndAnd: ast.LogAnd}, (*Parser).parseBitOr})
}
func (p *Parser) parseBitOr() ast.Expr {
	return p.parseBinLevel(binLevel{map[token.Kind]ast.BinOp{token.Kind('|'): ast.BitOr}, (*Parser).parseBitXor})
}
func (p *Parser) parseBitXor() ast.Expr {
	return p.parseBinLevel(binLevel{map[token.Kind]ast.BinOp{token.Kind('^'): ast.BitXor}, (*Parser).parseBitAnd})
}
func (p *Parser) parseBitAnd() ast.Expr {
	return p.parseBinLevel(binLevel{map[token.Kind]ast.BinOp{token.Kind('&'): ast.BitAnd}, (*Parser).parseEquality})
}
func (p *Parser) parseEquality() ast.Expr {
	return p.parseBinLevel(binLevel{map[token.Kind]ast.BinOp{token.Eq: ast.CmpEq, token.Ne: ast.CmpNe}, (*Parser).parseRelational})
}
func (p *Parser) parseRelational() ast.Expr {
	return p.parseBinLevel(binLevel{map[token.Kind]ast.BinOp{
		token.Kind('<'): ast.CmpLt, token.Kind('>'): ast.CmpGt, token.Le: ast.CmpLe, token.Ge: ast.CmpGe,
	}, (*Parser).parseShift})
}
func (p *Parser) parseShift() ast.Expr {
	return p.parseBinLevel(binLevel{map[token.Kind]ast.BinOp{token.Shl: ast.Shl, token.Shr: ast.Shr}, (*Parser).parseAdditive})
}
func (p *Parser) parseAdditive() ast.Expr {
	return p.parseBinLevel(binLevel{map[token.Kind]ast.BinOp{token.Kind('+'): ast.Add, token.Kind('-'): ast.Sub}, (*Parser).parseMultiplicative})
}
func (p *Parser) parseMultiplicative() ast.Expr {
	return p.parseBinLevel(binLevel{map[token.Kind]ast.BinOp{
		token.Kind('*'): ast.Mul, token.Kind('/'): ast.Div, token.Kind('%'): ast.Mod,
	}, (*Parser).parseCast})
}

// parseCast handles an explicit `(type)expr` cast, distinguished from a
// parenthesised expression by whether the token after `(` starts a type.
func (p *Parser) parseCast() ast.Expr {
	if p.at(token.Kind('(')) {
		save := p.mark()
		tok := p.cur()
		p.advance()
		if p.isTypeStart() {
			spec := p.parseDeclSpec()
			_, ty := p.parseDeclarator(spec.base)
			if _, ok := p.accept(token.Kind(')')); ok {
				x := p.parseCast()
				return ast.NewCast(tok, x, ty, false)
			}
		}
		p.reset(save)
	}
	return p.parseUnary()
}

func (p *Parser) parseUnary() ast.Expr {
	tok := p.cur()
	switch tok.Kind {
	case token.Kind('-'):
		p.advance()
		return ast.NewUnary(tok, ast.Neg, p.parseCast())
	case token.Kind('+'):
		p.advance()
		return ast.NewUnary(tok, ast.Plus, p.parseCast())
	case token.Kind('!'):
		p.advance()
		return ast.NewUnary(tok, ast.Not, p.parseCast())
	case token.Kind('~'):
		p.advance()
		return ast.NewUnary(tok, ast.BitNot, p.parseCast())
	case token.Kind('*'):
		p.advance()
		return ast.NewUnary(tok, ast.Deref, p.parseCast())
	case token.Kind('&'):
		p.advance()
		return ast.NewUnary(tok, ast.Addr, p.parseCast())
	case token.Inc:
		p.advance()
		return ast.NewIncDec(tok, p.parseUnary(), true, false)
	case token.Dec:
		p.advance()
		return ast.NewIncDec(tok, p.parseUnary(), false, false)
	case token.KwSizeof:
		p.advance()
		if p.at(token.Kind('(')) {
			save := p.mark()
			p.advance()
			if p.isTypeStart() {
				spec := p.parseDeclSpec()
				_, ty := p.parseDeclarator(spec.base)
				p.expect(token.Kind(')'))
				return ast.NewSizeofType(tok, ty)
			}
			p.reset(save)
		}
		return ast.NewSizeofExpr(tok, p.parseUnary())
	default:
		return p.parsePostfix()
	}
}

func (p *Parser) parsePostfix() ast.Expr {
	x := p.parsePrimary()
	for {
		tok := p.cur()
		switch tok.Kind {
		case token.Kind('['):
			p.advance()
			idx := p.parseExpr()
			p.expect(token.Kind(']'))
			x = ast.NewIndex(tok, x, idx)
		case token.Kind('('):
			p.advance()
			var args []ast.Expr
			if !p.at(token.Kind(')')) {
				for {
					args = append(args, p.parseAssign())
					if _, ok := p.accept(token.Kind(',')); !ok {
						break
					}
				}
			}
			p.expect(token.Kind(')'))
			x = ast.NewCall(tok, x, args)
		case token.Kind('.'):
			p.advance()
			name := p.expect(token.Ident).Name
			x = ast.NewMember(tok, x, name, false)
		case token.Arrow:
			p.advance()
			name := p.expect(token.Ident).Name
			x = ast.NewMember(tok, x, name, true)
		case token.Inc:
			p.advance()
			x = ast.NewIncDec(tok, x, true, true)
		case token.Dec:
			p.advance()
			x = ast.NewIncDec(tok, x, false, true)
		default:
			return x
		}
	}
}

func (p *Parser) parsePrimary() ast.Expr {
	tok := p.cur()
	switch tok.Kind {
	case token.IntLit, token.LongLit, token.CharLit:
		p.advance()
		return ast.NewLiteral(tok, tok.IntVal, tok.Unsigned, tok.Kind == token.LongLit)
	case token.StringLit:
		p.advance()
		return ast.NewStringLiteral(tok, tok.Str)
	case token.Ident:
		if v, ok := p.enumConsts[tok.Name]; ok {
			p.advance()
			return ast.NewLiteral(tok, v, false, false)
		}
		p.advance()
		return ast.NewIdent(tok, tok.Name)
	case token.Kind('('):
		p.advance()
		x := p.parseExpr()
		p.expect(token.Kind(')'))
		return x
	}
	p.fail(tok, "unexpected token %s in expression", tok.String())
	return nil
}
