package parser

import (
	"github.com/gmofishsauce/xcc/internal/ast"
	"github.com/gmofishsauce/xcc/internal/token"
	"github.com/gmofishsauce/xcc/internal/types"
)

// declSpec is the result of parsing a declaration-specifier sequence:
// storage class, base type, and whether `typedef` was present.
type declSpec struct {
	base      *types.Type
	storage   ast.StorageClass
	isTypedef bool
}

// parseDeclSpec parses the type-specifier / storage-class / qualifier
// sequence that precedes a list of declarators, e.g. `static const
// struct Foo`. Order among specifiers is not enforced (§4.2's non-goals
// already exclude "full integer-promotion corner cases"; strict
// specifier-order checking is the same flavor of corner case).
func (p *Parser) parseDeclSpec() declSpec {
	var spec declSpec
	spec.storage = ast.StorageAuto

	haveSigned, haveUnsigned := false, false
	var width *token.Kind // last width keyword seen (char/short/int/long)
	haveAny := false

loop:
	for {
		switch p.cur().Kind {
		case token.KwStatic:
			spec.storage = ast.StorageStatic
			p.advance()
		case token.KwExtern:
			spec.storage = ast.StorageExtern
			p.advance()
		case token.KwTypedef:
			spec.isTypedef = true
			p.advance()
		case token.KwConst:
			p.advance() // const is accepted and discarded: it is recorded neither in the Type nor in any VarInfo flag
		case token.KwVoid:
			spec.base = types.TyVoid
			haveAny = true
			p.advance()
		case token.KwChar, token.KwShort, token.KwInt, token.KwLong:
			k := p.cur().Kind
			width = &k
			haveAny = true
			p.advance()
		case token.KwSigned:
			haveSigned = true
			haveAny = true
			p.advance()
		case token.KwUnsigned:
			haveUnsigned = true
			haveAny = true
			p.advance()
		case token.KwStruct, token.KwUnion:
			spec.base = p.parseStructOrUnion()
			haveAny = true
		case token.KwEnum:
			spec.base = p.parseEnum()
			haveAny = true
		case token.Ident:
			if t, ok := p.typedefs[p.cur().Name]; ok && spec.base == nil && width == nil {
				spec.base = t
				haveAny = true
				p.advance()
			} else {
				break loop
			}
		default:
			break loop
		}
	}
	if !haveAny {
		p.fail(p.cur(), "expected a type, got %s", p.cur().String())
	}
	if spec.base == nil {
		spec.base = integerSpecToType(width, haveSigned, haveUnsigned)
	}
	return spec
}

func integerSpecToType(width *token.Kind, signed, unsigned bool) *types.Type {
	w := types.Int
	if width != nil {
		switch *width {
		case token.KwChar:
			w = types.Char
		case token.KwShort:
			w = types.Short
		case token.KwInt:
			w = types.Int
		case token.KwLong:
			w = types.Long
		}
	}
	switch {
	case w == types.Char && unsigned:
		return types.TyUChar
	case w == types.Char:
		return types.TyChar
	case w == types.Short && unsigned:
		return types.TyUShort
	case w == types.Short:
		return types.TyShort
	case w == types.Long && unsigned:
		return types.TyULong
	case w == types.Long:
		return types.TyLong
	case unsigned:
		return types.TyUInt
	default:
		_ = signed
		return types.TyInt
	}
}

func (p *Parser) parseStructOrUnion() *types.Type {
	isUnion := p.cur().Kind == token.KwUnion
	p.advance()
	tag := ""
	if t, ok := p.accept(token.Ident); ok {
		tag = t.Name
	}
	si, existed := p.structTags[tag]
	if !existed {
		si = &types.StructInfo{Tag: tag, IsUnion: isUnion}
		if tag != "" {
			p.structTags[tag] = si
		}
	}
	if _, ok := p.accept(token.Kind('{')); ok {
		for !p.at(token.Kind('}')) {
			memberSpec := p.parseDeclSpec()
			for {
				name, ty := p.parseDeclarator(memberSpec.base)
				si.Members = append(si.Members, types.Member{Name: name, Type: ty})
				if _, ok := p.accept(token.Kind(',')); !ok {
					break
				}
			}
			p.expect(token.Kind(';'))
		}
		p.expect(token.Kind('}'))
		si.Finalize()
	}
	return types.NewStructType(si)
}

func (p *Parser) parseEnum() *types.Type {
	p.advance() // enum
	if _, ok := p.accept(token.Ident); ok {
		// tag recorded implicitly; enums are always int (§3).
	}
	if _, ok := p.accept(token.Kind('{')); ok {
		next := int64(0)
		for !p.at(token.Kind('}')) {
			name := p.expect(token.Ident).Name
			if _, ok := p.accept(token.Kind('=')); ok {
				next = p.parseConstExprFold()
			}
			p.enumConsts[name] = next
			next++
			if _, ok := p.accept(token.Kind(',')); !ok {
				break
			}
		}
		p.expect(token.Kind('}'))
	}
	return types.TyInt
}

// parseConstExprFold parses a conditional-expression and folds it to an
// int64 immediately. It is the compiler's constant folder for enum
// values, case labels (parseCase) and array lengths (parseSuffixes).
func (p *Parser) parseConstExprFold() int64 {
	e := p.parseConditional()
	v, ok := foldConstInt(e)
	if !ok {
		p.fail(e.Pos(), "expected a constant expression")
	}
	return v
}

func foldConstInt(e ast.Expr) (int64, bool) {
	switch n := e.(type) {
	case *ast.Literal:
		return n.IntVal, true
	case *ast.Unary:
		if v, ok := foldConstInt(n.X); ok {
			switch n.Op {
			case ast.Neg:
				return -v, true
			case ast.BitNot:
				return ^v, true
			case ast.Not:
				if v == 0 {
					return 1, true
				}
				return 0, true
			}
		}
	case *ast.Binary:
		a, ok1 := foldConstInt(n.X)
		b, ok2 := foldConstInt(n.Y)
		if ok1 && ok2 {
			switch n.Op {
			case ast.Add:
				return a + b, true
			case ast.Sub:
				return a - b, true
			case ast.Mul:
				return a * b, true
			case ast.Div:
				if b != 0 {
					return a / b, true
				}
			case ast.Mod:
				if b != 0 {
					return a % b, true
				}
			case ast.Shl:
				return a << uint(b), true
			case ast.Shr:
				return a >> uint(b), true
			case ast.BitAnd:
				return a & b, true
			case ast.BitOr:
				return a | b, true
			case ast.BitXor:
				return a ^ b, true
			}
		}
	}
	return 0, false
}

// parseDeclarator parses the C-style "spiral" declarator, resolving
// pointer/array/function combinations around a parenthesised inner
// declarator. Grounded on the standard recursive algorithm for
// declarator parsing (consume leading `*`s into the base first, then
// either recurse into a parenthesised sub-declarator with the
// suffix-applied type as the new base, or read the identifier and apply
// suffixes directly) so that `int (*fp)[3]` and `int *a[3]` resolve to
// their different, correct types.
func (p *Parser) parseDeclarator(base *types.Type) (string, *types.Type) {
	for _, ok := p.accept(token.Kind('*')); ok; _, ok = p.accept(token.Kind('*')) {
		base = types.NewPointerType(base)
		for p.cur().Kind == token.KwConst {
			p.advance()
		}
	}
	if _, ok := p.accept(token.Kind('(')); ok {
		start := p.mark()
		p.skipParenDeclarator()
		p.expect(token.Kind(')'))
		suffixed := p.parseSuffixes(base)
		end := p.mark()
		p.reset(start)
		name, ty := p.parseDeclarator(suffixed)
		p.reset(end)
		return name, ty
	}
	name := ""
	if t, ok := p.accept(token.Ident); ok {
		name = t.Name
	}
	return name, p.parseSuffixes(base)
}

// skipParenDeclarator advances past a parenthesised sub-declarator
// without building a type, so the enclosing parseDeclarator can first
// discover the suffixes that follow the closing paren.
func (p *Parser) skipParenDeclarator() {
	depth := 1
	for depth > 0 {
		switch p.cur().Kind {
		case token.Kind('('):
			depth++
		case token.Kind(')'):
			depth--
			if depth == 0 {
				return
			}
		case token.EOF:
			p.fail(p.cur(), "unterminated parenthesised declarator")
		}
		p.advance()
	}
}

// parseSuffixes applies any trailing `[N]` / `(params)` declarator
// suffixes to base, left to right (an array of functions is invalid C
// and not checked for; a function returning an array is rejected the
// same way C rejects it: by producing a Type a later stage will not
// accept as callable).
func (p *Parser) parseSuffixes(base *types.Type) *types.Type {
	if _, ok := p.accept(token.Kind('[')); ok {
		length := types.UnknownArrayLen
		if !p.at(token.Kind(']')) {
			length = int(p.parseConstExprFold())
		}
		p.expect(token.Kind(']'))
		elem := p.parseSuffixes(base)
		return types.NewArrayType(elem, length)
	}
	if _, ok := p.accept(token.Kind('(')); ok {
		var params []*types.Type
		var names []string
		variadic := false
		if !p.at(token.Kind(')')) {
			for {
				if _, ok := p.accept(token.Ellipsis); ok {
					variadic = true
					break
				}
				pspec := p.parseDeclSpec()
				pname, pty := p.parseDeclarator(pspec.base)
				params = append(params, pty)
				names = append(names, pname)
				if _, ok := p.accept(token.Kind(',')); !ok {
					break
				}
			}
		}
		p.expect(token.Kind(')'))
		ft := types.NewFuncType(base, params, variadic)
		p.paramNames[ft] = names
		return ft
	}
	return base
}

// parseTopLevelDecl parses one top-level declaration group (possibly
// several comma-separated declarators sharing one declSpec) and returns
// the Decl nodes it produces. A lone `struct Foo { ... };` with no
// declarator produces no Decl beyond registering the StructInfo (already
// done by parseDeclSpec) — a bare StructDecl marker is still emitted so
// later passes can see the struct was defined at this point in the file.
func (p *Parser) parseTopLevelDecl() []ast.Decl {
	tok := p.cur()
	spec := p.parseDeclSpec()

	if _, ok := p.accept(token.Kind(';')); ok {
		if spec.base.Kind == types.Struct || spec.base.Kind == types.Union {
			return []ast.Decl{ast.NewStructDecl(tok, spec.base.StructInfo)}
		}
		return nil
	}

	var decls []ast.Decl
	for {
		declTok := p.cur()
		name, ty := p.parseDeclarator(spec.base)
		if spec.isTypedef {
			p.typedefs[name] = ty
			decls = append(decls, ast.NewTypedefDecl(declTok, name, ty))
		} else if ty.Kind == types.Function && p.at(token.Kind('{')) {
			decls = append(decls, p.parseFuncDef(tok, name, ty, spec.storage))
			return decls
		} else {
			d := ast.NewVarDecl(declTok, name, ty, spec.storage)
			if _, ok := p.accept(token.Kind('=')); ok {
				d.Init = p.parseInitializer()
			}
			decls = append(decls, d)
		}
		if _, ok := p.accept(token.Kind(',')); !ok {
			break
		}
	}
	p.expect(token.Kind(';'))
	return decls
}

func (p *Parser) parseFuncDef(tok token.Token, name string, ty *types.Type, storage ast.StorageClass) *ast.FuncDecl {
	fd := ast.NewFuncDecl(tok, name, ty, storage)
	names := p.paramNames[ty]
	for i, pt := range ty.Params {
		pname := ""
		if i < len(names) {
			pname = names[i]
		}
		fd.Params = append(fd.Params, &ast.Param{Name: pname, Type: pt})
	}
	fd.Body = p.parseBlock()
	return fd
}

// parseInitializer parses the nested single/multi/dot/index form of
// §3/§4.2; normalisation (flatten_initializer) is a sema job.
func (p *Parser) parseInitializer() *ast.Initializer {
	tok := p.cur()
	if _, ok := p.accept(token.Kind('{')); ok {
		var list []*ast.Initializer
		if !p.at(token.Kind('}')) {
			for {
				list = append(list, p.parseDesignatedInitializer())
				if _, ok := p.accept(token.Kind(',')); !ok {
					break
				}
				if p.at(token.Kind('}')) {
					break
				}
			}
		}
		p.expect(token.Kind('}'))
		return ast.Multi(tok, list)
	}
	return ast.Single(tok, p.parseAssign())
}

func (p *Parser) parseDesignatedInitializer() *ast.Initializer {
	tok := p.cur()
	if _, ok := p.accept(token.Kind('.')); ok {
		name := p.expect(token.Ident).Name
		p.expect(token.Kind('='))
		return ast.Dot(tok, name, p.parseInitializer())
	}
	if _, ok := p.accept(token.Kind('[')); ok {
		idx := p.parseConditional()
		p.expect(token.Kind(']'))
		p.expect(token.Kind('='))
		return ast.IndexInit(tok, idx, p.parseInitializer())
	}
	return p.parseInitializer()
}
