// Package parser is the one concrete producer of ast.File trees this
// repository ships for the core's "external collaborator" lexer/parser
// boundary (spec.md §1). It is a hand-written recursive-descent/Pratt
// parser grounded on the teacher's parser.go (precedence-climbing binary
// operators, block-as-statement-list bodies, a single mk-style
// constructor path), adapted to build ast.Expr/ast.Scope nodes with
// parent links and populated declarations directly — the shape C5's
// resolver (spec.md §4.5) assumes as its starting point — rather than
// the teacher's S-expression IR.
package parser

import (
	"fmt"

	"github.com/horse64/h64core/ast"
	"github.com/horse64/h64core/lexer"
)

// Error is a parse failure.
type Error struct {
	Pos ast.Pos
	Msg string
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse error at %s:%d:%d: %s", e.Pos.FileURI, e.Pos.Line, e.Pos.Col, e.Msg)
}

// Parser consumes a pre-scanned token slice and builds an *ast.File.
type Parser struct {
	fileURI string
	toks    []lexer.Token
	pos     int
	scope   *ast.Scope
}

// Parse tokenizes src with lexer.New and parses it into an ast.File whose
// Root is a KindBlock owning the file's global scope, with every
// top-level declaration already registered into that scope — step 0 of
// spec.md §4.5, which the resolver assumes has already happened.
func Parse(fileURI, src string) (*ast.File, error) {
	toks, err := lexer.New(src).ScanAll()
	if err != nil {
		if le, ok := err.(*lexer.Error); ok {
			return nil, &Error{Pos: ast.Pos{FileURI: fileURI, Line: le.Pos.Line, Col: le.Pos.Col}, Msg: le.Msg}
		}
		return nil, err
	}
	p := &Parser{fileURI: fileURI, toks: toks}
	file := &ast.File{FileURI: fileURI}

	global := ast.NewScope(nil, true)
	root := &ast.Expr{Kind: ast.KindBlock, OwnScope: global, Pos: p.here()}
	root.OwnScope.OwnerExpr = root
	p.scope = global

	for !p.check(lexer.EOF) {
		stmt, err := p.topLevelStmt(root)
		if err != nil {
			return nil, err
		}
		if stmt == nil {
			continue
		}
		stmt.Parent = root
		root.Children = append(root.Children, stmt)
		if stmt.Kind == ast.KindImportStmt {
			file.Imports = append(file.Imports, stmt)
		}
	}
	file.Root = root
	return file, nil
}

func (p *Parser) here() ast.Pos {
	t := p.toks[p.pos]
	return ast.Pos{FileURI: p.fileURI, Line: t.Pos.Line, Col: t.Pos.Col}
}

func (p *Parser) cur() lexer.Token  { return p.toks[p.pos] }
func (p *Parser) check(t lexer.Type) bool { return p.cur().Type == t }

func (p *Parser) advance() lexer.Token {
	t := p.toks[p.pos]
	if t.Type != lexer.EOF {
		p.pos++
	}
	return t
}

func (p *Parser) match(t lexer.Type) bool {
	if p.check(t) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) expect(t lexer.Type) (lexer.Token, error) {
	if p.check(t) {
		return p.advance(), nil
	}
	return lexer.Token{}, &Error{Pos: p.here(), Msg: fmt.Sprintf("expected %s, got %s %q", t, p.cur().Type, p.cur().Literal)}
}

func (p *Parser) openScope(owner *ast.Expr, isGlobal bool) *ast.Scope {
	s := ast.NewScope(p.scope, isGlobal)
	s.OwnerExpr = owner
	owner.OwnScope = s
	p.scope = s
	return s
}

func (p *Parser) closeScope() {
	p.scope = p.scope.Parent
}

func (p *Parser) topLevelStmt(parent *ast.Expr) (*ast.Expr, error) {
	switch p.cur().Type {
	case lexer.KwImport:
		return p.importStmt()
	case lexer.KwFunc:
		return p.funcDef(-1)
	case lexer.KwClass:
		return p.classDef()
	case lexer.KwVar, lexer.KwConst:
		return p.varDef()
	default:
		return p.statement()
	}
}

func (p *Parser) importStmt() (*ast.Expr, error) {
	pos := p.here()
	p.advance() // 'import'
	var comps []string
	name, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	comps = append(comps, name.Literal)
	for p.match(lexer.Dot) {
		n, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		comps = append(comps, n.Literal)
	}
	library := ""
	if p.match(lexer.KwAs) {
		lib, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		library = lib.Literal
	}
	e := &ast.Expr{Kind: ast.KindImportStmt, Pos: pos, PathComponents: comps, Library: library, Name: comps[0]}
	p.scope.Declare(comps[0], e)
	return e, nil
}

func (p *Parser) varDef() (*ast.Expr, error) {
	pos := p.here()
	isConst := p.cur().Type == lexer.KwConst
	p.advance()
	name, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	e := &ast.Expr{Kind: ast.KindVarDef, Pos: pos, Name: name.Literal, IsConst: isConst}
	if p.match(lexer.Assign) {
		init, err := p.expression()
		if err != nil {
			return nil, err
		}
		init.Parent = e
		e.Init = init
	} else {
		e.Init = &ast.Expr{Kind: ast.KindLiteral, LitKind: ast.LitNone, Pos: pos, Parent: e}
	}
	p.scope.Declare(name.Literal, e)
	return e, nil
}

func (p *Parser) funcDef(enclosingClass int) (*ast.Expr, error) {
	pos := p.here()
	p.advance() // 'func'
	name, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	e := &ast.Expr{Kind: ast.KindFuncDef, Pos: pos, Name: name.Literal, EnclosingClassID: enclosingClass}
	if enclosingClass < 0 {
		p.scope.Declare(name.Literal, e)
	}

	fnScope := p.openScope(e, false)
	defer p.closeScope()

	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	for !p.check(lexer.RParen) {
		pn, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		last := false
		if p.match(lexer.Star) {
			last = true
		}
		if p.match(lexer.Colon) {
			e.KwParamNames = append(e.KwParamNames, pn.Literal)
		} else {
			e.ParamNames = append(e.ParamNames, pn.Literal)
		}
		e.LastIsMulti = last
		paramDef := &ast.Expr{Kind: ast.KindVarDef, Pos: p.here(), Name: pn.Literal}
		fnScope.Declare(pn.Literal, paramDef)
		if !p.match(lexer.Comma) {
			break
		}
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}

	body, err := p.blockSharingScope(fnScope)
	if err != nil {
		return nil, err
	}
	body.Parent = e
	e.Body = body
	return e, nil
}

func (p *Parser) classDef() (*ast.Expr, error) {
	pos := p.here()
	p.advance() // 'class'
	name, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	e := &ast.Expr{Kind: ast.KindClassDef, Pos: pos, Name: name.Literal}
	p.scope.Declare(name.Literal, e)

	if p.match(lexer.KwExtends) {
		base, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		e.Op = base.Literal
	}

	classScope := p.openScope(e, false)
	defer p.closeScope()

	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	for !p.check(lexer.RBrace) {
		switch p.cur().Type {
		case lexer.KwFunc:
			m, err := p.funcDefInScope(classScope)
			if err != nil {
				return nil, err
			}
			m.Parent = e
			e.Children = append(e.Children, m)
		case lexer.KwVar, lexer.KwConst:
			v, err := p.varDef()
			if err != nil {
				return nil, err
			}
			v.Parent = e
			e.Children = append(e.Children, v)
		default:
			return nil, &Error{Pos: p.here(), Msg: "expected method or field in class body"}
		}
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return e, nil
}

// funcDefInScope parses a method, reusing the class's scope as the
// declaration site for the method name (methods are not locals of the
// class body scope, but registerFunc in the global-storage pass keys
// off the class_def it walks through rather than scope membership, so no Declare call
// is needed for the method name itself here).
func (p *Parser) funcDefInScope(classScope *ast.Scope) (*ast.Expr, error) {
	saved := p.scope
	p.scope = classScope
	defer func() { p.scope = saved }()
	return p.funcDefMethod()
}

func (p *Parser) funcDefMethod() (*ast.Expr, error) {
	pos := p.here()
	p.advance()
	name, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	e := &ast.Expr{Kind: ast.KindFuncDef, Pos: pos, Name: name.Literal, EnclosingClassID: 0}

	fnScope := p.openScope(e, false)
	defer p.closeScope()

	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	for !p.check(lexer.RParen) {
		pn, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		if p.match(lexer.Colon) {
			e.KwParamNames = append(e.KwParamNames, pn.Literal)
		} else {
			e.ParamNames = append(e.ParamNames, pn.Literal)
		}
		paramDef := &ast.Expr{Kind: ast.KindVarDef, Pos: p.here(), Name: pn.Literal}
		fnScope.Declare(pn.Literal, paramDef)
		if !p.match(lexer.Comma) {
			break
		}
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	body, err := p.blockSharingScope(fnScope)
	if err != nil {
		return nil, err
	}
	body.Parent = e
	e.Body = body
	return e, nil
}

// blockSharingScope parses `{ stmt* }` without opening a further nested
// scope — used for function bodies, where parameters already share the
// block's scope (spec.md's local-storage assignment walks "own-scope
// locals", which must include parameters for the same function scope).
func (p *Parser) blockSharingScope(scope *ast.Scope) (*ast.Expr, error) {
	pos := p.here()
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	block := &ast.Expr{Kind: ast.KindBlock, Pos: pos, OwnScope: scope}
	for !p.check(lexer.RBrace) {
		s, err := p.statement()
		if err != nil {
			return nil, err
		}
		if s == nil {
			continue
		}
		s.Parent = block
		block.Children = append(block.Children, s)
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return block, nil
}

// block parses `{ stmt* }` opening a fresh child scope — used everywhere
// a nested block is not a function body (if/for/do/rescue/finally).
func (p *Parser) block() (*ast.Expr, error) {
	pos := p.here()
	blk := &ast.Expr{Kind: ast.KindBlock, Pos: pos}
	p.openScope(blk, false)
	defer p.closeScope()

	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	for !p.check(lexer.RBrace) {
		s, err := p.statement()
		if err != nil {
			return nil, err
		}
		if s == nil {
			continue
		}
		s.Parent = blk
		blk.Children = append(blk.Children, s)
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		return nil, err
	}
	return blk, nil
}

func (p *Parser) statement() (*ast.Expr, error) {
	switch p.cur().Type {
	case lexer.KwVar, lexer.KwConst:
		return p.varDef()
	case lexer.KwFunc:
		return p.funcDef(-1)
	case lexer.KwIf:
		return p.ifStmt()
	case lexer.KwFor:
		return p.forStmt()
	case lexer.KwDo:
		return p.doRescueStmt()
	case lexer.KwRaise:
		return p.raiseStmt()
	case lexer.KwReturn:
		return p.returnStmt()
	default:
		e, err := p.expression()
		if err != nil {
			return nil, err
		}
		if p.match(lexer.Assign) {
			val, err := p.expression()
			if err != nil {
				return nil, err
			}
			assign := &ast.Expr{Kind: ast.KindBinaryOp, Op: "=", Pos: e.Pos, Children: []*ast.Expr{e, val}}
			e.Parent, val.Parent = assign, assign
			return assign, nil
		}
		return e, nil
	}
}

func (p *Parser) ifStmt() (*ast.Expr, error) {
	pos := p.here()
	p.advance() // 'if'
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	thenBlk, err := p.block()
	if err != nil {
		return nil, err
	}
	e := &ast.Expr{Kind: ast.KindIfStmt, Pos: pos, Children: []*ast.Expr{cond, thenBlk}}
	cond.Parent, thenBlk.Parent = e, e

	if p.check(lexer.KwElseif) {
		elifChain, err := p.ifStmt()
		if err != nil {
			return nil, err
		}
		elifChain.Parent = e
		e.Body = elifChain
	} else if p.match(lexer.KwElse) {
		elseBlk, err := p.block()
		if err != nil {
			return nil, err
		}
		elseBlk.Parent = e
		e.Body = elseBlk
	}
	return e, nil
}

func (p *Parser) forStmt() (*ast.Expr, error) {
	pos := p.here()
	p.advance() // 'for'
	name, err := p.expect(lexer.Ident)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.KwIn); err != nil {
		return nil, err
	}
	iter, err := p.expression()
	if err != nil {
		return nil, err
	}

	e := &ast.Expr{Kind: ast.KindForStmt, Pos: pos, Name: name.Literal}
	loopScope := p.openScope(e, false)
	loopVar := &ast.Expr{Kind: ast.KindVarDef, Pos: pos, Name: name.Literal}
	loopScope.Declare(name.Literal, loopVar)

	bodyPos := p.here()
	body := &ast.Expr{Kind: ast.KindBlock, Pos: bodyPos, OwnScope: loopScope}
	if _, err := p.expect(lexer.LBrace); err != nil {
		p.closeScope()
		return nil, err
	}
	for !p.check(lexer.RBrace) {
		s, err := p.statement()
		if err != nil {
			p.closeScope()
			return nil, err
		}
		if s != nil {
			s.Parent = body
			body.Children = append(body.Children, s)
		}
	}
	if _, err := p.expect(lexer.RBrace); err != nil {
		p.closeScope()
		return nil, err
	}
	p.closeScope()

	iter.Parent = e
	e.Init = iter
	body.Parent = e
	e.Body = body
	return e, nil
}

func (p *Parser) doRescueStmt() (*ast.Expr, error) {
	pos := p.here()
	p.advance() // 'do'
	tryBlk, err := p.block()
	if err != nil {
		return nil, err
	}
	e := &ast.Expr{Kind: ast.KindDoRescueStmt, Pos: pos, Children: []*ast.Expr{tryBlk}}
	tryBlk.Parent = e

	for p.match(lexer.KwRescue) {
		rescuePos := p.here()
		var classNames []string
		for p.check(lexer.Ident) {
			n := p.advance()
			classNames = append(classNames, n.Literal)
			if !p.match(lexer.Comma) {
				break
			}
		}
		bindName := ""
		if p.match(lexer.KwAs) {
			n, err := p.expect(lexer.Ident)
			if err != nil {
				return nil, err
			}
			bindName = n.Literal
		}
		handler := &ast.Expr{Kind: ast.KindBlock, Pos: rescuePos, PathComponents: classNames, Name: bindName}
		p.openScope(handler, false)
		if bindName != "" {
			excDef := &ast.Expr{Kind: ast.KindVarDef, Pos: rescuePos, Name: bindName}
			handler.OwnScope.Declare(bindName, excDef)
		}
		if _, err := p.expect(lexer.LBrace); err != nil {
			p.closeScope()
			return nil, err
		}
		for !p.check(lexer.RBrace) {
			s, err := p.statement()
			if err != nil {
				p.closeScope()
				return nil, err
			}
			if s != nil {
				s.Parent = handler
				handler.Children = append(handler.Children, s)
			}
		}
		if _, err := p.expect(lexer.RBrace); err != nil {
			p.closeScope()
			return nil, err
		}
		p.closeScope()
		handler.Parent = e
		e.Children = append(e.Children, handler)
	}

	if p.match(lexer.KwFinally) {
		finBlk, err := p.block()
		if err != nil {
			return nil, err
		}
		finBlk.Parent = e
		e.Body = finBlk
	}
	return e, nil
}

func (p *Parser) raiseStmt() (*ast.Expr, error) {
	pos := p.here()
	p.advance()
	val, err := p.expression()
	if err != nil {
		return nil, err
	}
	e := &ast.Expr{Kind: ast.KindRaiseStmt, Pos: pos, Children: []*ast.Expr{val}}
	val.Parent = e
	return e, nil
}

func (p *Parser) returnStmt() (*ast.Expr, error) {
	pos := p.here()
	p.advance()
	e := &ast.Expr{Kind: ast.KindReturnStmt, Pos: pos}
	if !p.check(lexer.RBrace) && !p.check(lexer.EOF) {
		val, err := p.expression()
		if err != nil {
			return nil, err
		}
		val.Parent = e
		e.Children = []*ast.Expr{val}
	}
	return e, nil
}

// --- expressions, precedence-climbing over a small fixed table -----------

var precedence = map[string]int{
	"or": 1, "and": 2,
	"==": 3, "!=": 3, "<": 3, "<=": 3, ">": 3, ">=": 3,
	"+": 4, "-": 4,
	"*": 5, "/": 5, "%": 5,
}

func binOpOf(t lexer.Token) (string, bool) {
	switch t.Type {
	case lexer.Plus:
		return "+", true
	case lexer.Minus:
		return "-", true
	case lexer.Star:
		return "*", true
	case lexer.Slash:
		return "/", true
	case lexer.Percent:
		return "%", true
	case lexer.Eq:
		return "==", true
	case lexer.Ne:
		return "!=", true
	case lexer.Lt:
		return "<", true
	case lexer.Le:
		return "<=", true
	case lexer.Gt:
		return ">", true
	case lexer.Ge:
		return ">=", true
	case lexer.KwAnd:
		return "and", true
	case lexer.KwOr:
		return "or", true
	}
	return "", false
}

func (p *Parser) expression() (*ast.Expr, error) {
	return p.binary(0)
}

func (p *Parser) binary(minPrec int) (*ast.Expr, error) {
	lhs, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := binOpOf(p.cur())
		if !ok || precedence[op] < minPrec {
			return lhs, nil
		}
		pos := p.here()
		p.advance()
		rhs, err := p.binary(precedence[op] + 1)
		if err != nil {
			return nil, err
		}
		node := &ast.Expr{Kind: ast.KindBinaryOp, Op: op, Pos: pos, Children: []*ast.Expr{lhs, rhs}}
		lhs.Parent, rhs.Parent = node, node
		lhs = node
	}
}

func (p *Parser) unary() (*ast.Expr, error) {
	if p.check(lexer.Minus) || p.check(lexer.KwNot) {
		pos := p.here()
		op := "-"
		if p.cur().Type == lexer.KwNot {
			op = "not"
		}
		p.advance()
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		e := &ast.Expr{Kind: ast.KindUnaryOp, Op: op, Pos: pos, Children: []*ast.Expr{operand}}
		operand.Parent = e
		return e, nil
	}
	return p.postfix()
}

func (p *Parser) postfix() (*ast.Expr, error) {
	e, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().Type {
		case lexer.Dot:
			p.advance()
			name, err := p.expect(lexer.Ident)
			if err != nil {
				return nil, err
			}
			member := &ast.Expr{Kind: ast.KindMemberByIdentifier, Name: name.Literal, Pos: e.Pos, Children: []*ast.Expr{e}}
			e.Parent = member
			e = member
		case lexer.LParen:
			p.advance()
			call := &ast.Expr{Kind: ast.KindCall, Pos: e.Pos, Children: []*ast.Expr{e}}
			e.Parent = call
			for !p.check(lexer.RParen) {
				argName := ""
				if p.check(lexer.Ident) && p.toks[p.pos+1].Type == lexer.Colon {
					argName = p.advance().Literal
					p.advance() // ':'
				}
				arg, err := p.expression()
				if err != nil {
					return nil, err
				}
				arg.Parent = call
				call.Children = append(call.Children, arg)
				call.KwargNames = append(call.KwargNames, argName)
				if !p.match(lexer.Comma) {
					break
				}
			}
			if _, err := p.expect(lexer.RParen); err != nil {
				return nil, err
			}
			e = call
		default:
			return e, nil
		}
	}
}

func (p *Parser) primary() (*ast.Expr, error) {
	pos := p.here()
	switch p.cur().Type {
	case lexer.Int:
		t := p.advance()
		v, err := lexer.ParseIntLiteral(t.Literal)
		if err != nil {
			return nil, &Error{Pos: pos, Msg: "invalid integer literal"}
		}
		return &ast.Expr{Kind: ast.KindLiteral, LitKind: ast.LitInt, IntVal: v, Pos: pos}, nil
	case lexer.Float:
		t := p.advance()
		v, err := lexer.ParseFloatLiteral(t.Literal)
		if err != nil {
			return nil, &Error{Pos: pos, Msg: "invalid float literal"}
		}
		return &ast.Expr{Kind: ast.KindLiteral, LitKind: ast.LitFloat, FloatVal: v, Pos: pos}, nil
	case lexer.Str:
		t := p.advance()
		return &ast.Expr{Kind: ast.KindLiteral, LitKind: ast.LitStr, StrVal: t.Literal, Pos: pos}, nil
	case lexer.KwTrue:
		p.advance()
		return &ast.Expr{Kind: ast.KindLiteral, LitKind: ast.LitBool, BoolVal: true, Pos: pos}, nil
	case lexer.KwFalse:
		p.advance()
		return &ast.Expr{Kind: ast.KindLiteral, LitKind: ast.LitBool, BoolVal: false, Pos: pos}, nil
	case lexer.KwNone:
		p.advance()
		return &ast.Expr{Kind: ast.KindLiteral, LitKind: ast.LitNone, Pos: pos}, nil
	case lexer.KwSelf:
		p.advance()
		return &ast.Expr{Kind: ast.KindSelf, Pos: pos}, nil
	case lexer.KwBase:
		p.advance()
		return &ast.Expr{Kind: ast.KindBase, Pos: pos}, nil
	case lexer.KwFunc:
		return p.inlineFunc()
	case lexer.Ident:
		t := p.advance()
		return &ast.Expr{Kind: ast.KindIdentifierRef, Name: t.Literal, Pos: pos}, nil
	case lexer.LParen:
		p.advance()
		inner, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return nil, &Error{Pos: pos, Msg: fmt.Sprintf("unexpected token %s %q", p.cur().Type, p.cur().Literal)}
}

// inlineFunc parses an anonymous `func (params) { body }` closure
// expression, the one construct whose enclosing-function walk in C5's
// identifier-resolution pass (spec.md §4.5 step 5) is exercised by
// closure-capture detection.
func (p *Parser) inlineFunc() (*ast.Expr, error) {
	pos := p.here()
	p.advance() // 'func'
	e := &ast.Expr{Kind: ast.KindInlineFunc, Pos: pos, EnclosingClassID: -1}

	fnScope := p.openScope(e, false)
	defer p.closeScope()

	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	for !p.check(lexer.RParen) {
		pn, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		e.ParamNames = append(e.ParamNames, pn.Literal)
		paramDef := &ast.Expr{Kind: ast.KindVarDef, Pos: p.here(), Name: pn.Literal}
		fnScope.Declare(pn.Literal, paramDef)
		if !p.match(lexer.Comma) {
			break
		}
	}
	if _, err := p.expect(lexer.RParen); err != nil {
		return nil, err
	}
	body, err := p.blockSharingScope(fnScope)
	if err != nil {
		return nil, err
	}
	body.Parent = e
	e.Body = body
	return e, nil
}
