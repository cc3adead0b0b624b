package compiler

import (
	"strconv"

	"github.com/nebula-lang/nebula/pkg/diag"
)

// ---------------------------------------------------------------------------
// Parser: recursive descent parser for Nebula
// ---------------------------------------------------------------------------

// Parser parses Nebula source code into an AST. One token of lookahead;
// the first diagnostic aborts the parse.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input)}
	// Read two tokens to fill curToken and peekToken.
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses input as a complete program.
func Parse(input string) (*Program, error) {
	return NewParser(input).ParseProgram()
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// curTokenIs checks if the current token is of the given kind.
func (p *Parser) curTokenIs(k TokenKind) bool {
	return p.curToken.Kind == k
}

// peekTokenIs checks if the peek token is of the given kind.
func (p *Parser) peekTokenIs(k TokenKind) bool {
	return p.peekToken.Kind == k
}

// expect consumes the current token if it matches, or fails.
func (p *Parser) expect(k TokenKind) (Token, error) {
	if err := p.lexErr(); err != nil {
		return Token{}, err
	}
	if !p.curTokenIs(k) {
		return Token{}, p.errorf(diag.ErrUnexpectedToken, "expected %s, got %s", k, p.curToken.Kind)
	}
	tok := p.curToken
	p.nextToken()
	return tok, nil
}

// expectIdent consumes an identifier and returns its name.
func (p *Parser) expectIdent() (string, error) {
	if err := p.lexErr(); err != nil {
		return "", err
	}
	if !p.curTokenIs(TokenIdent) {
		return "", p.errorf(diag.ErrExpectedIdent, "expected identifier, got %s", p.curToken.Kind)
	}
	name := p.curToken.Literal
	p.nextToken()
	return name, nil
}

// errorf builds a diagnostic anchored at the current token.
func (p *Parser) errorf(code diag.Code, format string, args ...any) error {
	return diag.Newf(code, format, args...).WithSpan(p.curToken.Span)
}

// lexErr surfaces a lexer error token as a diagnostic.
func (p *Parser) lexErr() error {
	if p.curToken.Kind == TokenError {
		return diag.New(diag.ErrUnexpectedToken, p.curToken.Literal).WithSpan(p.curToken.Span)
	}
	return nil
}

// skipNewlines advances past any run of newline tokens.
func (p *Parser) skipNewlines() {
	for p.curTokenIs(TokenNewline) {
		p.nextToken()
	}
}

// endOfStatement checks that the current token may terminate a
// statement: a newline, end of file, or a block closer consumed by the
// enclosing construct.
func (p *Parser) endOfStatement() error {
	if err := p.lexErr(); err != nil {
		return err
	}
	switch p.curToken.Kind {
	case TokenNewline, TokenEOF, TokenEnd, TokenElif, TokenElse:
		return nil
	}
	return p.errorf(diag.ErrUnexpectedToken, "expected newline, got %s", p.curToken.Kind)
}

// ---------------------------------------------------------------------------
// Top-level parsing
// ---------------------------------------------------------------------------

// ParseProgram parses the whole input.
func (p *Parser) ParseProgram() (*Program, error) {
	prog := &Program{}
	p.skipNewlines()
	for !p.curTokenIs(TokenEOF) {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		prog.Items = append(prog.Items, stmt)
		if err := p.endOfStatement(); err != nil {
			return nil, err
		}
		p.skipNewlines()
	}
	return prog, nil
}

// parseBlock parses statements until one of the stop tokens. The stop
// token is left for the caller to consume.
func (p *Parser) parseBlock(stops ...TokenKind) ([]Stmt, error) {
	var body []Stmt
	p.skipNewlines()
	for {
		if err := p.lexErr(); err != nil {
			return nil, err
		}
		if p.curTokenIs(TokenEOF) {
			return nil, p.errorf(diag.ErrUnclosedBlock, "missing end")
		}
		for _, s := range stops {
			if p.curTokenIs(s) {
				return body, nil
			}
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		body = append(body, stmt)
		if err := p.endOfStatement(); err != nil {
			return nil, err
		}
		p.skipNewlines()
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseStatement() (Stmt, error) {
	if err := p.lexErr(); err != nil {
		return nil, err
	}
	switch p.curToken.Kind {
	case TokenFb:
		return p.parseVar()
	case TokenCn:
		return p.parseConst()
	case TokenFn:
		return p.parseFunc()
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		return p.parseWhile()
	case TokenFor:
		return p.parseFor()
	case TokenEach:
		return p.parseEach()
	case TokenArrow:
		return p.parseReturn()
	case TokenBreak:
		stmt := &BreakStmt{SpanVal: p.curToken.Span}
		p.nextToken()
		return stmt, nil
	case TokenContinue:
		stmt := &ContinueStmt{SpanVal: p.curToken.Span}
		p.nextToken()
		return stmt, nil
	}
	return p.parseSimpleStatement()
}

// parseSimpleStatement parses an expression statement or an assignment
// (the target is parsed as an expression first, then validated).
func (p *Parser) parseSimpleStatement() (Stmt, error) {
	span := p.curToken.Span
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	switch p.curToken.Kind {
	case TokenAssign:
		p.nextToken()
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if !isAssignTarget(expr) {
			return nil, diag.New(diag.ErrInvalidExpr, "invalid assignment target").WithSpan(expr.Span())
		}
		return &AssignStmt{SpanVal: span, Target: expr, Value: value}, nil

	case TokenPlusAssign, TokenMinusAssign, TokenStarAssign, TokenSlashAssign:
		op := p.curToken.Kind
		p.nextToken()
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if !isAssignTarget(expr) {
			return nil, diag.New(diag.ErrInvalidExpr, "invalid assignment target").WithSpan(expr.Span())
		}
		return &CompoundStmt{SpanVal: span, Target: expr, Op: op, Value: value}, nil
	}

	return &ExprStmt{SpanVal: span, Expr: expr}, nil
}

func isAssignTarget(e Expr) bool {
	switch e.(type) {
	case *Identifier, *IndexExpr:
		return true
	}
	return false
}

func (p *Parser) parseVar() (Stmt, error) {
	span := p.curToken.Span
	p.nextToken() // fb
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenAssign); err != nil {
		return nil, err
	}
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &VarStmt{SpanVal: span, Name: name, Value: value}, nil
}

func (p *Parser) parseConst() (Stmt, error) {
	span := p.curToken.Span
	p.nextToken() // cn
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenAssign); err != nil {
		return nil, err
	}
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &ConstStmt{SpanVal: span, Name: name, Value: value}, nil
}

func (p *Parser) parseFunc() (Stmt, error) {
	span := p.curToken.Span
	p.nextToken() // fn
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenLParen); err != nil {
		return nil, err
	}
	var params []string
	p.skipNewlines()
	if !p.curTokenIs(TokenRParen) {
		for {
			param, err := p.expectIdent()
			if err != nil {
				return nil, err
			}
			params = append(params, param)
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
			p.skipNewlines()
		}
	}
	p.skipNewlines()
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	// Expression body: fn name(params) = expr
	if p.curTokenIs(TokenAssign) {
		p.nextToken()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		body := []Stmt{&ReturnStmt{SpanVal: expr.Span(), Value: expr}}
		return &FuncStmt{SpanVal: span, Name: name, Params: params, Body: body}, nil
	}

	// Block body: fn name(params) do ... end
	if _, err := p.expect(TokenDo); err != nil {
		return nil, err
	}
	body, err := p.parseBlock(TokenEnd)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenEnd); err != nil {
		return nil, err
	}
	return &FuncStmt{SpanVal: span, Name: name, Params: params, Body: body}, nil
}

func (p *Parser) parseIf() (Stmt, error) {
	span := p.curToken.Span
	p.nextToken() // if
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenDo); err != nil {
		return nil, err
	}
	then, err := p.parseBlock(TokenEnd, TokenElif, TokenElse)
	if err != nil {
		return nil, err
	}

	var elifs []ElifBranch
	for p.curTokenIs(TokenElif) {
		p.nextToken()
		elifCond, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenDo); err != nil {
			return nil, err
		}
		elifBody, err := p.parseBlock(TokenEnd, TokenElif, TokenElse)
		if err != nil {
			return nil, err
		}
		elifs = append(elifs, ElifBranch{Cond: elifCond, Body: elifBody})
	}

	var elseBody []Stmt
	if p.curTokenIs(TokenElse) {
		p.nextToken()
		elseBody, err = p.parseBlock(TokenEnd)
		if err != nil {
			return nil, err
		}
	}

	if _, err := p.expect(TokenEnd); err != nil {
		return nil, err
	}
	return &IfStmt{SpanVal: span, Cond: cond, Then: then, Elifs: elifs, Else: elseBody}, nil
}

func (p *Parser) parseWhile() (Stmt, error) {
	span := p.curToken.Span
	p.nextToken() // while
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenDo); err != nil {
		return nil, err
	}
	body, err := p.parseBlock(TokenEnd)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenEnd); err != nil {
		return nil, err
	}
	return &WhileStmt{SpanVal: span, Cond: cond, Body: body}, nil
}

func (p *Parser) parseFor() (Stmt, error) {
	span := p.curToken.Span
	p.nextToken() // for
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenAssign); err != nil {
		return nil, err
	}
	start, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenComma); err != nil {
		return nil, err
	}
	end, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	var step Expr
	if p.curTokenIs(TokenComma) {
		p.nextToken()
		step, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(TokenDo); err != nil {
		return nil, err
	}
	body, err := p.parseBlock(TokenEnd)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenEnd); err != nil {
		return nil, err
	}
	return &ForStmt{SpanVal: span, Name: name, Start: start, End: end, Step: step, Body: body}, nil
}

func (p *Parser) parseEach() (Stmt, error) {
	span := p.curToken.Span
	p.nextToken() // each
	name, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenIn); err != nil {
		return nil, err
	}
	iterable, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenDo); err != nil {
		return nil, err
	}
	body, err := p.parseBlock(TokenEnd)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(TokenEnd); err != nil {
		return nil, err
	}
	return &EachStmt{SpanVal: span, Name: name, Iterable: iterable, Body: body}, nil
}

func (p *Parser) parseReturn() (Stmt, error) {
	span := p.curToken.Span
	p.nextToken() // ->
	switch p.curToken.Kind {
	case TokenNewline, TokenEOF, TokenEnd, TokenElif, TokenElse:
		return &ReturnStmt{SpanVal: span}, nil
	}
	value, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &ReturnStmt{SpanVal: span, Value: value}, nil
}

// ---------------------------------------------------------------------------
// Expressions, precedence climbing (low to high):
//   |  &  == !=  < > <= >=  + -  * / %  ^  unary  postfix  primary
// ---------------------------------------------------------------------------

func (p *Parser) parseExpression() (Expr, error) {
	return p.parseOr()
}

func (p *Parser) parseBinaryLevel(next func() (Expr, error), ops ...TokenKind) (Expr, error) {
	left, err := next()
	if err != nil {
		return nil, err
	}
	for {
		matched := false
		for _, op := range ops {
			if p.curTokenIs(op) {
				matched = true
				break
			}
		}
		if !matched {
			return left, nil
		}
		opTok := p.curToken
		p.nextToken()
		right, err := next()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{SpanVal: opTok.Span, Op: opTok.Kind, Left: left, Right: right}
	}
}

func (p *Parser) parseOr() (Expr, error) {
	return p.parseBinaryLevel(p.parseAnd, TokenPipe)
}

func (p *Parser) parseAnd() (Expr, error) {
	return p.parseBinaryLevel(p.parseEquality, TokenAmp)
}

func (p *Parser) parseEquality() (Expr, error) {
	return p.parseBinaryLevel(p.parseComparison, TokenEq, TokenNe)
}

func (p *Parser) parseComparison() (Expr, error) {
	return p.parseBinaryLevel(p.parseAdditive, TokenLt, TokenGt, TokenLe, TokenGe)
}

func (p *Parser) parseAdditive() (Expr, error) {
	return p.parseBinaryLevel(p.parseMultiplicative, TokenPlus, TokenMinus)
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	return p.parseBinaryLevel(p.parsePower, TokenStar, TokenSlash, TokenPercent)
}

// parsePower handles ^, which is right-associative: 2^3^2 is 2^(3^2).
func (p *Parser) parsePower() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.curTokenIs(TokenCaret) {
		opTok := p.curToken
		p.nextToken()
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{SpanVal: opTok.Span, Op: TokenCaret, Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.curTokenIs(TokenMinus) || p.curTokenIs(TokenBang) {
		opTok := p.curToken
		p.nextToken()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{SpanVal: opTok.Span, Op: opTok.Kind, Operand: operand}, nil
	}
	return p.parsePostfix()
}

// parsePostfix handles calls and indexing, left to right.
func (p *Parser) parsePostfix() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch p.curToken.Kind {
		case TokenLParen:
			span := p.curToken.Span
			args, err := p.parseArgList()
			if err != nil {
				return nil, err
			}
			expr = &CallExpr{SpanVal: span, Callee: expr, Args: args}
		case TokenLBracket:
			span := p.curToken.Span
			p.nextToken()
			p.skipNewlines()
			key, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			p.skipNewlines()
			if _, err := p.expect(TokenRBracket); err != nil {
				return nil, err
			}
			expr = &IndexExpr{SpanVal: span, Container: expr, Key: key}
		default:
			return expr, nil
		}
	}
}

// parseArgList parses ( expr, expr, ... ) with newlines allowed inside.
func (p *Parser) parseArgList() ([]Expr, error) {
	p.nextToken() // (
	p.skipNewlines()
	var args []Expr
	if !p.curTokenIs(TokenRParen) {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
			p.skipNewlines()
		}
	}
	p.skipNewlines()
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parsePrimary() (Expr, error) {
	if err := p.lexErr(); err != nil {
		return nil, err
	}

	switch p.curToken.Kind {
	case TokenInt:
		tok := p.curToken
		p.nextToken()
		v, err := parseIntLiteral(tok.Literal)
		if err != nil {
			return nil, diag.Newf(diag.ErrInvalidExpr, "integer literal out of range: %s", tok.Literal).WithSpan(tok.Span)
		}
		return &IntLiteral{SpanVal: tok.Span, Value: v}, nil

	case TokenFloat:
		tok := p.curToken
		p.nextToken()
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return nil, diag.Newf(diag.ErrInvalidExpr, "invalid float literal: %s", tok.Literal).WithSpan(tok.Span)
		}
		return &FloatLiteral{SpanVal: tok.Span, Value: v}, nil

	case TokenString:
		tok := p.curToken
		p.nextToken()
		return &StringLiteral{SpanVal: tok.Span, Value: tok.Literal}, nil

	case TokenYes:
		tok := p.curToken
		p.nextToken()
		return &BoolLiteral{SpanVal: tok.Span, Value: true}, nil

	case TokenNo:
		tok := p.curToken
		p.nextToken()
		return &BoolLiteral{SpanVal: tok.Span, Value: false}, nil

	case TokenNil:
		tok := p.curToken
		p.nextToken()
		return &NilLiteral{SpanVal: tok.Span}, nil

	case TokenErr:
		span := p.curToken.Span
		p.nextToken()
		if _, err := p.expect(TokenLParen); err != nil {
			return nil, err
		}
		value, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return &ErrExpr{SpanVal: span, Value: value}, nil

	case TokenIdent:
		// lst( and map( are contextual literal heads; bare lst and map
		// are ordinary identifiers.
		if p.curToken.Literal == "lst" && p.peekTokenIs(TokenLParen) {
			return p.parseListLiteral()
		}
		if p.curToken.Literal == "map" && p.peekTokenIs(TokenLParen) {
			return p.parseMapLiteral()
		}
		tok := p.curToken
		p.nextToken()
		return &Identifier{SpanVal: tok.Span, Name: tok.Literal}, nil

	case TokenLParen:
		p.nextToken()
		p.skipNewlines()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		p.skipNewlines()
		if _, err := p.expect(TokenRParen); err != nil {
			return nil, err
		}
		return expr, nil
	}

	return nil, p.errorf(diag.ErrInvalidExpr, "unexpected token %s", p.curToken.Kind)
}

func (p *Parser) parseListLiteral() (Expr, error) {
	span := p.curToken.Span
	p.nextToken() // lst
	elems, err := p.parseArgList()
	if err != nil {
		return nil, err
	}
	return &ListLiteral{SpanVal: span, Elements: elems}, nil
}

func (p *Parser) parseMapLiteral() (Expr, error) {
	span := p.curToken.Span
	p.nextToken() // map
	p.nextToken() // (
	p.skipNewlines()
	var entries []MapEntry
	if !p.curTokenIs(TokenRParen) {
		for {
			key, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(TokenColon); err != nil {
				return nil, err
			}
			p.skipNewlines()
			value, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			entries = append(entries, MapEntry{Key: key, Value: value})
			if !p.curTokenIs(TokenComma) {
				break
			}
			p.nextToken()
			p.skipNewlines()
		}
	}
	p.skipNewlines()
	if _, err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return &MapLiteral{SpanVal: span, Entries: entries}, nil
}

// parseIntLiteral converts a lexed integer literal, honoring the 0x,
// 0b and 0o prefixes.
func parseIntLiteral(lit string) (int64, error) {
	if len(lit) > 2 && lit[0] == '0' {
		switch lit[1] {
		case 'x':
			return strconv.ParseInt(lit[2:], 16, 64)
		case 'b':
			return strconv.ParseInt(lit[2:], 2, 64)
		case 'o':
			return strconv.ParseInt(lit[2:], 8, 64)
		}
	}
	return strconv.ParseInt(lit, 10, 64)
}
