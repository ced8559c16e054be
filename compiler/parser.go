package compiler

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for the Tycho TypeScript subset
// ---------------------------------------------------------------------------

// Parser parses Tycho source code into an AST.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
	errors    []string
	input     string

	// asyncDepth > 0 while parsing an async function or method body.
	// await is only legal there.
	asyncDepth int
}

// NewParser creates a new parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
		input: input,
	}
	// Read two tokens to fill curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a complete source file.
// Returns the program and any accumulated errors.
func Parse(input string) (*Program, []string) {
	p := NewParser(input)
	prog := p.ParseProgram()
	return prog, p.errors
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// parserState is a checkpoint for speculative parsing.
type parserState struct {
	lexer     Lexer
	curToken  Token
	peekToken Token
	numErrors int
}

// save captures the parser state for later restore.
func (p *Parser) save() parserState {
	return parserState{
		lexer:     *p.lexer,
		curToken:  p.curToken,
		peekToken: p.peekToken,
		numErrors: len(p.errors),
	}
}

// restore rewinds the parser to a saved checkpoint.
func (p *Parser) restore(s parserState) {
	*p.lexer = s.lexer
	p.curToken = s.curToken
	p.peekToken = s.peekToken
	p.errors = p.errors[:s.numErrors]
}

func (p *Parser) curTokenIs(t TokenType) bool  { return p.curToken.Type == t }
func (p *Parser) peekTokenIs(t TokenType) bool { return p.peekToken.Type == t }

// expect consumes the current token if it matches, otherwise records an
// error and leaves the token in place.
func (p *Parser) expect(t TokenType) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf("expected %s, got %s", t, p.curToken.Type)
	return false
}

// errorf records a parse error at the current token.
func (p *Parser) errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf("line %d: %s", p.curToken.Pos.Line, fmt.Sprintf(format, args...))
	p.errors = append(p.errors, msg)
}

// Errors returns accumulated parse errors.
func (p *Parser) Errors() []string {
	return p.errors
}

// span builds a span from a start position to the current token.
func (p *Parser) span(start Position) Span {
	return MakeSpan(start, p.curToken.Pos)
}

// ---------------------------------------------------------------------------
// Top level
// ---------------------------------------------------------------------------

// ParseProgram parses the whole input.
func (p *Parser) ParseProgram() *Program {
	prog := &Program{}
	for !p.curTokenIs(TokenEOF) {
		before := p.curToken.Pos
		switch {
		case p.curTokenIs(TokenClass) || (p.curTokenIs(TokenAbstract) && p.peekTokenIs(TokenClass)):
			if cls := p.parseClassDecl(); cls != nil {
				prog.Classes = append(prog.Classes, cls)
			}
		case p.curTokenIs(TokenFunction) || (p.curTokenIs(TokenAsync) && p.peekTokenIs(TokenFunction)):
			if fn := p.parseFunctionDecl(); fn != nil {
				prog.Functions = append(prog.Functions, fn)
			}
		default:
			if stmt := p.parseStatement(); stmt != nil {
				prog.Statements = append(prog.Statements, stmt)
			}
		}
		// Guard against non-advancing error loops.
		if p.curToken.Pos == before && !p.curTokenIs(TokenEOF) {
			p.nextToken()
		}
	}
	return prog
}

// ---------------------------------------------------------------------------
// Class declarations
// ---------------------------------------------------------------------------

func (p *Parser) parseClassDecl() *ClassDecl {
	start := p.curToken.Pos
	cls := &ClassDecl{}

	if p.curTokenIs(TokenAbstract) {
		cls.IsAbstract = true
		p.nextToken()
	}
	p.expect(TokenClass)

	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected class name, got %s", p.curToken.Type)
		return nil
	}
	cls.Name = p.curToken.Literal
	p.nextToken()

	if p.curTokenIs(TokenLt) {
		cls.GenericParams = p.parseGenericParams()
	}

	if p.curTokenIs(TokenExtends) {
		p.nextToken()
		if !p.curTokenIs(TokenIdentifier) {
			p.errorf("expected superclass name, got %s", p.curToken.Type)
			return nil
		}
		cls.Superclass = p.curToken.Literal
		p.nextToken()
		if p.curTokenIs(TokenLt) {
			p.skipTypeArgs()
		}
	}

	p.expect(TokenLBrace)
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		p.parseClassMember(cls)
	}
	p.expect(TokenRBrace)

	cls.SpanVal = p.span(start)
	p.validateClass(cls)
	return cls
}

// parseGenericParams parses <T, U extends Foo>.
func (p *Parser) parseGenericParams() []GenericParam {
	var params []GenericParam
	p.expect(TokenLt)
	for !p.curTokenIs(TokenGt) && !p.curTokenIs(TokenEOF) {
		gp := GenericParam{}
		if p.curTokenIs(TokenIdentifier) {
			gp.Name = p.curToken.Literal
			p.nextToken()
		} else {
			p.errorf("expected generic parameter name, got %s", p.curToken.Type)
			return params
		}
		if p.curTokenIs(TokenExtends) {
			p.nextToken()
			gp.Constraint = p.parseTypeName()
		}
		params = append(params, gp)
		if p.curTokenIs(TokenComma) {
			p.nextToken()
		}
	}
	p.expect(TokenGt)
	return params
}

// classMemberMods holds the modifiers seen before a member name.
type classMemberMods struct {
	isStatic   bool
	isAsync    bool
	isAbstract bool
	isOverride bool
}

func (p *Parser) parseClassMember(cls *ClassDecl) {
	start := p.curToken.Pos
	var mods classMemberMods

	for {
		switch p.curToken.Type {
		case TokenStatic:
			mods.isStatic = true
			p.nextToken()
			continue
		case TokenAsync:
			mods.isAsync = true
			p.nextToken()
			continue
		case TokenAbstract:
			mods.isAbstract = true
			p.nextToken()
			continue
		case TokenOverride:
			mods.isOverride = true
			p.nextToken()
			continue
		}
		break
	}

	// Accessors: get/set followed by a property name.
	if (p.curTokenIs(TokenGet) || p.curTokenIs(TokenSet)) && p.peekIsMemberName() {
		p.parseAccessor(cls, start, mods)
		return
	}

	// Constructor.
	if p.curTokenIs(TokenConstructor) {
		if mods.isOverride {
			p.errorf("'override' is not permitted on a constructor")
		}
		if mods.isStatic {
			p.errorf("'static' is not permitted on a constructor")
		}
		p.nextToken()
		ctor := &MethodDecl{Name: "constructor", IsAsync: mods.isAsync}
		ctor.Params = p.parseParamList()
		ctor.Body = p.parseBlockBody(mods.isAsync)
		ctor.SpanVal = p.span(start)
		if cls.Constructor != nil {
			p.errorf("class %s has multiple constructors", cls.Name)
		}
		cls.Constructor = ctor
		return
	}

	name, ok := p.memberName()
	if !ok {
		p.errorf("expected member name, got %s", p.curToken.Type)
		p.nextToken()
		return
	}
	p.nextToken()

	// Method when a parameter list (or generic clause) follows.
	if p.curTokenIs(TokenLParen) || p.curTokenIs(TokenLt) {
		if p.curTokenIs(TokenLt) {
			p.skipTypeArgs()
		}
		m := &MethodDecl{
			Name:       name,
			IsStatic:   mods.isStatic,
			IsAsync:    mods.isAsync,
			IsAbstract: mods.isAbstract,
			IsOverride: mods.isOverride,
		}
		m.Params = p.parseParamList()
		if p.curTokenIs(TokenColon) {
			p.nextToken()
			p.parseTypeName() // erased return type
		}
		if mods.isAbstract {
			p.expect(TokenSemi)
		} else {
			m.Body = p.parseBlockBody(mods.isAsync)
		}
		m.SpanVal = p.span(start)
		cls.Methods = append(cls.Methods, m)
		return
	}

	// Otherwise a field.
	if mods.isOverride || mods.isAbstract || mods.isAsync {
		p.errorf("modifier not permitted on field %s", name)
	}
	f := &FieldDecl{Name: name, IsStatic: mods.isStatic}
	if p.curTokenIs(TokenColon) {
		p.nextToken()
		f.TypeName = p.parseTypeName()
	}
	if p.curTokenIs(TokenAssign) {
		p.nextToken()
		f.Init = p.parseExpression()
	}
	if p.curTokenIs(TokenSemi) {
		p.nextToken()
	}
	f.SpanVal = p.span(start)
	cls.Fields = append(cls.Fields, f)
}

// peekIsMemberName reports whether the peek token can start a member name.
func (p *Parser) peekIsMemberName() bool {
	switch p.peekToken.Type {
	case TokenIdentifier, TokenGet, TokenSet, TokenOf, TokenAs:
		return true
	}
	return false
}

// memberName returns the current token interpreted as a member name.
// Contextual keywords are allowed as names.
func (p *Parser) memberName() (string, bool) {
	switch p.curToken.Type {
	case TokenIdentifier, TokenGet, TokenSet, TokenOf, TokenAs:
		return p.curToken.Literal, true
	}
	return "", false
}

func (p *Parser) parseAccessor(cls *ClassDecl, start Position, mods classMemberMods) {
	kind := GetterAccessor
	if p.curTokenIs(TokenSet) {
		kind = SetterAccessor
	}
	p.nextToken()

	name, ok := p.memberName()
	if !ok {
		p.errorf("expected accessor name, got %s", p.curToken.Type)
		return
	}
	p.nextToken()

	acc := &AccessorDecl{Kind: kind, Name: name, IsAbstract: mods.isAbstract}
	if mods.isStatic {
		p.errorf("static accessors are not supported")
	}

	p.expect(TokenLParen)
	if kind == SetterAccessor {
		if p.curTokenIs(TokenIdentifier) {
			acc.SetterParam = p.curToken.Literal
			p.nextToken()
			if p.curTokenIs(TokenColon) {
				p.nextToken()
				p.parseTypeName()
			}
		} else {
			p.errorf("setter %s requires a parameter", name)
		}
	}
	p.expect(TokenRParen)
	if p.curTokenIs(TokenColon) {
		p.nextToken()
		p.parseTypeName()
	}

	if mods.isAbstract {
		p.expect(TokenSemi)
	} else {
		acc.Body = p.parseBlockBody(false)
	}
	acc.SpanVal = p.span(start)
	cls.Accessors = append(cls.Accessors, acc)
}

// validateClass enforces the declaration-time override and abstract rules.
func (p *Parser) validateClass(cls *ClassDecl) {
	for _, m := range cls.Methods {
		if m.IsOverride {
			if cls.Superclass == "" {
				p.errorf("method %s.%s marked override but class has no superclass", cls.Name, m.Name)
			}
			if m.IsStatic {
				p.errorf("'override' is not permitted on static method %s.%s", cls.Name, m.Name)
			}
		}
		if m.IsAbstract {
			if !cls.IsAbstract {
				p.errorf("abstract method %s.%s in non-abstract class", cls.Name, m.Name)
			}
			if m.Body != nil {
				p.errorf("abstract method %s.%s cannot have a body", cls.Name, m.Name)
			}
		}
	}
	for _, a := range cls.Accessors {
		if a.IsAbstract && !cls.IsAbstract {
			p.errorf("abstract accessor %s.%s in non-abstract class", cls.Name, a.Name)
		}
	}
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

func (p *Parser) parseFunctionDecl() *FunctionDecl {
	start := p.curToken.Pos
	fn := &FunctionDecl{}

	if p.curTokenIs(TokenAsync) {
		fn.IsAsync = true
		p.nextToken()
	}
	p.expect(TokenFunction)

	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected function name, got %s", p.curToken.Type)
		return nil
	}
	fn.Name = p.curToken.Literal
	p.nextToken()

	if p.curTokenIs(TokenLt) {
		p.skipTypeArgs()
	}
	fn.Params = p.parseParamList()
	if p.curTokenIs(TokenColon) {
		p.nextToken()
		p.parseTypeName()
	}
	fn.Body = p.parseBlockBody(fn.IsAsync)
	fn.SpanVal = p.span(start)
	return fn
}

// parseParamList parses (a, b: T = expr, ...).
func (p *Parser) parseParamList() []Param {
	var params []Param
	p.expect(TokenLParen)
	for !p.curTokenIs(TokenRParen) && !p.curTokenIs(TokenEOF) {
		param := Param{}
		if name, ok := p.memberName(); ok {
			param.Name = name
			p.nextToken()
		} else {
			p.errorf("expected parameter name, got %s", p.curToken.Type)
			break
		}
		if p.curTokenIs(TokenQuestion) {
			p.nextToken() // optional marker; same as defaulting to undefined
		}
		if p.curTokenIs(TokenColon) {
			p.nextToken()
			param.TypeName = p.parseTypeName()
		}
		if p.curTokenIs(TokenAssign) {
			p.nextToken()
			param.Default = p.parseExpression()
		}
		params = append(params, param)
		if p.curTokenIs(TokenComma) {
			p.nextToken()
		}
	}
	p.expect(TokenRParen)
	return params
}

// parseBlockBody parses { stmts } adjusting the async nesting.
func (p *Parser) parseBlockBody(isAsync bool) []Stmt {
	if isAsync {
		p.asyncDepth++
		defer func() { p.asyncDepth-- }()
	} else {
		saved := p.asyncDepth
		p.asyncDepth = 0
		defer func() { p.asyncDepth = saved }()
	}
	return p.parseBlock()
}

// parseBlock parses { stmts }.
func (p *Parser) parseBlock() []Stmt {
	var stmts []Stmt
	p.expect(TokenLBrace)
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		before := p.curToken.Pos
		if stmt := p.parseStatement(); stmt != nil {
			stmts = append(stmts, stmt)
		}
		if p.curToken.Pos == before && !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
			p.nextToken()
		}
	}
	p.expect(TokenRBrace)
	return stmts
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseStatement() Stmt {
	switch p.curToken.Type {
	case TokenLet, TokenConst:
		return p.parseVarDecl()
	case TokenReturn:
		return p.parseReturn()
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		return p.parseWhile()
	case TokenFor:
		return p.parseFor()
	case TokenTry:
		return p.parseTry()
	case TokenThrow:
		return p.parseThrow()
	case TokenLBrace:
		start := p.curToken.Pos
		body := p.parseBlock()
		return &Block{SpanVal: p.span(start), Body: body}
	default:
		return p.parseExprStatement()
	}
}

func (p *Parser) parseVarDecl() Stmt {
	start := p.curToken.Pos
	isConst := p.curTokenIs(TokenConst)
	p.nextToken()

	name, ok := p.memberName()
	if !ok {
		p.errorf("expected variable name, got %s", p.curToken.Type)
		return nil
	}
	decl := &VarDecl{Name: name, Const: isConst}
	p.nextToken()

	if p.curTokenIs(TokenColon) {
		p.nextToken()
		p.parseTypeName()
	}
	if p.curTokenIs(TokenAssign) {
		p.nextToken()
		decl.Init = p.parseExpression()
	} else if isConst {
		p.errorf("const declaration of %s requires an initializer", name)
	}
	p.consumeSemi()
	decl.SpanVal = p.span(start)
	return decl
}

func (p *Parser) parseReturn() Stmt {
	start := p.curToken.Pos
	p.nextToken()
	ret := &Return{}
	if !p.curTokenIs(TokenSemi) && !p.curTokenIs(TokenRBrace) {
		ret.Value = p.parseExpression()
	}
	p.consumeSemi()
	ret.SpanVal = p.span(start)
	return ret
}

func (p *Parser) parseIf() Stmt {
	start := p.curToken.Pos
	p.nextToken()
	p.expect(TokenLParen)
	cond := p.parseExpression()
	p.expect(TokenRParen)

	stmt := &If{Cond: cond}
	if p.curTokenIs(TokenLBrace) {
		stmt.Then = p.parseBlock()
	} else if s := p.parseStatement(); s != nil {
		stmt.Then = []Stmt{s}
	}
	if p.curTokenIs(TokenElse) {
		p.nextToken()
		if p.curTokenIs(TokenLBrace) {
			stmt.Else = p.parseBlock()
		} else if s := p.parseStatement(); s != nil {
			stmt.Else = []Stmt{s}
		}
	}
	stmt.SpanVal = p.span(start)
	return stmt
}

func (p *Parser) parseWhile() Stmt {
	start := p.curToken.Pos
	p.nextToken()
	p.expect(TokenLParen)
	cond := p.parseExpression()
	p.expect(TokenRParen)
	body := p.parseBlock()
	return &While{SpanVal: p.span(start), Cond: cond, Body: body}
}

func (p *Parser) parseFor() Stmt {
	start := p.curToken.Pos
	p.nextToken()
	p.expect(TokenLParen)

	// for (let x of iterable) { ... }
	if (p.curTokenIs(TokenLet) || p.curTokenIs(TokenConst)) && p.peekTokenIs(TokenIdentifier) {
		s := p.save()
		p.nextToken() // let/const
		name := p.curToken.Literal
		p.nextToken()
		if p.curTokenIs(TokenOf) {
			p.nextToken()
			iterable := p.parseExpression()
			p.expect(TokenRParen)
			body := p.parseBlock()
			return &ForOf{SpanVal: p.span(start), VarName: name, Iterable: iterable, Body: body}
		}
		p.restore(s)
	}

	stmt := &For{}
	if !p.curTokenIs(TokenSemi) {
		if p.curTokenIs(TokenLet) || p.curTokenIs(TokenConst) {
			stmt.Init = p.parseVarDecl() // consumes the first semicolon
		} else {
			stmt.Init = &ExprStmt{SpanVal: p.span(p.curToken.Pos), Expr: p.parseExpression()}
			p.consumeSemi()
		}
	} else {
		p.nextToken()
	}
	if !p.curTokenIs(TokenSemi) {
		stmt.Cond = p.parseExpression()
	}
	p.expect(TokenSemi)
	if !p.curTokenIs(TokenRParen) {
		stmt.Post = p.parseExpression()
	}
	p.expect(TokenRParen)
	stmt.Body = p.parseBlock()
	stmt.SpanVal = p.span(start)
	return stmt
}

func (p *Parser) parseTry() Stmt {
	start := p.curToken.Pos
	p.nextToken()
	stmt := &Try{}
	stmt.Body = p.parseBlock()

	if !p.curTokenIs(TokenCatch) {
		p.errorf("try requires a catch clause")
		return stmt
	}
	p.nextToken()
	if p.curTokenIs(TokenLParen) {
		p.nextToken()
		if name, ok := p.memberName(); ok {
			stmt.CatchVar = name
			p.nextToken()
			if p.curTokenIs(TokenColon) {
				p.nextToken()
				p.parseTypeName()
			}
		}
		p.expect(TokenRParen)
	}
	stmt.CatchBody = p.parseBlock()
	stmt.SpanVal = p.span(start)
	return stmt
}

func (p *Parser) parseThrow() Stmt {
	start := p.curToken.Pos
	p.nextToken()
	value := p.parseExpression()
	p.consumeSemi()
	return &Throw{SpanVal: p.span(start), Value: value}
}

func (p *Parser) parseExprStatement() Stmt {
	start := p.curToken.Pos
	expr := p.parseExpression()
	if expr == nil {
		return nil
	}
	p.consumeSemi()
	return &ExprStmt{SpanVal: p.span(start), Expr: expr}
}

// consumeSemi eats an optional statement-terminating semicolon.
func (p *Parser) consumeSemi() {
	if p.curTokenIs(TokenSemi) {
		p.nextToken()
	}
}

// ---------------------------------------------------------------------------
// Expressions (precedence climbing)
// ---------------------------------------------------------------------------

func (p *Parser) parseExpression() Expr {
	return p.parseAssignment()
}

func (p *Parser) parseAssignment() Expr {
	left := p.parseOr()
	switch p.curToken.Type {
	case TokenAssign, TokenPlusAssign, TokenMinusAssign:
		op := p.curToken.Literal
		start := p.curToken.Pos
		switch left.(type) {
		case *Identifier, *MemberAccess, *Index:
		default:
			p.errorf("invalid assignment target")
		}
		p.nextToken()
		value := p.parseAssignment()
		return &Assign{SpanVal: p.span(start), Op: op, Target: left, Value: value}
	}
	return left
}

func (p *Parser) parseOr() Expr {
	left := p.parseAnd()
	for p.curTokenIs(TokenOrOr) {
		start := p.curToken.Pos
		p.nextToken()
		right := p.parseAnd()
		left = &Binary{SpanVal: p.span(start), Op: "||", Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAnd() Expr {
	left := p.parseEquality()
	for p.curTokenIs(TokenAndAnd) {
		start := p.curToken.Pos
		p.nextToken()
		right := p.parseEquality()
		left = &Binary{SpanVal: p.span(start), Op: "&&", Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseEquality() Expr {
	left := p.parseRelational()
	for {
		var op string
		switch p.curToken.Type {
		case TokenEq:
			op = "=="
		case TokenStrictEq:
			op = "==="
		case TokenNe:
			op = "!="
		case TokenStrictNe:
			op = "!=="
		default:
			return left
		}
		start := p.curToken.Pos
		p.nextToken()
		right := p.parseRelational()
		left = &Binary{SpanVal: p.span(start), Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseRelational() Expr {
	left := p.parseAdditive()
	for {
		var op string
		switch p.curToken.Type {
		case TokenLt:
			op = "<"
		case TokenLe:
			op = "<="
		case TokenGt:
			op = ">"
		case TokenGe:
			op = ">="
		default:
			return left
		}
		start := p.curToken.Pos
		p.nextToken()
		right := p.parseAdditive()
		left = &Binary{SpanVal: p.span(start), Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseAdditive() Expr {
	left := p.parseMultiplicative()
	for p.curTokenIs(TokenPlus) || p.curTokenIs(TokenMinus) {
		op := p.curToken.Literal
		start := p.curToken.Pos
		p.nextToken()
		right := p.parseMultiplicative()
		left = &Binary{SpanVal: p.span(start), Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseMultiplicative() Expr {
	left := p.parseUnary()
	for p.curTokenIs(TokenStar) || p.curTokenIs(TokenSlash) || p.curTokenIs(TokenPercent) {
		op := p.curToken.Literal
		start := p.curToken.Pos
		p.nextToken()
		right := p.parseUnary()
		left = &Binary{SpanVal: p.span(start), Op: op, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseUnary() Expr {
	start := p.curToken.Pos
	switch p.curToken.Type {
	case TokenMinus:
		p.nextToken()
		operand := p.parseUnary()
		return &Unary{SpanVal: p.span(start), Op: "-", Operand: operand}
	case TokenBang:
		p.nextToken()
		operand := p.parseUnary()
		return &Unary{SpanVal: p.span(start), Op: "!", Operand: operand}
	case TokenAwait:
		if p.asyncDepth == 0 {
			p.errorf("await is only permitted inside async bodies")
		}
		p.nextToken()
		operand := p.parseUnary()
		return &Await{SpanVal: p.span(start), Operand: operand}
	}
	return p.parsePostfix()
}

// parsePostfix parses call, member, index, non-null and cast suffixes.
func (p *Parser) parsePostfix() Expr {
	expr := p.parsePrimary()
	if expr == nil {
		return nil
	}
	for {
		start := p.curToken.Pos
		switch p.curToken.Type {
		case TokenLParen:
			args := p.parseArgs()
			expr = &Call{SpanVal: p.span(start), Callee: expr, Args: args}
		case TokenDot:
			p.nextToken()
			name, ok := p.memberName()
			if !ok {
				p.errorf("expected property name after '.', got %s", p.curToken.Type)
				return expr
			}
			p.nextToken()
			expr = &MemberAccess{SpanVal: p.span(start), Receiver: expr, Name: name}
		case TokenLBracket:
			p.nextToken()
			key := p.parseExpression()
			p.expect(TokenRBracket)
			expr = &Index{SpanVal: p.span(start), Receiver: expr, Key: key}
		case TokenBang:
			p.nextToken()
			expr = &NonNull{SpanVal: p.span(start), Operand: expr}
		case TokenAs:
			p.nextToken()
			typeName := p.parseTypeName()
			expr = &Cast{SpanVal: p.span(start), Operand: expr, TypeName: typeName}
		default:
			return expr
		}
	}
}

// parseArgs parses (a, b, c).
func (p *Parser) parseArgs() []Expr {
	var args []Expr
	p.expect(TokenLParen)
	for !p.curTokenIs(TokenRParen) && !p.curTokenIs(TokenEOF) {
		args = append(args, p.parseExpression())
		if p.curTokenIs(TokenComma) {
			p.nextToken()
		}
	}
	p.expect(TokenRParen)
	return args
}

func (p *Parser) parsePrimary() Expr {
	start := p.curToken.Pos

	switch p.curToken.Type {
	case TokenNumber:
		f, err := strconv.ParseFloat(p.curToken.Literal, 64)
		if err != nil {
			p.errorf("invalid number literal %q", p.curToken.Literal)
		}
		p.nextToken()
		return &NumberLiteral{SpanVal: p.span(start), Value: f}

	case TokenString:
		s := p.curToken.Literal
		p.nextToken()
		return &StringLiteral{SpanVal: p.span(start), Value: s}

	case TokenTemplate:
		return p.parseTemplate()

	case TokenTrue:
		p.nextToken()
		return &BoolLiteral{SpanVal: p.span(start), Value: true}

	case TokenFalse:
		p.nextToken()
		return &BoolLiteral{SpanVal: p.span(start), Value: false}

	case TokenNull:
		p.nextToken()
		return &NullLiteral{SpanVal: p.span(start)}

	case TokenUndefined:
		p.nextToken()
		return &UndefinedLiteral{SpanVal: p.span(start)}

	case TokenThis:
		p.nextToken()
		return &ThisExpr{SpanVal: p.span(start)}

	case TokenNew:
		return p.parseNew()

	case TokenSuper:
		return p.parseSuper()

	case TokenLBracket:
		return p.parseArrayLiteral()

	case TokenLBrace:
		return p.parseObjectLiteral()

	case TokenAsync:
		// async arrow function
		if arrow := p.tryParseArrow(); arrow != nil {
			return arrow
		}
		p.errorf("unexpected 'async'")
		p.nextToken()
		return nil

	case TokenLParen:
		if arrow := p.tryParseArrow(); arrow != nil {
			return arrow
		}
		p.nextToken()
		expr := p.parseExpression()
		p.expect(TokenRParen)
		return expr

	case TokenIdentifier, TokenGet, TokenSet, TokenOf:
		if p.peekTokenIs(TokenArrow) {
			return p.tryParseArrow()
		}
		name := p.curToken.Literal
		p.nextToken()
		return &Identifier{SpanVal: p.span(start), Name: name}
	}

	p.errorf("unexpected token %s", p.curToken.Type)
	return nil
}

func (p *Parser) parseTemplate() Expr {
	start := p.curToken.Pos
	parts := p.curToken.Parts
	p.nextToken()

	lit := &TemplateLiteral{}
	for i, part := range parts {
		if i%2 == 0 {
			lit.Quasis = append(lit.Quasis, part)
			continue
		}
		sub := NewParser(part)
		sub.asyncDepth = p.asyncDepth
		expr := sub.parseExpression()
		if len(sub.errors) > 0 {
			p.errors = append(p.errors, sub.errors...)
		}
		lit.Exprs = append(lit.Exprs, expr)
	}
	lit.SpanVal = p.span(start)
	return lit
}

func (p *Parser) parseNew() Expr {
	start := p.curToken.Pos
	p.nextToken()
	if !p.curTokenIs(TokenIdentifier) {
		p.errorf("expected class name after new, got %s", p.curToken.Type)
		return nil
	}
	name := p.curToken.Literal
	p.nextToken()
	if p.curTokenIs(TokenLt) {
		p.skipTypeArgs()
	}
	var args []Expr
	if p.curTokenIs(TokenLParen) {
		args = p.parseArgs()
	}
	return &New{SpanVal: p.span(start), ClassName: name, Args: args}
}

func (p *Parser) parseSuper() Expr {
	start := p.curToken.Pos
	p.nextToken()
	if p.curTokenIs(TokenLParen) {
		args := p.parseArgs()
		return &SuperCall{SpanVal: p.span(start), Args: args}
	}
	if p.curTokenIs(TokenDot) {
		p.nextToken()
		name, ok := p.memberName()
		if !ok {
			p.errorf("expected method name after super., got %s", p.curToken.Type)
			return nil
		}
		p.nextToken()
		args := p.parseArgs()
		return &SuperMethodCall{SpanVal: p.span(start), Name: name, Args: args}
	}
	p.errorf("super must be called or used for a method call")
	return nil
}

func (p *Parser) parseArrayLiteral() Expr {
	start := p.curToken.Pos
	p.nextToken()
	lit := &ArrayLiteral{}
	for !p.curTokenIs(TokenRBracket) && !p.curTokenIs(TokenEOF) {
		lit.Elements = append(lit.Elements, p.parseExpression())
		if p.curTokenIs(TokenComma) {
			p.nextToken()
		}
	}
	p.expect(TokenRBracket)
	lit.SpanVal = p.span(start)
	return lit
}

func (p *Parser) parseObjectLiteral() Expr {
	start := p.curToken.Pos
	p.nextToken()
	lit := &ObjectLiteral{}
	for !p.curTokenIs(TokenRBrace) && !p.curTokenIs(TokenEOF) {
		var key string
		if name, ok := p.memberName(); ok {
			key = name
			p.nextToken()
		} else if p.curTokenIs(TokenString) {
			key = p.curToken.Literal
			p.nextToken()
		} else {
			p.errorf("expected object key, got %s", p.curToken.Type)
			break
		}
		p.expect(TokenColon)
		lit.Keys = append(lit.Keys, key)
		lit.Values = append(lit.Values, p.parseExpression())
		if p.curTokenIs(TokenComma) {
			p.nextToken()
		}
	}
	p.expect(TokenRBrace)
	lit.SpanVal = p.span(start)
	return lit
}

// tryParseArrow attempts to parse an arrow function at the current
// position. Returns nil (with the parser rewound) when the tokens do
// not form an arrow function.
func (p *Parser) tryParseArrow() Expr {
	start := p.curToken.Pos
	s := p.save()

	if p.curTokenIs(TokenAsync) {
		// Arrow bodies never suspend in Tycho; 'async' arrows are
		// not part of the subset.
		p.errorf("async arrow functions are not supported")
		p.nextToken()
	}

	var params []Param
	switch p.curToken.Type {
	case TokenIdentifier, TokenGet, TokenSet, TokenOf:
		params = []Param{{Name: p.curToken.Literal}}
		p.nextToken()
	case TokenLParen:
		params = p.parseParamList()
		if p.curTokenIs(TokenColon) {
			p.nextToken()
			p.parseTypeName()
		}
	default:
		p.restore(s)
		return nil
	}

	if !p.curTokenIs(TokenArrow) {
		p.restore(s)
		return nil
	}
	p.nextToken()

	fn := &ArrowFn{Params: params}
	if p.curTokenIs(TokenLBrace) {
		fn.Body = p.parseBlockBody(false)
	} else {
		// Expression bodies leave the enclosing async scope too; await
		// inside an arrow has no machine to suspend.
		saved := p.asyncDepth
		p.asyncDepth = 0
		exprStart := p.curToken.Pos
		expr := p.parseExpression()
		p.asyncDepth = saved
		fn.Body = []Stmt{&Return{SpanVal: p.span(exprStart), Value: expr}}
	}
	fn.SpanVal = p.span(start)
	return fn
}

// ---------------------------------------------------------------------------
// Types (parsed and erased)
// ---------------------------------------------------------------------------

// parseTypeName consumes a type annotation and returns its head name.
// Generic arguments and array suffixes are consumed but erased.
func (p *Parser) parseTypeName() string {
	var name string
	if n, ok := p.memberName(); ok {
		name = n
		p.nextToken()
	} else {
		switch p.curToken.Type {
		case TokenNull:
			name = "null"
			p.nextToken()
		case TokenUndefined:
			name = "undefined"
			p.nextToken()
		default:
			p.errorf("expected type name, got %s", p.curToken.Type)
			return ""
		}
	}
	if p.curTokenIs(TokenLt) {
		p.skipTypeArgs()
	}
	for p.curTokenIs(TokenLBracket) && p.peekTokenIs(TokenRBracket) {
		p.nextToken()
		p.nextToken()
	}
	return name
}

// skipTypeArgs consumes a balanced <...> type argument list.
func (p *Parser) skipTypeArgs() {
	depth := 0
	for !p.curTokenIs(TokenEOF) {
		switch p.curToken.Type {
		case TokenLt:
			depth++
		case TokenGt:
			depth--
			if depth == 0 {
				p.nextToken()
				return
			}
		case TokenGe:
			// '>=' closing two levels never appears in well-formed
			// type argument lists of this subset; treat as '>' '='.
			depth--
			if depth == 0 {
				p.nextToken()
				return
			}
		}
		p.nextToken()
	}
}
