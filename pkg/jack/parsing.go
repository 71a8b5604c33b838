package jack

import (
	"fmt"
	"io"

	"github.com/hmny-tetris/toolchain/pkg/utils"
)

// ----------------------------------------------------------------------------
// Jack Parser

// This section turns a token stream into a 'jack.Class' AST via a hand-written
// recursive descent parser: one function per non-terminal in the Jack grammar,
// each consuming exactly the tokens its production covers and handing
// lookahead decisions off to the caller via one-token peeking.
//
// There's no operator precedence in Jack (every binary operator binds the
// same, left to right) so 'parseExpression' is a simple left fold over
// 'parseTerm' rather than a full Pratt parser. Unlike a one-pass compiler
// that would emit VM code while parsing, this builds a typed AST first so
// that 'TypeChecker' and 'Lowerer' can each walk it independently afterwards.

// Parser consumes a token stream one token at a time, tracking the current
// token ('cur') plus whether the stream has been exhausted ('has').
type Parser struct {
	tok *Tokenizer
	cur Token
	has bool
}

// Initializes and returns to the caller a brand new 'Parser' struct, with its
// first token already loaded from the given 'io.Reader'.
func NewParser(r io.Reader) (*Parser, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("cannot read from 'io.Reader': %w", err)
	}

	tok, err := NewTokenizer(string(content))
	if err != nil {
		return nil, fmt.Errorf("unable to tokenize input: %w", err)
	}

	p := &Parser{tok: tok}
	p.advance()
	return p, nil
}

// Parse runs the parser over the whole token stream, producing the single
// 'jack.Class' declared in it (by convention, one class per file).
func (p *Parser) Parse() (Class, error) {
	return p.parseClass()
}

func (p *Parser) advance() bool {
	p.has = p.tok.Scan()
	if p.has {
		p.cur = p.tok.Token()
	}
	return p.has
}

func (p *Parser) isKeyword(kw string) bool { return p.has && p.cur.Type == Keyword && p.cur.Value == kw }
func (p *Parser) isSymbol(sym string) bool { return p.has && p.cur.Type == Symbol && p.cur.Value == sym }

func (p *Parser) describe() string {
	if !p.has {
		return "EOF"
	}
	return fmt.Sprintf("%s %q", p.cur.Type, p.cur.Value)
}

func (p *Parser) expectKeyword(kw string) error {
	if !p.isKeyword(kw) {
		return fmt.Errorf("expected keyword '%s', got %s", kw, p.describe())
	}
	p.advance()
	return nil
}

func (p *Parser) expectSymbol(sym string) error {
	if !p.isSymbol(sym) {
		return fmt.Errorf("expected symbol '%s', got %s", sym, p.describe())
	}
	p.advance()
	return nil
}

func (p *Parser) expectIdentifier() (string, error) {
	if !p.has || p.cur.Type != Identifier {
		return "", fmt.Errorf("expected an identifier, got %s", p.describe())
	}
	name := p.cur.Value
	p.advance()
	return name, nil
}

// ----------------------------------------------------------------------------
// Class, fields, subroutines

func (p *Parser) parseClass() (Class, error) {
	if err := p.expectKeyword("class"); err != nil {
		return Class{}, err
	}
	name, err := p.expectIdentifier()
	if err != nil {
		return Class{}, fmt.Errorf("error parsing class name: %w", err)
	}
	if err := p.expectSymbol("{"); err != nil {
		return Class{}, err
	}

	fields := utils.NewOrderedMap[string, Variable]()
	for p.isKeyword("static") || p.isKeyword("field") {
		vars, err := p.parseClassVarDec()
		if err != nil {
			return Class{}, fmt.Errorf("error parsing field declaration in class '%s': %w", name, err)
		}
		for _, v := range vars {
			fields.Set(v.Name, v)
		}
	}

	subroutines := utils.NewOrderedMap[string, Subroutine]()
	for p.isKeyword("constructor") || p.isKeyword("function") || p.isKeyword("method") {
		sub, err := p.parseSubroutineDec()
		if err != nil {
			return Class{}, fmt.Errorf("error parsing subroutine declaration in class '%s': %w", name, err)
		}
		subroutines.Set(sub.Name, sub)
	}

	if err := p.expectSymbol("}"); err != nil {
		return Class{}, err
	}
	return Class{Name: name, Fields: fields, Subroutines: subroutines}, nil
}

func (p *Parser) parseClassVarDec() ([]Variable, error) {
	var kind VarType
	switch {
	case p.isKeyword("static"):
		kind = Static
	case p.isKeyword("field"):
		kind = Field
	default:
		return nil, fmt.Errorf("expected 'static' or 'field', got %s", p.describe())
	}
	p.advance()

	dataType, err := p.parseType()
	if err != nil {
		return nil, fmt.Errorf("error parsing variable type: %w", err)
	}

	var vars []Variable
	for {
		name, err := p.expectIdentifier()
		if err != nil {
			return nil, fmt.Errorf("error parsing variable name: %w", err)
		}
		vars = append(vars, Variable{Name: name, VarType: kind, DataType: dataType})

		if !p.isSymbol(",") {
			break
		}
		p.advance()
	}

	if err := p.expectSymbol(";"); err != nil {
		return nil, err
	}
	return vars, nil
}

// parseType parses a primitive type keyword ('int', 'char', 'boolean', 'void')
// or a class name identifier, the latter producing an Object DataType.
func (p *Parser) parseType() (DataType, error) {
	switch {
	case p.isKeyword("int"):
		p.advance()
		return DataType{Main: Int}, nil
	case p.isKeyword("char"):
		p.advance()
		return DataType{Main: Char}, nil
	case p.isKeyword("boolean"):
		p.advance()
		return DataType{Main: Bool}, nil
	case p.isKeyword("void"):
		p.advance()
		return DataType{Main: Void}, nil
	case p.has && p.cur.Type == Identifier:
		name, _ := p.expectIdentifier()
		return DataType{Main: Object, Subtype: name}, nil
	default:
		return DataType{}, fmt.Errorf("expected a type, got %s", p.describe())
	}
}

func (p *Parser) parseSubroutineDec() (Subroutine, error) {
	var kind SubroutineType
	switch {
	case p.isKeyword("constructor"):
		kind = Constructor
	case p.isKeyword("function"):
		kind = Function
	case p.isKeyword("method"):
		kind = Method
	default:
		return Subroutine{}, fmt.Errorf("expected a subroutine declaration, got %s", p.describe())
	}
	p.advance()

	returnType, err := p.parseType()
	if err != nil {
		return Subroutine{}, fmt.Errorf("error parsing return type: %w", err)
	}

	name, err := p.expectIdentifier()
	if err != nil {
		return Subroutine{}, fmt.Errorf("error parsing subroutine name: %w", err)
	}

	if err := p.expectSymbol("("); err != nil {
		return Subroutine{}, err
	}
	args, err := p.parseParameterList()
	if err != nil {
		return Subroutine{}, fmt.Errorf("error parsing parameter list for '%s': %w", name, err)
	}
	if err := p.expectSymbol(")"); err != nil {
		return Subroutine{}, err
	}

	statements, err := p.parseSubroutineBody()
	if err != nil {
		return Subroutine{}, fmt.Errorf("error parsing body for '%s': %w", name, err)
	}

	return Subroutine{Name: name, Type: kind, Return: returnType, Arguments: args, Statements: statements}, nil
}

func (p *Parser) parseParameterList() (utils.OrderedMap[string, Variable], error) {
	args := utils.NewOrderedMap[string, Variable]()
	if p.isSymbol(")") {
		return args, nil
	}

	for {
		dataType, err := p.parseType()
		if err != nil {
			return args, fmt.Errorf("error parsing parameter type: %w", err)
		}
		name, err := p.expectIdentifier()
		if err != nil {
			return args, fmt.Errorf("error parsing parameter name: %w", err)
		}
		args.Set(name, Variable{Name: name, VarType: Parameter, DataType: dataType})

		if !p.isSymbol(",") {
			break
		}
		p.advance()
	}
	return args, nil
}

func (p *Parser) parseSubroutineBody() ([]Statement, error) {
	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}

	var statements []Statement
	for p.isKeyword("var") {
		varStmt, err := p.parseVarDec()
		if err != nil {
			return nil, fmt.Errorf("error parsing local variable declaration: %w", err)
		}
		statements = append(statements, varStmt)
	}

	body, err := p.parseStatements()
	if err != nil {
		return nil, err
	}
	statements = append(statements, body...)

	if err := p.expectSymbol("}"); err != nil {
		return nil, err
	}
	return statements, nil
}

func (p *Parser) parseVarDec() (VarStmt, error) {
	if err := p.expectKeyword("var"); err != nil {
		return VarStmt{}, err
	}
	dataType, err := p.parseType()
	if err != nil {
		return VarStmt{}, fmt.Errorf("error parsing variable type: %w", err)
	}

	var vars []Variable
	for {
		name, err := p.expectIdentifier()
		if err != nil {
			return VarStmt{}, fmt.Errorf("error parsing variable name: %w", err)
		}
		vars = append(vars, Variable{Name: name, VarType: Local, DataType: dataType})

		if !p.isSymbol(",") {
			break
		}
		p.advance()
	}

	if err := p.expectSymbol(";"); err != nil {
		return VarStmt{}, err
	}
	return VarStmt{Vars: vars}, nil
}

// ----------------------------------------------------------------------------
// Statements

func (p *Parser) parseStatements() ([]Statement, error) {
	var statements []Statement
	for !p.isSymbol("}") {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		statements = append(statements, stmt)
	}
	return statements, nil
}

func (p *Parser) parseStatement() (Statement, error) {
	switch {
	case p.isKeyword("let"):
		return p.parseLetStmt()
	case p.isKeyword("if"):
		return p.parseIfStmt()
	case p.isKeyword("while"):
		return p.parseWhileStmt()
	case p.isKeyword("do"):
		return p.parseDoStmt()
	case p.isKeyword("return"):
		return p.parseReturnStmt()
	default:
		return nil, fmt.Errorf("expected a statement, got %s", p.describe())
	}
}

func (p *Parser) parseLetStmt() (Statement, error) {
	if err := p.expectKeyword("let"); err != nil {
		return nil, err
	}
	name, err := p.expectIdentifier()
	if err != nil {
		return nil, fmt.Errorf("error parsing assignment target: %w", err)
	}

	var lhs Expression = VarExpr{Var: name}
	if p.isSymbol("[") {
		p.advance()
		index, err := p.parseExpression()
		if err != nil {
			return nil, fmt.Errorf("error parsing array index expression: %w", err)
		}
		if err := p.expectSymbol("]"); err != nil {
			return nil, err
		}
		lhs = ArrayExpr{Var: name, Index: index}
	}

	if err := p.expectSymbol("="); err != nil {
		return nil, err
	}
	rhs, err := p.parseExpression()
	if err != nil {
		return nil, fmt.Errorf("error parsing assigned expression: %w", err)
	}
	if err := p.expectSymbol(";"); err != nil {
		return nil, err
	}
	return LetStmt{Lhs: lhs, Rhs: rhs}, nil
}

func (p *Parser) parseIfStmt() (Statement, error) {
	if err := p.expectKeyword("if"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, fmt.Errorf("error parsing condition: %w", err)
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	thenBlock, err := p.parseStatements()
	if err != nil {
		return nil, fmt.Errorf("error parsing 'then' block: %w", err)
	}
	if err := p.expectSymbol("}"); err != nil {
		return nil, err
	}

	var elseBlock []Statement
	if p.isKeyword("else") {
		p.advance()
		if err := p.expectSymbol("{"); err != nil {
			return nil, err
		}
		elseBlock, err = p.parseStatements()
		if err != nil {
			return nil, fmt.Errorf("error parsing 'else' block: %w", err)
		}
		if err := p.expectSymbol("}"); err != nil {
			return nil, err
		}
	}

	return IfStmt{Condition: cond, ThenBlock: thenBlock, ElseBlock: elseBlock}, nil
}

func (p *Parser) parseWhileStmt() (Statement, error) {
	if err := p.expectKeyword("while"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, fmt.Errorf("error parsing condition: %w", err)
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	block, err := p.parseStatements()
	if err != nil {
		return nil, fmt.Errorf("error parsing loop body: %w", err)
	}
	if err := p.expectSymbol("}"); err != nil {
		return nil, err
	}
	return WhileStmt{Condition: cond, Block: block}, nil
}

func (p *Parser) parseDoStmt() (Statement, error) {
	if err := p.expectKeyword("do"); err != nil {
		return nil, err
	}
	name, err := p.expectIdentifier()
	if err != nil {
		return nil, fmt.Errorf("error parsing call target: %w", err)
	}
	expr, err := p.parseCallOrVar(name)
	if err != nil {
		return nil, err
	}
	call, ok := expr.(FuncCallExpr)
	if !ok {
		return nil, fmt.Errorf("'do' statement requires a subroutine call, got a bare variable reference")
	}
	if err := p.expectSymbol(";"); err != nil {
		return nil, err
	}
	return DoStmt{FuncCall: call}, nil
}

func (p *Parser) parseReturnStmt() (Statement, error) {
	if err := p.expectKeyword("return"); err != nil {
		return nil, err
	}
	if p.isSymbol(";") {
		p.advance()
		return ReturnStmt{}, nil
	}
	expr, err := p.parseExpression()
	if err != nil {
		return nil, fmt.Errorf("error parsing return expression: %w", err)
	}
	if err := p.expectSymbol(";"); err != nil {
		return nil, err
	}
	return ReturnStmt{Expr: expr}, nil
}

// ----------------------------------------------------------------------------
// Expressions

var binaryOps = map[string]ExprType{
	"+": Plus, "-": Minus, "*": Multiply, "/": Divide,
	"&": BoolAnd, "|": BoolOr, "<": LessThan, ">": GreatThan, "=": Equal,
}

func (p *Parser) parseExpression() (Expression, error) {
	lhs, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	for p.has && p.cur.Type == Symbol {
		op, isBinaryOp := binaryOps[p.cur.Value]
		if !isBinaryOp {
			break
		}
		opSym := p.cur.Value
		p.advance()

		rhs, err := p.parseTerm()
		if err != nil {
			return nil, fmt.Errorf("error parsing right hand side of '%s': %w", opSym, err)
		}
		lhs = BinaryExpr{Type: op, Lhs: lhs, Rhs: rhs}
	}
	return lhs, nil
}

func (p *Parser) parseExpressionList() ([]Expression, error) {
	var args []Expression
	if p.isSymbol(")") {
		return args, nil
	}

	for {
		expr, err := p.parseExpression()
		if err != nil {
			return nil, fmt.Errorf("error parsing argument expression: %w", err)
		}
		args = append(args, expr)

		if !p.isSymbol(",") {
			break
		}
		p.advance()
	}
	return args, nil
}

func (p *Parser) parseTerm() (Expression, error) {
	if !p.has {
		return nil, fmt.Errorf("unexpected end of input while parsing an expression")
	}

	switch {
	case p.cur.Type == IntConst:
		value := p.cur.Value
		p.advance()
		return LiteralExpr{Type: DataType{Main: Int}, Value: value}, nil

	case p.cur.Type == StringConst:
		value := p.cur.Value
		p.advance()
		return LiteralExpr{Type: DataType{Main: String}, Value: value}, nil

	case p.isKeyword("true"):
		p.advance()
		return LiteralExpr{Type: DataType{Main: Bool}, Value: "true"}, nil

	case p.isKeyword("false"):
		p.advance()
		return LiteralExpr{Type: DataType{Main: Bool}, Value: "false"}, nil

	case p.isKeyword("null"):
		p.advance()
		return LiteralExpr{Type: DataType{Main: Null}, Value: "null"}, nil

	case p.isKeyword("this"):
		p.advance()
		return VarExpr{Var: "this"}, nil

	case p.isSymbol("("):
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return expr, nil

	case p.isSymbol("-"):
		p.advance()
		rhs, err := p.parseTerm()
		if err != nil {
			return nil, fmt.Errorf("error parsing negated expression: %w", err)
		}
		return UnaryExpr{Type: Negation, Rhs: rhs}, nil

	case p.isSymbol("~"):
		p.advance()
		rhs, err := p.parseTerm()
		if err != nil {
			return nil, fmt.Errorf("error parsing negated expression: %w", err)
		}
		return UnaryExpr{Type: BoolNot, Rhs: rhs}, nil

	case p.cur.Type == Identifier:
		name, _ := p.expectIdentifier()
		return p.parseCallOrVar(name)

	default:
		return nil, fmt.Errorf("unexpected token in expression: %s", p.describe())
	}
}

// parseCallOrVar disambiguates, given an already consumed identifier, between
// a bare variable reference, an array access, a same-class call and an
// external (object/class qualified) call.
func (p *Parser) parseCallOrVar(name string) (Expression, error) {
	switch {
	case p.isSymbol("["):
		p.advance()
		index, err := p.parseExpression()
		if err != nil {
			return nil, fmt.Errorf("error parsing array index expression: %w", err)
		}
		if err := p.expectSymbol("]"); err != nil {
			return nil, err
		}
		return ArrayExpr{Var: name, Index: index}, nil

	case p.isSymbol("("):
		p.advance()
		args, err := p.parseExpressionList()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return FuncCallExpr{IsExtCall: false, FuncName: name, Arguments: args}, nil

	case p.isSymbol("."):
		p.advance()
		funcName, err := p.expectIdentifier()
		if err != nil {
			return nil, fmt.Errorf("error parsing qualified call name: %w", err)
		}
		if err := p.expectSymbol("("); err != nil {
			return nil, err
		}
		args, err := p.parseExpressionList()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return FuncCallExpr{IsExtCall: true, Var: name, FuncName: funcName, Arguments: args}, nil

	default:
		return VarExpr{Var: name}, nil
	}
}
