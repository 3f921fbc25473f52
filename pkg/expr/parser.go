package expr

import (
	"fmt"
	"strconv"
)

// node is a parsed expression.
type node interface {
	eval(env []float64) (any, error)
}

type numberLit struct{ v float64 }

type stringLit struct{ v string }

// param reads the declared parameter at index.
type param struct {
	name  string
	index int
}

type unary struct {
	op TokenType
	x  node
}

type binary struct {
	op   TokenType
	l, r node
}

// parser is a recursive descent parser over a token slice.
//
//	or      := and ('||' and)*
//	and     := cmp ('&&' cmp)*
//	cmp     := sum (('=='|'!='|'>'|'<'|'>='|'<=') sum)?
//	sum     := prod (('+'|'-') prod)*
//	prod    := unary (('*'|'/'|'%') unary)*
//	unary   := ('-'|'+'|'!') unary | primary
//	primary := number | string | ident | '(' or ')'
type parser struct {
	tokens []Token
	pos    int
	params map[string]int
	depth  int
}

// maxDepth bounds nesting so hostile formulas cannot exhaust the stack.
const maxDepth = 64

func (p *parser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *parser) advance() Token {
	tok := p.peek()
	if tok.Type != TokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) match(types ...TokenType) (Token, bool) {
	tok := p.peek()
	for _, t := range types {
		if tok.Type == t {
			return p.advance(), true
		}
	}
	return Token{}, false
}

func (p *parser) errorf(tok Token, format string, args ...any) error {
	return &SyntaxError{Pos: tok.Pos, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) parse() (node, error) {
	n, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != TokenEOF {
		return nil, p.errorf(tok, "unexpected %s", tok.Type)
	}
	return n, nil
}

func (p *parser) parseOr() (node, error) {
	return p.parseLeft(p.parseAnd, TokenOr)
}

func (p *parser) parseAnd() (node, error) {
	return p.parseLeft(p.parseCmp, TokenAnd)
}

func (p *parser) parseSum() (node, error) {
	return p.parseLeft(p.parseProd, TokenPlus, TokenMinus)
}

func (p *parser) parseProd() (node, error) {
	return p.parseLeft(p.parseUnary, TokenStar, TokenSlash, TokenPercent)
}

// parseLeft parses a left-associative chain of operands joined by ops.
func (p *parser) parseLeft(operand func() (node, error), ops ...TokenType) (node, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		tok, ok := p.match(ops...)
		if !ok {
			return left, nil
		}
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left = &binary{op: tok.Type, l: left, r: right}
	}
}

func (p *parser) parseCmp() (node, error) {
	left, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	tok, ok := p.match(TokenEQ, TokenNEQ, TokenGT, TokenLT, TokenGTE, TokenLTE)
	if !ok {
		return left, nil
	}
	right, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	return &binary{op: tok.Type, l: left, r: right}, nil
}

func (p *parser) parseUnary() (node, error) {
	if tok, ok := p.match(TokenMinus, TokenPlus, TokenNot); ok {
		p.depth++
		defer func() { p.depth-- }()
		if p.depth > maxDepth {
			return nil, p.errorf(tok, "expression nested too deeply")
		}
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unary{op: tok.Type, x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.advance()
	switch tok.Type {
	case TokenNumber:
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			return nil, p.errorf(tok, "invalid number %q", tok.Literal)
		}
		return &numberLit{v: v}, nil
	case TokenString:
		return &stringLit{v: tok.Literal}, nil
	case TokenIdent:
		idx, ok := p.params[tok.Literal]
		if !ok {
			return nil, &UnknownNameError{Name: tok.Literal, Pos: tok.Pos}
		}
		return &param{name: tok.Literal, index: idx}, nil
	case TokenLParen:
		p.depth++
		defer func() { p.depth-- }()
		if p.depth > maxDepth {
			return nil, p.errorf(tok, "expression nested too deeply")
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.advance(); closing.Type != TokenRParen {
			return nil, p.errorf(closing, "expected ')', got %s", closing.Type)
		}
		return inner, nil
	case TokenEOF:
		return nil, p.errorf(tok, "unexpected end of formula")
	}
	return nil, p.errorf(tok, "unexpected %s", tok.Type)
}

// UnknownNameError reports a formula identifier that is not a declared parameter.
type UnknownNameError struct {
	Name string
	Pos  int
}

func (e *UnknownNameError) Error() string {
	return fmt.Sprintf("unknown name %q at offset %d", e.Name, e.Pos)
}
