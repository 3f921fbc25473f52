// Package expr evaluates the small expression language used by calculated
// fields and condition nodes.
//
// A formula is tokenized and parsed into a tree once, then evaluated against
// numeric parameters. Only the parameter names declared at compile time are
// visible to a formula; there is no other state it can reach.
package expr

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType identifies a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNumber
	TokenString
	TokenIdent
	TokenPlus
	TokenMinus
	TokenStar
	TokenSlash
	TokenPercent
	TokenLParen
	TokenRParen
	TokenEQ
	TokenNEQ
	TokenGT
	TokenLT
	TokenGTE
	TokenLTE
	TokenAnd
	TokenOr
	TokenNot
)

var tokenNames = map[TokenType]string{
	TokenEOF:     "end of formula",
	TokenNumber:  "number",
	TokenString:  "string",
	TokenIdent:   "identifier",
	TokenPlus:    "'+'",
	TokenMinus:   "'-'",
	TokenStar:    "'*'",
	TokenSlash:   "'/'",
	TokenPercent: "'%'",
	TokenLParen:  "'('",
	TokenRParen:  "')'",
	TokenEQ:      "'=='",
	TokenNEQ:     "'!='",
	TokenGT:      "'>'",
	TokenLT:      "'<'",
	TokenGTE:     "'>='",
	TokenLTE:     "'<='",
	TokenAnd:     "'&&'",
	TokenOr:      "'||'",
	TokenNot:     "'!'",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token is a lexical unit with its byte offset in the formula.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
}

// SyntaxError reports a malformed formula.
type SyntaxError struct {
	Pos     int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Pos, e.Message)
}

type lexer struct {
	input string
	pos   int
}

// Tokenize splits a formula into tokens. The last token is always TokenEOF.
func Tokenize(input string) ([]Token, error) {
	l := &lexer{input: input}
	var tokens []Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) peek() rune {
	if l.pos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
	return r
}

func (l *lexer) peekAt(offset int) byte {
	if l.pos+offset >= len(l.input) {
		return 0
	}
	return l.input[l.pos+offset]
}

func (l *lexer) advance() rune {
	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	l.pos += size
	return r
}

func (l *lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(l.peek()) {
		l.advance()
	}
}

func (l *lexer) next() (Token, error) {
	l.skipWhitespace()
	start := l.pos
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: start}, nil
	}

	r := l.peek()
	switch {
	case r == '"' || r == '\'':
		return l.scanString(start)
	case r >= '0' && r <= '9', r == '.' && isDigit(l.peekAt(1)):
		return l.scanNumber(start)
	case isIdentStart(r):
		for l.pos < len(l.input) && isIdentPart(l.peek()) {
			l.advance()
		}
		return Token{Type: TokenIdent, Literal: l.input[start:l.pos], Pos: start}, nil
	}

	two := ""
	if l.pos+1 < len(l.input) {
		two = l.input[l.pos : l.pos+2]
	}
	switch two {
	case "==", "!=", ">=", "<=", "&&", "||":
		l.pos += 2
		// "===" and "!==" are read as their loose forms.
		if (two == "==" || two == "!=") && l.peek() == '=' {
			l.pos++
		}
		return Token{Type: twoCharTokens[two], Literal: two, Pos: start}, nil
	}

	l.advance()
	if t, ok := oneCharTokens[r]; ok {
		return Token{Type: t, Literal: string(r), Pos: start}, nil
	}
	return Token{}, &SyntaxError{Pos: start, Message: fmt.Sprintf("unexpected character %q", r)}
}

var twoCharTokens = map[string]TokenType{
	"==": TokenEQ,
	"!=": TokenNEQ,
	">=": TokenGTE,
	"<=": TokenLTE,
	"&&": TokenAnd,
	"||": TokenOr,
}

var oneCharTokens = map[rune]TokenType{
	'+': TokenPlus,
	'-': TokenMinus,
	'*': TokenStar,
	'/': TokenSlash,
	'%': TokenPercent,
	'(': TokenLParen,
	')': TokenRParen,
	'>': TokenGT,
	'<': TokenLT,
	'!': TokenNot,
}

func (l *lexer) scanNumber(start int) (Token, error) {
	seenDot, seenExp := false, false
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch {
		case isDigit(c):
			l.pos++
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
			l.pos++
		case (c == 'e' || c == 'E') && !seenExp:
			seenExp = true
			l.pos++
			if n := l.peekAt(0); n == '+' || n == '-' {
				l.pos++
			}
			if !isDigit(l.peekAt(0)) {
				return Token{}, &SyntaxError{Pos: start, Message: "malformed exponent"}
			}
		default:
			return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: start}, nil
		}
	}
	return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: start}, nil
}

func (l *lexer) scanString(start int) (Token, error) {
	quote := l.advance()
	var b strings.Builder
	for l.pos < len(l.input) {
		r := l.advance()
		switch r {
		case quote:
			return Token{Type: TokenString, Literal: b.String(), Pos: start}, nil
		case '\\':
			if l.pos >= len(l.input) {
				return Token{}, &SyntaxError{Pos: start, Message: "unterminated string"}
			}
			esc := l.advance()
			switch esc {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			default:
				b.WriteRune(esc)
			}
		default:
			b.WriteRune(r)
		}
	}
	return Token{}, &SyntaxError{Pos: start, Message: "unterminated string"}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}
