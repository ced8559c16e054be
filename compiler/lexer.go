package compiler

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for the Tycho TypeScript subset
// ---------------------------------------------------------------------------

// Lexer tokenizes Tycho source code.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // current column (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input: input,
		line:  1,
		col:   0,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size

	if r == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// position returns the current position.
func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

// skipWhitespaceAndComments consumes spaces, line comments and block
// comments.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\r' || l.ch == '\n':
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			l.readChar() // consume /
			l.readChar() // consume *
			for l.ch != 0 && !(l.ch == '*' && l.peekChar() == '/') {
				l.readChar()
			}
			if l.ch != 0 {
				l.readChar() // consume *
				l.readChar() // consume /
			}
		default:
			return
		}
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipWhitespaceAndComments()

	pos := l.position()

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Pos: pos}

	case isIdentStart(l.ch):
		ident := l.readIdentifier()
		return Token{Type: LookupIdent(ident), Literal: ident, Pos: pos}

	case unicode.IsDigit(l.ch):
		return l.readNumber(pos)

	case l.ch == '"' || l.ch == '\'':
		return l.readString(pos, l.ch)

	case l.ch == '`':
		return l.readTemplate(pos)
	}

	// Operators and punctuation
	tok := func(t TokenType, lit string) Token {
		return Token{Type: t, Literal: lit, Pos: pos}
	}

	ch := l.ch
	l.readChar()
	switch ch {
	case '(':
		return tok(TokenLParen, "(")
	case ')':
		return tok(TokenRParen, ")")
	case '[':
		return tok(TokenLBracket, "[")
	case ']':
		return tok(TokenRBracket, "]")
	case '{':
		return tok(TokenLBrace, "{")
	case '}':
		return tok(TokenRBrace, "}")
	case ',':
		return tok(TokenComma, ",")
	case '.':
		return tok(TokenDot, ".")
	case ';':
		return tok(TokenSemi, ";")
	case ':':
		return tok(TokenColon, ":")
	case '?':
		return tok(TokenQuestion, "?")
	case '+':
		if l.ch == '=' {
			l.readChar()
			return tok(TokenPlusAssign, "+=")
		}
		return tok(TokenPlus, "+")
	case '-':
		if l.ch == '=' {
			l.readChar()
			return tok(TokenMinusAssign, "-=")
		}
		return tok(TokenMinus, "-")
	case '*':
		return tok(TokenStar, "*")
	case '/':
		return tok(TokenSlash, "/")
	case '%':
		return tok(TokenPercent, "%")
	case '=':
		if l.ch == '=' {
			l.readChar()
			if l.ch == '=' {
				l.readChar()
				return tok(TokenStrictEq, "===")
			}
			return tok(TokenEq, "==")
		}
		if l.ch == '>' {
			l.readChar()
			return tok(TokenArrow, "=>")
		}
		return tok(TokenAssign, "=")
	case '!':
		if l.ch == '=' {
			l.readChar()
			if l.ch == '=' {
				l.readChar()
				return tok(TokenStrictNe, "!==")
			}
			return tok(TokenNe, "!=")
		}
		return tok(TokenBang, "!")
	case '<':
		if l.ch == '=' {
			l.readChar()
			return tok(TokenLe, "<=")
		}
		return tok(TokenLt, "<")
	case '>':
		if l.ch == '=' {
			l.readChar()
			return tok(TokenGe, ">=")
		}
		return tok(TokenGt, ">")
	case '&':
		if l.ch == '&' {
			l.readChar()
			return tok(TokenAndAnd, "&&")
		}
	case '|':
		if l.ch == '|' {
			l.readChar()
			return tok(TokenOrOr, "||")
		}
	}

	return Token{Type: TokenError, Literal: string(ch), Pos: pos}
}

// readIdentifier reads an identifier starting at the current character.
func (l *Lexer) readIdentifier() string {
	start := l.pos
	for isIdentStart(l.ch) || unicode.IsDigit(l.ch) {
		l.readChar()
	}
	return l.input[start:l.pos]
}

// readNumber reads a numeric literal (decimal, with optional fraction
// and exponent).
func (l *Lexer) readNumber(pos Position) Token {
	start := l.pos
	for unicode.IsDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' && unicode.IsDigit(l.peekChar()) {
		l.readChar()
		for unicode.IsDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		for unicode.IsDigit(l.ch) {
			l.readChar()
		}
	}
	return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: pos}
}

// readString reads a quoted string literal with escape sequences.
func (l *Lexer) readString(pos Position, quote rune) Token {
	l.readChar() // consume opening quote
	var sb strings.Builder
	for l.ch != quote {
		if l.ch == 0 {
			return Token{Type: TokenError, Literal: "unterminated string", Pos: pos}
		}
		if l.ch == '\\' {
			l.readChar()
			sb.WriteRune(unescape(l.ch))
		} else {
			sb.WriteRune(l.ch)
		}
		l.readChar()
	}
	l.readChar() // consume closing quote
	return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
}

// readTemplate reads a template literal. The token's Parts alternate
// raw text and ${...} expression source fragments, starting and ending
// with raw text.
func (l *Lexer) readTemplate(pos Position) Token {
	l.readChar() // consume backtick
	parts := []string{}
	var sb strings.Builder
	for l.ch != '`' {
		if l.ch == 0 {
			return Token{Type: TokenError, Literal: "unterminated template literal", Pos: pos}
		}
		if l.ch == '$' && l.peekChar() == '{' {
			parts = append(parts, sb.String())
			sb.Reset()
			l.readChar() // consume $
			l.readChar() // consume {
			depth := 1
			for depth > 0 {
				if l.ch == 0 {
					return Token{Type: TokenError, Literal: "unterminated template expression", Pos: pos}
				}
				if l.ch == '{' {
					depth++
				} else if l.ch == '}' {
					depth--
					if depth == 0 {
						break
					}
				}
				sb.WriteRune(l.ch)
				l.readChar()
			}
			l.readChar() // consume }
			parts = append(parts, sb.String())
			sb.Reset()
			continue
		}
		if l.ch == '\\' {
			l.readChar()
			sb.WriteRune(unescape(l.ch))
		} else {
			sb.WriteRune(l.ch)
		}
		l.readChar()
	}
	l.readChar() // consume closing backtick
	parts = append(parts, sb.String())
	return Token{Type: TokenTemplate, Pos: pos, Parts: parts}
}

// unescape maps an escape character to its value.
func unescape(ch rune) rune {
	switch ch {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case '0':
		return 0
	default:
		return ch
	}
}

func isIdentStart(ch rune) bool {
	return ch == '_' || ch == '$' || unicode.IsLetter(ch)
}
