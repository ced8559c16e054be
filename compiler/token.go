package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for the Tycho lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenNumber     // 42, 3.14, 1.5e10
	TokenString     // "hello", 'hello'
	TokenTemplate   // `hello ${name}`
	TokenIdentifier // foo, Bar

	// Punctuation
	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenLBrace   // {
	TokenRBrace   // }
	TokenComma    // ,
	TokenDot      // .
	TokenSemi     // ;
	TokenColon    // :
	TokenQuestion // ?
	TokenArrow    // =>
	TokenBang     // !

	// Operators
	TokenAssign      // =
	TokenPlus        // +
	TokenMinus       // -
	TokenStar        // *
	TokenSlash       // /
	TokenPercent     // %
	TokenEq          // ==
	TokenStrictEq    // ===
	TokenNe          // !=
	TokenStrictNe    // !==
	TokenLt          // <
	TokenLe          // <=
	TokenGt          // >
	TokenGe          // >=
	TokenAndAnd      // &&
	TokenOrOr        // ||
	TokenPlusAssign  // +=
	TokenMinusAssign // -=

	// Keywords
	TokenClass
	TokenExtends
	TokenAbstract
	TokenOverride
	TokenStatic
	TokenAsync
	TokenAwait
	TokenFunction
	TokenReturn
	TokenIf
	TokenElse
	TokenWhile
	TokenFor
	TokenOf
	TokenTry
	TokenCatch
	TokenThrow
	TokenNew
	TokenThis
	TokenSuper
	TokenLet
	TokenConst
	TokenGet
	TokenSet
	TokenConstructor
	TokenNull
	TokenUndefined
	TokenTrue
	TokenFalse
	TokenAs
)

var tokenNames = map[TokenType]string{
	TokenEOF:         "EOF",
	TokenError:       "ERROR",
	TokenNumber:      "NUMBER",
	TokenString:      "STRING",
	TokenTemplate:    "TEMPLATE",
	TokenIdentifier:  "IDENTIFIER",
	TokenLParen:      "(",
	TokenRParen:      ")",
	TokenLBracket:    "[",
	TokenRBracket:    "]",
	TokenLBrace:      "{",
	TokenRBrace:      "}",
	TokenComma:       ",",
	TokenDot:         ".",
	TokenSemi:        ";",
	TokenColon:       ":",
	TokenQuestion:    "?",
	TokenArrow:       "=>",
	TokenBang:        "!",
	TokenAssign:      "=",
	TokenPlus:        "+",
	TokenMinus:       "-",
	TokenStar:        "*",
	TokenSlash:       "/",
	TokenPercent:     "%",
	TokenEq:          "==",
	TokenStrictEq:    "===",
	TokenNe:          "!=",
	TokenStrictNe:    "!==",
	TokenLt:          "<",
	TokenLe:          "<=",
	TokenGt:          ">",
	TokenGe:          ">=",
	TokenAndAnd:      "&&",
	TokenOrOr:        "||",
	TokenPlusAssign:  "+=",
	TokenMinusAssign: "-=",
	TokenClass:       "class",
	TokenExtends:     "extends",
	TokenAbstract:    "abstract",
	TokenOverride:    "override",
	TokenStatic:      "static",
	TokenAsync:       "async",
	TokenAwait:       "await",
	TokenFunction:    "function",
	TokenReturn:      "return",
	TokenIf:          "if",
	TokenElse:        "else",
	TokenWhile:       "while",
	TokenFor:         "for",
	TokenOf:          "of",
	TokenTry:         "try",
	TokenCatch:       "catch",
	TokenThrow:       "throw",
	TokenNew:         "new",
	TokenThis:        "this",
	TokenSuper:       "super",
	TokenLet:         "let",
	TokenConst:       "const",
	TokenGet:         "get",
	TokenSet:         "set",
	TokenConstructor: "constructor",
	TokenNull:        "null",
	TokenUndefined:   "undefined",
	TokenTrue:        "true",
	TokenFalse:       "false",
	TokenAs:          "as",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// keywords maps identifier spellings to keyword token types.
// "get", "set", "of", "constructor" and friends are contextual in real
// TypeScript; the lexer emits them as keywords and the parser treats
// them as identifiers where the grammar allows.
var keywords = map[string]TokenType{
	"class":       TokenClass,
	"extends":     TokenExtends,
	"abstract":    TokenAbstract,
	"override":    TokenOverride,
	"static":      TokenStatic,
	"async":       TokenAsync,
	"await":       TokenAwait,
	"function":    TokenFunction,
	"return":      TokenReturn,
	"if":          TokenIf,
	"else":        TokenElse,
	"while":       TokenWhile,
	"for":         TokenFor,
	"of":          TokenOf,
	"try":         TokenTry,
	"catch":       TokenCatch,
	"throw":       TokenThrow,
	"new":         TokenNew,
	"this":        TokenThis,
	"super":       TokenSuper,
	"let":         TokenLet,
	"const":       TokenConst,
	"get":         TokenGet,
	"set":         TokenSet,
	"constructor": TokenConstructor,
	"null":        TokenNull,
	"undefined":   TokenUndefined,
	"true":        TokenTrue,
	"false":       TokenFalse,
	"as":          TokenAs,
}

// LookupIdent returns the keyword token type for an identifier, or
// TokenIdentifier if it is not a keyword.
func LookupIdent(ident string) TokenType {
	if t, ok := keywords[ident]; ok {
		return t
	}
	return TokenIdentifier
}

// Token represents a single lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position

	// Parts holds the alternating literal/expression segments of a
	// template literal: Parts[0], Parts[2], ... are raw text and
	// Parts[1], Parts[3], ... are expression source fragments.
	Parts []string
}

// String returns a debug representation of the token.
func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d:%d", t.Type, t.Literal, t.Pos.Line, t.Pos.Column)
}
