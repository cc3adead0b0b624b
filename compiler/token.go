package compiler

import (
	"fmt"

	"github.com/nebula-lang/nebula/pkg/diag"
)

// ---------------------------------------------------------------------------
// Token types for the Nebula lexer
// ---------------------------------------------------------------------------

// TokenKind represents the kind of a token.
type TokenKind int

const (
	// Special tokens
	TokenEOF TokenKind = iota
	TokenError
	TokenNewline

	// Literals
	TokenInt    // 42, 0xFF, 0b1010, 0o755
	TokenFloat  // 3.14, 1.5e10
	TokenString // "hello", 'hello', `raw`
	TokenIdent  // foo, lst, map

	// Keywords
	TokenFb       // fb (variable binding)
	TokenCn       // cn (constant binding)
	TokenFn       // fn
	TokenIf       // if
	TokenElif     // elif
	TokenElse     // else
	TokenDo       // do
	TokenEnd      // end
	TokenWhile    // while
	TokenFor      // for
	TokenEach     // each
	TokenIn       // in
	TokenBreak    // break
	TokenContinue // continue
	TokenErr      // err
	TokenYes      // yes
	TokenNo       // no
	TokenNil      // nil

	// Operators
	TokenPlus        // +
	TokenMinus       // -
	TokenStar        // *
	TokenSlash       // /
	TokenPercent     // %
	TokenCaret       // ^
	TokenAssign      // =
	TokenEq          // ==
	TokenNe          // !=
	TokenLt          // <
	TokenGt          // >
	TokenLe          // <=
	TokenGe          // >=
	TokenPlusAssign  // +=
	TokenMinusAssign // -=
	TokenStarAssign  // *=
	TokenSlashAssign // /=
	TokenBang        // !
	TokenAmp         // &
	TokenPipe        // |
	TokenArrow       // ->

	// Delimiters
	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenLBrace   // {
	TokenRBrace   // }
	TokenComma    // ,
	TokenColon    // :
	TokenDot      // .
)

var tokenNames = map[TokenKind]string{
	TokenEOF:         "EOF",
	TokenError:       "ERROR",
	TokenNewline:     "NEWLINE",
	TokenInt:         "INT",
	TokenFloat:       "FLOAT",
	TokenString:      "STRING",
	TokenIdent:       "IDENT",
	TokenFb:          "fb",
	TokenCn:          "cn",
	TokenFn:          "fn",
	TokenIf:          "if",
	TokenElif:        "elif",
	TokenElse:        "else",
	TokenDo:          "do",
	TokenEnd:         "end",
	TokenWhile:       "while",
	TokenFor:         "for",
	TokenEach:        "each",
	TokenIn:          "in",
	TokenBreak:       "break",
	TokenContinue:    "continue",
	TokenErr:         "err",
	TokenYes:         "yes",
	TokenNo:          "no",
	TokenNil:         "nil",
	TokenPlus:        "+",
	TokenMinus:       "-",
	TokenStar:        "*",
	TokenSlash:       "/",
	TokenPercent:     "%",
	TokenCaret:       "^",
	TokenAssign:      "=",
	TokenEq:          "==",
	TokenNe:          "!=",
	TokenLt:          "<",
	TokenGt:          ">",
	TokenLe:          "<=",
	TokenGe:          ">=",
	TokenPlusAssign:  "+=",
	TokenMinusAssign: "-=",
	TokenStarAssign:  "*=",
	TokenSlashAssign: "/=",
	TokenBang:        "!",
	TokenAmp:         "&",
	TokenPipe:        "|",
	TokenArrow:       "->",
	TokenLParen:      "(",
	TokenRParen:      ")",
	TokenLBracket:    "[",
	TokenRBracket:    "]",
	TokenLBrace:      "{",
	TokenRBrace:      "}",
	TokenComma:       ",",
	TokenColon:       ":",
	TokenDot:         ".",
}

func (k TokenKind) String() string {
	if name, ok := tokenNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", k)
}

// Token represents a lexical token. For string literals the Literal
// holds the decoded value; for everything else it holds the raw text.
type Token struct {
	Kind    TokenKind
	Literal string
	Span    diag.Span
}

func (t Token) String() string {
	switch t.Kind {
	case TokenEOF:
		return "EOF"
	case TokenNewline:
		return "NEWLINE"
	case TokenError:
		return fmt.Sprintf("ERROR(%s)", t.Literal)
	}
	if len(t.Literal) > 20 {
		return fmt.Sprintf("%s(%q...)", t.Kind, t.Literal[:20])
	}
	return fmt.Sprintf("%s(%q)", t.Kind, t.Literal)
}

// Keywords mapped to their token kinds. Note that "true" and "false"
// are plain identifiers; the boolean literals are spelled yes and no.
var keywords = map[string]TokenKind{
	"fb":       TokenFb,
	"cn":       TokenCn,
	"fn":       TokenFn,
	"if":       TokenIf,
	"elif":     TokenElif,
	"else":     TokenElse,
	"do":       TokenDo,
	"end":      TokenEnd,
	"while":    TokenWhile,
	"for":      TokenFor,
	"each":     TokenEach,
	"in":       TokenIn,
	"break":    TokenBreak,
	"continue": TokenContinue,
	"err":      TokenErr,
	"yes":      TokenYes,
	"no":       TokenNo,
	"nil":      TokenNil,
}

// LookupIdent returns the keyword kind for ident, or TokenIdent.
func LookupIdent(ident string) TokenKind {
	if kind, ok := keywords[ident]; ok {
		return kind
	}
	return TokenIdent
}
