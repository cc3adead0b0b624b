package compiler

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nebula-lang/nebula/pkg/diag"
)

// ---------------------------------------------------------------------------
// Lexer: tokenizer for Nebula source
// ---------------------------------------------------------------------------

// Lexer tokenizes Nebula source code. Newlines are significant and come
// back as TokenNewline; the parser collapses runs where they do not
// matter.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // line of current char (1-based)
	col     int  // column of current char (1-based)
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input, line: 1}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.col = 0
	}
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
		l.pos = l.readPos
	} else {
		r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
		l.ch = r
		l.pos = l.readPos
		l.readPos += size
	}
	l.col++
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

// peekChar2 returns the character after peekChar without consuming it.
func (l *Lexer) peekChar2() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	_, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	if l.readPos+size >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos+size:])
	return r
}

// mark remembers the start of a token.
type mark struct {
	off  int
	line int
	col  int
}

func (l *Lexer) markHere() mark {
	return mark{off: l.pos, line: l.line, col: l.col}
}

func (l *Lexer) spanFrom(m mark) diag.Span {
	return diag.Span{Start: m.off, Length: l.pos - m.off, Line: m.line, Column: m.col}
}

func (l *Lexer) token(kind TokenKind, lit string, m mark) Token {
	return Token{Kind: kind, Literal: lit, Span: l.spanFrom(m)}
}

func (l *Lexer) errorToken(m mark, format string, args ...any) Token {
	return Token{Kind: TokenError, Literal: fmt.Sprintf(format, args...), Span: l.spanFrom(m)}
}

// skipSpace skips spaces, tabs, carriage returns and # line comments.
// Newlines are left in place so NextToken can emit them.
func (l *Lexer) skipSpace() {
	for {
		switch l.ch {
		case ' ', '\t', '\r':
			l.readChar()
		case '#':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		default:
			return
		}
	}
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipSpace()

	m := l.markHere()

	switch {
	case l.ch == 0:
		return Token{Kind: TokenEOF, Span: l.spanFrom(m)}

	case l.ch == '\n':
		l.readChar()
		return l.token(TokenNewline, "\n", m)

	case l.ch == '\'' && l.peekChar() == '\'' && l.peekChar2() == '\'':
		if !l.skipBlockComment() {
			return l.errorToken(m, "unterminated block comment")
		}
		return l.NextToken()

	case l.ch == '"' || l.ch == '\'':
		return l.readString(l.ch, m)

	case l.ch == '`':
		return l.readRawString(m)

	case isDigit(l.ch):
		return l.readNumber(m)

	case isIdentStart(l.ch):
		return l.readIdentifier(m)
	}

	// Operators and delimiters.
	ch := l.ch
	l.readChar()
	switch ch {
	case '+':
		if l.ch == '=' {
			l.readChar()
			return l.token(TokenPlusAssign, "+=", m)
		}
		return l.token(TokenPlus, "+", m)
	case '-':
		if l.ch == '>' {
			l.readChar()
			return l.token(TokenArrow, "->", m)
		}
		if l.ch == '=' {
			l.readChar()
			return l.token(TokenMinusAssign, "-=", m)
		}
		return l.token(TokenMinus, "-", m)
	case '*':
		if l.ch == '=' {
			l.readChar()
			return l.token(TokenStarAssign, "*=", m)
		}
		return l.token(TokenStar, "*", m)
	case '/':
		if l.ch == '=' {
			l.readChar()
			return l.token(TokenSlashAssign, "/=", m)
		}
		return l.token(TokenSlash, "/", m)
	case '%':
		return l.token(TokenPercent, "%", m)
	case '^':
		return l.token(TokenCaret, "^", m)
	case '=':
		if l.ch == '=' {
			l.readChar()
			return l.token(TokenEq, "==", m)
		}
		return l.token(TokenAssign, "=", m)
	case '!':
		if l.ch == '=' {
			l.readChar()
			return l.token(TokenNe, "!=", m)
		}
		return l.token(TokenBang, "!", m)
	case '<':
		if l.ch == '=' {
			l.readChar()
			return l.token(TokenLe, "<=", m)
		}
		return l.token(TokenLt, "<", m)
	case '>':
		if l.ch == '=' {
			l.readChar()
			return l.token(TokenGe, ">=", m)
		}
		return l.token(TokenGt, ">", m)
	case '&':
		return l.token(TokenAmp, "&", m)
	case '|':
		return l.token(TokenPipe, "|", m)
	case '(':
		return l.token(TokenLParen, "(", m)
	case ')':
		return l.token(TokenRParen, ")", m)
	case '[':
		return l.token(TokenLBracket, "[", m)
	case ']':
		return l.token(TokenRBracket, "]", m)
	case '{':
		return l.token(TokenLBrace, "{", m)
	case '}':
		return l.token(TokenRBrace, "}", m)
	case ',':
		return l.token(TokenComma, ",", m)
	case ':':
		return l.token(TokenColon, ":", m)
	case '.':
		return l.token(TokenDot, ".", m)
	}

	return l.errorToken(m, "unexpected character: %c", ch)
}

// skipBlockComment consumes a ''' ... ''' comment including both
// delimiters. Returns false if the comment is never closed.
func (l *Lexer) skipBlockComment() bool {
	l.readChar() // '
	l.readChar() // '
	l.readChar() // '
	for l.ch != 0 {
		if l.ch == '\'' && l.peekChar() == '\'' && l.peekChar2() == '\'' {
			l.readChar()
			l.readChar()
			l.readChar()
			return true
		}
		l.readChar()
	}
	return false
}

// readIdentifier reads an identifier or keyword.
func (l *Lexer) readIdentifier(m mark) Token {
	start := l.pos
	for isIdentStart(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	lit := l.input[start:l.pos]
	return l.token(LookupIdent(lit), lit, m)
}

// readNumber reads an integer or float literal. Integers may use 0x,
// 0b or 0o prefixes; floats require digits on both sides of the dot
// and may carry an e exponent.
func (l *Lexer) readNumber(m mark) Token {
	start := l.pos

	if l.ch == '0' {
		switch l.peekChar() {
		case 'x', 'b', 'o':
			base := l.peekChar()
			l.readChar()
			l.readChar()
			digits := 0
			for isBaseDigit(l.ch, base) {
				digits++
				l.readChar()
			}
			if digits == 0 {
				return l.errorToken(m, "invalid number literal: %s", l.input[start:l.pos])
			}
			return l.token(TokenInt, l.input[start:l.pos], m)
		}
	}

	for isDigit(l.ch) {
		l.readChar()
	}

	kind := TokenInt
	if l.ch == '.' && isDigit(l.peekChar()) {
		kind = TokenFloat
		l.readChar() // .
		for isDigit(l.ch) {
			l.readChar()
		}
		if l.ch == 'e' || l.ch == 'E' {
			next := l.peekChar()
			if isDigit(next) || next == '+' || next == '-' {
				l.readChar() // e
				if l.ch == '+' || l.ch == '-' {
					l.readChar()
				}
				if !isDigit(l.ch) {
					return l.errorToken(m, "invalid number literal: %s", l.input[start:l.pos])
				}
				for isDigit(l.ch) {
					l.readChar()
				}
			}
		}
	}

	return l.token(kind, l.input[start:l.pos], m)
}

// readString reads a quoted string literal, decoding escapes.
func (l *Lexer) readString(quote rune, m mark) Token {
	l.readChar() // opening quote

	var sb strings.Builder
	for {
		switch l.ch {
		case quote:
			l.readChar()
			return l.token(TokenString, sb.String(), m)
		case 0, '\n':
			return l.errorToken(m, "unterminated string")
		case '\\':
			l.readChar()
			switch l.ch {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\':
				sb.WriteByte('\\')
			case '"':
				sb.WriteByte('"')
			case '\'':
				sb.WriteByte('\'')
			case '0':
				sb.WriteByte(0)
			case 0:
				return l.errorToken(m, "unterminated string")
			default:
				return l.errorToken(m, "invalid escape sequence: \\%c", l.ch)
			}
			l.readChar()
		default:
			sb.WriteRune(l.ch)
			l.readChar()
		}
	}
}

// readRawString reads a backtick string: no escapes, newlines allowed.
func (l *Lexer) readRawString(m mark) Token {
	l.readChar() // opening backtick
	start := l.pos
	for l.ch != '`' {
		if l.ch == 0 {
			return l.errorToken(m, "unterminated string")
		}
		l.readChar()
	}
	lit := l.input[start:l.pos]
	l.readChar() // closing backtick
	return l.token(TokenString, lit, m)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isBaseDigit(r rune, base rune) bool {
	switch base {
	case 'x':
		return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
	case 'b':
		return r == '0' || r == '1'
	case 'o':
		return r >= '0' && r <= '7'
	}
	return false
}
