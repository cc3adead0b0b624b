package compiler

import (
	"testing"
)

func TestLexerBasicTokens(t *testing.T) {
	input := `+ - * / % ^ = ! & | ( ) [ ] { } , : .`
	expected := []struct {
		kind TokenKind
		lit  string
	}{
		{TokenPlus, "+"},
		{TokenMinus, "-"},
		{TokenStar, "*"},
		{TokenSlash, "/"},
		{TokenPercent, "%"},
		{TokenCaret, "^"},
		{TokenAssign, "="},
		{TokenBang, "!"},
		{TokenAmp, "&"},
		{TokenPipe, "|"},
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenLBracket, "["},
		{TokenRBracket, "]"},
		{TokenLBrace, "{"},
		{TokenRBrace, "}"},
		{TokenComma, ","},
		{TokenColon, ":"},
		{TokenDot, "."},
		{TokenEOF, ""},
	}

	l := NewLexer(input)
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Kind != exp.kind {
			t.Errorf("token[%d] kind = %v, want %v", i, tok.Kind, exp.kind)
		}
		if tok.Literal != exp.lit {
			t.Errorf("token[%d] literal = %q, want %q", i, tok.Literal, exp.lit)
		}
	}
}

func TestLexerCompoundOperators(t *testing.T) {
	input := `== != <= >= < > += -= *= /= ->`
	expected := []TokenKind{
		TokenEq, TokenNe, TokenLe, TokenGe, TokenLt, TokenGt,
		TokenPlusAssign, TokenMinusAssign, TokenStarAssign, TokenSlashAssign,
		TokenArrow, TokenEOF,
	}

	l := NewLexer(input)
	for i, want := range expected {
		tok := l.NextToken()
		if tok.Kind != want {
			t.Errorf("token[%d] = %v, want %v", i, tok.Kind, want)
		}
	}
}

func TestLexerKeywords(t *testing.T) {
	tests := []struct {
		input string
		kind  TokenKind
	}{
		{"fb", TokenFb},
		{"cn", TokenCn},
		{"fn", TokenFn},
		{"if", TokenIf},
		{"elif", TokenElif},
		{"else", TokenElse},
		{"do", TokenDo},
		{"end", TokenEnd},
		{"while", TokenWhile},
		{"for", TokenFor},
		{"each", TokenEach},
		{"in", TokenIn},
		{"break", TokenBreak},
		{"continue", TokenContinue},
		{"err", TokenErr},
		{"yes", TokenYes},
		{"no", TokenNo},
		{"nil", TokenNil},
		// true/false are ordinary identifiers, not keywords.
		{"true", TokenIdent},
		{"false", TokenIdent},
		{"lst", TokenIdent},
		{"map", TokenIdent},
		{"foo", TokenIdent},
		{"_private", TokenIdent},
		{"foo123", TokenIdent},
	}

	for _, tc := range tests {
		l := NewLexer(tc.input)
		tok := l.NextToken()
		if tok.Kind != tc.kind {
			t.Errorf("%q: kind = %v, want %v", tc.input, tok.Kind, tc.kind)
		}
		if tok.Literal != tc.input {
			t.Errorf("%q: literal = %q", tc.input, tok.Literal)
		}
	}
}

func TestLexerIntegers(t *testing.T) {
	tests := []struct {
		input string
		lit   string
	}{
		{"0", "0"},
		{"42", "42"},
		{"1234567890", "1234567890"},
		{"0xFF", "0xFF"},
		{"0xdeadBEEF", "0xdeadBEEF"},
		{"0b1010", "0b1010"},
		{"0o755", "0o755"},
	}

	for _, tc := range tests {
		l := NewLexer(tc.input)
		tok := l.NextToken()
		if tok.Kind != TokenInt {
			t.Errorf("%q: kind = %v, want INT", tc.input, tok.Kind)
		}
		if tok.Literal != tc.lit {
			t.Errorf("%q: literal = %q, want %q", tc.input, tok.Literal, tc.lit)
		}
	}
}

func TestLexerFloats(t *testing.T) {
	tests := []string{"3.14", "0.5", "1.5e3", "2.5e-3", "1.0E+5", "10.25"}

	for _, input := range tests {
		l := NewLexer(input)
		tok := l.NextToken()
		if tok.Kind != TokenFloat {
			t.Errorf("%q: kind = %v, want FLOAT", input, tok.Kind)
		}
		if tok.Literal != input {
			t.Errorf("%q: literal = %q", input, tok.Literal)
		}
	}
}

// A float needs digits on both sides of the dot; exponents only attach
// to the dotted form.
func TestLexerNumberBoundaries(t *testing.T) {
	l := NewLexer("1e5")
	if tok := l.NextToken(); tok.Kind != TokenInt || tok.Literal != "1" {
		t.Errorf("first = %v %q, want INT 1", tok.Kind, tok.Literal)
	}
	if tok := l.NextToken(); tok.Kind != TokenIdent || tok.Literal != "e5" {
		t.Errorf("second = %v %q, want IDENT e5", tok.Kind, tok.Literal)
	}

	l = NewLexer("3.foo")
	if tok := l.NextToken(); tok.Kind != TokenInt || tok.Literal != "3" {
		t.Errorf("first = %v %q, want INT 3", tok.Kind, tok.Literal)
	}
	if tok := l.NextToken(); tok.Kind != TokenDot {
		t.Errorf("second = %v, want .", tok.Kind)
	}
}

func TestLexerStrings(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`'hello'`, "hello"},
		{`""`, ""},
		{`"a\nb"`, "a\nb"},
		{`"tab\there"`, "tab\there"},
		{`"cr\r"`, "cr\r"},
		{`"quote\""`, `quote"`},
		{`'it\'s'`, "it's"},
		{`"back\\slash"`, `back\slash`},
		{`"nul\0"`, "nul\x00"},
		{"`raw \\n string`", `raw \n string`},
		{"`multi\nline`", "multi\nline"},
	}

	for _, tc := range tests {
		l := NewLexer(tc.input)
		tok := l.NextToken()
		if tok.Kind != TokenString {
			t.Errorf("%q: kind = %v, want STRING", tc.input, tok.Kind)
			continue
		}
		if tok.Literal != tc.want {
			t.Errorf("%q: literal = %q, want %q", tc.input, tok.Literal, tc.want)
		}
	}
}

func TestLexerNewlines(t *testing.T) {
	l := NewLexer("a\nb\n\nc")
	expected := []struct {
		kind TokenKind
		lit  string
	}{
		{TokenIdent, "a"},
		{TokenNewline, "\n"},
		{TokenIdent, "b"},
		{TokenNewline, "\n"},
		{TokenNewline, "\n"},
		{TokenIdent, "c"},
		{TokenEOF, ""},
	}
	for i, exp := range expected {
		tok := l.NextToken()
		if tok.Kind != exp.kind {
			t.Errorf("token[%d] = %v, want %v", i, tok.Kind, exp.kind)
		}
	}
}

func TestLexerLineComments(t *testing.T) {
	l := NewLexer("a # comment with stuff: fb if 42\nb")
	if tok := l.NextToken(); tok.Kind != TokenIdent || tok.Literal != "a" {
		t.Fatalf("first = %v", tok)
	}
	if tok := l.NextToken(); tok.Kind != TokenNewline {
		t.Fatalf("comment did not stop at newline: %v", tok)
	}
	if tok := l.NextToken(); tok.Kind != TokenIdent || tok.Literal != "b" {
		t.Fatalf("third = %v", tok)
	}
}

func TestLexerBlockComments(t *testing.T) {
	l := NewLexer("a ''' ignored\nstill ignored ''' b")
	if tok := l.NextToken(); tok.Kind != TokenIdent || tok.Literal != "a" {
		t.Fatalf("first = %v", tok)
	}
	if tok := l.NextToken(); tok.Kind != TokenIdent || tok.Literal != "b" {
		t.Fatalf("second = %v, want b", tok)
	}
	if tok := l.NextToken(); tok.Kind != TokenEOF {
		t.Fatalf("third = %v, want EOF", tok)
	}
}

// An empty single-quoted string is not a block comment opener.
func TestLexerEmptyStringVsBlockComment(t *testing.T) {
	l := NewLexer("''")
	tok := l.NextToken()
	if tok.Kind != TokenString || tok.Literal != "" {
		t.Fatalf("got %v %q, want empty STRING", tok.Kind, tok.Literal)
	}
}

func TestLexerSpans(t *testing.T) {
	l := NewLexer("fb x\nfb yy")
	tests := []struct {
		line, col int
	}{
		{1, 1}, // fb
		{1, 4}, // x
		{1, 5}, // newline
		{2, 1}, // fb
		{2, 4}, // yy
	}
	for i, want := range tests {
		tok := l.NextToken()
		if tok.Span.Line != want.line || tok.Span.Column != want.col {
			t.Errorf("token[%d] %v at %d:%d, want %d:%d",
				i, tok, tok.Span.Line, tok.Span.Column, want.line, want.col)
		}
	}
}

func TestLexerSpanLength(t *testing.T) {
	l := NewLexer("hello + 42")
	tok := l.NextToken()
	if tok.Span.Start != 0 || tok.Span.Length != 5 {
		t.Errorf("hello span = %+v", tok.Span)
	}
	tok = l.NextToken()
	if tok.Span.Start != 6 || tok.Span.Length != 1 {
		t.Errorf("plus span = %+v", tok.Span)
	}
	tok = l.NextToken()
	if tok.Span.Start != 8 || tok.Span.Length != 2 {
		t.Errorf("42 span = %+v", tok.Span)
	}
}

func TestLexerErrors(t *testing.T) {
	tests := []struct {
		input string
		desc  string
	}{
		{`"never closed`, "unterminated double-quoted string"},
		{`'never closed`, "unterminated single-quoted string"},
		{"\"line\nbreak\"", "newline inside string"},
		{"`never closed", "unterminated raw string"},
		{`"bad \q escape"`, "invalid escape"},
		{"@", "unexpected character"},
		{"''' never closed", "unterminated block comment"},
		{"0x", "hex prefix without digits"},
		{"0b", "binary prefix without digits"},
	}

	for _, tc := range tests {
		l := NewLexer(tc.input)
		var tok Token
		for i := 0; i < 10; i++ {
			tok = l.NextToken()
			if tok.Kind == TokenError || tok.Kind == TokenEOF {
				break
			}
		}
		if tok.Kind != TokenError {
			t.Errorf("%s (%q): no error token, last = %v", tc.desc, tc.input, tok)
		}
	}
}

func TestLexerUnicodeIdentifiers(t *testing.T) {
	l := NewLexer("héllo çafé")
	if tok := l.NextToken(); tok.Kind != TokenIdent || tok.Literal != "héllo" {
		t.Errorf("first = %v %q", tok.Kind, tok.Literal)
	}
	if tok := l.NextToken(); tok.Kind != TokenIdent || tok.Literal != "çafé" {
		t.Errorf("second = %v %q", tok.Kind, tok.Literal)
	}
}

func TestLexerWholeProgram(t *testing.T) {
	input := "fb total = 0\nfor i = 1, 10 do\n  total += i\nend\n-> total"
	var kinds []TokenKind
	l := NewLexer(input)
	for {
		tok := l.NextToken()
		if tok.Kind == TokenError {
			t.Fatalf("unexpected lex error: %s", tok.Literal)
		}
		kinds = append(kinds, tok.Kind)
		if tok.Kind == TokenEOF {
			break
		}
	}
	want := []TokenKind{
		TokenFb, TokenIdent, TokenAssign, TokenInt, TokenNewline,
		TokenFor, TokenIdent, TokenAssign, TokenInt, TokenComma, TokenInt, TokenDo, TokenNewline,
		TokenIdent, TokenPlusAssign, TokenIdent, TokenNewline,
		TokenEnd, TokenNewline,
		TokenArrow, TokenIdent, TokenEOF,
	}
	if len(kinds) != len(want) {
		t.Fatalf("token count = %d, want %d (%v)", len(kinds), len(want), kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("token[%d] = %v, want %v", i, kinds[i], want[i])
		}
	}
}
