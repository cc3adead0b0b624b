// Package diag defines the coded diagnostics shared by the Nebula
// compiler and VM. Every user-visible failure carries a stable E-code
// so scripts and tests can match on the class of error rather than on
// message text.
package diag

import (
	"errors"
	"fmt"
)

// Code identifies a diagnostic class. Codes are grouped by decade:
// E00x lexing/parsing, E01x name resolution and calls, E02x indexing,
// E03x types, E04x arithmetic, E05x resource limits, E06x I/O,
// E07x execution budgets, E08x user-raised errors.
type Code string

const (
	ErrUnexpectedToken Code = "E001"
	ErrExpectedIdent   Code = "E002"
	ErrUnclosedBlock   Code = "E003"
	ErrInvalidExpr     Code = "E004"
	ErrVarNotFound     Code = "E010"
	ErrNotCallable     Code = "E011"
	ErrWrongArgCount   Code = "E012"
	ErrNilAccess       Code = "E013"
	ErrOutOfBounds     Code = "E020"
	ErrInvalidIndex    Code = "E021"
	ErrTypeMismatch    Code = "E030"
	ErrNotANumber      Code = "E031"
	ErrNotIterable     Code = "E032"
	ErrDivideByZero    Code = "E040"
	ErrStackOverflow   Code = "E050"
	ErrFileNotFound    Code = "E060"
	ErrIOFailed        Code = "E061"
	ErrTimeout         Code = "E070"
	ErrIterationLimit  Code = "E071"
	ErrExtension       Code = "E080"
)

var messages = map[Code]string{
	ErrUnexpectedToken: "unexpected token",
	ErrExpectedIdent:   "expected identifier",
	ErrUnclosedBlock:   "unclosed block",
	ErrInvalidExpr:     "invalid expression",
	ErrVarNotFound:     "variable not found",
	ErrNotCallable:     "not callable",
	ErrWrongArgCount:   "wrong arg count",
	ErrNilAccess:       "nil access",
	ErrOutOfBounds:     "out of bounds",
	ErrInvalidIndex:    "invalid index type",
	ErrTypeMismatch:    "type mismatch",
	ErrNotANumber:      "not a number",
	ErrNotIterable:     "not iterable",
	ErrDivideByZero:    "divide by zero",
	ErrStackOverflow:   "stack overflow",
	ErrFileNotFound:    "file not found",
	ErrIOFailed:        "io failed",
	ErrTimeout:         "execution timeout",
	ErrIterationLimit:  "iteration limit",
	ErrExtension:       "extension error",
}

// Message returns the fixed description for the code, or "unknown error"
// for a code outside the table.
func (c Code) Message() string {
	if m, ok := messages[c]; ok {
		return m
	}
	return "unknown error"
}

// Span locates a diagnostic in source text. Line and Column are 1-based;
// a zero Line means the location is unknown.
type Span struct {
	Start  int
	Length int
	Line   int
	Column int
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d", s.Line, s.Column)
}

// Error is a coded diagnostic. Detail refines the fixed message; an
// empty Detail renders as the message alone.
type Error struct {
	Code   Code
	Detail string
	Span   Span
}

// New creates a diagnostic with the given code and detail.
func New(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// Newf creates a diagnostic with a formatted detail.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// WithSpan attaches a source location and returns the diagnostic.
func (e *Error) WithSpan(s Span) *Error {
	e.Span = s
	return e
}

// WithLine attaches just a line number, used by the VM where only the
// chunk line table is available.
func (e *Error) WithLine(line int) *Error {
	if e.Span.Line == 0 {
		e.Span.Line = line
	}
	return e
}

// Error renders as "[E0xx] message" or "[E0xx] message: detail".
func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Code.Message())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Code.Message(), e.Detail)
}

// CodeOf extracts the diagnostic code from err, unwrapping as needed.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// IsCode reports whether err is (or wraps) a diagnostic with the code.
func IsCode(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
