package compiler

import (
	"math"

	"github.com/tliron/commonlog"

	"github.com/nebula-lang/nebula/pkg/bytecode"
	"github.com/nebula-lang/nebula/pkg/diag"
	"github.com/nebula-lang/nebula/vm"
)

// ---------------------------------------------------------------------------
// Codegen: AST to bytecode, one pass
// ---------------------------------------------------------------------------

// firstUserGlobal is the slot of the first non-builtin global under the
// standard prelude; the specialized global opcodes are aliases for
// slots 21..23.
const firstUserGlobal = 21

// userErrCode is the numeric code carried by OpThrow for err(expr),
// rendered as E080.
const userErrCode = 80

// Option configures a Compiler.
type Option func(*Compiler)

// WithExpressionResult makes a trailing expression statement the
// program result instead of discarding it. The REPL compiles every
// line with this set so results can be echoed.
func WithExpressionResult() Option {
	return func(c *Compiler) { c.exprResult = true }
}

// WithoutOptimizer disables the peephole pass.
func WithoutOptimizer() Option {
	return func(c *Compiler) { c.optimize = false }
}

// Compiler drives AST to bytecode translation. It is a session object:
// the global name table seeds from the builtin registry and persists
// across Compile calls, so a REPL sharing one Compiler and one VM keeps
// its bindings from line to line.
type Compiler struct {
	log        commonlog.Logger
	builtins   *vm.BuiltinSet
	globals    []string
	functions  []*bytecode.Function
	exprResult bool
	optimize   bool
}

// New creates a compiler whose global table starts with the builtin
// names in their fixed slots.
func New(builtins *vm.BuiltinSet, opts ...Option) *Compiler {
	c := &Compiler{
		log:      commonlog.GetLogger("nebula.compiler"),
		builtins: builtins,
		optimize: true,
	}
	c.globals = append(c.globals, builtins.Names()...)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile runs the whole front end over src.
func (c *Compiler) Compile(src string) (*bytecode.Program, error) {
	prog, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return c.CompileProgram(prog)
}

// CompileProgram translates a parsed program.
func (c *Compiler) CompileProgram(prog *Program) (*bytecode.Program, error) {
	c.functions = nil
	fc := newFuncCompiler(c)

	returned := false
	for i, item := range prog.Items {
		if c.exprResult && i == len(prog.Items)-1 {
			if es, ok := item.(*ExprStmt); ok {
				if err := fc.expression(es.Expr); err != nil {
					return nil, err
				}
				fc.chunk.Emit(bytecode.OpReturn, es.SpanVal.Line)
				returned = true
				break
			}
		}
		if err := fc.statement(item); err != nil {
			return nil, err
		}
	}
	if !returned {
		fc.chunk.Emit(bytecode.OpPushNil, 0)
		fc.chunk.Emit(bytecode.OpReturn, 0)
	}

	p := &bytecode.Program{
		Main:        fc.chunk,
		Functions:   c.functions,
		GlobalNames: append([]string(nil), c.globals...),
	}
	if c.optimize {
		bytecode.Optimize(p)
	}
	c.log.Debugf("compiled: main %d bytes, %d functions, %d globals",
		p.Main.CodeLen(), len(p.Functions), len(p.GlobalNames))
	return p, nil
}

// addGlobal interns a name in the session global table.
func (c *Compiler) addGlobal(name string, span diag.Span) (int, error) {
	for i, n := range c.globals {
		if n == name {
			return i, nil
		}
	}
	if len(c.globals) >= 256 {
		return 0, diag.New(diag.ErrStackOverflow, "too many globals (max 256)").WithSpan(span)
	}
	c.globals = append(c.globals, name)
	return len(c.globals) - 1, nil
}

// ---------------------------------------------------------------------------
// Per-chunk compiler
// ---------------------------------------------------------------------------

type local struct {
	name  string
	depth int
}

// loopScope tracks one enclosing loop for break/continue. continueTo is
// the backward target; -1 means continue jumps forward (for loops,
// where it lands on the increment) and is patched via continueJumps.
type loopScope struct {
	breakJumps    []int
	continueJumps []int
	continueTo    int
	baseLocals    int
}

// funcCompiler emits one chunk: the program main or a function body.
// The session-wide tables live on Compiler.
type funcCompiler struct {
	c          *Compiler
	chunk      *bytecode.Chunk
	locals     []local
	scopeDepth int
	maxLocals  int
	loops      []loopScope
}

func newFuncCompiler(c *Compiler) *funcCompiler {
	return &funcCompiler{c: c, chunk: bytecode.NewChunk()}
}

func (f *funcCompiler) beginScope() { f.scopeDepth++ }

// endScope drops locals declared in the closing scope, one Pop per
// stack slot.
func (f *funcCompiler) endScope(line int) {
	f.scopeDepth--
	for len(f.locals) > 0 && f.locals[len(f.locals)-1].depth > f.scopeDepth {
		f.locals = f.locals[:len(f.locals)-1]
		f.chunk.Emit(bytecode.OpPop, line)
	}
}

func (f *funcCompiler) declareLocal(name string, span diag.Span) (int, error) {
	if len(f.locals) >= 255 {
		return 0, diag.New(diag.ErrStackOverflow, "too many locals (max 255)").WithSpan(span)
	}
	f.locals = append(f.locals, local{name: name, depth: f.scopeDepth})
	if len(f.locals) > f.maxLocals {
		f.maxLocals = len(f.locals)
	}
	return len(f.locals) - 1, nil
}

func (f *funcCompiler) resolveLocal(name string) (int, bool) {
	for i := len(f.locals) - 1; i >= 0; i-- {
		if f.locals[i].name == name {
			return i, true
		}
	}
	return 0, false
}

// ---------------------------------------------------------------------------
// Variable access
// ---------------------------------------------------------------------------

func (f *funcCompiler) emitLoadLocal(slot, line int) {
	switch slot {
	case 0:
		f.chunk.Emit(bytecode.OpLoadLocal0, line)
	case 1:
		f.chunk.Emit(bytecode.OpLoadLocal1, line)
	case 2:
		f.chunk.Emit(bytecode.OpLoadLocal2, line)
	default:
		f.chunk.EmitWithOperand(bytecode.OpLoadLocal, line, byte(slot))
	}
}

func (f *funcCompiler) emitStoreLocal(slot, line int) {
	switch slot {
	case 0:
		f.chunk.Emit(bytecode.OpStoreLocal0, line)
	case 1:
		f.chunk.Emit(bytecode.OpStoreLocal1, line)
	case 2:
		f.chunk.Emit(bytecode.OpStoreLocal2, line)
	default:
		f.chunk.EmitWithOperand(bytecode.OpStoreLocal, line, byte(slot))
	}
}

func (f *funcCompiler) emitLoadGlobal(idx, line int) {
	switch idx {
	case firstUserGlobal:
		f.chunk.Emit(bytecode.OpLoadGlobal0, line)
	case firstUserGlobal + 1:
		f.chunk.Emit(bytecode.OpLoadGlobal1, line)
	case firstUserGlobal + 2:
		f.chunk.Emit(bytecode.OpLoadGlobal2, line)
	default:
		f.chunk.EmitWithOperand(bytecode.OpLoadGlobal, line, byte(idx))
	}
}

func (f *funcCompiler) emitStoreGlobal(idx, line int) {
	switch idx {
	case firstUserGlobal:
		f.chunk.Emit(bytecode.OpStoreGlobal0, line)
	case firstUserGlobal + 1:
		f.chunk.Emit(bytecode.OpStoreGlobal1, line)
	case firstUserGlobal + 2:
		f.chunk.Emit(bytecode.OpStoreGlobal2, line)
	default:
		f.chunk.EmitWithOperand(bytecode.OpStoreGlobal, line, byte(idx))
	}
}

// emitLoadVar resolves a name: locals first, then globals. An unknown
// name creates a global slot that reads as nil until defined.
func (f *funcCompiler) emitLoadVar(name string, span diag.Span) error {
	if slot, ok := f.resolveLocal(name); ok {
		f.emitLoadLocal(slot, span.Line)
		return nil
	}
	idx, err := f.c.addGlobal(name, span)
	if err != nil {
		return err
	}
	f.emitLoadGlobal(idx, span.Line)
	return nil
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (f *funcCompiler) statement(s Stmt) error {
	switch s := s.(type) {
	case *VarStmt:
		return f.varDecl(s.Name, s.Value, s.SpanVal)
	case *ConstStmt:
		// cn binds exactly like fb at runtime.
		return f.varDecl(s.Name, s.Value, s.SpanVal)
	case *AssignStmt:
		return f.assign(s)
	case *CompoundStmt:
		return f.compoundAssign(s)
	case *IfStmt:
		return f.ifStmt(s)
	case *WhileStmt:
		return f.whileStmt(s)
	case *ForStmt:
		return f.forStmt(s)
	case *EachStmt:
		return f.eachStmt(s)
	case *ReturnStmt:
		return f.returnStmt(s)
	case *BreakStmt:
		return f.breakStmt(s)
	case *ContinueStmt:
		return f.continueStmt(s)
	case *FuncStmt:
		return f.function(s)
	case *ExprStmt:
		if err := f.expression(s.Expr); err != nil {
			return err
		}
		f.chunk.Emit(bytecode.OpPop, s.SpanVal.Line)
		return nil
	}
	return diag.Newf(diag.ErrInvalidExpr, "unsupported statement").WithSpan(s.Span())
}

// block compiles statements in a nested scope.
func (f *funcCompiler) block(body []Stmt, line int) error {
	f.beginScope()
	for _, stmt := range body {
		if err := f.statement(stmt); err != nil {
			return err
		}
	}
	f.endScope(line)
	return nil
}

func (f *funcCompiler) varDecl(name string, value Expr, span diag.Span) error {
	if err := f.expression(value); err != nil {
		return err
	}
	if f.scopeDepth > 0 {
		// The value on the stack is the local's slot.
		_, err := f.declareLocal(name, span)
		return err
	}
	idx, err := f.c.addGlobal(name, span)
	if err != nil {
		return err
	}
	f.chunk.EmitWithOperand(bytecode.OpDefineGlobal, span.Line, byte(idx))
	return nil
}

func (f *funcCompiler) assign(s *AssignStmt) error {
	line := s.SpanVal.Line
	switch target := s.Target.(type) {
	case *Identifier:
		if slot, ok := f.resolveLocal(target.Name); ok {
			if op, isBump := incDecForm(target.Name, s.Value); isBump {
				f.chunk.EmitWithOperand(op, line, byte(slot))
				return nil
			}
			if err := f.expression(s.Value); err != nil {
				return err
			}
			f.emitStoreLocal(slot, line)
			f.chunk.Emit(bytecode.OpPop, line)
			return nil
		}
		if err := f.expression(s.Value); err != nil {
			return err
		}
		idx, err := f.c.addGlobal(target.Name, s.SpanVal)
		if err != nil {
			return err
		}
		f.emitStoreGlobal(idx, line)
		f.chunk.Emit(bytecode.OpPop, line)
		return nil

	case *IndexExpr:
		if err := f.expression(target.Container); err != nil {
			return err
		}
		if err := f.expression(target.Key); err != nil {
			return err
		}
		if err := f.expression(s.Value); err != nil {
			return err
		}
		f.chunk.Emit(bytecode.OpStoreIndex, line)
		f.chunk.Emit(bytecode.OpPop, line)
		return nil
	}
	return diag.New(diag.ErrInvalidExpr, "invalid assignment target").WithSpan(s.Target.Span())
}

func (f *funcCompiler) compoundAssign(s *CompoundStmt) error {
	line := s.SpanVal.Line
	switch target := s.Target.(type) {
	case *Identifier:
		if slot, ok := f.resolveLocal(target.Name); ok {
			if lit, isOne := s.Value.(*IntLiteral); isOne && lit.Value == 1 {
				switch s.Op {
				case TokenPlusAssign:
					f.chunk.EmitWithOperand(bytecode.OpIncLocal, line, byte(slot))
					return nil
				case TokenMinusAssign:
					f.chunk.EmitWithOperand(bytecode.OpDecLocal, line, byte(slot))
					return nil
				}
			}
			f.emitLoadLocal(slot, line)
			if err := f.expression(s.Value); err != nil {
				return err
			}
			f.chunk.Emit(compoundOp(s.Op), line)
			f.emitStoreLocal(slot, line)
			f.chunk.Emit(bytecode.OpPop, line)
			return nil
		}
		idx, err := f.c.addGlobal(target.Name, s.SpanVal)
		if err != nil {
			return err
		}
		f.emitLoadGlobal(idx, line)
		if err := f.expression(s.Value); err != nil {
			return err
		}
		f.chunk.Emit(compoundOp(s.Op), line)
		f.emitStoreGlobal(idx, line)
		f.chunk.Emit(bytecode.OpPop, line)
		return nil

	case *IndexExpr:
		// xs[i] op= v runs as xs[i] = xs[i] op v; container and key
		// evaluate twice.
		if err := f.expression(target.Container); err != nil {
			return err
		}
		if err := f.expression(target.Key); err != nil {
			return err
		}
		if err := f.expression(target.Container); err != nil {
			return err
		}
		if err := f.expression(target.Key); err != nil {
			return err
		}
		f.chunk.Emit(bytecode.OpIndex, line)
		if err := f.expression(s.Value); err != nil {
			return err
		}
		f.chunk.Emit(compoundOp(s.Op), line)
		f.chunk.Emit(bytecode.OpStoreIndex, line)
		f.chunk.Emit(bytecode.OpPop, line)
		return nil
	}
	return diag.New(diag.ErrInvalidExpr, "invalid assignment target").WithSpan(s.Target.Span())
}

func compoundOp(k TokenKind) bytecode.Opcode {
	switch k {
	case TokenPlusAssign:
		return bytecode.OpAdd
	case TokenMinusAssign:
		return bytecode.OpSub
	case TokenStarAssign:
		return bytecode.OpMul
	}
	return bytecode.OpDiv
}

// incDecForm matches `name = name + 1` and `name = name - 1`.
func incDecForm(name string, value Expr) (bytecode.Opcode, bool) {
	b, ok := value.(*BinaryExpr)
	if !ok {
		return 0, false
	}
	id, ok := b.Left.(*Identifier)
	if !ok || id.Name != name {
		return 0, false
	}
	lit, ok := b.Right.(*IntLiteral)
	if !ok || lit.Value != 1 {
		return 0, false
	}
	switch b.Op {
	case TokenPlus:
		return bytecode.OpIncLocal, true
	case TokenMinus:
		return bytecode.OpDecLocal, true
	}
	return 0, false
}

// ifStmt emits the chain with the peek-Pop discipline: the condition
// stays on the stack across the jump and each side pops it.
func (f *funcCompiler) ifStmt(s *IfStmt) error {
	line := s.SpanVal.Line
	var endJumps []int

	if err := f.expression(s.Cond); err != nil {
		return err
	}
	elseJump := f.chunk.EmitJump(bytecode.OpJumpIfFalse, line)
	f.chunk.Emit(bytecode.OpPop, line)
	if err := f.block(s.Then, line); err != nil {
		return err
	}
	endJumps = append(endJumps, f.chunk.EmitJump(bytecode.OpJump, line))
	f.chunk.PatchJump(elseJump)
	f.chunk.Emit(bytecode.OpPop, line)

	for _, elif := range s.Elifs {
		if err := f.expression(elif.Cond); err != nil {
			return err
		}
		elifJump := f.chunk.EmitJump(bytecode.OpJumpIfFalse, line)
		f.chunk.Emit(bytecode.OpPop, line)
		if err := f.block(elif.Body, line); err != nil {
			return err
		}
		endJumps = append(endJumps, f.chunk.EmitJump(bytecode.OpJump, line))
		f.chunk.PatchJump(elifJump)
		f.chunk.Emit(bytecode.OpPop, line)
	}

	if len(s.Else) > 0 {
		if err := f.block(s.Else, line); err != nil {
			return err
		}
	}

	for _, j := range endJumps {
		f.chunk.PatchJump(j)
	}
	return nil
}

func (f *funcCompiler) whileStmt(s *WhileStmt) error {
	line := s.SpanVal.Line
	loopStart := f.chunk.CodeLen()
	f.chunk.Emit(bytecode.OpCheckIterLimit, line)
	if err := f.expression(s.Cond); err != nil {
		return err
	}
	exitJump := f.chunk.EmitJump(bytecode.OpJumpIfFalse, line)
	f.chunk.Emit(bytecode.OpPop, line)

	f.pushLoop(loopStart)
	if err := f.block(s.Body, line); err != nil {
		return err
	}
	f.chunk.EmitLoop(loopStart, line)
	f.chunk.PatchJump(exitJump)
	f.chunk.Emit(bytecode.OpPop, line)
	f.popLoop()
	return nil
}

func (f *funcCompiler) forStmt(s *ForStmt) error {
	line := s.SpanVal.Line
	f.beginScope()

	if err := f.expression(s.Start); err != nil {
		return err
	}
	slot, err := f.declareLocal(s.Name, s.SpanVal)
	if err != nil {
		return err
	}

	loopStart := f.chunk.CodeLen()
	f.chunk.Emit(bytecode.OpCheckIterLimit, line)
	f.emitLoadLocal(slot, line)
	if err := f.expression(s.End); err != nil {
		return err
	}
	f.chunk.Emit(bytecode.OpLe, line)
	exitJump := f.chunk.EmitJump(bytecode.OpJumpIfFalse, line)
	f.chunk.Emit(bytecode.OpPop, line)

	f.pushLoop(-1)
	if err := f.block(s.Body, line); err != nil {
		return err
	}

	// continue lands on the increment.
	ls := &f.loops[len(f.loops)-1]
	for _, j := range ls.continueJumps {
		f.chunk.PatchJump(j)
	}
	ls.continueJumps = nil

	f.emitLoadLocal(slot, line)
	if s.Step != nil {
		if err := f.expression(s.Step); err != nil {
			return err
		}
	} else {
		f.chunk.EmitConstant(bytecode.IntConst(1), line)
	}
	f.chunk.Emit(bytecode.OpAdd, line)
	f.emitStoreLocal(slot, line)
	f.chunk.Emit(bytecode.OpPop, line)

	f.chunk.EmitLoop(loopStart, line)
	f.chunk.PatchJump(exitJump)
	f.chunk.Emit(bytecode.OpPop, line)
	f.popLoop()
	f.endScope(line)
	return nil
}

// eachStmt drives the iterator protocol. The loop variable's nil cell
// is pushed before the iterable so the iterator ends up on top, where
// IterNext expects it; both occupy local slots so the body sees
// correct slot numbering.
func (f *funcCompiler) eachStmt(s *EachStmt) error {
	line := s.SpanVal.Line
	f.beginScope()

	f.chunk.Emit(bytecode.OpPushNil, line)
	if err := f.expression(s.Iterable); err != nil {
		return err
	}
	f.chunk.Emit(bytecode.OpIterInit, line)
	slot, err := f.declareLocal(s.Name, s.SpanVal)
	if err != nil {
		return err
	}
	if _, err := f.declareLocal("(iter)", s.SpanVal); err != nil {
		return err
	}

	loopStart := f.chunk.CodeLen()
	f.chunk.Emit(bytecode.OpCheckIterLimit, line)
	exitJump := f.chunk.EmitJump(bytecode.OpIterNext, line)
	f.emitStoreLocal(slot, line)
	f.chunk.Emit(bytecode.OpPop, line)

	f.pushLoop(loopStart)
	if err := f.block(s.Body, line); err != nil {
		return err
	}
	f.chunk.EmitLoop(loopStart, line)
	f.chunk.PatchJump(exitJump)
	f.popLoop()
	f.endScope(line)
	return nil
}

func (f *funcCompiler) returnStmt(s *ReturnStmt) error {
	line := s.SpanVal.Line
	if s.Value != nil {
		if err := f.expression(s.Value); err != nil {
			return err
		}
	} else {
		f.chunk.Emit(bytecode.OpPushNil, line)
	}
	f.chunk.Emit(bytecode.OpReturn, line)
	return nil
}

func (f *funcCompiler) pushLoop(continueTo int) {
	f.loops = append(f.loops, loopScope{continueTo: continueTo, baseLocals: len(f.locals)})
}

// popLoop closes the innermost loop and patches its break jumps to the
// current position.
func (f *funcCompiler) popLoop() {
	ls := f.loops[len(f.loops)-1]
	f.loops = f.loops[:len(f.loops)-1]
	for _, j := range ls.breakJumps {
		f.chunk.PatchJump(j)
	}
}

// discardLoopLocals pops the stack slots of locals declared inside the
// loop body. Scope tracking is untouched: the fall-through path still
// runs endScope.
func (f *funcCompiler) discardLoopLocals(base, line int) {
	for i := len(f.locals); i > base; i-- {
		f.chunk.Emit(bytecode.OpPop, line)
	}
}

func (f *funcCompiler) breakStmt(s *BreakStmt) error {
	if len(f.loops) == 0 {
		return diag.New(diag.ErrInvalidExpr, "break outside loop").WithSpan(s.SpanVal)
	}
	ls := &f.loops[len(f.loops)-1]
	f.discardLoopLocals(ls.baseLocals, s.SpanVal.Line)
	ls.breakJumps = append(ls.breakJumps, f.chunk.EmitJump(bytecode.OpJump, s.SpanVal.Line))
	return nil
}

func (f *funcCompiler) continueStmt(s *ContinueStmt) error {
	if len(f.loops) == 0 {
		return diag.New(diag.ErrInvalidExpr, "continue outside loop").WithSpan(s.SpanVal)
	}
	ls := &f.loops[len(f.loops)-1]
	f.discardLoopLocals(ls.baseLocals, s.SpanVal.Line)
	if ls.continueTo >= 0 {
		f.chunk.EmitLoop(ls.continueTo, s.SpanVal.Line)
	} else {
		ls.continueJumps = append(ls.continueJumps, f.chunk.EmitJump(bytecode.OpJump, s.SpanVal.Line))
	}
	return nil
}

// function compiles a definition in a fresh chunk compiler sharing the
// session tables, then binds the function object to its global.
func (f *funcCompiler) function(s *FuncStmt) error {
	line := s.SpanVal.Line
	if len(s.Params) > 255 {
		return diag.New(diag.ErrInvalidExpr, "too many parameters (max 255)").WithSpan(s.SpanVal)
	}
	if len(f.c.functions) >= 256 {
		return diag.New(diag.ErrInvalidExpr, "too many functions (max 256)").WithSpan(s.SpanVal)
	}

	sub := newFuncCompiler(f.c)
	for _, param := range s.Params {
		if _, err := sub.declareLocal(param, s.SpanVal); err != nil {
			return err
		}
	}
	// Body scope opens after the params so fb inside the body stays
	// local to the function.
	sub.beginScope()
	for _, stmt := range s.Body {
		if err := sub.statement(stmt); err != nil {
			return err
		}
	}
	// Implicit return for bodies that fall off the end.
	sub.chunk.Emit(bytecode.OpPushNil, line)
	sub.chunk.Emit(bytecode.OpReturn, line)

	fn := &bytecode.Function{
		Name:       s.Name,
		Arity:      uint8(len(s.Params)),
		LocalCount: uint8(sub.maxLocals),
		Chunk:      sub.chunk,
	}
	f.c.functions = append(f.c.functions, fn)
	fnIdx := len(f.c.functions) - 1

	idx, err := f.c.addGlobal(s.Name, s.SpanVal)
	if err != nil {
		return err
	}
	f.chunk.EmitWithOperand(bytecode.OpClosure, line, byte(fnIdx))
	f.chunk.EmitWithOperand(bytecode.OpDefineGlobal, line, byte(idx))
	return nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (f *funcCompiler) expression(e Expr) error {
	if folded, ok, err := foldExpr(e); err != nil {
		return err
	} else if ok {
		e = folded
	}

	switch e := e.(type) {
	case *NilLiteral:
		f.chunk.Emit(bytecode.OpPushNil, e.SpanVal.Line)
	case *BoolLiteral:
		if e.Value {
			f.chunk.Emit(bytecode.OpPushTrue, e.SpanVal.Line)
		} else {
			f.chunk.Emit(bytecode.OpPushFalse, e.SpanVal.Line)
		}
	case *IntLiteral:
		f.chunk.EmitConstant(bytecode.IntConst(e.Value), e.SpanVal.Line)
	case *FloatLiteral:
		f.chunk.EmitConstant(bytecode.FloatConst(e.Value), e.SpanVal.Line)
	case *StringLiteral:
		f.chunk.EmitConstant(bytecode.StringConst(e.Value), e.SpanVal.Line)
	case *Identifier:
		return f.emitLoadVar(e.Name, e.SpanVal)
	case *UnaryExpr:
		if err := f.expression(e.Operand); err != nil {
			return err
		}
		if e.Op == TokenMinus {
			f.chunk.Emit(bytecode.OpNeg, e.SpanVal.Line)
		} else {
			f.chunk.Emit(bytecode.OpNot, e.SpanVal.Line)
		}
	case *BinaryExpr:
		return f.binary(e)
	case *CallExpr:
		if len(e.Args) > 255 {
			return diag.New(diag.ErrWrongArgCount, "too many arguments (max 255)").WithSpan(e.SpanVal)
		}
		if err := f.expression(e.Callee); err != nil {
			return err
		}
		for _, arg := range e.Args {
			if err := f.expression(arg); err != nil {
				return err
			}
		}
		f.chunk.EmitWithOperand(bytecode.OpCall, e.SpanVal.Line, byte(len(e.Args)))
	case *IndexExpr:
		if err := f.expression(e.Container); err != nil {
			return err
		}
		if err := f.expression(e.Key); err != nil {
			return err
		}
		f.chunk.Emit(bytecode.OpIndex, e.SpanVal.Line)
	case *ListLiteral:
		if len(e.Elements) > 255 {
			return diag.New(diag.ErrInvalidExpr, "list literal too long (max 255)").WithSpan(e.SpanVal)
		}
		for _, elem := range e.Elements {
			if err := f.expression(elem); err != nil {
				return err
			}
		}
		f.chunk.EmitWithOperand(bytecode.OpList, e.SpanVal.Line, byte(len(e.Elements)))
	case *MapLiteral:
		if len(e.Entries) > 255 {
			return diag.New(diag.ErrInvalidExpr, "map literal too long (max 255)").WithSpan(e.SpanVal)
		}
		for _, entry := range e.Entries {
			if err := f.expression(entry.Key); err != nil {
				return err
			}
			if err := f.expression(entry.Value); err != nil {
				return err
			}
		}
		f.chunk.EmitWithOperand(bytecode.OpMap, e.SpanVal.Line, byte(len(e.Entries)))
	case *ErrExpr:
		if err := f.expression(e.Value); err != nil {
			return err
		}
		f.chunk.EmitWithOperand(bytecode.OpThrow, e.SpanVal.Line, userErrCode)
	default:
		return diag.New(diag.ErrInvalidExpr, "unsupported expression").WithSpan(e.Span())
	}
	return nil
}

// binary emits infix operators. & and | are short-circuit jumps; the
// jump keeps the deciding value on the stack and the opcode pops it on
// the fall-through path.
func (f *funcCompiler) binary(e *BinaryExpr) error {
	line := e.SpanVal.Line

	switch e.Op {
	case TokenAmp:
		if err := f.expression(e.Left); err != nil {
			return err
		}
		jump := f.chunk.EmitJump(bytecode.OpAnd, line)
		if err := f.expression(e.Right); err != nil {
			return err
		}
		f.chunk.PatchJump(jump)
		return nil
	case TokenPipe:
		if err := f.expression(e.Left); err != nil {
			return err
		}
		jump := f.chunk.EmitJump(bytecode.OpOr, line)
		if err := f.expression(e.Right); err != nil {
			return err
		}
		f.chunk.PatchJump(jump)
		return nil
	}

	if err := f.expression(e.Left); err != nil {
		return err
	}
	if err := f.expression(e.Right); err != nil {
		return err
	}

	switch e.Op {
	case TokenPlus:
		f.chunk.Emit(bytecode.OpAdd, line)
	case TokenMinus:
		f.chunk.Emit(bytecode.OpSub, line)
	case TokenStar:
		f.chunk.Emit(bytecode.OpMul, line)
	case TokenSlash:
		f.chunk.Emit(bytecode.OpDiv, line)
	case TokenPercent:
		f.chunk.Emit(bytecode.OpMod, line)
	case TokenCaret:
		f.chunk.Emit(bytecode.OpPow, line)
	case TokenEq:
		f.chunk.Emit(bytecode.OpEq, line)
	case TokenNe:
		f.chunk.Emit(bytecode.OpNe, line)
	case TokenLt:
		f.chunk.Emit(bytecode.OpLt, line)
	case TokenGt:
		f.chunk.Emit(bytecode.OpGt, line)
	case TokenLe:
		f.chunk.Emit(bytecode.OpLe, line)
	case TokenGe:
		f.chunk.Emit(bytecode.OpGe, line)
	default:
		return diag.Newf(diag.ErrInvalidExpr, "unsupported operator %s", e.Op).WithSpan(e.SpanVal)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Constant folding
// ---------------------------------------------------------------------------

// foldExpr reduces numeric literal arithmetic at compile time using the
// runtime result-kind rules: int op int stays int for + - *; / % ^ are
// always float; mixed operands go float. Literal division or modulo by
// zero is a compile-time diagnostic.
func foldExpr(e Expr) (Expr, bool, error) {
	switch e := e.(type) {
	case *UnaryExpr:
		if e.Op != TokenMinus {
			return nil, false, nil
		}
		operand := e.Operand
		if inner, ok, err := foldExpr(operand); err != nil {
			return nil, false, err
		} else if ok {
			operand = inner
		}
		switch lit := operand.(type) {
		case *IntLiteral:
			return &IntLiteral{SpanVal: e.SpanVal, Value: -lit.Value}, true, nil
		case *FloatLiteral:
			return &FloatLiteral{SpanVal: e.SpanVal, Value: -lit.Value}, true, nil
		}
		return nil, false, nil

	case *BinaryExpr:
		switch e.Op {
		case TokenPlus, TokenMinus, TokenStar, TokenSlash, TokenPercent, TokenCaret:
		default:
			return nil, false, nil
		}

		left := e.Left
		if inner, ok, err := foldExpr(left); err != nil {
			return nil, false, err
		} else if ok {
			left = inner
		}
		right := e.Right
		if inner, ok, err := foldExpr(right); err != nil {
			return nil, false, err
		} else if ok {
			right = inner
		}

		li, lIsInt := left.(*IntLiteral)
		lf, lIsFloat := left.(*FloatLiteral)
		ri, rIsInt := right.(*IntLiteral)
		rf, rIsFloat := right.(*FloatLiteral)
		if (!lIsInt && !lIsFloat) || (!rIsInt && !rIsFloat) {
			return nil, false, nil
		}

		// Integer result for + - * over two ints.
		if lIsInt && rIsInt {
			switch e.Op {
			case TokenPlus:
				return &IntLiteral{SpanVal: e.SpanVal, Value: li.Value + ri.Value}, true, nil
			case TokenMinus:
				return &IntLiteral{SpanVal: e.SpanVal, Value: li.Value - ri.Value}, true, nil
			case TokenStar:
				return &IntLiteral{SpanVal: e.SpanVal, Value: li.Value * ri.Value}, true, nil
			}
		}

		var a, b float64
		if lIsInt {
			a = float64(li.Value)
		} else {
			a = lf.Value
		}
		if rIsInt {
			b = float64(ri.Value)
		} else {
			b = rf.Value
		}

		var v float64
		switch e.Op {
		case TokenPlus:
			v = a + b
		case TokenMinus:
			v = a - b
		case TokenStar:
			v = a * b
		case TokenSlash:
			if b == 0 {
				return nil, false, diag.New(diag.ErrDivideByZero, "division by zero").WithSpan(e.SpanVal)
			}
			v = a / b
		case TokenPercent:
			if b == 0 {
				return nil, false, diag.New(diag.ErrDivideByZero, "modulo by zero").WithSpan(e.SpanVal)
			}
			v = math.Mod(a, b)
		case TokenCaret:
			v = math.Pow(a, b)
		}
		return &FloatLiteral{SpanVal: e.SpanVal, Value: v}, true, nil
	}
	return nil, false, nil
}
