package bytecode

// Function is a compiled Nebula function: its body chunk plus the
// frame shape the VM needs to call it.
type Function struct {
	Name       string `cbor:"name"`
	Arity      uint8  `cbor:"arity"`
	LocalCount uint8  `cbor:"locals"`
	Chunk      *Chunk `cbor:"chunk"`
}

// Program is a complete compilation unit: the top-level chunk, the
// function table referenced by OpClosure operands, and the global name
// table whose first entries are the reserved builtin slots.
type Program struct {
	Main        *Chunk      `cbor:"main"`
	Functions   []*Function `cbor:"functions"`
	GlobalNames []string    `cbor:"globals"`
}
