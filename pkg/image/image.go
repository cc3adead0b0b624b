// Package image serializes compiled programs to the .nbc format: an
// 8-byte header (magic "NEBC" plus a big-endian format version) followed
// by a canonical-CBOR payload carrying the main chunk, the function
// table, and the global names. Canonical encoding keeps the bytes
// deterministic for a given program.
package image

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/nebula-lang/nebula/pkg/bytecode"
	"github.com/nebula-lang/nebula/pkg/diag"
)

// Version is the current image format version. Decode rejects anything
// else.
const Version uint32 = 1

// Magic identifies a Nebula image. It is the first four bytes of every
// .nbc file, which is what the CLI sniffs to pick the decode path.
var Magic = [4]byte{'N', 'E', 'B', 'C'}

const headerSize = 8

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Image is the decoded form of a .nbc file. Magic and Version live in
// the raw header, the rest in the CBOR payload.
type Image struct {
	Magic       [4]byte              `cbor:"-"`
	Version     uint32               `cbor:"-"`
	GlobalNames []string             `cbor:"globals"`
	Main        *bytecode.Chunk      `cbor:"main"`
	Functions   []*bytecode.Function `cbor:"functions"`
}

// IsImage reports whether data starts with the image magic.
func IsImage(data []byte) bool {
	return len(data) >= len(Magic) && bytes.Equal(data[:len(Magic)], Magic[:])
}

// Encode writes p to w in the .nbc format.
func Encode(w io.Writer, p *bytecode.Program) error {
	data, err := EncodeBytes(p)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return diag.Newf(diag.ErrIOFailed, "write image: %v", err)
	}
	return nil
}

// EncodeBytes serializes p to .nbc bytes.
func EncodeBytes(p *bytecode.Program) ([]byte, error) {
	if p == nil || p.Main == nil {
		return nil, diag.New(diag.ErrIOFailed, "cannot encode empty program")
	}
	img := &Image{
		Magic:       Magic,
		Version:     Version,
		GlobalNames: p.GlobalNames,
		Main:        p.Main,
		Functions:   p.Functions,
	}
	payload, err := cborEncMode.Marshal(img)
	if err != nil {
		return nil, diag.Newf(diag.ErrIOFailed, "encode image: %v", err)
	}
	out := make([]byte, headerSize, headerSize+len(payload))
	copy(out[:4], Magic[:])
	binary.BigEndian.PutUint32(out[4:], Version)
	return append(out, payload...), nil
}

// Decode reads a .nbc stream and reconstructs the program.
func Decode(r io.Reader) (*bytecode.Program, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, diag.Newf(diag.ErrIOFailed, "read image: %v", err)
	}
	return DecodeBytes(data)
}

// DecodeBytes reconstructs a program from .nbc bytes. A wrong magic or
// an unsupported version is an E061 diagnostic, as is a payload that
// does not decode to a runnable program.
func DecodeBytes(data []byte) (*bytecode.Program, error) {
	if len(data) < headerSize || !IsImage(data) {
		return nil, diag.New(diag.ErrIOFailed, "not a nebula image (bad magic)")
	}
	version := binary.BigEndian.Uint32(data[4:headerSize])
	if version != Version {
		return nil, diag.Newf(diag.ErrIOFailed, "unsupported image version %d (expected %d)", version, Version)
	}
	var img Image
	if err := cbor.Unmarshal(data[headerSize:], &img); err != nil {
		return nil, diag.Newf(diag.ErrIOFailed, "decode image: %v", err)
	}
	if img.Main == nil {
		return nil, diag.New(diag.ErrIOFailed, "image has no main chunk")
	}
	img.Magic = Magic
	img.Version = version
	return &bytecode.Program{
		Main:        img.Main,
		Functions:   img.Functions,
		GlobalNames: img.GlobalNames,
	}, nil
}
