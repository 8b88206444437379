// Package proto is the compiled-chunk format shared by the compiler and the
// VM: a Proto is one function body's constants, bytecode and debug info,
// with nested Protos for its inner function literals.
package proto

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Upvalue describes where an enclosing funcState resolves this function's
// Nth upvalue from: a local slot in the immediately enclosing function
// (InStack) or that function's own upvalue list (otherwise).
type Upvalue struct {
	Name    string
	InStack bool
	Index   int
}

// LocalVar is debug info for a local variable's live range. The compiler
// does not fill Proto.Locals, and neither error messages nor the VM read it.
type LocalVar struct {
	Name    string
	StartPC int
	EndPC   int
}

// Proto is one compiled function body.
type Proto struct {
	Source          string
	LineDefined     int
	LastLineDefined int
	NumParams       int
	IsVararg        bool
	MaxStackSize    int

	Code     []uint32
	Lines    []int
	Constants []any
	Upvalues []Upvalue
	Protos   []*Proto
	Locals   []LocalVar
}

// AddConstant deduplicates by value equality and returns the constant's
// index, converting any constant-table overflow into an explicit error
// rather than panicking on a later narrowing cast.
func (p *Proto) AddConstant(v any) (int, error) {
	for i, c := range p.Constants {
		if c == v {
			return i, nil
		}
	}
	if len(p.Constants) >= 1<<17 {
		return 0, fmt.Errorf("proto: too many constants (limit %d)", 1<<17)
	}
	p.Constants = append(p.Constants, v)
	return len(p.Constants) - 1, nil
}

// AddUpvalue deduplicates by (name, InStack, Index) the same way the
// compiler's enclosing scope dedupes repeated captures of the same variable.
func (p *Proto) AddUpvalue(name string, inStack bool, index int) int {
	for i, uv := range p.Upvalues {
		if uv.Name == name && uv.InStack == inStack && uv.Index == index {
			return i
		}
	}
	p.Upvalues = append(p.Upvalues, Upvalue{Name: name, InStack: inStack, Index: index})
	return len(p.Upvalues) - 1
}

func (p *Proto) AddProto(sub *Proto) int {
	p.Protos = append(p.Protos, sub)
	return len(p.Protos) - 1
}

// Dump serializes a Proto tree to JSON, mirroring the teacher's binchunk
// dump path but without its binary signature header: an embedder that wants
// to persist compiled chunks gets a portable, diffable format instead of a
// hand-rolled binary one.
func Dump(p *Proto) ([]byte, error) {
	return json.Marshal(p)
}

func Load(data []byte) (*Proto, error) {
	p := &Proto{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("proto: load: %w", err)
	}
	return p, nil
}
