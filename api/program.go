// Package api is the embedding surface: Program compiles source once,
// Lua loads and runs a Program and lets a host register its own
// functions into the global table, following the teacher's api/lua_vm.go
// split between "a compiled unit" and "a running machine".
package api

import (
	"github.com/lollipopkit/luavm/cache"
	"github.com/lollipopkit/luavm/compiler"
	"github.com/lollipopkit/luavm/proto"
)

// Program is a compiled chunk ready to run as a Lua closure's body.
type Program struct {
	Proto *proto.Proto
}

var protoCache = cache.NewProtos(64)

// Parse compiles source into a Program, matching spec's
// Program::parse(bytes) -> Result<Program, Error>. Identical (chunkName,
// source) pairs are served from an in-process cache rather than
// recompiled, replacing the teacher's .lk/.lkc file-cache dance
// (see DESIGN.md).
func Parse(source []byte, chunkName string) (*Program, error) {
	if p, ok := protoCache.Get(chunkName, source); ok {
		return &Program{Proto: p}, nil
	}
	p, err := compiler.Compile(string(source), chunkName)
	if err != nil {
		return nil, err
	}
	protoCache.Put(chunkName, source, p)
	return &Program{Proto: p}, nil
}
