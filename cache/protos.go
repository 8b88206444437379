// Package cache holds a process-lifetime LRU of compiled protos, the
// in-memory successor to the teacher's .lk/.lkc file-cache dance
// (state/api_call.go's loadlk/loadlkc): an embeddable library can't assume
// a writable filesystem for a disk-backed bytecode cache, but repeatedly
// parsing identical source on every call is still wasted work.
package cache

import (
	"crypto/sha256"
	"encoding/hex"

	glc "git.lolli.tech/lollipopkit/go_lru_cacher"
	"github.com/lollipopkit/luavm/proto"
)

// Protos caches compiled Protos keyed by chunk name plus a hash of their
// source bytes.
type Protos struct {
	cacher *glc.Cacher
}

// NewProtos builds a cache holding up to capacity compiled protos.
func NewProtos(capacity int) *Protos {
	return &Protos{cacher: glc.NewCacher(capacity)}
}

func key(chunkName string, source []byte) string {
	h := sha256.Sum256(source)
	return chunkName + ":" + hex.EncodeToString(h[:])
}

// Get returns the cached proto for this exact (chunkName, source) pair, if
// one was stored.
func (c *Protos) Get(chunkName string, source []byte) (*proto.Proto, bool) {
	v, ok := c.cacher.Get(key(chunkName, source))
	if !ok {
		return nil, false
	}
	p, ok := v.(*proto.Proto)
	return p, ok
}

// Put stores a compiled proto under its (chunkName, source) key.
func (c *Protos) Put(chunkName string, source []byte, p *proto.Proto) {
	c.cacher.Set(key(chunkName, source), p)
}
