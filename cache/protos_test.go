package cache

import (
	"testing"

	"github.com/lollipopkit/luavm/proto"
)

func TestProtosGetMiss(t *testing.T) {
	c := NewProtos(4)
	if _, ok := c.Get("chunk", []byte("return 1")); ok {
		t.Fatal("expected a miss on an empty cache")
	}
}

func TestProtosPutGetHit(t *testing.T) {
	c := NewProtos(4)
	source := []byte("return 1")
	p := &proto.Proto{Source: "chunk"}
	c.Put("chunk", source, p)

	got, ok := c.Get("chunk", source)
	if !ok {
		t.Fatal("expected a hit after Put")
	}
	if got != p {
		t.Fatalf("Get returned a different proto than was Put")
	}
}

func TestProtosKeyDistinguishesChunkName(t *testing.T) {
	c := NewProtos(4)
	source := []byte("return 1")
	c.Put("a.lua", source, &proto.Proto{Source: "a"})

	if _, ok := c.Get("b.lua", source); ok {
		t.Fatal("expected distinct chunk names to miss each other's cache entries")
	}
}

func TestProtosKeyDistinguishesSource(t *testing.T) {
	c := NewProtos(4)
	c.Put("chunk", []byte("return 1"), &proto.Proto{Source: "v1"})

	if _, ok := c.Get("chunk", []byte("return 2")); ok {
		t.Fatal("expected distinct source bytes to miss each other's cache entries")
	}
}
