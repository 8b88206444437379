package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableArrayAppend(t *testing.T) {
	tbl := NewTable(0, 0)
	assert.NoError(t, tbl.Set(int64(1), "a"))
	assert.NoError(t, tbl.Set(int64(2), "b"))
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, "a", tbl.Get(int64(1)))
	assert.Equal(t, "b", tbl.Get(int64(2)))
}

func TestTableFloatKeyNormalizesToInt(t *testing.T) {
	tbl := NewTable(0, 0)
	assert.NoError(t, tbl.Set(1.0, "x"))
	assert.Equal(t, "x", tbl.Get(int64(1)))
}

func TestTableHashPart(t *testing.T) {
	tbl := NewTable(0, 0)
	assert.NoError(t, tbl.Set("key", "value"))
	assert.Equal(t, "value", tbl.Get("key"))
	assert.Equal(t, 0, tbl.Len())
}

func TestTableNilIndexErrors(t *testing.T) {
	tbl := NewTable(0, 0)
	err := tbl.Set(nil, "x")
	assert.Error(t, err)
}

func TestTableHashAbsorbedAfterArrayCatchesUp(t *testing.T) {
	tbl := NewTable(0, 0)
	assert.NoError(t, tbl.Set(int64(2), "b"))
	assert.Equal(t, 0, tbl.Len())
	assert.NoError(t, tbl.Set(int64(1), "a"))
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, "b", tbl.Get(int64(2)))
}

func TestTableNextWalksArrayThenHash(t *testing.T) {
	tbl := NewTable(0, 0)
	assert.NoError(t, tbl.Set(int64(1), "a"))
	assert.NoError(t, tbl.Set("k", "v"))

	k, v, ok := tbl.Next(nil)
	assert.True(t, ok)
	assert.Equal(t, int64(1), k)
	assert.Equal(t, "a", v)

	k2, v2, ok2 := tbl.Next(k)
	assert.True(t, ok2)
	assert.Equal(t, "k", k2)
	assert.Equal(t, "v", v2)

	_, _, ok3 := tbl.Next(k2)
	assert.False(t, ok3)
}
