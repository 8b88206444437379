package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeOf(t *testing.T) {
	assert.Equal(t, TypeNil, TypeOf(nil))
	assert.Equal(t, TypeBoolean, TypeOf(true))
	assert.Equal(t, TypeNumber, TypeOf(int64(1)))
	assert.Equal(t, TypeNumber, TypeOf(1.5))
	assert.Equal(t, TypeString, TypeOf("s"))
	assert.Equal(t, TypeTable, TypeOf(NewTable(0, 0)))
}

func TestConvertToBoolean(t *testing.T) {
	assert.False(t, ConvertToBoolean(nil))
	assert.False(t, ConvertToBoolean(false))
	assert.True(t, ConvertToBoolean(int64(0)))
	assert.True(t, ConvertToBoolean(""))
}

func TestFloatToInteger(t *testing.T) {
	i, ok := FloatToInteger(3.0)
	assert.True(t, ok)
	assert.Equal(t, int64(3), i)

	_, ok = FloatToInteger(3.5)
	assert.False(t, ok)
}

func TestToStringFormatsFloatsLuaStyle(t *testing.T) {
	assert.Equal(t, "3.0", ToString(3.0))
	assert.Equal(t, "nil", ToString(nil))
	assert.Equal(t, "true", ToString(true))
}
