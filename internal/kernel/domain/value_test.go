package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedValueEqual_BitwiseDouble(t *testing.T) {
	nan1 := Double(math.NaN())
	nan2 := Double(math.NaN())
	assert.True(t, nan1.Equal(nan2), "identical NaN bit patterns must compare equal")

	posZero := Double(0.0)
	negZero := Double(math.Copysign(0, -1))
	assert.False(t, posZero.Equal(negZero), "+0.0 and -0.0 are distinct bit patterns")

	assert.True(t, Double(1.5).Equal(Double(1.5)))
	assert.False(t, Double(1.5).Equal(Double(1.6)))
}

func TestTypedValueEqual_CrossType(t *testing.T) {
	assert.False(t, Double(1).Equal(Int64Value(1)), "different arms never compare equal")
}

func TestTypedValueEqual_Bytes(t *testing.T) {
	assert.True(t, Bytes([]byte{1, 2, 3}).Equal(Bytes([]byte{1, 2, 3})))
	assert.False(t, Bytes([]byte{1, 2, 3}).Equal(Bytes([]byte{1, 2})))
	assert.False(t, Bytes([]byte{1, 2, 3}).Equal(Bytes([]byte{1, 2, 9})))
}

func TestTypedValueInRange(t *testing.T) {
	min := Double(0)
	max := Double(1)
	assert.True(t, Double(0.5).InRange(&min, &max))
	assert.False(t, Double(1.5).InRange(&min, &max))
	assert.False(t, Double(-0.1).InRange(&min, &max))
	assert.True(t, Double(0.5).InRange(nil, nil))
	assert.True(t, String("x").InRange(&min, &max), "non-numeric arms are always in range")
}
