package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArrayConverterDecodeOneDimensional(t *testing.T) {
	reg := NewDefaultRegistry()

	conv, err := reg.Lookup("_int4")
	require.NoError(t, err)

	val, err := conv.FromBytes(ColumnInfo{}, []byte(`{1,2,NULL,4}`))
	require.NoError(t, err)

	got, ok := val.([]any)
	require.True(t, ok)
	require.Len(t, got, 4)

	assert.EqualValues(t, 1, got[0])
	assert.EqualValues(t, 2, got[1])
	assert.Nil(t, got[2])
	assert.EqualValues(t, 4, got[3])
}

func TestArrayConverterDecodeQuotedElement(t *testing.T) {
	reg := NewDefaultRegistry()

	conv, err := reg.Lookup("_text")
	require.NoError(t, err)

	val, err := conv.FromBytes(ColumnInfo{}, []byte(`{"4,5","quoted \"value\""}`))
	require.NoError(t, err)

	got := val.([]any)
	require.Len(t, got, 2)
	assert.Equal(t, "4,5", got[0])
	assert.Equal(t, `quoted "value"`, got[1])
}

func TestArrayConverterDecodeTwoDimensional(t *testing.T) {
	reg := NewDefaultRegistry()

	conv, err := reg.Lookup("_int4")
	require.NoError(t, err)

	val, err := conv.FromBytes(ColumnInfo{}, []byte(`{{1,2},{3,4}}`))
	require.NoError(t, err)

	got := val.([]any)
	require.Len(t, got, 2)

	row0 := got[0].([]any)
	row1 := got[1].([]any)
	assert.EqualValues(t, []any{int32(1), int32(2)}, row0)
	assert.EqualValues(t, []any{int32(3), int32(4)}, row1)
}

func TestArrayConverterTrailingGarbageRejected(t *testing.T) {
	reg := NewDefaultRegistry()

	conv, err := reg.Lookup("_int4")
	require.NoError(t, err)

	_, err = conv.FromBytes(ColumnInfo{}, []byte(`{1,2}garbage`))
	require.Error(t, err)
}

func TestArrayConverterUnterminatedRejected(t *testing.T) {
	reg := NewDefaultRegistry()

	conv, err := reg.Lookup("_int4")
	require.NoError(t, err)

	_, err = conv.FromBytes(ColumnInfo{}, []byte(`{1,2`))
	require.Error(t, err)
}

func TestArrayConverterRoundTrip(t *testing.T) {
	reg := NewDefaultRegistry()

	conv, err := reg.Lookup("_int4")
	require.NoError(t, err)

	input := []any{int32(1), int32(2), nil, int32(4)}

	_, raw, err := conv.ToBytes(input, 0)
	require.NoError(t, err)

	decoded, err := conv.FromBytes(ColumnInfo{}, raw)
	require.NoError(t, err)

	assert.Equal(t, input, decoded)
}

func TestArrayConverterUnconstrainedComponentDefaultsToAny(t *testing.T) {
	reg := NewDefaultRegistry()

	conv, err := reg.Lookup("_")
	require.NoError(t, err)

	val, err := conv.FromBytes(ColumnInfo{}, []byte(`{hello,world}`))
	require.NoError(t, err)

	got := val.([]any)
	assert.Equal(t, "hello", got[0])
	assert.Equal(t, "world", got[1])
}

// TestArrayWhitespaceSkipTestsCharacter guards against the whitespace-skip
// defect named in the original design notes: skipping must examine the rune
// at the cursor, not the cursor's numeric value, so leading/interior
// whitespace around elements and braces is tolerated regardless of how far
// into the buffer it occurs.
func TestArrayWhitespaceSkipTestsCharacter(t *testing.T) {
	reg := NewDefaultRegistry()

	conv, err := reg.Lookup("_int4")
	require.NoError(t, err)

	val, err := conv.FromBytes(ColumnInfo{}, []byte(`{ 1 , 2 , NULL , 4 }`))
	require.NoError(t, err)

	got := val.([]any)
	require.Len(t, got, 4)
	assert.EqualValues(t, 1, got[0])
	assert.EqualValues(t, 2, got[1])
	assert.Nil(t, got[2])
	assert.EqualValues(t, 4, got[3])
}
