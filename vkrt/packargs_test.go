package vkrt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/govulkan/govkrt/dtypes"
)

func TestPackScalar(t *testing.T) {
	cases := []struct {
		dtype dtypes.DType
		arg   any
		want  ArgUnion64
	}{
		{dtypes.Bool, true, 1},
		{dtypes.Bool, false, 0},
		{dtypes.Int32, 7, 7},
		{dtypes.Int32, int64(-1), 0xffffffff}, // truncated, not sign-extended into the slot
		{dtypes.Int8, -1, 0xff},
		{dtypes.Int64, int64(-1), 0xffffffffffffffff},
		{dtypes.Uint16, 0x1234, 0x1234},
		{dtypes.Uint64, uint64(1) << 63, ArgUnion64(uint64(1) << 63)},
		{dtypes.Float32, float32(1.5), ArgUnion64(math.Float32bits(1.5))},
		{dtypes.Float32, 1.5, ArgUnion64(math.Float32bits(1.5))},
		{dtypes.Float64, 1.5, ArgUnion64(math.Float64bits(1.5))},
		{dtypes.Float16, float32(1.0), ArgUnion64(float16.Fromfloat32(1.0).Bits())},
		{dtypes.Float16, float16.Fromfloat32(2.0), ArgUnion64(float16.Fromfloat32(2.0).Bits())},
	}
	for _, c := range cases {
		got, err := packScalar(c.dtype, c.arg)
		require.NoErrorf(t, err, "%s(%v)", c.dtype, c.arg)
		require.Equalf(t, c.want, got, "%s(%v)", c.dtype, c.arg)
	}
}

func TestPackScalarErrors(t *testing.T) {
	_, err := packScalar(dtypes.Bool, 1)
	require.ErrorContains(t, err, "expected bool")

	_, err = packScalar(dtypes.Int32, "7")
	require.ErrorContains(t, err, "expected an integer")

	_, err = packScalar(dtypes.Float32, 7)
	require.ErrorContains(t, err, "expected float32")

	_, err = packScalar(dtypes.Handle, uintptr(0))
	require.ErrorContains(t, err, "cannot be packed")
}

func TestPackScalars(t *testing.T) {
	packed, err := packScalars(
		[]dtypes.DType{dtypes.Int32, dtypes.Float32},
		[]any{42, float32(0.5)})
	require.NoError(t, err)
	require.Equal(t, []ArgUnion64{42, ArgUnion64(math.Float32bits(0.5))}, packed)

	_, err = packScalars([]dtypes.DType{dtypes.Int32}, []any{})
	require.ErrorContains(t, err, "expected 1 scalar arguments, got 0")

	_, err = packScalars([]dtypes.DType{dtypes.Int32, dtypes.Float32}, []any{1, "x"})
	require.ErrorContains(t, err, "scalar argument 1 (Float32)")
}

func TestArgUnionBytes(t *testing.T) {
	require.Nil(t, argUnionBytes(nil))

	b := argUnionBytes([]ArgUnion64{0x0102030405060708, 1})
	require.Len(t, b, 2*argUnionSize)
	require.Equal(t, byte(0x08), b[0], "little-endian low byte first")
	require.Equal(t, byte(0x01), b[8])
}
