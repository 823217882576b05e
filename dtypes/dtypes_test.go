package dtypes

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestMapOfNames(t *testing.T) {
	require.Equal(t, Float16, MapOfNames["float16"])
	require.Equal(t, Float16, MapOfNames["f16"])
	require.Equal(t, Uint32, MapOfNames["u32"])
	require.Equal(t, Int64, MapOfNames["s64"])

	dtype, err := FromName("Float32")
	require.NoError(t, err)
	require.Equal(t, Float32, dtype)

	_, err = FromName("quaternion")
	require.Error(t, err)
}

func TestDTypeSizes(t *testing.T) {
	require.Equal(t, 1, Bool.Size())
	require.Equal(t, 2, Float16.Size())
	require.Equal(t, 4, Int32.Size())
	require.Equal(t, 8, Float64.Size())
	require.Equal(t, 0, Handle.Size())
}

func TestFromGenericsType(t *testing.T) {
	require.Equal(t, Float32, FromGenericsType[float32]())
	require.Equal(t, Float16, FromGenericsType[float16.Float16]())
	require.Equal(t, Uint16, FromGenericsType[uint16]())
	require.Equal(t, Int64, FromGenericsType[int64]())
	require.Equal(t, Bool, FromGenericsType[bool]())
}

func TestPredicates(t *testing.T) {
	require.True(t, Float16.IsFloat())
	require.False(t, Float16.IsInt())
	require.True(t, Uint64.IsInt())
	require.True(t, Int32.IsScalar())
	require.False(t, Handle.IsScalar())
	require.Equal(t, "Handle", Handle.String())
	require.Equal(t, "InvalidDType", DType(999).String())
}
