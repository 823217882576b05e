package vkrt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypedBytes(t *testing.T) {
	require.Nil(t, typedBytes[float32](nil))

	b := typedBytes([]uint32{0x04030201})
	require.Equal(t, []byte{1, 2, 3, 4}, b)

	require.Len(t, typedBytes(make([]float64, 3)), 24)
}

func TestBufferFromHostRoundtrip(t *testing.T) {
	api := newTestAPI(t)
	tc := api.NewThreadContext()
	defer tc.Close()

	values := []float32{1, 2.5, -3, 0.125}
	buf, err := BufferFromHost(api, tc, 0, values)
	require.NoError(t, err)
	defer api.FreeBuffer(tc, 0, buf)

	back, err := BufferToHost[float32](api, tc, 0, buf, len(values))
	require.NoError(t, err)
	require.Equal(t, values, back)

	_, err = BufferToHost[float64](api, tc, 0, buf, len(values))
	require.ErrorContains(t, err, "byte buffer")
}
