package vkrt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestThreadAxisConfig(t *testing.T) {
	cfg, err := newThreadAxisConfig(2, []string{"blockIdx.x", "threadIdx.x", "blockIdx.y"})
	require.NoError(t, err)
	require.Equal(t, 3, cfg.NumArgs())

	wl, err := cfg.Extract([]any{nil, nil, 16, 256, int64(4)})
	require.NoError(t, err)
	require.Equal(t, uint32(16), wl.GridDim(0))
	require.Equal(t, uint32(4), wl.GridDim(1))
	require.Equal(t, uint32(1), wl.GridDim(2), "unbound axes default to 1")
	require.Equal(t, uint32(256), wl.BlockDim(0))
	require.Equal(t, uint32(1), wl.BlockDim(1))
}

func TestThreadAxisConfigErrors(t *testing.T) {
	_, err := newThreadAxisConfig(0, []string{"warpIdx.x"})
	require.ErrorContains(t, err, "unknown thread axis tag")

	cfg, err := newThreadAxisConfig(0, []string{"blockIdx.x"})
	require.NoError(t, err)

	_, err = cfg.Extract([]any{})
	require.ErrorContains(t, err, "got 0")

	_, err = cfg.Extract([]any{"16"})
	require.ErrorContains(t, err, "expected an integer")

	_, err = cfg.Extract([]any{0})
	require.ErrorContains(t, err, "at least 1")
}
