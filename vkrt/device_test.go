package vkrt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestAPI initializes the Vulkan instance, skipping the test when no
// loader or device is available (CI machines typically have neither).
func newTestAPI(t *testing.T) *DeviceAPI {
	api, err := NewDeviceAPI(nil)
	if err != nil {
		t.Skipf("Vulkan unavailable: %v", err)
	}
	if api.NumDevices() == 0 {
		api.Close()
		t.Skip("no Vulkan compute device")
	}
	t.Cleanup(api.Close)
	return api
}

func TestDeviceProperties(t *testing.T) {
	api := newTestAPI(t)
	for deviceID := 0; deviceID < api.NumDevices(); deviceID++ {
		props := api.Context(deviceID).Props
		require.NotEmpty(t, props.DeviceName)
		require.GreaterOrEqual(t, props.WarpSize, uint32(1))
		require.Greater(t, props.MaxThreadsPerBlock, uint32(0))
		require.GreaterOrEqual(t, props.MaxPushConstantsSize, uint32(128),
			"core Vulkan guarantees 128 bytes of push constants")
		require.GreaterOrEqual(t, props.MaxSPIRVVersion, uint32(SPIRV10))
	}
}

func TestAllocFree(t *testing.T) {
	api := newTestAPI(t)
	tc := api.NewThreadContext()
	defer tc.Close()

	before := BuffersAlive()
	buf := api.AllocBuffer(0, 1024)
	require.NotNil(t, buf)
	require.Equal(t, 1024, buf.Size)
	require.Equal(t, before+1, BuffersAlive())

	zero := api.AllocBuffer(0, 0)
	require.Equal(t, 1, zero.Size, "zero-size requests round up to one byte")

	api.FreeBuffer(tc, 0, buf)
	api.FreeBuffer(tc, 0, zero)
	require.Equal(t, before, BuffersAlive())
}

func TestCopyRoundtrip(t *testing.T) {
	api := newTestAPI(t)
	tc := api.NewThreadContext()
	defer tc.Close()

	src := make([]byte, 4096)
	for i := range src {
		src[i] = byte(i * 31)
	}

	buf := api.AllocBuffer(0, len(src))
	defer api.FreeBuffer(tc, 0, buf)
	api.CopyFromHost(tc, 0, buf, 0, src)

	dst := make([]byte, len(src))
	api.CopyToHost(tc, 0, dst, buf, 0)
	require.True(t, bytes.Equal(src, dst))
}

func TestCopyDeviceToDevice(t *testing.T) {
	api := newTestAPI(t)
	tc := api.NewThreadContext()
	defer tc.Close()

	src := []byte("device to device payload")
	a := api.AllocBuffer(0, len(src))
	b := api.AllocBuffer(0, len(src))
	defer api.FreeBuffer(tc, 0, a)
	defer api.FreeBuffer(tc, 0, b)

	api.CopyFromHost(tc, 0, a, 0, src)
	api.CopyDeviceToDevice(tc, 0, b, 0, a, 0, len(src))
	api.Synchronize(tc, 0)

	dst := make([]byte, len(src))
	api.CopyToHost(tc, 0, dst, b, 0)
	require.Equal(t, src, dst)
}

func TestStagingBufferGrowth(t *testing.T) {
	api := newTestAPI(t)
	tc := api.NewThreadContext()
	defer tc.Close()

	small := tc.StagingBuffer(0, 256)
	require.GreaterOrEqual(t, small.Size, 256)

	large := tc.StagingBuffer(0, 1<<16)
	require.GreaterOrEqual(t, large.Size, 1<<16)

	// A smaller request reuses the grown buffer.
	again := tc.StagingBuffer(0, 128)
	require.Same(t, large, again)
}

func TestUniformBuffer(t *testing.T) {
	api := newTestAPI(t)
	tc := api.NewThreadContext()
	defer tc.Close()

	tc.AllocateUniformBuffer(0, 64)
	ubo := tc.UniformBuffer(0, 64)
	require.GreaterOrEqual(t, ubo.Size, 64)
	require.Len(t, ubo.Bytes(), ubo.Size)
}
