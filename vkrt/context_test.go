package vkrt

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/require"
)

const (
	memDeviceLocal  = vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	memHostVisible  = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)
	memHostCoherent = vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit)
	memHostCached   = vk.MemoryPropertyFlags(vk.MemoryPropertyHostCachedBit)
)

const testHeapSize = vk.DeviceSize(1 << 30)

func TestRankStagingMemory(t *testing.T) {
	// Discrete-GPU-like layout: device-local, uncached upload, cached readback.
	profiles := []memoryTypeProfile{
		{flags: memDeviceLocal, heapSize: testHeapSize},
		{flags: memHostVisible | memHostCoherent, heapSize: testHeapSize},
		{flags: memHostVisible | memHostCoherent | memHostCached, heapSize: testHeapSize},
	}

	winner, coherent, ok := rankStagingMemory(profiles, 0b111)
	require.True(t, ok)
	require.Equal(t, 2, winner, "host-cached type should outrank uncached")
	require.True(t, coherent)

	// With the cached type masked out, the uncached host-visible one wins.
	winner, coherent, ok = rankStagingMemory(profiles, 0b011)
	require.True(t, ok)
	require.Equal(t, 1, winner)
	require.True(t, coherent)

	// Non-coherent winner is reported as such.
	winner, coherent, ok = rankStagingMemory([]memoryTypeProfile{
		{flags: memHostVisible | memHostCached, heapSize: testHeapSize},
	}, 0b1)
	require.True(t, ok)
	require.Equal(t, 0, winner)
	require.False(t, coherent)
}

func TestRankStagingMemoryExcludesUnusable(t *testing.T) {
	profiles := []memoryTypeProfile{
		{flags: memDeviceLocal, heapSize: testHeapSize},                               // not host-visible
		{flags: memHostVisible | memHostCoherent, heapSize: minRankedHeapSize - 1},    // heap too small
		{flags: memHostVisible | memHostCoherent | memHostCached, heapSize: testHeapSize}, // masked out below
	}
	_, _, ok := rankStagingMemory(profiles, 0b011)
	require.False(t, ok)
}

func TestRankComputeMemory(t *testing.T) {
	// Integrated-GPU-like layout: everything is device-local, but the type
	// that is not host-visible is still preferred.
	profiles := []memoryTypeProfile{
		{flags: memDeviceLocal | memHostVisible | memHostCoherent, heapSize: testHeapSize},
		{flags: memDeviceLocal, heapSize: testHeapSize},
	}

	winner, ok := rankComputeMemory(profiles, 0b11)
	require.True(t, ok)
	require.Equal(t, 1, winner)

	// Host-visible device-local memory is acceptable when it is all there is.
	winner, ok = rankComputeMemory(profiles, 0b01)
	require.True(t, ok)
	require.Equal(t, 0, winner)

	_, ok = rankComputeMemory([]memoryTypeProfile{
		{flags: memHostVisible | memHostCoherent, heapSize: testHeapSize},
	}, 0b1)
	require.False(t, ok, "no device-local type available")
}

func TestComputeQueueFamilies(t *testing.T) {
	families := []vk.QueueFamilyProperties{
		{QueueFlags: vk.QueueFlags(vk.QueueGraphicsBit | vk.QueueComputeBit | vk.QueueTransferBit)},
		{QueueFlags: vk.QueueFlags(vk.QueueComputeBit | vk.QueueTransferBit)},
		{QueueFlags: vk.QueueFlags(vk.QueueTransferBit)},
	}
	require.Equal(t, []uint32{1, 0}, computeQueueFamilies(families),
		"compute-only family must come before compute+graphics")

	require.Empty(t, computeQueueFamilies([]vk.QueueFamilyProperties{
		{QueueFlags: vk.QueueFlags(vk.QueueGraphicsBit)},
	}))
}
