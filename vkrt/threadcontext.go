package vkrt

import (
	vk "github.com/goki/vulkan"
	"k8s.io/klog/v2"
)

// ThreadContext owns the per-device submission streams and the host-visible
// staging and uniform buffers of one goroutine. It is not safe for concurrent
// use; create one per goroutine that talks to the GPU.
//
// Close a ThreadContext before closing the DeviceAPI it came from: its
// command buffers and buffers must go before the devices and instance.
type ThreadContext struct {
	api *DeviceAPI

	streams        map[int]*Stream
	stagingBuffers map[int]*HostVisibleBuffer
	uniformBuffers map[int]*HostVisibleBuffer
}

// NewThreadContext creates an empty ThreadContext. Streams and buffers are
// created lazily on first use per device.
func (api *DeviceAPI) NewThreadContext() *ThreadContext {
	return &ThreadContext{
		api:            api,
		streams:        make(map[int]*Stream),
		stagingBuffers: make(map[int]*HostVisibleBuffer),
		uniformBuffers: make(map[int]*HostVisibleBuffer),
	}
}

// Stream returns this context's stream for the device, creating it on first
// use.
func (tc *ThreadContext) Stream(deviceID int) *Stream {
	if s, ok := tc.streams[deviceID]; ok {
		return s
	}
	s := newStream(tc.api.context(deviceID))
	tc.streams[deviceID] = s
	return s
}

// StagingBuffer returns the staging buffer for the device with capacity for
// at least size bytes, growing it if needed. Growing does not synchronize:
// staging users synchronize right after recording their copy, so no pending
// work can reference the old buffer.
func (tc *ThreadContext) StagingBuffer(deviceID, size int) *HostVisibleBuffer {
	ctx := tc.api.context(deviceID)
	usage := vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit)
	return tc.getOrAllocate(deviceID, size, usage, ctx.StagingMemTypeIndex, tc.stagingBuffers, false)
}

// AllocateUniformBuffer ensures the device's uniform buffer holds at least
// size bytes. Growing synchronizes the stream first: deferred kernels already
// queued may still reference the old buffer.
func (tc *ThreadContext) AllocateUniformBuffer(deviceID, size int) {
	ctx := tc.api.context(deviceID)
	required := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	usage := vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit)
	info := ctx.makeBufferCreateInfo(size, usage)
	memTypeIndex := findMemoryType(ctx, info, required)
	tc.getOrAllocate(deviceID, size, usage, memTypeIndex, tc.uniformBuffers, true)
}

// UniformBuffer returns the device's uniform buffer, which must have been
// sized with AllocateUniformBuffer beforehand.
func (tc *ThreadContext) UniformBuffer(deviceID, size int) *HostVisibleBuffer {
	buf := tc.uniformBuffers[deviceID]
	if buf == nil || buf.Buf == nil {
		klog.Fatalf("vulkan: uniform buffer for device %d not allocated", deviceID)
	}
	if buf.Size < size {
		klog.Fatalf("vulkan: uniform buffer for device %d holds %d bytes, need %d",
			deviceID, buf.Size, size)
	}
	return buf
}

// Close destroys the context's streams and host-visible buffers. Pending
// deferred work is discarded, not flushed.
func (tc *ThreadContext) Close() {
	for _, s := range tc.streams {
		s.destroy()
	}
	clear(tc.streams)
	for _, buf := range tc.stagingBuffers {
		deleteHostVisibleBuffer(buf)
	}
	clear(tc.stagingBuffers)
	for _, buf := range tc.uniformBuffers {
		deleteHostVisibleBuffer(buf)
	}
	clear(tc.uniformBuffers)
}
