package vkrt

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"k8s.io/klog/v2"
)

// HostVisibleBuffer is a device buffer backed by host-visible memory, kept
// persistently mapped. Used for staging transfers and for uniform buffers
// carrying packed scalar arguments.
type HostVisibleBuffer struct {
	ctx *DeviceContext
	Buf *DeviceBuffer

	// HostAddr is the persistent mapping of the buffer's memory.
	HostAddr unsafe.Pointer

	// Size in bytes of the mapped region.
	Size int
}

// Bytes returns the mapped region as a byte slice.
func (b *HostVisibleBuffer) Bytes() []byte {
	return unsafe.Slice((*byte)(b.HostAddr), b.Size)
}

// Flush makes host writes visible to the device. A no-op when the staging
// memory type is host-coherent.
func (b *HostVisibleBuffer) Flush() {
	if b.ctx.CoherentStaging {
		return
	}
	mrange := vk.MappedMemoryRange{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: b.Buf.Memory,
		Size:   vk.DeviceSize(vk.WholeSize),
	}
	mustVk("vkFlushMappedMemoryRanges",
		vk.FlushMappedMemoryRanges(b.ctx.Device, 1, []vk.MappedMemoryRange{mrange}))
}

// Invalidate makes device writes visible to the host. A no-op when the
// staging memory type is host-coherent.
func (b *HostVisibleBuffer) Invalidate() {
	if b.ctx.CoherentStaging {
		return
	}
	mrange := vk.MappedMemoryRange{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: b.Buf.Memory,
		Size:   vk.DeviceSize(vk.WholeSize),
	}
	mustVk("vkInvalidateMappedMemoryRanges",
		vk.InvalidateMappedMemoryRanges(b.ctx.Device, 1, []vk.MappedMemoryRange{mrange}))
}

func deleteHostVisibleBuffer(b *HostVisibleBuffer) {
	if b == nil || b.Buf == nil {
		return
	}
	if b.HostAddr != nil {
		vk.UnmapMemory(b.ctx.Device, b.Buf.Memory)
		b.HostAddr = nil
	}
	b.ctx.destroyBuffer(b.Buf)
	b.Buf = nil
}

// findMemoryType returns the first memory type compatible with a buffer
// created from info that has all the requested property flags.
func findMemoryType(ctx *DeviceContext, info vk.BufferCreateInfo, required vk.MemoryPropertyFlags) uint32 {
	var buffer vk.Buffer
	mustVk("vkCreateBuffer", vk.CreateBuffer(ctx.Device, &info, nil, &buffer))
	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(ctx.Device, buffer, &memReqs)
	memReqs.Deref()
	vk.DestroyBuffer(ctx.Device, buffer, nil)

	typeBits := memReqs.MemoryTypeBits
	for k, profile := range memoryTypeProfiles(ctx.PhysicalDevice) {
		if typeBits&(1<<uint(k)) == 0 {
			continue
		}
		if profile.flags&required == required {
			return uint32(k)
		}
	}
	klog.Fatalf("vulkan: requested memory type not found on device %q", ctx.Props.DeviceName)
	return 0
}

// getOrAllocate returns the cached buffer for deviceID, growing it when size
// exceeds the current capacity. Shrinking never happens. When growing with
// syncBeforeRealloc set, pending deferred work that may still reference the
// old buffer is synchronized first; staging buffers skip this because their
// users synchronize right after the copy is recorded.
func (tc *ThreadContext) getOrAllocate(deviceID int, size int, usage vk.BufferUsageFlags,
	memTypeIndex uint32, buffers map[int]*HostVisibleBuffer, syncBeforeRealloc bool) *HostVisibleBuffer {
	ctx := tc.api.context(deviceID)
	buf := buffers[deviceID]
	if buf == nil {
		buf = &HostVisibleBuffer{ctx: ctx}
		buffers[deviceID] = buf
	}

	if buf.Buf != nil && buf.Size < size {
		if syncBeforeRealloc {
			tc.Stream(deviceID).Synchronize()
		}
		deleteHostVisibleBuffer(buf)
	}

	if buf.HostAddr == nil {
		buf.Buf = ctx.createBuffer(size, usage, memTypeIndex)
		mustVk("vkMapMemory",
			vk.MapMemory(ctx.Device, buf.Buf.Memory, 0, vk.DeviceSize(size), 0, &buf.HostAddr))
		buf.Size = size
	}
	return buf
}
