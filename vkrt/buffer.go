package vkrt

import (
	"sync/atomic"
	"unsafe"

	vk "github.com/goki/vulkan"
)

// DeviceBuffer is a Vulkan buffer with its backing device memory.
type DeviceBuffer struct {
	Buffer vk.Buffer
	Memory vk.DeviceMemory

	// Size in bytes as requested at allocation.
	Size int

	// deviceID is the registry index of the owning device. Copy operations
	// reject buffers from another device.
	deviceID int
}

// DeviceID returns the id of the device the buffer was allocated on.
func (buf *DeviceBuffer) DeviceID() int { return buf.deviceID }

var buffersAlive atomic.Int64

// BuffersAlive returns the number of device buffers currently allocated and
// tracked by vkrt. Useful to check for leaks in tests.
func BuffersAlive() int64 {
	return buffersAlive.Load()
}

// createBuffer allocates a buffer of nbytes bound to fresh device memory of
// the given memory type. When the device supports (and the user did not
// disable) VK_KHR_dedicated_allocation, buffers the driver prefers to back
// with a dedicated allocation get one.
func (ctx *DeviceContext) createBuffer(nbytes int, usage vk.BufferUsageFlags, memTypeIndex uint32) *DeviceBuffer {
	info := ctx.makeBufferCreateInfo(nbytes, usage)
	var buffer vk.Buffer
	mustVk("vkCreateBuffer", vk.CreateBuffer(ctx.Device, &info, nil, &buffer))

	useDedicated := false
	var dedicatedSize vk.DeviceSize
	if ctx.Props.SupportsDedicatedAllocation {
		dedicatedReqs := vk.MemoryDedicatedRequirements{SType: vk.StructureTypeMemoryDedicatedRequirements}
		dedRef, _ := dedicatedReqs.PassRef()
		reqs2 := vk.MemoryRequirements2{
			SType: vk.StructureTypeMemoryRequirements2,
			PNext: unsafe.Pointer(dedRef),
		}
		reqInfo := vk.BufferMemoryRequirementsInfo2{
			SType:  vk.StructureTypeBufferMemoryRequirementsInfo2,
			Buffer: buffer,
		}
		ctx.getBufferMemoryRequirements2(&reqInfo, &reqs2)
		reqs2.MemoryRequirements.Deref()
		dedicatedReqs.Deref()
		useDedicated = dedicatedReqs.RequiresDedicatedAllocation == vk.True ||
			dedicatedReqs.PrefersDedicatedAllocation == vk.True
		dedicatedSize = reqs2.MemoryRequirements.Size
	}

	var memory vk.DeviceMemory
	if useDedicated {
		dedicatedInfo := vk.MemoryDedicatedAllocateInfo{
			SType:  vk.StructureTypeMemoryDedicatedAllocateInfo,
			Buffer: buffer,
		}
		dedRef, _ := dedicatedInfo.PassRef()
		allocInfo := vk.MemoryAllocateInfo{
			SType:           vk.StructureTypeMemoryAllocateInfo,
			PNext:           unsafe.Pointer(dedRef),
			AllocationSize:  dedicatedSize,
			MemoryTypeIndex: memTypeIndex,
		}
		mustVk("vkAllocateMemory", vk.AllocateMemory(ctx.Device, &allocInfo, nil, &memory))
	} else {
		allocInfo := vk.MemoryAllocateInfo{
			SType:           vk.StructureTypeMemoryAllocateInfo,
			AllocationSize:  info.Size,
			MemoryTypeIndex: memTypeIndex,
		}
		mustVk("vkAllocateMemory", vk.AllocateMemory(ctx.Device, &allocInfo, nil, &memory))
	}
	mustVk("vkBindBufferMemory", vk.BindBufferMemory(ctx.Device, buffer, memory, 0))

	buffersAlive.Add(1)
	return &DeviceBuffer{Buffer: buffer, Memory: memory, Size: nbytes, deviceID: ctx.ID}
}

// destroyBuffer releases the buffer and its memory. The caller must ensure no
// submitted commands still reference it.
func (ctx *DeviceContext) destroyBuffer(buf *DeviceBuffer) {
	if buf == nil || buf.Buffer == vk.NullBuffer {
		return
	}
	vk.DestroyBuffer(ctx.Device, buf.Buffer, nil)
	vk.FreeMemory(ctx.Device, buf.Memory, nil)
	buf.Buffer = vk.NullBuffer
	buf.Memory = vk.NullDeviceMemory
	buffersAlive.Add(-1)
}
