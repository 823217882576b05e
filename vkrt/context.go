package vkrt

import (
	"sync"

	vk "github.com/goki/vulkan"
	"k8s.io/klog/v2"
)

// DeviceContext holds the per-device Vulkan state: the logical device, its
// single compute queue and the memory type indices selected at initialization.
type DeviceContext struct {
	// ID is the device's index in the DeviceAPI registry. Buffers record it
	// so copies can reject endpoints from another device.
	ID int

	PhysicalDevice vk.PhysicalDevice
	Device         vk.Device
	Queue          vk.Queue

	// procs holds the extension entry points resolved for this device.
	procs deviceProcs

	// queueMu serializes submissions: a VkQueue must not be used from
	// multiple threads at once.
	queueMu sync.Mutex

	QueueFamilyIndex uint32

	// StagingMemTypeIndex is the host-visible memory type used for staging
	// and CoherentStaging records whether it is host-coherent (if not, maps
	// need explicit flush/invalidate).
	StagingMemTypeIndex uint32
	CoherentStaging     bool

	// ComputeMemTypeIndex is the device-local memory type used for compute
	// storage buffers.
	ComputeMemTypeIndex uint32

	Props DeviceProperties

	useImmediate bool
}

// UseImmediate reports whether kernels on this device dispatch through push
// descriptors recorded immediately, rather than through a queued descriptor
// set bound at synchronization time. Decided once at initialization.
func (ctx *DeviceContext) UseImmediate() bool { return ctx.useImmediate }

// computeQueueFamilies returns the indices of queue families usable for
// compute, most preferred first. Compute-only families come before combined
// compute+graphics ones: on some devices (e.g. Mesa RADV) keeping off the
// graphics queue gives better responsiveness for concurrent display work.
func computeQueueFamilies(families []vk.QueueFamilyProperties) []uint32 {
	var result []uint32
	for i, qf := range families {
		if qf.QueueFlags&vk.QueueFlags(vk.QueueComputeBit) != 0 &&
			qf.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			result = append(result, uint32(i))
		}
	}
	for i, qf := range families {
		if qf.QueueFlags&vk.QueueFlags(vk.QueueComputeBit) != 0 &&
			qf.QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			result = append(result, uint32(i))
		}
	}
	return result
}

// memoryTypeProfile is the subset of VkMemoryType relevant for ranking,
// with the owning heap size resolved.
type memoryTypeProfile struct {
	flags    vk.MemoryPropertyFlags
	heapSize vk.DeviceSize
}

// minRankedHeapSize excludes degenerate heaps from memory-type ranking.
const minRankedHeapSize = 1024

// rankStagingMemory picks the memory type for staging buffers: host-visible,
// allowed by typeBits and backed by a non-degenerate heap, preferring
// host-cached types. It also reports whether the winner is host-coherent.
func rankStagingMemory(types []memoryTypeProfile, typeBits uint32) (winner int, coherent bool, ok bool) {
	winRank := -1
	for k, ty := range types {
		if ty.flags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) == 0 {
			continue
		}
		if typeBits&(1<<uint(k)) == 0 {
			continue
		}
		if ty.heapSize < minRankedHeapSize {
			continue
		}
		rank := int(ty.flags & vk.MemoryPropertyFlags(vk.MemoryPropertyHostCachedBit))
		if rank > winRank {
			winRank = rank
			winner = k
			coherent = ty.flags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit) != 0
		}
	}
	return winner, coherent, winRank >= 0
}

// rankComputeMemory picks the memory type for device-local compute buffers,
// preferring types that are not host-visible.
func rankComputeMemory(types []memoryTypeProfile, typeBits uint32) (winner int, ok bool) {
	winRank := -1
	for k, ty := range types {
		if ty.flags&vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit) == 0 {
			continue
		}
		if typeBits&(1<<uint(k)) == 0 {
			continue
		}
		if ty.heapSize < minRankedHeapSize {
			continue
		}
		rank := 0
		if ty.flags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) == 0 {
			rank = 1
		}
		if rank > winRank {
			winRank = rank
			winner = k
		}
	}
	return winner, winRank >= 0
}

// memoryTypeProfiles flattens the physical device memory properties for
// ranking.
func memoryTypeProfiles(phys vk.PhysicalDevice) []memoryTypeProfile {
	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(phys, &memProps)
	memProps.Deref()

	profiles := make([]memoryTypeProfile, memProps.MemoryTypeCount)
	for k := range profiles {
		memProps.MemoryTypes[k].Deref()
		heapIndex := memProps.MemoryTypes[k].HeapIndex
		memProps.MemoryHeaps[heapIndex].Deref()
		profiles[k] = memoryTypeProfile{
			flags:    memProps.MemoryTypes[k].PropertyFlags,
			heapSize: memProps.MemoryHeaps[heapIndex].Size,
		}
	}
	return profiles
}

// probeMemoryTypeBits creates a throwaway buffer with the given usage and
// returns its memory-type-bitmask requirement.
func (ctx *DeviceContext) probeMemoryTypeBits(usage vk.BufferUsageFlags) uint32 {
	info := ctx.makeBufferCreateInfo(minRankedHeapSize, usage)
	var buffer vk.Buffer
	mustVk("vkCreateBuffer", vk.CreateBuffer(ctx.Device, &info, nil, &buffer))
	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(ctx.Device, buffer, &memReqs)
	memReqs.Deref()
	vk.DestroyBuffer(ctx.Device, buffer, nil)
	return memReqs.MemoryTypeBits
}

// selectMemoryTypes fills StagingMemTypeIndex, CoherentStaging and
// ComputeMemTypeIndex. Both rankings are constrained by the staging probe's
// memory-type-bitmask, so that the choices stay valid for transfer use.
func (ctx *DeviceContext) selectMemoryTypes() {
	stagingBits := ctx.probeMemoryTypeBits(
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit | vk.BufferUsageTransferDstBit))

	profiles := memoryTypeProfiles(ctx.PhysicalDevice)

	staging, coherent, ok := rankStagingMemory(profiles, stagingBits)
	if !ok {
		klog.Fatalf("vulkan: cannot find suitable staging memory on device %q", ctx.Props.DeviceName)
	}
	ctx.StagingMemTypeIndex = uint32(staging)
	ctx.CoherentStaging = coherent

	compute, ok := rankComputeMemory(profiles, stagingBits)
	if !ok {
		klog.Fatalf("vulkan: cannot find suitable local memory on device %q", ctx.Props.DeviceName)
	}
	ctx.ComputeMemTypeIndex = uint32(compute)
}

func (ctx *DeviceContext) makeBufferCreateInfo(nbytes int, usage vk.BufferUsageFlags) vk.BufferCreateInfo {
	return vk.BufferCreateInfo{
		SType:                 vk.StructureTypeBufferCreateInfo,
		Size:                  vk.DeviceSize(nbytes),
		Usage:                 usage,
		SharingMode:           vk.SharingModeExclusive,
		QueueFamilyIndexCount: 1,
		PQueueFamilyIndices:   []uint32{ctx.QueueFamilyIndex},
	}
}

func (ctx *DeviceContext) destroy() {
	if ctx.Device != nil {
		vk.DeviceWaitIdle(ctx.Device)
		vk.DestroyDevice(ctx.Device, nil)
		ctx.Device = nil
	}
}
