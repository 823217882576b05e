package vkrt

import (
	"slices"
	"unsafe"

	vk "github.com/goki/vulkan"
)

// SPIR-V versions, encoded the way the SPIR-V "Versions and Formats" section
// encodes them.
const (
	SPIRV10 uint32 = 0x10000
	SPIRV13 uint32 = 0x10300
	SPIRV14 uint32 = 0x10400
	SPIRV15 uint32 = 0x10500
)

var (
	apiVersion11 = vk.MakeVersion(1, 1, 0)
	apiVersion12 = vk.MakeVersion(1, 2, 0)
)

// DeviceProperties is the capability and limit surface of one device, frozen
// at initialization. Kernel compilers consume this to decide what a generated
// shader may use.
type DeviceProperties struct {
	// Feature support. Float32 and Int32 are mandatory in Vulkan compute and
	// have no flag here.
	SupportsFloat16 bool
	SupportsFloat64 bool
	SupportsInt8    bool
	SupportsInt16   bool
	SupportsInt64   bool

	Supports8BitBuffer                bool
	Supports16BitBuffer               bool
	SupportsStorageBufferStorageClass bool

	// SupportsPushDescriptor selects the immediate dispatch path. It requires
	// VK_KHR_push_descriptor and VK_KHR_descriptor_update_template, plus the
	// resolved template entry points, and honors the DisablePushDescriptor
	// option.
	SupportsPushDescriptor bool

	// SupportsDedicatedAllocation requires both
	// VK_KHR_get_memory_requirements2 and VK_KHR_dedicated_allocation, and
	// honors the DisableDedicatedAllocation option.
	SupportsDedicatedAllocation bool

	// SubgroupOperations holds the supported subgroup operation bits when the
	// compute stage supports subgroups, else zero.
	SubgroupOperations uint32

	// WarpSize is the subgroup size, at least 1 even when not queryable.
	WarpSize uint32

	// Physical device limits.
	MaxThreadsPerBlock        uint32
	MaxBlockSize              [3]uint32
	MaxPushConstantsSize      uint32
	MaxUniformBufferRange     uint32
	MaxStorageBufferRange     uint32
	MaxPerStageStorageBuffers uint32
	MaxSharedMemoryPerBlock   uint32

	DeviceName    string
	DriverVersion uint32

	// APIVersion is the Vulkan version shaders may target. It starts from the
	// driver's advertised version and is clamped down to the driver's
	// conformance version when VK_KHR_driver_properties is available.
	APIVersion uint32

	// MaxSPIRVVersion is derived from APIVersion and VK_KHR_spirv_1_4.
	MaxSPIRVVersion uint32
}

// APIVersionString renders APIVersion as "major.minor.patch".
func (p DeviceProperties) APIVersionString() string { return VersionString(p.APIVersion) }

// DriverVersionString renders DriverVersion as "major.minor.patch". Some
// vendors pack the driver version differently; this uses the standard layout.
func (p DeviceProperties) DriverVersionString() string { return VersionString(p.DriverVersion) }

// hasExtension reports whether name is in either the enabled instance or
// device extension lists.
func hasExtension(instanceExts, deviceExts []string, name string) bool {
	return slices.Contains(instanceExts, name) || slices.Contains(deviceExts, name)
}

// queryDeviceProperties fills a DeviceProperties from the physical device,
// preferring the VK_KHR_get_physical_device_properties2 query path and
// falling back to the core 1.0 queries when the extension or its resolved
// entry points are unavailable.
func queryDeviceProperties(phys vk.PhysicalDevice, instanceExts, deviceExts []string,
	opts *Options, procs instanceProcs) DeviceProperties {
	hasExt := func(name string) bool { return hasExtension(instanceExts, deviceExts, name) }

	var base vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(phys, &base)
	base.Deref()
	base.Limits.Deref()

	driver := vk.PhysicalDeviceDriverProperties{SType: vk.StructureTypePhysicalDeviceDriverProperties}
	subgroup := vk.PhysicalDeviceSubgroupProperties{SType: vk.StructureTypePhysicalDeviceSubgroupProperties}

	features2 := vk.PhysicalDeviceFeatures2{SType: vk.StructureTypePhysicalDeviceFeatures2}
	storage8Bit := vk.PhysicalDevice8BitStorageFeatures{SType: vk.StructureTypePhysicalDevice8bitStorageFeatures}
	storage16Bit := vk.PhysicalDevice16BitStorageFeatures{SType: vk.StructureTypePhysicalDevice16bitStorageFeatures}
	float16Int8 := vk.PhysicalDeviceFloat16Int8Features{SType: vk.StructureTypePhysicalDeviceFloat16Int8Features}

	if hasExt("VK_KHR_get_physical_device_properties2") && procs.hasProperties2() {
		props2 := vk.PhysicalDeviceProperties2{SType: vk.StructureTypePhysicalDeviceProperties2}
		var next unsafe.Pointer
		if base.ApiVersion >= apiVersion11 {
			subgroup.PNext = next
			ref, _ := subgroup.PassRef()
			next = unsafe.Pointer(ref)
		}
		if hasExt("VK_KHR_driver_properties") {
			driver.PNext = next
			ref, _ := driver.PassRef()
			next = unsafe.Pointer(ref)
		}
		props2.PNext = next
		procs.queryProperties2(phys, &props2)
		driver.Deref()
		driver.ConformanceVersion.Deref()
		subgroup.Deref()

		next = nil
		if hasExt("VK_KHR_8bit_storage") {
			storage8Bit.PNext = next
			ref, _ := storage8Bit.PassRef()
			next = unsafe.Pointer(ref)
		}
		if hasExt("VK_KHR_16bit_storage") {
			storage16Bit.PNext = next
			ref, _ := storage16Bit.PassRef()
			next = unsafe.Pointer(ref)
		}
		if hasExt("VK_KHR_shader_float16_int8") {
			float16Int8.PNext = next
			ref, _ := float16Int8.PassRef()
			next = unsafe.Pointer(ref)
		}
		features2.PNext = next
		procs.queryFeatures2(phys, &features2)
		features2.Features.Deref()
		storage8Bit.Deref()
		storage16Bit.Deref()
		float16Int8.Deref()
	} else {
		// Vulkan 1.0 fallback: only the core feature set is queryable, the
		// chained extension features stay reported as unsupported.
		vk.GetPhysicalDeviceFeatures(phys, &features2.Features)
		features2.Features.Deref()
	}

	// Subgroup operations only count when the compute stage supports them.
	subgroupOperations := uint32(0)
	if subgroup.SupportedStages&vk.ShaderStageFlags(vk.ShaderStageComputeBit) != 0 {
		subgroupOperations = uint32(subgroup.SupportedOperations)
	}
	warpSize := max(subgroup.SubgroupSize, 1)

	// By default target the maximum API version the driver advertises, but
	// when the conformance version is queryable, limit to the version that
	// actually passed the conformance tests.
	apiVersion := base.ApiVersion
	if hasExt("VK_KHR_driver_properties") {
		conformance := driver.ConformanceVersion
		if versionMajor(apiVersion) > uint32(conformance.Major) ||
			(versionMajor(apiVersion) == uint32(conformance.Major) &&
				versionMinor(apiVersion) > uint32(conformance.Minor)) {
			apiVersion = vk.MakeVersion(int(conformance.Major), int(conformance.Minor), 0)
		}
	}

	maxSPIRVVersion := SPIRV10
	switch {
	case apiVersion >= apiVersion12:
		maxSPIRVVersion = SPIRV15
	case hasExt("VK_KHR_spirv_1_4"):
		maxSPIRVVersion = SPIRV14
	case apiVersion >= apiVersion11:
		maxSPIRVVersion = SPIRV13
	}

	supportsPushDescriptor := hasExt("VK_KHR_push_descriptor") &&
		hasExt("VK_KHR_descriptor_update_template") && !opts.DisablePushDescriptor
	supportsDedicatedAllocation := hasExt("VK_KHR_get_memory_requirements2") &&
		hasExt("VK_KHR_dedicated_allocation") && !opts.DisableDedicatedAllocation

	return DeviceProperties{
		SupportsFloat16: float16Int8.ShaderFloat16 == vk.True,
		SupportsFloat64: features2.Features.ShaderFloat64 == vk.True,
		SupportsInt8:    float16Int8.ShaderInt8 == vk.True,
		SupportsInt16:   features2.Features.ShaderInt16 == vk.True,
		SupportsInt64:   features2.Features.ShaderInt64 == vk.True,

		Supports8BitBuffer:                storage8Bit.StorageBuffer8BitAccess == vk.True,
		Supports16BitBuffer:               storage16Bit.StorageBuffer16BitAccess == vk.True,
		SupportsStorageBufferStorageClass: hasExt("VK_KHR_storage_buffer_storage_class"),

		SupportsPushDescriptor:      supportsPushDescriptor,
		SupportsDedicatedAllocation: supportsDedicatedAllocation,

		SubgroupOperations: subgroupOperations,
		WarpSize:           warpSize,

		MaxThreadsPerBlock: base.Limits.MaxComputeWorkGroupInvocations,
		MaxBlockSize: [3]uint32{
			base.Limits.MaxComputeWorkGroupSize[0],
			base.Limits.MaxComputeWorkGroupSize[1],
			base.Limits.MaxComputeWorkGroupSize[2],
		},
		MaxPushConstantsSize:      base.Limits.MaxPushConstantsSize,
		MaxUniformBufferRange:     base.Limits.MaxUniformBufferRange,
		MaxStorageBufferRange:     base.Limits.MaxStorageBufferRange,
		MaxPerStageStorageBuffers: base.Limits.MaxPerStageDescriptorStorageBuffers,
		MaxSharedMemoryPerBlock:   base.Limits.MaxComputeSharedMemorySize,

		DeviceName:    trimNul(base.DeviceName[:]),
		DriverVersion: base.DriverVersion,

		APIVersion:      apiVersion,
		MaxSPIRVVersion: maxSPIRVVersion,
	}
}

// featureChain holds the feature structs enabled at device creation. The
// owner must keep it alive until vkCreateDevice returns, since the chained C
// structs belong to it.
type featureChain struct {
	features2    vk.PhysicalDeviceFeatures2
	storage8Bit  vk.PhysicalDevice8BitStorageFeatures
	storage16Bit vk.PhysicalDevice16BitStorageFeatures
	float16Int8  vk.PhysicalDeviceFloat16Int8Features

	head unsafe.Pointer
}

// newFeatureChain turns on exactly the features the query reported as
// supported. fc.head goes into VkDeviceCreateInfo.pNext; on the 1.0 fallback
// path use fc.features2.Features as pEnabledFeatures instead.
func newFeatureChain(props *DeviceProperties) *featureChain {
	fc := &featureChain{
		features2:    vk.PhysicalDeviceFeatures2{SType: vk.StructureTypePhysicalDeviceFeatures2},
		storage8Bit:  vk.PhysicalDevice8BitStorageFeatures{SType: vk.StructureTypePhysicalDevice8bitStorageFeatures},
		storage16Bit: vk.PhysicalDevice16BitStorageFeatures{SType: vk.StructureTypePhysicalDevice16bitStorageFeatures},
		float16Int8:  vk.PhysicalDeviceFloat16Int8Features{SType: vk.StructureTypePhysicalDeviceFloat16Int8Features},
	}

	needsFloat16Int8 := false
	if props.SupportsFloat16 {
		fc.float16Int8.ShaderFloat16 = vk.True
		needsFloat16Int8 = true
	}
	if props.SupportsInt8 {
		fc.float16Int8.ShaderInt8 = vk.True
		needsFloat16Int8 = true
	}
	if props.SupportsFloat64 {
		fc.features2.Features.ShaderFloat64 = vk.True
	}
	if props.SupportsInt16 {
		fc.features2.Features.ShaderInt16 = vk.True
	}
	if props.SupportsInt64 {
		fc.features2.Features.ShaderInt64 = vk.True
	}

	var next unsafe.Pointer
	if needsFloat16Int8 {
		fc.float16Int8.PNext = next
		ref, _ := fc.float16Int8.PassRef()
		next = unsafe.Pointer(ref)
	}
	if props.Supports16BitBuffer {
		fc.storage16Bit.StorageBuffer16BitAccess = vk.True
		fc.storage16Bit.PNext = next
		ref, _ := fc.storage16Bit.PassRef()
		next = unsafe.Pointer(ref)
	}
	if props.Supports8BitBuffer {
		fc.storage8Bit.StorageBuffer8BitAccess = vk.True
		fc.storage8Bit.PNext = next
		ref, _ := fc.storage8Bit.PassRef()
		next = unsafe.Pointer(ref)
	}
	fc.features2.PNext = next
	headRef, _ := fc.features2.PassRef()
	fc.head = unsafe.Pointer(headRef)
	return fc
}
