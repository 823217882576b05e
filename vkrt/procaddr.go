package vkrt

/*
#include <stdint.h>
#include <stdlib.h>

// Trampolines for Vulkan commands the binding does not wrap, resolved at
// runtime through vkGetInstanceProcAddr / vkGetDeviceProcAddr. Handles are
// passed as 64-bit words: dispatchable and non-dispatchable handles are both
// 64 bits wide on the targets this runtime supports, and integer and pointer
// arguments share the same call ABI there.

typedef void (*vkrtVoidFn)(void);

// The binding's loader entry points, populated by vk.Init and vk.InitInstance.
extern vkrtVoidFn (*vgo_vkGetInstanceProcAddr)(uint64_t, const char *);
extern vkrtVoidFn (*vgo_vkGetDeviceProcAddr)(uint64_t, const char *);

static void *vkrtInstanceProc(uint64_t instance, const char *name) {
	if (vgo_vkGetInstanceProcAddr == 0) {
		return 0;
	}
	return (void *)vgo_vkGetInstanceProcAddr(instance, name);
}

static void *vkrtDeviceProc(uint64_t device, const char *name) {
	if (vgo_vkGetDeviceProcAddr == 0) {
		return 0;
	}
	return (void *)vgo_vkGetDeviceProcAddr(device, name);
}

static void vkrtCallQuery(void *fn, uint64_t handle, void *out) {
	((void (*)(uint64_t, void *))fn)(handle, out);
}

static void vkrtCallQueryInfo(void *fn, uint64_t handle, void *info, void *out) {
	((void (*)(uint64_t, void *, void *))fn)(handle, info, out);
}

static int32_t vkrtCallCreateTemplate(void *fn, uint64_t device, void *info, uint64_t *out) {
	return ((int32_t (*)(uint64_t, void *, void *, uint64_t *))fn)(device, info, (void *)0, out);
}

static void vkrtCallDestroyTemplate(void *fn, uint64_t device, uint64_t templ) {
	((void (*)(uint64_t, uint64_t, void *))fn)(device, templ, (void *)0);
}

static void vkrtCallPushTemplate(void *fn, uint64_t cmd, uint64_t templ, uint64_t layout, uint32_t set, void *data) {
	((void (*)(uint64_t, uint64_t, uint64_t, uint32_t, void *))fn)(cmd, templ, layout, set, data);
}
*/
import "C"

import (
	"unsafe"

	vk "github.com/goki/vulkan"
)

// handleWord reads a Vulkan handle as a 64-bit word, whichever of pointer or
// integer representation the binding uses for it.
func handleWord[T any](h T) uint64 {
	return *(*uint64)(unsafe.Pointer(&h))
}

// instanceProcs holds the instance-level entry points resolved after instance
// creation. A nil entry means the loader does not provide the command, and
// callers fall back to the core 1.0 path.
type instanceProcs struct {
	getPhysicalDeviceProperties2 unsafe.Pointer
	getPhysicalDeviceFeatures2   unsafe.Pointer
}

func loadInstanceProcs(instance vk.Instance) instanceProcs {
	proc := func(names ...string) unsafe.Pointer {
		for _, name := range names {
			cname := C.CString(name)
			fn := C.vkrtInstanceProc(C.uint64_t(handleWord(instance)), cname)
			C.free(unsafe.Pointer(cname))
			if fn != nil {
				return fn
			}
		}
		return nil
	}
	return instanceProcs{
		getPhysicalDeviceProperties2: proc("vkGetPhysicalDeviceProperties2", "vkGetPhysicalDeviceProperties2KHR"),
		getPhysicalDeviceFeatures2:   proc("vkGetPhysicalDeviceFeatures2", "vkGetPhysicalDeviceFeatures2KHR"),
	}
}

func (p instanceProcs) hasProperties2() bool {
	return p.getPhysicalDeviceProperties2 != nil && p.getPhysicalDeviceFeatures2 != nil
}

// queryProperties2 calls vkGetPhysicalDeviceProperties2 with whatever pNext
// chain the caller set up. Chained structs must each be PassRef'd by the
// caller and Deref'd after.
func (p instanceProcs) queryProperties2(phys vk.PhysicalDevice, props2 *vk.PhysicalDeviceProperties2) {
	ref, _ := props2.PassRef()
	C.vkrtCallQuery(p.getPhysicalDeviceProperties2, C.uint64_t(handleWord(phys)), unsafe.Pointer(ref))
	props2.Deref()
}

func (p instanceProcs) queryFeatures2(phys vk.PhysicalDevice, features2 *vk.PhysicalDeviceFeatures2) {
	ref, _ := features2.PassRef()
	C.vkrtCallQuery(p.getPhysicalDeviceFeatures2, C.uint64_t(handleWord(phys)), unsafe.Pointer(ref))
	features2.Deref()
}

// deviceProcs holds the device-level entry points resolved after logical
// device creation. The descriptor update template trio backs the immediate
// dispatch path; getBufferMemoryRequirements2 backs dedicated allocation.
// Capabilities depending on an unresolved entry are turned off.
type deviceProcs struct {
	getBufferMemoryRequirements2     unsafe.Pointer
	createDescriptorUpdateTemplate   unsafe.Pointer
	destroyDescriptorUpdateTemplate  unsafe.Pointer
	cmdPushDescriptorSetWithTemplate unsafe.Pointer
}

func loadDeviceProcs(device vk.Device) deviceProcs {
	proc := func(names ...string) unsafe.Pointer {
		for _, name := range names {
			cname := C.CString(name)
			fn := C.vkrtDeviceProc(C.uint64_t(handleWord(device)), cname)
			C.free(unsafe.Pointer(cname))
			if fn != nil {
				return fn
			}
		}
		return nil
	}
	return deviceProcs{
		getBufferMemoryRequirements2:     proc("vkGetBufferMemoryRequirements2", "vkGetBufferMemoryRequirements2KHR"),
		createDescriptorUpdateTemplate:   proc("vkCreateDescriptorUpdateTemplate", "vkCreateDescriptorUpdateTemplateKHR"),
		destroyDescriptorUpdateTemplate:  proc("vkDestroyDescriptorUpdateTemplate", "vkDestroyDescriptorUpdateTemplateKHR"),
		cmdPushDescriptorSetWithTemplate: proc("vkCmdPushDescriptorSetWithTemplateKHR", "vkCmdPushDescriptorSetWithTemplate"),
	}
}

func (p deviceProcs) hasDescriptorTemplates() bool {
	return p.createDescriptorUpdateTemplate != nil &&
		p.destroyDescriptorUpdateTemplate != nil &&
		p.cmdPushDescriptorSetWithTemplate != nil
}

func (ctx *DeviceContext) getBufferMemoryRequirements2(info *vk.BufferMemoryRequirementsInfo2, reqs *vk.MemoryRequirements2) {
	infoRef, _ := info.PassRef()
	reqsRef, _ := reqs.PassRef()
	C.vkrtCallQueryInfo(ctx.procs.getBufferMemoryRequirements2,
		C.uint64_t(handleWord(ctx.Device)), unsafe.Pointer(infoRef), unsafe.Pointer(reqsRef))
	reqs.Deref()
}

func (ctx *DeviceContext) createDescriptorUpdateTemplate(info *vk.DescriptorUpdateTemplateCreateInfo) uint64 {
	ref, _ := info.PassRef()
	var out C.uint64_t
	ret := C.vkrtCallCreateTemplate(ctx.procs.createDescriptorUpdateTemplate,
		C.uint64_t(handleWord(ctx.Device)), unsafe.Pointer(ref), &out)
	mustVk("vkCreateDescriptorUpdateTemplateKHR", vk.Result(ret))
	return uint64(out)
}

func (ctx *DeviceContext) destroyDescriptorUpdateTemplate(templ uint64) {
	C.vkrtCallDestroyTemplate(ctx.procs.destroyDescriptorUpdateTemplate,
		C.uint64_t(handleWord(ctx.Device)), C.uint64_t(templ))
}

func (ctx *DeviceContext) cmdPushDescriptorSetWithTemplate(cmd vk.CommandBuffer, templ uint64,
	layout vk.PipelineLayout, set uint32, data unsafe.Pointer) {
	C.vkrtCallPushTemplate(ctx.procs.cmdPushDescriptorSetWithTemplate,
		C.uint64_t(handleWord(cmd)), C.uint64_t(templ), C.uint64_t(handleWord(layout)),
		C.uint32_t(set), data)
}
