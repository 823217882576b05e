// Package vkrt implements a Vulkan compute dispatch runtime: device discovery
// and selection, device-local and host-visible buffer management, compute
// pipeline caching and kernel dispatch over pre-compiled SPIR-V shaders.
//
// The entry point is NewDeviceAPI, which creates the Vulkan instance and one
// logical device per usable physical device. Buffers and kernels are driven
// through a ThreadContext, which owns the per-device submission streams and
// the host-visible staging and uniform buffers. A ThreadContext is not safe
// for concurrent use; create one per goroutine that talks to the GPU.
//
//	api := must.M1(vkrt.NewDeviceAPI(nil))
//	defer api.Close()
//	tc := api.NewThreadContext()
//	defer tc.Close()
//
//	buf := api.AllocBuffer(0, 1024)
//	api.CopyFromHost(tc, 0, buf, 0, data)
//	...
//	api.FreeBuffer(tc, 0, buf)
//
// Kernels come from a Module, a container of SPIR-V shaders plus per-function
// argument signatures, either built in memory with NewModule or deserialized
// with LoadModule.
//
// Error handling follows a two-tier policy: NewDeviceAPI returns an error when
// the environment has no usable Vulkan implementation, and operations return
// errors for caller mistakes (bad argument types, unknown function names).
// Native Vulkan failures after successful initialization indicate a broken
// driver or an exhausted device and are fatal.
package vkrt
