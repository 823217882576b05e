// vkrtinfo lists the Vulkan compute devices visible to the runtime and the
// capabilities the kernel compiler would see: feature bits, SPIR-V version,
// limits and the selected memory types.
package main

import (
	"flag"
	"fmt"

	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	"github.com/govulkan/govkrt/vkrt"
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	api := must.M1(vkrt.NewDeviceAPI(nil))
	defer api.Close()

	fmt.Printf("%d compute device(s)\n", api.NumDevices())
	for deviceID := 0; deviceID < api.NumDevices(); deviceID++ {
		ctx := api.Context(deviceID)
		props := ctx.Props
		fmt.Printf("\nDevice #%d: %s\n", deviceID, props.DeviceName)
		fmt.Printf("  API version:        %s\n", props.APIVersionString())
		fmt.Printf("  Driver version:     %s\n", props.DriverVersionString())
		fmt.Printf("  Max SPIR-V:         0x%x\n", props.MaxSPIRVVersion)
		fmt.Printf("  Warp size:          %d\n", props.WarpSize)
		fmt.Printf("  Threads per block:  %d (max block %v)\n", props.MaxThreadsPerBlock, props.MaxBlockSize)
		fmt.Printf("  Push constants:     %d bytes\n", props.MaxPushConstantsSize)
		fmt.Printf("  Shared memory:      %d bytes per block\n", props.MaxSharedMemoryPerBlock)
		fmt.Printf("  Storage buffers:    %d per stage, max range %d\n",
			props.MaxPerStageStorageBuffers, props.MaxStorageBufferRange)
		fmt.Printf("  Float16/64:         %v/%v\n", props.SupportsFloat16, props.SupportsFloat64)
		fmt.Printf("  Int8/16/64:         %v/%v/%v\n", props.SupportsInt8, props.SupportsInt16, props.SupportsInt64)
		fmt.Printf("  8/16-bit buffers:   %v/%v\n", props.Supports8BitBuffer, props.Supports16BitBuffer)
		fmt.Printf("  Push descriptors:   %v (immediate dispatch: %v)\n",
			props.SupportsPushDescriptor, ctx.UseImmediate())
		fmt.Printf("  Dedicated alloc:    %v\n", props.SupportsDedicatedAllocation)
		fmt.Printf("  Queue family:       %d\n", ctx.QueueFamilyIndex)
		fmt.Printf("  Staging mem type:   %d (coherent: %v)\n", ctx.StagingMemTypeIndex, ctx.CoherentStaging)
		fmt.Printf("  Compute mem type:   %d\n", ctx.ComputeMemTypeIndex)
	}
}
