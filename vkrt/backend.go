package vkrt

import (
	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// buffersOnDevice verifies every buffer was allocated on deviceID. Copies
// between devices are not possible in Vulkan, so a mismatched endpoint is a
// caller bug, reported fatally at the call sites.
func buffersOnDevice(op string, deviceID int, bufs ...*DeviceBuffer) error {
	for _, buf := range bufs {
		if buf.deviceID != deviceID {
			return errors.Errorf(
				"%s: buffer belongs to device %d, not device %d; cross-device copies are not supported",
				op, buf.deviceID, deviceID)
		}
	}
	return nil
}

// Backend is the device-facing surface consumed by code that moves data and
// synchronizes execution, decoupled from instance management. *DeviceAPI is
// the only implementation; the interface exists so higher layers can be
// tested against a fake.
type Backend interface {
	HasDevice(deviceID int) bool
	AllocBuffer(deviceID, nbytes int) *DeviceBuffer
	FreeBuffer(tc *ThreadContext, deviceID int, buf *DeviceBuffer)
	CopyFromHost(tc *ThreadContext, deviceID int, dst *DeviceBuffer, dstOffset int, src []byte)
	CopyToHost(tc *ThreadContext, deviceID int, dst []byte, src *DeviceBuffer, srcOffset int)
	CopyDeviceToDevice(tc *ThreadContext, deviceID int, dst *DeviceBuffer, dstOffset int, src *DeviceBuffer, srcOffset, nbytes int)
	Synchronize(tc *ThreadContext, deviceID int)
}

// AllocBuffer allocates a device-local storage buffer of nbytes usable as a
// kernel argument and as a transfer source or destination. A zero-size
// request allocates one byte; drivers misbehave on zero-size buffers.
func (api *DeviceAPI) AllocBuffer(deviceID, nbytes int) *DeviceBuffer {
	if nbytes == 0 {
		nbytes = 1
	}
	ctx := api.context(deviceID)
	usage := vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit |
		vk.BufferUsageTransferDstBit | vk.BufferUsageStorageBufferBit)
	return ctx.createBuffer(nbytes, usage, ctx.ComputeMemTypeIndex)
}

// FreeBuffer synchronizes the context's stream, so commands still referencing
// the buffer finish, then releases it.
func (api *DeviceAPI) FreeBuffer(tc *ThreadContext, deviceID int, buf *DeviceBuffer) {
	tc.Stream(deviceID).Synchronize()
	api.context(deviceID).destroyBuffer(buf)
}

// Synchronize flushes and waits for all work queued on the context's stream
// for the device.
func (api *DeviceAPI) Synchronize(tc *ThreadContext, deviceID int) {
	tc.Stream(deviceID).Synchronize()
}

// CopyFromHost copies src into dst at dstOffset through the context's staging
// buffer. The call synchronizes: the data is on the device when it returns.
func (api *DeviceAPI) CopyFromHost(tc *ThreadContext, deviceID int, dst *DeviceBuffer, dstOffset int, src []byte) {
	if len(src) == 0 {
		return
	}
	if err := buffersOnDevice("CopyFromHost", deviceID, dst); err != nil {
		klog.Fatalf("%+v", err)
	}
	staging := tc.StagingBuffer(deviceID, len(src))
	copy(staging.Bytes(), src)
	// Host-side flush so CPU writes are visible to the GPU.
	staging.Flush()

	stream := tc.Stream(deviceID)
	stream.Launch(func(state *StreamState) {
		hostBarrier := vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: 0,
			DstAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
		}
		vk.CmdPipelineBarrier(state.CmdBuffer,
			vk.PipelineStageFlags(vk.PipelineStageHostBit),
			vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			0, 1, []vk.MemoryBarrier{hostBarrier}, 0, nil, 0, nil)

		region := vk.BufferCopy{
			SrcOffset: 0,
			DstOffset: vk.DeviceSize(dstOffset),
			Size:      vk.DeviceSize(len(src)),
		}
		vk.CmdCopyBuffer(state.CmdBuffer, staging.Buf.Buffer, dst.Buffer, 1, []vk.BufferCopy{region})
	})
	// The staging buffer is reused by the next copy on this context, so wait
	// for the transfer before returning.
	stream.Synchronize()
}

// CopyToHost copies len(dst) bytes from src at srcOffset into dst through the
// context's staging buffer, synchronizing before the read back.
func (api *DeviceAPI) CopyToHost(tc *ThreadContext, deviceID int, dst []byte, src *DeviceBuffer, srcOffset int) {
	if len(dst) == 0 {
		return
	}
	if err := buffersOnDevice("CopyToHost", deviceID, src); err != nil {
		klog.Fatalf("%+v", err)
	}
	staging := tc.StagingBuffer(deviceID, len(dst))
	stream := tc.Stream(deviceID)
	stream.Launch(func(state *StreamState) {
		region := vk.BufferCopy{
			SrcOffset: vk.DeviceSize(srcOffset),
			DstOffset: 0,
			Size:      vk.DeviceSize(len(dst)),
		}
		vk.CmdCopyBuffer(state.CmdBuffer, src.Buffer, staging.Buf.Buffer, 1, []vk.BufferCopy{region})
	})
	stream.Synchronize()
	// Host-side invalidate so GPU writes are visible to the CPU.
	staging.Invalidate()
	copy(dst, staging.Bytes()[:len(dst)])
}

// CopyDeviceToDevice records a buffer-to-buffer copy on the device followed
// by a transfer barrier, without synchronizing. Cross-device copies are not
// possible in Vulkan.
func (api *DeviceAPI) CopyDeviceToDevice(tc *ThreadContext, deviceID int, dst *DeviceBuffer, dstOffset int, src *DeviceBuffer, srcOffset, nbytes int) {
	if err := buffersOnDevice("CopyDeviceToDevice", deviceID, dst, src); err != nil {
		klog.Fatalf("%+v", err)
	}
	tc.Stream(deviceID).Launch(func(state *StreamState) {
		region := vk.BufferCopy{
			SrcOffset: vk.DeviceSize(srcOffset),
			DstOffset: vk.DeviceSize(dstOffset),
			Size:      vk.DeviceSize(nbytes),
		}
		vk.CmdCopyBuffer(state.CmdBuffer, src.Buffer, dst.Buffer, 1, []vk.BufferCopy{region})

		barrier := vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
			DstAccessMask: vk.AccessFlags(vk.AccessTransferReadBit | vk.AccessTransferWriteBit |
				vk.AccessShaderReadBit | vk.AccessShaderWriteBit),
		}
		vk.CmdPipelineBarrier(state.CmdBuffer,
			vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			vk.PipelineStageFlags(vk.PipelineStageTransferBit|vk.PipelineStageComputeShaderBit),
			0, 1, []vk.MemoryBarrier{barrier}, 0, nil, 0, nil)
	})
}

// recordPostDispatchBarrier orders a dispatch's shader accesses before any
// following transfer or compute work.
func recordPostDispatchBarrier(cmd vk.CommandBuffer) {
	barrier := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: vk.AccessFlags(vk.AccessShaderWriteBit | vk.AccessShaderReadBit),
		DstAccessMask: vk.AccessFlags(vk.AccessTransferReadBit | vk.AccessTransferWriteBit |
			vk.AccessShaderReadBit | vk.AccessShaderWriteBit),
	}
	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		vk.PipelineStageFlags(vk.PipelineStageTransferBit|vk.PipelineStageComputeShaderBit),
		0, 1, []vk.MemoryBarrier{barrier}, 0, nil, 0, nil)
}
