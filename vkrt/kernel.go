package vkrt

import (
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"
)

// KernelFunc dispatches one kernel of a Module. Launch arguments are the
// function's buffer arguments (*DeviceBuffer), then its scalars, then one
// integer per thread axis tag.
type KernelFunc struct {
	m    *Module
	name string
	info FunctionInfo

	numBufferArgs int
	numPackArgs   int
	axes          ThreadAxisConfig

	// Per-device pipeline memo, so repeat launches skip the module cache
	// lock.
	mu     sync.Mutex
	scache [MaxDevices]*Pipeline
}

// Name returns the kernel's name.
func (k *KernelFunc) Name() string { return k.name }

// rawDescriptorBufferInfo is VkDescriptorBufferInfo with C layout, for the
// push descriptor template data blob.
type rawDescriptorBufferInfo struct {
	buffer vk.Buffer
	offset vk.DeviceSize
	rang   vk.DeviceSize
}

func (k *KernelFunc) pipelineFor(tc *ThreadContext, deviceID int) *Pipeline {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.scache[deviceID] == nil {
		k.scache[deviceID] = k.m.pipeline(tc, deviceID, k.name)
	}
	return k.scache[deviceID]
}

// Launch dispatches the kernel on deviceID through the given context. In
// immediate mode the commands are recorded right away; in deferred mode they
// are queued on the stream until the next Synchronize. Either way nothing is
// guaranteed to have executed until the stream synchronizes.
func (k *KernelFunc) Launch(tc *ThreadContext, deviceID int, args ...any) error {
	if !k.m.api.HasDevice(deviceID) {
		return errors.Errorf("invalid device id %d", deviceID)
	}
	pipe := k.pipelineFor(tc, deviceID)
	ctx := k.m.api.context(deviceID)

	wl, err := k.axes.Extract(args)
	if err != nil {
		return errors.WithMessagef(err, "launching %q", k.name)
	}

	buffers := make([]vk.Buffer, 0, k.numBufferArgs+1)
	for i := 0; i < k.numBufferArgs; i++ {
		buf, ok := args[i].(*DeviceBuffer)
		if !ok {
			return errors.Errorf("launching %q: argument %d: expected *DeviceBuffer, got %T",
				k.name, i, args[i])
		}
		buffers = append(buffers, buf.Buffer)
	}

	packed, err := packScalars(k.info.ArgTypes[k.numBufferArgs:],
		args[k.numBufferArgs:k.numBufferArgs+k.numPackArgs])
	if err != nil {
		return errors.WithMessagef(err, "launching %q", k.name)
	}
	scalarBytes := k.numPackArgs * argUnionSize

	if pipe.useUBO {
		ubo := tc.UniformBuffer(deviceID, scalarBytes)
		buffers = append(buffers, ubo.Buf.Buffer)
	}

	if ctx.UseImmediate() {
		k.launchImmediate(tc, deviceID, ctx, pipe, wl, buffers, packed, scalarBytes)
		return nil
	}
	k.launchDeferred(tc, deviceID, ctx, pipe, wl, buffers, packed, scalarBytes)
	return nil
}

func (k *KernelFunc) launchImmediate(tc *ThreadContext, deviceID int, ctx *DeviceContext,
	pipe *Pipeline, wl ThreadWorkload, buffers []vk.Buffer, packed []ArgUnion64, scalarBytes int) {

	infos := make([]rawDescriptorBufferInfo, len(buffers))
	for i, buf := range buffers {
		infos[i] = rawDescriptorBufferInfo{
			buffer: buf,
			offset: 0,
			rang:   vk.DeviceSize(vk.WholeSize),
		}
	}

	tc.Stream(deviceID).Launch(func(state *StreamState) {
		vk.CmdBindPipeline(state.CmdBuffer, vk.PipelineBindPointCompute, pipe.pipeline)
		ctx.cmdPushDescriptorSetWithTemplate(state.CmdBuffer, pipe.updateTemplate,
			pipe.pipelineLayout, 0, unsafe.Pointer(&infos[0]))

		if pipe.useUBO {
			ubo := tc.UniformBuffer(deviceID, scalarBytes)
			copy(ubo.Bytes(), argUnionBytes(packed))
		} else if len(packed) > 0 {
			vk.CmdPushConstants(state.CmdBuffer, pipe.pipelineLayout,
				vk.ShaderStageFlags(vk.ShaderStageComputeBit), 0, uint32(scalarBytes),
				unsafe.Pointer(&packed[0]))
		}

		vk.CmdDispatch(state.CmdBuffer, wl.GridDim(0), wl.GridDim(1), wl.GridDim(2))
		recordPostDispatchBarrier(state.CmdBuffer)
	})
}

func (k *KernelFunc) launchDeferred(tc *ThreadContext, deviceID int, ctx *DeviceContext,
	pipe *Pipeline, wl ThreadWorkload, buffers []vk.Buffer, packed []ArgUnion64, scalarBytes int) {

	initializer := func() {
		writes := make([]vk.WriteDescriptorSet, len(buffers))
		for i, buf := range buffers {
			descType := vk.DescriptorTypeStorageBuffer
			if pipe.useUBO && i == len(buffers)-1 {
				// The trailing binding carries the scalar UBO.
				descType = vk.DescriptorTypeUniformBuffer
			}
			writes[i] = vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          pipe.descriptorSet,
				DstBinding:      uint32(i),
				DescriptorCount: 1,
				DescriptorType:  descType,
				PBufferInfo: []vk.DescriptorBufferInfo{{
					Buffer: buf,
					Offset: 0,
					Range:  vk.DeviceSize(vk.WholeSize),
				}},
			}
		}
		vk.UpdateDescriptorSets(ctx.Device, uint32(len(writes)), writes, 0, nil)
	}

	kernel := func(state *StreamState) {
		vk.CmdBindPipeline(state.CmdBuffer, vk.PipelineBindPointCompute, pipe.pipeline)
		vk.CmdBindDescriptorSets(state.CmdBuffer, vk.PipelineBindPointCompute,
			pipe.pipelineLayout, 0, 1, []vk.DescriptorSet{pipe.descriptorSet}, 0, nil)

		if pipe.useUBO {
			ubo := tc.UniformBuffer(deviceID, scalarBytes)
			copy(ubo.Bytes(), argUnionBytes(packed))
		} else if len(packed) > 0 {
			vk.CmdPushConstants(state.CmdBuffer, pipe.pipelineLayout,
				vk.ShaderStageFlags(vk.ShaderStageComputeBit), 0, uint32(scalarBytes),
				unsafe.Pointer(&packed[0]))
		}

		vk.CmdDispatch(state.CmdBuffer, wl.GridDim(0), wl.GridDim(1), wl.GridDim(2))
		recordPostDispatchBarrier(state.CmdBuffer)
	}

	tc.Stream(deviceID).LaunchDeferred(initializer, kernel, streamToken{
		descriptorSet: pipe.descriptorSet,
		buffers:       buffers,
	})
}

// argUnionBytes views packed scalar slots as raw bytes.
func argUnionBytes(packed []ArgUnion64) []byte {
	if len(packed) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&packed[0])), len(packed)*argUnionSize)
}
