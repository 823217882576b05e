package vkrt

import (
	"slices"

	vk "github.com/goki/vulkan"
	"k8s.io/klog/v2"
)

// StreamState is the mutable recording state handed to launch closures.
type StreamState struct {
	CmdBuffer vk.CommandBuffer
}

// streamToken identifies a deferred kernel's binding: the descriptor set it
// uses and the buffers written into that set. Two deferred kernels may share
// a command buffer only if they do not rebind the same set to different
// buffers.
type streamToken struct {
	descriptorSet vk.DescriptorSet
	buffers       []vk.Buffer
}

// Stream records commands for one device into a single primary command
// buffer, submitted and fenced on Synchronize. Streams belong to a
// ThreadContext and are not safe for concurrent use.
type Stream struct {
	ctx     *DeviceContext
	cmdPool vk.CommandPool
	state   StreamState
	fence   vk.Fence

	// Deferred-mode bookkeeping, unused when ctx.UseImmediate().
	deferredKernels []func(*StreamState)
	deferredTokens  map[vk.DescriptorSet][]streamToken
}

func newStream(ctx *DeviceContext) *Stream {
	s := &Stream{
		ctx:            ctx,
		deferredTokens: make(map[vk.DescriptorSet][]streamToken),
	}

	poolInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: ctx.QueueFamilyIndex,
	}
	mustVk("vkCreateCommandPool", vk.CreateCommandPool(ctx.Device, &poolInfo, nil, &s.cmdPool))

	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        s.cmdPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cmdBuffers := make([]vk.CommandBuffer, 1)
	mustVk("vkAllocateCommandBuffers", vk.AllocateCommandBuffers(ctx.Device, &allocInfo, cmdBuffers))
	s.state.CmdBuffer = cmdBuffers[0]

	fenceInfo := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	mustVk("vkCreateFence", vk.CreateFence(ctx.Device, &fenceInfo, nil, &s.fence))

	s.begin()
	return s
}

func (s *Stream) begin() {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	mustVk("vkBeginCommandBuffer", vk.BeginCommandBuffer(s.state.CmdBuffer, &beginInfo))
}

// Launch records the kernel into the stream. In immediate mode it records
// right away; in deferred mode it is queued until the next Synchronize.
func (s *Stream) Launch(kernel func(*StreamState)) {
	if s.ctx.UseImmediate() {
		kernel(&s.state)
		return
	}
	s.deferredKernels = append(s.deferredKernels, kernel)
}

// LaunchDeferred queues a kernel whose descriptor set must be written before
// recording. If the same descriptor set is already pending with a different
// buffer binding, the stream synchronizes first; the initializer runs only
// when no pending kernel already bound the set to the same buffers.
func (s *Stream) LaunchDeferred(initializer func(), kernel func(*StreamState), token streamToken) {
	if s.ctx.UseImmediate() {
		klog.Fatal("vulkan: LaunchDeferred called on an immediate-mode stream")
	}

	sameSet := s.deferredTokens[token.descriptorSet]
	for _, pending := range sameSet {
		if !slices.Equal(pending.buffers, token.buffers) {
			s.Synchronize()
			break
		}
	}

	initialized := false
	for _, pending := range s.deferredTokens[token.descriptorSet] {
		if slices.Equal(pending.buffers, token.buffers) {
			initialized = true
			break
		}
	}
	if !initialized {
		initializer()
	}

	s.deferredKernels = append(s.deferredKernels, kernel)
	s.deferredTokens[token.descriptorSet] = append(s.deferredTokens[token.descriptorSet], token)
}

// fenceWaitTimeout bounds each vkWaitForFences call, about one second. The
// wait loops on timeout, so this only controls how often the loop spins.
const fenceWaitTimeout = uint64(1) << 30

// Synchronize replays any deferred kernels, submits the command buffer and
// blocks until the device signaled its fence, then resets the stream for the
// next batch of commands.
func (s *Stream) Synchronize() {
	if !s.ctx.UseImmediate() {
		for _, kernel := range s.deferredKernels {
			kernel(&s.state)
		}
		s.deferredKernels = s.deferredKernels[:0]
		clear(s.deferredTokens)
	}

	mustVk("vkEndCommandBuffer", vk.EndCommandBuffer(s.state.CmdBuffer))

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{s.state.CmdBuffer},
	}
	s.ctx.queueMu.Lock()
	ret := vk.QueueSubmit(s.ctx.Queue, 1, []vk.SubmitInfo{submitInfo}, s.fence)
	s.ctx.queueMu.Unlock()
	mustVk("vkQueueSubmit", ret)

	fences := []vk.Fence{s.fence}
	for {
		ret := vk.WaitForFences(s.ctx.Device, 1, fences, vk.True, fenceWaitTimeout)
		if ret == vk.Timeout {
			continue
		}
		mustVk("vkWaitForFences", ret)
		break
	}
	mustVk("vkResetFences", vk.ResetFences(s.ctx.Device, 1, fences))

	s.begin()
}

func (s *Stream) destroy() {
	vk.DestroyFence(s.ctx.Device, s.fence, nil)
	vk.FreeCommandBuffers(s.ctx.Device, s.cmdPool, 1, []vk.CommandBuffer{s.state.CmdBuffer})
	vk.DestroyCommandPool(s.ctx.Device, s.cmdPool, nil)
}
