package vkrt

import (
	vk "github.com/goki/vulkan"
	"k8s.io/klog/v2"

	"github.com/govulkan/govkrt/dtypes"
)

// Pipeline is one kernel compiled for one device: the shader module, its
// descriptor set layout, the pipeline itself, plus either a push descriptor
// update template (immediate mode) or an allocated descriptor set (deferred
// mode).
type Pipeline struct {
	ctx *DeviceContext

	shader              vk.ShaderModule
	descriptorSetLayout vk.DescriptorSetLayout
	descriptorPool      vk.DescriptorPool
	descriptorSet       vk.DescriptorSet
	pipelineLayout      vk.PipelineLayout
	pipeline            vk.Pipeline

	// updateTemplate is a VkDescriptorUpdateTemplate handle, held raw since
	// its commands are called through runtime-resolved entry points. Zero in
	// deferred mode.
	updateTemplate uint64

	// useUBO mirrors ShaderFlagUseUBO: scalars travel in a trailing uniform
	// buffer binding instead of push constants.
	useUBO bool
}

// bindingLayout is the descriptor shape derived from a function's signature:
// one storage buffer binding per Handle argument, plus a trailing uniform
// buffer binding when the shader reads its scalars from a UBO.
type bindingLayout struct {
	bindings  []vk.DescriptorSetLayoutBinding
	templates []vk.DescriptorUpdateTemplateEntry
	poolSizes []vk.DescriptorPoolSize

	numBuffers    int
	scalarBytes   int
	useUBO        bool
	totalBindings int
}

// descriptorBufferInfoSize is sizeof(VkDescriptorBufferInfo), used for the
// template entry offsets.
const descriptorBufferInfoSize = 24

// makeBindingLayout tallies the bindings, template entries and pool sizes for
// a function.
func makeBindingLayout(info FunctionInfo, useUBO bool) bindingLayout {
	bl := bindingLayout{useUBO: useUBO}

	addBinding := func(binding uint32, descType vk.DescriptorType) {
		found := false
		for i := range bl.poolSizes {
			if bl.poolSizes[i].Type == descType {
				bl.poolSizes[i].DescriptorCount++
				found = true
				break
			}
		}
		if !found {
			bl.poolSizes = append(bl.poolSizes, vk.DescriptorPoolSize{
				Type:            descType,
				DescriptorCount: 1,
			})
		}
		bl.bindings = append(bl.bindings, vk.DescriptorSetLayoutBinding{
			Binding:         binding,
			DescriptorType:  descType,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageComputeBit),
		})
		bl.templates = append(bl.templates, vk.DescriptorUpdateTemplateEntry{
			DstBinding:      binding,
			DstArrayElement: 0,
			DescriptorCount: 1,
			DescriptorType:  descType,
			Offset:          uint64(binding) * descriptorBufferInfoSize,
			Stride:          descriptorBufferInfoSize,
		})
	}

	numScalars := 0
	for _, dtype := range info.ArgTypes {
		if dtype == dtypes.Handle {
			addBinding(uint32(bl.numBuffers), vk.DescriptorTypeStorageBuffer)
			bl.numBuffers++
		} else {
			numScalars++
		}
	}
	bl.scalarBytes = numScalars * argUnionSize
	if useUBO {
		addBinding(uint32(bl.numBuffers), vk.DescriptorTypeUniformBuffer)
	}
	bl.totalBindings = len(bl.bindings)
	return bl
}

// pipeline returns the cached pipeline for (deviceID, name), building it on
// first use. Building in UBO mode also sizes the context's uniform buffer for
// the function's scalars.
func (m *Module) pipeline(tc *ThreadContext, deviceID int, name string) *Pipeline {
	return m.cache.getOrBuild(deviceID, name, func() *Pipeline {
		return m.buildPipeline(tc, deviceID, name)
	})
}

func (m *Module) buildPipeline(tc *ThreadContext, deviceID int, name string) *Pipeline {
	ctx := m.api.context(deviceID)
	shader, ok := m.shaders[name]
	if !ok {
		klog.Fatalf("vulkan: no shader for function %q", name)
	}
	info := m.funcs[name]

	pipe := &Pipeline{
		ctx:    ctx,
		useUBO: shader.Flags&ShaderFlagUseUBO != 0,
	}

	shaderInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(shader.Data) * 4),
		PCode:    shader.Data,
	}
	mustVk("vkCreateShaderModule", vk.CreateShaderModule(ctx.Device, &shaderInfo, nil, &pipe.shader))

	bl := makeBindingLayout(info, pipe.useUBO)
	if pipe.useUBO {
		tc.AllocateUniformBuffer(deviceID, bl.scalarBytes)
	}

	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bl.bindings)),
		PBindings:    bl.bindings,
	}
	if ctx.UseImmediate() {
		layoutInfo.Flags = vk.DescriptorSetLayoutCreateFlags(vk.DescriptorSetLayoutCreatePushDescriptorBit)
	}
	mustVk("vkCreateDescriptorSetLayout",
		vk.CreateDescriptorSetLayout(ctx.Device, &layoutInfo, nil, &pipe.descriptorSetLayout))

	if !ctx.UseImmediate() {
		poolInfo := vk.DescriptorPoolCreateInfo{
			SType:         vk.StructureTypeDescriptorPoolCreateInfo,
			Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
			MaxSets:       1,
			PoolSizeCount: uint32(len(bl.poolSizes)),
			PPoolSizes:    bl.poolSizes,
		}
		mustVk("vkCreateDescriptorPool",
			vk.CreateDescriptorPool(ctx.Device, &poolInfo, nil, &pipe.descriptorPool))

		allocInfo := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     pipe.descriptorPool,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{pipe.descriptorSetLayout},
		}
		mustVk("vkAllocateDescriptorSets",
			vk.AllocateDescriptorSets(ctx.Device, &allocInfo, &pipe.descriptorSet))
	}

	playoutInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: 1,
		PSetLayouts:    []vk.DescriptorSetLayout{pipe.descriptorSetLayout},
	}
	if bl.scalarBytes > 0 && !pipe.useUBO {
		if uint32(bl.scalarBytes) > ctx.Props.MaxPushConstantsSize {
			klog.Fatalf("vulkan: function %q needs %d push constant bytes, device %q allows %d",
				name, bl.scalarBytes, ctx.Props.DeviceName, ctx.Props.MaxPushConstantsSize)
		}
		playoutInfo.PushConstantRangeCount = 1
		playoutInfo.PPushConstantRanges = []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageComputeBit),
			Offset:     0,
			Size:       uint32(bl.scalarBytes),
		}}
	}
	mustVk("vkCreatePipelineLayout",
		vk.CreatePipelineLayout(ctx.Device, &playoutInfo, nil, &pipe.pipelineLayout))

	pipelineInfo := vk.ComputePipelineCreateInfo{
		SType: vk.StructureTypeComputePipelineCreateInfo,
		Stage: vk.PipelineShaderStageCreateInfo{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageComputeBit,
			Module: pipe.shader,
			PName:  cstr(name),
		},
		Layout: pipe.pipelineLayout,
	}
	pipelines := make([]vk.Pipeline, 1)
	mustVk("vkCreateComputePipelines",
		vk.CreateComputePipelines(ctx.Device, vk.NullPipelineCache, 1,
			[]vk.ComputePipelineCreateInfo{pipelineInfo}, nil, pipelines))
	pipe.pipeline = pipelines[0]

	if ctx.UseImmediate() {
		templateInfo := vk.DescriptorUpdateTemplateCreateInfo{
			SType:                      vk.StructureTypeDescriptorUpdateTemplateCreateInfo,
			DescriptorUpdateEntryCount: uint32(len(bl.templates)),
			PDescriptorUpdateEntries:   bl.templates,
			TemplateType:               vk.DescriptorUpdateTemplateTypePushDescriptors,
			DescriptorSetLayout:        pipe.descriptorSetLayout,
			PipelineBindPoint:          vk.PipelineBindPointCompute,
			PipelineLayout:             pipe.pipelineLayout,
			Set:                        0,
		}
		pipe.updateTemplate = ctx.createDescriptorUpdateTemplate(&templateInfo)
	}
	return pipe
}

func (pipe *Pipeline) destroy() {
	if pipe.updateTemplate != 0 {
		pipe.ctx.destroyDescriptorUpdateTemplate(pipe.updateTemplate)
	}
	vk.DestroyPipeline(pipe.ctx.Device, pipe.pipeline, nil)
	vk.DestroyPipelineLayout(pipe.ctx.Device, pipe.pipelineLayout, nil)
	if pipe.descriptorPool != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(pipe.ctx.Device, pipe.descriptorPool, nil)
	}
	vk.DestroyDescriptorSetLayout(pipe.ctx.Device, pipe.descriptorSetLayout, nil)
	vk.DestroyShaderModule(pipe.ctx.Device, pipe.shader, nil)
}
