package vkrt

import (
	"bytes"
	"sync"
	"sync/atomic"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/require"

	"github.com/govulkan/govkrt/dtypes"
)

func testModule(t *testing.T) *Module {
	m, err := NewModule(nil,
		map[string]Shader{
			"add":   {Data: []uint32{0x07230203, 0x00010300, 0, 0, 0}, Flags: 0},
			"scale": {Data: []uint32{0x07230203, 0x00010500, 1, 2, 3}, Flags: ShaderFlagUseUBO},
		},
		map[string]FunctionInfo{
			"add": {
				ArgTypes:       []dtypes.DType{dtypes.Handle, dtypes.Handle, dtypes.Int32},
				ThreadAxisTags: []string{"blockIdx.x", "threadIdx.x"},
			},
			"scale": {
				ArgTypes:       []dtypes.DType{dtypes.Handle, dtypes.Float32},
				ThreadAxisTags: []string{"blockIdx.x"},
			},
		})
	require.NoError(t, err)
	return m
}

func TestNewModuleMissingShader(t *testing.T) {
	_, err := NewModule(nil, map[string]Shader{},
		map[string]FunctionInfo{"orphan": {}})
	require.ErrorContains(t, err, `function "orphan" has no shader`)
}

func TestFunction(t *testing.T) {
	m := testModule(t)

	f, err := m.Function("add")
	require.NoError(t, err)
	require.Equal(t, "add", f.Name())
	require.Equal(t, 2, f.numBufferArgs)
	require.Equal(t, 1, f.numPackArgs)
	require.Equal(t, 2, f.axes.NumArgs())

	_, err = m.Function("missing")
	require.ErrorContains(t, err, `no function "missing"`)
}

func TestFunctionBufferArgsMustLead(t *testing.T) {
	m, err := NewModule(nil,
		map[string]Shader{"bad": {Data: []uint32{0x07230203}}},
		map[string]FunctionInfo{"bad": {
			ArgTypes: []dtypes.DType{dtypes.Handle, dtypes.Int32, dtypes.Handle},
		}})
	require.NoError(t, err)
	_, err = m.Function("bad")
	require.ErrorContains(t, err, "buffer arguments must precede scalar arguments")
}

func TestModuleRoundtrip(t *testing.T) {
	m := testModule(t)

	var buf bytes.Buffer
	require.NoError(t, m.Serialize(&buf))

	loaded, err := LoadModule(nil, &buf)
	require.NoError(t, err)
	require.Equal(t, m.shaders, loaded.shaders)
	require.Equal(t, m.funcs, loaded.funcs)
}

func TestLoadModuleBadMagic(t *testing.T) {
	_, err := LoadModule(nil, bytes.NewReader([]byte{0xde, 0xad, 0xbe, 0xef, 0, 0, 0, 0}))
	require.ErrorContains(t, err, "bad module magic")

	_, err = LoadModule(nil, bytes.NewReader(nil))
	require.ErrorContains(t, err, "reading module magic")
}

func TestLoadModuleTruncated(t *testing.T) {
	m := testModule(t)
	var buf bytes.Buffer
	require.NoError(t, m.Serialize(&buf))

	_, err := LoadModule(nil, bytes.NewReader(buf.Bytes()[:buf.Len()-4]))
	require.Error(t, err)
}

func TestMakeBindingLayout(t *testing.T) {
	info := FunctionInfo{
		ArgTypes: []dtypes.DType{dtypes.Handle, dtypes.Handle, dtypes.Int32, dtypes.Float32},
	}

	bl := makeBindingLayout(info, false)
	require.Equal(t, 2, bl.numBuffers)
	require.Equal(t, 2, bl.totalBindings)
	require.Equal(t, 2*argUnionSize, bl.scalarBytes)
	require.False(t, bl.useUBO)
	require.Equal(t, []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: 2},
	}, bl.poolSizes)

	bl = makeBindingLayout(info, true)
	require.Equal(t, 2, bl.numBuffers)
	require.Equal(t, 3, bl.totalBindings, "UBO adds one trailing binding")
	require.Equal(t, []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: 2},
		{Type: vk.DescriptorTypeUniformBuffer, DescriptorCount: 1},
	}, bl.poolSizes)
	last := bl.templates[len(bl.templates)-1]
	require.Equal(t, vk.DescriptorTypeUniformBuffer, last.DescriptorType)
	require.Equal(t, uint64(2*descriptorBufferInfoSize), last.Offset)
	require.Equal(t, uint64(descriptorBufferInfoSize), last.Stride)
}

func TestPipelineCacheBuildsOnce(t *testing.T) {
	var cache pipelineCache
	var builds atomic.Int32
	build := func() *Pipeline {
		builds.Add(1)
		return &Pipeline{}
	}

	var wg sync.WaitGroup
	pipes := make([]*Pipeline, 16)
	for i := range pipes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pipes[i] = cache.getOrBuild(0, "add", build)
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), builds.Load())
	for _, pipe := range pipes {
		require.Same(t, pipes[0], pipe)
	}

	// Distinct devices and names build separately.
	cache.getOrBuild(1, "add", build)
	cache.getOrBuild(0, "scale", build)
	require.Equal(t, int32(3), builds.Load())

	require.Len(t, cache.drain(), 3)
	require.Empty(t, cache.drain())
}
