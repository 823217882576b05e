package vkrt

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/govulkan/govkrt/dtypes"
)

// ShaderFlagUseUBO marks a shader compiled to read its scalar arguments from
// a uniform buffer instead of push constants, for argument lists that exceed
// the device's push constant budget.
const ShaderFlagUseUBO uint32 = 1 << 0

// Shader is one compiled SPIR-V compute shader plus its metadata flags.
type Shader struct {
	// Data holds the SPIR-V code as 32-bit words.
	Data []uint32
	// Flags is a bitset of Shader* flags.
	Flags uint32
}

// FunctionInfo declares the calling convention of one kernel: the dtypes of
// its arguments (dtypes.Handle for device buffers, which must all precede the
// scalars) and the thread axis tags binding trailing launch arguments to
// dispatch geometry.
type FunctionInfo struct {
	ArgTypes       []dtypes.DType
	ThreadAxisTags []string
}

// numBufferArgs counts the leading Handle arguments, verifying all handles
// precede the scalars.
func (info FunctionInfo) numBufferArgs() (int, error) {
	n := 0
	for i, dtype := range info.ArgTypes {
		if dtype == dtypes.Handle {
			if i != n {
				return 0, errors.New("buffer arguments must precede scalar arguments")
			}
			n++
		} else if !dtype.IsScalar() {
			return 0, errors.Errorf("argument %d has non-scalar dtype %s", i, dtype)
		}
	}
	return n, nil
}

// Module is a container of compute kernels that can run on any device of its
// DeviceAPI. Pipelines are built lazily per (device, function) and cached for
// the module's lifetime.
type Module struct {
	api     *DeviceAPI
	shaders map[string]Shader
	funcs   map[string]FunctionInfo
	cache   pipelineCache
}

// NewModule creates a Module from shaders and their function signatures.
// Every function must have a shader of the same name.
func NewModule(api *DeviceAPI, shaders map[string]Shader, funcs map[string]FunctionInfo) (*Module, error) {
	for name := range funcs {
		if _, ok := shaders[name]; !ok {
			return nil, errors.Errorf("function %q has no shader", name)
		}
	}
	return &Module{api: api, shaders: shaders, funcs: funcs}, nil
}

// Function looks up a kernel by name and prepares its dispatcher.
func (m *Module) Function(name string) (*KernelFunc, error) {
	info, ok := m.funcs[name]
	if !ok {
		return nil, errors.Errorf("module has no function %q", name)
	}
	numBuffer, err := info.numBufferArgs()
	if err != nil {
		return nil, errors.WithMessagef(err, "function %q", name)
	}
	numPack := len(info.ArgTypes) - numBuffer
	axes, err := newThreadAxisConfig(len(info.ArgTypes), info.ThreadAxisTags)
	if err != nil {
		return nil, errors.WithMessagef(err, "function %q", name)
	}
	return &KernelFunc{
		m:             m,
		name:          name,
		info:          info,
		numBufferArgs: numBuffer,
		numPackArgs:   numPack,
		axes:          axes,
	}, nil
}

// Destroy releases every cached pipeline. Kernels of this module must not be
// launched afterwards.
func (m *Module) Destroy() {
	for _, pipe := range m.cache.drain() {
		pipe.destroy()
	}
}

// pipelineCache memoizes built pipelines per (device, function). A single
// coarse lock covers lookups and builds: pipeline construction is rare and
// serializing it keeps the guarantee that each pipeline is built exactly
// once.
type pipelineCache struct {
	mu        sync.Mutex
	perDevice [MaxDevices]map[string]*Pipeline
}

func (c *pipelineCache) getOrBuild(deviceID int, name string, build func() *Pipeline) *Pipeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.perDevice[deviceID] == nil {
		c.perDevice[deviceID] = make(map[string]*Pipeline)
	}
	if pipe, ok := c.perDevice[deviceID][name]; ok {
		return pipe
	}
	pipe := build()
	c.perDevice[deviceID][name] = pipe
	return pipe
}

// drain empties the cache and returns everything it held.
func (c *pipelineCache) drain() []*Pipeline {
	c.mu.Lock()
	defer c.mu.Unlock()
	var pipes []*Pipeline
	for deviceID, m := range c.perDevice {
		for _, pipe := range m {
			pipes = append(pipes, pipe)
		}
		c.perDevice[deviceID] = nil
	}
	return pipes
}
