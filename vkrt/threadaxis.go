package vkrt

import (
	"github.com/pkg/errors"
)

// ThreadWorkload is the dispatch geometry of one kernel launch: number of
// workgroups per axis and workgroup size per axis. Axes without a bound tag
// default to 1.
type ThreadWorkload struct {
	gridDim  [3]uint32
	blockDim [3]uint32
}

// GridDim returns the workgroup count along axis i.
func (wl ThreadWorkload) GridDim(i int) uint32 { return wl.gridDim[i] }

// BlockDim returns the workgroup size along axis i.
func (wl ThreadWorkload) BlockDim(i int) uint32 { return wl.blockDim[i] }

type axisKind int

const (
	axisGrid axisKind = iota
	axisBlock
)

type threadAxis struct {
	kind axisKind
	dim  int
}

// ThreadAxisConfig maps a function's thread axis tags ("blockIdx.x",
// "threadIdx.y", ...) to positions in the launch argument list. Axis values
// come after the function's buffer and scalar arguments.
type ThreadAxisConfig struct {
	baseIndex int
	axes      []threadAxis
}

var axisByTag = map[string]threadAxis{
	"blockIdx.x":  {axisGrid, 0},
	"blockIdx.y":  {axisGrid, 1},
	"blockIdx.z":  {axisGrid, 2},
	"threadIdx.x": {axisBlock, 0},
	"threadIdx.y": {axisBlock, 1},
	"threadIdx.z": {axisBlock, 2},
}

// newThreadAxisConfig builds the config for a function whose axis values
// start at argument index baseIndex.
func newThreadAxisConfig(baseIndex int, tags []string) (ThreadAxisConfig, error) {
	cfg := ThreadAxisConfig{baseIndex: baseIndex, axes: make([]threadAxis, len(tags))}
	for i, tag := range tags {
		axis, ok := axisByTag[tag]
		if !ok {
			return ThreadAxisConfig{}, errors.Errorf("unknown thread axis tag %q", tag)
		}
		cfg.axes[i] = axis
	}
	return cfg, nil
}

// NumArgs returns how many trailing axis values the launch expects.
func (cfg ThreadAxisConfig) NumArgs() int { return len(cfg.axes) }

// Extract reads the axis values from a full launch argument list.
func (cfg ThreadAxisConfig) Extract(args []any) (ThreadWorkload, error) {
	wl := ThreadWorkload{
		gridDim:  [3]uint32{1, 1, 1},
		blockDim: [3]uint32{1, 1, 1},
	}
	if len(args) < cfg.baseIndex+len(cfg.axes) {
		return wl, errors.Errorf("launch needs %d arguments (%d of them thread axis values), got %d",
			cfg.baseIndex+len(cfg.axes), len(cfg.axes), len(args))
	}
	for i, axis := range cfg.axes {
		value, err := toDimension(args[cfg.baseIndex+i])
		if err != nil {
			return wl, errors.WithMessagef(err, "thread axis value at argument %d", cfg.baseIndex+i)
		}
		switch axis.kind {
		case axisGrid:
			wl.gridDim[axis.dim] = value
		case axisBlock:
			wl.blockDim[axis.dim] = value
		}
	}
	return wl, nil
}

func toDimension(arg any) (uint32, error) {
	var v int64
	switch value := arg.(type) {
	case int:
		v = int64(value)
	case int32:
		v = int64(value)
	case int64:
		v = value
	case uint32:
		v = int64(value)
	case uint64:
		v = int64(value)
	case uint:
		v = int64(value)
	default:
		return 0, errors.Errorf("expected an integer, got %T", arg)
	}
	if v < 1 {
		return 0, errors.Errorf("dimension must be at least 1, got %d", v)
	}
	return uint32(v), nil
}
