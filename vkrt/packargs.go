package vkrt

import (
	"math"

	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/govulkan/govkrt/dtypes"
)

// ArgUnion64 is one packed scalar kernel argument. Every scalar occupies a
// full 8-byte slot regardless of its dtype, with the value in the low bytes,
// so the push constant block and the packed uniform buffer share one fixed
// layout.
type ArgUnion64 uint64

// argUnionSize is the byte size of one packed scalar slot.
const argUnionSize = 8

// packScalar packs one scalar argument according to its declared dtype.
// Integer arguments accept any Go integer type; Float16 additionally accepts
// float32 and float64, converted with IEEE rounding.
func packScalar(dtype dtypes.DType, arg any) (ArgUnion64, error) {
	switch dtype {
	case dtypes.Bool:
		b, ok := arg.(bool)
		if !ok {
			return 0, errors.Errorf("expected bool, got %T", arg)
		}
		if b {
			return 1, nil
		}
		return 0, nil

	case dtypes.Int8, dtypes.Int16, dtypes.Int32, dtypes.Int64,
		dtypes.Uint8, dtypes.Uint16, dtypes.Uint32, dtypes.Uint64:
		v, err := toInt64(arg)
		if err != nil {
			return 0, err
		}
		switch dtype {
		case dtypes.Int8:
			return ArgUnion64(uint8(int8(v))), nil
		case dtypes.Int16:
			return ArgUnion64(uint16(int16(v))), nil
		case dtypes.Int32:
			return ArgUnion64(uint32(int32(v))), nil
		case dtypes.Uint8:
			return ArgUnion64(uint8(v)), nil
		case dtypes.Uint16:
			return ArgUnion64(uint16(v)), nil
		case dtypes.Uint32:
			return ArgUnion64(uint32(v)), nil
		default:
			return ArgUnion64(v), nil
		}

	case dtypes.Float16:
		switch value := arg.(type) {
		case float16.Float16:
			return ArgUnion64(value.Bits()), nil
		case float32:
			return ArgUnion64(float16.Fromfloat32(value).Bits()), nil
		case float64:
			return ArgUnion64(float16.Fromfloat32(float32(value)).Bits()), nil
		}
		return 0, errors.Errorf("expected float16.Float16 or float, got %T", arg)

	case dtypes.Float32:
		switch value := arg.(type) {
		case float32:
			return ArgUnion64(math.Float32bits(value)), nil
		case float64:
			return ArgUnion64(math.Float32bits(float32(value))), nil
		}
		return 0, errors.Errorf("expected float32, got %T", arg)

	case dtypes.Float64:
		switch value := arg.(type) {
		case float64:
			return ArgUnion64(math.Float64bits(value)), nil
		case float32:
			return ArgUnion64(math.Float64bits(float64(value))), nil
		}
		return 0, errors.Errorf("expected float64, got %T", arg)
	}
	return 0, errors.Errorf("dtype %s cannot be packed by value", dtype)
}

func toInt64(arg any) (int64, error) {
	switch value := arg.(type) {
	case int:
		return int64(value), nil
	case int8:
		return int64(value), nil
	case int16:
		return int64(value), nil
	case int32:
		return int64(value), nil
	case int64:
		return value, nil
	case uint:
		return int64(value), nil
	case uint8:
		return int64(value), nil
	case uint16:
		return int64(value), nil
	case uint32:
		return int64(value), nil
	case uint64:
		return int64(value), nil
	}
	return 0, errors.Errorf("expected an integer, got %T", arg)
}

// packScalars packs the scalar launch arguments following a function's
// declared dtypes, one ArgUnion64 slot each.
func packScalars(argTypes []dtypes.DType, args []any) ([]ArgUnion64, error) {
	if len(args) != len(argTypes) {
		return nil, errors.Errorf("expected %d scalar arguments, got %d", len(argTypes), len(args))
	}
	packed := make([]ArgUnion64, len(args))
	for i, arg := range args {
		slot, err := packScalar(argTypes[i], arg)
		if err != nil {
			return nil, errors.WithMessagef(err, "scalar argument %d (%s)", i, argTypes[i])
		}
		packed[i] = slot
	}
	return packed, nil
}
