// Package dtypes defines the data types used for kernel arguments and device buffers.
//
// Scalar types map one-to-one to the SPIR-V numerical types a compute kernel can
// take as push constants (or as fields of a packed uniform buffer), plus Handle
// for opaque device-buffer references.
package dtypes

import (
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// DType is the type of a kernel argument or buffer element.
type DType int32

const (
	// InvalidDType represents an invalid (or not set) dtype.
	InvalidDType DType = iota

	// Bool is stored as one byte on the host side and as a 32-bit value when
	// packed for a kernel.
	Bool

	Int8
	Int16
	Int32
	Int64

	Uint8
	Uint16
	Uint32
	Uint64

	// Float16 uses the IEEE 754 half-precision format, see github.com/x448/float16.
	Float16
	Float32
	Float64

	// Handle is an opaque reference to a device buffer, bound through a
	// descriptor rather than packed by value.
	Handle
)

var dtypeNames = map[DType]string{
	InvalidDType: "InvalidDType",
	Bool:         "Bool",
	Int8:         "Int8",
	Int16:        "Int16",
	Int32:        "Int32",
	Int64:        "Int64",
	Uint8:        "Uint8",
	Uint16:       "Uint16",
	Uint32:       "Uint32",
	Uint64:       "Uint64",
	Float16:      "Float16",
	Float32:      "Float32",
	Float64:      "Float64",
	Handle:       "Handle",
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	if name, ok := dtypeNames[dtype]; ok {
		return name
	}
	return "InvalidDType"
}

// MapOfNames maps lower-case names and aliases ("f32", "uint64", ...) to dtypes.
var MapOfNames = map[string]DType{
	"bool": Bool, "pred": Bool,
	"int8": Int8, "i8": Int8, "s8": Int8,
	"int16": Int16, "i16": Int16, "s16": Int16,
	"int32": Int32, "i32": Int32, "s32": Int32,
	"int64": Int64, "i64": Int64, "s64": Int64,
	"uint8": Uint8, "u8": Uint8,
	"uint16": Uint16, "u16": Uint16,
	"uint32": Uint32, "u32": Uint32,
	"uint64": Uint64, "u64": Uint64,
	"float16": Float16, "f16": Float16, "half": Float16,
	"float32": Float32, "f32": Float32,
	"float64": Float64, "f64": Float64,
	"handle": Handle,
}

// FromName converts a name (case-insensitive, aliases accepted) to a DType.
func FromName(name string) (DType, error) {
	if dtype, ok := MapOfNames[strings.ToLower(name)]; ok {
		return dtype, nil
	}
	return InvalidDType, errors.Errorf("unknown dtype name %q", name)
}

// Size returns the size in bytes of the dtype when packed for a kernel.
// Handle has no packed size and returns 0.
func (dtype DType) Size() int {
	switch dtype {
	case Bool, Int8, Uint8:
		return 1
	case Int16, Uint16, Float16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	}
	return 0
}

// IsScalar reports whether the dtype is a by-value scalar, as opposed to Handle.
func (dtype DType) IsScalar() bool {
	return dtype >= Bool && dtype <= Float64
}

// IsFloat reports whether the dtype is a floating point type.
func (dtype DType) IsFloat() bool {
	return dtype == Float16 || dtype == Float32 || dtype == Float64
}

// IsInt reports whether the dtype is a signed or unsigned integer type.
func (dtype DType) IsInt() bool {
	return dtype >= Int8 && dtype <= Uint64
}

// Supported lists the Go types a scalar kernel argument can be passed as.
type Supported interface {
	bool | int8 | int16 | int32 | int64 |
		uint8 | uint16 | uint32 | uint64 |
		float16.Float16 | float32 | float64
}

// FromGenericsType returns the DType for the given Go type.
func FromGenericsType[T Supported]() DType {
	var value T
	return FromGoType(reflect.TypeOf(value))
}

// FromGoType returns the DType for the given reflect.Type, or InvalidDType if
// the type has no dtype equivalent.
func FromGoType(goType reflect.Type) DType {
	switch goType.Kind() {
	case reflect.Bool:
		return Bool
	case reflect.Int8:
		return Int8
	case reflect.Int16:
		return Int16
	case reflect.Int32:
		return Int32
	case reflect.Int64:
		return Int64
	case reflect.Uint8:
		return Uint8
	case reflect.Uint16:
		if goType == float16Type {
			return Float16
		}
		return Uint16
	case reflect.Uint32:
		return Uint32
	case reflect.Uint64:
		return Uint64
	case reflect.Float32:
		return Float32
	case reflect.Float64:
		return Float64
	}
	return InvalidDType
}

var float16Type = reflect.TypeOf(float16.Float16(0))

// GoType returns the reflect.Type matching the dtype.
// Handle and InvalidDType return nil.
func (dtype DType) GoType() reflect.Type {
	switch dtype {
	case Bool:
		return reflect.TypeOf(false)
	case Int8:
		return reflect.TypeOf(int8(0))
	case Int16:
		return reflect.TypeOf(int16(0))
	case Int32:
		return reflect.TypeOf(int32(0))
	case Int64:
		return reflect.TypeOf(int64(0))
	case Uint8:
		return reflect.TypeOf(uint8(0))
	case Uint16:
		return reflect.TypeOf(uint16(0))
	case Uint32:
		return reflect.TypeOf(uint32(0))
	case Uint64:
		return reflect.TypeOf(uint64(0))
	case Float16:
		return float16Type
	case Float32:
		return reflect.TypeOf(float32(0))
	case Float64:
		return reflect.TypeOf(float64(0))
	}
	return nil
}
