package vkrt

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/govulkan/govkrt/dtypes"
)

// BufferFromHost allocates a device buffer sized for data and uploads it.
func BufferFromHost[T dtypes.Supported](api *DeviceAPI, tc *ThreadContext, deviceID int, data []T) (*DeviceBuffer, error) {
	if !api.HasDevice(deviceID) {
		return nil, errors.Errorf("invalid device id %d", deviceID)
	}
	buf := api.AllocBuffer(deviceID, len(data)*int(unsafe.Sizeof(*new(T))))
	api.CopyFromHost(tc, deviceID, buf, 0, typedBytes(data))
	return buf, nil
}

// BufferToHost downloads a device buffer into a slice of n elements.
func BufferToHost[T dtypes.Supported](api *DeviceAPI, tc *ThreadContext, deviceID int, buf *DeviceBuffer, n int) ([]T, error) {
	if !api.HasDevice(deviceID) {
		return nil, errors.Errorf("invalid device id %d", deviceID)
	}
	nbytes := n * int(unsafe.Sizeof(*new(T)))
	if nbytes > buf.Size {
		return nil, errors.Errorf("reading %d bytes from a %d byte buffer", nbytes, buf.Size)
	}
	data := make([]T, n)
	api.CopyToHost(tc, deviceID, typedBytes(data), buf, 0)
	return data, nil
}

// typedBytes views a scalar slice as its raw bytes, without copying.
func typedBytes[T dtypes.Supported](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*int(unsafe.Sizeof(data[0])))
}
