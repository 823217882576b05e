package vkrt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuffersOnDevice(t *testing.T) {
	buf0 := &DeviceBuffer{deviceID: 0}
	buf1 := &DeviceBuffer{deviceID: 1}

	require.NoError(t, buffersOnDevice("CopyDeviceToDevice", 0, buf0))
	require.NoError(t, buffersOnDevice("CopyDeviceToDevice", 1, buf1, buf1))

	err := buffersOnDevice("CopyDeviceToDevice", 0, buf0, buf1)
	require.ErrorContains(t, err, "cross-device copies are not supported")
	require.ErrorContains(t, err, "device 1")

	err = buffersOnDevice("CopyFromHost", 1, buf0)
	require.ErrorContains(t, err, "CopyFromHost")

	require.Equal(t, 0, buf0.DeviceID())
	require.Equal(t, 1, buf1.DeviceID())
}
