package vkrt

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/require"
)

func TestVersionString(t *testing.T) {
	require.Equal(t, "1.3.204", VersionString(vk.MakeVersion(1, 3, 204)))
	require.Equal(t, "1.1.0", VersionString(apiVersion11))
}

func TestCStr(t *testing.T) {
	require.Equal(t, "abc\x00", cstr("abc"))
	require.Equal(t, "abc\x00", cstr("abc\x00"))
	require.Equal(t, []string{"a\x00", "b\x00"}, cstrings([]string{"a", "b"}))
}

func TestTrimNul(t *testing.T) {
	require.Equal(t, "llvmpipe", trimNul([]byte("llvmpipe\x00\x00\x00")))
	require.Equal(t, "full", trimNul([]byte("full")))
}
