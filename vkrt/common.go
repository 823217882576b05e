package vkrt

import (
	"fmt"
	"strings"

	vk "github.com/goki/vulkan"
	"k8s.io/klog/v2"
)

// mustVk checks the result of a Vulkan call made after successful
// initialization. There is no meaningful recovery from a failed driver call at
// that point, so it aborts.
func mustVk(op string, ret vk.Result) {
	if ret != vk.Success {
		klog.Fatalf("vulkan: %s failed with %d", op, ret)
	}
}

// cstr returns s NUL-terminated, as the C side of the binding expects.
func cstr(s string) string {
	if strings.HasSuffix(s, "\x00") {
		return s
	}
	return s + "\x00"
}

// cstrings NUL-terminates every element of names.
func cstrings(names []string) []string {
	terminated := make([]string, len(names))
	for i, name := range names {
		terminated[i] = cstr(name)
	}
	return terminated
}

// trimNul converts a fixed-size C string buffer to a Go string.
func trimNul(b []byte) string {
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

func versionMajor(v uint32) uint32 { return v >> 22 }
func versionMinor(v uint32) uint32 { return (v >> 12) & 0x3ff }
func versionPatch(v uint32) uint32 { return v & 0xfff }

// VersionString renders a packed Vulkan version as "major.minor.patch".
func VersionString(v uint32) string {
	return fmt.Sprintf("%d.%d.%d", versionMajor(v), versionMinor(v), versionPatch(v))
}
