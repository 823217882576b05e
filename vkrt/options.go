package vkrt

import "os"

// Environment variables honored by OptionsFromEnv. A non-empty value enables
// the toggle.
const (
	EnvEnableValidationLayers     = "VKRT_ENABLE_VALIDATION_LAYERS"
	EnvDisablePushDescriptor      = "VKRT_DISABLE_PUSH_DESCRIPTOR"
	EnvDisableDedicatedAllocation = "VKRT_DISABLE_DEDICATED_ALLOCATION"
)

// Options configures instance and device initialization.
// The zero value enables everything the driver supports and no debug layers.
type Options struct {
	// EnableValidation loads the Vulkan validation layers available on the
	// system, for debugging.
	EnableValidation bool

	// DisablePushDescriptor forces the deferred descriptor-set dispatch path
	// even when VK_KHR_push_descriptor is available.
	DisablePushDescriptor bool

	// DisableDedicatedAllocation disables the use of
	// VK_KHR_dedicated_allocation even when available.
	DisableDedicatedAllocation bool
}

// OptionsFromEnv builds Options from the VKRT_* environment variables.
func OptionsFromEnv() *Options {
	return &Options{
		EnableValidation:           os.Getenv(EnvEnableValidationLayers) != "",
		DisablePushDescriptor:      os.Getenv(EnvDisablePushDescriptor) != "",
		DisableDedicatedAllocation: os.Getenv(EnvDisableDedicatedAllocation) != "",
	}
}
