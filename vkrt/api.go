package vkrt

import (
	"runtime"

	vk "github.com/goki/vulkan"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// MaxDevices is the maximum number of devices a DeviceAPI manages.
const MaxDevices = 8

// validationLayerNames are the validation layers enabled (when present) by
// Options.EnableValidation, oldest naming schemes included.
var validationLayerNames = []string{
	"VK_LAYER_LUNARG_standard_validation",
	"VK_LAYER_LUNARG_parameter_validation",
	"VK_LAYER_KHRONOS_validation",
}

// optionalInstanceExtensions are enabled when the loader offers them.
var optionalInstanceExtensions = []string{
	"VK_KHR_get_physical_device_properties2",
}

// optionalDeviceExtensions are enabled per device when offered.
var optionalDeviceExtensions = []string{
	"VK_KHR_driver_properties",
	"VK_KHR_storage_buffer_storage_class",
	"VK_KHR_8bit_storage",
	"VK_KHR_16bit_storage",
	"VK_KHR_shader_float16_int8",
	"VK_KHR_push_descriptor",
	"VK_KHR_descriptor_update_template",
	"VK_KHR_get_memory_requirements2",
	"VK_KHR_dedicated_allocation",
	"VK_KHR_spirv_1_4",
}

// DeviceAPI is the root object of the runtime: the Vulkan instance plus one
// DeviceContext per usable physical device, in enumeration order. Device IDs
// are indices into that order.
type DeviceAPI struct {
	instance     vk.Instance
	instanceExts []string
	procs        instanceProcs
	contexts     []*DeviceContext
	opts         *Options
}

var _ Backend = (*DeviceAPI)(nil)

// NewDeviceAPI loads the Vulkan library, creates an instance and a logical
// device with one compute queue for every physical device that has a
// compute-capable queue family.
//
// It returns an error when no Vulkan loader or driver is usable in this
// environment. Passing nil opts is equivalent to OptionsFromEnv().
func NewDeviceAPI(opts *Options) (*DeviceAPI, error) {
	if opts == nil {
		opts = OptionsFromEnv()
	}
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return nil, errors.WithMessage(err, "loading the Vulkan library")
	}
	if err := vk.Init(); err != nil {
		return nil, errors.WithMessage(err, "initializing Vulkan bindings")
	}

	api := &DeviceAPI{opts: opts}

	layers := enabledValidationLayers(opts)
	instanceExts, err := findEnabledExtensions(availableInstanceExtensions(), nil, optionalInstanceExtensions)
	if err != nil {
		return nil, err
	}
	api.instanceExts = instanceExts

	appInfo := vk.ApplicationInfo{
		SType:            vk.StructureTypeApplicationInfo,
		PApplicationName: cstr("vkrt"),
		PEngineName:      cstr(""),
		ApiVersion:       apiVersion11,
	}
	instInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     cstrings(layers),
		EnabledExtensionCount:   uint32(len(instanceExts)),
		PpEnabledExtensionNames: cstrings(instanceExts),
	}
	var instance vk.Instance
	if ret := vk.CreateInstance(&instInfo, nil, &instance); ret != vk.Success {
		return nil, errors.Errorf("vkCreateInstance failed with %d", ret)
	}
	api.instance = instance
	vk.InitInstance(instance)
	api.procs = loadInstanceProcs(instance)

	var count uint32
	mustVk("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(instance, &count, nil))
	physDevices := make([]vk.PhysicalDevice, count)
	if count > 0 {
		mustVk("vkEnumeratePhysicalDevices", vk.EnumeratePhysicalDevices(instance, &count, physDevices))
	}

	for _, phys := range physDevices {
		if len(api.contexts) == MaxDevices {
			klog.Warningf("vulkan: ignoring physical devices beyond the first %d", MaxDevices)
			break
		}
		ctx, ok := api.newDeviceContext(phys)
		if !ok {
			continue
		}
		ctx.ID = len(api.contexts)
		api.contexts = append(api.contexts, ctx)
	}

	klog.Infof("Initialized Vulkan with %d devices", len(api.contexts))
	for i, ctx := range api.contexts {
		klog.Infof("vulkan(%d)=%q api_version=%s use_immediate=%v",
			i, ctx.Props.DeviceName, VersionString(ctx.Props.APIVersion), ctx.UseImmediate())
	}
	return api, nil
}

// newDeviceContext creates the logical device for phys. Returns ok=false for
// devices without a compute-capable queue family.
func (api *DeviceAPI) newDeviceContext(phys vk.PhysicalDevice) (*DeviceContext, bool) {
	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(phys, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(phys, &familyCount, families)
	for i := range families {
		families[i].Deref()
	}
	usable := computeQueueFamilies(families)
	if len(usable) == 0 {
		return nil, false
	}
	queueFamilyIndex := usable[0]

	deviceExts, err := findEnabledExtensions(availableDeviceExtensions(phys), nil, optionalDeviceExtensions)
	if err != nil {
		klog.Fatalf("vulkan: %v", err)
	}

	ctx := &DeviceContext{
		PhysicalDevice:   phys,
		QueueFamilyIndex: queueFamilyIndex,
	}
	ctx.Props = queryDeviceProperties(phys, api.instanceExts, deviceExts, api.opts, api.procs)

	queueInfo := vk.DeviceQueueCreateInfo{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: queueFamilyIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}
	deviceInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    1,
		PQueueCreateInfos:       []vk.DeviceQueueCreateInfo{queueInfo},
		EnabledExtensionCount:   uint32(len(deviceExts)),
		PpEnabledExtensionNames: cstrings(deviceExts),
	}

	// Enable the supported features. With the properties2 extension the
	// extended features chain through pNext; on plain 1.0 only the core
	// feature struct can be passed.
	fc := newFeatureChain(&ctx.Props)
	if api.procs.hasProperties2() &&
		hasExtension(api.instanceExts, nil, "VK_KHR_get_physical_device_properties2") {
		deviceInfo.PNext = fc.head
	} else {
		deviceInfo.PEnabledFeatures = []vk.PhysicalDeviceFeatures{fc.features2.Features}
	}

	mustVk("vkCreateDevice", vk.CreateDevice(phys, &deviceInfo, nil, &ctx.Device))
	runtime.KeepAlive(fc)
	vk.GetDeviceQueue(ctx.Device, queueFamilyIndex, 0, &ctx.Queue)

	// Extension capabilities only count once their entry points resolve.
	ctx.procs = loadDeviceProcs(ctx.Device)
	if ctx.procs.getBufferMemoryRequirements2 == nil {
		ctx.Props.SupportsDedicatedAllocation = false
	}
	ctx.useImmediate = ctx.Props.SupportsPushDescriptor && ctx.procs.hasDescriptorTemplates()
	ctx.Props.SupportsPushDescriptor = ctx.useImmediate

	ctx.selectMemoryTypes()
	return ctx, true
}

// NumDevices returns the number of usable devices.
func (api *DeviceAPI) NumDevices() int { return len(api.contexts) }

// HasDevice reports whether deviceID refers to a usable device.
func (api *DeviceAPI) HasDevice(deviceID int) bool {
	return deviceID >= 0 && deviceID < len(api.contexts)
}

// Context returns the DeviceContext for deviceID.
func (api *DeviceAPI) Context(deviceID int) *DeviceContext {
	return api.context(deviceID)
}

func (api *DeviceAPI) context(deviceID int) *DeviceContext {
	if !api.HasDevice(deviceID) {
		klog.Fatalf("vulkan: invalid device id %d, have %d devices", deviceID, len(api.contexts))
	}
	return api.contexts[deviceID]
}

// Close waits for the devices to go idle and tears them down, then destroys
// the instance. All ThreadContexts, Modules and buffers must be released
// first.
func (api *DeviceAPI) Close() {
	for _, ctx := range api.contexts {
		ctx.destroy()
	}
	api.contexts = nil
	if api.instance != nil {
		vk.DestroyInstance(api.instance, nil)
		api.instance = nil
	}
}

func enabledValidationLayers(opts *Options) []string {
	if !opts.EnableValidation {
		return nil
	}
	var count uint32
	mustVk("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, nil))
	props := make([]vk.LayerProperties, count)
	if count > 0 {
		mustVk("vkEnumerateInstanceLayerProperties", vk.EnumerateInstanceLayerProperties(&count, props))
	}
	available := make(map[string]bool, count)
	for i := range props {
		props[i].Deref()
		available[trimNul(props[i].LayerName[:])] = true
	}
	var layers []string
	for _, name := range validationLayerNames {
		if available[name] {
			layers = append(layers, name)
		}
	}
	return layers
}

func availableInstanceExtensions() map[string]bool {
	var count uint32
	mustVk("vkEnumerateInstanceExtensionProperties",
		vk.EnumerateInstanceExtensionProperties("", &count, nil))
	props := make([]vk.ExtensionProperties, count)
	if count > 0 {
		mustVk("vkEnumerateInstanceExtensionProperties",
			vk.EnumerateInstanceExtensionProperties("", &count, props))
	}
	return extensionSet(props)
}

func availableDeviceExtensions(phys vk.PhysicalDevice) map[string]bool {
	var count uint32
	mustVk("vkEnumerateDeviceExtensionProperties",
		vk.EnumerateDeviceExtensionProperties(phys, "", &count, nil))
	props := make([]vk.ExtensionProperties, count)
	if count > 0 {
		mustVk("vkEnumerateDeviceExtensionProperties",
			vk.EnumerateDeviceExtensionProperties(phys, "", &count, props))
	}
	return extensionSet(props)
}

func extensionSet(props []vk.ExtensionProperties) map[string]bool {
	available := make(map[string]bool, len(props))
	for i := range props {
		props[i].Deref()
		if props[i].SpecVersion > 0 {
			available[trimNul(props[i].ExtensionName[:])] = true
		}
	}
	return available
}

// findEnabledExtensions returns required plus whichever optional extensions
// are available. A missing required extension is an error.
func findEnabledExtensions(available map[string]bool, required, optional []string) ([]string, error) {
	var enabled []string
	for _, name := range required {
		if !available[name] {
			return nil, errors.Errorf("required Vulkan extension %q not supported by driver", name)
		}
		enabled = append(enabled, name)
	}
	for _, name := range optional {
		if available[name] {
			enabled = append(enabled, name)
		}
	}
	return enabled, nil
}
