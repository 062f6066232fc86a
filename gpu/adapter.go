package gpu

import (
	"sort"

	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// queueCapabilities are the queue flags that decide whether a family is dedicated to a role.
const queueCapabilities = core1_0.QueueGraphics | core1_0.QueueCompute | core1_0.QueueTransfer

// SurfaceSupport is what an adapter offers for one presentation surface.
type SurfaceSupport struct {
	Capabilities *khr_surface.SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode

	// PresentQueueFamilies is indexed by queue family.
	PresentQueueFamilies []bool
}

// Adapter is a read-only snapshot of one physical device's capabilities. Surface is nil
// when the adapter was probed without a presentation surface.
type Adapter struct {
	Handle core1_0.PhysicalDevice

	Properties    *core1_0.PhysicalDeviceProperties
	Features      *core1_0.PhysicalDeviceFeatures
	Memory        *core1_0.PhysicalDeviceMemoryProperties
	QueueFamilies []*core1_0.QueueFamilyProperties
	Extensions    []string

	Surface *SurfaceSupport
}

// NewAdapter sorts extension names so lookups can binary search.
func NewAdapter(adapter Adapter) *Adapter {
	extensions := append([]string(nil), adapter.Extensions...)
	sort.Strings(extensions)
	adapter.Extensions = extensions
	return &adapter
}

func (a *Adapter) Name() string {
	if a.Properties == nil {
		return ""
	}
	return a.Properties.DriverName
}

func (a *Adapter) DeviceType() core1_0.PhysicalDeviceType {
	if a.Properties == nil {
		return core1_0.PhysicalDeviceTypeOther
	}
	return a.Properties.DriverType
}

func (a *Adapter) APIVersion() common.APIVersion {
	if a.Properties == nil {
		return 0
	}
	return a.Properties.APIVersion
}

// TotalMemory sums the size of every memory heap.
func (a *Adapter) TotalMemory() int {
	if a.Memory == nil {
		return 0
	}
	var total int
	for _, heap := range a.Memory.MemoryHeaps {
		total += heap.Size
	}
	return total
}

// DeviceLocalMemory sums the size of the heaps flagged device-local.
func (a *Adapter) DeviceLocalMemory() int {
	if a.Memory == nil {
		return 0
	}
	var total int
	for _, heap := range a.Memory.MemoryHeaps {
		if heap.Flags&core1_0.MemoryHeapDeviceLocal != 0 {
			total += heap.Size
		}
	}
	return total
}

func (a *Adapter) HasExtension(name string) bool {
	i := sort.SearchStrings(a.Extensions, name)
	return i < len(a.Extensions) && a.Extensions[i] == name
}

// HasCompatibleQueueFamily reports whether some family supports every flag in flags.
func (a *Adapter) HasCompatibleQueueFamily(flags core1_0.QueueFlags) bool {
	_, ok := a.CompatibleQueueFamilyIndex(flags)
	return ok
}

// HasExclusiveQueueFamily reports whether some family's graphics/compute/transfer flags are
// exactly flags.
func (a *Adapter) HasExclusiveQueueFamily(flags core1_0.QueueFlags) bool {
	_, ok := a.ExclusiveQueueFamilyIndex(flags)
	return ok
}

// HasMutuallyExclusiveQueueFamily reports whether some family supports want but not exclude.
func (a *Adapter) HasMutuallyExclusiveQueueFamily(want, exclude core1_0.QueueFlags) bool {
	_, ok := a.MutuallyExclusiveQueueFamilyIndex(want, exclude)
	return ok
}

func (a *Adapter) CompatibleQueueFamilyIndex(flags core1_0.QueueFlags) (int, bool) {
	for i, family := range a.QueueFamilies {
		if family.QueueFlags&flags == flags {
			return i, true
		}
	}
	return 0, false
}

func (a *Adapter) ExclusiveQueueFamilyIndex(flags core1_0.QueueFlags) (int, bool) {
	for i, family := range a.QueueFamilies {
		if family.QueueFlags&queueCapabilities == flags {
			return i, true
		}
	}
	return 0, false
}

func (a *Adapter) MutuallyExclusiveQueueFamilyIndex(want, exclude core1_0.QueueFlags) (int, bool) {
	for i, family := range a.QueueFamilies {
		if family.QueueFlags&want == want && family.QueueFlags&exclude != exclude {
			return i, true
		}
	}
	return 0, false
}

// QueueFamilySupportsPresent is always false for an adapter probed without a surface.
func (a *Adapter) QueueFamilySupportsPresent(index int) bool {
	if a.Surface == nil || index < 0 || index >= len(a.Surface.PresentQueueFamilies) {
		return false
	}
	return a.Surface.PresentQueueFamilies[index]
}

func (a *Adapter) PresentQueueFamilyIndex() (int, bool) {
	for i := range a.QueueFamilies {
		if a.QueueFamilySupportsPresent(i) {
			return i, true
		}
	}
	return 0, false
}

func (a *Adapter) HasPresentQueueFamily() bool {
	_, ok := a.PresentQueueFamilyIndex()
	return ok
}

// FindQueueFamilies picks the first graphics family, and for presentation prefers that
// same family when it can present.
func (a *Adapter) FindQueueFamilies() QueueFamilyIndices {
	indices := QueueFamilyIndices{}

	if graphics, ok := a.CompatibleQueueFamilyIndex(core1_0.QueueGraphics); ok {
		indices.GraphicsFamily = new(int)
		*indices.GraphicsFamily = graphics

		if a.QueueFamilySupportsPresent(graphics) {
			indices.PresentFamily = new(int)
			*indices.PresentFamily = graphics
			return indices
		}
	}

	if present, ok := a.PresentQueueFamilyIndex(); ok {
		indices.PresentFamily = new(int)
		*indices.PresentFamily = present
	}

	return indices
}

// MissingFeatures lists the names of requested features this adapter does not support.
func (a *Adapter) MissingFeatures(requested *core1_0.PhysicalDeviceFeatures) []string {
	return MissingFeatures(requested, a.Features)
}

func (a *Adapter) SupportsFeatures(requested *core1_0.PhysicalDeviceFeatures) bool {
	return len(a.MissingFeatures(requested)) == 0
}

var sampleCountPriorities = []core1_0.SampleCountFlags{
	core1_0.Samples64,
	core1_0.Samples32,
	core1_0.Samples16,
	core1_0.Samples8,
	core1_0.Samples4,
	core1_0.Samples2,
}

// MaxUsableSampleCount is the highest sample count usable by both color and depth
// framebuffer attachments.
func (a *Adapter) MaxUsableSampleCount() core1_0.SampleCountFlags {
	if a.Properties == nil || a.Properties.Limits == nil {
		return core1_0.Samples1
	}

	counts := a.Properties.Limits.FramebufferColorSampleCounts & a.Properties.Limits.FramebufferDepthSampleCounts
	for _, count := range sampleCountPriorities {
		if counts&count != 0 {
			return count
		}
	}
	return core1_0.Samples1
}

func (a *Adapter) ChooseSurfaceFormat() khr_surface.SurfaceFormat {
	return ChooseSurfaceFormat(a.surface().Formats)
}

func (a *Adapter) ChoosePresentMode() khr_surface.PresentMode {
	return ChoosePresentMode(a.surface().PresentModes)
}

func (a *Adapter) ChooseExtent(width, height int) core1_0.Extent2D {
	return ChooseExtent(a.surface().Capabilities, width, height)
}

func (a *Adapter) ChooseImageCount() int {
	return ChooseImageCount(a.surface().Capabilities)
}

func (a *Adapter) surface() *SurfaceSupport {
	if a.Surface == nil {
		return &SurfaceSupport{}
	}
	return a.Surface
}

// ChooseSurfaceFormat prefers 8-bit BGRA sRGB in the sRGB nonlinear color space and otherwise
// takes the first offered format.
func ChooseSurfaceFormat(formats []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, format := range formats {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}

	if len(formats) == 0 {
		return khr_surface.SurfaceFormat{
			Format:     core1_0.FormatB8G8R8A8SRGB,
			ColorSpace: khr_surface.ColorSpaceSRGBNonlinear,
		}
	}
	return formats[0]
}

// ChoosePresentMode prefers mailbox and falls back to FIFO, which every surface supports.
func ChoosePresentMode(modes []khr_surface.PresentMode) khr_surface.PresentMode {
	for _, mode := range modes {
		if mode == khr_surface.PresentModeMailbox {
			return mode
		}
	}

	return khr_surface.PresentModeFIFO
}

// UndefinedExtent is the current-extent width a surface reports when the swapchain decides
// the size.
const UndefinedExtent = -1

// ChooseExtent returns the surface's current extent when it is fixed, and otherwise clamps
// the requested size into the surface's supported range.
func ChooseExtent(capabilities *khr_surface.SurfaceCapabilities, width, height int) core1_0.Extent2D {
	if capabilities == nil {
		return core1_0.Extent2D{Width: width, Height: height}
	}

	if capabilities.CurrentExtent.Width != UndefinedExtent {
		return capabilities.CurrentExtent
	}

	return core1_0.Extent2D{
		Width:  clamp(width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: clamp(height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

// ChooseImageCount asks for one image more than the minimum, capped by a nonzero maximum.
func ChooseImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	if capabilities == nil {
		return 0
	}

	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && capabilities.MaxImageCount < imageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}

func clamp(value, min, max int) int {
	if value < min {
		value = min
	}
	if value > max {
		value = max
	}
	return value
}
