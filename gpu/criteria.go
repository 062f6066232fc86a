package gpu

import (
	"fmt"
	"strings"

	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// QueueFamilyIndices records the graphics and present families chosen on an adapter.
// A nil index means no suitable family was found.
type QueueFamilyIndices struct {
	GraphicsFamily *int
	PresentFamily  *int
}

func (i QueueFamilyIndices) IsComplete() bool {
	return i.GraphicsFamily != nil && i.PresentFamily != nil
}

// Shared reports whether graphics and presentation run on the same family.
func (i QueueFamilyIndices) Shared() bool {
	return i.IsComplete() && *i.GraphicsFamily == *i.PresentFamily
}

// Unique lists the recorded families without duplicates, graphics first.
func (i QueueFamilyIndices) Unique() []int {
	var families []int
	if i.GraphicsFamily != nil {
		families = append(families, *i.GraphicsFamily)
	}
	if i.PresentFamily != nil && (i.GraphicsFamily == nil || *i.PresentFamily != *i.GraphicsFamily) {
		families = append(families, *i.PresentFamily)
	}
	return families
}

type QueuePreference int

const (
	// QueueAny imposes no requirement.
	QueueAny QueuePreference = iota
	// QueueAvailable requires some family supporting the capability.
	QueueAvailable
	// QueueSeparate requires a family supporting the capability but not graphics.
	QueueSeparate
	// QueueExclusive requires a family dedicated to the capability alone.
	QueueExclusive
)

var queuePreferenceNames = map[QueuePreference]string{
	QueueAny:       "any",
	QueueAvailable: "available",
	QueueSeparate:  "separate",
	QueueExclusive: "exclusive",
}

func (p QueuePreference) String() string {
	if name, ok := queuePreferenceNames[p]; ok {
		return name
	}
	return fmt.Sprintf("QueuePreference(%d)", int(p))
}

type DevicePreference int

const (
	DeviceAny DevicePreference = iota
	DeviceDiscrete
	DeviceIntegrated
	DeviceVirtual
	DeviceCPU
	DeviceOther
)

var devicePreferenceNames = map[DevicePreference]string{
	DeviceAny:        "any",
	DeviceDiscrete:   "discrete",
	DeviceIntegrated: "integrated",
	DeviceVirtual:    "virtual",
	DeviceCPU:        "cpu",
	DeviceOther:      "other",
}

func (p DevicePreference) String() string {
	if name, ok := devicePreferenceNames[p]; ok {
		return name
	}
	return fmt.Sprintf("DevicePreference(%d)", int(p))
}

// ParseDevicePreference accepts the names printed by DevicePreference.String.
func ParseDevicePreference(name string) (DevicePreference, bool) {
	for preference, candidate := range devicePreferenceNames {
		if strings.EqualFold(candidate, name) {
			return preference, true
		}
	}
	return DeviceAny, false
}

func (p DevicePreference) matches(deviceType core1_0.PhysicalDeviceType) bool {
	switch p {
	case DeviceAny:
		return true
	case DeviceDiscrete:
		return deviceType == core1_0.PhysicalDeviceTypeDiscreteGPU
	case DeviceIntegrated:
		return deviceType == core1_0.PhysicalDeviceTypeIntegratedGPU
	case DeviceVirtual:
		return deviceType == core1_0.PhysicalDeviceTypeVirtualGPU
	case DeviceCPU:
		return deviceType == core1_0.PhysicalDeviceTypeCPU
	case DeviceOther:
		return deviceType == core1_0.PhysicalDeviceTypeOther
	}
	return false
}

// Criteria is the set of requirements an adapter must meet to be selected.
type Criteria struct {
	MinAPIVersion common.APIVersion

	GraphicsQueue QueuePreference
	ComputeQueue  QueuePreference
	TransferQueue QueuePreference

	RequirePresent bool
	Extensions     []string

	DeviceType DevicePreference
	Features   *core1_0.PhysicalDeviceFeatures

	// MinDeviceLocalMemory is a byte count.
	MinDeviceLocalMemory int
}

// DefaultCriteria accepts every adapter.
func DefaultCriteria() Criteria {
	return Criteria{
		MinAPIVersion:        common.Vulkan1_0,
		GraphicsQueue:        QueueAny,
		ComputeQueue:         QueueAny,
		TransferQueue:        QueueAny,
		RequirePresent:       false,
		Extensions:           nil,
		DeviceType:           DeviceAny,
		Features:             nil,
		MinDeviceLocalMemory: 0,
	}
}

// Reject returns the reason the adapter fails the criteria, or "" if it passes.
func (c Criteria) Reject(adapter *Adapter) string {
	if c.MinAPIVersion != 0 && !adapter.APIVersion().IsAtLeast(c.MinAPIVersion) {
		return fmt.Sprintf("api version %s is below %s", adapter.APIVersion(), c.MinAPIVersion)
	}

	if reason := checkQueue(adapter, "graphics", core1_0.QueueGraphics, c.GraphicsQueue); reason != "" {
		return reason
	}
	if reason := checkQueue(adapter, "compute", core1_0.QueueCompute, c.ComputeQueue); reason != "" {
		return reason
	}
	if reason := checkQueue(adapter, "transfer", core1_0.QueueTransfer, c.TransferQueue); reason != "" {
		return reason
	}

	if c.RequirePresent && !adapter.HasPresentQueueFamily() {
		return "no queue family can present to the surface"
	}

	for _, extension := range c.Extensions {
		if !adapter.HasExtension(extension) {
			return fmt.Sprintf("missing extension %s", extension)
		}
	}

	if c.RequirePresent {
		surface := adapter.surface()
		if len(surface.Formats) == 0 {
			return "surface offers no formats"
		}
		if len(surface.PresentModes) == 0 {
			return "surface offers no present modes"
		}
	}

	if !c.DeviceType.matches(adapter.DeviceType()) {
		return fmt.Sprintf("device type %s is not %s", adapter.DeviceType(), c.DeviceType)
	}

	if missing := adapter.MissingFeatures(c.Features); len(missing) > 0 {
		return fmt.Sprintf("missing features %s", strings.Join(missing, ", "))
	}

	if adapter.DeviceLocalMemory() < c.MinDeviceLocalMemory {
		return fmt.Sprintf("device-local memory %d is below %d", adapter.DeviceLocalMemory(), c.MinDeviceLocalMemory)
	}

	return ""
}

func (c Criteria) Accepts(adapter *Adapter) bool {
	return c.Reject(adapter) == ""
}

func checkQueue(adapter *Adapter, role string, flags core1_0.QueueFlags, preference QueuePreference) string {
	var ok bool
	switch preference {
	case QueueAny:
		return ""
	case QueueAvailable:
		ok = adapter.HasCompatibleQueueFamily(flags)
	case QueueSeparate:
		if flags == core1_0.QueueGraphics {
			// Graphics cannot be separate from itself; the nearest meaning is a
			// graphics family without compute.
			ok = adapter.HasMutuallyExclusiveQueueFamily(flags, core1_0.QueueCompute)
		} else {
			ok = adapter.HasMutuallyExclusiveQueueFamily(flags, core1_0.QueueGraphics)
		}
	case QueueExclusive:
		ok = adapter.HasExclusiveQueueFamily(flags)
	}

	if !ok {
		return fmt.Sprintf("no %s %s queue family", preference, role)
	}
	return ""
}
